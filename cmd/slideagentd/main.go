// Command slideagentd is the agent process: it wires every component of
// SPEC_FULL.md's §4 (C1-C12) plus the ambient logging/config/health/
// metrics stack (A1-A4) into one running service, the way
// ghjramos-aistore's cmd/cli and target binaries wire their own
// subsystems out of a single Config.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/cmn/nlog"
	"github.com/pathlake/slideagent/collab"
	"github.com/pathlake/slideagent/events"
	"github.com/pathlake/slideagent/health"
	"github.com/pathlake/slideagent/imaging"
	"github.com/pathlake/slideagent/ingest"
	"github.com/pathlake/slideagent/objstore"
	"github.com/pathlake/slideagent/preview"
	"github.com/pathlake/slideagent/store"
	"github.com/pathlake/slideagent/tiles"
	"github.com/pathlake/slideagent/tunnel"
	"github.com/pathlake/slideagent/xact"
)

const jobQueueCapacity = 256

var log = nlog.Named("main")

func main() {
	cfg := cmn.LoadFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg cmn.Config) error {
	if removed, err := ingest.CleanupStaleTemp(cfg.RawDir); err != nil {
		log.Warnf("stale temp cleanup failed: %v", err)
	} else if removed > 0 {
		log.Infof("removed %d stale temp file(s) from %s", removed, cfg.RawDir)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	slides := store.NewSlideRegistry(db)
	jobs := store.NewJobQueue(db, jobQueueCapacity)
	scannerFiles := store.NewScannerFileStore(db)
	outbox := store.NewOutboxStore(db)
	markers := store.NewMarkerStore(db)

	if n, err := jobs.ReconcileOnStartup(); err != nil {
		return err
	} else if n > 0 {
		log.Warnf("reconciled %d job(s) left running by a previous crash", n)
	}

	bus := events.New()
	adapter := imaging.NewAdapter(imaging.DefaultConfig())

	reg := prometheus.NewRegistry()
	metrics := xact.NewMetrics(reg)
	ambientMetrics := health.NewAmbientMetrics(reg)
	agg := health.New()

	uploader, err := buildUploader(ctx, cfg.ObjStore)
	if err != nil {
		log.Warnf("remote object store not configured: %v", err)
	}
	agg.Register("objstore", func() (bool, string) {
		if uploader == nil {
			return true, "not configured"
		}
		return true, cfg.ObjStore.Provider
	})

	publisher := preview.NewPublisher(adapter, slides, markers, outbox, uploader, bus,
		cfg.PreviewTargetMaxDim, cfg.PreviewMaxLevel, cfg.PreviewPrefix, cfg.DerivedDir, cfg.ObjStore)

	pipeline := ingest.NewPipeline(cfg, slides, jobs, scannerFiles, bus)
	pipeline.OCR = collab.NoopLabelOCR{}

	watcher, err := ingest.NewWatcher(pipeline)
	if err != nil {
		return err
	}
	go watcher.Run(ctx)
	agg.Register("watcher", func() (bool, string) { return true, cfg.InboxDir })

	var scanner *ingest.Scanner
	if cfg.ScannerEnabled {
		scanner = ingest.NewScanner(pipeline)
		go runScannerLoop(ctx, scanner, time.Duration(cfg.ScannerIntervalMS)*time.Millisecond)
	}
	agg.Register("scanner", func() (bool, string) {
		if scanner == nil {
			return true, "disabled"
		}
		state := scanner.State()
		return state != ingest.ScannerDirMissing, string(state)
	})

	tileGen := tiles.NewGenerator(adapter, cfg.DerivedDir, cfg.TileConcurrency, bus)

	dispatcher := xact.NewDispatcher(cfg, adapter, slides, jobs, outbox, bus, publisher, uploader, metrics)
	go dispatcher.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/healthz", health.Handler(agg))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/slides/", tileHandler(tileGen, slides))

	var tunnelClient *tunnel.Client
	if cfg.Tunnel.URL != "" {
		tunnelClient = tunnel.New(cfg.Tunnel, mux, bus)
		tunnelClient.SetReconnectCounter(ambientMetrics.TunnelReconnects)
		bus.AddRelay(tunnelClient)
		go tunnelClient.Run(ctx)
	}
	agg.Register("tunnel", func() (bool, string) {
		if tunnelClient == nil {
			return true, "disabled"
		}
		return true, "configured"
	})
	agg.Register("config", func() (bool, string) { return true, "loaded" })

	srv := &http.Server{Addr: ":8080", Handler: mux}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Errorf("http server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http server shutdown: %v", err)
	}
	return nil
}

func runScannerLoop(ctx context.Context, scanner *ingest.Scanner, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := scanner.Pass(ctx); err != nil {
				log.Warnf("scanner pass failed: %v", err)
			}
		}
	}
}

func buildUploader(ctx context.Context, cfg cmn.ObjStoreConfig) (*objstore.Uploader, error) {
	switch cfg.Provider {
	case "s3":
		backend, err := objstore.NewS3Backend(ctx, cfg.Bucket, cfg.Region, cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		return objstore.New(backend, 8), nil
	case "azure":
		backend, err := objstore.NewAzureBackend(cfg.Endpoint, cfg.Bucket, cfg.SecretKey)
		if err != nil {
			return nil, err
		}
		return objstore.New(backend, 8), nil
	case "gcs":
		backend, err := objstore.NewGCSBackend(ctx, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		return objstore.New(backend, 8), nil
	default:
		return nil, cmn.NewError("main.buildUploader", cmn.KindConfigMiss, "no object store provider configured", nil)
	}
}

// tileHandler is the minimal in-scope HTTP surface this agent exposes for
// on-demand tile generation (C7); the full REST API is an out-of-scope
// external collaborator, but the tunnel (C11) still needs a real handler
// to dispatch inbound frames against. Path shape: /slides/{id}/tiles/{z}/{x}_{y}.jpg
func tileHandler(gen *tiles.Generator, slides *store.SlideRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slideID, level, x, y, ok := parseTilePath(r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}
		slide, err := slides.Get(slideID)
		if err != nil {
			http.Error(w, "slide not found", http.StatusNotFound)
			return
		}
		req := imaging.TileRequest{
			SrcPath: slide.RawPath, Level: level, X: x, Y: y,
			MaxLevel: slide.MaxLevel, SrcWidth: slide.Width, SrcHeight: slide.Height,
		}
		body, err := gen.Get(r.Context(), req, slideID)
		if err != nil {
			if cmn.KindOf(err) == cmn.KindBounds {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(body)
	}
}

// parseTilePath extracts {slideId}/tiles/{z}/{x}_{y}.jpg from a request
// path, tolerating exactly that shape and nothing else.
func parseTilePath(path string) (slideID string, level, x, y int, ok bool) {
	parts := splitPath(path)
	if len(parts) != 5 || parts[0] != "slides" || parts[2] != "tiles" {
		return "", 0, 0, 0, false
	}
	slideID = parts[1]
	level, err := strconv.Atoi(parts[3])
	if err != nil {
		return "", 0, 0, 0, false
	}
	xy := parts[4]
	dot := lastIndexByte(xy, '.')
	if dot >= 0 {
		xy = xy[:dot]
	}
	under := indexByte(xy, '_')
	if under < 0 {
		return "", 0, 0, 0, false
	}
	x, err1 := strconv.Atoi(xy[:under])
	y, err2 := strconv.Atoi(xy[under+1:])
	if err1 != nil || err2 != nil {
		return "", 0, 0, 0, false
	}
	return slideID, level, x, y, true
}

func splitPath(path string) []string {
	var parts []string
	cur := ""
	for _, r := range path {
		if r == '/' {
			if cur != "" {
				parts = append(parts, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		parts = append(parts, cur)
	}
	return parts
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
