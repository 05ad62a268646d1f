package e2e_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/events"
	"github.com/pathlake/slideagent/imaging"
	"github.com/pathlake/slideagent/ingest"
	"github.com/pathlake/slideagent/objstore"
	"github.com/pathlake/slideagent/preview"
	"github.com/pathlake/slideagent/store"
	"github.com/pathlake/slideagent/tiles"
	"github.com/pathlake/slideagent/xact"
)

// testEnv bundles one in-memory store plus the directories every producer
// writes through, mirroring cmd/slideagentd's wiring without the HTTP
// surface or tunnel.
type testEnv struct {
	db      *store.DB
	slides  *store.SlideRegistry
	jobs    *store.JobQueue
	scanner *store.ScannerFileStore
	outbox  *store.OutboxStore
	markers *store.MarkerStore
	bus     *events.Bus

	inboxDir   string
	rawDir     string
	derivedDir string
	cfg        cmn.Config
}

// newTestEnv returns a fresh environment and a cleanup func; callers defer
// the cleanup themselves (Ginkgo v1's It bodies are plain closures, so a
// deferred call inside one runs at the end of that spec).
func newTestEnv() (*testEnv, func()) {
	db, err := store.Open(":memory:")
	Expect(err).NotTo(HaveOccurred())

	root, err := os.MkdirTemp("", "slideagent-e2e-*")
	Expect(err).NotTo(HaveOccurred())

	env := &testEnv{
		db:         db,
		slides:     store.NewSlideRegistry(db),
		jobs:       store.NewJobQueue(db, 16),
		scanner:    store.NewScannerFileStore(db),
		outbox:     store.NewOutboxStore(db),
		markers:    store.NewMarkerStore(db),
		bus:        events.New(),
		inboxDir:   filepath.Join(root, "inbox"),
		rawDir:     filepath.Join(root, "raw"),
		derivedDir: filepath.Join(root, "derived"),
	}
	for _, d := range []string{env.inboxDir, env.rawDir, env.derivedDir} {
		Expect(os.MkdirAll(d, 0o755)).To(Succeed())
	}
	env.cfg = cmn.DefaultConfig()
	env.cfg.InboxDir = env.inboxDir
	env.cfg.RawDir = env.rawDir
	env.cfg.DerivedDir = env.derivedDir

	return env, func() {
		db.Close()
		os.RemoveAll(root)
	}
}

func (e *testEnv) pipeline() *ingest.Pipeline {
	return ingest.NewPipeline(e.cfg, e.slides, e.jobs, e.scanner, e.bus)
}

// writeJPEG writes a solid-color JPEG of the given dimensions and returns
// its path.
func writeJPEG(dir, name string, w, h int) string {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	Expect(err).NotTo(HaveOccurred())
	defer f.Close()
	Expect(jpeg.Encode(f, img, &jpeg.Options{Quality: 90})).To(Succeed())
	return path
}

// fakeAdapter is a local stand-in for imaging.Adapter used by the WSI
// scenarios (tile coalescing, pyramid-swap crash recovery), grounded on
// the same shape as tiles/ondemand_test.go's fakeAdapter.
type fakeAdapter struct {
	imaging.Adapter
	extractCalls  int32
	buildCalls    int32
	release       chan struct{}
	pyramidLevels []int // toolchain-numbered level dirs BuildPyramid should create
}

func (f *fakeAdapter) ExtractTile(ctx context.Context, req imaging.TileRequest) ([]byte, error) {
	atomic.AddInt32(&f.extractCalls, 1)
	if f.release != nil {
		<-f.release
	}
	return []byte("tile-bytes"), nil
}

func (f *fakeAdapter) BuildPyramid(ctx context.Context, srcPath, outDir string) error {
	atomic.AddInt32(&f.buildCalls, 1)
	levels := f.pyramidLevels
	if len(levels) == 0 {
		levels = []int{0}
	}
	for _, lvl := range levels {
		levelDir := filepath.Join(outDir, fmt.Sprint(lvl))
		if err := os.MkdirAll(levelDir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(levelDir, "0_0.jpg"), []byte("pyramid-tile"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAdapter) DownscaleTo(ctx context.Context, srcPath, dstPath string, width, height int) error {
	return os.WriteFile(dstPath, []byte("base"), 0o644)
}

func (f *fakeAdapter) WriteThumbnail(ctx context.Context, srcPath, dstPath string, width, height int) error {
	return os.WriteFile(dstPath, []byte("thumb"), 0o644)
}

var _ = Describe("ingest then serve a tile", func() {
	It("registers a ready slide and serves its level-0 tile", func() {
		env, cleanup := newTestEnv()
		defer cleanup()
		src := writeJPEG(env.inboxDir, "sample.jpg", 300, 200)
		srcSt, err := os.Stat(src)
		Expect(err).NotTo(HaveOccurred())

		commit, err := ingest.CommitToRaw(src, env.rawDir, "sample.jpg")
		Expect(err).NotTo(HaveOccurred())
		Expect(commit.Skipped).To(BeFalse())

		slide, err := env.pipeline().Register(context.Background(), commit, "sample.jpg")
		Expect(err).NotTo(HaveOccurred())
		Expect(slide.Status).To(Equal(cmn.SlideQueued))

		rawSt, err := os.Stat(commit.RawPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(rawSt.Size()).To(Equal(srcSt.Size()))

		payload, ok, err := env.jobs.Dequeue(context.Background(), time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(payload.Type).To(Equal(cmn.JobP0))

		Expect(xact.RunP0(context.Background(), nil, env.slides, env.jobs, env.bus,
			env.derivedDir, payload.JobID, payload.SlideID, payload.RawPath, payload.Format)).To(Succeed())

		ready, err := env.slides.Get(slide.SlideID)
		Expect(err).NotTo(HaveOccurred())
		Expect(ready.Status).To(Equal(cmn.SlideReady))
		Expect(ready.Format).To(Equal(cmn.FormatJPG))
		Expect(ready.MaxLevel).To(Equal(cmn.MaxLevelFor(300, 200)))

		gen := tiles.NewGenerator(nil, env.derivedDir, 4, env.bus)
		tileBytes, err := gen.Get(context.Background(), imaging.TileRequest{
			Level: 0, X: 0, Y: 0, MaxLevel: ready.MaxLevel,
		}, ready.SlideID)
		Expect(err).NotTo(HaveOccurred())

		decoded, err := jpeg.Decode(bytes.NewReader(tileBytes))
		Expect(err).NotTo(HaveOccurred())
		b := decoded.Bounds()
		Expect(b.Dx()).To(BeNumerically("<=", 256))
		Expect(b.Dy()).To(BeNumerically("<=", 256))
	})
})

var _ = Describe("duplicate ingest", func() {
	It("keeps exactly one slide row and enqueues exactly one P0 job", func() {
		env, cleanup := newTestEnv()
		defer cleanup()
		src1 := writeJPEG(env.inboxDir, "a.jpg", 128, 128)

		commit1, err := ingest.CommitToRaw(src1, env.rawDir, "a.jpg")
		Expect(err).NotTo(HaveOccurred())
		slide1, err := env.pipeline().Register(context.Background(), commit1, "a.jpg")
		Expect(err).NotTo(HaveOccurred())

		// Recreate the same bytes under a second filename to exercise the
		// "two distinct originalFilenames, same content" duplicate path.
		src2 := writeJPEG(env.inboxDir, "b.jpg", 128, 128)
		commit2, err := ingest.CommitToRaw(src2, env.rawDir, "b.jpg")
		Expect(err).NotTo(HaveOccurred())
		Expect(commit2.SlideID).To(Equal(slide1.SlideID))
		// The raw destination embeds the original filename, so b.jpg is a
		// new raw file even though its content digest matches a.jpg's.
		Expect(commit2.Skipped).To(BeFalse())

		slide2, err := env.pipeline().Register(context.Background(), commit2, "b.jpg")
		Expect(err).NotTo(HaveOccurred())
		Expect(slide2.SlideID).To(Equal(slide1.SlideID))
		Expect(slide2.OriginalFilename).To(Equal("b.jpg"))

		all, err := env.slides.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(1))

		_, ok, err := env.jobs.Dequeue(context.Background(), time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		_, ok, err = env.jobs.Dequeue(context.Background(), 50*time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse(), "expected no second P0 job queued for the duplicate")
	})
})

var _ = Describe("scanner dedup", func() {
	It("does not re-register a path already recorded as seen", func() {
		env, cleanup := newTestEnv()
		defer cleanup()
		env.cfg.ScannerDir = filepath.Join(env.inboxDir, "mount")
		Expect(os.MkdirAll(env.cfg.ScannerDir, 0o755)).To(Succeed())
		path := writeJPEG(env.cfg.ScannerDir, "known.jpg", 64, 64)

		Expect(env.scanner.Record(cmn.ScannerFile{Path: path, SlideID: "preexisting"})).To(Succeed())

		s := ingest.NewScanner(env.pipeline())
		Expect(s.Pass(context.Background())).To(Succeed())

		all, err := env.slides.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(BeEmpty())
	})
})

var _ = Describe("tile coalescing", func() {
	It("invokes the imaging toolchain exactly once for 8 concurrent identical requests", func() {
		env, cleanup := newTestEnv()
		defer cleanup()
		fa := &fakeAdapter{release: make(chan struct{})}
		gen := tiles.NewGenerator(fa, env.derivedDir, 8, env.bus)
		req := imaging.TileRequest{Level: 3, X: 1, Y: 1, MaxLevel: 6, SrcWidth: 4096, SrcHeight: 4096}

		const n = 8
		var wg sync.WaitGroup
		results := make([][]byte, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				b, err := gen.Get(context.Background(), req, "wsiSlide")
				Expect(err).NotTo(HaveOccurred())
				results[i] = b
			}(i)
		}
		time.Sleep(30 * time.Millisecond)
		close(fa.release)
		wg.Wait()

		Expect(atomic.LoadInt32(&fa.extractCalls)).To(Equal(int32(1)))
		for _, r := range results {
			Expect(string(r)).To(Equal("tile-bytes"))
		}
	})
})

var _ = Describe("preview idempotence", func() {
	It("performs zero PUTs and leaves the marker unchanged on a repeat publish", func() {
		env, cleanup := newTestEnv()
		defer cleanup()
		backend := &memBackend{byKey: map[string][]byte{}}
		uploader := objstore.New(backend, 4)

		_, _, err := env.slides.Upsert(&cmn.Slide{
			SlideID: "slideX", Width: 4096, Height: 2048, MaxLevel: cmn.MaxLevelFor(4096, 2048),
			Status: cmn.SlideReady, CreatedAt: time.Now(),
		})
		Expect(err).NotTo(HaveOccurred())

		const targetMaxDim, requestedLevel = 2048, 6
		rebasedW, rebasedH := preview.RebasedDimensions(4096, 2048, targetMaxDim)
		rebasedMaxLevel := preview.RebasedMaxLevel(rebasedW, rebasedH, requestedLevel)
		toolchainTop := cmn.MaxLevelFor(rebasedW, rebasedH)
		floor := toolchainTop - rebasedMaxLevel
		var levels []int
		for z := 0; z <= rebasedMaxLevel; z++ {
			levels = append(levels, floor+z)
		}
		fa := &fakeAdapter{pyramidLevels: levels}
		pub := preview.NewPublisher(fa, env.slides, env.markers, env.outbox, uploader, env.bus,
			targetMaxDim, requestedLevel, "previews", filepath.Join(env.derivedDir, "work"), cmn.ObjStoreConfig{})

		firstResult, err := pub.Publish(context.Background(), "slideX")
		Expect(err).NotTo(HaveOccurred())
		Expect(firstResult.Published).To(BeTrue())
		Expect(firstResult.Skipped).To(BeFalse())
		firstPuts := backend.puts()
		Expect(firstPuts).To(BeNumerically(">", 0))

		marker1, err := env.markers.Load("slideX")
		Expect(err).NotTo(HaveOccurred())
		Expect(marker1.Status).To(Equal("complete"))

		unsynced, err := env.outbox.Unsynced()
		Expect(err).NotTo(HaveOccurred())
		Expect(unsynced).To(HaveLen(1))
		Expect(unsynced[0].Operation).To(Equal("published"))

		secondResult, err := pub.Publish(context.Background(), "slideX")
		Expect(err).NotTo(HaveOccurred())
		Expect(secondResult).To(Equal(preview.PublishResult{Published: false, Skipped: true, Reason: "already_published"}))
		Expect(backend.puts()).To(Equal(firstPuts))

		marker2, err := env.markers.Load("slideX")
		Expect(err).NotTo(HaveOccurred())
		Expect(marker2.PublishedAt).To(Equal(marker1.PublishedAt))

		unsynced, err = env.outbox.Unsynced()
		Expect(err).NotTo(HaveOccurred())
		Expect(unsynced).To(HaveLen(1), "a repeat no-op publish must not append a second outbox event")
	})
})

var _ = Describe("pyramid-swap crash recovery", func() {
	It("converges to tiles/ present and tiles_tmp/tiles_old absent regardless of prior crash point", func() {
		env, cleanup := newTestEnv()
		defer cleanup()
		_, _, err := env.slides.Upsert(&cmn.Slide{
			SlideID: "slideY", Width: 8192, Height: 8192, MaxLevel: cmn.MaxLevelFor(8192, 8192),
			Status: cmn.SlideReady, CreatedAt: time.Now(),
		})
		Expect(err).NotTo(HaveOccurred())

		base := filepath.Join(env.derivedDir, "slideY")
		Expect(os.MkdirAll(base, 0o755)).To(Succeed())
		// Simulate the crash point: the old pyramid has already been
		// renamed aside, but the new one hasn't been swapped in yet.
		oldDir := filepath.Join(base, "tiles_old")
		Expect(os.MkdirAll(oldDir, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(oldDir, "stale.jpg"), []byte("stale"), 0o644)).To(Succeed())

		fa := &fakeAdapter{}
		Expect(xact.RunTileGen(context.Background(), fa, env.slides, env.outbox, env.bus,
			env.derivedDir, "slideY", "/dev/null")).To(Succeed())

		finalDir := filepath.Join(base, "tiles")
		tmpDir := filepath.Join(base, "tiles_tmp")
		Expect(finalDir).To(BeADirectory())
		Expect(tmpDir).NotTo(BeADirectory())
		Expect(oldDir).NotTo(BeADirectory())

		slide, err := env.slides.Get("slideY")
		Expect(err).NotTo(HaveOccurred())
		Expect(slide.TilegenStatus).To(Equal(cmn.TilegenDone))
	})
})

// memBackend is an in-memory objstore.Backend used by the preview
// idempotence scenario, mirroring preview/publisher_test.go's own
// memBackend.
type memBackend struct {
	mu       sync.Mutex
	byKey    map[string][]byte
	putCount int
}

func (m *memBackend) Put(ctx context.Context, obj objstore.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKey[obj.Key] = obj.Body
	m.putCount++
	return nil
}

func (m *memBackend) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.byKey {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memBackend) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.byKey {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.byKey, k)
		}
	}
	return nil
}

func (m *memBackend) puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putCount
}

