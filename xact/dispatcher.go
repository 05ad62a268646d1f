package xact

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/cmn/nlog"
	"github.com/pathlake/slideagent/events"
	"github.com/pathlake/slideagent/imaging"
	"github.com/pathlake/slideagent/objstore"
	"github.com/pathlake/slideagent/preview"
	"github.com/pathlake/slideagent/store"
)

const dequeueTimeout = 5 * time.Second

// Dispatcher is the single-process, single-loop worker of spec.md §4.12
// (C12). Grounded on other_examples/f8ed2376_mumuon-tile-service__
// service.go's phase-by-phase, continue-on-non-fatal-error job processing
// loop, and on aistore's xaction Start/Run/Finish lifecycle shape
// (SK-Kadam-aistore/xs/lom_warmup.go, ghjramos-aistore/xact/xs/tcb.go).
type Dispatcher struct {
	cfg       cmn.Config
	adapter   imaging.Adapter
	slides    *store.SlideRegistry
	jobs      *store.JobQueue
	outbox    *store.OutboxStore
	bus       *events.Bus
	publisher *preview.Publisher
	uploader  *objstore.Uploader // nil if no object store configured
	metrics   *Metrics
	log       *nlog.Logger
}

func NewDispatcher(cfg cmn.Config, adapter imaging.Adapter, slides *store.SlideRegistry, jobs *store.JobQueue, outbox *store.OutboxStore, bus *events.Bus, publisher *preview.Publisher, uploader *objstore.Uploader, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		cfg: cfg, adapter: adapter, slides: slides, jobs: jobs, outbox: outbox,
		bus: bus, publisher: publisher, uploader: uploader, metrics: metrics,
		log: nlog.Named("dispatcher"),
	}
}

// Run blocks, dequeuing and routing one job at a time, until ctx is
// cancelled (spec.md §4.12, §5 "never holds a transaction across an
// external call").
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		payload, ok, err := d.jobs.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Errorf("dequeue error: %v", err)
			continue
		}
		if !ok {
			continue
		}
		d.process(ctx, payload)
	}
}

func (d *Dispatcher) process(ctx context.Context, payload cmn.Payload) {
	log := d.log.With("jobId", payload.JobID, "slideId", payload.SlideID, "type", payload.Type)
	start := time.Now()

	if payload.Type.NeedsRawFile() {
		if _, err := os.Stat(payload.RawPath); err != nil {
			log.Warnf("raw file missing, failing job: %v", err)
			d.failBoth(payload, "raw file missing")
			return
		}
	}

	if err := d.jobs.Transition(payload.JobID, cmn.JobRunning, ""); err != nil {
		log.Errorf("transition to running failed: %v", err)
		return
	}
	processing := cmn.SlideProcessing
	if _, err := d.slides.Update(payload.SlideID, cmn.SlideUpdate{Status: &processing}); err != nil {
		log.Errorf("set slide processing failed: %v", err)
	}

	runErr := d.route(ctx, payload)

	d.metrics.JobDuration.WithLabelValues(string(payload.Type)).Observe(time.Since(start).Seconds())

	if runErr != nil {
		log.Errorf("job failed: %+v", errors.WithStack(runErr))
		d.metrics.JobsFailed.WithLabelValues(string(payload.Type)).Inc()
		d.failBoth(payload, runErr.Error())
		return
	}

	d.metrics.JobsProcessed.WithLabelValues(string(payload.Type)).Inc()
	if err := d.jobs.Transition(payload.JobID, cmn.JobDone, ""); err != nil {
		log.Errorf("transition to done failed: %v", err)
	}
}

func (d *Dispatcher) route(ctx context.Context, payload cmn.Payload) error {
	switch payload.Type {
	case cmn.JobP0:
		if err := RunP0(ctx, d.adapter, d.slides, d.jobs, d.bus, d.cfg.DerivedDir, payload.JobID, payload.SlideID, payload.RawPath, payload.Format); err != nil {
			return err
		}
		d.chainPreviewAsync(payload.SlideID)
		return nil
	case cmn.JobP1:
		return RunP1(ctx, d.slides, d.cfg.DerivedDir, payload.SlideID, payload.RawPath, payload.StartLevel)
	case cmn.JobTilegen:
		if err := RunTileGen(ctx, d.adapter, d.slides, d.outbox, d.bus, d.cfg.DerivedDir, payload.SlideID, payload.RawPath); err != nil {
			return err
		}
		d.chainPreviewAsync(payload.SlideID)
		d.chainRemoteUploadAsync(payload.SlideID)
		return nil
	case cmn.JobCleanup:
		if d.uploader == nil {
			return nil
		}
		return RunCleanup(ctx, d.uploader, d.bus, d.cfg.PreviewPrefix, payload.SlideID)
	default:
		return cmn.Errorf("dispatcher.route", cmn.KindPermanent, "unknown job type %q", payload.Type)
	}
}

// chainPreviewAsync fires the rebased preview publish non-blocking, per
// spec.md §4.12 P0 and §4.8 step 6 — a publish failure never fails the
// job that triggered it; the next TILEGEN/P0 retry (or a future manual
// republish) tries again against the idempotency marker.
func (d *Dispatcher) chainPreviewAsync(slideID string) {
	if !d.cfg.PreviewRemoteEnabled || d.publisher == nil {
		return
	}
	go func() {
		if _, err := d.publisher.Publish(context.Background(), slideID); err != nil {
			d.log.Warnf("async preview publish failed for %s: %v", slideID, err)
		}
	}()
}

// chainRemoteUploadAsync fires a best-effort bulk upload of the
// full-resolution tile tree, independent of the rebased preview (spec.md
// §4.8 step 6 "remote upload").
func (d *Dispatcher) chainRemoteUploadAsync(slideID string) {
	if d.uploader == nil {
		return
	}
	go func() {
		dir := d.cfg.DerivedDir + "/" + slideID + "/tiles"
		prefix := "slides/" + slideID + "/tiles"
		if err := uploadFullResTiles(context.Background(), d.uploader, dir, prefix); err != nil {
			d.log.Warnf("async remote tile upload failed for %s: %v", slideID, err)
		}
	}()
}

func (d *Dispatcher) failBoth(payload cmn.Payload, msg string) {
	if err := d.jobs.Transition(payload.JobID, cmn.JobFailed, msg); err != nil {
		d.log.Errorf("failing job transition error: %v", err)
	}
	failed := cmn.SlideFailed
	if _, err := d.slides.Update(payload.SlideID, cmn.SlideUpdate{Status: &failed}); err != nil {
		d.log.Errorf("failing slide update error: %v", err)
	}
}
