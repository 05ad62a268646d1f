package ingest

import (
	"context"
	"testing"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/events"
	"github.com/pathlake/slideagent/store"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewPipeline(
		cmn.DefaultConfig(),
		store.NewSlideRegistry(db),
		store.NewJobQueue(db, 4),
		store.NewScannerFileStore(db),
		events.New(),
	)
}

func TestRegisterUpsertsEnqueuesAndEmits(t *testing.T) {
	p := newTestPipeline(t)

	var imported []events.Event
	p.Bus.Subscribe(events.KindSlideImport, func(ev events.Event) { imported = append(imported, ev) })

	commit := &CommitResult{SlideID: "abc123", RawPath: "raw/abc123_AP000123A1.svs", Format: cmn.FormatSVS}
	slide, err := p.Register(context.Background(), commit, "AP000123A1.svs")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if slide.ExternalCaseBase == nil || *slide.ExternalCaseBase != "AP000123" {
		t.Fatalf("expected parsed caseBase AP000123, got %v", slide.ExternalCaseBase)
	}
	if slide.ExternalCaseID == nil || *slide.ExternalCaseID != "pathoweb:AP000123" {
		t.Fatalf("expected externalCaseId pathoweb:AP000123, got %v", slide.ExternalCaseID)
	}
	if len(imported) != 1 {
		t.Fatalf("expected one slide.import event, got %d", len(imported))
	}

	job, skipped, err := p.Jobs.CreateAndEnqueue(context.Background(), cmn.Payload{SlideID: "abc123", Type: cmn.JobP0})
	if err != nil {
		t.Fatalf("CreateAndEnqueue: %v", err)
	}
	if !skipped || job != nil {
		t.Fatalf("P0 for abc123 should already be active from Register")
	}
}

func TestRegisterIsIdempotentForSameSlideID(t *testing.T) {
	p := newTestPipeline(t)
	commit := &CommitResult{SlideID: "dup1", RawPath: "raw/dup1_a.svs", Format: cmn.FormatSVS}

	if _, err := p.Register(context.Background(), commit, "a.svs"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	second := &CommitResult{SlideID: "dup1", RawPath: "raw/dup1_b.svs", Format: cmn.FormatSVS}
	slide, err := p.Register(context.Background(), second, "b.svs")
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if slide.OriginalFilename != "b.svs" {
		t.Fatalf("dedup upsert must let the latest-observed filename win, got %q", slide.OriginalFilename)
	}
}
