package xact

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/store"
)

type fakeLabelOCR struct {
	text string
	err  error
}

func (f fakeLabelOCR) Read(ctx context.Context, imagePath string) (string, error) {
	return f.text, f.err
}

func newTestSlideRegistry(t *testing.T) *store.SlideRegistry {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewSlideRegistry(db)
}

func TestRunOCRSweepSetsLabelFromReadText(t *testing.T) {
	slides := newTestSlideRegistry(t)
	derivedDir := t.TempDir()

	_, _, err := slides.Upsert(&cmn.Slide{
		SlideID: "slideA", OCRStatus: cmn.OCRPending, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed slide: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(derivedDir, "slideA"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(derivedDir, "slideA", "thumb.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := RunOCRSweep(context.Background(), fakeLabelOCR{text: "A1"}, slides, derivedDir)
	if err != nil {
		t.Fatalf("RunOCRSweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 slide processed, got %d", n)
	}

	updated, err := slides.Get("slideA")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if updated.OCRStatus != cmn.OCRDone {
		t.Fatalf("expected OCRDone, got %s", updated.OCRStatus)
	}
	if updated.ExternalSlideLabel == nil || *updated.ExternalSlideLabel != "A1" {
		t.Fatalf("expected label A1, got %v", updated.ExternalSlideLabel)
	}
}

func TestRunOCRSweepSkipsSlideWithoutThumbnailYet(t *testing.T) {
	slides := newTestSlideRegistry(t)
	derivedDir := t.TempDir()

	_, _, err := slides.Upsert(&cmn.Slide{
		SlideID: "slideB", OCRStatus: cmn.OCRPending, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed slide: %v", err)
	}

	n, err := RunOCRSweep(context.Background(), fakeLabelOCR{text: "ignored"}, slides, derivedDir)
	if err != nil {
		t.Fatalf("RunOCRSweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 slides processed without a thumbnail, got %d", n)
	}

	updated, err := slides.Get("slideB")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if updated.OCRStatus != cmn.OCRPending {
		t.Fatalf("expected slide to remain pending, got %s", updated.OCRStatus)
	}
}
