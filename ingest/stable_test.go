package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWaitStableReportsSteadySize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.jpg")
	if err := os.WriteFile(path, []byte("1234"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	size, stillWriting, err := WaitStable(path, 20*time.Millisecond, false)
	if err != nil {
		t.Fatalf("WaitStable: %v", err)
	}
	if stillWriting {
		t.Fatalf("expected stable (not still writing) for untouched file")
	}
	if size != 4 {
		t.Fatalf("expected size 4, got %d", size)
	}
}

func TestWaitStableDetectsGrowth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.jpg")
	if err := os.WriteFile(path, []byte("1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	done := make(chan struct{})
	go func() {
		time.Sleep(5 * time.Millisecond)
		os.WriteFile(path, []byte("12345678"), 0o644)
		close(done)
	}()

	_, stillWriting, err := WaitStable(path, 40*time.Millisecond, false)
	<-done
	if err != nil {
		t.Fatalf("WaitStable: %v", err)
	}
	if !stillWriting {
		t.Fatalf("expected stillWriting=true when size changes mid-check")
	}
}

func TestWaitStableRejectsZeroSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.jpg")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := WaitStable(path, 10*time.Millisecond, false); err == nil {
		t.Fatalf("expected error for zero-size file")
	}
}
