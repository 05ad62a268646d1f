package preview

import "testing"

func TestRebasedDimensionsNoUpscale(t *testing.T) {
	w, h := RebasedDimensions(1000, 800, 2048)
	if w != 1000 || h != 800 {
		t.Fatalf("expected unchanged dims for slide smaller than target, got %dx%d", w, h)
	}
}

func TestRebasedDimensionsDownscales(t *testing.T) {
	w, h := RebasedDimensions(8192, 4096, 2048)
	if w != 2048 || h != 1024 {
		t.Fatalf("expected 2048x1024, got %dx%d", w, h)
	}
}

func TestRebasedMaxLevelCappedByRequested(t *testing.T) {
	// ceil(log2(4096)) = 12, but requested is 6.
	lvl := RebasedMaxLevel(4096, 2048, 6)
	if lvl != 6 {
		t.Fatalf("expected 6, got %d", lvl)
	}
}

func TestRebasedMaxLevelCappedByDimension(t *testing.T) {
	// ceil(log2(max(100,50))) = 7, requested 12.
	lvl := RebasedMaxLevel(100, 50, 12)
	if lvl != 7 {
		t.Fatalf("expected 7, got %d", lvl)
	}
}
