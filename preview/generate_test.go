package preview

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/pathlake/slideagent/imaging"
)

// fakeAdapter writes minimal placeholder files instead of shelling out to
// a real imaging toolchain, so generateLocal's orchestration (directory
// layout, level remapping) can be exercised without external binaries.
type fakeAdapter struct {
	imaging.Adapter
	pyramidLevels []int // toolchain-numbered level dirs to create, each with one tile
}

func (f *fakeAdapter) DownscaleTo(ctx context.Context, srcPath, dstPath string, width, height int) error {
	return os.WriteFile(dstPath, []byte("base"), 0o644)
}

func (f *fakeAdapter) WriteThumbnail(ctx context.Context, srcPath, dstPath string, width, height int) error {
	return os.WriteFile(dstPath, []byte("thumb"), 0o644)
}

func (f *fakeAdapter) BuildPyramid(ctx context.Context, srcPath, outDir string) error {
	for _, lvl := range f.pyramidLevels {
		levelDir := filepath.Join(outDir, strconv.Itoa(lvl))
		if err := os.MkdirAll(levelDir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(levelDir, "0_0.jpg"), []byte("tile"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func TestGenerateLocalRemapsToolchainLevelsToViewerConvention(t *testing.T) {
	// rebased 4096x2048 -> toolchain top level ceil(log2(4096)) = 12.
	// rebasedMaxLevel (requested 6) = 6, so floor = 12-6 = 6; viewer level
	// z in [0,6] maps to toolchain level 6+z in [6,12].
	workDir := t.TempDir()
	fa := &fakeAdapter{pyramidLevels: []int{6, 7, 8, 9, 10, 11, 12}}

	p, err := generateLocal(context.Background(), fa, "src.svs", workDir, 4096, 2048, 6)
	if err != nil {
		t.Fatalf("generateLocal: %v", err)
	}
	if p.maxLevel != 6 {
		t.Fatalf("expected maxLevel 6, got %d", p.maxLevel)
	}
	for z := 0; z <= 6; z++ {
		if _, err := os.Stat(filepath.Join(p.dir, strconv.Itoa(z), "0_0.jpg")); err != nil {
			t.Fatalf("expected remapped viewer level %d to exist: %v", z, err)
		}
	}
	if _, err := os.Stat(p.thumb); err != nil {
		t.Fatalf("expected thumbnail to exist: %v", err)
	}
}

func TestTileIndexReturnsSortedRelativePaths(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(rel string) {
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("1/0_0.jpg")
	mustWrite("0/0_0.jpg")

	idx, err := tileIndex(dir)
	if err != nil {
		t.Fatalf("tileIndex: %v", err)
	}
	if len(idx) != 2 || idx[0] != "0/0_0.jpg" || idx[1] != "1/0_0.jpg" {
		t.Fatalf("expected sorted [0/0_0.jpg 1/0_0.jpg], got %v", idx)
	}
}
