package preview

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/cmn/cos"
	"github.com/pathlake/slideagent/imaging"
)

// localPyramid is the result of generating the rebased pyramid on local
// disk, already remapped into the viewer's level convention.
type localPyramid struct {
	dir      string // contains {z}/{x}_{y}.jpg in viewer-level numbering
	thumb    string
	maxLevel int
}

// generateLocal implements spec.md §4.9's "Local generation": downscale the
// source to the rebased base size, run the deep-zoom saver on that base,
// then remap the toolchain's 0=1x1..N=full-res numbering into the viewer's
// 0=smallest..maxLevel=full-res convention via
// ourLevel z <-> toolchainLevel (N - maxLevel + z), dropping everything
// below the mapped floor.
func generateLocal(ctx context.Context, adapter imaging.Adapter, srcPath, workDir string, rebasedWidth, rebasedHeight, rebasedMaxLevel int) (*localPyramid, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, cmn.NewError("preview.generate", cmn.KindIO, "mkdir work dir", err)
	}

	basePath := filepath.Join(workDir, "base.jpg")
	if err := adapter.DownscaleTo(ctx, srcPath, basePath, rebasedWidth, rebasedHeight); err != nil {
		return nil, err
	}

	thumbPath := filepath.Join(workDir, "thumb.jpg")
	if err := adapter.WriteThumbnail(ctx, basePath, thumbPath, 512, 512); err != nil {
		return nil, err
	}

	toolchainDir := filepath.Join(workDir, "toolchain_tiles")
	if err := adapter.BuildPyramid(ctx, basePath, toolchainDir); err != nil {
		return nil, err
	}

	toolchainTop := cmn.MaxLevelFor(rebasedWidth, rebasedHeight)
	floor := toolchainTop - rebasedMaxLevel

	remappedDir := filepath.Join(workDir, "tiles")
	if err := os.MkdirAll(remappedDir, 0o755); err != nil {
		return nil, cmn.NewError("preview.generate", cmn.KindIO, "mkdir remapped dir", err)
	}
	for z := 0; z <= rebasedMaxLevel; z++ {
		toolchainLevel := floor + z
		src := filepath.Join(toolchainDir, strconv.Itoa(toolchainLevel))
		dst := filepath.Join(remappedDir, strconv.Itoa(z))
		if !cos.Exists(src) {
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return nil, cmn.NewError("preview.generate", cmn.KindIO, "remap level dir", err)
		}
	}
	cos.RemoveIfExists(toolchainDir)

	return &localPyramid{dir: remappedDir, thumb: thumbPath, maxLevel: rebasedMaxLevel}, nil
}

// tileIndex returns the sorted list of "{z}/{x}_{y}.jpg"-shaped relative
// paths under the pyramid directory — the "rebased-tile index" spec.md
// §4.9 hashes for the idempotency marker.
func tileIndex(dir string) ([]string, error) {
	var out []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, cmn.NewError("preview.tileIndex", cmn.KindIO, "walk pyramid dir", err)
	}
	sort.Strings(out)
	return out, nil
}
