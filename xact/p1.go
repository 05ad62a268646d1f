package xact

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/store"
)

// RunP1 continues the image-format tile precompute of spec.md §4.12 P1:
// levels startLevel..maxLevel, updating levelReadyMax as it goes.
func RunP1(ctx context.Context, slides *store.SlideRegistry, derivedDir, slideID, rawPath string, startLevel int) error {
	slide, err := slides.Get(slideID)
	if err != nil {
		return err
	}

	f, err := os.Open(rawPath)
	if err != nil {
		return cmn.NewError("xact.p1", cmn.KindIO, "open image", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return cmn.NewError("xact.p1", cmn.KindToolchain, "decode image", err)
	}

	tilesDir := filepath.Join(derivedDir, slideID, "tiles")
	if err := precomputeImageLevels(img, slide.MaxLevel, startLevel, slide.MaxLevel, tilesDir); err != nil {
		return err
	}

	maxLevel := slide.MaxLevel
	if _, err := slides.Update(slideID, cmn.SlideUpdate{LevelReadyMax: &maxLevel}); err != nil {
		return err
	}
	return nil
}
