package xact

import (
	"image"
	"os"
	"path/filepath"
	"strconv"

	dimg "github.com/disintegration/imaging"

	"github.com/pathlake/slideagent/cmn"
)

// precomputeImageLevels implements spec.md §4.12 P0/P1's "precompute levels
// 0..4 via an image library's resize primitive and write one tile at a time
// at 85 quality" for plain image formats (jpg/png, not WSI). Grounded on
// disintegration/imaging's documented Resize/Crop primitives (seen in the
// pack's adhtanjung-maukmn-api-alpha and cklxx-elephant.ai manifests) rather
// than a hand-rolled nearest-neighbour resizer.
func precomputeImageLevels(img image.Image, maxLevel, fromLevel, toLevel int, outDir string) error {
	fullW, fullH := img.Bounds().Dx(), img.Bounds().Dy()

	for z := fromLevel; z <= toLevel && z <= maxLevel; z++ {
		downsample := pow2(maxLevel - z)
		levelW := ceilDiv(fullW, downsample)
		levelH := ceilDiv(fullH, downsample)
		if levelW < 1 {
			levelW = 1
		}
		if levelH < 1 {
			levelH = 1
		}

		resized := dimg.Resize(img, levelW, levelH, dimg.Lanczos)
		levelDir := filepath.Join(outDir, strconv.Itoa(z))
		if err := os.MkdirAll(levelDir, 0o755); err != nil {
			return cmn.NewError("xact.precomputeImageLevels", cmn.KindIO, "mkdir level dir", err)
		}

		tilesX := ceilDiv(levelW, cmn.TileSize)
		tilesY := ceilDiv(levelH, cmn.TileSize)
		for ty := 0; ty < tilesY; ty++ {
			for tx := 0; tx < tilesX; tx++ {
				x0 := tx * cmn.TileSize
				y0 := ty * cmn.TileSize
				x1 := min(x0+cmn.TileSize, levelW)
				y1 := min(y0+cmn.TileSize, levelH)
				tile := dimg.Crop(resized, image.Rect(x0, y0, x1, y1))

				dst := filepath.Join(levelDir, strconv.Itoa(tx)+"_"+strconv.Itoa(ty)+".jpg")
				if err := dimg.Save(tile, dst, dimg.JPEGQuality(85)); err != nil {
					return cmn.NewError("xact.precomputeImageLevels", cmn.KindIO, "save tile", err)
				}
			}
		}
	}
	return nil
}

func pow2(n int) int {
	if n <= 0 {
		return 1
	}
	return 1 << uint(n)
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
