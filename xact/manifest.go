package xact

import (
	"encoding/json"
	"os"

	"github.com/pathlake/slideagent/cmn"
)

// LocalManifest is the per-slide on-disk deep-zoom manifest P0 writes
// (spec.md §6 "Local deep-zoom manifest"). For WSI slides onDemand is
// true, since no full pyramid exists yet at P0 time.
type LocalManifest struct {
	Protocol        string   `json:"protocol"`
	TileSize        int      `json:"tileSize"`
	Overlap         int      `json:"overlap"`
	Format          string   `json:"format"`
	Width           int      `json:"width"`
	Height          int      `json:"height"`
	LevelMin        int      `json:"levelMin"`
	LevelMax        int      `json:"levelMax"`
	TilePathPattern string   `json:"tilePathPattern"`
	TileURLTemplate string   `json:"tileUrlTemplate"`
	OnDemand        bool     `json:"onDemand"`
	AppMag          *float64 `json:"appMag"`
	MPP             *float64 `json:"mpp"`
}

// NewLocalManifest fills in the fixed fields of spec.md §6's local
// manifest schema around the per-slide variable ones.
func NewLocalManifest(slideID string, width, height, maxLevel int, onDemand bool, appMag, mpp *float64) LocalManifest {
	return LocalManifest{
		Protocol:        "dzi",
		TileSize:        cmn.TileSize,
		Overlap:         0,
		Format:          "jpg",
		Width:           width,
		Height:          height,
		LevelMin:        0,
		LevelMax:        maxLevel,
		TilePathPattern: "tiles/{z}/{x}_{y}.jpg",
		TileURLTemplate: "/v1/slides/" + slideID + "/tiles/{z}/{x}/{y}.jpg",
		OnDemand:        onDemand,
		AppMag:          appMag,
		MPP:             mpp,
	}
}

func WriteLocalManifest(path string, m LocalManifest) error {
	buf, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return cmn.NewError("xact.manifest", cmn.KindIO, "marshal manifest", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return cmn.NewError("xact.manifest", cmn.KindIO, "write manifest", err)
	}
	return nil
}
