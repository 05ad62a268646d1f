package cmn

import (
	"math"
	"time"
)

// Format is the recognised slide file format.
type Format string

const (
	FormatSVS     Format = "svs"
	FormatTIFF    Format = "tiff"
	FormatNDPI    Format = "ndpi"
	FormatMRXS    Format = "mrxs"
	FormatJPG     Format = "jpg"
	FormatPNG     Format = "png"
	FormatUnknown Format = "unknown"
)

// WSIFormats are the formats with native pyramid levels, eligible for a
// TILEGEN job (spec.md §3, Job invariants).
var WSIFormats = map[Format]bool{
	FormatSVS:  true,
	FormatTIFF: true,
	FormatNDPI: true,
	FormatMRXS: true,
}

func (f Format) IsWSI() bool { return WSIFormats[f] }

// ExtensionFormat maps a file extension (with leading dot, any case) to a
// Format, or FormatUnknown if unsupported.
func ExtensionFormat(ext string) Format {
	switch ext {
	case ".jpg", ".jpeg":
		return FormatJPG
	case ".png":
		return FormatPNG
	case ".svs":
		return FormatSVS
	case ".tif", ".tiff":
		return FormatTIFF
	case ".ndpi":
		return FormatNDPI
	case ".mrxs":
		return FormatMRXS
	default:
		return FormatUnknown
	}
}

// SupportedExtensions is the inbox watcher's recognised extension set.
var SupportedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true,
	".svs": true, ".tif": true, ".tiff": true,
	".ndpi": true, ".mrxs": true,
}

type SlideStatus string

const (
	SlideQueued     SlideStatus = "queued"
	SlideProcessing SlideStatus = "processing"
	SlideIngesting  SlideStatus = "ingesting"
	SlideTilegen    SlideStatus = "tilegen"
	SlideReady      SlideStatus = "ready"
	SlideFailed     SlideStatus = "failed"
)

type TilegenStatus string

const (
	TilegenAbsent  TilegenStatus = "absent"
	TilegenQueued  TilegenStatus = "queued"
	TilegenRunning TilegenStatus = "running"
	TilegenDone    TilegenStatus = "done"
	TilegenFailed  TilegenStatus = "failed"
)

type OCRStatus string

const (
	OCRAbsent  OCRStatus = "absent"
	OCRPending OCRStatus = "pending"
	OCRDone    OCRStatus = "done"
)

const TileSize = 256

// Slide is the central entity, keyed by SlideID (spec.md §3).
type Slide struct {
	SlideID          string `json:"slideId"`
	OriginalFilename string `json:"originalFilename"`
	RawPath          string `json:"rawPath"`
	Format           Format `json:"format"`

	Status SlideStatus `json:"status"`

	Width         int `json:"width"`
	Height        int `json:"height"`
	MaxLevel      int `json:"maxLevel"`
	LevelReadyMax int `json:"levelReadyMax"`
	TileSize      int `json:"tileSize"`

	TilegenStatus TilegenStatus `json:"tilegenStatus"`

	AppMag *float64 `json:"appMag,omitempty"`
	MPP    *float64 `json:"mpp,omitempty"`

	ExternalCaseID     *string `json:"externalCaseId,omitempty"`
	ExternalCaseBase   *string `json:"externalCaseBase,omitempty"`
	ExternalSlideLabel *string `json:"externalSlideLabel,omitempty"`

	OCRStatus  OCRStatus `json:"ocrStatus"`
	DSMetaPath *string   `json:"dsMetaPath,omitempty"`

	Barcode *string `json:"barcode,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// MaxLevelFor computes ceil(log2(max(w,h))), the deep-zoom convention of
// spec.md §3/GLOSSARY. Degenerate (w,h <= 1) slides have MaxLevel 0.
func MaxLevelFor(width, height int) int {
	m := width
	if height > m {
		m = height
	}
	if m <= 1 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(m))))
}

// Validate enforces the slide invariants of spec.md §3 that are checkable
// from the struct alone (the slideId-immutability and upsert-collision
// invariants are enforced by the registry at commit time, not here).
func (s *Slide) Validate() error {
	if s.LevelReadyMax > s.MaxLevel {
		return NewError("slide.validate", KindDBInvariant, "levelReadyMax exceeds maxLevel", nil)
	}
	if s.Status == SlideReady {
		if s.Width <= 0 || s.Height <= 0 || s.MaxLevel < 0 {
			return NewError("slide.validate", KindDBInvariant, "ready slide missing dimensions", nil)
		}
	}
	return nil
}

// SlideUpdate is a typed, optional-field update struct (spec.md §9's
// redesign-flag replacement for dynamic per-slide field maps built from
// arbitrary attribute sets). Only populated fields are applied; the SQL/
// buntdb set-list is generated from which pointers are non-nil.
type SlideUpdate struct {
	Status             *SlideStatus
	Width              *int
	Height             *int
	MaxLevel           *int
	LevelReadyMax      *int
	TilegenStatus      *TilegenStatus
	AppMag             *float64
	MPP                *float64
	ExternalCaseID     *string
	ExternalCaseBase   *string
	ExternalSlideLabel *string
	OCRStatus          *OCRStatus
	DSMetaPath         *string
	Barcode            *string
	OriginalFilename   *string
	RawPath            *string
	Format             *Format
}

// Apply mutates s in place with every populated field of u, then
// re-validates.
func (u SlideUpdate) Apply(s *Slide) error {
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.Width != nil {
		s.Width = *u.Width
	}
	if u.Height != nil {
		s.Height = *u.Height
	}
	if u.MaxLevel != nil {
		s.MaxLevel = *u.MaxLevel
	}
	if u.LevelReadyMax != nil {
		s.LevelReadyMax = *u.LevelReadyMax
	}
	if u.TilegenStatus != nil {
		s.TilegenStatus = *u.TilegenStatus
	}
	if u.AppMag != nil {
		s.AppMag = u.AppMag
	}
	if u.MPP != nil {
		s.MPP = u.MPP
	}
	if u.ExternalCaseID != nil {
		s.ExternalCaseID = u.ExternalCaseID
	}
	if u.ExternalCaseBase != nil {
		s.ExternalCaseBase = u.ExternalCaseBase
	}
	if u.ExternalSlideLabel != nil {
		s.ExternalSlideLabel = u.ExternalSlideLabel
	}
	if u.OCRStatus != nil {
		s.OCRStatus = *u.OCRStatus
	}
	if u.DSMetaPath != nil {
		s.DSMetaPath = u.DSMetaPath
	}
	if u.Barcode != nil {
		s.Barcode = u.Barcode
	}
	if u.OriginalFilename != nil {
		s.OriginalFilename = *u.OriginalFilename
	}
	if u.RawPath != nil {
		s.RawPath = *u.RawPath
	}
	if u.Format != nil {
		s.Format = *u.Format
	}
	return s.Validate()
}
