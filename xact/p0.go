package xact

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/cmn/nlog"
	"github.com/pathlake/slideagent/events"
	"github.com/pathlake/slideagent/imaging"
	"github.com/pathlake/slideagent/store"
)

var p0Log = nlog.Named("xact.p0")

const imagePrecomputeCeiling = 4

// thumbWidth/thumbHeight are spec.md §6's fixed local-thumbnail crop:
// derived/{slideId}/thumb.jpg, 640x400 centre-cropped.
const (
	thumbWidth  = 640
	thumbHeight = 400
)

// RunP0 implements spec.md §4.12's P0 branch: read metadata, produce the
// first navigable artefacts, and chain the next job (TILEGEN for WSI, P1
// for deep image-format pyramids).
func RunP0(ctx context.Context, adapter imaging.Adapter, slides *store.SlideRegistry, jobs *store.JobQueue, bus *events.Bus, derivedDir, jobID, slideID, rawPath string, format cmn.Format) error {
	base := filepath.Join(derivedDir, slideID)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return cmn.NewError("xact.p0", cmn.KindIO, "mkdir derived dir", err)
	}

	if format.IsWSI() {
		return runP0WSI(ctx, adapter, slides, jobs, bus, base, jobID, slideID, rawPath)
	}
	return runP0Image(ctx, slides, jobs, bus, base, slideID, rawPath, format)
}

func runP0WSI(ctx context.Context, adapter imaging.Adapter, slides *store.SlideRegistry, jobs *store.JobQueue, bus *events.Bus, base, jobID, slideID, rawPath string) error {
	props, err := adapter.ReadProperties(ctx, rawPath)
	if err != nil {
		return err
	}
	if jobID != "" && props.Diagnostic != nil {
		if err := jobs.SetDiagnostic(jobID, props.Diagnostic); err != nil {
			p0Log.Warnf("failed to attach properties diagnostic to job %s: %v", jobID, err)
		}
	}
	maxLevel := cmn.MaxLevelFor(props.Width, props.Height)

	thumbPath := filepath.Join(base, "thumb.jpg")
	if err := adapter.WriteThumbnail(ctx, rawPath, thumbPath, thumbWidth, thumbHeight); err != nil {
		return err
	}

	manifestPath := filepath.Join(base, "manifest.json")
	if err := WriteLocalManifest(manifestPath, NewLocalManifest(slideID, props.Width, props.Height, maxLevel, true, props.AppMag, props.MPP)); err != nil {
		return err
	}

	ready := cmn.SlideReady
	tgQueued := cmn.TilegenQueued
	if _, err := slides.Update(slideID, cmn.SlideUpdate{
		Status:        &ready,
		Width:         &props.Width,
		Height:        &props.Height,
		MaxLevel:      &maxLevel,
		TilegenStatus: &tgQueued,
		AppMag:        props.AppMag,
		MPP:           props.MPP,
	}); err != nil {
		return err
	}

	if _, _, err := jobs.CreateAndEnqueue(ctx, cmn.Payload{SlideID: slideID, Type: cmn.JobTilegen, RawPath: rawPath, Format: cmn.ExtensionFormat(filepath.Ext(rawPath))}); err != nil {
		return err
	}

	bus.Emit(events.Event{Kind: events.KindSlideReady, EntityID: slideID})
	return nil
}

func runP0Image(ctx context.Context, slides *store.SlideRegistry, jobs *store.JobQueue, bus *events.Bus, base, slideID, rawPath string, format cmn.Format) error {
	f, err := os.Open(rawPath)
	if err != nil {
		return cmn.NewError("xact.p0", cmn.KindIO, "open image", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return cmn.NewError("xact.p0", cmn.KindToolchain, "decode image", err)
	}

	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	maxLevel := cmn.MaxLevelFor(width, height)
	topLevel := maxLevel
	if topLevel > imagePrecomputeCeiling {
		topLevel = imagePrecomputeCeiling
	}

	tilesDir := filepath.Join(base, "tiles")
	if err := precomputeImageLevels(img, maxLevel, 0, topLevel, tilesDir); err != nil {
		return err
	}

	ready := cmn.SlideReady
	levelReadyMax := topLevel
	if _, err := slides.Update(slideID, cmn.SlideUpdate{
		Status:        &ready,
		Width:         &width,
		Height:        &height,
		MaxLevel:      &maxLevel,
		LevelReadyMax: &levelReadyMax,
	}); err != nil {
		return err
	}

	if maxLevel > imagePrecomputeCeiling {
		if _, _, err := jobs.CreateAndEnqueue(ctx, cmn.Payload{
			SlideID: slideID, Type: cmn.JobP1, RawPath: rawPath, Format: format,
			StartLevel: imagePrecomputeCeiling + 1,
		}); err != nil {
			return err
		}
	}

	bus.Emit(events.Event{Kind: events.KindSlideReady, EntityID: slideID})
	return nil
}
