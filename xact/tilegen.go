package xact

import (
	"context"
	"path/filepath"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/cmn/cos"
	"github.com/pathlake/slideagent/events"
	"github.com/pathlake/slideagent/imaging"
	"github.com/pathlake/slideagent/store"
)

// RunTileGen implements spec.md §4.8 (C8): the robust three-rename
// directory swap is delegated to cmn/cos.AtomicSwapDirs, which is the same
// primitive the ingest commit procedure's temp-name discipline is grounded
// on — crash recovery here means "re-run the whole job", not resuming a
// partial pyramid.
func RunTileGen(ctx context.Context, adapter imaging.Adapter, slides *store.SlideRegistry, outbox *store.OutboxStore, bus *events.Bus, derivedDir, slideID, rawPath string) error {
	slide, err := slides.Get(slideID)
	if err != nil {
		return err
	}

	running := cmn.TilegenRunning
	if _, err := slides.Update(slideID, cmn.SlideUpdate{TilegenStatus: &running}); err != nil {
		return err
	}

	base := filepath.Join(derivedDir, slideID)
	tmpDir := filepath.Join(base, "tiles_tmp")
	finalDir := filepath.Join(base, "tiles")
	oldDir := filepath.Join(base, "tiles_old")

	if err := cos.RemoveIfExists(tmpDir); err != nil {
		return markTilegenFailed(slides, slideID, err)
	}
	if err := adapter.BuildPyramid(ctx, rawPath, tmpDir); err != nil {
		return markTilegenFailed(slides, slideID, err)
	}
	if err := cos.AtomicSwapDirs(tmpDir, finalDir, oldDir); err != nil {
		return markTilegenFailed(slides, slideID, err)
	}

	done := cmn.TilegenDone
	maxLevel := slide.MaxLevel
	if _, err := slides.Update(slideID, cmn.SlideUpdate{TilegenStatus: &done, LevelReadyMax: &maxLevel}); err != nil {
		return err
	}

	bus.Emit(events.Event{Kind: events.KindTilesReady, EntityID: slideID})

	if _, err := outbox.Append("slide", slideID, "registered", map[string]interface{}{
		"slideId": slideID, "maxLevel": maxLevel,
	}); err != nil {
		return err
	}
	bus.Emit(events.Event{Kind: events.KindSlideRegistered, EntityID: slideID})

	return nil
}

func markTilegenFailed(slides *store.SlideRegistry, slideID string, cause error) error {
	failed := cmn.TilegenFailed
	slides.Update(slideID, cmn.SlideUpdate{TilegenStatus: &failed})
	return cause
}
