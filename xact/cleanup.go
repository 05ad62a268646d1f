package xact

import (
	"context"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/events"
	"github.com/pathlake/slideagent/objstore"
	"github.com/pathlake/slideagent/store"
)

// RunCleanup implements spec.md §4.12's CLEANUP branch: delete every remote
// object under the slide's preview prefix and emit cleanup.complete.
func RunCleanup(ctx context.Context, uploader *objstore.Uploader, bus *events.Bus, previewPrefix, slideID string) error {
	prefix := previewPrefix + "/" + slideID + "/"
	if err := uploader.DeletePrefix(ctx, prefix); err != nil {
		return err
	}
	bus.Emit(events.Event{Kind: events.KindCleanupComplete, EntityID: slideID})
	return nil
}

// DeleteSlide implements spec.md §3/§4.4's explicit-deletion lifecycle:
// the slide row is destroyed, its jobs cascade-deleted, and a CLEANUP job
// is enqueued so the dispatcher sweeps the slide's remote artefacts
// (RunCleanup) asynchronously — deletion itself never talks to the object
// store directly.
func DeleteSlide(ctx context.Context, slides *store.SlideRegistry, jobs *store.JobQueue, slideID string) error {
	if _, err := jobs.DeleteBySlide(slideID); err != nil {
		return err
	}
	if err := slides.Delete(slideID); err != nil {
		return err
	}
	if _, _, err := jobs.CreateAndEnqueue(ctx, cmn.Payload{SlideID: slideID, Type: cmn.JobCleanup}); err != nil {
		return err
	}
	return nil
}
