package ingest

import (
	"context"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/events"
)

// Register implements spec.md §4.6 "Registration": upsert the slide,
// optionally set external identifiers parsed from the filename, create-
// and-enqueue a P0 job (a no-op re-enqueue if one is already active), and
// emit slide.import.
func (p *Pipeline) Register(ctx context.Context, commit *CommitResult, originalFilename string) (*cmn.Slide, error) {
	parsed := ParseFilename(originalFilename)

	slide := &cmn.Slide{
		SlideID:          commit.SlideID,
		OriginalFilename: originalFilename,
		RawPath:          commit.RawPath,
		Format:           commit.Format,
		Status:           cmn.SlideQueued,
		TileSize:         cmn.TileSize,
		OCRStatus:        cmn.OCRAbsent,
		TilegenStatus:    cmn.TilegenAbsent,
	}
	if parsed.CaseBase != nil {
		slide.ExternalCaseBase = parsed.CaseBase
	}
	if parsed.Label != nil {
		slide.ExternalSlideLabel = parsed.Label
	}
	if parsed.ExternalCaseID != nil {
		slide.ExternalCaseID = parsed.ExternalCaseID
	}
	if slide.ExternalCaseBase == nil && slide.ExternalSlideLabel == nil {
		// Filename parsing found nothing usable; flag the slide for a
		// later label-OCR pass (store.SlideRegistry.ListPendingOCR) once
		// a label image exists to read.
		slide.OCRStatus = cmn.OCRPending
	}

	saved, _, err := p.Slides.Upsert(slide)
	if err != nil {
		return nil, err
	}

	_, skipped, err := p.Jobs.CreateAndEnqueue(ctx, cmn.Payload{
		SlideID: saved.SlideID,
		Type:    cmn.JobP0,
		RawPath: saved.RawPath,
		Format:  saved.Format,
	})
	if err != nil {
		return nil, err
	}
	if skipped {
		p.log.Infof("P0 already active for slide %s, not re-enqueuing", saved.SlideID)
	}

	p.Bus.Emit(events.Event{
		Kind:     events.KindSlideImport,
		EntityID: saved.SlideID,
		Data: map[string]interface{}{
			"originalFilename": saved.OriginalFilename,
			"rawPath":          saved.RawPath,
			"format":           string(saved.Format),
		},
	})

	return saved, nil
}
