package xact

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/cmn/nlog"
	"github.com/pathlake/slideagent/collab"
	"github.com/pathlake/slideagent/store"
)

var ocrLog = nlog.Named("xact.ocr")

// RunOCRSweep implements the maintenance pass for spec.md §3's "Optional
// OCR fields": for every slide flagged OCRPending (no external
// identifiers parsed from its filename at registration), attempt a
// label-OCR read against its derived thumbnail once one exists, and
// record whatever text comes back as the slide's label. A slide whose
// thumbnail hasn't been produced yet (P0 hasn't run) is left pending for
// the next sweep, and so is a slide whose read returns an error; a
// successful read, including an empty one, marks the slide OCRDone so it
// isn't retried forever against a collaborator that genuinely has nothing
// to offer.
func RunOCRSweep(ctx context.Context, ocr collab.LabelOCR, slides *store.SlideRegistry, derivedDir string) (int, error) {
	pending, err := slides.ListPendingOCR()
	if err != nil {
		return 0, err
	}

	done := 0
	for _, slide := range pending {
		thumbPath := filepath.Join(derivedDir, slide.SlideID, "thumb.jpg")
		if _, statErr := os.Stat(thumbPath); statErr != nil {
			continue
		}

		text, readErr := ocr.Read(ctx, thumbPath)
		if readErr != nil {
			ocrLog.Warnf("label OCR failed for %s: %v", slide.SlideID, readErr)
			continue
		}

		status := cmn.OCRDone
		update := cmn.SlideUpdate{OCRStatus: &status}
		if text != "" {
			update.ExternalSlideLabel = &text
		}
		if _, err := slides.Update(slide.SlideID, update); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}
