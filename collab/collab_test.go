package collab

import (
	"context"
	"testing"
)

func TestNoopOutboxSyncerSyncsEveryID(t *testing.T) {
	s := NoopOutboxSyncer{}
	ids, err := s.Sync(context.Background(), []OutboxPayload{{ID: "a"}, {ID: "b"}})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("expected every id echoed back as synced, got %v", ids)
	}
}

func TestNoopLabelOCRReturnsEmptyText(t *testing.T) {
	var ocr LabelOCR = NoopLabelOCR{}
	text, err := ocr.Read(context.Background(), "label.jpg")
	if err != nil || text != "" {
		t.Fatalf("expected empty text and no error, got %q, %v", text, err)
	}
}

func TestNoopImplementationsSatisfyInterfaces(t *testing.T) {
	var _ CaseLinker = NoopCaseLinker{}
	var _ AnnotationStore = NoopAnnotationStore{}
	var _ OutboxSyncer = NoopOutboxSyncer{}
	var _ LabelOCR = NoopLabelOCR{}
}
