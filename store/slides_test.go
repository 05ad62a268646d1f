package store

import (
	"testing"

	"github.com/pathlake/slideagent/cmn"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSlideRegistryUpsertDedup(t *testing.T) {
	db := openTestDB(t)
	reg := NewSlideRegistry(db)

	s := &cmn.Slide{SlideID: "abc", OriginalFilename: "a.svs", RawPath: "raw/abc_a.svs", Format: cmn.FormatSVS, Status: cmn.SlideQueued}
	got, created, err := reg.Upsert(s)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true on first upsert")
	}
	if got.SlideID != "abc" {
		t.Fatalf("slideId mismatch: %q", got.SlideID)
	}

	dup := &cmn.Slide{SlideID: "abc", OriginalFilename: "different.svs", Status: cmn.SlideQueued}
	got2, created2, err := reg.Upsert(dup)
	if err != nil {
		t.Fatalf("Upsert dup: %v", err)
	}
	if created2 {
		t.Fatalf("expected created=false for duplicate slideId")
	}
	if got2.OriginalFilename != "different.svs" {
		t.Fatalf("expected the latest originalFilename to win, got %q", got2.OriginalFilename)
	}
	if got2.RawPath != "raw/abc_a.svs" {
		t.Fatalf("dedup upsert must not overwrite computed fields like rawPath, got %q", got2.RawPath)
	}

	again, err := reg.Get("abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.OriginalFilename != "different.svs" {
		t.Fatalf("expected the originalFilename update to persist, got %q", again.OriginalFilename)
	}
}

func TestSlideRegistryUpdateRejectsInvalidLevelReadyMax(t *testing.T) {
	db := openTestDB(t)
	reg := NewSlideRegistry(db)

	s := &cmn.Slide{SlideID: "s1", Status: cmn.SlideQueued, MaxLevel: 3}
	if _, _, err := reg.Upsert(s); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	bad := 10
	_, err := reg.Update("s1", cmn.SlideUpdate{LevelReadyMax: &bad})
	if err == nil {
		t.Fatalf("expected validation error for levelReadyMax > maxLevel")
	}
	if cmn.KindOf(err) != cmn.KindDBInvariant {
		t.Fatalf("expected KindDBInvariant, got %v", cmn.KindOf(err))
	}
}

func TestSlideRegistryListPendingOCR(t *testing.T) {
	db := openTestDB(t)
	reg := NewSlideRegistry(db)

	if _, _, err := reg.Upsert(&cmn.Slide{SlideID: "p1", OCRStatus: cmn.OCRPending}); err != nil {
		t.Fatalf("Upsert p1: %v", err)
	}
	if _, _, err := reg.Upsert(&cmn.Slide{SlideID: "p2", OCRStatus: cmn.OCRDone}); err != nil {
		t.Fatalf("Upsert p2: %v", err)
	}

	pending, err := reg.ListPendingOCR()
	if err != nil {
		t.Fatalf("ListPendingOCR: %v", err)
	}
	if len(pending) != 1 || pending[0].SlideID != "p1" {
		t.Fatalf("expected exactly [p1] pending, got %+v", pending)
	}
}

func TestSlideRegistryFindByFilenameNoMatch(t *testing.T) {
	db := openTestDB(t)
	reg := NewSlideRegistry(db)

	if _, err := reg.FindByFilename("nope.svs"); err == nil {
		t.Fatalf("expected error for no match")
	}
}
