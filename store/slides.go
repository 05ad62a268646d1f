package store

import (
	"encoding/json"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"

	"github.com/pathlake/slideagent/cmn"
)

const slidePrefix = "slide:"

// indexByJSONField builds a buntdb index comparator that sorts keys by one
// top-level JSON string/time field, falling back to the key itself when a
// value is absent — grounded on aistore's lom.go pattern of deriving cheap
// sortable index values straight off a JSON-serialised record rather than
// maintaining a parallel sorted structure by hand.
func indexByJSONField(field string) func(a, b string) bool {
	return func(a, b string) bool {
		return gjsonString(a, field) < gjsonString(b, field)
	}
}

// gjsonString extracts a field's string-ish value without a full decode;
// buntdb's own indexing hot path expects this to be allocation-light, so we
// reuse json-iterator's faster decoder instead of encoding/json here.
func gjsonString(raw, field string) string {
	var m map[string]jsoniter.RawMessage
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal([]byte(raw), &m); err != nil {
		return ""
	}
	v, ok := m[field]
	if !ok {
		return ""
	}
	s := string(v)
	return strings.Trim(s, `"`)
}

// SlideRegistry is the C4 slide registry (spec.md §4.4): upsert-by-identity,
// lookup, listing and typed partial update, backed by buntdb.
type SlideRegistry struct {
	db *DB
}

func NewSlideRegistry(db *DB) *SlideRegistry { return &SlideRegistry{db: db} }

func slideKey(id string) string { return slidePrefix + id }

// Upsert inserts a new slide or, if slideId already exists, records the new
// import as a repeat observation of the same content — spec.md §4.4's
// content-addressed dedup invariant: a slideId that already exists never
// gets its computed/processing state overwritten by a second import of the
// same bytes, but the latest originalFilename observed does win (spec.md
// §8 "duplicate ingest": "both filenames have been observed").
func (r *SlideRegistry) Upsert(s *cmn.Slide) (*cmn.Slide, bool, error) {
	var result cmn.Slide
	var created bool
	err := r.db.bunt.Update(func(tx *buntdb.Tx) error {
		val, err := tx.Get(slideKey(s.SlideID))
		if err == nil {
			if jsonErr := json.Unmarshal([]byte(val), &result); jsonErr != nil {
				return jsonErr
			}
			result.OriginalFilename = s.OriginalFilename
			buf, marshalErr := json.Marshal(&result)
			if marshalErr != nil {
				return marshalErr
			}
			_, _, err = tx.Set(slideKey(s.SlideID), string(buf), nil)
			return err
		}
		if err != buntdb.ErrNotFound {
			return err
		}
		result = *s
		buf, err := json.Marshal(s)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(slideKey(s.SlideID), string(buf), nil)
		created = true
		return err
	})
	if err != nil {
		return nil, false, cmn.NewError("store.slides.upsert", cmn.KindIO, "buntdb upsert", err)
	}
	return &result, created, nil
}

func (r *SlideRegistry) Get(slideID string) (*cmn.Slide, error) {
	var s cmn.Slide
	err := r.db.bunt.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(slideKey(slideID))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(val), &s)
	})
	if err == buntdb.ErrNotFound {
		return nil, cmn.NewError("store.slides.get", cmn.KindIO, "slide not found", err)
	}
	if err != nil {
		return nil, cmn.NewError("store.slides.get", cmn.KindIO, "buntdb get", err)
	}
	return &s, nil
}

// FindByFilename returns the most recently created slide whose
// OriginalFilename matches, or an error when no slide has that filename.
func (r *SlideRegistry) FindByFilename(filename string) (*cmn.Slide, error) {
	var found *cmn.Slide
	err := r.db.bunt.View(func(tx *buntdb.Tx) error {
		return tx.Descend(idxSlideCreatedAt, func(key, value string) bool {
			var s cmn.Slide
			if json.Unmarshal([]byte(value), &s) == nil && s.OriginalFilename == filename {
				found = &s
				return false
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.NewError("store.slides.findByFilename", cmn.KindIO, "buntdb scan", err)
	}
	if found == nil {
		return nil, cmn.NewError("store.slides.findByFilename", cmn.KindIO, "no match", nil)
	}
	return found, nil
}

// ListPendingOCR returns slides awaiting label OCR (spec.md §4.4).
func (r *SlideRegistry) ListPendingOCR() ([]*cmn.Slide, error) {
	var out []*cmn.Slide
	err := r.db.bunt.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(idxSlideOCR, func(key, value string) bool {
			var s cmn.Slide
			if json.Unmarshal([]byte(value), &s) == nil && s.OCRStatus == cmn.OCRPending {
				out = append(out, &s)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.NewError("store.slides.listPendingOCR", cmn.KindIO, "buntdb scan", err)
	}
	return out, nil
}

// List returns every slide ordered by creation time, oldest first.
func (r *SlideRegistry) List() ([]*cmn.Slide, error) {
	var out []*cmn.Slide
	err := r.db.bunt.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(idxSlideCreatedAt, func(key, value string) bool {
			var s cmn.Slide
			if json.Unmarshal([]byte(value), &s) == nil {
				out = append(out, &s)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.NewError("store.slides.list", cmn.KindIO, "buntdb scan", err)
	}
	return out, nil
}

// Update applies a typed partial update transactionally, re-validating the
// result before committing (spec.md §9 redesign flag).
func (r *SlideRegistry) Update(slideID string, u cmn.SlideUpdate) (*cmn.Slide, error) {
	var s cmn.Slide
	err := r.db.bunt.Update(func(tx *buntdb.Tx) error {
		val, err := tx.Get(slideKey(slideID))
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(val), &s); err != nil {
			return err
		}
		if err := u.Apply(&s); err != nil {
			return err
		}
		buf, err := json.Marshal(&s)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(slideKey(slideID), string(buf), nil)
		return err
	})
	if err == buntdb.ErrNotFound {
		return nil, cmn.NewError("store.slides.update", cmn.KindIO, "slide not found", err)
	}
	if err != nil {
		return nil, cmn.NewError("store.slides.update", cmn.KindDBInvariant, "update rejected", err)
	}
	return &s, nil
}

func (r *SlideRegistry) Delete(slideID string) error {
	err := r.db.bunt.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(slideKey(slideID))
		return err
	})
	if err != nil && err != buntdb.ErrNotFound {
		return cmn.NewError("store.slides.delete", cmn.KindIO, "buntdb delete", err)
	}
	return nil
}
