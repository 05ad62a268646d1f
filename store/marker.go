package store

import (
	"encoding/json"

	"github.com/tidwall/buntdb"

	"github.com/pathlake/slideagent/cmn"
)

const markerPrefix = "marker:"

// MarkerStore holds the preview publisher's per-slide idempotency record
// (spec.md §4.9).
type MarkerStore struct {
	db *DB
}

func NewMarkerStore(db *DB) *MarkerStore { return &MarkerStore{db: db} }

func markerKey(slideID string) string { return markerPrefix + slideID }

func (m *MarkerStore) Load(slideID string) (*cmn.PublicationMarker, error) {
	var mk cmn.PublicationMarker
	err := m.db.bunt.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(markerKey(slideID))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(val), &mk)
	})
	if err == buntdb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, cmn.NewError("store.marker.load", cmn.KindIO, "buntdb get", err)
	}
	return &mk, nil
}

func (m *MarkerStore) Save(mk *cmn.PublicationMarker) error {
	buf, err := json.Marshal(mk)
	if err != nil {
		return cmn.NewError("store.marker.save", cmn.KindIO, "marshal", err)
	}
	err = m.db.bunt.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(markerKey(mk.SlideID), string(buf), nil)
		return err
	})
	if err != nil {
		return cmn.NewError("store.marker.save", cmn.KindIO, "buntdb set", err)
	}
	return nil
}
