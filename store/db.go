// Package store is the transactional registry layer (spec.md §4.4, §4.5,
// C4/C5): an embedded tidwall/buntdb database plays the role spec.md §1
// assigns to "an opaque transactional KV+index" relational store — only
// the tables, invariants and transitions are specified there, not SQL,
// and buntdb's own index API is exactly that: a KV store with secondary
// indexes, no SQL required.
package store

import (
	"github.com/tidwall/buntdb"

	"github.com/pathlake/slideagent/cmn"
)

const (
	idxSlideCreatedAt = "slide_created_at"
	idxSlideFilename  = "slide_filename"
	idxSlideOCR       = "slide_ocr_pending"
	idxJobActive      = "job_active"
)

// DB wraps one buntdb database shared by every registry in this package.
type DB struct {
	bunt *buntdb.DB
}

// Open opens (or creates) the database at path and installs the secondary
// indexes the registries rely on. path == ":memory:" opens a purely
// in-process database, used by tests and by a single-node deployment that
// accepts losing registry state across restarts other than what buntdb's
// own AOF persists.
func Open(path string) (*DB, error) {
	bunt, err := buntdb.Open(path)
	if err != nil {
		return nil, cmn.NewError("store.open", cmn.KindIO, "open buntdb", err)
	}
	d := &DB{bunt: bunt}
	if err := d.createIndexes(); err != nil {
		bunt.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) createIndexes() error {
	err := d.bunt.CreateIndex(idxSlideCreatedAt, slidePrefix+"*", indexByJSONField("createdAt"))
	if err != nil && err != buntdb.ErrIndexExists {
		return cmn.NewError("store.open", cmn.KindIO, "create slide_created_at index", err)
	}
	err = d.bunt.CreateIndex(idxSlideFilename, slidePrefix+"*", indexByJSONField("originalFilename"))
	if err != nil && err != buntdb.ErrIndexExists {
		return cmn.NewError("store.open", cmn.KindIO, "create slide_filename index", err)
	}
	err = d.bunt.CreateIndex(idxSlideOCR, slidePrefix+"*", indexByJSONField("ocrStatus"))
	if err != nil && err != buntdb.ErrIndexExists {
		return cmn.NewError("store.open", cmn.KindIO, "create slide_ocr_pending index", err)
	}
	err = d.bunt.CreateIndex(idxJobActive, jobPrefix+"*", indexByJSONField("status"))
	if err != nil && err != buntdb.ErrIndexExists {
		return cmn.NewError("store.open", cmn.KindIO, "create job_active index", err)
	}
	return nil
}

func (d *DB) Close() error { return d.bunt.Close() }
