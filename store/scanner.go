package store

import (
	"encoding/json"

	"github.com/tidwall/buntdb"

	"github.com/pathlake/slideagent/cmn"
)

const scannerPrefix = "scanner:"

// ScannerFileStore deduplicates the scanner scraper's walk against
// previously-seen absolute paths (spec.md §4.6).
type ScannerFileStore struct {
	db *DB
}

func NewScannerFileStore(db *DB) *ScannerFileStore { return &ScannerFileStore{db: db} }

func scannerKey(path string) string { return scannerPrefix + path }

func (s *ScannerFileStore) Seen(path string) (bool, error) {
	var seen bool
	err := s.db.bunt.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(scannerKey(path))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		seen = true
		return nil
	})
	if err != nil {
		return false, cmn.NewError("store.scanner.seen", cmn.KindIO, "buntdb get", err)
	}
	return seen, nil
}

func (s *ScannerFileStore) Record(f cmn.ScannerFile) error {
	buf, err := json.Marshal(&f)
	if err != nil {
		return cmn.NewError("store.scanner.record", cmn.KindIO, "marshal", err)
	}
	err = s.db.bunt.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(scannerKey(f.Path), string(buf), nil)
		return err
	})
	if err != nil {
		return cmn.NewError("store.scanner.record", cmn.KindIO, "buntdb set", err)
	}
	return nil
}
