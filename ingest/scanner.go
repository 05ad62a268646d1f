package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/karrick/godirwalk"
	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/hashing"
)

// ScannerState is the scraper's observable status (spec.md §4.6:
// "Inaccessible-directory errors transition the scraper to a dir_missing
// observable state without crashing").
type ScannerState string

const (
	ScannerIdle       ScannerState = "idle"
	ScannerRunning    ScannerState = "running"
	ScannerDirMissing ScannerState = "dir_missing"
)

// sourceWalker abstracts over a local filesystem mount (via godirwalk) and
// an HDFS mount (via ingest/hdfssource.go), since spec.md §4.6 leaves the
// scanner mount's transport unspecified beyond "read-only".
type sourceWalker interface {
	Walk(root string, fn func(path string, size int64) error) error
}

// Scanner is the alternative ingest producer of spec.md §4.6: it walks a
// read-only mount on a fixed interval without moving files, so rawPath
// points directly into the mount. Grounded on godirwalk's own documented
// "fast directory traversal" idiom (avoids the extra os.Lstat per entry
// that filepath.Walk performs) and on aistore's xact one-pass-at-a-time
// xaction guard.
type Scanner struct {
	pipeline *Pipeline
	walker   sourceWalker
	filter   *cuckoo.Filter
	running  int32
	state    atomic.Value // ScannerState
}

func NewScanner(p *Pipeline) *Scanner {
	s := &Scanner{
		pipeline: p,
		walker:   pickWalker(p.Config.ScannerDir),
		filter:   cuckoo.NewFilter(1 << 20),
	}
	s.state.Store(ScannerIdle)
	return s
}

func pickWalker(dir string) sourceWalker {
	if strings.HasPrefix(dir, "hdfs://") {
		return &hdfsWalker{namenode: strings.TrimPrefix(dir, "hdfs://")}
	}
	return localWalker{}
}

func (s *Scanner) State() ScannerState { return s.state.Load().(ScannerState) }

// Pass runs one scan of the scanner mount. Overlapping calls are skipped
// (spec.md §4.6 "runs one pass at a time").
func (s *Scanner) Pass(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return nil
	}
	defer atomic.StoreInt32(&s.running, 0)

	s.state.Store(ScannerRunning)
	log := s.pipeline.log.With("scanner", true)

	err := s.walker.Walk(s.pipeline.Config.ScannerDir, func(path string, size int64) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if size == 0 || !cmn.SupportedExtensions[lowerExt(path)] {
			return nil
		}
		if s.filter.Lookup([]byte(path)) {
			return nil
		}
		seen, err := s.pipeline.Scanner.Seen(path)
		if err != nil {
			return err
		}
		if seen {
			s.filter.InsertUnique([]byte(path))
			return nil
		}
		return s.ingestOne(ctx, path)
	})

	if err != nil {
		if os.IsNotExist(err) {
			s.state.Store(ScannerDirMissing)
			log.Warnf("scanner mount missing: %v", err)
			return nil
		}
		s.state.Store(ScannerIdle)
		return cmn.NewError("ingest.scanner", cmn.KindIO, "walk failed", err)
	}
	s.state.Store(ScannerIdle)
	return nil
}

// ingestOne registers a newly-discovered scanner file and records its
// barcode/GUID, recovered from the mount's directory convention
// (spec.md §6: /scanner/{yyyy}/{mmdd}/{GUID}/{barcode}_{yyyymmddHHMMSS}/...)
// and, when present, a sibling ".dsmeta" directory that overrides them
// (spec.md §4.6 "parse any adjacent metadata directory for barcode/GUID").
func (s *Scanner) ingestOne(ctx context.Context, path string) error {
	slideID, err := scannerDigest(s.walker, path)
	if err != nil {
		return err
	}
	originalFilename := filepath.Base(path)
	result := &CommitResult{
		SlideID: slideID,
		RawPath: path, // scanner never moves files: rawPath points into the mount
		Format:  cmn.ExtensionFormat(lowerExt(path)),
	}
	if _, err := s.pipeline.Register(ctx, result, originalFilename); err != nil {
		return err
	}

	barcode, guid, scanDatetime := parseScannerPath(path)
	dsBarcode, dsGUID, dsmetaPath := readDSMeta(path)
	if dsBarcode != nil {
		barcode = dsBarcode
	}
	if dsGUID != nil {
		guid = dsGUID
	}

	if barcode != nil || dsmetaPath != nil {
		if _, err := s.pipeline.Slides.Update(slideID, cmn.SlideUpdate{
			Barcode:    barcode,
			DSMetaPath: dsmetaPath,
		}); err != nil {
			s.pipeline.log.Warnf("failed to record scanner metadata for %s: %v", slideID, err)
		}
	}

	if err := s.pipeline.Scanner.Record(cmn.ScannerFile{
		Path:         path,
		SlideID:      slideID,
		Barcode:      barcode,
		GUID:         guid,
		ScanDatetime: scanDatetime,
	}); err != nil {
		return err
	}
	s.filter.InsertUnique([]byte(path))
	return nil
}

// localWalker implements sourceWalker over a conventional local/NFS mount.
type localWalker struct{}

func (localWalker) Walk(root string, fn func(path string, size int64) error) error {
	return godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			st, err := os.Stat(path)
			if err != nil {
				return nil
			}
			return fn(path, st.Size())
		},
	})
}

func scannerDigest(w sourceWalker, path string) (string, error) {
	if hw, ok := w.(*hdfsWalker); ok {
		return hw.Digest(path)
	}
	return hashing.DigestFile(path)
}
