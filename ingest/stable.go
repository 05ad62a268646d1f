package ingest

import (
	"os"
	"time"

	"github.com/pathlake/slideagent/cmn"
)

const largeFileThreshold = 100 << 20 // 100 MiB

// WaitStable implements spec.md §4.6's "Stable-size check": sleep an
// initial fraction of the stable window, then stat; a large WSI file gets a
// second full-window wait before the final stat. If the size moved between
// stats the file is still being written and the caller should reschedule
// after the stable window rather than block further.
//
// Returns (size, stillWriting, err). A zero-size file returns an IO error so
// callers skip it outright, per spec.
func WaitStable(path string, stableWindow time.Duration, isWSI bool) (int64, bool, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, false, cmn.NewError("ingest.stable", cmn.KindIO, "stat", err)
	}
	if st.Size() == 0 {
		return 0, false, cmn.NewError("ingest.stable", cmn.KindIO, "zero-size file", nil)
	}

	initial := st.Size()
	time.Sleep(stableWindow / 4)

	st2, err := os.Stat(path)
	if err != nil {
		return 0, false, cmn.NewError("ingest.stable", cmn.KindIO, "stat", err)
	}

	if isWSI && st2.Size() >= largeFileThreshold {
		time.Sleep(stableWindow)
		st3, err := os.Stat(path)
		if err != nil {
			return 0, false, cmn.NewError("ingest.stable", cmn.KindIO, "stat", err)
		}
		if st3.Size() != st2.Size() {
			return st3.Size(), true, nil
		}
		return st3.Size(), false, nil
	}

	if st2.Size() != initial {
		return st2.Size(), true, nil
	}
	return st2.Size(), false, nil
}
