package ingest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pathlake/slideagent/cmn"
)

// CleanupStaleTemp deletes any orphaned ".ingest-*.tmp" file left behind in
// rawDir by a crashed commit (spec.md §4.6 "Startup cleanup").
func CleanupStaleTemp(rawDir string) (int, error) {
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, cmn.NewError("ingest.startup", cmn.KindIO, "read raw dir", err)
	}
	n := 0
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".ingest-") && strings.HasSuffix(name, ".tmp") {
			if err := os.Remove(filepath.Join(rawDir, name)); err != nil && !os.IsNotExist(err) {
				return n, cmn.NewError("ingest.startup", cmn.KindIO, "remove stale temp", err)
			}
			n++
		}
	}
	return n, nil
}
