package ingest

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// scannerTimestampLayout is the {yyyymmddHHMMSS} part of spec.md §6's
// scanner mount convention:
// /scanner/{yyyy}/{mmdd}/{GUID}/{barcode}_{yyyymmddHHMMSS}/{barcode}_{yyyymmddHHMMSS}.svs.
const scannerTimestampLayout = "20060102150405"

// parseScannerPath recovers guid, barcode and scanDatetime from a path
// following the scanner mount's directory convention. A path that doesn't
// fit the convention yields all-nil results rather than an error, since
// the scanner must keep ingesting files it can't fully classify.
func parseScannerPath(path string) (barcode, guid *string, scanDatetime *time.Time) {
	runDir := filepath.Dir(path)     // .../{GUID}/{barcode}_{timestamp}
	runName := filepath.Base(runDir) // "{barcode}_{timestamp}"
	guidDir := filepath.Dir(runDir)  // .../{GUID}
	guidName := filepath.Base(guidDir)

	idx := strings.LastIndexByte(runName, '_')
	if idx < 0 || guidName == "" || guidName == "." || guidName == string(filepath.Separator) {
		return nil, nil, nil
	}
	bc := runName[:idx]
	ts := runName[idx+1:]
	if bc == "" || len(ts) != len(scannerTimestampLayout) {
		return nil, nil, nil
	}
	t, err := time.Parse(scannerTimestampLayout, ts)
	if err != nil {
		return nil, nil, nil
	}

	b, g := bc, guidName
	return &b, &g, &t
}

// readDSMeta looks for a sibling "{runDirName}.dsmeta" directory next to
// the scanner run directory and, if present, parses a "meta.txt" key=value
// file inside it for barcode/guid overrides — spec.md §4.6 "parse any
// adjacent metadata directory (for barcode/GUID)". Returns nil/nil if
// absent or unparseable; callers keep the path-derived values in that case.
func readDSMeta(path string) (barcode, guid *string, dsmetaPath *string) {
	runDir := filepath.Dir(path)
	candidate := runDir + ".dsmeta"
	info, err := os.Stat(candidate)
	if err != nil || !info.IsDir() {
		return nil, nil, nil
	}

	f, err := os.Open(filepath.Join(candidate, "meta.txt"))
	if err != nil {
		return nil, nil, &candidate
	}
	defer f.Close()

	kv := map[string]string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || !strings.Contains(line, "=") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		kv[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}

	if v, ok := kv["barcode"]; ok && v != "" {
		barcode = &v
	}
	if v, ok := kv["guid"]; ok && v != "" {
		guid = &v
	}
	return barcode, guid, &candidate
}
