package ingest

import (
	"os"
	"path/filepath"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/cmn/cos"
	"github.com/pathlake/slideagent/hashing"
)

// CommitResult is the outcome of committing one candidate file into the raw
// directory.
type CommitResult struct {
	SlideID string
	RawPath string
	Format  cmn.Format
	Skipped bool // destination already existed with matching size
}

// CommitToRaw implements spec.md §4.6 "Commit-to-raw": hash the candidate,
// choose the content-addressed destination, copy-verify-rename if it is not
// already present, then delete the source only after the commit succeeds.
// Cross-device moves are supported because the whole procedure is
// copy-then-rename-then-delete-source, never os.Rename(src, dst) directly.
func CommitToRaw(srcPath, rawDir, originalFilename string) (*CommitResult, error) {
	st, err := os.Stat(srcPath)
	if err != nil {
		return nil, cmn.NewError("ingest.commit", cmn.KindIO, "stat source", err)
	}
	if st.Size() == 0 {
		return nil, cmn.NewError("ingest.commit", cmn.KindIO, "zero-size file", nil)
	}

	slideID, err := hashing.DigestFile(srcPath)
	if err != nil {
		return nil, err
	}

	format := cmn.ExtensionFormat(filepathExt(originalFilename))
	finalPath := filepath.Join(rawDir, slideID+"_"+originalFilename)

	if cos.SameSize(finalPath, st.Size()) {
		if err := os.Remove(srcPath); err != nil && !os.IsNotExist(err) {
			return nil, cmn.NewError("ingest.commit", cmn.KindIO, "remove source after skip", err)
		}
		return &CommitResult{SlideID: slideID, RawPath: finalPath, Format: format, Skipped: true}, nil
	}

	tmp := cos.TempName(rawDir)
	if _, err := cos.CopyFileVerifySize(srcPath, tmp); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, finalPath); err != nil {
		cos.RemoveIfExists(tmp)
		return nil, cmn.NewError("ingest.commit", cmn.KindIO, "rename temp to final", err)
	}
	if err := os.Remove(srcPath); err != nil && !os.IsNotExist(err) {
		return nil, cmn.NewError("ingest.commit", cmn.KindIO, "remove committed source", err)
	}

	return &CommitResult{SlideID: slideID, RawPath: finalPath, Format: format}, nil
}

func filepathExt(name string) string {
	ext := filepath.Ext(name)
	return toLower(ext)
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
