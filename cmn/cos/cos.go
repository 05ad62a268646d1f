// Package cos ("common OS") holds the filesystem primitives shared by the
// ingest pipeline's commit procedure (spec.md §4.6) and the tile pyramid
// builder's directory swap (spec.md §4.8): atomic rename, copy-with-
// verify, and existence/size checks. Grounded on aistore's own convention of
// a small cmn/cos package of OS helpers used throughout the codebase.
package cos

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pathlake/slideagent/cmn"
)

// TempName returns a unique ".ingest-{uuid}.tmp"-shaped name in dir.
func TempName(dir string) string {
	return filepath.Join(dir, ".ingest-"+uuid.NewString()+".tmp")
}

// CopyFileVerifySize copies src to dst (a temp path the caller will rename
// into place), verifying the written size exactly matches the source size.
// On mismatch it deletes dst and returns a KindSizeMismatch error, per
// spec.md §4.6 "Commit-to-raw".
func CopyFileVerifySize(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, cmn.NewError("cos.copy", cmn.KindIO, "open source", err)
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return 0, cmn.NewError("cos.copy", cmn.KindIO, "stat source", err)
	}
	wantSize := st.Size()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, cmn.NewError("cos.copy", cmn.KindIO, "create dest", err)
	}

	n, copyErr := io.Copy(out, in)
	closeErr := out.Close()

	if copyErr != nil || closeErr != nil {
		os.Remove(dst)
		if copyErr == nil {
			copyErr = closeErr
		}
		return 0, cmn.NewError("cos.copy", cmn.KindIO, "copy", copyErr)
	}
	if n != wantSize {
		os.Remove(dst)
		return 0, cmn.NewError("cos.copy", cmn.KindSizeMismatch, "copied size does not match source", nil)
	}
	return n, nil
}

// SameSize reports whether path exists and has exactly size bytes.
func SameSize(path string, size int64) bool {
	st, err := os.Stat(path)
	if err != nil {
		return false
	}
	return st.Size() == size
}

// Exists reports whether path exists (file or directory).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// RemoveIfExists deletes path if present; a missing path is not an error.
func RemoveIfExists(path string) error {
	err := os.RemoveAll(path)
	if err != nil && !os.IsNotExist(err) {
		return cmn.NewError("cos.remove", cmn.KindIO, "remove", err)
	}
	return nil
}

// AtomicSwapDirs performs the crash-recoverable three-rename directory
// swap of spec.md §4.8: tmp -> final, preserving any previous final as
// "<final>_old" until the swap commits, then deleting it. Idempotent and
// resumable from a crash at any step: if oldDir already exists from a
// prior crash it is removed first; if finalDir is missing the rename of
// finalDir to oldDir is skipped.
func AtomicSwapDirs(tmpDir, finalDir, oldDir string) error {
	if Exists(oldDir) {
		if err := RemoveIfExists(oldDir); err != nil {
			return err
		}
	}
	if Exists(finalDir) {
		if err := os.Rename(finalDir, oldDir); err != nil {
			return cmn.NewError("cos.swap", cmn.KindIO, "rename current to old", err)
		}
	}
	if err := os.Rename(tmpDir, finalDir); err != nil {
		return cmn.NewError("cos.swap", cmn.KindIO, "rename tmp to final", err)
	}
	if err := fsyncParent(finalDir); err != nil {
		// best-effort durability hint; the rename itself already committed
		_ = err
	}
	return RemoveIfExists(oldDir)
}
