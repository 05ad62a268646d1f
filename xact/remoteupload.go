package xact

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pathlake/slideagent/objstore"
)

// uploadFullResTiles walks the slide's full-resolution tile tree and bulk
// uploads every file under it, for the optional "remote upload" chained
// after TILEGEN (spec.md §4.8 step 6). Distinct from the rebased preview
// publisher (§4.9): this ships the full-resolution tree as-is, with no
// rebasing or idempotency marker — a best-effort mirror, not a published
// artefact external consumers depend on.
func uploadFullResTiles(ctx context.Context, uploader *objstore.Uploader, tilesDir, remotePrefix string) error {
	var objs []objstore.Object
	err := filepath.WalkDir(tilesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(tilesDir, path)
		if relErr != nil {
			return relErr
		}
		body, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		objs = append(objs, objstore.Object{
			Key:         remotePrefix + "/" + filepath.ToSlash(rel),
			Body:        body,
			ContentType: "image/jpeg",
		})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	results := uploader.BulkPut(ctx, objs)
	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Key)
		}
	}
	if len(failed) > 0 {
		return &partialUploadError{keys: failed}
	}
	return nil
}

type partialUploadError struct{ keys []string }

func (e *partialUploadError) Error() string {
	return "remote upload failed for " + strings.Join(e.keys, ", ")
}
