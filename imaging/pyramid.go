package imaging

import "context"

// BuildPyramid produces a complete deep-zoom tile tree for srcPath into
// outDir (spec.md §4.2.4). The caller (xact.TileGenJob, spec.md §4.8) is
// responsible for building into a temp directory and atomically swapping
// it into the canonical location — this adapter only runs the toolchain's
// deep-zoom saver.
func (a *execAdapter) BuildPyramid(ctx context.Context, srcPath, outDir string) error {
	_, err := a.run(ctx, "imaging.buildPyramid", a.cfg.DZSaveBin,
		srcPath,
		"--output", outDir,
		"--tile-size", "256",
		"--overlap", "0",
		"--suffix", ".jpg[Q=90]",
	)
	return err
}
