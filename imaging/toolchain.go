// Package imaging wraps the external WSI imaging toolchain (spec.md §4.2,
// C2): properties reading, thumbnailing, tile extraction and full
// deep-zoom pyramid generation are all delegated to child-process
// invocations of an external binary — this package never decodes a
// proprietary slide format itself (spec.md §1 non-goals).
package imaging

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/pierrec/lz4/v3"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/cmn/nlog"
)

var log = nlog.Named("imaging")

// Adapter is the boundary the rest of the system depends on; the default
// implementation shells out to the toolchain binaries, but tests inject a
// fake.
type Adapter interface {
	ReadProperties(ctx context.Context, path string) (*Properties, error)
	WriteThumbnail(ctx context.Context, srcPath, dstPath string, width, height int) error
	ExtractTile(ctx context.Context, req TileRequest) ([]byte, error)
	BuildPyramid(ctx context.Context, srcPath, outDir string) error
	DownscaleTo(ctx context.Context, srcPath, dstPath string, width, height int) error
}

// Config names the external binaries this adapter invokes. Defaults match
// a typical openslide/vips-family install.
type Config struct {
	PropertiesBin string // primary properties reader, e.g. "slideprops"
	HeaderBin     string // secondary/fallback header reader, e.g. "tiffinfo"
	ThumbnailBin  string // e.g. "vipsthumbnail"
	TileBin       string // e.g. "slidetile"
	DZSaveBin     string // deep-zoom saver, e.g. "vips dzsave"
	TileTimeout   time.Duration
	PyramidTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		PropertiesBin:  "slideprops",
		HeaderBin:      "tiffinfo",
		ThumbnailBin:   "vipsthumbnail",
		TileBin:        "slidetile",
		DZSaveBin:      "vipsdzsave",
		TileTimeout:    60 * time.Second,
		PyramidTimeout: 30 * time.Minute,
	}
}

type execAdapter struct {
	cfg Config
}

// NewAdapter returns the default child-process-backed Adapter.
func NewAdapter(cfg Config) Adapter {
	if cfg.TileTimeout == 0 {
		cfg.TileTimeout = 60 * time.Second
	}
	if cfg.PyramidTimeout == 0 {
		cfg.PyramidTimeout = 30 * time.Minute
	}
	return &execAdapter{cfg: cfg}
}

// run executes name with args under a timeout, capturing stdout/stderr,
// and returns the raw stdout (spec.md §4.2's per-invocation timeout
// design). Callers that keep stdout on a job's diagnostic trail compress
// it themselves with compressDiagnostic (see ReadProperties).
func (a *execAdapter) run(ctx context.Context, op, name string, args ...string) (stdout []byte, err error) {
	cctx, cancel := context.WithTimeout(ctx, a.timeoutFor(op))
	defer cancel()

	cmdr := exec.CommandContext(cctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmdr.Stdout = &outBuf
	cmdr.Stderr = &errBuf

	runErr := cmdr.Run()
	if cctx.Err() == context.DeadlineExceeded {
		return nil, cmn.NewError(op, cmn.KindTimeout, name+" exceeded its deadline", cctx.Err())
	}
	if runErr != nil {
		return nil, cmn.NewError(op, cmn.KindToolchain, name+" failed: "+errBuf.String(), runErr)
	}
	return outBuf.Bytes(), nil
}

func (a *execAdapter) timeoutFor(op string) time.Duration {
	if op == "imaging.buildPyramid" {
		return a.cfg.PyramidTimeout
	}
	return a.cfg.TileTimeout
}

// compressDiagnostic is used by callers that want to retain stdout on a
// job row without the full size; lz4 gives fast, cheap compression for
// text that is mostly key=value lines.
func compressDiagnostic(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressDiagnostic(compressed []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
