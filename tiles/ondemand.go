// Package tiles implements the on-demand tile generator of spec.md §4.7
// (C7): disk-hit short circuit, request coalescing, a bounded-concurrency
// semaphore, and the isPending/pendingCount observability hooks. Grounded
// directly on other_examples/1d43f636_MeKo-Christian-WaterColorMap__
// internal-server-ondemand_tiles.go (a sync.Map of in-flight futures guarded
// by a weighted semaphore), reworked here onto golang.org/x/sync's
// singleflight and semaphore packages — both already teacher dependencies
// (golang.org/x/sync) — instead of a hand-rolled future map.
package tiles

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/pathlake/slideagent/cmn"
	"github.com/pathlake/slideagent/cmn/nlog"
	"github.com/pathlake/slideagent/events"
	"github.com/pathlake/slideagent/imaging"
)

// Generator produces tiles on demand, writing each to its canonical path
// on first generation and serving every future identical request from disk.
type Generator struct {
	adapter    imaging.Adapter
	derivedDir string
	sem        *semaphore.Weighted
	group      singleflight.Group
	bus        *events.Bus
	log        *nlog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

func NewGenerator(adapter imaging.Adapter, derivedDir string, concurrency int, bus *events.Bus) *Generator {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Generator{
		adapter:    adapter,
		derivedDir: derivedDir,
		sem:        semaphore.NewWeighted(int64(concurrency)),
		bus:        bus,
		log:        nlog.Named("tiles"),
		pending:    make(map[string]struct{}),
	}
}

func tileKey(slideID string, z, x, y int) string {
	return fmt.Sprintf("%s/%d/%d_%d", slideID, z, x, y)
}

func (g *Generator) tilePath(slideID string, z, x, y int) string {
	return filepath.Join(g.derivedDir, slideID, "tiles", fmt.Sprint(z), fmt.Sprintf("%d_%d.jpg", x, y))
}

// IsPending reports whether a generation for this exact tuple is currently
// in flight (spec.md §4.7 observable hook).
func (g *Generator) IsPending(slideID string, z, x, y int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[tileKey(slideID, z, x, y)]
	return ok
}

// PendingCount reports the number of tuples currently in flight.
func (g *Generator) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

func (g *Generator) markPending(key string) {
	g.mu.Lock()
	g.pending[key] = struct{}{}
	g.mu.Unlock()
}

func (g *Generator) clearPending(key string) {
	g.mu.Lock()
	delete(g.pending, key)
	g.mu.Unlock()
}

// Get implements spec.md §4.7 steps 1-6 for one (slideId, z, x, y) request.
func (g *Generator) Get(ctx context.Context, req imaging.TileRequest, slideID string) ([]byte, error) {
	dst := g.tilePath(slideID, req.Level, req.X, req.Y)

	if b, err := os.ReadFile(dst); err == nil {
		return b, nil
	}

	key := tileKey(slideID, req.Level, req.X, req.Y)
	g.markPending(key)
	defer g.clearPending(key)

	v, err, _ := g.group.Do(key, func() (interface{}, error) {
		return g.generate(ctx, req, slideID, dst)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (g *Generator) generate(ctx context.Context, req imaging.TileRequest, slideID, dst string) ([]byte, error) {
	if b, err := os.ReadFile(dst); err == nil {
		return b, nil
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, cmn.NewError("tiles.generate", cmn.KindTimeout, "semaphore acquire cancelled", err)
	}
	defer g.sem.Release(1)

	if b, err := os.ReadFile(dst); err == nil {
		return b, nil
	}

	data, err := g.adapter.ExtractTile(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, cmn.NewError("tiles.generate", cmn.KindIO, "mkdir tile dir", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return nil, cmn.NewError("tiles.generate", cmn.KindIO, "write tile", err)
	}

	g.bus.Emit(events.Event{
		Kind:     events.KindTileGenerated,
		EntityID: slideID,
		Data: map[string]interface{}{
			"z": req.Level, "x": req.X, "y": req.Y,
		},
	})
	return data, nil
}
