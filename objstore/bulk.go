package objstore

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// BulkPutResult reports per-object outcome for a bulk upload.
type BulkPutResult struct {
	Key string
	Err error
}

// BulkPut uploads objs with up to u.concurrency in flight at once
// (spec.md §4.3's "bulk put of a tile set with a bounded in-flight
// concurrency, default 8"). Every object is attempted even if others
// fail; results are returned in input order.
func (u *Uploader) BulkPut(ctx context.Context, objs []Object) []BulkPutResult {
	results := make([]BulkPutResult, len(objs))
	if len(objs) == 0 {
		return results
	}
	sem := semaphore.NewWeighted(int64(u.concurrency))

	for i, obj := range objs {
		i, obj := i, obj
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = BulkPutResult{Key: obj.Key, Err: err}
			continue
		}
		go func() {
			defer sem.Release(1)
			err := u.Put(ctx, obj)
			results[i] = BulkPutResult{Key: obj.Key, Err: err}
		}()
	}

	// Wait for all slots to drain back to full capacity, i.e. every
	// goroutine has released.
	_ = sem.Acquire(ctx, int64(u.concurrency))
	sem.Release(int64(u.concurrency))
	return results
}
