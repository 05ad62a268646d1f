package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/buntdb"

	"github.com/pathlake/slideagent/cmn"
)

const jobPrefix = "job:"

func jobKey(id string) string { return jobPrefix + id }

// JobQueue combines the C5 transactional job-row registry with an
// in-process FIFO channel carrying cmn.Payload — grounded on aistore's
// downloader/notifications.go producer/listener pairing, adapted from a
// pub/sub fan-out to a single bounded channel since §4.5 specifies one
// producer-to-worker queue, not a broadcast.
type JobQueue struct {
	db    *DB
	queue chan cmn.Payload
}

// NewJobQueue builds a queue with the given channel capacity; 0 makes pushes
// block until a worker is dequeuing, matching "the queue need not be durable
// across crashes" — an unbuffered channel loses nothing buntdb doesn't
// already persist in the job row.
func NewJobQueue(db *DB, capacity int) *JobQueue {
	return &JobQueue{db: db, queue: make(chan cmn.Payload, capacity)}
}

// CreateAndEnqueue enforces at-most-one-active-job-per-(slideId,type)
// (spec.md §4.5). Returns (job, skipped, err): skipped is true when an
// active row already existed and nothing was inserted or pushed.
func (q *JobQueue) CreateAndEnqueue(ctx context.Context, payload cmn.Payload) (*cmn.Job, bool, error) {
	var job cmn.Job
	var skipped bool
	err := q.db.bunt.Update(func(tx *buntdb.Tx) error {
		active := false
		scanErr := tx.Ascend(idxJobActive, func(key, value string) bool {
			var j cmn.Job
			if json.Unmarshal([]byte(value), &j) != nil {
				return true
			}
			if j.SlideID == payload.SlideID && j.Type == payload.Type &&
				(j.Status == cmn.JobQueued || j.Status == cmn.JobRunning) {
				active = true
				return false
			}
			return true
		})
		if scanErr != nil {
			return scanErr
		}
		if active {
			skipped = true
			return nil
		}
		now := time.Now()
		job = cmn.Job{
			ID:        uuid.NewString(),
			SlideID:   payload.SlideID,
			Type:      payload.Type,
			Status:    cmn.JobQueued,
			CreatedAt: now,
			UpdatedAt: now,
		}
		buf, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(jobKey(job.ID), string(buf), nil)
		return err
	})
	if err != nil {
		return nil, false, cmn.NewError("store.jobs.createAndEnqueue", cmn.KindDBInvariant, "transaction failed", err)
	}
	if skipped {
		return nil, true, nil
	}
	payload.JobID = job.ID
	select {
	case q.queue <- payload:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	return &job, false, nil
}

// Dequeue blocks for up to timeout for the next payload.
func (q *JobQueue) Dequeue(ctx context.Context, timeout time.Duration) (cmn.Payload, bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case p := <-q.queue:
		return p, true, nil
	case <-t.C:
		return cmn.Payload{}, false, nil
	case <-ctx.Done():
		return cmn.Payload{}, false, ctx.Err()
	}
}

// Transition updates a job row's status, optional error message, and
// updatedAt timestamp (spec.md §4.5).
func (q *JobQueue) Transition(jobID string, status cmn.JobStatus, errMsg string) error {
	err := q.db.bunt.Update(func(tx *buntdb.Tx) error {
		val, err := tx.Get(jobKey(jobID))
		if err != nil {
			return err
		}
		var j cmn.Job
		if err := json.Unmarshal([]byte(val), &j); err != nil {
			return err
		}
		j.Status = status
		j.Error = errMsg
		j.UpdatedAt = time.Now()
		buf, err := json.Marshal(&j)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(jobKey(jobID), string(buf), nil)
		return err
	})
	if err != nil {
		return cmn.NewError("store.jobs.transition", cmn.KindIO, "buntdb update", err)
	}
	return nil
}

func (q *JobQueue) Get(jobID string) (*cmn.Job, error) {
	var j cmn.Job
	err := q.db.bunt.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(jobKey(jobID))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(val), &j)
	})
	if err != nil {
		return nil, cmn.NewError("store.jobs.get", cmn.KindIO, "job not found", err)
	}
	return &j, nil
}

// SetDiagnostic attaches compressed toolchain output to a job row without
// disturbing its status/error/updatedAt (spec.md §4.2's diagnostic trail).
func (q *JobQueue) SetDiagnostic(jobID string, diagnostic []byte) error {
	err := q.db.bunt.Update(func(tx *buntdb.Tx) error {
		val, err := tx.Get(jobKey(jobID))
		if err != nil {
			return err
		}
		var j cmn.Job
		if err := json.Unmarshal([]byte(val), &j); err != nil {
			return err
		}
		j.Diagnostic = diagnostic
		buf, err := json.Marshal(&j)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(jobKey(jobID), string(buf), nil)
		return err
	})
	if err != nil {
		return cmn.NewError("store.jobs.setDiagnostic", cmn.KindIO, "buntdb update", err)
	}
	return nil
}

// DeleteBySlide removes every job row belonging to slideID — the cascade
// half of spec.md §3/§4.4's "destroyed only by explicit deletion, which
// cascades to its jobs". Returns the number of rows removed.
func (q *JobQueue) DeleteBySlide(slideID string) (int, error) {
	var keys []string
	err := q.db.bunt.Update(func(tx *buntdb.Tx) error {
		scanErr := tx.Ascend(idxJobActive, func(key, value string) bool {
			var j cmn.Job
			if json.Unmarshal([]byte(value), &j) == nil && j.SlideID == slideID {
				keys = append(keys, key)
			}
			return true
		})
		if scanErr != nil {
			return scanErr
		}
		for _, k := range keys {
			if _, err := tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, cmn.NewError("store.jobs.deleteBySlide", cmn.KindIO, "buntdb delete", err)
	}
	return len(keys), nil
}

// ReconcileOnStartup transitions every row still "running" to "failed":
// the queue is not durable, so a crashed worker's in-flight ownership
// cannot be assumed to have survived (spec.md §4.5).
func (q *JobQueue) ReconcileOnStartup() (int, error) {
	var stale []string
	err := q.db.bunt.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(idxJobActive, func(key, value string) bool {
			var j cmn.Job
			if json.Unmarshal([]byte(value), &j) == nil && j.Status == cmn.JobRunning {
				stale = append(stale, j.ID)
			}
			return true
		})
	})
	if err != nil {
		return 0, cmn.NewError("store.jobs.reconcile", cmn.KindIO, "scan failed", err)
	}
	for _, id := range stale {
		if err := q.Transition(id, cmn.JobFailed, "reconciled on startup: worker did not survive restart"); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
