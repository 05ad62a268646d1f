// Package objstore is the remote object-store uploader (spec.md §4.3,
// C3): retries with backoff, bulk put with bounded concurrency, prefix
// list/delete, behind one Backend interface with three real
// implementations (S3, Azure Blob, GCS) so an operator picks a provider
// by configuration, not by code change.
package objstore

import (
	"context"
	"time"
)

// Object is one payload to upload.
type Object struct {
	Key          string
	Body         []byte
	ContentType  string
	CacheControl string
}

// Backend is the provider-specific boundary; Put/List/Delete classify
// their own failures into the cmn error taxonomy (transient, permanent,
// configMissing) so Uploader's retry loop doesn't need provider-specific
// knowledge.
type Backend interface {
	Put(ctx context.Context, obj Object) error
	List(ctx context.Context, prefix string) ([]string, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// Uploader wraps a Backend with the retry/backoff and bounded-concurrency
// bulk-put policy of spec.md §4.3.
type Uploader struct {
	backend     Backend
	concurrency int
}

const (
	retryInitialBackoff = 1 * time.Second
	retryMaxAttempts    = 3
)

func New(backend Backend, concurrency int) *Uploader {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Uploader{backend: backend, concurrency: concurrency}
}

// Put uploads one object with retry/backoff (initial 1s, x2, capped at 3
// attempts).
func (u *Uploader) Put(ctx context.Context, obj Object) error {
	return withRetry(ctx, "objstore.put", func() error {
		return u.backend.Put(ctx, obj)
	})
}

// List returns every key under prefix (backend paginates internally).
func (u *Uploader) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := withRetry(ctx, "objstore.list", func() error {
		ks, err := u.backend.List(ctx, prefix)
		if err != nil {
			return err
		}
		keys = ks
		return nil
	})
	return keys, err
}

// DeletePrefix removes every object under prefix — used by the CLEANUP
// job (spec.md §4.12).
func (u *Uploader) DeletePrefix(ctx context.Context, prefix string) error {
	return withRetry(ctx, "objstore.deletePrefix", func() error {
		return u.backend.DeletePrefix(ctx, prefix)
	})
}
