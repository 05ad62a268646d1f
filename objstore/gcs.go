package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/pathlake/slideagent/cmn"
)

// GCSBackend uploads to a Google Cloud Storage bucket.
type GCSBackend struct {
	client *storage.Client
	bucket string
}

func NewGCSBackend(ctx context.Context, bucket string) (*GCSBackend, error) {
	if bucket == "" {
		return nil, cmn.NewError("objstore.gcs", cmn.KindConfigMiss, "bucket not configured", nil)
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, cmn.NewError("objstore.gcs", cmn.KindConfigMiss, "create client", err)
	}
	return &GCSBackend{client: client, bucket: bucket}, nil
}

func (b *GCSBackend) Put(ctx context.Context, obj Object) error {
	w := b.client.Bucket(b.bucket).Object(obj.Key).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.CacheControl = obj.CacheControl
	if _, err := io.Copy(w, bytes.NewReader(obj.Body)); err != nil {
		_ = w.Close()
		return classifyGCSError("objstore.gcs.put", err)
	}
	if err := w.Close(); err != nil {
		return classifyGCSError("objstore.gcs.put", err)
	}
	return nil
}

func (b *GCSBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyGCSError("objstore.gcs.list", err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

func (b *GCSBackend) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := b.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := b.client.Bucket(b.bucket).Object(k).Delete(ctx); err != nil {
			return classifyGCSError("objstore.gcs.delete", err)
		}
	}
	return nil
}

func classifyGCSError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code >= 500 {
		return cmn.NewError(op, cmn.KindTransient, "gcs 5xx", err)
	}
	return cmn.NewError(op, cmn.KindPermanent, "gcs request failed", err)
}
