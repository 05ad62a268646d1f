package objstore

import (
	"bytes"
	"context"
	"errors"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/pathlake/slideagent/cmn"
)

// S3Backend uploads through aws-sdk-go-v2's manager.Uploader, with its
// part concurrency pinned to 1 per object; the "bounded in-flight
// concurrency" across objects comes from Uploader.BulkPut's semaphore.
type S3Backend struct {
	client *s3.Client
	bucket string
}

func NewS3Backend(ctx context.Context, bucket, region, endpoint string) (*S3Backend, error) {
	if bucket == "" {
		return nil, cmn.NewError("objstore.s3", cmn.KindConfigMiss, "bucket not configured", nil)
	}
	optFns := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, cmn.NewError("objstore.s3", cmn.KindConfigMiss, "load AWS config", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
	})
	return &S3Backend{client: client, bucket: bucket}, nil
}

func (b *S3Backend) Put(ctx context.Context, obj Object) error {
	uploader := manager.NewUploader(b.client, func(u *manager.Uploader) {
		u.Concurrency = 1 // this single-object path; BulkPut supplies the fan-out
	})
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       &b.bucket,
		Key:          &obj.Key,
		Body:         bytes.NewReader(obj.Body),
		ContentType:  strPtr(obj.ContentType),
		CacheControl: strPtr(obj.CacheControl),
	})
	if err != nil {
		return classifyS3Error("objstore.s3.put", err)
	}
	return nil
}

func (b *S3Backend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: &b.bucket,
		Prefix: &prefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error("objstore.s3.list", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

func (b *S3Backend) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := b.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		k := k
		if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &b.bucket, Key: &k}); err != nil {
			return classifyS3Error("objstore.s3.delete", err)
		}
	}
	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// classifyS3Error maps an AWS SDK error into the cmn error taxonomy:
// throttling/5xx are transient (retryable), everything else (4xx,
// access-denied, not-found) is permanent.
func classifyS3Error(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if strings.Contains(code, "Throttl") || strings.Contains(code, "SlowDown") ||
			strings.Contains(code, "InternalError") || strings.Contains(code, "ServiceUnavailable") {
			return cmn.NewError(op, cmn.KindTransient, code, err)
		}
	}
	return cmn.NewError(op, cmn.KindPermanent, "s3 request failed", err)
}
