package objstore

import (
	"context"
	"errors"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/pathlake/slideagent/cmn"
)

// AzureBackend uploads to an Azure Blob Storage container.
type AzureBackend struct {
	client    *azblob.Client
	container string
}

func NewAzureBackend(accountURL, containerName, accountKey string) (*AzureBackend, error) {
	if accountURL == "" || containerName == "" {
		return nil, cmn.NewError("objstore.azure", cmn.KindConfigMiss, "account URL or container not configured", nil)
	}
	cred, err := azblob.NewSharedKeyCredential(accountNameFromURL(accountURL), accountKey)
	if err != nil {
		return nil, cmn.NewError("objstore.azure", cmn.KindConfigMiss, "bad shared key credential", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(accountURL, cred, nil)
	if err != nil {
		return nil, cmn.NewError("objstore.azure", cmn.KindConfigMiss, "create client", err)
	}
	return &AzureBackend{client: client, container: containerName}, nil
}

func accountNameFromURL(accountURL string) string {
	u := strings.TrimPrefix(accountURL, "https://")
	if i := strings.Index(u, "."); i >= 0 {
		return u[:i]
	}
	return u
}

func (b *AzureBackend) Put(ctx context.Context, obj Object) error {
	_, err := b.client.UploadBuffer(ctx, b.container, obj.Key, obj.Body, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType:  strPtr(obj.ContentType),
			BlobCacheControl: strPtr(obj.CacheControl),
		},
	})
	if err != nil {
		return classifyAzureError("objstore.azure.put", err)
	}
	return nil
}

func (b *AzureBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pager := b.client.NewListBlobsFlatPager(b.container, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classifyAzureError("objstore.azure.list", err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				keys = append(keys, *item.Name)
			}
		}
	}
	return keys, nil
}

func (b *AzureBackend) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := b.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := b.client.DeleteBlob(ctx, b.container, k, nil); err != nil {
			return classifyAzureError("objstore.azure.delete", err)
		}
	}
	return nil
}

func classifyAzureError(op string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode >= 500 {
		return cmn.NewError(op, cmn.KindTransient, "azure 5xx", err)
	}
	return cmn.NewError(op, cmn.KindPermanent, "azure request failed", err)
}
