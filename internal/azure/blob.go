package azure

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"go.uber.org/zap"
)

// BlockBlobClient wraps Azure Blob Storage SDK for block blob operations
type BlockBlobClient struct {
	client *azblob.Client
	logger *zap.Logger
}

// NewBlockBlobClient creates a block blob service on top of a shared SDK client
func NewBlockBlobClient(client *azblob.Client, logger *zap.Logger) *BlockBlobClient {
	return &BlockBlobClient{
		client: client,
		logger: logger,
	}
}

// DownloadToPath downloads a block blob into the file at path, replacing its content
func (c *BlockBlobClient) DownloadToPath(ctx context.Context, containerName, blobName, path string) error {
	c.logger.Debug("downloading blob to path",
		zap.String("container", containerName),
		zap.String("blob", blobName),
		zap.String("path", path),
	)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create download target: %w", err)
	}
	defer f.Close()

	size, err := c.client.DownloadFile(ctx, containerName, blobName, f, nil)
	if err != nil {
		c.logger.Error("failed to download blob",
			zap.String("container", containerName),
			zap.String("blob", blobName),
			zap.Error(err),
		)
		return wrapError("download blob", err)
	}

	c.logger.Info("blob downloaded",
		zap.String("container", containerName),
		zap.String("blob", blobName),
		zap.Int64("size_bytes", size),
	)

	return nil
}

// UploadFromPath uploads the file at path as a block blob, overwriting any existing blob
func (c *BlockBlobClient) UploadFromPath(ctx context.Context, containerName, blobName, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open upload source: %w", err)
	}
	defer f.Close()

	if _, err := c.client.UploadFile(ctx, containerName, blobName, f, nil); err != nil {
		c.logger.Error("failed to upload blob from path",
			zap.String("container", containerName),
			zap.String("blob", blobName),
			zap.String("path", path),
			zap.Error(err),
		)
		return wrapError("upload blob", err)
	}

	c.logger.Info("blob uploaded from path",
		zap.String("container", containerName),
		zap.String("blob", blobName),
		zap.String("path", path),
	)

	return nil
}

// UploadFromStream uploads everything read from r as a block blob
func (c *BlockBlobClient) UploadFromStream(ctx context.Context, containerName, blobName string, r io.Reader) error {
	if _, err := c.client.UploadStream(ctx, containerName, blobName, r, nil); err != nil {
		c.logger.Error("failed to upload blob from stream",
			zap.String("container", containerName),
			zap.String("blob", blobName),
			zap.Error(err),
		)
		return wrapError("upload blob", err)
	}

	c.logger.Info("blob uploaded from stream",
		zap.String("container", containerName),
		zap.String("blob", blobName),
	)

	return nil
}

// ListBlobs yields the blob names of a container page by page
func (c *BlockBlobClient) ListBlobs(ctx context.Context, containerName string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		pager := c.client.NewListBlobsFlatPager(containerName, nil)
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield("", wrapError("list blobs", err))
				return
			}
			for _, item := range page.Segment.BlobItems {
				if item == nil || item.Name == nil {
					continue
				}
				if !yield(*item.Name, nil) {
					return
				}
			}
		}
	}
}

// BlobExists checks whether a blob of any type exists in the container
func (c *BlockBlobClient) BlobExists(ctx context.Context, containerName, blobName string) (bool, error) {
	blobClient := c.client.ServiceClient().NewContainerClient(containerName).NewBlobClient(blobName)

	_, err := blobClient.GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, wrapError("get blob properties", err)
}

// CreateContainer creates a container
func (c *BlockBlobClient) CreateContainer(ctx context.Context, containerName string) error {
	if _, err := c.client.CreateContainer(ctx, containerName, nil); err != nil {
		return wrapError("create container", err)
	}

	c.logger.Info("container created", zap.String("container", containerName))
	return nil
}

// DeleteBlob deletes a blob
func (c *BlockBlobClient) DeleteBlob(ctx context.Context, containerName, blobName string) error {
	if _, err := c.client.DeleteBlob(ctx, containerName, blobName, nil); err != nil {
		return wrapError("delete blob", err)
	}

	c.logger.Info("blob deleted",
		zap.String("container", containerName),
		zap.String("blob", blobName),
	)
	return nil
}
