package azure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/appendblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"go.uber.org/zap"
)

// MaxAppendBlockBytes is the largest block sent in a single Append Block call
const MaxAppendBlockBytes = 4 * 1024 * 1024

// AppendBlobClient wraps Azure Blob Storage SDK for append blob operations
type AppendBlobClient struct {
	client *azblob.Client
	logger *zap.Logger
}

// NewAppendBlobClient creates an append blob service on top of a shared SDK client
func NewAppendBlobClient(client *azblob.Client, logger *zap.Logger) *AppendBlobClient {
	return &AppendBlobClient{
		client: client,
		logger: logger,
	}
}

func (c *AppendBlobClient) appendBlob(containerName, blobName string) *appendblob.Client {
	return c.client.ServiceClient().NewContainerClient(containerName).NewAppendBlobClient(blobName)
}

// CreateAppendBlob creates an empty append blob, replacing any blob with the same name
func (c *AppendBlobClient) CreateAppendBlob(ctx context.Context, containerName, blobName string) error {
	if _, err := c.appendBlob(containerName, blobName).Create(ctx, nil); err != nil {
		return wrapError("create append blob", err)
	}

	c.logger.Info("append blob created",
		zap.String("container", containerName),
		zap.String("blob", blobName),
	)
	return nil
}

// EnsureAppendBlob creates an empty append blob unless one already exists.
// Existing content is never truncated.
func (c *AppendBlobClient) EnsureAppendBlob(ctx context.Context, containerName, blobName string) error {
	_, err := c.appendBlob(containerName, blobName).Create(ctx, &appendblob.CreateOptions{
		AccessConditions: &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{
				IfNoneMatch: to.Ptr(azcore.ETagAny),
			},
		},
	})
	if err == nil {
		c.logger.Info("append blob created",
			zap.String("container", containerName),
			zap.String("blob", blobName),
		)
		return nil
	}
	if bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) {
		return nil
	}
	return wrapError("ensure append blob", err)
}

// AppendText appends UTF-8 text to an append blob
func (c *AppendBlobClient) AppendText(ctx context.Context, containerName, blobName, text string) error {
	return c.AppendBytes(ctx, containerName, blobName, []byte(text))
}

// AppendBytes appends data to an append blob in blocks of at most MaxAppendBlockBytes
func (c *AppendBlobClient) AppendBytes(ctx context.Context, containerName, blobName string, data []byte) error {
	return c.AppendStream(ctx, containerName, blobName, bytes.NewReader(data))
}

// AppendPath appends the content of the local file at path to an append blob
func (c *AppendBlobClient) AppendPath(ctx context.Context, containerName, blobName, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open append source: %w", err)
	}
	defer f.Close()

	return c.AppendStream(ctx, containerName, blobName, f)
}

// AppendStream appends everything read from r to an append blob
func (c *AppendBlobClient) AppendStream(ctx context.Context, containerName, blobName string, r io.Reader) error {
	client := c.appendBlob(containerName, blobName)
	buf := make([]byte, MaxAppendBlockBytes)

	var total int64
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			block := streaming.NopCloser(bytes.NewReader(buf[:n]))
			if _, err := client.AppendBlock(ctx, block, nil); err != nil {
				c.logger.Error("failed to append block",
					zap.String("container", containerName),
					zap.String("blob", blobName),
					zap.Int64("offset", total),
					zap.Error(err),
				)
				return wrapError("append block", err)
			}
			total += int64(n)
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("failed to read append source: %w", readErr)
		}
	}

	c.logger.Debug("appended to blob",
		zap.String("container", containerName),
		zap.String("blob", blobName),
		zap.Int64("size_bytes", total),
	)
	return nil
}

// DownloadText downloads the whole append blob as text
func (c *AppendBlobClient) DownloadText(ctx context.Context, containerName, blobName string) (string, error) {
	data, err := c.DownloadBytes(ctx, containerName, blobName)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DownloadBytes downloads the whole append blob into memory
func (c *AppendBlobClient) DownloadBytes(ctx context.Context, containerName, blobName string) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.DownloadToStream(ctx, containerName, blobName, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DownloadToPath downloads the append blob into the file at path, replacing its content
func (c *AppendBlobClient) DownloadToPath(ctx context.Context, containerName, blobName, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create download target: %w", err)
	}
	defer f.Close()

	if _, err := c.client.DownloadFile(ctx, containerName, blobName, f, nil); err != nil {
		return wrapError("download append blob", err)
	}
	return nil
}

// DownloadToStream copies the append blob content into w
func (c *AppendBlobClient) DownloadToStream(ctx context.Context, containerName, blobName string, w io.Writer) error {
	resp, err := c.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		c.logger.Error("failed to download append blob",
			zap.String("container", containerName),
			zap.String("blob", blobName),
			zap.Error(err),
		)
		return wrapError("download append blob", err)
	}
	defer resp.Body.Close()

	size, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read append blob data: %w", err)
	}

	c.logger.Debug("append blob downloaded",
		zap.String("container", containerName),
		zap.String("blob", blobName),
		zap.Int64("size_bytes", size),
	)
	return nil
}
