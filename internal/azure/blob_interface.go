package azure

import (
	"context"
	"io"
	"iter"
)

// BlockBlobService defines the block blob operations a blob session stages through.
// Whole-object uploads always replace the remote content.
type BlockBlobService interface {
	DownloadToPath(ctx context.Context, containerName, blobName, path string) error
	UploadFromPath(ctx context.Context, containerName, blobName, path string) error
	UploadFromStream(ctx context.Context, containerName, blobName string, r io.Reader) error
	ListBlobs(ctx context.Context, containerName string) iter.Seq2[string, error]
	BlobExists(ctx context.Context, containerName, blobName string) (bool, error)
	CreateContainer(ctx context.Context, containerName string) error
	DeleteBlob(ctx context.Context, containerName, blobName string) error
}

// AppendBlobService defines the append blob operations used by the direct append modes.
// Appends only succeed on an existing append blob.
type AppendBlobService interface {
	CreateAppendBlob(ctx context.Context, containerName, blobName string) error
	EnsureAppendBlob(ctx context.Context, containerName, blobName string) error

	AppendText(ctx context.Context, containerName, blobName, text string) error
	AppendBytes(ctx context.Context, containerName, blobName string, data []byte) error
	AppendPath(ctx context.Context, containerName, blobName, path string) error
	AppendStream(ctx context.Context, containerName, blobName string, r io.Reader) error

	DownloadText(ctx context.Context, containerName, blobName string) (string, error)
	DownloadBytes(ctx context.Context, containerName, blobName string) ([]byte, error)
	DownloadToPath(ctx context.Context, containerName, blobName, path string) error
	DownloadToStream(ctx context.Context, containerName, blobName string, w io.Writer) error
}

// Ensure the SDK clients and the mock implement the service interfaces
var (
	_ BlockBlobService  = (*BlockBlobClient)(nil)
	_ AppendBlobService = (*AppendBlobClient)(nil)
	_ BlockBlobService  = (*MockBlobStorageClient)(nil)
	_ AppendBlobService = (*MockBlobStorageClient)(nil)
)
