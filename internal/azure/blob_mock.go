package azure

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// BlobType distinguishes block blobs from append blobs in the mock
type BlobType string

const (
	BlockBlob  BlobType = "BlockBlob"
	AppendBlob BlobType = "AppendBlob"
)

// MockBlob is a blob held by MockBlobStorageClient
type MockBlob struct {
	Type BlobType
	Data []byte
}

// UploadCall records one whole-object upload made against the mock
type UploadCall struct {
	Container string
	Blob      string
	Source    string // "path" or "stream"
	Size      int
}

// MockBlobStorageClient is an in-memory implementation of both blob services for testing.
// It mirrors the service rules the sessions depend on: containers must exist, appends need
// an existing append blob, and uploads replace whatever was stored.
type MockBlobStorageClient struct {
	Containers map[string]map[string]*MockBlob
	Uploads    []UploadCall

	// UploadErr, when set, is returned by every upload instead of storing data
	UploadErr error

	mu     sync.RWMutex
	logger *zap.Logger
}

// NewMockBlobStorageClient creates a new mock blob storage client with the given containers
func NewMockBlobStorageClient(logger *zap.Logger, containers ...string) *MockBlobStorageClient {
	c := &MockBlobStorageClient{
		Containers: make(map[string]map[string]*MockBlob),
		logger:     logger,
	}
	for _, name := range containers {
		c.Containers[name] = make(map[string]*MockBlob)
	}
	return c
}

func (c *MockBlobStorageClient) log(msg string, fields ...zap.Field) {
	if c.logger != nil {
		c.logger.Debug(msg, fields...)
	}
}

// lookup returns the blob or an ErrBlobNotFound error; callers hold the lock
func (c *MockBlobStorageClient) lookup(containerName, blobName string) (*MockBlob, error) {
	blobs, ok := c.Containers[containerName]
	if !ok {
		return nil, fmt.Errorf("%w: container %s", ErrBlobNotFound, containerName)
	}
	b, ok := blobs[blobName]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrBlobNotFound, containerName, blobName)
	}
	return b, nil
}

// put stores data as a block blob and records the upload; callers hold the lock
func (c *MockBlobStorageClient) put(containerName, blobName, source string, data []byte) error {
	c.Uploads = append(c.Uploads, UploadCall{Container: containerName, Blob: blobName, Source: source, Size: len(data)})
	if c.UploadErr != nil {
		return c.UploadErr
	}
	blobs, ok := c.Containers[containerName]
	if !ok {
		return fmt.Errorf("%w: container %s", ErrBlobNotFound, containerName)
	}
	blobs[blobName] = &MockBlob{Type: BlockBlob, Data: bytes.Clone(data)}

	c.log("mock: blob uploaded",
		zap.String("container", containerName),
		zap.String("blob", blobName),
		zap.Int("size_bytes", len(data)),
	)
	return nil
}

// Put stores a block blob directly, without recording an upload call
func (c *MockBlobStorageClient) Put(containerName, blobName string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	blobs, ok := c.Containers[containerName]
	if !ok {
		blobs = make(map[string]*MockBlob)
		c.Containers[containerName] = blobs
	}
	blobs[blobName] = &MockBlob{Type: BlockBlob, Data: bytes.Clone(data)}
}

// Get returns a copy of the stored blob content
func (c *MockBlobStorageClient) Get(containerName, blobName string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, err := c.lookup(containerName, blobName)
	if err != nil {
		return nil, false
	}
	return bytes.Clone(b.Data), true
}

// UploadsTo returns the recorded upload calls for one blob
func (c *MockBlobStorageClient) UploadsTo(containerName, blobName string) []UploadCall {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var calls []UploadCall
	for _, u := range c.Uploads {
		if u.Container == containerName && u.Blob == blobName {
			calls = append(calls, u)
		}
	}
	return calls
}

// DownloadToPath writes the blob content to path
func (c *MockBlobStorageClient) DownloadToPath(ctx context.Context, containerName, blobName, path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, err := c.lookup(containerName, blobName)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b.Data, 0o600); err != nil {
		return fmt.Errorf("failed to write download target: %w", err)
	}
	return nil
}

// UploadFromPath stores the content of the file at path as a block blob
func (c *MockBlobStorageClient) UploadFromPath(ctx context.Context, containerName, blobName, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to open upload source: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.put(containerName, blobName, "path", data)
}

// UploadFromStream stores everything read from r as a block blob
func (c *MockBlobStorageClient) UploadFromStream(ctx context.Context, containerName, blobName string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read upload stream: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.put(containerName, blobName, "stream", data)
}

// ListBlobs yields the blob names of a container in lexical order, like the service does
func (c *MockBlobStorageClient) ListBlobs(ctx context.Context, containerName string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		c.mu.RLock()
		blobs, ok := c.Containers[containerName]
		var names []string
		for name := range blobs {
			names = append(names, name)
		}
		c.mu.RUnlock()

		if !ok {
			yield("", fmt.Errorf("%w: container %s", ErrBlobNotFound, containerName))
			return
		}

		slices.Sort(names)
		for _, name := range names {
			if !yield(name, nil) {
				return
			}
		}
	}
}

// BlobExists reports whether the blob is stored
func (c *MockBlobStorageClient) BlobExists(ctx context.Context, containerName, blobName string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, err := c.lookup(containerName, blobName)
	return err == nil, nil
}

// CreateContainer creates an empty container
func (c *MockBlobStorageClient) CreateContainer(ctx context.Context, containerName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.Containers[containerName]; ok {
		return fmt.Errorf("container already exists: %s", containerName)
	}
	c.Containers[containerName] = make(map[string]*MockBlob)
	return nil
}

// DeleteBlob removes a blob
func (c *MockBlobStorageClient) DeleteBlob(ctx context.Context, containerName, blobName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.lookup(containerName, blobName); err != nil {
		return err
	}
	delete(c.Containers[containerName], blobName)
	return nil
}

// CreateAppendBlob creates an empty append blob, replacing any existing blob
func (c *MockBlobStorageClient) CreateAppendBlob(ctx context.Context, containerName, blobName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	blobs, ok := c.Containers[containerName]
	if !ok {
		return fmt.Errorf("%w: container %s", ErrBlobNotFound, containerName)
	}
	blobs[blobName] = &MockBlob{Type: AppendBlob}
	return nil
}

// EnsureAppendBlob creates an empty append blob unless a blob with that name exists
func (c *MockBlobStorageClient) EnsureAppendBlob(ctx context.Context, containerName, blobName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	blobs, ok := c.Containers[containerName]
	if !ok {
		return fmt.Errorf("%w: container %s", ErrBlobNotFound, containerName)
	}
	if _, exists := blobs[blobName]; !exists {
		blobs[blobName] = &MockBlob{Type: AppendBlob}
	}
	return nil
}

// AppendText appends text to an append blob
func (c *MockBlobStorageClient) AppendText(ctx context.Context, containerName, blobName, text string) error {
	return c.AppendBytes(ctx, containerName, blobName, []byte(text))
}

// AppendBytes appends data to an append blob
func (c *MockBlobStorageClient) AppendBytes(ctx context.Context, containerName, blobName string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := c.lookup(containerName, blobName)
	if err != nil {
		return err
	}
	if b.Type != AppendBlob {
		return fmt.Errorf("failed to append block: %s/%s is a %s", containerName, blobName, b.Type)
	}
	b.Data = append(b.Data, data...)

	c.log("mock: appended to blob",
		zap.String("container", containerName),
		zap.String("blob", blobName),
		zap.Int("size_bytes", len(data)),
	)
	return nil
}

// AppendPath appends the content of the file at path to an append blob
func (c *MockBlobStorageClient) AppendPath(ctx context.Context, containerName, blobName, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to open append source: %w", err)
	}
	return c.AppendBytes(ctx, containerName, blobName, data)
}

// AppendStream appends everything read from r to an append blob
func (c *MockBlobStorageClient) AppendStream(ctx context.Context, containerName, blobName string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read append source: %w", err)
	}
	return c.AppendBytes(ctx, containerName, blobName, data)
}

// DownloadText returns the blob content as text
func (c *MockBlobStorageClient) DownloadText(ctx context.Context, containerName, blobName string) (string, error) {
	data, err := c.DownloadBytes(ctx, containerName, blobName)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DownloadBytes returns a copy of the blob content
func (c *MockBlobStorageClient) DownloadBytes(ctx context.Context, containerName, blobName string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, err := c.lookup(containerName, blobName)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(b.Data), nil
}

// DownloadToStream writes the blob content to w
func (c *MockBlobStorageClient) DownloadToStream(ctx context.Context, containerName, blobName string, w io.Writer) error {
	data, err := c.DownloadBytes(ctx, containerName, blobName)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write blob data: %w", err)
	}
	return nil
}
