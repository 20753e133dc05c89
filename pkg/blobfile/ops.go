package blobfile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
)

// List yields the blob names of a container lazily. Iteration stops at the first error.
func (s *Session) List(ctx context.Context, containerName string) iter.Seq2[string, error] {
	return s.block.ListBlobs(ctx, containerName)
}

// ListNames collects every blob name of a container
func (s *Session) ListNames(ctx context.Context, containerName string) ([]string, error) {
	var names []string
	for name, err := range s.block.ListBlobs(ctx, containerName) {
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// ListSet collects every blob name of a container into a set
func (s *Session) ListSet(ctx context.Context, containerName string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	for name, err := range s.block.ListBlobs(ctx, containerName) {
		if err != nil {
			return nil, err
		}
		set[name] = struct{}{}
	}
	return set, nil
}

// PrintList writes the blob names of a container to w, one per line
func (s *Session) PrintList(ctx context.Context, w io.Writer, containerName string) error {
	for name, err := range s.block.ListBlobs(ctx, containerName) {
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, name); err != nil {
			return err
		}
	}
	return nil
}

// Upload uploads a payload as a block blob without going through the session's stage.
// Path payloads use the path upload; everything else is streamed.
func (s *Session) Upload(ctx context.Context, containerName, blobName string, p Payload) error {
	switch v := p.(type) {
	case Path:
		return s.block.UploadFromPath(ctx, containerName, blobName, string(v))
	case Stream:
		if v.Reader == nil {
			return fmt.Errorf("%w: nil stream", ErrPayloadKind)
		}
		return s.block.UploadFromStream(ctx, containerName, blobName, v.Reader)
	case Text:
		return s.block.UploadFromStream(ctx, containerName, blobName, strings.NewReader(string(v)))
	case Bytes:
		return s.block.UploadFromStream(ctx, containerName, blobName, bytes.NewReader(v))
	}
	return fmt.Errorf("%w: unsupported payload %T", ErrPayloadKind, p)
}

// CreateContainer creates a container
func (s *Session) CreateContainer(ctx context.Context, containerName string) error {
	return s.block.CreateContainer(ctx, containerName)
}

// DeleteBlob deletes a blob
func (s *Session) DeleteBlob(ctx context.Context, containerName, blobName string) error {
	return s.block.DeleteBlob(ctx, containerName, blobName)
}

// CreateAppendBlob creates an empty append blob, replacing any blob of the same name
func (s *Session) CreateAppendBlob(ctx context.Context, containerName, blobName string) error {
	return s.appendSvc.CreateAppendBlob(ctx, containerName, blobName)
}
