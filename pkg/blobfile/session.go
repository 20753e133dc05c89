// Package blobfile exposes Azure block and append blobs through a file-like session.
//
// A Session binds at most one blob at a time. Open picks a staging strategy from the
// mode: read and local-append modes download the blob to a staging file, write modes
// stage a new empty file, and the direct append modes (blobat, blobab, blobap, blobas)
// talk to the append blob service without staging. Close uploads staged writes and
// returns the session to idle so it can be reused.
//
// A Session is not safe for concurrent use; create one per goroutine with Fork.
package blobfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/vcscsvcscs/azblobfile/internal/azure"
	"go.uber.org/zap"
)

// binding is the state of an open blob
type binding struct {
	container string
	blob      string
	mode      Mode
	stagePath string
	file      *os.File
}

func (b *binding) fields() []zap.Field {
	return []zap.Field{
		zap.String("container", b.container),
		zap.String("blob", b.blob),
		zap.Stringer("mode", b.mode),
	}
}

// Session mediates one open blob at a time. The zero binding (cur == nil) is the idle state.
type Session struct {
	block     azure.BlockBlobService
	appendSvc azure.AppendBlobService
	opts      options

	cur *binding
}

// NewSession creates an idle session over the given block and append blob services
func NewSession(block azure.BlockBlobService, appendSvc azure.AppendBlobService, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Session{
		block:     block,
		appendSvc: appendSvc,
		opts:      o,
	}
}

// Account identifies a storage account. ConnectionString wins over Name and Key.
type Account struct {
	Name             string
	Key              string
	ConnectionString string
	// BlobEndpoint overrides the public cloud endpoint, e.g. for Azurite
	BlobEndpoint string
}

// Connect creates an idle session talking to a storage account
func Connect(acct Account, opts ...Option) (*Session, error) {
	client, err := azure.NewClient(azure.StorageOptions{
		AccountName:      acct.Name,
		AccountKey:       acct.Key,
		ConnectionString: acct.ConnectionString,
		BlobEndpoint:     acct.BlobEndpoint,
	})
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := NewSession(
		azure.NewBlockBlobClient(client, o.logger),
		azure.NewAppendBlobClient(client, o.logger),
	)
	s.opts = o
	return s, nil
}

// Fork returns a new idle session sharing the services and options of s
func (s *Session) Fork() *Session {
	return &Session{
		block:     s.block,
		appendSvc: s.appendSvc,
		opts:      s.opts,
	}
}

// IsOpen reports whether a blob is bound to the session
func (s *Session) IsOpen() bool { return s.cur != nil }

// Container returns the container of the open blob, or "" when idle
func (s *Session) Container() string {
	if s.cur == nil {
		return ""
	}
	return s.cur.container
}

// Blob returns the name of the open blob, or "" when idle
func (s *Session) Blob() string {
	if s.cur == nil {
		return ""
	}
	return s.cur.blob
}

// Mode returns the mode of the open blob, or 0 when idle
func (s *Session) Mode() Mode {
	if s.cur == nil {
		return 0
	}
	return s.cur.mode
}

// StagePath returns the local staging file, or "" when idle or in a direct append mode
func (s *Session) StagePath() string {
	if s.cur == nil {
		return ""
	}
	return s.cur.stagePath
}

// Open binds the session to containerName/blobName in the given mode, closing any blob
// that is still open first. The staged file is returned only for the read modes so it can
// be handed to code that consumes an *os.File; it is owned by the session and must not be
// closed by the caller.
func (s *Session) Open(ctx context.Context, containerName, blobName string, mode Mode) (*os.File, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMode, mode)
	}

	if prev := s.cur; prev != nil {
		if err := s.Close(ctx); err != nil {
			return nil, fmt.Errorf("failed to close %s/%s before opening %s/%s: %w",
				prev.container, prev.blob, containerName, blobName, err)
		}
	}

	b := &binding{
		container: containerName,
		blob:      blobName,
		mode:      mode,
	}

	var err error
	switch mode.Class() {
	case ClassRead, ClassAppendLocal:
		err = s.openDownloaded(ctx, b)
	case ClassWrite:
		err = s.openWrite(ctx, b)
	case ClassAppendRemote:
		err = s.openRemote(ctx, b)
	}
	if err != nil {
		s.opts.logger.Error("failed to open blob", append(b.fields(), zap.Error(err))...)
		return nil, err
	}

	s.cur = b
	s.opts.logger.Info("blob opened", append(b.fields(), zap.String("stage_path", b.stagePath))...)

	if mode.Class() == ClassRead {
		return b.file, nil
	}
	return nil, nil
}

// newStagePath returns a unique staging path; the blob's base name is kept as a suffix
func (s *Session) newStagePath(blobName string) string {
	base := path.Base(strings.ReplaceAll(blobName, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		base = "blob"
	}
	return filepath.Join(s.opts.stagingDir, "blobfile-"+uuid.NewString()+"-"+base)
}

func (s *Session) openDownloaded(ctx context.Context, b *binding) error {
	stagePath := s.newStagePath(b.blob)

	if err := s.block.DownloadToPath(ctx, b.container, b.blob, stagePath); err != nil {
		_ = os.Remove(stagePath)
		return fmt.Errorf("failed to stage %s/%s: %w", b.container, b.blob, err)
	}

	f, err := os.OpenFile(stagePath, b.mode.openFlags(), 0o600)
	if err != nil {
		_ = os.Remove(stagePath)
		return fmt.Errorf("failed to open staging file: %w", err)
	}

	b.stagePath = stagePath
	b.file = f
	return nil
}

func (s *Session) openWrite(ctx context.Context, b *binding) error {
	exists, err := s.block.BlobExists(ctx, b.container, b.blob)
	if err != nil {
		return fmt.Errorf("failed to check %s/%s: %w", b.container, b.blob, err)
	}
	if exists {
		switch s.opts.overwrite {
		case OverwriteFail:
			return fmt.Errorf("%w: %s/%s", ErrBlobExists, b.container, b.blob)
		case OverwriteWarn:
			s.opts.logger.Warn("blob already exists and will be overwritten on close; call Discard to drop the stage without uploading",
				b.fields()...)
		}
	}

	stagePath := s.newStagePath(b.blob)
	f, err := os.OpenFile(stagePath, b.mode.openFlags(), 0o600)
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}

	b.stagePath = stagePath
	b.file = f
	return nil
}

func (s *Session) openRemote(ctx context.Context, b *binding) error {
	if !s.opts.autoCreateAppendBlobs {
		return nil
	}
	if err := s.appendSvc.EnsureAppendBlob(ctx, b.container, b.blob); err != nil {
		return fmt.Errorf("failed to create append blob %s/%s: %w", b.container, b.blob, err)
	}
	return nil
}

// Read returns the content of the open blob.
//
// In the direct append modes the whole remote blob is downloaded and returned as the
// mode's payload kind; for blobap the content lands in a new staging file whose Path is
// returned and which the caller must remove. In the staged modes Read returns the rest
// of the staging file, as Bytes for binary modes and Text otherwise.
func (s *Session) Read(ctx context.Context) (Payload, error) {
	b := s.cur
	if b == nil {
		return nil, ErrNoBlobOpen
	}
	if !b.mode.Readable() {
		return nil, fmt.Errorf("%w: mode %s", ErrNotReadable, b.mode)
	}

	switch b.mode.Class() {
	case ClassAppendRemote:
		return s.readRemote(ctx, b)
	case ClassRead, ClassWrite, ClassAppendLocal:
		data, err := io.ReadAll(b.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read staging file: %w", err)
		}
		if b.mode.Binary() {
			return Bytes(data), nil
		}
		return Text(data), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidMode, b.mode)
}

func (s *Session) readRemote(ctx context.Context, b *binding) (Payload, error) {
	switch b.mode.Kind() {
	case KindText:
		text, err := s.appendSvc.DownloadText(ctx, b.container, b.blob)
		if err != nil {
			return nil, err
		}
		return Text(text), nil
	case KindBytes:
		data, err := s.appendSvc.DownloadBytes(ctx, b.container, b.blob)
		if err != nil {
			return nil, err
		}
		return Bytes(data), nil
	case KindPath:
		target := s.newStagePath(b.blob)
		if err := s.appendSvc.DownloadToPath(ctx, b.container, b.blob, target); err != nil {
			_ = os.Remove(target)
			return nil, err
		}
		return Path(target), nil
	case KindStream:
		var buf bytes.Buffer
		if err := s.appendSvc.DownloadToStream(ctx, b.container, b.blob, &buf); err != nil {
			return nil, err
		}
		return Stream{Reader: &buf}, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidMode, b.mode)
}

// ReadAll reads the open blob like Read and flattens the payload into bytes.
// Files downloaded for blobap are removed after reading.
func (s *Session) ReadAll(ctx context.Context) ([]byte, error) {
	p, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}
	if target, ok := p.(Path); ok {
		defer os.Remove(string(target))
	}
	return ReadPayload(p)
}

// Write writes p to the open blob. The direct append modes append to the remote blob
// immediately and require a payload of the mode's kind; the staged modes write to the
// staging file and upload on Close.
func (s *Session) Write(ctx context.Context, p Payload) error {
	b := s.cur
	if b == nil {
		return ErrNoBlobOpen
	}
	if !b.mode.Writable() {
		return fmt.Errorf("%w: mode %s", ErrNotWritable, b.mode)
	}

	switch b.mode.Class() {
	case ClassAppendRemote:
		return s.writeRemote(ctx, b, p)
	case ClassWrite, ClassAppendLocal:
		r, closeFn, err := open(p)
		if err != nil {
			return err
		}
		defer closeFn()

		if _, err := io.Copy(b.file, r); err != nil {
			return fmt.Errorf("failed to write staging file: %w", err)
		}
		return nil
	case ClassRead:
	}
	return fmt.Errorf("%w: mode %s", ErrNotWritable, b.mode)
}

func (s *Session) writeRemote(ctx context.Context, b *binding, p Payload) error {
	if p == nil || p.Kind() != b.mode.Kind() {
		return fmt.Errorf("%w: %s mode needs a %s payload", ErrPayloadKind, b.mode, b.mode.Kind())
	}

	switch v := p.(type) {
	case Text:
		return s.appendSvc.AppendText(ctx, b.container, b.blob, string(v))
	case Bytes:
		return s.appendSvc.AppendBytes(ctx, b.container, b.blob, []byte(v))
	case Path:
		return s.appendSvc.AppendPath(ctx, b.container, b.blob, string(v))
	case Stream:
		if v.Reader == nil {
			return fmt.Errorf("%w: nil stream", ErrPayloadKind)
		}
		return s.appendSvc.AppendStream(ctx, b.container, b.blob, v.Reader)
	}
	return fmt.Errorf("%w: unsupported payload %T", ErrPayloadKind, p)
}

// Close finishes the open blob. Write and local append modes upload the whole staging
// file, replacing the remote blob. The staging file is deleted and the session returns
// to idle; under CloseTransactional a failed upload keeps both so Close can be retried
// or the stage dropped with Discard.
func (s *Session) Close(ctx context.Context) error {
	b := s.cur
	if b == nil {
		return ErrNoBlobOpen
	}

	var closeErr error
	if b.file != nil {
		closeErr = b.file.Close()
		b.file = nil
	}

	switch b.mode.Class() {
	case ClassWrite, ClassAppendLocal:
		if err := s.block.UploadFromPath(ctx, b.container, b.blob, b.stagePath); err != nil {
			return s.failUpload(b, errors.Join(closeErr, err))
		}
		s.opts.logger.Info("blob uploaded on close", b.fields()...)
	case ClassRead, ClassAppendRemote:
	}

	return errors.Join(closeErr, s.reset(b))
}

// failUpload applies the close policy after the upload in Close failed
func (s *Session) failUpload(b *binding, err error) error {
	err = fmt.Errorf("failed to upload %s/%s: %w", b.container, b.blob, err)

	if s.opts.closePolicy == CloseTransactional {
		flags := os.O_WRONLY | os.O_APPEND
		if b.mode.Readable() {
			flags = os.O_RDWR | os.O_APPEND
		}
		f, reopenErr := os.OpenFile(b.stagePath, flags, 0o600)
		if reopenErr == nil {
			b.file = f
			s.opts.logger.Warn("upload failed, staging file kept",
				append(b.fields(), zap.String("stage_path", b.stagePath), zap.Error(err))...)
			return err
		}
		err = errors.Join(err, fmt.Errorf("failed to reopen staging file: %w", reopenErr))
	}

	s.opts.logger.Error("upload failed, staging file dropped", append(b.fields(), zap.Error(err))...)
	return errors.Join(err, s.reset(b))
}

// Discard closes the open blob without uploading and deletes the staging file
func (s *Session) Discard() error {
	b := s.cur
	if b == nil {
		return ErrNoBlobOpen
	}

	var closeErr error
	if b.file != nil {
		closeErr = b.file.Close()
		b.file = nil
	}

	s.opts.logger.Info("blob discarded", b.fields()...)
	return errors.Join(closeErr, s.reset(b))
}

// reset removes the staging file and returns the session to idle
func (s *Session) reset(b *binding) error {
	s.cur = nil
	if b.stagePath == "" {
		return nil
	}
	if err := os.Remove(b.stagePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete staging file: %w", err)
	}
	return nil
}
