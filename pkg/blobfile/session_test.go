package blobfile

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcscsvcscs/azblobfile/internal/azure"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// newTestSession returns a session over an in-memory backend holding container "c1".
// Staging files go to a per-test directory returned as the third value.
func newTestSession(t *testing.T, opts ...Option) (*Session, *azure.MockBlobStorageClient, string) {
	t.Helper()

	mock := azure.NewMockBlobStorageClient(zap.NewNop(), "c1")
	dir := t.TempDir()
	opts = append([]Option{WithStagingDir(dir)}, opts...)
	return NewSession(mock, mock, opts...), mock, dir
}

func assertIdle(t *testing.T, s *Session) {
	t.Helper()

	assert.False(t, s.IsOpen())
	assert.Empty(t, s.Container())
	assert.Empty(t, s.Blob())
	assert.Equal(t, Mode(0), s.Mode())
	assert.Empty(t, s.StagePath())
}

func assertNoStage(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging directory should be empty")
}

func TestSession_WriteThenRead(t *testing.T) {
	ctx := context.Background()
	s, mock, dir := newTestSession(t)

	f, err := s.Open(ctx, "c1", "f.txt", ModeWrite)
	require.NoError(t, err)
	assert.Nil(t, f, "write mode does not hand out the handle")

	require.NoError(t, s.Write(ctx, Text("hello")))
	require.NoError(t, s.Close(ctx))

	data, ok := mock.Get("c1", "f.txt")
	require.True(t, ok)
	assert.Equal(t, "hello", string(data))

	f, err = s.Open(ctx, "c1", "f.txt", ModeRead)
	require.NoError(t, err)
	require.NotNil(t, f, "read mode hands out the staged handle")

	p, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, Text("hello"), p)

	require.NoError(t, s.Close(ctx))
	assertIdle(t, s)
	assertNoStage(t, dir)
}

func TestSession_RemoteTextAppend(t *testing.T) {
	ctx := context.Background()
	s, _, dir := newTestSession(t)

	require.NoError(t, s.CreateAppendBlob(ctx, "c1", "log"))

	mode, err := ParseMode("blobat")
	require.NoError(t, err)

	f, err := s.Open(ctx, "c1", "log", mode)
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Empty(t, s.StagePath(), "direct append modes never stage")

	require.NoError(t, s.Write(ctx, Text("line1\n")))
	require.NoError(t, s.Write(ctx, Text("line2\n")))

	p, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, Text("line1\nline2\n"), p)

	require.NoError(t, s.Close(ctx))
	assertIdle(t, s)
	assertNoStage(t, dir)
}

func TestSession_ReopenClosesPreviousBlobOnce(t *testing.T) {
	ctx := context.Background()
	s, mock, _ := newTestSession(t)

	_, err := s.Open(ctx, "c1", "first", ModeWriteBinary)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, Bytes("one")))

	_, err = s.Open(ctx, "c1", "second", ModeWriteBinary)
	require.NoError(t, err)

	assert.Len(t, mock.UploadsTo("c1", "first"), 1, "first blob uploaded exactly once")
	assert.Empty(t, mock.UploadsTo("c1", "second"), "second blob not uploaded before close")
	assert.Equal(t, "second", s.Blob())

	require.NoError(t, s.Close(ctx))
	assert.Len(t, mock.UploadsTo("c1", "first"), 1)
	assert.Len(t, mock.UploadsTo("c1", "second"), 1)
}

func TestSession_IdleAfterClose(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestSession(t)

	assertIdle(t, s)

	_, err := s.Open(ctx, "c1", "f", ModeWrite)
	require.NoError(t, err)
	stage := s.StagePath()
	require.FileExists(t, stage)
	require.NoError(t, s.Close(ctx))

	assertIdle(t, s)
	assert.NoFileExists(t, stage)

	_, err = s.Read(ctx)
	assert.ErrorIs(t, err, ErrNoBlobOpen)
	assert.ErrorIs(t, s.Write(ctx, Text("x")), ErrNoBlobOpen)
	assert.ErrorIs(t, s.Close(ctx), ErrNoBlobOpen)
	assert.ErrorIs(t, s.Discard(), ErrNoBlobOpen)
}

func TestSession_OverwriteWarns(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	s, mock, _ := newTestSession(t, WithLogger(zap.New(core)))

	mock.Put("c1", "f.txt", []byte("old content that is longer"))

	_, err := s.Open(ctx, "c1", "f.txt", ModeWrite)
	require.NoError(t, err, "overwrite is a warning, not an error")

	warnings := logs.FilterMessageSnippet("already exists").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, zapcore.WarnLevel, warnings[0].Level)
	assert.Equal(t, "f.txt", warnings[0].ContextMap()["blob"])

	require.NoError(t, s.Write(ctx, Text("new")))
	require.NoError(t, s.Close(ctx))

	data, _ := mock.Get("c1", "f.txt")
	assert.Equal(t, "new", string(data), "old content is replaced, not merged")
}

func TestSession_OverwriteFail(t *testing.T) {
	ctx := context.Background()
	s, mock, dir := newTestSession(t, WithOverwritePolicy(OverwriteFail))

	mock.Put("c1", "f.txt", []byte("old"))

	_, err := s.Open(ctx, "c1", "f.txt", ModeWrite)
	assert.ErrorIs(t, err, ErrBlobExists)
	assertIdle(t, s)
	assertNoStage(t, dir)

	_, err = s.Open(ctx, "c1", "fresh.txt", ModeWrite)
	assert.NoError(t, err)
}

func TestSession_OpenMissingBlob(t *testing.T) {
	ctx := context.Background()
	s, _, dir := newTestSession(t)

	for _, mode := range []Mode{ModeRead, ModeReadBinary, ModeAppend} {
		t.Run(mode.String(), func(t *testing.T) {
			_, err := s.Open(ctx, "c1", "missing", mode)
			assert.ErrorIs(t, err, ErrBlobNotFound)
			assertIdle(t, s)
			assertNoStage(t, dir)
		})
	}

	_, err := s.Open(ctx, "nope", "missing", ModeRead)
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestSession_InvalidMode(t *testing.T) {
	s, _, _ := newTestSession(t)

	_, err := s.Open(context.Background(), "c1", "f", Mode(42))
	assert.ErrorIs(t, err, ErrInvalidMode)
	assertIdle(t, s)
}

func TestSession_NotWritableNotReadable(t *testing.T) {
	ctx := context.Background()
	s, mock, _ := newTestSession(t)
	mock.Put("c1", "f", []byte("data"))

	_, err := s.Open(ctx, "c1", "f", ModeRead)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Write(ctx, Text("x")), ErrNotWritable)

	_, err = s.Open(ctx, "c1", "f", ModeReadUpdateBinary)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Write(ctx, Bytes("x")), ErrNotWritable)

	_, err = s.Open(ctx, "c1", "g", ModeWrite)
	require.NoError(t, err)
	_, err = s.Read(ctx)
	assert.ErrorIs(t, err, ErrNotReadable)

	_, err = s.Open(ctx, "c1", "f", ModeAppend)
	require.NoError(t, err)
	_, err = s.Read(ctx)
	assert.ErrorIs(t, err, ErrNotReadable)

	require.NoError(t, s.Discard())
}

func TestSession_LocalAppendReuploadsWholeFile(t *testing.T) {
	ctx := context.Background()
	s, mock, _ := newTestSession(t)
	mock.Put("c1", "data.csv", []byte("a,b\n"))

	f, err := s.Open(ctx, "c1", "data.csv", ModeAppend)
	require.NoError(t, err)
	assert.Nil(t, f)

	require.NoError(t, s.Write(ctx, Text("c,d\n")))
	require.NoError(t, s.Write(ctx, Stream{Reader: strings.NewReader("e,f\n")}))
	require.NoError(t, s.Close(ctx))

	data, _ := mock.Get("c1", "data.csv")
	assert.Equal(t, "a,b\nc,d\ne,f\n", string(data))

	calls := mock.UploadsTo("c1", "data.csv")
	require.Len(t, calls, 1)
	assert.Equal(t, "path", calls[0].Source)
}

func TestSession_AppendUpdateBinaryReadsBack(t *testing.T) {
	ctx := context.Background()
	s, mock, _ := newTestSession(t)
	mock.Put("c1", "b", []byte("xyz"))

	_, err := s.Open(ctx, "c1", "b", ModeAppendUpdateBinary)
	require.NoError(t, err)

	p, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, Bytes("xyz"), p)

	require.NoError(t, s.Write(ctx, Bytes("123")))
	require.NoError(t, s.Close(ctx))

	data, _ := mock.Get("c1", "b")
	assert.Equal(t, "xyz123", string(data))
}

func TestSession_ReadModeHandle(t *testing.T) {
	ctx := context.Background()
	s, mock, _ := newTestSession(t)
	mock.Put("c1", "doc.json", []byte(`{"k":1}`))

	f, err := s.Open(ctx, "c1", "doc.json", ModeReadBinary)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, f.Name(), s.StagePath())

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, `{"k":1}`, string(data))

	require.NoError(t, s.Close(ctx))
	assert.Empty(t, mock.UploadsTo("c1", "doc.json"), "read mode never uploads")
}

func TestSession_PathPayloadInStagedWrite(t *testing.T) {
	ctx := context.Background()
	s, mock, _ := newTestSession(t)

	src := filepath.Join(t.TempDir(), "src.bin")
	require.NoError(t, os.WriteFile(src, []byte{0, 1, 2, 3}, 0o600))

	_, err := s.Open(ctx, "c1", "copy.bin", ModeWriteBinary)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, Path(src)))
	require.NoError(t, s.Close(ctx))

	data, _ := mock.Get("c1", "copy.bin")
	assert.Equal(t, []byte{0, 1, 2, 3}, data)
}

func TestSession_RemotePayloadKinds(t *testing.T) {
	ctx := context.Background()
	s, _, dir := newTestSession(t)

	src := filepath.Join(t.TempDir(), "chunk")
	require.NoError(t, os.WriteFile(src, []byte("from-file;"), 0o600))

	require.NoError(t, s.CreateAppendBlob(ctx, "c1", "p"))
	_, err := s.Open(ctx, "c1", "p", ModeRemotePath)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Write(ctx, Text("wrong kind")), ErrPayloadKind)
	assert.ErrorIs(t, s.Write(ctx, nil), ErrPayloadKind)
	require.NoError(t, s.Write(ctx, Path(src)))
	require.NoError(t, s.Write(ctx, Path(src)))

	p, err := s.Read(ctx)
	require.NoError(t, err)
	target, ok := p.(Path)
	require.True(t, ok, "blobap reads into a local file")
	data, err := os.ReadFile(string(target))
	require.NoError(t, err)
	assert.Equal(t, "from-file;from-file;", string(data))
	require.NoError(t, os.Remove(string(target)))

	require.NoError(t, s.CreateAppendBlob(ctx, "c1", "s"))
	_, err = s.Open(ctx, "c1", "s", ModeRemoteStream)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Write(ctx, Stream{}), ErrPayloadKind)
	require.NoError(t, s.Write(ctx, Stream{Reader: bytes.NewReader([]byte("abc"))}))

	p, err = s.Read(ctx)
	require.NoError(t, err)
	stream, ok := p.(Stream)
	require.True(t, ok)
	data, err = io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	all, err := s.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(all))

	require.NoError(t, s.Close(ctx))
	assertNoStage(t, dir)
}

func TestSession_RemoteAppendNeedsBlob(t *testing.T) {
	ctx := context.Background()

	s, _, _ := newTestSession(t)
	_, err := s.Open(ctx, "c1", "log", ModeRemoteBytes)
	require.NoError(t, err, "open records the binding only")
	assert.ErrorIs(t, s.Write(ctx, Bytes("x")), ErrBlobNotFound)

	auto, mock, _ := newTestSession(t, WithAutoCreateAppendBlobs(true))
	_, err = auto.Open(ctx, "c1", "log", ModeRemoteBytes)
	require.NoError(t, err)
	require.NoError(t, auto.Write(ctx, Bytes("x")))

	_, err = auto.Open(ctx, "c1", "log", ModeRemoteBytes)
	require.NoError(t, err)
	require.NoError(t, auto.Write(ctx, Bytes("y")))

	data, _ := mock.Get("c1", "log")
	assert.Equal(t, "xy", string(data), "reopening must not truncate")
}

func TestSession_Discard(t *testing.T) {
	ctx := context.Background()
	s, mock, dir := newTestSession(t)
	mock.Put("c1", "f", []byte("keep"))

	_, err := s.Open(ctx, "c1", "f", ModeWrite)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, Text("drop")))
	require.NoError(t, s.Discard())

	assertIdle(t, s)
	assertNoStage(t, dir)
	assert.Empty(t, mock.UploadsTo("c1", "f"))

	data, _ := mock.Get("c1", "f")
	assert.Equal(t, "keep", string(data))
}

func TestSession_CloseBestEffort(t *testing.T) {
	ctx := context.Background()
	s, mock, dir := newTestSession(t)

	_, err := s.Open(ctx, "c1", "f", ModeWrite)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, Text("lost")))

	mock.UploadErr = errors.New("network down")
	err = s.Close(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network down")

	assertIdle(t, s)
	assertNoStage(t, dir)
	assert.ErrorIs(t, s.Close(ctx), ErrNoBlobOpen, "a failed close cannot be retried")
}

func TestSession_CloseTransactional(t *testing.T) {
	ctx := context.Background()
	s, mock, _ := newTestSession(t, WithClosePolicy(CloseTransactional))

	_, err := s.Open(ctx, "c1", "f", ModeWrite)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, Text("part1,")))

	mock.UploadErr = errors.New("network down")
	require.Error(t, s.Close(ctx))

	assert.True(t, s.IsOpen(), "binding kept for retry")
	assert.FileExists(t, s.StagePath())

	require.NoError(t, s.Write(ctx, Text("part2")))

	mock.UploadErr = nil
	require.NoError(t, s.Close(ctx))
	assertIdle(t, s)

	data, _ := mock.Get("c1", "f")
	assert.Equal(t, "part1,part2", string(data))
}

func TestSession_CloseTransactionalDiscard(t *testing.T) {
	ctx := context.Background()
	s, mock, dir := newTestSession(t, WithClosePolicy(CloseTransactional))

	_, err := s.Open(ctx, "c1", "f", ModeWrite)
	require.NoError(t, err)

	mock.UploadErr = errors.New("network down")
	require.Error(t, s.Close(ctx))

	_, err = s.Open(ctx, "c1", "g", ModeWrite)
	require.Error(t, err, "implicit close fails too, the new blob is not bound")
	assert.Equal(t, "f", s.Blob())

	require.NoError(t, s.Discard())
	assertIdle(t, s)
	assertNoStage(t, dir)
}

func TestSession_UniqueStagePaths(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestSession(t)
	other := s.Fork()

	_, err := s.Open(ctx, "c1", "same.txt", ModeWrite)
	require.NoError(t, err)
	_, err = other.Open(ctx, "c1", "same.txt", ModeWrite)
	require.NoError(t, err)

	assert.NotEqual(t, s.StagePath(), other.StagePath())
	assert.True(t, strings.HasSuffix(s.StagePath(), "-same.txt"))

	require.NoError(t, s.Discard())
	require.NoError(t, other.Discard())
}

func TestSession_NestedBlobNameStagesFlat(t *testing.T) {
	ctx := context.Background()
	s, mock, dir := newTestSession(t)

	_, err := s.Open(ctx, "c1", "reports/2024/q1.csv", ModeWrite)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(s.StagePath()))
	require.NoError(t, s.Write(ctx, Text("x")))
	require.NoError(t, s.Close(ctx))

	_, ok := mock.Get("c1", "reports/2024/q1.csv")
	assert.True(t, ok)
}
