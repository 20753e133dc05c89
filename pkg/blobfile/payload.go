package blobfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// Kind identifies the variant of a Payload
type Kind int

const (
	KindAny Kind = iota
	KindText
	KindBytes
	KindPath
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindPath:
		return "path"
	case KindStream:
		return "stream"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Payload is what gets written to or read from a blob: Text, Bytes, Path or Stream
type Payload interface {
	Kind() Kind
	isPayload()
}

// Text is a string payload
type Text string

// Bytes is a raw byte payload
type Bytes []byte

// Path names a local file whose content is the payload
type Path string

// Stream is a payload read from (or delivered as) an io.Reader
type Stream struct {
	io.Reader
}

func (Text) Kind() Kind   { return KindText }
func (Bytes) Kind() Kind  { return KindBytes }
func (Path) Kind() Kind   { return KindPath }
func (Stream) Kind() Kind { return KindStream }

func (Text) isPayload()   {}
func (Bytes) isPayload()  {}
func (Path) isPayload()   {}
func (Stream) isPayload() {}

// open returns a reader over the payload content; closeFn must be called when done
func open(p Payload) (r io.Reader, closeFn func() error, err error) {
	noop := func() error { return nil }

	switch v := p.(type) {
	case Text:
		return strings.NewReader(string(v)), noop, nil
	case Bytes:
		return bytes.NewReader(v), noop, nil
	case Path:
		f, err := os.Open(string(v))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open payload file: %w", err)
		}
		return f, f.Close, nil
	case Stream:
		if v.Reader == nil {
			return nil, nil, fmt.Errorf("%w: nil stream", ErrPayloadKind)
		}
		return v.Reader, noop, nil
	case nil:
		return nil, nil, fmt.Errorf("%w: nil payload", ErrPayloadKind)
	}
	return nil, nil, fmt.Errorf("%w: unsupported payload %T", ErrPayloadKind, p)
}

// ReadPayload returns the full content of a payload
func ReadPayload(p Payload) ([]byte, error) {
	switch v := p.(type) {
	case Text:
		return []byte(v), nil
	case Bytes:
		return []byte(v), nil
	}

	r, closeFn, err := open(p)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return data, nil
}
