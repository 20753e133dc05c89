package blobfile

import (
	"errors"

	"github.com/vcscsvcscs/azblobfile/internal/azure"
)

var (
	// ErrNoBlobOpen is returned by Read, Write, Close and Discard on an idle session
	ErrNoBlobOpen = errors.New("no blob open")
	// ErrNotWritable is returned by Write when the open mode does not allow writing
	ErrNotWritable = errors.New("file is not writable")
	// ErrNotReadable is returned by Read when the staged handle is write-only
	ErrNotReadable = errors.New("file is not readable")
	// ErrInvalidMode is returned for unknown mode tokens or values
	ErrInvalidMode = errors.New("invalid mode")
	// ErrPayloadKind is returned when a payload does not match the direct append mode
	ErrPayloadKind = errors.New("payload kind does not match mode")
	// ErrBlobExists is returned by Open in write mode under OverwriteFail
	ErrBlobExists = errors.New("blob already exists")
	// ErrBlobNotFound matches every error caused by a missing blob or container
	ErrBlobNotFound = azure.ErrBlobNotFound
)
