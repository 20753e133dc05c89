package blobfile

import (
	"fmt"
	"os"
)

// Class groups modes by how a session stages the blob
type Class int

const (
	// ClassRead downloads the blob and opens the stage for reading
	ClassRead Class = iota + 1
	// ClassWrite stages a new local file and uploads it on close
	ClassWrite
	// ClassAppendLocal downloads the blob, appends locally and re-uploads on close
	ClassAppendLocal
	// ClassAppendRemote talks to the append blob service without staging
	ClassAppendRemote
)

func (c Class) String() string {
	switch c {
	case ClassRead:
		return "read"
	case ClassWrite:
		return "write"
	case ClassAppendLocal:
		return "append-local"
	case ClassAppendRemote:
		return "append-remote"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Mode selects the staging strategy of an open blob
type Mode int

const (
	ModeRead Mode = iota + 1
	ModeReadBinary
	ModeReadUpdateBinary
	ModeWrite
	ModeWriteBinary
	ModeWriteUpdateBinary
	ModeAppend
	ModeAppendBinary
	ModeAppendUpdateBinary
	ModeRemoteText
	ModeRemoteBytes
	ModeRemotePath
	ModeRemoteStream
)

var modeTokens = map[Mode]string{
	ModeRead:               "r",
	ModeReadBinary:         "rb",
	ModeReadUpdateBinary:   "r+b",
	ModeWrite:              "w",
	ModeWriteBinary:        "wb",
	ModeWriteUpdateBinary:  "w+b",
	ModeAppend:             "a",
	ModeAppendBinary:       "ab",
	ModeAppendUpdateBinary: "a+b",
	ModeRemoteText:         "blobat",
	ModeRemoteBytes:        "blobab",
	ModeRemotePath:         "blobap",
	ModeRemoteStream:       "blobas",
}

// ParseMode converts a mode token such as "rb" or "blobat" into a Mode.
// "bloba" is accepted as an alias for "blobat".
func ParseMode(token string) (Mode, error) {
	if token == "bloba" {
		return ModeRemoteText, nil
	}
	for m, t := range modeTokens {
		if t == token {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, token)
}

// String returns the mode token
func (m Mode) String() string {
	if t, ok := modeTokens[m]; ok {
		return t
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Valid reports whether m is one of the declared modes
func (m Mode) Valid() bool {
	_, ok := modeTokens[m]
	return ok
}

// Class returns the staging class of the mode
func (m Mode) Class() Class {
	switch m {
	case ModeRead, ModeReadBinary, ModeReadUpdateBinary:
		return ClassRead
	case ModeWrite, ModeWriteBinary, ModeWriteUpdateBinary:
		return ClassWrite
	case ModeAppend, ModeAppendBinary, ModeAppendUpdateBinary:
		return ClassAppendLocal
	case ModeRemoteText, ModeRemoteBytes, ModeRemotePath, ModeRemoteStream:
		return ClassAppendRemote
	}
	return 0
}

// Binary reports whether local reads return Bytes instead of Text
func (m Mode) Binary() bool {
	switch m {
	case ModeRead, ModeWrite, ModeAppend:
		return false
	}
	return true
}

// Kind returns the payload kind a direct append mode transfers.
// Locally staged modes accept any kind and report KindAny.
func (m Mode) Kind() Kind {
	switch m {
	case ModeRemoteText:
		return KindText
	case ModeRemoteBytes:
		return KindBytes
	case ModeRemotePath:
		return KindPath
	case ModeRemoteStream:
		return KindStream
	}
	return KindAny
}

// Readable reports whether Read is allowed in this mode
func (m Mode) Readable() bool {
	switch m.Class() {
	case ClassRead, ClassAppendRemote:
		return true
	case ClassWrite, ClassAppendLocal:
		return m == ModeWriteUpdateBinary || m == ModeAppendUpdateBinary
	}
	return false
}

// Writable reports whether Write is allowed in this mode
func (m Mode) Writable() bool {
	switch m.Class() {
	case ClassWrite, ClassAppendLocal, ClassAppendRemote:
		return true
	}
	return false
}

// Staged reports whether the mode keeps a local staging file
func (m Mode) Staged() bool {
	return m.Valid() && m.Class() != ClassAppendRemote
}

// openFlags returns the os.OpenFile flags for the staging file
func (m Mode) openFlags() int {
	switch m {
	case ModeRead, ModeReadBinary:
		return os.O_RDONLY
	case ModeReadUpdateBinary:
		return os.O_RDWR
	case ModeWrite, ModeWriteBinary:
		return os.O_WRONLY | os.O_CREATE | os.O_EXCL
	case ModeWriteUpdateBinary:
		return os.O_RDWR | os.O_CREATE | os.O_EXCL
	case ModeAppend, ModeAppendBinary:
		return os.O_WRONLY | os.O_APPEND
	case ModeAppendUpdateBinary:
		return os.O_RDWR | os.O_APPEND
	}
	return os.O_RDONLY
}
