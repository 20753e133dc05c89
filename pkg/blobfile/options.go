package blobfile

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// OverwritePolicy decides what opening an existing blob in write mode does
type OverwritePolicy int

const (
	// OverwriteWarn logs a warning and replaces the blob on close
	OverwriteWarn OverwritePolicy = iota
	// OverwriteFail makes Open return ErrBlobExists
	OverwriteFail
)

// ParseOverwritePolicy accepts "warn" and "fail"
func ParseOverwritePolicy(s string) (OverwritePolicy, error) {
	switch s {
	case "", "warn":
		return OverwriteWarn, nil
	case "fail":
		return OverwriteFail, nil
	}
	return 0, fmt.Errorf("unknown overwrite policy %q", s)
}

func (p OverwritePolicy) String() string {
	if p == OverwriteFail {
		return "fail"
	}
	return "warn"
}

// ClosePolicy decides what happens to the stage when the upload in Close fails
type ClosePolicy int

const (
	// CloseBestEffort always deletes the stage and resets the session
	CloseBestEffort ClosePolicy = iota
	// CloseTransactional keeps the stage and the binding until the upload succeeds
	CloseTransactional
)

// ParseClosePolicy accepts "best-effort" and "transactional"
func ParseClosePolicy(s string) (ClosePolicy, error) {
	switch s {
	case "", "best-effort":
		return CloseBestEffort, nil
	case "transactional":
		return CloseTransactional, nil
	}
	return 0, fmt.Errorf("unknown close policy %q", s)
}

func (p ClosePolicy) String() string {
	if p == CloseTransactional {
		return "transactional"
	}
	return "best-effort"
}

type options struct {
	logger                *zap.Logger
	stagingDir            string
	overwrite             OverwritePolicy
	closePolicy           ClosePolicy
	autoCreateAppendBlobs bool
}

// Option configures a Session
type Option func(*options)

// WithLogger sets the logger; sessions log nothing by default
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStagingDir sets the directory staging files are created in.
// It defaults to os.TempDir().
func WithStagingDir(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.stagingDir = dir
		}
	}
}

// WithOverwritePolicy sets the policy for write mode over an existing blob
func WithOverwritePolicy(p OverwritePolicy) Option {
	return func(o *options) { o.overwrite = p }
}

// WithClosePolicy sets the policy for failed uploads in Close
func WithClosePolicy(p ClosePolicy) Option {
	return func(o *options) { o.closePolicy = p }
}

// WithAutoCreateAppendBlobs makes Open create missing append blobs in the direct append modes
func WithAutoCreateAppendBlobs(enabled bool) Option {
	return func(o *options) { o.autoCreateAppendBlobs = enabled }
}

func defaultOptions() options {
	return options{
		logger:     zap.NewNop(),
		stagingDir: os.TempDir(),
	}
}
