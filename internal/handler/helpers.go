package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vcscsvcscs/azblobfile/pkg/blobfile"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details,omitempty"`
}

// stringPtr creates a pointer to a string
func stringPtr(s string) *string {
	return &s
}

// blobParam returns the catch-all blob name without its leading slash
func blobParam(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("blob"), "/")
}

// blobPath returns the container and blob named in the path, writing a 400 when the
// blob name is empty
func blobPath(c *gin.Context) (string, string, bool) {
	blobName := blobParam(c)
	if blobName == "" {
		respondValidationError(c, "Missing blob name", "the path must name a blob after the container")
		return "", "", false
	}
	return c.Param("container"), blobName, true
}

// statusFor maps session and backend errors to an HTTP status and error code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, blobfile.ErrBlobNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, blobfile.ErrBlobExists):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, blobfile.ErrInvalidMode), errors.Is(err, blobfile.ErrPayloadKind):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// respondError logs err, attaches server errors to the context and writes the error body
func respondError(c *gin.Context, logger *zap.Logger, err error, message string) {
	status, code := statusFor(err)

	fields := []zap.Field{
		zap.Error(err),
		zap.String("container", c.Param("container")),
		zap.String("blob", blobParam(c)),
		zap.Int("status", status),
	}
	if status >= http.StatusInternalServerError {
		logger.Error(message, fields...)
		_ = c.Error(err)
	} else {
		logger.Warn(message, fields...)
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: message,
		Details: stringPtr(err.Error()),
	})
}

// respondValidationError writes a 400 for a malformed request
func respondValidationError(c *gin.Context, message string, details string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: stringPtr(details),
	})
}
