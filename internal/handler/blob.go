package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vcscsvcscs/azblobfile/pkg/blobfile"
	"go.uber.org/zap"
)

// BlobHandler exposes blob sessions over HTTP. Every request works on its own
// session forked from base, so requests never share an open blob.
type BlobHandler struct {
	base   *blobfile.Session
	logger *zap.Logger
}

// NewBlobHandler creates a new BlobHandler
func NewBlobHandler(base *blobfile.Session, logger *zap.Logger) *BlobHandler {
	return &BlobHandler{
		base:   base,
		logger: logger,
	}
}

// RegisterRoutes mounts the blob endpoints on rg
func (h *BlobHandler) RegisterRoutes(rg *gin.RouterGroup) {
	containers := rg.Group("/containers/:container")
	containers.PUT("", h.CreateContainer)
	containers.GET("/blobs", h.ListBlobs)
	containers.GET("/blobs/*blob", h.GetBlob)
	containers.PUT("/blobs/*blob", h.PutBlob)
	containers.PATCH("/blobs/*blob", h.AppendBlob)
	containers.DELETE("/blobs/*blob", h.DeleteBlob)
	containers.POST("/append-blobs/*blob", h.CreateAppendBlob)
}

// CreateContainer creates the container named in the path
func (h *BlobHandler) CreateContainer(c *gin.Context) {
	containerName := c.Param("container")

	if err := h.base.Fork().CreateContainer(c.Request.Context(), containerName); err != nil {
		respondError(c, h.logger, err, "Failed to create container")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"container": containerName})
}

// ListBlobs returns every blob name in the container
func (h *BlobHandler) ListBlobs(c *gin.Context) {
	containerName := c.Param("container")

	names, err := h.base.Fork().ListNames(c.Request.Context(), containerName)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list blobs")
		return
	}
	if names == nil {
		names = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"container": containerName,
		"blobs":     names,
	})
}

// GetBlob streams a blob's content. Block blobs are staged with rb and served from the
// staging file; kind=append downloads an append blob directly with blobab.
func (h *BlobHandler) GetBlob(c *gin.Context) {
	ctx := c.Request.Context()
	containerName, blobName, ok := blobPath(c)
	if !ok {
		return
	}
	s := h.base.Fork()

	switch kind := c.DefaultQuery("kind", "block"); kind {
	case "block":
		f, err := s.Open(ctx, containerName, blobName, blobfile.ModeReadBinary)
		if err != nil {
			respondError(c, h.logger, err, "Failed to open blob")
			return
		}
		defer s.Close(ctx)

		info, err := f.Stat()
		if err != nil {
			respondError(c, h.logger, err, "Failed to stat staging file")
			return
		}
		c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", f, nil)

	case "append":
		if _, err := s.Open(ctx, containerName, blobName, blobfile.ModeRemoteBytes); err != nil {
			respondError(c, h.logger, err, "Failed to open append blob")
			return
		}
		defer s.Close(ctx)

		data, err := s.ReadAll(ctx)
		if err != nil {
			respondError(c, h.logger, err, "Failed to read append blob")
			return
		}
		c.Data(http.StatusOK, "application/octet-stream", data)

	default:
		respondValidationError(c, "Invalid blob kind", "kind must be block or append, got "+kind)
	}
}

// PutBlob replaces a block blob with the request body
func (h *BlobHandler) PutBlob(c *gin.Context) {
	ctx := c.Request.Context()
	containerName, blobName, ok := blobPath(c)
	if !ok {
		return
	}
	s := h.base.Fork()

	if _, err := s.Open(ctx, containerName, blobName, blobfile.ModeWriteBinary); err != nil {
		respondError(c, h.logger, err, "Failed to open blob for writing")
		return
	}

	if err := s.Write(ctx, blobfile.Stream{Reader: c.Request.Body}); err != nil {
		_ = s.Discard()
		respondError(c, h.logger, err, "Failed to write blob")
		return
	}

	if err := s.Close(ctx); err != nil {
		if s.IsOpen() {
			_ = s.Discard()
		}
		respondError(c, h.logger, err, "Failed to upload blob")
		return
	}

	h.logger.Info("blob written",
		zap.String("container", containerName),
		zap.String("blob", blobName),
	)
	c.JSON(http.StatusCreated, gin.H{
		"container": containerName,
		"blob":      blobName,
	})
}

// AppendBlob appends the request body to a blob. strategy=remote (default) appends to an
// append blob with blobas; strategy=local downloads a block blob, appends locally with ab
// and uploads it again.
func (h *BlobHandler) AppendBlob(c *gin.Context) {
	ctx := c.Request.Context()
	containerName, blobName, ok := blobPath(c)
	if !ok {
		return
	}
	s := h.base.Fork()

	var mode blobfile.Mode
	switch strategy := c.DefaultQuery("strategy", "remote"); strategy {
	case "remote":
		mode = blobfile.ModeRemoteStream
	case "local":
		mode = blobfile.ModeAppendBinary
	default:
		respondValidationError(c, "Invalid append strategy", "strategy must be remote or local, got "+strategy)
		return
	}

	if _, err := s.Open(ctx, containerName, blobName, mode); err != nil {
		respondError(c, h.logger, err, "Failed to open blob for appending")
		return
	}

	if err := s.Write(ctx, blobfile.Stream{Reader: c.Request.Body}); err != nil {
		_ = s.Discard()
		respondError(c, h.logger, err, "Failed to append to blob")
		return
	}

	if err := s.Close(ctx); err != nil {
		if s.IsOpen() {
			_ = s.Discard()
		}
		respondError(c, h.logger, err, "Failed to upload blob")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"container": containerName,
		"blob":      blobName,
		"mode":      mode.String(),
	})
}

// CreateAppendBlob creates an empty append blob
func (h *BlobHandler) CreateAppendBlob(c *gin.Context) {
	containerName, blobName, ok := blobPath(c)
	if !ok {
		return
	}

	if err := h.base.Fork().CreateAppendBlob(c.Request.Context(), containerName, blobName); err != nil {
		respondError(c, h.logger, err, "Failed to create append blob")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"container": containerName,
		"blob":      blobName,
	})
}

// DeleteBlob deletes a blob
func (h *BlobHandler) DeleteBlob(c *gin.Context) {
	containerName, blobName, ok := blobPath(c)
	if !ok {
		return
	}

	if err := h.base.Fork().DeleteBlob(c.Request.Context(), containerName, blobName); err != nil {
		respondError(c, h.logger, err, "Failed to delete blob")
		return
	}

	c.Status(http.StatusNoContent)
}
