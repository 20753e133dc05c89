package handler

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthHandler reports whether the gateway can stage blobs
type HealthHandler struct {
	stagingDir string
	logger     *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. An empty stagingDir means os.TempDir.
func NewHealthHandler(stagingDir string, logger *zap.Logger) *HealthHandler {
	if stagingDir == "" {
		stagingDir = os.TempDir()
	}
	return &HealthHandler{
		stagingDir: stagingDir,
		logger:     logger,
	}
}

// GetHealth implements the health check endpoint
func (h *HealthHandler) GetHealth(c *gin.Context) {
	// Every staged mode needs a writable staging directory
	f, err := os.CreateTemp(h.stagingDir, "health-*")
	if err != nil {
		h.logger.Error("health check failed: staging directory not writable",
			zap.Error(err),
			zap.String("staging_dir", h.stagingDir),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"staging": "unwritable",
			"error":   err.Error(),
		})
		return
	}
	f.Close()
	os.Remove(f.Name())

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"staging": "writable",
		"service": "azblobfile-gateway",
	})
}
