package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// StatusHandler implements the health check endpoint.
type StatusHandler struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStatusHandler creates a new StatusHandler. pool may be nil when the
// service runs without persistence.
func NewStatusHandler(pool *pgxpool.Pool, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		pool:   pool,
		logger: logger,
	}
}

// GetHealth reports liveness and database connectivity
func (h *StatusHandler) GetHealth(c *gin.Context) {
	if h.pool == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"database": "disabled",
			"service":  "pillbox-adherence-backend",
			"version":  "1.0.0",
		})
		return
	}

	if err := h.pool.Ping(c.Request.Context()); err != nil {
		h.logger.Error("health check failed: database unreachable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "disconnected",
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "connected",
		"service":  "pillbox-adherence-backend",
		"version":  "1.0.0",
	})
}
