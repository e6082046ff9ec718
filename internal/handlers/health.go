package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HealthHandler serves liveness probes backed by a database ping.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a health handler around the given database.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check reports service health including database connectivity
// @Summary Health check
// @Description Returns service status; 503 when the database is unreachable
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Check(c *gin.Context) {
	resp := HealthResponse{Status: "ok", Database: "connected"}
	httpStatus := http.StatusOK

	if err := h.db.Ping(c.Request.Context()); err != nil {
		resp.Status = "degraded"
		resp.Database = "disconnected"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, resp)
}
