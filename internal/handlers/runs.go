package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zolsal/price-service/internal/store"
	"github.com/zolsal/price-service/internal/types"
)

// RunStore is the slice of the store the run-status endpoints use.
type RunStore interface {
	RecentImportRuns(ctx context.Context, limit int) ([]types.ImportRun, error)
	GetImportRun(ctx context.Context, runID string) (*types.ImportRun, error)
}

// ListRunsResponse represents the response for listing ingestion runs
type ListRunsResponse struct {
	Runs  []types.ImportRun `json:"runs"`
	Total int               `json:"total"`
}

// RunsHandler serves ingestion run records for polling and ops.
type RunsHandler struct {
	store RunStore
}

// NewRunsHandler creates a runs handler around the store.
func NewRunsHandler(store RunStore) *RunsHandler {
	return &RunsHandler{store: store}
}

// ListRuns returns recent ingestion runs, newest first
// @Summary List ingestion runs
// @Tags ingestion
// @Produce json
// @Security InternalKey
// @Param limit query int false "Number of runs to return" default(20) minimum(1) maximum(100)
// @Success 200 {object} ListRunsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /internal/ingestion/runs [get]
func (h *RunsHandler) ListRuns(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			abortError(c, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, 100)
	}

	runs, err := h.store.RecentImportRuns(c.Request.Context(), limit)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "lookup_failed", "failed to list runs")
		return
	}

	c.JSON(http.StatusOK, ListRunsResponse{Runs: runs, Total: len(runs)})
}

// GetRun returns a single ingestion run by its id
// @Summary Get ingestion run
// @Tags ingestion
// @Produce json
// @Security InternalKey
// @Param runId path string true "Run ID"
// @Success 200 {object} types.ImportRun
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /internal/ingestion/runs/{runId} [get]
func (h *RunsHandler) GetRun(c *gin.Context) {
	run, err := h.store.GetImportRun(c.Request.Context(), c.Param("runId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			abortError(c, http.StatusNotFound, "run_not_found", "no such ingestion run")
			return
		}
		abortError(c, http.StatusInternalServerError, "lookup_failed", "failed to load run")
		return
	}

	c.JSON(http.StatusOK, run)
}
