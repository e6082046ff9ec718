package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/zolsal/price-service/internal/chains"
	"github.com/zolsal/price-service/internal/importer"
	"github.com/zolsal/price-service/internal/types"
)

// maxConcurrentIngestions caps the ingestion goroutines spawned by the
// admin endpoints. Feed downloads are large; two covers a full run
// overlapping with a single-chain re-run.
const maxConcurrentIngestions = 2

// Ingestor is the slice of the importer the admin endpoints use. BeginRun
// persists the run record synchronously so the 202 can carry a poll URL
// that already resolves; ExecuteRun does the feed work.
type Ingestor interface {
	BeginRun(ctx context.Context, slugs []chains.Slug) (*types.ImportRun, error)
	ExecuteRun(ctx context.Context, run *types.ImportRun) (*importer.Result, error)
}

// IngestStartedResponse represents the 202 response when ingestion is started
type IngestStartedResponse struct {
	RunID   string `json:"runId"`
	Status  string `json:"status"`
	PollURL string `json:"pollUrl"`
	Message string `json:"message,omitempty"`
}

// IngestHandler triggers ingestion runs asynchronously.
type IngestHandler struct {
	importer Ingestor
	sem      chan struct{}
}

// NewIngestHandler creates an ingest handler around the importer.
func NewIngestHandler(imp Ingestor) *IngestHandler {
	return &IngestHandler{
		importer: imp,
		sem:      make(chan struct{}, maxConcurrentIngestions),
	}
}

// TriggerIngest starts a full ingestion run over every supported chain
// @Summary Trigger full ingestion
// @Description Starts an asynchronous ingestion run over all chains and returns 202 with a poll URL
// @Tags ingestion
// @Produce json
// @Security InternalKey
// @Success 202 {object} IngestStartedResponse
// @Failure 500 {object} ErrorResponse
// @Router /internal/admin/ingest [post]
func (h *IngestHandler) TriggerIngest(c *gin.Context) {
	h.startRun(c, nil, "ingestion started for chains "+strings.Join(chains.SlugStrings(), ", "))
}

// TriggerIngestChain starts an ingestion run for a single chain
// @Summary Trigger chain ingestion
// @Description Starts an asynchronous ingestion run for one chain and returns 202 with a poll URL
// @Tags ingestion
// @Produce json
// @Security InternalKey
// @Param chain path string true "Chain slug" Enums(shufersal, victory)
// @Success 202 {object} IngestStartedResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /internal/admin/ingest/{chain} [post]
func (h *IngestHandler) TriggerIngestChain(c *gin.Context) {
	name := c.Param("chain")
	if !chains.IsValid(name) {
		abortError(c, http.StatusBadRequest, "invalid_chain", fmt.Sprintf("unsupported chain %q", name))
		return
	}

	h.startRun(c, []chains.Slug{chains.Slug(name)}, "ingestion started for chain "+name)
}

// startRun inserts the run record synchronously, then hands the feed work
// to a goroutine gated by the ingestion semaphore.
func (h *IngestHandler) startRun(c *gin.Context, slugs []chains.Slug, message string) {
	run, err := h.importer.BeginRun(c.Request.Context(), slugs)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "run_not_created", "failed to create ingestion run")
		return
	}

	go func() {
		h.sem <- struct{}{}
		defer func() { <-h.sem }()

		// The request context dies with the response; the run must not.
		if _, err := h.importer.ExecuteRun(context.Background(), run); err != nil {
			log.Error().Err(err).Str("run_id", run.RunID).Msg("Ingestion run failed")
		}
	}()

	c.JSON(http.StatusAccepted, IngestStartedResponse{
		RunID:   run.RunID,
		Status:  "started",
		PollURL: "/internal/ingestion/runs/" + run.RunID,
		Message: message,
	})
}
