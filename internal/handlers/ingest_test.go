package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zolsal/price-service/internal/chains"
	"github.com/zolsal/price-service/internal/importer"
	"github.com/zolsal/price-service/internal/types"
)

// fakeIngestor implements Ingestor. Executed runs are delivered on a channel
// so tests can wait for the async goroutine.
type fakeIngestor struct {
	run        *types.ImportRun
	beginErr   error
	beginCalls int
	lastSlugs  []chains.Slug
	executed   chan *types.ImportRun
}

func newFakeIngestor() *fakeIngestor {
	return &fakeIngestor{
		run:      &types.ImportRun{RunID: "run_test123", Status: types.RunStatusRunning},
		executed: make(chan *types.ImportRun, 1),
	}
}

func (f *fakeIngestor) BeginRun(_ context.Context, slugs []chains.Slug) (*types.ImportRun, error) {
	f.beginCalls++
	f.lastSlugs = slugs
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return f.run, nil
}

func (f *fakeIngestor) ExecuteRun(_ context.Context, run *types.ImportRun) (*importer.Result, error) {
	f.executed <- run
	return &importer.Result{RunID: run.RunID}, nil
}

func ingestRouter(f *fakeIngestor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewIngestHandler(f)
	router.POST("/internal/admin/ingest", h.TriggerIngest)
	router.POST("/internal/admin/ingest/:chain", h.TriggerIngestChain)
	return router
}

func waitForRun(t *testing.T, f *fakeIngestor) *types.ImportRun {
	t.Helper()
	select {
	case run := <-f.executed:
		return run
	case <-time.After(2 * time.Second):
		t.Fatal("ingestion goroutine never ran")
		return nil
	}
}

func TestTriggerIngestEndpoint(t *testing.T) {
	f := newFakeIngestor()
	router := ingestRouter(f)

	req, err := http.NewRequest("POST", "/internal/admin/ingest", nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp IngestStartedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "run_test123", resp.RunID)
	assert.Equal(t, "started", resp.Status)
	assert.Equal(t, "/internal/ingestion/runs/run_test123", resp.PollURL)

	assert.Nil(t, f.lastSlugs, "a full run should not restrict the chain set")

	run := waitForRun(t, f)
	assert.Equal(t, "run_test123", run.RunID)
}

func TestTriggerIngestChainEndpoint(t *testing.T) {
	f := newFakeIngestor()
	router := ingestRouter(f)

	req, err := http.NewRequest("POST", "/internal/admin/ingest/victory", nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []chains.Slug{chains.Victory}, f.lastSlugs)

	waitForRun(t, f)
}

func TestTriggerIngestChainRejectsUnknown(t *testing.T) {
	f := newFakeIngestor()
	router := ingestRouter(f)

	req, err := http.NewRequest("POST", "/internal/admin/ingest/walmart", nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_chain", errorCode(t, w.Body.Bytes()))
	assert.Zero(t, f.beginCalls, "no run record should be created for an unknown chain")
}

func TestTriggerIngestRunRecordFailure(t *testing.T) {
	f := newFakeIngestor()
	f.beginErr = errors.New("insert failed")
	router := ingestRouter(f)

	req, err := http.NewRequest("POST", "/internal/admin/ingest", nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "run_not_created", errorCode(t, w.Body.Bytes()))

	// BeginRun failed before the goroutine was spawned.
	select {
	case <-f.executed:
		t.Fatal("feed work must not start when the run record insert fails")
	default:
	}
}
