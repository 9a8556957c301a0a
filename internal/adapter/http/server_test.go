package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/nyc-traffic-weather-etl/internal/adapter/http"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/domain"
	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/pipeline"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockStatus struct {
	summary *pipeline.Summary
}

func (m *mockStatus) LastSummary() (pipeline.Summary, bool) {
	if m.summary == nil {
		return pipeline.Summary{}, false
	}
	return *m.summary, true
}

func newTestServer(readyErr error, last *pipeline.Summary) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, &mockStatus{summary: last}, slog.Default())
}

func get(t *testing.T, srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(t, newTestServer(errors.New("no successful pipeline run yet"), nil), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusBeforeFirstRun(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusReportsLastRun(t *testing.T) {
	r, err := domain.ParseDateRange("2024-01-01", "2024-01-30")
	require.NoError(t, err)
	last := &pipeline.Summary{
		RunID:   "20240131_060000",
		Range:   r,
		Success: true,
		Weather: pipeline.DatasetSummary{Added: 3600, MasterTotal: 3600},
		Phases:  []pipeline.PhaseResult{{Phase: pipeline.PhaseExtraction, Status: pipeline.StatusOK}},
	}

	rec := get(t, newTestServer(nil, last), "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		RunID   string `json:"run_id"`
		Success bool   `json:"success"`
		Range   struct {
			Start string `json:"start"`
			Days  int    `json:"days"`
		} `json:"range"`
		Weather struct {
			Added int `json:"added"`
		} `json:"weather"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "20240131_060000", body.RunID)
	assert.True(t, body.Success)
	assert.Equal(t, "2024-01-01", body.Range.Start)
	assert.Equal(t, 30, body.Range.Days)
	assert.Equal(t, 3600, body.Weather.Added)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
