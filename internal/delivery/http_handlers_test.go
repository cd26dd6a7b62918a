package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"adreport/internal/domain"
	"adreport/internal/ranking"
	"adreport/internal/usecase"
	"adreport/pkg/logger"
	"adreport/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC)

type stubRealtime struct {
	lastDate      time.Time
	lastRange     domain.DateRange
	lastView      ranking.View
	lastSort      ranking.SortKey
	lastPartition bool
	err           error
}

func (s *stubRealtime) Today() time.Time { return today }

func (s *stubRealtime) ComputeRealtime(ctx context.Context, projectID string, date time.Time) (*domain.Snapshot, error) {
	s.lastDate = date
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Snapshot{ProjectID: projectID, Date: date}, nil
}

func (s *stubRealtime) BuildAdRanking(ctx context.Context, projectID string, r domain.DateRange, view ranking.View, key ranking.SortKey, partition bool) (*usecase.RankingResult, error) {
	s.lastRange, s.lastView, s.lastSort, s.lastPartition = r, view, key, partition
	if s.err != nil {
		return nil, s.err
	}
	return &usecase.RankingResult{ProjectID: projectID, View: view, Sort: key, Warnings: []string{"google account g1: boom"}}, nil
}

type stubDashboard struct {
	lastRange domain.DateRange
	err       error
}

func (s *stubDashboard) AggregateHistoricalAndRealtime(ctx context.Context, projectID string, r domain.DateRange) (*domain.Dashboard, error) {
	s.lastRange = r
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Dashboard{ProjectID: projectID, From: domain.DateKey(r.From), To: domain.DateKey(r.To)}, nil
}

func (s *stubDashboard) ExportSnapshot(ctx context.Context, projectID string, date time.Time) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return 6, nil
}

func setupRouter(rt *stubRealtime, db *stubDashboard) http.Handler {
	log := logger.Discard()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	handlers := NewHTTPHandlers(rt, db, log, "test")
	return NewHTTPRouter(handlers, log, m, reg, time.Second).SetupRoutes()
}

func doRequest(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthCheck(t *testing.T) {
	h := setupRouter(&stubRealtime{}, &stubDashboard{})

	rec, body := doRequest(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, rec.Header().Get("X-Request-ID"), body["request_id"])
}

func TestDashboardDefaultsRange(t *testing.T) {
	db := &stubDashboard{}
	h := setupRouter(&stubRealtime{}, db)

	rec, body := doRequest(t, h, http.MethodGet, "/api/v1/projects/p1/dashboard")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-04-04", domain.DateKey(db.lastRange.From))
	assert.Equal(t, "2025-05-03", domain.DateKey(db.lastRange.To))

	data := body["data"].(map[string]any)
	assert.Equal(t, "p1", data["project_id"])
}

func TestDashboardBadRequests(t *testing.T) {
	h := setupRouter(&stubRealtime{}, &stubDashboard{})

	rec, body := doRequest(t, h, http.MethodGet, "/api/v1/projects/p1/dashboard?from=05-01-2025")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid parameters", body["error"])

	rec, _ = doRequest(t, h, http.MethodGet, "/api/v1/projects/p1/dashboard?from=2025-05-03&to=2025-05-01")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.ErrProjectNotFound, http.StatusNotFound},
		{domain.ErrInvalidDateRange, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("clickhouse down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := setupRouter(&stubRealtime{}, &stubDashboard{err: tc.err})
		rec, body := doRequest(t, h, http.MethodGet, "/api/v1/projects/p1/dashboard?from=2025-05-01&to=2025-05-02")
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, tc.err.Error(), body["message"])
	}
}

func TestRealtimeDate(t *testing.T) {
	rt := &stubRealtime{}
	h := setupRouter(rt, &stubDashboard{})

	rec, _ := doRequest(t, h, http.MethodGet, "/api/v1/projects/p1/realtime")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, today, rt.lastDate)

	rec, _ = doRequest(t, h, http.MethodGet, "/api/v1/projects/p1/realtime?date=2025-05-01")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-05-01", domain.DateKey(rt.lastDate))
}

func TestRankingParameters(t *testing.T) {
	rt := &stubRealtime{}
	h := setupRouter(rt, &stubDashboard{})

	rec, body := doRequest(t, h, http.MethodGet, "/api/v1/projects/p1/ranking?from=2025-05-01&to=2025-05-03&view=intro&sort=cpa&partition=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ranking.ViewIntro, rt.lastView)
	assert.Equal(t, ranking.SortCPA, rt.lastSort)
	assert.True(t, rt.lastPartition)

	data := body["data"].(map[string]any)
	assert.Len(t, data["warnings"], 1)

	rec, _ = doRequest(t, h, http.MethodGet, "/api/v1/projects/p1/ranking?view=creative")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, h, http.MethodGet, "/api/v1/projects/p1/ranking?sort=roas")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, h, http.MethodGet, "/api/v1/projects/p1/ranking?partition=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportRun(t *testing.T) {
	h := setupRouter(&stubRealtime{}, &stubDashboard{})

	rec, body := doRequest(t, h, http.MethodPost, "/api/v1/projects/p1/export?date=2025-05-02")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(6), body["rows"])
	assert.Equal(t, "2025-05-02", body["date"])

	rec, body = doRequest(t, h, http.MethodPost, "/api/v1/projects/p1/export")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required parameter", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := setupRouter(&stubRealtime{}, &stubDashboard{})
	doRequest(t, h, http.MethodGet, "/health")

	rec, _ := doRequest(t, h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRequestIDPropagated(t *testing.T) {
	h := setupRouter(&stubRealtime{}, &stubDashboard{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), `"request_id":"req-123"`)
}
