package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"adreport/internal/domain"
	"adreport/internal/ranking"
	"adreport/internal/usecase"
	"adreport/pkg/logger"

	"github.com/gin-gonic/gin"
)

// defaultRangeDays is the dashboard window when no from date is given.
const defaultRangeDays = 30

type RealtimeUsecase interface {
	Today() time.Time
	ComputeRealtime(ctx context.Context, projectID string, date time.Time) (*domain.Snapshot, error)
	BuildAdRanking(ctx context.Context, projectID string, r domain.DateRange, view ranking.View, key ranking.SortKey, partition bool) (*usecase.RankingResult, error)
}

type DashboardUsecase interface {
	AggregateHistoricalAndRealtime(ctx context.Context, projectID string, r domain.DateRange) (*domain.Dashboard, error)
	ExportSnapshot(ctx context.Context, projectID string, date time.Time) (int, error)
}

// handles HTTP requests
type HTTPHandlers struct {
	realtime  RealtimeUsecase
	dashboard DashboardUsecase
	logger    *logger.Logger
	version   string
}

// creates new HTTP handlers
func NewHTTPHandlers(realtime RealtimeUsecase, dashboard DashboardUsecase, logger *logger.Logger, version string) *HTTPHandlers {
	return &HTTPHandlers{
		realtime:  realtime,
		dashboard: dashboard,
		logger:    logger,
		version:   version,
	}
}

// GetDashboard returns the merged historical and realtime view of a project
func (h *HTTPHandlers) GetDashboard(c *gin.Context) {
	projectID := c.Param("id")

	r, err := h.parseRange(c)
	if err != nil {
		h.badRequest(c, "Invalid parameters", err)
		return
	}

	dashboard, err := h.dashboard.AggregateHistoricalAndRealtime(c.Request.Context(), projectID, r)
	if err != nil {
		h.fail(c, "Failed to build dashboard", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       dashboard,
		"request_id": c.GetString("request_id"),
	})
}

// GetRealtime returns the realtime snapshot of one date, today by default
func (h *HTTPHandlers) GetRealtime(c *gin.Context) {
	projectID := c.Param("id")

	date, err := h.parseDate(c.Query("date"), h.realtime.Today())
	if err != nil {
		h.badRequest(c, "Invalid date format", err)
		return
	}

	snapshot, err := h.realtime.ComputeRealtime(c.Request.Context(), projectID, date)
	if err != nil {
		h.fail(c, "Failed to compute realtime snapshot", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       snapshot,
		"request_id": c.GetString("request_id"),
	})
}

// GetRanking returns the ad leaderboard of a project
func (h *HTTPHandlers) GetRanking(c *gin.Context) {
	projectID := c.Param("id")

	r, err := h.parseRange(c)
	if err != nil {
		h.badRequest(c, "Invalid parameters", err)
		return
	}
	view, err := ranking.ParseView(c.Query("view"))
	if err != nil {
		h.badRequest(c, "Invalid parameters", err)
		return
	}
	key, err := ranking.ParseSortKey(c.Query("sort"))
	if err != nil {
		h.badRequest(c, "Invalid parameters", err)
		return
	}
	partition := false
	if s := c.Query("partition"); s != "" {
		if partition, err = strconv.ParseBool(s); err != nil {
			h.badRequest(c, "Invalid parameters", fmt.Errorf("partition must be a boolean"))
			return
		}
	}

	result, err := h.realtime.BuildAdRanking(c.Request.Context(), projectID, r, view, key, partition)
	if err != nil {
		h.fail(c, "Failed to build ad ranking", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       result,
		"request_id": c.GetString("request_id"),
	})
}

// ExportRun publishes the merged rows of one date
func (h *HTTPHandlers) ExportRun(c *gin.Context) {
	projectID := c.Param("id")

	dateStr := c.Query("date")
	if dateStr == "" {
		h.badRequest(c, "Missing required parameter", errors.New("date parameter is required"))
		return
	}
	date, err := h.parseDate(dateStr, time.Time{})
	if err != nil {
		h.badRequest(c, "Invalid date format", err)
		return
	}

	n, err := h.dashboard.ExportSnapshot(c.Request.Context(), projectID, date)
	if err != nil {
		h.fail(c, "Export failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Export completed successfully",
		"date":       domain.DateKey(date),
		"rows":       n,
		"request_id": c.GetString("request_id"),
	})
}

// GetAPIInfo returns API v1 information and available endpoints
func (h *HTTPHandlers) GetAPIInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"api_version": "v1",
		"service":     "adreport",
		"version":     h.version,
		"description": "Ad platform attribution and reporting service",
		"endpoints": gin.H{
			"dashboard": gin.H{
				"path":        "/api/v1/projects/:id/dashboard",
				"method":      "GET",
				"description": "Historical metrics merged with today's realtime snapshot",
				"parameters": gin.H{
					"from": "Optional: Start date (YYYY-MM-DD), default 30 days before to",
					"to":   "Optional: End date (YYYY-MM-DD), default today",
				},
				"example": "/api/v1/projects/acme/dashboard?from=2025-05-01&to=2025-05-31",
			},
			"realtime": gin.H{
				"path":        "/api/v1/projects/:id/realtime",
				"method":      "GET",
				"description": "Live snapshot aggregated from every linked ad account",
				"parameters": gin.H{
					"date": "Optional: Date (YYYY-MM-DD), default today",
				},
				"example": "/api/v1/projects/acme/realtime",
			},
			"ranking": gin.H{
				"path":        "/api/v1/projects/:id/ranking",
				"method":      "GET",
				"description": "Ad leaderboard across platforms",
				"parameters": gin.H{
					"from":      "Optional: Start date (YYYY-MM-DD)",
					"to":        "Optional: End date (YYYY-MM-DD)",
					"view":      "Optional: ad, intro_variant, variant or intro (default ad)",
					"sort":      "Optional: spend, cv or cpa (default spend)",
					"partition": "Optional: true to rank each platform account separately",
				},
				"example": "/api/v1/projects/acme/ranking?view=variant&sort=cpa",
			},
			"export": gin.H{
				"path":        "/api/v1/projects/:id/export",
				"method":      "POST",
				"description": "Publish the merged rows of one date",
				"parameters": gin.H{
					"date": "Required: Date to export (YYYY-MM-DD format)",
				},
				"example": "/api/v1/projects/acme/export?date=2025-05-01",
			},
		},
		"request_id": c.GetString("request_id"),
	})
}

// HealthCheck returns the health status of the service
func (h *HTTPHandlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"service":    "adreport",
		"version":    h.version,
		"request_id": c.GetString("request_id"),
	})
}

// parseRange reads from/to; to defaults to today and from to the 30 days ending at to.
func (h *HTTPHandlers) parseRange(c *gin.Context) (domain.DateRange, error) {
	to, err := h.parseDate(c.Query("to"), h.realtime.Today())
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("to: %w", err)
	}
	from, err := h.parseDate(c.Query("from"), to.AddDate(0, 0, -(defaultRangeDays-1)))
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("from: %w", err)
	}
	r := domain.DateRange{From: from, To: to}
	if !r.Valid() {
		return domain.DateRange{}, domain.ErrInvalidDateRange
	}
	return r, nil
}

func (h *HTTPHandlers) parseDate(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be in YYYY-MM-DD format, got %q", s)
	}
	return d, nil
}

func (h *HTTPHandlers) badRequest(c *gin.Context, title string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":      title,
		"message":    err.Error(),
		"request_id": c.GetString("request_id"),
	})
}

// fail maps a usecase error onto a status code.
func (h *HTTPHandlers) fail(c *gin.Context, title string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrProjectNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidDateRange):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		h.logger.WithContext(c.Request.Context()).WithError(err).Error(title)
	}
	_ = c.Error(err)

	c.JSON(status, gin.H{
		"error":      title,
		"message":    err.Error(),
		"request_id": c.GetString("request_id"),
	})
}
