package infrastructure

import (
	"context"
	"sort"
	"sync"

	"adreport/internal/domain"
	"adreport/pkg/logger"
)

type storedSeries struct {
	label string
	rows  map[string]domain.DailyMetricRow
}

// MetricsRepository is an in-memory domain.HistoricalStore, used when no
// ClickHouse DSN is configured and in tests.
type MetricsRepository struct {
	// project -> level -> entity
	data   map[string]map[domain.Level]map[string]*storedSeries
	order  map[string]map[domain.Level][]string
	mutex  sync.RWMutex
	logger *logger.Logger
}

// creates a new metrics repository
func NewMetricsRepository(logger *logger.Logger) *MetricsRepository {
	return &MetricsRepository{
		data:   make(map[string]map[domain.Level]map[string]*storedSeries),
		order:  make(map[string]map[domain.Level][]string),
		logger: logger,
	}
}

// Store upserts rows; a row replaces any stored row of the same entity and date.
func (r *MetricsRepository) Store(ctx context.Context, projectID string, level domain.Level, rows []domain.EntityRow) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.data[projectID] == nil {
		r.data[projectID] = make(map[domain.Level]map[string]*storedSeries)
		r.order[projectID] = make(map[domain.Level][]string)
	}
	if r.data[projectID][level] == nil {
		r.data[projectID][level] = make(map[string]*storedSeries)
	}
	entities := r.data[projectID][level]

	for _, row := range rows {
		s, ok := entities[row.EntityID]
		if !ok {
			s = &storedSeries{rows: make(map[string]domain.DailyMetricRow)}
			entities[row.EntityID] = s
			r.order[projectID][level] = append(r.order[projectID][level], row.EntityID)
		}
		s.label = row.Label
		s.rows[domain.DateKey(row.Row.Date)] = row.Row
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"project_id": projectID,
		"level":      level,
		"count":      len(rows),
	}).Debug("Stored daily metrics in memory")
	return nil
}

// DailyRows returns, per entity in insertion order, the rows inside r sorted by date.
// Entities without rows in the range are omitted.
func (r *MetricsRepository) DailyRows(ctx context.Context, projectID string, level domain.Level, dr domain.DateRange) ([]domain.EntitySeries, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entities := r.data[projectID][level]
	var out []domain.EntitySeries
	for _, id := range r.order[projectID][level] {
		s := entities[id]
		var rows []domain.DailyMetricRow
		for key, row := range s.rows {
			if key >= domain.DateKey(dr.From) && key <= domain.DateKey(dr.To) {
				rows = append(rows, row)
			}
		}
		if len(rows) == 0 {
			continue
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
		out = append(out, domain.EntitySeries{EntityID: id, Label: s.label, Rows: rows})
	}
	return out, nil
}

func (r *MetricsRepository) Breakdowns(ctx context.Context, projectID string, level domain.Level, dr domain.DateRange) ([]domain.BreakdownRow, error) {
	series, err := r.DailyRows(ctx, projectID, level, dr)
	if err != nil {
		return nil, err
	}
	return breakdownsFromSeries(series), nil
}

func (r *MetricsRepository) Trends(ctx context.Context, projectID string, level domain.Level, dr domain.DateRange) ([]domain.TrendSeries, error) {
	series, err := r.DailyRows(ctx, projectID, level, dr)
	if err != nil {
		return nil, err
	}
	return trendsFromSeries(series), nil
}

func breakdownsFromSeries(series []domain.EntitySeries) []domain.BreakdownRow {
	out := make([]domain.BreakdownRow, 0, len(series))
	for _, s := range series {
		var t domain.Totals
		for _, row := range s.Rows {
			t = t.Add(row.Totals)
		}
		out = append(out, domain.BreakdownFromTotals(s.EntityID, s.Label, t))
	}
	return out
}

func trendsFromSeries(series []domain.EntitySeries) []domain.TrendSeries {
	out := make([]domain.TrendSeries, 0, len(series))
	for _, s := range series {
		ts := domain.TrendSeries{EntityID: s.EntityID, Label: s.Label}
		for _, row := range s.Rows {
			ts.Points = append(ts.Points, domain.TrendPoint{
				Date:     row.Date,
				Spend:    row.Totals.Spend,
				MspCV:    row.Totals.MspCV,
				ActualCV: row.Totals.ActualCV,
			})
		}
		out = append(out, ts)
	}
	return out
}
