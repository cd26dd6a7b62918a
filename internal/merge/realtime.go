// Package merge combines batch-computed history with a freshly computed
// realtime snapshot. Every function returns new slices and leaves its inputs
// untouched, so callers can always merge again from the unmerged history.
package merge

import (
	"sort"
	"time"

	"adreport/internal/domain"
)

// DailyMetrics merges today's realtime row into a historical series. With no
// realtime row the history is returned sorted by date. A series that already
// holds a merged row is refused with domain.ErrAlreadyMerged.
func DailyMetrics(base []domain.DailyMetricRow, today *domain.DailyMetricRow, date time.Time) ([]domain.DailyMetricRow, error) {
	out := make([]domain.DailyMetricRow, 0, len(base)+1)
	if today == nil {
		out = append(out, base...)
		sortRows(out)
		return out, nil
	}

	key := domain.DateKey(date)
	merged := domain.DailyMetricRow{
		Date:           domain.TruncateDay(date),
		Totals:         today.Totals,
		PerformanceFee: today.PerformanceFee,
		Merged:         true,
	}
	for _, row := range base {
		if row.Merged {
			return nil, domain.ErrAlreadyMerged
		}
		if domain.DateKey(row.Date) == key {
			merged.Totals = row.Totals.Add(merged.Totals)
			merged.PerformanceFee = addNullable(row.PerformanceFee, merged.PerformanceFee)
			continue
		}
		out = append(out, row)
	}
	out = append(out, merged)
	sortRows(out)
	return out, nil
}

// EntitySeries merges per-entity realtime rows into per-entity histories.
// Entities without history get a new single-row series appended.
func EntitySeries(base []domain.EntitySeries, today []domain.EntityRow, date time.Time) ([]domain.EntitySeries, error) {
	byID := make(map[string]domain.EntityRow, len(today))
	for _, r := range today {
		byID[r.EntityID] = r
	}

	out := make([]domain.EntitySeries, 0, len(base)+len(today))
	seen := make(map[string]bool, len(base))
	for _, s := range base {
		seen[s.EntityID] = true
		var todayRow *domain.DailyMetricRow
		if r, ok := byID[s.EntityID]; ok {
			todayRow = &r.Row
		}
		rows, err := DailyMetrics(s.Rows, todayRow, date)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.EntitySeries{EntityID: s.EntityID, Label: s.Label, Rows: rows})
	}
	for _, r := range today {
		if seen[r.EntityID] {
			continue
		}
		row := r.Row
		rows, err := DailyMetrics(nil, &row, date)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.EntitySeries{EntityID: r.EntityID, Label: r.Label, Rows: rows})
	}
	return out, nil
}

// Breakdowns adds realtime breakdown rows to historical rows keyed by entity id.
// base must be unmerged history: rows carry no merged marker, so passing an
// earlier result back in counts today twice.
func Breakdowns(base, today []domain.BreakdownRow) []domain.BreakdownRow {
	out := make([]domain.BreakdownRow, len(base), len(base)+len(today))
	copy(out, base)

	index := make(map[string]int, len(out))
	for i, row := range out {
		index[row.EntityID] = i
	}
	for _, row := range today {
		if i, ok := index[row.EntityID]; ok {
			out[i] = out[i].Add(row)
			continue
		}
		index[row.EntityID] = len(out)
		out = append(out, row)
	}
	return out
}

// Trends merges realtime points into trend series. Only the point dated date
// is touched in a matching series; unknown entities are appended. Like
// Breakdowns, base must be unmerged history.
func Trends(base, today []domain.TrendSeries, date time.Time) []domain.TrendSeries {
	key := domain.DateKey(date)
	out := make([]domain.TrendSeries, 0, len(base)+len(today))
	index := make(map[string]int, len(base))
	for _, s := range base {
		index[s.EntityID] = len(out)
		out = append(out, domain.TrendSeries{
			EntityID: s.EntityID,
			Label:    s.Label,
			Points:   append([]domain.TrendPoint(nil), s.Points...),
		})
	}

	for _, rt := range today {
		point, ok := pointAt(rt.Points, key)
		if !ok {
			continue
		}
		point.Date = domain.TruncateDay(date)

		i, exists := index[rt.EntityID]
		if !exists {
			index[rt.EntityID] = len(out)
			out = append(out, domain.TrendSeries{EntityID: rt.EntityID, Label: rt.Label, Points: []domain.TrendPoint{point}})
			continue
		}

		series := &out[i]
		points := series.Points[:0]
		for _, p := range series.Points {
			if domain.DateKey(p.Date) == key {
				point = p.Add(point)
				point.Date = domain.TruncateDay(date)
				continue
			}
			points = append(points, p)
		}
		series.Points = append(points, point)
		sort.SliceStable(series.Points, func(a, b int) bool {
			return series.Points[a].Date.Before(series.Points[b].Date)
		})
	}
	return out
}

// TrendsFromBreakdown turns single-date breakdown rows into one-point trend series.
func TrendsFromBreakdown(rows []domain.BreakdownRow, date time.Time) []domain.TrendSeries {
	out := make([]domain.TrendSeries, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.TrendSeries{
			EntityID: r.EntityID,
			Label:    r.Label,
			Points: []domain.TrendPoint{{
				Date:     domain.TruncateDay(date),
				Spend:    r.Spend,
				MspCV:    r.MspCV,
				ActualCV: r.ActualCV,
			}},
		})
	}
	return out
}

func pointAt(points []domain.TrendPoint, key string) (domain.TrendPoint, bool) {
	for _, p := range points {
		if domain.DateKey(p.Date) == key {
			return p, true
		}
	}
	return domain.TrendPoint{}, false
}

// addNullable is nil only when both sides are nil.
func addNullable(a, b *float64) *float64 {
	if a == nil && b == nil {
		return nil
	}
	var sum float64
	if a != nil {
		sum += *a
	}
	if b != nil {
		sum += *b
	}
	return &sum
}

func sortRows(rows []domain.DailyMetricRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Date.Before(rows[j].Date)
	})
}
