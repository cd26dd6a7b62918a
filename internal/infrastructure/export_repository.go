package infrastructure

import (
	"context"
	"sort"
	"sync"

	"adreport/internal/domain"
	"adreport/pkg/logger"
)

// maxExportDates bounds how many export dates are held in memory.
const maxExportDates = 31

// ExportRepository keeps published export rows in memory. It stands in for
// the Kafka publisher when no brokers are configured. A row republished for
// the same date and entity replaces the earlier one, and only the newest
// maxExportDates dates are kept.
type ExportRepository struct {
	data   map[string]*exportDate
	mutex  sync.RWMutex
	logger *logger.Logger
}

type exportDate struct {
	rows  []domain.ExportRow
	index map[string]int
}

func NewExportRepository(logger *logger.Logger) *ExportRepository {
	return &ExportRepository{
		data:   make(map[string]*exportDate),
		logger: logger,
	}
}

func (r *ExportRepository) Publish(ctx context.Context, rows []domain.ExportRow) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, row := range rows {
		dateKey := domain.DateKey(row.Row.Date)
		d, ok := r.data[dateKey]
		if !ok {
			d = &exportDate{index: make(map[string]int)}
			r.data[dateKey] = d
		}
		key := row.ProjectID + "|" + string(row.Level) + "|" + row.EntityID
		if i, ok := d.index[key]; ok {
			d.rows[i] = row
			continue
		}
		d.index[key] = len(d.rows)
		d.rows = append(d.rows, row)
	}
	evicted := r.evictOldest()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"count":   len(rows),
		"evicted": evicted,
	}).Info("Stored export rows in memory")
	return nil
}

// Rows returns a copy of the rows published for dateKey.
func (r *ExportRepository) Rows(dateKey string) []domain.ExportRow {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	d, ok := r.data[dateKey]
	if !ok {
		return nil
	}
	return append([]domain.ExportRow(nil), d.rows...)
}

func (r *ExportRepository) evictOldest() int {
	if len(r.data) <= maxExportDates {
		return 0
	}
	keys := make([]string, 0, len(r.data))
	for k := range r.data {
		keys = append(keys, k)
	}
	// date keys sort chronologically
	sort.Strings(keys)
	stale := keys[:len(keys)-maxExportDates]
	for _, k := range stale {
		delete(r.data, k)
	}
	return len(stale)
}
