package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"adreport/internal/domain"
	"adreport/pkg/logger"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// ClickHouseStore reads batch-computed daily metrics from ClickHouse.
type ClickHouseStore struct {
	db     *sql.DB
	table  string
	loc    *time.Location
	logger *logger.Logger
}

// NewClickHouseStore opens and pings a ClickHouse connection from a DSN.
func NewClickHouseStore(ctx context.Context, dsn, table string, loc *time.Location, logger *logger.Logger) (*ClickHouseStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid ClickHouse table name %q", table)
	}

	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse: %w", err)
	}
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	logger.WithField("table", table).Info("Connected to ClickHouse")
	return &ClickHouseStore{db: db, table: table, loc: loc, logger: logger}, nil
}

// Close releases database resources.
func (s *ClickHouseStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSchema creates the daily metrics table if it does not exist.
func (s *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s
(
  project_id       LowCardinality(String),
  level            LowCardinality(String),
  entity_id        String,
  label            String,
  date             Date,
  spend            Float64,
  impressions      Int64,
  clicks           Int64,
  msp_cv           Float64,
  actual_cv        Float64,
  m_cv             Float64,
  platform_cv      Float64,
  performance_fee  Nullable(Float64)
)
ENGINE = ReplacingMergeTree
PARTITION BY toYYYYMM(date)
ORDER BY (project_id, level, entity_id, date)`, s.table)
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *ClickHouseStore) DailyRows(ctx context.Context, projectID string, level domain.Level, r domain.DateRange) ([]domain.EntitySeries, error) {
	query := fmt.Sprintf(`
SELECT entity_id, any(label), date,
       sum(spend), sum(impressions), sum(clicks),
       sum(msp_cv), sum(actual_cv), sum(m_cv), sum(platform_cv),
       sum(performance_fee)
FROM %s
WHERE project_id = ? AND level = ? AND date BETWEEN ? AND ?
GROUP BY entity_id, date
ORDER BY entity_id, date`, s.table)

	rows, err := s.db.QueryContext(ctx, query, projectID, string(level), domain.DateKey(r.From), domain.DateKey(r.To))
	if err != nil {
		return nil, fmt.Errorf("query daily rows: %w", err)
	}
	defer rows.Close()

	var out []domain.EntitySeries
	for rows.Next() {
		var (
			entityID, label string
			date            time.Time
			t               domain.Totals
			fee             sql.NullFloat64
		)
		if err := rows.Scan(&entityID, &label, &date,
			&t.Spend, &t.Impressions, &t.Clicks,
			&t.MspCV, &t.ActualCV, &t.MCV, &t.PlatformCV, &fee); err != nil {
			return nil, fmt.Errorf("scan daily row: %w", err)
		}

		row := domain.NewDailyMetricRow(s.localDate(date), t)
		if fee.Valid {
			row.PerformanceFee = domain.Float64Ptr(fee.Float64)
		}
		if n := len(out); n == 0 || out[n-1].EntityID != entityID {
			out = append(out, domain.EntitySeries{EntityID: entityID, Label: label})
		}
		out[len(out)-1].Rows = append(out[len(out)-1].Rows, row)
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) Breakdowns(ctx context.Context, projectID string, level domain.Level, r domain.DateRange) ([]domain.BreakdownRow, error) {
	query := fmt.Sprintf(`
SELECT entity_id, any(label), sum(spend), sum(msp_cv), sum(actual_cv)
FROM %s
WHERE project_id = ? AND level = ? AND date BETWEEN ? AND ?
GROUP BY entity_id
ORDER BY entity_id`, s.table)

	rows, err := s.db.QueryContext(ctx, query, projectID, string(level), domain.DateKey(r.From), domain.DateKey(r.To))
	if err != nil {
		return nil, fmt.Errorf("query breakdowns: %w", err)
	}
	defer rows.Close()

	var out []domain.BreakdownRow
	for rows.Next() {
		var b domain.BreakdownRow
		if err := rows.Scan(&b.EntityID, &b.Label, &b.Spend, &b.MspCV, &b.ActualCV); err != nil {
			return nil, fmt.Errorf("scan breakdown: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) Trends(ctx context.Context, projectID string, level domain.Level, r domain.DateRange) ([]domain.TrendSeries, error) {
	series, err := s.DailyRows(ctx, projectID, level, r)
	if err != nil {
		return nil, err
	}
	return trendsFromSeries(series), nil
}

// localDate rebuilds a Date column value as midnight in the reporting timezone.
func (s *ClickHouseStore) localDate(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, s.loc)
}
