package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"adreport/internal/aggregate"
	"adreport/internal/domain"
	"adreport/internal/merge"
	"adreport/pkg/logger"
	"adreport/pkg/metrics"
)

// DashboardService serves merged historical and realtime views of a project.
type DashboardService struct {
	settings  domain.SettingsProvider
	history   domain.HistoricalStore
	realtime  *RealtimeService
	publisher domain.SnapshotPublisher
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewDashboardService(
	settings domain.SettingsProvider,
	history domain.HistoricalStore,
	realtime *RealtimeService,
	publisher domain.SnapshotPublisher,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *DashboardService {
	return &DashboardService{
		settings:  settings,
		history:   history,
		realtime:  realtime,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
	}
}

// historical is what the analytical store returns for one range.
type historical struct {
	project           []domain.EntitySeries
	sections          []domain.EntitySeries
	platforms         []domain.EntitySeries
	sectionBreakdown  []domain.BreakdownRow
	platformBreakdown []domain.BreakdownRow
	sectionTrends     []domain.TrendSeries
	platformTrends    []domain.TrendSeries
}

func (s *DashboardService) loadHistory(ctx context.Context, projectID string, r domain.DateRange) (*historical, error) {
	h := &historical{}
	g, ctx := errgroup.WithContext(ctx)

	daily := func(level domain.Level, dst *[]domain.EntitySeries) {
		g.Go(func() error {
			rows, err := s.history.DailyRows(ctx, projectID, level, r)
			if err != nil {
				return fmt.Errorf("%s daily rows: %w", level, err)
			}
			*dst = rows
			return nil
		})
	}
	breakdown := func(level domain.Level, dst *[]domain.BreakdownRow) {
		g.Go(func() error {
			rows, err := s.history.Breakdowns(ctx, projectID, level, r)
			if err != nil {
				return fmt.Errorf("%s breakdowns: %w", level, err)
			}
			*dst = rows
			return nil
		})
	}
	trends := func(level domain.Level, dst *[]domain.TrendSeries) {
		g.Go(func() error {
			rows, err := s.history.Trends(ctx, projectID, level, r)
			if err != nil {
				return fmt.Errorf("%s trends: %w", level, err)
			}
			*dst = rows
			return nil
		})
	}

	daily(domain.LevelProject, &h.project)
	daily(domain.LevelSection, &h.sections)
	daily(domain.LevelPlatform, &h.platforms)
	breakdown(domain.LevelSection, &h.sectionBreakdown)
	breakdown(domain.LevelPlatform, &h.platformBreakdown)
	trends(domain.LevelSection, &h.sectionTrends)
	trends(domain.LevelPlatform, &h.platformTrends)

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return h, nil
}

// AggregateHistoricalAndRealtime loads the batch-computed history of the range
// and, when today falls inside it, merges a freshly computed snapshot into it.
func (s *DashboardService) AggregateHistoricalAndRealtime(ctx context.Context, projectID string, r domain.DateRange) (*domain.Dashboard, error) {
	if !r.Valid() {
		return nil, domain.ErrInvalidDateRange
	}
	start := time.Now()
	r = domain.DateRange{From: s.realtime.localDay(r.From), To: s.realtime.localDay(r.To)}
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"project_id": projectID,
		"from":       domain.DateKey(r.From),
		"to":         domain.DateKey(r.To),
	})

	settings, err := s.settings.ProjectSettings(ctx, projectID)
	if err != nil {
		s.metrics.RecordAggregation("dashboard", "failed", time.Since(start))
		return nil, fmt.Errorf("failed to load project settings: %w", err)
	}

	h, err := s.loadHistory(ctx, projectID, r)
	if err != nil {
		s.metrics.RecordAggregation("dashboard", "failed", time.Since(start))
		log.WithError(err).Error("Failed to load historical metrics")
		return nil, fmt.Errorf("failed to load historical metrics: %w", err)
	}

	project := domain.EntitySeries{EntityID: projectID, Label: settings.Name}
	if len(h.project) > 0 {
		project = h.project[0]
	}

	dashboard := &domain.Dashboard{
		ProjectID:         projectID,
		From:              domain.DateKey(r.From),
		To:                domain.DateKey(r.To),
		Project:           project,
		Sections:          h.sections,
		Platforms:         h.platforms,
		SectionBreakdown:  h.sectionBreakdown,
		PlatformBreakdown: h.platformBreakdown,
		SectionTrends:     h.sectionTrends,
		PlatformTrends:    h.platformTrends,
	}

	today := s.realtime.Today()
	if r.Contains(today) {
		snapshot, err := s.realtime.ComputeRealtime(ctx, projectID, today)
		if err != nil {
			s.metrics.RecordAggregation("dashboard", "failed", time.Since(start))
			return nil, err
		}
		dashboard.Warnings = append([]string(nil), snapshot.Warnings...)

		if err := mergeSnapshot(dashboard, h, snapshot); err != nil {
			if !errors.Is(err, domain.ErrAlreadyMerged) {
				return nil, err
			}
			s.metrics.RecordMergeRejected()
			log.WithError(err).Warn("Realtime merge refused, serving history only")
			dashboard.Warnings = append(dashboard.Warnings, "realtime data not merged: "+err.Error())
		}
	}

	s.metrics.RecordAggregation("dashboard", "success", time.Since(start))
	log.WithFields(map[string]any{
		"realtime": dashboard.Realtime,
		"duration": time.Since(start).String(),
	}).Info("Built dashboard")

	return dashboard, nil
}

// mergeSnapshot folds the snapshot into d. d is left untouched on error.
func mergeSnapshot(d *domain.Dashboard, h *historical, snap *domain.Snapshot) error {
	date := snap.Date

	projectRows, err := merge.DailyMetrics(d.Project.Rows, &snap.Project, date)
	if err != nil {
		return err
	}
	sections, err := merge.EntitySeries(h.sections, snap.Sections, date)
	if err != nil {
		return err
	}
	platforms, err := merge.EntitySeries(h.platforms, snap.Platforms, date)
	if err != nil {
		return err
	}

	d.Project.Rows = projectRows
	d.Sections = sections
	d.Platforms = platforms
	d.SectionBreakdown = merge.Breakdowns(h.sectionBreakdown, snap.SectionBreakdown)
	d.PlatformBreakdown = merge.Breakdowns(h.platformBreakdown, snap.PlatformBreakdown)
	d.SectionTrends = merge.Trends(h.sectionTrends, merge.TrendsFromBreakdown(snap.SectionBreakdown, date), date)
	d.PlatformTrends = merge.Trends(h.platformTrends, merge.TrendsFromBreakdown(snap.PlatformBreakdown, date), date)
	d.PlatformDetails = snap.PlatformDetails
	d.PlatformTypes = aggregate.RollupByPlatformType(snap.PlatformDetails)
	d.Realtime = true
	return nil
}

// ExportSnapshot publishes the merged rows of one date and returns how many
// rows were sent.
func (s *DashboardService) ExportSnapshot(ctx context.Context, projectID string, date time.Time) (int, error) {
	dashboard, err := s.AggregateHistoricalAndRealtime(ctx, projectID, domain.SingleDay(date))
	if err != nil {
		s.metrics.RecordExport("failed")
		return 0, err
	}

	rows := exportRows(dashboard, domain.DateKey(date))
	if len(rows) == 0 {
		s.metrics.RecordExport("empty")
		return 0, nil
	}
	if err := s.publisher.Publish(ctx, rows); err != nil {
		s.metrics.RecordExport("failed")
		s.logger.WithContext(ctx).WithError(err).WithField("project_id", projectID).Error("Failed to publish snapshot")
		return 0, fmt.Errorf("failed to publish snapshot: %w", err)
	}

	s.metrics.RecordExport("success")
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"project_id": projectID,
		"date":       domain.DateKey(date),
		"rows":       len(rows),
	}).Info("Exported snapshot")
	return len(rows), nil
}

func exportRows(d *domain.Dashboard, key string) []domain.ExportRow {
	var out []domain.ExportRow
	add := func(level domain.Level, series []domain.EntitySeries) {
		for _, s := range series {
			for _, row := range s.Rows {
				if domain.DateKey(row.Date) != key {
					continue
				}
				out = append(out, domain.ExportRow{
					ProjectID: d.ProjectID,
					Level:     level,
					EntityID:  s.EntityID,
					Label:     s.Label,
					Row:       row,
				})
			}
		}
	}
	add(domain.LevelProject, []domain.EntitySeries{d.Project})
	add(domain.LevelSection, d.Sections)
	add(domain.LevelPlatform, d.Platforms)
	return out
}
