package usecase

import (
	"context"
	"fmt"
	"time"

	"adreport/internal/aggregate"
	"adreport/internal/domain"
	"adreport/internal/ranking"
	"adreport/pkg/logger"
	"adreport/pkg/metrics"
)

// Options tunes the fan-out of one aggregation.
type Options struct {
	FetchConcurrency int
	AdapterTimeout   time.Duration
	Location         *time.Location
	Now              func() time.Time
}

func (o Options) withDefaults() Options {
	if o.FetchConcurrency < 1 {
		o.FetchConcurrency = 1
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// RealtimeService fetches live data from the ad platforms and the conversion
// log and folds it into snapshots and ad rankings.
type RealtimeService struct {
	settings    domain.SettingsProvider
	sources     []domain.DeliverySource
	conversions domain.ConversionSource
	cache       domain.SnapshotCache
	logger      *logger.Logger
	metrics     *metrics.Metrics
	opts        Options
}

func NewRealtimeService(
	settings domain.SettingsProvider,
	sources []domain.DeliverySource,
	conversions domain.ConversionSource,
	cache domain.SnapshotCache,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	opts Options,
) *RealtimeService {
	return &RealtimeService{
		settings:    settings,
		sources:     sources,
		conversions: conversions,
		cache:       cache,
		logger:      logger,
		metrics:     metrics,
		opts:        opts.withDefaults(),
	}
}

// Today returns the current calendar date in the reporting timezone.
func (s *RealtimeService) Today() time.Time {
	return domain.TruncateDay(s.opts.Now().In(s.opts.Location))
}

// localDay keeps the calendar date of t and moves it to the reporting timezone.
func (s *RealtimeService) localDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.opts.Location)
}

// ComputeRealtime aggregates every account of the project for one date.
// Failed fetches contribute nothing and are listed in the snapshot warnings.
func (s *RealtimeService) ComputeRealtime(ctx context.Context, projectID string, date time.Time) (*domain.Snapshot, error) {
	start := time.Now()
	s.metrics.IncAggregationsInFlight()
	defer s.metrics.DecAggregationsInFlight()

	date = s.localDay(date)
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"project_id": projectID,
		"date":       domain.DateKey(date),
	})

	settings, err := s.settings.ProjectSettings(ctx, projectID)
	if err != nil {
		s.metrics.RecordAggregation("realtime", "failed", time.Since(start))
		return nil, fmt.Errorf("failed to load project settings: %w", err)
	}

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, projectID, date)
		if err != nil {
			log.WithError(err).Warn("Snapshot cache lookup failed")
		}
		s.metrics.RecordCacheLookup(ok)
		if ok {
			s.metrics.RecordAggregation("realtime", "cached", time.Since(start))
			return cached, nil
		}
	}

	tasks := s.campaignTasks(settings, date)
	results := fanOut(ctx, s.opts.FetchConcurrency, s.opts.AdapterTimeout, tasks)

	agg := aggregate.New(settings, date)
	var warnings []string
	for _, res := range results {
		if res.err != nil {
			if w := s.reportFailure(ctx, res.platform, res.account, res.err, false); w != "" {
				warnings = append(warnings, w)
			}
			continue
		}
		agg.AddAll(res.rows)
		s.metrics.RecordAttributed(string(res.platform), len(res.rows))
	}

	stats := agg.Stats()
	s.metrics.RecordAttributionMisses(string(domain.LevelSection), stats.SectionMisses)
	s.metrics.RecordAttributionMisses(string(domain.LevelPlatform), stats.PlatformMisses)

	result := agg.Result()
	snapshot := &domain.Snapshot{
		ProjectID:         projectID,
		Date:              date,
		Project:           result.Project,
		Sections:          result.Sections,
		Platforms:         result.Platforms,
		SectionBreakdown:  result.SectionBreakdown,
		PlatformBreakdown: result.PlatformBreakdown,
		PlatformDetails:   result.PlatformDetails,
		Warnings:          warnings,
		ComputedAt:        s.opts.Now(),
	}

	// Only complete snapshots are cached.
	if s.cache != nil && len(warnings) == 0 {
		if err := s.cache.Set(ctx, snapshot); err != nil {
			log.WithError(err).Warn("Failed to cache snapshot")
		}
	}

	status := "success"
	if len(warnings) > 0 {
		status = "partial"
	}
	s.metrics.RecordAggregation("realtime", status, time.Since(start))
	log.WithFields(map[string]any{
		"records":         stats.Records,
		"section_misses":  stats.SectionMisses,
		"platform_misses": stats.PlatformMisses,
		"warnings":        len(warnings),
		"duration":        time.Since(start).String(),
	}).Info("Computed realtime snapshot")

	return snapshot, nil
}

func (s *RealtimeService) campaignTasks(settings *domain.ProjectSettings, date time.Time) []fetchTask[domain.IntermediateRecord] {
	r := domain.SingleDay(date)
	var tasks []fetchTask[domain.IntermediateRecord]
	for _, src := range s.sources {
		for _, account := range settings.AccountsFor(src.Platform()) {
			tasks = append(tasks, fetchTask[domain.IntermediateRecord]{
				platform: src.Platform(),
				account:  account,
				fetch: func(ctx context.Context) ([]domain.IntermediateRecord, error) {
					return src.FetchCampaigns(ctx, account, r)
				},
			})
		}
	}
	if s.conversions != nil && settings.ConversionAdvertiserID != "" {
		advertiser := settings.ConversionAdvertiserID
		tasks = append(tasks, fetchTask[domain.IntermediateRecord]{
			platform: domain.PlatformConversionLog,
			account:  advertiser,
			fetch: func(ctx context.Context) ([]domain.IntermediateRecord, error) {
				return s.conversions.FetchEvents(ctx, advertiser, date)
			},
		})
	}
	return tasks
}

// RankingResult is the leaderboard of one project and range.
type RankingResult struct {
	ProjectID  string              `json:"project_id"`
	From       string              `json:"from"`
	To         string              `json:"to"`
	View       ranking.View        `json:"view"`
	Sort       ranking.SortKey     `json:"sort"`
	Entries    []ranking.Entry     `json:"entries,omitempty"`
	Partitions []ranking.Partition `json:"partitions,omitempty"`
	Warnings   []string            `json:"warnings,omitempty"`
}

// BuildAdRanking fetches ad-level rows of every linked account and ranks them.
// Every failure, including a platform without credentials, becomes a warning.
func (s *RealtimeService) BuildAdRanking(ctx context.Context, projectID string, r domain.DateRange, view ranking.View, key ranking.SortKey, partition bool) (*RankingResult, error) {
	if !r.Valid() {
		return nil, domain.ErrInvalidDateRange
	}
	start := time.Now()
	s.metrics.IncAggregationsInFlight()
	defer s.metrics.DecAggregationsInFlight()

	settings, err := s.settings.ProjectSettings(ctx, projectID)
	if err != nil {
		s.metrics.RecordAggregation("ranking", "failed", time.Since(start))
		return nil, fmt.Errorf("failed to load project settings: %w", err)
	}

	var tasks []fetchTask[domain.AdRankingRow]
	for _, src := range s.sources {
		for _, account := range settings.AccountsFor(src.Platform()) {
			tasks = append(tasks, fetchTask[domain.AdRankingRow]{
				platform: src.Platform(),
				account:  account,
				fetch: func(ctx context.Context) ([]domain.AdRankingRow, error) {
					return src.FetchAds(ctx, account, r)
				},
			})
		}
	}

	var rows []domain.AdRankingRow
	var warnings []string
	for _, res := range fanOut(ctx, s.opts.FetchConcurrency, s.opts.AdapterTimeout, tasks) {
		if res.err != nil {
			warnings = append(warnings, s.reportFailure(ctx, res.platform, res.account, res.err, true))
			continue
		}
		rows = append(rows, res.rows...)
	}

	out := &RankingResult{
		ProjectID: projectID,
		From:      domain.DateKey(r.From),
		To:        domain.DateKey(r.To),
		View:      view,
		Sort:      key,
		Warnings:  warnings,
	}
	if partition {
		out.Partitions = ranking.BuildPartitioned(rows, view, key)
	} else {
		out.Entries = ranking.Build(rows, view, key)
	}

	status := "success"
	if len(warnings) > 0 {
		status = "partial"
	}
	s.metrics.RecordAggregation("ranking", status, time.Since(start))
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"project_id": projectID,
		"ads":        len(rows),
		"warnings":   len(warnings),
		"duration":   time.Since(start).String(),
	}).Info("Built ad ranking")

	return out, nil
}

// reportFailure logs and counts a failed fetch and returns its warning text.
// In bulk contexts an unconfigured platform is silent and yields no warning.
func (s *RealtimeService) reportFailure(ctx context.Context, platform domain.Platform, account string, err error, onDemand bool) string {
	reason := failureReason(err)
	s.metrics.RecordSourceFailure(string(platform), reason)

	entry := s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
		"platform": platform,
		"account":  account,
	})
	if reason == "skipped" && !onDemand {
		entry.Debug("Platform not configured, skipping")
		return ""
	}
	entry.Warn("Platform fetch failed")
	return fmt.Sprintf("%s account %s: %v", platform, account, err)
}
