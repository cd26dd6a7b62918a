package domain

import (
	"context"
	"time"
)

// SettingsProvider returns the classification settings of a project.
type SettingsProvider interface {
	ProjectSettings(ctx context.Context, projectID string) (*ProjectSettings, error)
}

// HistoricalStore is the analytical query engine holding batch-computed metrics.
type HistoricalStore interface {
	DailyRows(ctx context.Context, projectID string, level Level, r DateRange) ([]EntitySeries, error)
	Breakdowns(ctx context.Context, projectID string, level Level, r DateRange) ([]BreakdownRow, error)
	Trends(ctx context.Context, projectID string, level Level, r DateRange) ([]TrendSeries, error)
}

// DeliverySource fetches performance of one ad-delivery platform.
type DeliverySource interface {
	Platform() Platform
	// FetchCampaigns returns campaign-level records with positive spend.
	FetchCampaigns(ctx context.Context, accountID string, r DateRange) ([]IntermediateRecord, error)
	// FetchAds returns ad-level ranking rows with positive spend.
	FetchAds(ctx context.Context, accountID string, r DateRange) ([]AdRankingRow, error)
}

// ConversionSource fetches conversion and click-log events of one advertiser.
type ConversionSource interface {
	FetchEvents(ctx context.Context, advertiserID string, date time.Time) ([]IntermediateRecord, error)
}

// SnapshotCache keeps recently computed realtime snapshots.
type SnapshotCache interface {
	Get(ctx context.Context, projectID string, date time.Time) (*Snapshot, bool, error)
	Set(ctx context.Context, snapshot *Snapshot) error
}

// SnapshotPublisher ships export rows to downstream consumers.
type SnapshotPublisher interface {
	Publish(ctx context.Context, rows []ExportRow) error
}
