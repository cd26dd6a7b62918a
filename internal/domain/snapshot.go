package domain

import "time"

// Snapshot is the freshly aggregated view of one project for one date.
type Snapshot struct {
	ProjectID         string                    `json:"project_id"`
	Date              time.Time                 `json:"date"`
	Project           DailyMetricRow            `json:"project"`
	Sections          []EntityRow               `json:"sections"`
	Platforms         []EntityRow               `json:"platforms"`
	SectionBreakdown  []BreakdownRow            `json:"section_breakdown"`
	PlatformBreakdown []BreakdownRow            `json:"platform_breakdown"`
	PlatformDetails   []DetailedPlatformMetrics `json:"platform_details"`
	Warnings          []string                  `json:"warnings,omitempty"`
	ComputedAt        time.Time                 `json:"computed_at"`
}

// PlatformTypeMetrics re-aggregates platform details by platform type across sections.
type PlatformTypeMetrics struct {
	PlatformType Platform `json:"platform_type"`
	Totals       Totals   `json:"totals"`
	Ratios       Ratios   `json:"ratios"`
}

// Dashboard is the merged historical + realtime view of a project.
type Dashboard struct {
	ProjectID         string                    `json:"project_id"`
	From              string                    `json:"from"`
	To                string                    `json:"to"`
	Project           EntitySeries              `json:"project"`
	Sections          []EntitySeries            `json:"sections"`
	Platforms         []EntitySeries            `json:"platforms"`
	SectionBreakdown  []BreakdownRow            `json:"section_breakdown"`
	PlatformBreakdown []BreakdownRow            `json:"platform_breakdown"`
	SectionTrends     []TrendSeries             `json:"section_trends"`
	PlatformTrends    []TrendSeries             `json:"platform_trends"`
	PlatformDetails   []DetailedPlatformMetrics `json:"platform_details,omitempty"`
	PlatformTypes     []PlatformTypeMetrics     `json:"platform_types,omitempty"`
	Realtime          bool                      `json:"realtime"`
	Warnings          []string                  `json:"warnings,omitempty"`
}

// ExportRow is one merged row published for downstream consumers.
type ExportRow struct {
	ProjectID string         `json:"project_id"`
	Level     Level          `json:"level"`
	EntityID  string         `json:"entity_id"`
	Label     string         `json:"label"`
	Row       DailyMetricRow `json:"row"`
}
