// Package aggregate folds classified records into project, section and
// platform totals.
package aggregate

import (
	"time"

	"github.com/shopspring/decimal"

	"adreport/internal/attribution"
	"adreport/internal/domain"
)

// bucket accumulates totals; spend is summed exactly and only converted on output.
type bucket struct {
	spend  decimal.Decimal
	totals domain.Totals
}

func (b *bucket) add(spend float64, t domain.Totals) {
	b.spend = b.spend.Add(decimal.NewFromFloat(spend))
	t.Spend = 0
	b.totals = b.totals.Add(t)
}

func (b *bucket) result() domain.Totals {
	t := b.totals
	t.Spend = b.spend.InexactFloat64()
	return t
}

// Stats counts attribution misses while folding.
type Stats struct {
	Records        int
	SectionMisses  int
	PlatformMisses int
}

// Aggregator folds the records of one project and date. It is not safe for concurrent use.
type Aggregator struct {
	settings  *domain.ProjectSettings
	resolver  *attribution.Resolver
	date      time.Time
	project   bucket
	sections  map[string]*bucket
	platforms map[string]*bucket
	adhoc     []domain.PlatformMapping
	stats     Stats
}

func New(settings *domain.ProjectSettings, date time.Time) *Aggregator {
	if settings == nil {
		settings = &domain.ProjectSettings{}
	}
	return &Aggregator{
		settings:  settings,
		resolver:  attribution.NewResolver(settings),
		date:      domain.TruncateDay(date),
		sections:  make(map[string]*bucket),
		platforms: make(map[string]*bucket),
	}
}

// Contribution returns what a single record adds to every total it reaches.
func Contribution(rec domain.IntermediateRecord) domain.Totals {
	if rec.IsConversionLog() {
		switch rec.Kind {
		case domain.EventConversion:
			return domain.Totals{MspCV: 1}
		case domain.EventClick:
			return domain.Totals{MCV: 1}
		}
		return domain.Totals{}
	}

	var cv float64
	if rec.MediaCV != nil {
		cv = *rec.MediaCV
	}
	return domain.Totals{
		Spend:       rec.Spend,
		Impressions: rec.Impressions,
		Clicks:      rec.Clicks,
		ActualCV:    cv,
		PlatformCV:  cv,
	}
}

// Add folds one record. The project total always receives it; section and
// platform totals only when attribution resolves them.
func (a *Aggregator) Add(rec domain.IntermediateRecord) attribution.Resolution {
	contrib := Contribution(rec)
	a.stats.Records++
	a.project.add(contrib.Spend, contrib)

	res := a.resolver.Resolve(rec)
	if res.Section == nil {
		a.stats.SectionMisses++
		return res
	}
	a.bucketFor(a.sections, res.Section.ID).add(contrib.Spend, contrib)

	if res.Platform == nil {
		a.stats.PlatformMisses++
		return res
	}
	if _, known := a.settings.PlatformByID(res.Platform.PlatformID); !known {
		if _, seen := a.platforms[res.Platform.PlatformID]; !seen {
			a.adhoc = append(a.adhoc, *res.Platform)
		}
	}
	a.bucketFor(a.platforms, res.Platform.PlatformID).add(contrib.Spend, contrib)
	return res
}

// AddAll folds every record in order.
func (a *Aggregator) AddAll(records []domain.IntermediateRecord) {
	for _, rec := range records {
		a.Add(rec)
	}
}

func (a *Aggregator) Stats() Stats {
	return a.stats
}

func (a *Aggregator) bucketFor(m map[string]*bucket, key string) *bucket {
	b, ok := m[key]
	if !ok {
		b = &bucket{}
		m[key] = b
	}
	return b
}

// Result is the per-level output of one aggregation.
type Result struct {
	Project           domain.DailyMetricRow
	Sections          []domain.EntityRow
	Platforms         []domain.EntityRow
	SectionBreakdown  []domain.BreakdownRow
	PlatformBreakdown []domain.BreakdownRow
	PlatformDetails   []domain.DetailedPlatformMetrics
}

// Result emits rows for every configured section and platform in settings
// order, followed by platforms only known through conversion-log links.
func (a *Aggregator) Result() Result {
	out := Result{Project: domain.NewDailyMetricRow(a.date, a.project.result())}

	for _, section := range a.settings.Sections {
		var t domain.Totals
		if b, ok := a.sections[section.ID]; ok {
			t = b.result()
		}
		out.Sections = append(out.Sections, domain.EntityRow{
			EntityID: section.ID,
			Label:    section.Label,
			Row:      domain.NewDailyMetricRow(a.date, t),
		})
		out.SectionBreakdown = append(out.SectionBreakdown, domain.BreakdownFromTotals(section.ID, section.Label, t))
	}

	mappings := append(append([]domain.PlatformMapping{}, a.settings.Platforms...), a.adhoc...)
	for _, m := range mappings {
		var t domain.Totals
		if b, ok := a.platforms[m.PlatformID]; ok {
			t = b.result()
		}
		label := m.Label
		if label == "" {
			label = m.PlatformID
			m.Label = label
		}
		out.Platforms = append(out.Platforms, domain.EntityRow{
			EntityID: m.PlatformID,
			Label:    label,
			Row:      domain.NewDailyMetricRow(a.date, t),
		})
		out.PlatformBreakdown = append(out.PlatformBreakdown, domain.BreakdownFromTotals(m.PlatformID, label, t))
		out.PlatformDetails = append(out.PlatformDetails, domain.NewDetailedPlatformMetrics(m, t))
	}
	return out
}

// RollupByPlatformType re-aggregates platform details by platform type across
// sections, recomputing ratios from the summed raw counters.
func RollupByPlatformType(details []domain.DetailedPlatformMetrics) []domain.PlatformTypeMetrics {
	byType := make(map[domain.Platform]domain.Totals)
	var order []domain.Platform
	for _, d := range details {
		if d.PlatformType == "" {
			continue
		}
		if _, ok := byType[d.PlatformType]; !ok {
			order = append(order, d.PlatformType)
		}
		byType[d.PlatformType] = byType[d.PlatformType].Add(d.Totals)
	}

	out := make([]domain.PlatformTypeMetrics, 0, len(order))
	for _, p := range order {
		t := byType[p]
		out = append(out, domain.PlatformTypeMetrics{PlatformType: p, Totals: t, Ratios: t.Ratios()})
	}
	return out
}
