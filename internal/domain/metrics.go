package domain

import (
	"encoding/json"
	"time"
)

const DateLayout = "2006-01-02"

// Level identifies the hierarchy level a row or series belongs to.
type Level string

const (
	LevelProject  Level = "project"
	LevelSection  Level = "section"
	LevelPlatform Level = "platform"
)

// Totals holds the additive counters every derived metric is computed from.
type Totals struct {
	Spend       float64 `json:"spend"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	MspCV       float64 `json:"msp_cv"`
	ActualCV    float64 `json:"actual_cv"`
	MCV         float64 `json:"m_cv"`
	PlatformCV  float64 `json:"platform_cv"`
}

// Add returns the field-wise sum of t and o.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		Spend:       t.Spend + o.Spend,
		Impressions: t.Impressions + o.Impressions,
		Clicks:      t.Clicks + o.Clicks,
		MspCV:       t.MspCV + o.MspCV,
		ActualCV:    t.ActualCV + o.ActualCV,
		MCV:         t.MCV + o.MCV,
		PlatformCV:  t.PlatformCV + o.PlatformCV,
	}
}

// IsZero reports whether no counter has been touched.
func (t Totals) IsZero() bool {
	return t == Totals{}
}

// Ratios are the derived metrics of a Totals value. A zero denominator yields 0.
type Ratios struct {
	CPA  float64 `json:"cpa"`
	CPC  float64 `json:"cpc"`
	CTR  float64 `json:"ctr"`
	CVR  float64 `json:"cvr"`
	MCvr float64 `json:"m_cvr"`
	MCpa float64 `json:"m_cpa"`
	CPM  float64 `json:"cpm"`
}

// Ratios computes the derived metrics with division by zero protection
func (t Totals) Ratios() Ratios {
	var r Ratios
	clicks := float64(t.Clicks)
	impressions := float64(t.Impressions)

	if t.MspCV > 0 {
		r.CPA = t.Spend / t.MspCV
	}
	if clicks > 0 {
		r.CPC = t.Spend / clicks
		r.CVR = t.MspCV / clicks
		r.MCvr = t.MCV / clicks
	}
	if impressions > 0 {
		r.CTR = clicks / impressions
		r.CPM = t.Spend / impressions * 1000
	}
	if t.MCV > 0 {
		r.MCpa = t.Spend / t.MCV
	}
	return r
}

// DailyMetricRow is one date of totals. Ratios are never stored; they are
// computed from Totals whenever the row is read or serialized.
type DailyMetricRow struct {
	Date   time.Time
	Totals Totals
	// PerformanceFee is nil when no source reported it.
	PerformanceFee *float64
	// Merged marks a row produced by the realtime merge.
	Merged bool
}

// NewDailyMetricRow builds an unmerged row for date.
func NewDailyMetricRow(date time.Time, totals Totals) DailyMetricRow {
	return DailyMetricRow{Date: TruncateDay(date), Totals: totals}
}

func (r DailyMetricRow) Ratios() Ratios {
	return r.Totals.Ratios()
}

type dailyMetricRowJSON struct {
	Date string `json:"date"`
	Totals
	Ratios
	PerformanceFee *float64 `json:"performance_fee"`
	Merged         bool     `json:"merged,omitempty"`
}

func (r DailyMetricRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(dailyMetricRowJSON{
		Date:           DateKey(r.Date),
		Totals:         r.Totals,
		Ratios:         r.Totals.Ratios(),
		PerformanceFee: r.PerformanceFee,
		Merged:         r.Merged,
	})
}

// UnmarshalJSON restores the totals; serialized ratios are ignored and recomputed on read.
func (r *DailyMetricRow) UnmarshalJSON(data []byte) error {
	var raw dailyMetricRowJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	date, err := time.Parse(DateLayout, raw.Date)
	if err != nil {
		return err
	}
	*r = DailyMetricRow{
		Date:           date,
		Totals:         raw.Totals,
		PerformanceFee: raw.PerformanceFee,
		Merged:         raw.Merged,
	}
	return nil
}

// EntitySeries is the daily series of one project, section or platform.
type EntitySeries struct {
	EntityID string           `json:"entity_id"`
	Label    string           `json:"label"`
	Rows     []DailyMetricRow `json:"rows"`
}

// EntityRow is a single-date row for one entity.
type EntityRow struct {
	EntityID string         `json:"entity_id"`
	Label    string         `json:"label"`
	Row      DailyMetricRow `json:"row"`
}

// BreakdownRow carries the reportable metrics of one entity over a date range.
type BreakdownRow struct {
	EntityID string  `json:"entity_id"`
	Label    string  `json:"label"`
	Spend    float64 `json:"spend"`
	MspCV    float64 `json:"msp_cv"`
	ActualCV float64 `json:"actual_cv"`
}

// Add sums the metrics of o into a copy of b, keeping b's identity.
func (b BreakdownRow) Add(o BreakdownRow) BreakdownRow {
	b.Spend += o.Spend
	b.MspCV += o.MspCV
	b.ActualCV += o.ActualCV
	return b
}

// BreakdownFromTotals projects totals onto the reportable metrics.
func BreakdownFromTotals(entityID, label string, t Totals) BreakdownRow {
	return BreakdownRow{
		EntityID: entityID,
		Label:    label,
		Spend:    t.Spend,
		MspCV:    t.MspCV,
		ActualCV: t.ActualCV,
	}
}

// TrendPoint is one dated point of a trend series.
type TrendPoint struct {
	Date     time.Time `json:"-"`
	Spend    float64   `json:"spend"`
	MspCV    float64   `json:"msp_cv"`
	ActualCV float64   `json:"actual_cv"`
}

func (p TrendPoint) MarshalJSON() ([]byte, error) {
	type point TrendPoint
	return json.Marshal(struct {
		Date string `json:"date"`
		point
	}{Date: DateKey(p.Date), point: point(p)})
}

// Add sums the metrics of o into a copy of p, keeping p's date.
func (p TrendPoint) Add(o TrendPoint) TrendPoint {
	p.Spend += o.Spend
	p.MspCV += o.MspCV
	p.ActualCV += o.ActualCV
	return p
}

// TrendSeries is the ordered point list of one entity.
type TrendSeries struct {
	EntityID string       `json:"entity_id"`
	Label    string       `json:"label"`
	Points   []TrendPoint `json:"points"`
}

// DetailedPlatformMetrics is the per-platform view of a snapshot. Raw clicks and
// impressions stay in Totals so higher-level groupings can re-aggregate them.
type DetailedPlatformMetrics struct {
	PlatformID   string   `json:"platform_id"`
	Label        string   `json:"label"`
	PlatformType Platform `json:"platform_type"`
	SectionID    string   `json:"section_id"`
	Totals       Totals   `json:"totals"`
	CVR          float64  `json:"cvr"`
	CPC          float64  `json:"cpc"`
	MCvr         float64  `json:"m_cvr"`
	MCpa         float64  `json:"m_cpa"`
}

// NewDetailedPlatformMetrics derives the per-platform ratios from the platform's own totals.
func NewDetailedPlatformMetrics(m PlatformMapping, t Totals) DetailedPlatformMetrics {
	r := t.Ratios()
	return DetailedPlatformMetrics{
		PlatformID:   m.PlatformID,
		Label:        m.Label,
		PlatformType: m.PlatformType,
		SectionID:    m.SectionID,
		Totals:       t,
		CVR:          r.CVR,
		CPC:          r.CPC,
		MCvr:         r.MCvr,
		MCpa:         r.MCpa,
	}
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	From time.Time
	To   time.Time
}

// SingleDay returns the range covering only date.
func SingleDay(date time.Time) DateRange {
	d := TruncateDay(date)
	return DateRange{From: d, To: d}
}

// Contains reports whether the calendar date of t falls in the range.
func (r DateRange) Contains(t time.Time) bool {
	key := DateKey(t)
	return key >= DateKey(r.From) && key <= DateKey(r.To)
}

func (r DateRange) Valid() bool {
	return !TruncateDay(r.To).Before(TruncateDay(r.From))
}

// DateKey formats the calendar date of t.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// TruncateDay drops the time of day while keeping t's location.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
