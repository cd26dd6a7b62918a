package domain

import "encoding/json"

// AdRankingRow is one ad of the ranking leaderboard.
type AdRankingRow struct {
	Platform     Platform `json:"platform"`
	AccountID    string   `json:"account_id"`
	AdID         string   `json:"ad_id"`
	AdName       string   `json:"ad_name"`
	CampaignID   string   `json:"campaign_id,omitempty"`
	CampaignName string   `json:"campaign_name,omitempty"`
	Spend        float64  `json:"spend"`
	MediaCV      *float64 `json:"media_cv"`
	VideoURL     string   `json:"video_url,omitempty"`
}

// CPA is spend / media conversions, nil when conversions are absent or zero.
// Unlike Ratios.CPA, the missing value is nil rather than 0 so it sorts last.
func (r AdRankingRow) CPA() *float64 {
	return RankingCPA(r.Spend, r.MediaCV)
}

// RankingCPA applies the ranking-level CPA convention.
func RankingCPA(spend float64, cv *float64) *float64 {
	if cv == nil || *cv == 0 {
		return nil
	}
	v := spend / *cv
	return &v
}

func (r AdRankingRow) MarshalJSON() ([]byte, error) {
	type row AdRankingRow
	return json.Marshal(struct {
		row
		CPA *float64 `json:"cpa"`
	}{row: row(r), CPA: r.CPA()})
}
