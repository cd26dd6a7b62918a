package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"adreport/internal/domain"
	"adreport/pkg/config"
	"adreport/pkg/logger"
)

const (
	metaPageLimit      = 500
	metaLookupChunk    = 50
	metaMaxPages       = 200
	metaVideoURLFormat = "https://www.facebook.com/watch/?v=%s"
)

// MetaSource reads campaign and ad insights from the Graph API.
type MetaSource struct {
	api               *APIClient
	cfg               config.MetaConfig
	lookupConcurrency int
	logger            *logger.Logger
}

func NewMetaSource(api *APIClient, cfg config.MetaConfig, lookupConcurrency int, logger *logger.Logger) *MetaSource {
	return &MetaSource{api: api, cfg: cfg, lookupConcurrency: lookupConcurrency, logger: logger}
}

func (s *MetaSource) Platform() domain.Platform { return domain.PlatformMeta }

type metaAction struct {
	ActionType string    `json:"action_type"`
	Value      flexFloat `json:"value"`
}

type metaInsight struct {
	CampaignID   string       `json:"campaign_id"`
	CampaignName string       `json:"campaign_name"`
	AdID         string       `json:"ad_id"`
	AdName       string       `json:"ad_name"`
	Spend        flexFloat    `json:"spend"`
	Impressions  flexInt      `json:"impressions"`
	Clicks       flexInt      `json:"clicks"`
	Actions      []metaAction `json:"actions"`
}

type metaInsightsPage struct {
	Data   []metaInsight `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

type metaCreative struct {
	Creative struct {
		VideoID string `json:"video_id"`
	} `json:"creative"`
}

func (s *MetaSource) FetchCampaigns(ctx context.Context, accountID string, r domain.DateRange) ([]domain.IntermediateRecord, error) {
	rows, err := s.insights(ctx, accountID, "campaign", "campaign_id,campaign_name,spend,impressions,clicks,actions", r)
	if err != nil {
		return nil, err
	}

	records := make([]domain.IntermediateRecord, 0, len(rows))
	for _, row := range positiveSpend(rows, func(i metaInsight) float64 { return i.Spend.Float() }) {
		records = append(records, domain.IntermediateRecord{
			Platform:    domain.PlatformMeta,
			AccountID:   accountID,
			Name:        row.CampaignName,
			Spend:       row.Spend.Float(),
			Impressions: row.Impressions.Int(),
			Clicks:      row.Clicks.Int(),
			MediaCV:     s.conversions(row.Actions),
		})
	}
	return records, nil
}

func (s *MetaSource) FetchAds(ctx context.Context, accountID string, r domain.DateRange) ([]domain.AdRankingRow, error) {
	rows, err := s.insights(ctx, accountID, "ad", "ad_id,ad_name,campaign_id,campaign_name,spend,actions", r)
	if err != nil {
		return nil, err
	}
	rows = positiveSpend(rows, func(i metaInsight) float64 { return i.Spend.Float() })

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.AdID)
	}
	videos, err := lookupInChunks(ctx, ids, metaLookupChunk, s.lookupConcurrency, s.videoIDs)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("account_id", accountID).Warn("Meta creative lookup failed")
	}

	out := make([]domain.AdRankingRow, 0, len(rows))
	for _, row := range rows {
		ad := domain.AdRankingRow{
			Platform:     domain.PlatformMeta,
			AccountID:    accountID,
			AdID:         row.AdID,
			AdName:       row.AdName,
			CampaignID:   row.CampaignID,
			CampaignName: row.CampaignName,
			Spend:        row.Spend.Float(),
			MediaCV:      s.conversions(row.Actions),
		}
		if videoID := videos[row.AdID]; videoID != "" {
			ad.VideoURL = fmt.Sprintf(metaVideoURLFormat, videoID)
		}
		out = append(out, ad)
	}
	return out, nil
}

// insights walks every page of the insights edge at the given level.
func (s *MetaSource) insights(ctx context.Context, accountID, level, fields string, r domain.DateRange) ([]metaInsight, error) {
	if s.cfg.AccessToken == "" {
		return nil, &domain.CredentialError{Platform: domain.PlatformMeta, Field: "access token"}
	}

	timeRange, err := json.Marshal(map[string]string{
		"since": domain.DateKey(r.From),
		"until": domain.DateKey(r.To),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode time range: %w", err)
	}

	q := url.Values{}
	q.Set("level", level)
	q.Set("fields", fields)
	q.Set("time_range", string(timeRange))
	q.Set("limit", fmt.Sprint(metaPageLimit))
	q.Set("access_token", s.cfg.AccessToken)
	next := fmt.Sprintf("%s/%s/insights?%s", strings.TrimRight(s.cfg.BaseURL, "/"), metaAccountPath(accountID), q.Encode())

	var rows []metaInsight
	for page := 0; next != ""; page++ {
		if page >= metaMaxPages {
			return nil, &domain.APIError{Platform: domain.PlatformMeta, Message: "pagination did not terminate"}
		}
		var resp metaInsightsPage
		if err := s.api.GetJSON(ctx, next, nil, &resp); err != nil {
			return nil, fmt.Errorf("meta insights for %s: %w", accountID, err)
		}
		rows = append(rows, resp.Data...)
		next = resp.Paging.Next
	}
	return rows, nil
}

func (s *MetaSource) videoIDs(ctx context.Context, adIDs []string) (map[string]string, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(adIDs, ","))
	q.Set("fields", "creative{video_id}")
	q.Set("access_token", s.cfg.AccessToken)

	var resp map[string]metaCreative
	if err := s.api.GetJSON(ctx, strings.TrimRight(s.cfg.BaseURL, "/")+"/?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(resp))
	for id, c := range resp {
		if c.Creative.VideoID != "" {
			out[id] = c.Creative.VideoID
		}
	}
	return out, nil
}

// conversions sums the configured action type. No actions at all means the
// platform did not report conversions.
func (s *MetaSource) conversions(actions []metaAction) *float64 {
	if actions == nil {
		return nil
	}
	var total float64
	for _, a := range actions {
		if a.ActionType == s.cfg.ConversionAction {
			total += a.Value.Float()
		}
	}
	return &total
}

func metaAccountPath(accountID string) string {
	if strings.HasPrefix(accountID, "act_") {
		return accountID
	}
	return "act_" + accountID
}
