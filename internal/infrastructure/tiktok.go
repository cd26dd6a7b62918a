package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"adreport/internal/domain"
	"adreport/pkg/config"
	"adreport/pkg/logger"

	"github.com/samber/lo"
)

const (
	tiktokPageSize    = 1000
	tiktokLookupChunk = 100
	tiktokVideoChunk  = 60
	tiktokMaxPages    = 200
)

// TikTokSource reads integrated reports from the TikTok Business API.
type TikTokSource struct {
	api               *APIClient
	cfg               config.TikTokConfig
	lookupConcurrency int
	logger            *logger.Logger
}

func NewTikTokSource(api *APIClient, cfg config.TikTokConfig, lookupConcurrency int, logger *logger.Logger) *TikTokSource {
	return &TikTokSource{api: api, cfg: cfg, lookupConcurrency: lookupConcurrency, logger: logger}
}

func (s *TikTokSource) Platform() domain.Platform { return domain.PlatformTikTok }

// every TikTok response wraps its payload in the same envelope
type tiktokEnvelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type tiktokReportRow struct {
	Dimensions struct {
		CampaignID string `json:"campaign_id"`
		AdID       string `json:"ad_id"`
	} `json:"dimensions"`
	Metrics struct {
		CampaignName string     `json:"campaign_name"`
		AdName       string     `json:"ad_name"`
		CampaignID   string     `json:"campaign_id"`
		Spend        flexFloat  `json:"spend"`
		Impressions  flexInt    `json:"impressions"`
		Clicks       flexInt    `json:"clicks"`
		Conversion   *flexFloat `json:"conversion"`
	} `json:"metrics"`
}

type tiktokReportData struct {
	List     []tiktokReportRow `json:"list"`
	PageInfo struct {
		Page      int `json:"page"`
		TotalPage int `json:"total_page"`
	} `json:"page_info"`
}

type tiktokAdData struct {
	List []struct {
		AdID    string `json:"ad_id"`
		VideoID string `json:"video_id"`
	} `json:"list"`
}

type tiktokVideoData struct {
	List []struct {
		VideoID    string `json:"video_id"`
		PreviewURL string `json:"preview_url"`
	} `json:"list"`
}

func (s *TikTokSource) FetchCampaigns(ctx context.Context, accountID string, r domain.DateRange) ([]domain.IntermediateRecord, error) {
	rows, err := s.report(ctx, accountID, "AUCTION_CAMPAIGN", "campaign_id",
		[]string{"campaign_name", "spend", "impressions", "clicks", "conversion"}, r)
	if err != nil {
		return nil, err
	}

	records := make([]domain.IntermediateRecord, 0, len(rows))
	for _, row := range positiveSpend(rows, func(t tiktokReportRow) float64 { return t.Metrics.Spend.Float() }) {
		records = append(records, domain.IntermediateRecord{
			Platform:    domain.PlatformTikTok,
			AccountID:   accountID,
			Name:        row.Metrics.CampaignName,
			Spend:       row.Metrics.Spend.Float(),
			Impressions: row.Metrics.Impressions.Int(),
			Clicks:      row.Metrics.Clicks.Int(),
			MediaCV:     optFloat(row.Metrics.Conversion),
		})
	}
	return records, nil
}

func (s *TikTokSource) FetchAds(ctx context.Context, accountID string, r domain.DateRange) ([]domain.AdRankingRow, error) {
	rows, err := s.report(ctx, accountID, "AUCTION_AD", "ad_id",
		[]string{"ad_name", "campaign_id", "campaign_name", "spend", "conversion"}, r)
	if err != nil {
		return nil, err
	}
	rows = positiveSpend(rows, func(t tiktokReportRow) float64 { return t.Metrics.Spend.Float() })

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.Dimensions.AdID)
	}
	previews, err := lookupInChunks(ctx, ids, tiktokLookupChunk, s.lookupConcurrency,
		func(ctx context.Context, chunk []string) (map[string]string, error) {
			return s.previewURLs(ctx, accountID, chunk)
		})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("account_id", accountID).Warn("TikTok ad metadata lookup failed")
	}

	out := make([]domain.AdRankingRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.AdRankingRow{
			Platform:     domain.PlatformTikTok,
			AccountID:    accountID,
			AdID:         row.Dimensions.AdID,
			AdName:       row.Metrics.AdName,
			CampaignID:   row.Metrics.CampaignID,
			CampaignName: row.Metrics.CampaignName,
			Spend:        row.Metrics.Spend.Float(),
			MediaCV:      optFloat(row.Metrics.Conversion),
			VideoURL:     previews[row.Dimensions.AdID],
		})
	}
	return out, nil
}

// report pages through the integrated report until total_page is reached.
func (s *TikTokSource) report(ctx context.Context, accountID, dataLevel, dimension string, metrics []string, r domain.DateRange) ([]tiktokReportRow, error) {
	if s.cfg.AccessToken == "" {
		return nil, &domain.CredentialError{Platform: domain.PlatformTikTok, Field: "access token"}
	}

	var rows []tiktokReportRow
	for page := 1; ; page++ {
		if page > tiktokMaxPages {
			return nil, &domain.APIError{Platform: domain.PlatformTikTok, Message: "pagination did not terminate"}
		}

		q := url.Values{}
		q.Set("advertiser_id", accountID)
		q.Set("report_type", "BASIC")
		q.Set("data_level", dataLevel)
		q.Set("dimensions", jsonList(dimension))
		q.Set("metrics", jsonList(metrics...))
		q.Set("start_date", domain.DateKey(r.From))
		q.Set("end_date", domain.DateKey(r.To))
		q.Set("page", fmt.Sprint(page))
		q.Set("page_size", fmt.Sprint(tiktokPageSize))

		var resp tiktokEnvelope[tiktokReportData]
		if err := s.get(ctx, "/report/integrated/get/", q, &resp); err != nil {
			return nil, fmt.Errorf("tiktok report for %s: %w", accountID, err)
		}
		rows = append(rows, resp.Data.List...)

		if page >= resp.Data.PageInfo.TotalPage {
			return rows, nil
		}
	}
}

// previewURLs resolves ad ids to video preview URLs in two steps: ad to video id, video id to URL.
func (s *TikTokSource) previewURLs(ctx context.Context, accountID string, adIDs []string) (map[string]string, error) {
	filtering, err := json.Marshal(map[string][]string{"ad_ids": adIDs})
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("advertiser_id", accountID)
	q.Set("filtering", string(filtering))
	q.Set("fields", jsonList("ad_id", "video_id"))
	q.Set("page_size", fmt.Sprint(tiktokLookupChunk))

	var ads tiktokEnvelope[tiktokAdData]
	if err := s.get(ctx, "/ad/get/", q, &ads); err != nil {
		return nil, err
	}

	videoByAd := make(map[string]string, len(ads.Data.List))
	var videoIDs []string
	for _, ad := range ads.Data.List {
		if ad.VideoID != "" {
			videoByAd[ad.AdID] = ad.VideoID
			videoIDs = append(videoIDs, ad.VideoID)
		}
	}
	if len(videoIDs) == 0 {
		return map[string]string{}, nil
	}

	// /file/video/ad/info/ accepts fewer ids per call than /ad/get/.
	urlByVideo := make(map[string]string, len(videoIDs))
	for _, chunk := range lo.Chunk(lo.Uniq(videoIDs), tiktokVideoChunk) {
		q = url.Values{}
		q.Set("advertiser_id", accountID)
		q.Set("video_ids", jsonList(chunk...))

		var videos tiktokEnvelope[tiktokVideoData]
		if err := s.get(ctx, "/file/video/ad/info/", q, &videos); err != nil {
			return nil, err
		}
		for _, v := range videos.Data.List {
			urlByVideo[v.VideoID] = v.PreviewURL
		}
	}

	out := make(map[string]string, len(videoByAd))
	for adID, videoID := range videoByAd {
		if u := urlByVideo[videoID]; u != "" {
			out[adID] = u
		}
	}
	return out, nil
}

// envelope is satisfied by every tiktokEnvelope instantiation
type envelope interface {
	status() (int, string)
}

func (e *tiktokEnvelope[T]) status() (int, string) { return e.Code, e.Message }

func (s *TikTokSource) get(ctx context.Context, path string, q url.Values, out envelope) error {
	header := http.Header{}
	header.Set("Access-Token", s.cfg.AccessToken)

	u := strings.TrimRight(s.cfg.BaseURL, "/") + path + "?" + q.Encode()
	if err := s.api.GetJSON(ctx, u, header, out); err != nil {
		return err
	}
	if code, msg := out.status(); code != 0 {
		return &domain.APIError{
			Platform: domain.PlatformTikTok,
			Status:   http.StatusOK,
			Code:     fmt.Sprint(code),
			Message:  msg,
		}
	}
	return nil
}

func jsonList(values ...string) string {
	b, _ := json.Marshal(values)
	return string(b)
}
