package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"adreport/internal/domain"
	"adreport/pkg/config"
	"adreport/pkg/logger"
)

const (
	linePageSize    = 100
	lineLookupChunk = 20
	lineMaxPages    = 200
)

// LineSource reads online reports from the LINE Ads API.
type LineSource struct {
	api               *APIClient
	cfg               config.LineConfig
	lookupConcurrency int
	logger            *logger.Logger
}

func NewLineSource(api *APIClient, cfg config.LineConfig, lookupConcurrency int, logger *logger.Logger) *LineSource {
	return &LineSource{api: api, cfg: cfg, lookupConcurrency: lookupConcurrency, logger: logger}
}

func (s *LineSource) Platform() domain.Platform { return domain.PlatformLine }

type lineReportRow struct {
	Campaign struct {
		ID   flexID `json:"id"`
		Name string `json:"name"`
	} `json:"campaign"`
	Ad struct {
		ID flexID `json:"id"`
	} `json:"ad"`
	Statistics struct {
		Cost  flexFloat  `json:"cost"`
		Imp   flexInt    `json:"imp"`
		Click flexInt    `json:"click"`
		CV    *flexFloat `json:"cv"`
	} `json:"statistics"`
}

type lineReportPage struct {
	Datas  []lineReportRow `json:"datas"`
	Paging struct {
		Page          int `json:"page"`
		Size          int `json:"size"`
		TotalElements int `json:"totalElements"`
	} `json:"paging"`
}

type lineAdsPage struct {
	Datas []struct {
		ID       flexID `json:"id"`
		Name     string `json:"name"`
		Creative struct {
			VideoURL string `json:"videoUrl"`
		} `json:"creative"`
	} `json:"datas"`
}

type lineAdMeta struct {
	Name     string
	VideoURL string
}

func (r lineReportRow) spend() float64 { return r.Statistics.Cost.Float() }

func (s *LineSource) FetchCampaigns(ctx context.Context, accountID string, r domain.DateRange) ([]domain.IntermediateRecord, error) {
	rows, err := s.report(ctx, accountID, "campaign", r)
	if err != nil {
		return nil, err
	}

	records := make([]domain.IntermediateRecord, 0, len(rows))
	for _, row := range positiveSpend(rows, lineReportRow.spend) {
		records = append(records, domain.IntermediateRecord{
			Platform:    domain.PlatformLine,
			AccountID:   accountID,
			Name:        row.Campaign.Name,
			Spend:       row.spend(),
			Impressions: row.Statistics.Imp.Int(),
			Clicks:      row.Statistics.Click.Int(),
			MediaCV:     optFloat(row.Statistics.CV),
		})
	}
	return records, nil
}

func (s *LineSource) FetchAds(ctx context.Context, accountID string, r domain.DateRange) ([]domain.AdRankingRow, error) {
	rows, err := s.report(ctx, accountID, "ad", r)
	if err != nil {
		return nil, err
	}
	rows = positiveSpend(rows, lineReportRow.spend)

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.Ad.ID.String())
	}
	meta, err := lookupInChunks(ctx, ids, lineLookupChunk, s.lookupConcurrency,
		func(ctx context.Context, chunk []string) (map[string]lineAdMeta, error) {
			return s.adMeta(ctx, accountID, chunk)
		})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("account_id", accountID).Warn("LINE ad name lookup failed")
	}

	out := make([]domain.AdRankingRow, 0, len(rows))
	for _, row := range rows {
		id := row.Ad.ID.String()
		m := meta[id]
		out = append(out, domain.AdRankingRow{
			Platform:     domain.PlatformLine,
			AccountID:    accountID,
			AdID:         id,
			AdName:       m.Name,
			CampaignID:   row.Campaign.ID.String(),
			CampaignName: row.Campaign.Name,
			Spend:        row.spend(),
			MediaCV:      optFloat(row.Statistics.CV),
			VideoURL:     m.VideoURL,
		})
	}
	return out, nil
}

// report pages with page/size until every element has been read.
func (s *LineSource) report(ctx context.Context, accountID, level string, r domain.DateRange) ([]lineReportRow, error) {
	if s.cfg.AccessToken == "" {
		return nil, &domain.CredentialError{Platform: domain.PlatformLine, Field: "access token"}
	}

	var rows []lineReportRow
	for page := 1; ; page++ {
		if page > lineMaxPages {
			return nil, &domain.APIError{Platform: domain.PlatformLine, Message: "pagination did not terminate"}
		}

		q := url.Values{}
		q.Set("since", domain.DateKey(r.From))
		q.Set("until", domain.DateKey(r.To))
		q.Set("page", fmt.Sprint(page))
		q.Set("size", fmt.Sprint(linePageSize))
		u := fmt.Sprintf("%s/adaccounts/%s/reports/online/%s?%s", strings.TrimRight(s.cfg.BaseURL, "/"), url.PathEscape(accountID), level, q.Encode())

		var resp lineReportPage
		if err := s.api.GetJSON(ctx, u, s.header(), &resp); err != nil {
			return nil, fmt.Errorf("line %s report for %s: %w", level, accountID, err)
		}
		rows = append(rows, resp.Datas...)

		if len(resp.Datas) == 0 || page*linePageSize >= resp.Paging.TotalElements {
			return rows, nil
		}
	}
}

func (s *LineSource) adMeta(ctx context.Context, accountID string, adIDs []string) (map[string]lineAdMeta, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(adIDs, ","))
	u := fmt.Sprintf("%s/adaccounts/%s/ads?%s", strings.TrimRight(s.cfg.BaseURL, "/"), url.PathEscape(accountID), q.Encode())

	var resp lineAdsPage
	if err := s.api.GetJSON(ctx, u, s.header(), &resp); err != nil {
		return nil, err
	}
	out := make(map[string]lineAdMeta, len(resp.Datas))
	for _, ad := range resp.Datas {
		out[ad.ID.String()] = lineAdMeta{Name: ad.Name, VideoURL: ad.Creative.VideoURL}
	}
	return out, nil
}

func (s *LineSource) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+s.cfg.AccessToken)
	return h
}
