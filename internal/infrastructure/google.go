package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"adreport/internal/domain"
	"adreport/pkg/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleAdsScope   = "https://www.googleapis.com/auth/adwords"
	googleMaxPages   = 200
	googleMicrosUnit = 1_000_000
)

// GoogleSource queries the Google Ads search endpoint with GAQL.
type GoogleSource struct {
	api *APIClient
	cfg config.GoogleConfig
}

// NewGoogleSource wires an OAuth2 refresh-token flow under the API client.
// A nil tokenSource builds one from the configured client credentials.
func NewGoogleSource(api *APIClient, cfg config.GoogleConfig, tokenSource oauth2.TokenSource) *GoogleSource {
	if tokenSource == nil && cfg.RefreshToken != "" {
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{googleAdsScope},
			Endpoint:     google.Endpoint,
		}
		tokenSource = oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.RefreshToken})
	}
	if tokenSource != nil {
		api = api.WithHTTPClient(&http.Client{
			Timeout: api.client.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.ReuseTokenSource(nil, tokenSource),
				Base:   api.client.Transport,
			},
		})
	}
	return &GoogleSource{api: api, cfg: cfg}
}

func (s *GoogleSource) Platform() domain.Platform { return domain.PlatformGoogle }

type googleSearchRequest struct {
	Query     string `json:"query"`
	PageToken string `json:"pageToken,omitempty"`
}

type googleRow struct {
	Campaign struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"campaign"`
	AdGroupAd struct {
		Ad struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			VideoAd struct {
				Video struct {
					ID string `json:"id"`
				} `json:"video"`
			} `json:"videoAd"`
		} `json:"ad"`
	} `json:"adGroupAd"`
	Metrics struct {
		CostMicros  flexFloat  `json:"costMicros"`
		Impressions flexInt    `json:"impressions"`
		Clicks      flexInt    `json:"clicks"`
		Conversions *flexFloat `json:"conversions"`
	} `json:"metrics"`
}

type googleSearchResponse struct {
	Results       []googleRow `json:"results"`
	NextPageToken string      `json:"nextPageToken"`
}

func (r googleRow) spend() float64 {
	return r.Metrics.CostMicros.Float() / googleMicrosUnit
}

func (s *GoogleSource) FetchCampaigns(ctx context.Context, accountID string, r domain.DateRange) ([]domain.IntermediateRecord, error) {
	query := fmt.Sprintf(
		"SELECT campaign.id, campaign.name, metrics.cost_micros, metrics.impressions, metrics.clicks, metrics.conversions "+
			"FROM campaign WHERE segments.date BETWEEN '%s' AND '%s'",
		domain.DateKey(r.From), domain.DateKey(r.To))

	rows, err := s.search(ctx, accountID, query)
	if err != nil {
		return nil, err
	}

	records := make([]domain.IntermediateRecord, 0, len(rows))
	for _, row := range positiveSpend(rows, googleRow.spend) {
		records = append(records, domain.IntermediateRecord{
			Platform:    domain.PlatformGoogle,
			AccountID:   accountID,
			Name:        row.Campaign.Name,
			Spend:       row.spend(),
			Impressions: row.Metrics.Impressions.Int(),
			Clicks:      row.Metrics.Clicks.Int(),
			MediaCV:     optFloat(row.Metrics.Conversions),
		})
	}
	return records, nil
}

func (s *GoogleSource) FetchAds(ctx context.Context, accountID string, r domain.DateRange) ([]domain.AdRankingRow, error) {
	query := fmt.Sprintf(
		"SELECT ad_group_ad.ad.id, ad_group_ad.ad.name, ad_group_ad.ad.video_ad.video.id, campaign.id, campaign.name, "+
			"metrics.cost_micros, metrics.conversions "+
			"FROM ad_group_ad WHERE segments.date BETWEEN '%s' AND '%s'",
		domain.DateKey(r.From), domain.DateKey(r.To))

	rows, err := s.search(ctx, accountID, query)
	if err != nil {
		return nil, err
	}

	out := make([]domain.AdRankingRow, 0, len(rows))
	for _, row := range positiveSpend(rows, googleRow.spend) {
		ad := domain.AdRankingRow{
			Platform:     domain.PlatformGoogle,
			AccountID:    accountID,
			AdID:         row.AdGroupAd.Ad.ID,
			AdName:       row.AdGroupAd.Ad.Name,
			CampaignID:   row.Campaign.ID,
			CampaignName: row.Campaign.Name,
			Spend:        row.spend(),
			MediaCV:      optFloat(row.Metrics.Conversions),
		}
		if videoID := row.AdGroupAd.Ad.VideoAd.Video.ID; videoID != "" {
			ad.VideoURL = "https://www.youtube.com/watch?v=" + videoID
		}
		out = append(out, ad)
	}
	return out, nil
}

func (s *GoogleSource) search(ctx context.Context, accountID, query string) ([]googleRow, error) {
	if s.cfg.DeveloperToken == "" {
		return nil, &domain.CredentialError{Platform: domain.PlatformGoogle, Field: "developer token"}
	}
	if s.cfg.RefreshToken == "" {
		return nil, &domain.CredentialError{Platform: domain.PlatformGoogle, Field: "refresh token"}
	}

	header := http.Header{}
	header.Set("developer-token", s.cfg.DeveloperToken)
	if s.cfg.LoginCustomerID != "" {
		header.Set("login-customer-id", strings.ReplaceAll(s.cfg.LoginCustomerID, "-", ""))
	}
	customerID := strings.ReplaceAll(accountID, "-", "")
	endpoint := fmt.Sprintf("%s/customers/%s/googleAds:search", strings.TrimRight(s.cfg.BaseURL, "/"), customerID)

	var rows []googleRow
	req := googleSearchRequest{Query: query}
	for page := 0; ; page++ {
		if page >= googleMaxPages {
			return nil, &domain.APIError{Platform: domain.PlatformGoogle, Message: "pagination did not terminate"}
		}
		var resp googleSearchResponse
		if err := s.api.PostJSON(ctx, endpoint, header, req, &resp); err != nil {
			return nil, fmt.Errorf("google search for %s: %w", accountID, err)
		}
		rows = append(rows, resp.Results...)
		if resp.NextPageToken == "" {
			return rows, nil
		}
		req.PageToken = resp.NextPageToken
	}
}
