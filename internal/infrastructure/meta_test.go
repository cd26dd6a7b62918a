package infrastructure

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"adreport/internal/domain"
	"adreport/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMetaServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/act_123/insights", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token", r.URL.Query().Get("access_token"))
		if r.URL.Query().Get("after") == "" {
			assert.Equal(t, `{"since":"2024-05-01","until":"2024-05-02"}`, r.URL.Query().Get("time_range"))
		}

		if r.URL.Query().Get("level") == "ad" {
			writeJSON(t, w, map[string]any{"data": []map[string]any{
				{"ad_id": "a1", "ad_name": "【A】[x] one", "campaign_id": "c1", "campaign_name": "【A】c", "spend": "300",
					"actions": []map[string]any{{"action_type": "purchase", "value": "3"}}},
				{"ad_id": "a2", "ad_name": "【A】[y] two", "spend": "50"},
				{"ad_id": "a3", "ad_name": "idle", "spend": "0"},
			}})
			return
		}

		if r.URL.Query().Get("after") == "" {
			writeJSON(t, w, map[string]any{
				"data": []map[string]any{
					{"campaign_name": "【A】first", "spend": "1,000.5", "impressions": "2000", "clicks": "40",
						"actions": []map[string]any{{"action_type": "purchase", "value": "4"}, {"action_type": "like", "value": "9"}}},
					{"campaign_name": "paused", "spend": "0", "impressions": "0", "clicks": "0"},
				},
				"paging": map[string]any{"next": srv.URL + "/act_123/insights?level=campaign&access_token=token&after=cursor"},
			})
			return
		}
		writeJSON(t, w, map[string]any{
			"data": []map[string]any{
				{"campaign_name": "【B】second", "spend": 20, "impressions": 100, "clicks": 2},
			},
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		out := map[string]any{}
		for _, id := range ids {
			if id == "a1" {
				out[id] = map[string]any{"creative": map[string]any{"video_id": "v1"}}
			} else {
				out[id] = map[string]any{"creative": map[string]any{}}
			}
		}
		writeJSON(t, w, out)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newMetaSource(baseURL, token string) *MetaSource {
	log, _ := testDeps()
	cfg := config.MetaConfig{BaseURL: baseURL, AccessToken: token, ConversionAction: "purchase"}
	return NewMetaSource(newTestAPIClient(domain.PlatformMeta), cfg, 2, log)
}

func TestMetaFetchCampaignsFollowsPaging(t *testing.T) {
	srv := newMetaServer(t)
	src := newMetaSource(srv.URL, "token")

	records, err := src.FetchCampaigns(context.Background(), "123", rangeOf("2024-05-01", "2024-05-02"))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "【A】first", records[0].Name)
	assert.Equal(t, 1000.5, records[0].Spend)
	assert.Equal(t, int64(2000), records[0].Impressions)
	assert.Equal(t, int64(40), records[0].Clicks)
	require.NotNil(t, records[0].MediaCV)
	assert.Equal(t, 4.0, *records[0].MediaCV)
	assert.Equal(t, domain.PlatformMeta, records[0].Platform)
	assert.Equal(t, "123", records[0].AccountID)

	assert.Equal(t, "【B】second", records[1].Name)
	assert.Nil(t, records[1].MediaCV)
}

func TestMetaFetchAdsResolvesVideos(t *testing.T) {
	srv := newMetaServer(t)
	src := newMetaSource(srv.URL, "token")

	ads, err := src.FetchAds(context.Background(), "act_123", rangeOf("2024-05-01", "2024-05-02"))
	require.NoError(t, err)
	require.Len(t, ads, 2)

	assert.Equal(t, "a1", ads[0].AdID)
	assert.Equal(t, "https://www.facebook.com/watch/?v=v1", ads[0].VideoURL)
	require.NotNil(t, ads[0].MediaCV)
	assert.Equal(t, 3.0, *ads[0].MediaCV)
	assert.Equal(t, "", ads[1].VideoURL)
	assert.Nil(t, ads[1].MediaCV)
}

func TestMetaMissingToken(t *testing.T) {
	src := newMetaSource("http://127.0.0.1:0", "")

	_, err := src.FetchCampaigns(context.Background(), "123", rangeOf("2024-05-01", "2024-05-01"))
	require.Error(t, err)
	assert.True(t, domain.IsDisabled(err))
}

func TestMetaAPIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad token"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newMetaSource(srv.URL, "token").FetchCampaigns(context.Background(), "1", rangeOf("2024-05-01", "2024-05-01"))
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Message, "bad token")
	assert.False(t, domain.IsDisabled(err))
}
