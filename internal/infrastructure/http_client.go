package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"adreport/internal/domain"
	"adreport/pkg/logger"
	"adreport/pkg/metrics"

	"golang.org/x/time/rate"
)

// maximum number of response bytes quoted in an APIError
const errorBodyLimit = 512

// APIClient is the rate-limited JSON transport shared by the platform adapters.
type APIClient struct {
	client      *http.Client
	platform    domain.Platform
	logger      *logger.Logger
	metrics     *metrics.Metrics
	rateLimiter *rate.Limiter
}

// creates a new API client for one platform
func NewAPIClient(platform domain.Platform, timeout time.Duration, perSecond int, logger *logger.Logger, metrics *metrics.Metrics) *APIClient {
	return &APIClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		platform:    platform,
		logger:      logger,
		metrics:     metrics,
		rateLimiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

// WithHTTPClient swaps the underlying client, used to inject an OAuth2 transport.
func (c *APIClient) WithHTTPClient(client *http.Client) *APIClient {
	cp := *c
	cp.client = client
	return &cp
}

// GetJSON issues a GET and decodes the JSON body into out.
func (c *APIClient) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.metrics.RecordExternalAPIFailure(string(c.platform), "request_creation")
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(ctx, req, header, out)
}

// PostJSON encodes body as JSON, POSTs it and decodes the response into out.
func (c *APIClient) PostJSON(ctx context.Context, url string, header http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		c.metrics.RecordExternalAPIFailure(string(c.platform), "json_marshal")
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		c.metrics.RecordExternalAPIFailure(string(c.platform), "request_creation")
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, req, header, out)
}

func (c *APIClient) do(ctx context.Context, req *http.Request, header http.Header, out any) error {
	api := string(c.platform)
	start := time.Now()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		c.metrics.RecordExternalAPIFailure(api, "rate_limit")
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.RecordExternalAPIFailure(api, "network_error")
		return fmt.Errorf("%s request failed: %w", api, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordExternalAPIFailure(api, "read_body")
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.RecordExternalAPICall(api, fmt.Sprintf("error_%d", resp.StatusCode), duration)
		return &domain.APIError{
			Platform: c.platform,
			Status:   resp.StatusCode,
			Message:  truncate(string(body), errorBodyLimit),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.metrics.RecordExternalAPIFailure(api, "json_parse")
		return &domain.APIError{
			Platform: c.platform,
			Status:   resp.StatusCode,
			Message:  fmt.Sprintf("invalid JSON response: %v", err),
		}
	}

	c.metrics.RecordExternalAPICall(api, "success", duration)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"platform": api,
		"path":     req.URL.Path,
		"duration": duration,
	}).Debug("External API call succeeded")

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
