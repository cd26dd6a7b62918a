package infrastructure

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"adreport/internal/domain"
	"adreport/pkg/config"
	"adreport/pkg/logger"
	"adreport/pkg/metrics"

	"golang.org/x/net/html"
)

const (
	mspLoginPath = "/login"
	mspAPI       = "msp"
)

// hidden form fields that may carry the CSRF token
var csrfFieldNames = []string{"csrf_token", "_token", "authenticity_token", "csrfmiddlewaretoken"}

var (
	mspNameColumns = []string{"ad_name", "advertisement_name", "name"}
	mspLinkColumns = []string{"link_id", "link"}
)

// Authenticator opens a logged-in session against the conversion-log dashboard.
// The returned client carries the session and must not be shared between calls.
type Authenticator interface {
	Authenticate(ctx context.Context) (*http.Client, error)
}

// ConversionLogSource downloads conversion and click logs from the tracking
// dashboard. Every FetchEvents call authenticates on its own.
type ConversionLogSource struct {
	cfg     config.ConversionLogConfig
	auth    Authenticator
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewConversionLogSource(cfg config.ConversionLogConfig, timeout time.Duration, logger *logger.Logger, metrics *metrics.Metrics) *ConversionLogSource {
	return &ConversionLogSource{
		cfg:     cfg,
		auth:    &FormLogin{cfg: cfg, timeout: timeout, transport: http.DefaultTransport},
		logger:  logger,
		metrics: metrics,
	}
}

// WithAuthenticator replaces the form login, e.g. with a token based flow.
func (s *ConversionLogSource) WithAuthenticator(auth Authenticator) *ConversionLogSource {
	cp := *s
	cp.auth = auth
	return &cp
}

func (s *ConversionLogSource) FetchEvents(ctx context.Context, advertiserID string, date time.Time) ([]domain.IntermediateRecord, error) {
	if err := s.checkCredentials(); err != nil {
		return nil, err
	}
	start := time.Now()

	client, err := s.auth.Authenticate(ctx)
	if err != nil {
		s.metrics.RecordExternalAPIFailure(mspAPI, "login")
		return nil, err
	}

	conversions, err := s.download(ctx, client, advertiserID, "conversions", date, domain.EventConversion)
	if err != nil {
		return nil, err
	}
	clicks, err := s.download(ctx, client, advertiserID, "clicks", date, domain.EventClick)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordExternalAPICall(mspAPI, "success", time.Since(start))
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"advertiser_id": advertiserID,
		"date":          domain.DateKey(date),
		"conversions":   len(conversions),
		"clicks":        len(clicks),
	}).Info("Fetched conversion log")

	return append(conversions, clicks...), nil
}

func (s *ConversionLogSource) checkCredentials() error {
	switch {
	case s.cfg.BaseURL == "":
		return &domain.CredentialError{Platform: domain.PlatformConversionLog, Field: "base URL"}
	case s.cfg.LoginID == "":
		return &domain.CredentialError{Platform: domain.PlatformConversionLog, Field: "login id"}
	case s.cfg.Password == "":
		return &domain.CredentialError{Platform: domain.PlatformConversionLog, Field: "password"}
	}
	return nil
}

// FormLogin scrapes the CSRF token from the login page, posts the credentials
// and keeps the session cookies in a fresh jar.
type FormLogin struct {
	cfg       config.ConversionLogConfig
	timeout   time.Duration
	transport http.RoundTripper
}

func (s *FormLogin) Authenticate(ctx context.Context) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	client := &http.Client{Jar: jar, Timeout: s.timeout, Transport: s.transport}

	loginURL := strings.TrimRight(s.cfg.BaseURL, "/") + mspLoginPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("msp login page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.APIError{Platform: domain.PlatformConversionLog, Status: resp.StatusCode, Message: "login page unavailable"}
	}

	form, err := parseLoginForm(resp.Body)
	if err != nil {
		return nil, &domain.APIError{Platform: domain.PlatformConversionLog, Status: resp.StatusCode, Message: err.Error()}
	}

	action := loginURL
	if form.action != "" {
		ref, err := url.Parse(form.action)
		if err != nil {
			return nil, fmt.Errorf("invalid login form action %q: %w", form.action, err)
		}
		action = resp.Request.URL.ResolveReference(ref).String()
	}

	values := url.Values{}
	values.Set(form.tokenField, form.token)
	values.Set("login_id", s.cfg.LoginID)
	values.Set("password", s.cfg.Password)

	post, err := http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	post.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	// the client follows the post-login redirect with the session cookie set
	landed, err := client.Do(post)
	if err != nil {
		return nil, fmt.Errorf("msp login: %w", err)
	}
	defer landed.Body.Close()
	_, _ = io.Copy(io.Discard, landed.Body)

	if landed.StatusCode != http.StatusOK || strings.HasSuffix(landed.Request.URL.Path, mspLoginPath) {
		return nil, &domain.APIError{Platform: domain.PlatformConversionLog, Status: http.StatusUnauthorized, Message: "login rejected"}
	}
	return client, nil
}

type loginForm struct {
	action     string
	tokenField string
	token      string
}

// parseLoginForm finds the form holding a hidden CSRF token.
func parseLoginForm(r io.Reader) (loginForm, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return loginForm{}, fmt.Errorf("parse login page: %w", err)
	}

	var form loginForm
	var walk func(n *html.Node, action string) bool
	walk = func(n *html.Node, action string) bool {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "form":
				action = attr(n, "action")
			case "input":
				name := attr(n, "name")
				if strings.EqualFold(attr(n, "type"), "hidden") && isCSRFField(name) {
					form = loginForm{action: action, tokenField: name, token: attr(n, "value")}
					return true
				}
			case "meta":
				if attr(n, "name") == "csrf-token" && form.token == "" {
					form = loginForm{tokenField: csrfFieldNames[0], token: attr(n, "content")}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c, action) {
				return true
			}
		}
		return false
	}
	walk(doc, "")

	if form.token == "" {
		return loginForm{}, errors.New("csrf token not found on login page")
	}
	return form, nil
}

func isCSRFField(name string) bool {
	for _, f := range csrfFieldNames {
		if name == f {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func (s *ConversionLogSource) download(ctx context.Context, client *http.Client, advertiserID, log string, date time.Time, kind domain.EventKind) ([]domain.IntermediateRecord, error) {
	q := url.Values{}
	q.Set("date", domain.DateKey(date))
	u := fmt.Sprintf("%s/advertisers/%s/%s.csv?%s", strings.TrimRight(s.cfg.BaseURL, "/"), url.PathEscape(advertiserID), log, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := client.Do(req)
	if err != nil {
		s.metrics.RecordExternalAPIFailure(mspAPI, "network_error")
		return nil, fmt.Errorf("msp %s log: %w", log, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.metrics.RecordExternalAPIFailure(mspAPI, fmt.Sprintf("error_%d", resp.StatusCode))
		return nil, &domain.APIError{Platform: domain.PlatformConversionLog, Status: resp.StatusCode, Message: log + " log download failed"}
	}

	records, err := parseEventLog(resp.Body, kind)
	if err != nil {
		s.metrics.RecordExternalAPIFailure(mspAPI, "csv_parse")
		return nil, &domain.APIError{Platform: domain.PlatformConversionLog, Status: resp.StatusCode, Message: err.Error()}
	}
	for i := range records {
		records[i].AccountID = advertiserID
	}
	return records, nil
}

// parseEventLog turns one CSV log into records. Each data line is one event.
func parseEventLog(r io.Reader, kind domain.EventKind) ([]domain.IntermediateRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s log header: %w", kind, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	nameCol := columnIndex(header, mspNameColumns)
	if nameCol < 0 {
		return nil, fmt.Errorf("%s log has no advertisement name column", kind)
	}
	linkCol := columnIndex(header, mspLinkColumns)

	var out []domain.IntermediateRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s log: %w", kind, err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}

		rec := domain.IntermediateRecord{
			Platform: domain.PlatformConversionLog,
			Name:     cell(row, nameCol),
			Kind:     kind,
		}
		if link := cell(row, linkCol); link != "" {
			rec.LinkID = domain.StringPtr(link)
		}
		out = append(out, rec)
	}
}

func columnIndex(header, names []string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
