package domain

import "strings"

// Platform identifies a data source.
type Platform string

const (
	PlatformMeta          Platform = "meta"
	PlatformTikTok        Platform = "tiktok"
	PlatformGoogle        Platform = "google"
	PlatformLine          Platform = "line"
	PlatformConversionLog Platform = "msp"
)

// DeliveryPlatforms lists the ad-delivery platforms in their canonical order.
var DeliveryPlatforms = []Platform{PlatformMeta, PlatformTikTok, PlatformGoogle, PlatformLine}

// IsDelivery reports whether p is one of the ad-delivery platforms.
func (p Platform) IsDelivery() bool {
	for _, d := range DeliveryPlatforms {
		if p == d {
			return true
		}
	}
	return false
}

// EventKind distinguishes conversion-log events.
type EventKind string

const (
	EventConversion EventKind = "conversion"
	EventClick      EventKind = "click"
)

// IntermediateRecord is the uniform shape every source adapter produces.
// It lives only for the duration of one aggregation.
type IntermediateRecord struct {
	Platform    Platform
	AccountID   string
	Name        string
	Spend       float64
	Impressions int64
	Clicks      int64
	// MediaCV is nil when the platform did not report conversions.
	MediaCV *float64
	// LinkID and Kind are set only for conversion-log records.
	LinkID *string
	Kind   EventKind
}

func (r IntermediateRecord) IsConversionLog() bool {
	return r.Platform == PlatformConversionLog
}

// UnclassifiedPrefix is returned by ParsePrefix for names without a leading bracket pair.
const UnclassifiedPrefix = "unclassified"

// ParsePrefix extracts the attribution prefix from a campaign or ad name.
// A leading full-width pair 【...】 wins over an ASCII pair [...].
func ParsePrefix(name string) string {
	name = strings.TrimSpace(name)
	if p, ok := bracketed(name, "【", "】"); ok {
		return p
	}
	if p, ok := bracketed(name, "[", "]"); ok {
		return p
	}
	return UnclassifiedPrefix
}

func bracketed(name, open, close string) (string, bool) {
	if !strings.HasPrefix(name, open) {
		return "", false
	}
	rest := name[len(open):]
	end := strings.Index(rest, close)
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
