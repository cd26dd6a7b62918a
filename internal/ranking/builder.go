// Package ranking builds per-ad leaderboards with optional grouping by
// creative tags embedded in ad names.
package ranking

import (
	"fmt"
	"regexp"
	"sort"

	"adreport/internal/domain"
)

// View selects how ads are grouped.
type View string

const (
	ViewAd           View = "ad"
	ViewIntroVariant View = "intro_variant"
	ViewVariant      View = "variant"
	ViewIntro        View = "intro"
)

// SortKey selects the ordering of the leaderboard.
type SortKey string

const (
	SortSpend SortKey = "spend"
	SortCV    SortKey = "cv"
	SortCPA   SortKey = "cpa"
)

// UngroupedKey collects ads whose name does not carry the tag of the selected view.
const UngroupedKey = "ungrouped"

var (
	introVariantPattern = regexp.MustCompile(`^【[^】]+】\[[^\]]+\]`)
	variantPattern      = regexp.MustCompile(`\[[^\]]+\]`)
	introPattern        = regexp.MustCompile(`^【[^】]+】`)
)

// ParseView validates a view name; empty means ViewAd.
func ParseView(s string) (View, error) {
	switch v := View(s); v {
	case "":
		return ViewAd, nil
	case ViewAd, ViewIntroVariant, ViewVariant, ViewIntro:
		return v, nil
	}
	return "", fmt.Errorf("unknown ranking view %q", s)
}

// ParseSortKey validates a sort key; empty means SortSpend.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case "":
		return SortSpend, nil
	case SortSpend, SortCV, SortCPA:
		return k, nil
	}
	return "", fmt.Errorf("unknown ranking sort %q", s)
}

// GroupKey extracts the tag of view from an ad name.
func GroupKey(view View, adName string) (string, bool) {
	var re *regexp.Regexp
	switch view {
	case ViewIntroVariant:
		re = introVariantPattern
	case ViewVariant:
		re = variantPattern
	case ViewIntro:
		re = introPattern
	default:
		return adName, true
	}
	if m := re.FindString(adName); m != "" {
		return m, true
	}
	return "", false
}

// Entry is one line of the leaderboard: a single ad or a group of ads.
type Entry struct {
	Key       string          `json:"key"`
	Platform  domain.Platform `json:"platform,omitempty"`
	AccountID string          `json:"account_id,omitempty"`
	AdID      string          `json:"ad_id,omitempty"`
	AdName    string          `json:"ad_name,omitempty"`
	VideoURL  string          `json:"video_url,omitempty"`
	Spend     float64         `json:"spend"`
	MediaCV   *float64        `json:"media_cv"`
	CPA       *float64        `json:"cpa"`
	AdCount   int             `json:"ad_count"`
}

func (e Entry) empty() bool {
	return e.Spend == 0 && isZero(e.MediaCV) && isZero(e.CPA)
}

// Partition is the leaderboard of one (platform, account) pair.
type Partition struct {
	Platform  domain.Platform `json:"platform"`
	AccountID string          `json:"account_id"`
	Entries   []Entry         `json:"entries"`
}

// Build groups rows according to view, drops empty entries and sorts them.
func Build(rows []domain.AdRankingRow, view View, key SortKey) []Entry {
	var entries []Entry
	if view == ViewAd || view == "" {
		entries = make([]Entry, 0, len(rows))
		for _, r := range rows {
			entries = append(entries, Entry{
				Key:       r.AdID,
				Platform:  r.Platform,
				AccountID: r.AccountID,
				AdID:      r.AdID,
				AdName:    r.AdName,
				VideoURL:  r.VideoURL,
				Spend:     r.Spend,
				MediaCV:   r.MediaCV,
				CPA:       r.CPA(),
				AdCount:   1,
			})
		}
	} else {
		entries = group(rows, view)
	}

	kept := entries[:0]
	for _, e := range entries {
		if !e.empty() {
			kept = append(kept, e)
		}
	}
	Sort(kept, key)
	return kept
}

// BuildPartitioned applies Build separately to every (platform, account) pair,
// keeping the pairs in first-seen order.
func BuildPartitioned(rows []domain.AdRankingRow, view View, key SortKey) []Partition {
	type pk struct {
		platform domain.Platform
		account  string
	}
	var order []pk
	byKey := make(map[pk][]domain.AdRankingRow)
	for _, r := range rows {
		k := pk{r.Platform, r.AccountID}
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], r)
	}

	out := make([]Partition, 0, len(order))
	for _, k := range order {
		out = append(out, Partition{
			Platform:  k.platform,
			AccountID: k.account,
			Entries:   Build(byKey[k], view, key),
		})
	}
	return out
}

func group(rows []domain.AdRankingRow, view View) []Entry {
	index := make(map[string]int)
	var entries []Entry
	for _, r := range rows {
		k, ok := GroupKey(view, r.AdName)
		if !ok {
			k = UngroupedKey
		}
		i, seen := index[k]
		if !seen {
			i = len(entries)
			index[k] = i
			entries = append(entries, Entry{Key: k})
		}
		e := &entries[i]
		e.Spend += r.Spend
		e.MediaCV = addCV(e.MediaCV, r.MediaCV)
		e.AdCount++
	}
	for i := range entries {
		entries[i].CPA = domain.RankingCPA(entries[i].Spend, entries[i].MediaCV)
	}
	return entries
}

// Sort orders entries in place. Missing conversions sort as the minimum;
// for SortCPA every entry without positive conversions goes last.
func Sort(entries []Entry, key SortKey) {
	switch key {
	case SortCV:
		sort.SliceStable(entries, func(i, j int) bool {
			return cvValue(entries[i].MediaCV) > cvValue(entries[j].MediaCV)
		})
	case SortCPA:
		sort.SliceStable(entries, func(i, j int) bool {
			ci, cj := hasConversions(entries[i]), hasConversions(entries[j])
			if ci != cj {
				return ci
			}
			if !ci {
				return false
			}
			return *entries[i].CPA < *entries[j].CPA
		})
	default:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Spend > entries[j].Spend
		})
	}
}

func hasConversions(e Entry) bool {
	return e.MediaCV != nil && *e.MediaCV > 0 && e.CPA != nil
}

func cvValue(v *float64) float64 {
	if v == nil {
		return -1
	}
	return *v
}

func isZero(v *float64) bool {
	return v == nil || *v == 0
}

// addCV is nil only while every summed value is nil.
func addCV(a, b *float64) *float64 {
	if b == nil {
		return a
	}
	if a == nil {
		return domain.Float64Ptr(*b)
	}
	return domain.Float64Ptr(*a + *b)
}
