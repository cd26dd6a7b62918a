// Package attribution assigns fetched records to the sections and platform
// instances of a project using naming-convention rules.
package attribution

import (
	"strings"

	"adreport/internal/domain"
)

// Resolver classifies records against one project's settings. Rule order is
// significant: ties at equal prefix length and keyword scans go to the earlier rule.
type Resolver struct {
	settings *domain.ProjectSettings
}

// Resolution is the outcome of classifying one record.
type Resolution struct {
	Section  *domain.SectionRule
	Platform *domain.PlatformMapping
}

func NewResolver(settings *domain.ProjectSettings) *Resolver {
	if settings == nil {
		settings = &domain.ProjectSettings{}
	}
	return &Resolver{settings: settings}
}

// Resolve classifies a record into a section and, within it, a platform instance.
func (r *Resolver) Resolve(rec domain.IntermediateRecord) Resolution {
	if rec.IsConversionLog() {
		section, ok := PickSectionByConversionName(r.settings.Sections, rec.Name)
		if !ok {
			return Resolution{}
		}
		res := Resolution{Section: &section}
		if platformID, ok := PickPlatformByLink(r.settings.LinksFor(section.ID), rec.LinkID); ok {
			if m, ok := r.settings.PlatformByID(platformID); ok {
				res.Platform = &m
			} else {
				res.Platform = &domain.PlatformMapping{SectionID: section.ID, PlatformID: platformID}
			}
		}
		return res
	}

	section, ok := PickSectionByCampaignName(r.settings.Sections, rec.Name)
	if !ok {
		return Resolution{}
	}
	res := Resolution{Section: &section}
	if m, ok := r.settings.PlatformFor(section.ID, rec.Platform); ok {
		res.Platform = &m
	}
	return res
}

// PickSectionByCampaignName classifies an ad-delivery campaign name. The rule owning
// the longest literal prefix of the trimmed name wins, the first rule on equal length.
// Otherwise the first rule with a keyword contained in the name, then the catch-all rule.
func PickSectionByCampaignName(rules []domain.SectionRule, campaignName string) (domain.SectionRule, bool) {
	name := strings.TrimSpace(campaignName)

	best, bestLen := -1, 0
	for i, rule := range rules {
		if l := longestPrefix(rule.CampaignPrefixes, name); l > bestLen {
			best, bestLen = i, l
		}
	}
	if best >= 0 {
		return rules[best], true
	}

	for _, rule := range rules {
		for _, kw := range rule.CampaignKeywords {
			if kw != "" && strings.Contains(name, kw) {
				return rule, true
			}
		}
	}

	for _, rule := range rules {
		if rule.CatchAllCampaign {
			return rule, true
		}
	}
	return domain.SectionRule{}, false
}

// PickSectionByConversionName classifies a conversion-log advertisement name by
// its bracketed prefix, falling back to the catch-all conversion rule.
func PickSectionByConversionName(rules []domain.SectionRule, adName string) (domain.SectionRule, bool) {
	prefix := domain.ParsePrefix(adName)
	for _, rule := range rules {
		for _, p := range rule.ConversionPrefixes {
			if p == prefix {
				return rule, true
			}
		}
	}
	for _, rule := range rules {
		if rule.CatchAllConversion {
			return rule, true
		}
	}
	return domain.SectionRule{}, false
}

// PickPlatformByLink returns the platform whose link prefix is the longest literal
// prefix of linkID. A nil or unmatched link id yields no platform.
func PickPlatformByLink(links []domain.LinkMapping, linkID *string) (string, bool) {
	if linkID == nil || *linkID == "" {
		return "", false
	}
	best, bestLen := "", 0
	for _, l := range links {
		if l.LinkPrefix == "" || len(l.LinkPrefix) <= bestLen {
			continue
		}
		if strings.HasPrefix(*linkID, l.LinkPrefix) {
			best, bestLen = l.PlatformID, len(l.LinkPrefix)
		}
	}
	return best, bestLen > 0
}

func longestPrefix(prefixes []string, name string) int {
	longest := 0
	for _, p := range prefixes {
		if p != "" && len(p) > longest && strings.HasPrefix(name, p) {
			longest = len(p)
		}
	}
	return longest
}
