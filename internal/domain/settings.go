package domain

// SectionRule classifies records into a section of a project.
type SectionRule struct {
	ID                 string   `json:"id" yaml:"id"`
	Label              string   `json:"label" yaml:"label"`
	CampaignPrefixes   []string `json:"campaign_prefixes" yaml:"campaign_prefixes"`
	CampaignKeywords   []string `json:"campaign_keywords" yaml:"campaign_keywords"`
	CatchAllCampaign   bool     `json:"catch_all_campaign" yaml:"catch_all_campaign"`
	ConversionPrefixes []string `json:"conversion_prefixes" yaml:"conversion_prefixes"`
	CatchAllConversion bool     `json:"catch_all_conversion" yaml:"catch_all_conversion"`
}

// PlatformMapping binds a delivery-platform type within a section to a platform instance.
type PlatformMapping struct {
	SectionID    string   `json:"section_id" yaml:"section_id"`
	PlatformType Platform `json:"platform_type" yaml:"platform_type"`
	PlatformID   string   `json:"platform_id" yaml:"platform_id"`
	Label        string   `json:"label" yaml:"label"`
}

// LinkMapping attributes conversion-log events whose link id starts with LinkPrefix.
type LinkMapping struct {
	SectionID  string `json:"section_id" yaml:"section_id"`
	LinkPrefix string `json:"link_prefix" yaml:"link_prefix"`
	PlatformID string `json:"platform_id" yaml:"platform_id"`
}

// Account is a linked ad-platform account.
type Account struct {
	Platform  Platform `json:"platform" yaml:"platform"`
	AccountID string   `json:"account_id" yaml:"account_id"`
}

// ProjectSettings is everything the attribution engine needs about one project.
type ProjectSettings struct {
	ID                     string            `json:"id" yaml:"id"`
	Name                   string            `json:"name" yaml:"name"`
	Sections               []SectionRule     `json:"sections" yaml:"sections"`
	Platforms              []PlatformMapping `json:"platforms" yaml:"platforms"`
	Links                  []LinkMapping     `json:"links" yaml:"links"`
	Accounts               []Account         `json:"accounts" yaml:"accounts"`
	ConversionAdvertiserID string            `json:"conversion_advertiser_id" yaml:"conversion_advertiser_id"`
}

// Section returns the rule with the given id.
func (s *ProjectSettings) Section(id string) (SectionRule, bool) {
	for _, rule := range s.Sections {
		if rule.ID == id {
			return rule, true
		}
	}
	return SectionRule{}, false
}

// PlatformFor returns the platform instance configured for a section and platform type.
func (s *ProjectSettings) PlatformFor(sectionID string, platformType Platform) (PlatformMapping, bool) {
	for _, m := range s.Platforms {
		if m.SectionID == sectionID && m.PlatformType == platformType {
			return m, true
		}
	}
	return PlatformMapping{}, false
}

// PlatformByID returns the platform instance with the given id.
func (s *ProjectSettings) PlatformByID(platformID string) (PlatformMapping, bool) {
	for _, m := range s.Platforms {
		if m.PlatformID == platformID {
			return m, true
		}
	}
	return PlatformMapping{}, false
}

// LinksFor returns the link mappings scoped to a section, in configured order.
func (s *ProjectSettings) LinksFor(sectionID string) []LinkMapping {
	var out []LinkMapping
	for _, l := range s.Links {
		if l.SectionID == sectionID {
			out = append(out, l)
		}
	}
	return out
}

// AccountsFor returns the linked account ids of one platform.
func (s *ProjectSettings) AccountsFor(p Platform) []string {
	var out []string
	for _, a := range s.Accounts {
		if a.Platform == p && a.AccountID != "" {
			out = append(out, a.AccountID)
		}
	}
	return out
}
