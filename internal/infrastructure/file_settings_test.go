package infrastructure

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"adreport/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const settingsYAML = `
projects:
  - id: p1
    name: Skincare
    conversion_advertiser_id: adv1
    sections:
      - id: s1
        label: Lotion
        campaign_prefixes: ["【LT】"]
        conversion_prefixes: ["LT"]
      - id: s2
        label: Other
        catch_all_campaign: true
        catch_all_conversion: true
    platforms:
      - section_id: s1
        platform_type: meta
        platform_id: s1-meta
        label: Lotion Meta
    links:
      - section_id: s1
        link_prefix: lt-
        platform_id: s1-meta
    accounts:
      - platform: meta
        account_id: "123"
`

func TestFileSettingsLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.yml")
	require.NoError(t, os.WriteFile(path, []byte(settingsYAML), 0o600))

	fs, err := LoadFileSettings(path)
	require.NoError(t, err)

	s, err := fs.ProjectSettings(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Skincare", s.Name)
	assert.Equal(t, "adv1", s.ConversionAdvertiserID)
	require.Len(t, s.Sections, 2)
	assert.Equal(t, []string{"【LT】"}, s.Sections[0].CampaignPrefixes)
	assert.True(t, s.Sections[1].CatchAllConversion)
	assert.Equal(t, domain.PlatformMeta, s.Platforms[0].PlatformType)
	assert.Equal(t, []string{"123"}, s.AccountsFor(domain.PlatformMeta))

	_, err = fs.ProjectSettings(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrProjectNotFound)
}

func TestFileSettingsValidation(t *testing.T) {
	cases := map[string]string{
		"missing id":      "projects:\n  - name: x\n",
		"duplicate":       "projects:\n  - id: a\n  - id: a\n",
		"unknown section": "projects:\n  - id: a\n    platforms:\n      - section_id: s9\n        platform_type: meta\n",
		"unknown type":    "projects:\n  - id: a\n    sections:\n      - id: s1\n    platforms:\n      - section_id: s1\n        platform_type: radio\n",
		"bad yaml":        "projects: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFileSettings([]byte(doc))
			assert.Error(t, err)
		})
	}
}
