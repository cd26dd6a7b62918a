package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adreport/internal/domain"
)

func rules() []domain.SectionRule {
	return []domain.SectionRule{
		{ID: "skin", CampaignPrefixes: []string{"SK_"}, CampaignKeywords: []string{"serum"}, ConversionPrefixes: []string{"SK"}},
		{ID: "skin-premium", CampaignPrefixes: []string{"SK_PRM_"}, ConversionPrefixes: []string{"SKP"}},
		{ID: "hair", CampaignPrefixes: []string{"HR_"}, CampaignKeywords: []string{"shampoo", "serum"}},
		{ID: "other", CatchAllCampaign: true, CatchAllConversion: true},
	}
}

func TestPickSectionByCampaignNameLongestPrefixIndependentOfOrder(t *testing.T) {
	rs := rules()
	reversed := make([]domain.SectionRule, len(rs))
	for i := range rs {
		reversed[len(rs)-1-i] = rs[i]
	}

	for _, set := range [][]domain.SectionRule{rs, reversed} {
		got, ok := PickSectionByCampaignName(set, "  SK_PRM_summer")
		require.True(t, ok)
		assert.Equal(t, "skin-premium", got.ID)

		got, ok = PickSectionByCampaignName(set, "SK_regular")
		require.True(t, ok)
		assert.Equal(t, "skin", got.ID)
	}
}

func TestPickSectionByCampaignNameTieGoesToFirstRule(t *testing.T) {
	set := []domain.SectionRule{
		{ID: "first", CampaignPrefixes: []string{"AB"}},
		{ID: "second", CampaignPrefixes: []string{"AB"}},
	}
	got, ok := PickSectionByCampaignName(set, "ABC")
	require.True(t, ok)
	assert.Equal(t, "first", got.ID)
}

func TestPickSectionByCampaignNameKeywordThenCatchAll(t *testing.T) {
	got, ok := PickSectionByCampaignName(rules(), "new serum launch")
	require.True(t, ok)
	assert.Equal(t, "skin", got.ID, "first rule with a matching keyword wins")

	got, ok = PickSectionByCampaignName(rules(), "brand awareness")
	require.True(t, ok)
	assert.Equal(t, "other", got.ID)

	_, ok = PickSectionByCampaignName(rules()[:3], "brand awareness")
	assert.False(t, ok)
}

func TestPickSectionByConversionName(t *testing.T) {
	got, ok := PickSectionByConversionName(rules(), "【SKP】banner A")
	require.True(t, ok)
	assert.Equal(t, "skin-premium", got.ID)

	got, ok = PickSectionByConversionName(rules(), "[SK]banner B")
	require.True(t, ok)
	assert.Equal(t, "skin", got.ID)

	got, ok = PickSectionByConversionName(rules(), "no bracket")
	require.True(t, ok)
	assert.Equal(t, "other", got.ID)

	_, ok = PickSectionByConversionName(rules()[:3], "no bracket")
	assert.False(t, ok)
}

func TestPickPlatformByLink(t *testing.T) {
	links := []domain.LinkMapping{
		{SectionID: "skin", LinkPrefix: "lk_", PlatformID: "generic"},
		{SectionID: "skin", LinkPrefix: "lk_meta_", PlatformID: "meta-skin"},
	}

	id, ok := PickPlatformByLink(links, domain.StringPtr("lk_meta_001"))
	require.True(t, ok)
	assert.Equal(t, "meta-skin", id)

	id, ok = PickPlatformByLink(links, domain.StringPtr("lk_tt_001"))
	require.True(t, ok)
	assert.Equal(t, "generic", id)

	_, ok = PickPlatformByLink(links, nil)
	assert.False(t, ok)
	_, ok = PickPlatformByLink(links, domain.StringPtr("zz"))
	assert.False(t, ok)
}

func TestResolverResolve(t *testing.T) {
	settings := &domain.ProjectSettings{
		Sections: rules(),
		Platforms: []domain.PlatformMapping{
			{SectionID: "skin", PlatformType: domain.PlatformMeta, PlatformID: "meta-skin", Label: "Meta skin"},
		},
		Links: []domain.LinkMapping{{SectionID: "skin", LinkPrefix: "m_", PlatformID: "meta-skin"}},
	}
	r := NewResolver(settings)

	res := r.Resolve(domain.IntermediateRecord{Platform: domain.PlatformMeta, Name: "SK_a"})
	require.NotNil(t, res.Section)
	require.NotNil(t, res.Platform)
	assert.Equal(t, "meta-skin", res.Platform.PlatformID)

	res = r.Resolve(domain.IntermediateRecord{Platform: domain.PlatformLine, Name: "SK_a"})
	require.NotNil(t, res.Section)
	assert.Nil(t, res.Platform)

	res = r.Resolve(domain.IntermediateRecord{
		Platform: domain.PlatformConversionLog,
		Name:     "【SK】ad",
		LinkID:   domain.StringPtr("m_1"),
		Kind:     domain.EventConversion,
	})
	require.NotNil(t, res.Section)
	require.NotNil(t, res.Platform)
	assert.Equal(t, "Meta skin", res.Platform.Label)

	res = r.Resolve(domain.IntermediateRecord{Platform: domain.PlatformConversionLog, Name: "【SK】ad", Kind: domain.EventClick})
	require.NotNil(t, res.Section)
	assert.Nil(t, res.Platform)
}
