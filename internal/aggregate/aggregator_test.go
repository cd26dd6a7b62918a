package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adreport/internal/domain"
)

func testSettings() *domain.ProjectSettings {
	return &domain.ProjectSettings{
		ID: "p1",
		Sections: []domain.SectionRule{
			{ID: "skin", Label: "Skin", CampaignPrefixes: []string{"SK_"}, ConversionPrefixes: []string{"SK"}},
			{ID: "hair", Label: "Hair", CampaignPrefixes: []string{"HR_"}, ConversionPrefixes: []string{"HR"}},
		},
		Platforms: []domain.PlatformMapping{
			{SectionID: "skin", PlatformType: domain.PlatformMeta, PlatformID: "skin-meta", Label: "Skin Meta"},
			{SectionID: "skin", PlatformType: domain.PlatformTikTok, PlatformID: "skin-tt", Label: "Skin TikTok"},
			{SectionID: "hair", PlatformType: domain.PlatformMeta, PlatformID: "hair-meta", Label: "Hair Meta"},
		},
		Links: []domain.LinkMapping{
			{SectionID: "skin", LinkPrefix: "sm", PlatformID: "skin-meta"},
			{SectionID: "skin", LinkPrefix: "st", PlatformID: "skin-tt"},
		},
	}
}

func findRow(rows []domain.EntityRow, id string) domain.EntityRow {
	for _, r := range rows {
		if r.EntityID == id {
			return r
		}
	}
	return domain.EntityRow{}
}

func TestAggregatorFoldsThreeLevels(t *testing.T) {
	date := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	agg := New(testSettings(), date)

	agg.AddAll([]domain.IntermediateRecord{
		{Platform: domain.PlatformMeta, Name: "SK_spring", Spend: 1000, Impressions: 10000, Clicks: 100, MediaCV: domain.Float64Ptr(4)},
		{Platform: domain.PlatformTikTok, Name: "SK_spring", Spend: 500, Impressions: 5000, Clicks: 50},
		{Platform: domain.PlatformLine, Name: "SK_spring", Spend: 200, Impressions: 1000, Clicks: 10, MediaCV: domain.Float64Ptr(1)},
		{Platform: domain.PlatformMeta, Name: "unmatched", Spend: 300, Impressions: 3000, Clicks: 30, MediaCV: domain.Float64Ptr(2)},
		{Platform: domain.PlatformConversionLog, Name: "【SK】a", LinkID: domain.StringPtr("sm-1"), Kind: domain.EventConversion},
		{Platform: domain.PlatformConversionLog, Name: "【SK】a", LinkID: domain.StringPtr("st-1"), Kind: domain.EventClick},
		{Platform: domain.PlatformConversionLog, Name: "【SK】a", Kind: domain.EventConversion},
		{Platform: domain.PlatformConversionLog, Name: "【ZZ】a", Kind: domain.EventConversion},
	})

	res := agg.Result()

	project := res.Project.Totals
	assert.Equal(t, 2000.0, project.Spend)
	assert.Equal(t, int64(19000), project.Impressions)
	assert.Equal(t, int64(190), project.Clicks)
	assert.Equal(t, 7.0, project.ActualCV)
	assert.Equal(t, 7.0, project.PlatformCV)
	assert.Equal(t, 3.0, project.MspCV, "project total accumulates unattributed events")
	assert.Equal(t, 1.0, project.MCV)

	skin := findRow(res.Sections, "skin").Row.Totals
	assert.Equal(t, 1700.0, skin.Spend)
	assert.Equal(t, 5.0, skin.ActualCV)
	assert.Equal(t, 2.0, skin.MspCV)
	assert.Equal(t, 1.0, skin.MCV)

	hair := findRow(res.Sections, "hair").Row.Totals
	assert.True(t, hair.IsZero())

	skinMeta := findRow(res.Platforms, "skin-meta").Row.Totals
	assert.Equal(t, 1000.0, skinMeta.Spend)
	assert.Equal(t, 1.0, skinMeta.MspCV)
	assert.Equal(t, 0.0, skinMeta.MCV)

	skinTT := findRow(res.Platforms, "skin-tt").Row.Totals
	assert.Equal(t, 500.0, skinTT.Spend)
	assert.Equal(t, 1.0, skinTT.MCV)

	stats := agg.Stats()
	assert.Equal(t, 8, stats.Records)
	assert.Equal(t, 2, stats.SectionMisses)
	assert.Equal(t, 2, stats.PlatformMisses)

	require.Len(t, res.SectionBreakdown, 2)
	assert.Equal(t, domain.BreakdownRow{EntityID: "skin", Label: "Skin", Spend: 1700, MspCV: 2, ActualCV: 5}, res.SectionBreakdown[0])

	require.Len(t, res.PlatformDetails, 3)
	detail := res.PlatformDetails[0]
	assert.Equal(t, "skin-meta", detail.PlatformID)
	assert.Equal(t, 10.0, detail.CPC)
	assert.Equal(t, 0.01, detail.CVR)
	assert.Equal(t, int64(100), detail.Totals.Clicks)
}

func TestAggregatorSumsSpendExactly(t *testing.T) {
	agg := New(testSettings(), time.Now())
	for i := 0; i < 10; i++ {
		agg.Add(domain.IntermediateRecord{Platform: domain.PlatformMeta, Name: "SK_x", Spend: 0.1})
	}
	assert.Equal(t, 1.0, agg.Result().Project.Totals.Spend)
}

func TestAggregatorIncludesLinkOnlyPlatforms(t *testing.T) {
	settings := testSettings()
	settings.Links = append(settings.Links, domain.LinkMapping{SectionID: "skin", LinkPrefix: "gg", PlatformID: "skin-google"})
	agg := New(settings, time.Now())

	agg.Add(domain.IntermediateRecord{Platform: domain.PlatformConversionLog, Name: "[SK]", LinkID: domain.StringPtr("gg1"), Kind: domain.EventConversion})

	row := findRow(agg.Result().Platforms, "skin-google")
	assert.Equal(t, "skin-google", row.Label)
	assert.Equal(t, 1.0, row.Row.Totals.MspCV)
}

func TestRollupByPlatformType(t *testing.T) {
	details := []domain.DetailedPlatformMetrics{
		{PlatformID: "a", PlatformType: domain.PlatformMeta, Totals: domain.Totals{Spend: 100, Clicks: 10, MspCV: 1}},
		{PlatformID: "b", PlatformType: domain.PlatformTikTok, Totals: domain.Totals{Spend: 50, Clicks: 5}},
		{PlatformID: "c", PlatformType: domain.PlatformMeta, Totals: domain.Totals{Spend: 300, Clicks: 30, MspCV: 3}},
		{PlatformID: "d"},
	}

	out := RollupByPlatformType(details)
	require.Len(t, out, 2)
	assert.Equal(t, domain.PlatformMeta, out[0].PlatformType)
	assert.Equal(t, 400.0, out[0].Totals.Spend)
	assert.Equal(t, 10.0, out[0].Ratios.CPC)
	assert.Equal(t, 100.0, out[0].Ratios.CPA)
}
