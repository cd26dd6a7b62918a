package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adreport/internal/domain"
)

func cv(v float64) *float64 { return domain.Float64Ptr(v) }

func TestGroupByIntroVariant(t *testing.T) {
	rows := []domain.AdRankingRow{
		{AdID: "1", AdName: "【冒頭1】[P2]A.mp4", Spend: 100, MediaCV: cv(2)},
		{AdID: "2", AdName: "【冒頭1】[P2]B.mp4", Spend: 50, MediaCV: cv(1)},
	}

	out := Build(rows, ViewIntroVariant, SortSpend)
	require.Len(t, out, 1)
	assert.Equal(t, "【冒頭1】[P2]", out[0].Key)
	assert.Equal(t, 150.0, out[0].Spend)
	require.NotNil(t, out[0].MediaCV)
	assert.Equal(t, 3.0, *out[0].MediaCV)
	require.NotNil(t, out[0].CPA)
	assert.Equal(t, 50.0, *out[0].CPA)
	assert.Equal(t, 2, out[0].AdCount)
}

func TestGroupKeys(t *testing.T) {
	name := "【冒頭3】[P7]final.mp4"
	k, ok := GroupKey(ViewVariant, name)
	require.True(t, ok)
	assert.Equal(t, "[P7]", k)

	k, ok = GroupKey(ViewIntro, name)
	require.True(t, ok)
	assert.Equal(t, "【冒頭3】", k)

	_, ok = GroupKey(ViewIntroVariant, "[P7]【冒頭3】")
	assert.False(t, ok)

	out := Build([]domain.AdRankingRow{{AdName: "plain", Spend: 10}}, ViewIntro, SortSpend)
	require.Len(t, out, 1)
	assert.Equal(t, UngroupedKey, out[0].Key)
	assert.Nil(t, out[0].MediaCV)
}

func TestBuildDropsEmptyEntries(t *testing.T) {
	rows := []domain.AdRankingRow{
		{AdID: "zero-null", Spend: 0},
		{AdID: "zero-zero", Spend: 0, MediaCV: cv(0)},
		{AdID: "kept", Spend: 10},
	}
	for _, view := range []View{ViewAd, ViewVariant} {
		out := Build(rows, view, SortSpend)
		require.Len(t, out, 1, view)
		assert.Equal(t, 10.0, out[0].Spend)
	}
}

func TestSortOrders(t *testing.T) {
	rows := []domain.AdRankingRow{
		{AdID: "a", Spend: 100, MediaCV: cv(1)},
		{AdID: "b", Spend: 300},
		{AdID: "c", Spend: 200, MediaCV: cv(4)},
		{AdID: "d", Spend: 50, MediaCV: cv(0)},
	}
	ids := func(es []Entry) []string {
		var out []string
		for _, e := range es {
			out = append(out, e.AdID)
		}
		return out
	}

	assert.Equal(t, []string{"b", "c", "a", "d"}, ids(Build(rows, ViewAd, SortSpend)))
	assert.Equal(t, []string{"c", "a", "d", "b"}, ids(Build(rows, ViewAd, SortCV)))
	assert.Equal(t, []string{"c", "a", "b", "d"}, ids(Build(rows, ViewAd, SortCPA)))
}

func TestBuildPartitioned(t *testing.T) {
	rows := []domain.AdRankingRow{
		{Platform: domain.PlatformMeta, AccountID: "m1", AdID: "1", Spend: 10},
		{Platform: domain.PlatformTikTok, AccountID: "t1", AdID: "2", Spend: 20},
		{Platform: domain.PlatformMeta, AccountID: "m1", AdID: "3", Spend: 30},
	}

	parts := BuildPartitioned(rows, ViewAd, SortSpend)
	require.Len(t, parts, 2)
	assert.Equal(t, domain.PlatformMeta, parts[0].Platform)
	require.Len(t, parts[0].Entries, 2)
	assert.Equal(t, "3", parts[0].Entries[0].AdID)
	assert.Equal(t, "t1", parts[1].AccountID)
}

func TestParseViewAndSort(t *testing.T) {
	v, err := ParseView("")
	require.NoError(t, err)
	assert.Equal(t, ViewAd, v)
	_, err = ParseView("nope")
	assert.Error(t, err)

	k, err := ParseSortKey("cpa")
	require.NoError(t, err)
	assert.Equal(t, SortCPA, k)
	_, err = ParseSortKey("nope")
	assert.Error(t, err)
}
