package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatiosGuardZeroDenominators(t *testing.T) {
	r := Totals{Spend: 1000, MspCV: 4}.Ratios()
	assert.Equal(t, 250.0, r.CPA)
	assert.Equal(t, 0.0, r.CPC)
	assert.Equal(t, 0.0, r.CPM)
	assert.Equal(t, 0.0, r.CTR)
	assert.Equal(t, 0.0, r.MCpa)

	r = Totals{}.Ratios()
	assert.Equal(t, Ratios{}, r)
}

func TestRatiosFormulas(t *testing.T) {
	r := Totals{Spend: 2000, Impressions: 10000, Clicks: 200, MspCV: 10, MCV: 40}.Ratios()
	assert.Equal(t, 200.0, r.CPA)
	assert.Equal(t, 10.0, r.CPC)
	assert.Equal(t, 0.02, r.CTR)
	assert.Equal(t, 0.05, r.CVR)
	assert.Equal(t, 0.2, r.MCvr)
	assert.Equal(t, 50.0, r.MCpa)
	assert.Equal(t, 200.0, r.CPM)
}

func TestTotalsAddIsCommutative(t *testing.T) {
	a := Totals{Spend: 12.5, Impressions: 100, Clicks: 7, MspCV: 1, ActualCV: 2, MCV: 3, PlatformCV: 2}
	b := Totals{Spend: 0.25, Impressions: 9, Clicks: 1, MspCV: 4, ActualCV: 0, MCV: 1, PlatformCV: 5}
	c := Totals{Spend: 3, Clicks: 2}

	assert.Equal(t, a.Add(b), b.Add(a))
	assert.Equal(t, a.Add(b).Add(c), a.Add(b.Add(c)))
	assert.Equal(t, a, a.Add(Totals{}))
}

func TestDailyMetricRowJSONCarriesDerivedRatios(t *testing.T) {
	row := NewDailyMetricRow(time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC), Totals{Spend: 500, Clicks: 50, MspCV: 5})

	data, err := json.Marshal(row)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "2025-03-04", raw["date"])
	assert.Equal(t, 100.0, raw["cpa"])
	assert.Equal(t, 10.0, raw["cpc"])
	assert.Nil(t, raw["performance_fee"])

	var decoded DailyMetricRow
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, row.Totals, decoded.Totals)
	assert.Equal(t, "2025-03-04", DateKey(decoded.Date))
}

func TestDateRangeContains(t *testing.T) {
	r := DateRange{
		From: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	assert.True(t, r.Contains(time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, r.Valid())
	assert.False(t, DateRange{From: r.To, To: r.From}.Valid())
}
