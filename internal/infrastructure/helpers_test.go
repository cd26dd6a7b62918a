package infrastructure

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"adreport/internal/domain"
	"adreport/pkg/logger"
	"adreport/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func testDeps() (*logger.Logger, *metrics.Metrics) {
	return logger.Discard(), metrics.New(prometheus.NewRegistry())
}

func newTestAPIClient(p domain.Platform) *APIClient {
	log, m := testDeps()
	return NewAPIClient(p, 5*time.Second, 1000, log, m)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func day(s string) time.Time {
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func rangeOf(from, to string) domain.DateRange {
	return domain.DateRange{From: day(from), To: day(to)}
}
