package aggregator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewoneill45-ctrl/school-profile/internal/analytics"
	apperrors "github.com/andrewoneill45-ctrl/school-profile/pkg/errors"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", 20, false},
		{"5", 5, false},
		{"100000", maxListLimit, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"ten", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseLimit(tt.raw, 20)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
				assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatsHandler(t *testing.T) {
	agg := analytics.NewAggregator(10)
	agg.RecordSearch(analytics.SearchEvent{Query: "faith schools", TotalHits: 9})

	rec := httptest.NewRecorder()
	StatsHandler(agg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var got analytics.AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.TotalSearches)
	require.Len(t, got.TopQueries, 1)
	assert.Equal(t, "faith schools", got.TopQueries[0].Query)
}
