package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewoneill45-ctrl/school-profile/internal/analytics"
	"github.com/andrewoneill45-ctrl/school-profile/internal/dataset"
	"github.com/andrewoneill45-ctrl/school-profile/internal/profile"
	"github.com/andrewoneill45-ctrl/school-profile/internal/school"
	"github.com/andrewoneill45-ctrl/school-profile/internal/searcher/cache"
	"github.com/andrewoneill45-ctrl/school-profile/internal/searcher/executor"
	"github.com/andrewoneill45-ctrl/school-profile/internal/searcher/filter"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/config"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/metrics"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/middleware"
)

var f = school.Float

func fixtures() []school.School {
	return []school.School{
		{URN: "1", Name: "Aston Academy", Phase: school.PhaseSecondary, LA: "Leeds", Town: "Leeds", Attainment8: f(40), Pupils: f(900)},
		{URN: "2", Name: "Bramley High", Phase: school.PhaseSecondary, LA: "Leeds", Town: "Leeds", Attainment8: f(50), Pupils: f(1100)},
		{URN: "3", Name: "Chapel Primary", Phase: school.PhasePrimary, LA: "Leeds", Town: "Leeds", KS2RWMExp: f(60)},
		{URN: "4", Name: "Dringhouses School", Phase: school.PhaseSecondary, LA: "York", Town: "York", Attainment8: f(70)},
	}
}

type fakeStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (s *fakeStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *fakeStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

type fakeTracker struct {
	mu       sync.Mutex
	searches []analytics.SearchEvent
	profiles []analytics.ProfileEvent
}

func (t *fakeTracker) TrackSearch(e analytics.SearchEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.searches = append(t.searches, e)
}

func (t *fakeTracker) TrackProfile(e analytics.ProfileEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.profiles = append(t.profiles, e)
}

type env struct {
	server  http.Handler
	metrics *metrics.Metrics
	tracker *fakeTracker
}

func setup(t *testing.T, withCache bool) env {
	t.Helper()
	ds := dataset.New(fixtures())
	m := metrics.New(prometheus.NewRegistry())
	tracker := &fakeTracker{}

	var qc *cache.QueryCache
	if withCache {
		qc = cache.New(&fakeStore{data: make(map[string][]byte)}, config.RedisConfig{CacheTTL: time.Minute}, m)
	}
	h := New(ds, executor.New(ds), qc, tracker, m, config.SearchConfig{DefaultLimit: 50, MaxResults: 2})
	mux := http.NewServeMux()
	h.Register(mux)
	return env{server: middleware.RequestID(mux), metrics: m, tracker: tracker}
}

func (e env) get(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

type searchBody struct {
	executor.SearchResult
	CacheHit bool `json:"cache_hit"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func urns(schools []school.School) []school.URN {
	out := make([]school.URN, len(schools))
	for i := range schools {
		out[i] = schools[i].URN
	}
	return out
}

func TestSearchStructured(t *testing.T) {
	e := setup(t, false)

	rec := e.get(t, http.MethodGet, "/api/v1/search?q=schools+in+leeds")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[searchBody](t, rec)

	assert.Equal(t, "schools in leeds", body.Query)
	require.NotNil(t, body.Filters)
	assert.Equal(t, "leeds", body.Filters.LocationQuery)
	assert.Equal(t, "schools in leeds", body.Description)
	assert.Equal(t, 3, body.TotalHits)
	assert.Equal(t, 2, body.Limit, "limit is clamped to the configured maximum")
	assert.Equal(t, []school.URN{"1", "2"}, urns(body.Results))
	assert.False(t, body.CacheHit)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.SearchQueriesTotal.WithLabelValues("structured")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.FilterKeysTotal.WithLabelValues("locationQuery")))

	require.Len(t, e.tracker.searches, 1)
	ev := e.tracker.searches[0]
	assert.Equal(t, []string{"locationQuery"}, ev.FilterKeys)
	assert.Equal(t, 3, ev.TotalHits)
	assert.Equal(t, 2, ev.Returned)
	assert.NotEmpty(t, ev.RequestID)
}

func TestSearchBlankQueryListsEverything(t *testing.T) {
	e := setup(t, false)

	rec := e.get(t, http.MethodGet, "/api/v1/search")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[searchBody](t, rec)
	assert.Nil(t, body.Filters)
	assert.Equal(t, 4, body.TotalHits)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.SearchQueriesTotal.WithLabelValues("all")))
}

func TestSearchPaging(t *testing.T) {
	e := setup(t, false)

	rec := e.get(t, http.MethodGet, "/api/v1/search?q=secondary+schools&limit=1&offset=1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[searchBody](t, rec)
	assert.Equal(t, 3, body.TotalHits)
	assert.Equal(t, 1, body.Offset)
	assert.Equal(t, []school.URN{"2"}, urns(body.Results))
}

func TestSearchZeroResults(t *testing.T) {
	e := setup(t, false)

	rec := e.get(t, http.MethodGet, "/api/v1/search?q=a8+below+35.5")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[searchBody](t, rec)
	assert.Equal(t, 0, body.TotalHits)
	assert.Empty(t, body.Results)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.SearchQueriesTotal.WithLabelValues("zero_result")))
}

func TestSearchInvalidPaging(t *testing.T) {
	e := setup(t, false)
	tests := []struct {
		target string
		msg    string
	}{
		{"/api/v1/search?q=leeds&limit=abc", "limit must be a positive integer"},
		{"/api/v1/search?q=leeds&limit=0", "limit must be a positive integer"},
		{"/api/v1/search?q=leeds&offset=-1", "offset must be a non-negative integer"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := e.get(t, http.MethodGet, tt.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.msg, decode[map[string]string](t, rec)["error"])
		})
	}
	assert.Empty(t, e.tracker.searches)
}

func TestSearchCached(t *testing.T) {
	e := setup(t, true)

	first := decode[searchBody](t, e.get(t, http.MethodGet, "/api/v1/search?q=secondary+schools"))
	second := decode[searchBody](t, e.get(t, http.MethodGet, "/api/v1/search?q=secondary+schools"))

	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.TotalHits, second.TotalHits)
	assert.Equal(t, urns(first.Results), urns(second.Results))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.CacheHitsTotal))

	stats := decode[cache.Stats](t, e.get(t, http.MethodGet, "/api/v1/cache/stats"))
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)

	rec := e.get(t, http.MethodPost, "/api/v1/cache/invalidate")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["keys_deleted"])

	third := decode[searchBody](t, e.get(t, http.MethodGet, "/api/v1/search?q=secondary+schools"))
	assert.False(t, third.CacheHit)
}

func TestCacheDisabled(t *testing.T) {
	e := setup(t, false)

	rec := e.get(t, http.MethodGet, "/api/v1/cache/stats")
	assert.Equal(t, "disabled", decode[map[string]string](t, rec)["status"])

	rec = e.get(t, http.MethodPost, "/api/v1/cache/invalidate")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "caching is disabled", decode[map[string]string](t, rec)["error"])
}

func TestParse(t *testing.T) {
	e := setup(t, false)

	rec := e.get(t, http.MethodGet, "/api/v1/parse?q=Secondary+schools+in+London")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Query       string            `json:"query"`
		Filters     *filter.FilterSet `json:"filters"`
		Description string            `json:"description"`
		Keys        []string          `json:"keys"`
		Rules       []string          `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Filters)
	assert.Equal(t, school.PhaseSecondary, body.Filters.Phase)
	assert.Equal(t, "london", body.Filters.Region)
	assert.Equal(t, "secondary schools in london", body.Description)
	assert.Equal(t, []string{"phase", "region"}, body.Keys)
	assert.NotEmpty(t, body.Rules)
}

func TestSchool(t *testing.T) {
	e := setup(t, false)

	rec := e.get(t, http.MethodGet, "/api/v1/schools/2")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		School  school.School   `json:"school"`
		Profile profile.Profile `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Bramley High", body.School.Name)
	assert.Equal(t, school.URN("2"), body.Profile.URN)
	require.NotNil(t, body.Profile.Headline)
	assert.Equal(t, school.MetricAttainment8, body.Profile.Headline.Metric)
	assert.Equal(t, 2, body.Profile.LAPeers)

	require.Len(t, e.tracker.profiles, 1)
	assert.Equal(t, "2", e.tracker.profiles[0].URN)
}

func TestSchoolErrors(t *testing.T) {
	e := setup(t, false)

	rec := e.get(t, http.MethodGet, "/api/v1/schools/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `invalid urn "abc"`, decode[map[string]string](t, rec)["error"])

	rec = e.get(t, http.MethodGet, "/api/v1/schools/999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no school with urn 999", decode[map[string]string](t, rec)["error"])
	assert.Empty(t, e.tracker.profiles)
}

func TestCompare(t *testing.T) {
	e := setup(t, false)

	rec := e.get(t, http.MethodGet, "/api/v1/compare?urn=1,2&urn=4&urn=2")
	require.Equal(t, http.StatusOK, rec.Code)
	table := decode[profile.CompareTable](t, rec)
	require.Len(t, table.Schools, 3)
	assert.Equal(t, "Dringhouses School", table.Schools[2].Name)
	require.Len(t, table.Rows, 6)
	for _, row := range table.Rows {
		if row.Metric == school.MetricAttainment8 {
			assert.Equal(t, []int{2}, row.Best)
		}
	}
}

func TestCompareErrors(t *testing.T) {
	e := setup(t, false)

	tests := []struct {
		target string
		status int
		msg    string
	}{
		{"/api/v1/compare", http.StatusBadRequest, "compare takes between 1 and 3 schools"},
		{"/api/v1/compare?urn=1,2,3,4", http.StatusBadRequest, "compare takes between 1 and 3 schools"},
		{"/api/v1/compare?urn=1,x", http.StatusBadRequest, `invalid urn "x"`},
		{"/api/v1/compare?urn=1&urn=999", http.StatusNotFound, "no school with urn 999"},
	}
	for _, tt := range tests {
		rec := e.get(t, http.MethodGet, tt.target)
		assert.Equal(t, tt.status, rec.Code, tt.target)
		assert.Equal(t, tt.msg, decode[map[string]string](t, rec)["error"], tt.target)
	}
}

func TestSummary(t *testing.T) {
	e := setup(t, false)

	rec := e.get(t, http.MethodGet, "/api/v1/summary?q=schools+in+leeds")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Description string          `json:"description"`
		Summary     profile.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "schools in leeds", body.Description)
	assert.Equal(t, 3, body.Summary.Total)
	assert.Equal(t, 2, body.Summary.Attainment8.Count)
	require.NotNil(t, body.Summary.Attainment8.Mean)
	assert.InDelta(t, 45, *body.Summary.Attainment8.Mean, 1e-9)
}

func TestSearchCancelledContext(t *testing.T) {
	e := setup(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=leeds", nil).WithContext(ctx)
	e.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "operation timed out", decode[map[string]string](t, rec)["error"])
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.SearchQueriesTotal.WithLabelValues("error")))
}
