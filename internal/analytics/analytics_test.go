package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewoneill45-ctrl/school-profile/pkg/config"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *fakePublisher) Publish(_ context.Context, events ...kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *fakePublisher) events() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []kafka.Event
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func (p *fakePublisher) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func TestCollectorBatchesBySize(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, config.AnalyticsConfig{BufferSize: 100, BatchSize: 3, FlushInterval: time.Hour})
	c.Start(context.Background())

	for i := 0; i < 3; i++ {
		c.TrackSearch(SearchEvent{Query: "schools in leeds", TotalHits: 4})
	}
	require.Eventually(t, func() bool { return pub.batchCount() == 1 }, time.Second, 5*time.Millisecond)

	c.TrackSearch(SearchEvent{Query: "nothing", TotalHits: 0})
	c.Close()

	events := pub.events()
	require.Len(t, events, 4)
	assert.Equal(t, string(EventSearch), events[0].Key)
	assert.Equal(t, string(EventZeroResult), events[3].Key)
	assert.Equal(t, int64(4), c.Published())

	ev := events[0].Value.(SearchEvent)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestCollectorFlushesOnInterval(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, config.AnalyticsConfig{BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	c.Start(context.Background())
	defer c.Close()

	c.TrackProfile(ProfileEvent{URN: "100001", Name: "Aston Academy"})
	require.Eventually(t, func() bool { return len(pub.events()) == 1 }, time.Second, 5*time.Millisecond)

	ev := pub.events()[0]
	assert.Equal(t, "100001", ev.Key)
	assert.Equal(t, EventProfileView, ev.Value.(ProfileEvent).Type)
}

func TestCollectorFlushesOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, config.AnalyticsConfig{BatchSize: 100, FlushInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	c.TrackSearch(SearchEvent{Query: "a", TotalHits: 1})
	c.TrackSearch(SearchEvent{Query: "b", TotalHits: 1})
	cancel()
	c.Close()

	assert.Len(t, pub.events(), 2)
}

func TestCollectorDropsAfterClose(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, config.AnalyticsConfig{})
	c.Close()
	c.Close()

	assert.NotPanics(t, func() { c.TrackSearch(SearchEvent{Query: "late"}) })
	assert.Equal(t, int64(1), c.Dropped())
}

func TestCollectorDropsWhenFull(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, config.AnalyticsConfig{BufferSize: 2})

	for i := 0; i < 5; i++ {
		c.TrackSearch(SearchEvent{Query: "q", TotalHits: 1})
	}
	assert.Equal(t, int64(3), c.Dropped())
}

func TestCollectorCountsFailedBatches(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, config.AnalyticsConfig{BatchSize: 2, FlushInterval: time.Hour})
	c.Start(context.Background())

	c.TrackSearch(SearchEvent{Query: "a", TotalHits: 1})
	c.TrackSearch(SearchEvent{Query: "b", TotalHits: 1})
	c.Close()

	assert.Equal(t, int64(2), c.Failed())
	assert.Equal(t, int64(0), c.Published())
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator(2)
	start := agg.startTime
	agg.now = func() time.Time { return start.Add(2 * time.Minute) }

	agg.RecordSearch(SearchEvent{Query: "Schools in Leeds", FilterKeys: []string{"la"}, TotalHits: 40, LatencyMs: 10, CacheHit: true})
	agg.RecordSearch(SearchEvent{Query: "schools  in leeds", FilterKeys: []string{"la"}, TotalHits: 40, LatencyMs: 20})
	agg.RecordSearch(SearchEvent{Query: "outstanding primary", FilterKeys: []string{"ofsted", "phase"}, TotalHits: 12, LatencyMs: 30})
	agg.RecordSearch(SearchEvent{Query: "zzzz", FilterKeys: []string{"fuzzyQuery"}, Fuzzy: true, TotalHits: 0, LatencyMs: 40})
	agg.RecordProfileView(ProfileEvent{URN: "100001", Name: "Aston Academy"})
	agg.RecordProfileView(ProfileEvent{URN: "100001", Name: "Aston Academy"})
	agg.RecordProfileView(ProfileEvent{})

	s := agg.Stats()
	assert.Equal(t, int64(4), s.TotalSearches)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(3), s.CacheMisses)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, int64(1), s.FuzzyCount)
	assert.Equal(t, int64(2), s.ProfileViews)
	assert.InDelta(t, 25, s.AvgLatencyMs, 1e-9)
	assert.Equal(t, int64(30), s.P50LatencyMs)
	assert.Equal(t, int64(40), s.P99LatencyMs)
	assert.InDelta(t, 2, s.QueriesPerMinute, 1e-9)

	assert.Equal(t, []QueryCount{
		{Query: "schools in leeds", Count: 2},
		{Query: "outstanding primary", Count: 1},
	}, s.TopQueries)
	assert.Equal(t, []QueryCount{{Query: "zzzz", Count: 1}}, s.ZeroResultQueries)
	assert.Equal(t, []QueryCount{
		{Query: "la", Count: 2},
		{Query: "fuzzyQuery", Count: 1},
		{Query: "ofsted", Count: 1},
		{Query: "phase", Count: 1},
	}, s.FilterKeyUsage)
	assert.Equal(t, []QueryCount{{Query: "100001 Aston Academy", Count: 2}}, s.TopSchools)
}

func TestAggregatorLatencyWindow(t *testing.T) {
	agg := NewAggregator(10)
	for i := 0; i < maxLatencySamples+5; i++ {
		agg.RecordSearch(SearchEvent{Query: "q", TotalHits: 1, LatencyMs: int64(i)})
	}
	agg.mu.RLock()
	assert.Len(t, agg.latencies, maxLatencySamples)
	agg.mu.RUnlock()
	assert.Equal(t, int64(maxLatencySamples+5), agg.Stats().TotalSearches)
}

func TestAggregatorRestore(t *testing.T) {
	agg := NewAggregator(10)
	since := agg.startTime.Add(-time.Hour)
	agg.Restore(AggregatedStats{
		TotalSearches: 10,
		CacheHits:     4,
		TopQueries:    []QueryCount{{Query: "schools in leeds", Count: 6}},
		Since:         since,
	})
	agg.RecordSearch(SearchEvent{Query: "schools in leeds", TotalHits: 3})

	s := agg.Stats()
	assert.Equal(t, int64(11), s.TotalSearches)
	assert.Equal(t, int64(4), s.CacheHits)
	assert.Equal(t, []QueryCount{{Query: "schools in leeds", Count: 7}}, s.TopQueries)
	assert.True(t, s.Since.Equal(since))
}

func TestAggregatorPrunesRareQueries(t *testing.T) {
	agg := NewAggregator(2)
	agg.maxTracked = 10
	for i := 0; i < 5; i++ {
		agg.RecordSearch(SearchEvent{Query: "schools in york", TotalHits: 3})
	}
	for i := 0; i < 50; i++ {
		agg.RecordSearch(SearchEvent{Query: fmt.Sprintf("typo %d", i)})
	}

	agg.mu.RLock()
	assert.LessOrEqual(t, len(agg.queryCounts), 10)
	assert.LessOrEqual(t, len(agg.zeroResultQueries), 10)
	agg.mu.RUnlock()

	s := agg.Stats()
	assert.Equal(t, int64(55), s.TotalSearches)
	assert.Equal(t, int64(50), s.ZeroResultCount)
	require.NotEmpty(t, s.TopQueries)
	assert.Equal(t, QueryCount{Query: "schools in york", Count: 5}, s.TopQueries[0])
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator(10)
	handle := HandleEvent(agg)
	ctx := context.Background()

	search, _ := json.Marshal(SearchEvent{Type: EventZeroResult, Query: "nothing", Fuzzy: true})
	view, _ := json.Marshal(ProfileEvent{Type: EventProfileView, URN: "100002"})

	require.NoError(t, handle(ctx, []byte("zero_result"), search))
	require.NoError(t, handle(ctx, []byte("100002"), view))
	require.NoError(t, handle(ctx, nil, []byte(`{not json`)))
	require.NoError(t, handle(ctx, nil, []byte(`{"type":"index_document"}`)))

	s := agg.Stats()
	assert.Equal(t, int64(1), s.TotalSearches)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, int64(1), s.FuzzyCount)
	assert.Equal(t, int64(1), s.ProfileViews)
}
