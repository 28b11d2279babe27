package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andrewoneill45-ctrl/school-profile/pkg/kafka"
)

const (
	// maxLatencySamples bounds the latency window used for percentiles.
	maxLatencySamples = 10000
	// minTrackedLabels is the floor for how many distinct queries or schools
	// a ranked map holds before the least frequent half is pruned.
	minTrackedLabels = 1000
)

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	FuzzyCount        int64        `json:"fuzzy_count"`
	ProfileViews      int64        `json:"profile_views"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	FilterKeyUsage    []QueryCount `json:"filter_key_usage"`
	TopSchools        []QueryCount `json:"top_schools"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	Since             time.Time    `json:"since"`
}

// QueryCount pairs a label (a query, filter key or URN) with how often it
// was seen.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type Aggregator struct {
	totalSearches atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
	zeroResults   atomic.Int64
	fuzzy         atomic.Int64
	profileViews  atomic.Int64

	mu                sync.RWMutex
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	filterKeys        map[string]int64
	schoolViews       map[string]int64

	topN       int
	maxTracked int
	startTime  time.Time
	now        func() time.Time
	logger     *slog.Logger
}

// NewAggregator creates an empty aggregator whose ranked lists hold at most
// topN entries.
func NewAggregator(topN int) *Aggregator {
	if topN <= 0 {
		topN = 10
	}
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		filterKeys:        make(map[string]int64),
		schoolViews:       make(map[string]int64),
		topN:              topN,
		maxTracked:        max(topN*100, minTrackedLabels),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent adapts agg to a Kafka consumer. Undecodable messages are logged
// and skipped so one bad event cannot stall the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		var env envelope
		if err := json.Unmarshal(value, &env); err != nil {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
			return nil
		}
		switch env.Type {
		case EventSearch, EventZeroResult:
			event, err := kafka.DecodeJSON[SearchEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode search event", "error", err)
				return nil
			}
			agg.RecordSearch(event)
		case EventProfileView:
			event, err := kafka.DecodeJSON[ProfileEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode profile event", "error", err)
				return nil
			}
			agg.RecordProfileView(event)
		default:
			agg.logger.Warn("unknown analytics event type", "type", env.Type)
		}
		return nil
	}
}

func (a *Aggregator) RecordSearch(event SearchEvent) {
	a.totalSearches.Add(1)
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	if event.TotalHits == 0 {
		a.zeroResults.Add(1)
	}
	if event.Fuzzy {
		a.fuzzy.Add(1)
	}

	query := normalizeQuery(event.Query)

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	a.queryCounts[query]++
	a.prune(a.queryCounts)
	if event.TotalHits == 0 {
		a.zeroResultQueries[query]++
		a.prune(a.zeroResultQueries)
	}
	for _, k := range event.FilterKeys {
		a.filterKeys[k]++
	}
}

func (a *Aggregator) RecordProfileView(event ProfileEvent) {
	if event.URN == "" {
		return
	}
	a.profileViews.Add(1)
	label := event.URN
	if event.Name != "" {
		label = event.URN + " " + event.Name
	}
	a.mu.Lock()
	a.schoolViews[label]++
	a.prune(a.schoolViews)
	a.mu.Unlock()
}

// Restore seeds the counters from a previous snapshot so totals survive a
// restart. Only the ranked entries the snapshot kept come back.
func (a *Aggregator) Restore(prev AggregatedStats) {
	a.totalSearches.Add(prev.TotalSearches)
	a.cacheHits.Add(prev.CacheHits)
	a.cacheMisses.Add(prev.CacheMisses)
	a.zeroResults.Add(prev.ZeroResultCount)
	a.fuzzy.Add(prev.FuzzyCount)
	a.profileViews.Add(prev.ProfileViews)

	a.mu.Lock()
	defer a.mu.Unlock()
	restore := func(dst map[string]int64, src []QueryCount) {
		for _, qc := range src {
			dst[qc.Query] += qc.Count
		}
	}
	restore(a.queryCounts, prev.TopQueries)
	restore(a.zeroResultQueries, prev.ZeroResultQueries)
	restore(a.filterKeys, prev.FilterKeyUsage)
	restore(a.schoolViews, prev.TopSchools)
	if !prev.Since.IsZero() && prev.Since.Before(a.startTime) {
		a.startTime = prev.Since
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches.Load(),
		CacheHits:       a.cacheHits.Load(),
		CacheMisses:     a.cacheMisses.Load(),
		ZeroResultCount: a.zeroResults.Load(),
		FuzzyCount:      a.fuzzy.Load(),
		ProfileViews:    a.profileViews.Load(),
		Since:           a.startTime.UTC(),
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, a.topN)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, a.topN)
	stats.FilterKeyUsage = topN(a.filterKeys, len(a.filterKeys))
	stats.TopSchools = topN(a.schoolViews, a.topN)

	elapsed := a.now().Sub(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

// prune keeps the most frequent half of counts once it grows past
// maxTracked. Callers hold a.mu.
func (a *Aggregator) prune(counts map[string]int64) {
	if len(counts) <= a.maxTracked {
		return
	}
	keep := topN(counts, a.maxTracked/2)
	clear(counts)
	for _, qc := range keep {
		counts[qc.Query] = qc.Count
	}
}

// normalizeQuery folds case and whitespace so "Schools in Leeds" and
// "schools  in leeds" count as one query.
func normalizeQuery(q string) string {
	q = strings.Join(strings.Fields(strings.ToLower(q)), " ")
	if q == "" {
		return "(all)"
	}
	return q
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
