// Command loadtest drives concurrent traffic at a running search service and
// reports per-endpoint latency, error rate and cache hit rate.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-concurrency 10] [-duration 30s]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

var queries = []string{
	"outstanding secondary schools in Leeds",
	"primary schools in Manchester",
	"catholic schools in london",
	"schools with Attainment 8 above 60",
	"good or outstanding schools",
	"girls schools in the midlands",
	"harris federation",
	"ri schools near SW1A 1AA",
	"free school meals above 40%",
	"small primaries in cornwall",
	"progress 8 between -0.5 and 0.5",
	"church of england primaries",
	"sixth form colleges",
	"boys grammar schools",
	"St Mary Magdalene",
}

type request struct {
	endpoint string
	path     string
}

// plan cycles through search, parse and summary calls so the cache sees
// repeat queries at a realistic rate.
func plan(i int) request {
	q := url.QueryEscape(queries[i%len(queries)])
	switch i % 5 {
	case 3:
		return request{"parse", "/api/v1/parse?q=" + q}
	case 4:
		return request{"summary", "/api/v1/summary?q=" + q}
	default:
		return request{"search", "/api/v1/search?limit=20&q=" + q}
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	flag.Parse()

	fmt.Println("=== School Search Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n\n", *duration)

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        *concurrency * 2,
			MaxIdleConnsPerHost: *concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	stats := run(ctx, client, *baseURL, *concurrency)
	stats.Report(os.Stdout, time.Since(start))

	if stats.totalRequests.Load() == 0 {
		fmt.Println("\nWARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func run(ctx context.Context, client *http.Client, baseURL string, workers int) *Stats {
	stats := NewStats()
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i += workers {
				req := plan(i)
				start := time.Now()
				status, hit, err := do(ctx, client, baseURL+req.path)
				if ctx.Err() != nil {
					return nil
				}
				stats.Record(req.endpoint, time.Since(start), status, hit, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return stats
}

func do(ctx context.Context, client *http.Client, target string) (status int, cacheHit bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	var body struct {
		CacheHit bool `json:"cache_hit"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, body.CacheHit, nil
}
