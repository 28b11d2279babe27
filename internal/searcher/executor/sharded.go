package executor

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/andrewoneill45-ctrl/school-profile/internal/dataset"
	"github.com/andrewoneill45-ctrl/school-profile/internal/school"
	"github.com/andrewoneill45-ctrl/school-profile/internal/searcher/filter"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/tracing"
)

// minShardSize keeps small datasets on a single goroutine.
const minShardSize = 2048

// ShardedExecutor splits the dataset into contiguous shards and evaluates a
// filter set over them concurrently. Shard results are concatenated in shard
// order, so output order matches Executor exactly.
type ShardedExecutor struct {
	ds     *dataset.Dataset
	shards [][]school.School
	logger *slog.Logger
}

func NewSharded(ds *dataset.Dataset, shards int) *ShardedExecutor {
	return &ShardedExecutor{
		ds:     ds,
		shards: split(ds.All(), shards, minShardSize),
		logger: slog.Default().With("component", "sharded-executor"),
	}
}

// split cuts all into at most n contiguous shards. Inputs too small to give
// every shard minSize schools get fewer shards.
func split(all []school.School, n, minSize int) [][]school.School {
	if n < 1 {
		n = 1
	}
	n = min(n, max(1, len(all)/max(minSize, 1)))
	size := (len(all) + n - 1) / n
	out := make([][]school.School, 0, n)
	for start := 0; start < len(all); start += size {
		out = append(out, all[start:min(start+size, len(all))])
	}
	return out
}

// Shards is the number of shards evaluated per query.
func (se *ShardedExecutor) Shards() int { return len(se.shards) }

func (se *ShardedExecutor) Match(ctx context.Context, query string) (*Match, error) {
	fs, rules := compile(ctx, query)
	if fs == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &Match{Schools: se.ds.All()}, nil
	}
	schools, err := se.fanOut(ctx, fs)
	if err != nil {
		return nil, fmt.Errorf("shard fan-out: %w", err)
	}
	return &Match{Filters: fs, Rules: rules, Schools: schools}, nil
}

func (se *ShardedExecutor) Execute(ctx context.Context, query string, limit, offset int) (*SearchResult, error) {
	m, err := se.Match(ctx, query)
	if err != nil {
		return nil, err
	}
	result := Page(query, m, limit, offset)
	se.logger.Debug("sharded query executed",
		"query", query,
		"shards_queried", len(se.shards),
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
	)
	return result, nil
}

func (se *ShardedExecutor) fanOut(ctx context.Context, fs *filter.FilterSet) ([]school.School, error) {
	parts := make([][]school.School, len(se.shards))
	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range se.shards {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, span := tracing.StartChildSpan(ctx, "shard")
			parts[i] = filter.Apply(shard, fs)
			span.SetAttr("shard", i)
			span.SetAttr("hits", len(parts[i]))
			span.End()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]school.School, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}
