// Package executor runs a free-text school search against the loaded
// dataset: compile the query, evaluate the filter set, then page the
// matches. Results keep dataset order.
package executor

import (
	"context"
	"log/slog"

	"github.com/andrewoneill45-ctrl/school-profile/internal/dataset"
	"github.com/andrewoneill45-ctrl/school-profile/internal/school"
	"github.com/andrewoneill45-ctrl/school-profile/internal/searcher/filter"
	"github.com/andrewoneill45-ctrl/school-profile/internal/searcher/parser"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/tracing"
)

type SearchResult struct {
	Query       string            `json:"query"`
	Filters     *filter.FilterSet `json:"filters"`
	Description string            `json:"description"`
	Rules       []string          `json:"rules,omitempty"`
	TotalHits   int               `json:"total_hits"`
	Offset      int               `json:"offset"`
	Limit       int               `json:"limit"`
	Results     []school.School   `json:"results"`
}

// Fuzzy reports whether the query fell through to the fuzzy fallback.
func (r *SearchResult) Fuzzy() bool {
	return r.Filters != nil && r.Filters.FuzzyQuery != ""
}

// Match is a compiled query and every school it selects.
type Match struct {
	Filters *filter.FilterSet
	Rules   []string
	Schools []school.School
}

type Executor struct {
	ds     *dataset.Dataset
	logger *slog.Logger
}

func New(ds *dataset.Dataset) *Executor {
	return &Executor{
		ds:     ds,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Match compiles query and evaluates it over the whole dataset. A blank
// query matches every school.
func (e *Executor) Match(ctx context.Context, query string) (*Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fs, rules := compile(ctx, query)
	_, span := tracing.StartChildSpan(ctx, "filter")
	schools := filter.Apply(e.ds.All(), fs)
	span.SetAttr("hits", len(schools))
	span.End()
	return &Match{Filters: fs, Rules: rules, Schools: schools}, nil
}

func compile(ctx context.Context, query string) (*filter.FilterSet, []string) {
	_, span := tracing.StartChildSpan(ctx, "compile")
	defer span.End()
	fs, rules := parser.Trace(query)
	span.SetAttr("rules", rules)
	return fs, rules
}

func (e *Executor) Execute(ctx context.Context, query string, limit, offset int) (*SearchResult, error) {
	m, err := e.Match(ctx, query)
	if err != nil {
		return nil, err
	}
	result := Page(query, m, limit, offset)
	e.logger.Debug("query executed",
		"query", query,
		"rules", m.Rules,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
	)
	return result, nil
}

// Page cuts one page out of m. A limit <= 0 returns everything after offset.
func Page(query string, m *Match, limit, offset int) *SearchResult {
	total := len(m.Schools)
	start := min(max(offset, 0), total)
	end := total
	if limit > 0 {
		end = min(start+limit, total)
	}
	results := make([]school.School, end-start)
	copy(results, m.Schools[start:end])
	return &SearchResult{
		Query:       query,
		Filters:     m.Filters,
		Description: filter.Describe(m.Filters),
		Rules:       m.Rules,
		TotalHits:   total,
		Offset:      start,
		Limit:       limit,
		Results:     results,
	}
}
