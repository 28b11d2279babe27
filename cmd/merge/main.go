// Command merge folds DfE key stage performance tables into the school
// dataset.
//
// The KS4 and KS2 CSVs are parsed concurrently, matched to schools by URN,
// and the merged dataset is written back as JSON. With -store the result is
// also upserted into the schools table so searchers using the postgres
// source pick it up on their next start.
//
// Usage:
//
//	go run ./cmd/merge -in data/schools.json -ks4 data/ks4.csv -ks2 data/ks2.csv [-out data/schools.json] [-store]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/andrewoneill45-ctrl/school-profile/internal/dataset"
	"github.com/andrewoneill45-ctrl/school-profile/internal/school"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/config"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/logger"
	"github.com/andrewoneill45-ctrl/school-profile/pkg/postgres"
)

type options struct {
	in  string
	out string
	ks4 string
	ks2 string
}

func main() {
	configPath := flag.String("config", "", "path to config file (needed for -store)")
	in := flag.String("in", "data/schools.json", "school dataset to merge into")
	out := flag.String("out", "", "output path (defaults to -in)")
	ks4 := flag.String("ks4", "", "KS4 performance CSV")
	ks2 := flag.String("ks2", "", "KS2 performance CSV")
	store := flag.Bool("store", false, "also upsert the merged dataset into postgres")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := options{in: *in, out: *out, ks4: *ks4, ks2: *ks2}
	if opts.out == "" {
		opts.out = opts.in
	}

	schools, reports, err := run(ctx, opts)
	if err != nil {
		slog.Error("merge failed", "error", err)
		os.Exit(1)
	}
	for _, r := range reports {
		slog.Info("merged performance data", "report", r.String())
	}

	if *store {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		if err := dataset.StorePostgres(ctx, db, schools); err != nil {
			slog.Error("failed to store dataset", "error", err)
			os.Exit(1)
		}
		slog.Info("dataset stored in postgres", "schools", len(schools))
	}
}

// run loads opts.in, merges whichever performance files are set and writes
// opts.out.
func run(ctx context.Context, opts options) ([]school.School, []dataset.MergeReport, error) {
	if opts.ks4 == "" && opts.ks2 == "" {
		return nil, nil, errors.New("at least one of -ks4 or -ks2 is required")
	}
	schools, err := dataset.LoadFile(opts.in)
	if err != nil {
		return nil, nil, err
	}

	type parsed struct {
		perf   map[school.URN]dataset.Performance
		report dataset.MergeReport
	}
	stages := []struct {
		stage string
		path  string
	}{
		{dataset.StageKS4, opts.ks4},
		{dataset.StageKS2, opts.ks2},
	}
	results := make([]*parsed, len(stages))

	g, gctx := errgroup.WithContext(ctx)
	for i, st := range stages {
		if st.path == "" {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := os.Open(st.path)
			if err != nil {
				return fmt.Errorf("opening %s file: %w", st.stage, err)
			}
			defer f.Close()
			perf, report, err := dataset.ParsePerformance(f, st.stage)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", st.path, err)
			}
			results[i] = &parsed{perf: perf, report: report}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// applied in a fixed order; the stages write disjoint fields
	var reports []dataset.MergeReport
	for _, p := range results {
		if p == nil {
			continue
		}
		report, err := dataset.Apply(schools, p.perf, p.report)
		if err != nil {
			return nil, nil, err
		}
		reports = append(reports, report)
	}

	if err := dataset.WriteFile(opts.out, schools); err != nil {
		return nil, nil, err
	}
	return schools, reports, nil
}
