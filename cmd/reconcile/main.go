// Command reconcile runs one batch reconciliation of Meta ads billing
// transactions into the configured sink.
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/rs/zerolog"

	bqsink "github.com/wpratama/meta-billing-sync/internal/bigquery"
	"github.com/wpratama/meta-billing-sync/internal/config"
	"github.com/wpratama/meta-billing-sync/internal/graph"
	"github.com/wpratama/meta-billing-sync/internal/logger"
	"github.com/wpratama/meta-billing-sync/internal/pipeline"
	"github.com/wpratama/meta-billing-sync/internal/sheets"
)

func main() {
	startDate := flag.String("start-date", "", "Start date in YYYY-MM-DD format (requires --end-date)")
	endDate := flag.String("end-date", "", "End date in YYYY-MM-DD format (requires --start-date)")
	lastDays := flag.Int("last-days", 0, "Fetch data for the last N days (default from LOOKBACK_DAYS)")
	sinkKind := flag.String("sink", "", "Sink override: sheets or bigquery (default from SINK)")
	debug := flag.Bool("debug", false, "Enable verbose logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := logger.NewWithLevel(level)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration error")
	}
	if *sinkKind != "" {
		cfg.SinkKind = *sinkKind
		if err := cfg.Validate(); err != nil {
			log.Fatal().Err(err).Msg("Configuration error")
		}
	}

	var window graph.Window
	switch {
	case *startDate != "" || *endDate != "":
		if *startDate == "" || *endDate == "" {
			log.Fatal().Msg("--start-date and --end-date must be used together")
		}
		window, err = graph.NewWindow(*startDate, *endDate, cfg.Location())
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid date format, use YYYY-MM-DD")
		}
	default:
		days := *lastDays
		if days <= 0 {
			days = cfg.LookbackDays
		}
		window = graph.LastDays(days, cfg.Location())
	}

	ctx := logger.WithContext(context.Background(), log)

	// log.Fatal skips deferred calls, so the run and its sink cleanup
	// live in their own function and the fatal exit happens afterwards.
	total, err := run(ctx, cfg, window)
	if err != nil {
		log.Fatal().Err(err).Msg("Reconciliation failed")
	}

	fmt.Printf("Total %d new transactions added\n", total)
}

func run(ctx context.Context, cfg *config.Config, window graph.Window) (int, error) {
	sink, cleanup, err := buildSink(ctx, cfg)
	if err != nil {
		return 0, fmt.Errorf("run: initializing sink: %w", err)
	}
	defer cleanup()

	client := graph.NewClient(graph.Options{
		AccessToken: cfg.AccessToken,
		Versions:    cfg.APIVersions,
		Timeout:     cfg.Timeout,
		RetryCount:  cfg.RetryCount,
	})

	runner := &pipeline.Runner{
		Source:    client,
		Sink:      sink,
		Extractor: pipeline.NewExtractor(cfg.Location(), cfg.TaxRate, cfg.CardDefaults, cfg.DefaultCard),
	}
	return runner.Run(ctx, cfg.AccountIDs, window)
}

func buildSink(ctx context.Context, cfg *config.Config) (pipeline.Sink, func(), error) {
	switch cfg.SinkKind {
	case "bigquery":
		s, err := bqsink.New(ctx, cfg.BQProject, cfg.BQDataset, cfg.BQTable)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		s, err := sheets.New(ctx, cfg.CredentialsFile, cfg.SpreadsheetID, cfg.WorksheetName)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}
