// Command insights appends one day of campaign-level ads performance per
// account to the performance worksheet. Without date flags it processes
// yesterday, the shape a daily scheduler wants.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wpratama/meta-billing-sync/internal/config"
	"github.com/wpratama/meta-billing-sync/internal/graph"
	"github.com/wpratama/meta-billing-sync/internal/insights"
	"github.com/wpratama/meta-billing-sync/internal/logger"
	"github.com/wpratama/meta-billing-sync/internal/sheets"
)

func main() {
	date := flag.String("date", "", "Single date in YYYY-MM-DD format")
	startDate := flag.String("start-date", "", "Start date in YYYY-MM-DD format (requires --end-date)")
	endDate := flag.String("end-date", "", "End date in YYYY-MM-DD format (requires --start-date)")
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
	if cfg.SpreadsheetID == "" || cfg.CredentialsFile == "" {
		log.Fatal().Msg("SPREADSHEET_ID and GOOGLE_CREDENTIALS_FILE are required for insights")
	}

	dates, err := resolveDates(*date, *startDate, *endDate, cfg.Location())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid date flags")
	}

	ctx := logger.WithContext(context.Background(), log)

	total, err := run(ctx, cfg, dates)
	if err != nil {
		log.Fatal().Err(err).Msg("Insights ingestion failed")
	}

	fmt.Printf("Total %d performance rows added\n", total)
}

// resolveDates turns the flags into the list of days to process: an
// explicit range, a single day, or yesterday by default.
func resolveDates(date, startDate, endDate string, loc *time.Location) ([]string, error) {
	switch {
	case startDate != "" || endDate != "":
		if startDate == "" || endDate == "" {
			return nil, errors.New("--start-date and --end-date must be used together")
		}
		if date != "" {
			return nil, errors.New("--date cannot be combined with a date range")
		}
		return insights.DateRange(startDate, endDate, loc)
	case date != "":
		return insights.DateRange(date, date, loc)
	default:
		return []string{insights.Yesterday(loc)}, nil
	}
}

func run(ctx context.Context, cfg *config.Config, dates []string) (int, error) {
	sink, err := sheets.NewPerformance(ctx, cfg.CredentialsFile, cfg.SpreadsheetID, cfg.InsightsWorksheet)
	if err != nil {
		return 0, fmt.Errorf("run: initializing sink: %w", err)
	}

	client := graph.NewClient(graph.Options{
		AccessToken: cfg.AccessToken,
		Versions:    cfg.APIVersions,
		Timeout:     cfg.Timeout,
		RetryCount:  cfg.RetryCount,
	})

	runner := &insights.Runner{
		Source:     client,
		Sink:       sink,
		BrandRules: cfg.BrandRules,
	}
	return runner.Run(ctx, cfg.AccountIDs, dates)
}
