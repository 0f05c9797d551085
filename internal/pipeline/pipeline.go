// Package pipeline reconciles upstream billing activities against the sink:
// classify, extract, deduplicate, append.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wpratama/meta-billing-sync/internal/graph"
	"github.com/wpratama/meta-billing-sync/internal/logger"
)

// Runner wires the source, extractor and sink into one reconciliation run.
type Runner struct {
	Source    ActivitySource
	Sink      Sink
	Extractor *Extractor
}

// Run processes each account sequentially for the window and returns the
// total number of rows appended. A single account failing its version probe
// is reported and skipped; every account failing means the API is not
// reachable at all and the run fails.
func (r *Runner) Run(ctx context.Context, accountIDs []string, w graph.Window) (int, error) {
	log := logger.FromContext(ctx).With().Str("run_id", uuid.NewString()).Logger()
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("start", w.Start.Format("2006-01-02")).
		Str("end", w.End.Format("2006-01-02")).
		Int("accounts", len(accountIDs)).
		Msg("Fetching transaction data")

	total := 0
	probed := 0
	for _, accountID := range accountIDs {
		account, version, err := r.Source.ProbeVersion(ctx, accountID)
		if err != nil {
			log.Error().
				Str("account", accountID).
				Err(err).
				Msg("Skipping account, no usable API version")
			continue
		}
		probed++

		activities := r.Source.SelectActivities(ctx, accountID, version, w, r.Extractor.InWindow(w))
		payments := FilterPayments(activities)
		log.Info().
			Str("account", accountID).
			Int("activities", len(activities)).
			Int("payment_activities", len(payments)).
			Msg("Fetched activities")

		txs := r.Extractor.ExtractAll(ctx, account, payments)
		log.Info().
			Str("account", accountID).
			Int("transactions", len(txs)).
			Msg("Extracted transactions")

		if len(txs) == 0 {
			log.Info().
				Str("account", accountID).
				Msg("No transaction data in the requested window")
			continue
		}

		count, err := Reconcile(ctx, r.Sink, txs, r.Extractor.TaxRate())
		if err != nil {
			return total, fmt.Errorf("Run: account %s: %w", accountID, err)
		}
		total += count
		log.Info().
			Str("account", accountID).
			Int("appended", count).
			Msg("Account reconciled")
	}

	if probed == 0 && len(accountIDs) > 0 {
		return total, errors.New("Run: no account responded on any API version")
	}

	log.Info().Int("appended", total).Msg("Run complete")
	return total, nil
}
