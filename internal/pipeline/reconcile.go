package pipeline

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wpratama/meta-billing-sync/internal/logger"
	"github.com/wpratama/meta-billing-sync/internal/tax"
)

// Reconcile appends the transactions whose id is not yet in the sink, in
// input order, and returns the number of rows actually appended. The gross
// amount is recomputed here from the base amount rather than trusting the
// value the extractor stored, through the same tax.Compute both use. A
// per-row append failure skips that row and continues; the count reflects
// only successful appends. First write wins: an id already present is never
// re-appended, whatever its other fields.
func Reconcile(ctx context.Context, sink Sink, txs []*Transaction, taxRate decimal.Decimal) (int, error) {
	log := logger.FromContext(ctx)

	existing, err := sink.ExistingIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("Reconcile: loading existing transaction ids: %w", err)
	}

	if err := sink.EnsureCapacity(ctx, len(txs)); err != nil {
		log.Warn().Err(err).Msg("Could not ensure sink capacity, appending anyway")
	}

	count := 0
	for _, tx := range txs {
		if _, dup := existing[tx.TransactionID]; dup {
			log.Debug().
				Str("transaction_id", tx.TransactionID).
				Msg("Skipping duplicate transaction id")
			continue
		}

		_, gross := tax.Compute(tx.Amount, taxRate)
		row := Row{
			AccountName:   tx.AccountName,
			TransactionID: tx.TransactionID,
			Date:          tx.Date,
			BaseAmount:    tx.Amount,
			GrossAmount:   gross,
			Card:          tx.Card,
			InvoiceURL:    InvoiceURL(tx.AccountID, tx.TransactionID),
		}

		if err := sink.AppendRow(ctx, row); err != nil {
			log.Warn().
				Str("transaction_id", tx.TransactionID).
				Err(err).
				Msg("Failed to append row, continuing with the rest")
			continue
		}

		// Guards against a duplicate id later in the same batch.
		existing[tx.TransactionID] = struct{}{}
		count++

		log.Info().
			Str("account", tx.AccountName).
			Str("transaction_id", tx.TransactionID).
			Str("date", tx.Date).
			Str("base", tx.Amount.String()).
			Str("gross", gross.String()).
			Msg("Added transaction")
	}

	return count, nil
}
