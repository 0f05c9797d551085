// Package bigquery is the export-mode sink: the same reconciled rows, but
// streamed into a BigQuery table instead of the spreadsheet.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/wpratama/meta-billing-sync/internal/pipeline"
)

// transactionRow is the BigQuery schema mapping for one reconciled row.
type transactionRow struct {
	AccountName       string    `bigquery:"account_name"`
	TransactionID     string    `bigquery:"transaction_id"`
	ExternalReference string    `bigquery:"external_reference"`
	TransactionDate   string    `bigquery:"transaction_date"`
	BaseAmount        float64   `bigquery:"base_amount"`
	GrossAmount       float64   `bigquery:"gross_amount"`
	Card              string    `bigquery:"card"`
	InvoiceURL        string    `bigquery:"invoice_url"`
	InsertedTS        time.Time `bigquery:"inserted_ts"`
}

// Sink implements pipeline.Sink on a BigQuery table.
type Sink struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// New creates a BigQuery-backed sink. Close releases the client.
func New(ctx context.Context, projectID, dataset, table string) (*Sink, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bigquery.New: creating client: %w", err)
	}
	return &Sink{client: client, dataset: dataset, table: table}, nil
}

// Close releases the underlying client.
func (s *Sink) Close() error {
	return s.client.Close()
}

// ExistingIDs loads the distinct transaction ids already in the table.
func (s *Sink) ExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT DISTINCT transaction_id
		FROM %s.%s
	`, s.dataset, s.table))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ExistingIDs: query read: %w", err)
	}

	ids := make(map[string]struct{})
	for {
		var r struct {
			TransactionID string `bigquery:"transaction_id"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ExistingIDs: iter next: %w", err)
		}
		if r.TransactionID != "" {
			ids[r.TransactionID] = struct{}{}
		}
	}
	return ids, nil
}

// EnsureCapacity is a no-op; BigQuery tables grow on insert.
func (s *Sink) EnsureCapacity(ctx context.Context, minRows int) error {
	return nil
}

// AppendRow streams one row through the table inserter.
func (s *Sink) AppendRow(ctx context.Context, row pipeline.Row) error {
	base, _ := row.BaseAmount.Float64()
	gross, _ := row.GrossAmount.Float64()

	inserter := s.client.Dataset(s.dataset).Table(s.table).Inserter()
	err := inserter.Put(ctx, &transactionRow{
		AccountName:       row.AccountName,
		TransactionID:     row.TransactionID,
		ExternalReference: row.ExternalRef,
		TransactionDate:   row.Date,
		BaseAmount:        base,
		GrossAmount:       gross,
		Card:              row.Card,
		InvoiceURL:        row.InvoiceURL,
		InsertedTS:        time.Now(),
	})
	if err != nil {
		return fmt.Errorf("AppendRow: transaction %s: %w", row.TransactionID, err)
	}
	return nil
}
