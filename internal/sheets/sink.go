// Package sheets persists reconciled transactions and daily campaign
// performance in Google Sheets worksheets, the store the billing team
// actually works in.
package sheets

import (
	"context"
	"fmt"

	"github.com/wpratama/meta-billing-sync/internal/pipeline"
)

// headerRow is the fixed 8-column layout. "Faktur Pajak" (the Indonesian
// tax invoice number) stays blank; finance fills it in by hand.
var headerRow = []string{
	"Account",
	"Transaction ID",
	"Faktur Pajak",
	"Date (yyyy-mm-dd)",
	"Amount",
	"Amount + Tax",
	"Card",
	"URL Invoice",
}

// Sink implements pipeline.Sink on top of one worksheet.
type Sink struct {
	ws *worksheet
}

// New opens the spreadsheet with service-account credentials, creating the
// worksheet and its header row when absent.
func New(ctx context.Context, credentialsFile, spreadsheetID, worksheet string) (*Sink, error) {
	svc, err := newService(ctx, credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets.New: %w", err)
	}
	ws, err := openWorksheet(ctx, svc, spreadsheetID, worksheet, headerRow)
	if err != nil {
		return nil, fmt.Errorf("sheets.New: %w", err)
	}
	return &Sink{ws: ws}, nil
}

// ExistingIDs reads the Transaction ID column below the header.
func (s *Sink) ExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	values, err := s.ws.readColumn(ctx, "B2:B")
	if err != nil {
		return nil, fmt.Errorf("ExistingIDs: reading transaction id column: %w", err)
	}

	ids := make(map[string]struct{}, len(values))
	for _, id := range values {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// EnsureCapacity grows the worksheet grid by minRows. Best effort; the
// caller treats a failure as advisory.
func (s *Sink) EnsureCapacity(ctx context.Context, minRows int) error {
	if err := s.ws.appendRows(ctx, minRows); err != nil {
		return fmt.Errorf("EnsureCapacity: %w", err)
	}
	return nil
}

// AppendRow appends one transaction row after the existing data.
func (s *Sink) AppendRow(ctx context.Context, row pipeline.Row) error {
	if err := s.ws.appendValues(ctx, row.Values()); err != nil {
		return fmt.Errorf("AppendRow: transaction %s: %w", row.TransactionID, err)
	}
	return nil
}
