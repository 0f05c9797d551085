package sheets

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/wpratama/meta-billing-sync/internal/logger"
)

// newService opens the Sheets API with service-account credentials.
func newService(ctx context.Context, credentialsFile string) (*sheetsapi.Service, error) {
	svc, err := sheetsapi.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheetsapi.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("newService: %w", err)
	}
	return svc, nil
}

// worksheet wraps one titled grid inside a spreadsheet: open or create,
// header bootstrap, column reads and row appends. Both sinks build on it.
type worksheet struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	title         string
	sheetID       int64
	columns       int
}

// openWorksheet finds the worksheet by title, creating it and writing the
// header row when absent.
func openWorksheet(ctx context.Context, svc *sheetsapi.Service, spreadsheetID, title string, header []string) (*worksheet, error) {
	ws := &worksheet{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		title:         title,
		columns:       len(header),
	}
	if err := ws.ensureSheet(ctx); err != nil {
		return nil, err
	}
	if err := ws.ensureHeader(ctx, header); err != nil {
		return nil, err
	}
	return ws, nil
}

func (w *worksheet) ensureSheet(ctx context.Context) error {
	log := logger.FromContext(ctx)

	spreadsheet, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("ensureSheet: opening spreadsheet %s: %w", w.spreadsheetID, err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == w.title {
			w.sheetID = sheet.Properties.SheetId
			return nil
		}
	}

	log.Info().Str("worksheet", w.title).Msg("Creating missing worksheet")
	resp, err := w.svc.Spreadsheets.BatchUpdate(w.spreadsheetID, &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{{
			AddSheet: &sheetsapi.AddSheetRequest{
				Properties: &sheetsapi.SheetProperties{
					Title: w.title,
					GridProperties: &sheetsapi.GridProperties{
						RowCount:    1000,
						ColumnCount: 20,
					},
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("ensureSheet: creating worksheet %s: %w", w.title, err)
	}
	w.sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	return nil
}

// ensureHeader writes the header row when the first row is empty.
func (w *worksheet) ensureHeader(ctx context.Context, header []string) error {
	headerRange := fmt.Sprintf("A1:%s1", columnLetter(len(header)))
	resp, err := w.svc.Spreadsheets.Values.Get(w.spreadsheetID, w.rangeRef(headerRange)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("ensureHeader: reading header row: %w", err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	if err := w.appendValues(ctx, header); err != nil {
		return fmt.Errorf("ensureHeader: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().Str("worksheet", w.title).Msg("Added header row to worksheet")
	return nil
}

// readColumn returns the non-empty string cells of a column range.
func (w *worksheet) readColumn(ctx context.Context, cells string) ([]string, error) {
	resp, err := w.svc.Spreadsheets.Values.Get(w.spreadsheetID, w.rangeRef(cells)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("readColumn: %s: %w", cells, err)
	}

	var out []string
	for _, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if v, ok := row[0].(string); ok && v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

// appendValues appends one row after the existing data.
func (w *worksheet) appendValues(ctx context.Context, values []string) error {
	_, err := w.svc.Spreadsheets.Values.Append(w.spreadsheetID, w.rangeRef("A1"), &sheetsapi.ValueRange{
		Values: [][]interface{}{toInterfaceRow(values)},
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appendValues: %w", err)
	}
	return nil
}

// appendRows grows the worksheet grid by n rows.
func (w *worksheet) appendRows(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := w.svc.Spreadsheets.BatchUpdate(w.spreadsheetID, &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{{
			AppendDimension: &sheetsapi.AppendDimensionRequest{
				SheetId:   w.sheetID,
				Dimension: "ROWS",
				Length:    int64(n),
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appendRows: appending %d rows: %w", n, err)
	}
	return nil
}

func (w *worksheet) rangeRef(cells string) string {
	return fmt.Sprintf("'%s'!%s", w.title, cells)
}

// columnLetter names the nth column, 1-based. Both layouts fit in A..Z.
func columnLetter(n int) string {
	return string(rune('A' + n - 1))
}

func toInterfaceRow(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
