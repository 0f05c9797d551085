package sheets

import (
	"context"
	"fmt"

	"github.com/wpratama/meta-billing-sync/internal/insights"
)

// performanceHeader is the fixed 12-column layout of the campaign
// performance worksheet.
var performanceHeader = []string{
	"Date",
	"Brand",
	"Campaign Name",
	"Account ID",
	"Account Name",
	"Impressions",
	"Spend",
	"CPM",
	"Clicks",
	"CPC",
	"CTR",
	"Reach",
}

// PerformanceSink implements insights.Sink on top of one worksheet.
type PerformanceSink struct {
	ws *worksheet
}

// NewPerformance opens the spreadsheet with service-account credentials,
// creating the performance worksheet and its header row when absent.
func NewPerformance(ctx context.Context, credentialsFile, spreadsheetID, worksheet string) (*PerformanceSink, error) {
	svc, err := newService(ctx, credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets.NewPerformance: %w", err)
	}
	ws, err := openWorksheet(ctx, svc, spreadsheetID, worksheet, performanceHeader)
	if err != nil {
		return nil, fmt.Errorf("sheets.NewPerformance: %w", err)
	}
	return &PerformanceSink{ws: ws}, nil
}

// AppendRow appends one campaign-day row after the existing data.
func (s *PerformanceSink) AppendRow(ctx context.Context, row insights.Row) error {
	if err := s.ws.appendValues(ctx, row.Values()); err != nil {
		return fmt.Errorf("AppendRow: campaign %s on %s: %w", row.CampaignName, row.Date, err)
	}
	return nil
}
