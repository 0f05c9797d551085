package pipeline

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Transaction is the normalized, deduplication-ready record produced from
// one raw activity. TransactionID is the dedup key; Amount is the pre-tax
// base amount.
type Transaction struct {
	AccountName   string
	AccountID     string // numeric id, act_ prefix stripped
	TransactionID string
	Date          string // YYYY-MM-DD at the configured offset
	Amount        decimal.Decimal
	Currency      string
	Card          string // trailing 1-4 digits, or the configured placeholder
	Tax           decimal.Decimal
	Gross         decimal.Decimal
	EventType     string
}

// Row is one sink row. The external reference column ("Faktur Pajak" in the
// original sheet) is left blank by this pipeline and filled in manually.
type Row struct {
	AccountName   string
	TransactionID string
	ExternalRef   string
	Date          string
	BaseAmount    decimal.Decimal
	GrossAmount   decimal.Decimal
	Card          string
	InvoiceURL    string
}

// Values returns the row in sink column order.
func (r Row) Values() []string {
	return []string{
		r.AccountName,
		r.TransactionID,
		r.ExternalRef,
		r.Date,
		r.BaseAmount.String(),
		r.GrossAmount.String(),
		r.Card,
		r.InvoiceURL,
	}
}

// InvoiceURL builds the billing transaction PDF link shown in the sheet.
func InvoiceURL(accountID, transactionID string) string {
	return fmt.Sprintf(
		"https://business.facebook.com/ads/manage/billing_transaction/?act=%s&pdf=true&print=false&source=billing_summary&tx_type=3&txid=%s",
		accountID, transactionID,
	)
}
