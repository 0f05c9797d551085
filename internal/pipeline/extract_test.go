package pipeline

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wpratama/meta-billing-sync/internal/graph"
)

var testAccount = &graph.Account{
	ID:        "act_123456",
	AccountID: "123456",
	Name:      "Acme Media",
	Currency:  "IDR",
}

func testExtractor() *Extractor {
	loc := time.FixedZone("UTC+7", 7*3600)
	return NewExtractor(loc, decimal.RequireFromString("0.11"), map[string]string{"Legacy Account": "9816"}, "0000")
}

func activity(eventType, eventTime, extraData string) graph.RawActivity {
	a := graph.RawActivity{EventType: eventType}
	if eventTime != "" {
		a.EventTime = json.RawMessage(strconv.Quote(eventTime))
	}
	if extraData != "" {
		a.ExtraData = json.RawMessage(extraData)
	}
	return a
}

func TestExtract_BasicCharge(t *testing.T) {
	e := testExtractor()
	a := activity("ad_account_billing_charge", "2024-03-01T10:00:00+0000",
		`{"transaction_id":"123-456","new_value":1000000,"currency":"IDR"}`)

	tx, ok := e.Extract(context.Background(), testAccount, a)
	if !ok {
		t.Fatal("expected a transaction")
	}
	if tx.TransactionID != "123-456" {
		t.Errorf("TransactionID = %q", tx.TransactionID)
	}
	if !tx.Amount.Equal(decimal.NewFromInt(1000000)) {
		t.Errorf("Amount = %s", tx.Amount)
	}
	if !tx.Tax.Equal(decimal.NewFromInt(110000)) {
		t.Errorf("Tax = %s", tx.Tax)
	}
	if !tx.Gross.Equal(decimal.NewFromInt(1110000)) {
		t.Errorf("Gross = %s", tx.Gross)
	}
	if tx.Currency != "IDR" {
		t.Errorf("Currency = %q", tx.Currency)
	}
	if tx.AccountID != "123456" {
		t.Errorf("AccountID = %q, want act_ prefix stripped", tx.AccountID)
	}
	if tx.Date != "2024-03-01" {
		t.Errorf("Date = %q", tx.Date)
	}
}

func TestExtract_AmountKeyPriority(t *testing.T) {
	e := testExtractor()
	a := activity("charge", "2024-03-01T10:00:00+0000",
		`{"transaction_id":"t1","new_value":100,"amount":50}`)

	tx, ok := e.Extract(context.Background(), testAccount, a)
	if !ok {
		t.Fatal("expected a transaction")
	}
	if !tx.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Amount = %s, want 100 (new_value beats amount)", tx.Amount)
	}
}

func TestExtract_TransactionIDKeyPriority(t *testing.T) {
	e := testExtractor()
	a := activity("charge", "2024-03-01T10:00:00+0000",
		`{"id":"fallback","charge_id":"deeper","new_value":10}`)

	tx, ok := e.Extract(context.Background(), testAccount, a)
	if !ok {
		t.Fatal("expected a transaction")
	}
	if tx.TransactionID != "fallback" {
		t.Errorf("TransactionID = %q, want id before charge_id", tx.TransactionID)
	}
}

func TestExtract_StringEncodedPayload(t *testing.T) {
	e := testExtractor()
	a := activity("charge", "2024-03-01T10:00:00+0000",
		`"{\"transaction_id\":\"t1\",\"new_value\":500}"`)

	tx, ok := e.Extract(context.Background(), testAccount, a)
	if !ok {
		t.Fatal("expected a transaction from string-encoded payload")
	}
	if tx.TransactionID != "t1" || !tx.Amount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("unexpected transaction: %+v", tx)
	}
}

func TestExtract_DropsWithoutIDOrAmount(t *testing.T) {
	e := testExtractor()
	tests := []struct {
		name    string
		payload string
	}{
		{"no transaction id", `{"new_value":100}`},
		{"no amount", `{"transaction_id":"t1"}`},
		{"amount is a string", `{"transaction_id":"t1","new_value":"100"}`},
		{"undecodable string payload", `"not json at all"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := activity("charge", "2024-03-01T10:00:00+0000", tt.payload)
			if _, ok := e.Extract(context.Background(), testAccount, a); ok {
				t.Error("expected record to be dropped")
			}
		})
	}
}

func TestExtractAll_ContinuesPastMalformedRecord(t *testing.T) {
	e := testExtractor()
	activities := []graph.RawActivity{
		activity("charge", "2024-03-01T10:00:00+0000", `{"transaction_id":"t1","new_value":100}`),
		activity("charge", "2024-03-01T10:00:00+0000", `"%%% not json %%%"`),
		activity("charge", "2024-03-01T10:00:00+0000", `{"transaction_id":"t3","new_value":300}`),
	}

	txs := e.ExtractAll(context.Background(), testAccount, activities)
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions around the malformed one, got %d", len(txs))
	}
	if txs[0].TransactionID != "t1" || txs[1].TransactionID != "t3" {
		t.Errorf("wrong survivors: %+v", txs)
	}
}

func TestNormalizeEventDate(t *testing.T) {
	e := testExtractor()
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "iso with offset crosses midnight at +7",
			raw:  `"2024-03-01T23:30:00+0000"`,
			want: "2024-03-02",
		},
		{
			name: "iso with negative offset",
			raw:  `"2024-03-01T10:00:00-0500"`,
			want: "2024-03-01",
		},
		{
			name: "iso zulu",
			raw:  `"2024-03-01T20:00:00Z"`,
			want: "2024-03-02",
		},
		{
			// 2024-03-01 18:00:00 UTC = 2024-03-02 01:00 at +7
			name: "numeric epoch",
			raw:  `1709316000`,
			want: "2024-03-02",
		},
		{
			name: "unrecognized format falls back to date prefix",
			raw:  `"2024-03-01T10:00:00.500+0000"`,
			want: "2024-03-01",
		},
		{
			name: "date only",
			raw:  `"2024-03-01"`,
			want: "2024-03-01",
		},
		{
			name:    "missing",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "unsupported type",
			raw:     `{"ts":1}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw json.RawMessage
			if tt.raw != "" {
				raw = json.RawMessage(tt.raw)
			}
			got, err := e.normalizeEventDate(raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("normalizeEventDate(%s) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCardFragment_Layers(t *testing.T) {
	e := testExtractor()
	tests := []struct {
		name    string
		payload string
		account string
		want    string
	}{
		{
			name:    "payment_method_details last4",
			payload: `{"payment_method_details":{"last4":"4242"}}`,
			want:    "4242",
		},
		{
			name:    "payment_method_details string-encoded",
			payload: `{"payment_method_details":"{\"last4\":\"4242\"}"}`,
			want:    "4242",
		},
		{
			name:    "payment_method_details card_number truncated",
			payload: `{"payment_method_details":{"card_number":"4111111111111111"}}`,
			want:    "1111",
		},
		{
			name:    "top-level card_number truncated",
			payload: `{"card_number":"4111111111111111"}`,
			want:    "1111",
		},
		{
			name:    "funding_source_details path",
			payload: `{"funding_source_details":{"last4":"7777"}}`,
			want:    "7777",
		},
		{
			name:    "deep payment_details path",
			payload: `{"payment_details":{"payment_method":{"card":{"last4":"5555"}}}}`,
			want:    "5555",
		},
		{
			name:    "payment_instrument card_last4 before last4",
			payload: `{"payment_instrument":{"last4":"1111","card_last4":"2222"}}`,
			want:    "2222",
		},
		{
			name:    "recursive search at arbitrary depth",
			payload: `{"a":{"b":{"last4":"4242"}}}`,
			want:    "4242",
		},
		{
			name:    "recursive search truncates long digit runs",
			payload: `{"x":{"y":{"cardNumber":"5105105105105100"}}}`,
			want:    "5100",
		},
		{
			name:    "recursive search first match in document order wins",
			payload: `{"first":{"card":"12"},"second":{"last4":"4242"}}`,
			want:    "12",
		},
		{
			name:    "recursive search skips non-digit strings",
			payload: `{"first":{"card":"visa"},"second":{"last4":"4242"}}`,
			want:    "4242",
		},
		{
			name:    "recursive search inside arrays",
			payload: `{"methods":[{"kind":"bank"},{"last_4":"3333"}]}`,
			want:    "3333",
		},
		{
			name:    "account default when nothing found",
			payload: `{"note":"no card here"}`,
			account: "Legacy Account",
			want:    "9816",
		},
		{
			name:    "global placeholder when nothing found",
			payload: `{"note":"no card here"}`,
			want:    "0000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, raw, err := decodePayload(json.RawMessage(tt.payload))
			if err != nil {
				t.Fatalf("decodePayload failed: %v", err)
			}
			accountName := tt.account
			if accountName == "" {
				accountName = "Acme Media"
			}
			if got := e.cardFragment(obj, raw, accountName); got != tt.want {
				t.Errorf("cardFragment = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodePayload_DegradesToRawData(t *testing.T) {
	obj, raw, err := decodePayload(json.RawMessage(`"plain text, not json"`))
	if err == nil {
		t.Error("expected a decode error to be reported")
	}
	if obj["raw_data"] != "plain text, not json" {
		t.Errorf("expected raw_data wrapper, got %v", obj)
	}
	if raw != nil {
		t.Errorf("expected no searchable raw payload, got %s", raw)
	}
}

func TestInWindow(t *testing.T) {
	e := testExtractor()
	loc := time.FixedZone("UTC+7", 7*3600)
	w, err := graph.NewWindow("2024-03-01", "2024-03-31", loc)
	if err != nil {
		t.Fatalf("NewWindow failed: %v", err)
	}
	inWindow := e.InWindow(w)

	tests := []struct {
		eventTime string
		want      bool
	}{
		{`"2024-03-15T10:00:00+0000"`, true},
		{`"2024-02-28T10:00:00+0000"`, false},
		{`"2024-04-01T10:00:00+0000"`, false},
		// 23:30 UTC on Feb 29 is already Mar 1 at +7.
		{`"2024-02-29T23:30:00+0000"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.eventTime, func(t *testing.T) {
			a := graph.RawActivity{EventTime: json.RawMessage(tt.eventTime)}
			if got := inWindow(a); got != tt.want {
				t.Errorf("inWindow(%s) = %v, want %v", tt.eventTime, got, tt.want)
			}
		})
	}

	if inWindow(graph.RawActivity{}) {
		t.Error("records without an event time must not count as in-window")
	}
}
