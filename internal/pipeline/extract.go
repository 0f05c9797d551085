package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wpratama/meta-billing-sync/internal/graph"
	"github.com/wpratama/meta-billing-sync/internal/logger"
	"github.com/wpratama/meta-billing-sync/internal/tax"
)

// Candidate keys per field, consulted in fixed priority order. The upstream
// payload shape migrates across accounts and API versions; the order encodes
// which names were seen most recently.
var (
	transactionIDKeys = []string{"transaction_id", "id", "charge_id", "payment_id"}
	amountKeys        = []string{"new_value", "amount", "charge_amount", "value"}
	currencyKeys      = []string{"currency", "funding_source_currency"}
)

// cardPaths are the known nesting spots for a card fragment, checked in
// order after payment_method_details and the top-level card_number.
var cardPaths = [][]string{
	{"funding_source_details", "last4"},
	{"payment_details", "payment_method", "card", "last4"},
	{"funding_source", "last4"},
	{"payment_instrument", "card_last4"},
	{"payment_instrument", "last4"},
}

// Extractor converts raw activities into canonical transactions.
type Extractor struct {
	offset       time.Duration
	taxRate      decimal.Decimal
	cardDefaults map[string]string
	defaultCard  string
}

// NewExtractor builds an extractor normalizing dates to the offset of loc.
func NewExtractor(loc *time.Location, taxRate decimal.Decimal, cardDefaults map[string]string, defaultCard string) *Extractor {
	_, offsetSecs := time.Date(2000, 1, 1, 0, 0, 0, 0, loc).Zone()
	return &Extractor{
		offset:       time.Duration(offsetSecs) * time.Second,
		taxRate:      taxRate,
		cardDefaults: cardDefaults,
		defaultCard:  defaultCard,
	}
}

// TaxRate returns the rate the extractor was built with. The reconcile step
// recomputes gross through the same rate so the two can never diverge.
func (e *Extractor) TaxRate() decimal.Decimal {
	return e.taxRate
}

// Extract produces zero or one Transaction from a raw activity. A record
// missing its transaction id or a numeric amount, or carrying an event time
// that cannot be handled, is dropped with a log line; it never fails the
// batch.
func (e *Extractor) Extract(ctx context.Context, account *graph.Account, activity graph.RawActivity) (*Transaction, bool) {
	log := logger.FromContext(ctx)

	obj, rawPayload, decodeErr := decodePayload(activity.ExtraData)
	if decodeErr != nil {
		log.Debug().
			Str("event_type", activity.EventType).
			Err(decodeErr).
			Msg("Could not parse extra_data as JSON, keeping raw form")
	}

	txID, ok := firstStringish(obj, transactionIDKeys)
	if !ok {
		log.Debug().
			Str("event_type", activity.EventType).
			Msg("Skipping activity without transaction id")
		return nil, false
	}

	amount, ok := firstNumber(obj, amountKeys)
	if !ok {
		log.Debug().
			Str("event_type", activity.EventType).
			Str("transaction_id", txID).
			Msg("Skipping activity without numeric amount")
		return nil, false
	}

	date, err := e.normalizeEventDate(activity.EventTime)
	if err != nil {
		log.Warn().
			Str("transaction_id", txID).
			Err(err).
			Msg("Skipping activity with unusable event time")
		return nil, false
	}

	currency, _ := firstString(obj, currencyKeys)
	card := e.cardFragment(obj, rawPayload, account.Name)
	taxAmount, gross := tax.Compute(amount, e.taxRate)

	accountID := strings.TrimPrefix(account.ID, "act_")
	if accountID == "" {
		accountID = account.AccountID
	}

	return &Transaction{
		AccountName:   account.Name,
		AccountID:     accountID,
		TransactionID: txID,
		Date:          date,
		Amount:        amount,
		Currency:      currency,
		Card:          card,
		Tax:           taxAmount,
		Gross:         gross,
		EventType:     activity.EventType,
	}, true
}

// ExtractAll runs Extract over a batch, keeping input order. Dropped records
// are logged by Extract; the batch always completes.
func (e *Extractor) ExtractAll(ctx context.Context, account *graph.Account, activities []graph.RawActivity) []*Transaction {
	var out []*Transaction
	for _, activity := range activities {
		if tx, ok := e.Extract(ctx, account, activity); ok {
			out = append(out, tx)
		}
	}
	return out
}

// InWindow returns the date-window membership predicate used by the query
// strategy selector.
func (e *Extractor) InWindow(w graph.Window) func(graph.RawActivity) bool {
	start := w.Start.Format("2006-01-02")
	end := w.End.Format("2006-01-02")
	return func(a graph.RawActivity) bool {
		d, err := e.normalizeEventDate(a.EventTime)
		if err != nil {
			return false
		}
		return d >= start && d <= end
	}
}

// decodePayload interprets the extra_data payload, which is either a JSON
// object or a JSON-encoded string holding another JSON document. A string
// that fails to decode degrades to {"raw_data": s} instead of failing the
// record. The returned raw bytes are the innermost JSON document, used by
// the ordered card search.
func decodePayload(raw json.RawMessage) (map[string]interface{}, json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return map[string]interface{}{}, nil, nil
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj, raw, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		inner := json.RawMessage(s)
		var innerObj map[string]interface{}
		if err := json.Unmarshal(inner, &innerObj); err == nil {
			return innerObj, inner, nil
		}
		var anything interface{}
		if err := json.Unmarshal(inner, &anything); err == nil {
			// Valid JSON but not an object; field extraction will come
			// up empty, the card search can still walk it.
			return map[string]interface{}{}, inner, nil
		}
		return map[string]interface{}{"raw_data": s}, nil, fmt.Errorf("decodePayload: payload string is not JSON")
	}

	// Arrays and scalars carry no extractable fields.
	return map[string]interface{}{}, raw, nil
}

// normalizeEventDate turns an event timestamp into YYYY-MM-DD at the
// configured offset. ISO strings have any trailing offset marker stripped
// before parsing; numeric timestamps are treated as epoch seconds. An
// unrecognized string format falls back to its date-only prefix.
func (e *Extractor) normalizeEventDate(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("normalizeEventDate: missing event time")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.Contains(s, "T") {
			if t, err := time.Parse("2006-01-02T15:04:05", stripOffsetMarker(s)); err == nil {
				return t.Add(e.offset).Format("2006-01-02"), nil
			}
			return s[:strings.IndexByte(s, 'T')], nil
		}
		if i := strings.IndexByte(s, ' '); i > 0 {
			return s[:i], nil
		}
		if s == "" {
			return "", fmt.Errorf("normalizeEventDate: empty event time")
		}
		return s, nil
	}

	var epoch float64
	if err := json.Unmarshal(raw, &epoch); err == nil {
		return time.Unix(int64(epoch), 0).UTC().Add(e.offset).Format("2006-01-02"), nil
	}

	return "", fmt.Errorf("normalizeEventDate: unsupported event time %s", string(raw))
}

// stripOffsetMarker removes a trailing +hhmm/-hh:mm/Z marker from an ISO
// timestamp, leaving the naive local time.
func stripOffsetMarker(s string) string {
	if strings.HasSuffix(s, "Z") {
		return s[:len(s)-1]
	}
	tIdx := strings.IndexByte(s, 'T')
	if tIdx < 0 {
		return s
	}
	if i := strings.LastIndexAny(s[tIdx+1:], "+-"); i >= 0 {
		return s[:tIdx+1+i]
	}
	return s
}

// cardFragment runs the layered card search over the decoded payload.
func (e *Extractor) cardFragment(obj map[string]interface{}, raw json.RawMessage, accountName string) string {
	// 1. payment_method_details, itself possibly JSON-string-encoded.
	if pmd := asObject(obj["payment_method_details"]); pmd != nil {
		if s, ok := stringish(pmd["last4"]); ok && s != "" {
			return s
		}
		if s, ok := stringish(pmd["card_number"]); ok && s != "" {
			return trailing4(s)
		}
	}

	// 2. Top-level card_number.
	if s, ok := stringish(obj["card_number"]); ok && s != "" {
		return trailing4(s)
	}

	// 3. Known nested spots.
	for _, path := range cardPaths {
		if s, ok := stringish(lookupPath(obj, path)); ok && s != "" {
			return s
		}
	}

	// 4. Last resort: walk the whole payload in document order.
	if frag, ok := searchCardFragment(raw); ok {
		return frag
	}

	// 5. Configured defaults.
	if d, ok := e.cardDefaults[accountName]; ok {
		return d
	}
	return e.defaultCard
}

// asObject returns v as a JSON object, decoding it first when it arrives as
// a JSON-encoded string.
func asObject(v interface{}) map[string]interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return val
	case string:
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(val), &obj); err == nil {
			return obj
		}
	}
	return nil
}

// lookupPath descends nested objects along the path; returns nil when any
// segment is missing or not an object.
func lookupPath(obj map[string]interface{}, path []string) interface{} {
	current := obj
	for i, key := range path {
		v, ok := current[key]
		if !ok {
			return nil
		}
		if i == len(path)-1 {
			return v
		}
		current = asObject(v)
		if current == nil {
			return nil
		}
	}
	return nil
}

// firstString returns the first present key holding a non-empty string.
func firstString(obj map[string]interface{}, keys []string) (string, bool) {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// firstStringish returns the first present key holding a non-empty string
// or a number, the number formatted without an exponent. Transaction ids
// occasionally arrive numeric.
func firstStringish(obj map[string]interface{}, keys []string) (string, bool) {
	for _, key := range keys {
		if s, ok := stringish(obj[key]); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// firstNumber returns the first present key holding a JSON number. String
// encodings do not count as found.
func firstNumber(obj map[string]interface{}, keys []string) (decimal.Decimal, bool) {
	for _, key := range keys {
		if f, ok := obj[key].(float64); ok {
			return decimal.NewFromFloat(f), true
		}
	}
	return decimal.Decimal{}, false
}

func stringish(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	}
	return "", false
}

func trailing4(s string) string {
	if len(s) > 4 {
		return s[len(s)-4:]
	}
	return s
}
