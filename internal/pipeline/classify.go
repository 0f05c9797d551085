package pipeline

import (
	"strings"

	"github.com/wpratama/meta-billing-sync/internal/graph"
)

// paymentKeywords marks an activity as payment-relevant when any of them
// occurs anywhere in the event type, case-insensitively. Substring match is
// deliberate: event types like "ad_account_billing_charge" and
// "funding_event_successful_payment" both qualify.
var paymentKeywords = []string{"charge", "payment", "bill"}

// IsPaymentActivity reports whether the activity looks like a billing event.
func IsPaymentActivity(a graph.RawActivity) bool {
	eventType := strings.ToLower(a.EventType)
	for _, kw := range paymentKeywords {
		if strings.Contains(eventType, kw) {
			return true
		}
	}
	return false
}

// FilterPayments keeps only payment-relevant activities, preserving order.
func FilterPayments(activities []graph.RawActivity) []graph.RawActivity {
	var out []graph.RawActivity
	for _, a := range activities {
		if IsPaymentActivity(a) {
			out = append(out, a)
		}
	}
	return out
}
