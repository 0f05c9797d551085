// Package tax derives tax and gross amounts from a configured rate.
//
// Both the extractor and the reconcile step compute gross through Compute,
// so the rounding rule cannot diverge between them.
package tax

import "github.com/shopspring/decimal"

// Compute returns the tax on base at the given rate, rounded half away from
// zero to a whole amount, and the gross amount (base + tax).
func Compute(base, rate decimal.Decimal) (tax, gross decimal.Decimal) {
	tax = base.Mul(rate).Round(0)
	gross = base.Add(tax)
	return tax, gross
}
