// Package format renders credit and cost figures for tables and CLI output.
package format

import "github.com/shopspring/decimal"

// Credits formats a credit total. Small fractional amounts keep enough
// precision to stay visible instead of rounding to zero.
func Credits(credits decimal.Decimal) string {
	switch {
	case credits.IsZero():
		return "0.000"
	case credits.LessThan(decimal.NewFromFloat(0.001)):
		return credits.StringFixed(6)
	case credits.LessThan(decimal.NewFromInt(1)):
		return credits.StringFixed(3)
	default:
		return credits.StringFixed(2)
	}
}

// Cost formats an estimated USD amount. A nil cost means the report is
// credit-only and renders as a placeholder.
func Cost(cost *decimal.Decimal) string {
	if cost == nil {
		return "—"
	}
	switch {
	case cost.IsZero():
		return "$0.00"
	case cost.LessThan(decimal.NewFromFloat(0.01)):
		return "$" + cost.StringFixed(4)
	default:
		return "$" + cost.StringFixed(2)
	}
}
