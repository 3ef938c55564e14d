// Package pricing maps an account edition tag to an estimated credit-to-USD
// rate. Exactly one pricing applies per report; an unrecognized edition or a
// malformed rate degrades the report to credit-only mode instead of failing.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Edition is a Snowflake account edition tag.
type Edition string

const (
	EditionStandard         Edition = "STANDARD"
	EditionEnterprise       Edition = "ENTERPRISE"
	EditionBusinessCritical Edition = "BUSINESS_CRITICAL"
	EditionVPS              Edition = "VPS"
)

// Estimated list prices per credit in USD. Actual contract pricing varies.
var editionRates = map[Edition]decimal.Decimal{
	EditionStandard:         decimal.NewFromFloat(2.60),
	EditionEnterprise:       decimal.NewFromFloat(3.90),
	EditionBusinessCritical: decimal.NewFromFloat(5.20),
	EditionVPS:              decimal.NewFromFloat(7.80),
}

// Pricing is the resolved credit-to-currency conversion for one report.
// When Known is false the report is built in credit-only mode.
type Pricing struct {
	Edition       Edition
	RatePerCredit decimal.Decimal
	Known         bool
}

// Unknown returns the credit-only pricing variant.
func Unknown() Pricing {
	return Pricing{}
}

// ForEdition resolves pricing for an edition tag as reported by
// ORGANIZATION_USAGE.ACCOUNTS. Tags are normalized (case, spaces and dashes
// to underscores) before lookup. Unrecognized tags resolve to Unknown rather
// than silently assuming STANDARD.
func ForEdition(tag string) Pricing {
	edition := Normalize(tag)
	rate, ok := editionRates[edition]
	if !ok {
		return Unknown()
	}
	return Pricing{Edition: edition, RatePerCredit: rate, Known: true}
}

// Normalize canonicalizes an edition tag.
func Normalize(tag string) Edition {
	s := strings.ToUpper(strings.TrimSpace(tag))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	if s == "VIRTUAL_PRIVATE_SNOWFLAKE" {
		return EditionVPS
	}
	return Edition(s)
}

// Usable reports whether the pricing can be applied for conversion. A
// non-positive rate counts as malformed and is treated like Unknown by the
// aggregator.
func (p Pricing) Usable() bool {
	return p.Known && p.RatePerCredit.IsPositive()
}

// Cost converts credits to estimated currency. Returns nil when the pricing
// is unknown or malformed.
func (p Pricing) Cost(credits decimal.Decimal) *decimal.Decimal {
	if !p.Usable() {
		return nil
	}
	cost := credits.Mul(p.RatePerCredit)
	return &cost
}
