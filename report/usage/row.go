// Package usage defines the normalized usage row model consumed by the
// cost aggregator. Rows are produced by the ACCOUNT_USAGE adapters and are
// immutable once ingested.
package usage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies which platform usage view a row came from.
type Source string

const (
	// SourceComputeQuery is warehouse compute for cortex-tagged queries
	// (query_history joined with query_attribution_history).
	SourceComputeQuery Source = "compute_query"

	// SourceAttributedCredit is per-query attributed compute credits.
	SourceAttributedCredit Source = "attributed_credit"

	// SourceAnalystUsage is Cortex Analyst text-to-SQL generation usage.
	SourceAnalystUsage Source = "analyst_usage"

	// SourceSearchUsage is Cortex Search service consumption.
	SourceSearchUsage Source = "search_usage"
)

// AllSources returns every source in report order.
func AllSources() []Source {
	return []Source{
		SourceComputeQuery,
		SourceAttributedCredit,
		SourceAnalystUsage,
		SourceSearchUsage,
	}
}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceComputeQuery, SourceAttributedCredit, SourceAnalystUsage, SourceSearchUsage:
		return true
	}
	return false
}

// Label returns the human-readable name used in tables and charts.
func (s Source) Label() string {
	switch s {
	case SourceComputeQuery:
		return "Warehouse Compute"
	case SourceAttributedCredit:
		return "Attributed Query Credits"
	case SourceAnalystUsage:
		return "Cortex Analyst"
	case SourceSearchUsage:
		return "Cortex Search"
	default:
		return string(s)
	}
}

// RawRow is one observation as returned by an adapter, before validation.
// Timestamp is kept as the raw string from the usage view so that rows with
// unparsable dates can be dropped with a warning instead of failing a fetch.
type RawRow struct {
	Source    Source
	Timestamp string
	Credits   decimal.Decimal
	EntityID  string // optional: warehouse name, search service, username
	RowCount  int64  // optional: query or request count
}

// Row is a validated observation with a UTC day-granularity date.
type Row struct {
	Source   Source
	Date     time.Time
	Credits  decimal.Decimal
	EntityID string
	RowCount int64
}

// Timestamp layouts accepted from the usage views, tried in order.
var timestampLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05.000 -0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseDate parses an adapter timestamp and truncates it to a UTC day.
func ParseDate(ts string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, ts)
		if err == nil {
			y, m, d := t.UTC().Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", ts)
}

// Validate converts a raw row into its immutable form. It fails when the
// source is unknown, credits are negative, or the timestamp does not parse.
func (r RawRow) Validate() (Row, error) {
	if !r.Source.Valid() {
		return Row{}, fmt.Errorf("unknown source %q", r.Source)
	}
	if r.Credits.IsNegative() {
		return Row{}, fmt.Errorf("negative credits %s for source %s", r.Credits.String(), r.Source)
	}
	date, err := ParseDate(r.Timestamp)
	if err != nil {
		return Row{}, err
	}
	return Row{
		Source:   r.Source,
		Date:     date,
		Credits:  r.Credits,
		EntityID: r.EntityID,
		RowCount: r.RowCount,
	}, nil
}
