// Package aggregate implements the usage aggregation engine: it turns raw
// usage rows into a cost report partitioned by time window and source, with
// edition-aware credit-to-currency conversion.
//
// The engine is a pure function of its inputs: rows and pricing go in,
// a report comes out. All failure inside the engine is absorbed into
// warnings; only caller contract violations return an error.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/report/pricing"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/report/usage"
)

// Window is a reporting period in days, anchored to an explicit "now".
type Window int

const (
	Window1Day   Window = 1
	Window3Days  Window = 3
	Window7Days  Window = 7
	Window30Days Window = 30
)

// AllWindows returns every supported window, shortest first.
func AllWindows() []Window {
	return []Window{Window1Day, Window3Days, Window7Days, Window30Days}
}

// Valid reports whether w is a supported window size.
func (w Window) Valid() bool {
	switch w {
	case Window1Day, Window3Days, Window7Days, Window30Days:
		return true
	}
	return false
}

// Range returns the inclusive day bounds [anchor-w, anchor] in UTC.
func (w Window) Range(anchor time.Time) (start, end time.Time) {
	y, m, d := anchor.UTC().Date()
	end = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	start = end.AddDate(0, 0, -int(w))
	return start, end
}

// Grouping selects flat or per-entity buckets for a source.
type Grouping string

const (
	GroupingFlat     Grouping = "flat"
	GroupingByEntity Grouping = "by_entity"
)

// WarningKind classifies data-quality annotations on a report.
type WarningKind string

const (
	// WarnDataQuality marks a dropped input row (bad timestamp or
	// negative credits).
	WarnDataQuality WarningKind = "data_quality"

	// WarnPricingUnavailable marks degradation to credit-only mode.
	WarnPricingUnavailable WarningKind = "pricing_unavailable"

	// WarnSourceUnavailable marks a source whose adapter returned
	// nothing; its buckets are zero-filled.
	WarnSourceUnavailable WarningKind = "source_unavailable"
)

// Warning is a non-fatal annotation surfaced alongside the report.
type Warning struct {
	Kind    WarningKind  `json:"kind"`
	Source  usage.Source `json:"source,omitempty"`
	Message string       `json:"message"`
}

// CostBucket is the aggregated total for a (source, window, entity) triple.
// EstimatedCost is nil when the report is credit-only.
type CostBucket struct {
	Source        usage.Source     `json:"source"`
	EntityID      string           `json:"entity_id,omitempty"`
	TotalCredits  decimal.Decimal  `json:"total_credits"`
	EstimatedCost *decimal.Decimal `json:"estimated_cost"`
	RowCountSum   int64            `json:"row_count_sum"`
}

// Total is the per-window grand total, the arithmetic sum of the emitted
// per-source buckets.
type Total struct {
	TotalCredits  decimal.Decimal  `json:"total_credits"`
	EstimatedCost *decimal.Decimal `json:"estimated_cost"`
	RowCountSum   int64            `json:"row_count_sum"`
}

// WindowReport holds every bucket for one time window.
type WindowReport struct {
	Window     Window       `json:"window_days"`
	Start      time.Time    `json:"start"`
	End        time.Time    `json:"end"`
	Buckets    []CostBucket `json:"buckets"`
	GrandTotal Total        `json:"grand_total"`
}

// Report is the aggregation output handed to the presentation layer.
type Report struct {
	ID            uuid.UUID        `json:"id"`
	GeneratedAt   time.Time        `json:"generated_at"`
	Edition       pricing.Edition  `json:"edition,omitempty"`
	RatePerCredit *decimal.Decimal `json:"rate_per_credit"`
	CreditOnly    bool             `json:"credit_only"`
	Windows       []WindowReport   `json:"windows"`
	Warnings      []Warning        `json:"warnings"`
}

// Config carries every input of a report build. Anchor is the report "now";
// it is explicit so that repeated builds over the same rows are identical.
type Config struct {
	Windows  []Window
	Anchor   time.Time
	Grouping map[usage.Source]Grouping
	Pricing  pricing.Pricing
}

// Aggregator accumulates validated rows partitioned by source. It holds no
// state beyond the ingested row set and is not safe for concurrent use; one
// aggregator serves one report build.
type Aggregator struct {
	rows        map[usage.Source][]usage.Row
	ingestWarns []Warning
	unavailable map[usage.Source]string
	dropped     int
}

// New returns an empty aggregator.
func New() *Aggregator {
	return &Aggregator{
		rows:        make(map[usage.Source][]usage.Row),
		unavailable: make(map[usage.Source]string),
	}
}

// Ingest validates and partitions rows from any source in arbitrary order.
// Rows with negative credits or unparsable timestamps are dropped, each with
// one data-quality warning; nothing here is fatal. No deduplication is
// performed: overlapping adapter output double-counts and is the caller's
// responsibility.
func (a *Aggregator) Ingest(rows []usage.RawRow) {
	for _, raw := range rows {
		row, err := raw.Validate()
		if err != nil {
			a.dropped++
			a.ingestWarns = append(a.ingestWarns, Warning{
				Kind:    WarnDataQuality,
				Source:  raw.Source,
				Message: fmt.Sprintf("row dropped: %v", err),
			})
			continue
		}
		a.rows[row.Source] = append(a.rows[row.Source], row)
	}
}

// NoteDataQuality records a data-quality caveat that is not tied to a
// dropped row, such as a degraded scoping input.
func (a *Aggregator) NoteDataQuality(src usage.Source, reason string) {
	a.ingestWarns = append(a.ingestWarns, Warning{
		Kind:    WarnDataQuality,
		Source:  src,
		Message: reason,
	})
}

// MarkUnavailable records that an adapter produced no data for a source.
// The source still appears in the report with zero-filled buckets.
func (a *Aggregator) MarkUnavailable(src usage.Source, reason string) {
	a.unavailable[src] = reason
}

// NotePricingUnavailable records why the report runs credit-only when the
// edition lookup itself failed upstream.
func (a *Aggregator) NotePricingUnavailable(reason string) {
	a.ingestWarns = append(a.ingestWarns, Warning{
		Kind:    WarnPricingUnavailable,
		Message: reason,
	})
}

// DroppedRows returns how many ingested rows failed validation.
func (a *Aggregator) DroppedRows() int {
	return a.dropped
}

// BuildReport aggregates the ingested rows into a report. It returns an
// error only for input-contract violations: an empty window set, an
// unsupported window size, or a zero anchor. Empty row sets yield all-zero
// buckets, never an error.
func (a *Aggregator) BuildReport(cfg Config) (*Report, error) {
	if len(cfg.Windows) == 0 {
		return nil, fmt.Errorf("aggregate: no time windows requested")
	}
	if cfg.Anchor.IsZero() {
		return nil, fmt.Errorf("aggregate: zero window anchor")
	}
	windows := dedupeWindows(cfg.Windows)
	for _, w := range windows {
		if !w.Valid() {
			return nil, fmt.Errorf("aggregate: unsupported window of %d days", int(w))
		}
	}

	warnings := make([]Warning, 0, len(a.ingestWarns))
	warnings = append(warnings, a.ingestWarns...)

	price := cfg.Pricing
	if price.Known && !price.RatePerCredit.IsPositive() {
		warnings = append(warnings, Warning{
			Kind:    WarnPricingUnavailable,
			Message: fmt.Sprintf("malformed rate %s for edition %s, reporting credits only", price.RatePerCredit.String(), price.Edition),
		})
		price = pricing.Unknown()
	}

	for _, src := range usage.AllSources() {
		if reason, ok := a.unavailable[src]; ok {
			warnings = append(warnings, Warning{
				Kind:    WarnSourceUnavailable,
				Source:  src,
				Message: reason,
			})
		}
	}

	report := &Report{
		ID:          reportID(cfg, windows),
		GeneratedAt: cfg.Anchor.UTC(),
		CreditOnly:  !price.Usable(),
		Windows:     make([]WindowReport, 0, len(windows)),
		Warnings:    warnings,
	}
	if price.Usable() {
		rate := price.RatePerCredit
		report.Edition = price.Edition
		report.RatePerCredit = &rate
	}

	for _, w := range windows {
		report.Windows = append(report.Windows, a.buildWindow(w, cfg, price))
	}
	return report, nil
}

func (a *Aggregator) buildWindow(w Window, cfg Config, price pricing.Pricing) WindowReport {
	start, end := w.Range(cfg.Anchor)
	wr := WindowReport{Window: w, Start: start, End: end}

	for _, src := range usage.AllSources() {
		inWindow := filterRows(a.rows[src], start, end)
		if cfg.Grouping[src] == GroupingByEntity {
			wr.Buckets = append(wr.Buckets, bucketsByEntity(src, inWindow, price)...)
		} else {
			wr.Buckets = append(wr.Buckets, sumBucket(src, "", inWindow, price))
		}
	}

	// Grand total is the sum of the emitted buckets, not a re-scan of the
	// rows: the correctness invariant is that the two always agree.
	total := decimal.Zero
	var counts int64
	for _, b := range wr.Buckets {
		total = total.Add(b.TotalCredits)
		counts += b.RowCountSum
	}
	wr.GrandTotal = Total{
		TotalCredits:  total,
		EstimatedCost: price.Cost(total),
		RowCountSum:   counts,
	}
	return wr
}

func filterRows(rows []usage.Row, start, end time.Time) []usage.Row {
	var out []usage.Row
	for _, r := range rows {
		if r.Date.Before(start) || r.Date.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func sumBucket(src usage.Source, entity string, rows []usage.Row, price pricing.Pricing) CostBucket {
	credits := decimal.Zero
	var counts int64
	for _, r := range rows {
		credits = credits.Add(r.Credits)
		counts += r.RowCount
	}
	return CostBucket{
		Source:        src,
		EntityID:      entity,
		TotalCredits:  credits,
		EstimatedCost: price.Cost(credits),
		RowCountSum:   counts,
	}
}

func bucketsByEntity(src usage.Source, rows []usage.Row, price pricing.Pricing) []CostBucket {
	if len(rows) == 0 {
		// A source with no matching rows still appears, as a single
		// zero bucket.
		return []CostBucket{sumBucket(src, "", nil, price)}
	}

	byEntity := make(map[string][]usage.Row)
	for _, r := range rows {
		byEntity[r.EntityID] = append(byEntity[r.EntityID], r)
	}

	entities := make([]string, 0, len(byEntity))
	for e := range byEntity {
		entities = append(entities, e)
	}
	sort.Strings(entities)

	buckets := make([]CostBucket, 0, len(entities))
	for _, e := range entities {
		buckets = append(buckets, sumBucket(src, e, byEntity[e], price))
	}
	return buckets
}

func dedupeWindows(windows []Window) []Window {
	seen := make(map[Window]bool, len(windows))
	out := make([]Window, 0, len(windows))
	for _, w := range windows {
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// reportID derives a stable identifier from the build inputs so that two
// builds over identical inputs compare equal field for field.
func reportID(cfg Config, windows []Window) uuid.UUID {
	seed := cfg.Anchor.UTC().Format(time.RFC3339) + "|" + string(cfg.Pricing.Edition)
	for _, w := range windows {
		seed += fmt.Sprintf("|%d", int(w))
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed))
}
