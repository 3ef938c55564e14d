package aggregate

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/report/pricing"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/report/usage"
)

var testAnchor = time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)

func enterprisePricing() pricing.Pricing {
	return pricing.ForEdition("ENTERPRISE")
}

func rawRow(src usage.Source, day string, credits float64, entity string, count int64) usage.RawRow {
	return usage.RawRow{
		Source:    src,
		Timestamp: day,
		Credits:   decimal.NewFromFloat(credits),
		EntityID:  entity,
		RowCount:  count,
	}
}

func buildOne(t *testing.T, agg *Aggregator, cfg Config) *Report {
	t.Helper()
	rpt, err := agg.BuildReport(cfg)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	return rpt
}

func findBucket(t *testing.T, w WindowReport, src usage.Source) CostBucket {
	t.Helper()
	for _, b := range w.Buckets {
		if b.Source == src && b.EntityID == "" {
			return b
		}
	}
	t.Fatalf("no flat bucket for source %s", src)
	return CostBucket{}
}

func TestBuildReportSimpleTotals(t *testing.T) {
	agg := New()
	agg.Ingest([]usage.RawRow{
		rawRow(usage.SourceComputeQuery, "2026-08-14", 10, "WH_A", 3),
		rawRow(usage.SourceComputeQuery, "2026-08-15", 5, "WH_B", 2),
	})

	price := pricing.Pricing{
		Edition:       "ENTERPRISE",
		RatePerCredit: decimal.NewFromFloat(3.0),
		Known:         true,
	}
	rpt := buildOne(t, agg, Config{
		Windows: []Window{Window7Days},
		Anchor:  testAnchor,
		Pricing: price,
	})

	if len(rpt.Windows) != 1 {
		t.Fatalf("got %d windows, want 1", len(rpt.Windows))
	}
	w := rpt.Windows[0]

	compute := findBucket(t, w, usage.SourceComputeQuery)
	if !compute.TotalCredits.Equal(decimal.NewFromInt(15)) {
		t.Errorf("compute credits = %s, want 15", compute.TotalCredits)
	}
	if compute.EstimatedCost == nil || !compute.EstimatedCost.Equal(decimal.NewFromInt(45)) {
		t.Errorf("compute cost = %v, want 45", compute.EstimatedCost)
	}
	if compute.RowCountSum != 5 {
		t.Errorf("compute row count = %d, want 5", compute.RowCountSum)
	}

	if !w.GrandTotal.TotalCredits.Equal(decimal.NewFromInt(15)) {
		t.Errorf("grand total credits = %s, want 15", w.GrandTotal.TotalCredits)
	}
	if w.GrandTotal.EstimatedCost == nil || !w.GrandTotal.EstimatedCost.Equal(decimal.NewFromInt(45)) {
		t.Errorf("grand total cost = %v, want 45", w.GrandTotal.EstimatedCost)
	}
}

func TestBuildReportEverySourceAppears(t *testing.T) {
	agg := New()
	rpt := buildOne(t, agg, Config{
		Windows: []Window{Window1Day},
		Anchor:  testAnchor,
		Pricing: enterprisePricing(),
	})

	w := rpt.Windows[0]
	if len(w.Buckets) != len(usage.AllSources()) {
		t.Fatalf("got %d buckets, want %d", len(w.Buckets), len(usage.AllSources()))
	}
	for i, src := range usage.AllSources() {
		b := w.Buckets[i]
		if b.Source != src {
			t.Errorf("bucket %d source = %s, want %s", i, b.Source, src)
		}
		if !b.TotalCredits.IsZero() {
			t.Errorf("bucket %s credits = %s, want 0", src, b.TotalCredits)
		}
		if b.EstimatedCost == nil || !b.EstimatedCost.IsZero() {
			t.Errorf("bucket %s cost = %v, want 0", src, b.EstimatedCost)
		}
	}
	if !w.GrandTotal.TotalCredits.IsZero() || w.GrandTotal.RowCountSum != 0 {
		t.Errorf("empty input grand total = %+v, want all zero", w.GrandTotal)
	}
}

func TestGrandTotalMatchesBucketSum(t *testing.T) {
	agg := New()
	agg.Ingest([]usage.RawRow{
		rawRow(usage.SourceComputeQuery, "2026-08-15", 1.25, "WH", 1),
		rawRow(usage.SourceAttributedCredit, "2026-08-14", 0.5, "WH", 1),
		rawRow(usage.SourceAnalystUsage, "2026-08-13", 2.75, "user1", 4),
		rawRow(usage.SourceSearchUsage, "2026-08-12", 0.001, "svc", 1),
	})

	rpt := buildOne(t, agg, Config{
		Windows: []Window{Window3Days, Window7Days, Window30Days},
		Anchor:  testAnchor,
		Pricing: enterprisePricing(),
	})

	for _, w := range rpt.Windows {
		sum := decimal.Zero
		var counts int64
		for _, b := range w.Buckets {
			sum = sum.Add(b.TotalCredits)
			counts += b.RowCountSum
		}
		if !w.GrandTotal.TotalCredits.Equal(sum) {
			t.Errorf("window %d: grand total %s != bucket sum %s",
				w.Window, w.GrandTotal.TotalCredits, sum)
		}
		if w.GrandTotal.RowCountSum != counts {
			t.Errorf("window %d: grand total rows %d != bucket sum %d",
				w.Window, w.GrandTotal.RowCountSum, counts)
		}
	}
}

func TestWindowBoundsInclusive(t *testing.T) {
	agg := New()
	agg.Ingest([]usage.RawRow{
		rawRow(usage.SourceAnalystUsage, "2026-08-15", 1, "", 1), // anchor day
		rawRow(usage.SourceAnalystUsage, "2026-08-08", 1, "", 1), // start day, 7 back
		rawRow(usage.SourceAnalystUsage, "2026-08-07", 1, "", 1), // one day outside
	})

	rpt := buildOne(t, agg, Config{
		Windows: []Window{Window7Days},
		Anchor:  testAnchor,
		Pricing: enterprisePricing(),
	})

	w := rpt.Windows[0]
	if got, want := w.Start, time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("window start = %s, want %s", got, want)
	}
	if got, want := w.End, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("window end = %s, want %s", got, want)
	}

	b := findBucket(t, w, usage.SourceAnalystUsage)
	if !b.TotalCredits.Equal(decimal.NewFromInt(2)) {
		t.Errorf("in-window credits = %s, want 2 (boundary days in, outside day out)", b.TotalCredits)
	}
}

func TestBuildReportDeterministic(t *testing.T) {
	rows := []usage.RawRow{
		rawRow(usage.SourceComputeQuery, "2026-08-14", 3.5, "WH_A", 2),
		rawRow(usage.SourceSearchUsage, "2026-08-13", 0.25, "svc", 1),
	}
	cfg := Config{
		Windows: []Window{Window30Days, Window1Day},
		Anchor:  testAnchor,
		Pricing: enterprisePricing(),
	}

	first := New()
	first.Ingest(rows)
	second := New()
	second.Ingest(rows)

	a := buildOne(t, first, cfg)
	b := buildOne(t, second, cfg)

	if !reflect.DeepEqual(a, b) {
		t.Errorf("two builds over identical inputs differ:\n%+v\n%+v", a, b)
	}
	if a.ID != b.ID {
		t.Errorf("report IDs differ: %s vs %s", a.ID, b.ID)
	}
}

func TestWindowsDedupedAndSorted(t *testing.T) {
	agg := New()
	rpt := buildOne(t, agg, Config{
		Windows: []Window{Window30Days, Window1Day, Window30Days, Window7Days},
		Anchor:  testAnchor,
		Pricing: enterprisePricing(),
	})

	var got []Window
	for _, w := range rpt.Windows {
		got = append(got, w.Window)
	}
	want := []Window{Window1Day, Window7Days, Window30Days}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("windows = %v, want %v", got, want)
	}
}

func TestBuildReportContractErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no windows", Config{Anchor: testAnchor}},
		{"zero anchor", Config{Windows: []Window{Window1Day}}},
		{"bad window", Config{Windows: []Window{Window(2)}, Anchor: testAnchor}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New().BuildReport(tt.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestIngestDropsMalformedRows(t *testing.T) {
	agg := New()
	agg.Ingest([]usage.RawRow{
		rawRow(usage.SourceComputeQuery, "2026-08-15", 2, "WH", 1),
		rawRow(usage.SourceComputeQuery, "2026-08-15", -1, "WH", 1),
		rawRow(usage.SourceComputeQuery, "not a date", 4, "WH", 1),
		{Source: "mystery", Timestamp: "2026-08-15", Credits: decimal.NewFromInt(1)},
	})

	if agg.DroppedRows() != 3 {
		t.Errorf("dropped rows = %d, want 3", agg.DroppedRows())
	}

	rpt := buildOne(t, agg, Config{
		Windows: []Window{Window1Day},
		Anchor:  testAnchor,
		Pricing: enterprisePricing(),
	})

	var quality int
	for _, warn := range rpt.Warnings {
		if warn.Kind == WarnDataQuality {
			quality++
		}
	}
	if quality != 3 {
		t.Errorf("data quality warnings = %d, want 3", quality)
	}

	b := findBucket(t, rpt.Windows[0], usage.SourceComputeQuery)
	if !b.TotalCredits.Equal(decimal.NewFromInt(2)) {
		t.Errorf("surviving credits = %s, want 2", b.TotalCredits)
	}
}

func TestUnknownEditionReportsCreditsOnly(t *testing.T) {
	agg := New()
	agg.Ingest([]usage.RawRow{
		rawRow(usage.SourceAnalystUsage, "2026-08-15", 3, "user", 1),
	})

	rpt := buildOne(t, agg, Config{
		Windows: []Window{Window1Day},
		Anchor:  testAnchor,
		Pricing: pricing.ForEdition("SOMETHING_NEW"),
	})

	if !rpt.CreditOnly {
		t.Error("report not marked credit-only")
	}
	if rpt.RatePerCredit != nil {
		t.Errorf("rate = %s, want nil", rpt.RatePerCredit)
	}
	b := findBucket(t, rpt.Windows[0], usage.SourceAnalystUsage)
	if b.EstimatedCost != nil {
		t.Errorf("estimated cost = %s, want nil", b.EstimatedCost)
	}
	if !b.TotalCredits.Equal(decimal.NewFromInt(3)) {
		t.Errorf("credits = %s, want 3", b.TotalCredits)
	}
}

func TestMalformedRateDegradesWithWarning(t *testing.T) {
	agg := New()
	rpt := buildOne(t, agg, Config{
		Windows: []Window{Window1Day},
		Anchor:  testAnchor,
		Pricing: pricing.Pricing{Edition: "ENTERPRISE", RatePerCredit: decimal.Zero, Known: true},
	})

	if !rpt.CreditOnly {
		t.Error("report not marked credit-only")
	}
	var found bool
	for _, warn := range rpt.Warnings {
		if warn.Kind == WarnPricingUnavailable {
			found = true
		}
	}
	if !found {
		t.Error("no pricing_unavailable warning for malformed rate")
	}
}

func TestMarkUnavailableZeroFillsSource(t *testing.T) {
	agg := New()
	agg.MarkUnavailable(usage.SourceSearchUsage, "SEARCH_SERVICE_USAGE_HISTORY not granted")
	agg.Ingest([]usage.RawRow{
		rawRow(usage.SourceComputeQuery, "2026-08-15", 1, "WH", 1),
	})

	rpt := buildOne(t, agg, Config{
		Windows: []Window{Window1Day},
		Anchor:  testAnchor,
		Pricing: enterprisePricing(),
	})

	var found bool
	for _, warn := range rpt.Warnings {
		if warn.Kind == WarnSourceUnavailable && warn.Source == usage.SourceSearchUsage {
			found = true
		}
	}
	if !found {
		t.Error("no source_unavailable warning for search usage")
	}

	b := findBucket(t, rpt.Windows[0], usage.SourceSearchUsage)
	if !b.TotalCredits.IsZero() {
		t.Errorf("unavailable source credits = %s, want 0", b.TotalCredits)
	}
}

func TestGroupingByEntity(t *testing.T) {
	agg := New()
	agg.Ingest([]usage.RawRow{
		rawRow(usage.SourceComputeQuery, "2026-08-15", 2, "WH_B", 1),
		rawRow(usage.SourceComputeQuery, "2026-08-15", 1, "WH_A", 1),
		rawRow(usage.SourceComputeQuery, "2026-08-14", 3, "WH_B", 1),
	})

	rpt := buildOne(t, agg, Config{
		Windows: []Window{Window7Days},
		Anchor:  testAnchor,
		Grouping: map[usage.Source]Grouping{
			usage.SourceComputeQuery: GroupingByEntity,
		},
		Pricing: enterprisePricing(),
	})

	w := rpt.Windows[0]
	var compute []CostBucket
	for _, b := range w.Buckets {
		if b.Source == usage.SourceComputeQuery {
			compute = append(compute, b)
		}
	}
	if len(compute) != 2 {
		t.Fatalf("got %d compute buckets, want 2", len(compute))
	}
	if compute[0].EntityID != "WH_A" || compute[1].EntityID != "WH_B" {
		t.Errorf("entities = %s, %s, want WH_A, WH_B", compute[0].EntityID, compute[1].EntityID)
	}
	if !compute[1].TotalCredits.Equal(decimal.NewFromInt(5)) {
		t.Errorf("WH_B credits = %s, want 5", compute[1].TotalCredits)
	}

	if !w.GrandTotal.TotalCredits.Equal(decimal.NewFromInt(6)) {
		t.Errorf("grand total = %s, want 6", w.GrandTotal.TotalCredits)
	}
}

func TestNotePricingUnavailable(t *testing.T) {
	agg := New()
	agg.NotePricingUnavailable("ORGANIZATION_USAGE.ACCOUNTS not granted")

	rpt := buildOne(t, agg, Config{
		Windows: []Window{Window1Day},
		Anchor:  testAnchor,
		Pricing: pricing.Unknown(),
	})

	var found bool
	for _, warn := range rpt.Warnings {
		if warn.Kind == WarnPricingUnavailable {
			found = true
		}
	}
	if !found {
		t.Error("no pricing_unavailable warning")
	}
	if agg.DroppedRows() != 0 {
		t.Errorf("dropped rows = %d, want 0", agg.DroppedRows())
	}
}
