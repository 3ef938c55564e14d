// Package collect fetches every usage source concurrently and shapes the
// results into rows for the aggregator. Per-source failures are absorbed:
// a failed fetch leaves that source zero-filled in the report instead of
// taking the whole refresh down.
package collect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/agents"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/db/accountusage"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/report/aggregate"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/report/pricing"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/report/usage"
)

// UsageStore is the slice of the account-usage store the collector needs.
type UsageStore interface {
	QueryAttribution(ctx context.Context, days int) ([]accountusage.AttributedQuery, error)
	WarehouseBreakdown(ctx context.Context, days int) ([]accountusage.WarehouseUsage, error)
	AnalystUsageHistory(ctx context.Context, days int) ([]accountusage.AnalystUsage, error)
	SearchUsageHistory(ctx context.Context, days int) ([]accountusage.SearchUsage, error)
	AccountEdition(ctx context.Context) (string, error)
	ShowAgents(ctx context.Context) ([]accountusage.AgentRow, error)
	DescribeAgent(ctx context.Context, name string) (string, error)
}

// Collector fetches and normalizes usage data for one report build.
type Collector struct {
	store UsageStore
}

// New returns a collector over the given store.
func New(store UsageStore) *Collector {
	return &Collector{store: store}
}

// Result is one finalized snapshot of adapter output. Rows feed the
// aggregator; the breakdown slices keep per-warehouse and per-service
// detail for the presentation layer.
type Result struct {
	Rows    []usage.RawRow
	Pricing pricing.Pricing
	Edition string

	Warehouses []accountusage.WarehouseUsage
	Search     []accountusage.SearchUsage
	Catalog    *agents.Catalog

	// failures maps a source to the reason its fetch produced nothing.
	// mu guards the maps and error strings while the fetch goroutines
	// are still running.
	mu         sync.Mutex
	failures   map[usage.Source]string
	pricingErr string
	catalogErr string
}

func (r *Result) fail(src usage.Source, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[src] = reason
}

// Collect runs all source fetches concurrently, joined before returning.
// It never fails as a whole; inspect the result's warnings via Feed.
func (c *Collector) Collect(ctx context.Context, days int) *Result {
	res := &Result{failures: make(map[usage.Source]string)}

	var (
		attribution []accountusage.AttributedQuery
		analyst     []accountusage.AnalystUsage
		search      []accountusage.SearchUsage
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := c.store.QueryAttribution(gctx, days)
		if err != nil {
			res.fail(usage.SourceComputeQuery, fetchFailure("query attribution", err))
			res.fail(usage.SourceAttributedCredit, fetchFailure("query attribution", err))
			return nil
		}
		attribution = rows
		return nil
	})

	g.Go(func() error {
		rows, err := c.store.WarehouseBreakdown(gctx, days)
		if err == nil {
			res.Warehouses = rows
		}
		// Presentation detail only; the compute sources come from the
		// attribution fetch.
		return nil
	})

	g.Go(func() error {
		rows, err := c.store.AnalystUsageHistory(gctx, days)
		if err != nil {
			res.fail(usage.SourceAnalystUsage, fetchFailure("analyst usage history", err))
			return nil
		}
		analyst = rows
		return nil
	})

	g.Go(func() error {
		rows, err := c.store.SearchUsageHistory(gctx, days)
		if err != nil {
			res.fail(usage.SourceSearchUsage, fetchFailure("search usage history", err))
			return nil
		}
		search = rows
		return nil
	})

	g.Go(func() error {
		edition, err := c.store.AccountEdition(gctx)
		if err != nil {
			res.pricingErr = fetchFailure("account edition", err)
			res.Pricing = pricing.Unknown()
			return nil
		}
		res.Edition = edition
		res.Pricing = pricing.ForEdition(edition)
		return nil
	})

	g.Go(func() error {
		catalog, err := c.CollectAgents(gctx)
		if err != nil {
			res.catalogErr = fetchFailure("agent inventory", err)
			return nil
		}
		res.Catalog = catalog
		return nil
	})

	g.Wait() // closures never return errors; failures land in the result

	res.Rows = append(res.Rows, attributionRows(attribution)...)
	res.Rows = append(res.Rows, analystRows(analyst)...)
	res.Search = search
	res.Rows = append(res.Rows, searchRows(search, res.Catalog)...)
	return res
}

// CollectAgents builds the agent catalog: SHOW AGENTS, then one DESCRIBE
// per agent for its tool configuration.
func (c *Collector) CollectAgents(ctx context.Context) (*agents.Catalog, error) {
	rows, err := c.store.ShowAgents(ctx)
	if err != nil {
		return nil, err
	}

	catalog := &agents.Catalog{}
	for _, row := range rows {
		agent := agents.Agent{
			Name:      row.Name,
			Owner:     row.Owner,
			Comment:   row.Comment,
			CreatedOn: row.CreatedOn,
		}
		spec, err := c.store.DescribeAgent(ctx, row.Name)
		if err == nil && spec != "" {
			agent.AnalystTools, agent.SearchServices = agents.ParseSpec(spec)
		}
		catalog.Agents = append(catalog.Agents, agent)
	}
	return catalog, nil
}

// Feed loads the collected rows into an aggregator and records every
// absorbed failure as the matching warning.
func (r *Result) Feed(agg *aggregate.Aggregator) {
	for _, src := range usage.AllSources() {
		if reason, ok := r.failures[src]; ok {
			agg.MarkUnavailable(src, reason)
		}
	}
	if r.pricingErr != "" {
		agg.NotePricingUnavailable(r.pricingErr)
	}
	if r.catalogErr != "" {
		agg.NoteDataQuality(usage.SourceSearchUsage,
			fmt.Sprintf("agent catalog unavailable (%s), search usage reported unscoped", r.catalogErr))
	}
	agg.Ingest(r.Rows)
}

func attributionRows(queries []accountusage.AttributedQuery) []usage.RawRow {
	var rows []usage.RawRow
	for _, q := range queries {
		ts := q.StartTime.UTC().Format(time.RFC3339)
		rows = append(rows, usage.RawRow{
			Source:    usage.SourceComputeQuery,
			Timestamp: ts,
			Credits:   q.ComputeCredits,
			EntityID:  q.Warehouse,
			RowCount:  1,
		})
		// Acceleration credits are attributed separately so the two
		// sources never overlap.
		if !q.AccelerationCredits.IsZero() {
			rows = append(rows, usage.RawRow{
				Source:    usage.SourceAttributedCredit,
				Timestamp: ts,
				Credits:   q.AccelerationCredits,
				EntityID:  q.Warehouse,
			})
		}
	}
	return rows
}

func analystRows(history []accountusage.AnalystUsage) []usage.RawRow {
	var rows []usage.RawRow
	for _, u := range history {
		rows = append(rows, usage.RawRow{
			Source:    usage.SourceAnalystUsage,
			Timestamp: u.StartTime.UTC().Format(time.RFC3339),
			Credits:   u.Credits,
			EntityID:  u.Username,
			RowCount:  u.RequestCount,
		})
	}
	return rows
}

// searchRows scopes search consumption to services reachable from an
// agent. When the catalog is unavailable the full consumption is reported
// instead of silently dropping the source.
func searchRows(history []accountusage.SearchUsage, catalog *agents.Catalog) []usage.RawRow {
	var rows []usage.RawRow
	for _, u := range history {
		if catalog != nil && !catalog.UsesService(u.Service) {
			continue
		}
		rows = append(rows, usage.RawRow{
			Source:    usage.SourceSearchUsage,
			Timestamp: u.UsageDate.UTC().Format("2006-01-02"),
			Credits:   u.Credits,
			EntityID:  u.Service,
		})
	}
	return rows
}

func fetchFailure(what string, err error) string {
	return fmt.Sprintf("could not fetch %s: %v", what, err)
}
