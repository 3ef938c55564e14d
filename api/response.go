package api

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/agents"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/db/accountusage"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/pkg/format"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/report/aggregate"
)

// Display modes for the report endpoint. Credits mode suppresses the cost
// columns the way the dashboard's Credits/Estimated Cost toggle does.
const (
	modeCredits = "credits"
	modeCost    = "cost"
)

// ReportResponse is the API shape of a cost report. Credits keep full
// precision as strings; display fields carry the dashboard formatting.
type ReportResponse struct {
	ID            string              `json:"id"`
	GeneratedAt   string              `json:"generated_at"`
	Mode          string              `json:"mode"`
	Edition       string              `json:"edition,omitempty"`
	RatePerCredit string              `json:"rate_per_credit,omitempty"`
	CreditOnly    bool                `json:"credit_only"`
	Windows       []WindowResponse    `json:"windows"`
	Warnings      []aggregate.Warning `json:"warnings"`
}

// WindowResponse is one time window of the report.
type WindowResponse struct {
	Days       int              `json:"days"`
	Start      string           `json:"start"`
	End        string           `json:"end"`
	Buckets    []BucketResponse `json:"buckets"`
	GrandTotal BucketResponse   `json:"grand_total"`
}

// BucketResponse is a single cost line item.
type BucketResponse struct {
	Source        string `json:"source,omitempty"`
	Label         string `json:"label,omitempty"`
	EntityID      string `json:"entity_id,omitempty"`
	TotalCredits  string `json:"total_credits"`
	EstimatedCost string `json:"estimated_cost,omitempty"`
	RowCountSum   int64  `json:"row_count_sum"`
}

func buildReportResponse(rpt *aggregate.Report, creditsOnly bool) ReportResponse {
	resp := ReportResponse{
		ID:          rpt.ID.String(),
		GeneratedAt: rpt.GeneratedAt.Format(time.RFC3339),
		Mode:        modeCost,
		Edition:     string(rpt.Edition),
		CreditOnly:  rpt.CreditOnly,
		Warnings:    rpt.Warnings,
		Windows:     make([]WindowResponse, 0, len(rpt.Windows)),
	}
	if creditsOnly {
		resp.Mode = modeCredits
	}
	if rpt.RatePerCredit != nil && !creditsOnly {
		resp.RatePerCredit = rpt.RatePerCredit.StringFixed(2)
	}

	for _, wdw := range rpt.Windows {
		wr := WindowResponse{
			Days:  int(wdw.Window),
			Start: wdw.Start.Format("2006-01-02"),
			End:   wdw.End.Format("2006-01-02"),
			GrandTotal: BucketResponse{
				Label:        "Total Snowflake Intelligence",
				TotalCredits: format.Credits(wdw.GrandTotal.TotalCredits),
				RowCountSum:  wdw.GrandTotal.RowCountSum,
			},
		}
		if !creditsOnly {
			wr.GrandTotal.EstimatedCost = costString(wdw.GrandTotal.EstimatedCost)
		}
		for _, b := range wdw.Buckets {
			br := BucketResponse{
				Source:       string(b.Source),
				Label:        b.Source.Label(),
				EntityID:     b.EntityID,
				TotalCredits: format.Credits(b.TotalCredits),
				RowCountSum:  b.RowCountSum,
			}
			if !creditsOnly {
				br.EstimatedCost = costString(b.EstimatedCost)
			}
			wr.Buckets = append(wr.Buckets, br)
		}
		resp.Windows = append(resp.Windows, wr)
	}
	return resp
}

func costString(cost *decimal.Decimal) string {
	if cost == nil {
		return ""
	}
	return format.Cost(cost)
}

// WarehouseResponse pivots the breakdown into one row per warehouse, the
// way the dashboard table shows it.
type WarehouseResponse struct {
	Days       int            `json:"days"`
	Warehouses []WarehouseRow `json:"warehouses"`
}

// WarehouseRow splits one warehouse's activity into cortex-tagged and
// other queries.
type WarehouseRow struct {
	Warehouse     string `json:"warehouse"`
	CortexCredits string `json:"cortex_credits"`
	CortexQueries int64  `json:"cortex_queries"`
	OtherCredits  string `json:"other_credits"`
	OtherQueries  int64  `json:"other_queries"`
}

func buildWarehouseResponse(days int, rows []accountusage.WarehouseUsage) WarehouseResponse {
	type pivot struct {
		cortexCredits, otherCredits decimal.Decimal
		cortexQueries, otherQueries int64
	}
	byWarehouse := make(map[string]*pivot)
	for _, r := range rows {
		p, ok := byWarehouse[r.Warehouse]
		if !ok {
			p = &pivot{}
			byWarehouse[r.Warehouse] = p
		}
		if r.IsCortex {
			p.cortexCredits = p.cortexCredits.Add(r.Credits)
			p.cortexQueries += r.QueryCount
		} else {
			p.otherCredits = p.otherCredits.Add(r.Credits)
			p.otherQueries += r.QueryCount
		}
	}

	names := make([]string, 0, len(byWarehouse))
	for name, p := range byWarehouse {
		// Only warehouses with cortex activity are interesting here.
		if p.cortexCredits.IsPositive() || p.cortexQueries > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	resp := WarehouseResponse{Days: days, Warehouses: make([]WarehouseRow, 0, len(names))}
	for _, name := range names {
		p := byWarehouse[name]
		resp.Warehouses = append(resp.Warehouses, WarehouseRow{
			Warehouse:     name,
			CortexCredits: format.Credits(p.cortexCredits),
			CortexQueries: p.cortexQueries,
			OtherCredits:  format.Credits(p.otherCredits),
			OtherQueries:  p.otherQueries,
		})
	}
	return resp
}

// SearchResponse summarizes search consumption per service, with the
// agents that reference each service.
type SearchResponse struct {
	Days     int         `json:"days"`
	Scoped   bool        `json:"scoped_to_agents"`
	Services []SearchRow `json:"services"`
}

// SearchRow is one search service's consumption.
type SearchRow struct {
	Service      string   `json:"service"`
	AgentsUsing  []string `json:"agents_using,omitempty"`
	TotalCredits string   `json:"total_credits"`
	UsageDays    int      `json:"usage_days"`
}

func buildSearchResponse(days int, history []accountusage.SearchUsage, catalog *agents.Catalog) SearchResponse {
	var byService map[string][]string
	if catalog != nil {
		_, byService = catalog.ServiceAgents()
	}

	type svcAgg struct {
		credits decimal.Decimal
		dates   map[string]bool
	}
	totals := make(map[string]*svcAgg)
	for _, u := range history {
		if catalog != nil && !catalog.UsesService(u.Service) {
			continue
		}
		agg, ok := totals[u.Service]
		if !ok {
			agg = &svcAgg{dates: make(map[string]bool)}
			totals[u.Service] = agg
		}
		agg.credits = agg.credits.Add(u.Credits)
		agg.dates[u.UsageDate.Format("2006-01-02")] = true
	}

	services := make([]string, 0, len(totals))
	for svc := range totals {
		services = append(services, svc)
	}
	sort.Slice(services, func(i, j int) bool {
		a, b := totals[services[i]].credits, totals[services[j]].credits
		if a.Equal(b) {
			return services[i] < services[j]
		}
		return a.GreaterThan(b)
	})

	resp := SearchResponse{Days: days, Scoped: catalog != nil}
	for _, svc := range services {
		resp.Services = append(resp.Services, SearchRow{
			Service:      svc,
			AgentsUsing:  byService[svc],
			TotalCredits: format.Credits(totals[svc].credits),
			UsageDays:    len(totals[svc].dates),
		})
	}
	return resp
}

// RequestsResponse is the raw analyst request feed plus per-model and
// per-user counts.
type RequestsResponse struct {
	Days     int            `json:"days"`
	Total    int            `json:"total"`
	ByModel  []CountRow     `json:"by_semantic_model"`
	ByUser   []CountRow     `json:"by_user"`
	Requests []RequestEntry `json:"requests"`
}

// CountRow is a (key, count) summary line.
type CountRow struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// RequestEntry is one raw analyst request.
type RequestEntry struct {
	Timestamp      string `json:"timestamp"`
	SemanticModel  string `json:"semantic_model,omitempty"`
	Username       string `json:"username,omitempty"`
	LatestQuestion string `json:"latest_question,omitempty"`
	Feedback       string `json:"feedback,omitempty"`
}

func buildRequestsResponse(days int, requests []accountusage.AnalystRequest) RequestsResponse {
	resp := RequestsResponse{Days: days, Total: len(requests)}

	models := make(map[string]int64)
	users := make(map[string]int64)
	for _, r := range requests {
		if r.SemanticModel != "" {
			models[r.SemanticModel]++
		}
		if r.Username != "" {
			users[r.Username]++
		}
		resp.Requests = append(resp.Requests, RequestEntry{
			Timestamp:      r.Timestamp.Format(time.RFC3339),
			SemanticModel:  r.SemanticModel,
			Username:       r.Username,
			LatestQuestion: r.LatestQuestion,
			Feedback:       r.Feedback,
		})
	}
	resp.ByModel = countRows(models)
	resp.ByUser = countRows(users)
	return resp
}

func countRows(counts map[string]int64) []CountRow {
	rows := make([]CountRow, 0, len(counts))
	for k, n := range counts {
		rows = append(rows, CountRow{Key: k, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Key < rows[j].Key
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
