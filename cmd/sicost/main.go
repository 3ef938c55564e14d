// Snowflake Intelligence cost CLI
//
// Usage:
//
//	sicost report --days 1,3,7,30 [options]
//	sicost agents
//	sicost requests --days 7 --limit 50
//	sicost serve --port 8080
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/api"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/collect"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/config"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/db/accountusage"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/pkg/format"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/report/aggregate"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/report/pricing"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/report/usage"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "sicost",
		Usage:   "Snowflake Intelligence cost dashboard - agent, analyst and search spend from ACCOUNT_USAGE",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dsn",
				Usage:   "Usage store DSN (snowflake:// or postgres://)",
				EnvVars: []string{"SICOST_DSN"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				EnvVars: []string{"SICOST_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "edition",
				Usage:   "Snowflake edition override (STANDARD, ENTERPRISE, BUSINESS_CRITICAL, VPS)",
				EnvVars: []string{"SICOST_EDITION"},
			},
		},

		Commands: []*cli.Command{
			reportCommand(),
			serveCommand(),
			agentsCommand(),
			requestsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig merges the config file with global flags; flags win.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if dsn := c.String("dsn"); dsn != "" {
		cfg.DSN = dsn
	}
	if edition := c.String("edition"); edition != "" {
		cfg.EditionOverride = edition
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("no DSN configured: pass --dsn or set SICOST_DSN")
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*accountusage.Store, error) {
	store, err := accountusage.Open(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage store: %w", err)
	}
	return store, nil
}

// =============================================================================
// REPORT COMMAND
// =============================================================================

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Build the multi-window cost report",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "days",
				Aliases: []string{"d"},
				Value:   "1,3,7,30",
				Usage:   "Comma-separated report windows in days (1, 3, 7, 30)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json, markdown)",
			},
			&cli.BoolFlag{
				Name:  "by-warehouse",
				Usage: "Break warehouse compute down per warehouse",
			},
		},
		Action: runReport,
	}
}

func runReport(c *cli.Context) error {
	ctx := context.Background()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	windows, err := parseWindows(c.String("days"))
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	maxDays := 0
	for _, w := range windows {
		if int(w) > maxDays {
			maxDays = int(w)
		}
	}

	fmt.Fprintf(os.Stderr, "📊 Collecting %d days of usage...\n", maxDays)

	collector := collect.New(store)
	result := collector.Collect(ctx, maxDays)

	agg := aggregate.New()
	result.Feed(agg)

	price := result.Pricing
	if cfg.EditionOverride != "" {
		price = pricing.ForEdition(cfg.EditionOverride)
	}

	buildCfg := aggregate.Config{
		Windows: windows,
		Anchor:  time.Now().UTC(),
		Pricing: price,
	}
	if c.Bool("by-warehouse") {
		buildCfg.Grouping = map[usage.Source]aggregate.Grouping{
			usage.SourceComputeQuery: aggregate.GroupingByEntity,
		}
	}

	rpt, err := agg.BuildReport(buildCfg)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}

	switch c.String("format") {
	case "json":
		return outputJSON(rpt)
	case "markdown":
		return outputMarkdown(rpt)
	default:
		return outputTable(rpt)
	}
}

func parseWindows(raw string) ([]aggregate.Window, error) {
	var windows []aggregate.Window
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var days int
		if _, err := fmt.Sscanf(part, "%d", &days); err != nil {
			return nil, fmt.Errorf("invalid window %q", part)
		}
		w := aggregate.Window(days)
		if !w.Valid() {
			return nil, fmt.Errorf("unsupported window %d: valid windows are 1, 3, 7, 30", days)
		}
		windows = append(windows, w)
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("no report windows given")
	}
	return windows, nil
}

// =============================================================================
// OUTPUT FORMATTERS
// =============================================================================

type jsonBucket struct {
	Source        string `json:"source"`
	EntityID      string `json:"entity_id,omitempty"`
	TotalCredits  string `json:"total_credits"`
	EstimatedCost string `json:"estimated_cost,omitempty"`
	RowCountSum   int64  `json:"row_count_sum"`
}

type jsonWindow struct {
	Days       int          `json:"days"`
	Start      string       `json:"start"`
	End        string       `json:"end"`
	Buckets    []jsonBucket `json:"buckets"`
	GrandTotal jsonBucket   `json:"grand_total"`
}

type jsonReport struct {
	ID            string              `json:"id"`
	GeneratedAt   string              `json:"generated_at"`
	Edition       string              `json:"edition,omitempty"`
	RatePerCredit string              `json:"rate_per_credit,omitempty"`
	CreditOnly    bool                `json:"credit_only"`
	Windows       []jsonWindow        `json:"windows"`
	Warnings      []aggregate.Warning `json:"warnings,omitempty"`
}

func outputJSON(rpt *aggregate.Report) error {
	out := jsonReport{
		ID:          rpt.ID.String(),
		GeneratedAt: rpt.GeneratedAt.Format(time.RFC3339),
		Edition:     string(rpt.Edition),
		CreditOnly:  rpt.CreditOnly,
		Warnings:    rpt.Warnings,
	}
	if rpt.RatePerCredit != nil {
		out.RatePerCredit = rpt.RatePerCredit.StringFixed(2)
	}
	for _, w := range rpt.Windows {
		jw := jsonWindow{
			Days:  int(w.Window),
			Start: w.Start.Format("2006-01-02"),
			End:   w.End.Format("2006-01-02"),
			GrandTotal: jsonBucket{
				TotalCredits:  w.GrandTotal.TotalCredits.String(),
				RowCountSum:   w.GrandTotal.RowCountSum,
				EstimatedCost: costFixed(w.GrandTotal.EstimatedCost),
			},
		}
		for _, b := range w.Buckets {
			jw.Buckets = append(jw.Buckets, jsonBucket{
				Source:        string(b.Source),
				EntityID:      b.EntityID,
				TotalCredits:  b.TotalCredits.String(),
				EstimatedCost: costFixed(b.EstimatedCost),
				RowCountSum:   b.RowCountSum,
			})
		}
		out.Windows = append(out.Windows, jw)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func costFixed(cost *decimal.Decimal) string {
	if cost == nil {
		return ""
	}
	return cost.StringFixed(2)
}

func outputTable(rpt *aggregate.Report) error {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            ❄️  SNOWFLAKE INTELLIGENCE COSTS                   ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")
	if rpt.Edition != "" {
		fmt.Printf("║  Edition:               %-37s ║\n", rpt.Edition)
	}
	if rpt.RatePerCredit != nil {
		fmt.Printf("║  Rate per credit:       $%-36s ║\n", rpt.RatePerCredit.StringFixed(2))
	}
	if rpt.CreditOnly {
		fmt.Printf("║  Pricing:               %-37s ║\n", "credits only (edition unknown)")
	}

	for _, w := range rpt.Windows {
		fmt.Println("╠══════════════════════════════════════════════════════════════╣")
		header := fmt.Sprintf("LAST %d DAY(S)  %s → %s", w.Window,
			w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
		fmt.Printf("║  %-60s ║\n", header)
		fmt.Println("╠══════════════════════════════════════════════════════════════╣")
		for _, b := range w.Buckets {
			label := b.Source.Label()
			if b.EntityID != "" {
				label = fmt.Sprintf("%s (%s)", label, b.EntityID)
			}
			fmt.Printf("║  %-30s %12s %14s ║\n",
				truncate(label, 30),
				format.Credits(b.TotalCredits),
				format.Cost(b.EstimatedCost))
		}
		fmt.Printf("║  %-30s %12s %14s ║\n",
			"TOTAL",
			format.Credits(w.GrandTotal.TotalCredits),
			format.Cost(w.GrandTotal.EstimatedCost))
	}

	fmt.Println("╚══════════════════════════════════════════════════════════════╝")

	for _, warn := range rpt.Warnings {
		fmt.Printf("⚠️  [%s] %s\n", warn.Kind, warn.Message)
	}

	return nil
}

func outputMarkdown(rpt *aggregate.Report) error {
	fmt.Println("## ❄️ Snowflake Intelligence Cost Report")
	fmt.Println()
	if rpt.Edition != "" {
		fmt.Printf("Edition: **%s**", rpt.Edition)
		if rpt.RatePerCredit != nil {
			fmt.Printf(" ($%s/credit)", rpt.RatePerCredit.StringFixed(2))
		}
		fmt.Println()
		fmt.Println()
	}

	for _, w := range rpt.Windows {
		fmt.Printf("### Last %d day(s) (%s → %s)\n", w.Window,
			w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
		fmt.Println()
		fmt.Println("| Source | Credits | Est. Cost | Rows |")
		fmt.Println("|--------|---------|-----------|------|")
		for _, b := range w.Buckets {
			label := b.Source.Label()
			if b.EntityID != "" {
				label = fmt.Sprintf("%s (%s)", label, b.EntityID)
			}
			fmt.Printf("| %s | %s | %s | %d |\n",
				label, format.Credits(b.TotalCredits), format.Cost(b.EstimatedCost), b.RowCountSum)
		}
		fmt.Printf("| **Total** | **%s** | **%s** | %d |\n",
			format.Credits(w.GrandTotal.TotalCredits),
			format.Cost(w.GrandTotal.EstimatedCost),
			w.GrandTotal.RowCountSum)
		fmt.Println()
	}

	if len(rpt.Warnings) > 0 {
		fmt.Println("### ⚠️ Warnings")
		fmt.Println()
		for _, warn := range rpt.Warnings {
			fmt.Printf("- **%s**: %s\n", warn.Kind, warn.Message)
		}
	}

	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// =============================================================================
// AGENTS COMMAND
// =============================================================================

func agentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "agents",
		Usage: "List Snowflake Intelligence agents and their tool wiring",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			catalog, err := collect.New(store).CollectAgents(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list agents: %w", err)
			}

			if len(catalog.Agents) == 0 {
				fmt.Println("No agents found")
				return nil
			}

			for _, agent := range catalog.Agents {
				fmt.Printf("🤖 %s", agent.Name)
				if agent.Owner != "" {
					fmt.Printf("  (owner: %s)", agent.Owner)
				}
				fmt.Println()
				for _, tool := range agent.AnalystTools {
					fmt.Printf("   📊 analyst %s  warehouse=%s  semantic_view=%s\n",
						tool.Name, tool.Warehouse, tool.SemanticView)
				}
				for _, svc := range agent.SearchServices {
					fmt.Printf("   🔍 search %s  service=%s\n", svc.ToolName, svc.Service)
				}
				if len(agent.AnalystTools) == 0 && len(agent.SearchServices) == 0 {
					fmt.Println("   (no tools)")
				}
			}
			return nil
		},
	}
}

// =============================================================================
// REQUESTS COMMAND
// =============================================================================

func requestsCommand() *cli.Command {
	return &cli.Command{
		Name:  "requests",
		Usage: "Show recent Cortex Analyst requests",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "days",
				Aliases: []string{"d"},
				Value:   7,
				Usage:   "Lookback window in days",
			},
			&cli.IntFlag{
				Name:  "limit",
				Value: 50,
				Usage: "Maximum rows to print",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			requests, err := store.AnalystRequests(context.Background(), c.Int("days"), c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to fetch analyst requests: %w", err)
			}

			if len(requests) == 0 {
				fmt.Println("No analyst requests in window")
				return nil
			}

			for _, r := range requests {
				fmt.Printf("%s  %-20s %-25s %s\n",
					r.Timestamp.Format("2006-01-02 15:04"),
					truncate(r.Username, 20),
					truncate(r.SemanticModel, 25),
					truncate(r.LatestQuestion, 60))
			}
			return nil
		},
	}
}

// =============================================================================
// SERVE COMMAND (API SERVER)
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the cost dashboard API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Usage:   "API server port",
				EnvVars: []string{"SICOST_PORT"},
			},
			&cli.StringFlag{
				Name:    "cors-origins",
				Usage:   "Comma-separated list of allowed CORS origins",
				EnvVars: []string{"SICOST_CORS_ORIGINS"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if port := c.Int("port"); port > 0 {
		cfg.Port = port
	}
	if origins := c.String("cors-origins"); origins != "" {
		parts := strings.Split(origins, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	serverCfg := api.DefaultConfig()
	serverCfg.Port = cfg.Port
	serverCfg.CORSOrigins = cfg.CORSOrigins
	serverCfg.EditionOverride = cfg.EditionOverride

	var windows []aggregate.Window
	for _, days := range cfg.Windows {
		w := aggregate.Window(days)
		if w.Valid() {
			windows = append(windows, w)
		}
	}
	if len(windows) > 0 {
		serverCfg.DefaultWindows = windows
	}

	server := api.NewServer(store, serverCfg)
	return server.StartWithGracefulShutdown()
}
