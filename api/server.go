// Package api provides the HTTP API surface for the cost dashboard: the
// aggregated cost report plus the supporting detail feeds (warehouse
// breakdown, search services, agent inventory, raw analyst requests).
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/collect"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/db/accountusage"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/report/aggregate"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/report/pricing"
	"github.com/sfc-gh-aperezgonzalez/snowflake-intelligence-cost-dashboard/report/usage"
)

// Store is the data access the server needs: every collector fetch plus
// connectivity checks.
type Store interface {
	collect.UsageStore
	AnalystRequests(ctx context.Context, days, limit int) ([]accountusage.AnalystRequest, error)
	Ping(ctx context.Context) error
}

// Config holds server configuration.
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	CORSOrigins     []string
	EditionOverride string
	DefaultWindows  []aggregate.Window
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   120 * time.Second,
		CORSOrigins:    []string{"*"},
		DefaultWindows: aggregate.AllWindows(),
	}
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	store      Store
	collector  *collect.Collector
	config     *Config
	now        func() time.Time
}

// NewServer creates a new API server over the usage store.
func NewServer(store Store, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if len(config.DefaultWindows) == 0 {
		config.DefaultWindows = aggregate.AllWindows()
	}
	return &Server{
		store:     store,
		collector: collect.New(store),
		config:    config,
		now:       time.Now,
	}
}

// Handler returns the routed and middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/api/v1/report", s.handleReport)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/warehouses", s.handleWarehouses)
	mux.HandleFunc("/api/v1/search", s.handleSearch)
	mux.HandleFunc("/api/v1/requests", s.handleRequests)

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	fmt.Printf("🚀 Cost dashboard API listening on port %d\n", s.config.Port)
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts the server and drains it on SIGINT or
// SIGTERM.
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		fmt.Println("\n📴 Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		fmt.Printf("%s %s %s %s\n", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "1.0.0",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.jsonError(w, http.StatusServiceUnavailable, "usage store not ready")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}

// =============================================================================
// REPORT ENDPOINT
// =============================================================================

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	windows, err := parseWindows(r.URL.Query().Get("days"), s.config.DefaultWindows)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	mode := r.URL.Query().Get("mode")
	switch mode {
	case "", modeCost, modeCredits:
	default:
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid mode %q (want credits or cost)", mode))
		return
	}

	grouping := make(map[usage.Source]aggregate.Grouping)
	if r.URL.Query().Get("group") == "entity" {
		for _, src := range usage.AllSources() {
			grouping[src] = aggregate.GroupingByEntity
		}
	}

	maxDays := 0
	for _, wdw := range windows {
		if int(wdw) > maxDays {
			maxDays = int(wdw)
		}
	}

	res := s.collector.Collect(r.Context(), maxDays)

	price := res.Pricing
	if s.config.EditionOverride != "" {
		price = pricing.ForEdition(s.config.EditionOverride)
	}

	agg := aggregate.New()
	res.Feed(agg)

	rpt, err := agg.BuildReport(aggregate.Config{
		Windows:  windows,
		Anchor:   s.now().UTC(),
		Grouping: grouping,
		Pricing:  price,
	})
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, buildReportResponse(rpt, mode == modeCredits))
}

// =============================================================================
// AGENT ENDPOINT
// =============================================================================

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	catalog, err := s.collector.CollectAgents(r.Context())
	if err != nil {
		s.jsonError(w, http.StatusBadGateway, fmt.Sprintf("failed to list agents: %v", err))
		return
	}
	s.jsonResponse(w, http.StatusOK, catalog)
}

// =============================================================================
// DETAIL ENDPOINTS
// =============================================================================

func (s *Server) handleWarehouses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	days, err := parsePositive("days", r.URL.Query().Get("days"), 7)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.store.WarehouseBreakdown(r.Context(), days)
	if err != nil {
		s.jsonError(w, http.StatusBadGateway, fmt.Sprintf("failed to fetch warehouse breakdown: %v", err))
		return
	}
	s.jsonResponse(w, http.StatusOK, buildWarehouseResponse(days, rows))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	days, err := parsePositive("days", r.URL.Query().Get("days"), 7)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	history, err := s.store.SearchUsageHistory(r.Context(), days)
	if err != nil {
		s.jsonError(w, http.StatusBadGateway, fmt.Sprintf("failed to fetch search usage: %v", err))
		return
	}

	// Catalog failure degrades to an unscoped view rather than an error.
	catalog, _ := s.collector.CollectAgents(r.Context())
	s.jsonResponse(w, http.StatusOK, buildSearchResponse(days, history, catalog))
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	days, err := parsePositive("days", r.URL.Query().Get("days"), 7)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parsePositive("limit", r.URL.Query().Get("limit"), 1000)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	requests, err := s.store.AnalystRequests(r.Context(), days, limit)
	if err != nil {
		s.jsonError(w, http.StatusBadGateway, fmt.Sprintf("failed to fetch analyst requests: %v", err))
		return
	}
	s.jsonResponse(w, http.StatusOK, buildRequestsResponse(days, requests))
}

// =============================================================================
// HELPERS
// =============================================================================

func parseWindows(raw string, defaults []aggregate.Window) ([]aggregate.Window, error) {
	if raw == "" {
		return defaults, nil
	}
	var windows []aggregate.Window
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid days value %q", part)
		}
		wdw := aggregate.Window(n)
		if !wdw.Valid() {
			return nil, fmt.Errorf("unsupported window of %d days (want 1, 3, 7 or 30)", n)
		}
		windows = append(windows, wdw)
	}
	return windows, nil
}

func parsePositive(name, raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s value %q", name, raw)
	}
	return n, nil
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
