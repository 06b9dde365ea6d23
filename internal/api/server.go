// Package api serves the dashboard-facing JSON query surface over the trade
// store, plus a health endpoint reflecting feed liveness.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/whaleflow/whaleflow/internal/config"
	"github.com/whaleflow/whaleflow/internal/engine"
	"github.com/whaleflow/whaleflow/internal/store"
)

// Server is the read-only query API.
type Server struct {
	cfg    config.APIConfig
	store  store.TradeStore
	health *engine.FeedHealth
	log    zerolog.Logger

	router *mux.Router
	server *http.Server

	nowFunc func() time.Time
}

// NewServer wires the routes. health may be nil; /healthz then reports ok
// without per-feed detail.
func NewServer(cfg config.APIConfig, st store.TradeStore, health *engine.FeedHealth, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		health:  health,
		log:     logger.With().Str("component", "api").Logger(),
		router:  mux.NewRouter(),
		nowFunc: time.Now,
	}
	s.routes()
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("api listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/trades", s.handleTrades).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)
	api.HandleFunc("/wallets", s.handleWallets).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{address}", s.handleWalletSummary).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{address}/analytics", s.handleWalletAnalytics).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"ok": true}
	if s.health != nil {
		feeds := s.health.Snapshot()
		resp["feeds"] = feeds
		for platform := range feeds {
			if !s.health.Healthy(platform) {
				resp["ok"] = false
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	q := store.RecentQuery{
		MinSizeUSD: s.queryFloat(r, "min_usd", s.cfg.FlowMinUSD),
		Limit:      s.sanitizeLimit(r.URL.Query().Get("limit")),
		SinceTS:    s.sinceTS(r.URL.Query().Get("lookback_hours")),
		Wallet:     strings.TrimSpace(r.URL.Query().Get("wallet")),
	}
	for _, platform := range strings.Split(r.URL.Query().Get("platforms"), ",") {
		platform = strings.ToLower(strings.TrimSpace(platform))
		if platform != "" {
			q.Platforms = append(q.Platforms, platform)
		}
	}
	trades, err := s.store.RecentTrades(q)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.LeaderboardLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	entries, err := s.store.Leaderboard(limit, s.sinceTS(r.URL.Query().Get("lookback_hours")))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	limit := s.sanitizeLimit(r.URL.Query().Get("limit"))
	wallets, err := s.store.AllWallets(limit, s.sinceTS(r.URL.Query().Get("lookback_hours")))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallets": wallets})
}

func (s *Server) handleWalletSummary(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	summary, err := s.store.WalletSummary(address, s.sinceTS(r.URL.Query().Get("lookback_hours")))
	if err != nil {
		s.fail(w, err)
		return
	}
	if summary == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "wallet not found"})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleWalletAnalytics(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	analytics, err := s.store.WalletAnalytics(address, s.sinceTS(r.URL.Query().Get("lookback_hours")))
	if err != nil {
		s.fail(w, err)
		return
	}
	if analytics == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "wallet not found"})
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// sanitizeLimit clamps the requested page size to [1, FlowMaxLimit], falling
// back to the configured default.
func (s *Server) sanitizeLimit(raw string) int {
	limit := s.cfg.FlowLimit
	if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
		limit = v
	}
	if limit < 1 {
		limit = 1
	}
	if s.cfg.FlowMaxLimit > 0 && limit > s.cfg.FlowMaxLimit {
		limit = s.cfg.FlowMaxLimit
	}
	return limit
}

// sinceTS resolves a lookback-hours parameter to an absolute cutoff. Missing
// input uses the configured default; zero or negative hours means all time.
func (s *Server) sinceTS(raw string) *float64 {
	hours := s.cfg.FlowLookbackHrs
	if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		hours = v
	}
	if hours <= 0 {
		return nil
	}
	cutoff := float64(s.nowFunc().UnixNano())/1e9 - hours*3600
	return &cutoff
}

func (s *Server) queryFloat(r *http.Request, key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(strings.TrimSpace(r.URL.Query().Get(key)), 64); err == nil {
		return v
	}
	return fallback
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.Warn().Err(err).Msg("store query failed")
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
