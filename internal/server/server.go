package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/gridpulse/gridpulse-ui/internal/alerts"
	"github.com/gridpulse/gridpulse-ui/internal/cache"
	"github.com/gridpulse/gridpulse-ui/internal/config"
	"github.com/gridpulse/gridpulse-ui/internal/feed"
	"github.com/gridpulse/gridpulse-ui/internal/grid"
	"github.com/gridpulse/gridpulse-ui/internal/layout"
	"github.com/gridpulse/gridpulse-ui/internal/logging"
	"github.com/gridpulse/gridpulse-ui/internal/prefs"
	"github.com/gridpulse/gridpulse-ui/internal/reconcile"
)

// Server is the main HTTP server for gridpulse-ui.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	router  *chi.Mux
	store   *grid.Store
	manager *alerts.Manager
	rec     *reconcile.Reconciler
	prefs   *prefs.Service
	cache   *cache.Cache
	feed    feed.Client
	live    func() bool
}

// New creates a new Server instance with configured routes and middleware.
// live reports push-channel health for the status endpoint; it may be nil.
func New(cfg *config.Config, logger *slog.Logger, store *grid.Store,
	manager *alerts.Manager, rec *reconcile.Reconciler, prefService *prefs.Service,
	graphCache *cache.Cache, feedClient feed.Client, live func() bool) *Server {

	if live == nil {
		live = func() bool { return false }
	}
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		router:  chi.NewRouter(),
		store:   store,
		manager: manager,
		rec:     rec,
		prefs:   prefService,
		cache:   graphCache,
		feed:    feedClient,
		live:    live,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.cfg.Server.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(logging.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	// Health probes
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	// API v1
	s.router.Route("/api/v1", func(r chi.Router) {
		r.With(gzipMiddleware).Get("/topology", s.handleTopology)
		r.With(gzipMiddleware).Get("/graph", s.handleGraph)

		r.Get("/alerts", s.handleAlerts)
		r.Get("/alerts/stats", s.handleAlertStats)
		r.Get("/alerts/timeline", s.handleAlertTimeline)
		r.Post("/alerts/{id}/acknowledge", s.handleAcknowledge)
		r.Post("/alerts/{id}/resolve", s.handleResolve)

		r.Get("/prefs", s.handleGetPrefs)
		r.Post("/prefs", s.handleSetPrefs)

		r.Get("/feeder/impact", s.handleFeederImpact)
		r.Get("/export/{format}", s.handleExport)

		r.Get("/status", s.handleStatus)
		r.Get("/config", s.handleConfig)
	})

	// SPA static files (embedded via embed.FS)
	s.router.Handle("/*", newStaticHandler())
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":%q}`, msg)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

// handleReadyz reports ready once at least one snapshot has been applied.
// The push channel being down does not make the process unready: data may
// still be fresh from polling.
func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if s.store.Generation() == 0 {
		writeError(w, http.StatusServiceUnavailable, "no grid snapshot applied yet")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (s *Server) handleTopology(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.store.Snapshot())
}

// handleGraph serves the positioned graph for the requested direction.
// Graphs are cached per direction and invalidated by snapshot generation.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	dirParam := r.URL.Query().Get("direction")
	if dirParam == "" {
		dirParam = string(s.prefs.Get().Direction)
	}
	dir := layout.ParseDirection(dirParam)

	g := s.buildGraph(dir)
	s.writeJSON(w, g)
}

func (s *Server) buildGraph(dir layout.Direction) *layout.Graph {
	gen := s.store.Generation()
	if g, ok := s.cache.Get(dir, gen); ok {
		return g
	}
	g := layout.Build(s.store.Snapshot(), dir)
	s.cache.Set(dir, g.Generation, g)
	return g
}

// handleStatus serves runtime diagnostics for the dashboard header.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	type statusResponse struct {
		Live         bool            `json:"live"`
		Generation   uint64          `json:"generation"`
		SnapshotTime *time.Time      `json:"snapshotTime,omitempty"`
		ActiveAlerts int             `json:"activeAlerts"`
		Reconciler   reconcile.Stats `json:"reconciler"`
	}

	resp := statusResponse{
		Live:         s.live(),
		Generation:   s.store.Generation(),
		ActiveAlerts: s.manager.ActiveCount(),
		Reconciler:   s.rec.Stats(),
	}
	if t := s.store.SnapshotTime(); !t.IsZero() {
		resp.SnapshotTime = &t
	}

	s.writeJSON(w, resp)
}

// configResponse holds frontend-relevant configuration.
type configResponse struct {
	Limits       *grid.LimitConfig `json:"limits,omitempty"`
	PollInterval int               `json:"pollInterval"` // seconds
	CacheTTL     int               `json:"cacheTtl"`     // seconds
	PushEnabled  bool              `json:"pushEnabled"`
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	limits := s.store.Snapshot().Limits
	resp := configResponse{
		PollInterval: int(s.cfg.Poll.Interval.Seconds()),
		CacheTTL:     int(s.cfg.Cache.TTL.Seconds()),
		PushEnabled:  s.cfg.Push.Enabled,
	}
	if limits != (grid.LimitConfig{}) {
		resp.Limits = &limits
	}

	s.writeJSON(w, resp)
}
