// Package server hosts live simulations over HTTP.
//
// Routes:
//
//	POST   /simulations               create a session from a graph
//	GET    /simulations               list sessions
//	GET    /simulations/{id}          snapshot with current layout
//	POST   /simulations/{id}/frames   advance frames with pointer input
//	PATCH  /simulations/{id}/params   change parameters between frames
//	GET    /simulations/{id}/render   draw the current layout
//	GET    /simulations/{id}/stream   websocket: input in, positions out per tick
//	DELETE /simulations/{id}          save positions and close
//	POST   /layouts                   headless run to a settled layout
//	GET    /metrics                   Prometheus metrics
//	GET    /healthz                   liveness and build info
//
// Sessions expire after [config.Server.SessionTTL] without activity. When a
// pipeline runner is configured, positions are saved through its cache on
// close and restored by sessions created with "resume".
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/matzehuels/forceview/pkg/config"
	"github.com/matzehuels/forceview/pkg/metrics"
	"github.com/matzehuels/forceview/pkg/pipeline"
	"github.com/matzehuels/forceview/pkg/session"
)

const (
	maxBodyBytes    = 32 << 20
	shutdownTimeout = 5 * time.Second
)

// Config configures a Server.
type Config struct {
	Settings config.File

	// Runner renders layouts, runs headless simulations and saves state.
	// Nil uses a runner without a cache.
	Runner *pipeline.Runner

	Logger *log.Logger
}

// Server is the HTTP host.
type Server struct {
	logger   *log.Logger
	runner   *pipeline.Runner
	store    *session.Store
	upgrader websocket.Upgrader
	router   chi.Router

	mu       sync.RWMutex
	settings config.File
}

// New creates a server. Zero settings are filled with defaults.
func New(cfg Config) *Server {
	cfg.Settings.SetDefaults()
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Runner == nil {
		cfg.Runner = pipeline.NewRunner(nil, nil, cfg.Logger)
	}
	s := &Server{
		logger:   cfg.Logger,
		runner:   cfg.Runner,
		store:    session.NewStore(cfg.Settings.Server.MaxSessions),
		settings: cfg.Settings,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/layouts", s.handleLayout)

	r.Route("/simulations", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleDelete)
			r.Post("/frames", s.handleFrames)
			r.Patch("/params", s.handleParams)
			r.Get("/render", s.handleRender)
			r.Get("/stream", s.handleStream)
		})
	})
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Settings returns the active configuration.
func (s *Server) Settings() config.File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// ApplyConfig installs a reloaded configuration and pushes the new
// simulation parameters into every live session.
func (s *Server) ApplyConfig(f config.File) {
	s.mu.Lock()
	s.settings = f
	s.mu.Unlock()

	for _, sess := range s.store.List() {
		if err := sess.SetParams(f.Simulation.Params); err != nil {
			s.logger.Warn("apply reloaded params", "session", sess.ID, "error", err)
		}
	}
	s.logger.Info("configuration applied", "sessions", s.store.Len())
}

// Sessions returns the number of live sessions.
func (s *Server) Sessions() int { return s.store.Len() }

// EvictExpired saves and closes every session idle past its TTL at now and
// returns how many were evicted.
func (s *Server) EvictExpired(ctx context.Context, now time.Time) int {
	expired := s.store.Expired(now)
	for _, sess := range expired {
		s.release(ctx, sess)
		s.logger.Debug("session expired", "session", sess.ID)
	}
	return len(expired)
}

// release saves the positions of sess and closes it.
func (s *Server) release(ctx context.Context, sess *session.Session) {
	if err := s.runner.SaveState(ctx, sess.Graph, sess.Layout()); err != nil {
		s.logger.Warn("save session state", "session", sess.ID, "error", err)
	}
	if err := sess.Close(); err != nil {
		s.logger.Warn("close session", "session", sess.ID, "error", err)
	}
}

// Close saves and closes every session.
func (s *Server) Close(ctx context.Context) {
	for _, sess := range s.store.Drain() {
		s.release(ctx, sess)
	}
}

// Run serves on the configured address until ctx is done, evicting expired
// sessions in the background.
func (s *Server) Run(ctx context.Context) error {
	addr := s.Settings().Server.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.janitor(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.Close(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) janitor(ctx context.Context) {
	interval := min(s.Settings().Server.SessionTTL/2, time.Minute)
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.EvictExpired(ctx, now); n > 0 {
				s.logger.Info("evicted idle sessions", "count", n)
			}
		}
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Microsecond),
		)
	})
}
