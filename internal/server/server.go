// Package server implements the HTTP API for rooms, documents and chat.
// The server is started by the `roomrag serve` CLI command.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New constructs a Server from the domain services and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.Rooms == nil || deps.Documents == nil || deps.Chat == nil {
		return nil, errors.New("server: rooms, documents and chat must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		// Uploads of up to the size limit must fit in the read window.
		cfg.ReadTimeout = 2 * time.Minute
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = cfg.ChatTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		rooms:   deps.Rooms,
		docs:    deps.Documents,
		chat:    deps.Chat,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: cfg.Metrics,
	}
	if s.metrics == nil {
		reg := prometheus.NewRegistry()
		s.metrics = NewMetrics(reg)
		s.gatherer = reg
	} else {
		s.gatherer = s.metrics.gatherer
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stop

	if cfg.APIKey == "" {
		log.Warn("server: API key not set, authentication disabled")
	}
	protect := func(h http.HandlerFunc) http.Handler { return authMiddleware(cfg.APIKey, h) }
	limited := func(h http.HandlerFunc) http.Handler { return authMiddleware(cfg.APIKey, rl.middleware(h)) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	mux.Handle("POST /api/rooms", protect(s.handleCreateRoom))
	mux.Handle("GET /api/rooms", protect(s.handleListRooms))
	mux.Handle("GET /api/rooms/{id}", protect(s.handleGetRoom))
	mux.Handle("DELETE /api/rooms/{id}", protect(s.handleDeleteRoom))
	mux.Handle("POST /api/rooms/{id}/documents", limited(s.handleUpload))
	mux.Handle("GET /api/rooms/{id}/documents", protect(s.handleListDocuments))
	mux.Handle("POST /api/rooms/{id}/chat", limited(s.handleChat))
	mux.Handle("GET /api/rooms/{id}/history", protect(s.handleHistory))
	mux.Handle("GET /api/documents/{id}", protect(s.handleGetDocument))
	mux.Handle("DELETE /api/documents/{id}", protect(s.handleDeleteDocument))

	s.handler = requestLogger(log, s.metrics.instrument(mux))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}
