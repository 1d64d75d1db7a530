package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/greenlight-sh/greenlight/pkg/log"
	"github.com/greenlight-sh/greenlight/pkg/metrics"
	"github.com/greenlight-sh/greenlight/pkg/orchestrator"
	"github.com/greenlight-sh/greenlight/pkg/storage"
)

const (
	// HTTP server timeouts
	httpReadTimeout  = 10 * time.Second
	httpWriteTimeout = 15 * time.Minute // releases block until terminal
	httpIdleTimeout  = 60 * time.Second

	maxPayloadBytes = 1 << 20 // 1 MB

	defaultHistoryLimit = 20
)

// Server exposes the orchestrator over HTTP for CI/webhook callers
type Server struct {
	orch   *orchestrator.Orchestrator
	store  storage.Store
	logger zerolog.Logger
	srv    *http.Server
}

// NewServer creates an API server over the orchestrator and store
func NewServer(orch *orchestrator.Orchestrator, store storage.Store) *Server {
	return &Server{
		orch:   orch,
		store:  store,
		logger: log.WithComponent("api"),
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/releases", s.handleSubmitRelease)
		r.Get("/releases", s.handleHistory)
		r.Get("/releases/last", s.handleLastRelease)
		r.Get("/environments", s.handleEnvironments)
		r.Post("/cancel", s.handleCancel)
		r.Post("/fatal/clear", s.handleClearFatal)
	})

	return r
}

// Start runs the server until the context is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  httpReadTimeout,
		WriteTimeout: httpWriteTimeout,
		IdleTimeout:  httpIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("API server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

// logRequests is the zerolog request-logging middleware
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			metrics.APIRequestsTotal.WithLabelValues(r.Method, http.StatusText(ww.Status())).Inc()
			s.logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Str("request_id", middleware.GetReqID(r.Context())).
				Dur("duration", time.Since(start)).
				Msg("http request")
		}()

		next.ServeHTTP(ww, r)
	})
}
