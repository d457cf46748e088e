// File: internal/api/server.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/config"
	"github.com/xkilldash9x/docketpilot/internal/workflow"
)

const (
	requestTimeout  = 120 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Sessions is the session registry the handlers drive.
type Sessions interface {
	Start(ctx context.Context) (*workflow.Session, workflow.PhaseResult, error)
	Get(id string) (*workflow.Session, error)
	List() []workflow.State
	Close(id string) error
}

// Server hosts the HTTP API over a session registry.
type Server struct {
	cfg        config.APIConfig
	logger     *zap.Logger
	handlers   *Handlers
	httpServer *http.Server
}

// NewServer builds the server. Nothing listens until Run is called.
func NewServer(cfg config.APIConfig, sessions Sessions, version string, logger *zap.Logger) *Server {
	logger = logger.Named("api")
	return &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: NewHandlers(sessions, version, logger),
	}
}

// Router assembles the middleware stack and routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(RateLimit(s.cfg.RateLimit, s.logger))
	r.Use(requestLogger(s.logger))

	var auth func(http.Handler) http.Handler
	if s.cfg.AuthEnabled() {
		auth = NewAuthenticator([]byte(s.cfg.JWTSecret), s.logger).Middleware
	} else {
		s.logger.Warn("No JWT secret configured. The API is unauthenticated.")
	}
	s.handlers.RegisterRoutes(r, auth)
	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting.", zap.String("address", s.cfg.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down API server gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown: %w", err)
	}
	<-errCh
	s.logger.Info("API server stopped.")
	return nil
}

// requestLogger writes one structured line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug("Request served.",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
