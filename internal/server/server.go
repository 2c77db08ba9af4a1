// Package server exposes the settlement engine over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"bondingCurve/internal/fixedpoint"
	"bondingCurve/internal/metrics"
	"bondingCurve/internal/model"
	"bondingCurve/internal/settlement"
)

// Service is the engine surface the handlers call.
type Service interface {
	CreatePool(ctx context.Context, req settlement.CreatePoolRequest) (model.Pool, error)
	Pool(ctx context.Context, poolID string) (model.Pool, error)
	Trades(ctx context.Context, poolID string, afterSeq uint64, limit int) ([]model.TradeRecord, error)
	Quote(ctx context.Context, poolID string, dir model.Direction, amount fixedpoint.Value) (model.Quote, error)
	QuoteBuyWithBudget(ctx context.Context, poolID string, budget fixedpoint.Value) (model.Quote, error)
	Settle(ctx context.Context, req model.TradeRequest, key string) (model.TradeResult, error)
	Launch(ctx context.Context, poolID string) (model.Pool, error)
}

// Config holds the HTTP server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *zap.Logger
}

// New registers all routes and wraps them in request logging.
func New(cfg Config, svc Service, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	h := &handlers{svc: svc, logger: logger}
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.health).Methods(http.MethodGet)
	api.HandleFunc("/pools", h.createPool).Methods(http.MethodPost)
	api.HandleFunc("/pools/{id}", h.getPool).Methods(http.MethodGet)
	api.HandleFunc("/pools/{id}/quote", h.quote).Methods(http.MethodGet)
	api.HandleFunc("/pools/{id}/trades", h.submitTrade).Methods(http.MethodPost)
	api.HandleFunc("/pools/{id}/trades", h.listTrades).Methods(http.MethodGet)
	api.HandleFunc("/pools/{id}/launch", h.launch).Methods(http.MethodPost)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	handler := logging(logger)(r)
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		handler: handler,
		logger:  logger,
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}
