package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/query"
	"fintrack/internal/services"
)

var _ TransactionAPI = (*services.TransactionService)(nil)

// TransactionAPI is the subset of services.TransactionService the handlers call.
type TransactionAPI interface {
	Create(ctx context.Context, in services.CreateInput) (core.Transaction, error)
	Update(ctx context.Context, id string, in services.UpdateInput) (core.Transaction, error)
	Delete(ctx context.Context, id, ownerID string) error
	List(ctx context.Context, req query.Request) ([]core.Transaction, error)
}

// Config tunes the server.
type Config struct {
	// Location interprets calendar-day dates in request bodies (default: time.Local)
	Location *time.Location

	// CORSOrigins lists allowed origins; "*" allows any
	CORSOrigins []string

	RateLimit ratelimit.Config

	// Ready is probed by /readyz; nil means always ready
	Ready func(ctx context.Context) error

	Logger *log.Logger
}

type Server struct {
	http.Server
	txs      TransactionAPI
	location *time.Location
	ready    func(ctx context.Context) error
	logger   *log.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	metrics  *appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, txs TransactionAPI, cfg Config) *Server {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}

	s := &Server{
		txs:      txs,
		location: cfg.Location,
		ready:    cfg.Ready,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(cfg.RateLimit),
		detector: security.NewDetector(),
		metrics:  newAppMetrics(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// The method-less pattern catches every other method with a JSON 405.
	api := func(method, path string, h http.HandlerFunc) {
		mux.HandleFunc(method+" "+path, h)
		mux.HandleFunc(path, s.methodNotAllowed(method))
	}
	api(http.MethodPost, "/api/v1/addTransaction", s.handleAddTransaction)
	api(http.MethodPost, "/api/v1/getTransaction", s.handleGetTransactions)
	api(http.MethodPost, "/api/v1/deleteTransaction/{id}", s.handleDeleteTransaction)
	api(http.MethodPut, "/api/v1/updateTransaction/{id}", s.handleUpdateTransaction)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(handler)
	handler = security.NewCORS(cfg.CORSOrigins).Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.detector.Middleware(logger.WithComponent(log.ComponentSecurity))(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) methodNotAllowed(allowed string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError(allowed).Write(w)
	}
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.").Write(w)
}
