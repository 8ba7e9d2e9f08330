package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"fintrack/internal/log"
	"fintrack/internal/services"
)

type appMetrics struct {
	created atomic.Int64
	updated atomic.Int64
	deleted atomic.Int64
	listed  atomic.Int64
	failed  atomic.Int64
	started time.Time
}

func newAppMetrics() *appMetrics {
	return &appMetrics{started: time.Now()}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("fintrack server is working"))
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports 503 while the store cannot be reached.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.NewFields().WithError(err).ToSlice()...)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	_, _ = w.Write([]byte("ready"))
}

// handleMetrics writes counters in Prometheus text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	rateMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()

	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}
	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	counter("http_server_errors_total", "Responses with a 5xx status", traceMetrics.ServerErrors)
	fmt.Fprintf(w, "# HELP transaction_mutations_total Successful transaction mutations by operation\n")
	fmt.Fprintf(w, "# TYPE transaction_mutations_total counter\n")
	fmt.Fprintf(w, "transaction_mutations_total{operation=\"create\"} %d\n", s.metrics.created.Load())
	fmt.Fprintf(w, "transaction_mutations_total{operation=\"update\"} %d\n", s.metrics.updated.Load())
	fmt.Fprintf(w, "transaction_mutations_total{operation=\"delete\"} %d\n\n", s.metrics.deleted.Load())
	counter("transaction_queries_total", "Successful transaction list queries", s.metrics.listed.Load())
	counter("transaction_failures_total", "Transaction requests answered with success=false", s.metrics.failed.Load())
	counter("rate_limit_hits_total", "Total rate limit hits", rateMetrics.TotalHits)
	counter("suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateMetrics.ClientCount)
	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.metrics.started).Seconds())
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.fail(w, r, log.OpCreate, err, "")
		return
	}
	in, err := parseCreateInput(p, s.location)
	if err != nil {
		s.fail(w, r, log.OpCreate, err, "")
		return
	}

	tx, err := s.txs.Create(r.Context(), in)
	if err != nil {
		s.fail(w, r, log.OpCreate, err, "User not found")
		return
	}

	s.metrics.created.Add(1)
	NewJSONResponse().Message("Transaction Added Successfully").Transaction(tx).Write(w)
}

func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.fail(w, r, log.OpList, err, "")
		return
	}

	txs, err := s.txs.List(r.Context(), parseListRequest(p))
	if err != nil {
		s.fail(w, r, log.OpList, err, "User not found")
		return
	}

	s.metrics.listed.Add(1)
	NewJSONResponse().Transactions(txs).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.fail(w, r, log.OpDelete, err, "")
		return
	}

	err := s.txs.Delete(r.Context(), id, p.Get("userId"))
	if err != nil {
		notFound := "Transaction not found"
		if errors.Is(err, services.ErrUnknownOwner) {
			notFound = "User not found"
		}
		s.fail(w, r, log.OpDelete, err, notFound)
		return
	}

	s.metrics.deleted.Add(1)
	NewJSONResponse().Message("Transaction successfully deleted").Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		s.fail(w, r, log.OpUpdate, err, "")
		return
	}
	in, err := parseUpdateInput(p, s.location)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err, "")
		return
	}

	tx, err := s.txs.Update(r.Context(), id, in)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err, "Transaction not found")
		return
	}

	s.metrics.updated.Add(1)
	NewJSONResponse().Message("Transaction Updated Successfully").Transaction(tx).Write(w)
}

// fail logs err at a level matching its status and writes the failure envelope.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error, notFound string) {
	s.metrics.failed.Add(1)
	resp := ErrorFrom(err, notFound)

	logger := log.FromContext(r.Context())
	if StatusFor(err) >= http.StatusInternalServerError {
		log.NewStructuredLogger(logger).
			LogError(r.Context(), "Transaction request failed", err, log.ComponentHTTP, op, nil)
	} else {
		logger.InfoContext(r.Context(), "Transaction request rejected",
			log.NewFields().WithError(err).WithOperation(op).ToSlice()...)
	}
	resp.Write(w)
}
