// Package http exposes the JSON API: transactions, categories, budgets,
// alerts and the month summary.
package http

import (
	"context"
	"net/http"
	"sync"

	"finanzas/internal/middleware/ratelimit"
	"finanzas/internal/middleware/security"
	"finanzas/internal/middleware/trace"
	"finanzas/internal/services"
)

type Server struct {
	http.Server

	ledger     *services.LedgerService
	categories *services.CategoryService
	budgets    *services.BudgetService
	alerts     *services.AlertService

	ready        func(context.Context) error
	rateLimiter  *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run
// http.Server. The ready func backs the /readyz probe and may be nil.
func NewServer(
	addr string,
	ledger *services.LedgerService,
	categories *services.CategoryService,
	budgets *services.BudgetService,
	alerts *services.AlertService,
	ready func(context.Context) error,
) *Server {
	s := &Server{
		ledger:      ledger,
		categories:  categories,
		budgets:     budgets,
		alerts:      alerts,
		ready:       ready,
		rateLimiter: ratelimit.NewLimiter(ratelimit.DefaultConfig()),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /transactions", s.handleListTransactions)
	mux.HandleFunc("GET /transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("POST /categories", s.handleCreateCategory)
	mux.HandleFunc("GET /categories", s.handleListCategories)
	mux.HandleFunc("DELETE /categories/{id}", s.handleDeleteCategory)

	mux.HandleFunc("PUT /budgets", s.handleSetBudget)
	mux.HandleFunc("GET /budgets", s.handleListBudgets)
	mux.HandleFunc("GET /budgets/status", s.handleBudgetStatuses)

	mux.HandleFunc("GET /alerts", s.handleListAlerts)
	mux.HandleFunc("POST /recompute", s.handleRecompute)
	mux.HandleFunc("GET /summary", s.handleSummary)

	extractIP := security.NewClientIPExtractor().ExtractClientIP
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(extractIP)

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(extractIP, nil)(handler)
	handler = headers.Middleware(handler)
	handler = tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:    addr,
		Handler: handler,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
