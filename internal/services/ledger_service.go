package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finanzas/internal/amqp"
	"finanzas/internal/cache"
	"finanzas/internal/core"
	"finanzas/internal/rules"
	"finanzas/internal/storage"
)

const (
	summaryCacheSize = 64
	summaryCacheTTL  = 5 * time.Minute
)

// LedgerService orchestrates transaction writes: persist to SQLite,
// run the alert rules on the affected month and publish a recompute
// event for the worker.
type LedgerService struct {
	storage    *storage.SQLiteRepository
	engine     *rules.Engine
	amqpClient *amqp.Client

	summaries *cache.LRUCache[core.MonthSummary]
}

func NewLedgerService(storage *storage.SQLiteRepository, engine *rules.Engine, amqpClient *amqp.Client) *LedgerService {
	return &LedgerService{
		storage:    storage,
		engine:     engine,
		amqpClient: amqpClient,
		summaries:  cache.NewLRUCache[core.MonthSummary](summaryCacheSize, summaryCacheTTL),
	}
}

// SummaryCache exposes the month-summary cache so it can be registered
// with the cleanup manager.
func (s *LedgerService) SummaryCache() *cache.LRUCache[core.MonthSummary] {
	return s.summaries
}

// CreateTransaction validates and saves a transaction, then evaluates
// the alert rules for its month. Alert evaluation is best-effort: the
// transaction stays committed even when a rule check fails, and partial
// failures are logged rather than returned to the caller.
func (s *LedgerService) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, []core.Alert, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, nil, err
	}

	if tx.CategoryID != nil {
		if _, err := s.storage.GetCategory(ctx, *tx.CategoryID); err != nil {
			return core.Transaction{}, nil, fmt.Errorf("category %d: %w", *tx.CategoryID, err)
		}
	}

	saved, err := s.storage.InsertTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, nil, fmt.Errorf("save transaction: %w", err)
	}

	s.summaries.Delete(core.MonthKey(saved.Date))

	alerts, err := s.engine.EvaluateAfterTransaction(ctx, saved)
	if err != nil {
		slog.ErrorContext(ctx, "Alert evaluation incomplete",
			"transaction_id", saved.ID, "month", core.MonthKey(saved.Date), "error", err)
		// Don't fail the request - the transaction is saved
	}

	s.publishRecompute(ctx, core.MonthKey(saved.Date))

	return saved, alerts, nil
}

// GetTransaction returns one transaction by ID.
func (s *LedgerService) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	return s.storage.GetTransaction(ctx, id)
}

// ListTransactions returns the full ledger, newest first. A non-empty
// month restricts the listing to that month.
func (s *LedgerService) ListTransactions(ctx context.Context, month string) ([]core.Transaction, error) {
	if month == "" {
		return s.storage.ListTransactions(ctx)
	}
	if !core.ValidMonth(month) {
		return nil, fmt.Errorf("month %q: %w", month, core.ErrInvalidDate)
	}
	return s.storage.ListTransactionsByMonth(ctx, month)
}

// DeleteTransaction removes a transaction and triggers a recompute of
// its month so stale alert state gets corrected by the worker.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id int64) error {
	tx, err := s.storage.GetTransaction(ctx, id)
	if err != nil {
		return err
	}

	if err := s.storage.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	month := core.MonthKey(tx.Date)
	s.summaries.Delete(month)
	s.publishRecompute(ctx, month)

	return nil
}

// MonthSummary aggregates one month of transactions. Results are
// cached; any write to the month invalidates its entry.
func (s *LedgerService) MonthSummary(ctx context.Context, month string) (core.MonthSummary, error) {
	if !core.ValidMonth(month) {
		return core.MonthSummary{}, fmt.Errorf("month %q: %w", month, core.ErrInvalidDate)
	}

	if cached, ok := s.summaries.Get(month); ok {
		return cached, nil
	}

	txs, err := s.storage.ListTransactionsByMonth(ctx, month)
	if err != nil {
		return core.MonthSummary{}, fmt.Errorf("list month %s: %w", month, err)
	}

	summary := core.Summarize(month, txs)
	s.summaries.Set(month, summary)
	return summary, nil
}

func (s *LedgerService) publishRecompute(ctx context.Context, month string) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishRecompute(ctx, month); err != nil {
		slog.ErrorContext(ctx, "Failed to publish recompute message",
			"month", month, "error", err)
		// Don't fail the request - the next periodic recompute covers it
	}
}

// Close closes both storage and AMQP connections.
func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}
