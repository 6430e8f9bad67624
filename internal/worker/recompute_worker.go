// Package worker runs alert recomputation outside the request path:
// queued month-recompute events and a periodic sweep over recent months.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finanzas/internal/amqp"
	"finanzas/internal/core"
)

// Recomputer re-evaluates the alert rules for one month. Satisfied by
// the rules engine.
type Recomputer interface {
	RecomputeMonth(ctx context.Context, month string) ([]core.Alert, error)
}

// RecomputeWorker drives the recomputer from queue messages and from a
// periodic sweep. Recomputation is idempotent, so redelivered messages
// and overlapping sweeps are harmless.
type RecomputeWorker struct {
	engine Recomputer
	months int
}

// NewRecomputeWorker sweeps the given number of recent months,
// including the current one.
func NewRecomputeWorker(engine Recomputer, months int) *RecomputeWorker {
	if months < 1 {
		months = 1
	}
	return &RecomputeWorker{engine: engine, months: months}
}

// HandleRecomputeMessage processes one queued recompute event.
// Returning an error requeues the message.
func (w *RecomputeWorker) HandleRecomputeMessage(ctx context.Context, msg *amqp.MonthRecomputeMessage) error {
	created, err := w.engine.RecomputeMonth(ctx, msg.Month)
	if err != nil {
		if errors.Is(err, core.ErrInvalidDate) {
			// A malformed month never becomes valid; drop instead of requeue.
			slog.WarnContext(ctx, "Discarding recompute event with invalid month",
				"month", msg.Month, "error", err)
			return nil
		}
		return fmt.Errorf("recompute month %s: %w", msg.Month, err)
	}

	slog.InfoContext(ctx, "Recompute event processed",
		"month", msg.Month, "alerts_created", len(created))
	return nil
}

// SweepRecentMonths recomputes the last few months, walking backwards
// from now. Failures are collected so one bad month does not stop the
// sweep.
func (w *RecomputeWorker) SweepRecentMonths(ctx context.Context, now time.Time) error {
	var errs []error
	for i := 0; i < w.months; i++ {
		month := now.AddDate(0, -i, 0).Format("2006-01")
		created, err := w.engine.RecomputeMonth(ctx, month)
		if err != nil {
			errs = append(errs, fmt.Errorf("month %s: %w", month, err))
			continue
		}
		if len(created) > 0 {
			slog.InfoContext(ctx, "Sweep created alerts",
				"month", month, "alerts_created", len(created))
		}
	}
	return errors.Join(errs...)
}

// Run blocks, alternating between queue consumption handled elsewhere
// and the periodic sweep, until the context is cancelled.
func (w *RecomputeWorker) Run(ctx context.Context, interval time.Duration) error {
	// Initial sweep so a freshly started worker catches up immediately.
	if err := w.SweepRecentMonths(ctx, time.Now()); err != nil {
		slog.ErrorContext(ctx, "Initial sweep failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.SweepRecentMonths(ctx, time.Now()); err != nil {
				slog.ErrorContext(ctx, "Periodic sweep failed", "error", err)
			}
		}
	}
}
