package services

import (
	"context"
	"fmt"

	"finanzas/internal/core"
	"finanzas/internal/rules"
	"finanzas/internal/storage"
)

// AlertService reads raised alerts and runs on-demand recomputes.
type AlertService struct {
	storage *storage.SQLiteRepository
	engine  *rules.Engine
}

func NewAlertService(storage *storage.SQLiteRepository, engine *rules.Engine) *AlertService {
	return &AlertService{storage: storage, engine: engine}
}

// ListAlerts returns raised alerts, newest first. A non-empty month
// restricts the listing to that month.
func (s *AlertService) ListAlerts(ctx context.Context, month string) ([]core.Alert, error) {
	if month != "" && !core.ValidMonth(month) {
		return nil, fmt.Errorf("month %q: %w", month, core.ErrInvalidDate)
	}
	return s.storage.ListAlerts(ctx, month)
}

// Recompute re-evaluates every alert rule for a month. The operation
// is idempotent: alerts already raised for the month are kept, missing
// ones are inserted, and nothing is duplicated.
func (s *AlertService) Recompute(ctx context.Context, month string) ([]core.Alert, error) {
	return s.engine.RecomputeMonth(ctx, month)
}
