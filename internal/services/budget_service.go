package services

import (
	"context"
	"fmt"

	"finanzas/internal/core"
	"finanzas/internal/rules"
	"finanzas/internal/storage"
)

// BudgetService manages monthly budget ceilings and exposes the
// spend-versus-ceiling view computed by the rules engine.
type BudgetService struct {
	storage *storage.SQLiteRepository
	engine  *rules.Engine
}

func NewBudgetService(storage *storage.SQLiteRepository, engine *rules.Engine) *BudgetService {
	return &BudgetService{storage: storage, engine: engine}
}

// SetBudget creates or replaces the ceiling for a category. There is
// one budget row per category; the ceiling applies to every month.
func (s *BudgetService) SetBudget(ctx context.Context, categoryID int64, ceiling core.Money) (core.Budget, error) {
	b := core.Budget{CategoryID: categoryID, Ceiling: ceiling}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	if _, err := s.storage.GetCategory(ctx, categoryID); err != nil {
		return core.Budget{}, fmt.Errorf("category %d: %w", categoryID, err)
	}

	return s.storage.UpsertBudget(ctx, categoryID, ceiling)
}

func (s *BudgetService) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	return s.storage.ListBudgets(ctx)
}

// CategoryStatus reports one category's spend against its ceiling for
// a month.
func (s *BudgetService) CategoryStatus(ctx context.Context, categoryID int64, month string) (rules.BudgetStatus, error) {
	return s.engine.BudgetStatus(ctx, categoryID, month)
}

// MonthStatuses reports every budgeted or spending category for a
// month, ordered by category ID.
func (s *BudgetService) MonthStatuses(ctx context.Context, month string) ([]rules.BudgetStatus, error) {
	return s.engine.MonthStatuses(ctx, month)
}
