package rules

import (
	"context"

	"finanzas/internal/core"
)

// Store is the persistence port the engine evaluates against. The SQLite
// repository implements it; tests provide an in-memory fake.
type Store interface {
	// ListTransactionsByMonth returns every transaction whose date falls
	// in the given YYYY-MM month.
	ListTransactionsByMonth(ctx context.Context, month string) ([]core.Transaction, error)

	// GetBudget returns the budget for a category, or core.ErrNotFound
	// when none is defined.
	GetBudget(ctx context.Context, categoryID int64) (core.Budget, error)

	ListBudgets(ctx context.Context) ([]core.Budget, error)

	// GetCategory returns a category by id, or core.ErrNotFound.
	GetCategory(ctx context.Context, id int64) (core.Category, error)

	// AlertExists reports whether an alert with the same dedup triple
	// (kind, month, category) is already recorded. A nil categoryID
	// addresses the whole-ledger alerts.
	AlertExists(ctx context.Context, kind core.AlertKind, month string, categoryID *int64) (bool, error)

	// InsertAlert records an alert with insert-or-ignore semantics on the
	// dedup triple. created is false when a concurrent evaluation won the
	// race and the row already existed.
	InsertAlert(ctx context.Context, a core.Alert) (alert core.Alert, created bool, err error)
}
