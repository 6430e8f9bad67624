// Package rules implements the budget-alert evaluation engine.
//
// The engine derives monthly aggregates from the transaction set and
// materializes the alerts that should exist for the month. Every alert
// kind fires at most once per (kind, month, category) triple, so the
// engine is idempotent: re-running it over unchanged data creates
// nothing new.
package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"

	"finanzas/internal/core"
)

// Policy constants fixed by product decision, not configuration.
const (
	// nearPercentage is the inclusive spend threshold, as a percentage of
	// the ceiling, at which a budget_near alert fires.
	nearPercentage = 90

	// repeatAlertCount is how many identical charges (same category, same
	// amount, same month) trigger a repetitive_expense alert.
	repeatAlertCount = 3
)

// BudgetState classifies a category's monthly spend against its ceiling.
type BudgetState string

const (
	StateOK       BudgetState = "ok"
	StateNear     BudgetState = "near"
	StateExceeded BudgetState = "exceeded"
	StateNoBudget BudgetState = "no_budget"
)

// BudgetStatus is the spend-vs-ceiling view exposed to the presentation
// layer for one category in one month.
type BudgetStatus struct {
	CategoryID   int64
	CategoryName string
	Month        string
	Spent        core.Money
	Ceiling      core.Money
	Percentage   float64
	State        BudgetState
}

type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// evaluation carries the per-run state: the month being evaluated, the
// date to stamp on new alerts, the aggregates, created alerts and
// accumulated best-effort errors.
type evaluation struct {
	engine  *Engine
	month   string
	date    string
	summary core.MonthSummary
	created []core.Alert
	errs    []error
}

// EvaluateAfterTransaction runs the rule set for the month of a freshly
// committed transaction and returns the alerts it created. Rule insert
// failures are logged and evaluation continues; the joined error reports
// them without invalidating the returned alerts.
func (e *Engine) EvaluateAfterTransaction(ctx context.Context, tx core.Transaction) ([]core.Alert, error) {
	month := core.MonthKey(tx.Date)
	ev, err := e.newEvaluation(ctx, month, tx.Date)
	if err != nil {
		return nil, err
	}

	if tx.Kind == core.Expense && tx.CategoryID != nil {
		ev.checkCategoryBudget(ctx, *tx.CategoryID)
	}
	ev.checkGlobalBalance(ctx)
	if tx.Kind == core.Expense && tx.CategoryID != nil {
		if n := ev.summary.RepeatCount(*tx.CategoryID, tx.Amount); n >= repeatAlertCount {
			ev.ensureRepetitive(ctx, *tx.CategoryID, tx.Amount, n)
		}
	}

	return ev.created, errors.Join(ev.errs...)
}

// RecomputeMonth re-evaluates every rule for a whole month, e.g. for a
// dashboard refresh or a queued recompute event. Alerts are stamped with
// the first day of the month so their dedup bucket always matches.
func (e *Engine) RecomputeMonth(ctx context.Context, month string) ([]core.Alert, error) {
	if !core.ValidMonth(month) {
		return nil, fmt.Errorf("%w: month %q", core.ErrInvalidDate, month)
	}
	ev, err := e.newEvaluation(ctx, month, month+"-01")
	if err != nil {
		return nil, err
	}

	// Per-category rules walk the categories with spend this month in a
	// stable order for deterministic output.
	cats := slices.Sorted(maps.Keys(ev.summary.SpendByCategory))
	for _, catID := range cats {
		ev.checkCategoryBudget(ctx, catID)
	}
	ev.checkGlobalBalance(ctx)
	for _, catID := range cats {
		if amount, n := ev.summary.RepeatedCharges(catID); n >= repeatAlertCount {
			ev.ensureRepetitive(ctx, catID, amount, n)
		}
	}

	return ev.created, errors.Join(ev.errs...)
}

// BudgetStatus reports spend, ceiling, percentage and state for one
// category in one month.
func (e *Engine) BudgetStatus(ctx context.Context, categoryID int64, month string) (BudgetStatus, error) {
	if !core.ValidMonth(month) {
		return BudgetStatus{}, fmt.Errorf("%w: month %q", core.ErrInvalidDate, month)
	}
	cat, err := e.store.GetCategory(ctx, categoryID)
	if err != nil {
		return BudgetStatus{}, fmt.Errorf("get category %d: %w", categoryID, err)
	}

	txs, err := e.store.ListTransactionsByMonth(ctx, month)
	if err != nil {
		return BudgetStatus{}, fmt.Errorf("list transactions for %s: %w", month, err)
	}
	summary := core.Summarize(month, txs)

	status := BudgetStatus{
		CategoryID:   categoryID,
		CategoryName: cat.Name,
		Month:        month,
		Spent:        summary.SpendByCategory[categoryID],
	}

	budget, err := e.store.GetBudget(ctx, categoryID)
	if errors.Is(err, core.ErrNotFound) {
		status.State = StateNoBudget
		return status, nil
	}
	if err != nil {
		return BudgetStatus{}, fmt.Errorf("get budget for category %d: %w", categoryID, err)
	}

	status.Ceiling = budget.Ceiling
	status.Percentage = float64(status.Spent.Cents) / float64(budget.Ceiling.Cents) * 100
	status.State = classify(status.Spent, budget.Ceiling)
	return status, nil
}

// MonthStatuses returns the budget status of every category that either
// has a budget or spent something this month, ordered by category id.
// Categories with spend but no ceiling report the no_budget state.
func (e *Engine) MonthStatuses(ctx context.Context, month string) ([]BudgetStatus, error) {
	if !core.ValidMonth(month) {
		return nil, fmt.Errorf("%w: month %q", core.ErrInvalidDate, month)
	}
	budgets, err := e.store.ListBudgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	txs, err := e.store.ListTransactionsByMonth(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", month, err)
	}
	summary := core.Summarize(month, txs)

	budgetByCategory := make(map[int64]core.Budget, len(budgets))
	categoryIDs := make(map[int64]struct{}, len(budgets))
	for _, b := range budgets {
		budgetByCategory[b.CategoryID] = b
		categoryIDs[b.CategoryID] = struct{}{}
	}
	for catID := range summary.SpendByCategory {
		categoryIDs[catID] = struct{}{}
	}

	statuses := make([]BudgetStatus, 0, len(categoryIDs))
	for catID := range categoryIDs {
		spent := summary.SpendByCategory[catID]
		status := BudgetStatus{
			CategoryID:   catID,
			CategoryName: e.categoryName(ctx, catID),
			Month:        month,
			Spent:        spent,
		}
		if b, ok := budgetByCategory[catID]; ok {
			status.Ceiling = b.Ceiling
			status.Percentage = float64(spent.Cents) / float64(b.Ceiling.Cents) * 100
			status.State = classify(spent, b.Ceiling)
		} else {
			status.State = StateNoBudget
		}
		statuses = append(statuses, status)
	}
	slices.SortFunc(statuses, func(a, b BudgetStatus) int {
		return int(a.CategoryID - b.CategoryID)
	})
	return statuses, nil
}

func (e *Engine) newEvaluation(ctx context.Context, month, date string) (*evaluation, error) {
	txs, err := e.store.ListTransactionsByMonth(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", month, err)
	}
	return &evaluation{
		engine:  e,
		month:   month,
		date:    date,
		summary: core.Summarize(month, txs),
	}, nil
}

// checkCategoryBudget applies the per-category rule: without-budget,
// exceeded (strictly over the ceiling) or near (>= 90% inclusive), in
// that priority. The three outcomes are mutually exclusive.
func (ev *evaluation) checkCategoryBudget(ctx context.Context, categoryID int64) {
	spent := ev.summary.SpendByCategory[categoryID]
	name := ev.engine.categoryName(ctx, categoryID)

	budget, err := ev.engine.store.GetBudget(ctx, categoryID)
	if errors.Is(err, core.ErrNotFound) {
		msg := fmt.Sprintf("La categoría '%s' no tiene presupuesto definido.", name)
		ev.ensure(ctx, core.AlertCategoryWithoutBudget, &categoryID, msg)
		return
	}
	if err != nil {
		ev.fail(ctx, core.AlertCategoryWithoutBudget, fmt.Errorf("get budget for category %d: %w", categoryID, err))
		return
	}

	switch classify(spent, budget.Ceiling) {
	case StateExceeded:
		msg := fmt.Sprintf("La categoría '%s' ha excedido su presupuesto: %s de %s.",
			name, spent.String(), budget.Ceiling.String())
		ev.ensure(ctx, core.AlertBudgetExceeded, &categoryID, msg)
	case StateNear:
		pct := spent.Cents * 100 / budget.Ceiling.Cents
		msg := fmt.Sprintf("La categoría '%s' ha alcanzado el %d%% del presupuesto.", name, pct)
		ev.ensure(ctx, core.AlertBudgetNear, &categoryID, msg)
	}
}

// checkGlobalBalance applies the two whole-ledger rules. They may both
// fire in the same month; they signal different things.
func (ev *evaluation) checkGlobalBalance(ctx context.Context) {
	if ev.summary.TotalExpense.Cents > ev.summary.TotalIncome.Cents {
		msg := fmt.Sprintf("Los gastos del mes (%s) superan los ingresos (%s).",
			ev.summary.TotalExpense.String(), ev.summary.TotalIncome.String())
		ev.ensure(ctx, core.AlertExpensesExceedIncome, nil, msg)
	}
	if balance := ev.summary.Balance(); balance.Cents < 0 {
		msg := fmt.Sprintf("El saldo del mes es negativo: %s.", balance.String())
		ev.ensure(ctx, core.AlertNegativeBalance, nil, msg)
	}
}

func (ev *evaluation) ensureRepetitive(ctx context.Context, categoryID int64, amount core.Money, count int) {
	name := ev.engine.categoryName(ctx, categoryID)
	msg := fmt.Sprintf("Se registraron %d cargos de %s en la categoría '%s' este mes.",
		count, amount.String(), name)
	ev.ensure(ctx, core.AlertRepetitiveExpense, &categoryID, msg)
}

// ensure materializes one alert if its dedup triple is still absent.
// Store failures are collected, not fatal: alerts are independent facts.
func (ev *evaluation) ensure(ctx context.Context, kind core.AlertKind, categoryID *int64, message string) {
	exists, err := ev.engine.store.AlertExists(ctx, kind, ev.month, categoryID)
	if err != nil {
		ev.fail(ctx, kind, fmt.Errorf("alert existence check: %w", err))
		return
	}
	if exists {
		return
	}

	alert, created, err := ev.engine.store.InsertAlert(ctx, core.Alert{
		CategoryID: categoryID,
		Kind:       kind,
		Message:    message,
		Date:       ev.date,
		Month:      ev.month,
	})
	if err != nil {
		ev.fail(ctx, kind, fmt.Errorf("insert alert: %w", err))
		return
	}
	if !created {
		// Lost the race against a concurrent evaluation; the alert exists.
		return
	}

	slog.InfoContext(ctx, "Alert created",
		"kind", string(kind),
		"month", ev.month,
		"category_id", categoryLabel(categoryID))
	ev.created = append(ev.created, alert)
}

func (ev *evaluation) fail(ctx context.Context, kind core.AlertKind, err error) {
	slog.ErrorContext(ctx, "Alert rule failed",
		"kind", string(kind),
		"month", ev.month,
		"error", err)
	ev.errs = append(ev.errs, fmt.Errorf("%s: %w", kind, err))
}

func (e *Engine) categoryName(ctx context.Context, id int64) string {
	cat, err := e.store.GetCategory(ctx, id)
	if err != nil {
		return "#" + strconv.FormatInt(id, 10)
	}
	return cat.Name
}

// classify orders exceeded over near: exceeded requires spend strictly
// greater than the ceiling, near is reached at 90% inclusive.
func classify(spent, ceiling core.Money) BudgetState {
	switch {
	case spent.Cents > ceiling.Cents:
		return StateExceeded
	case spent.Cents*100 >= ceiling.Cents*nearPercentage:
		return StateNear
	default:
		return StateOK
	}
}

func categoryLabel(id *int64) string {
	if id == nil {
		return "global"
	}
	return strconv.FormatInt(*id, 10)
}
