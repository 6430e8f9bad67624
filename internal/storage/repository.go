// Package storage persists categories, transactions, budgets and alerts
// in SQLite. The schema is managed by embedded migrations; the alert
// table carries partial unique indexes so the insert-or-ignore path can
// enforce the dedup invariant even under concurrent evaluations.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"finanzas/internal/core"

	_ "modernc.org/sqlite"
)

// ErrCategoryInUse is returned when deleting a category that is still
// referenced by transactions or budgets.
var ErrCategoryInUse = errors.New("category is referenced and cannot be deleted")

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping verifies the database connection is still usable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ---- categories ----

// CreateCategory inserts a category or returns the existing row with the
// same name. Creation is idempotent by name.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, name string) (core.Category, error) {
	var existing core.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM categories WHERE name = ?`, name).
		Scan(&existing.ID, &existing.Name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("lookup category: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `INSERT INTO categories (name) VALUES (?)`, name)
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Category{}, fmt.Errorf("category id: %w", err)
	}

	slog.InfoContext(ctx, "Category created", "id", id, "name", name)
	return core.Category{ID: id, Name: name}, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCategory removes a category only when no transaction or budget
// references it.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id int64) error {
	var refs int64
	err := r.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM transactions WHERE category_id = ?)
		     + (SELECT COUNT(*) FROM budgets WHERE category_id = ?)`, id, id).
		Scan(&refs)
	if err != nil {
		return fmt.Errorf("count category references: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("category %d: %w", id, ErrCategoryInUse)
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}

	slog.InfoContext(ctx, "Category deleted", "id", id)
	return nil
}

// ---- transactions ----

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (kind, amount_cents, date, description, category_id)
		VALUES (?, ?, ?, ?, ?)`,
		string(t.Kind), t.Amount.Cents, t.Date, t.Description, nullableID(t.CategoryID))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction id: %w", err)
	}
	t.ID = id

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"kind", string(t.Kind),
		"amount_cents", t.Amount.Cents,
		"date", t.Date)
	return t, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT t.id, t.kind, t.amount_cents, t.date, t.description, t.category_id, COALESCE(c.name, '')
		FROM transactions t
		LEFT JOIN categories c ON t.category_id = c.id
		WHERE t.id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// ListTransactions returns the full ledger joined with category names,
// newest first.
func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT t.id, t.kind, t.amount_cents, t.date, t.description, t.category_id, COALESCE(c.name, '')
		FROM transactions t
		LEFT JOIN categories c ON t.category_id = c.id
		ORDER BY t.date DESC, t.id DESC`)
}

// ListTransactionsByMonth scopes the ledger to one YYYY-MM month. The
// month match is a textual prefix of the date column.
func (r *SQLiteRepository) ListTransactionsByMonth(ctx context.Context, month string) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT t.id, t.kind, t.amount_cents, t.date, t.description, t.category_id, COALESCE(c.name, '')
		FROM transactions t
		LEFT JOIN categories c ON t.category_id = c.id
		WHERE substr(t.date, 1, 7) = ?
		ORDER BY t.date DESC, t.id DESC`, month)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id)
	return nil
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t     core.Transaction
		kind  string
		catID sql.NullInt64
	)
	if err := row.Scan(&t.ID, &kind, &t.Amount.Cents, &t.Date, &t.Description, &catID, &t.CategoryName); err != nil {
		return core.Transaction{}, err
	}
	t.Kind = core.TransactionKind(kind)
	if catID.Valid {
		t.CategoryID = &catID.Int64
	}
	return t, nil
}

// ---- budgets ----

// UpsertBudget creates or replaces the single budget row for a category.
func (r *SQLiteRepository) UpsertBudget(ctx context.Context, categoryID int64, ceiling core.Money) (core.Budget, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (category_id, ceiling_cents) VALUES (?, ?)
		ON CONFLICT(category_id) DO UPDATE SET ceiling_cents = excluded.ceiling_cents`,
		categoryID, ceiling.Cents)
	if err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", err)
	}

	b, err := r.GetBudget(ctx, categoryID)
	if err != nil {
		return core.Budget{}, err
	}

	slog.InfoContext(ctx, "Budget saved",
		"category_id", categoryID,
		"ceiling_cents", ceiling.Cents)
	return b, nil
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, categoryID int64) (core.Budget, error) {
	var b core.Budget
	err := r.db.QueryRowContext(ctx,
		`SELECT id, category_id, ceiling_cents FROM budgets WHERE category_id = ?`, categoryID).
		Scan(&b.ID, &b.CategoryID, &b.Ceiling.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, fmt.Errorf("budget for category %d: %w", categoryID, core.ErrNotFound)
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, category_id, ceiling_cents FROM budgets ORDER BY category_id`)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		if err := rows.Scan(&b.ID, &b.CategoryID, &b.Ceiling.Cents); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ---- alerts ----

func (r *SQLiteRepository) AlertExists(ctx context.Context, kind core.AlertKind, month string, categoryID *int64) (bool, error) {
	var (
		n   int64
		err error
	)
	if categoryID == nil {
		err = r.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM alerts
			WHERE kind = ? AND month = ? AND category_id IS NULL`,
			string(kind), month).Scan(&n)
	} else {
		err = r.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM alerts
			WHERE kind = ? AND month = ? AND category_id = ?`,
			string(kind), month, *categoryID).Scan(&n)
	}
	if err != nil {
		return false, fmt.Errorf("alert existence check: %w", err)
	}
	return n > 0, nil
}

// InsertAlert writes an alert with INSERT OR IGNORE so the partial
// unique indexes absorb races on the dedup triple. created is false when
// the row already existed.
func (r *SQLiteRepository) InsertAlert(ctx context.Context, a core.Alert) (core.Alert, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO alerts (category_id, kind, message, date, month)
		VALUES (?, ?, ?, ?, ?)`,
		nullableID(a.CategoryID), string(a.Kind), a.Message, a.Date, a.Month)
	if err != nil {
		return core.Alert{}, false, fmt.Errorf("insert alert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return core.Alert{}, false, fmt.Errorf("alert rows affected: %w", err)
	}
	if n == 0 {
		return core.Alert{}, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Alert{}, false, fmt.Errorf("alert id: %w", err)
	}
	a.ID = id
	return a, true, nil
}

// ListAlerts returns alerts newest first, optionally scoped to a month.
func (r *SQLiteRepository) ListAlerts(ctx context.Context, month string) ([]core.Alert, error) {
	query := `
		SELECT id, category_id, kind, message, date, month
		FROM alerts
		ORDER BY date DESC, id DESC`
	args := []any{}
	if month != "" {
		query = `
			SELECT id, category_id, kind, message, date, month
			FROM alerts
			WHERE month = ?
			ORDER BY date DESC, id DESC`
		args = append(args, month)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []core.Alert
	for rows.Next() {
		var (
			a     core.Alert
			kind  string
			catID sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &catID, &kind, &a.Message, &a.Date, &a.Month); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Kind = core.AlertKind(kind)
		if catID.Valid {
			a.CategoryID = &catID.Int64
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
