package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionKind = "income"
	Expense TransactionKind = "expense"
)

type (
	TransactionKind string

	// AlertKind tags one of the six alert rules. Alerts are deduplicated
	// per (kind, month, category) triple.
	AlertKind string

	Category struct {
		ID   int64
		Name string
	}

	Money struct {
		Cents int64
	}

	// Transaction is an immutable ledger entry. CategoryID is mandatory
	// for expenses and optional for income. Date is a YYYY-MM-DD string;
	// CategoryName is filled by list queries for display only.
	Transaction struct {
		ID           int64
		Kind         TransactionKind
		Amount       Money
		Date         string
		Description  string
		CategoryID   *int64
		CategoryName string
	}

	// Budget is the monthly ceiling for one category. At most one budget
	// exists per category; saving again updates the existing row.
	Budget struct {
		ID         int64
		CategoryID int64
		Ceiling    Money
	}

	// Alert is an append-only fact. A nil CategoryID marks a whole-ledger
	// alert. Month is the YYYY-MM bucket derived from Date.
	Alert struct {
		ID         int64
		CategoryID *int64
		Kind       AlertKind
		Message    string
		Date       string
		Month      string
	}
)

const (
	AlertCategoryWithoutBudget AlertKind = "category_without_budget"
	AlertBudgetNear            AlertKind = "budget_near"
	AlertBudgetExceeded        AlertKind = "budget_exceeded"
	AlertExpensesExceedIncome  AlertKind = "expenses_exceed_income"
	AlertNegativeBalance       AlertKind = "negative_balance"
	AlertRepetitiveExpense     AlertKind = "repetitive_expense"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidKind      = errors.New("invalid transaction kind")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyName        = errors.New("empty category name")
	ErrMissingCategory  = errors.New("expense requires a category")

	// ErrNotFound is returned by stores when a referenced entity does
	// not exist.
	ErrNotFound = errors.New("not found")
)

// ValidDate reports whether s is a real calendar day in YYYY-MM-DD form.
func ValidDate(s string) bool {
	if len(s) != 10 {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// MonthKey returns the YYYY-MM bucket for a validated YYYY-MM-DD date.
// It is a textual truncation, not calendar arithmetic.
func MonthKey(date string) string {
	if len(date) < 7 {
		return date
	}
	return date[:7]
}

// ValidMonth reports whether s is a YYYY-MM month key.
func ValidMonth(s string) bool {
	if len(s) != 7 {
		return false
	}
	_, err := time.Parse("2006-01", s)
	return err == nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.Kind != Income && t.Kind != Expense {
		return ErrInvalidKind
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !ValidDate(t.Date) {
		return ErrInvalidDate
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	// Category is optional for income only.
	if t.Kind == Expense && t.CategoryID == nil {
		return ErrMissingCategory
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("category name too long (max 100 characters)")
	}
	return nil
}

func (b Budget) Validate() error {
	if b.CategoryID <= 0 {
		return errors.New("budget requires a category")
	}
	return b.Ceiling.Validate()
}
