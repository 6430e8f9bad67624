package core

import (
	"errors"
	"testing"
)

func int64p(v int64) *int64 { return &v }

func TestValidDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2025-01-31", true},
		{"2025-12-01", true},
		{"2025-02-30", false},
		{"2025-13-01", false},
		{"2025-1-1", false},
		{"01-02-2025", false},
		{"", false},
		{"2025-01-01T00:00:00", false},
	}
	for _, tc := range cases {
		if got := ValidDate(tc.in); got != tc.ok {
			t.Errorf("ValidDate(%q) = %v, want %v", tc.in, got, tc.ok)
		}
	}
}

func TestMonthKey(t *testing.T) {
	if got := MonthKey("2025-03-15"); got != "2025-03" {
		t.Fatalf("MonthKey = %q, want 2025-03", got)
	}
}

func TestValidMonth(t *testing.T) {
	if !ValidMonth("2025-03") {
		t.Fatalf("expected 2025-03 to be valid")
	}
	for _, bad := range []string{"2025-3", "2025-13", "2025-03-01", ""} {
		if ValidMonth(bad) {
			t.Errorf("expected %q to be invalid", bad)
		}
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Kind:        Expense,
		Amount:      Money{Cents: 5000},
		Date:        "2025-03-15",
		Description: "supermercado",
		CategoryID:  int64p(1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	// Income without a category is allowed.
	income := Transaction{Kind: Income, Amount: Money{Cents: 100}, Date: "2025-03-01", Description: "salario"}
	if err := income.Validate(); err != nil {
		t.Fatalf("income without category should be valid, got %v", err)
	}

	cases := []struct {
		name string
		tx   Transaction
		want error
	}{
		{"bad kind", Transaction{Kind: "transfer", Amount: Money{Cents: 1}, Date: "2025-03-01", Description: "x"}, ErrInvalidKind},
		{"zero amount", Transaction{Kind: Income, Amount: Money{}, Date: "2025-03-01", Description: "x"}, ErrInvalidAmount},
		{"bad date", Transaction{Kind: Income, Amount: Money{Cents: 1}, Date: "15/03/2025", Description: "x"}, ErrInvalidDate},
		{"empty description", Transaction{Kind: Income, Amount: Money{Cents: 1}, Date: "2025-03-01", Description: "  "}, ErrEmptyDescription},
		{"expense without category", Transaction{Kind: Expense, Amount: Money{Cents: 1}, Date: "2025-03-01", Description: "x"}, ErrMissingCategory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.tx.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCategoryValidate(t *testing.T) {
	if err := (Category{Name: "Transporte"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Category{Name: "   "}).Validate(); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestBudgetValidate(t *testing.T) {
	if err := (Budget{CategoryID: 1, Ceiling: Money{Cents: 100000}}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Budget{CategoryID: 0, Ceiling: Money{Cents: 1}}).Validate(); err == nil {
		t.Fatalf("expected error for missing category")
	}
	if err := (Budget{CategoryID: 1, Ceiling: Money{}}).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
