package core

import "testing"

func TestSummarize(t *testing.T) {
	txs := []Transaction{
		{Kind: Income, Amount: Money{Cents: 50000}, Date: "2025-03-01", Description: "salario"},
		{Kind: Expense, Amount: Money{Cents: 20000}, Date: "2025-03-05", Description: "supermercado", CategoryID: int64p(1)},
		{Kind: Expense, Amount: Money{Cents: 5000}, Date: "2025-03-10", Description: "bus", CategoryID: int64p(2)},
		{Kind: Expense, Amount: Money{Cents: 5000}, Date: "2025-03-17", Description: "bus", CategoryID: int64p(2)},
		// Different month, must be ignored.
		{Kind: Expense, Amount: Money{Cents: 99900}, Date: "2025-04-01", Description: "alquiler", CategoryID: int64p(1)},
		// Expense without category counts in the total only.
		{Kind: Expense, Amount: Money{Cents: 1000}, Date: "2025-03-20", Description: "varios"},
	}

	s := Summarize("2025-03", txs)

	if s.TotalIncome.Cents != 50000 {
		t.Errorf("TotalIncome = %d, want 50000", s.TotalIncome.Cents)
	}
	if s.TotalExpense.Cents != 31000 {
		t.Errorf("TotalExpense = %d, want 31000", s.TotalExpense.Cents)
	}
	if got := s.Balance().Cents; got != 19000 {
		t.Errorf("Balance = %d, want 19000", got)
	}
	if got := s.SpendByCategory[1].Cents; got != 20000 {
		t.Errorf("SpendByCategory[1] = %d, want 20000", got)
	}
	if got := s.SpendByCategory[2].Cents; got != 10000 {
		t.Errorf("SpendByCategory[2] = %d, want 10000", got)
	}
	if _, ok := s.SpendByCategory[3]; ok {
		t.Errorf("category without activity must be absent from SpendByCategory")
	}
}

func TestSummarizeRepeatCount(t *testing.T) {
	txs := []Transaction{
		{Kind: Expense, Amount: Money{Cents: 5000}, Date: "2025-03-01", Description: "suscripción", CategoryID: int64p(7)},
		{Kind: Expense, Amount: Money{Cents: 5000}, Date: "2025-03-08", Description: "suscripción", CategoryID: int64p(7)},
		{Kind: Expense, Amount: Money{Cents: 5000}, Date: "2025-03-15", Description: "suscripción", CategoryID: int64p(7)},
		{Kind: Expense, Amount: Money{Cents: 5001}, Date: "2025-03-15", Description: "casi igual", CategoryID: int64p(7)},
		{Kind: Expense, Amount: Money{Cents: 5000}, Date: "2025-03-15", Description: "otra categoría", CategoryID: int64p(8)},
	}

	s := Summarize("2025-03", txs)

	if got := s.RepeatCount(7, Money{Cents: 5000}); got != 3 {
		t.Errorf("RepeatCount(7, 5000) = %d, want 3", got)
	}
	if got := s.RepeatCount(7, Money{Cents: 5001}); got != 1 {
		t.Errorf("RepeatCount(7, 5001) = %d, want 1", got)
	}
	if got := s.RepeatCount(9, Money{Cents: 5000}); got != 0 {
		t.Errorf("RepeatCount(9, 5000) = %d, want 0", got)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize("2025-03", nil)
	if s.TotalIncome.Cents != 0 || s.TotalExpense.Cents != 0 || len(s.SpendByCategory) != 0 {
		t.Fatalf("empty ledger must produce zero aggregates: %+v", s)
	}
	if s.Balance().Cents != 0 {
		t.Fatalf("empty balance must be zero")
	}
}
