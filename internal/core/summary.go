package core

type repeatKey struct {
	categoryID int64
	cents      int64
}

// MonthSummary holds the per-month aggregates the alert rules read:
// expense totals per category, income/expense totals and repeated-charge
// counts. It is derived by a single pass over the transaction set and
// never mutated afterwards.
type MonthSummary struct {
	Month           string
	SpendByCategory map[int64]Money
	TotalIncome     Money
	TotalExpense    Money

	repeats map[repeatKey]int
}

// Summarize computes the aggregates for one month. Transactions outside
// the month are skipped, so callers may pass the full ledger or a
// month-scoped slice interchangeably.
func Summarize(month string, txs []Transaction) MonthSummary {
	s := MonthSummary{
		Month:           month,
		SpendByCategory: make(map[int64]Money),
		repeats:         make(map[repeatKey]int),
	}
	for _, t := range txs {
		if MonthKey(t.Date) != month {
			continue
		}
		switch t.Kind {
		case Income:
			s.TotalIncome.Cents += t.Amount.Cents
		case Expense:
			s.TotalExpense.Cents += t.Amount.Cents
			if t.CategoryID != nil {
				cur := s.SpendByCategory[*t.CategoryID]
				cur.Cents += t.Amount.Cents
				s.SpendByCategory[*t.CategoryID] = cur
				s.repeats[repeatKey{*t.CategoryID, t.Amount.Cents}]++
			}
		}
	}
	return s
}

// Balance is the month's income minus expenses; negative when the ledger
// ran a deficit.
func (s MonthSummary) Balance() Money {
	return Money{Cents: s.TotalIncome.Cents - s.TotalExpense.Cents}
}

// RepeatCount returns how many expense transactions in the month share
// the given category and exact amount.
func (s MonthSummary) RepeatCount(categoryID int64, amount Money) int {
	return s.repeats[repeatKey{categoryID, amount.Cents}]
}

// RepeatedCharges returns the most-repeated charge amount for a category
// and its occurrence count. Count is zero when the category had no
// expenses in the month.
func (s MonthSummary) RepeatedCharges(categoryID int64) (amount Money, count int) {
	for k, n := range s.repeats {
		if k.categoryID != categoryID {
			continue
		}
		if n > count || (n == count && k.cents < amount.Cents) {
			amount = Money{Cents: k.cents}
			count = n
		}
	}
	return amount, count
}
