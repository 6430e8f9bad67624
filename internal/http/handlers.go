package http

import (
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/rules"
)

func sortedKeys(m map[int64]core.Money) []int64 {
	return slices.Sorted(maps.Keys(m))
}

type transactionJSON struct {
	ID           int64  `json:"id"`
	Kind         string `json:"kind"`
	Amount       string `json:"amount"`
	Date         string `json:"date"`
	Description  string `json:"description"`
	CategoryID   *int64 `json:"category_id,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
}

type alertJSON struct {
	ID         int64  `json:"id"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Date       string `json:"date"`
	Month      string `json:"month"`
	CategoryID *int64 `json:"category_id,omitempty"`
}

type categoryJSON struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type budgetJSON struct {
	ID         int64  `json:"id"`
	CategoryID int64  `json:"category_id"`
	Ceiling    string `json:"ceiling"`
}

type budgetStatusJSON struct {
	CategoryID   int64   `json:"category_id"`
	CategoryName string  `json:"category_name"`
	Month        string  `json:"month"`
	Spent        string  `json:"spent"`
	Ceiling      string  `json:"ceiling,omitempty"`
	Percentage   float64 `json:"percentage"`
	State        string  `json:"state"`
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:           t.ID,
		Kind:         string(t.Kind),
		Amount:       t.Amount.String(),
		Date:         t.Date,
		Description:  t.Description,
		CategoryID:   t.CategoryID,
		CategoryName: t.CategoryName,
	}
}

func toAlertJSON(a core.Alert) alertJSON {
	return alertJSON{
		ID:         a.ID,
		Kind:       string(a.Kind),
		Message:    a.Message,
		Date:       a.Date,
		Month:      a.Month,
		CategoryID: a.CategoryID,
	}
}

func toAlertListJSON(alerts []core.Alert) []alertJSON {
	out := make([]alertJSON, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertJSON(a))
	}
	return out
}

func toBudgetStatusJSON(st rules.BudgetStatus) budgetStatusJSON {
	out := budgetStatusJSON{
		CategoryID:   st.CategoryID,
		CategoryName: st.CategoryName,
		Month:        st.Month,
		Spent:        st.Spent.String(),
		Percentage:   st.Percentage,
		State:        string(st.State),
	}
	if st.State != rules.StateNoBudget {
		out.Ceiling = st.Ceiling.String()
	}
	return out
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("id %q: %w", r.PathValue("id"), core.ErrNotFound)
	}
	return id, nil
}

// monthParam reads the month query parameter, defaulting to the current
// month when required and absent.
func monthParam(r *http.Request, required bool) string {
	month := r.URL.Query().Get("month")
	if month == "" && required {
		month = time.Now().Format("2006-01")
	}
	return month
}

// ---- transactions ----

type createTransactionRequest struct {
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Description string `json:"description"`
	CategoryID  *int64 `json:"category_id"`
}

type createTransactionResponse struct {
	Transaction transactionJSON `json:"transaction"`
	Alerts      []alertJSON     `json:"alerts"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, r, fmt.Errorf("amount %q: %w", req.Amount, err))
		return
	}

	saved, alerts, err := s.ledger.CreateTransaction(r.Context(), core.Transaction{
		Kind:        core.TransactionKind(req.Kind),
		Amount:      core.Money{Cents: cents},
		Date:        req.Date,
		Description: req.Description,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createTransactionResponse{
		Transaction: toTransactionJSON(saved),
		Alerts:      toAlertListJSON(alerts),
	})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.ListTransactions(r.Context(), monthParam(r, false))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]transactionJSON, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionJSON(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := s.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionJSON(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteTransaction(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- categories ----

type createCategoryRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	cat, err := s.categories.CreateCategory(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryJSON{ID: cat.ID, Name: cat.Name})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.categories.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]categoryJSON, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryJSON{ID: c.ID, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.categories.DeleteCategory(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- budgets ----

type setBudgetRequest struct {
	CategoryID int64  `json:"category_id"`
	Ceiling    string `json:"ceiling"`
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	var req setBudgetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	cents, err := core.ParseDecimalToCents(req.Ceiling)
	if err != nil {
		writeError(w, r, fmt.Errorf("ceiling %q: %w", req.Ceiling, err))
		return
	}

	b, err := s.budgets.SetBudget(r.Context(), req.CategoryID, core.Money{Cents: cents})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, budgetJSON{ID: b.ID, CategoryID: b.CategoryID, Ceiling: b.Ceiling.String()})
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.budgets.ListBudgets(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]budgetJSON, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, budgetJSON{ID: b.ID, CategoryID: b.CategoryID, Ceiling: b.Ceiling.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBudgetStatuses(w http.ResponseWriter, r *http.Request) {
	month := monthParam(r, true)

	if v := r.URL.Query().Get("category_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "category_id must be an integer"})
			return
		}
		st, err := s.budgets.CategoryStatus(r.Context(), id, month)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toBudgetStatusJSON(st))
		return
	}

	statuses, err := s.budgets.MonthStatuses(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]budgetStatusJSON, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, toBudgetStatusJSON(st))
	}
	writeJSON(w, http.StatusOK, out)
}

// ---- alerts ----

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.alerts.ListAlerts(r.Context(), monthParam(r, false))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAlertListJSON(alerts))
}

type recomputeRequest struct {
	Month string `json:"month"`
}

type recomputeResponse struct {
	Month   string      `json:"month"`
	Created []alertJSON `json:"created"`
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	// The month can arrive as ?month=YYYY-MM or in a JSON body; the
	// query parameter wins and a body-less POST means the current month.
	var req recomputeRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}
	if m := r.URL.Query().Get("month"); m != "" {
		req.Month = m
	}
	if req.Month == "" {
		req.Month = time.Now().Format("2006-01")
	}

	created, err := s.alerts.Recompute(r.Context(), req.Month)
	if err != nil && created == nil {
		writeError(w, r, err)
		return
	}
	// Partial rule failures still return the alerts that were created.
	writeJSON(w, http.StatusOK, recomputeResponse{Month: req.Month, Created: toAlertListJSON(created)})
}

// ---- summary ----

type summaryCategoryJSON struct {
	CategoryID int64  `json:"category_id"`
	Spent      string `json:"spent"`
}

type summaryResponse struct {
	Month        string                `json:"month"`
	TotalIncome  string                `json:"total_income"`
	TotalExpense string                `json:"total_expense"`
	Balance      string                `json:"balance"`
	ByCategory   []summaryCategoryJSON `json:"by_category"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	month := monthParam(r, true)

	summary, err := s.ledger.MonthSummary(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	balance := summary.Balance()
	resp := summaryResponse{
		Month:        summary.Month,
		TotalIncome:  summary.TotalIncome.String(),
		TotalExpense: summary.TotalExpense.String(),
		Balance:      balance.String(),
		ByCategory:   make([]summaryCategoryJSON, 0, len(summary.SpendByCategory)),
	}
	for _, catID := range sortedKeys(summary.SpendByCategory) {
		resp.ByCategory = append(resp.ByCategory, summaryCategoryJSON{
			CategoryID: catID,
			Spent:      summary.SpendByCategory[catID].String(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
