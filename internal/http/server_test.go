package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"finanzas/internal/rules"
	"finanzas/internal/services"
	"finanzas/internal/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	engine := rules.NewEngine(repo)
	srv := NewServer(
		"127.0.0.1:0",
		services.NewLedgerService(repo, engine, nil),
		services.NewCategoryService(repo),
		services.NewBudgetService(repo, engine),
		services.NewAlertService(repo, engine),
		repo.Ping,
	)

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}

func createCategory(t *testing.T, ts *httptest.Server, name string) int64 {
	t.Helper()
	resp, body := doJSON(t, ts, http.MethodPost, "/categories", map[string]string{"name": name})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create category: status %d: %s", resp.StatusCode, body)
	}
	var cat struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &cat); err != nil {
		t.Fatalf("decode category: %v", err)
	}
	return cat.ID
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, _ := doJSON(t, ts, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, ts, http.MethodGet, "/healthz", nil)
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	catID := createCategory(t, ts, "Comida")

	resp, body := doJSON(t, ts, http.MethodPost, "/transactions", map[string]any{
		"kind":        "expense",
		"amount":      "42.50",
		"date":        "2025-03-10",
		"description": "mercado",
		"category_id": catID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create transaction: status %d: %s", resp.StatusCode, body)
	}

	var created struct {
		Transaction struct {
			ID     int64  `json:"id"`
			Amount string `json:"amount"`
		} `json:"transaction"`
		Alerts []struct {
			Kind string `json:"kind"`
		} `json:"alerts"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Transaction.Amount != "42.50" {
		t.Errorf("amount = %q, want 42.50", created.Transaction.Amount)
	}
	// No budget defined yet, the missing-budget alert fires immediately.
	foundMissing := false
	for _, a := range created.Alerts {
		if a.Kind == "category_without_budget" {
			foundMissing = true
		}
	}
	if !foundMissing {
		t.Errorf("expected category_without_budget alert, got %+v", created.Alerts)
	}

	resp, body = doJSON(t, ts, http.MethodGet, fmt.Sprintf("/transactions/%d", created.Transaction.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get transaction: status %d: %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, ts, http.MethodDelete, fmt.Sprintf("/transactions/%d", created.Transaction.ID), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete transaction: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, ts, http.MethodGet, fmt.Sprintf("/transactions/%d", created.Transaction.ID), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted transaction: status %d, want 404", resp.StatusCode)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name       string
		payload    map[string]any
		wantStatus int
	}{
		{
			name:       "malformed body field",
			payload:    map[string]any{"kind": "expense", "amount": "10.00", "date": "2025-03-10", "description": "x", "unknown": true},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad amount",
			payload:    map[string]any{"kind": "expense", "amount": "-5", "date": "2025-03-10", "description": "x"},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "bad date",
			payload:    map[string]any{"kind": "income", "amount": "10.00", "date": "03-10-2025", "description": "x"},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "expense without category",
			payload:    map[string]any{"kind": "expense", "amount": "10.00", "date": "2025-03-10", "description": "x"},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "unknown category",
			payload:    map[string]any{"kind": "expense", "amount": "10.00", "date": "2025-03-10", "description": "x", "category_id": 999},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, ts, http.MethodPost, "/transactions", tt.payload)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", resp.StatusCode, tt.wantStatus, body)
			}
		})
	}
}

func TestBudgetStatusEndpoint(t *testing.T) {
	ts := newTestServer(t)
	catID := createCategory(t, ts, "Ocio")

	resp, body := doJSON(t, ts, http.MethodPut, "/budgets", map[string]any{
		"category_id": catID,
		"ceiling":     "100.00",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set budget: status %d: %s", resp.StatusCode, body)
	}

	// Spend 95% of the ceiling.
	resp, body = doJSON(t, ts, http.MethodPost, "/transactions", map[string]any{
		"kind":        "expense",
		"amount":      "95.00",
		"date":        "2025-03-05",
		"description": "entradas",
		"category_id": catID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create transaction: status %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, ts, http.MethodGet, fmt.Sprintf("/budgets/status?month=2025-03&category_id=%d", catID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("budget status: status %d: %s", resp.StatusCode, body)
	}
	var st struct {
		Spent      string  `json:"spent"`
		Ceiling    string  `json:"ceiling"`
		State      string  `json:"state"`
		Percentage float64 `json:"percentage"`
	}
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.State != "near" {
		t.Errorf("state = %q, want near", st.State)
	}
	if st.Spent != "95.00" || st.Ceiling != "100.00" {
		t.Errorf("spent/ceiling = %s/%s, want 95.00/100.00", st.Spent, st.Ceiling)
	}
}

func TestAlertsAndRecompute(t *testing.T) {
	ts := newTestServer(t)
	catID := createCategory(t, ts, "Suscripciones")

	// Three identical charges trigger the repetitive-expense alert.
	for i := 0; i < 3; i++ {
		resp, body := doJSON(t, ts, http.MethodPost, "/transactions", map[string]any{
			"kind":        "expense",
			"amount":      "9.99",
			"date":        fmt.Sprintf("2025-03-%02d", 10+i),
			"description": "streaming",
			"category_id": catID,
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create transaction %d: status %d: %s", i, resp.StatusCode, body)
		}
	}

	resp, body := doJSON(t, ts, http.MethodGet, "/alerts?month=2025-03", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list alerts: status %d: %s", resp.StatusCode, body)
	}
	var alerts []struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(body, &alerts); err != nil {
		t.Fatalf("decode alerts: %v", err)
	}
	counts := map[string]int{}
	for _, a := range alerts {
		counts[a.Kind]++
	}
	for _, kind := range []string{"repetitive_expense", "category_without_budget", "expenses_exceed_income", "negative_balance"} {
		if counts[kind] != 1 {
			t.Errorf("alert %s count = %d, want 1", kind, counts[kind])
		}
	}

	// Recompute creates nothing new for an unchanged month.
	resp, body = doJSON(t, ts, http.MethodPost, "/recompute", map[string]string{"month": "2025-03"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("recompute: status %d: %s", resp.StatusCode, body)
	}
	var rec struct {
		Created []json.RawMessage `json:"created"`
	}
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatalf("decode recompute: %v", err)
	}
	if len(rec.Created) != 0 {
		t.Errorf("recompute created %d alerts, want 0", len(rec.Created))
	}
}

func TestRecomputeMonthQueryParam(t *testing.T) {
	ts := newTestServer(t)

	// Body-less POST with the month in the query string.
	resp, body := doJSON(t, ts, http.MethodPost, "/recompute?month=2025-03", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("recompute via query: status %d: %s", resp.StatusCode, body)
	}
	var rec struct {
		Month string `json:"month"`
	}
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatalf("decode recompute: %v", err)
	}
	if rec.Month != "2025-03" {
		t.Errorf("recomputed month = %q, want 2025-03", rec.Month)
	}

	// The query parameter wins over a JSON body.
	resp, body = doJSON(t, ts, http.MethodPost, "/recompute?month=2025-04", map[string]string{"month": "2025-01"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("recompute with body and query: status %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatalf("decode recompute: %v", err)
	}
	if rec.Month != "2025-04" {
		t.Errorf("recomputed month = %q, want 2025-04", rec.Month)
	}
}

func TestDeleteCategoryInUse(t *testing.T) {
	ts := newTestServer(t)
	catID := createCategory(t, ts, "Comida")

	resp, body := doJSON(t, ts, http.MethodPost, "/transactions", map[string]any{
		"kind":        "expense",
		"amount":      "5.00",
		"date":        "2025-03-01",
		"description": "pan",
		"category_id": catID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create transaction: status %d: %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, ts, http.MethodDelete, fmt.Sprintf("/categories/%d", catID), nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("delete category in use: status %d, want 409", resp.StatusCode)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	ts := newTestServer(t)
	catID := createCategory(t, ts, "Transporte")

	for _, tx := range []map[string]any{
		{"kind": "income", "amount": "1500.00", "date": "2025-03-01", "description": "nomina"},
		{"kind": "expense", "amount": "40.00", "date": "2025-03-02", "description": "abono", "category_id": catID},
	} {
		resp, body := doJSON(t, ts, http.MethodPost, "/transactions", tx)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create transaction: status %d: %s", resp.StatusCode, body)
		}
	}

	resp, body := doJSON(t, ts, http.MethodGet, "/summary?month=2025-03", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary: status %d: %s", resp.StatusCode, body)
	}
	var sum struct {
		TotalIncome  string `json:"total_income"`
		TotalExpense string `json:"total_expense"`
		Balance      string `json:"balance"`
		ByCategory   []struct {
			CategoryID int64  `json:"category_id"`
			Spent      string `json:"spent"`
		} `json:"by_category"`
	}
	if err := json.Unmarshal(body, &sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sum.TotalIncome != "1500.00" || sum.TotalExpense != "40.00" || sum.Balance != "1460.00" {
		t.Errorf("summary = %+v, want income 1500.00, expense 40.00, balance 1460.00", sum)
	}
	if len(sum.ByCategory) != 1 || sum.ByCategory[0].Spent != "40.00" {
		t.Errorf("by_category = %+v, want single entry of 40.00", sum.ByCategory)
	}
}
