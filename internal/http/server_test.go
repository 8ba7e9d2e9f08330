package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/query"
	"fintrack/internal/services"
	"fintrack/internal/storage/memory"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, cfg Config) (*Server, *memory.Store) {
	t.Helper()
	store := memory.NewWithUsers(
		core.User{ID: "u1", Name: "Ada", Email: "ada@example.com"},
		core.User{ID: "u2", Name: "Bob", Email: "bob@example.com"},
	)
	svc := services.NewTransactionService(store,
		services.WithQueryBuilder(query.Builder{Now: func() time.Time { return fixedNow }, Location: time.UTC}))

	cfg.Location = time.UTC
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Config{Output: &bytes.Buffer{}})
	}
	srv := NewServer(":0", svc, cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, store
}

type apiResponse struct {
	Success      bool              `json:"success"`
	Message      string            `json:"message"`
	Transaction  *TransactionView  `json:"transaction"`
	Transactions []TransactionView `json:"transactions"`
}

func do(t *testing.T, srv *Server, method, path string, body any) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	var resp apiResponse
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rr.Body.String())
		}
	}
	return rr.Code, resp
}

func rentBody(user string) map[string]any {
	return map[string]any{
		"title":           "Rent",
		"amount":          900,
		"description":     "Monthly rent",
		"date":            "2024-03-01",
		"category":        "Housing",
		"userId":          user,
		"transactionType": "expense",
		"recurring":       true,
	}
}

func TestIndexAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	for path, want := range map[string]string{
		"/":        "fintrack server is working",
		"/healthz": "ok",
		"/readyz":  "ready",
	} {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK || rr.Body.String() != want {
			t.Errorf("%s: status=%d body=%q", path, rr.Code, rr.Body.String())
		}
		if rr.Header().Get("X-Request-ID") == "" || rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s: middleware headers missing", path)
		}
	}

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d", rr.Code)
	}
}

func TestReadyzReportsStoreFailure(t *testing.T) {
	srv, _ := newTestServer(t, Config{Ready: func(context.Context) error {
		return errors.New("database is locked")
	}})

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	srv, store := newTestServer(t, Config{})

	code, resp := do(t, srv, http.MethodPost, "/api/v1/addTransaction", rentBody("u1"))
	if code != http.StatusOK || !resp.Success || resp.Transaction == nil {
		t.Fatalf("add: %d %+v", code, resp)
	}
	id := resp.Transaction.ID
	if resp.Message != "Transaction Added Successfully" || !resp.Transaction.Recurring {
		t.Errorf("add response = %+v", resp)
	}

	code, resp = do(t, srv, http.MethodPost, "/api/v1/getTransaction",
		map[string]any{"userId": "u1", "type": "all", "frequency": "custom", "startDate": "2024-03-01", "endDate": "2024-03-31"})
	if code != http.StatusOK || len(resp.Transactions) != 1 || resp.Transactions[0].ID != id {
		t.Fatalf("list: %d %+v", code, resp)
	}

	code, resp = do(t, srv, http.MethodPut, "/api/v1/updateTransaction/"+id,
		map[string]any{"title": "Rent (new lease)", "recurring": false})
	if code != http.StatusOK || resp.Transaction.Title != "Rent (new lease)" || resp.Transaction.Recurring {
		t.Fatalf("update: %d %+v", code, resp)
	}
	if resp.Transaction.Category != "Housing" {
		t.Errorf("omitted fields must be kept, got %+v", resp.Transaction)
	}

	code, resp = do(t, srv, http.MethodPost, "/api/v1/deleteTransaction/"+id, map[string]any{"userId": "u2"})
	if code != http.StatusNotFound || resp.Success || resp.Message != "Transaction not found" {
		t.Fatalf("foreign delete: %d %+v", code, resp)
	}

	code, resp = do(t, srv, http.MethodPost, "/api/v1/deleteTransaction/"+id, map[string]any{"userId": "u1"})
	if code != http.StatusOK || !resp.Success {
		t.Fatalf("delete: %d %+v", code, resp)
	}
	if store.Len() != 0 {
		t.Errorf("store still holds %d transactions", store.Len())
	}
}

func TestAddTransactionErrors(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	tests := []struct {
		name     string
		mutate   func(map[string]any)
		wantCode int
		wantMsg  string
	}{
		{"missing title", func(b map[string]any) { delete(b, "title") }, http.StatusBadRequest, "missing required fields: title"},
		{"bad amount", func(b map[string]any) { b["amount"] = "lots" }, http.StatusBadRequest, ""},
		{"unknown type", func(b map[string]any) { b["transactionType"] = "transfer" }, http.StatusBadRequest, ""},
		{"unknown user", func(b map[string]any) { b["userId"] = "ghost" }, http.StatusNotFound, "User not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := rentBody("u1")
			tt.mutate(body)
			code, resp := do(t, srv, http.MethodPost, "/api/v1/addTransaction", body)
			if code != tt.wantCode || resp.Success {
				t.Fatalf("got %d %+v", code, resp)
			}
			if tt.wantMsg != "" && resp.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", resp.Message, tt.wantMsg)
			}
		})
	}
}

func TestGetTransactionErrors(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	code, resp := do(t, srv, http.MethodPost, "/api/v1/getTransaction", map[string]any{"userId": "ghost", "type": "all", "frequency": "7"})
	if code != http.StatusNotFound || resp.Message != "User not found" {
		t.Errorf("unknown user: %d %+v", code, resp)
	}

	code, _ = do(t, srv, http.MethodPost, "/api/v1/getTransaction", map[string]any{"userId": "u1", "type": "transfer", "frequency": "7"})
	if code != http.StatusBadRequest {
		t.Errorf("unknown type: %d", code)
	}

	code, resp = do(t, srv, http.MethodPost, "/api/v1/getTransaction", map[string]any{"userId": "u1", "type": "credit", "frequency": "7"})
	if code != http.StatusOK || resp.Transactions == nil || len(resp.Transactions) != 0 {
		t.Errorf("empty list: %d %+v", code, resp)
	}
}

func TestUpdateTransactionErrors(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	code, resp := do(t, srv, http.MethodPut, "/api/v1/updateTransaction/missing", map[string]any{"title": "x"})
	if code != http.StatusNotFound || resp.Message != "Transaction not found" {
		t.Errorf("missing: %d %+v", code, resp)
	}

	_, created := do(t, srv, http.MethodPost, "/api/v1/addTransaction", rentBody("u1"))
	code, _ = do(t, srv, http.MethodPut, "/api/v1/updateTransaction/"+created.Transaction.ID, map[string]any{"transactionType": "gift"})
	if code != http.StatusBadRequest {
		t.Errorf("invalid type: %d", code)
	}
}

func TestDeleteUnknownUser(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	code, resp := do(t, srv, http.MethodPost, "/api/v1/deleteTransaction/whatever", map[string]any{"userId": "ghost"})
	if code != http.StatusNotFound || resp.Message != "User not found" {
		t.Errorf("got %d %+v", code, resp)
	}
}

func TestWrongMethod(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/addTransaction", nil))
	if rr.Code != http.StatusMethodNotAllowed || rr.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("status = %d, Allow = %q", rr.Code, rr.Header().Get("Allow"))
	}
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp.Success || resp.Message != "Method not allowed" {
		t.Errorf("body = %s (%v)", rr.Body.String(), err)
	}

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/updateTransaction/abc", strings.NewReader("{}")))
	if rr.Code != http.StatusMethodNotAllowed || rr.Header().Get("Allow") != http.MethodPut {
		t.Errorf("update route: status = %d, Allow = %q", rr.Code, rr.Header().Get("Allow"))
	}
}

func TestRateLimitOnWrites(t *testing.T) {
	srv, _ := newTestServer(t, Config{RateLimit: ratelimit.Config{RequestsPerMinute: 1}})

	code, _ := do(t, srv, http.MethodPost, "/api/v1/addTransaction", rentBody("u1"))
	if code != http.StatusOK {
		t.Fatalf("first write: %d", code)
	}
	code, resp := do(t, srv, http.MethodPost, "/api/v1/addTransaction", rentBody("u1"))
	if code != http.StatusTooManyRequests || resp.Success {
		t.Fatalf("second write: %d %+v", code, resp)
	}

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	for _, want := range []string{
		`transaction_mutations_total{operation="create"} 1`,
		"rate_limit_hits_total 1",
		"http_requests_total 3",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, Config{CORSOrigins: []string{"https://app.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/addTransaction", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Errorf("preflight: %d %v", rr.Code, rr.Header())
	}
}
