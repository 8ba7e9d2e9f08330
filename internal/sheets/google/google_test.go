package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	ports "fintrack/internal/sheets"
)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestNewFromEnv_InvalidCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"type": "service_account"`)

	_, err := NewFromEnv(context.Background())
	if err == nil || !strings.Contains(err.Error(), "parse service account credentials") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestPooledClientAuthorizesRequests(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok", TokenType: "Bearer"})
	resp, err := newHTTPClientWithPooling(src).Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		baseName string
		year     int
		expected string
	}{
		{"Journal", 2024, "2024 Journal"},
		{"  Journal  ", 2025, "2025 Journal"},
		{"2023 Journal", 2024, "2023 Journal"},
		{"", 2024, ""},
		{"12345", 2024, "2024 12345"},
	}

	for _, tt := range tests {
		got := yearPrefixedName(tt.baseName, tt.year)
		if got != tt.expected {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q",
				tt.baseName, tt.year, got, tt.expected)
		}
	}
}

// fakeSheets records append calls made through the real Sheets client.
type fakeSheets struct {
	mu    sync.Mutex
	paths []string
	rows  [][]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, ":append") {
		http.Error(w, "unexpected call "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
		return
	}
	var vr gsheet.ValueRange
	if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.rows = append(f.rows, vr.Values...)
	n := len(f.rows)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"spreadsheetId": "sheet-1",
		"updates": map[string]any{
			"updatedRange": fmt.Sprintf("'2024 Journal'!A%d:M%d", n, n),
			"updatedRows":  1,
		},
	})
}

func newFakeClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), "sheet-1", "",
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestClient_AppendEntry(t *testing.T) {
	fake := &fakeSheets{}
	c := newFakeClient(t, fake)

	entry := ports.JournalEntry{
		Event:     "transaction.created",
		Source:    "recurring",
		Timestamp: time.Date(2024, 2, 1, 0, 0, 5, 0, time.UTC),
		Transaction: core.Transaction{
			ID:          "tx-1",
			OwnerID:     "u1",
			Title:       "Rent",
			Description: "Monthly rent",
			Category:    "Housing",
			Amount:      decimal.RequireFromString("900"),
			Date:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			Type:        core.Expense,
			Recurring:   true,
			TemplateID:  "tpl-1",
		},
	}

	ref, err := c.AppendEntry(context.Background(), entry)
	if err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	if ref != "'2024 Journal'!A1:M1" {
		t.Errorf("ref = %q", ref)
	}

	if len(fake.paths) != 1 || !strings.Contains(fake.paths[0], "2024 Journal!A:M") {
		t.Fatalf("unexpected request paths: %v", fake.paths)
	}
	row := fake.rows[0]
	want := []any{"2024-02-01T00:00:05Z", "transaction.created", "recurring", "tx-1", "u1",
		"2024-02-01", "Rent", "Monthly rent", "Housing", "expense", "900.00", "true", "tpl-1"}
	if len(row) != len(want) {
		t.Fatalf("row has %d cells, want %d: %v", len(row), len(want), row)
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("cell %d = %v, want %v", i, row[i], want[i])
		}
	}
}

func TestClient_AppendEntryRequiresID(t *testing.T) {
	c := newFakeClient(t, &fakeSheets{})
	if _, err := c.AppendEntry(context.Background(), ports.JournalEntry{Timestamp: time.Now()}); err == nil {
		t.Fatal("expected error for entry without transaction id")
	}
}

func TestClient_AppendEntryNotInitialized(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	if _, err := c.AppendEntry(context.Background(), ports.JournalEntry{}); err == nil {
		t.Fatal("expected error with nil service")
	}
}
