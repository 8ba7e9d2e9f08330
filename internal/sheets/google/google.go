package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	ports "fintrack/internal/sheets"
)

// DefaultSheetName is the journal base name; the entry's year is prefixed.
const DefaultSheetName = "Journal"

// Client appends journal rows to a Google spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
}

var _ ports.JournalWriter = (*Client)(nil)

// New builds a client from an explicit Sheets API option set.
func New(ctx context.Context, spreadsheetID, sheetBase string, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = DefaultSheetName
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: strings.TrimSpace(sheetBase)}, nil
}

// NewFromEnv creates a Sheets client using service account credentials.
// Required: GOOGLE_SPREADSHEET_ID
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS.
// Optional: GOOGLE_SHEET_NAME (default "Journal").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	credentialsJSON, err := loadCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	creds, err := googleoauth.CredentialsFromJSON(ctx, credentialsJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	// WithHTTPClient bypasses option-level credentials, so auth rides on the transport.
	return New(ctx, spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME"),
		goption.WithHTTPClient(newHTTPClientWithPooling(creds.TokenSource)))
}

func loadCredentials(ctx context.Context) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading service account credentials", "path", serviceAccountFile)
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newHTTPClientWithPooling creates an authorized HTTP client tuned for the Sheets API.
func newHTTPClientWithPooling(src oauth2.TokenSource) *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, src), Base: transport},
		Timeout:   60 * time.Second,
	}
}

// AppendEntry appends one row to the journal sheet of the entry's year.
// Columns: timestamp, event, source, id, owner, date, title, description,
// category, type, amount, recurring, template.
func (c *Client) AppendEntry(ctx context.Context, e ports.JournalEntry) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if e.Transaction.ID == "" {
		return "", errors.New("journal entry has no transaction id")
	}

	sheet := yearPrefixedName(c.sheetBase, e.Timestamp.Year())
	rng := fmt.Sprintf("%s!A:M", sheet)
	vr := &gsheet.ValueRange{Values: [][]any{journalRow(e)}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

func journalRow(e ports.JournalEntry) []any {
	t := e.Transaction
	date := ""
	if !t.Date.IsZero() {
		date = t.Date.Format(core.DateLayout)
	}
	amount := ""
	if !t.Amount.IsZero() {
		amount = core.FormatAmount(t.Amount)
	}
	return []any{
		e.Timestamp.UTC().Format(time.RFC3339),
		e.Event,
		e.Source,
		t.ID,
		t.OwnerID,
		date,
		t.Title,
		t.Description,
		t.Category,
		t.Type.String(),
		amount,
		strconv.FormatBool(t.Recurring),
		t.TemplateID,
	}
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
