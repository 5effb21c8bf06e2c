package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"moodtracker/internal/core"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheets serves the handful of Sheets endpoints the client calls.
type fakeSheets struct {
	mu     sync.Mutex
	sheets map[string][][]string
	gets   int
}

func newFakeSheets() *fakeSheets {
	return &fakeSheets{sheets: map[string][][]string{}}
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const prefix = "/v4/spreadsheets/sid"
	path := strings.TrimPrefix(r.URL.Path, prefix)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case path == "" && r.Method == http.MethodGet:
		var sheets []map[string]any
		for title := range f.sheets {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": title}})
		}
		json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
	case path == ":batchUpdate" && r.Method == http.MethodPost:
		var req gsheet.BatchUpdateSpreadsheetRequest
		json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			if rq.AddSheet != nil {
				f.sheets[rq.AddSheet.Properties.Title] = nil
			}
		}
		w.Write([]byte(`{}`))
	case strings.HasPrefix(path, "/values/"):
		rng := strings.TrimPrefix(path, "/values/")
		clear := strings.HasSuffix(rng, ":clear")
		rng = strings.TrimSuffix(rng, ":clear")
		sheet, cells, _ := strings.Cut(rng, "!")
		switch {
		case r.Method == http.MethodGet:
			f.gets++
			var values [][]string
			for _, row := range f.sheets[sheet] {
				values = append(values, row)
			}
			json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": values})
		case r.Method == http.MethodPut:
			var vr struct {
				Values [][]any `json:"values"`
			}
			json.NewDecoder(r.Body).Decode(&vr)
			f.set(sheet, startRow(cells), toStrings(vr.Values[0]))
			w.Write([]byte(`{"updatedRows":1}`))
		case clear:
			f.set(sheet, startRow(cells), nil)
			w.Write([]byte(`{}`))
		default:
			http.Error(w, "unsupported", http.StatusBadRequest)
		}
	default:
		http.Error(w, "not found: "+r.URL.Path, http.StatusNotFound)
	}
}

func (f *fakeSheets) set(sheet string, row int, values []string) {
	rows := f.sheets[sheet]
	for len(rows) < row {
		rows = append(rows, nil)
	}
	rows[row-1] = values
	f.sheets[sheet] = rows
}

func (f *fakeSheets) rows(sheet string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sheets[sheet]
}

// startRow extracts 5 from "A5:E5".
func startRow(cells string) int {
	first, _, _ := strings.Cut(cells, ":")
	n, _ := strconv.Atoi(strings.TrimLeft(first, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
	return n
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewWithService(svc, "sid", "Moods")
}

func TestUpsertRowAppendsThenUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSheets()
	c := newTestClient(t, fake)
	at := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)

	if err := c.UpsertRow(ctx, "u1", core.DayEntry{Date: "2025-03-14", Mood: core.Meh}, at); err != nil {
		t.Fatalf("UpsertRow: %v", err)
	}
	if err := c.UpsertRow(ctx, "u2", core.DayEntry{Date: "2025-03-14", Mood: core.Low}, at); err != nil {
		t.Fatalf("UpsertRow: %v", err)
	}
	if err := c.UpsertRow(ctx, "u1", core.DayEntry{Date: "2025-03-14", Mood: core.Stable, Comment: "nap"}, at); err != nil {
		t.Fatalf("UpsertRow: %v", err)
	}

	rows := fake.rows("2025 Moods")
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %v", rows)
	}
	if rows[0][0] != "user_id" {
		t.Fatalf("expected header row, got %v", rows[0])
	}
	if got := strings.Join(rows[1], ","); got != "u1,2025-03-14,stable,nap,2025-03-14T08:00:00Z" {
		t.Fatalf("row 2 = %s", got)
	}
}

func TestDeleteRowClears(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSheets()
	c := newTestClient(t, fake)

	_ = c.UpsertRow(ctx, "u1", core.DayEntry{Date: "2025-03-14", Mood: core.Meh}, time.Now())
	_ = c.UpsertRow(ctx, "u1", core.DayEntry{Date: "2025-03-15", Mood: core.Tired}, time.Now())

	if err := c.DeleteRow(ctx, "u1", "2025-03-14"); err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}
	if err := c.DeleteRow(ctx, "u1", "2025-01-01"); err != nil {
		t.Fatalf("deleting a missing row: %v", err)
	}

	got, err := c.Rows(ctx, "u1", 2025)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(got) != 1 || got[0].Date != "2025-03-15" || got[0].Mood != core.Tired {
		t.Fatalf("unexpected rows %+v", got)
	}

	// A new entry is appended after the blank row, not into it.
	_ = c.UpsertRow(ctx, "u1", core.DayEntry{Date: "2025-03-16", Mood: core.Low}, time.Now())
	if n := len(fake.rows("2025 Moods")); n != 4 {
		t.Fatalf("expected 4 physical rows, got %d", n)
	}
}

func TestRowCacheAvoidsRereads(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSheets()
	c := newTestClient(t, fake)

	for d := 1; d <= 3; d++ {
		e := core.DayEntry{Date: core.NewDateKey(2025, time.March, d), Mood: core.Meh}
		if err := c.UpsertRow(ctx, "u1", e, time.Now()); err != nil {
			t.Fatal(err)
		}
	}
	if fake.gets != 1 {
		t.Fatalf("expected a single index read, got %d", fake.gets)
	}

	c.InvalidateRowCache()
	_ = c.UpsertRow(ctx, "u1", core.DayEntry{Date: "2025-03-04", Mood: core.Meh}, time.Now())
	if fake.gets != 2 {
		t.Fatalf("expected a re-read after invalidation, got %d", fake.gets)
	}
}

func TestEntriesGoToTheirYearSheet(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSheets()
	c := newTestClient(t, fake)

	_ = c.UpsertRow(ctx, "u1", core.DayEntry{Date: "2024-12-31", Mood: core.Meh}, time.Now())
	_ = c.UpsertRow(ctx, "u1", core.DayEntry{Date: "2025-01-01", Mood: core.Meh}, time.Now())

	if len(fake.rows("2024 Moods")) != 2 || len(fake.rows("2025 Moods")) != 2 {
		t.Fatalf("unexpected sheets %v", fake.sheets)
	}
}

func TestUpsertRowRejectsInvalidEntry(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	err := c.UpsertRow(context.Background(), "u1", core.DayEntry{Date: "2025-13-01", Mood: core.Meh}, time.Now())
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("expected validation error, got %v", err)
	}
	err = c.UpsertRow(context.Background(), "u1", core.DayEntry{Date: "2025-01-01", Mood: core.Meh}, time.Now())
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "sid")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadCredentialsFromFile(t *testing.T) {
	path := t.TempDir() + "/sa.json"
	if err := os.WriteFile(path, []byte(`{"type":"service_account"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	b, err := loadCredentials(Config{CredentialsFile: path})
	if err != nil || !strings.Contains(string(b), "service_account") {
		t.Fatalf("loadCredentials = %s, %v", b, err)
	}
	if _, err := loadCredentials(Config{CredentialsFile: path + ".missing"}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Moods", 2025, "2025 Moods"},
		{" Moods ", 2024, "2024 Moods"},
		{"2023 Moods", 2025, "2023 Moods"},
		{"", 2025, ""},
		{"12345", 2025, "2025 12345"},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}

func TestBuildRowIndex(t *testing.T) {
	values := [][]any{
		{"user_id", "date", "mood"},
		{"u1", "2025-01-01", "meh"},
		{},
		{"u2", "2025-01-01", "low"},
		{"u1", "not-a-date"},
	}
	idx := buildRowIndex(values)
	if idx.rowCount != 5 {
		t.Fatalf("rowCount = %d", idx.rowCount)
	}
	if idx.keys["u1|2025-01-01"] != 2 || idx.keys["u2|2025-01-01"] != 4 {
		t.Fatalf("unexpected keys %v", idx.keys)
	}
	if len(idx.keys) != 2 {
		t.Fatalf("header and malformed rows should not be indexed: %v", idx.keys)
	}
}

func TestYearsListsMirrorSheets(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSheets()
	fake.sheets["Notes"] = nil
	c := newTestClient(t, fake)

	_ = c.UpsertRow(ctx, "u1", core.DayEntry{Date: "2025-03-14", Mood: core.Meh}, time.Now())
	_ = c.UpsertRow(ctx, "u2", core.DayEntry{Date: "2025-03-14", Mood: core.Low}, time.Now())
	_ = c.UpsertRow(ctx, "u1", core.DayEntry{Date: "2023-12-31", Mood: core.Low}, time.Now())

	years, err := c.Years(ctx)
	if err != nil {
		t.Fatalf("Years: %v", err)
	}
	if len(years) != 2 || years[0] != 2023 || years[1] != 2025 {
		t.Fatalf("Years = %v, want [2023 2025]", years)
	}

	all, err := c.Rows(ctx, "", 2025)
	if err != nil || len(all) != 2 {
		t.Fatalf("Rows for every user = %+v, %v", all, err)
	}
}
