package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"moodtracker/internal/core"
	ports "moodtracker/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultCacheValidDuration = 2 * time.Minute

// Client mirrors mood entries into one sheet per year, named "<year> <base>".
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string

	mu                 sync.Mutex
	cacheValidDuration time.Duration
	indexes            map[string]*rowIndex
	knownSheets        map[string]bool
}

// rowIndex maps row keys to 1-based row numbers of one sheet.
type rowIndex struct {
	keys      map[string]int
	rowCount  int
	expiresAt time.Time
}

// Ensure interface conformance
var (
	_ ports.EntryMirror  = (*Client)(nil)
	_ ports.MirrorReader = (*Client)(nil)
)

// Config selects the spreadsheet and credentials.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_SHEET_NAME (default "Moods"), GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	cfg := Config{
		SpreadsheetID:   strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID")),
		SheetName:       strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME")),
		CredentialsJSON: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")),
		CredentialsFile: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")),
	}
	if cfg.CredentialsJSON == "" && cfg.CredentialsFile == "" {
		cfg.CredentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return New(ctx, cfg)
}

// New creates a Sheets client authenticated with service account credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	credentialsJSON, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "component", "sheets", "spreadsheet_id", cfg.SpreadsheetID)
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewWithService wraps an existing service. An empty sheetBase selects "Moods".
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetBase string) *Client {
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = "Moods"
	}
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		sheetBase:          sheetBase,
		cacheValidDuration: defaultCacheValidDuration,
		indexes:            make(map[string]*rowIndex),
		knownSheets:        make(map[string]bool),
	}
}

func loadCredentials(cfg Config) ([]byte, error) {
	switch {
	case cfg.CredentialsJSON != "":
		return []byte(cfg.CredentialsJSON), nil
	case cfg.CredentialsFile != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
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
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// SheetName returns the sheet holding entries of year.
func (c *Client) SheetName(year int) string {
	return yearPrefixedName(c.sheetBase, year)
}

// UpsertRow implements ports.EntryMirror.
func (c *Client) UpsertRow(ctx context.Context, userID string, e core.DayEntry, updatedAt time.Time) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	sheet := c.SheetName(e.Date.Year())
	if err := c.ensureSheet(ctx, sheet); err != nil {
		return err
	}
	idx, err := c.rowIndex(ctx, sheet)
	if err != nil {
		return err
	}

	key := ports.Key(userID, e.Date)
	row, found := idx.keys[key]
	if !found {
		if idx.rowCount == 0 {
			if err := c.writeRow(ctx, sheet, 1, headerValues()); err != nil {
				c.InvalidateRowCache()
				return err
			}
			c.mu.Lock()
			idx.rowCount = 1
			c.mu.Unlock()
		}
		row = idx.rowCount + 1
	}

	if err := c.writeRow(ctx, sheet, row, ports.NewRow(userID, e, updatedAt).Values()); err != nil {
		c.InvalidateRowCache()
		return err
	}

	c.mu.Lock()
	idx.keys[key] = row
	idx.rowCount = max(idx.rowCount, row)
	c.mu.Unlock()

	slog.InfoContext(ctx, "Mirrored mood entry",
		"component", "sheets", "sheet", sheet, "row", row, "user_id", userID, "date", e.Date, "appended", !found)
	return nil
}

// DeleteRow implements ports.EntryMirror. The row is cleared, not removed, so the
// row numbers of other entries stay valid.
func (c *Client) DeleteRow(ctx context.Context, userID string, date core.DateKey) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	sheet := c.SheetName(date.Year())
	if err := c.ensureSheet(ctx, sheet); err != nil {
		return err
	}
	idx, err := c.rowIndex(ctx, sheet)
	if err != nil {
		return err
	}

	key := ports.Key(userID, date)
	row, found := idx.keys[key]
	if !found {
		slog.DebugContext(ctx, "No mirrored row to clear", "component", "sheets", "sheet", sheet, "user_id", userID, "date", date)
		return nil
	}

	rng := rowRange(sheet, row)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		c.InvalidateRowCache()
		return fmt.Errorf("clear %s: %w", rng, err)
	}

	c.mu.Lock()
	delete(idx.keys, key)
	c.mu.Unlock()

	slog.InfoContext(ctx, "Cleared mirrored mood entry", "component", "sheets", "sheet", sheet, "row", row, "user_id", userID, "date", date)
	return nil
}

// Rows implements ports.MirrorReader.
func (c *Client) Rows(ctx context.Context, userID string, year int) ([]ports.Row, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:E", c.SheetName(year))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	var out []ports.Row
	for _, r := range parseRows(resp.Values) {
		if userID == "" || r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Years implements ports.MirrorReader.
func (c *Client) Years(ctx context.Context) ([]int, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet: %w", err)
	}
	var years []int
	for _, s := range ss.Sheets {
		if s.Properties == nil || len(s.Properties.Title) < 4 {
			continue
		}
		y, err := strconv.Atoi(s.Properties.Title[:4])
		if err != nil || c.SheetName(y) != s.Properties.Title {
			continue
		}
		years = append(years, y)
	}
	slices.Sort(years)
	return years, nil
}

// InvalidateRowCache forces the next write to re-read row positions.
func (c *Client) InvalidateRowCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, idx := range c.indexes {
		idx.expiresAt = time.Time{}
	}
}

func (c *Client) rowIndex(ctx context.Context, sheet string) (*rowIndex, error) {
	c.mu.Lock()
	idx, ok := c.indexes[sheet]
	if ok && time.Now().Before(idx.expiresAt) {
		c.mu.Unlock()
		return idx, nil
	}
	c.mu.Unlock()

	rng := fmt.Sprintf("%s!A:B", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	idx = buildRowIndex(resp.Values)
	idx.expiresAt = time.Now().Add(c.cacheValidDuration)

	c.mu.Lock()
	c.indexes[sheet] = idx
	c.mu.Unlock()
	return idx, nil
}

// ensureSheet creates the sheet of a year the first time it is written to.
func (c *Client) ensureSheet(ctx context.Context, sheet string) error {
	c.mu.Lock()
	known := c.knownSheets[sheet]
	c.mu.Unlock()
	if known {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	exists := false
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == sheet {
			exists = true
			break
		}
	}
	if !exists {
		req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: sheet}},
		}}}
		if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("add sheet %s: %w", sheet, err)
		}
		slog.InfoContext(ctx, "Created mirror sheet", "component", "sheets", "sheet", sheet)
	}

	c.mu.Lock()
	c.knownSheets[sheet] = true
	c.mu.Unlock()
	return nil
}

func (c *Client) writeRow(ctx context.Context, sheet string, row int, values []any) error {
	rng := rowRange(sheet, row)
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

func rowRange(sheet string, row int) string {
	return fmt.Sprintf("%s!A%d:E%d", sheet, row, row)
}

func headerValues() []any {
	out := make([]any, len(ports.Header))
	for i, h := range ports.Header {
		out[i] = h
	}
	return out
}

// buildRowIndex indexes the (user_id, date) columns of a sheet. Blank rows still
// count towards rowCount so appends never overwrite them.
func buildRowIndex(values [][]any) *rowIndex {
	idx := &rowIndex{keys: make(map[string]int), rowCount: len(values)}
	for i, row := range values {
		cols := toStrings(row)
		if len(cols) < 2 {
			continue
		}
		date, err := core.ParseDateKey(cols[1])
		if err != nil || cols[0] == "" {
			continue
		}
		idx.keys[ports.Key(cols[0], date)] = i + 1
	}
	return idx
}

// parseRows converts A:E values into rows, skipping the header and blank rows.
func parseRows(values [][]any) []ports.Row {
	var out []ports.Row
	for _, row := range values {
		cols := toStrings(row)
		if len(cols) < 3 {
			continue
		}
		date, err := core.ParseDateKey(cols[1])
		if err != nil {
			continue
		}
		mood, err := core.ParseMood(cols[2])
		if err != nil {
			continue
		}
		out = append(out, ports.Row{
			UserID:    cols[0],
			Date:      date,
			Mood:      mood,
			Comment:   safeGet(cols, 3),
			UpdatedAt: safeGet(cols, 4),
		})
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
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
