package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"moodtracker/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository is the remote table for mood entries and accounts. Driver errors
// on entry operations are wrapped with core.ErrRemoteUnavailable.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations on their own connection first; migrate closes it when done.
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w: %w", core.ErrRemoteUnavailable, err)
	}
	return nil
}

// FetchAll returns every entry of userID ordered by date.
func (r *SQLiteRepository) FetchAll(ctx context.Context, userID string) ([]core.DayEntry, error) {
	rows, err := r.queries.ListEntriesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w: %w", core.ErrRemoteUnavailable, err)
	}

	entries := make([]core.DayEntry, len(rows))
	for i, row := range rows {
		entries[i] = toDayEntry(row)
	}
	slog.DebugContext(ctx, "Mood entries fetched from SQLite", "user_id", userID, "count", len(entries))
	return entries, nil
}

// ListUserIDs returns every user that has at least one entry.
func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	ids, err := r.queries.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w: %w", core.ErrRemoteUnavailable, err)
	}
	return ids, nil
}

// GetEntry returns one stored entry, or core.ErrNoEntry.
func (r *SQLiteRepository) GetEntry(ctx context.Context, userID string, date core.DateKey) (core.DayEntry, error) {
	row, err := r.queries.GetEntry(ctx, userID, date.String())
	if errors.Is(err, sql.ErrNoRows) {
		return core.DayEntry{}, fmt.Errorf("get entry %s: %w", date, core.ErrNoEntry)
	}
	if err != nil {
		return core.DayEntry{}, fmt.Errorf("get entry: %w: %w", core.ErrRemoteUnavailable, err)
	}
	return toDayEntry(row), nil
}

// Upsert inserts or replaces the row keyed by (userID, e.Date).
func (r *SQLiteRepository) Upsert(ctx context.Context, userID string, e core.DayEntry) error {
	err := r.queries.UpsertEntry(ctx, UpsertEntryParams{
		UserID:    userID,
		Date:      e.Date.String(),
		Mood:      e.Mood.String(),
		Comment:   e.Comment,
		UpdatedAt: formatTime(r.now()),
	})
	if err != nil {
		return fmt.Errorf("upsert entry: %w: %w", core.ErrRemoteUnavailable, err)
	}

	slog.InfoContext(ctx, "Mood entry saved to SQLite",
		"user_id", userID,
		"date", e.Date,
		"mood", e.Mood)
	return nil
}

// Delete removes the row keyed by (userID, date). Deleting a missing row succeeds.
func (r *SQLiteRepository) Delete(ctx context.Context, userID string, date core.DateKey) error {
	n, err := r.queries.DeleteEntry(ctx, userID, date.String())
	if err != nil {
		return fmt.Errorf("delete entry: %w: %w", core.ErrRemoteUnavailable, err)
	}
	slog.InfoContext(ctx, "Mood entry deleted from SQLite", "user_id", userID, "date", date, "rows", n)
	return nil
}

// CreateUser stores a new account. core.ErrEmailTaken is returned for a duplicate email.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	err := r.queries.CreateUser(ctx, User{
		ID:           u.ID,
		Email:        u.Email,
		FullName:     u.FullName,
		PasswordHash: u.PasswordHash,
		CreatedAt:    formatTime(u.CreatedAt),
		UpdatedAt:    formatTime(u.UpdatedAt),
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("create user %s: %w", u.Email, core.ErrEmailTaken)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	slog.InfoContext(ctx, "User created", "user_id", u.ID)
	return nil
}

func (r *SQLiteRepository) UserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := r.queries.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return toCoreUser(u), nil
}

func (r *SQLiteRepository) UserByID(ctx context.Context, id string) (core.User, error) {
	u, err := r.queries.GetUserByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return toCoreUser(u), nil
}

// UpdateUser rewrites email, name and password hash of an existing account.
func (r *SQLiteRepository) UpdateUser(ctx context.Context, u core.User) error {
	n, err := r.queries.UpdateUser(ctx, User{
		ID:           u.ID,
		Email:        u.Email,
		FullName:     u.FullName,
		PasswordHash: u.PasswordHash,
		UpdatedAt:    formatTime(u.UpdatedAt),
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("update user %s: %w", u.ID, core.ErrEmailTaken)
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return core.ErrUserNotFound
	}
	return nil
}

func toDayEntry(row MoodEntry) core.DayEntry {
	return core.DayEntry{
		Date:    core.DateKey(row.Date),
		Mood:    core.MoodType(row.Mood),
		Comment: row.Comment,
	}
}

func toCoreUser(u User) core.User {
	return core.User{
		ID:           u.ID,
		Email:        u.Email,
		FullName:     u.FullName,
		PasswordHash: u.PasswordHash,
		CreatedAt:    parseTime(u.CreatedAt),
		UpdatedAt:    parseTime(u.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
