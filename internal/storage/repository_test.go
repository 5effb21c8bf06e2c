package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"moodtracker/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "mood.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestMigrationsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mood.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()

	v, dirty, err := MigrationVersion(path)
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if v != 2 || dirty {
		t.Fatalf("version = %d dirty = %v, want 2 clean", v, dirty)
	}

	// Reopening an up-to-date database is a no-op.
	again, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	again.Close()
}

func TestUpsertKeepsOneRowPerDate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if err := repo.Upsert(ctx, "u1", core.DayEntry{Date: "2025-03-14", Mood: core.Stable, Comment: "ok"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Upsert(ctx, "u1", core.DayEntry{Date: "2025-03-14", Mood: core.Low}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Upsert(ctx, "u1", core.DayEntry{Date: "2025-03-13", Mood: core.Meh}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Upsert(ctx, "u2", core.DayEntry{Date: "2025-03-14", Mood: core.Exceptional}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	entries, err := repo.FetchAll(ctx, "u1")
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 rows for u1, got %d", len(entries))
	}
	if entries[0].Date != "2025-03-13" {
		t.Fatalf("rows not ordered by date: %v", entries)
	}
	if entries[1] != (core.DayEntry{Date: "2025-03-14", Mood: core.Low}) {
		t.Fatalf("second upsert should replace mood and comment, got %+v", entries[1])
	}

	ids, err := repo.ListUserIDs(ctx)
	if err != nil || len(ids) != 2 || ids[0] != "u1" || ids[1] != "u2" {
		t.Fatalf("ListUserIDs = %v, %v", ids, err)
	}

	e, err := repo.GetEntry(ctx, "u2", "2025-03-14")
	if err != nil || e.Mood != core.Exceptional {
		t.Fatalf("GetEntry = %+v, %v", e, err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if err := repo.Upsert(ctx, "u1", core.DayEntry{Date: "2025-03-14", Mood: core.Stable}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, "u1", "2025-03-14"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, "u1", "2025-03-14"); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
	if _, err := repo.GetEntry(ctx, "u1", "2025-03-14"); !errors.Is(err, core.ErrNoEntry) {
		t.Fatalf("expected ErrNoEntry, got %v", err)
	}
}

func TestClosedDatabaseIsRemoteUnavailable(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	repo.Close()

	if _, err := repo.FetchAll(ctx, "u1"); !errors.Is(err, core.ErrRemoteUnavailable) {
		t.Fatalf("FetchAll error = %v", err)
	}
	if err := repo.Upsert(ctx, "u1", core.DayEntry{Date: "2025-03-14", Mood: core.Stable}); !errors.Is(err, core.ErrRemoteUnavailable) {
		t.Fatalf("Upsert error = %v", err)
	}
	if err := repo.Ping(ctx); !errors.Is(err, core.ErrRemoteUnavailable) {
		t.Fatalf("Ping error = %v", err)
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	u := core.User{ID: "id-1", Email: "ada@example.com", FullName: "Ada", PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}
	if err := repo.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	dup := u
	dup.ID = "id-2"
	dup.Email = "ADA@example.com"
	if err := repo.CreateUser(ctx, dup); !errors.Is(err, core.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	got, err := repo.UserByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("UserByEmail: %v", err)
	}
	if got.ID != "id-1" || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected user %+v", got)
	}

	got.FullName = "Ada Lovelace"
	got.UpdatedAt = now.Add(time.Hour)
	if err := repo.UpdateUser(ctx, got); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	byID, err := repo.UserByID(ctx, "id-1")
	if err != nil || byID.FullName != "Ada Lovelace" {
		t.Fatalf("UserByID = %+v, %v", byID, err)
	}

	if _, err := repo.UserByID(ctx, "missing"); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := repo.UpdateUser(ctx, core.User{ID: "missing", Email: "x@example.com"}); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
