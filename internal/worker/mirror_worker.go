package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"moodtracker/internal/amqp"
	"moodtracker/internal/core"
	"moodtracker/internal/sheets"
)

// EntrySource is the table the worker can read back when it has to rebuild the
// mirror from scratch.
type EntrySource interface {
	ListUserIDs(ctx context.Context) ([]string, error)
	FetchAll(ctx context.Context, userID string) ([]core.DayEntry, error)
}

// MirrorWorker applies entry change messages to a spreadsheet mirror.
type MirrorWorker struct {
	source EntrySource
	mirror sheets.EntryMirror

	mu          sync.Mutex
	lastApplied map[string]time.Time
}

func NewMirrorWorker(source EntrySource, mirror sheets.EntryMirror) *MirrorWorker {
	return &MirrorWorker{
		source:      source,
		mirror:      mirror,
		lastApplied: make(map[string]time.Time),
	}
}

// HandleEntryChanged processes a single entry change message from AMQP. Messages
// older than the last one applied for the same row are skipped, so a redelivered
// stale upsert cannot undo a newer delete.
func (w *MirrorWorker) HandleEntryChanged(ctx context.Context, msg *amqp.EntryChangedMessage) error {
	slog.InfoContext(ctx, "Processing entry change",
		"user_id", msg.UserID,
		"date", msg.Date,
		"op", msg.Op)

	key := sheets.Key(msg.UserID, msg.Date)
	if w.isStale(key, msg.Timestamp) {
		slog.WarnContext(ctx, "Skipping stale entry change",
			"user_id", msg.UserID, "date", msg.Date, "timestamp", msg.Timestamp)
		return nil
	}

	var err error
	switch msg.Op {
	case amqp.OpUpsert:
		err = w.mirror.UpsertRow(ctx, msg.UserID, msg.Entry(), msg.Timestamp)
	case amqp.OpDelete:
		err = w.mirror.DeleteRow(ctx, msg.UserID, msg.Date)
	default:
		return fmt.Errorf("unknown op %q", msg.Op)
	}
	if err != nil {
		return fmt.Errorf("mirror %s %s: %w", msg.Op, msg.Date, err)
	}

	w.markApplied(key, msg.Timestamp)
	return nil
}

// StartupResync mirrors every stored entry. It recovers rows missed while the
// worker was down or the broker dropped messages. When the mirror can be read
// back, rows with no stored entry are cleared too. Every row it touches is
// marked applied as of the start of the resync, so older messages still queued
// are skipped afterwards.
func (w *MirrorWorker) StartupResync(ctx context.Context) error {
	if w.source == nil {
		slog.WarnContext(ctx, "No entry source configured, skipping startup resync")
		return nil
	}

	// Taken before reading the source: anything queued earlier is already
	// reflected in what is read below.
	now := time.Now()
	userIDs, err := w.source.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users for resync: %w", err)
	}

	stored := make(map[string]bool)
	synced, cleared, failed := 0, 0, 0
	for _, userID := range userIDs {
		entries, err := w.source.FetchAll(ctx, userID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to read entries for resync", "user_id", userID, "error", err)
			failed++
			continue
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := sheets.Key(userID, e.Date)
			stored[key] = true
			if err := w.mirror.UpsertRow(ctx, userID, e, now); err != nil {
				slog.ErrorContext(ctx, "Failed to mirror entry during resync",
					"user_id", userID, "date", e.Date, "error", err)
				failed++
				continue
			}
			w.markApplied(key, now)
			synced++
		}
	}

	// A user whose entries could not be read would have every row cleared.
	if reader, ok := w.mirror.(sheets.MirrorReader); ok && failed == 0 {
		cleared, err = w.clearOrphans(ctx, reader, stored, now)
		if err != nil {
			return err
		}
	}

	slog.InfoContext(ctx, "Startup resync completed",
		"users", len(userIDs),
		"synced", synced,
		"cleared", cleared,
		"errors", failed)
	return nil
}

// clearOrphans deletes mirror rows whose (user, date) is not in stored.
func (w *MirrorWorker) clearOrphans(ctx context.Context, reader sheets.MirrorReader, stored map[string]bool, now time.Time) (int, error) {
	years, err := reader.Years(ctx)
	if err != nil {
		return 0, fmt.Errorf("list mirror years: %w", err)
	}
	cleared := 0
	for _, year := range years {
		rows, err := reader.Rows(ctx, "", year)
		if err != nil {
			return cleared, fmt.Errorf("read mirror rows of %d: %w", year, err)
		}
		for _, r := range rows {
			key := sheets.Key(r.UserID, r.Date)
			if stored[key] {
				continue
			}
			if err := w.mirror.DeleteRow(ctx, r.UserID, r.Date); err != nil {
				slog.ErrorContext(ctx, "Failed to clear orphan row during resync",
					"user_id", r.UserID, "date", r.Date, "error", err)
				continue
			}
			w.markApplied(key, now)
			cleared++
		}
	}
	return cleared, nil
}

func (w *MirrorWorker) isStale(key string, ts time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	last, ok := w.lastApplied[key]
	return ok && ts.Before(last)
}

func (w *MirrorWorker) markApplied(key string, ts time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ts.After(w.lastApplied[key]) {
		w.lastApplied[key] = ts
	}
}
