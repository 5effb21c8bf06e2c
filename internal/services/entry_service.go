package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"moodtracker/internal/amqp"
	"moodtracker/internal/core"
)

// EntryStore is the persistence the service decorates.
type EntryStore interface {
	FetchAll(ctx context.Context, userID string) ([]core.DayEntry, error)
	Upsert(ctx context.Context, userID string, e core.DayEntry) error
	Delete(ctx context.Context, userID string, date core.DateKey) error
}

// Publisher announces committed changes.
type Publisher interface {
	PublishEntryChanged(ctx context.Context, msg *amqp.EntryChangedMessage) error
}

// EntryService writes entries to storage and, once a write succeeded, publishes an
// entry change for the mirror worker. It satisfies ledger.Persistence.
type EntryService struct {
	storage   EntryStore
	publisher Publisher
}

// NewEntryService wires storage and an optional publisher. A nil publisher skips
// change messages.
func NewEntryService(storage EntryStore, publisher Publisher) *EntryService {
	return &EntryService{
		storage:   storage,
		publisher: publisher,
	}
}

// FetchAll reads straight from storage.
func (s *EntryService) FetchAll(ctx context.Context, userID string) ([]core.DayEntry, error) {
	return s.storage.FetchAll(ctx, userID)
}

// Upsert saves the entry and publishes the change.
func (s *EntryService) Upsert(ctx context.Context, userID string, e core.DayEntry) error {
	// Save first; the mirror only ever sees committed rows.
	if err := s.storage.Upsert(ctx, userID, e); err != nil {
		return fmt.Errorf("save entry: %w", err)
	}

	if err := s.publish(ctx, amqp.NewUpsertMessage(userID, e)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish entry change",
			"user_id", userID, "date", e.Date, "op", amqp.OpUpsert, "error", err)
		// Don't fail the request - the entry is saved
	}
	return nil
}

// Delete removes the entry and publishes the change.
func (s *EntryService) Delete(ctx context.Context, userID string, date core.DateKey) error {
	if err := s.storage.Delete(ctx, userID, date); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}

	if err := s.publish(ctx, amqp.NewDeleteMessage(userID, date)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish entry change",
			"user_id", userID, "date", date, "op", amqp.OpDelete, "error", err)
	}
	return nil
}

func (s *EntryService) publish(ctx context.Context, msg *amqp.EntryChangedMessage) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not configured, skipping entry change")
		return nil
	}
	return s.publisher.PublishEntryChanged(ctx, msg)
}

// Close closes storage and publisher when they hold resources.
func (s *EntryService) Close() error {
	var errs []error

	if c, ok := s.storage.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close entry service: %w", err)
	}
	return nil
}
