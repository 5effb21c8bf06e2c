// Package ledger holds one user's date-keyed mood history in memory and keeps it
// consistent with a remote table. Every mutation is write-through: the remote call
// must succeed before the local snapshot changes, so a failed write never leaves
// memory and storage diverged.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"moodtracker/internal/core"
)

// State is the lifecycle phase of a Store.
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

var (
	// ErrNotReady is returned by mutations issued before a load completed.
	ErrNotReady = errors.New("ledger not ready")
	// ErrSuperseded is returned when the session changed while a call was in flight;
	// its result was discarded.
	ErrSuperseded = errors.New("ledger session superseded")
)

// Store is the authoritative in-memory view of one user's mood history.
// It is safe for concurrent use; remote calls run outside the lock.
type Store struct {
	persistence Persistence
	notifier    Notifier
	logger      *slog.Logger

	mu         sync.RWMutex
	state      State
	userID     string
	entries    map[core.DateKey]core.DayEntry
	generation uint64
	cancelLoad context.CancelFunc
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for remote failures and skipped rows.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty, uninitialized Store. A nil notifier discards notifications.
func New(p Persistence, n Notifier, opts ...Option) *Store {
	if n == nil {
		n = nopNotifier{}
	}
	s := &Store{
		persistence: p,
		notifier:    n,
		logger:      slog.Default(),
		entries:     make(map[core.DateKey]core.DayEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "ledger")
	return s
}

// State returns the current lifecycle phase.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// UserID returns the user whose history is loaded, or "" when signed out.
func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Len returns the number of tracked days.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Get looks up the entry for date. It has no side effects.
func (s *Store) Get(date core.DateKey) (core.DayEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[date]
	return e, ok
}

// Snapshot returns a copy of the current mapping.
func (s *Store) Snapshot() core.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.Snapshot(maps.Clone(s.entries))
}

// LoadAll replaces the mapping with every entry stored for userID. The mapping is
// cleared and the state is Loading while the fetch is in flight. A newer LoadAll or
// a Reset cancels this one; its result is then dropped and ErrSuperseded returned.
func (s *Store) LoadAll(ctx context.Context, userID string) error {
	if userID == "" {
		return core.NewValidationError("user_id", "required")
	}

	s.mu.Lock()
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	s.generation++
	gen := s.generation
	loadCtx, cancel := context.WithCancel(ctx)
	s.cancelLoad = cancel
	s.state = Loading
	s.userID = userID
	s.entries = make(map[core.DateKey]core.DayEntry)
	s.mu.Unlock()
	defer cancel()

	rows, err := s.persistence.FetchAll(loadCtx, userID)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "Discarding superseded load", "user_id", userID)
		return ErrSuperseded
	}
	s.cancelLoad = nil
	s.state = Ready
	if err != nil {
		s.mu.Unlock()
		err = remoteError("load entries", err)
		s.logger.ErrorContext(ctx, "Failed to load mood entries", "user_id", userID, "error", err)
		s.notifier.Error(ctx, "Failed to load your mood history", err)
		return err
	}
	entries := make(map[core.DateKey]core.DayEntry, len(rows))
	skipped := 0
	for _, row := range rows {
		if verr := row.Validate(); verr != nil {
			skipped++
			s.logger.WarnContext(ctx, "Skipping invalid stored entry",
				"user_id", userID, "date", row.Date, "error", verr)
			continue
		}
		entries[row.Date] = row
	}
	s.entries = entries
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Mood history loaded",
		"user_id", userID, "entries", len(entries), "skipped", skipped)
	return nil
}

// Upsert records mood for date. A nil comment keeps the comment already stored for
// that date. The remote write happens first; the snapshot changes only on success.
// Failures are logged and sent to the notifier; the returned error may be ignored.
func (s *Store) Upsert(ctx context.Context, date core.DateKey, mood core.MoodType, comment *string) error {
	if !date.Valid() {
		return core.NewValidationError("date", "%q is not a YYYY-MM-DD calendar date", date)
	}
	if !mood.Valid() {
		return core.NewValidationError("mood", "%q is not a known mood", mood)
	}

	userID, gen, prev, _, err := s.begin(date)
	if err != nil {
		return err
	}

	entry := core.DayEntry{Date: date, Mood: mood, Comment: prev.Comment}
	if comment != nil {
		entry.Comment = *comment
	}
	if err := core.ValidateComment(entry.Comment); err != nil {
		return err
	}

	if err := s.persistence.Upsert(ctx, userID, entry); err != nil {
		return s.fail(ctx, "Failed to save mood", "upsert entry", userID, date, err)
	}
	if err := s.commit(gen, func(m map[core.DateKey]core.DayEntry) { m[date] = entry }); err != nil {
		return err
	}
	s.notifier.Success(ctx, "Mood saved")
	return nil
}

// SetComment replaces the note of an existing entry. Days without a mood cannot
// carry a comment; ErrNoEntry is returned for them.
func (s *Store) SetComment(ctx context.Context, date core.DateKey, comment string) error {
	if err := core.ValidateComment(comment); err != nil {
		return err
	}
	userID, gen, prev, ok, err := s.begin(date)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("set comment for %s: %w", date, core.ErrNoEntry)
	}

	entry := prev
	entry.Comment = comment
	if err := s.persistence.Upsert(ctx, userID, entry); err != nil {
		return s.fail(ctx, "Failed to save note", "set comment", userID, date, err)
	}
	if err := s.commit(gen, func(m map[core.DateKey]core.DayEntry) { m[date] = entry }); err != nil {
		return err
	}
	s.notifier.Success(ctx, "Note saved")
	return nil
}

// Remove deletes the entry for date remotely, then locally.
func (s *Store) Remove(ctx context.Context, date core.DateKey) error {
	if !date.Valid() {
		return core.NewValidationError("date", "%q is not a YYYY-MM-DD calendar date", date)
	}
	userID, gen, _, _, err := s.begin(date)
	if err != nil {
		return err
	}

	if err := s.persistence.Delete(ctx, userID, date); err != nil {
		return s.fail(ctx, "Failed to clear mood", "delete entry", userID, date, err)
	}
	if err := s.commit(gen, func(m map[core.DateKey]core.DayEntry) { delete(m, date) }); err != nil {
		return err
	}
	s.notifier.Success(ctx, "Mood cleared")
	return nil
}

// Reset discards the mapping and cancels any in-flight load. Used on sign-out.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	s.generation++
	s.state = Uninitialized
	s.userID = ""
	s.entries = make(map[core.DateKey]core.DayEntry)
}

// HandleAuth reacts to a session lifecycle transition from the auth collaborator.
func (s *Store) HandleAuth(ctx context.Context, ev AuthEvent) error {
	switch ev.Kind {
	case SignedOut:
		s.Reset()
		s.logger.InfoContext(ctx, "Ledger discarded on sign-out")
		return nil
	case SignedIn:
		s.mu.RLock()
		same := s.userID == ev.UserID && s.state != Uninitialized
		s.mu.RUnlock()
		if same {
			return nil
		}
		return s.LoadAll(ctx, ev.UserID)
	case IdentityChanged:
		return s.LoadAll(ctx, ev.UserID)
	default:
		return fmt.Errorf("unknown auth event %d", ev.Kind)
	}
}

// begin captures the session a mutation belongs to.
func (s *Store) begin(date core.DateKey) (userID string, gen uint64, prev core.DayEntry, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Ready {
		return "", 0, core.DayEntry{}, false, fmt.Errorf("%w (state %s)", ErrNotReady, s.state)
	}
	prev, ok = s.entries[date]
	return s.userID, s.generation, prev, ok, nil
}

// commit applies a successful remote write unless the session changed meanwhile.
func (s *Store) commit(gen uint64, apply func(map[core.DateKey]core.DayEntry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return ErrSuperseded
	}
	apply(s.entries)
	return nil
}

func (s *Store) fail(ctx context.Context, notice, op, userID string, date core.DateKey, err error) error {
	err = remoteError(op, err)
	s.logger.ErrorContext(ctx, notice, "user_id", userID, "date", date, "error", err)
	s.notifier.Error(ctx, notice, err)
	return err
}

func remoteError(op string, err error) error {
	if errors.Is(err, core.ErrRemoteUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrRemoteUnavailable, err)
}
