// Package memory is a map-backed stand-in for the SQLite store, used by tests and
// the memory backend.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"moodtracker/internal/core"
)

type Store struct {
	mu      sync.Mutex
	entries map[string]map[core.DateKey]core.DayEntry
	users   map[string]core.User
	failErr error
}

func New() *Store {
	return &Store{
		entries: make(map[string]map[core.DateKey]core.DayEntry),
		users:   make(map[string]core.User),
	}
}

// FailWith makes every entry operation return err wrapped with
// core.ErrRemoteUnavailable until it is called again with nil.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

func (s *Store) failure(op string) error {
	if s.failErr == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrRemoteUnavailable, s.failErr)
}

// FetchAll returns the entries of userID ordered by date.
func (s *Store) FetchAll(_ context.Context, userID string) ([]core.DayEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("list entries"); err != nil {
		return nil, err
	}
	return core.Snapshot(s.entries[userID]).Sorted(), nil
}

func (s *Store) Upsert(_ context.Context, userID string, e core.DayEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("upsert entry"); err != nil {
		return err
	}
	rows, ok := s.entries[userID]
	if !ok {
		rows = make(map[core.DateKey]core.DayEntry)
		s.entries[userID] = rows
	}
	rows[e.Date] = e
	return nil
}

func (s *Store) Delete(_ context.Context, userID string, date core.DateKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("delete entry"); err != nil {
		return err
	}
	delete(s.entries[userID], date)
	return nil
}

func (s *Store) GetEntry(_ context.Context, userID string, date core.DateKey) (core.DayEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("get entry"); err != nil {
		return core.DayEntry{}, err
	}
	e, ok := s.entries[userID][date]
	if !ok {
		return core.DayEntry{}, fmt.Errorf("get entry %s: %w", date, core.ErrNoEntry)
	}
	return e, nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure("ping")
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("create user %s: %w", u.Email, core.ErrEmailTaken)
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return core.User{}, core.ErrUserNotFound
}

func (s *Store) UserByID(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.users[u.ID]
	if !ok {
		return core.ErrUserNotFound
	}
	for id, existing := range s.users {
		if id != u.ID && strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("update user %s: %w", u.ID, core.ErrEmailTaken)
		}
	}
	u.CreatedAt = prev.CreatedAt
	s.users[u.ID] = u
	return nil
}

// ListUserIDs returns every user that has at least one entry, sorted.
func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("list user ids"); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(s.entries))
	for id, rows := range s.entries {
		if len(rows) > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}
