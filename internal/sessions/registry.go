// Package sessions keeps one loaded ledger per signed-in user.
package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"moodtracker/internal/cache"
	"moodtracker/internal/ledger"
)

// Registry hands out a shared, loaded ledger.Store per user. Idle ledgers expire
// after the TTL and the least recently used one is dropped when the registry is
// full. Concurrent first requests for a user trigger a single load.
//
// Each user has an epoch bumped by sign-out and identity changes. A load started
// under an older epoch is discarded instead of cached.
type Registry struct {
	persistence ledger.Persistence
	notifier    ledger.Notifier
	ledgers     *cache.LRUCache[*ledger.Store]
	loads       singleflight.Group

	mu     sync.Mutex
	epochs map[string]uint64
}

func NewRegistry(p ledger.Persistence, n ledger.Notifier, maxUsers int, ttl time.Duration) *Registry {
	r := &Registry{
		persistence: p,
		notifier:    n,
		epochs:      make(map[string]uint64),
	}
	r.ledgers = cache.NewLRUCache[*ledger.Store](maxUsers, ttl).OnEvict(func(userID string, s *ledger.Store) {
		s.Reset()
		slog.Debug("Ledger released", "component", "sessions", "user_id", userID)
	})
	return r
}

// Ledger returns the ready ledger of userID, loading it on first use. A hit
// restarts the ledger's idle TTL. If the user signs out while the load runs,
// the loaded ledger is dropped and ledger.ErrSuperseded returned.
func (r *Registry) Ledger(ctx context.Context, userID string) (*ledger.Store, error) {
	if s, ok := r.ledgers.Touch(userID); ok && s.State() == ledger.Ready {
		return s, nil
	}

	epoch := r.epoch(userID)
	key := userID + "#" + strconv.FormatUint(epoch, 10)
	v, err, _ := r.loads.Do(key, func() (interface{}, error) {
		if s, ok := r.ledgers.Touch(userID); ok && s.State() == ledger.Ready {
			return s, nil
		}
		s := ledger.New(r.persistence, r.notifier)
		// The load is shared by every waiting caller, so one caller going away
		// must not abort it.
		if err := s.LoadAll(context.WithoutCancel(ctx), userID); err != nil {
			return nil, err
		}
		if !r.setIfCurrent(userID, epoch, s) {
			s.Reset()
			slog.InfoContext(ctx, "Discarded ledger loaded across a sign-out", "component", "sessions", "user_id", userID)
			return nil, ledger.ErrSuperseded
		}
		slog.InfoContext(ctx, "Ledger loaded", "component", "sessions", "user_id", userID, "entries", s.Len())
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load ledger for %s: %w", userID, err)
	}
	return v.(*ledger.Store), nil
}

func (r *Registry) epoch(userID string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epochs[userID]
}

// bump invalidates loads in flight for userID.
func (r *Registry) bump(userID string) {
	r.mu.Lock()
	r.epochs[userID]++
	r.mu.Unlock()
}

// setIfCurrent caches s unless userID's epoch moved on since the load began.
// The check and the insert happen under one lock so a concurrent sign-out either
// sees the ledger to delete or makes this call fail.
func (r *Registry) setIfCurrent(userID string, epoch uint64, s *ledger.Store) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epochs[userID] != epoch {
		return false
	}
	r.ledgers.Set(userID, s)
	return true
}

// HandleAuth applies a session transition to the registry.
func (r *Registry) HandleAuth(ctx context.Context, ev ledger.AuthEvent) error {
	switch ev.Kind {
	case ledger.SignedIn:
		_, err := r.Ledger(ctx, ev.UserID)
		return err
	case ledger.SignedOut:
		r.bump(ev.UserID)
		r.ledgers.Delete(ev.UserID)
		return nil
	case ledger.IdentityChanged:
		r.bump(ev.UserID)
		if s, ok := r.ledgers.Get(ev.UserID); ok {
			return s.HandleAuth(ctx, ev)
		}
		return nil
	default:
		return fmt.Errorf("unknown auth event %s", ev.Kind)
	}
}

// Len is the number of ledgers currently held.
func (r *Registry) Len() int {
	return r.ledgers.Size()
}

// Cleaner exposes the ledger cache to a cache.Manager.
func (r *Registry) Cleaner() cache.Cleaner {
	return r.ledgers
}
