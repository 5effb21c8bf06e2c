package ledger

import (
	"context"

	"moodtracker/internal/core"
)

// Ports for the collaborators a Store depends on.
type (
	// Persistence is the remote table keyed by (user, date).
	Persistence interface {
		FetchAll(ctx context.Context, userID string) ([]core.DayEntry, error)
		Upsert(ctx context.Context, userID string, e core.DayEntry) error
		Delete(ctx context.Context, userID string, date core.DateKey) error
	}

	// Notifier presents fire-and-forget outcomes to the user.
	Notifier interface {
		Success(ctx context.Context, msg string)
		Error(ctx context.Context, msg string, err error)
	}
)

// AuthEventKind is a session lifecycle transition.
type AuthEventKind int

const (
	SignedIn AuthEventKind = iota
	SignedOut
	IdentityChanged
)

func (k AuthEventKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case IdentityChanged:
		return "identity_changed"
	default:
		return "unknown"
	}
}

// AuthEvent is emitted by the authentication collaborator. On sign-out UserID, when
// set, names the user whose session ended; the Store ignores it.
type AuthEvent struct {
	Kind   AuthEventKind
	UserID string
}

type nopNotifier struct{}

func (nopNotifier) Success(context.Context, string)      {}
func (nopNotifier) Error(context.Context, string, error) {}
