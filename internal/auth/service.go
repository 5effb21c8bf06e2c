// Package auth manages accounts and signed session tokens, and announces session
// transitions to the ledgers that depend on them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"moodtracker/internal/cache"
	"moodtracker/internal/core"
	"moodtracker/internal/ledger"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ErrInvalidCredentials is returned by SignIn for an unknown email or wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u core.User) error
	UserByEmail(ctx context.Context, email string) (core.User, error)
	UserByID(ctx context.Context, id string) (core.User, error)
	UpdateUser(ctx context.Context, u core.User) error
}

// EventHandler receives session transitions. On SignedOut, UserID names the
// user whose session ended.
type EventHandler func(ctx context.Context, ev ledger.AuthEvent) error

// Session is what a successful sign-up or sign-in hands back to the client.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      core.User `json:"user"`
}

// SignUpInput carries the sign-up form.
type SignUpInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	FullName        string
}

type Service struct {
	users    UserStore
	tokens   *TokenIssuer
	revoked  *cache.LRUCache[struct{}]
	handlers []EventHandler
	cost     int
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(users UserStore, tokens *TokenIssuer, opts ...Option) *Service {
	s := &Service{
		users:   users,
		tokens:  tokens,
		revoked: cache.NewLRUCache[struct{}](10000, tokens.ttl),
		cost:    bcrypt.DefaultCost,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers h for every later session transition.
func (s *Service) Subscribe(h EventHandler) {
	s.handlers = append(s.handlers, h)
}

// RevokedTokens exposes the revocation list so it can be swept periodically.
func (s *Service) RevokedTokens() cache.Cleaner {
	return s.revoked
}

// ValidatePassword enforces the password policy. Both checks run before any
// remote call.
func ValidatePassword(password, confirm string) error {
	if len(password) < MinPasswordLength {
		return core.NewValidationError("password", "must be at least %d characters", MinPasswordLength)
	}
	if password != confirm {
		return core.NewValidationError("confirm_password", "passwords do not match")
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return "", core.NewValidationError("email", "invalid email address")
	}
	return strings.ToLower(addr.Address), nil
}

// SignUp creates an account and signs it in.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return Session{}, err
	}
	if err := ValidatePassword(in.Password, in.ConfirmPassword); err != nil {
		return Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	u := core.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return Session{}, fmt.Errorf("sign up: %w", err)
	}

	slog.InfoContext(ctx, "Account created", "component", "auth", "user_id", u.ID)
	return s.startSession(ctx, u)
}

// SignIn checks credentials and issues a new token.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, ErrInvalidCredentials
	}

	u, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, core.ErrUserNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("sign in: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		slog.WarnContext(ctx, "Failed sign-in attempt", "component", "auth", "user_id", u.ID)
		return Session{}, ErrInvalidCredentials
	}

	return s.startSession(ctx, u)
}

// SignOut revokes the token and discards the user's ledger.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return err
	}
	s.revoked.Set(claims.ID, struct{}{})
	slog.InfoContext(ctx, "Signed out", "component", "auth", "user_id", claims.UserID)
	return s.emit(ctx, ledger.AuthEvent{Kind: ledger.SignedOut, UserID: claims.UserID})
}

// Authenticate returns the user a live token belongs to.
func (s *Service) Authenticate(token string) (string, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return "", err
	}
	if _, revoked := s.revoked.Get(claims.ID); revoked {
		return "", fmt.Errorf("%w: revoked", ErrInvalidToken)
	}
	return claims.UserID, nil
}

// UpdatePassword replaces the password of userID.
func (s *Service) UpdatePassword(ctx context.Context, userID, password, confirm string) error {
	if err := ValidatePassword(password, confirm); err != nil {
		return err
	}

	u, err := s.users.UserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	u.UpdatedAt = s.now().UTC()
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	slog.InfoContext(ctx, "Password updated", "component", "auth", "user_id", userID)
	return nil
}

// UpdateProfile changes the display name of userID and announces the new identity.
func (s *Service) UpdateProfile(ctx context.Context, userID, fullName string) (core.User, error) {
	u, err := s.users.UserByID(ctx, userID)
	if err != nil {
		return core.User{}, fmt.Errorf("update profile: %w", err)
	}
	u.FullName = strings.TrimSpace(fullName)
	u.UpdatedAt = s.now().UTC()
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return core.User{}, fmt.Errorf("update profile: %w", err)
	}

	slog.InfoContext(ctx, "Profile updated", "component", "auth", "user_id", userID)
	if err := s.emit(ctx, ledger.AuthEvent{Kind: ledger.IdentityChanged, UserID: userID}); err != nil {
		return u, err
	}
	return u, nil
}

// User returns the account of userID.
func (s *Service) User(ctx context.Context, userID string) (core.User, error) {
	return s.users.UserByID(ctx, userID)
}

func (s *Service) startSession(ctx context.Context, u core.User) (Session, error) {
	token, expires, err := s.tokens.Issue(u.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.emit(ctx, ledger.AuthEvent{Kind: ledger.SignedIn, UserID: u.ID}); err != nil {
		slog.WarnContext(ctx, "Session handler failed", "component", "auth", "user_id", u.ID, "error", err)
	}
	return Session{Token: token, ExpiresAt: expires, User: u}, nil
}

func (s *Service) emit(ctx context.Context, ev ledger.AuthEvent) error {
	var errs []error
	for _, h := range s.handlers {
		if err := h(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
