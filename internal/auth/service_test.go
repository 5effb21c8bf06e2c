package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"moodtracker/internal/core"
	"moodtracker/internal/ledger"
	"moodtracker/internal/storage/memory"
)

func newTestService(t *testing.T) (*Service, *[]ledger.AuthEvent) {
	t.Helper()
	svc := NewService(memory.New(), NewTokenIssuer("test-secret", time.Hour), WithBcryptCost(bcrypt.MinCost))
	var events []ledger.AuthEvent
	svc.Subscribe(func(_ context.Context, ev ledger.AuthEvent) error {
		events = append(events, ev)
		return nil
	})
	return svc, &events
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		confirm  string
		field    string
	}{
		{"too short", "short", "short", "password"},
		{"seven chars", "1234567", "1234567", "password"},
		{"mismatch", "longenough", "longenougH", "confirm_password"},
		{"ok", "longenough", "longenough", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password, tt.confirm)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			var ve *core.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	svc, events := newTestService(t)

	sess, err := svc.SignUp(ctx, SignUpInput{
		Email:           " Ada@Example.com ",
		Password:        "correct horse",
		ConfirmPassword: "correct horse",
		FullName:        "Ada",
	})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if sess.User.Email != "ada@example.com" || sess.Token == "" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if len(*events) != 1 || (*events)[0] != (ledger.AuthEvent{Kind: ledger.SignedIn, UserID: sess.User.ID}) {
		t.Fatalf("events = %+v", *events)
	}

	userID, err := svc.Authenticate(sess.Token)
	if err != nil || userID != sess.User.ID {
		t.Fatalf("Authenticate = %q, %v", userID, err)
	}

	if _, err := svc.SignIn(ctx, "ada@example.com", "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.SignIn(ctx, "nobody@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
	again, err := svc.SignIn(ctx, "ADA@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if again.User.ID != sess.User.ID {
		t.Fatalf("signed in as %s, want %s", again.User.ID, sess.User.ID)
	}
}

func TestSignUpRejectsBeforeStoring(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewService(store, NewTokenIssuer("s", time.Hour), WithBcryptCost(bcrypt.MinCost))

	_, err := svc.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "short", ConfirmPassword: "short"})
	if !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = svc.SignUp(ctx, SignUpInput{Email: "not an email", Password: "longenough", ConfirmPassword: "longenough"})
	if !core.IsValidation(err) {
		t.Fatalf("expected validation error for email, got %v", err)
	}
	if _, err := store.UserByEmail(ctx, "a@example.com"); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("nothing should be stored, got %v", err)
	}

	in := SignUpInput{Email: "a@example.com", Password: "longenough", ConfirmPassword: "longenough"}
	if _, err := svc.SignUp(ctx, in); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SignUp(ctx, in); !errors.Is(err, core.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignOutRevokesToken(t *testing.T) {
	ctx := context.Background()
	svc, events := newTestService(t)

	sess, err := svc.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "longenough", ConfirmPassword: "longenough"})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.SignOut(ctx, sess.Token); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := svc.Authenticate(sess.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoked token accepted: %v", err)
	}
	last := (*events)[len(*events)-1]
	if last.Kind != ledger.SignedOut || last.UserID != sess.User.ID {
		t.Fatalf("last event = %+v", last)
	}
}

func TestUpdatePasswordAndProfile(t *testing.T) {
	ctx := context.Background()
	svc, events := newTestService(t)

	sess, err := svc.SignUp(ctx, SignUpInput{Email: "a@example.com", Password: "longenough", ConfirmPassword: "longenough"})
	if err != nil {
		t.Fatal(err)
	}
	id := sess.User.ID

	if err := svc.UpdatePassword(ctx, id, "newpassword", "different"); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := svc.UpdatePassword(ctx, id, "newpassword", "newpassword"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	if _, err := svc.SignIn(ctx, "a@example.com", "longenough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should fail, got %v", err)
	}
	if _, err := svc.SignIn(ctx, "a@example.com", "newpassword"); err != nil {
		t.Fatalf("new password: %v", err)
	}

	u, err := svc.UpdateProfile(ctx, id, "  Ada Lovelace ")
	if err != nil || u.FullName != "Ada Lovelace" {
		t.Fatalf("UpdateProfile = %+v, %v", u, err)
	}
	last := (*events)[len(*events)-1]
	if last != (ledger.AuthEvent{Kind: ledger.IdentityChanged, UserID: id}) {
		t.Fatalf("last event = %+v", last)
	}

	if _, err := svc.UpdateProfile(ctx, "missing", "x"); !errors.Is(err, core.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserJSONHidesPasswordHash(t *testing.T) {
	b, err := json.Marshal(core.User{ID: "1", PasswordHash: "secret-hash"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "secret-hash") {
		t.Fatalf("password hash leaked: %s", b)
	}
}

func TestTokenIssuer(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	token, expires, err := issuer.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expiry in the past: %v", expires)
	}

	claims, err := issuer.Parse(token)
	if err != nil || claims.UserID != "user-1" || claims.ID == "" {
		t.Fatalf("Parse = %+v, %v", claims, err)
	}

	if _, err := NewTokenIssuer("other", time.Hour).Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret accepted: %v", err)
	}
	if _, err := issuer.Parse("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage accepted: %v", err)
	}

	expired := NewTokenIssuer("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.Issue("user-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := issuer.Parse(old); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}
}
