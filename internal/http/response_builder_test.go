package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"moodtracker/internal/auth"
	"moodtracker/internal/core"
	"moodtracker/internal/ledger"
	"moodtracker/internal/notify"
)

func TestErrorFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", core.NewValidationError("mood", "bad"), http.StatusUnprocessableEntity},
		{"bad request", fmt.Errorf("%w: empty body", errBadRequest), http.StatusBadRequest},
		{"credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{"token", fmt.Errorf("%w: expired", auth.ErrInvalidToken), http.StatusUnauthorized},
		{"no entry", fmt.Errorf("set comment: %w", core.ErrNoEntry), http.StatusNotFound},
		{"email taken", core.ErrEmailTaken, http.StatusConflict},
		{"superseded", ledger.ErrSuperseded, http.StatusConflict},
		{"remote", fmt.Errorf("upsert: %w: timeout", core.ErrRemoteUnavailable), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			ErrorFor(tt.err).Write(rr)
			if rr.Code != tt.code {
				t.Fatalf("status=%d want %d", rr.Code, tt.code)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
				t.Fatalf("content type %q", ct)
			}
		})
	}
}

func TestValidationErrorCarriesField(t *testing.T) {
	rr := httptest.NewRecorder()
	ErrorFor(core.NewValidationError("confirm_password", "does not match")).Write(rr)

	var env testEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Error == nil || env.Error.Code != CodeValidation || env.Error.Field != "confirm_password" {
		t.Fatalf("error = %+v", env.Error)
	}
}

func TestNoContentKeepsNotices(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rr := httptest.NewRecorder()
	NewJSONResponse().NoContent().Notices(req).Write(rr)
	if rr.Code != http.StatusNoContent || rr.Body.Len() != 0 {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	rec := &notify.Recorder{}
	rec.Success(context.Background(), "Mood cleared")
	req = req.WithContext(notify.WithRecorder(req.Context(), rec))
	rr = httptest.NewRecorder()
	NewJSONResponse().NoContent().Notices(req).Write(rr)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var env testEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil || len(env.Notices) != 1 {
		t.Fatalf("notices = %+v, %v", env.Notices, err)
	}
}
