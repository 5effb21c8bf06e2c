package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"moodtracker/internal/auth"
	"moodtracker/internal/core"
	applog "moodtracker/internal/log"
	"moodtracker/internal/notify"
	"moodtracker/internal/sessions"
	"moodtracker/internal/storage/memory"
)

var fixedNow = time.Date(2025, time.March, 14, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	srv   *Server
	store *memory.Store
	reg   *sessions.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	svc := auth.NewService(store, auth.NewTokenIssuer("test-secret-0123456789", time.Hour), auth.WithBcryptCost(bcrypt.MinCost))
	reg := sessions.NewRegistry(store, notify.Contextual{}, 10, time.Hour)
	svc.Subscribe(reg.HandleAuth)

	logger := applog.New(applog.Config{Level: applog.DefaultConfig().Level, Output: &bytes.Buffer{}})
	opts := DefaultOptions()
	opts.Now = func() time.Time { return fixedNow }
	srv := NewServer(":0", Deps{Auth: svc, Ledgers: reg, Health: store, Logger: logger}, opts)
	return &testEnv{srv: srv, store: store, reg: reg}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) signUp(t *testing.T, email string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": "longenough", "confirm_password": "longenough", "full_name": "Test User",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup status=%d body=%s", rr.Code, rr.Body.String())
	}
	var session auth.Session
	decodeData(t, rr, &session)
	return session.Token
}

type testEnvelope struct {
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
	Notices []notify.Notice `json:"notices"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return env
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	env := decodeEnvelope(t, rr)
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Fatalf("%s missing request id", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("%s missing security headers: %v", path, rr.Header())
		}
	}

	env.store.FailWith(errors.New("disk gone"))
	if rr := env.do(t, http.MethodGet, "/readyz", "", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing store status=%d", rr.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/entries", "/api/entries/2025-03-14", "/api/stats", "/api/trends", "/api/auth/me"} {
		rr := env.do(t, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token status=%d", path, rr.Code)
		}
		if rr := env.do(t, http.MethodGet, path, "not-a-jwt", nil); rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s with bad token status=%d", path, rr.Code)
		}
	}
}

func TestSignUpValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name  string
		body  map[string]string
		code  int
		field string
	}{
		{"short password", map[string]string{"email": "a@example.com", "password": "short", "confirm_password": "short"}, http.StatusUnprocessableEntity, "password"},
		{"mismatch", map[string]string{"email": "a@example.com", "password": "longenough", "confirm_password": "different1"}, http.StatusUnprocessableEntity, "confirm_password"},
		{"bad email", map[string]string{"email": "nope", "password": "longenough", "confirm_password": "longenough"}, http.StatusUnprocessableEntity, "email"},
		{"unknown field", map[string]string{"email": "a@example.com", "nickname": "x"}, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/auth/signup", "", tt.body)
			if rr.Code != tt.code {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.code, rr.Body.String())
			}
			if e := decodeEnvelope(t, rr).Error; e == nil || e.Field != tt.field {
				t.Fatalf("unexpected error %+v", e)
			}
		})
	}

	env.signUp(t, "dup@example.com")
	rr := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "dup@example.com", "password": "longenough", "confirm_password": "longenough",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate signup status=%d", rr.Code)
	}
}

func TestSignInAndSignOut(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "me@example.com")

	rr := env.do(t, http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "me@example.com", "password": "wrongpass"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "ME@example.com", "password": "longenough"})
	if rr.Code != http.StatusOK {
		t.Fatalf("signin status=%d body=%s", rr.Code, rr.Body.String())
	}
	var session auth.Session
	decodeData(t, rr, &session)
	if env.reg.Len() != 1 {
		t.Fatalf("registry should hold the signed-in ledger, len=%d", env.reg.Len())
	}

	if rr := env.do(t, http.MethodPost, "/api/auth/signout", session.Token, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("signout status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/entries", session.Token, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token status=%d", rr.Code)
	}
	if env.reg.Len() != 0 {
		t.Fatalf("ledger not released on sign-out, len=%d", env.reg.Len())
	}
}

func TestEntryLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t, "entries@example.com")

	rr := env.do(t, http.MethodPut, "/api/entries/2025-03-14", token, map[string]any{"mood": "stable", "comment": "  good day "})
	if rr.Code != http.StatusOK {
		t.Fatalf("upsert status=%d body=%s", rr.Code, rr.Body.String())
	}
	env1 := decodeEnvelope(t, rr)
	if len(env1.Notices) != 1 || env1.Notices[0].Level != notify.LevelSuccess {
		t.Fatalf("expected one success notice, got %+v", env1.Notices)
	}
	var got entryDTO
	decodeData(t, rr, &got)
	if got.Mood != core.Stable || got.Comment != "good day" || got.Rank != core.Stable.Rank() {
		t.Fatalf("unexpected entry %+v", got)
	}

	// A mood change without a comment keeps the note.
	rr = env.do(t, http.MethodPut, "/api/entries/2025-03-14", token, map[string]any{"mood": "tired"})
	decodeData(t, rr, &got)
	if got.Mood != core.Tired || got.Comment != "good day" {
		t.Fatalf("comment not preserved: %+v", got)
	}

	rr = env.do(t, http.MethodPut, "/api/entries/2025-03-14/comment", token, map[string]string{"comment": "slept badly"})
	decodeData(t, rr, &got)
	if got.Comment != "slept badly" {
		t.Fatalf("comment not updated: %+v", got)
	}

	rr = env.do(t, http.MethodGet, "/api/entries/2025-03-14", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status=%d", rr.Code)
	}

	if rr := env.do(t, http.MethodDelete, "/api/entries/2025-03-14", token, nil); rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/entries/2025-03-14", token, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status=%d", rr.Code)
	}
}

func TestEntryValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t, "v@example.com")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		code   int
	}{
		{"bad date", http.MethodPut, "/api/entries/2025-02-30", map[string]string{"mood": "meh"}, http.StatusUnprocessableEntity},
		{"non canonical date", http.MethodGet, "/api/entries/2025-3-1", nil, http.StatusUnprocessableEntity},
		{"bad mood", http.MethodPut, "/api/entries/2025-03-01", map[string]string{"mood": "ecstatic"}, http.StatusUnprocessableEntity},
		{"capitalized mood", http.MethodPut, "/api/entries/2025-03-01", map[string]string{"mood": "Meh"}, http.StatusUnprocessableEntity},
		{"padded mood", http.MethodPut, "/api/entries/2025-03-01", map[string]string{"mood": " meh "}, http.StatusUnprocessableEntity},
		{"comment without mood", http.MethodPut, "/api/entries/2025-03-02/comment", map[string]string{"comment": "x"}, http.StatusNotFound},
		{"long comment", http.MethodPut, "/api/entries/2025-03-03", map[string]string{"mood": "meh", "comment": strings.Repeat("a", core.MaxCommentLength+1)}, http.StatusUnprocessableEntity},
		{"empty body", http.MethodPut, "/api/entries/2025-03-04", nil, http.StatusBadRequest},
		{"bad month", http.MethodGet, "/api/entries?year=2025&month=13", nil, http.StatusUnprocessableEntity},
		{"bad range", http.MethodGet, "/api/trends?range=2w", nil, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := env.do(t, tt.method, tt.path, token, tt.body); rr.Code != tt.code {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.code, rr.Body.String())
			}
		})
	}
}

func TestFailedWriteLeavesEntryAndReportsNotice(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t, "fail@example.com")
	env.do(t, http.MethodPut, "/api/entries/2025-03-10", token, map[string]string{"mood": "meh"})

	env.store.FailWith(errors.New("connection reset"))
	rr := env.do(t, http.MethodPut, "/api/entries/2025-03-10", token, map[string]string{"mood": "low"})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	got := decodeEnvelope(t, rr)
	if len(got.Notices) != 1 || got.Notices[0].Level != notify.LevelError {
		t.Fatalf("expected an error notice, got %+v", got.Notices)
	}
	env.store.FailWith(nil)

	var entry entryDTO
	decodeData(t, env.do(t, http.MethodGet, "/api/entries/2025-03-10", token, nil), &entry)
	if entry.Mood != core.Meh {
		t.Fatalf("failed write changed the ledger: %+v", entry)
	}
}

func TestListStatsAndTrends(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t, "stats@example.com")
	for date, mood := range map[string]string{
		"2025-03-12": "low",
		"2025-03-13": "meh",
		"2025-03-14": "exceptional",
		"2025-02-01": "meh",
		"2024-12-31": "stable",
	} {
		if rr := env.do(t, http.MethodPut, "/api/entries/"+date, token, map[string]string{"mood": mood}); rr.Code != http.StatusOK {
			t.Fatalf("seed %s status=%d", date, rr.Code)
		}
	}

	var list entryListResponse
	decodeData(t, env.do(t, http.MethodGet, "/api/entries", token, nil), &list)
	if list.Year != 2025 || list.Month != 3 || len(list.Entries) != 3 {
		t.Fatalf("current month listing = %+v", list)
	}
	decodeData(t, env.do(t, http.MethodGet, "/api/entries?year=2025", token, nil), &list)
	if len(list.Entries) != 4 || list.Entries[0].Date != "2025-02-01" {
		t.Fatalf("year listing = %+v", list)
	}

	var st statsResponse
	decodeData(t, env.do(t, http.MethodGet, "/api/stats?year=2025", token, nil), &st)
	if st.Total != 4 || st.MostCommon != core.Meh {
		t.Fatalf("stats = %+v", st)
	}
	for _, s := range st.Moods {
		if s.Mood == core.Meh && (s.Count != 2 || s.Percent != 50) {
			t.Fatalf("meh share = %+v", s)
		}
	}

	var tr trendResponse
	decodeData(t, env.do(t, http.MethodGet, "/api/trends?range=7d&ref=2025-03-14", token, nil), &tr)
	if tr.Days != 7 || len(tr.Points) != 7 || tr.From != "2025-03-08" || tr.Streak != 3 {
		t.Fatalf("trend = %+v", tr)
	}
	if tr.DaysTracked != 3 {
		t.Fatalf("days tracked = %d", tr.DaysTracked)
	}
}

func TestMoods(t *testing.T) {
	env := newTestEnv(t)
	var moods []moodDTO
	decodeData(t, env.do(t, http.MethodGet, "/api/moods", "", nil), &moods)
	if len(moods) != len(core.Moods) || moods[0].Type != core.Exceptional || moods[0].Label == "" {
		t.Fatalf("moods = %+v", moods)
	}
}

func TestProfileUpdate(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t, "p@example.com")

	var u core.User
	decodeData(t, env.do(t, http.MethodPut, "/api/auth/profile", token, map[string]string{"full_name": "  New Name "}), &u)
	if u.FullName != "New Name" {
		t.Fatalf("profile = %+v", u)
	}

	if rr := env.do(t, http.MethodPut, "/api/auth/password", token, map[string]string{"password": "newpassword", "confirm_password": "newpassword"}); rr.Code != http.StatusNoContent {
		t.Fatalf("password status=%d", rr.Code)
	}
	rr := env.do(t, http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "p@example.com", "password": "newpassword"})
	if rr.Code != http.StatusOK {
		t.Fatalf("signin with new password status=%d", rr.Code)
	}
}

func TestMethodNotAllowedAndRateLimit(t *testing.T) {
	env := newTestEnv(t)
	if rr := env.do(t, http.MethodPost, "/api/moods", "", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /api/moods status=%d", rr.Code)
	}

	opts := DefaultOptions()
	opts.RateLimit.Burst = 2
	opts.RateLimit.RequestsPerSecond = 0.001
	srv := NewServer(":0", Deps{Auth: nil, Ledgers: env.reg}, opts)
	codes := make([]int, 0, 3)
	for range 3 {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/signout", nil))
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusUnauthorized || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
	// Reads are never limited.
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz after limit status=%d", rr.Code)
	}
}
