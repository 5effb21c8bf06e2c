// Package http provides the JSON API server and its handlers.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"moodtracker/internal/auth"
	"moodtracker/internal/core"
	"moodtracker/internal/ledger"
	applog "moodtracker/internal/log"
	"moodtracker/internal/middleware/ratelimit"
	"moodtracker/internal/middleware/security"
	"moodtracker/internal/middleware/trace"
	"moodtracker/internal/notify"
)

// Authenticator is the account surface the API exposes.
type Authenticator interface {
	SignUp(ctx context.Context, in auth.SignUpInput) (auth.Session, error)
	SignIn(ctx context.Context, email, password string) (auth.Session, error)
	SignOut(ctx context.Context, token string) error
	Authenticate(token string) (string, error)
	UpdatePassword(ctx context.Context, userID, password, confirm string) error
	UpdateProfile(ctx context.Context, userID, fullName string) (core.User, error)
	User(ctx context.Context, userID string) (core.User, error)
}

// LedgerProvider hands out the loaded ledger of a user.
type LedgerProvider interface {
	Ledger(ctx context.Context, userID string) (*ledger.Store, error)
}

// HealthChecker reports whether the storage backend answers.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the server. Health may be nil.
type Deps struct {
	Auth    Authenticator
	Ledgers LedgerProvider
	Health  HealthChecker
	Logger  *applog.Logger
}

// Options tune the middleware stack.
type Options struct {
	RateLimit       ratelimit.Config
	Headers         security.HeadersConfig
	BlockSuspicious bool
	// Now is the clock used for default query values.
	Now func() time.Time
}

// DefaultOptions returns the production middleware settings.
func DefaultOptions() Options {
	return Options{
		RateLimit: ratelimit.DefaultConfig(),
		Headers:   security.DefaultHeadersConfig(),
		Now:       time.Now,
	}
}

// Server is the HTTP front of the mood tracker.
type Server struct {
	http.Server

	auth     Authenticator
	ledgers  LedgerProvider
	health   HealthChecker
	now      func() time.Time
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	detector := security.NewDetector(opts.BlockSuspicious)
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16,
		},
		auth:     deps.Auth,
		ledgers:  deps.Ledgers,
		health:   deps.Health,
		now:      opts.Now,
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		detector: detector,
		tracer:   trace.NewMiddleware(deps.Logger, detector.ExtractClientIP),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	mux.HandleFunc("POST /api/auth/signin", s.handleSignIn)
	mux.HandleFunc("POST /api/auth/signout", s.handleSignOut)
	mux.HandleFunc("GET /api/auth/me", s.requireAuth(s.handleMe))
	mux.HandleFunc("PUT /api/auth/password", s.requireAuth(s.handleUpdatePassword))
	mux.HandleFunc("PUT /api/auth/profile", s.requireAuth(s.handleUpdateProfile))

	mux.HandleFunc("GET /api/moods", handleMoods)
	mux.HandleFunc("GET /api/entries", s.requireAuth(s.handleListEntries))
	mux.HandleFunc("GET /api/entries/{date}", s.requireAuth(s.handleGetEntry))
	mux.HandleFunc("PUT /api/entries/{date}", s.requireAuth(s.handleUpsertEntry))
	mux.HandleFunc("PUT /api/entries/{date}/comment", s.requireAuth(s.handleSetComment))
	mux.HandleFunc("DELETE /api/entries/{date}", s.requireAuth(s.handleDeleteEntry))
	mux.HandleFunc("GET /api/stats", s.requireAuth(s.handleStats))
	mux.HandleFunc("GET /api/trends", s.requireAuth(s.handleTrends))

	var h http.Handler = mux
	h = withNotices(h)
	h = limitWrites(s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError().Write(w)
	})(h), h)
	h = detector.Middleware(h)
	h = security.Headers(opts.Headers)(h)
	h = s.tracer.Middleware(h)
	s.Handler = h

	return s
}

// limitWrites sends safe methods straight to direct and everything else through
// limited.
func limitWrites(limited, direct http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			direct.ServeHTTP(w, r)
		default:
			limited.ServeHTTP(w, r)
		}
	})
}

// RateLimiter exposes the limiter so its bucket table can be swept.
func (s *Server) RateLimiter() *ratelimit.Limiter {
	return s.limiter
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// withNotices gives each request its own notice recorder.
func withNotices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := notify.WithRecorder(r.Context(), &notify.Recorder{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "error", err)
			ErrorResponse(http.StatusServiceUnavailable, CodeUnavailable, "storage not ready").Write(w)
			return
		}
	}
	NewJSONResponse().Data(map[string]string{"status": "ready"}).Write(w)
}
