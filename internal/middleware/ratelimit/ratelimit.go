// Package ratelimit throttles requests per client with one token bucket each.
package ratelimit

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"moodtracker/internal/cache"
)

// Config holds rate limiter configuration
type Config struct {
	RequestsPerSecond float64
	Burst             int
	// MaxClients bounds the number of tracked buckets; the least recently seen
	// client is forgotten first.
	MaxClients int
	// IdleTTL is how long a silent client keeps its bucket.
	IdleTTL time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 1,
		Burst:             60,
		MaxClients:        10000,
		IdleTTL:           10 * time.Minute,
	}
}

// Limiter provides rate limiting functionality
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	clients *cache.LRUCache[*rate.Limiter]
	hits    atomic.Int64
}

// NewLimiter creates a new rate limiter. Zero fields fall back to DefaultConfig.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	return &Limiter{
		cfg:     cfg,
		clients: cache.NewLRUCache[*rate.Limiter](cfg.MaxClients, cfg.IdleTTL),
	}
}

// Allow checks if a request from the given IP should be allowed
func (l *Limiter) Allow(clientIP string) bool {
	l.mu.Lock()
	bucket, ok := l.clients.Get(clientIP)
	if !ok {
		bucket = rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)
	}
	// Set refreshes the idle deadline on every request.
	l.clients.Set(clientIP, bucket)
	l.mu.Unlock()

	if bucket.Allow() {
		return true
	}
	l.hits.Add(1)
	return false
}

// ActiveClients returns the number of currently tracked clients
func (l *Limiter) ActiveClients() int {
	return l.clients.Size()
}

// Hits is the number of rejected requests so far.
func (l *Limiter) Hits() int64 {
	return l.hits.Load()
}

// Cleaner exposes the bucket table to a cache.Manager sweep.
func (l *Limiter) Cleaner() cache.Cleaner {
	return l.clients
}

// Middleware creates HTTP middleware for rate limiting
func (l *Limiter) Middleware(extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(extractIP(r)) {
				w.Header().Set("Retry-After", "60")
				if onLimit != nil {
					onLimit(w, r)
				} else {
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
