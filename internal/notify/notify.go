// Package notify delivers the short success and failure notices a ledger emits
// after each mutation.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Level tells success notices from failures.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice is one delivered message.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Log writes notices to slog.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "notify")}
}

func (l *Log) Success(ctx context.Context, msg string) {
	l.logger.InfoContext(ctx, msg)
}

func (l *Log) Error(ctx context.Context, msg string, err error) {
	l.logger.WarnContext(ctx, msg, "error", err)
}

// Discard drops every notice.
type Discard struct{}

func (Discard) Success(context.Context, string)      {}
func (Discard) Error(context.Context, string, error) {}

// Recorder collects notices, typically for the lifetime of one request.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Success(_ context.Context, msg string) {
	r.add(Notice{Level: LevelSuccess, Message: msg})
}

func (r *Recorder) Error(_ context.Context, msg string, err error) {
	n := Notice{Level: LevelError, Message: msg}
	if err != nil {
		n.Detail = err.Error()
	}
	r.add(n)
}

func (r *Recorder) add(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

// Notices returns a copy of everything recorded so far.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

type recorderKey struct{}

// WithRecorder attaches r to ctx so a Contextual notifier can find it.
func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

// RecorderFrom returns the Recorder attached to ctx, if any.
func RecorderFrom(ctx context.Context) (*Recorder, bool) {
	r, ok := ctx.Value(recorderKey{}).(*Recorder)
	return r, ok
}

// Contextual forwards each notice to the Recorder found in the call's context and
// always to Fallback. A ledger shared by many requests uses it to route notices
// back to the request that caused them.
type Contextual struct {
	Fallback interface {
		Success(ctx context.Context, msg string)
		Error(ctx context.Context, msg string, err error)
	}
}

func (c Contextual) Success(ctx context.Context, msg string) {
	if r, ok := RecorderFrom(ctx); ok {
		r.Success(ctx, msg)
	}
	if c.Fallback != nil {
		c.Fallback.Success(ctx, msg)
	}
}

func (c Contextual) Error(ctx context.Context, msg string, err error) {
	if r, ok := RecorderFrom(ctx); ok {
		r.Error(ctx, msg, err)
	}
	if c.Fallback != nil {
		c.Fallback.Error(ctx, msg, err)
	}
}
