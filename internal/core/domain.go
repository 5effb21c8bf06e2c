package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// MaxCommentLength bounds the note attached to a day.
const MaxCommentLength = 1000

type (
	// DayEntry is the mood recorded for one calendar day.
	DayEntry struct {
		Date    DateKey
		Mood    MoodType
		Comment string
	}

	// ValidationError reports input rejected before any persistence call.
	ValidationError struct {
		Field   string
		Message string
	}
)

var (
	// ErrRemoteUnavailable wraps any failure of the persistence collaborator.
	ErrRemoteUnavailable = errors.New("remote storage unavailable")
	// ErrMalformedLocalData is returned when a local snapshot cannot be decoded.
	ErrMalformedLocalData = errors.New("malformed local data")
	// ErrNoEntry is returned when an operation needs an existing entry for a date.
	ErrNoEntry = errors.New("no entry for date")
)

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate reports the first invalid field of e as a *ValidationError.
func (e DayEntry) Validate() error {
	if !e.Date.Valid() {
		return NewValidationError("date", "%q is not a YYYY-MM-DD calendar date", e.Date)
	}
	if !e.Mood.Valid() {
		return NewValidationError("mood", "%q is not a known mood", e.Mood)
	}
	return ValidateComment(e.Comment)
}

// ValidateComment checks the length of a day note.
func ValidateComment(c string) error {
	if utf8.RuneCountInString(c) > MaxCommentLength {
		return NewValidationError("comment", "too long (max %d characters)", MaxCommentLength)
	}
	return nil
}

// NormalizeComment trims surrounding whitespace and control characters.
func NormalizeComment(c string) string {
	c = strings.TrimSpace(c)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, c)
}

// Snapshot is a read-only copy of one user's ledger, keyed by date.
type Snapshot map[DateKey]DayEntry

// Get returns the entry for date.
func (s Snapshot) Get(date DateKey) (DayEntry, bool) {
	e, ok := s[date]
	return e, ok
}

// Sorted returns the entries ordered by date.
func (s Snapshot) Sorted() []DayEntry {
	out := make([]DayEntry, 0, len(s))
	for _, e := range s {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b DayEntry) int {
		return strings.Compare(string(a.Date), string(b.Date))
	})
	return out
}
