package core

import (
	"errors"
	"fmt"
	"time"
)

// DateKeyLayout is the canonical layout of a date key.
const DateKeyLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date")

// DateKey identifies one calendar day in the user's local timezone, formatted YYYY-MM-DD.
type DateKey string

// ParseDateKey validates s as a real calendar day in canonical form.
func ParseDateKey(s string) (DateKey, error) {
	t, err := time.Parse(DateKeyLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidDate, s, err)
	}
	// time.Parse accepts some non-canonical inputs; require a round trip.
	if t.Format(DateKeyLayout) != s {
		return "", fmt.Errorf("%w %q: not canonical", ErrInvalidDate, s)
	}
	return DateKey(s), nil
}

// DateKeyOf formats t as a date key in its own location. Convert t with In(loc)
// first to key it in another timezone.
func DateKeyOf(t time.Time) DateKey {
	return DateKey(t.Format(DateKeyLayout))
}

// NewDateKey builds the key for year, month and day. Out-of-range values are
// normalized the way time.Date does it.
func NewDateKey(year int, month time.Month, day int) DateKey {
	return DateKeyOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// Valid reports whether k is a well-formed calendar date.
func (k DateKey) Valid() bool {
	_, err := ParseDateKey(string(k))
	return err == nil
}

// Time returns midnight of k in loc.
func (k DateKey) Time(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateKeyLayout, string(k), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidDate, k, err)
	}
	return t, nil
}

// Year returns the year of k, or 0 if k is malformed.
func (k DateKey) Year() int {
	t, err := time.Parse(DateKeyLayout, string(k))
	if err != nil {
		return 0
	}
	return t.Year()
}

// Month returns the month of k, or 0 if k is malformed.
func (k DateKey) Month() time.Month {
	t, err := time.Parse(DateKeyLayout, string(k))
	if err != nil {
		return 0
	}
	return t.Month()
}

// AddDays shifts k by n calendar days.
func (k DateKey) AddDays(n int) DateKey {
	t, err := time.Parse(DateKeyLayout, string(k))
	if err != nil {
		return k
	}
	return DateKeyOf(t.AddDate(0, 0, n))
}

// String implements fmt.Stringer
func (k DateKey) String() string {
	return string(k)
}
