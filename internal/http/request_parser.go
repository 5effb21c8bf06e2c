// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating request data: JSON
// bodies, path dates and the year/month/range query parameters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"moodtracker/internal/core"
	"moodtracker/internal/stats"
)

// MaxBodyBytes bounds every JSON request body.
const MaxBodyBytes = 64 << 10

// MonthParams holds parsed year/month values. Month is 0 when the whole year was asked.
type MonthParams struct {
	Year  int
	Month time.Month
}

// Contains reports whether date falls in the selected year and month.
func (p MonthParams) Contains(date core.DateKey) bool {
	if date.Year() != p.Year {
		return false
	}
	return p.Month == 0 || date.Month() == p.Month
}

// DecodeJSON reads one JSON object from r into dst. Unknown fields, trailing data
// and oversized bodies are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: body larger than %d bytes", errBadRequest, maxErr.Limit)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", errBadRequest)
		default:
			return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
		}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: body must hold a single JSON object", errBadRequest)
	}
	return nil
}

// ParseYear reads the "year" query parameter, defaulting to the year of now.
func ParseYear(query url.Values, now time.Time) (int, error) {
	v := strings.TrimSpace(query.Get("year"))
	if v == "" {
		return now.Year(), nil
	}
	y, err := strconv.Atoi(v)
	if err != nil || y < 1 || y > 9999 {
		return 0, core.NewValidationError("year", "%q is not a valid year", v)
	}
	return y, nil
}

// ParseMonthParams reads "year" and "month". Without either, the current month is
// selected; with a year alone, the whole year.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	yearSet := strings.TrimSpace(query.Get("year")) != ""
	year, err := ParseYear(query, now)
	if err != nil {
		return MonthParams{}, err
	}
	params := MonthParams{Year: year}

	v := strings.TrimSpace(query.Get("month"))
	switch {
	case v != "":
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return MonthParams{}, core.NewValidationError("month", "%q is not a month between 1 and 12", v)
		}
		params.Month = time.Month(m)
	case !yearSet:
		params.Month = now.Month()
	}
	return params, nil
}

// ParseDateParam reads the {date} path segment.
func ParseDateParam(r *http.Request) (core.DateKey, error) {
	raw := r.PathValue("date")
	date, err := core.ParseDateKey(raw)
	if err != nil {
		return "", core.NewValidationError("date", "%q is not a YYYY-MM-DD calendar date", raw)
	}
	return date, nil
}

// ParseTrendParams reads "range" and "ref". ref defaults to today.
func ParseTrendParams(query url.Values, now time.Time) (stats.TimeRange, core.DateKey, error) {
	rng, err := stats.ParseTimeRange(strings.TrimSpace(query.Get("range")))
	if err != nil {
		return "", "", core.NewValidationError("range", "%s", err)
	}

	ref := core.DateKeyOf(now)
	if v := strings.TrimSpace(query.Get("ref")); v != "" {
		if ref, err = core.ParseDateKey(v); err != nil {
			return "", "", core.NewValidationError("ref", "%q is not a YYYY-MM-DD calendar date", v)
		}
	}
	return rng, ref, nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
