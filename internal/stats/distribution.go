// Package stats derives read-only views from a ledger snapshot. Everything here is
// a pure function of its inputs; nothing is cached.
package stats

import (
	"math"
	"time"

	"moodtracker/internal/core"
)

// Distribution is the per-mood breakdown of one year.
type Distribution struct {
	Year       int
	Counts     map[core.MoodType]int
	Total      int
	MostCommon core.MoodType // empty when Total is 0
}

// HasMostCommon reports whether a most common mood exists.
func (d Distribution) HasMostCommon() bool {
	return d.MostCommon != ""
}

// Percent returns the share of mood, in whole percent rounded half away from zero.
func (d Distribution) Percent(mood core.MoodType) int {
	if d.Total == 0 {
		return 0
	}
	return int(math.Round(float64(d.Counts[mood]) * 100 / float64(d.Total)))
}

// MaxCount is the largest single count, at least 1, for bar scaling.
func (d Distribution) MaxCount() int {
	maxCount := 1
	for _, c := range d.Counts {
		maxCount = max(maxCount, c)
	}
	return maxCount
}

// YearlyDistribution counts the entries whose date falls in year. Ties for the most
// common mood go to the mood listed first in core.Moods.
func YearlyDistribution(snap core.Snapshot, year int) Distribution {
	d := Distribution{Year: year, Counts: make(map[core.MoodType]int, len(core.Moods))}
	for _, m := range core.Moods {
		d.Counts[m] = 0
	}
	for date, e := range snap {
		if date.Year() != year || !e.Mood.Valid() {
			continue
		}
		d.Counts[e.Mood]++
		d.Total++
	}
	if d.Total == 0 {
		return d
	}
	best := 0
	for _, m := range core.Moods {
		if c := d.Counts[m]; c > best {
			best = c
			d.MostCommon = m
		}
	}
	return d
}

// EntriesForYear returns the entries of year ordered by date.
func EntriesForYear(snap core.Snapshot, year int) []core.DayEntry {
	var out []core.DayEntry
	for _, e := range snap.Sorted() {
		if e.Date.Year() == year {
			out = append(out, e)
		}
	}
	return out
}

// MonthlySlice returns the moods recorded in one month.
func MonthlySlice(snap core.Snapshot, year int, month time.Month) map[core.DateKey]core.MoodType {
	out := make(map[core.DateKey]core.MoodType)
	for date, e := range snap {
		if date.Year() == year && date.Month() == month {
			out[date] = e.Mood
		}
	}
	return out
}
