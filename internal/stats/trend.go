package stats

import (
	"fmt"
	"iter"

	"moodtracker/internal/core"
)

// Policy thresholds for TrendDirection.
const (
	MinTrendPoints = 4
	TrendThreshold = 0.2
	DefaultWindow  = 30
	YearWindowDays = 365
)

// Point is one calendar day of a trend series. Rank is 0 when the day has no data.
type Point struct {
	Date core.DateKey
	Mood core.MoodType
	Rank int
}

// Tracked reports whether the day has a mood.
func (p Point) Tracked() bool {
	return p.Rank > 0
}

// Series is a lazy, finite sequence of consecutive days. Ranging over it again
// recomputes it from the snapshot it was built with.
type Series struct {
	snap core.Snapshot
	days int
	end  core.DateKey
}

// TrendSeries covers windowDays consecutive days ending at (and including) ref.
// Missing days are kept as gaps.
func TrendSeries(snap core.Snapshot, windowDays int, ref core.DateKey) Series {
	if windowDays < 0 {
		windowDays = 0
	}
	return Series{snap: snap, days: windowDays, end: ref}
}

// Len is the number of days in the window.
func (s Series) Len() int { return s.days }

// All yields the days oldest first.
func (s Series) All() iter.Seq[Point] {
	return func(yield func(Point) bool) {
		for i := s.days - 1; i >= 0; i-- {
			date := s.end.AddDays(-i)
			p := Point{Date: date}
			if e, ok := s.snap[date]; ok {
				p.Mood = e.Mood
				p.Rank = e.Mood.Rank()
			}
			if !yield(p) {
				return
			}
		}
	}
}

// Points materializes the series.
func (s Series) Points() []Point {
	out := make([]Point, 0, s.days)
	for p := range s.All() {
		out = append(out, p)
	}
	return out
}

// Ranks returns the ranks of tracked days only, oldest first.
func (s Series) Ranks() []int {
	var out []int
	for p := range s.All() {
		if p.Tracked() {
			out = append(out, p.Rank)
		}
	}
	return out
}

// Streak counts consecutive tracked days from the most recent day backward. It is 0
// when the most recent day is a gap.
func Streak(s Series) int {
	points := s.Points()
	streak := 0
	for i := len(points) - 1; i >= 0; i-- {
		if !points[i].Tracked() {
			break
		}
		streak++
	}
	return streak
}

// Trend classifies the change between the older and newer half of a series.
type Trend string

const (
	TrendInsufficient Trend = "insufficient_data"
	TrendImproving    Trend = "improving"
	TrendStable       Trend = "stable"
	TrendDeclining    Trend = "declining"
)

// TrendDirection splits the tracked values at floor(n/2) and compares the mean of
// the second half with the first. It also returns that difference.
func TrendDirection(s Series) (Trend, float64) {
	ranks := s.Ranks()
	if len(ranks) < MinTrendPoints {
		return TrendInsufficient, 0
	}
	mid := len(ranks) / 2
	delta := mean(ranks[mid:]) - mean(ranks[:mid])
	switch {
	case delta > TrendThreshold:
		return TrendImproving, delta
	case delta < -TrendThreshold:
		return TrendDeclining, delta
	default:
		return TrendStable, delta
	}
}

// Average is the mean rank over tracked days.
func Average(s Series) (float64, bool) {
	ranks := s.Ranks()
	if len(ranks) == 0 {
		return 0, false
	}
	return mean(ranks), true
}

// AverageMood rounds the mean rank half away from zero to the nearest mood.
func AverageMood(s Series) (core.MoodType, bool) {
	avg, ok := Average(s)
	if !ok {
		return "", false
	}
	return core.NearestMood(avg), true
}

// TrendSummary gathers the figures shown next to a trend chart.
type TrendSummary struct {
	From        core.DateKey
	To          core.DateKey
	Days        int
	DaysTracked int
	Streak      int
	Trend       Trend
	Delta       float64
	Average     float64
	AverageMood core.MoodType
}

// Summarize computes every figure of a TrendSummary in one call.
func Summarize(s Series) TrendSummary {
	sum := TrendSummary{
		To:          s.end,
		Days:        s.days,
		DaysTracked: len(s.Ranks()),
		Streak:      Streak(s),
	}
	if s.days > 0 {
		sum.From = s.end.AddDays(-(s.days - 1))
	}
	sum.Trend, sum.Delta = TrendDirection(s)
	if avg, ok := Average(s); ok {
		sum.Average = avg
		sum.AverageMood = core.NearestMood(avg)
	}
	return sum
}

// TimeRange is a named trend window.
type TimeRange string

const (
	Range7d   TimeRange = "7d"
	Range30d  TimeRange = "30d"
	Range90d  TimeRange = "90d"
	RangeYear TimeRange = "year"
)

// ParseTimeRange accepts 7d, 30d, 90d and year. An empty string selects 30d.
func ParseTimeRange(s string) (TimeRange, error) {
	switch TimeRange(s) {
	case "":
		return Range30d, nil
	case Range7d, Range30d, Range90d, RangeYear:
		return TimeRange(s), nil
	default:
		return "", fmt.Errorf("unknown time range %q (want 7d, 30d, 90d or year)", s)
	}
}

// Days is the window length of r.
func (r TimeRange) Days() int {
	switch r {
	case Range7d:
		return 7
	case Range90d:
		return 90
	case RangeYear:
		return YearWindowDays
	default:
		return DefaultWindow
	}
}

func mean(v []int) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0
	for _, x := range v {
		sum += x
	}
	return float64(sum) / float64(len(v))
}
