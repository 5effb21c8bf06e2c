package http

import (
	"net/http"

	"moodtracker/internal/core"
	applog "moodtracker/internal/log"
	"moodtracker/internal/stats"
)

type moodDTO struct {
	Type        core.MoodType `json:"type"`
	Label       string        `json:"label"`
	Description string        `json:"description"`
	Rank        int           `json:"rank"`
}

type moodShare struct {
	Mood    core.MoodType `json:"mood"`
	Count   int           `json:"count"`
	Percent int           `json:"percent"`
}

type statsResponse struct {
	Year       int           `json:"year"`
	Total      int           `json:"total"`
	MostCommon core.MoodType `json:"most_common,omitempty"`
	Moods      []moodShare   `json:"moods"`
}

type pointDTO struct {
	Date core.DateKey  `json:"date"`
	Mood core.MoodType `json:"mood,omitempty"`
	Rank int           `json:"rank,omitempty"`
}

type trendResponse struct {
	Range       stats.TimeRange `json:"range"`
	From        core.DateKey    `json:"from"`
	To          core.DateKey    `json:"to"`
	Days        int             `json:"days"`
	DaysTracked int             `json:"days_tracked"`
	Streak      int             `json:"streak"`
	Trend       stats.Trend     `json:"trend"`
	Delta       float64         `json:"delta"`
	Average     float64         `json:"average,omitempty"`
	AverageMood core.MoodType   `json:"average_mood,omitempty"`
	Points      []pointDTO      `json:"points"`
}

func handleMoods(w http.ResponseWriter, r *http.Request) {
	out := make([]moodDTO, 0, len(core.Moods))
	for _, m := range core.Moods {
		cfg := m.Config()
		out = append(out, moodDTO{Type: m, Label: cfg.Label, Description: cfg.Description, Rank: m.Rank()})
	}
	NewJSONResponse().Data(out).Write(w)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, userID string) {
	year, err := ParseYear(r.URL.Query(), s.now())
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	l, err := s.ledgers.Ledger(r.Context(), userID)
	if err != nil {
		applog.LogError(r.Context(), "Failed to load ledger", err, applog.OpStats, nil)
		ErrorFor(err).Notices(r).Write(w)
		return
	}

	d := stats.YearlyDistribution(l.Snapshot(), year)
	resp := statsResponse{Year: d.Year, Total: d.Total, MostCommon: d.MostCommon, Moods: make([]moodShare, 0, len(core.Moods))}
	for _, m := range core.Moods {
		resp.Moods = append(resp.Moods, moodShare{Mood: m, Count: d.Counts[m], Percent: d.Percent(m)})
	}
	NewJSONResponse().Data(resp).Write(w)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request, userID string) {
	rng, ref, err := ParseTrendParams(r.URL.Query(), s.now())
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	l, err := s.ledgers.Ledger(r.Context(), userID)
	if err != nil {
		applog.LogError(r.Context(), "Failed to load ledger", err, applog.OpTrend, nil)
		ErrorFor(err).Notices(r).Write(w)
		return
	}

	series := stats.TrendSeries(l.Snapshot(), rng.Days(), ref)
	sum := stats.Summarize(series)
	resp := trendResponse{
		Range:       rng,
		From:        sum.From,
		To:          sum.To,
		Days:        sum.Days,
		DaysTracked: sum.DaysTracked,
		Streak:      sum.Streak,
		Trend:       sum.Trend,
		Delta:       sum.Delta,
		Average:     sum.Average,
		AverageMood: sum.AverageMood,
		Points:      make([]pointDTO, 0, series.Len()),
	}
	for p := range series.All() {
		resp.Points = append(resp.Points, pointDTO{Date: p.Date, Mood: p.Mood, Rank: p.Rank})
	}
	NewJSONResponse().Data(resp).Write(w)
}
