package http

import (
	"net/http"

	"moodtracker/internal/core"
	applog "moodtracker/internal/log"
	"moodtracker/internal/stats"
)

// entryDTO is the wire form of a core.DayEntry.
type entryDTO struct {
	Date    core.DateKey  `json:"date"`
	Mood    core.MoodType `json:"mood"`
	Rank    int           `json:"rank"`
	Comment string        `json:"comment,omitempty"`
}

func toEntryDTO(e core.DayEntry) entryDTO {
	return entryDTO{Date: e.Date, Mood: e.Mood, Rank: e.Mood.Rank(), Comment: e.Comment}
}

type upsertEntryRequest struct {
	Mood string `json:"mood"`
	// Comment is left untouched when absent.
	Comment *string `json:"comment"`
}

type commentRequest struct {
	Comment string `json:"comment"`
}

type entryListResponse struct {
	Year    int        `json:"year"`
	Month   int        `json:"month,omitempty"`
	Entries []entryDTO `json:"entries"`
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request, userID string) {
	params, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	l, err := s.ledgers.Ledger(r.Context(), userID)
	if err != nil {
		applog.LogError(r.Context(), "Failed to load ledger", err, applog.OpList, nil)
		ErrorFor(err).Notices(r).Write(w)
		return
	}

	resp := entryListResponse{Year: params.Year, Month: int(params.Month), Entries: []entryDTO{}}
	for _, e := range stats.EntriesForYear(l.Snapshot(), params.Year) {
		if params.Contains(e.Date) {
			resp.Entries = append(resp.Entries, toEntryDTO(e))
		}
	}
	NewJSONResponse().Data(resp).Write(w)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request, userID string) {
	date, err := ParseDateParam(r)
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	l, err := s.ledgers.Ledger(r.Context(), userID)
	if err != nil {
		ErrorFor(err).Notices(r).Write(w)
		return
	}

	e, ok := l.Get(date)
	if !ok {
		ErrorFor(core.ErrNoEntry).Write(w)
		return
	}
	NewJSONResponse().Data(toEntryDTO(e)).Write(w)
}

func (s *Server) handleUpsertEntry(w http.ResponseWriter, r *http.Request, userID string) {
	date, err := ParseDateParam(r)
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	var req upsertEntryRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		ErrorFor(err).Write(w)
		return
	}
	if req.Comment != nil {
		c := core.NormalizeComment(*req.Comment)
		req.Comment = &c
	}

	l, err := s.ledgers.Ledger(r.Context(), userID)
	if err != nil {
		ErrorFor(err).Notices(r).Write(w)
		return
	}
	mood := core.MoodType(req.Mood)
	if err := l.Upsert(r.Context(), date, mood, req.Comment); err != nil {
		ErrorFor(err).Notices(r).Write(w)
		return
	}

	applog.LogEntryChange(r.Context(), applog.OpUpsert, userID, date.String(), mood.String())
	e, _ := l.Get(date)
	NewJSONResponse().Data(toEntryDTO(e)).Notices(r).Write(w)
}

func (s *Server) handleSetComment(w http.ResponseWriter, r *http.Request, userID string) {
	date, err := ParseDateParam(r)
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	var req commentRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		ErrorFor(err).Write(w)
		return
	}

	l, err := s.ledgers.Ledger(r.Context(), userID)
	if err != nil {
		ErrorFor(err).Notices(r).Write(w)
		return
	}
	if err := l.SetComment(r.Context(), date, core.NormalizeComment(req.Comment)); err != nil {
		ErrorFor(err).Notices(r).Write(w)
		return
	}

	e, _ := l.Get(date)
	applog.LogEntryChange(r.Context(), applog.OpComment, userID, date.String(), e.Mood.String())
	NewJSONResponse().Data(toEntryDTO(e)).Notices(r).Write(w)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request, userID string) {
	date, err := ParseDateParam(r)
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	l, err := s.ledgers.Ledger(r.Context(), userID)
	if err != nil {
		ErrorFor(err).Notices(r).Write(w)
		return
	}
	if err := l.Remove(r.Context(), date); err != nil {
		ErrorFor(err).Notices(r).Write(w)
		return
	}

	applog.LogEntryChange(r.Context(), applog.OpDelete, userID, date.String(), "")
	NewJSONResponse().NoContent().Notices(r).Write(w)
}
