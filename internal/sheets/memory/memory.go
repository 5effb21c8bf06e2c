package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"moodtracker/internal/core"
	"moodtracker/internal/sheets"
)

// Mirror is an in-process spreadsheet. Rows keep their position once appended and
// deleted rows are blanked, as on a real sheet.
type Mirror struct {
	mu   sync.Mutex
	rows []sheets.Row
	ops  int
}

var (
	_ sheets.EntryMirror  = (*Mirror)(nil)
	_ sheets.MirrorReader = (*Mirror)(nil)
)

func New() *Mirror {
	return &Mirror{}
}

func (m *Mirror) UpsertRow(_ context.Context, userID string, e core.DayEntry, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++
	row := sheets.NewRow(userID, e, updatedAt)
	if i := m.find(userID, e.Date); i >= 0 {
		m.rows[i] = row
		return nil
	}
	m.rows = append(m.rows, row)
	return nil
}

func (m *Mirror) DeleteRow(_ context.Context, userID string, date core.DateKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++
	if i := m.find(userID, date); i >= 0 {
		m.rows[i] = sheets.Row{}
	}
	return nil
}

// Rows returns the non-blank rows of userID dated in year, in sheet order. An
// empty userID matches every user.
func (m *Mirror) Rows(_ context.Context, userID string, year int) ([]sheets.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sheets.Row
	for _, r := range m.rows {
		if r.UserID != "" && (userID == "" || r.UserID == userID) && r.Date.Year() == year {
			out = append(out, r)
		}
	}
	return out, nil
}

// Years returns the years that have at least one row.
func (m *Mirror) Years(_ context.Context) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var years []int
	for _, r := range m.rows {
		if r.UserID == "" {
			continue
		}
		if y := r.Date.Year(); !slices.Contains(years, y) {
			years = append(years, y)
		}
	}
	slices.Sort(years)
	return years, nil
}

// Len is the number of physical rows, blanks included.
func (m *Mirror) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// Ops counts the writes applied so far.
func (m *Mirror) Ops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops
}

func (m *Mirror) find(userID string, date core.DateKey) int {
	return slices.IndexFunc(m.rows, func(r sheets.Row) bool {
		return r.UserID == userID && r.Date == date
	})
}
