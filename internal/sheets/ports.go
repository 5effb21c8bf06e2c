package sheets

import (
	"context"
	"time"

	"moodtracker/internal/core"
)

// Ports for the spreadsheet mirror.
type (
	// EntryMirror keeps one row per (user, date) in a spreadsheet.
	EntryMirror interface {
		// UpsertRow updates the row of (userID, e.Date) in place or appends it.
		UpsertRow(ctx context.Context, userID string, e core.DayEntry, updatedAt time.Time) error
		// DeleteRow clears the row of (userID, date). A missing row is not an error.
		DeleteRow(ctx context.Context, userID string, date core.DateKey) error
	}

	// MirrorReader lists what the mirror currently holds.
	MirrorReader interface {
		// Rows returns the rows of userID dated in year. An empty userID
		// selects every user.
		Rows(ctx context.Context, userID string, year int) ([]Row, error)
		// Years lists the years that have a sheet, in ascending order.
		Years(ctx context.Context) ([]int, error)
	}
)

// Header is the first row written to an empty mirror sheet.
var Header = []string{"user_id", "date", "mood", "comment", "updated_at"}

// Row is one mirrored entry as laid out in columns A to E.
type Row struct {
	UserID    string
	Date      core.DateKey
	Mood      core.MoodType
	Comment   string
	UpdatedAt string
}

// NewRow lays out e for userID.
func NewRow(userID string, e core.DayEntry, updatedAt time.Time) Row {
	return Row{
		UserID:    userID,
		Date:      e.Date,
		Mood:      e.Mood,
		Comment:   e.Comment,
		UpdatedAt: updatedAt.UTC().Format(time.RFC3339),
	}
}

// Values returns the cells of r in column order.
func (r Row) Values() []any {
	return []any{r.UserID, r.Date.String(), r.Mood.String(), r.Comment, r.UpdatedAt}
}

// Key identifies the row of (userID, date).
func Key(userID string, date core.DateKey) string {
	return userID + "|" + date.String()
}
