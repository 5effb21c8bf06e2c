package legacy

import (
	"context"
	"fmt"
	"log/slog"

	"moodtracker/internal/core"
)

// Target receives imported entries. *ledger.Store satisfies it.
type Target interface {
	Upsert(ctx context.Context, date core.DateKey, mood core.MoodType, comment *string) error
}

// ImportResult summarizes an Import run.
type ImportResult struct {
	Imported int
	Skipped  int
}

// Import upserts every entry of snap into target, oldest first. Entries rejected as
// invalid are skipped. The first remote failure stops the run; entries already
// written stay written.
func Import(ctx context.Context, snap core.Snapshot, target Target) (ImportResult, error) {
	var res ImportResult
	for _, e := range snap.Sorted() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		comment := e.Comment
		err := target.Upsert(ctx, e.Date, e.Mood, &comment)
		switch {
		case err == nil:
			res.Imported++
		case core.IsValidation(err):
			res.Skipped++
			slog.WarnContext(ctx, "Skipping legacy entry", "component", "legacy", "date", e.Date, "error", err)
		default:
			return res, fmt.Errorf("import %s: %w", e.Date, err)
		}
	}
	slog.InfoContext(ctx, "Legacy snapshot imported",
		"component", "legacy", "imported", res.Imported, "skipped", res.Skipped)
	return res, nil
}
