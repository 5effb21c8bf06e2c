// Package report renders ledger statistics as Markdown and, for terminals, through
// glamour.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"moodtracker/internal/core"
	"moodtracker/internal/legacy"
	"moodtracker/internal/sheets"
	"moodtracker/internal/stats"
)

// barWidth is the length of the longest bar in a distribution chart.
const barWidth = 20

// Stats renders the yearly distribution as a Markdown table.
func Stats(d stats.Distribution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Mood distribution %d\n\n", d.Year)
	if d.Total == 0 {
		b.WriteString("No moods recorded this year.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "**%d** days tracked", d.Total)
	if d.HasMostCommon() {
		fmt.Fprintf(&b, ", most often **%s**", d.MostCommon.Config().Label)
	}
	b.WriteString(".\n\n")

	b.WriteString("| Mood | Days | Share | |\n|---|---:|---:|---|\n")
	maxCount := d.MaxCount()
	for _, m := range core.Moods {
		n := d.Counts[m]
		bar := strings.Repeat("█", n*barWidth/maxCount)
		fmt.Fprintf(&b, "| %s | %d | %d%% | %s |\n", m.Config().Label, n, d.Percent(m), bar)
	}
	return b.String()
}

// Trend renders a trend window: its summary figures, then one line per day.
func Trend(rng stats.TimeRange, s stats.Series) string {
	sum := stats.Summarize(s)

	var b strings.Builder
	fmt.Fprintf(&b, "# Mood trend (%s)\n\n", rng)
	fmt.Fprintf(&b, "%s to %s, %d of %d days tracked.\n\n", sum.From, sum.To, sum.DaysTracked, sum.Days)
	fmt.Fprintf(&b, "- Trend: **%s**", trendLabel(sum.Trend))
	if sum.Trend != stats.TrendInsufficient {
		fmt.Fprintf(&b, " (%+.2f)", sum.Delta)
	}
	b.WriteString("\n")
	if sum.AverageMood != "" {
		fmt.Fprintf(&b, "- Average: **%s** (%.2f)\n", sum.AverageMood.Config().Label, sum.Average)
	}
	fmt.Fprintf(&b, "- Current streak: **%d** days\n", sum.Streak)

	// The year view is too long to list day by day.
	if s.Len() > 90 {
		return b.String()
	}
	b.WriteString("\n| Day | Mood | |\n|---|---|---|\n")
	for p := range s.All() {
		if !p.Tracked() {
			fmt.Fprintf(&b, "| %s | - | |\n", p.Date)
			continue
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", p.Date, p.Mood.Config().Label, strings.Repeat("●", p.Rank))
	}
	return b.String()
}

// Import renders the outcome of a legacy import.
func Import(userID, source string, res legacy.ImportResult) string {
	var b strings.Builder
	b.WriteString("# Legacy import\n\n")
	fmt.Fprintf(&b, "- User: `%s`\n- Source: `%s`\n- Imported: **%d**\n", userID, source, res.Imported)
	if res.Skipped > 0 {
		fmt.Fprintf(&b, "- Skipped (invalid): **%d**\n", res.Skipped)
	}
	return b.String()
}

// Month renders a Monday-first calendar of one month; untracked days show only
// their number.
func Month(year int, month time.Month, moods map[core.DateKey]core.MoodType) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s %d\n\n", month, year)
	fmt.Fprintf(&b, "%d days tracked.\n\n", len(moods))
	b.WriteString("| Mon | Tue | Wed | Thu | Fri | Sat | Sun |\n|---|---|---|---|---|---|---|\n")

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	days := first.AddDate(0, 1, -1).Day()
	lead := (int(first.Weekday()) + 6) % 7

	cells := make([]string, lead, lead+days+6)
	for d := 1; d <= days; d++ {
		cell := fmt.Sprint(d)
		if m, ok := moods[core.NewDateKey(year, month, d)]; ok {
			cell += " " + m.Config().Label
		}
		cells = append(cells, cell)
	}
	for len(cells)%7 != 0 {
		cells = append(cells, "")
	}
	for i := 0; i < len(cells); i += 7 {
		fmt.Fprintf(&b, "| %s |\n", strings.Join(cells[i:i+7], " | "))
	}
	return b.String()
}

// MirrorRows renders the spreadsheet rows held for one user and year.
func MirrorRows(userID string, year int, rows []sheets.Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Mirror of `%s`, %d\n\n", userID, year)
	if len(rows) == 0 {
		b.WriteString("No rows mirrored.\n")
		return b.String()
	}
	b.WriteString("| Date | Mood | Comment | Updated |\n|---|---|---|---|\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", r.Date, r.Mood, escapeCell(r.Comment), r.UpdatedAt)
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.NewReplacer("|", "\\|", "\n", " ").Replace(s)
}

func trendLabel(t stats.Trend) string {
	switch t {
	case stats.TrendImproving:
		return "improving"
	case stats.TrendDeclining:
		return "declining"
	case stats.TrendStable:
		return "stable"
	default:
		return "not enough data"
	}
}

// Renderer turns Markdown into terminal output.
type Renderer struct {
	term *glamour.TermRenderer
}

// NewRenderer builds a renderer. An empty style auto-detects the terminal; "raw"
// disables rendering so the Markdown is printed as is.
func NewRenderer(style string, width int) (*Renderer, error) {
	if style == "raw" {
		return &Renderer{}, nil
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	term, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return &Renderer{term: term}, nil
}

// Render returns md formatted for the terminal.
func (r *Renderer) Render(md string) (string, error) {
	if r.term == nil {
		return md, nil
	}
	out, err := r.term.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}
