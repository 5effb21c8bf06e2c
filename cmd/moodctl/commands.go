package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/subcommands"

	"moodtracker/internal/backend"
	"moodtracker/internal/config"
	"moodtracker/internal/core"
	"moodtracker/internal/ledger"
	"moodtracker/internal/legacy"
	"moodtracker/internal/notify"
	"moodtracker/internal/report"
	"moodtracker/internal/sheets"
	"moodtracker/internal/stats"
)

// session is an opened backend and, when a user was given, that user's loaded ledger.
type session struct {
	res    *backend.BackendResult
	ledger *ledger.Store
}

func (s *session) Close() {
	if err := s.res.Cleanup(); err != nil {
		slog.Warn("Backend cleanup failed", "error", err)
	}
}

// openSession connects to the configured backend. With a non-empty userID it also
// checks the account exists and loads its ledger.
func openSession(ctx context.Context, cfg *config.Config, userID string) (*session, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(nil).CreateBackend(ctx, bc)
	if err != nil {
		return nil, err
	}
	s := &session{res: res}
	if userID == "" {
		return s, nil
	}

	if _, err := res.Store.UserByID(ctx, userID); err != nil {
		s.Close()
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}
	s.ledger = ledger.New(res.Entries, notify.NewLog(nil))
	if err := s.ledger.LoadAll(ctx, userID); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// render prints md with the global style flags.
func render(md string) subcommands.ExitStatus {
	r, err := report.NewRenderer(*style, *width)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Print(out)
	return subcommands.ExitSuccess
}

func configFrom(args []interface{}) *config.Config {
	return args[0].(*config.Config)
}

type importLegacyCmd struct {
	user string
	file string
}

func (*importLegacyCmd) Name() string     { return "import-legacy" }
func (*importLegacyCmd) Synopsis() string { return "import a local mood snapshot into a user's ledger" }
func (*importLegacyCmd) Usage() string {
	return `import-legacy -user <id> [-file <path>]

  Reads a snapshot written by the single-device version of the tracker and
  upserts every entry into the user's ledger. Existing days are overwritten.
  Without -file, the snapshot under LEGACY_DATA_DIR is used.
`
}

func (c *importLegacyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "Target user ID (required)")
	f.StringVar(&c.file, "file", "", "Snapshot path")
}

func (c *importLegacyCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required.")
		return subcommands.ExitUsageError
	}
	cfg := configFrom(args)
	file := c.file
	if file == "" {
		file = legacy.Path(cfg.LegacyDataDir)
	}
	if _, err := os.Stat(file); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading snapshot: %v\n", err)
		return subcommands.ExitFailure
	}

	s, err := openSession(ctx, cfg, c.user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ledger: %v\n", err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	res, err := legacy.Import(ctx, legacy.Load(file), s.ledger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import stopped after %d entries: %v\n", res.Imported, err)
		return subcommands.ExitFailure
	}
	return render(report.Import(c.user, file, res))
}

type usersCmd struct{}

func (*usersCmd) Name() string             { return "users" }
func (*usersCmd) Synopsis() string         { return "list users with recorded moods" }
func (*usersCmd) Usage() string            { return "users\n" }
func (*usersCmd) SetFlags(_ *flag.FlagSet) {}

func (*usersCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	s, err := openSession(ctx, configFrom(args), "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening backend: %v\n", err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	ids, err := s.res.Store.ListUserIDs(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing users: %v\n", err)
		return subcommands.ExitFailure
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return subcommands.ExitSuccess
}

type statsCmd struct {
	user string
	year int
}

func (*statsCmd) Name() string     { return "stats" }
func (*statsCmd) Synopsis() string { return "show the yearly mood distribution of a user" }
func (*statsCmd) Usage() string {
	return `stats -user <id> [-year <yyyy>]
`
}

func (c *statsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "User ID (required)")
	f.IntVar(&c.year, "year", time.Now().Year(), "Year to summarize")
}

func (c *statsCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required.")
		return subcommands.ExitUsageError
	}
	s, err := openSession(ctx, configFrom(args), c.user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ledger: %v\n", err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	return render(report.Stats(stats.YearlyDistribution(s.ledger.Snapshot(), c.year)))
}

type trendCmd struct {
	user string
	rng  string
	ref  string
}

func (*trendCmd) Name() string     { return "trend" }
func (*trendCmd) Synopsis() string { return "show a user's mood trend over a window" }
func (*trendCmd) Usage() string {
	return `trend -user <id> [-range 7d|30d|90d|year] [-ref YYYY-MM-DD]

  The window ends at -ref, today by default.
`
}

func (c *trendCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "User ID (required)")
	f.StringVar(&c.rng, "range", string(stats.Range30d), "Window: 7d, 30d, 90d or year")
	f.StringVar(&c.ref, "ref", "", "Last day of the window")
}

func (c *trendCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required.")
		return subcommands.ExitUsageError
	}
	rng, err := stats.ParseTimeRange(c.rng)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	ref := core.DateKeyOf(time.Now())
	if c.ref != "" {
		if ref, err = core.ParseDateKey(c.ref); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
	}

	s, err := openSession(ctx, configFrom(args), c.user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ledger: %v\n", err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	return render(report.Trend(rng, stats.TrendSeries(s.ledger.Snapshot(), rng.Days(), ref)))
}

type exportLegacyCmd struct {
	user string
	file string
}

func (*exportLegacyCmd) Name() string     { return "export-legacy" }
func (*exportLegacyCmd) Synopsis() string { return "write a user's ledger as a local snapshot" }
func (*exportLegacyCmd) Usage() string {
	return `export-legacy -user <id> [-file <path>]

  Writes the ledger in the snapshot format read by import-legacy. An existing
  file is replaced.
`
}

func (c *exportLegacyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "Source user ID (required)")
	f.StringVar(&c.file, "file", "", "Snapshot path")
}

func (c *exportLegacyCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required.")
		return subcommands.ExitUsageError
	}
	cfg := configFrom(args)
	file := c.file
	if file == "" {
		file = legacy.Path(cfg.LegacyDataDir)
	}

	s, err := openSession(ctx, cfg, c.user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ledger: %v\n", err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	if err := legacy.Save(file, s.ledger.Snapshot()); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing snapshot: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(os.Stderr, "Wrote %d entries to %s\n", s.ledger.Len(), file)
	return subcommands.ExitSuccess
}

type monthCmd struct {
	user  string
	year  int
	month int
}

func (*monthCmd) Name() string     { return "month" }
func (*monthCmd) Synopsis() string { return "show a user's moods as a month calendar" }
func (*monthCmd) Usage() string {
	return `month -user <id> [-year <yyyy>] [-month <1-12>]
`
}

func (c *monthCmd) SetFlags(f *flag.FlagSet) {
	now := time.Now()
	f.StringVar(&c.user, "user", "", "User ID (required)")
	f.IntVar(&c.year, "year", now.Year(), "Year")
	f.IntVar(&c.month, "month", int(now.Month()), "Month, 1 to 12")
}

func (c *monthCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required.")
		return subcommands.ExitUsageError
	}
	if c.month < 1 || c.month > 12 {
		fmt.Fprintln(os.Stderr, "Error: -month must be between 1 and 12.")
		return subcommands.ExitUsageError
	}
	s, err := openSession(ctx, configFrom(args), c.user)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ledger: %v\n", err)
		return subcommands.ExitFailure
	}
	defer s.Close()

	m := time.Month(c.month)
	return render(report.Month(c.year, m, stats.MonthlySlice(s.ledger.Snapshot(), c.year, m)))
}

type mirrorCmd struct {
	user string
	year int
}

func (*mirrorCmd) Name() string     { return "mirror" }
func (*mirrorCmd) Synopsis() string { return "list the rows the spreadsheet mirror holds for a user" }
func (*mirrorCmd) Usage() string {
	return `mirror -user <id> [-year <yyyy>]

  Reads the mirror configured by MIRROR_BACKEND.
`
}

func (c *mirrorCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "User ID (required)")
	f.IntVar(&c.year, "year", time.Now().Year(), "Year sheet to read")
}

func (c *mirrorCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required.")
		return subcommands.ExitUsageError
	}
	mc, err := backend.MirrorFromAppConfig(configFrom(args))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	mirror, err := backend.NewFactory(nil).CreateMirror(ctx, mc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening mirror: %v\n", err)
		return subcommands.ExitFailure
	}
	reader, ok := mirror.(sheets.MirrorReader)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: mirror %q cannot be read back\n", mc.Type)
		return subcommands.ExitFailure
	}
	rows, err := reader.Rows(ctx, c.user, c.year)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading mirror: %v\n", err)
		return subcommands.ExitFailure
	}
	return render(report.MirrorRows(c.user, c.year, rows))
}
