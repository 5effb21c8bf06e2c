package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"moodtracker/internal/cli"
	"moodtracker/internal/config"
	applog "moodtracker/internal/log"
)

var (
	style = flag.String("style", "", `output style: "" detects the terminal, "raw" prints Markdown, or a glamour style name`)
	width = flag.Int("width", 100, "word wrap width of rendered output")
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&importLegacyCmd{}, "data")
	commander.Register(&exportLegacyCmd{}, "data")
	commander.Register(&usersCmd{}, "data")
	commander.Register(&mirrorCmd{}, "data")
	commander.Register(&statsCmd{}, "reports")
	commander.Register(&monthCmd{}, "reports")
	commander.Register(&trendCmd{}, "reports")

	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadConfig((*config.Config).Validate)
	logger := cli.SetupLoggerTo(cfg, applog.ComponentCLI, os.Stderr)

	ctx, stop := cli.SignalContext(context.Background())
	status := commander.Execute(ctx, cfg)
	stop()
	_ = logger.Close()
	os.Exit(int(status))
}
