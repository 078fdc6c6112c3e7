package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/plexsync/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger, ConfigPath: "config.toml"})

	app := newApp(runner)

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}

func newApp(runner *Runner) *cli.Command {
	return &cli.Command{
		Name:    "plexsync",
		Usage:   "Sync watched state, ratings and collections between Plex and Trakt",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("PLEXSYNC_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before:   runner.load,
		Commands: runner.register(),
	}
}
