// submodule cmd contains command definitions
package main

import (
	"strings"

	"github.com/desertthunder/plexsync/internal/formatter"
	"github.com/urfave/cli/v3"
)

// setupCommand handles setup operations for the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config file from the built-in template",
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "reset",
						Usage: "Roll back the latest migration and apply it again, clearing the sync history",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles Trakt authorization
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Trakt authorization",
		Commands: []*cli.Command{
			{
				Name:   "url",
				Usage:  "Print the Trakt authorization URL",
				Action: r.AuthURL,
			},
			{
				Name:  "pin",
				Usage: "Exchange the code Trakt displays after authorization",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "code"},
				},
				Action: r.AuthPIN,
			},
			{
				Name:  "login",
				Usage: "Authorize in the browser through a local callback server",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: defaultLoginTimeout,
					},
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the URL instead of opening a browser",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:  "status",
				Usage: "Show the saved Trakt token",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "verify",
						Usage: "Check the token against the Trakt API",
					},
				},
				Action: r.AuthStatus,
			},
		},
	}
}

// librariesCommand lists Plex library sections.
func librariesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "libraries",
		Aliases: []string{"libs"},
		Usage:   "List Plex libraries and whether they sync",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Libraries,
	}
}

func syncFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "dry-run",
			Aliases: []string{"n"},
			Usage:   "Plan writes without making them",
		},
		&cli.BoolFlag{
			Name:  "two-way",
			Usage: "Pull from Trakt, then push to Trakt",
		},
		&cli.StringFlag{
			Name:    "direction",
			Aliases: []string{"d"},
			Usage:   "One-way direction: push (Plex → Trakt) or pull (Trakt → Plex)",
		},
		&cli.StringSliceFlag{
			Name:    "library",
			Aliases: []string{"l"},
			Usage:   "Library name to sync (repeatable)",
		},
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Items per Trakt bulk request",
		},
	}
}

// syncCommand runs a single sync in the foreground.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run one sync between Plex and Trakt",
		Flags: append(syncFlags(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output the result as JSON",
			},
		),
		Action: r.Sync,
	}
}

// daemonCommand runs scheduled syncs with the status server.
func daemonCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Run syncs on the configured schedule and serve the status API",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "run-once",
				Usage: "Run one sync and exit",
			},
			&cli.StringFlag{
				Name:  "cron",
				Usage: "Override the schedule (standard five-field cron expression)",
			},
		},
		Action: r.Daemon,
	}
}

// historyCommand shows or exports past runs.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent sync runs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs",
				Value: 20,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: " + formatNames(),
				Value:   string(formatter.FormatTable),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the export to a file",
			},
		},
		Action: r.History,
	}
}

// tuiCommand returns the top-level TUI command for an interactive sync.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch an interactive sync",
		Flags:   syncFlags(),
		Action:  r.TUI,
	}
}

func formatNames() string {
	names := make([]string, len(formatter.Formats))
	for i, f := range formatter.Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
