package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/plexsync/internal/formatter"
	"github.com/desertthunder/plexsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// History prints recent runs, newest first, or exports them with --output.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	limit := cmd.Int("limit")
	if limit <= 0 {
		return fmt.Errorf("%w: --limit must be positive, got %d", shared.ErrInvalidArgument, limit)
	}

	db, history, err := r.openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := history.Recent(limit)
	if err != nil {
		return err
	}

	data, err := formatter.Export(runs, format)
	if err != nil {
		return err
	}

	if output := cmd.String("output"); output != "" {
		if err := formatter.WriteExport(data, output); err != nil {
			return err
		}
		r.logger.Info("history exported", "path", output, "runs", len(runs), "format", format)
		return r.writePlain("✓ Exported %d runs to %s\n", len(runs), output)
	}

	if len(runs) == 0 && format == formatter.FormatTable {
		return r.writePlain("No sync runs recorded yet.\n")
	}
	return r.writePlain("%s", data)
}
