package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/plexsync/internal/models"
	"github.com/desertthunder/plexsync/internal/scheduler"
	"github.com/desertthunder/plexsync/internal/shared"
	"github.com/desertthunder/plexsync/internal/tasks"
	"github.com/desertthunder/plexsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for a sync.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	opts, err := r.syncOptions(cmd)
	if err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(r.config.ResolvePath("logs/plexsync-tui.log"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	engine, err := r.syncEngine()
	if err != nil {
		return err
	}

	lock, err := r.acquireLock()
	if err != nil {
		return err
	}
	defer lock.Release()

	db, history, err := r.openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	record := func(result *tasks.Result) {
		run := models.NewSyncRun(scheduler.SourceTUI, result.Mode, result.DryRun, result.StartedAt)
		run.Finish(result.FinishedAt, result.Stats.Counts(), result.Err)
		if err := history.Record(run); err != nil {
			r.logger.Error("failed to record sync run", "error", err)
		}
	}

	model := ui.NewModel(ctx, engine, opts, record)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
