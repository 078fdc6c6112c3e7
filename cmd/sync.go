package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/plexsync/internal/scheduler"
	"github.com/desertthunder/plexsync/internal/shared"
	"github.com/desertthunder/plexsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// plannedPreview caps how many planned writes a plain-text dry run prints.
const plannedPreview = 25

type libraryOutput struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	Syncable bool   `json:"syncable"`
	Selected bool   `json:"selected"`
}

type syncOutput struct {
	State    string           `json:"state"`
	Mode     string           `json:"mode"`
	DryRun   bool             `json:"dry_run"`
	Duration float64          `json:"duration_seconds"`
	Stats    tasks.SyncStats  `json:"stats"`
	Planned  []tasks.Mutation `json:"planned,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// syncOptions builds run options from the [sync] config section, overridden by any flags set.
func (r *Runner) syncOptions(cmd *cli.Command) (tasks.Options, error) {
	opts, err := tasks.OptionsFromConfig(r.config.Sync, r.config.Plex.Libraries)
	if err != nil {
		return opts, err
	}

	if cmd.IsSet("dry-run") {
		opts.DryRun = cmd.Bool("dry-run")
	}
	if cmd.IsSet("two-way") {
		opts.TwoWay = cmd.Bool("two-way")
	}
	if cmd.IsSet("direction") {
		dir, err := tasks.ParseDirection(cmd.String("direction"))
		if err != nil {
			return opts, err
		}
		opts.Direction = dir
	}
	if cmd.IsSet("library") {
		opts.Libraries = cmd.StringSlice("library")
	}
	if cmd.IsSet("batch-size") {
		size := cmd.Int("batch-size")
		if size <= 0 {
			return opts, fmt.Errorf("%w: --batch-size must be positive, got %d", shared.ErrInvalidArgument, size)
		}
		opts.BatchSize = size
	}

	return opts, opts.Validate()
}

// Libraries lists the Plex library sections and marks the ones a sync would select.
func (r *Runner) Libraries(ctx context.Context, cmd *cli.Command) error {
	library, err := r.plexLibrary()
	if err != nil {
		return err
	}
	opts, err := tasks.OptionsFromConfig(r.config.Sync, r.config.Plex.Libraries)
	if err != nil {
		return err
	}

	libs, err := library.Libraries(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	out := make([]libraryOutput, 0, len(libs))
	for _, lib := range libs {
		out = append(out, libraryOutput{
			Key:      lib.Key,
			Title:    lib.Title,
			Type:     lib.Type,
			Syncable: lib.Syncable(),
			Selected: opts.Selects(lib),
		})
	}

	if cmd.Bool("json") {
		return r.writeJSON(out, true)
	}

	r.writePlain("Found %d libraries:\n\n", len(out))
	for i, lib := range out {
		mark := " "
		if lib.Selected {
			mark = "✓"
		}
		r.writePlain("%s %d. %s (%s, key %s)\n", mark, i+1, lib.Title, lib.Type, lib.Key)
	}
	return nil
}

// Sync runs one sync in the foreground and records it in the history.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	opts, err := r.syncOptions(cmd)
	if err != nil {
		return err
	}
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

	ctx, stop := r.interruptible(ctx)
	defer stop()

	sched := scheduler.New(engine, opts, history, r.logger)
	result, err := sched.RunNow(ctx, scheduler.SourceCLI)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if err := r.writeJSON(newSyncOutput(result), true); err != nil {
			return err
		}
	} else {
		r.printResult(result)
	}

	if !result.Success() {
		return fmt.Errorf("sync failed: %w", result.Err)
	}
	return nil
}

func newSyncOutput(result *tasks.Result) syncOutput {
	out := syncOutput{
		State:    result.State.String(),
		Mode:     result.Mode,
		DryRun:   result.DryRun,
		Duration: result.Duration().Seconds(),
		Stats:    result.Stats,
		Planned:  result.Planned,
	}
	if result.Err != nil {
		out.Error = result.Err.Error()
	}
	return out
}

func (r *Runner) printResult(result *tasks.Result) {
	title := "Sync complete"
	switch {
	case !result.Success():
		title = "Sync failed"
	case result.DryRun:
		title = "Dry run complete"
	}

	r.writePlainHeader(title)
	s := result.Stats
	r.writePlain("Mode:      %s\n", result.Mode)
	r.writePlain("Duration:  %s\n", result.Duration().Round(time.Millisecond))
	r.writePlain("Libraries: %d\n", s.Libraries)
	r.writePlain("Seen:      %d\n", s.Seen)
	r.writePlain("Matched:   %d\n", s.Matched)
	r.writePlain("Skipped:   %d\n", s.Skipped)
	if result.DryRun {
		r.writePlain("Planned:   %d\n", s.Planned)
	} else {
		r.writePlain("Mutated:   %d\n", s.Mutated)
	}
	if errs := s.Errors + s.FetchErrors; errs > 0 {
		r.writePlain("Errors:    %d\n", errs)
	}
	if result.Err != nil {
		r.writePlain("Error:     %v\n", result.Err)
	}

	if !result.DryRun || len(result.Planned) == 0 {
		return
	}

	r.writePlainln("Would make %d writes:", len(result.Planned))
	for i, m := range result.Planned {
		if i == plannedPreview {
			r.writePlain("  … and %d more (use --json for the full list)\n", len(result.Planned)-plannedPreview)
			break
		}
		r.writePlain("  • [%s] %s\n", m.Direction, m)
	}
}
