package tasks

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plexsync/internal/models"
	"github.com/desertthunder/plexsync/internal/retry"
	"github.com/desertthunder/plexsync/internal/services"
	"github.com/desertthunder/plexsync/internal/shared"
	"golang.org/x/time/rate"
)

// progressEvery is how many streamed items pass between StreamingLibrary updates.
const progressEvery = 25

// SyncEngine runs reconciliation passes between a library and a tracker.
type SyncEngine interface {
	// Run performs one sync run. It never returns an error: failures end the run in the Failed
	// state and are reported on the [Result].
	Run(ctx context.Context, opts Options, progress chan<- ProgressUpdate) *Result
}

// Engine implements [SyncEngine] for a [services.Library] and a [services.Tracker].
type Engine struct {
	library services.Library
	tracker services.Tracker
	retrier *retry.Retrier
	logger  *log.Logger
	now     func() time.Time
}

// NewEngine creates an Engine. Mutations are retried with retrier; a nil retrier makes one attempt.
func NewEngine(library services.Library, tracker services.Tracker, retrier *retry.Retrier, logger *log.Logger) *Engine {
	if retrier == nil {
		retrier = retry.New(retry.Policy{}, nil)
	}
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &Engine{
		library: library,
		tracker: tracker,
		retrier: retrier,
		logger:  shared.WithLogger(logger, "component", "engine"),
		now:     time.Now,
	}
}

// run is the mutable state of a single [Engine.Run] call.
type run struct {
	*Engine
	opts     Options
	progress chan<- ProgressUpdate
	limiter  *rate.Limiter
	stats    SyncStats
	planned  []Mutation
	step     int
	total    int
}

// Run authenticates, selects libraries and runs the configured passes for each one.
//
// A configuration, authentication or fetch-phase error stops the run in the Failed state; the
// stats gathered up to that point are kept. Per-item write errors are counted and skipped.
func (e *Engine) Run(ctx context.Context, opts Options, progress chan<- ProgressUpdate) *Result {
	limit := rate.Inf
	if opts.MutationDelay > 0 {
		limit = rate.Every(opts.MutationDelay)
	}
	r := &run{
		Engine:   e,
		opts:     opts,
		progress: progress,
		limiter:  rate.NewLimiter(limit, 1),
	}

	result := &Result{DryRun: opts.DryRun, Mode: opts.Mode(), StartedAt: e.now()}
	e.logger.Info("sync started", "mode", result.Mode, "dry_run", opts.DryRun)

	err := r.execute(ctx)

	result.FinishedAt = e.now()
	result.Stats = r.stats
	result.Planned = r.planned
	if err != nil {
		result.State = Failed
		result.Err = err
		e.logger.Error("sync failed", "error", err, "stats", r.stats.String())
		sendProgress(progress, failedUpdate(err, r.stats))
		return result
	}

	result.State = Completed
	e.logger.Info("sync completed", "stats", r.stats.String(), "duration", result.Duration().Round(time.Millisecond))
	sendProgress(progress, completedUpdate(r.stats))
	return result
}

func (r *run) execute(ctx context.Context) error {
	if err := r.opts.Validate(); err != nil {
		return err
	}

	sendProgress(r.progress, authenticatingUpdate(r.tracker.Name()))
	if err := r.tracker.Authenticate(ctx); err != nil {
		return fmt.Errorf("authenticate with %s: %w", r.tracker.Name(), err)
	}

	libs, err := r.selectLibraries(ctx)
	if err != nil {
		return err
	}
	sendProgress(r.progress, librariesUpdate(libs))

	if r.opts.Watchlist {
		r.logger.Warn("watchlist sync is not supported by the Plex library API, skipping")
	}

	r.total = len(libs)
	for i, lib := range libs {
		r.step = i + 1
		for _, dir := range r.opts.Directions() {
			if err := r.pass(ctx, lib, dir); err != nil {
				return fmt.Errorf("library %q (%s): %w", lib.Title, dir, err)
			}
		}
		r.stats.Libraries++
	}
	return nil
}

// selectLibraries resolves the library filter against the server's sections.
func (r *run) selectLibraries(ctx context.Context) ([]models.Library, error) {
	all, err := r.library.Libraries(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s libraries: %w", shared.ErrFetchFailed, r.library.Name(), err)
	}

	var selected []models.Library
	if len(r.opts.Libraries) == 0 {
		for _, lib := range all {
			if lib.Syncable() && r.opts.wants(lib) {
				selected = append(selected, lib)
			}
		}
	} else {
		var missing []string
		for _, name := range r.opts.Libraries {
			idx := slices.IndexFunc(all, func(l models.Library) bool { return strings.EqualFold(l.Title, name) })
			switch {
			case idx < 0:
				missing = append(missing, name)
			case !all[idx].Syncable():
				return nil, fmt.Errorf("%w: %q is a %s library, only movie and show libraries sync", shared.ErrMissingLibrary, name, all[idx].Type)
			case !r.opts.wants(all[idx]):
				r.logger.Info("library type disabled, skipping", "library", all[idx].Title, "type", all[idx].Type)
			default:
				selected = append(selected, all[idx])
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: %s", shared.ErrMissingLibrary, strings.Join(missing, ", "))
		}
	}

	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no movie or show libraries to sync", shared.ErrMissingLibrary)
	}
	return selected, nil
}

// pass runs one direction for one library.
func (r *run) pass(ctx context.Context, lib models.Library, dir Direction) error {
	logger := shared.WithLogger(r.logger, "library", lib.Title, "direction", dir.String())
	sendProgress(r.progress, fetchTrackerUpdate(r.step, r.total, lib, dir, r.stats))

	var handle func(context.Context, models.MediaItem) error
	var finish func(context.Context) error
	switch dir {
	case Pull:
		p, err := r.newPullPass(ctx, lib, logger)
		if err != nil {
			return err
		}
		handle, finish = p.handle, func(context.Context) error { return nil }
	case Push:
		p, err := r.newPushPass(ctx, lib, logger)
		if err != nil {
			return err
		}
		handle, finish = p.handle, p.flushAll
	}

	logger.Debug("streaming library")
	seen := 0
	for item, err := range r.library.Items(ctx, lib) {
		if err != nil {
			return fmt.Errorf("%w: stream %s: %w", shared.ErrFetchFailed, lib.Title, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		r.stats.Seen++
		seen++
		if err := handle(ctx, item); err != nil {
			return err
		}
		if seen%progressEvery == 0 {
			sendProgress(r.progress, streamUpdate(r.step, r.total, lib, dir, r.stats))
		}
	}

	if err := finish(ctx); err != nil {
		return err
	}
	sendProgress(r.progress, streamUpdate(r.step, r.total, lib, dir, r.stats))
	logger.Info("pass finished", "seen", seen, "stats", r.stats.String())
	return nil
}

// fetchError records a tracker read whose failure only disables one feature of the pass.
func (r *run) fetchError(logger *log.Logger, what string, err error) {
	r.stats.FetchErrors++
	logger.Error("tracker fetch failed, continuing without it", "fetch", what, "error", err)
}

// plan records a write a dry run would have made.
func (r *run) plan(m Mutation, logger *log.Logger) {
	r.stats.Planned++
	r.planned = append(r.planned, m)
	logger.Info("would "+m.String(), "dry_run", true)
	sendProgress(r.progress, mutationUpdate(r.step, r.total, m, true, r.stats))
}
