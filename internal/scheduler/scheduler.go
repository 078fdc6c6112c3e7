// Package scheduler runs sync passes on a cron schedule or on demand, one at a time, and owns
// the status the HTTP surface reports.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plexsync/internal/models"
	"github.com/desertthunder/plexsync/internal/shared"
	"github.com/desertthunder/plexsync/internal/tasks"
	"github.com/robfig/cron/v3"
)

// Run sources recorded in the history.
const (
	SourceCLI      = "cli"
	SourceSchedule = "schedule"
	SourceAPI      = "api"
	SourceStartup  = "startup"
	SourceTUI      = "tui"
)

// Recorder persists finished runs.
type Recorder interface {
	Record(run *models.SyncRun) error
}

// Scheduler gates runs of a [tasks.SyncEngine] so at most one is in flight, whether it came
// from cron, the API or the command line.
type Scheduler struct {
	engine  tasks.SyncEngine
	opts    tasks.Options
	history Recorder
	status  *Status
	logger  *log.Logger
	cron    *cron.Cron
	now     func() time.Time

	mu      sync.Mutex
	closed  bool
	entry   cron.EntryID
	started bool
	wg      sync.WaitGroup
}

// New creates a Scheduler. history may be nil when runs are not persisted.
func New(engine tasks.SyncEngine, opts tasks.Options, history Recorder, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	logger = shared.WithLogger(logger, "component", "scheduler")

	cl := cronLogger{logger}
	return &Scheduler{
		engine:  engine,
		opts:    opts,
		history: history,
		status:  NewStatus(),
		logger:  logger,
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		now:     time.Now,
	}
}

// Status returns the live status owned by the scheduler.
func (s *Scheduler) Status() *Status { return s.status }

// Schedule registers the standard five-field cron expression spec, replacing any earlier one.
func (s *Scheduler) Schedule(spec string) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("%w: cron %q: %w", shared.ErrInvalidConfig, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry = s.cron.Schedule(sched, cron.FuncJob(s.scheduled))
	s.status.setNextRun(s.nextRun)
	s.logger.Info("sync scheduled", "cron", spec, "next", sched.Next(s.now()).Format(time.RFC3339))
	return nil
}

func (s *Scheduler) nextRun() time.Time {
	s.mu.Lock()
	id, started := s.entry, s.started
	s.mu.Unlock()
	if !started || id == 0 {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Start begins firing the cron schedule.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	s.cron.Start()
}

func (s *Scheduler) scheduled() {
	if _, err := s.RunNow(context.Background(), SourceSchedule); err != nil {
		s.logger.Warn("scheduled sync skipped", "error", err)
	}
}

// Trigger starts a run in the background and returns immediately. It fails with
// [shared.ErrAlreadyRunning] while another run is in flight.
//
// The run does not inherit ctx's cancellation; use [Scheduler.Stop] to wait for it.
func (s *Scheduler) Trigger(ctx context.Context, source string) error {
	if err := s.acquire(source); err != nil {
		return err
	}
	go func() {
		defer s.wg.Done()
		s.execute(context.WithoutCancel(ctx), source)
	}()
	return nil
}

// RunNow performs a run on the calling goroutine and returns its result.
func (s *Scheduler) RunNow(ctx context.Context, source string) (*tasks.Result, error) {
	if err := s.acquire(source); err != nil {
		return nil, err
	}
	defer s.wg.Done()
	return s.execute(ctx, source), nil
}

func (s *Scheduler) acquire(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return shared.ErrStopped
	}
	if !s.status.begin(source, s.now()) {
		return fmt.Errorf("%w: %s trigger rejected", shared.ErrAlreadyRunning, source)
	}
	s.wg.Add(1)
	return nil
}

func (s *Scheduler) execute(ctx context.Context, source string) *tasks.Result {
	logger := shared.WithLogger(s.logger, "source", source)
	logger.Info("sync triggered")

	progress := make(chan tasks.ProgressUpdate, 64)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for update := range progress {
			s.status.apply(update)
		}
	}()

	result := s.engine.Run(ctx, s.opts, progress)
	close(progress)
	<-drained

	run := models.NewSyncRun(source, result.Mode, result.DryRun, result.StartedAt)
	run.Finish(result.FinishedAt, result.Stats.Counts(), result.Err)
	if s.history != nil {
		if err := s.history.Record(run); err != nil {
			logger.Error("failed to record sync run", "error", err)
		}
	}
	s.status.finish(run, result)

	logger.Info("sync finished", "state", result.State, "stats", result.Stats.String())
	return result
}

// Stop stops the cron schedule, rejects further triggers and waits for the in-flight run until
// ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight sync: %w", ctx.Err())
	}
}

// cronLogger adapts a [log.Logger] to [cron.Logger].
type cronLogger struct {
	l *log.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
