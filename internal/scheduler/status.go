package scheduler

import (
	"sync"
	"time"

	"github.com/desertthunder/plexsync/internal/models"
	"github.com/desertthunder/plexsync/internal/tasks"
)

// Snapshot is a point-in-time copy of the sync status, shaped for the status API.
type Snapshot struct {
	Running   bool            `json:"running"`
	Source    string          `json:"source,omitempty"`
	State     string          `json:"state"`
	Message   string          `json:"message,omitempty"`
	Step      int             `json:"step,omitempty"`
	Total     int             `json:"total,omitempty"`
	Stats     tasks.SyncStats `json:"stats"`
	StartedAt *time.Time      `json:"started_at,omitempty"`

	LastRun   *models.SyncRunView `json:"last_run,omitempty"`
	LastError string              `json:"last_error,omitempty"`
	NextRun   *time.Time          `json:"next_run,omitempty"`
}

// Status is the single owner of the running flag and live statistics. Only the run goroutine
// writes to it; readers take copies through [Status.Snapshot].
type Status struct {
	mu        sync.RWMutex
	running   bool
	source    string
	update    tasks.ProgressUpdate
	startedAt time.Time
	lastRun   *models.SyncRun
	lastError string
	nextRun   func() time.Time
}

func NewStatus() *Status {
	return &Status{}
}

// begin claims the running flag. It reports false when a run is already in flight.
func (s *Status) begin(source string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return false
	}
	s.running = true
	s.source = source
	s.startedAt = at
	s.update = tasks.ProgressUpdate{State: tasks.Idle, Message: "Starting " + source + " sync"}
	return true
}

func (s *Status) apply(update tasks.ProgressUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.update = update
}

// finish releases the running flag and records the outcome.
func (s *Status) finish(run *models.SyncRun, result *tasks.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.lastRun = run
	s.update.State = result.State
	s.update.Stats = result.Stats
	s.lastError = ""
	if result.Err != nil {
		s.lastError = result.Err.Error()
	}
}

func (s *Status) setNextRun(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRun = fn
}

// Running reports whether a run is in flight.
func (s *Status) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Snapshot copies the current status.
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		Running:   s.running,
		State:     s.update.State.String(),
		Message:   s.update.Message,
		Step:      s.update.Step,
		Total:     s.update.Total,
		Stats:     s.update.Stats,
		LastError: s.lastError,
	}
	if s.running {
		snap.Source = s.source
		started := s.startedAt
		snap.StartedAt = &started
	}
	if s.lastRun != nil {
		view := s.lastRun.View()
		snap.LastRun = &view
	}
	nextRun := s.nextRun
	s.mu.RUnlock()

	// nextRun reads scheduler state, which is locked before Status during a trigger.
	if nextRun != nil {
		if next := nextRun(); !next.IsZero() {
			snap.NextRun = &next
		}
	}
	return snap
}
