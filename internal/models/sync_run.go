package models

import (
	"fmt"
	"time"
)

// RunStatus is the terminal (or current) status of a sync run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunCounts are the summary counters stored with each run.
type RunCounts struct {
	Seen    int `json:"seen"`
	Matched int `json:"matched"`
	Skipped int `json:"skipped"`
	Mutated int `json:"mutated"`
	Planned int `json:"planned"`
	Errors  int `json:"errors"`
}

// SyncRun is one entry of the rolling sync history.
type SyncRun struct {
	id         string
	sequence   int
	source     string
	mode       string
	dryRun     bool
	status     RunStatus
	counts     RunCounts
	errMessage string
	startedAt  time.Time
	finishedAt *time.Time
	createdAt  time.Time
	updatedAt  time.Time
}

// NewSyncRun starts a run record. source names what triggered it (cli, schedule, api, tui)
// and mode the directions it covers (pull, push, two-way).
func NewSyncRun(source, mode string, dryRun bool, startedAt time.Time) *SyncRun {
	now := time.Now()
	return &SyncRun{
		source:    source,
		mode:      mode,
		dryRun:    dryRun,
		status:    RunRunning,
		startedAt: startedAt,
		createdAt: now,
		updatedAt: now,
	}
}

func (r *SyncRun) ID() string             { return r.id }
func (r *SyncRun) Sequence() int          { return r.sequence }
func (r *SyncRun) Source() string         { return r.source }
func (r *SyncRun) Mode() string           { return r.mode }
func (r *SyncRun) DryRun() bool           { return r.dryRun }
func (r *SyncRun) Status() RunStatus      { return r.status }
func (r *SyncRun) Counts() RunCounts      { return r.counts }
func (r *SyncRun) ErrorMessage() string   { return r.errMessage }
func (r *SyncRun) StartedAt() time.Time   { return r.startedAt }
func (r *SyncRun) FinishedAt() *time.Time { return r.finishedAt }
func (r *SyncRun) CreatedAt() time.Time   { return r.createdAt }
func (r *SyncRun) UpdatedAt() time.Time   { return r.updatedAt }

func (r *SyncRun) SetID(id string)            { r.id = id }
func (r *SyncRun) SetSequence(seq int)        { r.sequence = seq }
func (r *SyncRun) SetCounts(c RunCounts)      { r.counts = c }
func (r *SyncRun) SetCreatedAt(t time.Time)   { r.createdAt = t }
func (r *SyncRun) SetUpdatedAt(t time.Time)   { r.updatedAt = t }
func (r *SyncRun) SetFinishedAt(t *time.Time) { r.finishedAt = t }
func (r *SyncRun) SetStatus(s RunStatus)      { r.status = s }
func (r *SyncRun) SetErrorMessage(msg string) { r.errMessage = msg }

// Success reports whether the run completed without a fatal error.
func (r *SyncRun) Success() bool { return r.status == RunCompleted }

// Duration is the wall time of a finished run, or zero while it is running.
func (r *SyncRun) Duration() time.Duration {
	if r.finishedAt == nil {
		return 0
	}
	return r.finishedAt.Sub(r.startedAt)
}

// Finish records the terminal status, counters and error of the run.
func (r *SyncRun) Finish(at time.Time, counts RunCounts, err error) {
	r.counts = counts
	r.finishedAt = &at
	r.updatedAt = at
	if err != nil {
		r.status = RunFailed
		r.errMessage = err.Error()
		return
	}
	r.status = RunCompleted
}

// Validate checks required fields.
func (r *SyncRun) Validate() error {
	if r.id == "" {
		return fmt.Errorf("sync run id is required")
	}
	if r.source == "" {
		return fmt.Errorf("sync run source is required")
	}
	switch r.status {
	case RunRunning, RunCompleted, RunFailed:
	default:
		return fmt.Errorf("invalid sync run status %q", r.status)
	}
	if r.startedAt.IsZero() {
		return fmt.Errorf("sync run start time is required")
	}
	return nil
}

// SyncRunView is the JSON shape of a [SyncRun] for the status API and exports.
type SyncRunView struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Mode       string     `json:"mode"`
	DryRun     bool       `json:"dry_run"`
	Status     RunStatus  `json:"status"`
	Success    bool       `json:"success"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Duration   float64    `json:"duration_seconds"`
	Counts     RunCounts  `json:"counts"`
	Error      string     `json:"error,omitempty"`
}

// View flattens the run for serialization.
func (r *SyncRun) View() SyncRunView {
	return SyncRunView{
		ID:         r.id,
		Source:     r.source,
		Mode:       r.mode,
		DryRun:     r.dryRun,
		Status:     r.status,
		Success:    r.Success(),
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
		Duration:   r.Duration().Seconds(),
		Counts:     r.counts,
		Error:      r.errMessage,
	}
}
