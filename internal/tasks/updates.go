package tasks

import (
	"fmt"

	"github.com/desertthunder/plexsync/internal/models"
)

// ProgressUpdate represents a progress event during a sync run.
//
// Used to send real-time updates to the CLI, TUI and status surface for display.
type ProgressUpdate struct {
	State   State     // Engine state when the update was sent
	Step    int       // Current step number within the state
	Total   int       // Total steps, zero when unknown
	Message string    // Human-readable message for display
	Stats   SyncStats // Counters at the time of the update
}

// State is a sync engine state.
//
// A run moves Idle → Authenticating → FetchingTrackerState → StreamingLibrary → Mutating and ends
// in Completed or Failed. FetchingTrackerState through Mutating repeat for every library and direction.
type State int

const (
	Idle State = iota
	Authenticating
	FetchingTrackerState
	StreamingLibrary
	Mutating
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Authenticating:
		return "authenticating"
	case FetchingTrackerState:
		return "fetching_tracker_state"
	case StreamingLibrary:
		return "streaming_library"
	case Mutating:
		return "mutating"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

// Terminal reports whether the run has ended.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func authenticatingUpdate(tracker string) ProgressUpdate {
	return ProgressUpdate{
		State:   Authenticating,
		Message: fmt.Sprintf("Authenticating with %s...", tracker),
	}
}

func librariesUpdate(libs []models.Library) ProgressUpdate {
	return ProgressUpdate{
		State:   Authenticating,
		Total:   len(libs),
		Message: fmt.Sprintf("Found %d libraries to sync", len(libs)),
	}
}

func fetchTrackerUpdate(step, total int, lib models.Library, dir Direction, stats SyncStats) ProgressUpdate {
	return ProgressUpdate{
		State:   FetchingTrackerState,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s (%s): fetching Trakt state...", step, total, lib.Title, dir),
		Stats:   stats,
	}
}

func streamUpdate(step, total int, lib models.Library, dir Direction, stats SyncStats) ProgressUpdate {
	return ProgressUpdate{
		State:   StreamingLibrary,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s (%s): %d items scanned", step, total, lib.Title, dir, stats.Seen),
		Stats:   stats,
	}
}

func mutationUpdate(step, total int, m Mutation, dryRun bool, stats SyncStats) ProgressUpdate {
	prefix := ""
	if dryRun {
		prefix = "[dry run] "
	}
	return ProgressUpdate{
		State:   Mutating,
		Step:    step,
		Total:   total,
		Message: prefix + m.String(),
		Stats:   stats,
	}
}

func batchUpdate(step, total int, action Action, size, added int, dryRun bool, stats SyncStats) ProgressUpdate {
	msg := fmt.Sprintf("%s: %d of %d added", action, added, size)
	if dryRun {
		msg = fmt.Sprintf("[dry run] %s: %d items", action, size)
	}
	return ProgressUpdate{
		State:   Mutating,
		Step:    step,
		Total:   total,
		Message: msg,
		Stats:   stats,
	}
}

func completedUpdate(stats SyncStats) ProgressUpdate {
	return ProgressUpdate{
		State:   Completed,
		Message: fmt.Sprintf("Sync complete: %s", stats),
		Stats:   stats,
	}
}

func failedUpdate(err error, stats SyncStats) ProgressUpdate {
	return ProgressUpdate{
		State:   Failed,
		Message: fmt.Sprintf("Sync failed: %v", err),
		Stats:   stats,
	}
}
