package tasks

import (
	"fmt"
	"time"

	"github.com/desertthunder/plexsync/internal/models"
)

// SyncStats holds the counters of one run. Counters only ever grow while the run is in progress.
type SyncStats struct {
	Libraries   int `json:"libraries"`    // library passes finished
	Seen        int `json:"seen"`         // library items streamed
	Matched     int `json:"matched"`      // items found in a tracker index
	Skipped     int `json:"skipped"`      // writes skipped because the target already agreed
	Mutated     int `json:"mutated"`      // writes the remote side confirmed
	Planned     int `json:"planned"`      // writes a dry run would have made
	Errors      int `json:"errors"`       // failed writes (one per failed item or batch)
	FetchErrors int `json:"fetch_errors"` // tracker reads that failed without stopping the run

	WatchedMarked   int `json:"watched_marked"`
	RatingsSet      int `json:"ratings_set"`
	HistoryAdded    int `json:"history_added"`
	CollectionAdded int `json:"collection_added"`
}

// Counts converts the stats into the summary stored in the sync history.
func (s SyncStats) Counts() models.RunCounts {
	return models.RunCounts{
		Seen:    s.Seen,
		Matched: s.Matched,
		Skipped: s.Skipped,
		Mutated: s.Mutated,
		Planned: s.Planned,
		Errors:  s.Errors + s.FetchErrors,
	}
}

func (s SyncStats) String() string {
	return fmt.Sprintf("seen=%d matched=%d skipped=%d mutated=%d planned=%d errors=%d",
		s.Seen, s.Matched, s.Skipped, s.Mutated, s.Planned, s.Errors+s.FetchErrors)
}

// Action is a kind of write the engine performs.
type Action string

const (
	MarkWatched     Action = "mark_watched"
	SetRating       Action = "set_rating"
	AddHistory      Action = "add_history"
	AddToCollection Action = "add_collection"
)

// Mutation describes one write, made or (in a dry run) planned.
type Mutation struct {
	Direction Direction        `json:"direction"`
	Action    Action           `json:"action"`
	Item      models.MediaItem `json:"-"`
	Label     string           `json:"item"`
	Rating    float64          `json:"rating,omitempty"`
	Via       models.Provider  `json:"matched_by,omitempty"`
}

func newMutation(dir Direction, action Action, item models.MediaItem, via models.Provider) Mutation {
	return Mutation{Direction: dir, Action: action, Item: item, Label: item.Label(), Via: via}
}

func (m Mutation) String() string {
	switch m.Action {
	case SetRating:
		return fmt.Sprintf("rate %s %v/10", m.Label, m.Rating)
	case MarkWatched:
		return fmt.Sprintf("mark watched %s", m.Label)
	case AddHistory:
		return fmt.Sprintf("add to Trakt history %s", m.Label)
	case AddToCollection:
		return fmt.Sprintf("add to Trakt collection %s", m.Label)
	default:
		return string(m.Action) + " " + m.Label
	}
}

// Result is the outcome of [Engine.Run]. Err is set only when State is Failed.
type Result struct {
	State      State
	Err        error
	Stats      SyncStats
	Planned    []Mutation
	DryRun     bool
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Success reports whether the run completed. Per-item errors do not make a run unsuccessful.
func (r *Result) Success() bool {
	return r != nil && r.State == Completed
}

func (r *Result) Duration() time.Duration {
	if r == nil || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
