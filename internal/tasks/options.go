package tasks

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/plexsync/internal/models"
	"github.com/desertthunder/plexsync/internal/shared"
)

const defaultBatchSize = 100

// Direction is the way state flows during a pass.
type Direction int

const (
	// Pull applies Trakt state to Plex (tracker → catalog).
	Pull Direction = iota
	// Push submits Plex state to Trakt (catalog → tracker).
	Push
)

func (d Direction) String() string {
	switch d {
	case Pull:
		return "pull"
	case Push:
		return "push"
	default:
		return ""
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ParseDirection accepts "pull" or "push" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pull":
		return Pull, nil
	case "push", "":
		return Push, nil
	default:
		return Push, fmt.Errorf("%w: direction must be pull or push, got %q", shared.ErrInvalidArgument, s)
	}
}

// Options selects what a run reconciles.
type Options struct {
	Movies     bool
	Shows      bool
	Watched    bool
	Ratings    bool
	Collection bool
	Watchlist  bool

	// TwoWay runs a pull pass then a push pass for every library. Direction is ignored when set.
	TwoWay    bool
	Direction Direction

	// SkipSynced skips writes whose target already holds the desired state.
	SkipSynced bool
	BatchSize  int

	// Libraries filters sections by title. Empty means every movie and show section.
	Libraries []string

	DryRun        bool
	MutationDelay time.Duration
}

// OptionsFromConfig builds run options from the [sync] config section and the Plex library filter.
func OptionsFromConfig(cfg shared.SyncConfig, libraries []string) (Options, error) {
	dir, err := ParseDirection(cfg.Direction)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Movies:        cfg.Movies,
		Shows:         cfg.Shows,
		Watched:       cfg.Watched,
		Ratings:       cfg.Ratings,
		Collection:    cfg.Collection,
		Watchlist:     cfg.Watchlist,
		TwoWay:        cfg.TwoWay,
		Direction:     dir,
		SkipSynced:    cfg.SkipAlreadySynced,
		BatchSize:     cfg.BatchSize,
		Libraries:     libraries,
		DryRun:        cfg.DryRun,
		MutationDelay: cfg.MutationDelay,
	}, nil
}

// Directions lists the passes run for each library, in order.
func (o Options) Directions() []Direction {
	if o.TwoWay {
		return []Direction{Pull, Push}
	}
	return []Direction{o.Direction}
}

// Mode names the directions for history records.
func (o Options) Mode() string {
	if o.TwoWay {
		return "two-way"
	}
	return o.Direction.String()
}

// Validate reports option combinations that make a run impossible.
func (o Options) Validate() error {
	if !o.Movies && !o.Shows {
		return fmt.Errorf("%w: neither movies nor shows are enabled", shared.ErrInvalidConfig)
	}
	if o.BatchSize < 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", shared.ErrInvalidConfig, o.BatchSize)
	}
	if o.Direction != Pull && o.Direction != Push {
		return fmt.Errorf("%w: unknown direction %d", shared.ErrInvalidConfig, o.Direction)
	}
	return nil
}

func (o Options) batchSize() int {
	if o.BatchSize <= 0 {
		return defaultBatchSize
	}
	return o.BatchSize
}

// wants reports whether a section of the given type is enabled.
func (o Options) wants(lib models.Library) bool {
	switch lib.Type {
	case "movie":
		return o.Movies
	case "show":
		return o.Shows
	default:
		return false
	}
}

// Selects reports whether a run with these options syncs lib.
func (o Options) Selects(lib models.Library) bool {
	if !lib.Syncable() || !o.wants(lib) {
		return false
	}
	if len(o.Libraries) == 0 {
		return true
	}
	return slices.ContainsFunc(o.Libraries, func(name string) bool { return strings.EqualFold(name, lib.Title) })
}
