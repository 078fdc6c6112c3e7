// package models defines the data model for plexsync
package models

import (
	"fmt"
	"time"
)

// Model defines the base interface for all persistent models.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Provider is an external identifier namespace used to cross-reference titles.
type Provider string

const (
	IMDB Provider = "imdb"
	TVDB Provider = "tvdb"
	TMDB Provider = "tmdb"
)

// Providers lists every provider in matching priority order.
var Providers = []Provider{IMDB, TVDB, TMDB}

// CanonicalID is a normalized (provider, value) pair.
type CanonicalID struct {
	Provider Provider
	Value    string
}

func (c CanonicalID) String() string {
	return string(c.Provider) + "://" + c.Value
}

// IDSet maps each provider to at most one normalized identifier.
type IDSet map[Provider]string

// Get returns the identifier for p, reporting false when it is absent or empty.
func (s IDSet) Get(p Provider) (string, bool) {
	v, ok := s[p]
	return v, ok && v != ""
}

// Canonical returns the set's identifiers in priority order.
func (s IDSet) Canonical() []CanonicalID {
	ids := make([]CanonicalID, 0, len(s))
	for _, p := range Providers {
		if v, ok := s.Get(p); ok {
			ids = append(ids, CanonicalID{Provider: p, Value: v})
		}
	}
	return ids
}

// Empty reports whether no provider carries a usable identifier.
func (s IDSet) Empty() bool {
	return len(s.Canonical()) == 0
}

// MediaKind distinguishes movies, shows and episodes.
type MediaKind int

const (
	Movie MediaKind = iota
	Show
	Episode
)

func (k MediaKind) String() string {
	switch k {
	case Movie:
		return "movie"
	case Show:
		return "show"
	case Episode:
		return "episode"
	default:
		return "unknown"
	}
}

// Library is a Plex library section.
type Library struct {
	Key   string
	Title string
	Type  string // "movie" or "show"; other section types are never synced
}

// Syncable reports whether the section holds movies or shows.
func (l Library) Syncable() bool {
	return l.Type == "movie" || l.Type == "show"
}

// MediaItem is one movie, show or episode in the Plex library.
//
// Episodes carry their show's identifiers in IDs and their own position in Season and Number.
type MediaItem struct {
	Key       string // Plex rating key
	Kind      MediaKind
	Title     string
	Year      int
	ShowTitle string
	Season    int
	Number    int
	Watched   bool
	Rating    *float64 // 0-10; nil when unrated
	IDs       IDSet
}

// Label is a human-readable name for logs and progress messages.
func (m MediaItem) Label() string {
	return label(m.Kind, m.Title, m.Year, m.ShowTitle, m.Season, m.Number)
}

// TrackedItem is a Trakt record for a watched, rated or collected title.
//
// Episodes are identified by their show's identifiers plus season and episode number.
type TrackedItem struct {
	Kind      MediaKind
	Title     string
	Year      int
	ShowTitle string
	Season    int
	Number    int
	Rating    int // 1-10; 0 when not a rating record
	IDs       IDSet
}

// Label is a human-readable name for logs and progress messages.
func (t TrackedItem) Label() string {
	return label(t.Kind, t.Title, t.Year, t.ShowTitle, t.Season, t.Number)
}

func label(kind MediaKind, title string, year int, show string, season, number int) string {
	if kind == Episode {
		return fmt.Sprintf("%s S%02dE%02d", show, season, number)
	}
	if year > 0 {
		return fmt.Sprintf("%s (%d)", title, year)
	}
	return title
}
