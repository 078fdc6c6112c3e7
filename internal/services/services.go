// package services defines the Plex library and Trakt tracker clients used by the sync engine
package services

import (
	"context"
	"iter"
	"net/http"

	"github.com/desertthunder/plexsync/internal/models"
)

// Library is a media server catalog that the sync engine reads and writes.
type Library interface {
	// Name returns the name of the service (e.g., "Plex")
	Name() string

	// Libraries lists the server's library sections.
	Libraries(ctx context.Context) ([]models.Library, error)

	// Items streams a section's items page by page. For show sections each show is yielded
	// before its episodes. Iteration stops at the first error, which is yielded once.
	Items(ctx context.Context, lib models.Library) iter.Seq2[models.MediaItem, error]

	// MarkWatched sets the item's watched flag.
	MarkWatched(ctx context.Context, item models.MediaItem) error

	// Rate sets the item's user rating on a 0-10 scale.
	Rate(ctx context.Context, item models.MediaItem, rating float64) error
}

// RatingKind selects which ratings list to fetch from the tracker.
type RatingKind string

const (
	RatingMovies   RatingKind = "movies"
	RatingShows    RatingKind = "shows"
	RatingEpisodes RatingKind = "episodes"
)

// Tracker is a remote watch-history service.
type Tracker interface {
	// Name returns the name of the service (e.g., "Trakt")
	Name() string

	// Authenticate makes sure a usable bearer token is available.
	Authenticate(ctx context.Context) error

	// WatchedMovies returns every watched movie.
	WatchedMovies(ctx context.Context) ([]models.TrackedItem, error)

	// WatchedEpisodes returns every watched episode, expanded from show to season to episode.
	WatchedEpisodes(ctx context.Context) ([]models.TrackedItem, error)

	// Ratings returns the user's ratings of one kind.
	Ratings(ctx context.Context, kind RatingKind) ([]models.TrackedItem, error)

	// Collection returns the collected movies or episodes.
	Collection(ctx context.Context, kind models.MediaKind) ([]models.TrackedItem, error)

	// AddToHistory marks movies and episodes as watched in one bulk request.
	AddToHistory(ctx context.Context, items []models.MediaItem) (*BulkResult, error)

	// AddToCollection adds movies and episodes to the collection in one bulk request.
	AddToCollection(ctx context.Context, items []models.MediaItem) (*BulkResult, error)
}

// BulkResult carries the counts a bulk request reports. Added is authoritative for what changed.
type BulkResult struct {
	AddedMovies      int
	AddedEpisodes    int
	ExistingMovies   int
	ExistingEpisodes int
	NotFound         int
}

// Added is the total number of entries the tracker accepted.
func (r *BulkResult) Added() int {
	if r == nil {
		return 0
	}
	return r.AddedMovies + r.AddedEpisodes
}

// HTTPDoer is the subset of [http.Client] used by the clients.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
