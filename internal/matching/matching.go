// Package matching decides whether a library item and a tracker record are the same title.
//
// Providers are compared in [models.Providers] order (IMDB, then TVDB, then TMDB) and the first
// provider present on both sides with equal normalized values decides the match. A provider
// that is present on both sides but disagrees does not veto a lower-priority agreement.
//
// Episodes additionally require exact season and episode numbers. Absolute numbering on one
// side and season-relative numbering on the other will not match.
package matching

import (
	"github.com/desertthunder/plexsync/internal/guid"
	"github.com/desertthunder/plexsync/internal/models"
)

// Provider reports the highest-priority provider on which library and tracker agree.
func Provider(library, tracker models.IDSet) (models.Provider, bool) {
	for _, p := range models.Providers {
		lv, ok := library.Get(p)
		if !ok {
			continue
		}
		tv, ok := tracker.Get(p)
		if !ok {
			continue
		}
		if a := guid.Normalize(p, lv); a != "" && a == guid.Normalize(p, tv) {
			return p, true
		}
	}
	return "", false
}

// IsMatch reports whether two identifier sets name the same title.
func IsMatch(library, tracker models.IDSet) bool {
	_, ok := Provider(library, tracker)
	return ok
}

// IsEpisodeMatch reports whether a library episode and a tracked episode are the same: the
// show identifiers must match and season and episode numbers must be equal.
func IsEpisodeMatch(library models.MediaItem, tracked models.TrackedItem) bool {
	if library.Season != tracked.Season || library.Number != tracked.Number {
		return false
	}
	return IsMatch(library.IDs, tracked.IDs)
}

type episodeKey struct {
	id      models.CanonicalID
	season  int
	episode int
}

// Index maps tracker identifiers to their records for constant-time lookup during a pass.
//
// Titles (movies and shows) are keyed by [models.CanonicalID]; episodes by the show's id plus
// season and episode. An Index is built for one sync direction and dropped afterwards.
type Index struct {
	titles   map[models.CanonicalID]*models.TrackedItem
	episodes map[episodeKey]*models.TrackedItem
	size     int
}

// NewIndex builds an [Index] over items.
func NewIndex(items []models.TrackedItem) *Index {
	ix := &Index{
		titles:   make(map[models.CanonicalID]*models.TrackedItem),
		episodes: make(map[episodeKey]*models.TrackedItem),
	}
	for i := range items {
		ix.Add(&items[i])
	}
	return ix
}

// Add indexes item under every identifier it carries. A later item with the same key replaces
// the earlier one.
func (ix *Index) Add(item *models.TrackedItem) {
	ids := canonical(item.IDs)
	if len(ids) == 0 {
		return
	}
	ix.size++
	for _, id := range ids {
		if item.Kind == models.Episode {
			ix.episodes[episodeKey{id: id, season: item.Season, episode: item.Number}] = item
			continue
		}
		ix.titles[id] = item
	}
}

// Len is the number of indexed records.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return ix.size
}

// Lookup finds the tracked movie or show matching ids, trying providers in priority order.
func (ix *Index) Lookup(ids models.IDSet) (*models.TrackedItem, models.Provider, bool) {
	if ix == nil {
		return nil, "", false
	}
	for _, id := range canonical(ids) {
		if item, ok := ix.titles[id]; ok {
			return item, id.Provider, true
		}
	}
	return nil, "", false
}

// LookupEpisode finds the tracked episode for a show's ids and an exact season and episode.
func (ix *Index) LookupEpisode(showIDs models.IDSet, season, episode int) (*models.TrackedItem, models.Provider, bool) {
	if ix == nil {
		return nil, "", false
	}
	for _, id := range canonical(showIDs) {
		if item, ok := ix.episodes[episodeKey{id: id, season: season, episode: episode}]; ok {
			return item, id.Provider, true
		}
	}
	return nil, "", false
}

// LookupItem dispatches to [Index.Lookup] or [Index.LookupEpisode] by item kind.
func (ix *Index) LookupItem(item models.MediaItem) (*models.TrackedItem, models.Provider, bool) {
	if item.Kind == models.Episode {
		return ix.LookupEpisode(item.IDs, item.Season, item.Number)
	}
	return ix.Lookup(item.IDs)
}

// canonical re-normalizes ids and returns them in priority order.
func canonical(ids models.IDSet) []models.CanonicalID {
	out := make([]models.CanonicalID, 0, len(ids))
	for _, p := range models.Providers {
		v, ok := ids.Get(p)
		if !ok {
			continue
		}
		if v = guid.Normalize(p, v); v != "" {
			out = append(out, models.CanonicalID{Provider: p, Value: v})
		}
	}
	return out
}
