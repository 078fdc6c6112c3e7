package testing

import (
	"context"
	"iter"
	"sync"

	"github.com/desertthunder/plexsync/internal/models"
	"github.com/desertthunder/plexsync/internal/services"
)

// MockLibrary is an in-memory [services.Library]. Writes update the stored items, so a second
// run observes the first run's changes.
type MockLibrary struct {
	mu sync.Mutex

	Sections []models.Library
	Content  map[string][]models.MediaItem // by section key

	LibrariesErr error
	StreamErr    error            // yielded after the section's items
	MarkErr      map[string]error // by item key
	RateErr      map[string]error // by item key

	MarkCalls []string           // item keys passed to MarkWatched
	RateCalls map[string]float64 // item key → rating
}

// NewMockLibrary creates a library serving items keyed by section key.
func NewMockLibrary(sections []models.Library, items map[string][]models.MediaItem) *MockLibrary {
	if items == nil {
		items = make(map[string][]models.MediaItem)
	}
	return &MockLibrary{Sections: sections, Content: items, RateCalls: make(map[string]float64)}
}

func (m *MockLibrary) Name() string { return "mock-library" }

func (m *MockLibrary) Libraries(ctx context.Context) ([]models.Library, error) {
	if m.LibrariesErr != nil {
		return nil, m.LibrariesErr
	}
	return m.Sections, nil
}

func (m *MockLibrary) Items(ctx context.Context, lib models.Library) iter.Seq2[models.MediaItem, error] {
	return func(yield func(models.MediaItem, error) bool) {
		m.mu.Lock()
		items := append([]models.MediaItem(nil), m.Content[lib.Key]...)
		m.mu.Unlock()

		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
		if m.StreamErr != nil {
			yield(models.MediaItem{}, m.StreamErr)
		}
	}
}

func (m *MockLibrary) MarkWatched(ctx context.Context, item models.MediaItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.MarkCalls = append(m.MarkCalls, item.Key)
	if err := m.MarkErr[item.Key]; err != nil {
		return err
	}
	m.update(item.Key, func(it *models.MediaItem) { it.Watched = true })
	return nil
}

func (m *MockLibrary) Rate(ctx context.Context, item models.MediaItem, rating float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RateCalls[item.Key] = rating
	if err := m.RateErr[item.Key]; err != nil {
		return err
	}
	m.update(item.Key, func(it *models.MediaItem) { it.Rating = &rating })
	return nil
}

// Writes reports how many write calls were made.
func (m *MockLibrary) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.MarkCalls) + len(m.RateCalls)
}

func (m *MockLibrary) update(key string, fn func(*models.MediaItem)) {
	for section, items := range m.Content {
		for i := range items {
			if items[i].Key == key {
				fn(&m.Content[section][i])
			}
		}
	}
}

// MockTracker is an in-memory [services.Tracker]. Bulk writes add the submitted items to the
// watched or collected lists.
type MockTracker struct {
	mu sync.Mutex

	Movies    []models.TrackedItem // watched movies
	Episodes  []models.TrackedItem // watched episodes
	Rated     map[services.RatingKind][]models.TrackedItem
	Collected map[models.MediaKind][]models.TrackedItem // keyed by Movie or Episode

	AuthErr          error
	WatchedErr       error
	RatingsErr       map[services.RatingKind]error
	CollectionErr    error
	HistoryErr       error
	CollectionAddErr error

	// AddLimit caps how many items each bulk write reports as added; zero means no cap.
	AddLimit int

	AuthCalls         int
	HistoryBatches    [][]models.MediaItem
	CollectionBatches [][]models.MediaItem
}

func NewMockTracker() *MockTracker {
	return &MockTracker{
		Rated:      make(map[services.RatingKind][]models.TrackedItem),
		Collected:  make(map[models.MediaKind][]models.TrackedItem),
		RatingsErr: make(map[services.RatingKind]error),
	}
}

func (m *MockTracker) Name() string { return "mock-tracker" }

func (m *MockTracker) Authenticate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuthCalls++
	return m.AuthErr
}

func (m *MockTracker) WatchedMovies(ctx context.Context) ([]models.TrackedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WatchedErr != nil {
		return nil, m.WatchedErr
	}
	return append([]models.TrackedItem(nil), m.Movies...), nil
}

func (m *MockTracker) WatchedEpisodes(ctx context.Context) ([]models.TrackedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WatchedErr != nil {
		return nil, m.WatchedErr
	}
	return append([]models.TrackedItem(nil), m.Episodes...), nil
}

func (m *MockTracker) Ratings(ctx context.Context, kind services.RatingKind) ([]models.TrackedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.RatingsErr[kind]; err != nil {
		return nil, err
	}
	return m.Rated[kind], nil
}

func (m *MockTracker) Collection(ctx context.Context, kind models.MediaKind) ([]models.TrackedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CollectionErr != nil {
		return nil, m.CollectionErr
	}
	if kind == models.Show {
		kind = models.Episode
	}
	return append([]models.TrackedItem(nil), m.Collected[kind]...), nil
}

func (m *MockTracker) AddToHistory(ctx context.Context, items []models.MediaItem) (*services.BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.HistoryBatches = append(m.HistoryBatches, items)
	if m.HistoryErr != nil {
		return nil, m.HistoryErr
	}

	result, added := m.accept(items)
	for _, item := range added {
		if item.Kind == models.Movie {
			m.Movies = append(m.Movies, tracked(item))
		} else {
			m.Episodes = append(m.Episodes, tracked(item))
		}
	}
	return result, nil
}

func (m *MockTracker) AddToCollection(ctx context.Context, items []models.MediaItem) (*services.BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CollectionBatches = append(m.CollectionBatches, items)
	if m.CollectionAddErr != nil {
		return nil, m.CollectionAddErr
	}

	result, added := m.accept(items)
	for _, item := range added {
		m.Collected[item.Kind] = append(m.Collected[item.Kind], tracked(item))
	}
	return result, nil
}

// accept applies AddLimit and splits the counts by kind.
func (m *MockTracker) accept(items []models.MediaItem) (*services.BulkResult, []models.MediaItem) {
	added := items
	if m.AddLimit > 0 && len(added) > m.AddLimit {
		added = added[:m.AddLimit]
	}

	result := &services.BulkResult{}
	for _, item := range added {
		if item.Kind == models.Movie {
			result.AddedMovies++
		} else {
			result.AddedEpisodes++
		}
	}
	result.NotFound = len(items) - len(added)
	return result, added
}

// Writes reports how many bulk writes were made.
func (m *MockTracker) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.HistoryBatches) + len(m.CollectionBatches)
}

func tracked(item models.MediaItem) models.TrackedItem {
	return models.TrackedItem{
		Kind:      item.Kind,
		Title:     item.Title,
		Year:      item.Year,
		ShowTitle: item.ShowTitle,
		Season:    item.Season,
		Number:    item.Number,
		IDs:       item.IDs,
	}
}
