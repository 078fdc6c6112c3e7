package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/desertthunder/plexsync/internal/models"
	"github.com/desertthunder/plexsync/internal/shared"
)

func writeContainer(t *testing.T, w http.ResponseWriter, c plexContainer) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(plexResponse{MediaContainer: c}); err != nil {
		t.Fatalf("failed to encode response: %v", err)
	}
}

func newTestPlex(t *testing.T, handler http.Handler, pageSize int) *PlexService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	srv, err := NewPlexService(PlexOpts{BaseURL: server.URL, Token: "plex-token", PageSize: pageSize})
	if err != nil {
		t.Fatalf("failed to create plex service: %v", err)
	}
	return srv
}

func collect(t *testing.T, srv *PlexService, lib models.Library) ([]models.MediaItem, error) {
	t.Helper()
	var items []models.MediaItem
	for item, err := range srv.Items(context.Background(), lib) {
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

func TestPlexService(t *testing.T) {
	t.Run("NewPlexService", func(t *testing.T) {
		t.Run("Missing Base URL", func(t *testing.T) {
			_, err := NewPlexService(PlexOpts{Token: "x"})
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})

		t.Run("Missing Token", func(t *testing.T) {
			_, err := NewPlexService(PlexOpts{BaseURL: "http://plex"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Defaults", func(t *testing.T) {
			srv, err := NewPlexService(PlexOpts{BaseURL: "http://plex/", Token: "x"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.baseURL != "http://plex" {
				t.Errorf("expected trailing slash trimmed, got %s", srv.baseURL)
			}
			if srv.pageSize != defaultPlexPageSize {
				t.Errorf("expected page size %d, got %d", defaultPlexPageSize, srv.pageSize)
			}
			if srv.Name() != "Plex" {
				t.Errorf("expected name 'Plex', got %s", srv.Name())
			}
		})
	})

	t.Run("Libraries", func(t *testing.T) {
		srv := newTestPlex(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/library/sections" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if got := r.Header.Get("X-Plex-Token"); got != "plex-token" {
				t.Errorf("expected token header, got %q", got)
			}
			if got := r.Header.Get("Accept"); got != "application/json" {
				t.Errorf("expected json accept header, got %q", got)
			}
			writeContainer(t, w, plexContainer{Directory: []PlexDirectory{
				{Key: "1", Title: "Movies", Type: "movie"},
				{Key: "2", Title: "TV Shows", Type: "show"},
				{Key: "3", Title: "Music", Type: "artist"},
			}})
		}), 0)

		libs, err := srv.Libraries(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(libs) != 3 {
			t.Fatalf("expected 3 libraries, got %d", len(libs))
		}
		if libs[1].Title != "TV Shows" || !libs[1].Syncable() {
			t.Errorf("unexpected library %+v", libs[1])
		}
		if libs[2].Syncable() {
			t.Error("music library should not be syncable")
		}
	})

	t.Run("Items", func(t *testing.T) {
		t.Run("Movies Across Pages", func(t *testing.T) {
			movies := []PlexMetadata{
				{RatingKey: "101", Title: "The Shawshank Redemption", Year: 1994, GUID: "plex://movie/abc", Guids: []plexGuid{{ID: "imdb://tt0111161"}, {ID: "tmdb://278"}}, ViewCount: 2},
				{RatingKey: "102", Title: "Heat", Year: 1995, GUID: "com.plexapp.agents.imdb://tt0113277?lang=en"},
				{RatingKey: "103", Title: "Unmatched", GUID: "local://103"},
			}
			var requests int
			srv := newTestPlex(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests++
				q := r.URL.Query()
				if q.Get("includeGuids") != "1" || q.Get("type") != plexTypeMovie {
					t.Errorf("unexpected query %s", r.URL.RawQuery)
				}
				start, _ := strconv.Atoi(q.Get("X-Plex-Container-Start"))
				size, _ := strconv.Atoi(q.Get("X-Plex-Container-Size"))
				end := min(start+size, len(movies))
				writeContainer(t, w, plexContainer{TotalSize: len(movies), Offset: start, Metadata: movies[start:end]})
			}), 2)

			items, err := collect(t, srv, models.Library{Key: "1", Title: "Movies", Type: "movie"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if requests != 2 {
				t.Errorf("expected 2 page requests, got %d", requests)
			}
			if len(items) != 3 {
				t.Fatalf("expected 3 items, got %d", len(items))
			}

			first := items[0]
			if !first.Watched || first.Kind != models.Movie {
				t.Errorf("expected watched movie, got %+v", first)
			}
			if v, _ := first.IDs.Get(models.IMDB); v != "tt0111161" {
				t.Errorf("expected imdb tt0111161, got %q", v)
			}
			if v, _ := first.IDs.Get(models.TMDB); v != "278" {
				t.Errorf("expected tmdb 278, got %q", v)
			}
			if v, _ := items[1].IDs.Get(models.IMDB); v != "tt0113277" {
				t.Errorf("expected legacy guid to parse, got %q", v)
			}
			if !items[2].IDs.Empty() {
				t.Errorf("expected no ids for unmatched item, got %v", items[2].IDs)
			}
		})

		t.Run("Shows Yield Episodes With Show IDs", func(t *testing.T) {
			rating := 8.0
			srv := newTestPlex(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/library/sections/2/all":
					writeContainer(t, w, plexContainer{TotalSize: 1, Metadata: []PlexMetadata{
						{RatingKey: "10", Type: "show", Title: "Breaking Bad", Year: 2008, Guids: []plexGuid{{ID: "tvdb://81189"}}, UserRating: &rating},
					}})
				case "/library/metadata/10/allLeaves":
					writeContainer(t, w, plexContainer{TotalSize: 2, Metadata: []PlexMetadata{
						{RatingKey: "11", Type: "episode", Title: "Pilot", ParentIndex: 1, Index: 1, ViewCount: 1, Guids: []plexGuid{{ID: "tvdb://349232"}}},
						{RatingKey: "12", Type: "episode", Title: "Cat's in the Bag...", ParentIndex: 1, Index: 2},
					}})
				default:
					t.Errorf("unexpected path %s", r.URL.Path)
					w.WriteHeader(http.StatusNotFound)
				}
			}), 0)

			items, err := collect(t, srv, models.Library{Key: "2", Title: "TV Shows", Type: "show"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(items) != 3 {
				t.Fatalf("expected show and 2 episodes, got %d", len(items))
			}
			if items[0].Kind != models.Show || items[0].Rating == nil || *items[0].Rating != 8 {
				t.Errorf("unexpected show item %+v", items[0])
			}

			ep := items[1]
			if ep.Kind != models.Episode || ep.Season != 1 || ep.Number != 1 || !ep.Watched {
				t.Errorf("unexpected episode %+v", ep)
			}
			if ep.ShowTitle != "Breaking Bad" {
				t.Errorf("expected show title fallback, got %q", ep.ShowTitle)
			}
			if v, _ := ep.IDs.Get(models.TVDB); v != "81189" {
				t.Errorf("expected episode to carry show tvdb id, got %q", v)
			}
		})

		t.Run("Stops When Consumer Breaks", func(t *testing.T) {
			var requests int
			srv := newTestPlex(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests++
				writeContainer(t, w, plexContainer{TotalSize: 10, Metadata: []PlexMetadata{{RatingKey: "1"}, {RatingKey: "2"}}})
			}), 2)

			for range srv.Items(context.Background(), models.Library{Key: "1", Type: "movie"}) {
				break
			}
			if requests != 1 {
				t.Errorf("expected a single request, got %d", requests)
			}
		})

		t.Run("Yields Fetch Error", func(t *testing.T) {
			srv := newTestPlex(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}), 0)

			_, err := collect(t, srv, models.Library{Key: "1", Type: "movie"})
			if !errors.Is(err, shared.ErrAPIRequest) {
				t.Errorf("expected ErrAPIRequest, got %v", err)
			}
		})

		t.Run("Episode Fetch Error", func(t *testing.T) {
			srv := newTestPlex(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/library/sections/2/all" {
					writeContainer(t, w, plexContainer{TotalSize: 1, Metadata: []PlexMetadata{{RatingKey: "10", Title: "Show"}}})
					return
				}
				w.WriteHeader(http.StatusUnauthorized)
			}), 0)

			items, err := collect(t, srv, models.Library{Key: "2", Type: "show"})
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
			if len(items) != 1 {
				t.Errorf("expected the show before the error, got %d items", len(items))
			}
		})

		t.Run("Unsupported Library Type", func(t *testing.T) {
			srv := newTestPlex(t, http.NotFoundHandler(), 0)
			_, err := collect(t, srv, models.Library{Key: "3", Type: "artist"})
			if !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	})

	t.Run("MarkWatched", func(t *testing.T) {
		srv := newTestPlex(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || r.URL.Path != "/:/scrobble" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			q := r.URL.Query()
			if q.Get("key") != "101" || q.Get("identifier") != plexLibraryIdentifier {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
		}), 0)

		if err := srv.MarkWatched(context.Background(), models.MediaItem{Key: "101"}); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("Rate", func(t *testing.T) {
		srv := newTestPlex(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut || r.URL.Path != "/:/rate" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if got := r.URL.Query().Get("rating"); got != "7" {
				t.Errorf("expected rating 7, got %q", got)
			}
		}), 0)

		if err := srv.Rate(context.Background(), models.MediaItem{Key: "101"}, 7); err != nil {
			t.Errorf("expected no error, got %v", err)
		}

		t.Run("Out Of Range", func(t *testing.T) {
			err := srv.Rate(context.Background(), models.MediaItem{Key: "101"}, 11)
			if !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	})

	t.Run("Unreachable Server", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		server.Close()

		srv, err := NewPlexService(PlexOpts{BaseURL: server.URL, Token: "x"})
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}
		if _, err := srv.Libraries(context.Background()); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}
