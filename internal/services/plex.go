// Plex Media Server implementation of [Library]
//
// Response shapes follow the server's JSON encoding (Accept: application/json): every payload is
// wrapped in a MediaContainer carrying either Directory (sections) or Metadata (items).
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plexsync/internal/guid"
	"github.com/desertthunder/plexsync/internal/models"
	"github.com/desertthunder/plexsync/internal/retry"
	"github.com/desertthunder/plexsync/internal/shared"
)

const (
	plexProduct           = "plexsync"
	plexLibraryIdentifier = "com.plexapp.plugins.library"
	defaultPlexPageSize   = 100

	plexTypeMovie = "1"
	plexTypeShow  = "2"
)

type plexGuid struct {
	ID string `json:"id"`
}

// PlexMetadata is a movie, show or episode entry of a MediaContainer.
type PlexMetadata struct {
	RatingKey        string     `json:"ratingKey"`
	Type             string     `json:"type"`
	Title            string     `json:"title"`
	Year             int        `json:"year"`
	GUID             string     `json:"guid"`
	Guids            []plexGuid `json:"Guid"`
	ViewCount        int        `json:"viewCount"`
	UserRating       *float64   `json:"userRating"`
	GrandparentTitle string     `json:"grandparentTitle"`
	ParentIndex      int        `json:"parentIndex"`
	Index            int        `json:"index"`
}

// PlexDirectory is a library section entry.
type PlexDirectory struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

type plexContainer struct {
	Size      int             `json:"size"`
	TotalSize int             `json:"totalSize"`
	Offset    int             `json:"offset"`
	Directory []PlexDirectory `json:"Directory"`
	Metadata  []PlexMetadata  `json:"Metadata"`
}

type plexResponse struct {
	MediaContainer plexContainer `json:"MediaContainer"`
}

// rawGuids returns the primary guid followed by the Guid array, the order [guid.Extract] merges in.
func (m PlexMetadata) rawGuids() []string {
	raws := make([]string, 0, len(m.Guids)+1)
	raws = append(raws, m.GUID)
	for _, g := range m.Guids {
		raws = append(raws, g.ID)
	}
	return raws
}

func (m PlexMetadata) item(kind models.MediaKind, ids models.IDSet) models.MediaItem {
	return models.MediaItem{
		Key:       m.RatingKey,
		Kind:      kind,
		Title:     m.Title,
		Year:      m.Year,
		ShowTitle: m.GrandparentTitle,
		Season:    m.ParentIndex,
		Number:    m.Index,
		Watched:   m.ViewCount > 0,
		Rating:    m.UserRating,
		IDs:       ids,
	}
}

// PlexOpts configures a [PlexService].
type PlexOpts struct {
	BaseURL          string
	Token            string
	ClientIdentifier string
	PageSize         int
	Timeout          time.Duration
	HTTPClient       HTTPDoer
	Retrier          *retry.Retrier
	Logger           *log.Logger
}

// PlexService implements [Library] against a Plex Media Server.
type PlexService struct {
	baseURL  string
	token    string
	clientID string
	pageSize int
	client   HTTPDoer
	retrier  *retry.Retrier
	logger   *log.Logger
}

// NewPlexService creates a Plex client. Reads are retried with opts.Retrier when set.
func NewPlexService(opts PlexOpts) (*PlexService, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, fmt.Errorf("%w: plex base url is required", shared.ErrInvalidConfig)
	}
	if opts.Token == "" {
		return nil, fmt.Errorf("%w: plex token is required", shared.ErrMissingCredentials)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPlexPageSize
	}
	if opts.ClientIdentifier == "" {
		opts.ClientIdentifier = plexProduct
	}
	if opts.HTTPClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		opts.HTTPClient = &http.Client{Timeout: timeout}
	}
	if opts.Retrier == nil {
		opts.Retrier = retry.New(retry.Policy{}, nil)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}

	return &PlexService{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		token:    opts.Token,
		clientID: opts.ClientIdentifier,
		pageSize: opts.PageSize,
		client:   opts.HTTPClient,
		retrier:  opts.Retrier,
		logger:   opts.Logger,
	}, nil
}

func (s *PlexService) Name() string {
	return "Plex"
}

// Libraries lists every library section on the server.
func (s *PlexService) Libraries(ctx context.Context) ([]models.Library, error) {
	resp, err := retry.Value(ctx, s.retrier, "plex.sections", func(ctx context.Context) (plexResponse, error) {
		var resp plexResponse
		err := s.doRequest(ctx, http.MethodGet, "/library/sections", nil, &resp)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	libs := make([]models.Library, 0, len(resp.MediaContainer.Directory))
	for _, d := range resp.MediaContainer.Directory {
		libs = append(libs, models.Library{Key: d.Key, Title: d.Title, Type: d.Type})
	}
	return libs, nil
}

// Items streams a section's items without loading the whole section.
//
// Movie sections yield movies. Show sections yield each show followed by its episodes; episodes
// carry the show's identifiers because their own Guid entries name the episode, not the show.
func (s *PlexService) Items(ctx context.Context, lib models.Library) iter.Seq2[models.MediaItem, error] {
	return func(yield func(models.MediaItem, error) bool) {
		section := "/library/sections/" + url.PathEscape(lib.Key) + "/all"

		var err, episodeErr error
		switch lib.Type {
		case "movie":
			_, err = s.paginate(ctx, section, plexTypeMovie, func(md PlexMetadata) bool {
				return yield(md.item(models.Movie, guid.Extract(md.rawGuids()...)), nil)
			})
		case "show":
			_, err = s.paginate(ctx, section, plexTypeShow, func(show PlexMetadata) bool {
				showIDs := guid.Extract(show.rawGuids()...)
				if !yield(show.item(models.Show, showIDs), nil) {
					return false
				}

				leaves := "/library/metadata/" + url.PathEscape(show.RatingKey) + "/allLeaves"
				cont, epErr := s.paginate(ctx, leaves, "", func(ep PlexMetadata) bool {
					if ep.GrandparentTitle == "" {
						ep.GrandparentTitle = show.Title
					}
					return yield(ep.item(models.Episode, showIDs), nil)
				})
				if epErr != nil {
					episodeErr = fmt.Errorf("episodes of %q: %w", show.Title, epErr)
					return false
				}
				return cont
			})
			if err == nil {
				err = episodeErr
			}
		default:
			err = fmt.Errorf("%w: library %q has unsupported type %q", shared.ErrInvalidInput, lib.Title, lib.Type)
		}

		if err != nil {
			yield(models.MediaItem{}, err)
		}
	}
}

// paginate walks path page by page, calling fn per entry. It reports false when fn stopped early.
func (s *PlexService) paginate(ctx context.Context, path, plexType string, fn func(PlexMetadata) bool) (bool, error) {
	for start := 0; ; {
		query := url.Values{}
		query.Set("includeGuids", "1")
		query.Set("X-Plex-Container-Start", strconv.Itoa(start))
		query.Set("X-Plex-Container-Size", strconv.Itoa(s.pageSize))
		if plexType != "" {
			query.Set("type", plexType)
		}

		var resp plexResponse
		err := s.retrier.Do(ctx, "plex.page", func(ctx context.Context) error {
			return s.doRequest(ctx, http.MethodGet, path, query, &resp)
		})
		if err != nil {
			return false, err
		}

		page := resp.MediaContainer.Metadata
		s.logger.Debug("fetched page", "path", path, "start", start, "count", len(page), "total", resp.MediaContainer.TotalSize)
		for _, md := range page {
			if !fn(md) {
				return false, nil
			}
		}

		start += len(page)
		total := resp.MediaContainer.TotalSize
		if len(page) == 0 || len(page) < s.pageSize || (total > 0 && start >= total) {
			return true, nil
		}
	}
}

// MarkWatched scrobbles the item, which marks it played.
func (s *PlexService) MarkWatched(ctx context.Context, item models.MediaItem) error {
	query := url.Values{}
	query.Set("identifier", plexLibraryIdentifier)
	query.Set("key", item.Key)
	return s.doRequest(ctx, http.MethodGet, "/:/scrobble", query, nil)
}

// Rate sets the item's user rating.
func (s *PlexService) Rate(ctx context.Context, item models.MediaItem, rating float64) error {
	if rating < 0 || rating > 10 {
		return fmt.Errorf("%w: rating %v outside 0-10", shared.ErrInvalidInput, rating)
	}
	query := url.Values{}
	query.Set("identifier", plexLibraryIdentifier)
	query.Set("key", item.Key)
	query.Set("rating", strconv.FormatFloat(rating, 'f', -1, 64))
	return s.doRequest(ctx, http.MethodPut, "/:/rate", query, nil)
}

// doRequest performs an authenticated request against the server and decodes JSON into result.
func (s *PlexService) doRequest(ctx context.Context, method, path string, query url.Values, result any) error {
	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", s.token)
	req.Header.Set("X-Plex-Client-Identifier", s.clientID)
	req.Header.Set("X-Plex-Product", plexProduct)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: plex %s %s: %v", shared.ErrServiceUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: plex rejected the token", shared.ErrAuthFailed)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: plex %s %s: status %d: %s", shared.ErrAPIRequest, method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode plex response: %w", err)
	}
	return nil
}
