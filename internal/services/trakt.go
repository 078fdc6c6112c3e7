// Trakt API implementation of [Tracker]
//
// Trakt API response types based on https://trakt.docs.apiary.io/ (sync endpoints, API version 2)
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plexsync/internal/guid"
	"github.com/desertthunder/plexsync/internal/models"
	"github.com/desertthunder/plexsync/internal/retry"
	"github.com/desertthunder/plexsync/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	traktAuthURL       = "https://trakt.tv/oauth/authorize"
	defaultTraktAPIURL = "https://api.trakt.tv"
	traktAPIVersion    = "2"
	traktOOBRedirect   = "urn:ietf:wg:oauth:2.0:oob"

	// Trakt allows 1000 GET calls per five minutes; three per second stays below it.
	defaultTraktRate = 3
)

// TraktIDs is the identifier block Trakt attaches to movies, shows and episodes.
type TraktIDs struct {
	Trakt int    `json:"trakt,omitempty"`
	Slug  string `json:"slug,omitempty"`
	IMDB  string `json:"imdb,omitempty"`
	TVDB  int    `json:"tvdb,omitempty"`
	TMDB  int    `json:"tmdb,omitempty"`
}

func (ids TraktIDs) set() models.IDSet {
	return guid.FromTracker(ids.IMDB, ids.TVDB, ids.TMDB)
}

// TraktMovie represents a Trakt movie.
type TraktMovie struct {
	Title string   `json:"title,omitempty"`
	Year  int      `json:"year,omitempty"`
	IDs   TraktIDs `json:"ids"`
}

// TraktShow represents a Trakt show.
type TraktShow struct {
	Title string   `json:"title,omitempty"`
	Year  int      `json:"year,omitempty"`
	IDs   TraktIDs `json:"ids"`
}

// TraktEpisode represents a Trakt episode.
type TraktEpisode struct {
	Season int      `json:"season"`
	Number int      `json:"number"`
	Title  string   `json:"title,omitempty"`
	IDs    TraktIDs `json:"ids"`
}

type traktEpisodeNumber struct {
	Number int `json:"number"`
	Plays  int `json:"plays,omitempty"`
}

type traktSeason struct {
	Number   int                  `json:"number"`
	Episodes []traktEpisodeNumber `json:"episodes"`
}

type traktWatchedMovie struct {
	Plays int        `json:"plays"`
	Movie TraktMovie `json:"movie"`
}

// traktShowSeasons is the shape of both /sync/watched/shows and /sync/collection/shows entries.
type traktShowSeasons struct {
	Show    TraktShow     `json:"show"`
	Seasons []traktSeason `json:"seasons"`
}

type traktCollectedMovie struct {
	CollectedAt string     `json:"collected_at"`
	Movie       TraktMovie `json:"movie"`
}

type traktRating struct {
	Rating  int           `json:"rating"`
	Type    string        `json:"type"`
	Movie   *TraktMovie   `json:"movie,omitempty"`
	Show    *TraktShow    `json:"show,omitempty"`
	Episode *TraktEpisode `json:"episode,omitempty"`
}

type traktSyncSeason struct {
	Number   int                  `json:"number"`
	Episodes []traktEpisodeNumber `json:"episodes"`
}

type traktSyncShow struct {
	Title   string            `json:"title,omitempty"`
	Year    int               `json:"year,omitempty"`
	IDs     TraktIDs          `json:"ids"`
	Seasons []traktSyncSeason `json:"seasons"`
}

// TraktSyncRequest is the body of the bulk history and collection endpoints.
type TraktSyncRequest struct {
	Movies []TraktMovie    `json:"movies,omitempty"`
	Shows  []traktSyncShow `json:"shows,omitempty"`

	skipped int
}

// Skipped is how many items were left out because no identifier could be sent.
func (r TraktSyncRequest) Skipped() int { return r.skipped }

type traktCounts struct {
	Movies   int `json:"movies"`
	Episodes int `json:"episodes"`
}

// TraktSyncResponse reports what a bulk request changed.
type TraktSyncResponse struct {
	Added    traktCounts `json:"added"`
	Existing traktCounts `json:"existing"`
	NotFound struct {
		Movies   []TraktMovie   `json:"movies"`
		Shows    []TraktShow    `json:"shows"`
		Episodes []TraktEpisode `json:"episodes"`
	} `json:"not_found"`
}

func (r TraktSyncResponse) result() *BulkResult {
	return &BulkResult{
		AddedMovies:      r.Added.Movies,
		AddedEpisodes:    r.Added.Episodes,
		ExistingMovies:   r.Existing.Movies,
		ExistingEpisodes: r.Existing.Episodes,
		NotFound:         len(r.NotFound.Movies) + len(r.NotFound.Shows) + len(r.NotFound.Episodes),
	}
}

// TraktOpts configures a [TraktService].
type TraktOpts struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	APIURL       string
	Store        TokenStore
	HTTPClient   *http.Client
	Limiter      *rate.Limiter
	Retrier      *retry.Retrier
	Logger       *log.Logger
}

// TraktService implements [Tracker] for Trakt. Uses [oauth2] for the authorization code flow and
// refreshes expired tokens, saving each new token through the [TokenStore].
type TraktService struct {
	config     *oauth2.Config
	apiURL     string
	clientID   string
	store      TokenStore
	httpClient *http.Client
	limiter    *rate.Limiter
	retrier    *retry.Retrier
	logger     *log.Logger

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewTraktService creates a Trakt client. Call [TraktService.Authenticate] before any sync call.
func NewTraktService(opts TraktOpts) (*TraktService, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, fmt.Errorf("%w: trakt client id and secret are required", shared.ErrMissingCredentials)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: trakt token store is required", shared.ErrInvalidConfig)
	}
	if opts.APIURL == "" {
		opts.APIURL = defaultTraktAPIURL
	}
	if opts.RedirectURI == "" {
		opts.RedirectURI = traktOOBRedirect
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Limit(defaultTraktRate), 1)
	}
	if opts.Retrier == nil {
		opts.Retrier = retry.New(retry.Policy{}, nil)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}

	apiURL := strings.TrimRight(opts.APIURL, "/")
	config := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		RedirectURL:  opts.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   traktAuthURL,
			TokenURL:  apiURL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return &TraktService{
		config:     config,
		apiURL:     apiURL,
		clientID:   opts.ClientID,
		store:      opts.Store,
		httpClient: opts.HTTPClient,
		limiter:    opts.Limiter,
		retrier:    opts.Retrier,
		logger:     opts.Logger,
	}, nil
}

func (s *TraktService) Name() string {
	return "Trakt"
}

// AuthCodeURL returns the authorization page URL the user approves access on.
func (s *TraktService) AuthCodeURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// RedirectURI is the registered redirect; the out-of-band value means the user pastes a PIN.
func (s *TraktService) RedirectURI() string {
	return s.config.RedirectURL
}

// Exchange trades an authorization code (or PIN) for a token and saves it.
func (s *TraktService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	token, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
	}
	if err := s.store.Save(token); err != nil {
		return nil, err
	}

	s.setToken(token)
	return token, nil
}

// Authenticate loads the stored token and verifies it against the account settings endpoint.
func (s *TraktService) Authenticate(ctx context.Context) error {
	token, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
	}
	if token == nil {
		return fmt.Errorf("%w: no trakt token saved, run `plexsync auth login`", shared.ErrNotAuthenticated)
	}
	if !token.Valid() && token.RefreshToken == "" {
		return fmt.Errorf("%w: trakt token expired and cannot be refreshed", shared.ErrTokenExpired)
	}

	s.setToken(token)
	if err := s.doRequest(ctx, http.MethodGet, "/users/settings", nil, nil); err != nil {
		if errors.Is(err, shared.ErrAuthFailed) || errors.Is(err, shared.ErrRefreshFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	return nil
}

// Token returns the current token without contacting Trakt, or nil when none is stored.
func (s *TraktService) Token() (*oauth2.Token, error) {
	return s.store.Load()
}

func (s *TraktService) setToken(token *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = &persistingSource{
		base:  s.config.TokenSource(s.oauthContext(context.Background()), token),
		store: s.store,
		last:  token.AccessToken,
	}
}

func (s *TraktService) tokenSource() oauth2.TokenSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// oauthContext makes token exchanges and refreshes use the service's HTTP client.
func (s *TraktService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// WatchedMovies retrieves every watched movie.
func (s *TraktService) WatchedMovies(ctx context.Context) ([]models.TrackedItem, error) {
	var watched []traktWatchedMovie
	if err := s.get(ctx, "trakt.watched.movies", "/sync/watched/movies", &watched); err != nil {
		return nil, err
	}

	items := make([]models.TrackedItem, 0, len(watched))
	for _, w := range watched {
		items = append(items, movieItem(w.Movie, 0))
	}
	return items, nil
}

// WatchedEpisodes retrieves every watched show and expands it to one item per watched episode.
func (s *TraktService) WatchedEpisodes(ctx context.Context) ([]models.TrackedItem, error) {
	var shows []traktShowSeasons
	if err := s.get(ctx, "trakt.watched.shows", "/sync/watched/shows", &shows); err != nil {
		return nil, err
	}
	return expandEpisodes(shows), nil
}

// Ratings retrieves the user's ratings of one kind.
func (s *TraktService) Ratings(ctx context.Context, kind RatingKind) ([]models.TrackedItem, error) {
	switch kind {
	case RatingMovies, RatingShows, RatingEpisodes:
	default:
		return nil, fmt.Errorf("%w: rating kind %q", shared.ErrInvalidInput, kind)
	}

	var ratings []traktRating
	if err := s.get(ctx, "trakt.ratings."+string(kind), "/sync/ratings/"+string(kind), &ratings); err != nil {
		return nil, err
	}

	items := make([]models.TrackedItem, 0, len(ratings))
	for _, r := range ratings {
		switch {
		case r.Episode != nil && r.Show != nil:
			items = append(items, models.TrackedItem{
				Kind:      models.Episode,
				Title:     r.Episode.Title,
				ShowTitle: r.Show.Title,
				Season:    r.Episode.Season,
				Number:    r.Episode.Number,
				Rating:    r.Rating,
				IDs:       r.Show.IDs.set(),
			})
		case r.Show != nil:
			items = append(items, showItem(*r.Show, r.Rating))
		case r.Movie != nil:
			items = append(items, movieItem(*r.Movie, r.Rating))
		}
	}
	return items, nil
}

// Collection retrieves collected movies, or collected episodes for [models.Episode] and [models.Show].
func (s *TraktService) Collection(ctx context.Context, kind models.MediaKind) ([]models.TrackedItem, error) {
	if kind == models.Movie {
		var collected []traktCollectedMovie
		if err := s.get(ctx, "trakt.collection.movies", "/sync/collection/movies", &collected); err != nil {
			return nil, err
		}
		items := make([]models.TrackedItem, 0, len(collected))
		for _, c := range collected {
			items = append(items, movieItem(c.Movie, 0))
		}
		return items, nil
	}

	var shows []traktShowSeasons
	if err := s.get(ctx, "trakt.collection.shows", "/sync/collection/shows", &shows); err != nil {
		return nil, err
	}
	return expandEpisodes(shows), nil
}

// AddToHistory marks items watched with a single POST to /sync/history.
func (s *TraktService) AddToHistory(ctx context.Context, items []models.MediaItem) (*BulkResult, error) {
	return s.post(ctx, "/sync/history", items)
}

// AddToCollection adds items to the collection with a single POST to /sync/collection.
func (s *TraktService) AddToCollection(ctx context.Context, items []models.MediaItem) (*BulkResult, error) {
	return s.post(ctx, "/sync/collection", items)
}

func (s *TraktService) post(ctx context.Context, path string, items []models.MediaItem) (*BulkResult, error) {
	body := BuildSyncRequest(items)
	if body.Skipped() > 0 {
		s.logger.Warn("items without a usable identifier left out", "path", path, "skipped", body.Skipped())
	}
	if len(body.Movies) == 0 && len(body.Shows) == 0 {
		return &BulkResult{}, nil
	}

	var resp TraktSyncResponse
	if err := s.doRequest(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}

	result := resp.result()
	s.logger.Debug("bulk request done", "path", path, "added", result.Added(), "not_found", result.NotFound)
	return result, nil
}

// BuildSyncRequest converts library items into a bulk request body. Movies are sent with their
// identifier block. Episodes are grouped under their show and season in first-seen order.
// Items without an identifier Trakt can take are dropped and counted in [TraktSyncRequest.Skipped].
func BuildSyncRequest(items []models.MediaItem) TraktSyncRequest {
	var req TraktSyncRequest
	showIndex := make(map[string]int)

	for _, item := range items {
		ids, ok := traktIDs(item.IDs)
		if !ok {
			req.skipped++
			continue
		}

		switch item.Kind {
		case models.Movie:
			req.Movies = append(req.Movies, TraktMovie{Title: item.Title, Year: item.Year, IDs: ids})
		case models.Episode:
			key := item.IDs.Canonical()[0].String()
			idx, ok := showIndex[key]
			if !ok {
				idx = len(req.Shows)
				showIndex[key] = idx
				req.Shows = append(req.Shows, traktSyncShow{Title: item.ShowTitle, IDs: ids})
			}

			show := &req.Shows[idx]
			si := slices.IndexFunc(show.Seasons, func(season traktSyncSeason) bool { return season.Number == item.Season })
			if si < 0 {
				show.Seasons = append(show.Seasons, traktSyncSeason{Number: item.Season})
				si = len(show.Seasons) - 1
			}
			show.Seasons[si].Episodes = append(show.Seasons[si].Episodes, traktEpisodeNumber{Number: item.Number})
		}
	}
	return req
}

// traktIDs builds the id block. Numeric ids that do not fit an int are left out; ok is false when
// nothing is left.
func traktIDs(ids models.IDSet) (TraktIDs, bool) {
	var out TraktIDs
	if v, ok := ids.Get(models.IMDB); ok {
		out.IMDB = v
	}
	if v, ok := ids.Get(models.TVDB); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			out.TVDB = n
		}
	}
	if v, ok := ids.Get(models.TMDB); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			out.TMDB = n
		}
	}
	return out, out != TraktIDs{}
}

func movieItem(m TraktMovie, rating int) models.TrackedItem {
	return models.TrackedItem{Kind: models.Movie, Title: m.Title, Year: m.Year, Rating: rating, IDs: m.IDs.set()}
}

func showItem(sh TraktShow, rating int) models.TrackedItem {
	return models.TrackedItem{Kind: models.Show, Title: sh.Title, Year: sh.Year, Rating: rating, IDs: sh.IDs.set()}
}

// expandEpisodes flattens show → seasons → episodes; every episode carries the show's identifiers.
func expandEpisodes(shows []traktShowSeasons) []models.TrackedItem {
	var items []models.TrackedItem
	for _, sh := range shows {
		ids := sh.Show.IDs.set()
		for _, season := range sh.Seasons {
			for _, ep := range season.Episodes {
				items = append(items, models.TrackedItem{
					Kind:      models.Episode,
					ShowTitle: sh.Show.Title,
					Year:      sh.Show.Year,
					Season:    season.Number,
					Number:    ep.Number,
					IDs:       ids,
				})
			}
		}
	}
	return items
}

func (s *TraktService) get(ctx context.Context, op, path string, result any) error {
	return s.retrier.Do(ctx, op, func(ctx context.Context) error {
		return s.doRequest(ctx, http.MethodGet, path, nil, result)
	})
}

// doRequest performs an authenticated, rate-limited request against the Trakt API.
func (s *TraktService) doRequest(ctx context.Context, method, path string, body, result any) error {
	source := s.tokenSource()
	if source == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	token, err := source.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.apiURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", traktAPIVersion)
	req.Header.Set("trakt-api-key", s.clientID)
	token.SetAuthHeader(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: trakt %s %s: %v", shared.ErrServiceUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: trakt rejected the access token", shared.ErrAuthFailed)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: trakt %s %s: status %d", shared.ErrServiceUnavailable, method, path, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: trakt %s %s: status %d: %s", shared.ErrAPIRequest, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode trakt response: %w", err)
	}
	return nil
}
