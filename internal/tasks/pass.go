package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plexsync/internal/matching"
	"github.com/desertthunder/plexsync/internal/models"
	"github.com/desertthunder/plexsync/internal/services"
	"github.com/desertthunder/plexsync/internal/shared"
)

// pullPass applies Trakt watched state and ratings to Plex, one call per item.
type pullPass struct {
	*run
	logger      *log.Logger
	watched     *matching.Index // watched movies or episodes; nil when watched sync is off
	ratings     *matching.Index // movie or episode ratings
	showRatings *matching.Index
}

func (r *run) newPullPass(ctx context.Context, lib models.Library, logger *log.Logger) (*pullPass, error) {
	p := &pullPass{run: r, logger: logger}
	movies := lib.Type == "movie"

	if r.opts.Watched {
		var watched []models.TrackedItem
		var err error
		if movies {
			watched, err = r.tracker.WatchedMovies(ctx)
		} else {
			watched, err = r.tracker.WatchedEpisodes(ctx)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: watched history: %w", shared.ErrFetchFailed, err)
		}
		p.watched = matching.NewIndex(watched)
	}

	if r.opts.Ratings {
		if movies {
			p.ratings = r.fetchRatings(ctx, services.RatingMovies, logger)
		} else {
			p.showRatings = r.fetchRatings(ctx, services.RatingShows, logger)
			p.ratings = r.fetchRatings(ctx, services.RatingEpisodes, logger)
		}
	}

	logger.Debug("tracker state fetched", "watched", p.watched.Len(), "ratings", p.ratings.Len(), "show_ratings", p.showRatings.Len())
	return p, nil
}

func (r *run) fetchRatings(ctx context.Context, kind services.RatingKind, logger *log.Logger) *matching.Index {
	items, err := r.tracker.Ratings(ctx, kind)
	if err != nil {
		r.fetchError(logger, "ratings/"+string(kind), err)
		return nil
	}
	return matching.NewIndex(items)
}

func (p *pullPass) handle(ctx context.Context, item models.MediaItem) error {
	matched := false
	ratings := p.ratings

	switch item.Kind {
	case models.Show:
		ratings = p.showRatings
	default:
		if _, via, ok := p.watched.LookupItem(item); ok {
			matched = true
			if item.Watched && p.opts.SkipSynced {
				p.stats.Skipped++
			} else if err := p.apply(ctx, newMutation(Pull, MarkWatched, item, via)); err != nil {
				return err
			}
		}
	}

	if rated, via, ok := ratings.LookupItem(item); ok && rated.Rating > 0 {
		matched = true
		want := float64(rated.Rating)
		if item.Rating != nil && *item.Rating == want {
			p.stats.Skipped++
		} else {
			m := newMutation(Pull, SetRating, item, via)
			m.Rating = want
			if err := p.apply(ctx, m); err != nil {
				return err
			}
		}
	}

	if matched {
		p.stats.Matched++
	}
	return nil
}

// apply performs one Plex write, paced by the mutation limiter. Only context cancellation is
// returned; a failed write is counted and logged. Cancellation is observed between writes.
func (p *pullPass) apply(ctx context.Context, m Mutation) error {
	if p.opts.DryRun {
		p.plan(m, p.logger)
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	// A started write is never cut off by cancellation; ctx only stops retries and pacing.
	write := context.WithoutCancel(ctx)
	err := p.retrier.Do(ctx, string(m.Action), func(context.Context) error {
		if m.Action == SetRating {
			return p.library.Rate(write, m.Item, m.Rating)
		}
		return p.library.MarkWatched(write, m.Item)
	})
	if err != nil {
		p.stats.Errors++
		p.logger.Warn("write failed", "item", m.Label, "action", m.Action, "error", fmt.Errorf("%w: %w", shared.ErrItemFailed, err))
		return nil
	}

	p.stats.Mutated++
	if m.Action == SetRating {
		p.stats.RatingsSet++
	} else {
		p.stats.WatchedMarked++
	}
	p.logger.Info(m.String(), "matched_by", m.Via)
	sendProgress(p.progress, mutationUpdate(p.step, p.total, m, false, p.stats))
	return nil
}

// batch accumulates push writes of one action until it is full.
type batch struct {
	action  Action
	pending []Mutation
	submit  func(context.Context, []models.MediaItem) (*services.BulkResult, error)
}

// pushPass submits Plex watched state (and optionally collection membership) to Trakt in bulk.
type pushPass struct {
	*run
	logger     *log.Logger
	watched    *matching.Index
	collected  *matching.Index
	history    *batch // nil when watched sync is off
	collection *batch // nil when collection sync is off or its fetch failed
}

func (r *run) newPushPass(ctx context.Context, lib models.Library, logger *log.Logger) (*pushPass, error) {
	p := &pushPass{run: r, logger: logger}
	kind := models.Movie
	if lib.Type == "show" {
		kind = models.Episode
	}

	if r.opts.Watched {
		var watched []models.TrackedItem
		var err error
		if kind == models.Movie {
			watched, err = r.tracker.WatchedMovies(ctx)
		} else {
			watched, err = r.tracker.WatchedEpisodes(ctx)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: watched history: %w", shared.ErrFetchFailed, err)
		}
		p.watched = matching.NewIndex(watched)
		p.history = &batch{action: AddHistory, submit: r.tracker.AddToHistory}
	}

	if r.opts.Collection {
		collected, err := r.tracker.Collection(ctx, kind)
		if err != nil {
			r.fetchError(logger, "collection", err)
		} else {
			p.collected = matching.NewIndex(collected)
			p.collection = &batch{action: AddToCollection, submit: r.tracker.AddToCollection}
		}
	}

	logger.Debug("tracker state fetched", "watched", p.watched.Len(), "collected", p.collected.Len())
	return p, nil
}

func (p *pushPass) handle(ctx context.Context, item models.MediaItem) error {
	// Shows have nothing to push; their episodes do.
	if item.Kind == models.Show {
		return nil
	}
	if item.IDs.Empty() {
		p.logger.Debug("no usable identifiers, skipping", "item", item.Label())
		return nil
	}

	matched := false
	if p.history != nil && item.Watched {
		_, via, found := p.watched.LookupItem(item)
		matched = matched || found
		if err := p.queue(ctx, p.history, item, via, found); err != nil {
			return err
		}
	}
	if p.collection != nil {
		_, via, found := p.collected.LookupItem(item)
		matched = matched || found
		if err := p.queue(ctx, p.collection, item, via, found); err != nil {
			return err
		}
	}

	if matched {
		p.stats.Matched++
	}
	return nil
}

// queue adds item to b unless Trakt already has it and skipping is on, flushing b when full.
func (p *pushPass) queue(ctx context.Context, b *batch, item models.MediaItem, via models.Provider, present bool) error {
	if present && p.opts.SkipSynced {
		p.stats.Skipped++
		return nil
	}
	b.pending = append(b.pending, newMutation(Push, b.action, item, via))
	if len(b.pending) >= p.opts.batchSize() {
		return p.flush(ctx, b)
	}
	return nil
}

func (p *pushPass) flushAll(ctx context.Context) error {
	for _, b := range []*batch{p.history, p.collection} {
		if b == nil {
			continue
		}
		if err := p.flush(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// flush submits the pending writes of b in one bulk request. The tracker's added count is what
// gets counted as mutated; a failed request counts as one error.
func (p *pushPass) flush(ctx context.Context, b *batch) error {
	pending := b.pending
	b.pending = nil
	if len(pending) == 0 {
		return nil
	}

	if p.opts.DryRun {
		for _, m := range pending {
			p.plan(m, p.logger)
		}
		sendProgress(p.progress, batchUpdate(p.step, p.total, b.action, len(pending), 0, true, p.stats))
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	items := make([]models.MediaItem, len(pending))
	for i, m := range pending {
		items[i] = m.Item
	}

	write := context.WithoutCancel(ctx)
	var result *services.BulkResult
	err := p.retrier.Do(ctx, string(b.action), func(context.Context) error {
		var err error
		result, err = b.submit(write, items)
		return err
	})
	if err != nil {
		p.stats.Errors++
		p.logger.Warn("batch failed", "action", b.action, "size", len(items), "error", fmt.Errorf("%w: %w", shared.ErrItemFailed, err))
		return nil
	}

	added := result.Added()
	p.stats.Mutated += added
	if b.action == AddToCollection {
		p.stats.CollectionAdded += added
	} else {
		p.stats.HistoryAdded += added
	}

	if result != nil && result.NotFound > 0 {
		p.logger.Warn("trakt could not resolve some items", "action", b.action, "not_found", result.NotFound)
	}
	p.logger.Info("batch submitted", "action", b.action, "sent", len(items), "added", added)
	sendProgress(p.progress, batchUpdate(p.step, p.total, b.action, len(items), added, false, p.stats))
	return nil
}
