package controllers

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/0xlunar/roundup/internal/models"
	"github.com/0xlunar/roundup/internal/selector"
	"github.com/0xlunar/roundup/internal/services/indexer"
	"github.com/0xlunar/roundup/internal/utils"
)

// target is one independent unit of reconciliation work: a movie, or one
// missing episode of a show
type target struct {
	media   *models.MediaItem
	season  *int
	episode *int
}

// ReconcileController runs one reconciliation cycle over the watchlist:
// find what each entry is still missing, search all sources, pick the best
// candidate and hand it to the download client. Cycles are idempotent
// across restarts; the only durable state is the media and download rows.
type ReconcileController struct {
	db          *models.Database
	search      Searcher
	selector    *selector.Selector
	gateway     Gateway
	episodes    EpisodeLister
	library     LibraryHoldings
	blacklist   *utils.Blacklist
	concurrency int
	logger      *logrus.Logger
}

// NewReconcileController creates a new reconciliation controller
func NewReconcileController(
	db *models.Database,
	search Searcher,
	sel *selector.Selector,
	gateway Gateway,
	episodes EpisodeLister,
	library LibraryHoldings,
	blacklist *utils.Blacklist,
	concurrency int,
	logger *logrus.Logger,
) *ReconcileController {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ReconcileController{
		db:          db,
		search:      search,
		selector:    sel,
		gateway:     gateway,
		episodes:    episodes,
		library:     library,
		blacklist:   blacklist,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run executes one reconciliation cycle. A failure in one target never
// aborts the rest; everything degrades to "try again next cycle".
func (c *ReconcileController) Run(ctx context.Context) error {
	watchlist, err := c.db.GetWatchlist()
	if err != nil {
		return fmt.Errorf("failed to load watchlist: %w", err)
	}
	if len(watchlist) == 0 {
		c.logger.Debug("Watchlist is empty, nothing to reconcile")
		return nil
	}

	c.logger.WithField("count", len(watchlist)).Info("Reconciling watchlist")

	var targets []target
	for _, item := range watchlist {
		itemTargets, err := c.buildTargets(ctx, item)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"media_id": item.ID,
				"title":    item.Title,
			}).Warn("Failed to determine targets, skipping item this cycle")
			continue
		}
		targets = append(targets, itemTargets...)
	}

	if len(targets) == 0 {
		c.logger.Debug("All watchlist entries already in flight or acquired")
		return nil
	}

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			if err := c.processTarget(ctx, t); err != nil {
				c.logger.WithError(err).WithFields(logrus.Fields{
					"media_id": t.media.ID,
					"title":    t.media.Title,
				}).Warn("Target not acquired this cycle")
			}
			return nil
		})
	}
	_ = g.Wait()

	return nil
}

// buildTargets expands one watchlist entry into independent targets,
// skipping anything already in flight or already acquired.
func (c *ReconcileController) buildTargets(ctx context.Context, item *models.MediaItem) ([]target, error) {
	history, err := c.db.GetDownloadsByMediaID(item.ID)
	if err != nil {
		return nil, err
	}

	if item.Kind == models.MediaKindMovie {
		for _, d := range history {
			if d.State.InFlight() || d.State == models.DownloadStateCompleted {
				return nil, nil
			}
		}
		return []target{{media: item}}, nil
	}

	missing, err := c.missingEpisodes(ctx, item, history)
	if err != nil {
		return nil, err
	}

	targets := make([]target, 0, len(missing))
	for _, ep := range missing {
		season, episode := ep.Season, ep.Episode
		targets = append(targets, target{media: item, season: &season, episode: &episode})
	}
	return targets, nil
}

// missingEpisodes is the full listing minus library holdings minus episodes
// already in flight or completed
func (c *ReconcileController) missingEpisodes(ctx context.Context, item *models.MediaItem, history []*models.ActiveDownload) ([]indexer.Episode, error) {
	all, err := c.episodes.ListEpisodes(ctx, item.ImdbID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	held, err := c.library.ExistingEpisodes(ctx, fmt.Sprintf("%s (%d)", item.Title, item.Year))
	if err != nil {
		return nil, err
	}

	acquired := make(map[indexer.Episode]bool, len(held)+len(history))
	for _, ep := range held {
		acquired[ep] = true
	}
	for _, d := range history {
		if d.State.InFlight() || d.State == models.DownloadStateCompleted {
			acquired[indexer.Episode{Season: d.Season, Episode: d.Episode}] = true
		}
	}

	var missing []indexer.Episode
	for _, ep := range all {
		if !acquired[ep] {
			missing = append(missing, ep)
		}
	}
	return missing, nil
}

func (c *ReconcileController) processTarget(ctx context.Context, t target) error {
	query := indexer.Query{
		ImdbID: t.media.ImdbID,
		Title:  t.media.Title,
		Year:   t.media.Year,
		Kind:   t.media.Kind,
	}
	if t.season != nil && t.episode != nil {
		query.Episodes = []indexer.Episode{{Season: *t.season, Episode: *t.episode}}
	}

	candidates, _ := c.search.SearchAll(ctx, query)
	candidates = c.dropBlacklisted(candidates)

	best, ok := c.selector.Select(candidates, selector.Target{
		Title:   t.media.Title,
		Year:    t.media.Year,
		Kind:    t.media.Kind,
		Season:  t.season,
		Episode: t.episode,
	})
	if !ok {
		// Nothing suitable out there yet; the target stays pending
		c.logger.WithFields(logrus.Fields{
			"media_id":   t.media.ID,
			"title":      t.media.Title,
			"candidates": len(candidates),
		}).Debug("No candidate selected")
		return nil
	}

	return c.submit(ctx, t, best)
}

func (c *ReconcileController) dropBlacklisted(candidates []indexer.Candidate) []indexer.Candidate {
	kept := candidates[:0]
	for _, cand := range candidates {
		if bad, term := c.blacklist.IsBlacklisted(cand.Title); bad {
			c.logger.WithFields(logrus.Fields{
				"title": cand.Title,
				"term":  term,
			}).Debug("Candidate blacklisted")
			continue
		}
		kept = append(kept, cand)
	}
	return kept
}

// submit hands the magnet to the download client and records the row.
// Submission failure records nothing: at-most-one-in-flight is preserved
// by retrying next cycle rather than assuming success.
func (c *ReconcileController) submit(ctx context.Context, t target, candidate indexer.Candidate) error {
	hash, err := c.gateway.Submit(ctx, candidate.MagnetURI)
	if err != nil {
		return fmt.Errorf("submission failed, retrying next cycle: %w", err)
	}

	download := &models.ActiveDownload{
		MediaID:    t.media.ID,
		ImdbID:     t.media.ImdbID,
		Kind:       t.media.Kind,
		Quality:    candidate.Quality,
		MagnetHash: hash,
		State:      models.DownloadStateNotStarted,
	}
	if t.season != nil {
		download.Season = *t.season
	}
	if t.episode != nil {
		download.Episode = *t.episode
	}

	if err := c.db.InsertDownloadIfAbsent(download); err != nil {
		if errors.Is(err, models.ErrAlreadyInFlight) {
			// A concurrent target beat us to this tuple; withdraw our copy
			if rmErr := c.gateway.Remove(ctx, hash); rmErr != nil {
				c.logger.WithError(rmErr).WithField("hash", hash).Warn("Failed to withdraw duplicate submission")
			}
			return nil
		}
		return fmt.Errorf("failed to record download: %w", err)
	}

	// Submission is confirmed, the row leaves NotStarted right away
	if err := c.db.AdvanceDownload(download, models.DownloadStateDownloading, 0); err != nil {
		c.logger.WithError(err).WithField("hash", hash).Error("Failed to advance new download")
	}

	c.logger.WithFields(logrus.Fields{
		"media_id": t.media.ID,
		"title":    candidate.Title,
		"source":   candidate.Source,
		"quality":  candidate.Quality,
		"seeders":  candidate.Seeders,
		"hash":     hash,
	}).Info("Download started")

	return nil
}
