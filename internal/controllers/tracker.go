package controllers

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/0xlunar/roundup/internal/models"
	"github.com/0xlunar/roundup/internal/services/torrentclient"
)

// TrackerController polls the download client for every in-flight download
// and advances the stored lifecycle to match. Completion of a movie clears
// its watchlist flag; shows stay watchlisted so future episodes keep being
// picked up.
type TrackerController struct {
	db       *models.Database
	gateway  Gateway
	notifier Notifier
	logger   *logrus.Logger
}

// NewTrackerController creates a new download tracker controller
func NewTrackerController(db *models.Database, gateway Gateway, notifier Notifier, logger *logrus.Logger) *TrackerController {
	return &TrackerController{
		db:       db,
		gateway:  gateway,
		notifier: notifier,
		logger:   logger,
	}
}

// Run executes one tracking pass over all in-flight downloads
func (c *TrackerController) Run(ctx context.Context) error {
	inflight, err := c.db.GetInFlightDownloads()
	if err != nil {
		return err
	}
	if len(inflight) == 0 {
		return nil
	}

	c.logger.WithField("count", len(inflight)).Debug("Tracking in-flight downloads")

	for _, d := range inflight {
		if err := c.track(ctx, d); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"download_id": d.ID,
				"hash":        d.MagnetHash,
			}).Warn("Failed to track download")
		}
	}
	return nil
}

func (c *TrackerController) track(ctx context.Context, d *models.ActiveDownload) error {
	status, err := c.gateway.Status(ctx, d.MagnetHash)
	if err != nil {
		if errors.Is(err, torrentclient.ErrTorrentNotFound) {
			// Removed out from under us via the daemon's own UI
			c.logger.WithFields(logrus.Fields{
				"download_id": d.ID,
				"hash":        d.MagnetHash,
			}).Warn("Torrent no longer present in client, marking failed")
			return c.db.MarkDownloadFailed(d, "removed from download client")
		}
		if errors.Is(err, torrentclient.ErrUnavailable) {
			// Client outage: leave the row untouched for the next pass
			return nil
		}
		return err
	}

	switch status.State {
	case torrentclient.StateFailed:
		return c.db.MarkDownloadFailed(d, "download client reported an error")
	case torrentclient.StateCompleted:
		return c.complete(ctx, d)
	default:
		return c.db.AdvanceDownload(d, models.DownloadStateDownloading, status.Progress)
	}
}

func (c *TrackerController) complete(ctx context.Context, d *models.ActiveDownload) error {
	if err := c.db.AdvanceDownload(d, models.DownloadStateCompleted, 1); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"download_id": d.ID,
		"imdb_id":     d.ImdbID,
		"quality":     d.Quality,
	}).Info("Download completed")

	if d.Kind == models.MediaKindMovie {
		if err := c.db.ClearWatchlist(d.MediaID); err != nil {
			c.logger.WithError(err).WithField("media_id", d.MediaID).Error("Failed to clear watchlist flag")
		}
	}

	// The file is on disk either way; a refresh failure only delays visibility
	if err := c.notifier.RefreshLibrary(ctx); err != nil {
		c.logger.WithError(err).Warn("Library refresh failed")
	}

	if err := c.gateway.Remove(ctx, d.MagnetHash); err != nil {
		c.logger.WithError(err).WithField("hash", d.MagnetHash).Warn("Failed to remove completed torrent from client")
	}
	return nil
}
