package torrentclient

import (
	"context"
	"fmt"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/sirupsen/logrus"

	"github.com/0xlunar/roundup/internal/config"
)

// QBittorrent implements Client over the qBittorrent Web API
type QBittorrent struct {
	client *qbt.Client
	logger *logrus.Logger
}

// NewQBittorrent creates a qBittorrent gateway from configuration.
// Returns nil when no qBittorrent URL is configured.
func NewQBittorrent(cfg *config.Config, logger *logrus.Logger) *QBittorrent {
	if cfg.QBittorrentURL == "" {
		return nil
	}

	return &QBittorrent{
		client: qbt.NewClient(qbt.Config{
			Host:     cfg.QBittorrentURL,
			Username: cfg.QBittorrentUsername,
			Password: cfg.QBittorrentPassword,
			Timeout:  30,
		}),
		logger: logger,
	}
}

// Name identifies the daemon in logs
func (q *QBittorrent) Name() string {
	return "qbittorrent"
}

// Connect authenticates against the Web API
func (q *QBittorrent) Connect(ctx context.Context) error {
	if err := q.client.LoginCtx(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Submit adds a magnet and returns its info hash
func (q *QBittorrent) Submit(ctx context.Context, magnetURI string) (string, error) {
	hash, err := ExtractHash(magnetURI)
	if err != nil {
		return "", err
	}

	if err := q.client.AddTorrentFromUrlCtx(ctx, magnetURI, map[string]string{}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	q.logger.WithField("hash", hash).Debug("Magnet submitted to qBittorrent")
	return hash, nil
}

// Status reports state and progress for a hash
func (q *QBittorrent) Status(ctx context.Context, hash string) (Status, error) {
	torrents, err := q.client.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{
		Hashes: []string{hash},
	})
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(torrents) == 0 {
		return Status{}, ErrTorrentNotFound
	}

	t := torrents[0]
	return Status{
		Hash:     hash,
		State:    mapQbtState(t.State, t.Progress),
		Progress: t.Progress,
	}, nil
}

// Remove deletes the torrent and its data
func (q *QBittorrent) Remove(ctx context.Context, hash string) error {
	if err := q.client.DeleteTorrentsCtx(ctx, []string{hash}, true); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func mapQbtState(state qbt.TorrentState, progress float64) State {
	switch state {
	case qbt.TorrentStateError, qbt.TorrentStateMissingFiles:
		return StateFailed
	case qbt.TorrentStateUploading, qbt.TorrentStateStalledUp, qbt.TorrentStatePausedUp,
		qbt.TorrentStateQueuedUp, qbt.TorrentStateForcedUp, qbt.TorrentStateCheckingUp:
		return StateCompleted
	case qbt.TorrentStateDownloading, qbt.TorrentStateStalledDl, qbt.TorrentStateMetaDl,
		qbt.TorrentStateForcedDl, qbt.TorrentStateCheckingDl, qbt.TorrentStateAllocating,
		qbt.TorrentStateMoving, qbt.TorrentStateCheckingResumeData:
		return StateDownloading
	case qbt.TorrentStateQueuedDl, qbt.TorrentStatePausedDl:
		return StateStarting
	default:
		// Unknown states with full progress are done, the rest are treated
		// as still moving and resolved on a later poll
		if progress >= 1.0 {
			return StateCompleted
		}
		return StateDownloading
	}
}
