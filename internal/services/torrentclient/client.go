// Package torrentclient is the engine's contract over an external download
// daemon: submit a magnet, ask for progress by hash, remove by hash.
package torrentclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrUnavailable means the daemon is unreachable. This is always a
// transient fault: the caller skips the current pass for the affected item
// and retries next cycle. It is never a download failure.
var ErrUnavailable = errors.New("torrent client unavailable")

// ErrTorrentNotFound means the daemon no longer knows the hash, usually
// because the torrent was removed manually.
var ErrTorrentNotFound = errors.New("torrent not found in client")

// State is the daemon-agnostic view of a torrent's condition
type State string

const (
	StateStarting    State = "starting"
	StateDownloading State = "downloading"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Status reports one torrent's state and progress in [0,1]
type Status struct {
	Hash     string
	State    State
	Progress float64
}

// Client is implemented per download daemon
type Client interface {
	// Name identifies the daemon in logs
	Name() string
	// Connect verifies the daemon is reachable and authenticates
	Connect(ctx context.Context) error
	// Submit adds a magnet and returns its info hash
	Submit(ctx context.Context, magnetURI string) (string, error)
	// Status reports state and progress for a previously submitted hash
	Status(ctx context.Context, hash string) (Status, error)
	// Remove deletes the torrent (and its data) from the daemon
	Remove(ctx context.Context, hash string) error
}

// Probe returns the first candidate client that connects. The original
// deployment runs either qBittorrent or Transmission; whichever answers is
// the gateway for this process lifetime.
func Probe(ctx context.Context, logger *logrus.Logger, candidates ...Client) (Client, error) {
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if err := c.Connect(ctx); err != nil {
			logger.WithError(err).WithField("client", c.Name()).Warn("Torrent client not reachable")
			continue
		}
		logger.WithField("client", c.Name()).Info("Torrent client connected")
		return c, nil
	}
	return nil, fmt.Errorf("no torrent client reachable: %w", ErrUnavailable)
}

// ExtractHash pulls the lowercased btih info hash out of a magnet URI.
// The hash is the engine's de-duplication key and the handle for all
// subsequent status polling.
func ExtractHash(magnetURI string) (string, error) {
	parsed, err := url.Parse(magnetURI)
	if err != nil {
		return "", fmt.Errorf("invalid magnet URI: %w", err)
	}
	if parsed.Scheme != "magnet" {
		return "", fmt.Errorf("not a magnet URI: %q", magnetURI)
	}

	for _, xt := range parsed.Query()["xt"] {
		if hash, found := strings.CutPrefix(xt, "urn:btih:"); found && hash != "" {
			return strings.ToLower(hash), nil
		}
	}

	return "", fmt.Errorf("magnet URI carries no btih hash: %q", magnetURI)
}
