package controllers

import (
	"context"

	"github.com/0xlunar/roundup/internal/services/aggregator"
	"github.com/0xlunar/roundup/internal/services/indexer"
	"github.com/0xlunar/roundup/internal/services/torrentclient"
)

// Searcher fans a query out across the torrent sources
type Searcher interface {
	SearchAll(ctx context.Context, query indexer.Query) ([]indexer.Candidate, *aggregator.Report)
}

// Gateway is the slice of the torrent client contract the loops use
type Gateway interface {
	Submit(ctx context.Context, magnetURI string) (string, error)
	Status(ctx context.Context, hash string) (torrentclient.Status, error)
	Remove(ctx context.Context, hash string) error
}

// Notifier triggers a media-server library refresh
type Notifier interface {
	RefreshLibrary(ctx context.Context) error
}

// EpisodeLister enumerates all aired episodes of a show
type EpisodeLister interface {
	ListEpisodes(ctx context.Context, imdbID string) ([]indexer.Episode, error)
}

// LibraryHoldings reports the episodes already present in the media library
type LibraryHoldings interface {
	ExistingEpisodes(ctx context.Context, title string) ([]indexer.Episode, error)
}
