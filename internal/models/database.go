package models

import (
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// Database wraps the bolthold store. Both control loops read and write it
// concurrently; bbolt's single-writer transactions are what enforce the
// de-duplication invariant, not loop coordination.
type Database struct {
	store *bolthold.Store
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// Media operations

// CreateMedia creates a new media item in the database
func (db *Database) CreateMedia(media *MediaItem) error {
	media.CreatedAt = time.Now()
	media.UpdatedAt = time.Now()
	return db.store.Insert(bolthold.NextSequence(), media)
}

// UpdateMedia updates an existing media item
func (db *Database) UpdateMedia(media *MediaItem) error {
	media.UpdatedAt = time.Now()
	return db.store.Update(media.ID, media)
}

// GetMediaByID retrieves a media item by ID
func (db *Database) GetMediaByID(id uint64) (*MediaItem, error) {
	var media MediaItem
	if err := db.store.Get(id, &media); err != nil {
		return nil, err
	}
	return &media, nil
}

// GetMediaByImdbID retrieves a media item by IMDb ID
func (db *Database) GetMediaByImdbID(imdbID string) (*MediaItem, error) {
	var media MediaItem
	err := db.store.FindOne(&media, bolthold.Where("ImdbID").Eq(imdbID).Index("ImdbID"))
	if err != nil {
		return nil, err
	}
	return &media, nil
}

// GetWatchlist retrieves all media items flagged for automatic acquisition
func (db *Database) GetWatchlist() ([]*MediaItem, error) {
	var items []*MediaItem
	err := db.store.Find(&items, bolthold.Where("Watchlist").Eq(true).Index("Watchlist"))
	return items, err
}

// GetAllMedia retrieves every media item
func (db *Database) GetAllMedia() ([]*MediaItem, error) {
	var items []*MediaItem
	err := db.store.Find(&items, nil)
	return items, err
}

// ClearWatchlist flips the watchlist flag off for a media item.
// Used by the lifecycle policy when a movie download completes.
func (db *Database) ClearWatchlist(mediaID uint64) error {
	media, err := db.GetMediaByID(mediaID)
	if err != nil {
		return err
	}
	media.Watchlist = false
	return db.UpdateMedia(media)
}

// Download operations

// ErrAlreadyInFlight is returned by InsertDownloadIfAbsent when another
// download for the same (media, season, episode) tuple is not yet terminal.
var ErrAlreadyInFlight = fmt.Errorf("download already in flight for target")

// InsertDownloadIfAbsent inserts an ActiveDownload row unless one is already
// in flight for the same (MediaID, Season, Episode) tuple. The check and
// insert run inside a single write transaction so concurrent targets cannot
// race the invariant.
func (db *Database) InsertDownloadIfAbsent(d *ActiveDownload) error {
	d.CreatedAt = time.Now()
	d.UpdatedAt = time.Now()

	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var existing []*ActiveDownload
		query := bolthold.Where("MediaID").Eq(d.MediaID).Index("MediaID").
			And("Season").Eq(d.Season).
			And("Episode").Eq(d.Episode).
			And("State").In(DownloadStateNotStarted, DownloadStateDownloading)
		if err := db.store.TxFind(tx, &existing, query); err != nil {
			return err
		}
		if len(existing) > 0 {
			return ErrAlreadyInFlight
		}
		return db.store.TxInsert(tx, bolthold.NextSequence(), d)
	})
}

// UpdateDownload updates an existing download row
func (db *Database) UpdateDownload(d *ActiveDownload) error {
	d.UpdatedAt = time.Now()
	return db.store.Update(d.ID, d)
}

// GetDownloadByHash retrieves a download by its magnet hash
func (db *Database) GetDownloadByHash(hash string) (*ActiveDownload, error) {
	var d ActiveDownload
	err := db.store.FindOne(&d, bolthold.Where("MagnetHash").Eq(hash).Index("MagnetHash"))
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetInFlightDownloads retrieves all downloads the tracker must poll
func (db *Database) GetInFlightDownloads() ([]*ActiveDownload, error) {
	var downloads []*ActiveDownload
	err := db.store.Find(&downloads,
		bolthold.Where("State").In(DownloadStateNotStarted, DownloadStateDownloading))
	return downloads, err
}

// GetDownloadsByMediaID retrieves every download row for a media item,
// including completed history
func (db *Database) GetDownloadsByMediaID(mediaID uint64) ([]*ActiveDownload, error) {
	var downloads []*ActiveDownload
	err := db.store.Find(&downloads, bolthold.Where("MediaID").Eq(mediaID).Index("MediaID"))
	return downloads, err
}

// GetAllDownloads retrieves every download row
func (db *Database) GetAllDownloads() ([]*ActiveDownload, error) {
	var downloads []*ActiveDownload
	err := db.store.Find(&downloads, nil)
	return downloads, err
}

// AdvanceDownload records the latest client-reported state and progress for
// a row. Progress never moves backwards while a download is in flight; a
// stale or glitchy client report keeps the stored high-water mark.
func (db *Database) AdvanceDownload(d *ActiveDownload, state DownloadState, progress float64) error {
	if progress > d.Progress {
		d.Progress = progress
	}
	d.State = state

	switch state {
	case DownloadStateCompleted:
		d.Progress = 1.0
		now := time.Now()
		d.CompletedAt = &now
	}

	return db.UpdateDownload(d)
}

// MarkDownloadFailed transitions a row to the failed terminal state
func (db *Database) MarkDownloadFailed(d *ActiveDownload, reason string) error {
	d.State = DownloadStateFailed
	d.FailureReason = reason
	return db.UpdateDownload(d)
}
