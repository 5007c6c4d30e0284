package controllers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xlunar/roundup/internal/models"
	"github.com/0xlunar/roundup/internal/selector"
	"github.com/0xlunar/roundup/internal/services/aggregator"
	"github.com/0xlunar/roundup/internal/services/indexer"
	"github.com/0xlunar/roundup/internal/services/torrentclient"
	"github.com/0xlunar/roundup/internal/utils"
)

// fakeSearcher returns canned candidates and records the queries it saw
type fakeSearcher struct {
	candidates []indexer.Candidate
	queries    []indexer.Query
}

func (f *fakeSearcher) SearchAll(_ context.Context, query indexer.Query) ([]indexer.Candidate, *aggregator.Report) {
	f.queries = append(f.queries, query)
	return f.candidates, &aggregator.Report{}
}

// fakeGateway records submissions and removals
type fakeGateway struct {
	submitted []string
	removed   []string
	submitErr error
	statuses  map[string]torrentclient.Status
	statusErr error
}

func (f *fakeGateway) Submit(_ context.Context, magnetURI string) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	hash, err := torrentclient.ExtractHash(magnetURI)
	if err != nil {
		return "", err
	}
	f.submitted = append(f.submitted, hash)
	return hash, nil
}

func (f *fakeGateway) Status(_ context.Context, hash string) (torrentclient.Status, error) {
	if f.statusErr != nil {
		return torrentclient.Status{}, f.statusErr
	}
	status, ok := f.statuses[hash]
	if !ok {
		return torrentclient.Status{}, torrentclient.ErrTorrentNotFound
	}
	return status, nil
}

func (f *fakeGateway) Remove(_ context.Context, hash string) error {
	f.removed = append(f.removed, hash)
	return nil
}

type fakeEpisodeLister struct {
	episodes []indexer.Episode
}

func (f *fakeEpisodeLister) ListEpisodes(context.Context, string) ([]indexer.Episode, error) {
	return f.episodes, nil
}

type fakeLibrary struct {
	held []indexer.Episode
}

func (f *fakeLibrary) ExistingEpisodes(context.Context, string) ([]indexer.Episode, error) {
	return f.held, nil
}

func newTestDatabase(t *testing.T) *models.Database {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newReconcile(db *models.Database, search Searcher, gw Gateway, eps EpisodeLister, lib LibraryHoldings) *ReconcileController {
	return NewReconcileController(
		db, search,
		selector.New([]string{"1080p", "720p"}, 0.85),
		gw, eps, lib,
		utils.NewBlacklist(nil),
		1, quietLogger(),
	)
}

func TestReconcileAcquiresWatchlistedMovie(t *testing.T) {
	db := newTestDatabase(t)
	movie := &models.MediaItem{ImdbID: "tt0000001", Kind: models.MediaKindMovie, Title: "Alpha", Year: 2020, Watchlist: true}
	require.NoError(t, db.CreateMedia(movie))

	search := &fakeSearcher{candidates: []indexer.Candidate{
		{Source: "yts", Title: "Alpha 2020 1080p BluRay", Quality: "1080p", Seeders: 50,
			MagnetURI: "magnet:?xt=urn:btih:ABCDEF1234567890ABCDEF1234567890ABCDEF12"},
	}}
	gw := &fakeGateway{}

	ctrl := newReconcile(db, search, gw, &fakeEpisodeLister{}, &fakeLibrary{})
	require.NoError(t, ctrl.Run(context.Background()))

	require.Len(t, gw.submitted, 1)
	assert.Equal(t, "abcdef1234567890abcdef1234567890abcdef12", gw.submitted[0])

	downloads, err := db.GetDownloadsByMediaID(movie.ID)
	require.NoError(t, err)
	require.Len(t, downloads, 1)
	assert.Equal(t, models.DownloadStateDownloading, downloads[0].State)
	assert.Equal(t, "1080p", downloads[0].Quality)
}

func TestReconcileSkipsMovieAlreadyInFlight(t *testing.T) {
	db := newTestDatabase(t)
	movie := &models.MediaItem{ImdbID: "tt0000001", Kind: models.MediaKindMovie, Title: "Alpha", Year: 2020, Watchlist: true}
	require.NoError(t, db.CreateMedia(movie))
	require.NoError(t, db.InsertDownloadIfAbsent(&models.ActiveDownload{
		MediaID: movie.ID, MagnetHash: "existing", State: models.DownloadStateDownloading,
	}))

	search := &fakeSearcher{}
	gw := &fakeGateway{}

	ctrl := newReconcile(db, search, gw, &fakeEpisodeLister{}, &fakeLibrary{})
	require.NoError(t, ctrl.Run(context.Background()))

	assert.Empty(t, search.queries, "in-flight movie must not be searched again")
	assert.Empty(t, gw.submitted)
}

func TestReconcileTargetsOnlyMissingEpisodes(t *testing.T) {
	db := newTestDatabase(t)
	show := &models.MediaItem{ImdbID: "tt0000002", Kind: models.MediaKindTVShow, Title: "Beta Show", Year: 2021, Watchlist: true}
	require.NoError(t, db.CreateMedia(show))

	// S01E01 already acquired
	e1 := &models.ActiveDownload{MediaID: show.ID, Kind: models.MediaKindTVShow, Season: 1, Episode: 1, MagnetHash: "done", State: models.DownloadStateNotStarted}
	require.NoError(t, db.InsertDownloadIfAbsent(e1))
	require.NoError(t, db.AdvanceDownload(e1, models.DownloadStateCompleted, 1))

	// S01E03 already on the media server
	lib := &fakeLibrary{held: []indexer.Episode{{Season: 1, Episode: 3}}}
	eps := &fakeEpisodeLister{episodes: []indexer.Episode{
		{Season: 1, Episode: 1}, {Season: 1, Episode: 2}, {Season: 1, Episode: 3},
	}}

	search := &fakeSearcher{candidates: []indexer.Candidate{
		{Source: "eztv", Title: "Beta Show S01E02 1080p WEB", Quality: "1080p", Seeders: 30,
			Season: intPtr(1), Episode: intPtr(2),
			MagnetURI: "magnet:?xt=urn:btih:1111111111111111111111111111111111111111"},
	}}
	gw := &fakeGateway{}

	ctrl := newReconcile(db, search, gw, eps, lib)
	require.NoError(t, ctrl.Run(context.Background()))

	require.Len(t, search.queries, 1, "only the missing episode is searched")
	require.Len(t, search.queries[0].Episodes, 1)
	assert.Equal(t, indexer.Episode{Season: 1, Episode: 2}, search.queries[0].Episodes[0])

	downloads, err := db.GetDownloadsByMediaID(show.ID)
	require.NoError(t, err)
	require.Len(t, downloads, 2)
}

func TestReconcileBlacklistsCamReleases(t *testing.T) {
	db := newTestDatabase(t)
	movie := &models.MediaItem{ImdbID: "tt0000001", Kind: models.MediaKindMovie, Title: "Alpha", Year: 2020, Watchlist: true}
	require.NoError(t, db.CreateMedia(movie))

	search := &fakeSearcher{candidates: []indexer.Candidate{
		{Source: "rarbg", Title: "Alpha 2020 HDCAM 1080p", Quality: "1080p", Seeders: 500,
			MagnetURI: "magnet:?xt=urn:btih:2222222222222222222222222222222222222222"},
	}}
	gw := &fakeGateway{}

	ctrl := newReconcile(db, search, gw, &fakeEpisodeLister{}, &fakeLibrary{})
	require.NoError(t, ctrl.Run(context.Background()))

	assert.Empty(t, gw.submitted, "cam releases never reach the client")
}

func TestReconcileSubmitFailureRecordsNothing(t *testing.T) {
	db := newTestDatabase(t)
	movie := &models.MediaItem{ImdbID: "tt0000001", Kind: models.MediaKindMovie, Title: "Alpha", Year: 2020, Watchlist: true}
	require.NoError(t, db.CreateMedia(movie))

	search := &fakeSearcher{candidates: []indexer.Candidate{
		{Source: "yts", Title: "Alpha 2020 1080p BluRay", Quality: "1080p", Seeders: 50,
			MagnetURI: "magnet:?xt=urn:btih:3333333333333333333333333333333333333333"},
	}}
	gw := &fakeGateway{submitErr: torrentclient.ErrUnavailable}

	ctrl := newReconcile(db, search, gw, &fakeEpisodeLister{}, &fakeLibrary{})
	require.NoError(t, ctrl.Run(context.Background()))

	downloads, err := db.GetDownloadsByMediaID(movie.ID)
	require.NoError(t, err)
	assert.Empty(t, downloads, "a failed submission leaves no row, the next cycle retries")
}

func intPtr(v int) *int { return &v }
