package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xlunar/roundup/internal/models"
	"github.com/0xlunar/roundup/internal/services/torrentclient"
)

type stubGateway struct {
	removed []string
}

func (s *stubGateway) Submit(_ context.Context, magnetURI string) (string, error) {
	return torrentclient.ExtractHash(magnetURI)
}

func (s *stubGateway) Status(context.Context, string) (torrentclient.Status, error) {
	return torrentclient.Status{}, torrentclient.ErrTorrentNotFound
}

func (s *stubGateway) Remove(_ context.Context, hash string) error {
	s.removed = append(s.removed, hash)
	return nil
}

func newHandler(t *testing.T) (*DownloadHandler, *models.Database, *stubGateway) {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	gw := &stubGateway{}
	return NewDownloadHandler(db, gw, logger), db, gw
}

func TestManualDownload(t *testing.T) {
	h, db, _ := newHandler(t)
	require.NoError(t, db.CreateMedia(&models.MediaItem{
		ImdbID: "tt0000001", Kind: models.MediaKindMovie, Title: "Alpha", Year: 2020,
	}))

	body := `{"imdb_id": "tt0000001", "magnet_uri": "magnet:?xt=urn:btih:abc123", "quality": "1080p"}`
	req := httptest.NewRequest(http.MethodPost, "/api/downloads", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	d, err := db.GetDownloadByHash("abc123")
	require.NoError(t, err)
	assert.Equal(t, models.DownloadStateDownloading, d.State)
	assert.Equal(t, "1080p", d.Quality)
}

func TestManualDownloadConflict(t *testing.T) {
	h, db, gw := newHandler(t)
	media := &models.MediaItem{ImdbID: "tt0000001", Kind: models.MediaKindMovie, Title: "Alpha", Year: 2020}
	require.NoError(t, db.CreateMedia(media))
	require.NoError(t, db.InsertDownloadIfAbsent(&models.ActiveDownload{
		MediaID: media.ID, MagnetHash: "inflight", State: models.DownloadStateDownloading,
	}))

	body := `{"imdb_id": "tt0000001", "magnet_uri": "magnet:?xt=urn:btih:abc123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/downloads", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, []string{"abc123"}, gw.removed, "the duplicate submission is withdrawn from the client")
}

func TestManualDownloadUnknownMedia(t *testing.T) {
	h, _, _ := newHandler(t)

	body := `{"imdb_id": "tt9999999", "magnet_uri": "magnet:?xt=urn:btih:abc123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/downloads", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManualDownloadValidation(t *testing.T) {
	h, _, _ := newHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/downloads", strings.NewReader(`{"imdb_id": "tt1"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/downloads", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
