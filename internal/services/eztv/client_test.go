package eztv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/0xlunar/roundup/internal/models"
	"github.com/0xlunar/roundup/internal/services/indexer"
	"github.com/0xlunar/roundup/internal/utils"
)

func testClient(serverURL string, pageCeiling int) *Client {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &Client{
		baseURL:     serverURL,
		pageCeiling: pageCeiling,
		httpClient:  http.DefaultClient,
		logger:      logger,
	}
}

func torrentJSON(title, season, episode string, seeds int) apiTorrent {
	return apiTorrent{
		Filename:  title,
		MagnetURL: "magnet:?xt=urn:btih:" + fmt.Sprintf("%040d", seeds),
		Title:     title,
		Season:    season,
		Episode:   episode,
		Seeds:     seeds,
		SizeBytes: "1073741824",
	}
}

func tvQuery(episodes ...indexer.Episode) indexer.Query {
	return indexer.Query{
		ImdbID:   "tt0000002",
		Title:    "Beta Show",
		Kind:     models.MediaKindTVShow,
		Episodes: episodes,
	}
}

func TestSearchFiltersToWantedEpisodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("imdb_id"); got != "0000002" {
			t.Errorf("imdb_id must be sent without tt prefix, got %q", got)
		}
		json.NewEncoder(w).Encode(torrentListResponse{
			TorrentsCount: 3,
			Torrents: []apiTorrent{
				torrentJSON("Beta Show S01E02 1080p WEB h264", "1", "2", 40),
				torrentJSON("Beta Show S01E03 1080p WEB h264", "1", "3", 55),
				torrentJSON("Beta Show S01E02 720p HDTV", "1", "2", 90),
			},
		})
	}))
	defer server.Close()

	c := testClient(server.URL, 10)
	results, err := c.Search(context.Background(), tvQuery(indexer.Episode{Season: 1, Episode: 2}))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected only S01E02 releases, got %d candidates", len(results))
	}
	for _, c := range results {
		if *c.Season != 1 || *c.Episode != 2 {
			t.Errorf("unwanted episode leaked through: S%02dE%02d", *c.Season, *c.Episode)
		}
	}
}

func TestSearchSkipsMalformedItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(torrentListResponse{
			TorrentsCount: 4,
			Torrents: []apiTorrent{
				torrentJSON("Beta Show S01E02 1080p WEB", "1", "2", 40),
				torrentJSON("Beta Show S01E02 1080p dead", "1", "2", 0),    // no seeders
				torrentJSON("Beta Show S01E02 broken", "oops", "2", 10),    // unparsable season
				torrentJSON("Beta Show S01E02 unlabeled HDTV", "1", "2", 10), // no quality label
			},
		})
	}))
	defer server.Close()

	c := testClient(server.URL, 10)
	results, err := c.Search(context.Background(), tvQuery(indexer.Episode{Season: 1, Episode: 2}))
	if err != nil {
		t.Fatalf("malformed items must be skipped, not fatal: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 well-formed candidate, got %d", len(results))
	}
}

func TestSearchSeasonPackDetection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(torrentListResponse{
			TorrentsCount: 1,
			Torrents: []apiTorrent{
				torrentJSON("Beta Show Season 1 Complete 1080p", "1", "0", 200),
			},
		})
	}))
	defer server.Close()

	c := testClient(server.URL, 10)
	results, err := c.Search(context.Background(), tvQuery(indexer.Episode{Season: 1, Episode: 2}))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected the pack candidate, got %d", len(results))
	}
	if *results[0].Episode != utils.SeasonPackEpisode {
		t.Errorf("season packs must carry the sentinel episode, got %d", *results[0].Episode)
	}
}

func TestSearchStopsAtPageCeiling(t *testing.T) {
	var pages int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		// Every page reports more results ahead and keeps matching
		json.NewEncoder(w).Encode(torrentListResponse{
			TorrentsCount: 100000,
			Torrents: []apiTorrent{
				torrentJSON("Beta Show S01E02 1080p page"+strconv.Itoa(pages), "1", "2", pages),
			},
		})
	}))
	defer server.Close()

	c := testClient(server.URL, 3)
	_, err := c.Search(context.Background(), tvQuery(indexer.Episode{Season: 1, Episode: 2}))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if pages != 3 {
		t.Fatalf("expected pagination to stop at the ceiling of 3, fetched %d pages", pages)
	}
}

func TestSearchStopsWhenPageContributesNothing(t *testing.T) {
	var pages int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		// Later pages interleave a different show
		json.NewEncoder(w).Encode(torrentListResponse{
			TorrentsCount: 100000,
			Torrents: []apiTorrent{
				torrentJSON("Unrelated Show S05E09 1080p", "5", "9", 10),
			},
		})
	}))
	defer server.Close()

	c := testClient(server.URL, 10)
	results, err := c.Search(context.Background(), tvQuery(indexer.Episode{Season: 1, Episode: 2}))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no candidates, got %d", len(results))
	}
	if pages != 1 {
		t.Fatalf("a page with no wanted episodes ends pagination, fetched %d pages", pages)
	}
}

func TestSearchIgnoresMovieQueries(t *testing.T) {
	c := testClient("http://unused.invalid", 10)
	results, err := c.Search(context.Background(), indexer.Query{
		ImdbID: "tt0000001", Title: "Alpha", Kind: models.MediaKindMovie,
	})
	if err != nil {
		t.Fatalf("movie query must not error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("movie query against a TV index must yield nothing, got %d", len(results))
	}
}
