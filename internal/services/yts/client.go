package yts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/0xlunar/roundup/internal/config"
	"github.com/0xlunar/roundup/internal/models"
	"github.com/0xlunar/roundup/internal/services/indexer"
	"github.com/0xlunar/roundup/internal/utils"
)

const sourceName = "yts"

// listResponse represents the YTS list_movies JSON response
type listResponse struct {
	Status string   `json:"status"`
	Data   listData `json:"data"`
}

type listData struct {
	MovieCount int     `json:"movie_count"`
	Movies     []movie `json:"movies"`
}

type movie struct {
	ImdbCode string    `json:"imdb_code"`
	Title    string    `json:"title"`
	Year     int       `json:"year"`
	Torrents []torrent `json:"torrents"`
}

type torrent struct {
	Hash      string `json:"hash"`
	Quality   string `json:"quality"`
	Seeds     int    `json:"seeds"`
	SizeBytes int64  `json:"size_bytes"`
}

// Client searches the YTS movie index
type Client struct {
	baseURL    string
	trackers   []string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new YTS client
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:  "https://yts.mx/api/v2/list_movies.json",
		trackers: cfg.Trackers,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Name identifies the source in logs and reports
func (c *Client) Name() string {
	return sourceName
}

// Search queries YTS by IMDb id. YTS only carries movies, so TV queries
// yield an empty result rather than an error.
func (c *Client) Search(ctx context.Context, query indexer.Query) ([]indexer.Candidate, error) {
	if query.Kind != models.MediaKindMovie {
		return nil, nil
	}

	term := query.ImdbID
	if term == "" {
		term = query.Title
	} else if !strings.HasPrefix(term, "tt") {
		term = "tt" + term
	}

	var resp *listResponse
	fetch := func() error {
		var err error
		resp, err = c.listMovies(ctx, term)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(fetch, policy); err != nil {
		return nil, err
	}

	if resp.Status != "ok" {
		return nil, indexer.PermanentError(sourceName, fmt.Errorf("unexpected response status %q", resp.Status))
	}
	if resp.Data.MovieCount == 0 {
		return nil, nil
	}

	var results []indexer.Candidate
	for _, m := range resp.Data.Movies {
		for _, t := range m.Torrents {
			quality := normalizeQuality(t.Quality)
			if quality == "" {
				// Unrecognized label on one torrent is not worth failing the search
				c.logger.WithFields(logrus.Fields{
					"source":  sourceName,
					"title":   m.Title,
					"quality": t.Quality,
				}).Debug("Skipping torrent with unknown quality label")
				continue
			}

			results = append(results, indexer.Candidate{
				Source:      sourceName,
				Title:       fmt.Sprintf("%s (%d) %s", m.Title, m.Year, quality),
				MagnetURI:   c.buildMagnet(t.Hash, m.Title),
				Quality:     quality,
				Seeders:     t.Seeds,
				SizeBytes:   t.SizeBytes,
				SourceOrder: len(results),
			})
		}
	}

	c.logger.WithFields(logrus.Fields{
		"source": sourceName,
		"count":  len(results),
	}).Debug("YTS search completed")

	return results, nil
}

func (c *Client) listMovies(ctx context.Context, term string) (*listResponse, error) {
	apiURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, backoff.Permanent(indexer.PermanentError(sourceName, err))
	}

	params := url.Values{}
	params.Add("query_term", term)
	apiURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(indexer.PermanentError(sourceName, err))
	}
	req.Header.Set("User-Agent", "roundup/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, indexer.TransientError(sourceName, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, indexer.TransientError(sourceName, fmt.Errorf("status %d", resp.StatusCode))
	default:
		return nil, backoff.Permanent(indexer.PermanentError(sourceName, fmt.Errorf("status %d", resp.StatusCode)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, indexer.TransientError(sourceName, err)
	}

	var data listResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, backoff.Permanent(indexer.PermanentError(sourceName, err))
	}

	return &data, nil
}

func (c *Client) buildMagnet(hash, title string) string {
	magnet := fmt.Sprintf("magnet:?xt=urn:btih:%s&dn=%s", strings.ToLower(hash), url.QueryEscape(title))
	for _, tracker := range c.trackers {
		magnet += "&tr=" + url.QueryEscape(tracker)
	}
	return magnet
}

func normalizeQuality(raw string) string {
	switch strings.ToLower(raw) {
	case "480p":
		return "480p"
	case "720p":
		return "720p"
	case "1080p", "1080p.x265":
		return "1080p"
	case "2160p", "4k":
		return "2160p"
	default:
		return utils.ExtractQuality(raw)
	}
}
