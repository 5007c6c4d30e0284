package eztv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/0xlunar/roundup/internal/config"
	"github.com/0xlunar/roundup/internal/models"
	"github.com/0xlunar/roundup/internal/services/indexer"
	"github.com/0xlunar/roundup/internal/utils"
)

const (
	sourceName = "eztv"
	pageLimit  = 100 // results per page, API maximum
)

// torrentListResponse represents the EZTV get-torrents JSON response
type torrentListResponse struct {
	TorrentsCount int          `json:"torrents_count"`
	Torrents      []apiTorrent `json:"torrents"`
}

type apiTorrent struct {
	Filename  string `json:"filename"`
	MagnetURL string `json:"magnet_url"`
	Title     string `json:"title"`
	Season    string `json:"season"`
	Episode   string `json:"episode"`
	Seeds     int    `json:"seeds"`
	SizeBytes string `json:"size_bytes"`
}

// Client searches the EZTV index
type Client struct {
	baseURL     string
	pageCeiling int
	httpClient  *http.Client
	logger      *logrus.Logger
}

// NewClient creates a new EZTV client
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:     "https://eztvx.to/api/get-torrents",
		pageCeiling: cfg.PageCeiling,
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

// Search queries EZTV by IMDb id. EZTV only carries TV, so movie queries
// yield an empty result. Pages are enumerated until one contributes no
// wanted episode or the page ceiling is hit; EZTV interleaves unrelated
// shows on later pages, so counting on torrents_count alone runs away on
// structurally odd result sets.
func (c *Client) Search(ctx context.Context, query indexer.Query) ([]indexer.Candidate, error) {
	if query.Kind != models.MediaKindTVShow || len(query.Episodes) == 0 {
		return nil, nil
	}
	if query.ImdbID == "" {
		return nil, nil
	}

	imdbID := strings.TrimPrefix(query.ImdbID, "tt")

	wanted := make(map[indexer.Episode]bool, len(query.Episodes))
	for _, ep := range query.Episodes {
		wanted[ep] = true
	}

	var results []indexer.Candidate
	for page := 1; page <= c.pageCeiling; page++ {
		resp, err := c.getTorrents(ctx, imdbID, page)
		if err != nil {
			// Keep whatever earlier pages produced
			if len(results) > 0 {
				c.logger.WithError(err).WithFields(logrus.Fields{
					"source": sourceName,
					"page":   page,
				}).Warn("Page fetch failed, returning partial results")
				return results, nil
			}
			return nil, err
		}

		if len(resp.Torrents) == 0 {
			break
		}

		matched := 0
		for _, t := range resp.Torrents {
			candidate, ok := c.convert(t, wanted, len(results))
			if !ok {
				continue
			}
			results = append(results, candidate)
			matched++
		}

		c.logger.WithFields(logrus.Fields{
			"source":  sourceName,
			"page":    page,
			"matched": matched,
		}).Debug("EZTV page processed")

		// A page with zero wanted episodes means we have paged past this
		// show's releases
		if matched == 0 {
			break
		}
		if page*pageLimit >= resp.TorrentsCount {
			break
		}
	}

	return results, nil
}

// convert turns one API torrent into a candidate. A malformed item returns
// ok=false and is skipped rather than failing the whole search.
func (c *Client) convert(t apiTorrent, wanted map[indexer.Episode]bool, order int) (indexer.Candidate, bool) {
	if t.Seeds <= 0 || t.MagnetURL == "" {
		return indexer.Candidate{}, false
	}
	// Multilingual releases are mislabeled often enough to skip outright
	if strings.Contains(t.Filename, ".multi") {
		return indexer.Candidate{}, false
	}

	season, err := strconv.Atoi(t.Season)
	if err != nil || season == 0 {
		return indexer.Candidate{}, false
	}
	episode, err := strconv.Atoi(t.Episode)
	if err != nil {
		return indexer.Candidate{}, false
	}

	lower := strings.ToLower(t.Title)
	if episode == 0 {
		if strings.Contains(lower, "complete") ||
			(!strings.Contains(lower, "e0") && !strings.Contains(lower, "episode")) {
			episode = utils.SeasonPackEpisode
		}
	}

	if episode != utils.SeasonPackEpisode && !wanted[indexer.Episode{Season: season, Episode: episode}] {
		return indexer.Candidate{}, false
	}

	quality := utils.ExtractQuality(t.Title)
	if quality == "" {
		return indexer.Candidate{}, false
	}

	size, _ := strconv.ParseInt(t.SizeBytes, 10, 64)

	return indexer.Candidate{
		Source:      sourceName,
		Title:       t.Title,
		MagnetURI:   t.MagnetURL,
		Quality:     quality,
		Season:      &season,
		Episode:     &episode,
		Seeders:     t.Seeds,
		SizeBytes:   size,
		SourceOrder: order,
	}, true
}

func (c *Client) getTorrents(ctx context.Context, imdbID string, page int) (*torrentListResponse, error) {
	var resp *torrentListResponse
	fetch := func() error {
		var err error
		resp, err = c.fetchPage(ctx, imdbID, page)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(fetch, policy); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) fetchPage(ctx context.Context, imdbID string, page int) (*torrentListResponse, error) {
	apiURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, backoff.Permanent(indexer.PermanentError(sourceName, err))
	}

	params := url.Values{}
	params.Add("imdb_id", imdbID)
	params.Add("limit", strconv.Itoa(pageLimit))
	if page > 1 {
		params.Add("page", strconv.Itoa(page))
	}
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

	var data torrentListResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, backoff.Permanent(indexer.PermanentError(sourceName, err))
	}

	return &data, nil
}
