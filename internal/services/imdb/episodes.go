package imdb

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/0xlunar/roundup/internal/services/indexer"
)

// Seasons beyond this are assumed to be listing noise; no tracked show
// needs more.
const maxSeasons = 60

// Client enumerates the aired episodes of a show from its IMDb episode
// listing. The reconciliation loop subtracts library holdings and download
// history from this to find what is still missing.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new IMDb episode listing client
func NewClient(logger *logrus.Logger) *Client {
	return &Client{
		baseURL: "https://www.imdb.com",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// ListEpisodes returns every aired episode of the show, season by season,
// stopping at the first season with no listed episodes.
func (c *Client) ListEpisodes(ctx context.Context, imdbID string) ([]indexer.Episode, error) {
	if !strings.HasPrefix(imdbID, "tt") {
		imdbID = "tt" + imdbID
	}

	var episodes []indexer.Episode
	for season := 1; season <= maxSeasons; season++ {
		seasonEpisodes, err := c.listSeason(ctx, imdbID, season)
		if err != nil {
			if len(episodes) > 0 {
				// Later seasons failing should not discard what we have
				c.logger.WithError(err).WithFields(logrus.Fields{
					"imdb_id": imdbID,
					"season":  season,
				}).Warn("Season listing failed, returning earlier seasons")
				return episodes, nil
			}
			return nil, err
		}
		if len(seasonEpisodes) == 0 {
			break
		}
		episodes = append(episodes, seasonEpisodes...)
	}

	return episodes, nil
}

func (c *Client) listSeason(ctx context.Context, imdbID string, season int) ([]indexer.Episode, error) {
	endpoint := fmt.Sprintf("%s/title/%s/episodes/_ajax?season=%d", c.baseURL, imdbID, season)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "roundup/1.0")
	req.Header.Set("Accept-Language", "en-US,en")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, indexer.TransientError("imdb", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, indexer.TransientError("imdb", fmt.Errorf("status %d", resp.StatusCode))
	default:
		return nil, indexer.PermanentError("imdb", fmt.Errorf("status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, indexer.PermanentError("imdb", err)
	}

	var episodes []indexer.Episode
	doc.Find("div.eplist div.list_item").Each(func(_ int, item *goquery.Selection) {
		content, ok := item.Find(`meta[itemprop="episodeNumber"]`).First().Attr("content")
		if !ok {
			return
		}
		number, err := strconv.Atoi(content)
		if err != nil || number < 1 {
			return
		}
		// Unaired episodes carry no airdate; skip them so the engine does
		// not hunt for releases that cannot exist yet
		airdate := strings.TrimSpace(item.Find("div.airdate").First().Text())
		if airdate == "" {
			return
		}
		episodes = append(episodes, indexer.Episode{Season: season, Episode: number})
	})

	return episodes, nil
}
