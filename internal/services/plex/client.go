package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0xlunar/roundup/internal/config"
	"github.com/0xlunar/roundup/internal/services/indexer"
	"github.com/0xlunar/roundup/internal/utils"
)

// Client talks to a Plex media server: library refresh on completed
// downloads, and episode holdings for the missing-episode computation.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new Plex client
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.PlexURL, "/"),
		token:   cfg.PlexToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// RefreshLibrary asks Plex to rescan all library sections. Fire-and-forget:
// callers log a failure and move on, download state is never rolled back
// over a refresh problem.
func (c *Client) RefreshLibrary(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/library/sections/all/refresh?X-Plex-Token=%s", c.baseURL, url.QueryEscape(c.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "roundup/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("plex refresh failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("plex refresh returned status %d", resp.StatusCode)
	}

	c.logger.Debug("Plex library refresh triggered")
	return nil
}

// ExistingEpisodes returns the episodes of a show already present in the
// library. An empty slice with no error means the show is not in the
// library at all yet.
func (c *Client) ExistingEpisodes(ctx context.Context, title string) ([]indexer.Episode, error) {
	ratingKey, err := c.findShowRatingKey(ctx, title)
	if err != nil {
		return nil, err
	}
	if ratingKey == "" {
		return nil, nil
	}

	var leaves struct {
		MediaContainer struct {
			Metadata []struct {
				ParentIndex int `json:"parentIndex"` // season
				Index       int `json:"index"`       // episode
			} `json:"Metadata"`
		} `json:"MediaContainer"`
	}

	endpoint := fmt.Sprintf("%s/library/metadata/%s/allLeaves", c.baseURL, url.PathEscape(ratingKey))
	if err := c.getJSON(ctx, endpoint, url.Values{}, &leaves); err != nil {
		return nil, err
	}

	episodes := make([]indexer.Episode, 0, len(leaves.MediaContainer.Metadata))
	for _, m := range leaves.MediaContainer.Metadata {
		if m.ParentIndex == 0 && m.Index == 0 {
			continue
		}
		episodes = append(episodes, indexer.Episode{Season: m.ParentIndex, Episode: m.Index})
	}

	return episodes, nil
}

// findShowRatingKey resolves a show title (optionally "Title (Year)") to its
// Plex rating key via hub search
func (c *Client) findShowRatingKey(ctx context.Context, title string) (string, error) {
	year := utils.ExtractYear(title)
	query := title
	if idx := strings.Index(title, "("); idx > 0 {
		query = strings.TrimSpace(title[:idx])
	}

	var search struct {
		MediaContainer struct {
			Hub []struct {
				Type     string `json:"type"`
				Metadata []struct {
					Title     string `json:"title"`
					Year      int    `json:"year"`
					RatingKey string `json:"ratingKey"`
				} `json:"Metadata"`
			} `json:"Hub"`
		} `json:"MediaContainer"`
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", "100")
	if err := c.getJSON(ctx, c.baseURL+"/hubs/search", params, &search); err != nil {
		return "", err
	}

	for _, hub := range search.MediaContainer.Hub {
		if hub.Type != "show" {
			continue
		}
		for _, m := range hub.Metadata {
			if !strings.EqualFold(m.Title, query) {
				continue
			}
			if year != 0 && m.Year != 0 && m.Year != year {
				continue
			}
			return m.RatingKey, nil
		}
	}

	return "", nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	params.Set("X-Plex-Token", c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "roundup/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("plex request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("plex returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	return json.Unmarshal(body, out)
}
