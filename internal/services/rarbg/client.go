package rarbg

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/0xlunar/roundup/internal/config"
	"github.com/0xlunar/roundup/internal/models"
	"github.com/0xlunar/roundup/internal/services/indexer"
	"github.com/0xlunar/roundup/internal/utils"
)

const sourceName = "therarbg"

// rowResult is what the listing page yields per torrent before the detail
// page is fetched for the magnet link
type rowResult struct {
	detailPath string
	quality    string
	kind       models.MediaKind
	season     *int
	episode    *int
	seeders    int
	order      int
}

// Client scrapes the TheRARBG index. Unlike the JSON sources, both the
// listing and every torrent's detail page are HTML.
type Client struct {
	baseURL     string
	pageCeiling int
	detailLimit int
	httpClient  *http.Client
	logger      *logrus.Logger
}

// NewClient creates a new TheRARBG client
func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:     "https://therarbg.com",
		pageCeiling: cfg.PageCeiling,
		detailLimit: cfg.SourceConcurrency,
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

// Search scrapes listing pages until a page yields nothing or the page
// ceiling is reached, then resolves magnet links from each row's detail
// page. Malformed rows and unparseable detail pages are skipped; the index
// is scraped HTML and individual breakage is routine.
func (c *Client) Search(ctx context.Context, query indexer.Query) ([]indexer.Candidate, error) {
	term := query.ImdbID
	if term == "" {
		term = strings.ReplaceAll(query.Title, " ", "%20")
	} else if !strings.HasPrefix(term, "tt") {
		term = "tt" + term
	}

	wanted := make(map[indexer.Episode]bool, len(query.Episodes))
	for _, ep := range query.Episodes {
		wanted[ep] = true
	}

	var rows []rowResult
	for page := 1; page <= c.pageCeiling; page++ {
		doc, err := c.fetchListing(ctx, term, page)
		if err != nil {
			if len(rows) > 0 {
				c.logger.WithError(err).WithFields(logrus.Fields{
					"source": sourceName,
					"page":   page,
				}).Warn("Listing page fetch failed, continuing with earlier pages")
				break
			}
			return nil, err
		}
		if doc == nil {
			// The site redirects to its front page past the last result page
			break
		}

		pageRows := c.parseListing(doc, query, wanted, len(rows))
		if len(pageRows) == 0 {
			break
		}
		rows = append(rows, pageRows...)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	return c.resolveMagnets(ctx, rows)
}

func (c *Client) fetchListing(ctx context.Context, term string, page int) (*goquery.Document, error) {
	listURL := fmt.Sprintf(
		"%s/get-posts/keywords:%s:category:Movies:category:TV:category:Anime:ncategory:XXX/?page=%d",
		c.baseURL, term, page,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, indexer.PermanentError(sourceName, err)
	}
	req.Header.Set("User-Agent", "roundup/1.0")

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
		return nil, indexer.PermanentError(sourceName, fmt.Errorf("status %d", resp.StatusCode))
	}

	// Past the last page the site answers with its front page
	if resp.Request != nil && resp.Request.URL != nil &&
		strings.TrimSuffix(resp.Request.URL.String(), "/") == c.baseURL {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, indexer.PermanentError(sourceName, err)
	}
	return doc, nil
}

func (c *Client) parseListing(doc *goquery.Document, query indexer.Query, wanted map[indexer.Episode]bool, orderBase int) []rowResult {
	var rows []rowResult

	doc.Find("tbody > tr").Each(func(_ int, row *goquery.Selection) {
		nameLink := row.Find(`.cellName > div > a[href^="/post-detail/"]`).First()
		name := strings.TrimSpace(nameLink.Text())
		detailPath, ok := nameLink.Attr("href")
		if name == "" || !ok {
			return
		}

		var kind models.MediaKind
		category := strings.TrimSpace(row.Find(`td.hideCell > a[href^="/get-posts/category:"]`).First().Text())
		switch category {
		case "Movies":
			kind = models.MediaKindMovie
		case "TV", "Anime":
			kind = models.MediaKindTVShow
		default:
			return
		}
		if kind != query.Kind {
			return
		}

		seeders, err := strconv.Atoi(strings.TrimSpace(row.Find(`td[style="color: green"]`).First().Text()))
		if err != nil || seeders <= 0 {
			return
		}

		quality := utils.ExtractQuality(name)
		if quality == "" {
			return
		}

		var season, episode *int
		if len(wanted) > 0 {
			season, episode = utils.ParseSeasonEpisode(name)
			if season == nil || episode == nil {
				return
			}
			if *episode != utils.SeasonPackEpisode && !wanted[indexer.Episode{Season: *season, Episode: *episode}] {
				return
			}
		}

		rows = append(rows, rowResult{
			detailPath: detailPath,
			quality:    quality,
			kind:       kind,
			season:     season,
			episode:    episode,
			seeders:    seeders,
			order:      orderBase + len(rows),
		})
	})

	return rows
}

// resolveMagnets fetches each row's detail page concurrently, bounded by the
// per-source concurrency ceiling, and keeps whatever resolves cleanly.
func (c *Client) resolveMagnets(ctx context.Context, rows []rowResult) ([]indexer.Candidate, error) {
	var (
		mu      sync.Mutex
		results []indexer.Candidate
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.detailLimit)

	for _, row := range rows {
		row := row
		g.Go(func() error {
			candidate, err := c.fetchDetail(gctx, row)
			if err != nil {
				c.logger.WithError(err).WithFields(logrus.Fields{
					"source": sourceName,
					"path":   row.detailPath,
				}).Debug("Skipping torrent with unusable detail page")
				return nil
			}
			mu.Lock()
			results = append(results, candidate)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return results, nil
}

func (c *Client) fetchDetail(ctx context.Context, row rowResult) (indexer.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+row.detailPath, nil)
	if err != nil {
		return indexer.Candidate{}, err
	}
	req.Header.Set("User-Agent", "roundup/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return indexer.Candidate{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return indexer.Candidate{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return indexer.Candidate{}, err
	}

	title := strings.TrimSpace(doc.Find("div.postContL > h4").First().Text())
	if title == "" {
		return indexer.Candidate{}, fmt.Errorf("missing title")
	}

	magnet, ok := doc.Find(`a[href^="magnet:?xt=urn:btih:"]`).First().Attr("href")
	if !ok {
		return indexer.Candidate{}, fmt.Errorf("missing magnet")
	}

	if !c.isEnglish(doc) {
		return indexer.Candidate{}, fmt.Errorf("not an english release")
	}

	return indexer.Candidate{
		Source:      sourceName,
		Title:       title,
		MagnetURI:   magnet,
		Quality:     row.quality,
		Season:      row.season,
		Episode:     row.episode,
		Seeders:     row.seeders,
		SourceOrder: row.order,
	}, nil
}

func (c *Client) isEnglish(doc *goquery.Document) bool {
	english := false
	doc.Find("tbody > tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if strings.TrimSpace(row.Find("th").First().Text()) != "Language:" {
			return true
		}
		lang := strings.ToLower(strings.TrimSpace(row.Find("td").First().Text()))
		english = lang == "english"
		return false
	})
	return english
}
