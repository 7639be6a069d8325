// Package omdb contains a minimal client for the OMDb movie metadata API:
// lookup by imdb id and paginated title search.
package omdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cineclub/pelibot/telemetry"
)

// ErrNotFound means OMDb answered but reported no match (Response=False).
// Transport and decode failures are returned as ordinary wrapped errors so the
// dispatcher can show "service error" instead of "not found".
var ErrNotFound = errors.New("movie not found")

// Movie is the subset of an OMDb record the bot uses.
type Movie struct {
	Title  string `json:"Title"`
	Year   string `json:"Year"`
	Poster string `json:"Poster"`
	ImdbID string `json:"imdbID"`
}

// SearchPage is one page of title-search results.
type SearchPage struct {
	Results []Movie
	Total   int
}

const (
	// maxAggregated caps SearchAll at 50 unique results.
	maxAggregated = 50
	// maxPages caps SearchAll at 5 pages (OMDb returns 10 per page).
	maxPages = 5
)

// Client issues OMDb lookups. BaseURL and HTTPClient are overridable for tests.
type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	// PageDelay is the pause between search pages to respect rate limits.
	PageDelay time.Duration
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return "http://www.omdbapi.com"
}

func (c *Client) pageDelay() time.Duration {
	if c.PageDelay > 0 {
		return c.PageDelay
	}
	return 500 * time.Millisecond
}

type omdbResponse struct {
	Response     string  `json:"Response"`
	Error        string  `json:"Error"`
	Search       []Movie `json:"Search"`
	TotalResults string  `json:"totalResults"`

	// Direct fields for single-record lookups.
	Title  string `json:"Title"`
	Year   string `json:"Year"`
	Poster string `json:"Poster"`
	ImdbID string `json:"imdbID"`
}

func (c *Client) get(ctx context.Context, params map[string]string) (*omdbResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("apikey", c.APIKey)
	for k, v := range params {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()

	telemetry.IncMetadataLookup()
	start := time.Now()
	resp, err := c.http().Do(req)
	if err != nil {
		telemetry.IncMetadataError()
		return nil, fmt.Errorf("omdb request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	var body omdbResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		telemetry.IncMetadataError()
		return nil, fmt.Errorf("omdb decode: %w", err)
	}
	telemetry.ObserveMetadataDuration(time.Since(start))
	return &body, nil
}

// ByID fetches a single record by imdb id. A success=false response is ErrNotFound.
func (c *Client) ByID(ctx context.Context, imdbID string) (*Movie, error) {
	body, err := c.get(ctx, map[string]string{"i": imdbID})
	if err != nil {
		return nil, err
	}
	if body.Response != "True" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, imdbID)
	}
	return &Movie{Title: body.Title, Year: body.Year, Poster: body.Poster, ImdbID: body.ImdbID}, nil
}

// Search fetches one page of title-search results.
func (c *Client) Search(ctx context.Context, title string, page int) (*SearchPage, error) {
	if page <= 0 {
		page = 1
	}
	body, err := c.get(ctx, map[string]string{"s": title, "type": "movie", "page": strconv.Itoa(page)})
	if err != nil {
		return nil, err
	}
	if body.Response != "True" {
		return nil, fmt.Errorf("%w: %q page %d", ErrNotFound, title, page)
	}
	total, _ := strconv.Atoi(body.TotalResults)
	return &SearchPage{Results: body.Search, Total: total}, nil
}

// SearchAll aggregates search pages up to 50 unique results or 5 pages, whichever
// comes first, de-duplicating by imdb id across pages. An empty first page is
// ErrNotFound; later pages failing just end the aggregation.
func (c *Client) SearchAll(ctx context.Context, title string) ([]Movie, error) {
	var all []Movie
	seen := make(map[string]struct{})

	for page := 1; page <= maxPages && len(all) < maxAggregated; page++ {
		if page > 1 {
			select {
			case <-time.After(c.pageDelay()):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		sp, err := c.Search(ctx, title, page)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				if page == 1 {
					return nil, err
				}
				break
			}
			return nil, err
		}
		for _, m := range sp.Results {
			if m.ImdbID == "" {
				continue
			}
			key := strings.ToLower(strings.TrimSpace(m.ImdbID))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			all = append(all, m)
			if len(all) >= maxAggregated {
				break
			}
		}
		if len(all) >= sp.Total {
			break
		}
	}

	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, title)
	}
	return all, nil
}
