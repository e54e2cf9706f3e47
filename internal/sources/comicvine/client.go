// Package comicvine adapts the Comic Vine issues API. Issue descriptions
// arrive as HTML fragments and get flattened to plain text before they
// enter a record.
package comicvine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"unreeled/internal/config"
	"unreeled/internal/release"
	"unreeled/internal/sources"
)

const (
	sourceKey    = "comic_vine"
	requestDelay = 1 * time.Second
	issueLimit   = 50
	synopsisMax  = 500

	// Comic Vine has no per-issue popularity signal; a flat mid-range
	// value keeps comics from sinking below everything ranked.
	defaultPopularity = 50.0
)

type issuesResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Results    []struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		IssueNumber string `json:"issue_number"`
		StoreDate   string `json:"store_date"`
		Description string `json:"description"`
		Image       struct {
			MediumURL string `json:"medium_url"`
		} `json:"image"`
		Volume struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"volume"`
	} `json:"results"`
}

// Source adapts Comic Vine issue releases.
type Source struct {
	cfg        config.ComicVine
	logger     *slog.Logger
	httpClient *http.Client
	delay      time.Duration
}

// Option configures a Source.
type Option func(*Source)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Source) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithDelay overrides the fixed post-call delay.
func WithDelay(d time.Duration) Option {
	return func(s *Source) { s.delay = d }
}

// New creates the Comic Vine adapter.
func New(cfg config.ComicVine, logger *slog.Logger, opts ...Option) *Source {
	src := &Source{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		delay:      requestDelay,
	}
	for _, opt := range opts {
		opt(src)
	}
	return src
}

// Name implements sources.Source.
func (s *Source) Name() string { return sourceKey }

// Fetch implements sources.Source.
func (s *Source) Fetch(ctx context.Context, day time.Time) ([]release.Record, error) {
	if s.cfg.APIKey == "" {
		s.logger.Info("comic vine api key not configured, skipping comics")
		return nil, nil
	}
	date := sources.Day(day)

	params := url.Values{}
	params.Set("api_key", s.cfg.APIKey)
	params.Set("format", "json")
	params.Set("filter", "store_date:"+date)
	params.Set("limit", fmt.Sprint(issueLimit))
	params.Set("field_list", "id,name,issue_number,store_date,description,image,volume")

	var resp issuesResponse
	if err := s.get(ctx, "/issues/", params, &resp); err != nil {
		return nil, err
	}
	if resp.StatusCode != 0 && resp.StatusCode != 1 {
		return nil, fmt.Errorf("comic vine api error %d: %s", resp.StatusCode, resp.Error)
	}

	records := make([]release.Record, 0, len(resp.Results))
	for _, issue := range resp.Results {
		title := issueTitle(issue.Volume.Name, issue.Name, issue.IssueNumber)
		if title == "" {
			continue
		}
		releaseDate := issue.StoreDate
		if releaseDate == "" {
			releaseDate = date
		}
		records = append(records, release.New(sourceKey, release.MediaComic, title, releaseDate, release.Draft{
			Synopsis: release.Snippet(stripHTML(issue.Description), synopsisMax),
			Metadata: map[string]any{
				"volume":       issue.Volume.Name,
				"issue_number": issue.IssueNumber,
				"story_title":  issue.Name,
				"popularity":   defaultPopularity,
			},
			PosterURL: issue.Image.MediumURL,
			ExternalIDs: map[string]any{
				"comic_vine_id":        issue.ID,
				"comic_vine_volume_id": issue.Volume.ID,
			},
		}))
	}

	s.logger.Info("fetched comics", "date", date, "count", len(records))
	return records, nil
}

// issueTitle builds "<Volume> #<number>"; the story name alone is a weak
// title but better than dropping the issue.
func issueTitle(volume, story, number string) string {
	switch {
	case volume != "" && number != "":
		return fmt.Sprintf("%s #%s", volume, number)
	case volume != "":
		return volume
	default:
		return story
	}
}

// stripHTML flattens a description fragment to its text content.
func stripHTML(fragment string) string {
	if fragment == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func (s *Source) get(ctx context.Context, path string, params url.Values, dst any) error {
	start := time.Now()
	target := strings.TrimRight(s.cfg.BaseURL, "/") + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "unreeled/1.0")

	resp, err := s.httpClient.Do(req)
	sources.Pause(ctx, s.delay)
	if err != nil {
		return fmt.Errorf("comic vine %s after %s: %w", path, time.Since(start).Round(time.Millisecond), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("comic vine %s returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode comic vine response: %w", err)
	}
	return nil
}
