// Package newsdata adapts NewsData.io entertainment headlines. News has no
// release date of its own; every article is stamped with the requested day.
package newsdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"unreeled/internal/config"
	"unreeled/internal/release"
	"unreeled/internal/sources"
)

const (
	sourceKey    = "newsdata"
	requestDelay = 250 * time.Millisecond
	articleLimit = 20

	// Headlines rank above unrated media but below anything with a real
	// popularity score.
	defaultPopularity = 80.0
)

type latestResponse struct {
	Status  string `json:"status"`
	Results []struct {
		ArticleID   string   `json:"article_id"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Link        string   `json:"link"`
		ImageURL    string   `json:"image_url"`
		SourceID    string   `json:"source_id"`
		PubDate     string   `json:"pubDate"`
		Creator     []string `json:"creator"`
		Category    []string `json:"category"`
	} `json:"results"`
}

// Source adapts NewsData.io entertainment headlines.
type Source struct {
	cfg        config.NewsData
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

// New creates the NewsData adapter.
func New(cfg config.NewsData, logger *slog.Logger, opts ...Option) *Source {
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
		s.logger.Info("newsdata api key not configured, skipping entertainment news")
		return nil, nil
	}
	date := sources.Day(day)

	params := url.Values{}
	params.Set("apikey", s.cfg.APIKey)
	params.Set("category", "entertainment")
	params.Set("language", "en")
	params.Set("size", fmt.Sprint(articleLimit))

	var resp latestResponse
	if err := s.get(ctx, "/latest", params, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "" && resp.Status != "success" {
		return nil, fmt.Errorf("newsdata status %q", resp.Status)
	}

	records := make([]release.Record, 0, len(resp.Results))
	for _, article := range resp.Results {
		if article.Title == "" {
			continue
		}
		creators := article.Creator
		if creators == nil {
			creators = []string{}
		}
		records = append(records, release.New(sourceKey, release.MediaNews, article.Title, date, release.Draft{
			Synopsis: article.Description,
			Genres:   article.Category,
			Metadata: map[string]any{
				"link":         article.Link,
				"outlet":       article.SourceID,
				"creators":     creators,
				"published_at": article.PubDate,
				"popularity":   defaultPopularity,
			},
			PosterURL: article.ImageURL,
			ExternalIDs: map[string]any{
				"newsdata_article_id": article.ArticleID,
			},
		}))
	}

	s.logger.Info("fetched entertainment news", "date", date, "count", len(records))
	return records, nil
}

func (s *Source) get(ctx context.Context, path string, params url.Values, dst any) error {
	start := time.Now()
	target := strings.TrimRight(s.cfg.BaseURL, "/") + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	sources.Pause(ctx, s.delay)
	if err != nil {
		return fmt.Errorf("newsdata %s after %s: %w", path, time.Since(start).Round(time.Millisecond), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("newsdata %s returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode newsdata response: %w", err)
	}
	return nil
}
