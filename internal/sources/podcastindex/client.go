// Package podcastindex adapts the Podcast Index API. Requests are signed
// with SHA-1(key + secret + unix-time) carried in the X-Auth headers the
// API defines; there is no OAuth flow.
package podcastindex

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"unreeled/internal/config"
	"unreeled/internal/release"
	"unreeled/internal/sources"
)

const (
	sourceKey    = "podcast_index"
	requestDelay = 250 * time.Millisecond

	trendingMax  = 30
	trendingKeep = 25
	episodesMax  = 20
	episodesKeep = 15
)

type trendingResponse struct {
	Feeds []struct {
		ID          int64          `json:"id"`
		Title       string         `json:"title"`
		Description string         `json:"description"`
		Author      string         `json:"author"`
		Image       string         `json:"image"`
		Artwork     string         `json:"artwork"`
		TrendScore  float64        `json:"trendScore"`
		Categories  map[string]any `json:"categories"`
	} `json:"feeds"`
}

type episodesResponse struct {
	Items []struct {
		ID            int64  `json:"id"`
		Title         string `json:"title"`
		Description   string `json:"description"`
		FeedID        int64  `json:"feedId"`
		FeedTitle     string `json:"feedTitle"`
		FeedImage     string `json:"feedImage"`
		DatePublished int64  `json:"datePublished"`
		Duration      int    `json:"duration"`
	} `json:"items"`
}

// Source adapts Podcast Index trending feeds and recent episodes.
type Source struct {
	cfg        config.PodcastIndex
	logger     *slog.Logger
	httpClient *http.Client
	delay      time.Duration
	now        func() time.Time
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

// New creates the Podcast Index adapter.
func New(cfg config.PodcastIndex, logger *slog.Logger, opts ...Option) *Source {
	src := &Source{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		delay:      requestDelay,
		now:        time.Now,
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
	if s.cfg.APIKey == "" || s.cfg.APISecret == "" {
		s.logger.Info("podcast index credentials not configured, skipping podcasts")
		return nil, nil
	}
	date := sources.Day(day)

	var records []release.Record

	var trending trendingResponse
	if err := s.get(ctx, "/podcasts/trending", url.Values{"max": {strconv.Itoa(trendingMax)}}, &trending); err != nil {
		return nil, err
	}
	kept := 0
	for _, feed := range trending.Feeds {
		if kept >= trendingKeep || feed.Title == "" {
			continue
		}
		poster := feed.Artwork
		if poster == "" {
			poster = feed.Image
		}
		records = append(records, release.New(sourceKey, release.MediaPodcast, feed.Title, date, release.Draft{
			Synopsis: feed.Description,
			Genres:   categoryNames(feed.Categories),
			Metadata: map[string]any{
				"author":     feed.Author,
				"kind":       "trending_feed",
				"popularity": feed.TrendScore,
			},
			PosterURL: poster,
			ExternalIDs: map[string]any{
				"podcast_index_feed_id": feed.ID,
			},
		}))
		kept++
	}

	var episodes episodesResponse
	if err := s.get(ctx, "/recent/episodes", url.Values{"max": {strconv.Itoa(episodesMax)}}, &episodes); err != nil {
		// Trending alone is still a useful result.
		s.logger.Warn("recent episodes fetch failed, keeping trending feeds", "error", err)
	} else {
		kept = 0
		for _, item := range episodes.Items {
			if kept >= episodesKeep || item.Title == "" {
				continue
			}
			title := item.Title
			if item.FeedTitle != "" {
				title = item.FeedTitle + ": " + item.Title
			}
			records = append(records, release.New(sourceKey, release.MediaPodcast, title, date, release.Draft{
				Synopsis: item.Description,
				Metadata: map[string]any{
					"feed_title":       item.FeedTitle,
					"duration_seconds": item.Duration,
					"kind":             "recent_episode",
					"published_at":     item.DatePublished,
				},
				PosterURL: item.FeedImage,
				ExternalIDs: map[string]any{
					"podcast_index_episode_id": item.ID,
					"podcast_index_feed_id":    item.FeedID,
				},
			}))
			kept++
		}
	}

	// A trending feed and its own latest episode would both surface the
	// show name; the text before the first colon identifies the show.
	unique, removed := release.Dedupe(records, func(r *release.Record) string {
		name, _, _ := strings.Cut(r.Title, ":")
		return release.NormalizeTitle(name)
	})
	if removed > 0 {
		s.logger.Info("removed duplicate podcasts", "count", removed)
	}

	s.logger.Info("fetched podcasts", "date", date, "count", len(unique))
	return unique, nil
}

func (s *Source) get(ctx context.Context, path string, params url.Values, dst any) error {
	start := time.Now()
	target := strings.TrimRight(s.cfg.BaseURL, "/") + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	epoch := strconv.FormatInt(s.now().Unix(), 10)
	hash := sha1.Sum([]byte(s.cfg.APIKey + s.cfg.APISecret + epoch))
	req.Header.Set("X-Auth-Date", epoch)
	req.Header.Set("X-Auth-Key", s.cfg.APIKey)
	req.Header.Set("Authorization", fmt.Sprintf("%x", hash))
	req.Header.Set("User-Agent", "unreeled/1.0")

	resp, err := s.httpClient.Do(req)
	sources.Pause(ctx, s.delay)
	if err != nil {
		return fmt.Errorf("podcast index %s after %s: %w", path, time.Since(start).Round(time.Millisecond), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("podcast index %s returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode podcast index response: %w", err)
	}
	return nil
}

// categoryNames flattens the {id: name} category map the API returns,
// sorted so repeat runs produce identical artifacts.
func categoryNames(categories map[string]any) []string {
	out := make([]string, 0, len(categories))
	for _, v := range categories {
		if name, ok := v.(string); ok && name != "" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
