// Package jikan adapts the Jikan REST API (an unofficial MyAnimeList
// mirror) into anime release records. The schedules endpoint is keyed by
// weekday, so a day's releases are whatever airs on that weekday.
package jikan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"unreeled/internal/config"
	"unreeled/internal/release"
	"unreeled/internal/sources"
)

const (
	sourceKey    = "jikan_anime"
	requestDelay = 250 * time.Millisecond
	maxPages     = 3
)

type animeEntry struct {
	MalID    int64   `json:"mal_id"`
	Title    string  `json:"title"`
	Synopsis string  `json:"synopsis"`
	Score    float64 `json:"score"`
	Members  int     `json:"members"`
	Episodes int     `json:"episodes"`
	Images   struct {
		JPG struct {
			LargeImageURL string `json:"large_image_url"`
		} `json:"jpg"`
	} `json:"images"`
	Genres    []namedRef `json:"genres"`
	Themes    []namedRef `json:"themes"`
	Studios   []namedRef `json:"studios"`
	Streaming []namedRef `json:"streaming"`
	Aired     struct {
		From string `json:"from"`
	} `json:"aired"`
}

type namedRef struct {
	Name string `json:"name"`
}

type scheduleResponse struct {
	Data       []animeEntry `json:"data"`
	Pagination struct {
		HasNextPage bool `json:"has_next_page"`
	} `json:"pagination"`
}

// Source adapts Jikan's weekly airing schedule.
type Source struct {
	cfg        config.Jikan
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

// New creates the Jikan adapter. The API needs no credentials.
func New(cfg config.Jikan, logger *slog.Logger, opts ...Option) *Source {
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
	date := sources.Day(day)
	weekday := strings.ToLower(day.UTC().Weekday().String())

	var records []release.Record
	for page := 1; page <= maxPages; page++ {
		params := url.Values{}
		params.Set("filter", weekday)
		params.Set("page", strconv.Itoa(page))

		var resp scheduleResponse
		if err := s.get(ctx, "/schedules", params, &resp); err != nil {
			if page == 1 {
				return nil, err
			}
			s.logger.Warn("schedule page failed, keeping partial results", "page", page, "error", err)
			break
		}

		for _, entry := range resp.Data {
			if rec, ok := s.mapEntry(entry, date); ok {
				records = append(records, rec)
			}
		}
		if !resp.Pagination.HasNextPage {
			break
		}
	}

	unique, removed := release.Dedupe(records, func(r *release.Record) string {
		return fmt.Sprintf("mal:%v", r.ExternalIDs["mal_id"])
	})
	if removed > 0 {
		s.logger.Info("removed duplicate anime entries", "count", removed)
	}

	s.logger.Info("fetched anime", "date", date, "weekday", weekday, "count", len(unique))
	return unique, nil
}

func (s *Source) mapEntry(entry animeEntry, date string) (release.Record, bool) {
	if entry.Title == "" {
		return release.Record{}, false
	}

	// Genres and themes both behave as genres downstream.
	genres := make([]string, 0, len(entry.Genres)+len(entry.Themes))
	for _, g := range entry.Genres {
		genres = append(genres, g.Name)
	}
	for _, t := range entry.Themes {
		genres = append(genres, t.Name)
	}

	return release.New(sourceKey, release.MediaAnime, entry.Title, date, release.Draft{
		Synopsis: entry.Synopsis,
		Genres:   genres,
		Metadata: map[string]any{
			"score":      entry.Score,
			"members":    entry.Members,
			"episodes":   entry.Episodes,
			"studios":    names(entry.Studios),
			"streaming":  names(entry.Streaming),
			"popularity": float64(entry.Members),
		},
		PosterURL: entry.Images.JPG.LargeImageURL,
		ExternalIDs: map[string]any{
			"mal_id": entry.MalID,
		},
	}), true
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
		return fmt.Errorf("jikan %s after %s: %w", path, time.Since(start).Round(time.Millisecond), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jikan %s returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode jikan response: %w", err)
	}
	return nil
}

func names(refs []namedRef) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.Name != "" {
			out = append(out, ref.Name)
		}
	}
	return out
}
