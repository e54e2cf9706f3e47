// Package rawg adapts the RAWG games API, a second opinion alongside IGDB
// for the same calendar day. The orchestrator reconciles the two by title.
package rawg

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
	sourceKey    = "rawg_games"
	requestDelay = 250 * time.Millisecond
	pageSize     = 30
)

type gamesResponse struct {
	Results []struct {
		ID              int64   `json:"id"`
		Name            string  `json:"name"`
		Released        string  `json:"released"`
		BackgroundImage string  `json:"background_image"`
		Rating          float64 `json:"rating"`
		Added           int     `json:"added"`
		Metacritic      int     `json:"metacritic"`
		Genres          []struct {
			Name string `json:"name"`
		} `json:"genres"`
		Platforms []struct {
			Platform struct {
				Name string `json:"name"`
			} `json:"platform"`
		} `json:"platforms"`
	} `json:"results"`
}

// Source adapts RAWG game releases.
type Source struct {
	cfg        config.RAWG
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

// New creates the RAWG adapter.
func New(cfg config.RAWG, logger *slog.Logger, opts ...Option) *Source {
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
		s.logger.Info("rawg api key not configured, skipping games")
		return nil, nil
	}
	date := sources.Day(day)

	params := url.Values{}
	params.Set("key", s.cfg.APIKey)
	params.Set("dates", date+","+date)
	params.Set("ordering", "-rating")
	params.Set("page_size", fmt.Sprint(pageSize))

	var resp gamesResponse
	if err := s.get(ctx, "/games", params, &resp); err != nil {
		return nil, err
	}

	records := make([]release.Record, 0, len(resp.Results))
	for _, game := range resp.Results {
		if game.Name == "" {
			continue
		}
		genres := make([]string, 0, 3)
		for _, g := range game.Genres {
			genres = append(genres, g.Name)
			if len(genres) == 3 {
				break
			}
		}
		platforms := make([]string, 0, 4)
		for _, p := range game.Platforms {
			platforms = append(platforms, p.Platform.Name)
			if len(platforms) == 4 {
				break
			}
		}
		releaseDate := game.Released
		if releaseDate == "" {
			releaseDate = date
		}
		records = append(records, release.New(sourceKey, release.MediaGame, game.Name, releaseDate, release.Draft{
			Genres: genres,
			Metadata: map[string]any{
				"platforms":  platforms,
				"rating":     game.Rating,
				"metacritic": game.Metacritic,
				// "added" counts users who shelved the game, the closest
				// RAWG gets to a popularity signal.
				"popularity": float64(game.Added),
			},
			PosterURL: game.BackgroundImage,
			ExternalIDs: map[string]any{
				"rawg_id": game.ID,
			},
		}))
	}

	s.logger.Info("fetched games", "date", date, "count", len(records))
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
		return fmt.Errorf("rawg %s after %s: %w", path, time.Since(start).Round(time.Millisecond), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rawg %s returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode rawg response: %w", err)
	}
	return nil
}
