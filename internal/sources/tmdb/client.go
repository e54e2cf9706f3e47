// Package tmdb adapts The Movie Database API v3 into release records for
// movies and TV shows airing on a target date.
package tmdb

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
	sourceKey    = "tmdb"
	maxPages     = 5
	requestDelay = 250 * time.Millisecond
)

type genreList struct {
	Genres []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"genres"`
}

type discoverItem struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	Name             string  `json:"name"`
	Overview         string  `json:"overview"`
	ReleaseDate      string  `json:"release_date"`
	FirstAirDate     string  `json:"first_air_date"`
	PosterPath       string  `json:"poster_path"`
	GenreIDs         []int   `json:"genre_ids"`
	OriginalLanguage string  `json:"original_language"`
	Popularity       float64 `json:"popularity"`
	VoteAverage      float64 `json:"vote_average"`
	Adult            bool    `json:"adult"`
}

type discoverResponse struct {
	Page       int            `json:"page"`
	Results    []discoverItem `json:"results"`
	TotalPages int            `json:"total_pages"`
}

type movieDetails struct {
	Runtime int `json:"runtime"`
}

type tvDetails struct {
	Networks []struct {
		Name string `json:"name"`
	} `json:"networks"`
}

// Client provides access to the TMDB API. One client backs both the movie
// and TV adapters so the genre tables are resolved once per run.
type Client struct {
	cfg        config.TMDB
	filters    config.Filters
	logger     *slog.Logger
	httpClient *http.Client
	delay      time.Duration

	movieGenres map[int]string
	tvGenres    map[int]string
	detailCalls int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithDelay overrides the fixed post-call delay.
func WithDelay(d time.Duration) Option {
	return func(c *Client) { c.delay = d }
}

// New creates a TMDB client. A missing API key is not an error; both
// adapters degrade to empty results.
func New(cfg config.TMDB, filters config.Filters, logger *slog.Logger, opts ...Option) *Client {
	client := &Client{
		cfg:        cfg,
		filters:    filters,
		logger:     logger,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		delay:      requestDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Movies returns the movie adapter backed by this client.
func (c *Client) Movies() sources.Source { return movieSource{c} }

// TV returns the TV adapter backed by this client.
func (c *Client) TV() sources.Source { return tvSource{c} }

type movieSource struct{ c *Client }

func (movieSource) Name() string { return sourceKey + "_movies" }

func (s movieSource) Fetch(ctx context.Context, day time.Time) ([]release.Record, error) {
	return s.c.fetchMovies(ctx, day)
}

type tvSource struct{ c *Client }

func (tvSource) Name() string { return sourceKey + "_tv" }

func (s tvSource) Fetch(ctx context.Context, day time.Time) ([]release.Record, error) {
	return s.c.fetchTV(ctx, day)
}

func (c *Client) enabled() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, dst any) error {
	target, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + endpoint)
	if err != nil {
		return fmt.Errorf("parse tmdb url: %w", err)
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.cfg.APIKey)
	target.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	sources.Pause(ctx, c.delay)
	if err != nil {
		return fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tmdb %s returned %d (latency=%v)", endpoint, resp.StatusCode, latency)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode tmdb response: %w", err)
	}
	return nil
}

// loadGenres resolves the numeric genre tables once per client lifetime.
func (c *Client) loadGenres(ctx context.Context) error {
	if c.movieGenres != nil && c.tvGenres != nil {
		return nil
	}
	var movies, tv genreList
	if err := c.get(ctx, "/genre/movie/list", nil, &movies); err != nil {
		return fmt.Errorf("load movie genres: %w", err)
	}
	if err := c.get(ctx, "/genre/tv/list", nil, &tv); err != nil {
		return fmt.Errorf("load tv genres: %w", err)
	}
	c.movieGenres = make(map[int]string, len(movies.Genres))
	for _, g := range movies.Genres {
		c.movieGenres[g.ID] = g.Name
	}
	c.tvGenres = make(map[int]string, len(tv.Genres))
	for _, g := range tv.Genres {
		c.tvGenres[g.ID] = g.Name
	}
	return nil
}

func resolveGenres(table map[int]string, ids []int) []string {
	genres := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := table[id]; ok {
			genres = append(genres, name)
		} else {
			genres = append(genres, "Unknown")
		}
	}
	return genres
}

// excludedTVGenres builds the set of TV genre names dropped by the filters.
func (c *Client) excludedTVGenres() map[string]struct{} {
	excluded := map[string]struct{}{}
	if !c.filters.IncludeTalkShows {
		excluded["Talk"] = struct{}{}
	}
	if !c.filters.IncludeReality {
		excluded["Reality"] = struct{}{}
	}
	if !c.filters.IncludeNews {
		excluded["News"] = struct{}{}
	}
	return excluded
}

func (c *Client) fetchMovies(ctx context.Context, day time.Time) ([]release.Record, error) {
	if !c.enabled() {
		c.logger.Info("TMDB_API_KEY not set, skipping movies")
		return nil, nil
	}
	if err := c.loadGenres(ctx); err != nil {
		return nil, err
	}

	date := sources.Day(day)
	var records []release.Record
	totalPages := 1

	for page := 1; page <= totalPages && page <= maxPages; page++ {
		params := url.Values{}
		params.Set("primary_release_date.gte", date)
		params.Set("primary_release_date.lte", date)
		params.Set("sort_by", "popularity.desc")
		params.Set("page", strconv.Itoa(page))
		if c.filters.LanguageFilter != "" {
			params.Set("with_original_language", c.filters.LanguageFilter)
		}

		var resp discoverResponse
		if err := c.get(ctx, "/discover/movie", params, &resp); err != nil {
			if page == 1 {
				return nil, err
			}
			c.logger.Warn("movie discover page failed", "page", page, "error", err)
			break
		}
		totalPages = resp.TotalPages

		for _, movie := range resp.Results {
			runtime := c.movieRuntime(ctx, movie.ID)
			if runtime > 0 && runtime < c.filters.MinMovieRuntime {
				continue
			}
			// Entries with neither synopsis nor poster are low-quality stubs.
			if movie.Overview == "" && movie.PosterPath == "" {
				continue
			}
			title := movie.Title
			if title == "" {
				continue
			}
			releaseDate := movie.ReleaseDate
			if releaseDate == "" {
				releaseDate = date
			}
			records = append(records, release.New(sourceKey, release.MediaMovie, title, releaseDate, release.Draft{
				Synopsis: movie.Overview,
				Genres:   resolveGenres(c.movieGenres, movie.GenreIDs),
				Metadata: map[string]any{
					"runtime_minutes":   runtime,
					"original_language": movie.OriginalLanguage,
					"popularity":        movie.Popularity,
					"vote_average":      movie.VoteAverage,
					"adult":             movie.Adult,
				},
				PosterURL:   c.posterURL(movie.PosterPath),
				ExternalIDs: map[string]any{"tmdb_id": movie.ID},
			}))
		}
	}

	c.logger.Info("fetched movies", "date", date, "count", len(records))
	return records, nil
}

func (c *Client) fetchTV(ctx context.Context, day time.Time) ([]release.Record, error) {
	if !c.enabled() {
		c.logger.Info("TMDB_API_KEY not set, skipping tv")
		return nil, nil
	}
	if err := c.loadGenres(ctx); err != nil {
		return nil, err
	}

	date := sources.Day(day)
	excluded := c.excludedTVGenres()
	var records []release.Record
	totalPages := 1

	for page := 1; page <= totalPages && page <= maxPages; page++ {
		params := url.Values{}
		params.Set("air_date.gte", date)
		params.Set("air_date.lte", date)
		params.Set("sort_by", "popularity.desc")
		params.Set("page", strconv.Itoa(page))
		if c.filters.LanguageFilter != "" {
			params.Set("with_original_language", c.filters.LanguageFilter)
		}

		var resp discoverResponse
		if err := c.get(ctx, "/discover/tv", params, &resp); err != nil {
			if page == 1 {
				return nil, err
			}
			c.logger.Warn("tv discover page failed", "page", page, "error", err)
			break
		}
		totalPages = resp.TotalPages

		for _, show := range resp.Results {
			genres := resolveGenres(c.tvGenres, show.GenreIDs)
			if containsExcluded(genres, excluded) {
				continue
			}
			if show.Overview == "" && show.PosterPath == "" {
				continue
			}
			title := show.Name
			if title == "" {
				continue
			}
			releaseDate := show.FirstAirDate
			if releaseDate == "" {
				releaseDate = date
			}
			records = append(records, release.New(sourceKey, release.MediaTV, title, releaseDate, release.Draft{
				Synopsis: show.Overview,
				Genres:   genres,
				Metadata: map[string]any{
					"networks":          c.showNetworks(ctx, show.ID),
					"original_language": show.OriginalLanguage,
					"popularity":        show.Popularity,
					"vote_average":      show.VoteAverage,
					"episode_air_date":  date,
				},
				PosterURL:   c.posterURL(show.PosterPath),
				ExternalIDs: map[string]any{"tmdb_id": show.ID},
			}))
		}
	}

	c.logger.Info("fetched tv shows", "date", date, "count", len(records))
	return records, nil
}

// movieRuntime fetches per-title details under the shared detail-lookup
// budget. Past the budget, titles keep partial data instead of failing.
func (c *Client) movieRuntime(ctx context.Context, id int64) int {
	if c.detailCalls >= c.filters.MovieDetailLookup {
		return 0
	}
	c.detailCalls++
	var details movieDetails
	if err := c.get(ctx, fmt.Sprintf("/movie/%d", id), nil, &details); err != nil {
		c.logger.Debug("movie details lookup failed", "id", id, "error", err)
		return 0
	}
	return details.Runtime
}

func (c *Client) showNetworks(ctx context.Context, id int64) []string {
	if c.detailCalls >= c.filters.MovieDetailLookup {
		return []string{}
	}
	c.detailCalls++
	var details tvDetails
	if err := c.get(ctx, fmt.Sprintf("/tv/%d", id), nil, &details); err != nil {
		c.logger.Debug("tv details lookup failed", "id", id, "error", err)
		return []string{}
	}
	networks := make([]string, 0, len(details.Networks))
	for _, n := range details.Networks {
		networks = append(networks, n.Name)
	}
	return networks
}

func (c *Client) posterURL(path string) string {
	if path == "" {
		return ""
	}
	return strings.TrimRight(c.cfg.ImageBaseURL, "/") + path
}

func containsExcluded(genres []string, excluded map[string]struct{}) bool {
	for _, g := range genres {
		if _, ok := excluded[g]; ok {
			return true
		}
	}
	return false
}
