// Package igdb adapts the IGDB games API. Authentication uses Twitch OAuth2
// client credentials; queries are Apicalypse text bodies POSTed to the
// endpoint for each entity type.
package igdb

import (
	"context"
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
	sourceKey    = "igdb_games"
	requestDelay = 250 * time.Millisecond
	gameLimit    = 50
)

type gameRow struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Summary          string  `json:"summary"`
	FirstReleaseDate int64   `json:"first_release_date"`
	Genres           []int64 `json:"genres"`
	Platforms        []int64 `json:"platforms"`
	Cover            int64   `json:"cover"`
	Rating           float64 `json:"rating"`
	RatingCount      int     `json:"rating_count"`
	Hypes            int     `json:"hypes"`
}

type namedRow struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type coverRow struct {
	ID      int64  `json:"id"`
	ImageID string `json:"image_id"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Source adapts IGDB game releases.
type Source struct {
	cfg        config.IGDB
	logger     *slog.Logger
	httpClient *http.Client
	delay      time.Duration

	token string
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

// New creates the IGDB adapter.
func New(cfg config.IGDB, logger *slog.Logger, opts ...Option) *Source {
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
	if s.cfg.ClientID == "" || s.cfg.ClientSecret == "" {
		s.logger.Info("igdb credentials not configured, skipping games")
		return nil, nil
	}
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}

	date := sources.Day(day)
	dayStart := day.UTC().Truncate(24 * time.Hour)

	games, err := s.queryGames(ctx, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	// IGDB release timestamps are imprecise near midnight; widen the window
	// by a day each way when the exact day comes back empty.
	if len(games) == 0 {
		games, err = s.queryGames(ctx, dayStart.Add(-24*time.Hour), dayStart.Add(48*time.Hour))
		if err != nil {
			return nil, err
		}
	}
	if len(games) == 0 {
		s.logger.Info("fetched games", "date", date, "count", 0)
		return nil, nil
	}

	genres, platforms, covers, err := s.resolveReferences(ctx, games)
	if err != nil {
		// Reference resolution failing still leaves usable records.
		s.logger.Warn("igdb reference lookup failed", "error", err)
	}

	records := make([]release.Record, 0, len(games))
	for _, game := range games {
		if game.Name == "" {
			continue
		}
		releaseDate := date
		if game.FirstReleaseDate > 0 {
			releaseDate = sources.Day(time.Unix(game.FirstReleaseDate, 0))
		}
		records = append(records, release.New(sourceKey, release.MediaGame, game.Name, releaseDate, release.Draft{
			Synopsis: game.Summary,
			Genres:   resolveNames(game.Genres, genres),
			Metadata: map[string]any{
				"platforms":    resolveNames(game.Platforms, platforms),
				"rating":       game.Rating,
				"rating_count": game.RatingCount,
				"hypes":        game.Hypes,
				"popularity":   game.Rating,
			},
			PosterURL: s.coverURL(covers[game.Cover]),
			ExternalIDs: map[string]any{
				"igdb_id": game.ID,
			},
		}))
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Popularity() > records[j].Popularity()
	})

	s.logger.Info("fetched games", "date", date, "count", len(records))
	return records, nil
}

// authenticate fetches a Twitch app token once per source lifetime. A daily
// run never outlives the token.
func (s *Source) authenticate(ctx context.Context) error {
	if s.token != "" {
		return nil
	}

	params := url.Values{}
	params.Set("client_id", s.cfg.ClientID)
	params.Set("client_secret", s.cfg.ClientSecret)
	params.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.AuthURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build auth request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	sources.Pause(ctx, s.delay)
	if err != nil {
		return fmt.Errorf("igdb auth: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("igdb auth returned %d", resp.StatusCode)
	}
	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("decode igdb auth response: %w", err)
	}
	if token.AccessToken == "" {
		return fmt.Errorf("igdb auth returned empty token")
	}
	s.token = token.AccessToken
	return nil
}

func (s *Source) queryGames(ctx context.Context, from, to time.Time) ([]gameRow, error) {
	body := fmt.Sprintf(
		"fields name, summary, first_release_date, genres, platforms, cover, rating, rating_count, hypes; "+
			"where first_release_date >= %d & first_release_date < %d; "+
			"sort rating desc; limit %d;",
		from.Unix(), to.Unix(), gameLimit)

	var games []gameRow
	if err := s.query(ctx, "/games", body, &games); err != nil {
		return nil, err
	}
	return games, nil
}

// resolveReferences batches the genre, platform, and cover IDs collected
// from a page of games into one lookup per entity type.
func (s *Source) resolveReferences(ctx context.Context, games []gameRow) (map[int64]string, map[int64]string, map[int64]string, error) {
	genreIDs := map[int64]struct{}{}
	platformIDs := map[int64]struct{}{}
	coverIDs := map[int64]struct{}{}
	for _, game := range games {
		for _, id := range game.Genres {
			genreIDs[id] = struct{}{}
		}
		for _, id := range game.Platforms {
			platformIDs[id] = struct{}{}
		}
		if game.Cover > 0 {
			coverIDs[game.Cover] = struct{}{}
		}
	}

	genres := map[int64]string{}
	platforms := map[int64]string{}
	covers := map[int64]string{}

	if len(genreIDs) > 0 {
		var rows []namedRow
		if err := s.query(ctx, "/genres", "fields name; where id = ("+joinIDs(genreIDs)+"); limit 100;", &rows); err != nil {
			return genres, platforms, covers, err
		}
		for _, row := range rows {
			genres[row.ID] = row.Name
		}
	}
	if len(platformIDs) > 0 {
		var rows []namedRow
		if err := s.query(ctx, "/platforms", "fields name; where id = ("+joinIDs(platformIDs)+"); limit 200;", &rows); err != nil {
			return genres, platforms, covers, err
		}
		for _, row := range rows {
			platforms[row.ID] = row.Name
		}
	}
	if len(coverIDs) > 0 {
		var rows []coverRow
		if err := s.query(ctx, "/covers", "fields image_id; where id = ("+joinIDs(coverIDs)+"); limit 100;", &rows); err != nil {
			return genres, platforms, covers, err
		}
		for _, row := range rows {
			covers[row.ID] = row.ImageID
		}
	}
	return genres, platforms, covers, nil
}

func (s *Source) query(ctx context.Context, endpoint, body string, dst any) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(s.cfg.BaseURL, "/")+endpoint, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Client-ID", s.cfg.ClientID)
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	sources.Pause(ctx, s.delay)
	if err != nil {
		return fmt.Errorf("igdb %s after %s: %w", endpoint, time.Since(start).Round(time.Millisecond), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("igdb %s returned %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode igdb %s response: %w", endpoint, err)
	}
	return nil
}

func (s *Source) coverURL(imageID string) string {
	if imageID == "" {
		return ""
	}
	return fmt.Sprintf("%s/t_cover_big/%s.jpg", strings.TrimRight(s.cfg.ImageBaseURL, "/"), imageID)
}

func resolveNames(ids []int64, names map[int64]string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := names[id]; ok && name != "" {
			out = append(out, name)
		}
	}
	return out
}

func joinIDs(ids map[int64]struct{}) string {
	list := make([]int64, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	parts := make([]string, len(list))
	for i, id := range list {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
