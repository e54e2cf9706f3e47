// Package bgg adapts the BoardGameGeek XML API. BGG has no release-date
// search, so the hotness list stands in for "what is new today"; detail
// lookups fill in descriptions and designer credits.
package bgg

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"unreeled/internal/config"
	"unreeled/internal/release"
	"unreeled/internal/sources"
)

const (
	sourceKey    = "bgg_hotness"
	requestDelay = 1 * time.Second
	detailBatch  = 20
)

type hotList struct {
	Items []struct {
		ID        int64  `xml:"id,attr"`
		Rank      int    `xml:"rank,attr"`
		Name      attred `xml:"name"`
		Thumbnail attred `xml:"thumbnail"`
		Year      attred `xml:"yearpublished"`
	} `xml:"item"`
}

type attred struct {
	Value string `xml:"value,attr"`
}

type thingList struct {
	Items []thingItem `xml:"item"`
}

type thingItem struct {
	ID          int64  `xml:"id,attr"`
	Description string `xml:"description"`
	Image       string `xml:"image"`
	Links       []struct {
		Type  string `xml:"type,attr"`
		Value string `xml:"value,attr"`
	} `xml:"link"`
	MinPlayers attred `xml:"minplayers"`
	MaxPlayers attred `xml:"maxplayers"`
	Playtime   attred `xml:"playingtime"`
}

// Source adapts the BoardGameGeek hotness list.
type Source struct {
	cfg        config.BoardGameGeek
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

// New creates the BoardGameGeek adapter. The XML API technically works
// without a token, but unauthenticated clients get throttled hard enough
// that the source stays off until one is configured.
func New(cfg config.BoardGameGeek, logger *slog.Logger, opts ...Option) *Source {
	src := &Source{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: 20 * time.Second},
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
	if s.cfg.Token == "" {
		s.logger.Info("bgg token not configured, skipping board games")
		return nil, nil
	}
	date := sources.Day(day)

	var hot hotList
	if err := s.get(ctx, "/hot?type=boardgame", &hot); err != nil {
		return nil, err
	}
	if len(hot.Items) == 0 {
		s.logger.Info("fetched board games", "date", date, "count", 0)
		return nil, nil
	}

	limit := len(hot.Items)
	if limit > detailBatch {
		limit = detailBatch
	}
	ids := make([]string, 0, limit)
	for _, item := range hot.Items[:limit] {
		ids = append(ids, strconv.FormatInt(item.ID, 10))
	}

	details := map[int64]thingDetail{}
	var things thingList
	if err := s.get(ctx, "/thing?id="+strings.Join(ids, ","), &things); err != nil {
		s.logger.Warn("bgg detail lookup failed, keeping hot list entries", "error", err)
	} else {
		for _, item := range things.Items {
			details[item.ID] = newThingDetail(item)
		}
	}

	records := make([]release.Record, 0, limit)
	for _, item := range hot.Items[:limit] {
		if item.Name.Value == "" {
			continue
		}
		detail := details[item.ID]
		poster := detail.image
		if poster == "" {
			poster = item.Thumbnail.Value
		}
		records = append(records, release.New(sourceKey, release.MediaBoardGame, item.Name.Value, date, release.Draft{
			Synopsis: detail.description,
			Genres:   detail.categories,
			Metadata: map[string]any{
				"hotness_rank":     item.Rank,
				"year_published":   item.Year.Value,
				"designers":        detail.designers,
				"min_players":      detail.minPlayers,
				"max_players":      detail.maxPlayers,
				"playtime_minutes": detail.playtime,
				// Rank 1 is hottest; invert so higher means more popular.
				"popularity": float64(101 - item.Rank),
			},
			PosterURL: poster,
			ExternalIDs: map[string]any{
				"bgg_id": item.ID,
			},
		}))
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Popularity() > records[j].Popularity()
	})

	s.logger.Info("fetched board games", "date", date, "count", len(records))
	return records, nil
}

type thingDetail struct {
	description string
	image       string
	categories  []string
	designers   []string
	minPlayers  int
	maxPlayers  int
	playtime    int
}

func newThingDetail(item thingItem) thingDetail {
	detail := thingDetail{
		description: release.Snippet(html.UnescapeString(item.Description), 500),
		image:       item.Image,
	}
	for _, link := range item.Links {
		switch link.Type {
		case "boardgamecategory":
			if len(detail.categories) < 5 {
				detail.categories = append(detail.categories, link.Value)
			}
		case "boardgamedesigner":
			detail.designers = append(detail.designers, link.Value)
		}
	}
	detail.minPlayers, _ = strconv.Atoi(item.MinPlayers.Value)
	detail.maxPlayers, _ = strconv.Atoi(item.MaxPlayers.Value)
	detail.playtime, _ = strconv.Atoi(item.Playtime.Value)
	return detail
}

func (s *Source) get(ctx context.Context, pathAndQuery string, dst any) error {
	start := time.Now()
	target := strings.TrimRight(s.cfg.BaseURL, "/") + pathAndQuery

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("User-Agent", "unreeled/1.0")

	resp, err := s.httpClient.Do(req)
	sources.Pause(ctx, s.delay)
	if err != nil {
		return fmt.Errorf("bgg %s after %s: %w", pathAndQuery, time.Since(start).Round(time.Millisecond), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bgg %s returned %d", pathAndQuery, resp.StatusCode)
	}
	if err := xml.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode bgg response: %w", err)
	}
	return nil
}
