package enrich

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

// tasteDiveTypes maps record media types onto TasteDive's query vocabulary.
// Types absent here are not enrichable.
var tasteDiveTypes = map[release.MediaType]string{
	release.MediaMovie: "movie",
	release.MediaTV:    "show",
	release.MediaBook:  "book",
	release.MediaMusic: "music",
	release.MediaGame:  "game",
}

const recommendationMax = 5

type tasteDiveResponse struct {
	Similar struct {
		Results []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"results"`
	} `json:"similar"`
}

// TasteDive attaches "if you like this" recommendations to records of the
// media types TasteDive knows about.
type TasteDive struct {
	cfg        config.TasteDive
	logger     *slog.Logger
	httpClient *http.Client
	delay      time.Duration
}

// NewTasteDive creates the TasteDive recommendations enricher.
func NewTasteDive(cfg config.TasteDive, logger *slog.Logger, opts ...Option) *TasteDive {
	e := &TasteDive{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		delay:      defaultDelay,
	}
	for _, opt := range opts {
		opt.apply(&e.httpClient, &e.delay)
	}
	return e
}

// Name implements Enricher.
func (e *TasteDive) Name() string { return "tastedive" }

// Enrich implements Enricher.
func (e *TasteDive) Enrich(ctx context.Context, records []release.Record, maxLookups int) int {
	if e.cfg.APIKey == "" {
		e.logger.Info("tastedive api key not configured, skipping recommendations")
		return 0
	}

	enriched := 0
	lookups := 0
	for i := range records {
		if lookups >= maxLookups {
			break
		}
		rec := &records[i]
		queryType, ok := tasteDiveTypes[rec.MediaType]
		if !ok {
			continue
		}
		if _, done := rec.Metadata["recommendations"]; done {
			continue
		}

		lookups++
		names, err := e.lookup(ctx, rec.Title, queryType)
		if err != nil {
			e.logger.Warn("tastedive lookup failed", "title", rec.Title, "error", err)
			continue
		}
		if len(names) == 0 {
			continue
		}
		if rec.MergeMetadata(map[string]any{"recommendations": names}) > 0 {
			enriched++
		}
	}
	e.logger.Info("tastedive enrichment complete", "enriched", enriched, "lookups", lookups)
	return enriched
}

func (e *TasteDive) lookup(ctx context.Context, title, queryType string) ([]string, error) {
	params := url.Values{}
	params.Set("k", e.cfg.APIKey)
	params.Set("q", queryType+":"+title)
	params.Set("type", queryType)
	params.Set("limit", fmt.Sprint(recommendationMax))

	target := strings.TrimRight(e.cfg.BaseURL, "/") + "/similar?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	sources.Pause(ctx, e.delay)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tastedive returned %d", resp.StatusCode)
	}
	var body tasteDiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode tastedive response: %w", err)
	}

	names := make([]string, 0, recommendationMax)
	for _, result := range body.Similar.Results {
		if result.Name == "" {
			continue
		}
		names = append(names, result.Name)
		if len(names) == recommendationMax {
			break
		}
	}
	return names, nil
}
