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

type omdbResponse struct {
	Response string `json:"Response"`
	ImdbID   string `json:"imdbID"`
	Ratings  []struct {
		Source string `json:"Source"`
		Value  string `json:"Value"`
	} `json:"Ratings"`
	Metascore  string `json:"Metascore"`
	ImdbRating string `json:"imdbRating"`
}

// OMDb attaches Rotten Tomatoes, Metacritic, and IMDb scores to movie and
// TV records, matched by title.
type OMDb struct {
	cfg        config.OMDb
	logger     *slog.Logger
	httpClient *http.Client
	delay      time.Duration
}

// NewOMDb creates the OMDb ratings enricher.
func NewOMDb(cfg config.OMDb, logger *slog.Logger, opts ...Option) *OMDb {
	e := &OMDb{
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
func (e *OMDb) Name() string { return "omdb" }

// Enrich implements Enricher.
func (e *OMDb) Enrich(ctx context.Context, records []release.Record, maxLookups int) int {
	if e.cfg.APIKey == "" {
		e.logger.Info("omdb api key not configured, skipping ratings")
		return 0
	}

	enriched := 0
	lookups := 0
	for i := range records {
		if lookups >= maxLookups {
			break
		}
		rec := &records[i]
		if rec.MediaType != release.MediaMovie && rec.MediaType != release.MediaTV {
			continue
		}
		if _, done := rec.Metadata["ratings"]; done {
			continue
		}

		lookups++
		resp, err := e.lookup(ctx, rec.Title, rec.MediaType)
		if err != nil {
			e.logger.Warn("omdb lookup failed", "title", rec.Title, "error", err)
			continue
		}
		if resp == nil {
			continue
		}

		ratings := map[string]any{}
		for _, rating := range resp.Ratings {
			switch rating.Source {
			case "Rotten Tomatoes":
				ratings["rotten_tomatoes"] = rating.Value
			case "Metacritic":
				ratings["metacritic"] = rating.Value
			case "Internet Movie Database":
				ratings["imdb"] = rating.Value
			}
		}
		if _, ok := ratings["metacritic"]; !ok && resp.Metascore != "" && resp.Metascore != "N/A" {
			ratings["metacritic"] = resp.Metascore + "/100"
		}
		if _, ok := ratings["imdb"]; !ok && resp.ImdbRating != "" && resp.ImdbRating != "N/A" {
			ratings["imdb"] = resp.ImdbRating + "/10"
		}
		if len(ratings) == 0 {
			continue
		}

		added := rec.MergeMetadata(map[string]any{"ratings": ratings})
		if resp.ImdbID != "" {
			rec.SetExternalID("imdb_id", resp.ImdbID)
		}
		if added > 0 {
			enriched++
		}
	}
	e.logger.Info("omdb enrichment complete", "enriched", enriched, "lookups", lookups)
	return enriched
}

// lookup returns nil with no error when OMDb has no match for the title.
func (e *OMDb) lookup(ctx context.Context, title string, mediaType release.MediaType) (*omdbResponse, error) {
	params := url.Values{}
	params.Set("apikey", e.cfg.APIKey)
	params.Set("t", title)
	if mediaType == release.MediaTV {
		params.Set("type", "series")
	} else {
		params.Set("type", "movie")
	}

	target := strings.TrimRight(e.cfg.BaseURL, "/") + "/?" + params.Encode()
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
		return nil, fmt.Errorf("omdb returned %d", resp.StatusCode)
	}
	var body omdbResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode omdb response: %w", err)
	}
	if body.Response != "True" {
		return nil, nil
	}
	return &body, nil
}
