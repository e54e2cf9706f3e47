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

const streamingMax = 6

type watchmodeSearchResponse struct {
	TitleResults []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"title_results"`
}

type watchmodeSource struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Region string `json:"region"`
}

// Watchmode attaches streaming availability to movie and TV records. Each
// record costs two upstream calls (search, then sources), so the lookup
// budget counts records rather than requests.
type Watchmode struct {
	cfg        config.Watchmode
	logger     *slog.Logger
	httpClient *http.Client
	delay      time.Duration
}

// NewWatchmode creates the Watchmode streaming-availability enricher.
func NewWatchmode(cfg config.Watchmode, logger *slog.Logger, opts ...Option) *Watchmode {
	e := &Watchmode{
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
func (e *Watchmode) Name() string { return "watchmode" }

// Enrich implements Enricher.
func (e *Watchmode) Enrich(ctx context.Context, records []release.Record, maxLookups int) int {
	if e.cfg.APIKey == "" {
		e.logger.Info("watchmode api key not configured, skipping streaming availability")
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
		if _, done := rec.Metadata["streaming"]; done {
			continue
		}

		lookups++
		titleID, err := e.search(ctx, rec.Title, rec.MediaType)
		if err != nil {
			e.logger.Warn("watchmode search failed", "title", rec.Title, "error", err)
			continue
		}
		if titleID == 0 {
			continue
		}
		services, err := e.sources(ctx, titleID)
		if err != nil {
			e.logger.Warn("watchmode sources failed", "title", rec.Title, "error", err)
			continue
		}
		if len(services) == 0 {
			continue
		}

		if rec.MergeMetadata(map[string]any{"streaming": services}) > 0 {
			rec.SetExternalID("watchmode_id", titleID)
			enriched++
		}
	}
	e.logger.Info("watchmode enrichment complete", "enriched", enriched, "lookups", lookups)
	return enriched
}

func (e *Watchmode) search(ctx context.Context, title string, mediaType release.MediaType) (int64, error) {
	params := url.Values{}
	params.Set("apiKey", e.cfg.APIKey)
	params.Set("search_field", "name")
	params.Set("search_value", title)
	if mediaType == release.MediaTV {
		params.Set("types", "tv")
	} else {
		params.Set("types", "movie")
	}

	var body watchmodeSearchResponse
	if err := e.get(ctx, "/search/", params, &body); err != nil {
		return 0, err
	}
	if len(body.TitleResults) == 0 {
		return 0, nil
	}
	return body.TitleResults[0].ID, nil
}

// sources returns deduplicated US streaming service names for a title.
func (e *Watchmode) sources(ctx context.Context, titleID int64) ([]string, error) {
	params := url.Values{}
	params.Set("apiKey", e.cfg.APIKey)
	params.Set("regions", "US")

	var body []watchmodeSource
	if err := e.get(ctx, fmt.Sprintf("/title/%d/sources/", titleID), params, &body); err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	services := make([]string, 0, streamingMax)
	for _, src := range body {
		if src.Name == "" {
			continue
		}
		if _, dup := seen[src.Name]; dup {
			continue
		}
		seen[src.Name] = struct{}{}
		services = append(services, src.Name)
		if len(services) == streamingMax {
			break
		}
	}
	return services, nil
}

func (e *Watchmode) get(ctx context.Context, path string, params url.Values, dst any) error {
	target := strings.TrimRight(e.cfg.BaseURL, "/") + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	sources.Pause(ctx, e.delay)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("watchmode %s returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode watchmode response: %w", err)
	}
	return nil
}
