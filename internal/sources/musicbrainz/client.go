// Package musicbrainz adapts the MusicBrainz release search API plus the
// Cover Art Archive. MusicBrainz enforces roughly one request per second
// per client, so this adapter runs with a longer delay than the others and
// backs off once on a 503.
package musicbrainz

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
	sourceKey     = "musicbrainz"
	requestDelay  = 1100 * time.Millisecond
	coverArtDelay = 500 * time.Millisecond
	retryBackoff  = 5 * time.Second
	pageSize      = 100
	maxResults    = 300
)

// formatNames folds MusicBrainz medium formats into the handful of names
// worth surfacing.
var formatNames = map[string]string{
	"CD":                 "CD",
	"Vinyl":              "Vinyl",
	`12" Vinyl`:          "Vinyl",
	`7" Vinyl`:           "Vinyl",
	"Cassette":           "Cassette",
	"Digital Media":      "Digital",
	"Enhanced CD":        "CD",
	"Hybrid SACD":        "CD",
	"Compact Disc (CD)":  "CD",
	"Copy Control CD":    "CD",
	"Data CD":            "CD",
	"DualDisc":           "CD",
	"Music Download":     "Digital",
	"Streaming Media":    "Digital",
	"Download Card":      "Digital",
	"Microcassette":      "Cassette",
	"Cassette Single":    "Cassette",
	"Vinyl Disc":         "Vinyl",
	"Flexi-disc":         "Vinyl",
	`10" Vinyl`:          "Vinyl",
	"Phonograph record":  "Vinyl",
	"Gramophone record":  "Vinyl",
	"CD-R":               "CD",
	"Blu-spec CD":        "CD",
	"SHM-CD":             "CD",
	"HQCD":               "CD",
	"8cm CD":             "CD",
	"Mini CD":            "CD",
	"Digital Audio Tape": "Cassette",
}

type searchResponse struct {
	Count    int           `json:"count"`
	Releases []releaseItem `json:"releases"`
}

type releaseItem struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Date         string `json:"date"`
	Country      string `json:"country"`
	Barcode      string `json:"barcode"`
	ArtistCredit []struct {
		Name   string `json:"name"`
		Artist struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"artist"`
	} `json:"artist-credit"`
	ReleaseGroup struct {
		ID          string `json:"id"`
		PrimaryType string `json:"primary-type"`
	} `json:"release-group"`
	Media []struct {
		Format     string `json:"format"`
		TrackCount int    `json:"track-count"`
	} `json:"media"`
	LabelInfo []struct {
		CatalogNumber string `json:"catalog-number"`
		Label         struct {
			Name string `json:"name"`
		} `json:"label"`
	} `json:"label-info"`
}

type coverArtResponse struct {
	Images []struct {
		Front bool   `json:"front"`
		Image string `json:"image"`
	} `json:"images"`
}

// Source adapts MusicBrainz release searches.
type Source struct {
	cfg            config.MusicBrainz
	includeSingles bool
	coverArtMax    int
	logger         *slog.Logger
	httpClient     *http.Client
	delay          time.Duration
	coverDelay     time.Duration
	backoff        time.Duration
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

// WithDelay overrides every fixed delay, including the 503 backoff.
func WithDelay(d time.Duration) Option {
	return func(s *Source) {
		s.delay = d
		s.coverDelay = d
		s.backoff = d
	}
}

// New creates the MusicBrainz adapter. The API needs no key, only a
// descriptive User-Agent.
func New(cfg config.MusicBrainz, filters config.Filters, logger *slog.Logger, opts ...Option) *Source {
	src := &Source{
		cfg:            cfg,
		includeSingles: filters.IncludeSingles,
		coverArtMax:    filters.MusicCoverArtMax,
		logger:         logger,
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		delay:          requestDelay,
		coverDelay:     coverArtDelay,
		backoff:        retryBackoff,
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

	var items []releaseItem
	for offset := 0; offset < maxResults; offset += pageSize {
		params := url.Values{}
		params.Set("query", "date:"+date)
		params.Set("fmt", "json")
		params.Set("limit", strconv.Itoa(pageSize))
		params.Set("offset", strconv.Itoa(offset))

		var resp searchResponse
		if err := s.get(ctx, "/release", params, &resp); err != nil {
			if offset == 0 {
				return nil, err
			}
			s.logger.Warn("release search page failed, keeping partial results", "offset", offset, "error", err)
			break
		}

		items = append(items, resp.Releases...)
		if offset+pageSize >= resp.Count || len(resp.Releases) == 0 {
			break
		}
	}

	records := make([]release.Record, 0, len(items))
	for _, item := range items {
		if rec, ok := s.mapRelease(item, date); ok {
			records = append(records, rec)
		}
	}

	// The same album charts once per region/format; title plus artist set
	// identifies the release.
	unique, removed := release.Dedupe(records, func(r *release.Record) string {
		return release.DedupKey(r.Title, r.MetaStrings("artists"))
	})
	if removed > 0 {
		s.logger.Info("removed duplicate music releases", "count", removed)
	}

	covered := s.fetchCoverArt(ctx, unique)
	if covered > 0 {
		s.logger.Info("attached cover art", "count", covered)
	}

	s.logger.Info("fetched music releases", "date", date, "count", len(unique))
	return unique, nil
}

func (s *Source) mapRelease(item releaseItem, date string) (release.Record, bool) {
	if item.Title == "" || item.ID == "" {
		return release.Record{}, false
	}

	releaseType := item.ReleaseGroup.PrimaryType
	if releaseType == "Single" && !s.includeSingles {
		return release.Record{}, false
	}

	artists := make([]string, 0, len(item.ArtistCredit))
	for _, credit := range item.ArtistCredit {
		name := credit.Name
		if name == "" {
			name = credit.Artist.Name
		}
		if name != "" {
			artists = append(artists, name)
		}
	}

	formats := make([]string, 0, len(item.Media))
	trackCount := 0
	seenFormats := map[string]struct{}{}
	for _, medium := range item.Media {
		trackCount += medium.TrackCount
		name := formatNames[medium.Format]
		if name == "" && medium.Format != "" {
			name = "Other"
		}
		if name != "" {
			if _, seen := seenFormats[name]; !seen {
				seenFormats[name] = struct{}{}
				formats = append(formats, name)
			}
		}
	}
	sort.Strings(formats)

	// Music has no genre taxonomy in the search response; the release type
	// and physical formats stand in for it downstream.
	genres := make([]string, 0, 1+len(formats))
	if releaseType != "" {
		genres = append(genres, releaseType)
	}
	genres = append(genres, formats...)

	labels := make([]string, 0, len(item.LabelInfo))
	catalogNumbers := make([]string, 0, len(item.LabelInfo))
	for _, info := range item.LabelInfo {
		if info.Label.Name != "" {
			labels = append(labels, info.Label.Name)
		}
		if info.CatalogNumber != "" {
			catalogNumbers = append(catalogNumbers, info.CatalogNumber)
		}
	}

	releaseDate := item.Date
	if releaseDate == "" {
		releaseDate = date
	}

	return release.New(sourceKey, release.MediaMusic, item.Title, releaseDate, release.Draft{
		Genres: genres,
		Metadata: map[string]any{
			"artists":         artists,
			"release_type":    releaseType,
			"formats":         formats,
			"track_count":     trackCount,
			"labels":          labels,
			"catalog_numbers": catalogNumbers,
			"barcode":         item.Barcode,
			"country":         item.Country,
		},
		ExternalIDs: map[string]any{
			"musicbrainz_id":   item.ID,
			"release_group_id": item.ReleaseGroup.ID,
		},
	}), true
}

// fetchCoverArt asks the Cover Art Archive for a front image, bounded by the
// configured lookup budget. A 404 just means no art exists.
func (s *Source) fetchCoverArt(ctx context.Context, records []release.Record) int {
	covered := 0
	for i := range records {
		if i >= s.coverArtMax {
			break
		}
		mbid := records[i].ExternalIDString("musicbrainz_id")
		if mbid == "" {
			continue
		}

		target := strings.TrimRight(s.cfg.CoverArtURL, "/") + "/release/" + mbid
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			continue
		}
		req.Header.Set("User-Agent", s.cfg.UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := s.httpClient.Do(req)
		sources.Pause(ctx, s.coverDelay)
		if err != nil {
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			continue
		}
		var art coverArtResponse
		err = json.NewDecoder(resp.Body).Decode(&art)
		resp.Body.Close()
		if err != nil {
			continue
		}
		for _, image := range art.Images {
			if image.Front && records[i].FillPosterURL(image.Image) {
				covered++
				break
			}
		}
	}
	return covered
}

// get performs one search call, retrying a single time after a 503.
func (s *Source) get(ctx context.Context, path string, params url.Values, dst any) error {
	for attempt := 0; ; attempt++ {
		status, err := s.getOnce(ctx, path, params, dst)
		if err == nil {
			return nil
		}
		if status == http.StatusServiceUnavailable && attempt == 0 {
			s.logger.Warn("musicbrainz throttled, backing off", "path", path)
			sources.Pause(ctx, s.backoff)
			continue
		}
		return err
	}
}

func (s *Source) getOnce(ctx context.Context, path string, params url.Values, dst any) (int, error) {
	start := time.Now()
	target := strings.TrimRight(s.cfg.BaseURL, "/") + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	sources.Pause(ctx, s.delay)
	if err != nil {
		return 0, fmt.Errorf("musicbrainz %s after %s: %w", path, time.Since(start).Round(time.Millisecond), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("musicbrainz %s returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return resp.StatusCode, fmt.Errorf("decode musicbrainz response: %w", err)
	}
	return resp.StatusCode, nil
}
