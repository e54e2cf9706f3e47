// Package site renders the static release-calendar site from day
// artifacts: an HTML page fed by injected JSON, a machine-readable
// latest.json, and an RSS feed.
package site

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"unreeled/internal/config"
	"unreeled/internal/ingest"
	"unreeled/internal/release"
)

// dataMarker is the placeholder the page template carries where the
// release payload gets injected.
const dataMarker = "__RELEASE_DATA_PLACEHOLDER__"

// Payload is the JSON document injected into the page and written to
// latest.json.
type Payload struct {
	GeneratedAt time.Time                   `json:"generated_at"`
	LatestDate  string                      `json:"latest_date"`
	Releases    []release.Record            `json:"releases"`
	SourceStats map[string]int              `json:"source_stats"`
	Errors      map[string]string           `json:"errors,omitempty"`
	Trending    []TrendingEntry             `json:"trending"`
	Archive     Archive                     `json:"archive"`
	History     map[string][]release.Record `json:"history"`
}

// Archive groups known artifact dates for navigation.
type Archive struct {
	Dates   []string            `json:"dates"`
	Weekly  map[string][]string `json:"weekly"`
	Monthly map[string][]string `json:"monthly"`
}

// Builder renders the site from whatever artifacts exist on disk.
type Builder struct {
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewBuilder creates a site builder.
func NewBuilder(cfg *config.Config, logger *slog.Logger) *Builder {
	return &Builder{cfg: cfg, logger: logger, now: time.Now}
}

// Build renders index.html, latest.json, and feed.xml into the configured
// output directory. A missing template or empty data directory is an
// error; the site never silently publishes a stale or blank page.
func (b *Builder) Build() error {
	template, err := os.ReadFile(b.cfg.Site.TemplatePath)
	if err != nil {
		return fmt.Errorf("read site template: %w", err)
	}
	if !strings.Contains(string(template), dataMarker) {
		return fmt.Errorf("site template has no %s marker", dataMarker)
	}

	dates, err := artifactDates(b.cfg.Output.DataDir)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		return fmt.Errorf("no day artifacts in %s", b.cfg.Output.DataDir)
	}

	payload, err := b.buildPayload(dates)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode site payload: %w", err)
	}

	if err := os.MkdirAll(b.cfg.Site.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create site output directory: %w", err)
	}

	// "</" would terminate the surrounding script tag mid-payload.
	injected := strings.Replace(string(template), dataMarker,
		strings.ReplaceAll(string(encoded), "</", `<\/`), 1)
	if err := os.WriteFile(filepath.Join(b.cfg.Site.OutputDir, "index.html"), []byte(injected), 0o644); err != nil {
		return fmt.Errorf("write index.html: %w", err)
	}
	if err := os.WriteFile(filepath.Join(b.cfg.Site.OutputDir, "latest.json"), encoded, 0o644); err != nil {
		return fmt.Errorf("write latest.json: %w", err)
	}

	feed, err := renderRSS(b.cfg.Digest.SiteURL, payload)
	if err != nil {
		return fmt.Errorf("render rss feed: %w", err)
	}
	if err := os.WriteFile(filepath.Join(b.cfg.Site.OutputDir, "feed.xml"), feed, 0o644); err != nil {
		return fmt.Errorf("write feed.xml: %w", err)
	}

	b.logger.Info("site built", "latest", payload.LatestDate, "releases", len(payload.Releases), "days", len(dates))
	return nil
}

func (b *Builder) buildPayload(dates []string) (*Payload, error) {
	latestDate := dates[len(dates)-1]
	latest, err := ingest.ReadArtifact(b.cfg.Output.DataDir, latestDate)
	if err != nil {
		return nil, fmt.Errorf("read latest artifact: %w", err)
	}

	payload := &Payload{
		GeneratedAt: b.now().UTC(),
		LatestDate:  latestDate,
		Releases:    selectFeed(latest.Releases, latestPerType, latestTotal),
		SourceStats: latest.SourceStats,
		Errors:      latest.Errors,
		Archive:     buildArchive(dates),
		History:     map[string][]release.Record{},
	}

	// Older days inside the trending window feed both the history map and
	// the trending ranking.
	window := dates
	if len(window) > trendingWindow {
		window = window[len(window)-trendingWindow:]
	}
	days := make([]dayReleases, 0, len(window))
	for _, date := range window {
		doc := latest
		if date != latestDate {
			doc, err = ingest.ReadArtifact(b.cfg.Output.DataDir, date)
			if err != nil {
				b.logger.Warn("skipping unreadable artifact", "date", date, "error", err)
				continue
			}
			payload.History[date] = selectFeed(doc.Releases, historicPerType, historicTotal)
		}
		days = append(days, dayReleases{date: date, releases: doc.Releases})
	}
	payload.Trending = trending(days)
	if payload.Trending == nil {
		payload.Trending = []TrendingEntry{}
	}
	return payload, nil
}

// artifactDates lists artifact dates ascending.
func artifactDates(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}
	dates := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "releases_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		date := strings.TrimSuffix(strings.TrimPrefix(name, "releases_"), ".json")
		if _, err := release.ParseDate(date); err != nil {
			continue
		}
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates, nil
}

// buildArchive groups dates by ISO week and by month.
func buildArchive(dates []string) Archive {
	archive := Archive{
		Dates:   dates,
		Weekly:  map[string][]string{},
		Monthly: map[string][]string{},
	}
	for _, date := range dates {
		day, err := release.ParseDate(date)
		if err != nil {
			continue
		}
		year, week := day.ISOWeek()
		weekKey := fmt.Sprintf("%d-W%02d", year, week)
		monthKey := day.Format("2006-01")
		archive.Weekly[weekKey] = append(archive.Weekly[weekKey], date)
		archive.Monthly[monthKey] = append(archive.Monthly[monthKey], date)
	}
	return archive
}
