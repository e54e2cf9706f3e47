package config

import (
	"fmt"
	"strings"
)

// Validate checks values that would otherwise fail deep inside a run.
// Missing credentials are deliberately not validated here; they disable the
// matching source instead.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Output.DataDir) == "" {
		return fmt.Errorf("config: output.data_dir must not be empty")
	}
	if c.Filters.MinMovieRuntime < 0 {
		return fmt.Errorf("config: filters.min_movie_runtime must not be negative")
	}
	if c.Filters.MusicCoverArtMax < 0 {
		return fmt.Errorf("config: filters.music_cover_art_limit must not be negative")
	}
	if c.Enrichment.OMDbLookups < 0 || c.Enrichment.TasteDiveLookups < 0 || c.Enrichment.WatchmodeLookups < 0 {
		return fmt.Errorf("config: enrichment lookup budgets must not be negative")
	}
	if c.Schedule.DailyHourUTC < 0 || c.Schedule.DailyHourUTC > 23 {
		return fmt.Errorf("config: schedule.daily_hour_utc must be between 0 and 23")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
