package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Output contains artifact directory configuration.
type Output struct {
	DataDir string `toml:"data_dir"`
}

// Filters contains the static thresholds applied during ingestion. The
// orchestrator echoes them into the artifact's filters_applied mapping.
type Filters struct {
	MinMovieRuntime   int    `toml:"min_movie_runtime"`
	LanguageFilter    string `toml:"language_filter"`
	IncludeTalkShows  bool   `toml:"include_talk_shows"`
	IncludeReality    bool   `toml:"include_reality"`
	IncludeNews       bool   `toml:"include_news"`
	IncludeSingles    bool   `toml:"include_singles"`
	MusicCoverArtMax  int    `toml:"music_cover_art_limit"`
	BookSynopsisMax   int    `toml:"book_synopsis_limit"`
	MovieDetailLookup int    `toml:"movie_detail_lookup_limit"`
}

// Enrichment contains per-enricher lookup budgets.
type Enrichment struct {
	OMDbLookups      int `toml:"omdb_lookups"`
	TasteDiveLookups int `toml:"tastedive_lookups"`
	WatchmodeLookups int `toml:"watchmode_lookups"`
}

// TMDB contains configuration for The Movie Database API.
type TMDB struct {
	APIKey       string `toml:"api_key"`
	BaseURL      string `toml:"base_url"`
	ImageBaseURL string `toml:"image_base_url"`
}

// OpenLibrary contains configuration for the Open Library API.
type OpenLibrary struct {
	BaseURL       string `toml:"base_url"`
	CoversBaseURL string `toml:"covers_base_url"`
	UserAgent     string `toml:"user_agent"`
}

// IGDB contains configuration for the IGDB API (Twitch OAuth2).
type IGDB struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	AuthURL      string `toml:"auth_url"`
	BaseURL      string `toml:"base_url"`
	ImageBaseURL string `toml:"image_base_url"`
}

// Jikan contains configuration for the Jikan (MyAnimeList) API.
type Jikan struct {
	BaseURL string `toml:"base_url"`
}

// MusicBrainz contains configuration for MusicBrainz and the Cover Art
// Archive.
type MusicBrainz struct {
	BaseURL     string `toml:"base_url"`
	CoverArtURL string `toml:"cover_art_url"`
	UserAgent   string `toml:"user_agent"`
}

// PodcastIndex contains configuration for the Podcast Index API.
type PodcastIndex struct {
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	BaseURL   string `toml:"base_url"`
}

// BoardGameGeek contains configuration for the BoardGameGeek XML API.
type BoardGameGeek struct {
	Token   string `toml:"token"`
	BaseURL string `toml:"base_url"`
}

// RAWG contains configuration for the RAWG games API.
type RAWG struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// ComicVine contains configuration for the Comic Vine API.
type ComicVine struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// NewsData contains configuration for the NewsData.io API.
type NewsData struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// OMDb contains configuration for the OMDb ratings enricher.
type OMDb struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// TasteDive contains configuration for the TasteDive recommendations
// enricher.
type TasteDive struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// Watchmode contains configuration for the Watchmode streaming-availability
// enricher.
type Watchmode struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Digest contains subscriber store and transactional email settings.
type Digest struct {
	DatabasePath string `toml:"database_path"`
	FromAddress  string `toml:"from_address"`
	SiteURL      string `toml:"site_url"`
	ResendAPIKey string `toml:"resend_api_key"`
	ResendURL    string `toml:"resend_url"`
}

// Site contains static-site builder settings.
type Site struct {
	TemplatePath string `toml:"template_path"`
	OutputDir    string `toml:"output_dir"`
}

// Schedule contains recurring-run settings.
type Schedule struct {
	DailyHourUTC int `toml:"daily_hour_utc"`
}

// Logging contains log output settings.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	LogDir string `toml:"log_dir"`
}

// Config encapsulates all configuration values for Unreeled. It is built
// once at process start and passed by reference; nothing mutates it after
// Load returns.
type Config struct {
	Output        Output        `toml:"output"`
	Filters       Filters       `toml:"filters"`
	Enrichment    Enrichment    `toml:"enrichment"`
	TMDB          TMDB          `toml:"tmdb"`
	OpenLibrary   OpenLibrary   `toml:"open_library"`
	IGDB          IGDB          `toml:"igdb"`
	Jikan         Jikan         `toml:"jikan"`
	MusicBrainz   MusicBrainz   `toml:"musicbrainz"`
	PodcastIndex  PodcastIndex  `toml:"podcast_index"`
	BoardGameGeek BoardGameGeek `toml:"bgg"`
	RAWG          RAWG          `toml:"rawg"`
	ComicVine     ComicVine     `toml:"comic_vine"`
	NewsData      NewsData      `toml:"newsdata"`
	OMDb          OMDb          `toml:"omdb"`
	TasteDive     TasteDive     `toml:"tastedive"`
	Watchmode     Watchmode     `toml:"watchmode"`
	Notifications Notifications `toml:"notifications"`
	Digest        Digest        `toml:"digest"`
	Site          Site          `toml:"site"`
	Schedule      Schedule      `toml:"schedule"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/unreeled/config.toml")
}

// Load locates, parses, and validates a configuration file, then overlays
// credentials from the environment. The returned config has all path fields
// expanded.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv(os.Getenv)

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// applyEnv fills credential fields from environment variables when the
// config file left them empty. Absence keeps the matching source disabled.
func (c *Config) applyEnv(getenv func(string) string) {
	overlay := func(dst *string, key string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = strings.TrimSpace(getenv(key))
		}
	}
	overlay(&c.TMDB.APIKey, "TMDB_API_KEY")
	overlay(&c.IGDB.ClientID, "IGDB_CLIENT_ID")
	overlay(&c.IGDB.ClientSecret, "IGDB_CLIENT_SECRET")
	overlay(&c.PodcastIndex.APIKey, "PODCAST_INDEX_KEY")
	overlay(&c.PodcastIndex.APISecret, "PODCAST_INDEX_SECRET")
	overlay(&c.BoardGameGeek.Token, "BGG_TOKEN")
	overlay(&c.RAWG.APIKey, "RAWG_KEY")
	overlay(&c.ComicVine.APIKey, "COMIC_VINE_KEY")
	overlay(&c.NewsData.APIKey, "NEWSDATA_KEY")
	overlay(&c.OMDb.APIKey, "OMDB_KEY")
	overlay(&c.TasteDive.APIKey, "TASTEDIVE_KEY")
	overlay(&c.Watchmode.APIKey, "WATCHMODE_KEY")
	overlay(&c.Digest.ResendAPIKey, "RESEND_API_KEY")
}

// ApplyEnv exposes the environment overlay for tests.
func (c *Config) ApplyEnv(getenv func(string) string) {
	c.applyEnv(getenv)
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("unreeled.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Output.DataDir, err = expandPath(c.Output.DataDir); err != nil {
		return err
	}
	if c.Site.TemplatePath, err = expandPath(c.Site.TemplatePath); err != nil {
		return err
	}
	if c.Site.OutputDir, err = expandPath(c.Site.OutputDir); err != nil {
		return err
	}
	if c.Digest.DatabasePath, err = expandPath(c.Digest.DatabasePath); err != nil {
		return err
	}
	if c.Logging.LogDir, err = expandPath(c.Logging.LogDir); err != nil {
		return err
	}
	return nil
}

// EnsureDirectories creates the directories an ingest run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Output.DataDir, c.Site.OutputDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Logging.LogDir != "" {
		if err := os.MkdirAll(c.Logging.LogDir, 0o755); err != nil {
			return fmt.Errorf("create log directory %q: %w", c.Logging.LogDir, err)
		}
	}
	return nil
}

// FiltersApplied returns the threshold mapping recorded in every artifact
// for reproducibility.
func (c *Config) FiltersApplied() map[string]any {
	return map[string]any{
		"min_movie_runtime":     c.Filters.MinMovieRuntime,
		"language_filter":       c.Filters.LanguageFilter,
		"include_talk_shows":    c.Filters.IncludeTalkShows,
		"include_reality":       c.Filters.IncludeReality,
		"include_news":          c.Filters.IncludeNews,
		"include_singles":       c.Filters.IncludeSingles,
		"music_cover_art_limit": c.Filters.MusicCoverArtMax,
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
