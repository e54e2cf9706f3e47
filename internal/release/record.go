package release

import (
	"time"
)

// DateLayout is the calendar date form used throughout the pipeline.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date as UTC midnight.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, time.UTC)
}

// MediaType classifies a release into the fixed set of catalog categories.
type MediaType string

const (
	MediaMovie     MediaType = "movie"
	MediaTV        MediaType = "tv"
	MediaBook      MediaType = "book"
	MediaGame      MediaType = "game"
	MediaAnime     MediaType = "anime"
	MediaMusic     MediaType = "music"
	MediaPodcast   MediaType = "podcast"
	MediaComic     MediaType = "comic"
	MediaNews      MediaType = "news"
	MediaBoardGame MediaType = "board_game"
)

// SpoilerCounts tracks spoiler flags added by the interaction layer. The
// pipeline only zero-initializes them.
type SpoilerCounts struct {
	Light  int `json:"light"`
	Medium int `json:"medium"`
	Heavy  int `json:"heavy"`
}

// Record is the unified release schema shared by every media type. Every
// field is always present in the JSON artifact; optional fields default to
// their empty form rather than null.
type Record struct {
	Source       string         `json:"source"`
	MediaType    MediaType      `json:"media_type"`
	Title        string         `json:"title"`
	ReleaseDate  string         `json:"release_date"`
	Synopsis     string         `json:"synopsis"`
	Genres       []string       `json:"genres"`
	Metadata     map[string]any `json:"metadata"`
	PosterURL    string         `json:"poster_url"`
	ExternalIDs  map[string]any `json:"external_ids"`
	IngestedAt   time.Time      `json:"ingested_at"`
	CommentCount int            `json:"comment_count"`
	Spoilers     SpoilerCounts  `json:"spoiler_counts"`
}

// Draft carries the optional fields for a record under construction.
type Draft struct {
	Synopsis    string
	Genres      []string
	Metadata    map[string]any
	PosterURL   string
	ExternalIDs map[string]any
}

// New builds a fully populated record. Nil slices and maps are replaced with
// empty ones so the artifact never contains null for an optional field.
// Adapters are responsible for dropping records with empty titles before
// handing them to the orchestrator.
func New(source string, mediaType MediaType, title, releaseDate string, draft Draft) Record {
	genres := draft.Genres
	if genres == nil {
		genres = []string{}
	}
	metadata := draft.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	externalIDs := draft.ExternalIDs
	if externalIDs == nil {
		externalIDs = map[string]any{}
	}
	return Record{
		Source:      source,
		MediaType:   mediaType,
		Title:       title,
		ReleaseDate: releaseDate,
		Synopsis:    draft.Synopsis,
		Genres:      genres,
		Metadata:    metadata,
		PosterURL:   draft.PosterURL,
		ExternalIDs: externalIDs,
		IngestedAt:  time.Now().UTC(),
	}
}

// Popularity reads the popularity metadata field, treating a missing or
// non-numeric value as zero. This is the canonical artifact sort key.
func (r *Record) Popularity() float64 {
	return metaFloat(r.Metadata, "popularity")
}

// RuntimeMinutes reads the movie runtime metadata field.
func (r *Record) RuntimeMinutes() int {
	return int(metaFloat(r.Metadata, "runtime_minutes"))
}

// MetaStrings reads a string-sequence metadata field (artists, authors,
// platforms, ...) defensively, coping with both []string and []any shapes.
func (r *Record) MetaStrings(key string) []string {
	switch v := r.Metadata[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// MergeMetadata adds the given keys to the record's metadata, skipping any
// key that is already present. Enrichers must never overwrite a field a
// source adapter produced.
func (r *Record) MergeMetadata(extra map[string]any) int {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	added := 0
	for key, value := range extra {
		if _, exists := r.Metadata[key]; exists {
			continue
		}
		r.Metadata[key] = value
		added++
	}
	return added
}

// SetExternalID records a foreign identifier only when the namespace is not
// already populated.
func (r *Record) SetExternalID(namespace string, id any) bool {
	if r.ExternalIDs == nil {
		r.ExternalIDs = map[string]any{}
	}
	if existing, ok := r.ExternalIDs[namespace]; ok && existing != nil && existing != "" {
		return false
	}
	r.ExternalIDs[namespace] = id
	return true
}

// ExternalIDString returns the identifier stored under the namespace as a
// string, or "" when absent.
func (r *Record) ExternalIDString(namespace string) string {
	if v, ok := r.ExternalIDs[namespace].(string); ok {
		return v
	}
	return ""
}

// FillSynopsis sets the synopsis only when it is currently empty.
func (r *Record) FillSynopsis(synopsis string) bool {
	if r.Synopsis != "" || synopsis == "" {
		return false
	}
	r.Synopsis = synopsis
	return true
}

// FillPosterURL sets the poster URL only when it is currently empty.
func (r *Record) FillPosterURL(posterURL string) bool {
	if r.PosterURL != "" || posterURL == "" {
		return false
	}
	r.PosterURL = posterURL
	return true
}

func metaFloat(metadata map[string]any, key string) float64 {
	switch v := metadata[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
