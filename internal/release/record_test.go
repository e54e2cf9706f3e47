package release_test

import (
	"encoding/json"
	"strings"
	"testing"

	"unreeled/internal/release"
)

func TestNewDefaultsOptionalFields(t *testing.T) {
	rec := release.New("tmdb", release.MediaMovie, "X", "2026-02-20", release.Draft{})

	if rec.Genres == nil || len(rec.Genres) != 0 {
		t.Fatalf("expected empty genres slice, got %#v", rec.Genres)
	}
	if rec.Metadata == nil || len(rec.Metadata) != 0 {
		t.Fatalf("expected empty metadata map, got %#v", rec.Metadata)
	}
	if rec.ExternalIDs == nil || len(rec.ExternalIDs) != 0 {
		t.Fatalf("expected empty external_ids map, got %#v", rec.ExternalIDs)
	}
	if rec.PosterURL != "" || rec.Synopsis != "" {
		t.Fatalf("expected empty strings for optional text fields")
	}
	if rec.IngestedAt.IsZero() {
		t.Fatal("expected ingested_at to be stamped")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	body := string(payload)
	if strings.Contains(body, "null") {
		t.Fatalf("artifact must never contain null fields: %s", body)
	}
	if !strings.Contains(body, `"genres":[]`) || !strings.Contains(body, `"metadata":{}`) {
		t.Fatalf("expected empty-form defaults in JSON: %s", body)
	}
	if !strings.Contains(body, `"spoiler_counts":{"light":0,"medium":0,"heavy":0}`) {
		t.Fatalf("expected zeroed spoiler counts: %s", body)
	}
}

func TestPopularityMissingIsZero(t *testing.T) {
	rec := release.New("rawg", release.MediaGame, "Nova", "2026-02-20", release.Draft{})
	if got := rec.Popularity(); got != 0 {
		t.Fatalf("missing popularity = %v, want 0", got)
	}
	rec.Metadata["popularity"] = 42.5
	if got := rec.Popularity(); got != 42.5 {
		t.Fatalf("popularity = %v, want 42.5", got)
	}
	rec.Metadata["popularity"] = 7
	if got := rec.Popularity(); got != 7 {
		t.Fatalf("int popularity = %v, want 7", got)
	}
}

func TestMergeMetadataIsAdditive(t *testing.T) {
	rec := release.New("tmdb", release.MediaMovie, "X", "2026-02-20", release.Draft{
		Metadata: map[string]any{"a": 1},
	})
	added := rec.MergeMetadata(map[string]any{"a": 99, "b": 2})
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	if rec.Metadata["a"] != 1 {
		t.Fatalf("existing key overwritten: %v", rec.Metadata["a"])
	}
	if rec.Metadata["b"] != 2 {
		t.Fatalf("new key missing: %#v", rec.Metadata)
	}

	// A second pass must never remove what the first added.
	rec.MergeMetadata(map[string]any{"c": 3})
	if rec.Metadata["b"] != 2 || rec.Metadata["a"] != 1 {
		t.Fatalf("second merge disturbed earlier keys: %#v", rec.Metadata)
	}
}

func TestSetExternalIDOnlyFillsAbsent(t *testing.T) {
	rec := release.New("omdb", release.MediaMovie, "X", "2026-02-20", release.Draft{
		ExternalIDs: map[string]any{"imdb_id": "tt0111161"},
	})
	if rec.SetExternalID("imdb_id", "tt9999999") {
		t.Fatal("must not overwrite an existing identifier")
	}
	if rec.ExternalIDs["imdb_id"] != "tt0111161" {
		t.Fatalf("identifier changed: %v", rec.ExternalIDs["imdb_id"])
	}
	if !rec.SetExternalID("watchmode_id", 12345) {
		t.Fatal("expected absent namespace to be filled")
	}
}

func TestFillSynopsisAndPoster(t *testing.T) {
	rec := release.New("open_library", release.MediaBook, "X", "2026", release.Draft{})
	if !rec.FillSynopsis("first") {
		t.Fatal("expected empty synopsis to be filled")
	}
	if rec.FillSynopsis("second") {
		t.Fatal("must not replace a present synopsis")
	}
	if rec.Synopsis != "first" {
		t.Fatalf("synopsis = %q", rec.Synopsis)
	}
	if !rec.FillPosterURL("https://img.example/x.jpg") || rec.FillPosterURL("other") {
		t.Fatal("poster fill semantics mismatch")
	}
}

func TestMetaStringsHandlesDecodedJSON(t *testing.T) {
	rec := release.New("musicbrainz", release.MediaMusic, "X", "2026-02-20", release.Draft{
		Metadata: map[string]any{"artists": []any{"A", "B"}},
	})
	got := rec.MetaStrings("artists")
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("artists = %#v", got)
	}
	rec.Metadata["artists"] = []string{"C"}
	if got := rec.MetaStrings("artists"); len(got) != 1 || got[0] != "C" {
		t.Fatalf("artists = %#v", got)
	}
	if got := rec.MetaStrings("missing"); got != nil {
		t.Fatalf("missing key should return nil, got %#v", got)
	}
}
