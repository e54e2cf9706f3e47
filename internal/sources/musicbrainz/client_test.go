package musicbrainz_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"unreeled/internal/config"
	"unreeled/internal/release"
	"unreeled/internal/sources/musicbrainz"
	"unreeled/internal/testsupport"
)

const searchPayload = `{"count":4,"releases":[
	{"id":"mb-1","title":"Album","date":"2026-02-20","country":"US","barcode":"123","score":100,
	 "artist-credit":[{"name":"Band","artist":{"id":"a1","name":"Band"}}],
	 "release-group":{"id":"rg-1","primary-type":"Album"},
	 "media":[{"format":"CD","track-count":10},{"format":"12\" Vinyl","track-count":10}],
	 "label-info":[{"catalog-number":"CAT-1","label":{"name":"Label Records"}}]},
	{"id":"mb-2","title":"Album","date":"2026-02-20","country":"GB","score":95,
	 "artist-credit":[{"name":"Band","artist":{"id":"a1","name":"Band"}}],
	 "release-group":{"id":"rg-1","primary-type":"Album"},
	 "media":[{"format":"Digital Media","track-count":10}]},
	{"id":"mb-3","title":"One Song","date":"2026-02-20","score":90,
	 "artist-credit":[{"name":"Solo","artist":{"id":"a2","name":"Solo"}}],
	 "release-group":{"id":"rg-2","primary-type":"Single"},
	 "media":[{"format":"Digital Media","track-count":1}]},
	{"id":"mb-4","title":"Other Album","date":"2026-02-20","score":80,
	 "artist-credit":[{"name":"Trio","artist":{"id":"a3","name":"Trio"}}],
	 "release-group":{"id":"rg-3","primary-type":"Album"},
	 "media":[{"format":"Cassette","track-count":8}]}
]}`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/release", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("search request sent without a User-Agent")
		}
		if q := r.URL.Query().Get("query"); !strings.Contains(q, "date:2026-02-20") {
			t.Errorf("query = %q", q)
		}
		fmt.Fprint(w, searchPayload)
	})
	mux.HandleFunc("/release/mb-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"images":[{"front":false,"image":"https://caa.example/back.jpg"},{"front":true,"image":"https://caa.example/front.jpg"}]}`)
	})
	mux.HandleFunc("/release/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newSource(t *testing.T, server *httptest.Server, includeSingles bool) *musicbrainz.Source {
	t.Helper()
	cfg := config.MusicBrainz{
		BaseURL:     server.URL,
		CoverArtURL: server.URL,
		UserAgent:   "unreeled-test/1.0 (test@example.com)",
	}
	filters := config.Default().Filters
	filters.IncludeSingles = includeSingles
	return musicbrainz.New(cfg, filters, testsupport.Logger(t), musicbrainz.WithDelay(0))
}

func TestFetchDeduplicatesAndFiltersSingles(t *testing.T) {
	server := newServer(t)
	src := newSource(t, server, false)

	day, err := release.ParseDate("2026-02-20")
	if err != nil {
		t.Fatal(err)
	}
	records, err := src.Fetch(context.Background(), day)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	// mb-2 duplicates mb-1 (same title and artist set); the single drops.
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2: %+v", len(records), records)
	}

	album := records[0]
	if album.Title != "Album" || album.Source != "musicbrainz" || album.MediaType != release.MediaMusic {
		t.Fatalf("unexpected record: %+v", album)
	}
	if got := album.MetaStrings("artists"); len(got) != 1 || got[0] != "Band" {
		t.Fatalf("artists = %#v", got)
	}
	if got := album.MetaStrings("formats"); len(got) != 2 || got[0] != "CD" || got[1] != "Vinyl" {
		t.Fatalf("format folding failed: %#v", got)
	}
	// Release type plus formats stand in for genres.
	if len(album.Genres) != 3 || album.Genres[0] != "Album" || album.Genres[1] != "CD" || album.Genres[2] != "Vinyl" {
		t.Fatalf("genres = %#v", album.Genres)
	}
	if album.Metadata["track_count"] != 20 {
		t.Fatalf("track_count = %v", album.Metadata["track_count"])
	}
	if got := album.MetaStrings("labels"); len(got) != 1 || got[0] != "Label Records" {
		t.Fatalf("labels = %#v", got)
	}
	if album.PosterURL != "https://caa.example/front.jpg" {
		t.Fatalf("cover art = %q", album.PosterURL)
	}
	if records[1].PosterURL != "" {
		t.Fatalf("404 cover lookup must leave poster empty: %q", records[1].PosterURL)
	}
}

func TestFetchKeepsSinglesWhenConfigured(t *testing.T) {
	server := newServer(t)
	src := newSource(t, server, true)

	day, _ := release.ParseDate("2026-02-20")
	records, err := src.Fetch(context.Background(), day)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	found := false
	for _, rec := range records {
		if rec.Title == "One Song" {
			found = true
			if rec.Metadata["release_type"] != "Single" {
				t.Fatalf("release_type = %v", rec.Metadata["release_type"])
			}
		}
	}
	if !found {
		t.Fatal("single missing despite include_singles")
	}
}

func TestFetchRetriesOnceAfter503(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/release/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"count":1,"releases":[
			{"id":"mb-9","title":"Comeback","date":"2026-02-20","score":70,
			 "artist-credit":[{"name":"Act","artist":{"id":"a9","name":"Act"}}],
			 "release-group":{"id":"rg-9","primary-type":"Album"},"media":[]}
		]}`)
	}))
	t.Cleanup(server.Close)
	src := newSource(t, server, false)

	day, _ := release.ParseDate("2026-02-20")
	records, err := src.Fetch(context.Background(), day)
	if err != nil {
		t.Fatalf("Fetch returned error after retry: %v", err)
	}
	if len(records) != 1 || records[0].Title != "Comeback" {
		t.Fatalf("retry did not recover: %+v", records)
	}
}

func TestFetchPersistent503IsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)
	src := newSource(t, server, false)

	day, _ := release.ParseDate("2026-02-20")
	if _, err := src.Fetch(context.Background(), day); err == nil {
		t.Fatal("expected error when the service stays unavailable")
	}
}
