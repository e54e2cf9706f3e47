package jikan_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"unreeled/internal/config"
	"unreeled/internal/release"
	"unreeled/internal/sources/jikan"
	"unreeled/internal/testsupport"
)

func newServer(t *testing.T, pages int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/schedules", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("filter") != "friday" {
			t.Errorf("weekday filter = %q, want friday", r.URL.Query().Get("filter"))
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		hasNext := page < pages
		fmt.Fprintf(w, `{"pagination":{"has_next_page":%t},"data":[
			{"mal_id":%d,"title":"Show %d","title_english":"Show %d EN","synopsis":"About things",
			 "score":8.1,"members":%d,"episodes":12,
			 "images":{"jpg":{"large_image_url":"https://cdn.example/p%d.jpg"}},
			 "genres":[{"name":"Action"}],"themes":[{"name":"Mecha"}],
			 "studios":[{"name":"Studio A"}],"streaming":[{"name":"Crunchyroll"}]},
			{"mal_id":999,"title":"Repeat","synopsis":"Dup","score":7,"members":100,"episodes":24,
			 "images":{"jpg":{"large_image_url":""}},"genres":[],"themes":[],"studios":[],"streaming":[]}
		]}`, hasNext, 100+page, page, page, 1000*page, page)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newSource(t *testing.T, server *httptest.Server) *jikan.Source {
	t.Helper()
	return jikan.New(config.Jikan{BaseURL: server.URL}, testsupport.Logger(t), jikan.WithDelay(0))
}

func TestFetchPaginatesAndDeduplicates(t *testing.T) {
	server := newServer(t, 2)
	src := newSource(t, server)

	day, err := release.ParseDate("2026-02-20") // a Friday
	if err != nil {
		t.Fatal(err)
	}
	records, err := src.Fetch(context.Background(), day)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	// Two pages, each with one unique show plus the shared mal_id 1 entry.
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3: %+v", len(records), records)
	}

	first := records[0]
	// The native title is canonical; title_english in the payload is ignored.
	if first.Title != "Show 1" {
		t.Fatalf("title = %q, want the native title", first.Title)
	}
	if first.Source != "jikan_anime" || first.MediaType != release.MediaAnime {
		t.Fatalf("unexpected record identity: %+v", first)
	}
	if first.ReleaseDate != "2026-02-20" {
		t.Fatalf("release date = %q", first.ReleaseDate)
	}
	if len(first.Genres) != 2 || first.Genres[0] != "Action" || first.Genres[1] != "Mecha" {
		t.Fatalf("genres+themes merge failed: %#v", first.Genres)
	}
	if got := first.MetaStrings("streaming"); len(got) != 1 || got[0] != "Crunchyroll" {
		t.Fatalf("streaming = %#v", got)
	}
	if first.Popularity() != 1000 {
		t.Fatalf("popularity = %v, want member count", first.Popularity())
	}
}

func TestFetchStopsAtPageCap(t *testing.T) {
	server := newServer(t, 10)
	src := newSource(t, server)

	day, _ := release.ParseDate("2026-02-20")
	records, err := src.Fetch(context.Background(), day)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	// Capped at three pages: three unique shows plus one shared entry.
	if len(records) != 4 {
		t.Fatalf("len(records) = %d, want 4 after page cap", len(records))
	}
}

func TestFetchFirstPageFailureIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)
	src := newSource(t, server)

	day, _ := release.ParseDate("2026-02-20")
	if _, err := src.Fetch(context.Background(), day); err == nil {
		t.Fatal("expected error when the first schedule page fails")
	}
}
