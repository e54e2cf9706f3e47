package bgg_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"unreeled/internal/config"
	"unreeled/internal/release"
	"unreeled/internal/sources/bgg"
	"unreeled/internal/testsupport"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/hot", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer bgg-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		fmt.Fprint(w, `<items>
			<item id="11" rank="1">
				<name value="Crown of Ash"/>
				<thumbnail value="https://cf.example/thumb11.jpg"/>
				<yearpublished value="2026"/>
			</item>
			<item id="12" rank="2">
				<name value="Harbor Run"/>
				<thumbnail value="https://cf.example/thumb12.jpg"/>
				<yearpublished value="2026"/>
			</item>
		</items>`)
	})
	mux.HandleFunc("/thing", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "11,12" {
			t.Errorf("thing ids = %q", got)
		}
		fmt.Fprint(w, `<items>
			<item id="11">
				<description>A dark strategy game.&#10;Second line.</description>
				<image>https://cf.example/full11.jpg</image>
				<link type="boardgamecategory" value="Fantasy"/>
				<link type="boardgamecategory" value="Economic"/>
				<link type="boardgamedesigner" value="R. Designer"/>
				<link type="boardgamemechanic" value="Worker Placement"/>
				<minplayers value="2"/>
				<maxplayers value="4"/>
				<playingtime value="90"/>
			</item>
		</items>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newSource(t *testing.T, server *httptest.Server, token string) *bgg.Source {
	t.Helper()
	cfg := config.BoardGameGeek{Token: token, BaseURL: server.URL}
	return bgg.New(cfg, testsupport.Logger(t), bgg.WithDelay(0))
}

func TestFetchMergesHotListWithDetails(t *testing.T) {
	server := newServer(t)
	src := newSource(t, server, "bgg-token")

	day, err := release.ParseDate("2026-02-20")
	if err != nil {
		t.Fatal(err)
	}
	records, err := src.Fetch(context.Background(), day)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}

	top := records[0]
	if top.Title != "Crown of Ash" || top.MediaType != release.MediaBoardGame || top.Source != "bgg_hotness" {
		t.Fatalf("unexpected record: %+v", top)
	}
	if top.Metadata["hotness_rank"] != 1 || top.Popularity() != 100 {
		t.Fatalf("rank mapping failed: rank=%v popularity=%v", top.Metadata["hotness_rank"], top.Popularity())
	}
	if top.Synopsis == "" || top.Synopsis[0] != 'A' {
		t.Fatalf("synopsis = %q", top.Synopsis)
	}
	if len(top.Genres) != 2 || top.Genres[0] != "Fantasy" {
		t.Fatalf("categories = %#v (mechanics must not leak in)", top.Genres)
	}
	if got := top.MetaStrings("designers"); len(got) != 1 || got[0] != "R. Designer" {
		t.Fatalf("designers = %#v", got)
	}
	if top.PosterURL != "https://cf.example/full11.jpg" {
		t.Fatalf("poster = %q, want detail image over thumbnail", top.PosterURL)
	}

	// No detail entry for id 12; the thumbnail stands in.
	if records[1].PosterURL != "https://cf.example/thumb12.jpg" {
		t.Fatalf("fallback poster = %q", records[1].PosterURL)
	}
}

func TestFetchWithoutTokenReturnsEmpty(t *testing.T) {
	server := newServer(t)
	src := newSource(t, server, "")

	day, _ := release.ParseDate("2026-02-20")
	records, err := src.Fetch(context.Background(), day)
	if err != nil {
		t.Fatalf("missing token must not error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty result, got %d", len(records))
	}
}

func TestFetchHotListFailureIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)
	src := newSource(t, server, "bgg-token")

	day, _ := release.ParseDate("2026-02-20")
	if _, err := src.Fetch(context.Background(), day); err == nil {
		t.Fatal("expected error when the hot list fails")
	}
}
