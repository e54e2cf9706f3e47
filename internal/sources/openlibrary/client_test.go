package openlibrary_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"unreeled/internal/config"
	"unreeled/internal/release"
	"unreeled/internal/sources/openlibrary"
	"unreeled/internal/testsupport"
)

const searchPayload = `{"docs":[
	{"key":"/works/OL1W","title":"New Release","author_name":["Ann Author"],
	 "first_publish_year":2026,"publish_date":["February 2026"],
	 "subject":["Fiction","Space Opera","An Extremely Long Subject Heading That Nobody Would Call A Genre"],
	 "isbn":["1111111111","9781111111111"],"number_of_pages_median":320,
	 "cover_i":42,"publisher":["Big House"],"language":["eng"],
	 "ratings_average":4.1,"ratings_count":12,"edition_count":2},
	{"key":"/works/OL2W","title":"Year Only","author_name":["Bo Writer"],
	 "first_publish_year":2026,"publish_date":["March 2025"],
	 "isbn":["2222222222"],"language":["eng"],
	 "ratings_count":99,"edition_count":1,
	 "first_sentence":["It began at dawn."]},
	{"key":"/works/OL5W","title":"Bare Year","author_name":["E Writer"],
	 "first_publish_year":2026,"publish_date":["2026"],
	 "language":["eng"],"ratings_count":50},
	{"key":"/works/OL3W","title":"Ausgabe","author_name":["C Autor"],
	 "first_publish_year":2026,"publish_date":["Februar 2026"],
	 "language":["ger"],"ratings_count":500},
	{"key":"/works/OL4W","title":"Old Book","author_name":["D"],
	 "first_publish_year":1999,"publish_date":["1999"],"language":["eng"]}
]}`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("search request sent without a User-Agent")
		}
		fmt.Fprint(w, searchPayload)
	})
	mux.HandleFunc("/works/OL1W.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"description":{"type":"/type/text","value":"A space opera."}}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newSource(t *testing.T, server *httptest.Server, synopsisMax int) *openlibrary.Source {
	t.Helper()
	cfg := config.OpenLibrary{
		BaseURL:       server.URL,
		CoversBaseURL: "https://covers.openlibrary.org/b",
		UserAgent:     "unreeled-test/1.0",
	}
	return openlibrary.New(cfg, synopsisMax, testsupport.Logger(t), openlibrary.WithDelay(0))
}

func TestFetchMapsAndFiltersBooks(t *testing.T) {
	server := newServer(t)
	src := newSource(t, server, 10)

	day, err := release.ParseDate("2026-02-20")
	if err != nil {
		t.Fatal(err)
	}
	records, err := src.Fetch(context.Background(), day)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	// Every subject search returns the same docs; dedup leaves three books.
	// The German edition and the 1999 book are dropped.
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3: %+v", len(records), records)
	}

	// Sorted by ratings_count descending.
	if records[0].Title != "Year Only" || records[1].Title != "Bare Year" || records[2].Title != "New Release" {
		t.Fatalf("unexpected order: %q, %q, %q", records[0].Title, records[1].Title, records[2].Title)
	}

	book := records[2]
	if book.Source != "open_library" || book.MediaType != release.MediaBook {
		t.Fatalf("unexpected record identity: %+v", book)
	}
	if book.ReleaseDate != "2026-02-20" {
		t.Fatalf("month-matched release date = %q", book.ReleaseDate)
	}
	// An edition date naming only the target year still gets the full date.
	if records[1].ReleaseDate != "2026-02-20" {
		t.Fatalf("bare-year edition release date = %q", records[1].ReleaseDate)
	}
	// A first-publish-year match without a matching edition date gets the
	// year alone.
	if records[0].ReleaseDate != "2026" {
		t.Fatalf("year-only release date = %q", records[0].ReleaseDate)
	}
	if book.Metadata["isbn"] != "9781111111111" {
		t.Fatalf("isbn = %v, want the ISBN-13", book.Metadata["isbn"])
	}
	if !strings.HasSuffix(book.PosterURL, "/id/42-L.jpg") {
		t.Fatalf("cover url = %q", book.PosterURL)
	}
	for _, genre := range book.Genres {
		if strings.EqualFold(genre, "fiction") || len(genre) >= 40 {
			t.Fatalf("generic or oversized subject kept as genre: %q", genre)
		}
	}
}

func TestFetchEnrichesMissingSynopses(t *testing.T) {
	server := newServer(t)
	src := newSource(t, server, 10)

	day, _ := release.ParseDate("2026-02-20")
	records, err := src.Fetch(context.Background(), day)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	for _, rec := range records {
		switch rec.Title {
		case "New Release":
			if rec.Synopsis != "A space opera." {
				t.Fatalf("work-detail synopsis = %q", rec.Synopsis)
			}
		case "Year Only":
			if rec.Synopsis != "It began at dawn." {
				t.Fatalf("first-sentence synopsis = %q", rec.Synopsis)
			}
		}
	}
}

func TestFetchSynopsisBudgetZeroSkipsLookups(t *testing.T) {
	server := newServer(t)
	src := newSource(t, server, 0)

	day, _ := release.ParseDate("2026-02-20")
	records, err := src.Fetch(context.Background(), day)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	for _, rec := range records {
		if rec.Title == "New Release" && rec.Synopsis != "" {
			t.Fatalf("lookup performed despite zero budget: %q", rec.Synopsis)
		}
	}
}

func TestFetchAllSearchesFailingIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)
	src := newSource(t, server, 10)

	day, _ := release.ParseDate("2026-02-20")
	if _, err := src.Fetch(context.Background(), day); err == nil {
		t.Fatal("expected error when every subject search fails")
	}
}
