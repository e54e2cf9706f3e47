package podcastindex_test

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"unreeled/internal/config"
	"unreeled/internal/release"
	"unreeled/internal/sources/podcastindex"
	"unreeled/internal/testsupport"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	checkAuth := func(r *http.Request) {
		key := r.Header.Get("X-Auth-Key")
		epoch := r.Header.Get("X-Auth-Date")
		if key != "pi-key" || epoch == "" {
			t.Errorf("auth headers missing: key=%q date=%q", key, epoch)
		}
		want := fmt.Sprintf("%x", sha1.Sum([]byte(key+"pi-secret"+epoch)))
		if got := r.Header.Get("Authorization"); got != want {
			t.Errorf("Authorization = %q, want %q", got, want)
		}
	}
	mux.HandleFunc("/podcasts/trending", func(w http.ResponseWriter, r *http.Request) {
		checkAuth(r)
		fmt.Fprint(w, `{"feeds":[
			{"id":100,"title":"Deep Dive","description":"Long talks","author":"Host A",
			 "artwork":"https://cdn.example/dd.jpg","trendScore":88,
			 "categories":{"9":"Technology","55":"News"}},
			{"id":101,"title":"Night Show","description":"Chat","author":"Host B",
			 "image":"https://cdn.example/ns.jpg","trendScore":60,"categories":{}}
		]}`)
	})
	mux.HandleFunc("/recent/episodes", func(w http.ResponseWriter, r *http.Request) {
		checkAuth(r)
		fmt.Fprint(w, `{"items":[
			{"id":5000,"title":"Episode 12","description":"This week",
			 "feedId":100,"feedTitle":"Deep Dive","feedImage":"https://cdn.example/dd.jpg",
			 "datePublished":1771600000,"duration":3600},
			{"id":5001,"title":"Pilot","description":"First",
			 "feedId":200,"feedTitle":"Fresh Feed","feedImage":"https://cdn.example/ff.jpg",
			 "datePublished":1771600000,"duration":1800}
		]}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newSource(t *testing.T, server *httptest.Server, key string) *podcastindex.Source {
	t.Helper()
	cfg := config.PodcastIndex{APIKey: key, APISecret: "pi-secret", BaseURL: server.URL}
	return podcastindex.New(cfg, testsupport.Logger(t), podcastindex.WithDelay(0))
}

func TestFetchCombinesTrendingAndEpisodes(t *testing.T) {
	server := newServer(t)
	src := newSource(t, server, "pi-key")

	day, err := release.ParseDate("2026-02-20")
	if err != nil {
		t.Fatal(err)
	}
	records, err := src.Fetch(context.Background(), day)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	// Deep Dive appears both as a trending feed and via its episode; the
	// show-name dedup keeps the feed and drops the episode.
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3: %+v", len(records), records)
	}

	feed := records[0]
	if feed.Title != "Deep Dive" || feed.MediaType != release.MediaPodcast || feed.Source != "podcast_index" {
		t.Fatalf("unexpected record: %+v", feed)
	}
	if feed.Metadata["kind"] != "trending_feed" {
		t.Fatalf("deep dive kind = %v, want the trending feed to win", feed.Metadata["kind"])
	}
	if feed.Popularity() != 88 {
		t.Fatalf("popularity = %v, want trendScore", feed.Popularity())
	}
	if len(feed.Genres) != 2 || feed.Genres[0] != "News" || feed.Genres[1] != "Technology" {
		t.Fatalf("categories = %#v", feed.Genres)
	}

	var episode *release.Record
	for i := range records {
		if records[i].Metadata["kind"] == "recent_episode" {
			episode = &records[i]
		}
	}
	if episode == nil {
		t.Fatal("no recent episode survived")
	}
	if episode.Title != "Fresh Feed: Pilot" {
		t.Fatalf("episode title = %q", episode.Title)
	}
	if episode.ExternalIDs["podcast_index_episode_id"] != int64(5001) {
		t.Fatalf("episode id = %v", episode.ExternalIDs["podcast_index_episode_id"])
	}
}

func TestFetchWithoutCredentialsReturnsEmpty(t *testing.T) {
	server := newServer(t)
	src := newSource(t, server, "")

	day, _ := release.ParseDate("2026-02-20")
	records, err := src.Fetch(context.Background(), day)
	if err != nil {
		t.Fatalf("missing credential must not error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty result, got %d", len(records))
	}
}

func TestFetchTrendingFailureIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)
	src := newSource(t, server, "pi-key")

	day, _ := release.ParseDate("2026-02-20")
	if _, err := src.Fetch(context.Background(), day); err == nil {
		t.Fatal("expected error when the trending call fails")
	}
}

func TestFetchEpisodeFailureKeepsTrending(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/podcasts/trending", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"feeds":[{"id":1,"title":"Only Feed","trendScore":10,"categories":{}}]}`)
	})
	mux.HandleFunc("/recent/episodes", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	src := newSource(t, server, "pi-key")

	day, _ := release.ParseDate("2026-02-20")
	records, err := src.Fetch(context.Background(), day)
	if err != nil {
		t.Fatalf("episode failure must not fail the source: %v", err)
	}
	if len(records) != 1 || records[0].Title != "Only Feed" {
		t.Fatalf("trending feeds lost: %+v", records)
	}
}
