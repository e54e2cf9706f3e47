package site

import (
	"strings"
	"testing"
	"unicode/utf8"

	"unreeled/internal/release"
)

func feedRec(title string, mediaType release.MediaType, popularity float64, synopsis string) release.Record {
	return release.New("tmdb", mediaType, title, "2026-02-20", release.Draft{
		Synopsis: synopsis,
		Metadata: map[string]any{"popularity": popularity},
	})
}

func TestSelectFeedFillsFromOverflow(t *testing.T) {
	releases := []release.Record{
		feedRec("Movie A", release.MediaMovie, 100, ""),
		feedRec("Movie B", release.MediaMovie, 90, ""),
		feedRec("Movie C", release.MediaMovie, 80, ""),
		feedRec("Movie D", release.MediaMovie, 70, ""),
		feedRec("Book A", release.MediaBook, 60, ""),
		feedRec("Book B", release.MediaBook, 50, ""),
	}

	picked := selectFeed(releases, 2, 5)
	if len(picked) != 5 {
		t.Fatalf("len(picked) = %d, want the overflow fill to reach 5", len(picked))
	}

	titles := map[string]bool{}
	for _, r := range picked {
		titles[r.Title] = true
	}
	if !titles["Movie C"] {
		t.Fatalf("highest-scored overflow record missing: %v", titles)
	}
	if titles["Movie D"] {
		t.Fatalf("overflow fill took the wrong record: %v", titles)
	}
}

func TestSelectFeedCapsSynopses(t *testing.T) {
	long := strings.Repeat("x", 900)
	picked := selectFeed([]release.Record{
		feedRec("Wordy", release.MediaMovie, 10, long),
	}, 15, 200)

	if len(picked) != 1 {
		t.Fatalf("len(picked) = %d", len(picked))
	}
	got := picked[0].Synopsis
	if utf8.RuneCountInString(got) > 500 {
		t.Fatalf("synopsis length = %d, want <= 500", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("truncated synopsis missing ellipsis: %q", got[len(got)-10:])
	}
}
