package site

import (
	"sort"

	"unreeled/internal/release"
)

// Selection limits for the latest day versus older days: the front page
// shows more, history pages stay lean.
const (
	latestPerType   = 15
	latestTotal     = 200
	historicPerType = 12
	historicTotal   = 120

	synopsisBonus = 50.0
	posterBonus   = 30.0

	feedSynopsisMax = 500

	trendingWindow = 30
	trendingTotal  = 20
)

// displayScore ranks records for page selection. Raw popularity scales
// differ wildly across sources, so records carrying a synopsis and a
// poster get a fixed boost: a complete card beats a bare title.
func displayScore(r *release.Record) float64 {
	score := r.Popularity()
	if r.Synopsis != "" {
		score += synopsisBonus
	}
	if r.PosterURL != "" {
		score += posterBonus
	}
	return score
}

// selectFeed picks the page-worthy subset of a day's releases: the top
// perType of each media type by display score, then the remaining budget up
// to total filled from the score-ranked overflow. Synopses are capped here
// because the feed is a size-sensitive boundary.
func selectFeed(releases []release.Record, perType, total int) []release.Record {
	byType := map[release.MediaType][]release.Record{}
	for _, r := range releases {
		byType[r.MediaType] = append(byType[r.MediaType], r)
	}

	picked := make([]release.Record, 0, total)
	var overflow []release.Record
	for _, group := range byType {
		sort.SliceStable(group, func(i, j int) bool {
			return displayScore(&group[i]) > displayScore(&group[j])
		})
		limit := perType
		if limit > len(group) {
			limit = len(group)
		}
		picked = append(picked, group[:limit]...)
		overflow = append(overflow, group[limit:]...)
	}

	sort.SliceStable(picked, func(i, j int) bool {
		return displayScore(&picked[i]) > displayScore(&picked[j])
	})
	if len(picked) > total {
		picked = picked[:total]
	} else if remaining := total - len(picked); remaining > 0 && len(overflow) > 0 {
		sort.SliceStable(overflow, func(i, j int) bool {
			return displayScore(&overflow[i]) > displayScore(&overflow[j])
		})
		if remaining > len(overflow) {
			remaining = len(overflow)
		}
		picked = append(picked, overflow[:remaining]...)
	}

	for i := range picked {
		picked[i].Synopsis = release.Snippet(picked[i].Synopsis, feedSynopsisMax)
	}
	return picked
}

// TrendingEntry is a release that keeps showing up across recent days.
type TrendingEntry struct {
	Title        string            `json:"title"`
	MediaType    release.MediaType `json:"media_type"`
	DaysSeen     int               `json:"days_seen"`
	CommentCount int               `json:"comment_count"`
	PosterURL    string            `json:"poster_url"`
	LastSeen     string            `json:"last_seen"`
}

// trending folds the recent window of day documents into the top repeat
// appearances, ranked by days seen and then by discussion volume.
func trending(days []dayReleases) []TrendingEntry {
	byKey := map[string]*TrendingEntry{}
	for _, day := range days {
		seenToday := map[string]struct{}{}
		for i := range day.releases {
			r := &day.releases[i]
			key := string(r.MediaType) + "\x00" + release.NormalizeTitle(r.Title)
			if _, dup := seenToday[key]; dup {
				continue
			}
			seenToday[key] = struct{}{}

			entry, ok := byKey[key]
			if !ok {
				entry = &TrendingEntry{Title: r.Title, MediaType: r.MediaType}
				byKey[key] = entry
			}
			entry.DaysSeen++
			entry.CommentCount += r.CommentCount
			if day.date >= entry.LastSeen {
				entry.LastSeen = day.date
				if r.PosterURL != "" {
					entry.PosterURL = r.PosterURL
				}
			}
		}
	}

	entries := make([]TrendingEntry, 0, len(byKey))
	for _, entry := range byKey {
		if entry.DaysSeen > 1 {
			entries = append(entries, *entry)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].DaysSeen != entries[j].DaysSeen {
			return entries[i].DaysSeen > entries[j].DaysSeen
		}
		if entries[i].CommentCount != entries[j].CommentCount {
			return entries[i].CommentCount > entries[j].CommentCount
		}
		return entries[i].Title < entries[j].Title
	})
	if len(entries) > trendingTotal {
		entries = entries[:trendingTotal]
	}
	return entries
}

type dayReleases struct {
	date     string
	releases []release.Record
}
