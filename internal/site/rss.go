package site

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"unreeled/internal/release"
)

const rssItemMax = 40

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Category    string `xml:"category"`
	GUID        string `xml:"guid"`
	PubDate     string `xml:"pubDate"`
}

// renderRSS builds the feed from the latest day's selected releases.
func renderRSS(siteURL string, payload *Payload) ([]byte, error) {
	base := strings.TrimRight(siteURL, "/")
	pubDate := payload.GeneratedAt.Format(time.RFC1123Z)

	limit := len(payload.Releases)
	if limit > rssItemMax {
		limit = rssItemMax
	}
	items := make([]rssItem, 0, limit)
	for _, r := range payload.Releases[:limit] {
		items = append(items, rssItem{
			Title:       fmt.Sprintf("[%s] %s", r.MediaType, r.Title),
			Link:        base + "/#" + payload.LatestDate,
			Description: release.Snippet(r.Synopsis, 280),
			Category:    string(r.MediaType),
			GUID:        fmt.Sprintf("%s/%s/%s", payload.LatestDate, r.Source, release.NormalizeTitle(r.Title)),
			PubDate:     pubDate,
		})
	}

	feed := rssFeed{
		Version: "2.0",
		Channel: rssChannel{
			Title:         "Unreeled - Daily Releases",
			Link:          base,
			Description:   fmt.Sprintf("Media releases for %s", payload.LatestDate),
			LastBuildDate: pubDate,
			Items:         items,
		},
	}

	encoded, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), encoded...), nil
}
