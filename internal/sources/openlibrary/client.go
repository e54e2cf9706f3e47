// Package openlibrary adapts the Open Library search API into book release
// records. The API needs no key, only a polite User-Agent.
package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"unreeled/internal/config"
	"unreeled/internal/release"
	"unreeled/internal/sources"
)

const (
	sourceKey       = "open_library"
	requestDelay    = 250 * time.Millisecond
	perSubjectLimit = 20
)

// subjects searched per run; one query each to get variety across the
// catalog.
var subjects = []string{
	"fiction",
	"thriller",
	"science_fiction",
	"fantasy",
	"mystery",
	"romance",
	"biography",
	"history",
	"science",
	"horror",
	"literary_fiction",
	"young_adult",
}

// allowedLanguages restricts results to English editions (ISO 639-2 codes).
var allowedLanguages = map[string]struct{}{"eng": {}, "en": {}}

// genericSubjects are catalog noise, never useful as genres.
var genericSubjects = map[string]struct{}{
	"fiction":          {},
	"accessible book":  {},
	"protected daisy":  {},
	"in library":       {},
	"large type books": {},
	"lending library":  {},
}

type searchDoc struct {
	Key              string          `json:"key"`
	Title            string          `json:"title"`
	AuthorName       []string        `json:"author_name"`
	FirstPublishYear int             `json:"first_publish_year"`
	PublishDate      json.RawMessage `json:"publish_date"`
	Subject          []string        `json:"subject"`
	ISBN             []string        `json:"isbn"`
	PageCountMedian  int             `json:"number_of_pages_median"`
	CoverID          int64           `json:"cover_i"`
	Publisher        []string        `json:"publisher"`
	Language         json.RawMessage `json:"language"`
	RatingsAverage   float64         `json:"ratings_average"`
	RatingsCount     int             `json:"ratings_count"`
	EditionCount     int             `json:"edition_count"`
	FirstSentence    json.RawMessage `json:"first_sentence"`
}

type searchResponse struct {
	Docs []searchDoc `json:"docs"`
}

// workDetails models the work detail page; description and first_sentence
// arrive as either a string or a {"value": ...} object.
type workDetails struct {
	Description   json.RawMessage `json:"description"`
	FirstSentence json.RawMessage `json:"first_sentence"`
}

// Source adapts Open Library book searches.
type Source struct {
	cfg         config.OpenLibrary
	synopsisMax int
	logger      *slog.Logger
	httpClient  *http.Client
	delay       time.Duration
}

// Option configures a Source.
type Option func(*Source)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Source) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithDelay overrides the fixed post-call delay.
func WithDelay(d time.Duration) Option {
	return func(s *Source) { s.delay = d }
}

// New creates the Open Library adapter. synopsisMax bounds the number of
// work-detail lookups used to backfill missing synopses.
func New(cfg config.OpenLibrary, synopsisMax int, logger *slog.Logger, opts ...Option) *Source {
	src := &Source{
		cfg:         cfg,
		synopsisMax: synopsisMax,
		logger:      logger,
		httpClient:  &http.Client{Timeout: 20 * time.Second},
		delay:       requestDelay,
	}
	for _, opt := range opts {
		opt(src)
	}
	return src
}

// Name implements sources.Source.
func (s *Source) Name() string { return sourceKey }

// Fetch implements sources.Source.
func (s *Source) Fetch(ctx context.Context, day time.Time) ([]release.Record, error) {
	date := sources.Day(day)
	targetYear := day.UTC().Year()
	monthLong := day.UTC().Format("January 2006")
	monthShort := day.UTC().Format("Jan 2006")

	var records []release.Record
	failures := 0

	for _, subject := range subjects {
		params := url.Values{}
		params.Set("subject", subject)
		params.Set("first_publish_year", strconv.Itoa(targetYear))
		params.Set("sort", "new")
		params.Set("limit", strconv.Itoa(perSubjectLimit))
		params.Set("fields", strings.Join([]string{
			"key", "title", "author_name", "first_publish_year",
			"publish_date", "subject", "isbn", "number_of_pages_median",
			"cover_i", "publisher", "language", "ratings_average",
			"ratings_count", "edition_count", "first_sentence",
		}, ","))

		var resp searchResponse
		if err := s.get(ctx, "/search.json", params, &resp); err != nil {
			failures++
			s.logger.Warn("subject search failed", "subject", subject, "error", err)
			continue
		}

		for _, doc := range resp.Docs {
			rec, ok := s.mapDoc(doc, date, targetYear, monthLong, monthShort)
			if ok {
				records = append(records, rec)
			}
		}
	}
	if failures == len(subjects) && failures > 0 {
		return nil, fmt.Errorf("open library: all %d subject searches failed", failures)
	}

	unique, removed := release.Dedupe(records, func(r *release.Record) string {
		return release.DedupKey(r.Title, r.MetaStrings("authors"))
	})
	if removed > 0 {
		s.logger.Info("removed duplicate books", "count", removed)
	}

	// Ratings count is the closest thing Open Library has to relevance.
	sort.SliceStable(unique, func(i, j int) bool {
		return metaInt(&unique[i], "ratings_count") > metaInt(&unique[j], "ratings_count")
	})

	enriched := s.enrichSynopses(ctx, unique)
	if enriched > 0 {
		s.logger.Info("enriched books with synopses", "count", enriched)
	}

	s.logger.Info("fetched books", "date", date, "count", len(unique))
	return unique, nil
}

func (s *Source) mapDoc(doc searchDoc, date string, targetYear int, monthLong, monthShort string) (release.Record, bool) {
	if doc.Title == "" {
		return release.Record{}, false
	}

	// publish_date lists edition dates of wildly varying precision; a match
	// on the target month, or any edition date naming the target year, is
	// the best available signal and gets the full requested date below.
	monthMatch := false
	yearStr := strconv.Itoa(targetYear)
	for _, pd := range decodeStrings(doc.PublishDate) {
		lower := strings.ToLower(pd)
		if strings.Contains(lower, strings.ToLower(monthLong)) ||
			strings.Contains(lower, strings.ToLower(monthShort)) ||
			strings.Contains(pd, yearStr) {
			monthMatch = true
			break
		}
	}
	yearMatch := doc.FirstPublishYear == targetYear
	if !monthMatch && !yearMatch {
		return release.Record{}, false
	}

	languages := decodeStrings(doc.Language)
	if len(languages) > 0 {
		allowed := false
		for _, lang := range languages {
			if _, ok := allowedLanguages[lang]; ok {
				allowed = true
				break
			}
		}
		if !allowed {
			return release.Record{}, false
		}
	}

	synopsis := ""
	if sentences := decodeStrings(doc.FirstSentence); len(sentences) > 0 {
		synopsis = sentences[0]
	}

	var isbn13, isbn10 string
	for _, isbn := range doc.ISBN {
		switch {
		case len(isbn) == 13 && isbn13 == "":
			isbn13 = isbn
		case len(isbn) == 10 && isbn10 == "":
			isbn10 = isbn
		}
	}
	bestISBN := isbn13
	if bestISBN == "" {
		bestISBN = isbn10
	}

	genres := make([]string, 0, 5)
	limit := len(doc.Subject)
	if limit > 20 {
		limit = 20
	}
	for _, subj := range doc.Subject[:limit] {
		if len(subj) >= 40 {
			continue
		}
		if _, generic := genericSubjects[strings.ToLower(subj)]; generic {
			continue
		}
		genres = append(genres, subj)
		if len(genres) == 5 {
			break
		}
	}

	publisher := ""
	if len(doc.Publisher) > 0 {
		publisher = doc.Publisher[0]
	}
	language := "eng"
	if len(languages) > 0 {
		language = languages[0]
	}
	authors := doc.AuthorName
	if authors == nil {
		authors = []string{}
	}

	// Known imprecision carried over from the upstream behavior: an edition
	// date naming the month or year records the full requested date; a
	// first-publish-year match alone records only the year.
	releaseDate := strconv.Itoa(targetYear)
	if monthMatch {
		releaseDate = date
	}

	return release.New(sourceKey, release.MediaBook, doc.Title, releaseDate, release.Draft{
		Synopsis: synopsis,
		Genres:   genres,
		Metadata: map[string]any{
			"authors":          authors,
			"publisher":        publisher,
			"page_count":       doc.PageCountMedian,
			"isbn":             bestISBN,
			"language":         language,
			"average_rating":   doc.RatingsAverage,
			"ratings_count":    doc.RatingsCount,
			"edition_count":    doc.EditionCount,
			"open_library_key": doc.Key,
		},
		PosterURL: s.coverURL(doc.CoverID, bestISBN),
		ExternalIDs: map[string]any{
			"open_library_key": doc.Key,
			"isbn":             bestISBN,
		},
	}), true
}

// enrichSynopses backfills missing synopses from work detail pages, bounded
// by the configured lookup budget.
func (s *Source) enrichSynopses(ctx context.Context, records []release.Record) int {
	enriched := 0
	for i := range records {
		if enriched >= s.synopsisMax {
			break
		}
		if records[i].Synopsis != "" {
			continue
		}
		workKey := records[i].ExternalIDString("open_library_key")
		if workKey == "" {
			continue
		}
		synopsis := s.fetchSynopsis(ctx, workKey)
		if records[i].FillSynopsis(synopsis) {
			enriched++
		}
	}
	return enriched
}

func (s *Source) fetchSynopsis(ctx context.Context, workKey string) string {
	var details workDetails
	if err := s.get(ctx, workKey+".json", nil, &details); err != nil {
		return ""
	}
	if desc := decodeTextValue(details.Description); desc != "" {
		return desc
	}
	return decodeTextValue(details.FirstSentence)
}

func (s *Source) coverURL(coverID int64, isbn string) string {
	base := strings.TrimRight(s.cfg.CoversBaseURL, "/")
	if coverID > 0 {
		return fmt.Sprintf("%s/id/%d-L.jpg", base, coverID)
	}
	if isbn != "" {
		return fmt.Sprintf("%s/isbn/%s-L.jpg", base, isbn)
	}
	return ""
}

func (s *Source) get(ctx context.Context, path string, params url.Values, dst any) error {
	target, err := url.Parse(strings.TrimRight(s.cfg.BaseURL, "/") + path)
	if err != nil {
		return fmt.Errorf("parse open library url: %w", err)
	}
	if params != nil {
		target.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.httpClient.Do(req)
	sources.Pause(ctx, s.delay)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("open library %s returned %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode open library response: %w", err)
	}
	return nil
}

func metaInt(r *release.Record, key string) int {
	switch v := r.Metadata[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// decodeStrings copes with fields that arrive as a string, a list of
// strings, or a list of {"value": ...} objects.
func decodeStrings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var objects []struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &objects); err == nil {
		out := make([]string, 0, len(objects))
		for _, obj := range objects {
			if obj.Value != "" {
				out = append(out, obj.Value)
			}
		}
		return out
	}
	return nil
}

// decodeTextValue copes with description fields that are either a plain
// string or {"type": ..., "value": ...}.
func decodeTextValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var object struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &object); err == nil {
		return object.Value
	}
	return ""
}
