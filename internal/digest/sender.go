package digest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"unreeled/internal/config"
	"unreeled/internal/ingest"
	"unreeled/internal/release"
)

// perTypeMax bounds how many releases of each media type make the email.
const perTypeMax = 8

var emailTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
	<h1 style="font-size: 20px;">Unreeled — {{.Date}}</h1>
	<p>{{.Total}} releases ingested today.</p>
	{{range .Sections}}
	<h2 style="font-size: 16px; text-transform: capitalize;">{{.Label}}</h2>
	<ul>
		{{range .Items}}
		<li><strong>{{.Title}}</strong>{{if .Detail}} — {{.Detail}}{{end}}</li>
		{{end}}
	</ul>
	{{end}}
	<p style="font-size: 12px; color: #888;">
		<a href="{{.SiteURL}}">Browse the full calendar</a>
	</p>
</body>
</html>`))

type emailSection struct {
	Label string
	Items []emailItem
}

type emailItem struct {
	Title  string
	Detail string
}

type emailData struct {
	Date     string
	Total    int
	Sections []emailSection
	SiteURL  string
}

// Sender renders and delivers the daily digest.
type Sender struct {
	cfg        config.Digest
	store      *Store
	logger     *slog.Logger
	httpClient *http.Client
}

// NewSender creates a digest sender over an open subscriber store.
func NewSender(cfg config.Digest, store *Store, logger *slog.Logger) *Sender {
	return &Sender{
		cfg:        cfg,
		store:      store,
		logger:     logger,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Send emails the digest for one day document, one rendered email per
// subscriber covering only the media types that subscriber takes. Without a
// Resend key the digest quietly skips, matching how sources degrade.
func (s *Sender) Send(ctx context.Context, doc *ingest.Document) error {
	if s.cfg.ResendAPIKey == "" {
		s.logger.Info("resend api key not configured, skipping digest")
		return nil
	}
	subscribers, err := s.store.Subscribers(ctx)
	if err != nil {
		return err
	}
	if len(subscribers) == 0 {
		s.logger.Info("no digest subscribers, nothing to send")
		return nil
	}

	byType := map[release.MediaType][]release.Record{}
	for _, r := range doc.Releases {
		byType[r.MediaType] = append(byType[r.MediaType], r)
	}
	types := make([]release.MediaType, 0, len(byType))
	for mediaType := range byType {
		types = append(types, mediaType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	sent, attempted := 0, 0
	for _, sub := range subscribers {
		sections, total := sectionsFor(byType, types, &sub)
		if total == 0 {
			s.logger.Info("no releases in subscribed types, skipping", "email", sub.Email)
			continue
		}
		html, err := renderEmail(doc.Date, total, sections, s.cfg.SiteURL)
		if err != nil {
			return fmt.Errorf("render digest: %w", err)
		}
		subject := fmt.Sprintf("Unreeled digest for %s (%d releases)", doc.Date, total)

		attempted++
		if err := s.deliver(ctx, sub.Email, subject, html); err != nil {
			s.logger.Warn("digest delivery failed", "email", sub.Email, "error", err)
			continue
		}
		sent++
	}
	s.logger.Info("digest sent", "date", doc.Date, "recipients", sent, "subscribers", len(subscribers))
	if attempted > 0 && sent == 0 {
		return fmt.Errorf("digest delivery failed for all %d attempted subscribers", attempted)
	}
	return nil
}

func (s *Sender) deliver(ctx context.Context, to, subject, html string) error {
	payload, err := json.Marshal(map[string]any{
		"from":    s.cfg.FromAddress,
		"to":      []string{to},
		"subject": subject,
		"html":    html,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.ResendURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.ResendAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("resend returned %d", resp.StatusCode)
	}
	return nil
}

// sectionsFor builds the email sections for one subscriber: only subscribed
// media types, the top handful of each. The returned total counts every
// matching release, not just the ones that fit the email.
func sectionsFor(byType map[release.MediaType][]release.Record, types []release.MediaType, sub *Subscriber) ([]emailSection, int) {
	sections := make([]emailSection, 0, len(types))
	total := 0
	for _, mediaType := range types {
		if !sub.Subscribed(mediaType) {
			continue
		}
		group := byType[mediaType]
		total += len(group)
		limit := perTypeMax
		if limit > len(group) {
			limit = len(group)
		}
		items := make([]emailItem, 0, limit)
		for _, r := range group[:limit] {
			items = append(items, emailItem{
				Title:  r.Title,
				Detail: release.Snippet(r.Synopsis, 120),
			})
		}
		sections = append(sections, emailSection{
			Label: strings.ReplaceAll(string(mediaType), "_", " "),
			Items: items,
		})
	}
	return sections, total
}

func renderEmail(date string, total int, sections []emailSection, siteURL string) (string, error) {
	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, emailData{
		Date:     date,
		Total:    total,
		Sections: sections,
		SiteURL:  siteURL,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
