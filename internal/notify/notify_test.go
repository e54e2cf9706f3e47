package notify_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"unreeled/internal/config"
	"unreeled/internal/notify"
	"unreeled/internal/testsupport"
)

func TestIngestCompleteSendsHeadersAndBody(t *testing.T) {
	var (
		gotTitle    string
		gotTags     string
		gotPriority string
		gotBody     string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		gotPriority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	t.Cleanup(server.Close)

	svc := notify.NewService(config.Notifications{NtfyTopic: server.URL, RequestTimeout: 5}, testsupport.Logger(t))
	if err := svc.IngestComplete(context.Background(), "2026-02-20", 120, nil); err != nil {
		t.Fatalf("IngestComplete returned error: %v", err)
	}
	if gotTitle != "Ingest complete" || gotTags != "white_check_mark" || gotPriority != "3" {
		t.Fatalf("headers = %q %q %q", gotTitle, gotTags, gotPriority)
	}
	if !strings.Contains(gotBody, "120 releases") {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestIngestCompleteReportsFailedSources(t *testing.T) {
	var gotBody, gotTags string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTags = r.Header.Get("Tags")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	t.Cleanup(server.Close)

	svc := notify.NewService(config.Notifications{NtfyTopic: server.URL}, testsupport.Logger(t))
	if err := svc.IngestComplete(context.Background(), "2026-02-20", 80, []string{"rawg_games", "newsdata"}); err != nil {
		t.Fatal(err)
	}
	if gotTags != "warning" || !strings.Contains(gotBody, "rawg_games, newsdata") {
		t.Fatalf("tags=%q body=%q", gotTags, gotBody)
	}
}

func TestPipelineErrorUsesHighPriority(t *testing.T) {
	var gotPriority string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPriority = r.Header.Get("Priority")
	}))
	t.Cleanup(server.Close)

	svc := notify.NewService(config.Notifications{NtfyTopic: server.URL}, testsupport.Logger(t))
	if err := svc.PipelineError(context.Background(), "site build", errors.New("boom")); err != nil {
		t.Fatal(err)
	}
	if gotPriority != "4" {
		t.Fatalf("priority = %q", gotPriority)
	}
}

func TestMissingTopicYieldsNoop(t *testing.T) {
	svc := notify.NewService(config.Notifications{}, testsupport.Logger(t))
	if err := svc.IngestComplete(context.Background(), "2026-02-20", 0, nil); err != nil {
		t.Fatalf("noop service must never error: %v", err)
	}
	if err := svc.PipelineError(context.Background(), "x", errors.New("y")); err != nil {
		t.Fatalf("noop service must never error: %v", err)
	}
}
