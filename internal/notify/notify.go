// Package notify delivers push notifications through ntfy.sh topics.
// Without a configured topic every call is a silent no-op, so callers never
// guard notification sites.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"unreeled/internal/config"
)

// Service sends pipeline lifecycle notifications.
type Service interface {
	IngestComplete(ctx context.Context, date string, total int, failedSources []string) error
	PipelineError(ctx context.Context, stage string, err error) error
}

type ntfyService struct {
	topicURL   string
	logger     *slog.Logger
	httpClient *http.Client
}

type noopService struct{}

func (noopService) IngestComplete(context.Context, string, int, []string) error { return nil }
func (noopService) PipelineError(context.Context, string, error) error          { return nil }

// NewService builds a notification service from configuration. A missing
// topic yields a no-op implementation.
func NewService(cfg config.Notifications, logger *slog.Logger) Service {
	if strings.TrimSpace(cfg.NtfyTopic) == "" {
		logger.Info("ntfy topic not configured, notifications disabled")
		return noopService{}
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	topic := cfg.NtfyTopic
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		topic = "https://ntfy.sh/" + topic
	}
	return &ntfyService{
		topicURL:   topic,
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// IngestComplete announces a finished daily run.
func (s *ntfyService) IngestComplete(ctx context.Context, date string, total int, failedSources []string) error {
	title := "Ingest complete"
	tags := "white_check_mark"
	body := fmt.Sprintf("%s: %d releases ingested", date, total)
	if len(failedSources) > 0 {
		title = "Ingest complete with failures"
		tags = "warning"
		body = fmt.Sprintf("%s: %d releases ingested, failed sources: %s",
			date, total, strings.Join(failedSources, ", "))
	}
	return s.publish(ctx, title, tags, "3", body)
}

// PipelineError announces a stage that failed outright.
func (s *ntfyService) PipelineError(ctx context.Context, stage string, err error) error {
	return s.publish(ctx, "Pipeline error", "rotating_light", "4",
		fmt.Sprintf("%s failed: %v", stage, err))
}

func (s *ntfyService) publish(ctx context.Context, title, tags, priority, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.topicURL, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Title", title)
	req.Header.Set("Tags", tags)
	req.Header.Set("Priority", priority)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned %d", resp.StatusCode)
	}
	s.logger.Debug("notification sent", "title", title)
	return nil
}
