package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"unreeled/internal/ingest"
	"unreeled/internal/notify"
	"unreeled/internal/sources"
	"unreeled/internal/testsupport"
)

func TestNextRunTime(t *testing.T) {
	now := time.Date(2026, 2, 20, 5, 30, 0, 0, time.UTC)
	next := nextRunTime(now, 6)
	if next != time.Date(2026, 2, 20, 6, 0, 0, 0, time.UTC) {
		t.Fatalf("next = %s", next)
	}

	// Already past the daily hour: tomorrow.
	now = time.Date(2026, 2, 20, 7, 0, 0, 0, time.UTC)
	next = nextRunTime(now, 6)
	if next != time.Date(2026, 2, 21, 6, 0, 0, 0, time.UTC) {
		t.Fatalf("next = %s", next)
	}

	// Exactly at the hour counts as past.
	now = time.Date(2026, 2, 20, 6, 0, 0, 0, time.UTC)
	if next = nextRunTime(now, 6); next.Day() != 21 {
		t.Fatalf("next = %s", next)
	}
}

func TestResolveDay(t *testing.T) {
	day, err := resolveDay("2026-02-20")
	if err != nil {
		t.Fatal(err)
	}
	if day.Format("2006-01-02") != "2026-02-20" {
		t.Fatalf("day = %s", day)
	}

	if _, err := resolveDay("02/20/2026"); err == nil {
		t.Fatal("expected error for malformed date")
	}

	day, err = resolveDay("")
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(day) > time.Minute {
		t.Fatalf("empty date must default to now, got %s", day)
	}
}

func TestResolveTargetOffsetsSingleDate(t *testing.T) {
	target, err := resolveTarget("2026-02-20", 2)
	if err != nil {
		t.Fatal(err)
	}
	// days-back selects one offset date, not a range.
	if got := target.Format("2006-01-02"); got != "2026-02-18" {
		t.Fatalf("target = %s, want 2026-02-18", got)
	}

	target, err = resolveTarget("2026-02-20", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := target.Format("2006-01-02"); got != "2026-02-20" {
		t.Fatalf("target = %s", got)
	}

	if _, err := resolveTarget("2026-02-20", -1); err == nil {
		t.Fatal("expected error for negative days-back")
	}
}

func TestRunScheduleIngestsImmediately(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	logger := testsupport.Logger(t)
	orch := ingest.New(cfg, logger, notify.NewService(cfg.Notifications, logger), nil, nil)

	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	// A cancelled context stops the loop right after the first run.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := runSchedule(ctx, cfg, orch, cmd); !errors.Is(err, context.Canceled) {
		t.Fatalf("runSchedule returned %v", err)
	}

	artifact := filepath.Join(cfg.Output.DataDir, fmt.Sprintf("releases_%s.json", sources.Day(time.Now().UTC())))
	if _, err := os.Stat(artifact); err != nil {
		t.Fatalf("no artifact written before the timer loop: %v", err)
	}
}

func TestConfigValidateHonorsConfigFlag(t *testing.T) {
	base := t.TempDir()
	configPath := filepath.Join(base, "unreeled.toml")
	body := fmt.Sprintf(`[output]
data_dir = %q

[site]
template_path = %q
output_dir = %q

[digest]
database_path = %q

[logging]
log_dir = ""
`,
		filepath.Join(base, "data"),
		filepath.Join(base, "template.html"),
		filepath.Join(base, "public"),
		filepath.Join(base, "subscribers.db"))
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"config", "validate", "--config", configPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("validate returned error: %v", err)
	}
	if !strings.Contains(out.String(), configPath) {
		t.Fatalf("validate ignored --config:\n%s", out.String())
	}
}

func TestPrintSummaryPlainOutput(t *testing.T) {
	doc := &ingest.Document{
		Date:          "2026-02-20",
		TotalReleases: 3,
		SourceStats:   map[string]int{"tmdb_movies": 3, "newsdata": 0},
		Errors:        map[string]string{"newsdata": "quota exhausted"},
	}

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)

	printSummary(cmd, doc)
	text := out.String()
	if !strings.Contains(text, "2026-02-20: 3 releases") {
		t.Fatalf("output = %q", text)
	}
	if !strings.Contains(text, "newsdata: error: quota exhausted") {
		t.Fatalf("output = %q", text)
	}
}

func TestShouldSkipConfig(t *testing.T) {
	root := newRootCommand()
	for _, cmd := range root.Commands() {
		if cmd.Name() != "config" {
			continue
		}
		for _, sub := range cmd.Commands() {
			skip := shouldSkipConfig(sub)
			if sub.Name() == "init" && !skip {
				t.Fatal("config init must not require an existing config")
			}
			if sub.Name() == "validate" && skip {
				t.Fatal("config validate must load config")
			}
		}
	}
}
