package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"unreeled/internal/config"
	"unreeled/internal/ingest"
	"unreeled/internal/notify"
	"unreeled/internal/release"
)

func newIngestCommand(cmdCtx *commandContext) *cobra.Command {
	var (
		dateFlag     string
		daysBackFlag int
		scheduleFlag bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch one day of releases and write its artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cmdCtx.ensureLogger()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch := buildOrchestrator(cfg, logger)
			if scheduleFlag {
				return runSchedule(ctx, cfg, orch, cmd)
			}

			target, err := resolveTarget(dateFlag, daysBackFlag)
			if err != nil {
				return err
			}
			doc, err := orch.Run(ctx, target)
			if err != nil {
				return err
			}
			printSummary(cmd, doc)
			return nil
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "Calendar date to ingest (YYYY-MM-DD, default today UTC)")
	cmd.Flags().IntVar(&daysBackFlag, "days-back", 0, "Ingest the date this many days before the target date")
	cmd.Flags().BoolVar(&scheduleFlag, "schedule", false, "Run continuously, ingesting daily at the configured UTC hour")
	return cmd
}

func buildOrchestrator(cfg *config.Config, logger *slog.Logger) *ingest.Orchestrator {
	notifier := notify.NewService(cfg.Notifications, logger)
	return ingest.New(cfg, logger, notifier,
		ingest.DefaultSources(cfg, logger),
		ingest.DefaultEnrichers(cfg, logger))
}

func resolveDay(dateFlag string) (time.Time, error) {
	if dateFlag == "" {
		return time.Now().UTC(), nil
	}
	parsed, err := release.ParseDate(dateFlag)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: %w", dateFlag, err)
	}
	return parsed, nil
}

// resolveTarget picks the single date one ingest run covers: the explicit
// date (or today), offset back by --days-back.
func resolveTarget(dateFlag string, daysBack int) (time.Time, error) {
	if daysBack < 0 {
		return time.Time{}, fmt.Errorf("--days-back must not be negative")
	}
	day, err := resolveDay(dateFlag)
	if err != nil {
		return time.Time{}, err
	}
	return day.AddDate(0, 0, -daysBack), nil
}

func printSummary(cmd *cobra.Command, doc *ingest.Document) {
	names := make([]string, 0, len(doc.SourceStats))
	for name := range doc.SourceStats {
		names = append(names, name)
	}
	sort.Strings(names)

	if !stdoutIsTerminal() {
		cmd.Printf("%s: %d releases\n", doc.Date, doc.TotalReleases)
		for _, name := range names {
			status := strconv.Itoa(doc.SourceStats[name])
			if msg, failed := doc.Errors[name]; failed {
				status = "error: " + msg
			}
			cmd.Printf("  %s: %s\n", name, status)
		}
		return
	}

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		status := "ok"
		if msg, failed := doc.Errors[name]; failed {
			status = "error: " + msg
		}
		rows = append(rows, []string{name, strconv.Itoa(doc.SourceStats[name]), status})
	}
	cmd.Printf("Ingested %d releases for %s\n", doc.TotalReleases, doc.Date)
	cmd.Println(renderTable(
		[]string{"Source", "Releases", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft},
	))
}

// runSchedule ingests today right away, then blocks until the context ends,
// running one ingest per day at the configured UTC hour. A failed run logs
// and waits for the next day.
func runSchedule(ctx context.Context, cfg *config.Config, orch *ingest.Orchestrator, cmd *cobra.Command) error {
	if doc, err := orch.Run(ctx, time.Now().UTC()); err != nil {
		cmd.PrintErrf("scheduled ingest failed: %v\n", err)
	} else {
		printSummary(cmd, doc)
	}

	for {
		next := nextRunTime(time.Now().UTC(), cfg.Schedule.DailyHourUTC)
		cmd.Printf("next ingest at %s\n", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		doc, err := orch.Run(ctx, next)
		if err != nil {
			cmd.PrintErrf("scheduled ingest failed: %v\n", err)
			continue
		}
		printSummary(cmd, doc)
	}
}

// nextRunTime returns the next occurrence of the daily hour, UTC.
func nextRunTime(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
