// Package ingest runs the daily pipeline: every source in sequence, each
// inside its own failure boundary, then cross-source reconciliation,
// enrichment, ranking, and the day artifact.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"unreeled/internal/config"
	"unreeled/internal/enrich"
	"unreeled/internal/notify"
	"unreeled/internal/release"
	"unreeled/internal/sources"
	"unreeled/internal/sources/bgg"
	"unreeled/internal/sources/comicvine"
	"unreeled/internal/sources/igdb"
	"unreeled/internal/sources/jikan"
	"unreeled/internal/sources/musicbrainz"
	"unreeled/internal/sources/newsdata"
	"unreeled/internal/sources/openlibrary"
	"unreeled/internal/sources/podcastindex"
	"unreeled/internal/sources/rawg"
	"unreeled/internal/sources/tmdb"
)

const (
	primaryGameSource   = "igdb_games"
	secondaryGameSource = "rawg_games"
)

// BudgetedEnricher pairs an enricher with its per-run lookup budget.
type BudgetedEnricher struct {
	Enricher enrich.Enricher
	Budget   int
}

// Orchestrator drives one ingest run end to end.
type Orchestrator struct {
	cfg       *config.Config
	logger    *slog.Logger
	notifier  notify.Service
	sources   []sources.Source
	enrichers []BudgetedEnricher
}

// New assembles an orchestrator over explicit sources and enrichers. Use
// DefaultSources and DefaultEnrichers for the full production set.
func New(cfg *config.Config, logger *slog.Logger, notifier notify.Service, srcs []sources.Source, enrichers []BudgetedEnricher) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		logger:    logger,
		notifier:  notifier,
		sources:   srcs,
		enrichers: enrichers,
	}
}

// DefaultSources builds every production source adapter in ingest order.
func DefaultSources(cfg *config.Config, logger *slog.Logger) []sources.Source {
	tmdbClient := tmdb.New(cfg.TMDB, cfg.Filters, logger)
	return []sources.Source{
		tmdbClient.Movies(),
		tmdbClient.TV(),
		openlibrary.New(cfg.OpenLibrary, cfg.Filters.BookSynopsisMax, logger),
		igdb.New(cfg.IGDB, logger),
		jikan.New(cfg.Jikan, logger),
		musicbrainz.New(cfg.MusicBrainz, cfg.Filters, logger),
		podcastindex.New(cfg.PodcastIndex, logger),
		bgg.New(cfg.BoardGameGeek, logger),
		rawg.New(cfg.RAWG, logger),
		comicvine.New(cfg.ComicVine, logger),
		newsdata.New(cfg.NewsData, logger),
	}
}

// DefaultEnrichers builds the production enrichment chain with configured
// budgets. Order matters: ratings first, then recommendations, then
// streaming availability.
func DefaultEnrichers(cfg *config.Config, logger *slog.Logger) []BudgetedEnricher {
	return []BudgetedEnricher{
		{Enricher: enrich.NewOMDb(cfg.OMDb, logger), Budget: cfg.Enrichment.OMDbLookups},
		{Enricher: enrich.NewTasteDive(cfg.TasteDive, logger), Budget: cfg.Enrichment.TasteDiveLookups},
		{Enricher: enrich.NewWatchmode(cfg.Watchmode, logger), Budget: cfg.Enrichment.WatchmodeLookups},
	}
}

// Run ingests one calendar day and writes its artifact. A source failing
// never fails the run; it shows up in the document's error map instead.
// Run itself fails only on lock contention or an unwritable artifact.
func (o *Orchestrator) Run(ctx context.Context, day time.Time) (*Document, error) {
	date := sources.Day(day)
	logger := o.logger.With("run_id", uuid.NewString(), "date", date)

	unlock, err := o.acquireLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc := o.collect(ctx, day, logger)

	path, err := WriteArtifact(o.cfg.Output.DataDir, doc)
	if err != nil {
		if nerr := o.notifier.PipelineError(ctx, "artifact write", err); nerr != nil {
			logger.Warn("error notification failed", "error", nerr)
		}
		return nil, err
	}
	logger.Info("artifact written", "path", path, "total", doc.TotalReleases, "failed_sources", len(doc.Errors))

	failed := make([]string, 0, len(doc.Errors))
	for name := range doc.Errors {
		failed = append(failed, name)
	}
	sort.Strings(failed)
	if err := o.notifier.IngestComplete(ctx, date, doc.TotalReleases, failed); err != nil {
		logger.Warn("completion notification failed", "error", err)
	}
	return doc, nil
}

// collect runs sources, reconciliation, enrichment, and ranking, producing
// the document without touching disk.
func (o *Orchestrator) collect(ctx context.Context, day time.Time, logger *slog.Logger) *Document {
	date := sources.Day(day)
	doc := &Document{
		Date:           date,
		IngestedAt:     time.Now().UTC(),
		SourceStats:    map[string]int{},
		FiltersApplied: o.cfg.FiltersApplied(),
		Releases:       []release.Record{},
	}
	errs := map[string]string{}

	for _, src := range o.sources {
		name := src.Name()
		start := time.Now()
		records, err := src.Fetch(ctx, day)
		if err != nil {
			logger.Error("source failed", "source", name, "error", err, "elapsed", time.Since(start).Round(time.Millisecond))
			doc.SourceStats[name] = 0
			errs[name] = err.Error()
			continue
		}
		if name == secondaryGameSource {
			records = dropKnownGames(records, doc.Releases, logger)
		}
		doc.SourceStats[name] = len(records)
		doc.Releases = append(doc.Releases, records...)
		logger.Info("source complete", "source", name, "count", len(records), "elapsed", time.Since(start).Round(time.Millisecond))
	}
	if len(errs) > 0 {
		doc.Errors = errs
	}

	for _, be := range o.enrichers {
		if be.Budget <= 0 {
			continue
		}
		touched := be.Enricher.Enrich(ctx, doc.Releases, be.Budget)
		logger.Info("enrichment pass complete", "enricher", be.Enricher.Name(), "touched", touched)
	}

	sort.SliceStable(doc.Releases, func(i, j int) bool {
		return doc.Releases[i].Popularity() > doc.Releases[j].Popularity()
	})
	doc.TotalReleases = len(doc.Releases)
	return doc
}

// dropKnownGames removes secondary-source games whose title, case-folded,
// already appeared as a game from the primary source. The primary record
// wins wholesale; there is no field-level merge across game catalogs.
func dropKnownGames(candidates, existing []release.Record, logger *slog.Logger) []release.Record {
	known := map[string]struct{}{}
	for i := range existing {
		if existing[i].Source == primaryGameSource && existing[i].MediaType == release.MediaGame {
			known[release.NormalizeTitle(existing[i].Title)] = struct{}{}
		}
	}
	if len(known) == 0 {
		return candidates
	}

	kept := candidates[:0]
	dropped := 0
	for _, rec := range candidates {
		if _, dup := known[release.NormalizeTitle(rec.Title)]; dup {
			dropped++
			continue
		}
		kept = append(kept, rec)
	}
	if dropped > 0 {
		logger.Info("reconciled duplicate games", "dropped", dropped)
	}
	return kept
}

// acquireLock takes a non-blocking file lock so two ingest runs never write
// the same artifact concurrently.
func (o *Orchestrator) acquireLock() (func(), error) {
	if err := os.MkdirAll(o.cfg.Output.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	lock := flock.New(filepath.Join(o.cfg.Output.DataDir, "ingest.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire ingest lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another ingest run holds the lock")
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			o.logger.Warn("release ingest lock failed", "error", err)
		}
	}, nil
}
