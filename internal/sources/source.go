// Package sources defines the adapter contract every external catalog API
// implements, and small helpers shared by the concrete adapters underneath.
package sources

import (
	"context"
	"time"

	"unreeled/internal/release"
)

// Source adapts one external API into unified release records. Fetch returns
// every release it can map for the given calendar day (UTC). A source with a
// missing credential returns an empty result and no error; an error return
// means the source produced nothing usable this run and the orchestrator
// records it against the source name.
type Source interface {
	Name() string
	Fetch(ctx context.Context, day time.Time) ([]release.Record, error)
}

// Day formats a time as the pipeline's calendar date string.
func Day(t time.Time) string {
	return t.UTC().Format(release.DateLayout)
}

// Pause sleeps for the adapter's fixed post-call delay, returning early when
// the context is cancelled. Every network call is followed by one of these
// to stay under the source's published quota.
func Pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
