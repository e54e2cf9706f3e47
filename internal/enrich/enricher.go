// Package enrich adds cross-source detail to already-fetched records:
// review scores, recommendations, streaming availability. Enrichers only
// ever add fields; anything a source adapter wrote stays untouched. Every
// enricher degrades to a no-op when its credential is missing, and a
// failed lookup skips one record rather than failing the run.
package enrich

import (
	"context"
	"net/http"
	"time"

	"unreeled/internal/release"
)

const defaultDelay = 250 * time.Millisecond

// Enricher decorates records in place, spending at most maxLookups upstream
// calls, and reports how many records it touched.
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, records []release.Record, maxLookups int) int
}

// Option adjusts an enricher's HTTP client or request pacing. The same
// options work across all three enrichers.
type Option struct {
	client *http.Client
	delay  *time.Duration
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return Option{client: client}
}

// WithDelay overrides the fixed post-call delay.
func WithDelay(d time.Duration) Option {
	return Option{delay: &d}
}

func (o Option) apply(client **http.Client, delay *time.Duration) {
	if o.client != nil {
		*client = o.client
	}
	if o.delay != nil {
		*delay = *o.delay
	}
}
