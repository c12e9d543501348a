package monitor

import (
	"context"

	"github.com/PentesterFlow/ScriptSentry/internal/loader"
	"github.com/PentesterFlow/ScriptSentry/internal/logger"
)

// Fetcher retrieves raw script bytes over plain HTTP. It is the
// secondary strategy after the in-page fetch.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithLogger replaces the logger built from the config.
func WithLogger(log *logger.Logger) Option {
	return func(m *Monitor) {
		m.log = log
	}
}

// WithLoader replaces the page loader. The monitor will not launch a
// browser when one is supplied.
func WithLoader(l loader.Loader) Option {
	return func(m *Monitor) {
		m.loader = l
	}
}

// WithFallbackLoader replaces the fallback page loader.
func WithFallbackLoader(l loader.Loader) Option {
	return func(m *Monitor) {
		m.fallback = l
	}
}

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f Fetcher) Option {
	return func(m *Monitor) {
		m.fetcher = f
	}
}
