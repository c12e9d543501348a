// Package loader discovers candidate script URLs on a target page. The
// primary implementation drives a headless browser and observes network
// traffic; a static fallback fetches the page HTML and reads script
// tags without executing anything.
package loader

import "context"

// Session is one loaded target page. Scripts returns the deduplicated
// absolute script URLs discovered on it; FetchScript retrieves a
// script's bytes through the page itself where supported.
type Session interface {
	Scripts() []string
	FetchScript(ctx context.Context, url string) ([]byte, error)
	Close() error
}

// Loader opens a session for a target URL.
type Loader interface {
	Load(ctx context.Context, target string) (Session, error)
}
