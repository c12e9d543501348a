package loader

import (
	"bytes"
	"context"
	"net/url"
	"sort"

	"github.com/PuerkitoBio/goquery"

	"github.com/PentesterFlow/ScriptSentry/internal/errors"
	"github.com/PentesterFlow/ScriptSentry/internal/fetch"
	"github.com/PentesterFlow/ScriptSentry/internal/logger"
)

// StaticLoader discovers scripts by fetching the page HTML and reading
// script tags, without executing any JavaScript. It is the fallback
// when the browser is unavailable or fails on a target. Scripts loaded
// dynamically at runtime are invisible to it.
type StaticLoader struct {
	client *fetch.Client
	log    *logger.Logger
}

// NewStaticLoader creates a static loader over a fetch client.
func NewStaticLoader(client *fetch.Client, log *logger.Logger) *StaticLoader {
	if log == nil {
		log = logger.Global()
	}
	return &StaticLoader{
		client: client,
		log:    log.WithComponent("loader"),
	}
}

// Load fetches the target page and extracts script[src] URLs.
func (s *StaticLoader) Load(ctx context.Context, target string) (Session, error) {
	base, err := url.Parse(target)
	if err != nil {
		return nil, errors.NewLoaderError(target, "parse_target", err)
	}

	html, err := s.client.Fetch(ctx, target)
	if err != nil {
		return nil, errors.NewLoaderError(target, "fetch_page", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, errors.NewLoaderError(target, "parse_html", err)
	}

	seen := make(map[string]struct{})
	doc.Find("script[src]").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok || src == "" {
			return
		}
		if resolved := resolveURL(base, src); resolved != "" {
			seen[resolved] = struct{}{}
		}
	})

	scripts := make([]string, 0, len(seen))
	for u := range seen {
		scripts = append(scripts, u)
	}
	sort.Strings(scripts)

	s.log.WithURL(target).Debugf("Static load found %d script tags", len(scripts))
	return &staticSession{scripts: scripts}, nil
}

type staticSession struct {
	scripts []string
}

func (s *staticSession) Scripts() []string {
	return s.scripts
}

// FetchScript is unsupported without a live page; callers fall through
// to the plain HTTP fetcher.
func (s *staticSession) FetchScript(ctx context.Context, scriptURL string) ([]byte, error) {
	return nil, errors.New(errors.Loader, scriptURL, "in_page_fetch", "static session cannot fetch resources", nil)
}

func (s *staticSession) Close() error {
	return nil
}
