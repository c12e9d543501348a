package loader

import (
	"context"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/PentesterFlow/ScriptSentry/internal/errors"
	"github.com/PentesterFlow/ScriptSentry/internal/logger"
)

// BrowserConfig defines headless browser configuration.
type BrowserConfig struct {
	Headless          bool          `json:"headless" yaml:"headless"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	UserAgent         string        `json:"user_agent" yaml:"user_agent"`
	ViewportWidth     int           `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `json:"viewport_height" yaml:"viewport_height"`
	IgnoreHTTPSErrors bool          `json:"ignore_https_errors" yaml:"ignore_https_errors"`
	WaitAfterLoad     time.Duration `json:"wait_after_load" yaml:"wait_after_load"`
	Headers           map[string]string
}

// DefaultBrowserConfig returns default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:          true,
		Timeout:           30 * time.Second,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		IgnoreHTTPSErrors: true,
		WaitAfterLoad:     2 * time.Second,
	}
}

// BrowserLoader discovers scripts by loading the page in headless
// Chrome and observing script-type network requests alongside static
// script tags.
type BrowserLoader struct {
	browser *rod.Browser
	config  BrowserConfig
	log     *logger.Logger
}

// NewBrowserLoader launches the browser.
func NewBrowserLoader(config BrowserConfig, log *logger.Logger) (*BrowserLoader, error) {
	if log == nil {
		log = logger.Global()
	}

	l := launcher.New().Headless(config.Headless)
	if config.IgnoreHTTPSErrors {
		l = l.Set("ignore-certificate-errors", "true")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, errors.NewLoaderError("", "launch", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, errors.NewLoaderError("", "connect", err)
	}

	return &BrowserLoader{
		browser: browser,
		config:  config,
		log:     log.WithComponent("loader"),
	}, nil
}

// Close shuts the browser down.
func (b *BrowserLoader) Close() error {
	return b.browser.Close()
}

// Load navigates to the target and collects script URLs from both the
// network layer and the rendered DOM.
func (b *BrowserLoader) Load(ctx context.Context, target string) (Session, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, errors.NewLoaderError(target, "new_page", err)
	}
	page = page.Context(ctx).Timeout(b.config.Timeout)

	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  b.config.ViewportWidth,
		Height: b.config.ViewportHeight,
	})

	if b.config.UserAgent != "" {
		_ = (proto.NetworkSetUserAgentOverride{
			UserAgent: b.config.UserAgent,
		}).Call(page)
	}

	if len(b.config.Headers) > 0 {
		networkHeaders := make(proto.NetworkHeaders)
		for k, v := range b.config.Headers {
			networkHeaders[k] = gson.New(v)
		}
		_ = (proto.NetworkSetExtraHTTPHeaders{Headers: networkHeaders}).Call(page)
	}

	// Observe script requests as they happen; the SPA case loads most
	// of its code this way rather than through static tags.
	var mu sync.Mutex
	observed := make(map[string]struct{})

	router := page.HijackRequests()
	err = router.Add("*", "", func(hijack *rod.Hijack) {
		if hijack.Request.Type() == proto.NetworkResourceTypeScript {
			mu.Lock()
			observed[hijack.Request.URL().String()] = struct{}{}
			mu.Unlock()
		}
		hijack.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		router = nil
	}
	if router != nil {
		go router.Run()
	}

	cleanup := func() {
		if router != nil {
			_ = router.Stop()
		}
		_ = page.Close()
	}

	if err := page.Navigate(target); err != nil {
		cleanup()
		return nil, errors.NewLoaderError(target, "navigate", err)
	}
	if err := page.WaitLoad(); err != nil {
		cleanup()
		return nil, errors.NewLoaderError(target, "wait_load", err)
	}
	if b.config.WaitAfterLoad > 0 {
		time.Sleep(b.config.WaitAfterLoad)
	}

	mu.Lock()
	for _, src := range extractScriptTags(page, target) {
		observed[src] = struct{}{}
	}
	scripts := make([]string, 0, len(observed))
	for u := range observed {
		scripts = append(scripts, u)
	}
	mu.Unlock()
	sort.Strings(scripts)

	b.log.WithURL(target).Debugf("Discovered %d script URLs", len(scripts))

	return &browserSession{
		page:    page,
		router:  router,
		scripts: scripts,
	}, nil
}

// extractScriptTags reads script[src] attributes from the rendered DOM,
// resolved against the target URL.
func extractScriptTags(page *rod.Page, target string) []string {
	base, err := url.Parse(target)
	if err != nil {
		return nil
	}

	elements, err := page.Elements("script[src]")
	if err != nil {
		return nil
	}

	var scripts []string
	for _, el := range elements {
		src, err := el.Attribute("src")
		if err != nil || src == nil || *src == "" {
			continue
		}
		if resolved := resolveURL(base, *src); resolved != "" {
			scripts = append(scripts, resolved)
		}
	}
	return scripts
}

func resolveURL(base *url.URL, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(parsed)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

type browserSession struct {
	page    *rod.Page
	router  *rod.HijackRouter
	scripts []string
}

func (s *browserSession) Scripts() []string {
	return s.scripts
}

// FetchScript retrieves the script through the page, reusing the
// browser's cookies, headers, and cache.
func (s *browserSession) FetchScript(ctx context.Context, scriptURL string) ([]byte, error) {
	data, err := s.page.Context(ctx).GetResource(scriptURL)
	if err != nil {
		return nil, errors.NewNetworkError(scriptURL, "in_page_fetch", err)
	}
	if len(data) == 0 {
		return nil, errors.New(errors.Network, scriptURL, "in_page_fetch", "empty resource", nil)
	}
	return data, nil
}

func (s *browserSession) Close() error {
	if s.router != nil {
		_ = s.router.Stop()
	}
	return s.page.Close()
}
