// Package monitor orchestrates scan cycles: it discovers script assets
// on target pages, detects content changes, extracts endpoints, and
// finds probable renames, then aggregates the outcome per domain.
package monitor

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/PentesterFlow/ScriptSentry/internal/dedup"
	"github.com/PentesterFlow/ScriptSentry/internal/errors"
	"github.com/PentesterFlow/ScriptSentry/internal/extract"
	"github.com/PentesterFlow/ScriptSentry/internal/fetch"
	"github.com/PentesterFlow/ScriptSentry/internal/history"
	"github.com/PentesterFlow/ScriptSentry/internal/loader"
	"github.com/PentesterFlow/ScriptSentry/internal/logger"
	"github.com/PentesterFlow/ScriptSentry/internal/normalize"
	"github.com/PentesterFlow/ScriptSentry/internal/notify"
	"github.com/PentesterFlow/ScriptSentry/internal/similarity"
	"github.com/PentesterFlow/ScriptSentry/internal/store"
)

// Monitor runs scan cycles over the configured targets. Execution is
// single-threaded: one target, then one asset at a time.
type Monitor struct {
	cfg       *Config
	log       *logger.Logger
	store     *store.Store
	extractor *extract.Extractor
	engine    *similarity.Engine
	fetcher   Fetcher
	loader    loader.Loader
	fallback  loader.Loader
	notifier  *notify.Notifier
	journal   *history.Journal
	seen      *dedup.Deduplicator
	filters   *filterSet
}

// New creates a Monitor from a validated config.
func New(cfg *Config, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Monitor{cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}

	if m.log == nil {
		level := logger.InfoLevel
		if cfg.Verbose {
			level = logger.DebugLevel
		}
		m.log = logger.New(logger.Config{
			Level:  level,
			Pretty: !cfg.Debug,
			Output: os.Stderr,
		})
	}

	normalizer := normalize.New(m.log)
	st, err := store.New(cfg.DataDir, normalizer, m.log)
	if err != nil {
		return nil, err
	}
	m.store = st

	if cfg.ExtractEndpoints {
		m.extractor = extract.New(cfg.EndpointPatterns, m.log)
	}
	if cfg.AnalyzeSimilarity {
		m.engine = similarity.NewEngine(m.log)
	}

	if m.fetcher == nil {
		fetchCfg := cfg.Fetch
		if len(cfg.CustomHeaders) > 0 {
			if fetchCfg.Headers == nil {
				fetchCfg.Headers = make(map[string]string)
			}
			for k, v := range cfg.CustomHeaders {
				fetchCfg.Headers[k] = v
			}
		}
		m.fetcher = fetch.New(fetchCfg, m.log)
	}

	if m.fallback == nil {
		if client, ok := m.fetcher.(*fetch.Client); ok {
			m.fallback = loader.NewStaticLoader(client, m.log)
		}
	}

	if m.loader == nil {
		if cfg.StaticOnly {
			m.loader = m.fallback
			m.fallback = nil
		} else {
			browserCfg := cfg.Browser
			browserCfg.Headers = cfg.CustomHeaders
			bl, err := loader.NewBrowserLoader(browserCfg, m.log)
			if err != nil {
				return nil, err
			}
			m.loader = bl
		}
	}
	if m.loader == nil {
		return nil, errors.NewConfigError("init", "no page loader available")
	}

	m.notifier = notify.New(cfg.WebhookURL, m.log)

	if cfg.HistoryDB != "" {
		journal, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return nil, err
		}
		m.journal = journal
	}

	m.seen = dedup.New(len(cfg.Targets) * 100)
	m.filters = compileFilters(cfg.Filters, m.log)

	return m, nil
}

// Close releases the browser and journal.
func (m *Monitor) Close() error {
	if bl, ok := m.loader.(*loader.BrowserLoader); ok {
		_ = bl.Close()
	}
	if m.journal != nil {
		return m.journal.Close()
	}
	return nil
}

// TestWebhook sends a test notification and returns the delivery error.
func (m *Monitor) TestWebhook(ctx context.Context) error {
	if !m.notifier.Enabled() {
		return errors.NewConfigError("test_webhook", "no webhook URL configured")
	}
	return m.notifier.SendTest(ctx)
}

// Scan runs one full cycle over all targets.
func (m *Monitor) Scan(ctx context.Context) (*ScanResult, error) {
	start := time.Now()
	m.seen.Reset()

	result := &ScanResult{Domains: make(map[string]*notify.DomainResult)}
	domainEndpoints := make(map[string]extract.Set)

	for _, target := range m.cfg.Targets {
		if ctx.Err() != nil {
			return result, errors.NewCancelledError(target, "scan")
		}

		normalized := NormalizeTargetURL(target)
		m.log.WithURL(normalized).Info("Scanning target")

		session, err := m.loadPage(ctx, normalized)
		if err != nil {
			m.log.ErrorEvent(err, normalized, "load")
			result.TargetErrors = append(result.TargetErrors,
				fmt.Sprintf("load failed for %s: %v", normalized, err))
			continue
		}

		m.processTarget(ctx, session, result, domainEndpoints)
		_ = session.Close()
		result.TargetsScanned++
	}

	m.reconcileEndpoints(result, domainEndpoints)

	result.Duration = time.Since(start)
	m.finishCycle(ctx, result)
	return result, nil
}

// Watch loops scan cycles with a plain sleep between them until the
// context is cancelled.
func (m *Monitor) Watch(ctx context.Context) error {
	for {
		if _, err := m.Scan(ctx); err != nil {
			if errors.GetErrorType(err) == errors.Cancelled {
				return nil
			}
			m.log.WithError(err).Error("Scan cycle failed")
		}

		m.log.Infof("Sleeping %s until next cycle", m.cfg.Interval)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.cfg.Interval):
		}
	}
}

// loadPage tries the primary loader, then the fallback.
func (m *Monitor) loadPage(ctx context.Context, target string) (loader.Session, error) {
	session, err := m.loader.Load(ctx, target)
	if err == nil {
		return session, nil
	}
	if m.fallback == nil {
		return nil, err
	}

	m.log.WithURL(target).WithError(err).Warn("Primary page load failed, trying static fallback")
	return m.fallback.Load(ctx, target)
}

// processTarget drives the per-asset pipeline for one loaded page.
func (m *Monitor) processTarget(ctx context.Context, session loader.Session, result *ScanResult, domainEndpoints map[string]extract.Set) {
	for _, scriptURL := range session.Scripts() {
		if ctx.Err() != nil {
			return
		}

		// The same asset referenced by several targets is handled once
		// per cycle.
		if !m.seen.MarkSeen(scriptURL) {
			continue
		}

		parsed, err := url.Parse(scriptURL)
		if err != nil || parsed.Host == "" {
			continue
		}
		domain := parsed.Host

		res, ok := result.Domains[domain]
		if !ok {
			res = &notify.DomainResult{Domain: domain}
			result.Domains[domain] = res
		}

		if !m.filters.Allows(scriptURL) {
			m.log.WithURL(scriptURL).Debug("Filtered out")
			res.Filtered++
			continue
		}
		res.Processed++

		if err := m.processAsset(ctx, session, scriptURL, domain, res, domainEndpoints); err != nil {
			m.log.ErrorEvent(err, scriptURL, "process")
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", scriptURL, err))
		}
	}
}

// processAsset downloads, observes, extracts, and fingerprints one
// script. Failures abort this asset only.
func (m *Monitor) processAsset(ctx context.Context, session loader.Session, scriptURL, domain string, res *notify.DomainResult, domainEndpoints map[string]extract.Set) error {
	chain := errors.NewChain(
		errors.Strategy{Name: "in_page", Run: func(ctx context.Context) ([]byte, error) {
			return session.FetchScript(ctx, scriptURL)
		}},
		errors.Strategy{Name: "http", Run: func(ctx context.Context) ([]byte, error) {
			return m.fetcher.Fetch(ctx, scriptURL)
		}},
	)

	raw, strategy, err := chain.Execute(ctx)
	if err != nil {
		return err
	}
	m.log.WithURL(scriptURL).Debugf("Downloaded via %s (%s)", strategy, notify.FormatSize(len(raw)))

	status, record, err := m.store.Observe(scriptURL, raw, store.ContentHash(raw))
	if err != nil {
		return err
	}

	shouldExtract := false
	switch status {
	case store.StatusUnchanged:
		if m.cfg.ForceReextract {
			shouldExtract = true
		}
	case store.StatusNew, store.StatusModified:
		shouldExtract = true
		res.Changes = append(res.Changes, notify.Change{
			Status:  string(status),
			URL:     scriptURL,
			Size:    record.Size,
			Added:   record.Added,
			Removed: record.Removed,
		})
	}

	if m.extractor != nil && shouldExtract {
		endpoints, err := m.extractor.ExtractFromFile(record.NormalizedPath)
		if err != nil {
			return err
		}
		if domainEndpoints[domain] == nil {
			domainEndpoints[domain] = extract.NewSet()
		}
		domainEndpoints[domain].Union(endpoints)
	}

	if m.engine != nil && status == store.StatusNew {
		text, err := os.ReadFile(record.NormalizedPath)
		if err != nil {
			return errors.NewStoreError(scriptURL, "read_normalized", err)
		}
		candidates, err := m.engine.FindRenameCandidates(scriptURL, string(text), m.store.FingerprintDir(domain))
		if err != nil {
			return err
		}
		for _, c := range candidates {
			res.RenameCandidates = append(res.RenameCandidates, notify.Rename{
				URL:       scriptURL,
				Candidate: c.URL,
				Score:     c.Score,
			})
		}
	}

	return nil
}

// reconcileEndpoints compares each domain's unioned extraction against
// its persisted endpoint set, once per domain per cycle.
func (m *Monitor) reconcileEndpoints(result *ScanResult, domainEndpoints map[string]extract.Set) {
	if m.extractor == nil {
		return
	}

	for domain, set := range domainEndpoints {
		if len(set) == 0 {
			continue
		}

		endpointFile := m.store.EndpointFile(domain)
		newEndpoints, err := m.extractor.Reconcile(endpointFile, set)
		if err != nil {
			m.log.ErrorEvent(err, domain, "reconcile")
			if res := result.Domains[domain]; res != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("endpoint reconcile failed: %v", err))
			}
			continue
		}
		if len(newEndpoints) == 0 {
			continue
		}

		m.log.EndpointEvent(domain, len(newEndpoints))
		if res := result.Domains[domain]; res != nil {
			res.NewEndpoints = append(res.NewEndpoints, newEndpoints...)
			res.EndpointsFile = endpointFile
		}
	}
}

// finishCycle journals, notifies, and logs the cycle summary.
func (m *Monitor) finishCycle(ctx context.Context, result *ScanResult) {
	if m.journal != nil {
		for domain, res := range result.Domains {
			err := m.journal.Append(history.Record{
				Domain:       domain,
				Timestamp:    time.Now(),
				Processed:    res.Processed,
				Filtered:     res.Filtered,
				Changes:      len(res.Changes),
				NewEndpoints: len(res.NewEndpoints),
				Renames:      len(res.RenameCandidates),
				Errors:       len(res.Errors),
				Duration:     result.Duration,
			})
			if err != nil {
				m.log.WithDomain(domain).WithError(err).Warn("Failed to journal cycle record")
			}
		}
	}

	m.notifier.SendSummary(ctx, result.domainResults(), result.Duration)

	m.log.CycleEvent(map[string]interface{}{
		"targets":       result.TargetsScanned,
		"domains":       len(result.Domains),
		"changes":       result.TotalChanges(),
		"new_endpoints": result.TotalNewEndpoints(),
		"errors":        result.TotalErrors(),
		"duration":      result.Duration.String(),
	})
}
