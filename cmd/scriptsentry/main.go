package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/ScriptSentry/internal/history"
	"github.com/PentesterFlow/ScriptSentry/pkg/monitor"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	// Scan/watch flags
	dataDir        string
	webhookURL     string
	historyDB      string
	intervalSecs   int
	forceReextract bool
	staticOnly     bool
	noExtract      bool
	noSimilarity   bool
	includeDomains []string
	excludeDomains []string
	includeURLs    []string
	excludeURLs    []string
	endpointRegex  []string
	headers        []string

	// History flags
	historyDomain string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "scriptsentry",
		Short: "ScriptSentry - JavaScript Asset Monitor",
		Long: `ScriptSentry - Continuous monitoring of JavaScript assets for security testing.

Discovers script files on target pages, tracks content changes over time,
extracts API endpoints from new or modified code, and flags probable file
renames via structural similarity.`,
		Version: version,
	}

	// Scan command
	scanCmd := &cobra.Command{
		Use:   "scan [targets...]",
		Short: "Run one scan cycle",
		Long:  "Run a single scan cycle over the given targets (or the targets from the config file).",
		RunE:  runScan,
	}

	// Watch command
	watchCmd := &cobra.Command{
		Use:   "watch [targets...]",
		Short: "Scan continuously",
		Long:  "Run scan cycles in a loop, sleeping the configured interval between them.",
		RunE:  runWatch,
	}

	// Webhook test command
	webhookCmd := &cobra.Command{
		Use:   "test-webhook",
		Short: "Send a test notification",
		Long:  "Send a test message to the configured Discord webhook and report the outcome.",
		RunE:  runTestWebhook,
	}

	// History command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded scan cycles",
		Long:  "Print past scan cycle records from the history database.",
		RunE:  runHistory,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	for _, cmd := range []*cobra.Command{scanCmd, watchCmd} {
		cmd.Flags().StringVarP(&dataDir, "data-dir", "d", "data", "Directory for persisted asset state")
		cmd.Flags().StringVarP(&webhookURL, "webhook", "w", "", "Discord webhook URL for scan summaries")
		cmd.Flags().StringVar(&historyDB, "history-db", "", "Path of the scan history database")
		cmd.Flags().BoolVar(&forceReextract, "force-reextract", false, "Re-extract endpoints from unchanged assets")
		cmd.Flags().BoolVar(&staticOnly, "static-only", false, "Skip the browser and parse pages statically")
		cmd.Flags().BoolVar(&noExtract, "no-extract", false, "Disable endpoint extraction")
		cmd.Flags().BoolVar(&noSimilarity, "no-similarity", false, "Disable rename detection")
		cmd.Flags().StringArrayVar(&includeDomains, "include-domain", nil, "Only process scripts whose domain contains this (repeatable)")
		cmd.Flags().StringArrayVar(&excludeDomains, "exclude-domain", nil, "Skip scripts whose domain contains this (repeatable)")
		cmd.Flags().StringArrayVar(&includeURLs, "include-url", nil, "Only process script URLs matching this regex (repeatable)")
		cmd.Flags().StringArrayVar(&excludeURLs, "exclude-url", nil, "Skip script URLs matching this regex (repeatable)")
		cmd.Flags().StringArrayVar(&endpointRegex, "endpoint-regex", nil, "Extra endpoint extraction regex (repeatable)")
		cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Custom header as 'Name: value' (repeatable)")
	}

	watchCmd.Flags().IntVarP(&intervalSecs, "interval", "i", 900, "Seconds between scan cycles")

	historyCmd.Flags().StringVar(&historyDB, "history-db", "", "Path of the scan history database")
	historyCmd.Flags().StringVar(&historyDomain, "domain", "", "Only show records for this domain")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(webhookCmd)
	rootCmd.AddCommand(historyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildConfig assembles the effective configuration: config file first,
// then command-line overrides, then positional targets.
func buildConfig(cmd *cobra.Command, args []string) (*monitor.Config, error) {
	config := monitor.DefaultConfig()

	if configFile != "" {
		fileConfig, err := monitor.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = fileConfig
	}

	if len(args) > 0 {
		config.Targets = args
	}

	if cmd.Flags().Changed("data-dir") {
		config.DataDir = dataDir
	}
	if cmd.Flags().Changed("webhook") {
		config.WebhookURL = webhookURL
	}
	if cmd.Flags().Changed("history-db") {
		config.HistoryDB = historyDB
	}
	if cmd.Flags().Changed("interval") {
		config.Interval = time.Duration(intervalSecs) * time.Second
	}
	if cmd.Flags().Changed("force-reextract") {
		config.ForceReextract = forceReextract
	}
	if cmd.Flags().Changed("static-only") {
		config.StaticOnly = staticOnly
	}
	if noExtract {
		config.ExtractEndpoints = false
	}
	if noSimilarity {
		config.AnalyzeSimilarity = false
	}

	config.Filters.IncludeDomain = append(config.Filters.IncludeDomain, includeDomains...)
	config.Filters.ExcludeDomain = append(config.Filters.ExcludeDomain, excludeDomains...)
	config.Filters.IncludeURL = append(config.Filters.IncludeURL, includeURLs...)
	config.Filters.ExcludeURL = append(config.Filters.ExcludeURL, excludeURLs...)

	if len(endpointRegex) > 0 {
		if config.EndpointPatterns == nil {
			config.EndpointPatterns = make(map[string][]string)
		}
		config.EndpointPatterns["custom_patterns"] = append(
			config.EndpointPatterns["custom_patterns"], endpointRegex...)
	}

	for _, h := range headers {
		name, value, ok := splitHeader(h)
		if !ok {
			return nil, fmt.Errorf("invalid header %q, expected 'Name: value'", h)
		}
		if config.CustomHeaders == nil {
			config.CustomHeaders = make(map[string]string)
		}
		config.CustomHeaders[name] = value
	}

	config.Verbose = verbose
	config.Debug = debug

	return config, nil
}

func splitHeader(h string) (name, value string, ok bool) {
	for i := 0; i < len(h); i++ {
		if h[i] == ':' {
			name = h[:i]
			value = h[i+1:]
			for len(value) > 0 && value[0] == ' ' {
				value = value[1:]
			}
			return name, value, name != ""
		}
	}
	return "", "", false
}

func runScan(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	m, err := monitor.New(config)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	defer m.Close()

	ctx, cancel := signalContext()
	defer cancel()

	printBanner(config)

	result, err := m.Scan(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if result != nil {
		printSummary(result)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	m, err := monitor.New(config)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	defer m.Close()

	ctx, cancel := signalContext()
	defer cancel()

	printBanner(config)
	fmt.Printf("Watching %d target(s) every %s. Ctrl-C to stop.\n\n",
		len(config.Targets), config.Interval)

	return m.Watch(ctx)
}

func runTestWebhook(cmd *cobra.Command, args []string) error {
	config := monitor.DefaultConfig()
	if configFile != "" {
		fileConfig, err := monitor.LoadFromFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
		config = fileConfig
	}
	if webhookURL != "" {
		config.WebhookURL = webhookURL
	}
	if config.WebhookURL == "" {
		return fmt.Errorf("no webhook URL configured (use --webhook or the config file)")
	}

	// The webhook test needs no targets or browser.
	config.Targets = []string{"https://example.com"}
	config.StaticOnly = true

	m, err := monitor.New(config)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	defer m.Close()

	if err := m.TestWebhook(context.Background()); err != nil {
		return fmt.Errorf("webhook test failed: %w", err)
	}

	fmt.Println("Webhook test message delivered.")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := historyDB
	if path == "" && configFile != "" {
		fileConfig, err := monitor.LoadFromFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
		path = fileConfig.HistoryDB
	}
	if path == "" {
		return fmt.Errorf("no history database configured (use --history-db or the config file)")
	}

	journal, err := history.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer journal.Close()

	domains := []string{historyDomain}
	if historyDomain == "" {
		domains, err = journal.Domains()
		if err != nil {
			return fmt.Errorf("failed to list domains: %w", err)
		}
	}

	if len(domains) == 0 {
		fmt.Println("No scan history recorded.")
		return nil
	}

	for _, domain := range domains {
		records, err := journal.Domain(domain)
		if err != nil {
			return fmt.Errorf("failed to read history for %s: %w", domain, err)
		}

		fmt.Printf("%s (%d cycle(s))\n", domain, len(records))
		for _, rec := range records {
			fmt.Printf("  %s  processed=%d filtered=%d changes=%d endpoints=%d renames=%d errors=%d (%s)\n",
				rec.Timestamp.Format("2006-01-02 15:04:05"),
				rec.Processed, rec.Filtered, rec.Changes,
				rec.NewEndpoints, rec.Renames, rec.Errors,
				rec.Duration.Round(time.Millisecond))
		}
		fmt.Println()
	}

	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived interrupt signal, stopping...\n")
		cancel()
	}()

	return ctx, cancel
}

func printBanner(config *monitor.Config) {
	mode := "browser"
	if config.StaticOnly {
		mode = "static"
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                     ScriptSentry v1.0                        ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Targets:    %d\n", len(config.Targets))
	for _, t := range config.Targets {
		fmt.Printf("  - %s\n", t)
	}
	fmt.Printf("Data Dir:   %s\n", config.DataDir)
	fmt.Printf("Page Load:  %s\n", mode)
	fmt.Printf("Extraction: %v\n", config.ExtractEndpoints)
	fmt.Printf("Similarity: %v\n", config.AnalyzeSimilarity)
	fmt.Println()
}

func printSummary(result *monitor.ScanResult) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        Scan Summary                          ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Duration:        %v\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("Targets Scanned: %d\n", result.TargetsScanned)
	fmt.Printf("Domains Seen:    %d\n", len(result.Domains))
	fmt.Printf("Asset Changes:   %d\n", result.TotalChanges())
	fmt.Printf("New Endpoints:   %d\n", result.TotalNewEndpoints())
	fmt.Printf("Errors:          %d\n", result.TotalErrors())
	fmt.Println()

	for _, domain := range sortedDomains(result) {
		res := result.Domains[domain]
		if len(res.Changes) == 0 && len(res.NewEndpoints) == 0 && len(res.RenameCandidates) == 0 {
			continue
		}

		fmt.Printf("%s:\n", domain)
		for _, change := range res.Changes {
			fmt.Printf("  [%s] %s\n", change.Status, change.URL)
		}
		for _, ep := range res.NewEndpoints {
			fmt.Printf("  [ENDPOINT] %s\n", ep)
		}
		for _, rename := range res.RenameCandidates {
			fmt.Printf("  [RENAME?] %s <- %s (%.0f%%)\n",
				rename.URL, rename.Candidate, rename.Score*100)
		}
		fmt.Println()
	}

	if len(result.TargetErrors) > 0 {
		fmt.Println("Target Errors:")
		for _, te := range result.TargetErrors {
			fmt.Printf("  %s\n", te)
		}
		fmt.Println()
	}
}

func sortedDomains(result *monitor.ScanResult) []string {
	domains := make([]string, 0, len(result.Domains))
	for domain := range result.Domains {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}
