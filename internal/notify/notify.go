// Package notify formats and sends per-cycle scan summaries to a
// Discord webhook. Delivery failures are logged, never fatal.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PentesterFlow/ScriptSentry/internal/logger"
)

// Embed colors.
const (
	colorBlue  = 0x3498db
	colorGreen = 0x2ecc71
)

// maxListedPerDomain caps how many changes and endpoints one domain
// field lists before truncating.
const maxListedPerDomain = 5

// Change is one asset change reported in a summary.
type Change struct {
	Status  string
	URL     string
	Size    int
	Added   int
	Removed int
}

// Rename is one probable rename candidate pair.
type Rename struct {
	URL       string
	Candidate string
	Score     float64
}

// DomainResult aggregates one domain's outcome for a scan cycle.
type DomainResult struct {
	Domain           string
	Changes          []Change
	NewEndpoints     []string
	EndpointsFile    string
	RenameCandidates []Rename
	Errors           []string
	Processed        int
	Filtered         int
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

type payload struct {
	Embeds []embed `json:"embeds"`
}

// Notifier sends webhook notifications. An empty webhook URL disables
// it silently.
type Notifier struct {
	webhookURL string
	client     *http.Client
	log        *logger.Logger
}

// New creates a Notifier.
func New(webhookURL string, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.Global()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        log.WithComponent("notify"),
	}
}

// Enabled reports whether a webhook is configured.
func (n *Notifier) Enabled() bool {
	return n.webhookURL != ""
}

// SendSummary sends the batched per-cycle summary. A send failure is
// logged and swallowed so the scan outcome is unaffected.
func (n *Notifier) SendSummary(ctx context.Context, results []DomainResult, duration time.Duration) {
	if !n.Enabled() {
		return
	}
	if err := n.send(ctx, buildSummary(results, duration)); err != nil {
		n.log.WithError(err).Error("Failed to send scan summary")
	}
}

// SendTest sends a simple test embed and returns the delivery error so
// the CLI can report webhook misconfiguration.
func (n *Notifier) SendTest(ctx context.Context) error {
	return n.send(ctx, payload{Embeds: []embed{{
		Title:       "ScriptSentry Test Successful",
		Description: "If you can see this, your webhook is configured correctly.",
		Color:       colorGreen,
		Footer:      &embedFooter{Text: "Test sent at " + time.Now().Format(time.RFC3339)},
	}}})
}

func (n *Notifier) send(ctx context.Context, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// buildSummary renders the batched embed for a completed cycle.
func buildSummary(results []DomainResult, duration time.Duration) payload {
	totalChanges := 0
	totalEndpoints := 0
	for _, res := range results {
		totalChanges += len(res.Changes)
		totalEndpoints += len(res.NewEndpoints)
	}

	summary := embed{
		Title: "ScriptSentry Scan Summary",
		Description: fmt.Sprintf("Detected **%d** changes and **%d** new endpoints across **%d** domain(s).",
			totalChanges, totalEndpoints, len(results)),
		Color: colorBlue,
		Footer: &embedFooter{
			Text: fmt.Sprintf("Scan completed in %.2f seconds at %s",
				duration.Seconds(), time.Now().Format(time.RFC3339)),
		},
	}

	for _, res := range results {
		if len(res.Changes) == 0 && len(res.NewEndpoints) == 0 && len(res.RenameCandidates) == 0 {
			continue
		}
		summary.Fields = append(summary.Fields, embedField{
			Name:  res.Domain,
			Value: domainFieldValue(res),
		})
	}

	return payload{Embeds: []embed{summary}}
}

func domainFieldValue(res DomainResult) string {
	var b strings.Builder

	if len(res.Changes) > 0 {
		fmt.Fprintf(&b, "**Changes (%d):**\n", len(res.Changes))
		for i, change := range res.Changes {
			if i == maxListedPerDomain {
				fmt.Fprintf(&b, "*...and %d more.*\n", len(res.Changes)-maxListedPerDomain)
				break
			}
			line := fmt.Sprintf("`%s`: `%s`", change.Status, shortenURL(change.URL, res.Domain))
			if change.Status == "MODIFIED" {
				line += fmt.Sprintf(" (+%d / -%d)", change.Added, change.Removed)
			} else if change.Size > 0 {
				line += fmt.Sprintf(" (%s)", FormatSize(change.Size))
			}
			b.WriteString(line + "\n")
		}
	}

	if len(res.NewEndpoints) > 0 {
		fmt.Fprintf(&b, "\n**New Endpoints (%d):**\n", len(res.NewEndpoints))
		for i, ep := range res.NewEndpoints {
			if i == maxListedPerDomain {
				fmt.Fprintf(&b, "*...and %d more.*\n", len(res.NewEndpoints)-maxListedPerDomain)
				break
			}
			fmt.Fprintf(&b, "`%s`\n", ep)
		}
	}

	if len(res.RenameCandidates) > 0 {
		fmt.Fprintf(&b, "\n**Probable Renames (%d):**\n", len(res.RenameCandidates))
		for _, rename := range res.RenameCandidates {
			fmt.Fprintf(&b, "`%s` → `%s` (%.0f%%)\n",
				shortenURL(rename.Candidate, res.Domain), shortenURL(rename.URL, res.Domain), rename.Score*100)
		}
	}

	return b.String()
}

// shortenURL trims a URL down to its path portion for display.
func shortenURL(rawURL, domain string) string {
	if idx := strings.Index(rawURL, domain); idx >= 0 {
		return rawURL[idx+len(domain):]
	}
	return rawURL
}

// FormatSize converts a byte count to a human-readable string.
func FormatSize(size int) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.2f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%.2f MB", float64(size)/(1024*1024))
	}
}
