package monitor

import (
	"sort"
	"time"

	"github.com/PentesterFlow/ScriptSentry/internal/notify"
)

// ScanResult is the outcome of one full scan cycle across all targets.
type ScanResult struct {
	// Per-domain aggregated results, keyed by domain.
	Domains map[string]*notify.DomainResult

	// Target-level failures (page load errors and the like).
	TargetErrors []string

	// Number of targets attempted.
	TargetsScanned int

	// Wall-clock duration of the cycle.
	Duration time.Duration
}

// TotalChanges counts asset changes across all domains.
func (r *ScanResult) TotalChanges() int {
	total := 0
	for _, res := range r.Domains {
		total += len(res.Changes)
	}
	return total
}

// TotalNewEndpoints counts new endpoints across all domains.
func (r *ScanResult) TotalNewEndpoints() int {
	total := 0
	for _, res := range r.Domains {
		total += len(res.NewEndpoints)
	}
	return total
}

// TotalErrors counts per-asset errors across all domains plus
// target-level failures.
func (r *ScanResult) TotalErrors() int {
	total := len(r.TargetErrors)
	for _, res := range r.Domains {
		total += len(res.Errors)
	}
	return total
}

// domainResults flattens the map into a deterministic slice for
// notification and journaling.
func (r *ScanResult) domainResults() []notify.DomainResult {
	out := make([]notify.DomainResult, 0, len(r.Domains))
	for _, res := range r.Domains {
		out = append(out, *res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}
