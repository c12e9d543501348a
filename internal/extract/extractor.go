// Package extract mines candidate API endpoint strings out of script
// source text using configured lexical patterns, syntax-tree literal
// harvesting, and URL mining, then reconciles them against a domain's
// accumulated endpoint set.
package extract

import (
	"encoding/json"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/BishopFox/jsluice"

	"github.com/PentesterFlow/ScriptSentry/internal/errors"
	"github.com/PentesterFlow/ScriptSentry/internal/jsast"
	"github.com/PentesterFlow/ScriptSentry/internal/logger"
)

// Set is a collection of distinct normalized endpoints.
type Set map[string]struct{}

// NewSet creates an empty endpoint set.
func NewSet() Set {
	return make(Set)
}

// Add inserts an endpoint.
func (s Set) Add(endpoint string) {
	s[endpoint] = struct{}{}
}

// Has reports membership.
func (s Set) Has(endpoint string) bool {
	_, ok := s[endpoint]
	return ok
}

// Union merges other into s.
func (s Set) Union(other Set) {
	for e := range other {
		s[e] = struct{}{}
	}
}

// Sorted returns the endpoints in lexicographic order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for e := range s {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Extractor mines endpoints from normalized script text.
type Extractor struct {
	patterns []Pattern
	log      *logger.Logger
}

// New creates an Extractor from a category → regex configuration. A
// nil or empty configuration is legal; tree harvesting still runs.
func New(config map[string][]string, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.Global()
	}
	log = log.WithComponent("extract")

	patterns := CompilePatterns(config, log)
	if len(patterns) > 0 {
		log.Debugf("Compiled %d endpoint patterns", len(patterns))
	}

	return &Extractor{patterns: patterns, log: log}
}

// ExtractFromFile reads a normalized asset file and extracts endpoints.
// A missing file yields an empty set with a warning, not an error.
func (e *Extractor) ExtractFromFile(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			e.log.Warnf("Normalized file missing for extraction: %s", path)
			return NewSet(), nil
		}
		return nil, errors.NewStoreError(path, "read_normalized", err)
	}
	return e.Extract(string(data)), nil
}

// Extract runs all extraction passes over one asset's source text.
func (e *Extractor) Extract(code string) Set {
	found := NewSet()
	e.extractLexical(code, found)
	e.extractTree(code, found)
	e.extractURLs(code, found)
	return found
}

// concatTailRe matches the source immediately after a captured path
// when the string literal continues into a concatenation, as in
// "/api/v1/users/" + id.
var concatTailRe = regexp.MustCompile(`^["'` + "`" + `]\s*\+`)

// extractLexical applies every configured pattern. Patterns with a
// capture group contribute the last group; others the whole match.
// Client-call categories get path isolation before normalization, and
// a concatenated variable tail becomes a {var} placeholder.
func (e *Extractor) extractLexical(code string, found Set) {
	for _, p := range e.patterns {
		for _, idx := range p.Re.FindAllStringSubmatchIndex(code, -1) {
			start, end := idx[0], idx[1]
			if len(idx) > 2 && idx[len(idx)-2] >= 0 {
				start, end = idx[len(idx)-2], idx[len(idx)-1]
			}
			candidate := code[start:end]

			if p.Kind == KindClientCall {
				candidate = ExtractTemplatePath(candidate)
			}
			if concatTailRe.MatchString(code[end:]) {
				candidate += "{var}"
			}

			normalized := NormalizeEndpoint(candidate)
			if IsCleanEndpoint(normalized) {
				found.Add(normalized)
			}
		}
	}
}

// extractTree harvests string literals and template static chunks from
// the syntax tree. Parse failure skips this pass entirely.
func (e *Extractor) extractTree(code string, found Set) {
	src := []byte(code)

	for _, literal := range jsast.Literals(src) {
		normalized := NormalizeEndpoint(literal)
		if IsCleanEndpoint(normalized) {
			found.Add(normalized)
		}
	}
	for _, chunk := range jsast.TemplateChunks(src) {
		normalized := NormalizeEndpoint(chunk)
		if IsCleanEndpoint(normalized) {
			found.Add(normalized)
		}
	}
}

// extractURLs mines request-shaped URLs from the source and keeps the
// path-only ones. The miner marks dynamic URL segments with an EXPR
// token, which maps to the {var} placeholder.
func (e *Extractor) extractURLs(code string, found Set) {
	analyzer := jsluice.NewAnalyzer([]byte(code))
	for _, match := range analyzer.GetURLs() {
		if !strings.HasPrefix(match.URL, "/") {
			continue
		}
		normalized := NormalizeEndpoint(strings.ReplaceAll(match.URL, "EXPR", "{var}"))
		if IsCleanEndpoint(normalized) {
			found.Add(normalized)
		}
	}
}

// Reconcile compares a domain's unioned extracted set against its
// persisted endpoint file and returns the sorted new-only list. The
// accumulated union is re-persisted whenever the extracted set is
// non-empty. A corrupt or missing file is treated as empty.
func (e *Extractor) Reconcile(endpointFile string, extracted Set) ([]string, error) {
	existing := NewSet()
	if data, err := os.ReadFile(endpointFile); err == nil {
		var stored []string
		if err := json.Unmarshal(data, &stored); err != nil {
			e.log.Warnf("Corrupt endpoint file, starting empty: %s", endpointFile)
		} else {
			for _, ep := range stored {
				existing.Add(ep)
			}
		}
	}

	var newOnly []string
	for ep := range extracted {
		if !existing.Has(ep) {
			newOnly = append(newOnly, ep)
		}
	}
	sort.Strings(newOnly)

	if len(extracted) > 0 {
		combined := NewSet()
		combined.Union(existing)
		combined.Union(extracted)

		data, err := json.MarshalIndent(combined.Sorted(), "", "    ")
		if err != nil {
			return newOnly, errors.NewStoreError(endpointFile, "save_endpoints", err)
		}
		if err := os.WriteFile(endpointFile, data, 0o644); err != nil {
			return newOnly, errors.NewStoreError(endpointFile, "save_endpoints", err)
		}
	}

	return newOnly, nil
}
