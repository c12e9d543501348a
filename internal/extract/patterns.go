package extract

import (
	"regexp"

	"github.com/PentesterFlow/ScriptSentry/internal/logger"
)

// Kind determines the post-match handling for a pattern category.
type Kind int

const (
	// KindGeneric uses the matched text as the candidate directly.
	KindGeneric Kind = iota
	// KindClientCall isolates the path portion of a template or client
	// call expression before normalization.
	KindClientCall
)

// clientCallCategories are the category names whose matches carry
// template-literal or client-call path expressions.
var clientCallCategories = map[string]bool{
	"template_literal_paths": true,
	"fetch_patterns":         true,
	"axios_patterns":         true,
	"e_method_patterns":      true,
}

// KindForCategory maps a configured category name to its kind.
func KindForCategory(category string) Kind {
	if clientCallCategories[category] {
		return KindClientCall
	}
	return KindGeneric
}

// Pattern is one compiled extraction pattern.
type Pattern struct {
	Category string
	Kind     Kind
	Re       *regexp.Regexp
}

// CompilePatterns compiles the configured category → regex mapping.
// Invalid expressions are dropped with a warning; the rest proceed.
func CompilePatterns(config map[string][]string, log *logger.Logger) []Pattern {
	if log == nil {
		log = logger.Global()
	}

	var patterns []Pattern
	for category, exprs := range config {
		kind := KindForCategory(category)
		for _, expr := range exprs {
			re, err := regexp.Compile(expr)
			if err != nil {
				log.WithField("category", category).
					WithError(err).
					Warnf("Dropping invalid endpoint pattern: %s", expr)
				continue
			}
			patterns = append(patterns, Pattern{Category: category, Kind: kind, Re: re})
		}
	}

	if len(patterns) == 0 {
		log.Warn("No endpoint patterns loaded, lexical extraction disabled")
	}
	return patterns
}

// DefaultPatterns covers the common client-side request idioms.
func DefaultPatterns() map[string][]string {
	return map[string][]string{
		"fetch_patterns": {
			`fetch\s*\(\s*["'` + "`" + `](/[^"'` + "`" + `\)]*)`,
		},
		"axios_patterns": {
			`axios\.(?:get|post|put|delete|patch|head)\s*\(\s*["'` + "`" + `](/[^"'` + "`" + `\)]*)`,
		},
		"e_method_patterns": {
			`\.(?:get|post|put|delete|patch)\s*\(\s*["'` + "`" + `](/[^"'` + "`" + `\)]*)`,
		},
		"template_literal_paths": {
			"`([^`]*/[^`]*)`",
		},
		"quoted_api_paths": {
			`["'](/api/[^"']+)["']`,
			`["'](/v\d+/[^"']+)["']`,
		},
	}
}
