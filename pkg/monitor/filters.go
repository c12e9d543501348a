package monitor

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PentesterFlow/ScriptSentry/internal/logger"
)

// filterSet is the compiled form of Filters, built once per Monitor.
type filterSet struct {
	includeDomain []string
	excludeDomain []string
	includeURL    []*regexp.Regexp
	excludeURL    []*regexp.Regexp
}

// compileFilters compiles the URL regexes, dropping invalid ones with a
// warning the same way invalid endpoint patterns are dropped.
func compileFilters(f Filters, log *logger.Logger) *filterSet {
	fs := &filterSet{
		includeDomain: f.IncludeDomain,
		excludeDomain: f.ExcludeDomain,
	}

	compile := func(exprs []string) []*regexp.Regexp {
		var out []*regexp.Regexp
		for _, expr := range exprs {
			re, err := regexp.Compile(expr)
			if err != nil {
				log.WithError(err).Warnf("Dropping invalid URL filter: %s", expr)
				continue
			}
			out = append(out, re)
		}
		return out
	}

	fs.includeURL = compile(f.IncludeURL)
	fs.excludeURL = compile(f.ExcludeURL)
	return fs
}

// Allows reports whether a discovered script URL passes the filters.
func (fs *filterSet) Allows(scriptURL string) bool {
	parsed, err := url.Parse(scriptURL)
	if err != nil {
		return false
	}
	domain := parsed.Host

	if len(fs.includeDomain) > 0 && !anyContains(domain, fs.includeDomain) {
		return false
	}
	if anyContains(domain, fs.excludeDomain) {
		return false
	}

	if len(fs.includeURL) > 0 && !anyMatches(scriptURL, fs.includeURL) {
		return false
	}
	if anyMatches(scriptURL, fs.excludeURL) {
		return false
	}

	return true
}

func anyContains(s string, substrings []string) bool {
	for _, sub := range substrings {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func anyMatches(s string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
