package monitor

import (
	"testing"

	"github.com/PentesterFlow/ScriptSentry/internal/logger"
)

func TestFilterSet_Allows(t *testing.T) {
	tests := []struct {
		name    string
		filters Filters
		url     string
		want    bool
	}{
		{
			"no filters allow everything",
			Filters{},
			"https://example.com/app.js",
			true,
		},
		{
			"include domain match",
			Filters{IncludeDomain: []string{"example.com"}},
			"https://cdn.example.com/app.js",
			true,
		},
		{
			"include domain miss",
			Filters{IncludeDomain: []string{"example.com"}},
			"https://other.net/app.js",
			false,
		},
		{
			"exclude domain match",
			Filters{ExcludeDomain: []string{"tracker."}},
			"https://tracker.ads.net/pixel.js",
			false,
		},
		{
			"include url regex",
			Filters{IncludeURL: []string{`/static/`}},
			"https://example.com/static/app.js",
			true,
		},
		{
			"include url regex miss",
			Filters{IncludeURL: []string{`/static/`}},
			"https://example.com/vendor/app.js",
			false,
		},
		{
			"exclude url regex",
			Filters{ExcludeURL: []string{`\.min\.js$`}},
			"https://example.com/app.min.js",
			false,
		},
		{
			"exclude beats include",
			Filters{IncludeDomain: []string{"example.com"}, ExcludeURL: []string{`vendor`}},
			"https://example.com/vendor/lib.js",
			false,
		},
	}

	log := logger.NewDefault()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := compileFilters(tt.filters, log)
			if got := fs.Allows(tt.url); got != tt.want {
				t.Errorf("Allows(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestCompileFilters_InvalidRegexDropped(t *testing.T) {
	fs := compileFilters(Filters{
		ExcludeURL: []string{`[broken(`, `\.min\.js$`},
	}, logger.NewDefault())

	if len(fs.excludeURL) != 1 {
		t.Fatalf("compiled exclude patterns = %d, want 1", len(fs.excludeURL))
	}
	if fs.Allows("https://example.com/app.min.js") {
		t.Error("valid pattern should still apply after dropping the invalid one")
	}
}
