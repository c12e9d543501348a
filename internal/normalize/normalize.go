// Package normalize reformats JavaScript source into a stable line-oriented
// form so that diffs between asset versions stay readable.
package normalize

import (
	"strings"

	"github.com/ditashi/jsbeautifier-go/jsbeautifier"

	"github.com/PentesterFlow/ScriptSentry/internal/logger"
)

// Normalizer reformats raw JavaScript text.
type Normalizer struct {
	options map[string]interface{}
	log     *logger.Logger
}

// New creates a Normalizer with default beautifier options.
func New(log *logger.Logger) *Normalizer {
	if log == nil {
		log = logger.Global()
	}
	return &Normalizer{
		options: jsbeautifier.DefaultOptions(),
		log:     log.WithComponent("normalize"),
	}
}

// Normalize reformats src. On any reformatting failure the raw text is
// returned unchanged so downstream hashing and diffing still operate on
// something deterministic.
func (n *Normalizer) Normalize(url, src string) string {
	out, ok := n.beautify(src)
	if !ok {
		n.log.WithURL(url).Warn("reformatting failed, keeping raw text")
		return src
	}
	return out
}

// beautify runs the beautifier, converting panics into a failed result.
// The port throws on some minified inputs rather than returning an error.
func (n *Normalizer) beautify(src string) (result string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			result = ""
			ok = false
		}
	}()

	code := src
	result, _ = jsbeautifier.Beautify(&code, n.options)
	if strings.TrimSpace(result) == "" && strings.TrimSpace(src) != "" {
		return "", false
	}
	return result, true
}
