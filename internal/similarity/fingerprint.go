package similarity

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/PentesterFlow/ScriptSentry/internal/jsast"
)

// Fingerprint is the persisted structural summary of one asset,
// created when the asset is first seen and never updated after.
type Fingerprint struct {
	URL                string   `json:"url"`
	FunctionSignatures []string `json:"function_signatures"`
	ImportExports      []string `json:"import_exports"`
	ContentHash        string   `json:"content_hash"`
	CodeLength         int      `json:"code_length"`
}

var funcPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bfunction\s+([a-zA-Z_$][a-zA-Z0-9_$]*)\s*\(`),
	regexp.MustCompile(`\b(?:const|let|var)\s+([a-zA-Z_$][a-zA-Z0-9_$]*)\s*=\s*function`),
	regexp.MustCompile(`\b(?:const|let|var)\s+([a-zA-Z_$][a-zA-Z0-9_$]*)\s*=\s*\([^)]*\)\s*=>`),
	regexp.MustCompile(`([a-zA-Z_$][a-zA-Z0-9_$]*)\s*:\s*function\s*\(`),
	regexp.MustCompile(`([a-zA-Z_$][a-zA-Z0-9_$]*)\s*\([^)]*\)\s*\{`),
}

var importPatterns = []*regexp.Regexp{
	regexp.MustCompile(`import\s+.*?from\s+["']([^"']+)["']`),
	regexp.MustCompile(`export\s+.*?from\s+["']([^"']+)["']`),
	regexp.MustCompile(`require\s*\(\s*["']([^"']+)["']\s*\)`),
}

// NewFingerprint builds a fingerprint from an asset's normalized text.
// Tree-based feature extraction is tried first; when it yields zero
// features of both kinds, lexical patterns take over.
func NewFingerprint(url, code string) *Fingerprint {
	funcs, imports := jsast.Features([]byte(code))
	if len(funcs) == 0 && len(imports) == 0 {
		funcs, imports = lexicalFeatures(code)
	}

	prefixed := make([]string, 0, len(imports))
	for _, target := range imports {
		prefixed = append(prefixed, "source:"+target)
	}

	funcs = dedupeSorted(funcs)
	prefixed = dedupeSorted(prefixed)

	return &Fingerprint{
		URL:                url,
		FunctionSignatures: funcs,
		ImportExports:      prefixed,
		ContentHash:        whitespaceFreeHash(code),
		CodeLength:         len(code),
	}
}

// lexicalFeatures extracts the same two feature kinds with regular
// expressions when the tree yields nothing.
func lexicalFeatures(code string) (funcs []string, imports []string) {
	for _, re := range funcPatterns {
		for _, m := range re.FindAllStringSubmatch(code, -1) {
			funcs = append(funcs, m[1])
		}
	}
	for _, re := range importPatterns {
		for _, m := range re.FindAllStringSubmatch(code, -1) {
			imports = append(imports, m[1])
		}
	}
	return funcs, imports
}

// whitespaceFreeHash hashes the text with all whitespace removed so
// formatting changes do not affect identity.
func whitespaceFreeHash(code string) string {
	stripped := strings.Join(strings.Fields(code), "")
	sum := sha256.Sum256([]byte(stripped))
	return hex.EncodeToString(sum[:])
}

func dedupeSorted(items []string) []string {
	if len(items) == 0 {
		return []string{}
	}
	sort.Strings(items)
	out := items[:1]
	for _, item := range items[1:] {
		if item != out[len(out)-1] {
			out = append(out, item)
		}
	}
	return out
}
