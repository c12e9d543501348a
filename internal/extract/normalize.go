package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	ternaryInterpRe = regexp.MustCompile(`\$\{[^}]+\?[^}]+:[^}]+\}`)
	interpRe        = regexp.MustCompile(`\$\{[^}]+\}`)
	pathParamRe     = regexp.MustCompile(`:\w+`)
	memberAccessRe  = regexp.MustCompile(`\b[a-z]\.\w+`)

	htmlTagRe      = regexp.MustCompile(`(?i)/[a-z0-9]+>`)
	regexLiteralRe = regexp.MustCompile(`/[gimsuvy,);]*$`)
	extensionRe    = regexp.MustCompile(`(?i)\.(js|css|html|png|jpg|jpeg|gif|svg|woff|ttf|pdf|heic)$`)
	meaningfulRe   = regexp.MustCompile(`[a-zA-Z0-9_-]`)
)

// NormalizeEndpoint collapses variable parts of a candidate path into
// placeholder tokens. Applied in order: ternary interpolations, plain
// interpolations, :name path parameters, single-letter-receiver member
// access. Idempotent for already-normalized endpoints.
func NormalizeEndpoint(endpoint string) string {
	endpoint = ternaryInterpRe.ReplaceAllString(endpoint, "{var}")
	endpoint = interpRe.ReplaceAllString(endpoint, "{var}")
	endpoint = pathParamRe.ReplaceAllString(endpoint, "{param}")
	endpoint = memberAccessRe.ReplaceAllString(endpoint, "{var}")
	return endpoint
}

const disallowedChars = " <>|*%()+;,!@#$"

// IsCleanEndpoint reports whether a normalized candidate looks like an
// API path rather than markup, a regex literal, or asset noise.
func IsCleanEndpoint(endpoint string) bool {
	if !strings.HasPrefix(endpoint, "/") {
		return false
	}
	if len(endpoint) < 2 {
		return false
	}
	if htmlTagRe.MatchString(endpoint) {
		return false
	}
	if strings.HasPrefix(endpoint, "//") {
		return false
	}

	// A trailing regex-flag shape marks a regex literal, unless the
	// endpoint ends with / (a route) or the shape is the whole string
	// (a bare single-segment path like /v).
	if !strings.HasSuffix(endpoint, "/") {
		if loc := regexLiteralRe.FindStringIndex(endpoint); loc != nil {
			if !(loc[0] == 0 && loc[1] == len(endpoint)) {
				return false
			}
		}
	}

	if strings.ContainsAny(endpoint, `\[]`) {
		return false
	}
	if strings.Contains(endpoint, "?:") ||
		strings.Contains(endpoint, "?=") ||
		strings.Contains(endpoint, "?!") {
		return false
	}
	if extensionRe.MatchString(endpoint) {
		return false
	}
	if strings.ContainsAny(endpoint, disallowedChars) {
		return false
	}
	if !meaningfulRe.MatchString(endpoint) {
		return false
	}

	// Single-segment single-character paths must be a letter:
	// /v and /me pass, /9 and /- do not.
	if strings.Count(endpoint, "/") == 1 {
		content := endpoint[1:]
		if len(content) == 1 {
			r := rune(content[0])
			if !unicode.IsLetter(r) {
				return false
			}
		}
	}

	return true
}

// ExtractTemplatePath isolates the literal path portion of a template
// or client-call expression: from the first / up to the first unescaped
// quote, backtick, or whitespace, keeping embedded ${ … } blocks intact
// even when they contain quotes or nested braces.
func ExtractTemplatePath(endpoint string) string {
	start := strings.IndexByte(endpoint, '/')
	if start == -1 {
		return endpoint
	}

	var out strings.Builder
	inExpr := false
	depth := 0

	for i := start; i < len(endpoint); i++ {
		c := endpoint[i]

		switch {
		case c == '$' && i+1 < len(endpoint) && endpoint[i+1] == '{':
			inExpr = true
			depth = 1
			out.WriteByte(c)
			i++
			out.WriteByte(endpoint[i])
		case inExpr:
			out.WriteByte(c)
			if c == '{' {
				depth++
			} else if c == '}' {
				depth--
				if depth == 0 {
					inExpr = false
				}
			}
		case c == '`', c == '"', c == '\'':
			return out.String()
		case c == ' ', c == '\n', c == '\r', c == '\t':
			return out.String()
		default:
			out.WriteByte(c)
		}
	}

	return out.String()
}
