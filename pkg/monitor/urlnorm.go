package monitor

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Matches mangled protocol prefixes: htps://, htttp://, ttps://, and
// the colon-less http// form.
var protocolTypoRe = regexp.MustCompile(`(?i)^(ht+tps?|ttps?)(?::/*|//+)`)

// NormalizeTargetURL repairs and canonicalizes a user-supplied target:
// protocol typos like "htttps://" are fixed, a missing scheme is
// inferred (http for IPs, localhost, and .local hosts, https otherwise),
// and fragments plus trailing slashes are stripped. An unusable input
// returns the empty string.
func NormalizeTargetURL(raw string) string {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if raw == "" {
		return ""
	}

	if m := protocolTypoRe.FindString(raw); m != "" {
		scheme := "http://"
		if strings.Contains(strings.ToLower(m), "s") {
			scheme = "https://"
		}
		raw = scheme + raw[len(m):]
	}

	parsed, err := url.Parse(raw)

	// Bare "host:port" inputs either fail to parse or come back with
	// the host mistaken for a scheme, so both cases get one inferred.
	if err != nil || parsed.Scheme != "http" && parsed.Scheme != "https" {
		host := strings.Split(raw, "/")[0]
		hostname := strings.Split(host, ":")[0]

		scheme := "https"
		if net.ParseIP(hostname) != nil ||
			strings.HasPrefix(hostname, "localhost") ||
			strings.HasSuffix(hostname, ".local") {
			scheme = "http"
		}

		raw = scheme + "://" + raw
		parsed, err = url.Parse(raw)
		if err != nil {
			return ""
		}
	}

	if parsed.Host == "" {
		return ""
	}

	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/")
}
