package util

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens). Search backends echo the
	// Authorization header back in some error bodies.
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Common key=value formats that sometimes leak in error strings.
	apiKeyKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|gemini[_-]?api[_-]?key|jina[_-]?api[_-]?key|x-goog-api-key)\b\s*[:=]\s*[^\s"'&]+`)

	// Gemini REST errors include the request URL with ?key=<secret>.
	urlKeyParamRe = regexp.MustCompile(`([?&]key=)[^\s"'&]+`)
)

// RedactSecrets removes obvious secret-bearing substrings from error/log strings.
//
// It is safe to call on any message, including raw model output and upstream
// error strings that end up in the notes column.
func RedactSecrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	out = urlKeyParamRe.ReplaceAllString(out, "${1}<redacted>")
	return strings.TrimSpace(out)
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
