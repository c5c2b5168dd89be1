package redact

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" and "Basic <credentials>" authorization values.
	authHeaderRe = regexp.MustCompile(`(?i)\b(Bearer|Basic)\s+[^\s"']+`)

	// Common key=value formats that leak in error strings and request URLs
	// (Crunchbase takes user_key as a query parameter).
	apiKeyKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|gemini[_-]?api[_-]?key|user[_-]?key|x-cb-user-key)\b\s*[:=]\s*[^\s"'&]+`)
)

// Secrets removes obvious secret-bearing substrings from error/log strings.
func Secrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = authHeaderRe.ReplaceAllString(out, "$1 <redacted>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	return strings.TrimSpace(out)
}
