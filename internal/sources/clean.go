package sources

import (
	"regexp"
	"strings"
)

var parenthesesRe = regexp.MustCompile(`\(.*?\)`)

// CleanLinkedInURL normalizes a LinkedIn company URL: a trailing "/jobs" page is dropped, the
// path is cut to scheme://host/company/<handle>, and any query string is removed.
func CleanLinkedInURL(raw string) string {
	u := strings.TrimSpace(raw)
	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, "/jobs")
	parts := strings.Split(u, "/")
	if len(parts) > 5 {
		parts = parts[:5]
	}
	u = strings.Join(parts, "/")
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	return u
}

// LinkedInHandle returns the company handle from a profile id, which may be a full URL or the
// bare handle.
func LinkedInHandle(profileID string) string {
	u := CleanLinkedInURL(profileID)
	u = strings.TrimSuffix(u, "/")
	if i := strings.LastIndexByte(u, '/'); i >= 0 {
		u = u[i+1:]
	}
	return strings.TrimSpace(u)
}

var unwantedNameWords = map[string]struct{}{
	"uk":  {},
	"plc": {},
}

// CleanCompanyName drops parenthesized asides and the words "UK" and "PLC" so the name works
// as a registry search term.
func CleanCompanyName(name string) string {
	name = parenthesesRe.ReplaceAllString(name, "")
	words := strings.Fields(name)
	kept := words[:0]
	for _, w := range words {
		if _, drop := unwantedNameWords[strings.ToLower(w)]; drop {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}
