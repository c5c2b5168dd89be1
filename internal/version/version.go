// Package version holds the release version reported by the CLI and the HTTP server.
package version

// Current is the release version without a "v" prefix.
const Current = "0.1.0"

// UserAgent identifies the enricher to upstream data sources.
func UserAgent() string {
	return "company-dataitem-enricher/" + Current
}
