package redact_test

import (
	"strings"
	"testing"

	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/redact"
)

func TestSecrets(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		leak    string
		wantHas string
	}{
		{name: "bearer", in: "request failed: Authorization: Bearer abc.def.ghi", leak: "abc.def.ghi", wantHas: "Bearer <redacted>"},
		{name: "basic", in: "auth Basic dXNlcjpwdw== rejected", leak: "dXNlcjpwdw==", wantHas: "Basic <redacted>"},
		{name: "crunchbase query", in: "GET https://api.crunchbase.com/api/v4/autocompletes?user_key=s3cr3t&query=acme", leak: "s3cr3t", wantHas: "&query=acme"},
		{name: "gemini key", in: "GEMINI_API_KEY=xyz invalid", leak: "xyz", wantHas: "<redacted_kv>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redact.Secrets(tt.in)
			if strings.Contains(got, tt.leak) {
				t.Fatalf("secret %q leaked in %q", tt.leak, got)
			}
			if !strings.Contains(got, tt.wantHas) {
				t.Fatalf("expected %q in %q", tt.wantHas, got)
			}
		})
	}

	if got := redact.Secrets(""); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
