package sources

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/palantir/company-dataitem-enricher/internal/catalog"
	"github.com/palantir/company-dataitem-enricher/internal/enrich"
)

const defaultLinkedInBaseURL = "https://api.linkedin.com"

type LinkedInConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// LinkedIn fetches company records from the LinkedIn companies API. The company handle comes
// from Company.ProfileID; companies without one are absent.
type LinkedIn struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewLinkedIn(cfg LinkedInConfig) *LinkedIn {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultLinkedInBaseURL
	}
	return &LinkedIn{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: base,
		http:    defaultHTTPClient(cfg.HTTPClient),
	}
}

func (l *LinkedIn) Source() string { return catalog.LinkedIn }

func (l *LinkedIn) Fetch(ctx context.Context, company enrich.Company) (*enrich.SourceRecord, error) {
	handle := LinkedInHandle(company.ProfileID)
	if handle == "" {
		return nil, nil
	}

	u := joinURL(l.baseURL, "v2/companies/"+url.PathEscape(handle))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	var body map[string]any
	found, err := doJSON(l.http, req, "linkedin.getCompany", &body)
	if err != nil || !found {
		return nil, err
	}
	// The API answers unknown handles with an error document rather than a 404.
	if _, isErr := body["error"]; isErr || len(body) == 0 {
		return nil, nil
	}

	origin := CleanLinkedInURL(company.ProfileID)
	if !strings.Contains(origin, "://") {
		origin = "https://www.linkedin.com/company/" + handle
	}
	return &enrich.SourceRecord{Payload: body, Origin: origin}, nil
}
