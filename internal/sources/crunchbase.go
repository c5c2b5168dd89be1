package sources

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/palantir/company-dataitem-enricher/internal/catalog"
	"github.com/palantir/company-dataitem-enricher/internal/enrich"
)

const defaultCrunchbaseBaseURL = "https://api.crunchbase.com"

var crunchbaseFields = []string{
	"identifier",
	"short_description",
	"founded_on",
	"location_identifiers",
	"num_employees_enum",
	"funding_total",
	"last_funding_type",
	"investor_identifiers",
	"website_url",
	"linkedin",
}

type CrunchbaseConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Crunchbase resolves a company to an organization permalink via autocomplete, preferring the
// candidate whose LinkedIn URL matches the company's profile, then fetches the organization.
type Crunchbase struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewCrunchbase(cfg CrunchbaseConfig) *Crunchbase {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultCrunchbaseBaseURL
	}
	return &Crunchbase{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: base,
		http:    defaultHTTPClient(cfg.HTTPClient),
	}
}

func (c *Crunchbase) Source() string { return catalog.Crunchbase }

func (c *Crunchbase) Fetch(ctx context.Context, company enrich.Company) (*enrich.SourceRecord, error) {
	permalink, err := c.resolvePermalink(ctx, company)
	if err != nil || permalink == "" {
		return nil, err
	}

	q := url.Values{}
	q.Set("field_ids", strings.Join(crunchbaseFields, ","))
	var body map[string]any
	found, err := c.get(ctx, "crunchbase.getOrganization", "api/v4/entities/organizations/"+url.PathEscape(permalink), q, &body)
	if err != nil || !found {
		return nil, err
	}
	props, _ := body["properties"].(map[string]any)
	if len(props) == 0 {
		return nil, nil
	}
	return &enrich.SourceRecord{
		Payload: props,
		Origin:  "https://www.crunchbase.com/organization/" + permalink,
	}, nil
}

type autocompleteResponse struct {
	Entities []struct {
		Identifier struct {
			Permalink string `json:"permalink"`
		} `json:"identifier"`
	} `json:"entities"`
}

type linkedinFieldResponse struct {
	Properties struct {
		LinkedIn struct {
			Value string `json:"value"`
		} `json:"linkedin"`
	} `json:"properties"`
}

func (c *Crunchbase) resolvePermalink(ctx context.Context, company enrich.Company) (string, error) {
	name := strings.TrimSpace(company.Name)
	if name == "" {
		return "", nil
	}

	q := url.Values{}
	q.Set("query", name)
	q.Set("collection_ids", "organization.companies")
	var ac autocompleteResponse
	found, err := c.get(ctx, "crunchbase.autocomplete", "api/v4/autocompletes", q, &ac)
	if err != nil || !found {
		return "", err
	}

	want := CleanLinkedInURL(company.ProfileID)
	for _, e := range ac.Entities {
		permalink := strings.TrimSpace(e.Identifier.Permalink)
		if permalink == "" {
			continue
		}
		if want == "" {
			return permalink, nil
		}

		var li linkedinFieldResponse
		lq := url.Values{}
		lq.Set("field_ids", "linkedin")
		ok, err := c.get(ctx, "crunchbase.getLinkedIn", "api/v4/entities/organizations/"+url.PathEscape(permalink), lq, &li)
		if err != nil {
			return "", err
		}
		if ok && sameLinkedIn(li.Properties.LinkedIn.Value, want) {
			return permalink, nil
		}
	}
	return "", nil
}

func sameLinkedIn(a, b string) bool {
	a, b = LinkedInHandle(a), LinkedInHandle(b)
	return a != "" && strings.EqualFold(a, b)
}

func (c *Crunchbase) get(ctx context.Context, op, path string, q url.Values, v any) (bool, error) {
	u := joinURL(c.baseURL, path)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("X-cb-user-key", c.apiKey)
	return doJSON(c.http, req, op, v)
}
