package sources

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/palantir/company-dataitem-enricher/internal/catalog"
	"github.com/palantir/company-dataitem-enricher/internal/enrich"
)

const defaultCompaniesHouseBaseURL = "https://api.company-information.service.gov.uk"

type CompaniesHouseConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// CompaniesHouse searches the UK register by cleaned company name and fetches the best hit's
// company profile.
type CompaniesHouse struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewCompaniesHouse(cfg CompaniesHouseConfig) *CompaniesHouse {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultCompaniesHouseBaseURL
	}
	return &CompaniesHouse{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: base,
		http:    defaultHTTPClient(cfg.HTTPClient),
	}
}

func (c *CompaniesHouse) Source() string { return catalog.CompaniesHouse }

type companySearchResponse struct {
	Items []struct {
		CompanyNumber string `json:"company_number"`
		Title         string `json:"title"`
	} `json:"items"`
}

func (c *CompaniesHouse) Fetch(ctx context.Context, company enrich.Company) (*enrich.SourceRecord, error) {
	name := CleanCompanyName(company.Name)
	if name == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("q", name)
	q.Set("items_per_page", "5")
	var search companySearchResponse
	found, err := c.get(ctx, "companieshouse.search", "search/companies?"+q.Encode(), &search)
	if err != nil || !found || len(search.Items) == 0 {
		return nil, err
	}

	number := search.Items[0].CompanyNumber
	for _, item := range search.Items {
		if strings.EqualFold(CleanCompanyName(item.Title), name) {
			number = item.CompanyNumber
			break
		}
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, nil
	}

	var profile map[string]any
	found, err = c.get(ctx, "companieshouse.getCompany", "company/"+url.PathEscape(number), &profile)
	if err != nil || !found || len(profile) == 0 {
		return nil, err
	}
	return &enrich.SourceRecord{
		Payload: profile,
		Origin:  "https://find-and-update.company-information.service.gov.uk/company/" + number,
	}, nil
}

func (c *CompaniesHouse) get(ctx context.Context, op, pathAndQuery string, v any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, joinURL(c.baseURL, pathAndQuery), nil)
	if err != nil {
		return false, err
	}
	// The API key is the basic-auth username with an empty password.
	req.SetBasicAuth(c.apiKey, "")
	return doJSON(c.http, req, op, v)
}
