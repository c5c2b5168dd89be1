// Package catalog holds the fixed, ordered set of external data sources the pipeline knows
// about. A Catalog is built once and injected; it is never mutated afterwards.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	LinkedIn       = "linkedin_search_results"
	Crunchbase     = "crunchbase_search_results"
	CompaniesHouse = "cp_house_search_results"
)

// Source is one catalog entry: a stable key and a one-sentence capability blurb used for
// relevance classification.
type Source struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// Catalog is an ordered, read-only set of sources. Order is the precedence order used when
// reconciling extraction outcomes.
type Catalog struct {
	sources []Source
	index   map[string]int
}

// New validates and builds a catalog. Names must be non-empty and unique.
func New(sources ...Source) (*Catalog, error) {
	c := &Catalog{
		sources: make([]Source, 0, len(sources)),
		index:   make(map[string]int, len(sources)),
	}
	for i, s := range sources {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, fmt.Errorf("catalog source %d: name is required", i)
		}
		if _, dup := c.index[name]; dup {
			return nil, fmt.Errorf("catalog source %q: duplicate name", name)
		}
		c.index[name] = len(c.sources)
		c.sources = append(c.sources, Source{Name: name, Description: strings.TrimSpace(s.Description)})
	}
	if len(c.sources) == 0 {
		return nil, fmt.Errorf("catalog must contain at least one source")
	}
	return c, nil
}

// Default returns the built-in catalog: LinkedIn, Crunchbase, Companies House.
func Default() *Catalog {
	c, err := New(
		Source{
			Name:        LinkedIn,
			Description: "Contains information of a company in LinkedIn. So we can extract a description and very basic general information like the name and location.",
		},
		Source{
			Name:        Crunchbase,
			Description: "Contains information of a company in Crunchbase, it's mainly useful for searching financial information on a company like investment rounds.",
		},
		Source{
			Name:        CompaniesHouse,
			Description: "Contains information of a company in Companies House, it's only useful for searching: Company Name, Registered Office Address, Company Type, Directors and People with Significant Control, Annual accounts.",
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}

type fileFormat struct {
	Sources []Source `yaml:"sources"`
}

// Load reads a YAML catalog:
//
//	sources:
//	  - name: linkedin_search_results
//	    description: Contains information of a company in LinkedIn...
func Load(r io.Reader) (*Catalog, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var raw fileFormat
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog YAML: %w", err)
	}
	return New(raw.Sources...)
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Load(f)
}

// Sources returns a copy of the entries in catalog order.
func (c *Catalog) Sources() []Source {
	out := make([]Source, len(c.sources))
	copy(out, c.sources)
	return out
}

// Names returns the source keys in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.sources))
	for i, s := range c.sources {
		out[i] = s.Name
	}
	return out
}

func (c *Catalog) Len() int {
	return len(c.sources)
}

func (c *Catalog) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Filter keeps the names present in the catalog, deduplicated and re-ordered into catalog
// order. Unknown names are dropped.
func (c *Catalog) Filter(names []string) []string {
	keep := make([]bool, len(c.sources))
	for _, n := range names {
		if i, ok := c.index[strings.TrimSpace(n)]; ok {
			keep[i] = true
		}
	}
	out := make([]string, 0, len(names))
	for i, k := range keep {
		if k {
			out = append(out, c.sources[i].Name)
		}
	}
	return out
}

// Describe renders the catalog as an indented JSON object (name -> description) for prompts.
func (c *Catalog) Describe() string {
	m := make(map[string]string, len(c.sources))
	for _, s := range c.sources {
		m[s.Name] = s.Description
	}
	b, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
