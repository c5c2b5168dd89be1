// Package derive turns a free-text query into the attributes the pipeline resolves for every
// company in the request.
package derive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/internal/oracle"
)

const (
	StepItems       = "derive.items"
	StepDescription = "derive.description"
	StepKind        = "derive.kind"
	StepFacets      = "derive.facets"

	defaultMaxFacets = 3
)

const systemAnalyst = "You are a professional analyst"

var itemsSchema = oracle.MustSchema(`{
	"type": "object",
	"required": ["data_items"],
	"properties": {
		"data_items": {"type": "array", "items": {"type": "string"}}
	}
}`)

var facetsSchema = oracle.MustSchema(`{
	"type": "object",
	"required": ["key_information"],
	"properties": {
		"key_information": {"type": ["array", "string"], "items": {"type": "string"}}
	}
}`)

// Failure records an attribute name whose description, kind or facets could not be derived.
type Failure struct {
	Name string
	Err  error
}

// Derivation is the outcome of one Derive call. Attributes keep the order the oracle listed
// the names in; Failures lists the names that were dropped.
type Derivation struct {
	Attributes []enrich.Attribute
	Failures   []Failure
}

type Deriver struct {
	oracle    oracle.Oracle
	logger    *zap.Logger
	maxFacets int
}

type Option func(*Deriver)

func WithLogger(l *zap.Logger) Option {
	return func(d *Deriver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMaxFacets caps the number of facets kept per attribute (default 3).
func WithMaxFacets(n int) Option {
	return func(d *Deriver) {
		if n > 0 {
			d.maxFacets = n
		}
	}
}

func New(o oracle.Oracle, opts ...Option) *Deriver {
	d := &Deriver{oracle: o, logger: zap.NewNop(), maxFacets: defaultMaxFacets}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Derive asks for the attribute names implied by query, then derives a description, a value
// kind and facets for each name. A reply to the first step that is not a list of names fails
// the whole call with enrich.ErrMalformedModelResponse. Per-attribute failures only drop that
// attribute and are reported in Derivation.Failures. Duplicate names are kept.
func (d *Deriver) Derive(ctx context.Context, query string) (Derivation, error) {
	names, err := d.names(ctx, query)
	if err != nil {
		return Derivation{}, err
	}

	out := Derivation{Attributes: make([]enrich.Attribute, 0, len(names))}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		attr, err := d.deriveOne(ctx, name)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			d.logger.Warn("attribute derivation failed", zap.String("attribute", name), zap.Error(err))
			out.Failures = append(out.Failures, Failure{Name: name, Err: err})
			continue
		}
		out.Attributes = append(out.Attributes, attr)
	}
	d.logger.Info("attributes derived",
		zap.Int("requested", len(names)),
		zap.Int("derived", len(out.Attributes)),
		zap.Int("failed", len(out.Failures)),
	)
	return out, nil
}

func (d *Deriver) names(ctx context.Context, query string) ([]string, error) {
	raw, err := d.oracle.Complete(ctx, oracle.Request{
		Step:            StepItems,
		System:          systemAnalyst,
		User:            itemsPrompt(query),
		Kind:            oracle.Structured,
		Schema:          itemsSchema,
		Temperature:     0.1,
		MaxOutputTokens: 500,
	})
	if err != nil {
		return nil, enrich.Unavailable(ctx, StepItems, err)
	}

	var reply struct {
		DataItems []string `json:"data_items"`
	}
	if err := oracle.Decode(StepItems, raw, itemsSchema, &reply); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(reply.DataItems))
	for _, n := range reply.DataItems {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		names = append(names, n)
	}
	return names, nil
}

func (d *Deriver) deriveOne(ctx context.Context, name string) (enrich.Attribute, error) {
	description, err := d.description(ctx, name)
	if err != nil {
		return enrich.Attribute{}, err
	}
	kind, err := d.kind(ctx, name, description)
	if err != nil {
		return enrich.Attribute{}, err
	}
	facets, err := d.facets(ctx, name)
	if err != nil {
		return enrich.Attribute{}, err
	}
	return enrich.Attribute{
		Name:        name,
		Description: description,
		Kind:        kind,
		Facets:      facets,
	}, nil
}

func (d *Deriver) description(ctx context.Context, name string) (string, error) {
	raw, err := d.oracle.Complete(ctx, oracle.Request{
		Step:            StepDescription,
		System:          systemAnalyst,
		User:            descriptionPrompt(name),
		Kind:            oracle.Text,
		Temperature:     0.7,
		MaxOutputTokens: 150,
	})
	if err != nil {
		return "", enrich.Unavailable(ctx, StepDescription, err)
	}
	description := strings.TrimSpace(raw)
	if description == "" {
		return "", enrich.Malformed(StepDescription, errors.New("empty description"))
	}
	return description, nil
}

func (d *Deriver) kind(ctx context.Context, name, description string) (enrich.ValueKind, error) {
	raw, err := d.oracle.Complete(ctx, oracle.Request{
		Step:            StepKind,
		System:          systemAnalyst,
		User:            kindPrompt(name, description),
		Kind:            oracle.Text,
		Temperature:     0.1,
		MaxOutputTokens: 150,
	})
	if err != nil {
		return "", enrich.Unavailable(ctx, StepKind, err)
	}
	kind, ok := enrich.ParseValueKind(raw)
	if !ok {
		return "", enrich.Malformed(StepKind, fmt.Errorf("unrecognized value kind %q", strings.TrimSpace(raw)))
	}
	return kind, nil
}

func (d *Deriver) facets(ctx context.Context, name string) ([]string, error) {
	raw, err := d.oracle.Complete(ctx, oracle.Request{
		Step:            StepFacets,
		System:          systemAnalyst,
		User:            facetsPrompt(name),
		Kind:            oracle.Structured,
		Schema:          facetsSchema,
		Temperature:     0.1,
		MaxOutputTokens: 300,
	})
	if err != nil {
		return nil, enrich.Unavailable(ctx, StepFacets, err)
	}

	var reply struct {
		KeyInformation json.RawMessage `json:"key_information"`
	}
	if err := oracle.Decode(StepFacets, raw, facetsSchema, &reply); err != nil {
		return nil, err
	}

	var items []string
	if err := json.Unmarshal(reply.KeyInformation, &items); err != nil {
		var joined string
		if err := json.Unmarshal(reply.KeyInformation, &joined); err != nil {
			return nil, enrich.Malformed(StepFacets, err)
		}
		items = strings.Split(joined, ",")
	}

	facets := make([]string, 0, d.maxFacets)
	for _, f := range items {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		facets = append(facets, f)
		if len(facets) == d.maxFacets {
			break
		}
	}
	return facets, nil
}
