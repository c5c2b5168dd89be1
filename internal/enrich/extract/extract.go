// Package extract pulls one attribute's value out of one source record.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/internal/oracle"
)

const (
	Step = "extract"

	// DefaultMaxPayloadBytes bounds the record text placed in a prompt.
	DefaultMaxPayloadBytes = 16 << 10
)

const systemPrompt = "You are a helpful bot tasked with extracting information from a given text. " +
	"If the requested information isn't available return 'None'"

type Extractor struct {
	oracle          oracle.Oracle
	maxPayloadBytes int
}

type Option func(*Extractor)

// WithMaxPayloadBytes sets the truncation limit for rendered record payloads.
func WithMaxPayloadBytes(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxPayloadBytes = n
		}
	}
}

func New(o oracle.Oracle, opts ...Option) *Extractor {
	e := &Extractor{oracle: o, maxPayloadBytes: DefaultMaxPayloadBytes}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract asks the oracle for attr's value within rec. An empty or "None" reply is the absent
// outcome (Found=false), which is not an error. Oracle failures are enrich.ErrOracleUnavailable.
func (e *Extractor) Extract(ctx context.Context, attr enrich.Attribute, rec enrich.SourceRecord) (enrich.ExtractionOutcome, error) {
	outcome := enrich.ExtractionOutcome{Attribute: attr.Name, Source: rec.Source}

	payload, err := RenderPayload(rec.Payload, e.maxPayloadBytes)
	if err != nil {
		return outcome, fmt.Errorf("render %s payload: %w", rec.Source, err)
	}
	if payload == "" {
		return outcome, nil
	}

	raw, err := e.oracle.Complete(ctx, oracle.Request{
		Step:            Step,
		System:          systemPrompt,
		User:            prompt(attr, payload),
		Kind:            oracle.Text,
		Temperature:     0.7,
		MaxOutputTokens: 500,
	})
	if err != nil {
		return outcome, enrich.Unavailable(ctx, Step, err)
	}

	content, found := enrich.NormalizeAnswer(raw)
	if !found {
		return outcome, nil
	}
	outcome.Content = content
	outcome.Found = true
	outcome.Origin = rec.Origin
	return outcome, nil
}

// RenderPayload turns a record payload into prompt text: strings and raw bytes are used as-is,
// anything else is encoded as JSON. The result is cut to at most max bytes on a rune boundary.
func RenderPayload(payload any, max int) (string, error) {
	var s string
	switch p := payload.(type) {
	case nil:
		return "", nil
	case string:
		s = p
	case []byte:
		s = string(p)
	case json.RawMessage:
		s = string(p)
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return "", err
		}
		s = string(b)
	}
	s = strings.TrimSpace(s)
	if s == "null" {
		return "", nil
	}
	return truncate(s, max), nil
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func prompt(attr enrich.Attribute, payload string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I am giving you data about a company: %s\n\n", payload)
	fmt.Fprintf(&b, "Find the following piece of information: %s", attr.Name)
	if attr.Description != "" {
		fmt.Fprintf(&b, " (%s)", attr.Description)
	}
	b.WriteString(".\n")
	if len(attr.Facets) > 0 {
		fmt.Fprintf(&b, "Useful details to include: %s.\n", strings.Join(attr.Facets, ", "))
	}
	b.WriteString("If the information is not in the given data, answer with 'None' and nothing more.\n")
	b.WriteString("If you found the information, return ONLY the information as is, nothing more.")
	return b.String()
}
