// Package enrich holds the value objects shared by the data-item resolution pipeline:
// requested attributes, companies, fetched source records, per-source extraction outcomes
// and the reconciled answers the pipeline emits.
package enrich

import (
	"context"
	"strings"
)

// FallbackMarker is the provenance recorded for answers that did not come from a fetched
// source record. Such answers are lower confidence than source-grounded ones.
const FallbackMarker = "generative fallback"

// ValueKind classifies what shape of value an attribute normally takes.
type ValueKind string

const (
	KindLink     ValueKind = "link"
	KindMonetary ValueKind = "monetary"
	KindNumeric  ValueKind = "numeric"
	KindBoolean  ValueKind = "boolean"
	KindDate     ValueKind = "date"
	KindLocation ValueKind = "location"
	KindText     ValueKind = "text"
)

// ValueKinds lists the closed set of kinds in the order they are offered to the oracle.
func ValueKinds() []ValueKind {
	return []ValueKind{KindLink, KindMonetary, KindNumeric, KindBoolean, KindDate, KindLocation, KindText}
}

// ParseValueKind maps a free-text classification ("Geographical Location", "Financial
// figure/Monetary Value", "link") onto the closed set.
func ParseValueKind(raw string) (ValueKind, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, " .\"'`*-")
	if s == "" {
		return "", false
	}
	for _, k := range ValueKinds() {
		if s == string(k) {
			return k, true
		}
	}
	switch {
	case strings.Contains(s, "monetary"), strings.Contains(s, "financial"), strings.Contains(s, "currency"):
		return KindMonetary, true
	case strings.Contains(s, "link"), strings.Contains(s, "website"), strings.Contains(s, "url"):
		return KindLink, true
	case strings.Contains(s, "binary"), strings.Contains(s, "boolean"), strings.Contains(s, "yes or no"):
		return KindBoolean, true
	case strings.Contains(s, "date"):
		return KindDate, true
	case strings.Contains(s, "location"), strings.Contains(s, "geographic"), strings.Contains(s, "address"):
		return KindLocation, true
	case strings.Contains(s, "numer"), strings.Contains(s, "number"), strings.Contains(s, "amount"):
		return KindNumeric, true
	case strings.Contains(s, "text"), strings.Contains(s, "name"):
		return KindText, true
	}
	return "", false
}

// Attribute is one requested data item. Attributes are derived once per request and shared
// read-only by every company in it.
type Attribute struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Kind        ValueKind `json:"value_kind"`
	Facets      []string  `json:"facets"`
}

// Company is a target company resolved by an upstream discovery step.
type Company struct {
	Name string `json:"name"`
	// ProfileID identifies the company's professional-network record (typically a LinkedIn
	// company URL or handle).
	ProfileID string `json:"profile_id,omitempty"`
}

// SourceRecord is the raw data one source returned for one company.
type SourceRecord struct {
	Source  string `json:"source"`
	Payload any    `json:"payload"`
	Origin  string `json:"origin,omitempty"`
}

// RecordKey addresses a source record by company identity (name and profile id) and catalog
// source name.
type RecordKey struct {
	Company   string
	ProfileID string
	Source    string
}

func KeyFor(c Company, source string) RecordKey {
	return RecordKey{Company: c.Name, ProfileID: c.ProfileID, Source: source}
}

// RecordSource gives the reconciler access to fetched records. ok=false means the source had
// nothing for the company; err is reserved for fetch failures the caller wants surfaced.
type RecordSource interface {
	Record(ctx context.Context, company Company, source string) (rec SourceRecord, ok bool, err error)
}

// SourceRecords is a pre-fetched set of records. A missing key means absent.
type SourceRecords map[RecordKey]SourceRecord

func (s SourceRecords) Record(_ context.Context, company Company, source string) (SourceRecord, bool, error) {
	rec, ok := s[KeyFor(company, source)]
	return rec, ok, nil
}

// Put stores rec under (company, rec.Source).
func (s SourceRecords) Put(company Company, rec SourceRecord) {
	s[KeyFor(company, rec.Source)] = rec
}

// ExtractionOutcome is what one source yielded for one attribute. Found=false is the
// absent outcome, distinct from an extraction error.
type ExtractionOutcome struct {
	Attribute string
	Source    string
	Content   string
	Found     bool
	Origin    string
}

// State is a reconciler state for one (company, attribute) unit.
type State string

const (
	StatePending              State = "PENDING"
	StateSourcesExhausted     State = "SOURCES_EXHAUSTED"
	StateResolvedFromSource   State = "RESOLVED_FROM_SOURCE"
	StateResolvedFromFallback State = "RESOLVED_FROM_FALLBACK"
	StateUnresolved           State = "UNRESOLVED"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	switch s {
	case StateResolvedFromSource, StateResolvedFromFallback, StateUnresolved:
		return true
	}
	return false
}

// ResolvedAnswer is the pipeline's output for one (company, attribute) pair.
type ResolvedAnswer struct {
	Company   string `json:"company"`
	Attribute string `json:"attribute"`
	// Content is nil when neither a source nor the fallback produced a value.
	Content *string `json:"content"`
	// Provenance is the consulted source name or FallbackMarker.
	Provenance string `json:"provenance"`
	Origin     string `json:"origin,omitempty"`
	State      State  `json:"state"`
	// Error explains an UNRESOLVED answer caused by a failure rather than by absence.
	Error string `json:"error,omitempty"`
}

// Value returns the content or "" when unresolved.
func (a ResolvedAnswer) Value() string {
	if a.Content == nil {
		return ""
	}
	return *a.Content
}

// NormalizeAnswer trims an oracle reply and maps the "None" marker and empty replies to absent.
func NormalizeAnswer(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "none") {
		return "", false
	}
	return s, true
}
