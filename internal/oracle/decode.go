package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/palantir/company-dataitem-enricher/internal/enrich"
)

// Schema is a compiled JSON Schema for a structured reply. The source document is kept so model
// clients can pass the reply shape along with the request.
type Schema struct {
	s   *gojsonschema.Schema
	doc map[string]any
}

// MustSchema compiles a JSON Schema document. It panics on an invalid schema, so it is meant
// for package-level vars.
func MustSchema(doc string) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("oracle: invalid schema: %v", err))
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		panic(fmt.Sprintf("oracle: invalid schema: %v", err))
	}
	return &Schema{s: s, doc: raw}
}

// Doc returns the decoded schema document. Callers must not modify it.
func (s *Schema) Doc() map[string]any {
	if s == nil {
		return nil
	}
	return s.doc
}

// Decode parses a structured reply into v after validating it against schema. Any failure
// (no JSON object, schema violation, type mismatch) is an enrich.ErrMalformedModelResponse.
func Decode(step, raw string, schema *Schema, v any) error {
	body := StripFences(raw)
	if body == "" {
		return enrich.Malformed(step, errors.New("empty reply"))
	}
	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return enrich.Malformed(step, err)
	}
	if schema != nil {
		result, err := schema.s.Validate(gojsonschema.NewGoLoader(doc))
		if err != nil {
			return enrich.Malformed(step, err)
		}
		if !result.Valid() {
			errs := make([]string, len(result.Errors()))
			for i, desc := range result.Errors() {
				errs[i] = desc.String()
			}
			return enrich.Malformed(step, errors.New(strings.Join(errs, "; ")))
		}
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return enrich.Malformed(step, err)
	}
	return nil
}

// StripFences removes a surrounding markdown code fence (``` or ```json) and whitespace.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
