package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/redact"
	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/schema"
)

// Row is the stable output schema contract: one row per (company, attribute) answer.
type Row struct {
	Company    string  `json:"company"`
	Attribute  string  `json:"attribute"`
	Content    *string `json:"content"`
	Provenance string  `json:"provenance"`
	Origin     string  `json:"origin"`
	State      string  `json:"state"`
	Error      string  `json:"error"`
}

// Contract describes the answer dataset. Content is the only nullable column.
func Contract() schema.DatasetContract {
	return schema.DatasetContract{
		Mode: schema.DatasetModeBatch,
		Fields: []schema.Field{
			{Name: "company", Type: "string"},
			{Name: "attribute", Type: "string"},
			{Name: "content", Type: "string", Nullable: true},
			{Name: "provenance", Type: "string"},
			{Name: "origin", Type: "string"},
			{Name: "state", Type: "string"},
			{Name: "error", Type: "string"},
		},
	}
}

// Header returns the stable CSV header for Row.
func Header() []string {
	return Contract().Names()
}

// Rows converts answers into output rows, preserving order. Error strings are redacted again
// here since answers may come from a cache written by an older build.
func Rows(answers []enrich.ResolvedAnswer) []Row {
	rows := make([]Row, 0, len(answers))
	for _, a := range answers {
		rows = append(rows, Row{
			Company:    a.Company,
			Attribute:  a.Attribute,
			Content:    a.Content,
			Provenance: a.Provenance,
			Origin:     a.Origin,
			State:      string(a.State),
			Error:      redact.Secrets(a.Error),
		})
	}
	return rows
}

func (r Row) record() []string {
	content := ""
	if r.Content != nil {
		content = *r.Content
	}
	return []string{r.Company, r.Attribute, content, r.Provenance, r.Origin, r.State, r.Error}
}

// WriteCSV writes the header followed by one line per row. A nil Content is written as an
// empty cell.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes rows as a JSON array. Unresolved content is emitted as null.
func WriteJSON(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// Write dispatches on format ("csv" or "json").
func Write(w io.Writer, format string, rows []Row) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "csv":
		return WriteCSV(w, rows)
	case "json":
		return WriteJSON(w, rows)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// Summary counts answers per terminal state.
type Summary struct {
	Total              int
	ResolvedFromSource int
	ResolvedByFallback int
	Unresolved         int
}

func Summarize(answers []enrich.ResolvedAnswer) Summary {
	s := Summary{Total: len(answers)}
	for _, a := range answers {
		switch a.State {
		case enrich.StateResolvedFromSource:
			s.ResolvedFromSource++
		case enrich.StateResolvedFromFallback:
			s.ResolvedByFallback++
		default:
			s.Unresolved++
		}
	}
	return s
}
