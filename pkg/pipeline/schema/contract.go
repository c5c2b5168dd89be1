package schema

import (
	"fmt"
	"strings"
)

// DatasetMode captures behavior-relevant output semantics.
type DatasetMode string

const (
	DatasetModeBatch  DatasetMode = "batch"
	DatasetModeStream DatasetMode = "stream"
)

// Field captures the minimal behavior-relevant schema fields.
type Field struct {
	Name     string
	Type     string
	Nullable bool
}

// DatasetContract is the logical schema contract used by pipeline execution.
type DatasetContract struct {
	Mode   DatasetMode
	Fields []Field
}

// Names returns the field names in declaration order.
func (c DatasetContract) Names() []string {
	out := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		out[i] = f.Name
	}
	return out
}

// Validate reports empty or duplicate field names.
func (c DatasetContract) Validate() error {
	if len(c.Fields) == 0 {
		return fmt.Errorf("contract has no fields")
	}
	seen := make(map[string]struct{}, len(c.Fields))
	for i, f := range c.Fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("field %d has an empty name", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate field %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Index returns the position of the named field (case-insensitive), or -1.
func (c DatasetContract) Index(name string) int {
	for i, f := range c.Fields {
		if strings.EqualFold(f.Name, strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

func NormalizeMode(raw string) DatasetMode {
	s := strings.TrimSpace(strings.ToLower(raw))
	switch s {
	case "stream", "streaming":
		return DatasetModeStream
	default:
		return DatasetModeBatch
	}
}
