// Package oracle is the pipeline's access layer to the text-generation service. Pipeline
// components build a Request and call Complete; the concrete model client, retries, rate
// limiting and call tracing are layered behind the Oracle interface.
package oracle

import "context"

// Kind selects the reply format.
type Kind int

const (
	// Text replies are free text.
	Text Kind = iota
	// Structured replies are a single JSON object.
	Structured
)

func (k Kind) String() string {
	if k == Structured {
		return "structured"
	}
	return "text"
}

// Request is one oracle invocation.
type Request struct {
	// Step labels the pipeline step issuing the call ("derive.items", "extract", ...). It is used
	// for logs and metrics only and never sent to the model.
	Step   string
	System string
	User   string
	Kind   Kind
	// Schema is the expected shape of a Structured reply. Clients that support constrained
	// output forward it; replies are still validated by Decode.
	Schema          *Schema
	Temperature     float32
	MaxOutputTokens int32
}

// Oracle answers prompts. Implementations must be safe for concurrent use.
type Oracle interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
