// Package fallback answers an attribute from the model's own knowledge when no source
// record yielded it.
package fallback

import (
	"context"
	"fmt"
	"strings"

	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/internal/oracle"
)

const Step = "fallback"

const systemPrompt = "You are a professional market researcher"

type Inferencer struct {
	oracle oracle.Oracle
}

func New(o oracle.Oracle) *Inferencer {
	return &Inferencer{oracle: o}
}

// Infer returns a terse answer for attribute at company. ok=false means the model had nothing.
func (i *Inferencer) Infer(ctx context.Context, attribute, company string) (string, bool, error) {
	raw, err := i.oracle.Complete(ctx, oracle.Request{
		Step:            Step,
		System:          systemPrompt,
		User:            prompt(attribute, company),
		Kind:            oracle.Text,
		Temperature:     0.1,
		MaxOutputTokens: 100,
	})
	if err != nil {
		return "", false, enrich.Unavailable(ctx, Step, err)
	}
	content, ok := enrich.NormalizeAnswer(raw)
	return content, ok, nil
}

func prompt(attribute, company string) string {
	return strings.TrimSpace(fmt.Sprintf(`
What is the %s of this company: %s?
Answer with the requested data only. Do not write sentences; give just the number, date, link or few words that answer the question.
If you do not know, answer with None.
`, attribute, company))
}
