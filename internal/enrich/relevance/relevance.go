// Package relevance decides which catalog sources are worth consulting for an attribute.
package relevance

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/palantir/company-dataitem-enricher/internal/catalog"
	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/internal/oracle"
)

const Step = "classify"

const systemPrompt = "You are a necessary process in an internal search tool. You are expected to determine " +
	"the data sources needed for a specific search term regarding a company search. You may also find that no " +
	"data source is needed."

var replySchema = oracle.MustSchema(`{
	"type": "object",
	"required": ["kept_data_sources"],
	"properties": {
		"kept_data_sources": {"type": "array", "items": {"type": "string"}}
	}
}`)

type Classifier struct {
	oracle  oracle.Oracle
	catalog *catalog.Catalog
	logger  *zap.Logger
}

func New(o oracle.Oracle, c *catalog.Catalog, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{oracle: o, catalog: c, logger: logger}
}

// Classify returns the allowed sources for attr in catalog order. Names the catalog does not
// know are dropped. A reply that cannot be used at all (not JSON, wrong shape, missing key)
// allows the full catalog. An oracle failure is returned as an enrich.ErrOracleUnavailable.
func (c *Classifier) Classify(ctx context.Context, attr enrich.Attribute) ([]string, error) {
	raw, err := c.oracle.Complete(ctx, oracle.Request{
		Step:            Step,
		System:          systemPrompt,
		User:            prompt(attr.Name, c.catalog.Describe()),
		Kind:            oracle.Structured,
		Schema:          replySchema,
		Temperature:     0.1,
		MaxOutputTokens: 500,
	})
	if err != nil {
		return nil, enrich.Unavailable(ctx, Step, err)
	}

	var reply struct {
		Kept []string `json:"kept_data_sources"`
	}
	if err := oracle.Decode(Step, raw, replySchema, &reply); err != nil {
		c.logger.Warn("unusable relevance reply; allowing all sources",
			zap.String("attribute", attr.Name),
			zap.Error(err),
		)
		return c.catalog.Names(), nil
	}

	allowed := c.catalog.Filter(reply.Kept)
	if dropped := len(dedupe(reply.Kept)) - len(allowed); dropped > 0 {
		c.logger.Debug("discarded unknown sources",
			zap.String("attribute", attr.Name),
			zap.Strings("returned", reply.Kept),
			zap.Int("dropped", dropped),
		)
	}
	return allowed, nil
}

func dedupe(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, v := range in {
		out[strings.TrimSpace(v)] = struct{}{}
	}
	return out
}

func prompt(attribute, sources string) string {
	return strings.TrimSpace(fmt.Sprintf(`
Here is the search term you should act on: %s
Pick the data sources that are likely to contain it from this list:
%s
Return ONLY a JSON object of the form {"kept_data_sources": []} where the list holds keys of the data sources above.
`, attribute, sources))
}
