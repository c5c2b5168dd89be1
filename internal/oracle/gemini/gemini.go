// Package gemini implements oracle.Oracle on the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/genai"

	"github.com/palantir/company-dataitem-enricher/internal/oracle"
	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/core"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

type Oracle struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Oracle, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Oracle{
		client: client,
		model:  strings.TrimSpace(cfg.Model),
	}, nil
}

func (o *Oracle) Model() string {
	return o.model
}

func (o *Oracle) Complete(ctx context.Context, req oracle.Request) (string, error) {
	resp, err := o.client.Models.GenerateContent(ctx, o.model, genai.Text(req.User), generateConfig(req))
	if err != nil {
		return "", classifyErr(err)
	}
	if resp == nil {
		return "", fmt.Errorf("gemini: empty response")
	}
	return resp.Text(), nil
}

func generateConfig(req oracle.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		CandidateCount: 1,
		Temperature:    genai.Ptr(req.Temperature),
	}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = req.MaxOutputTokens
	}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Kind == oracle.Structured {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = responseSchema(req.Schema.Doc())
	}
	return cfg
}

// responseSchema converts a JSON Schema document into Gemini's schema subset. A union type
// keeps its first member, which is the shape the prompts ask for.
func responseSchema(doc map[string]any) *genai.Schema {
	if doc == nil {
		return nil
	}
	out := &genai.Schema{}
	switch t := doc["type"].(type) {
	case string:
		out.Type = genai.Type(strings.ToUpper(t))
	case []any:
		if len(t) > 0 {
			if first, ok := t[0].(string); ok {
				out.Type = genai.Type(strings.ToUpper(first))
			}
		}
	}
	if props, ok := doc["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				out.Properties[name] = responseSchema(pm)
			}
		}
	}
	if items, ok := doc["items"].(map[string]any); ok && out.Type == genai.TypeArray {
		out.Items = responseSchema(items)
	}
	if req, ok := doc["required"].([]any); ok {
		for _, r := range req {
			if name, ok := r.(string); ok {
				out.Required = append(out.Required, name)
			}
		}
	}
	return out
}

func classifyErr(err error) error {
	// Wrap transient failures so oracle.WithRetry retries them with backoff.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &core.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	return err
}
