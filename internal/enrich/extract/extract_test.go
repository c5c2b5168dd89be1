package extract_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/internal/enrich/extract"
	"github.com/palantir/company-dataitem-enricher/internal/oracle"
)

var headquarters = enrich.Attribute{
	Name:        "Headquarters",
	Description: "Where the company is based.",
	Kind:        enrich.KindLocation,
	Facets:      []string{"city", "country"},
}

func TestExtract_Found(t *testing.T) {
	var seen oracle.Request
	o := oracle.Func(func(_ context.Context, req oracle.Request) (string, error) {
		seen = req
		return "  Austin, Texas\n", nil
	})

	rec := enrich.SourceRecord{
		Source:  "linkedin_search_results",
		Payload: map[string]any{"headquarter": map[string]string{"city": "Austin"}},
		Origin:  "https://www.linkedin.com/company/acme",
	}
	got, err := extract.New(o).Extract(context.Background(), headquarters, rec)
	require.NoError(t, err)
	assert.Equal(t, enrich.ExtractionOutcome{
		Attribute: "Headquarters",
		Source:    "linkedin_search_results",
		Content:   "Austin, Texas",
		Found:     true,
		Origin:    "https://www.linkedin.com/company/acme",
	}, got)

	assert.Equal(t, oracle.Text, seen.Kind)
	assert.Equal(t, float32(0.7), seen.Temperature)
	assert.Equal(t, int32(500), seen.MaxOutputTokens)
	assert.Contains(t, seen.User, `{"headquarter":{"city":"Austin"}}`)
	assert.Contains(t, seen.User, "city, country")
}

func TestExtract_AbsentReplies(t *testing.T) {
	for _, reply := range []string{"None", " none ", "", "\n"} {
		o := oracle.Func(func(context.Context, oracle.Request) (string, error) { return reply, nil })
		got, err := extract.New(o).Extract(context.Background(), headquarters, enrich.SourceRecord{Source: "s", Payload: "text"})
		require.NoError(t, err)
		assert.False(t, got.Found, "reply %q", reply)
		assert.Empty(t, got.Content)
		assert.Empty(t, got.Origin)
	}
}

func TestExtract_EmptyPayloadSkipsOracle(t *testing.T) {
	o := oracle.Func(func(context.Context, oracle.Request) (string, error) {
		t.Fatal("oracle must not be called for an empty payload")
		return "", nil
	})
	for _, payload := range []any{nil, "", "   "} {
		got, err := extract.New(o).Extract(context.Background(), headquarters, enrich.SourceRecord{Source: "s", Payload: payload})
		require.NoError(t, err)
		assert.False(t, got.Found)
	}
}

func TestExtract_OracleFailure(t *testing.T) {
	o := oracle.Func(func(context.Context, oracle.Request) (string, error) {
		return "", errors.New("timeout")
	})
	_, err := extract.New(o).Extract(context.Background(), headquarters, enrich.SourceRecord{Source: "s", Payload: "text"})
	require.ErrorIs(t, err, enrich.ErrOracleUnavailable)
}

func TestRenderPayload(t *testing.T) {
	got, err := extract.RenderPayload("plain text", 0)
	require.NoError(t, err)
	assert.Equal(t, "plain text", got)

	got, err = extract.RenderPayload([]byte(`{"a":1}`), 0)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, got)

	got, err = extract.RenderPayload(map[string]int{"employees": 120}, 0)
	require.NoError(t, err)
	assert.Equal(t, `{"employees":120}`, got)

	got, err = extract.RenderPayload(strings.Repeat("é", 10), 5)
	require.NoError(t, err)
	assert.Equal(t, "éé", got, "truncation keeps whole runes")

	_, err = extract.RenderPayload(make(chan int), 0)
	require.Error(t, err)
}

func TestExtract_TruncatesPayload(t *testing.T) {
	var seen string
	o := oracle.Func(func(_ context.Context, req oracle.Request) (string, error) {
		seen = req.User
		return "None", nil
	})
	long := strings.Repeat("x", 1000)
	_, err := extract.New(o, extract.WithMaxPayloadBytes(100)).Extract(context.Background(), headquarters, enrich.SourceRecord{Source: "s", Payload: long})
	require.NoError(t, err)
	assert.NotContains(t, seen, strings.Repeat("x", 101))
	assert.Contains(t, seen, strings.Repeat("x", 100))
}
