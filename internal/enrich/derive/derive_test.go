package derive_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/internal/enrich/derive"
	"github.com/palantir/company-dataitem-enricher/internal/oracle"
)

// scripted answers by step; per-step overrides keyed by a substring of the user prompt.
type scripted struct {
	mu      sync.Mutex
	items   string
	replies map[string]map[string]string
	errs    map[string]error
	calls   []oracle.Request
}

func (s *scripted) Complete(_ context.Context, req oracle.Request) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if err, ok := s.errs[req.Step]; ok {
		return "", err
	}
	if req.Step == derive.StepItems {
		return s.items, nil
	}
	for needle, reply := range s.replies[req.Step] {
		if needle != "" && strings.Contains(req.User, needle) {
			return reply, nil
		}
	}
	return s.replies[req.Step][""], nil
}

func defaultReplies() map[string]map[string]string {
	return map[string]map[string]string{
		derive.StepDescription: {"": "Collect the city and country where the company is based."},
		derive.StepKind:        {"": "Geographical Location"},
		derive.StepFacets:      {"": `{"data_item": "Headquarters", "key_information": ["city", "country", "address", "postcode"]}`},
	}
}

func TestDerive_FullAttribute(t *testing.T) {
	o := &scripted{items: `{"data_items": ["  Headquarters "]}`, replies: defaultReplies()}
	d := derive.New(o, derive.WithLogger(zaptest.NewLogger(t)))

	got, err := d.Derive(context.Background(), "where are they based?")
	require.NoError(t, err)
	require.Len(t, got.Attributes, 1)
	assert.Empty(t, got.Failures)

	attr := got.Attributes[0]
	assert.Equal(t, "Headquarters", attr.Name)
	assert.Equal(t, enrich.KindLocation, attr.Kind)
	assert.Equal(t, "Collect the city and country where the company is based.", attr.Description)
	assert.Equal(t, []string{"city", "country", "address"}, attr.Facets, "facets are capped at three")

	require.Len(t, o.calls, 4)
	assert.Equal(t, oracle.Structured, o.calls[0].Kind)
	assert.Equal(t, float32(0.1), o.calls[0].Temperature)
	assert.Equal(t, int32(500), o.calls[0].MaxOutputTokens)
	assert.Equal(t, oracle.Text, o.calls[1].Kind)
	assert.Equal(t, float32(0.7), o.calls[1].Temperature)
	assert.Equal(t, int32(150), o.calls[1].MaxOutputTokens)
	assert.Equal(t, oracle.Structured, o.calls[3].Kind)
	assert.Equal(t, int32(300), o.calls[3].MaxOutputTokens)
}

func TestDerive_EmptyList(t *testing.T) {
	o := &scripted{items: `{"data_items": []}`}
	got, err := derive.New(o).Derive(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got.Attributes)
	assert.Empty(t, got.Failures)
	assert.Len(t, o.calls, 1)
}

func TestDerive_MalformedListFailsWholeQuery(t *testing.T) {
	for _, reply := range []string{"Headquarters, Funding", `{"items": []}`, `{"data_items": "Headquarters"}`} {
		o := &scripted{items: reply, replies: defaultReplies()}
		got, err := derive.New(o).Derive(context.Background(), "q")
		require.ErrorIs(t, err, enrich.ErrMalformedModelResponse, "reply %q", reply)
		assert.Empty(t, got.Attributes)
		assert.Len(t, o.calls, 1)
	}
}

func TestDerive_OracleUnavailable(t *testing.T) {
	o := &scripted{errs: map[string]error{derive.StepItems: errors.New("connection refused")}}
	_, err := derive.New(o).Derive(context.Background(), "q")
	require.ErrorIs(t, err, enrich.ErrOracleUnavailable)
}

func TestDerive_PerAttributeFailureAbortsOnlyThatAttribute(t *testing.T) {
	replies := defaultReplies()
	replies[derive.StepKind] = map[string]string{
		"Mascot": "I am not sure",
		"":       "Piece of text",
	}
	o := &scripted{items: `{"data_items": ["Founder", "Mascot", "CEO"]}`, replies: replies}

	got, err := derive.New(o).Derive(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, got.Attributes, 2)
	assert.Equal(t, "Founder", got.Attributes[0].Name)
	assert.Equal(t, "CEO", got.Attributes[1].Name)

	require.Len(t, got.Failures, 1)
	assert.Equal(t, "Mascot", got.Failures[0].Name)
	assert.ErrorIs(t, got.Failures[0].Err, enrich.ErrMalformedModelResponse)
}

func TestDerive_OracleFailureDropsOnlyThatAttribute(t *testing.T) {
	base := &scripted{items: `{"data_items": ["Headquarters", "Funding", "Founded"]}`, replies: defaultReplies()}
	fundingStep := func(req oracle.Request) bool {
		return req.Step == derive.StepDescription && strings.Contains(req.User, "Funding")
	}

	tests := []struct {
		name   string
		oracle oracle.Oracle
	}{
		{
			name: "call error",
			oracle: oracle.Func(func(ctx context.Context, req oracle.Request) (string, error) {
				if fundingStep(req) {
					return "", errors.New("503 service unavailable")
				}
				return base.Complete(ctx, req)
			}),
		},
		{
			name: "per-call timeout",
			oracle: oracle.WithRetry(oracle.Func(func(ctx context.Context, req oracle.Request) (string, error) {
				if fundingStep(req) {
					<-ctx.Done()
					return "", ctx.Err()
				}
				return base.Complete(ctx, req)
			}), oracle.RetryOptions{MaxRetries: 0, RequestTimeout: 50 * time.Millisecond}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := derive.New(tt.oracle, derive.WithLogger(zaptest.NewLogger(t))).Derive(context.Background(), "q")
			require.NoError(t, err)

			require.Len(t, got.Attributes, 2)
			assert.Equal(t, "Headquarters", got.Attributes[0].Name)
			assert.Equal(t, "Founded", got.Attributes[1].Name)

			require.Len(t, got.Failures, 1)
			assert.Equal(t, "Funding", got.Failures[0].Name)
			assert.ErrorIs(t, got.Failures[0].Err, enrich.ErrOracleUnavailable)
		})
	}
}

func TestDerive_DuplicatesKept(t *testing.T) {
	o := &scripted{items: `{"data_items": ["Funding", " Funding"]}`, replies: defaultReplies()}
	got, err := derive.New(o).Derive(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, got.Attributes, 2)
	assert.Equal(t, got.Attributes[0].Name, got.Attributes[1].Name)
}

func TestDerive_FacetsAsCommaSeparatedString(t *testing.T) {
	replies := defaultReplies()
	replies[derive.StepFacets] = map[string]string{"": `{"data_item": "Funding", "key_information": "value, currency ,date"}`}
	o := &scripted{items: `{"data_items": ["Funding"]}`, replies: replies}

	got, err := derive.New(o).Derive(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, got.Attributes, 1)
	assert.Equal(t, []string{"value", "currency", "date"}, got.Attributes[0].Facets)
}

func TestDerive_CanceledStopsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	o := oracle.Func(func(_ context.Context, req oracle.Request) (string, error) {
		if req.Step == derive.StepItems {
			cancel()
			return `{"data_items": ["Headquarters", "Funding"]}`, nil
		}
		t.Fatalf("unexpected call for step %s", req.Step)
		return "", nil
	})

	got, err := derive.New(o).Derive(ctx, "q")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, got.Attributes)
}
