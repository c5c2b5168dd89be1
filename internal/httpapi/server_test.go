package httpapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/palantir/company-dataitem-enricher/internal/app"
	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/internal/httpapi"
	"github.com/palantir/company-dataitem-enricher/internal/metrics"
	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/core"
)

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		RunID      string                  `json:"run_id"`
		Attributes []enrich.Attribute      `json:"attributes"`
		Answers    []enrich.ResolvedAnswer `json:"answers"`
	} `json:"data"`
}

func echoProcessor(calls *[]app.Request) core.ProcessFunc[app.Request, app.Result] {
	return func(_ context.Context, req app.Request) (app.Result, error) {
		*calls = append(*calls, req)
		content := "Austin, Texas"
		attrs := req.Attributes
		if len(attrs) == 0 {
			attrs = []enrich.Attribute{{Name: "Headquarters", Kind: enrich.KindLocation}}
		}
		var answers []enrich.ResolvedAnswer
		for _, c := range req.Companies {
			answers = append(answers, enrich.ResolvedAnswer{
				Company:    c.Name,
				Attribute:  attrs[0].Name,
				Content:    &content,
				Provenance: "linkedin_search_results",
				State:      enrich.StateResolvedFromSource,
			})
		}
		return app.Result{RunID: req.RunID, Attributes: attrs, Answers: answers}, nil
	}
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/enrich", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEnrich_Success(t *testing.T) {
	var calls []app.Request
	srv := httpapi.New(echoProcessor(&calls), prometheus.NewRegistry(), zaptest.NewLogger(t), httpapi.Config{})

	rec := post(t, srv.Handler(), `{"query":"where is it based?","companies":[{"name":" Acme ","profile_id":"acme"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	var got envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "success", got.Status)
	require.Len(t, got.Data.Answers, 1)
	assert.Equal(t, "Acme", got.Data.Answers[0].Company)
	assert.Equal(t, "Austin, Texas", got.Data.Answers[0].Value())
	assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), got.Data.RunID)

	require.Len(t, calls, 1)
	assert.Equal(t, "where is it based?", calls[0].Query)
	assert.Equal(t, enrich.Company{Name: "Acme", ProfileID: "acme"}, calls[0].Companies[0])
}

func TestEnrich_CallerRequestIDBecomesRunID(t *testing.T) {
	var calls []app.Request
	srv := httpapi.New(echoProcessor(&calls), prometheus.NewRegistry(), nil, httpapi.Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/enrich", strings.NewReader(`{"attributes":[{"name":"Headquarters"}],"companies":[{"name":"Acme"}]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderXRequestID, "req-42")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, calls, 1)
	assert.Equal(t, "req-42", calls[0].RunID)
}

func TestEnrich_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{`},
		{name: "no query or attributes", body: `{"companies":[{"name":"Acme"}]}`},
		{name: "no companies", body: `{"query":"q"}`},
		{name: "blank company", body: `{"query":"q","companies":[{"name":"  "}]}`},
		{name: "blank attribute", body: `{"attributes":[{"name":""}],"companies":[{"name":"Acme"}]}`},
		{name: "duplicate attribute", body: `{"attributes":[{"name":"HQ"},{"name":"HQ"}],"companies":[{"name":"Acme"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []app.Request
			srv := httpapi.New(echoProcessor(&calls), prometheus.NewRegistry(), nil, httpapi.Config{})
			rec := post(t, srv.Handler(), tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, calls)
		})
	}
}

func TestEnrich_ErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "malformed", err: enrich.Malformed("derive.items", fmt.Errorf("not json")), want: http.StatusBadGateway},
		{name: "unavailable", err: enrich.Unavailable(context.Background(), "derive.items", fmt.Errorf("503")), want: http.StatusServiceUnavailable},
		{name: "canceled", err: context.Canceled, want: http.StatusServiceUnavailable},
		{name: "other", err: fmt.Errorf("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := core.ProcessFunc[app.Request, app.Result](func(context.Context, app.Request) (app.Result, error) {
				return app.Result{}, tt.err
			})
			srv := httpapi.New(proc, prometheus.NewRegistry(), nil, httpapi.Config{})
			rec := post(t, srv.Handler(), `{"query":"q","companies":[{"name":"Acme"}]}`)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestEnrich_RateLimited(t *testing.T) {
	var calls []app.Request
	srv := httpapi.New(echoProcessor(&calls), prometheus.NewRegistry(), nil, httpapi.Config{RateLimitRPS: 0.001})

	first := post(t, srv.Handler(), `{"query":"q","companies":[{"name":"Acme"}]}`)
	second := post(t, srv.Handler(), `{"query":"q","companies":[{"name":"Acme"}]}`)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Len(t, calls, 1)
}

func TestHealthzAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveAnswer(string(enrich.StateResolvedFromSource))

	var calls []app.Request
	srv := httpapi.New(echoProcessor(&calls), reg, nil, httpapi.Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `enricher_answers_total{state="RESOLVED_FROM_SOURCE"} 1`)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	var calls []app.Request
	srv := httpapi.New(echoProcessor(&calls), prometheus.NewRegistry(), nil, httpapi.Config{Addr: "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)
}
