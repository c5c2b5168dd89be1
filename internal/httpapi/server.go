// Package httpapi serves enrichment requests over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/palantir/company-dataitem-enricher/internal/app"
	"github.com/palantir/company-dataitem-enricher/internal/enrich"
	"github.com/palantir/company-dataitem-enricher/internal/enrich/derive"
	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/core"
	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/redact"
)

const (
	maxCompaniesPerRequest = 100
	shutdownTimeout        = 10 * time.Second
)

type Config struct {
	Addr string
	// RateLimitRPS bounds POST /v1/enrich across all callers. <=0 disables the limit.
	RateLimitRPS float64
}

type Server struct {
	echo   *echo.Echo
	cfg    Config
	logger *zap.Logger
}

// New wires the routes. gatherer backs /metrics; nil serves the default registry.
func New(proc core.Processor[app.Request, app.Result], gatherer prometheus.Gatherer, logger *zap.Logger, cfg Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(requestID())
	e.Use(accessLog(logger))
	e.Use(echomw.Recover())

	h := &enrichHandler{proc: proc, logger: logger}
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	e.POST("/v1/enrich", h.enrich, rateLimit(cfg.RateLimitRPS))

	return &Server{echo: e, cfg: cfg, logger: logger}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
		serverErr <- s.echo.Start(s.cfg.Addr)
	}()

	select {
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-serverErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type enrichRequest struct {
	Query      string             `json:"query"`
	Attributes []enrich.Attribute `json:"attributes"`
	Companies  []enrich.Company   `json:"companies"`
}

type enrichResponse struct {
	RunID      string                  `json:"run_id"`
	Attributes []enrich.Attribute      `json:"attributes"`
	Failures   []failure               `json:"failures,omitempty"`
	Answers    []enrich.ResolvedAnswer `json:"answers"`
}

type failure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type enrichHandler struct {
	proc   core.Processor[app.Request, app.Result]
	logger *zap.Logger
}

func (h *enrichHandler) enrich(c echo.Context) error {
	var payload enrichRequest
	if err := c.Bind(&payload); err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid JSON payload")
	}
	if msg := validate(&payload); msg != "" {
		return errorResponse(c, http.StatusBadRequest, msg)
	}

	res, err := h.proc.Process(c.Request().Context(), app.Request{
		RunID:      requestIDFrom(c),
		Query:      payload.Query,
		Attributes: payload.Attributes,
		Companies:  payload.Companies,
	})
	if err != nil {
		status := statusFor(err)
		h.logger.Warn("enrich request failed",
			zap.String("request_id", requestIDFrom(c)),
			zap.Int("status", status),
			zap.String("error", redact.Secrets(err.Error())),
		)
		return errorResponse(c, status, messageFor(status))
	}

	return success(c, http.StatusOK, "ok", enrichResponse{
		RunID:      res.RunID,
		Attributes: nonNil(res.Attributes),
		Failures:   failures(res.Failures),
		Answers:    nonNil(res.Answers),
	})
}

func validate(p *enrichRequest) string {
	p.Query = strings.TrimSpace(p.Query)
	if p.Query == "" && len(p.Attributes) == 0 {
		return "query or attributes is required"
	}
	if len(p.Companies) == 0 {
		return "companies is required"
	}
	if len(p.Companies) > maxCompaniesPerRequest {
		return fmt.Sprintf("at most %d companies per request", maxCompaniesPerRequest)
	}
	for i := range p.Companies {
		p.Companies[i].Name = strings.TrimSpace(p.Companies[i].Name)
		if p.Companies[i].Name == "" {
			return fmt.Sprintf("companies[%d].name is required", i)
		}
	}
	seen := make(map[string]struct{}, len(p.Attributes))
	for i, a := range p.Attributes {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return fmt.Sprintf("attributes[%d].name is required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Sprintf("duplicate attribute %q", name)
		}
		seen[name] = struct{}{}
		p.Attributes[i].Name = name
	}
	return ""
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, enrich.ErrMalformedModelResponse):
		return http.StatusBadGateway
	case errors.Is(err, enrich.ErrOracleUnavailable), enrich.IsCanceled(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(status int) string {
	switch status {
	case http.StatusBadGateway:
		return "model returned an unusable response"
	case http.StatusServiceUnavailable:
		return "model unavailable"
	default:
		return "enrichment failed"
	}
}

func failures(in []derive.Failure) []failure {
	if len(in) == 0 {
		return nil
	}
	out := make([]failure, len(in))
	for i, f := range in {
		out[i] = failure{Name: f.Name, Error: redact.Secrets(f.Err.Error())}
	}
	return out
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
