package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/palantir/company-dataitem-enricher/internal/app"
	"github.com/palantir/company-dataitem-enricher/internal/httpapi"
	"github.com/palantir/company-dataitem-enricher/internal/version"
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /v1/enrich, /healthz and /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				c.cfg.HTTP.Addr = addr
			}
			ctx := cmd.Context()
			rt, err := app.Build(ctx, c.cfg, c.logger, c.metrics)
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.Close(); err != nil {
					c.logger.Warn("closing backing resources", zap.Error(err))
				}
			}()

			c.logger.Info("starting enricher server", zap.String("version", version.Current))
			srv := httpapi.New(rt.Enricher, c.registry, c.logger, httpapi.Config{
				Addr:         c.cfg.HTTP.Addr,
				RateLimitRPS: c.cfg.HTTP.RateLimitRPS,
			})
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (env: HTTP_ADDR, default :8080)")
	return cmd
}
