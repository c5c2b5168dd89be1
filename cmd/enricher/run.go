package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/palantir/company-dataitem-enricher/internal/app"
)

func newRunCmd(c *cli) *cobra.Command {
	var (
		run     app.LocalRun
		workers int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Enrich the companies of a local CSV and write one row per (company, data item)",
		Example: `  enricher run --query "Where is the company headquartered?" --input companies.csv --output answers.csv
  enricher run --query "Annual revenue" --input companies.csv --output - --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if run.Query == "" || run.InputPath == "" || run.OutputPath == "" {
				return fmt.Errorf("run requires --query, --input and --output")
			}
			if cmd.Flags().Changed("workers") {
				c.cfg.Pipeline.Workers = workers
			}
			if err := c.cfg.Validate(); err != nil {
				return err
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

			res, err := app.RunLocal(ctx, rt.Enricher, run, rt.Store)
			if err != nil {
				return fmt.Errorf("local run failed: %w", err)
			}
			c.logger.Info("answers written", zap.String("run_id", res.RunID), zap.String("output", run.OutputPath))
			return nil
		},
	}
	cmd.Flags().StringVar(&run.Query, "query", "", "free-text query describing the data items to collect")
	cmd.Flags().StringVar(&run.InputPath, "input", "", "input CSV path (columns: name, optional profile_id)")
	cmd.Flags().StringVar(&run.OutputPath, "output", "", "output path, - for stdout")
	cmd.Flags().StringVar(&run.Format, "format", "csv", "output format: csv or json")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent (company, data item) units (env: WORKERS)")
	return cmd
}
