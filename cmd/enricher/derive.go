package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/palantir/company-dataitem-enricher/internal/app"
	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/redact"
)

func newDeriveCmd(c *cli) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Print the data items a query expands to, without resolving them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if query == "" {
				return fmt.Errorf("derive requires --query")
			}
			ctx := cmd.Context()
			rt, err := app.Build(ctx, c.cfg, c.logger, c.metrics)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			d, err := rt.Enricher.Derive(ctx, query)
			if err != nil {
				return err
			}
			for _, f := range d.Failures {
				_, _ = fmt.Fprintf(os.Stderr, "dropped %q: %s\n", f.Name, redact.Secrets(f.Err.Error()))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(d.Attributes)
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "free-text query describing the data items to collect")
	return cmd
}
