package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/palantir/company-dataitem-enricher/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the enricher version",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "enricher %s\n", version.Current)
		},
	}
}
