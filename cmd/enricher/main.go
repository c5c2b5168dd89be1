// Command enricher resolves requested data items for a list of companies.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/palantir/company-dataitem-enricher/internal/config"
	"github.com/palantir/company-dataitem-enricher/internal/logging"
	"github.com/palantir/company-dataitem-enricher/internal/metrics"
	"github.com/palantir/company-dataitem-enricher/pkg/pipeline/redact"
)

// cli carries state shared by subcommands once PersistentPreRunE has loaded it.
type cli struct {
	configFile string
	envFile    string

	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "enricher",
		Short: "Resolve company data items from structured sources and a generative fallback",
		Long: `enricher turns a free-text query into a set of data items, then resolves every data item
for every company from the configured sources (LinkedIn, Crunchbase, Companies House), falling
back to the model's own knowledge when no source has it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "config file (default: ./enricher.yaml if present)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", "dotenv file (default: ./.env if present)")

	root.AddCommand(
		newRunCmd(c),
		newDeriveCmd(c),
		newServeCmd(c),
		newVersionCmd(),
	)
	return root
}

func (c *cli) load() error {
	cfg, err := config.Load(config.Options{ConfigFile: c.configFile, EnvFile: c.envFile})
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = logger
	c.registry = prometheus.NewRegistry()
	c.metrics = metrics.New(c.registry)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "enricher: %s\n", redact.Secrets(err.Error()))
		os.Exit(1)
	}
}
