package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	appName = "meme-coin-aggregrator"
	version = "v1.0.0"
)

type globalOptions struct {
	configPath string
	logLevel   string
}

func addGlobalFlags(fs *pflag.FlagSet, opts *globalOptions) {
	fs.StringVar(&opts.configPath, "config", "", "path to a YAML config file (CONFIG_FILE is the fallback)")
	fs.StringVar(&opts.logLevel, "log-level", "", "override the configured log level (trace|debug|info|warn|error)")
}

// Execute builds the command tree and runs it under ctx.
func Execute(ctx context.Context) error {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "aggregator",
		Short:         "Real-time market data aggregator for Solana meme coins",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addGlobalFlags(root.PersistentFlags(), opts)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the aggregation service",
		Long: `Fetches Solana token listings from DexScreener and CoinGecko on a fixed
cadence, merges them into one ranked snapshot, and serves the result over
REST and WebSocket with change alerts.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	root.AddCommand(serveCmd, versionCmd())
	return root.ExecuteContext(ctx)
}
