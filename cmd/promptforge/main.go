package main

import (
	"context"
	"fmt"
	"os"

	"github.com/perbu/promptforge/pkg/config"
	"github.com/perbu/promptforge/pkg/forge"
	"github.com/perbu/promptforge/pkg/tracing"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "dev"

var (
	configPath string
	verbose    bool
	trace      bool

	cfg            *config.Config
	logger         *zap.Logger
	shutdownTracer func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "promptforge",
	Short: "Refine prompts with retrieved examples and measure the difference",
	Long: `PromptForge rewrites a prompt using a refinement strategy and example
prompts retrieved from its corpus, answers both the original and the
refined prompt, and asks an LLM judge to score the two answers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		zc := zap.NewProductionConfig()
		level, err := zapcore.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		if verbose {
			level = zapcore.DebugLevel
		}
		zc.Level = zap.NewAtomicLevelAt(level)
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if trace {
			shutdownTracer, err = tracing.Init(os.Stderr)
			if err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", config.DefaultPath, "config file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&trace, "trace", false, "write OpenTelemetry spans to stderr")

	rootCmd.AddCommand(forgeCmd, retrieveCmd, refineCmd, generateCmd, evaluateCmd,
		strategiesCmd, serveCmd, configCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newEngine builds the engine from the loaded config.
func newEngine(ctx context.Context) (*forge.Engine, error) {
	return forge.Init(ctx, cfg, logger)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "promptforge %s\n", version)
	},
}
