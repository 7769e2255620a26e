package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/clausewise/clausewise/pkg/config"
	"github.com/clausewise/clausewise/pkg/logging"
)

var (
	configPath string
	logLevel   string
	logger     *slog.Logger
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:   "clausewise",
	Short: "Agentic privacy-policy compliance auditor",
	Long:  "Audits privacy policies against a compliance requirement catalog using a planner/retriever/reasoner/verifier pipeline, and seals each completed audit with a tamper-evident fingerprint.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Default()
		if configPath != "" {
			provider, err := config.NewFileProvider(configPath, slog.Default())
			if err != nil {
				return err
			}
			defer provider.Close()
			cfg = provider.Current()
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		logger = logging.NewLogger(logging.Config{
			Level:  cfg.Logging.Level,
			Pretty: cfg.Logging.Pretty,
		})
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the configuration YAML")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
