// cmd/pricematch/root.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pricematch/pricematch/internal/config"
	"github.com/pricematch/pricematch/internal/logger"
)

var (
	cfgFile  string
	logLevel string

	// cfg is loaded once in PersistentPreRunE and shared by every command.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pricematch",
	Short: "Marketplace price tracking and hazard notice matching",
	Long: `pricematch crawls marketplace A by brand, translates and matches the
products against marketplace B, and matches food hazard notices to
marketplace B listings by reverse image search and LLM verification.

Examples:
  pricematch crawl --brand nowfoods --top 20
  pricematch translate --brand nowfoods
  pricematch match --brand nowfoods --headless
  pricematch phase3 --days 7 --fetch
  pricematch store stats --brand nowfoods
  pricematch diagnose www.coupang.com
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		if err := logger.Init(loaded.Log); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if loaded.Log.Level == "debug" || loaded.Log.Level == "trace" {
			pterm.EnableDebugMessages()
		}

		cfg = loaded
		return nil
	},
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
// Progress is persisted per record, so an interrupted run resumes cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Error("Command failed")
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default: ./settings.yaml or ./configs/settings.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newPhase1Cmd(),
		newPhase2Cmd(),
		newPhase3Cmd(),
		newCrawlCmd(),
		newTranslateCmd(),
		newMatchCmd(),
		newStoreCmd(),
		newServeCmd(),
		newDiagnoseCmd(),
	)
}
