package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"fansync/pkg/config"
	"fansync/pkg/logger"
	"fansync/pkg/ui"
)

var (
	// Version information, set with -ldflags
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	logJSON    bool
	noColor    bool
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fansync",
	Short: "Incrementally mirror subscribed creators' media to disk",
	Long: `fansync mirrors the posts, archived posts, messages, stories and
highlights of every creator an account can see into a local directory tree.

Each pass only fetches what is newer than the last recorded item, so it is
cheap to run repeatedly or forever with --run-forever.

  - Several accounts scraped concurrently
  - Request signing from published header rules
  - Per-creator SQLite ledger so nothing is downloaded twice
  - Retries with exponential backoff and a per-account rate limit
  - JSON pass reports listing every failure`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || !ui.IsTerminal(os.Stdout) {
			ui.SetColor(false)
		}
		if !quiet && cmd.Name() == "scrape" {
			ui.PrintBanner(os.Stdout)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(os.Stderr, "Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.fansync.yaml or ~/.config/fansync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress everything but errors and the summary")

	rootCmd.SetVersionTemplate(`fansync {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig reads the configuration with the global flags merged over
// extra, then builds the logger it describes.
func loadConfig(extra map[string]interface{}) (*config.Config, logger.Logger, error) {
	flags := map[string]interface{}{}
	for k, v := range extra {
		flags[k] = v
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if quiet {
		flags["log-level"] = "error"
	}
	if logJSON {
		flags["log-json"] = true
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, nil, err
	}
	if noColor {
		cfg.Logging.NoColor = true
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}
