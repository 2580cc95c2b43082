package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fansync/pkg/auth"
	"fansync/pkg/config"
	"fansync/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage fansync configuration files.

Configuration is loaded from, in order of priority:
  - Command line flags
  - Environment variables (FANSYNC_*, .env files included)
  - Configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with every available option.

The file is written to ./.fansync.yaml unless --config names another path.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd)
}

const exampleConfig = `# fansync configuration
#
# Every option can also be set with FANSYNC_* environment variables, for
# example FANSYNC_API_PAGE_SIZE. FANSYNC_COOKIE, FANSYNC_USER_AGENT and
# FANSYNC_X_BC describe the account named by FANSYNC_ACCOUNT.

accounts:
  - name: main
    # Leave the session fields empty and run 'fansync auth login main'
    # to keep them out of this file.
    cookie: ""
    user_agent: ""
    # 40 characters of [0-9a-z]; a random one is generated when empty
    x_bc_nonce: ""
    download_root: ./downloads
    # skip stories and posts that expire
    skip_temporary: false
    # proxy: http://127.0.0.1:8080

api:
  base_url: https://onlyfans.com
  page_size: 10
  request_timeout: 30s

rules:
  url: https://raw.githubusercontent.com/DATAHOARDERS/dynamic-rules/main/onlyfans.json
  # file: ./rules.json

download:
  # creators fetched concurrently per collection
  fetch_workers: 3
  # creators downloaded concurrently
  download_workers: 3
  timeout: 10m
  user_cache_size: 512
  # pause between passes with --run-forever
  interval: 5s
  # decode_error_dir: ./downloads/.errors
  # report_dir: ~/.local/share/fansync/reports

retry:
  max_attempts: 4
  base_delay: 1s
  max_delay: 30s
  multiplier: 2
  jitter_factor: 0.1

rate_limit:
  requests_per_second: 5
  burst: 5

logging:
  level: info
  json: false
  no_color: false
  # file: ./fansync.log

metrics:
  enabled: false
  addr: ":9090"
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".fansync.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := os.WriteFile(path, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess(os.Stdout, "Configuration file created: "+path)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the accounts section")
	fmt.Println("2. Store each session with 'fansync auth login <account>'")
	fmt.Println("3. Check everything with 'fansync config validate'")
	fmt.Println("4. Start mirroring with 'fansync scrape'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(nil)
	if err != nil {
		return err
	}

	display := *cfg
	display.Accounts = make([]config.Account, len(cfg.Accounts))
	for i, acct := range cfg.Accounts {
		masked := auth.Sanitize(&auth.Session{Cookie: acct.Cookie, XBC: acct.XBCNonce})
		acct.Cookie = masked.Cookie
		acct.XBCNonce = masked.XBC
		display.Accounts[i] = acct
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(nil)
	if err != nil {
		return err
	}

	var warnings []string
	if len(cfg.Accounts) == 0 {
		warnings = append(warnings, "no accounts configured")
	}
	for _, acct := range cfg.Accounts {
		if err := os.MkdirAll(acct.DownloadRoot, 0755); err != nil {
			return fmt.Errorf("account %q: cannot create download root: %w", acct.Name, err)
		}
	}
	if err := fillCredentials(cfg, log); err != nil {
		warnings = append(warnings, err.Error())
	}

	if len(warnings) > 0 {
		ui.PrintWarning(os.Stdout, "Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess(os.Stdout, "Configuration is valid")
	fmt.Println("\nSummary:")
	for _, acct := range cfg.Accounts {
		fmt.Printf("  Account %s -> %s\n", acct.Name, acct.DownloadRoot)
	}
	fmt.Printf("  Page size: %d\n", cfg.API.PageSize)
	fmt.Printf("  Workers: %d fetch, %d download\n", cfg.Download.FetchWorkers, cfg.Download.DownloadWorkers)
	fmt.Printf("  Rate limit: %.1f requests/second\n", cfg.RateLimit.RequestsPerSecond)
	fmt.Printf("  Max attempts: %d\n", cfg.Retry.MaxAttempts)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
