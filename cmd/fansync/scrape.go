package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fansync/pkg/auth"
	"fansync/pkg/config"
	"fansync/pkg/logger"
	"fansync/pkg/metrics"
	"fansync/pkg/report"
	"fansync/pkg/scraper"
	"fansync/pkg/signer"
	"fansync/pkg/ui"
)

var (
	// Scrape command flags
	accountNames    []string
	outputDir       string
	runForever      bool
	interval        time.Duration
	pageSize        int
	fetchWorkers    int
	downloadWorkers int
	skipTemporary   bool
	rulesFile       string
	metricsAddr     string
	notify          bool
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one mirror pass for every configured account",
	Long: `Run one mirror pass for every configured account, or keep running
passes with --run-forever.

A pass lists the account's subscriptions and chat partners, walks each
creator's collections down to the last recorded item, and downloads what is
new. Accounts run concurrently and never affect each other.

Session credentials come from the configuration file, the FANSYNC_*
environment variables, or the store filled by 'fansync auth login'.`,
	Example: `  # One pass over every account
  fansync scrape

  # Only the account named "main", into a different directory
  fansync scrape --account main --output /mnt/mirror

  # Keep mirroring, one pass every five minutes
  fansync scrape --run-forever --interval 5m`,
	Args: cobra.NoArgs,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringSliceVarP(&accountNames, "account", "a", nil, "only scrape these accounts (repeatable)")
	scrapeCmd.Flags().StringVarP(&outputDir, "output", "o", "", "download root for every account")
	scrapeCmd.Flags().BoolVar(&runForever, "run-forever", false, "repeat passes until interrupted")
	scrapeCmd.Flags().DurationVar(&interval, "interval", 0, "pause between passes with --run-forever (default from config)")
	scrapeCmd.Flags().IntVar(&pageSize, "page-size", 0, "items requested per page")
	scrapeCmd.Flags().IntVar(&fetchWorkers, "fetch-workers", 0, "creators fetched concurrently per collection")
	scrapeCmd.Flags().IntVar(&downloadWorkers, "download-workers", 0, "creators downloaded concurrently")
	scrapeCmd.Flags().BoolVar(&skipTemporary, "skip-temporary", false, "skip stories and expiring posts")
	scrapeCmd.Flags().StringVar(&rulesFile, "rules-file", "", "read header rules from a local file")
	scrapeCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	scrapeCmd.Flags().BoolVar(&notify, "notify", false, "send a desktop notification after passes with new media")
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(map[string]interface{}{
		"output":           outputDir,
		"interval":         interval,
		"page-size":        pageSize,
		"fetch-workers":    fetchWorkers,
		"download-workers": downloadWorkers,
		"skip-temporary":   skipTemporary,
		"rules-file":       rulesFile,
		"metrics-addr":     metricsAddr,
	})
	if err != nil {
		return err
	}
	log.WithField("version", version).Info("fansync starting")

	if err := selectAccounts(cfg, accountNames); err != nil {
		return err
	}
	if err := fillCredentials(cfg, log); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rules, err := loadRules(ctx, cfg)
	if err != nil {
		return err
	}
	sign := signer.New(rules)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr, log); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	store, err := report.NewStore(cfg.Download.ReportDir, log)
	if err != nil {
		return err
	}

	scrapers := make([]*scraper.Scraper, 0, len(cfg.Accounts))
	defer func() {
		for _, s := range scrapers {
			if err := s.Close(); err != nil {
				log.WithError(err).WithField("account", s.Name()).Warn("Failed to close ledgers")
			}
		}
	}()
	for _, acct := range cfg.Accounts {
		s, err := scraper.New(cfg, acct, scraper.Deps{
			Signer:  sign,
			Logger:  log,
			Metrics: m,
			Reports: store,
		})
		if err != nil {
			return err
		}
		scrapers = append(scrapers, s)
	}

	var notifier *ui.Notifier
	if notify {
		notifier = ui.NewNotifier()
	}
	onPass := func(reports []*report.Report) {
		ui.PrintPassSummary(os.Stdout, reports)
		if err := ui.NotifyPass(notifier, reports); err != nil {
			log.WithError(err).Debug("Desktop notification failed")
		}
	}

	if runForever {
		err := scraper.RunForever(ctx, scrapers, cfg.Download.Interval, log, onPass)
		if errors.Is(err, context.Canceled) {
			log.Info("Interrupted, stopping")
			return nil
		}
		return err
	}

	reports, err := scraper.RunAll(ctx, scrapers)
	onPass(reports)
	if err != nil {
		return fmt.Errorf("pass finished with aborted accounts: %w", err)
	}
	return nil
}

// selectAccounts narrows cfg to the named accounts
func selectAccounts(cfg *config.Config, names []string) error {
	if len(names) == 0 {
		return nil
	}
	selected := make([]config.Account, 0, len(names))
	for _, name := range names {
		acct := cfg.Account(name)
		if acct == nil {
			return fmt.Errorf("account %q is not configured", name)
		}
		selected = append(selected, *acct)
	}
	cfg.Accounts = selected
	return nil
}

// fillCredentials completes accounts from the credential store and checks
// that every account can authenticate.
func fillCredentials(cfg *config.Config, log logger.Logger) error {
	manager, err := auth.NewManager(log)
	if err != nil {
		log.WithError(err).Warn("Credential store unavailable")
	} else {
		manager.Fill(cfg)
	}

	for i := range cfg.Accounts {
		if cfg.Accounts[i].UserAgent == "" {
			cfg.Accounts[i].UserAgent = config.DefaultUserAgent
		}
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return fmt.Errorf("%w\n\nStore a session with 'fansync auth login <account>'", err)
	}
	return nil
}

// loadRules reads the header rules from the configured file, or fetches
// them from the configured URL.
func loadRules(ctx context.Context, cfg *config.Config) (*signer.HeaderRules, error) {
	if cfg.Rules.File != "" {
		return signer.LoadRulesFile(cfg.Rules.File)
	}
	client := &http.Client{Timeout: cfg.API.RequestTimeout}
	rules, err := signer.FetchRules(ctx, client, cfg.Rules.URL)
	if err != nil {
		return nil, fmt.Errorf("cannot sign requests without header rules: %w", err)
	}
	return rules, nil
}
