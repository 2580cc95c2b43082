package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fansync/pkg/report"
	"fansync/pkg/ui"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect saved pass reports",
}

var reportsLastCmd = &cobra.Command{
	Use:   "last [account...]",
	Short: "Print the latest pass report of each account",
	RunE:  runReportsLast,
}

var reportsListCmd = &cobra.Command{
	Use:   "list <account>",
	Short: "List the saved report files of an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportsList,
}

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.AddCommand(reportsLastCmd, reportsListCmd)
}

func openReportStore() (*report.Store, error) {
	cfg, log, err := loadConfig(nil)
	if err != nil {
		return nil, err
	}
	return report.NewStore(cfg.Download.ReportDir, log)
}

func runReportsLast(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(nil)
	if err != nil {
		return err
	}
	store, err := report.NewStore(cfg.Download.ReportDir, log)
	if err != nil {
		return err
	}

	names := args
	if len(names) == 0 {
		for _, acct := range cfg.Accounts {
			names = append(names, acct.Name)
		}
	}

	var reports []*report.Report
	for _, name := range names {
		r, err := store.Latest(name)
		if err != nil {
			return err
		}
		if r == nil {
			ui.PrintWarning(os.Stdout, "No reports for "+name)
			continue
		}
		reports = append(reports, r)
	}
	ui.PrintPassSummary(os.Stdout, reports)
	return nil
}

func runReportsList(cmd *cobra.Command, args []string) error {
	store, err := openReportStore()
	if err != nil {
		return err
	}
	paths, err := store.List(args[0])
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}
