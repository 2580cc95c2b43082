package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fansync/pkg/signer"
	"fansync/pkg/ui"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the header-signing rules",
}

var rulesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Load the configured rules and print a summary",
	Args:  cobra.NoArgs,
	RunE:  runRulesShow,
}

var rulesSignCmd = &cobra.Command{
	Use:   "sign <path>",
	Short: "Print the signed headers for a request path",
	Example: `  fansync rules sign "/api2/v2/users/me"`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesSign,
}

var signTime int64

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesShowCmd, rulesSignCmd)

	rulesSignCmd.Flags().Int64Var(&signTime, "time", 0, "unix time to sign at (default now)")
}

func runRulesShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(nil)
	if err != nil {
		return err
	}
	rules, err := loadRules(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	source := cfg.Rules.URL
	if cfg.Rules.File != "" {
		source = cfg.Rules.File
	}
	ui.PrintInfo(os.Stdout, "Source", source)
	ui.PrintInfo(os.Stdout, "Format", rules.Format)
	ui.PrintInfo(os.Stdout, "Checksum indexes", fmt.Sprint(len(rules.ChecksumIndexes)))
	ui.PrintInfo(os.Stdout, "Checksum constant", fmt.Sprint(rules.ChecksumConstant))
	ui.PrintInfo(os.Stdout, "App token", rules.AppToken)
	return nil
}

func runRulesSign(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(nil)
	if err != nil {
		return err
	}
	rules, err := loadRules(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	xbc := ""
	if len(cfg.Accounts) > 0 {
		xbc = cfg.Accounts[0].XBCNonce
	}
	at := time.Now()
	if signTime > 0 {
		at = time.Unix(signTime, 0)
	}

	headers, err := signer.New(rules).Sign(args[0], xbc, at)
	if err != nil {
		return err
	}
	for _, name := range []string{"sign", "time", "app-token", "x-bc"} {
		if v := headers.Get(name); v != "" {
			ui.PrintInfo(os.Stdout, name, v)
		}
	}
	return nil
}
