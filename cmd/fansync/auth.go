package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fansync/pkg/auth"
	"fansync/pkg/logger"
	"fansync/pkg/scraper"
	"fansync/pkg/signer"
	"fansync/pkg/ui"
)

var logoutAll bool

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored account sessions",
	Long: `Manage the session cookie, user agent and x-bc value of each account.

Sessions are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (FANSYNC_COOKIE, read only)

A session stored under a name fills the configured account of that name.`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login <account>",
	Short: "Store a browser session for an account",
	Example: `  # Interactive login for the account named "main"
  fansync auth login main`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [account]",
	Short: "Remove a stored session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

// checkCmd represents the auth check command
var checkCmd = &cobra.Command{
	Use:   "check <account>",
	Short: "Verify that an account's session is accepted",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, logoutCmd, listCmd, checkCmd)

	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove every stored session")
}

func newCredentialManager() (*auth.Manager, error) {
	manager, err := auth.NewManager(logger.NewNopLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	return manager, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return err
	}
	name := strings.TrimSpace(args[0])
	reader := bufio.NewReader(os.Stdin)

	auth.ShowSessionExtractionGuide(os.Stdout)

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Account '%s' already has a session. Replace it? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Println("Enter the header values (secrets are hidden as you type):")
	fmt.Println()

	fmt.Print("cookie: ")
	cookie, err := readSecret(reader)
	if err != nil {
		return fmt.Errorf("failed to read cookie: %w", err)
	}
	if !strings.Contains(cookie, "=") {
		return fmt.Errorf("that does not look like a cookie header, expected name=value pairs")
	}

	fmt.Print("x-bc (press Enter to generate one per run): ")
	xbc, err := readSecret(reader)
	if err != nil {
		return fmt.Errorf("failed to read x-bc: %w", err)
	}

	fmt.Print("user-agent (press Enter for the default): ")
	userAgent, _ := reader.ReadString('\n')
	userAgent = strings.TrimSpace(userAgent)

	session := &auth.Session{
		Name:      name,
		Cookie:    cookie,
		UserAgent: userAgent,
		XBC:       xbc,
	}
	if err := manager.Store(session); err != nil {
		return err
	}

	ui.PrintSuccess(os.Stdout, "Session saved for account "+name)
	fmt.Println("\nCheck it with:")
	fmt.Printf("  fansync auth check %s\n", name)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return err
	}

	if logoutAll {
		sessions, err := manager.List()
		if err != nil {
			return err
		}
		for _, s := range sessions {
			if err := manager.Delete(s.Name); err != nil {
				ui.PrintWarning(os.Stdout, fmt.Sprintf("Could not remove %s: %v", s.Name, err))
				continue
			}
			ui.PrintSuccess(os.Stdout, "Session removed: "+s.Name)
		}
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("name an account or pass --all")
	}
	if err := manager.Delete(args[0]); err != nil {
		return err
	}
	ui.PrintSuccess(os.Stdout, "Session removed: "+args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return err
	}

	sessions, err := manager.List()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		ui.PrintInfo(os.Stdout, "No stored sessions", "use 'fansync auth login <account>' to add one")
		return nil
	}

	for i, s := range sessions {
		masked := auth.Sanitize(s)
		fmt.Printf("%d. %s\n", i+1, ui.Cyan(masked.Name))
		fmt.Printf("   cookie: %s\n", masked.Cookie)
		if masked.XBC != "" {
			fmt.Printf("   x-bc: %s\n", masked.XBC)
		}
		if masked.UserAgent != "" {
			fmt.Printf("   user-agent: %s\n", masked.UserAgent)
		}
		fmt.Printf("   modified: %s\n\n", masked.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(nil)
	if err != nil {
		return err
	}
	if err := selectAccounts(cfg, args); err != nil {
		return err
	}
	if err := fillCredentials(cfg, log); err != nil {
		return err
	}

	rules, err := loadRules(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	s, err := scraper.New(cfg, cfg.Accounts[0], scraper.Deps{Signer: signer.New(rules), Logger: log})
	if err != nil {
		return err
	}
	defer s.Close()

	me, err := s.User(cmd.Context(), "me")
	if err != nil {
		return fmt.Errorf("session rejected: %w", err)
	}
	ui.PrintSuccess(os.Stdout, fmt.Sprintf("Session valid, logged in as %s (id %d)", me.Username, me.ID))
	return nil
}

// readSecret reads a line without echo when stdin is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
