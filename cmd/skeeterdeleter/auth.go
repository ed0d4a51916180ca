package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"skeeterdeleter/pkg/auth"
	"skeeterdeleter/pkg/ui"
)

var loginPDS string

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored Bluesky app passwords",
	Long: `Manage stored Bluesky credentials.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables SKEETER_HANDLE and SKEETER_APP_PASSWORD (read only)

Use an app password, never your account password.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [handle]",
	Short: "Store an app password for a handle",
	Example: `  # Interactive login
  skeeterdeleter auth login

  # Login for a handle on a self-hosted PDS
  skeeterdeleter auth login alice.example.com --pds https://pds.example.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [handle]",
	Short: "Remove stored credentials",
	Long: `Remove stored credentials for a handle.

Without a handle, the only stored account is removed after confirmation, or
a list is shown to pick from.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)

	loginCmd.Flags().StringVar(&loginPDS, "pds", "", "PDS URL for this account (default https://bsky.social)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)
	out := cmd.OutOrStdout()

	var handle string
	if len(args) > 0 {
		handle = args[0]
	}

	auth.ShowAppPasswordGuide(out)

	if handle == "" {
		fmt.Fprint(out, "🦋 Bluesky handle: ")
		handle, err = readLine(reader)
		if err != nil {
			return fmt.Errorf("failed to read handle: %w", err)
		}
	}
	handle = auth.NormalizeHandle(handle)
	if handle == "" {
		return errors.New("a handle is required")
	}

	if existing, _ := manager.Retrieve(handle); existing != nil {
		fmt.Fprintf(out, "\n⚠️  Account '%s' already exists. Replace its app password? (y/N): ", handle)
		answer, _ := readLine(reader)
		if !strings.HasPrefix(strings.ToLower(answer), "y") {
			return nil
		}
	}

	fmt.Fprint(out, "🔐 App password (hidden): ")
	password, err := readPassword(reader)
	if err != nil {
		return fmt.Errorf("failed to read app password: %w", err)
	}
	if password == "" {
		return errors.New("an app password is required")
	}
	if !auth.LooksLikeAppPassword(password) {
		ui.PrintWarning("That does not look like an app password (xxxx-xxxx-xxxx-xxxx). Storing it anyway.")
	}

	account := &auth.Account{
		Handle:      handle,
		AppPassword: password,
		PDS:         loginPDS,
	}
	if err := manager.Store(account); err != nil {
		return err
	}

	ui.PrintSuccess("Account saved: " + handle)
	fmt.Fprintln(out, "\nRun a cleanup pass with:")
	fmt.Fprintf(out, "  skeeterdeleter --account %s -s 365\n", handle)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if len(args) > 0 {
		if err := manager.Delete(args[0]); err != nil {
			return err
		}
		ui.PrintSuccess("Account removed: " + auth.NormalizeHandle(args[0]))
		return nil
	}

	accounts, err := manager.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		ui.PrintWarning("No stored accounts found")
		return nil
	}

	reader := bufio.NewReader(os.Stdin)
	out := cmd.OutOrStdout()

	if len(accounts) == 1 {
		fmt.Fprintf(out, "Remove account '%s'? (y/N): ", accounts[0].Handle)
		answer, _ := readLine(reader)
		if !strings.HasPrefix(strings.ToLower(answer), "y") {
			return nil
		}
		if err := manager.Delete(accounts[0].Handle); err != nil {
			return err
		}
		ui.PrintSuccess("Account removed: " + accounts[0].Handle)
		return nil
	}

	fmt.Fprintln(out, "Select account to remove:")
	for i, account := range accounts {
		fmt.Fprintf(out, "  %d. %s\n", i+1, account.Handle)
	}
	fmt.Fprintf(out, "  %d. Remove all accounts\n", len(accounts)+1)
	fmt.Fprintf(out, "  0. Cancel\n\nChoice: ")

	answer, _ := readLine(reader)
	var choice int
	fmt.Sscanf(answer, "%d", &choice)

	switch {
	case choice == 0:
		return nil
	case choice == len(accounts)+1:
		fmt.Fprint(out, "Remove ALL accounts? (yes/N): ")
		confirm, _ := readLine(reader)
		if confirm != "yes" {
			return nil
		}
		if err := manager.DeleteAll(); err != nil {
			return err
		}
		ui.PrintSuccess("All accounts removed")
		return nil
	case choice > 0 && choice <= len(accounts):
		handle := accounts[choice-1].Handle
		if err := manager.Delete(handle); err != nil {
			return err
		}
		ui.PrintSuccess("Account removed: " + handle)
		return nil
	default:
		return errors.New("invalid choice")
	}
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "use 'skeeterdeleter auth login' to add one")
		return nil
	}

	out := cmd.OutOrStdout()
	ui.PrintHighlight("Stored Accounts")
	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Fprintf(out, "%d. %s\n", i+1, sanitized.Handle)
		fmt.Fprintf(out, "   App password: %s\n", sanitized.AppPassword)
		if sanitized.PDS != "" {
			fmt.Fprintf(out, "   PDS: %s\n", sanitized.PDS)
		}
		fmt.Fprintf(out, "   Last modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo on a terminal and falls back to a plain
// line read otherwise
func readPassword(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		password, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(password)), nil
	}
	return readLine(reader)
}
