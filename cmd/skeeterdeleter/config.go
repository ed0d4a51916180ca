package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"skeeterdeleter/pkg/auth"
	"skeeterdeleter/pkg/config"
	"skeeterdeleter/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage skeeterdeleter configuration files.

Configuration is loaded from, highest priority first:
  - Command line flags
  - Environment variables (SKEETER_*)
  - .env files
  - Configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	Long: `Write a configuration file with every option at its default.

The file is created as '.skeeterdeleter.yaml' in the current directory unless
--config names another path. Existing files are never overwritten.`,
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
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".skeeterdeleter.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	cfg := config.DefaultConfig()
	cfg.Retention.StaleDays = 365
	if err := cfg.Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "1. Set your retention rules under 'retention'")
	fmt.Fprintln(out, "2. Store an app password with 'skeeterdeleter auth login'")
	fmt.Fprintln(out, "3. Check the file with 'skeeterdeleter config validate'")
	return nil
}

// maskedConfig returns a copy safe to print
func maskedConfig(cfg *config.Config) config.Config {
	display := *cfg
	if display.Bluesky.AppPassword != "" {
		display.Bluesky.AppPassword = auth.SanitizeAccount(&auth.Account{AppPassword: cfg.Bluesky.AppPassword}).AppPassword
	}
	return display
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	display := maskedConfig(cfg)
	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	out := cmd.OutOrStdout()
	fmt.Fprint(out, string(data))

	fmt.Fprintln(out, "\nConfiguration sources (in order of priority):")
	fmt.Fprintln(out, "1. Command line flags")
	fmt.Fprintln(out, "2. Environment variables (SKEETER_*)")
	fmt.Fprintln(out, "3. .env files")
	if configFile != "" {
		fmt.Fprintf(out, "4. Configuration file: %s\n", configFile)
	} else {
		fmt.Fprintln(out, "4. Configuration file: (searched in default locations)")
	}
	fmt.Fprintln(out, "5. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	var warnings []string
	if cfg.Bluesky.Handle == "" {
		warnings = append(warnings, "no handle configured; the default stored account will be used")
	}
	if cfg.Bluesky.AppPassword != "" && !auth.LooksLikeAppPassword(cfg.Bluesky.AppPassword) {
		warnings = append(warnings, "app_password does not look like an app password")
	}
	if !cfg.Policy().AppliesToLikes() && !cfg.Policy().AppliesToPosts() {
		warnings = append(warnings, "no retention rule is enabled; a run would delete nothing")
	}

	var problems []error
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Errorf("cannot create log directory: %w", err))
		}
	}
	if cfg.Archive.Enabled {
		if err := os.MkdirAll(cfg.Archive.Directory, 0700); err != nil {
			problems = append(problems, fmt.Errorf("cannot create archive directory: %w", err))
		}
	}
	if err := errors.Join(problems...); err != nil {
		return err
	}

	for _, warning := range warnings {
		ui.PrintWarning(warning)
	}
	ui.PrintSuccess("Configuration is valid")

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nConfiguration summary:")
	fmt.Fprintf(out, "  Stale limit: %d days\n", cfg.Retention.StaleDays)
	fmt.Fprintf(out, "  Viral reposts: %d\n", cfg.Retention.ViralReposts)
	fmt.Fprintf(out, "  Repost age: %d days\n", cfg.Retention.RepostUndoDays)
	fmt.Fprintf(out, "  Protected domains: %v\n", cfg.Retention.ProtectedDomains)
	fmt.Fprintf(out, "  Pages per run: %d\n", cfg.Run.PagesPerRun)
	fmt.Fprintf(out, "  Request interval: %s\n", cfg.RateLimit.Interval)
	fmt.Fprintf(out, "  Archive: %t (%s)\n", cfg.Archive.Enabled, cfg.Archive.Directory)
	return nil
}
