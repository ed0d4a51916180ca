package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"skeeterdeleter/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile  string
	logLevel    string
	quiet       bool
	verbose     int
	veryVerbose bool
)

// rootCmd runs a cleanup pass when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "skeeterdeleter",
	Short: "Delete old likes, posts and reposts from a Bluesky account",
	Long: `skeeterdeleter walks your Bluesky likes and author feed page by page and
removes what your retention rules select:

  - likes, posts and replies older than --stale-limit days
  - posts reposted at least --max-reposts times
  - your own reposts older than --repost-age days

Posts you liked yourself and posts linking to a protected domain are kept.
Progress is saved after every page, so the next run resumes where this one
stopped. Each run uses at most --pages pages per feed.`,
	Example: `  # Store an app password once
  skeeterdeleter auth login alice.bsky.social

  # Delete likes and posts older than a year, asking before each batch
  skeeterdeleter -s 365

  # Unattended: also drop viral posts and reposts older than 30 days
  skeeterdeleter -s 365 -l 500 -r 30 -d example.com,blog.example.org --yes`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet || logLevel == "error" {
			ui.SetQuietMode(true)
		}
	},
	RunE: runDelete,
}

// Execute adds all child commands to the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

// verbosity folds -v, -vv and --vv into 0, 1 or 2
func verbosity() int {
	if veryVerbose {
		return 2
	}
	return min(verbose, 2)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./.skeeterdeleter.yaml or ~/.config/skeeterdeleter/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "show page progress (-v) or per-item detail (-vv)")
	rootCmd.PersistentFlags().BoolVar(&veryVerbose, "vv", false, "same as -vv")

	addRunFlags(rootCmd)

	rootCmd.SetVersionTemplate(`skeeterdeleter {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
