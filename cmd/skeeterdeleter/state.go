package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"skeeterdeleter/pkg/auth"
	"skeeterdeleter/pkg/config"
	"skeeterdeleter/pkg/logger"
	"skeeterdeleter/pkg/state"
	"skeeterdeleter/pkg/ui"
)

var stateForce bool

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset the saved resume cursors",
	Long: `Inspect or reset the saved resume cursors of an account.

The handle defaults to the configured one. When the configuration sets
state.path, that file is used regardless of the handle.`,
}

var stateShowCmd = &cobra.Command{
	Use:   "show [handle]",
	Short: "Show the saved cursors",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset [handle]",
	Short: "Forget the saved cursors so the next run starts from the newest entries",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStateReset,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)

	stateResetCmd.Flags().BoolVarP(&stateForce, "force", "f", false, "reset without asking")
}

func stateStoreFor(args []string) (*state.Store, error) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.State.Path != "" {
		return state.NewStore(cfg.State.Path, logger.GetLogger()), nil
	}

	handle := cfg.Bluesky.Handle
	if len(args) > 0 {
		handle = args[0]
	}
	if handle == "" {
		return nil, errors.New("no handle given and none configured")
	}
	return state.NewStoreForHandle(auth.NormalizeHandle(handle), logger.GetLogger())
}

func runStateShow(cmd *cobra.Command, args []string) error {
	store, err := stateStoreFor(args)
	if err != nil {
		return err
	}

	ui.PrintInfo("State file", store.Path())
	if !store.Exists() {
		ui.PrintWarning("No saved state; the next run starts from the newest entries")
		return nil
	}

	st, err := store.Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  Likes cursor: %s\n", orNewest(st.LastLikesCursor))
	fmt.Fprintf(out, "  Posts cursor: %s\n", orNewest(st.LastPostsCursor))
	fmt.Fprintf(out, "  Pages last run: %d\n", st.PagesConsumedThisRun)
	if !st.UpdatedAt.IsZero() {
		fmt.Fprintf(out, "  Updated: %s\n", st.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runStateReset(cmd *cobra.Command, args []string) error {
	store, err := stateStoreFor(args)
	if err != nil {
		return err
	}
	if !store.Exists() {
		ui.PrintWarning("No saved state at " + store.Path())
		return nil
	}

	if !stateForce {
		fmt.Fprintf(cmd.OutOrStdout(), "Reset %s? (y/N): ", store.Path())
		answer, _ := readLine(bufio.NewReader(os.Stdin))
		if !strings.HasPrefix(strings.ToLower(answer), "y") {
			return nil
		}
	}

	if err := store.Reset(); err != nil {
		return err
	}
	ui.PrintSuccess("State reset: " + store.Path())
	return nil
}

func orNewest(cursor string) string {
	if cursor == "" {
		return "(newest)"
	}
	return cursor
}
