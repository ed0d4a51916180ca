package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"skeeterdeleter/internal/feedsource"
	"skeeterdeleter/pkg/actions"
	"skeeterdeleter/pkg/archive"
	"skeeterdeleter/pkg/auth"
	"skeeterdeleter/pkg/bluesky"
	"skeeterdeleter/pkg/config"
	"skeeterdeleter/pkg/deleter"
	"skeeterdeleter/pkg/logger"
	"skeeterdeleter/pkg/ratelimit"
	"skeeterdeleter/pkg/requester"
	"skeeterdeleter/pkg/retry"
	"skeeterdeleter/pkg/state"
	"skeeterdeleter/pkg/ui"
)

var (
	staleDays        int
	maxReposts       int
	repostAge        int
	protectedDomains string
	fixedLikesCursor string
	likesFloor       string
	pagesPerRun      int
	autoConfirm      bool
	skipArchive      bool
	accountName      string
)

// runCmd is the explicit form of the default command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one cleanup pass (the default command)",
	Long: `Run one cleanup pass over the likes feed and then the author feed.

Before anything is deleted the account repository and its blobs are archived
unless --skip-archive is given. Without --yes every batch of deletions is
listed and needs a Y/n answer.`,
	Args: cobra.NoArgs,
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
}

// addRunFlags registers the run flags on cmd. Root and run share them.
func addRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVarP(&staleDays, "stale-limit", "s", 0, "delete likes, posts and replies older than this many days (0 disables)")
	flags.IntVarP(&maxReposts, "max-reposts", "l", 0, "delete posts reposted at least this many times (0 disables)")
	flags.IntVarP(&repostAge, "repost-age", "r", 0, "undo your reposts older than this many days (0 disables)")
	flags.StringVarP(&protectedDomains, "domains-to-protect", "d", "", "comma separated domains whose links keep a post")
	flags.StringVarP(&fixedLikesCursor, "fixed-likes-cursor", "c", "", "start the likes walk from this cursor")
	flags.StringVar(&likesFloor, "likes-floor", "", "stop the likes walk at this cursor")
	flags.IntVar(&pagesPerRun, "pages", 0, "maximum pages per feed for this run")
	flags.BoolVarP(&autoConfirm, "yes", "y", false, "delete without asking")
	flags.BoolVar(&skipArchive, "skip-archive", false, "do not archive the repository first")
	flags.StringVarP(&accountName, "account", "a", "", "use a specific stored account")
}

// collectFlags returns only the flags the user set, keyed the way
// config.MergeCommandLineFlags expects
func collectFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("stale-limit") {
		flags["stale-limit"] = staleDays
	}
	if changed("max-reposts") {
		flags["max-reposts"] = maxReposts
	}
	if changed("repost-age") {
		flags["repost-age"] = repostAge
	}
	if changed("domains-to-protect") {
		flags["domains-to-protect"] = protectedDomains
	}
	if changed("fixed-likes-cursor") {
		flags["fixed-likes-cursor"] = fixedLikesCursor
	}
	if changed("likes-floor") {
		flags["likes-floor"] = likesFloor
	}
	if changed("pages") {
		flags["pages"] = pagesPerRun
	}
	if changed("yes") {
		flags["yes"] = autoConfirm
	}
	if changed("skip-archive") {
		flags["skip-archive"] = skipArchive
	}
	if v := verbosity(); v > 0 {
		flags["verbosity"] = v
	}
	if changed("log-level") {
		flags["log-level"] = logLevel
	}
	return flags
}

func runDelete(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, collectFlags(cmd))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.Logging.Level = logger.LevelForVerbosity(cfg.Run.Verbosity, cfg.Logging.Level)
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Debug("skeeterdeleter starting")

	account, err := resolveAccount(cfg, accountName, auth.NewManager)
	if err != nil {
		return err
	}
	if account.PDS != "" {
		cfg.Bluesky.PDS = account.PDS
	}

	ui.PrintLogo()
	ui.PrintInfo("Account", account.Handle)
	if cfg.Run.AutoConfirm {
		ui.Print(ui.RenderDestructiveWarning(account.Handle, true) + "\n")
	}

	var confirmer actions.Confirmer
	if !cfg.Run.AutoConfirm {
		c, err := actions.NewTerminalConfirmer()
		if err != nil {
			if errors.Is(err, actions.ErrNotTerminal) {
				return errors.New("stdin is not a terminal; pass --yes to delete without prompting")
			}
			return err
		}
		confirmer = c
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec := newExecutor(cfg, log)
	client := bluesky.NewClient(cfg.Bluesky.PDS, cfg.Bluesky.Timeout, log)
	client.SetGate(exec.Gate())
	if err := exec.Do(ctx, bluesky.OpCreateSession, func(ctx context.Context) error {
		return client.Login(ctx, account.Handle, account.AppPassword)
	}); err != nil {
		return fmt.Errorf("login as %s failed: %w", account.Handle, err)
	}
	session := client.Session()

	store, err := openStateStore(cfg, session.Handle, log)
	if err != nil {
		return err
	}

	deps := deleter.Deps{
		Source:    feedsource.New(client, exec, cfg.Run.PageSize, log),
		Store:     store,
		Confirmer: confirmer,
		Account:   deleter.Account{DID: session.DID, Handle: session.Handle},
		Observer:  ui.NewPageTracker(cfg.Run.PagesPerRun),
		Logger:    log,
	}
	if cfg.Archive.Enabled {
		deps.Archiver = archive.NewArchiver(client, exec, cfg.Archive.Directory, log)
	}

	d, err := deleter.New(cfg, deps)
	if err != nil {
		return err
	}

	summary, runErr := d.Run(ctx)
	if summary != nil {
		ui.Print("\n" + ui.RenderSummary(summary) + "\n")
		ui.Print(ui.RenderCursorSuggestion(summary.SuggestedLikesFloor))
	}
	return runErr
}

// newExecutor builds the shared request executor from the rate limit settings
func newExecutor(cfg *config.Config, log logger.Logger) *requester.Executor {
	clock := ratelimit.SystemClock{}
	backoff := retry.DefaultExponentialBackoff()
	backoff.BaseDelay = cfg.RateLimit.BaseDelay
	backoff.MaxDelay = cfg.RateLimit.MaxDelay

	return requester.New(requester.Options{
		Gate:        ratelimit.NewGate(cfg.RateLimit.Interval, clock),
		Clock:       clock,
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Backoff:     backoff,
		Logger:      log,
	})
}

func openStateStore(cfg *config.Config, handle string, log logger.Logger) (*state.Store, error) {
	if cfg.State.Path != "" {
		return state.NewStore(cfg.State.Path, log), nil
	}
	store, err := state.NewStoreForHandle(handle, log)
	if err != nil {
		return nil, fmt.Errorf("failed to locate state file: %w", err)
	}
	return store, nil
}

// resolveAccount picks credentials in this order: the --account entry, a
// handle and password from config or environment, a stored entry for the
// configured handle, then the default stored account
func resolveAccount(cfg *config.Config, name string, newManager func() (*auth.Manager, error)) (*auth.Account, error) {
	if name == "" && cfg.Bluesky.Handle != "" && cfg.Bluesky.AppPassword != "" {
		return &auth.Account{
			Handle:      auth.NormalizeHandle(cfg.Bluesky.Handle),
			AppPassword: cfg.Bluesky.AppPassword,
		}, nil
	}

	manager, err := newManager()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	switch {
	case name != "":
		account, err := manager.Retrieve(name)
		if err != nil {
			return nil, fmt.Errorf("%w (see 'skeeterdeleter auth list')", err)
		}
		return account, nil
	case cfg.Bluesky.Handle != "":
		account, err := manager.Retrieve(cfg.Bluesky.Handle)
		if err != nil {
			return nil, fmt.Errorf("no app password for %s: run 'skeeterdeleter auth login %s'", cfg.Bluesky.Handle, cfg.Bluesky.Handle)
		}
		return account, nil
	default:
		account, err := manager.RetrieveDefault()
		if err != nil {
			return nil, errors.New("no Bluesky credentials found: run 'skeeterdeleter auth login' or set SKEETER_HANDLE and SKEETER_APP_PASSWORD")
		}
		return account, nil
	}
}
