package deleter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skeeterdeleter/pkg/actions"
	"skeeterdeleter/pkg/archive"
	"skeeterdeleter/pkg/config"
	"skeeterdeleter/pkg/criteria"
	errs "skeeterdeleter/pkg/errors"
	"skeeterdeleter/pkg/logger"
	"skeeterdeleter/pkg/models"
	"skeeterdeleter/pkg/ratelimit"
	"skeeterdeleter/pkg/state"
	"skeeterdeleter/pkg/walker"
)

// StateSkipped marks a feed no rule could act on
const StateSkipped = "skipped"

// Deleter runs one bounded pass over the account's likes and posts
type Deleter struct {
	policy   criteria.Policy
	opts     config.RunOptions
	source   Source
	store    *state.Store
	actions  *actions.Executor
	archiver Archiver
	account  Account
	clock    ratelimit.Clock
	observer Observer
	logger   logger.Logger
}

// New wires a deleter from the configuration and its collaborators
func New(cfg *config.Config, deps Deps) (*Deleter, error) {
	if deps.Source == nil {
		return nil, errors.New("a feed source is required")
	}
	if deps.Store == nil {
		return nil, errors.New("a state store is required")
	}
	if deps.Clock == nil {
		deps.Clock = ratelimit.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.GetLogger()
	}

	opts := cfg.RunOptions()
	mode := actions.Interactive
	if opts.AutoConfirm {
		mode = actions.AutoConfirm
	} else if deps.Confirmer == nil {
		return nil, errors.New("interactive runs need a confirmer")
	}

	return &Deleter{
		policy:   cfg.Policy(),
		opts:     opts,
		source:   deps.Source,
		store:    deps.Store,
		actions:  actions.NewExecutor(deps.Source, deps.Confirmer, mode, deps.Logger),
		archiver: deps.Archiver,
		account:  deps.Account,
		clock:    deps.Clock,
		observer: deps.Observer,
		logger:   deps.Logger,
	}, nil
}

// Run archives if enabled, then walks likes and posts from the saved
// cursors, applying the policy page by page. State is saved after every
// completed page, so a failure leaves it at the last page boundary.
func (d *Deleter) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{LikesState: StateSkipped, PostsState: StateSkipped}

	logger.LogComponentStart("deleter", map[string]interface{}{
		"stale_age":      d.policy.StaleAge().String(),
		"viral_reposts":  d.policy.ViralReposts(),
		"repost_undo":    d.policy.RepostUndoAge().String(),
		"domains":        len(d.policy.ProtectedDomains()),
		"pages_per_feed": d.opts.PagesPerRun,
		"auto_confirm":   d.opts.AutoConfirm,
	})

	st, err := d.store.Load()
	if err != nil {
		return d.fail(summary, "state unreadable", err)
	}

	if d.opts.Archive && d.archiver != nil {
		manifest, err := d.archiver.Run(ctx, archive.Snapshot{
			DID:         d.account.DID,
			Handle:      d.account.Handle,
			LikesCursor: st.LastLikesCursor,
			PostsCursor: st.LastPostsCursor,
		})
		if err != nil {
			return d.fail(summary, "archive failed", err)
		}
		summary.Archive = manifest
	}

	st = d.store.ApplyLikesOverride(st, d.opts.FixedLikesCursor)
	st.PagesConsumedThisRun = 0
	summary.LikesCursor = st.LastLikesCursor
	summary.PostsCursor = st.LastPostsCursor

	if d.policy.AppliesToLikes() {
		if err := d.walkLikes(ctx, &st, summary); err != nil {
			return d.fail(summary, "likes walk stopped", err)
		}
	} else {
		d.logger.Info("No rule applies to likes, skipping the likes feed")
	}

	if d.policy.AppliesToPosts() {
		if err := d.walkPosts(ctx, &st, summary); err != nil {
			return d.fail(summary, "posts walk stopped", err)
		}
	} else {
		d.logger.Info("No rule applies to posts, skipping the author feed")
	}

	if err := d.store.Save(st); err != nil {
		return d.fail(summary, "state unwritable", err)
	}

	summary.Reason = summary.stopReason()
	logger.LogRunSummary(summary.Reason, summary.Fields())
	return summary, nil
}

func (d *Deleter) walkLikes(ctx context.Context, st *state.State, summary *Summary) error {
	w := walker.New(d.source.Likes(), walker.Options{
		Feed:        models.FeedLikes,
		StartCursor: st.LastLikesCursor,
		FloorCursor: d.opts.LikesFloorCursor,
		MaxPages:    d.opts.PagesPerRun,
		Logger:      d.logger,
	})

	err := d.walk(ctx, w, func(item models.FeedItem, now time.Time) criteria.Decision {
		return criteria.ClassifyLike(item, d.policy, now)
	}, func(page *models.Page) error {
		st.LastLikesCursor = w.Cursor()
		summary.PagesLikes++
		summary.LikesCursor = st.LastLikesCursor
		summary.SuggestedLikesFloor = page.NextCursor
		if summary.SuggestedLikesFloor == "" {
			summary.SuggestedLikesFloor = page.Cursor
		}
		return d.savePage(st)
	}, summary)

	summary.LikesState = w.State().String()
	return err
}

func (d *Deleter) walkPosts(ctx context.Context, st *state.State, summary *Summary) error {
	w := walker.New(d.source.Posts(), walker.Options{
		Feed:        models.FeedPosts,
		StartCursor: st.LastPostsCursor,
		MaxPages:    d.opts.PagesPerRun,
		Logger:      d.logger,
	})

	err := d.walk(ctx, w, func(item models.FeedItem, now time.Time) criteria.Decision {
		return criteria.Classify(item, d.policy, now)
	}, func(page *models.Page) error {
		st.LastPostsCursor = w.Cursor()
		summary.PagesPosts++
		summary.PostsCursor = st.LastPostsCursor
		return d.savePage(st)
	}, summary)

	summary.PostsState = w.State().String()
	return err
}

type classifyFunc func(item models.FeedItem, now time.Time) criteria.Decision

// walk drives one feed. pageDone runs only after every action of a page has
// been applied; it advances and persists the cursor.
func (d *Deleter) walk(ctx context.Context, w *walker.Walker, classify classifyFunc, pageDone func(*models.Page) error, summary *Summary) error {
	for {
		page, ok := w.Next(ctx)
		if !ok {
			break
		}
		logger.LogPage(string(page.Feed), page.Number, page.Cursor, len(page.Items))

		now := d.clock.Now()
		var candidates []actions.Candidate
		kept := 0
		for _, item := range page.Items {
			decision := classify(item, now)
			if decision == criteria.Keep {
				kept++
				continue
			}
			d.logger.DebugWithFields("Item selected", map[string]interface{}{
				"uri":      item.URI,
				"kind":     string(item.Kind),
				"decision": decision.String(),
			})
			candidates = append(candidates, actions.Candidate{Item: item, Decision: decision})
		}
		summary.Kept += kept

		result, err := d.actions.Apply(ctx, candidates)
		summary.add(result)
		if d.observer != nil {
			d.observer.PageProcessed(page, result, kept)
		}
		if err != nil {
			return err
		}

		if err := pageDone(page); err != nil {
			return err
		}
	}

	if w.State() == walker.Error {
		return w.Err()
	}
	return nil
}

func (d *Deleter) savePage(st *state.State) error {
	st.PagesConsumedThisRun++
	if err := d.store.Save(*st); err != nil {
		return errs.NewFailure(errs.FatalFailure, 0, err)
	}
	return nil
}

func (d *Deleter) fail(summary *Summary, reason string, err error) (*Summary, error) {
	summary.Reason = reason
	summary.Err = err

	fields := summary.Fields()
	fields["failure"] = string(errs.KindOf(err))
	d.logger.WithError(err).ErrorWithFields("Run aborted", fields)
	logger.LogRunSummary(reason, summary.Fields())

	return summary, fmt.Errorf("%s: %w", reason, err)
}
