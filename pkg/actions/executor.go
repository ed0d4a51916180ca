package actions

import (
	"context"
	"fmt"

	"skeeterdeleter/pkg/criteria"
	errs "skeeterdeleter/pkg/errors"
	"skeeterdeleter/pkg/logger"
	"skeeterdeleter/pkg/models"
)

// Mode selects whether destructive actions are confirmed
type Mode int

const (
	// Interactive asks once per category per page
	Interactive Mode = iota
	// AutoConfirm applies every action without asking
	AutoConfirm
)

// Mutator removes the account's records
type Mutator interface {
	Unlike(ctx context.Context, item models.FeedItem) error
	Delete(ctx context.Context, item models.FeedItem) error
	UndoRepost(ctx context.Context, item models.FeedItem) error
}

// Confirmer asks whether a batch of actions may proceed
type Confirmer interface {
	Confirm(ctx context.Context, decision criteria.Decision, items []models.FeedItem) (bool, error)
}

// Candidate is an item together with the action chosen for it
type Candidate struct {
	Item     models.FeedItem
	Decision criteria.Decision
}

// Result counts the outcome of applying one page of candidates
type Result struct {
	Unliked       int
	Deleted       int
	UndoneReposts int
	Declined      int
	Failed        int
}

// Applied is the number of actions that went through
func (r Result) Applied() int {
	return r.Unliked + r.Deleted + r.UndoneReposts
}

// Add accumulates other into r
func (r *Result) Add(other Result) {
	r.Unliked += other.Unliked
	r.Deleted += other.Deleted
	r.UndoneReposts += other.UndoneReposts
	r.Declined += other.Declined
	r.Failed += other.Failed
}

// categories fixes the order actions are applied in
var categories = []criteria.Decision{criteria.Unlike, criteria.Delete, criteria.UndoRepost}

// Executor applies a page of candidates through a Mutator
type Executor struct {
	mutator   Mutator
	confirmer Confirmer
	mode      Mode
	logger    logger.Logger
}

// NewExecutor creates an action executor. confirmer may be nil in
// AutoConfirm mode.
func NewExecutor(mutator Mutator, confirmer Confirmer, mode Mode, log logger.Logger) *Executor {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Executor{mutator: mutator, confirmer: confirmer, mode: mode, logger: log}
}

// Apply performs the candidates' actions grouped by category. Item failures
// are counted and skipped. Any other failure stops the page and is returned
// together with the counts so far.
func (e *Executor) Apply(ctx context.Context, candidates []Candidate) (Result, error) {
	var result Result

	for _, decision := range categories {
		var items []models.FeedItem
		for _, c := range candidates {
			if c.Decision == decision {
				items = append(items, c.Item)
			}
		}
		if len(items) == 0 {
			continue
		}

		ok, err := e.confirm(ctx, decision, items)
		if err != nil {
			return result, fmt.Errorf("confirmation failed: %w", err)
		}
		if !ok {
			e.logger.InfoWithFields("Actions declined", map[string]interface{}{
				"action": decision.String(),
				"items":  len(items),
			})
			result.Declined += len(items)
			continue
		}

		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			err := e.apply(ctx, decision, item)
			logger.LogAction(decision.String(), item.URI, err)
			if err == nil {
				result.count(decision)
				continue
			}

			if errs.KindOf(err) == errs.ItemActionFailure {
				e.logger.WithError(err).WarnWithFields("Skipping item", map[string]interface{}{
					"action": decision.String(),
					"uri":    item.URI,
				})
				result.Failed++
				continue
			}

			return result, fmt.Errorf("%s %s: %w", decision, item.URI, err)
		}
	}

	return result, nil
}

func (e *Executor) confirm(ctx context.Context, decision criteria.Decision, items []models.FeedItem) (bool, error) {
	if e.mode == AutoConfirm {
		return true, nil
	}
	if e.confirmer == nil {
		return false, fmt.Errorf("interactive mode requires a confirmer")
	}
	return e.confirmer.Confirm(ctx, decision, items)
}

func (e *Executor) apply(ctx context.Context, decision criteria.Decision, item models.FeedItem) error {
	switch decision {
	case criteria.Unlike:
		return e.mutator.Unlike(ctx, item)
	case criteria.Delete:
		return e.mutator.Delete(ctx, item)
	case criteria.UndoRepost:
		return e.mutator.UndoRepost(ctx, item)
	default:
		return fmt.Errorf("no action for decision %s", decision)
	}
}

func (r *Result) count(decision criteria.Decision) {
	switch decision {
	case criteria.Unlike:
		r.Unliked++
	case criteria.Delete:
		r.Deleted++
	case criteria.UndoRepost:
		r.UndoneReposts++
	}
}
