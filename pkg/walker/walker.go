// Package walker pages through a cursor-paginated feed, stopping at a
// floor cursor, at the end of the feed or when the page budget is spent.
package walker

import (
	"context"

	"skeeterdeleter/pkg/logger"
	"skeeterdeleter/pkg/models"
)

// State is the traversal state of a walker
type State int

const (
	// Active means more pages may be requested
	Active State = iota
	// FloorReached means the next cursor passed the configured floor
	FloorReached
	// Exhausted means the feed has no further pages
	Exhausted
	// Error means a page request failed
	Error
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case FloorReached:
		return "floor-reached"
	case Exhausted:
		return "exhausted"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Done reports whether the feed has been fully traversed
func (s State) Done() bool {
	return s == FloorReached || s == Exhausted
}

// PageFetcher fetches the page that starts at cursor. An empty cursor asks
// for the newest page. The returned page carries its items and next cursor.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor string) (*models.Page, error)
}

// FetcherFunc adapts a function to PageFetcher
type FetcherFunc func(ctx context.Context, cursor string) (*models.Page, error)

func (f FetcherFunc) FetchPage(ctx context.Context, cursor string) (*models.Page, error) {
	return f(ctx, cursor)
}

// Options configures a walk
type Options struct {
	Feed models.Feed

	// StartCursor resumes a previous walk; empty starts at the newest item
	StartCursor string

	// FloorCursor stops the walk once the next cursor sorts at or below it
	FloorCursor string

	// MaxPages bounds the pages requested by this walker; zero is unbounded
	MaxPages int

	Logger logger.Logger
}

// Walker pages backwards through one feed, one request per step
type Walker struct {
	fetcher PageFetcher
	opts    Options
	logger  logger.Logger

	state  State
	cursor string
	pages  int
	err    error
}

// New creates a walker positioned at opts.StartCursor
func New(fetcher PageFetcher, opts Options) *Walker {
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	return &Walker{
		fetcher: fetcher,
		opts:    opts,
		logger:  opts.Logger.WithField("feed", string(opts.Feed)),
		state:   Active,
		cursor:  opts.StartCursor,
	}
}

// Next requests the next page. It returns false without a request once the
// walk is over or the page budget is spent, and false after a failed request,
// in which case Err reports why and the cursor is left unchanged.
func (w *Walker) Next(ctx context.Context) (*models.Page, bool) {
	if w.state != Active || w.BudgetSpent() {
		return nil, false
	}

	requested := w.cursor
	page, err := w.fetcher.FetchPage(ctx, requested)
	if err != nil {
		w.state = Error
		w.err = err
		w.logger.WithError(err).WarnWithFields("Page request failed", map[string]interface{}{
			"cursor": requested,
		})
		return nil, false
	}

	w.pages++
	page.Feed = w.opts.Feed
	page.Number = w.pages
	page.Cursor = requested

	next := page.NextCursor
	switch {
	case next == "" || next == requested:
		w.state = Exhausted
		w.cursor = ""
	case w.opts.FloorCursor != "" && next <= w.opts.FloorCursor:
		w.state = FloorReached
		w.cursor = ""
	default:
		w.cursor = next
	}

	w.logger.DebugWithFields("Page fetched", map[string]interface{}{
		"page":   w.pages,
		"cursor": requested,
		"next":   next,
		"items":  len(page.Items),
		"state":  w.state.String(),
	})

	return page, true
}

// State returns the current traversal state
func (w *Walker) State() State {
	return w.state
}

// Err returns the error that moved the walker to Error
func (w *Walker) Err() error {
	return w.err
}

// Cursor returns the cursor to persist once the last yielded page has been
// fully processed. It is empty after the feed is done, so the next run starts
// from the newest item again.
func (w *Walker) Cursor() string {
	return w.cursor
}

// Pages returns the number of pages fetched so far
func (w *Walker) Pages() int {
	return w.pages
}

// BudgetSpent reports whether the page budget has been used up
func (w *Walker) BudgetSpent() bool {
	return w.opts.MaxPages > 0 && w.pages >= w.opts.MaxPages
}
