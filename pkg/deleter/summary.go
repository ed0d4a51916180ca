package deleter

import (
	"skeeterdeleter/pkg/actions"
	"skeeterdeleter/pkg/archive"
	"skeeterdeleter/pkg/walker"
)

// Summary reports what a run did and where it stopped
type Summary struct {
	PagesLikes    int
	PagesPosts    int
	Unliked       int
	Deleted       int
	UndoneReposts int
	Kept          int
	Skipped       int
	Failed        int

	// LikesCursor and PostsCursor are the persisted resume cursors
	LikesCursor string
	PostsCursor string

	// LikesState and PostsState are walker states, or "skipped"
	LikesState string
	PostsState string

	// SuggestedLikesFloor is the oldest likes cursor this run reached; passing
	// it as a floor stops later runs from walking past it again
	SuggestedLikesFloor string

	Archive *archive.Manifest

	Reason string
	Err    error
}

func (s *Summary) add(r actions.Result) {
	s.Unliked += r.Unliked
	s.Deleted += r.Deleted
	s.UndoneReposts += r.UndoneReposts
	s.Skipped += r.Declined
	s.Failed += r.Failed
}

// Pages is the total number of pages processed
func (s *Summary) Pages() int {
	return s.PagesLikes + s.PagesPosts
}

// Complete reports whether both feeds were walked to their end
func (s *Summary) Complete() bool {
	return feedDone(s.LikesState) && feedDone(s.PostsState)
}

func feedDone(st string) bool {
	return st == StateSkipped || st == walker.Exhausted.String() || st == walker.FloorReached.String()
}

func (s *Summary) stopReason() string {
	if s.Complete() {
		return "all feeds traversed"
	}
	return "page budget used"
}

// Fields renders the summary for structured logs
func (s *Summary) Fields() map[string]interface{} {
	return map[string]interface{}{
		"pages_likes":    s.PagesLikes,
		"pages_posts":    s.PagesPosts,
		"unliked":        s.Unliked,
		"deleted":        s.Deleted,
		"undone_reposts": s.UndoneReposts,
		"kept":           s.Kept,
		"skipped":        s.Skipped,
		"failed":         s.Failed,
		"likes_cursor":   s.LikesCursor,
		"posts_cursor":   s.PostsCursor,
		"likes_state":    s.LikesState,
		"posts_state":    s.PostsState,
	}
}
