package models

import "time"

// Feed names the remote feed an item was read from
type Feed string

const (
	FeedLikes Feed = "likes"
	FeedPosts Feed = "posts"
)

// ItemKind is what a feed entry represents
type ItemKind string

const (
	KindPost   ItemKind = "post"
	KindReply  ItemKind = "reply"
	KindRepost ItemKind = "repost"
	KindLike   ItemKind = "like"
)

// FeedItem is one entry of a feed page, reduced to what classification and
// the mutations need. It is never modified after it is built.
type FeedItem struct {
	// URI is the subject post's at:// URI
	URI  string
	CID  string
	Kind ItemKind

	// CreatedAt is when the account created this entry: the post's
	// createdAt, or the time of the repost
	CreatedAt time.Time

	AuthorDID    string
	AuthorHandle string
	RepostCount  int

	// LinkDomains are the hosts of every outbound link in the post
	LinkDomains []string

	// SelfLiked is set when the account has liked its own post
	SelfLiked bool

	// LikeURI is the account's like record, if any
	LikeURI string
	// RepostURI is the account's repost record, if any
	RepostURI string

	// Text is a short preview for prompts and logs
	Text string
}

// IsRepost reports whether the item is a repost by the account
func (i FeedItem) IsRepost() bool {
	return i.Kind == KindRepost
}

// Age returns how long ago the item was created. The boolean is false when
// the creation time is unknown.
func (i FeedItem) Age(now time.Time) (time.Duration, bool) {
	if i.CreatedAt.IsZero() {
		return 0, false
	}
	return now.Sub(i.CreatedAt), true
}

// Page is one fetched page of a feed together with the cursor that follows it
type Page struct {
	Feed       Feed
	Number     int
	Cursor     string
	NextCursor string
	Items      []FeedItem
}
