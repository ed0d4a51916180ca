package bluesky

import (
	"encoding/json"
	"strings"
	"time"
)

// Record and embed type identifiers
const (
	TypeReasonRepost         = "app.bsky.feed.defs#reasonRepost"
	TypeEmbedExternalView    = "app.bsky.embed.external#view"
	TypeEmbedRecordWithMedia = "app.bsky.embed.recordWithMedia#view"
	TypeFacetLink            = "app.bsky.richtext.facet#link"
)

// FeedResponse is the page shape shared by getActorLikes and getAuthorFeed
type FeedResponse struct {
	Cursor string         `json:"cursor,omitempty"`
	Feed   []FeedViewPost `json:"feed"`
}

// FeedViewPost is app.bsky.feed.defs#feedViewPost
type FeedViewPost struct {
	Post   PostView `json:"post"`
	Reason *Reason  `json:"reason,omitempty"`
}

// IsRepost reports whether the entry is a repost rather than an authored post
func (f *FeedViewPost) IsRepost() bool {
	return f.Reason != nil && f.Reason.Type == TypeReasonRepost
}

// PostView is app.bsky.feed.defs#postView
type PostView struct {
	URI         string       `json:"uri"`
	CID         string       `json:"cid"`
	Author      ProfileView  `json:"author"`
	Record      PostRecord   `json:"record"`
	Embed       *EmbedView   `json:"embed,omitempty"`
	ReplyCount  int          `json:"replyCount"`
	RepostCount int          `json:"repostCount"`
	LikeCount   int          `json:"likeCount"`
	IndexedAt   Datetime     `json:"indexedAt"`
	Viewer      *ViewerState `json:"viewer,omitempty"`
}

// ProfileView is the author summary embedded in a post
type ProfileView struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
}

// ViewerState carries the requesting account's own like and repost records
type ViewerState struct {
	Like   string `json:"like,omitempty"`
	Repost string `json:"repost,omitempty"`
}

// PostRecord is the subset of app.bsky.feed.post the tool reads
type PostRecord struct {
	Text      string          `json:"text"`
	CreatedAt Datetime        `json:"createdAt"`
	Reply     json.RawMessage `json:"reply,omitempty"`
	Facets    []Facet         `json:"facets,omitempty"`
}

// Facet is app.bsky.richtext.facet
type Facet struct {
	Features []FacetFeature `json:"features"`
}

// FacetFeature is one facet feature; only links carry a URI
type FacetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri,omitempty"`
}

// EmbedView covers the embed views that can carry an external link
type EmbedView struct {
	Type     string        `json:"$type"`
	External *ExternalView `json:"external,omitempty"`
	Media    *EmbedView    `json:"media,omitempty"`
}

// ExternalView is an external link card
type ExternalView struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

// Reason explains why an entry appears in a feed
type Reason struct {
	Type      string      `json:"$type"`
	By        ProfileView `json:"by"`
	IndexedAt Datetime    `json:"indexedAt"`
}

// ListBlobsResponse is the com.atproto.sync.listBlobs output
type ListBlobsResponse struct {
	Cursor string   `json:"cursor,omitempty"`
	CIDs   []string `json:"cids"`
}

// Datetime parses the timestamp formats found in real records. Values that
// match none of them decode to the zero time instead of failing the page.
type Datetime struct {
	time.Time
}

var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999-0700",
}

func (d *Datetime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	raw = strings.TrimSpace(raw)
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	d.Time = time.Time{}
	return nil
}

func (d Datetime) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.Time.Format(time.RFC3339Nano))
}
