package pdstest

import (
	"fmt"
	"time"

	"skeeterdeleter/pkg/bluesky"
)

// PostOption adjusts a fixture entry
type PostOption func(*bluesky.FeedViewPost)

// Post builds a feed entry for a post authored by did
func Post(did, rkey string, createdAt time.Time, opts ...PostOption) bluesky.FeedViewPost {
	entry := bluesky.FeedViewPost{
		Post: bluesky.PostView{
			URI:    fmt.Sprintf("at://%s/%s/%s", did, bluesky.CollectionPost, rkey),
			CID:    "bafy" + rkey,
			Author: bluesky.ProfileView{DID: did, Handle: "author.test"},
			Record: bluesky.PostRecord{
				Text:      "post " + rkey,
				CreatedAt: bluesky.Datetime{Time: createdAt},
			},
			IndexedAt: bluesky.Datetime{Time: createdAt},
			Viewer:    &bluesky.ViewerState{},
		},
	}
	for _, opt := range opts {
		opt(&entry)
	}
	return entry
}

// WithReposts sets the repost count
func WithReposts(n int) PostOption {
	return func(e *bluesky.FeedViewPost) { e.Post.RepostCount = n }
}

// WithExternalLink attaches a link card
func WithExternalLink(uri string) PostOption {
	return func(e *bluesky.FeedViewPost) {
		e.Post.Embed = &bluesky.EmbedView{
			Type:     bluesky.TypeEmbedExternalView,
			External: &bluesky.ExternalView{URI: uri},
		}
	}
}

// WithFacetLink adds an inline link to the post text
func WithFacetLink(uri string) PostOption {
	return func(e *bluesky.FeedViewPost) {
		e.Post.Record.Facets = append(e.Post.Record.Facets, bluesky.Facet{
			Features: []bluesky.FacetFeature{{Type: bluesky.TypeFacetLink, URI: uri}},
		})
	}
}

// AsReply marks the post as a reply
func AsReply() PostOption {
	return func(e *bluesky.FeedViewPost) {
		e.Post.Record.Reply = []byte(`{"root":{},"parent":{}}`)
	}
}

// LikedBy sets the viewer's like record, owned by did
func LikedBy(did, rkey string) PostOption {
	return func(e *bluesky.FeedViewPost) {
		e.Post.Viewer.Like = fmt.Sprintf("at://%s/%s/%s", did, bluesky.CollectionLike, rkey)
	}
}

// RepostedBy turns the entry into a repost by did at the given time
func RepostedBy(did, rkey string, at time.Time) PostOption {
	return func(e *bluesky.FeedViewPost) {
		e.Post.Viewer.Repost = fmt.Sprintf("at://%s/%s/%s", did, bluesky.CollectionRepost, rkey)
		e.Reason = &bluesky.Reason{
			Type:      bluesky.TypeReasonRepost,
			By:        bluesky.ProfileView{DID: did},
			IndexedAt: bluesky.Datetime{Time: at},
		}
	}
}
