package feedsource

import (
	"bytes"
	"strings"
	"time"

	"skeeterdeleter/pkg/bluesky"
	"skeeterdeleter/pkg/criteria"
	"skeeterdeleter/pkg/models"
)

const previewLength = 80

// LikeItem converts an entry of the account's likes feed. The like's age is
// the liked post's creation time. Likes on the account's own posts are marked
// self-liked.
func LikeItem(entry *bluesky.FeedViewPost, me string) (models.FeedItem, bool) {
	post := &entry.Post
	item := models.FeedItem{
		URI:          post.URI,
		CID:          post.CID,
		Kind:         models.KindLike,
		CreatedAt:    createdAt(post),
		AuthorDID:    post.Author.DID,
		AuthorHandle: post.Author.Handle,
		RepostCount:  post.RepostCount,
		LinkDomains:  linkDomains(post),
		SelfLiked:    post.Author.DID == me,
		Text:         preview(post.Record.Text),
	}
	if post.Viewer != nil {
		item.LikeURI = post.Viewer.Like
		item.RepostURI = post.Viewer.Repost
	}
	return item, true
}

// PostItem converts an entry of the account's author feed. Entries that are
// neither authored nor reposted by the account are rejected.
func PostItem(entry *bluesky.FeedViewPost, me string) (models.FeedItem, bool) {
	post := &entry.Post
	item := models.FeedItem{
		URI:          post.URI,
		CID:          post.CID,
		AuthorDID:    post.Author.DID,
		AuthorHandle: post.Author.Handle,
		RepostCount:  post.RepostCount,
		LinkDomains:  linkDomains(post),
		Text:         preview(post.Record.Text),
	}
	if post.Viewer != nil {
		item.LikeURI = post.Viewer.Like
		item.RepostURI = post.Viewer.Repost
	}

	if entry.IsRepost() {
		if entry.Reason.By.DID != me {
			return models.FeedItem{}, false
		}
		item.Kind = models.KindRepost
		item.CreatedAt = entry.Reason.IndexedAt.Time
		item.SelfLiked = post.Author.DID == me && item.LikeURI != ""
		return item, true
	}

	if post.Author.DID != me {
		return models.FeedItem{}, false
	}

	item.Kind = models.KindPost
	if isReply(post.Record.Reply) {
		item.Kind = models.KindReply
	}
	item.CreatedAt = createdAt(post)
	item.SelfLiked = item.LikeURI != ""
	return item, true
}

// createdAt prefers the record's own timestamp over the index time
func createdAt(post *bluesky.PostView) time.Time {
	if !post.Record.CreatedAt.IsZero() {
		return post.Record.CreatedAt.Time
	}
	return post.IndexedAt.Time
}

func isReply(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// linkDomains collects the hosts of the link card and inline links
func linkDomains(post *bluesky.PostView) []string {
	var links []string
	if embed := post.Embed; embed != nil {
		if embed.External != nil {
			links = append(links, embed.External.URI)
		}
		if embed.Media != nil && embed.Media.External != nil {
			links = append(links, embed.Media.External.URI)
		}
	}
	for _, facet := range post.Record.Facets {
		for _, feature := range facet.Features {
			if feature.Type == bluesky.TypeFacetLink && feature.URI != "" {
				links = append(links, feature.URI)
			}
		}
	}

	var hosts []string
	seen := make(map[string]bool)
	for _, link := range links {
		if host := criteria.HostOf(link); host != "" && !seen[host] {
			seen[host] = true
			hosts = append(hosts, host)
		}
	}
	return hosts
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength-1]) + "…"
}
