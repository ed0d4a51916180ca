package bluesky

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// XRPC method identifiers
const (
	OpCreateSession  = "com.atproto.server.createSession"
	OpRefreshSession = "com.atproto.server.refreshSession"
	OpGetActorLikes  = "app.bsky.feed.getActorLikes"
	OpGetAuthorFeed  = "app.bsky.feed.getAuthorFeed"
	OpDeleteRecord   = "com.atproto.repo.deleteRecord"
	OpGetRepo        = "com.atproto.sync.getRepo"
	OpListBlobs      = "com.atproto.sync.listBlobs"
	OpGetBlob        = "com.atproto.sync.getBlob"
)

// Collections the tool deletes from
const (
	CollectionPost   = "app.bsky.feed.post"
	CollectionLike   = "app.bsky.feed.like"
	CollectionRepost = "app.bsky.feed.repost"
)

const (
	// MaxPageLimit is the largest page the feed endpoints serve
	MaxPageLimit = 100

	// AuthorFeedFilter includes replies alongside top level posts and reposts
	AuthorFeedFilter = "posts_with_replies"
)

// ATURI is a parsed at:// record URI
type ATURI struct {
	Repo       string
	Collection string
	RKey       string
}

func (u ATURI) String() string {
	return fmt.Sprintf("at://%s/%s/%s", u.Repo, u.Collection, u.RKey)
}

// ParseATURI splits at://<repo>/<collection>/<rkey>
func ParseATURI(raw string) (ATURI, error) {
	rest, ok := strings.CutPrefix(raw, "at://")
	if !ok {
		return ATURI{}, fmt.Errorf("not an at:// URI: %q", raw)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return ATURI{}, fmt.Errorf("record URI must have repo, collection and rkey: %q", raw)
	}
	return ATURI{Repo: parts[0], Collection: parts[1], RKey: parts[2]}, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

// GetActorLikes fetches one page of posts the actor has liked
func (c *Client) GetActorLikes(ctx context.Context, actor, cursor string, limit int) (*FeedResponse, error) {
	params := url.Values{}
	params.Set("actor", actor)
	params.Set("limit", strconv.Itoa(clampLimit(limit)))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var resp FeedResponse
	if err := c.get(ctx, OpGetActorLikes, params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAuthorFeed fetches one page of the actor's posts, replies and reposts
func (c *Client) GetAuthorFeed(ctx context.Context, actor, cursor string, limit int) (*FeedResponse, error) {
	params := url.Values{}
	params.Set("actor", actor)
	params.Set("limit", strconv.Itoa(clampLimit(limit)))
	params.Set("filter", AuthorFeedFilter)
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var resp FeedResponse
	if err := c.get(ctx, OpGetAuthorFeed, params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteRecord deletes the record at the given at:// URI. The record must
// belong to the logged in account.
func (c *Client) DeleteRecord(ctx context.Context, recordURI string) error {
	target, err := ParseATURI(recordURI)
	if err != nil {
		return err
	}
	if did := c.Session().DID; did != "" && target.Repo != did {
		return fmt.Errorf("refusing to delete %s: record belongs to %s, not %s", recordURI, target.Repo, did)
	}

	body := map[string]string{
		"repo":       target.Repo,
		"collection": target.Collection,
		"rkey":       target.RKey,
	}
	return c.post(ctx, OpDeleteRecord, body, nil, true)
}

// GetRepo downloads the full repository of did as CAR bytes
func (c *Client) GetRepo(ctx context.Context, did string) ([]byte, error) {
	params := url.Values{}
	params.Set("did", did)
	return c.getBytes(ctx, OpGetRepo, params)
}

// ListBlobs fetches one page of blob CIDs stored for did
func (c *Client) ListBlobs(ctx context.Context, did, cursor string, limit int) (*ListBlobsResponse, error) {
	params := url.Values{}
	params.Set("did", did)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var resp ListBlobsResponse
	if err := c.get(ctx, OpListBlobs, params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetBlob downloads a single blob
func (c *Client) GetBlob(ctx context.Context, did, cid string) ([]byte, error) {
	params := url.Values{}
	params.Set("did", did)
	params.Set("cid", cid)
	return c.getBytes(ctx, OpGetBlob, params)
}
