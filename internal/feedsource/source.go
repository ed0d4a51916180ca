// Package feedsource binds the Bluesky client to the walker and the action
// executor. Every remote call goes through the shared request executor.
package feedsource

import (
	"context"
	"fmt"

	"skeeterdeleter/pkg/bluesky"
	errs "skeeterdeleter/pkg/errors"
	"skeeterdeleter/pkg/logger"
	"skeeterdeleter/pkg/models"
	"skeeterdeleter/pkg/requester"
	"skeeterdeleter/pkg/walker"
)

// Client is the part of the Bluesky client the source uses
type Client interface {
	Session() bluesky.Session
	GetActorLikes(ctx context.Context, actor, cursor string, limit int) (*bluesky.FeedResponse, error)
	GetAuthorFeed(ctx context.Context, actor, cursor string, limit int) (*bluesky.FeedResponse, error)
	DeleteRecord(ctx context.Context, recordURI string) error
}

// Source reads the account's feeds and removes its records
type Source struct {
	client   Client
	exec     *requester.Executor
	pageSize int
	logger   logger.Logger
}

// New creates a source. pageSize is clamped to the API maximum.
func New(client Client, exec *requester.Executor, pageSize int, log logger.Logger) *Source {
	if pageSize <= 0 || pageSize > bluesky.MaxPageLimit {
		pageSize = bluesky.MaxPageLimit
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Source{client: client, exec: exec, pageSize: pageSize, logger: log}
}

// Likes returns the fetcher for the account's likes feed
func (s *Source) Likes() walker.PageFetcher {
	return walker.FetcherFunc(func(ctx context.Context, cursor string) (*models.Page, error) {
		return s.fetch(ctx, models.FeedLikes, bluesky.OpGetActorLikes, cursor, s.client.GetActorLikes)
	})
}

// Posts returns the fetcher for the account's posts, replies and reposts
func (s *Source) Posts() walker.PageFetcher {
	return walker.FetcherFunc(func(ctx context.Context, cursor string) (*models.Page, error) {
		return s.fetch(ctx, models.FeedPosts, bluesky.OpGetAuthorFeed, cursor, s.client.GetAuthorFeed)
	})
}

type feedCall func(ctx context.Context, actor, cursor string, limit int) (*bluesky.FeedResponse, error)

func (s *Source) fetch(ctx context.Context, feed models.Feed, op, cursor string, call feedCall) (*models.Page, error) {
	me := s.client.Session().DID
	if me == "" {
		return nil, errs.NewFailure(errs.FatalFailure, 0, fmt.Errorf("%s: not logged in", op))
	}

	resp, err := requester.Call(ctx, s.exec, op, func(ctx context.Context) (*bluesky.FeedResponse, error) {
		return call(ctx, me, cursor, s.pageSize)
	})
	if err != nil {
		return nil, err
	}

	page := &models.Page{Feed: feed, Cursor: cursor, NextCursor: resp.Cursor}
	for i := range resp.Feed {
		var (
			item models.FeedItem
			ok   bool
		)
		if feed == models.FeedLikes {
			item, ok = LikeItem(&resp.Feed[i], me)
		} else {
			item, ok = PostItem(&resp.Feed[i], me)
		}
		if !ok {
			s.logger.DebugWithFields("Skipping foreign feed entry", map[string]interface{}{
				"feed": string(feed),
				"uri":  resp.Feed[i].Post.URI,
			})
			continue
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// Unlike deletes the account's like record for the item
func (s *Source) Unlike(ctx context.Context, item models.FeedItem) error {
	return s.deleteRecord(ctx, item.LikeURI, "like")
}

// Delete deletes the account's own post or reply
func (s *Source) Delete(ctx context.Context, item models.FeedItem) error {
	return s.deleteRecord(ctx, item.URI, "post")
}

// UndoRepost deletes the account's repost record
func (s *Source) UndoRepost(ctx context.Context, item models.FeedItem) error {
	return s.deleteRecord(ctx, item.RepostURI, "repost")
}

func (s *Source) deleteRecord(ctx context.Context, uri, what string) error {
	if uri == "" {
		return errs.NewFailure(errs.ItemActionFailure, 0, &errs.Error{
			Type:    errs.ErrorTypeNotFound,
			Message: fmt.Sprintf("item has no %s record", what),
			Op:      bluesky.OpDeleteRecord,
		})
	}
	return s.exec.Do(ctx, bluesky.OpDeleteRecord, func(ctx context.Context) error {
		return s.client.DeleteRecord(ctx, uri)
	})
}
