package deleter

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"skeeterdeleter/internal/feedsource"
	"skeeterdeleter/internal/pdstest"
	"skeeterdeleter/pkg/actions"
	"skeeterdeleter/pkg/archive"
	"skeeterdeleter/pkg/bluesky"
	"skeeterdeleter/pkg/config"
	"skeeterdeleter/pkg/criteria"
	errs "skeeterdeleter/pkg/errors"
	"skeeterdeleter/pkg/logger"
	"skeeterdeleter/pkg/models"
	"skeeterdeleter/pkg/ratelimit"
	"skeeterdeleter/pkg/requester"
	"skeeterdeleter/pkg/state"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return now.Add(-time.Duration(n) * 24 * time.Hour)
}

type harness struct {
	pds      *pdstest.Server
	client   *bluesky.Client
	exec     *requester.Executor
	store    *state.Store
	clock    *ratelimit.FakeClock
	log      *logger.TestLogger
	archives string
}

func newHarness(t *testing.T, pds *pdstest.Server) *harness {
	t.Helper()
	tl := logger.NewTestLogger()
	client := bluesky.NewClient(pds.URL, 5*time.Second, tl)
	require.NoError(t, client.Login(context.Background(), pds.Handle, "app-password"))

	clock := ratelimit.NewFakeClock(now)
	exec := requester.New(requester.Options{Gate: ratelimit.NewGate(ratelimit.DefaultInterval, clock), Clock: clock, Logger: tl})
	client.SetGate(exec.Gate())
	dir := t.TempDir()
	return &harness{
		pds:      pds,
		client:   client,
		exec:     exec,
		store:    state.NewStore(filepath.Join(dir, "state", "tester.state.json"), tl),
		clock:    clock,
		log:      tl,
		archives: filepath.Join(dir, "archive"),
	}
}

func (h *harness) deleter(t *testing.T, cfg *config.Config, confirmer actions.Confirmer) *Deleter {
	t.Helper()
	session := h.client.Session()
	d, err := New(cfg, Deps{
		Source:    feedsource.New(h.client, h.exec, cfg.Run.PageSize, h.log),
		Store:     h.store,
		Confirmer: confirmer,
		Archiver:  archive.NewArchiver(h.client, h.exec, h.archives, h.log),
		Account:   Account{DID: session.DID, Handle: session.Handle},
		Clock:     h.clock,
		Logger:    h.log,
	})
	require.NoError(t, err)
	return d
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Retention = config.RetentionConfig{
		StaleDays:        30,
		ViralReposts:     20,
		RepostUndoDays:   7,
		ProtectedDomains: []string{"example.com"},
	}
	cfg.Run.AutoConfirm = true
	cfg.Archive.Enabled = false
	return cfg
}

// seed fills the fake PDS with two pages of likes and two pages of posts
func seed(pds *pdstest.Server) {
	me := pds.DID
	friend := "did:plc:friend"
	pds.SetLikes(
		[]bluesky.FeedViewPost{
			pdstest.Post(friend, "l-old", daysAgo(100), pdstest.LikedBy(me, "la")),
			pdstest.Post(friend, "l-new", daysAgo(1), pdstest.LikedBy(me, "lb")),
		},
		[]bluesky.FeedViewPost{
			pdstest.Post(me, "l-self", daysAgo(100), pdstest.LikedBy(me, "lc")),
		},
	)
	pds.SetPosts(
		[]bluesky.FeedViewPost{
			pdstest.Post(me, "old", daysAgo(100)),
			pdstest.Post(me, "fresh", daysAgo(1)),
			pdstest.Post(me, "viral", daysAgo(1), pdstest.WithReposts(50)),
		},
		[]bluesky.FeedViewPost{
			pdstest.Post(me, "protected", daysAgo(100), pdstest.WithExternalLink("https://www.example.com/story")),
			pdstest.Post(me, "selfliked", daysAgo(100), pdstest.LikedBy(me, "sl")),
			pdstest.Post(friend, "boosted", daysAgo(100), pdstest.RepostedBy(me, "r1", daysAgo(10))),
		},
	)
}

func record(did, collection, rkey string) string {
	return fmt.Sprintf("at://%s/%s/%s", did, collection, rkey)
}

func TestFullRun(t *testing.T) {
	pds := pdstest.New(t)
	seed(pds)
	h := newHarness(t, pds)

	summary, err := h.deleter(t, testConfig(), nil).Run(context.Background())
	require.NoError(t, err)

	me := pds.DID
	assert.Equal(t, []string{
		record(me, bluesky.CollectionLike, "la"),
		record(me, bluesky.CollectionPost, "old"),
		record(me, bluesky.CollectionPost, "viral"),
		record(me, bluesky.CollectionRepost, "r1"),
	}, pds.Deleted())

	assert.Equal(t, 1, summary.Unliked)
	assert.Equal(t, 2, summary.Deleted)
	assert.Equal(t, 1, summary.UndoneReposts)
	assert.Equal(t, 5, summary.Kept)
	assert.Equal(t, 2, summary.PagesLikes)
	assert.Equal(t, 2, summary.PagesPosts)
	assert.Equal(t, "exhausted", summary.LikesState)
	assert.Equal(t, "exhausted", summary.PostsState)
	assert.True(t, summary.Complete())
	assert.Equal(t, "all feeds traversed", summary.Reason)
	assert.Equal(t, pdstest.CursorAfter(0), summary.SuggestedLikesFloor)

	st, err := h.store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.LastLikesCursor, "an exhausted feed restarts from the top")
	assert.Empty(t, st.LastPostsCursor)
	assert.Equal(t, 4, st.PagesConsumedThisRun)
}

func TestEveryRequestPassesTheGate(t *testing.T) {
	pds := pdstest.New(t)
	seed(pds)
	h := newHarness(t, pds)

	_, err := h.deleter(t, testConfig(), nil).Run(context.Background())
	require.NoError(t, err)

	requests := pds.Calls(bluesky.OpGetActorLikes) + pds.Calls(bluesky.OpGetAuthorFeed) + pds.Calls(bluesky.OpDeleteRecord)
	assert.Equal(t, requests, h.exec.Gate().Admitted())
	for _, d := range h.clock.Sleeps() {
		assert.Equal(t, ratelimit.DefaultInterval, d)
	}
}

func TestSessionRefreshPassesTheGate(t *testing.T) {
	pds := pdstest.New(t)
	seed(pds)
	h := newHarness(t, pds)
	pds.ExpireAccessToken()

	_, err := h.deleter(t, testConfig(), nil).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, pds.Calls(bluesky.OpRefreshSession))
	requests := pds.Calls(bluesky.OpGetActorLikes) + pds.Calls(bluesky.OpGetAuthorFeed) +
		pds.Calls(bluesky.OpDeleteRecord) + pds.Calls(bluesky.OpRefreshSession)
	assert.Equal(t, requests, h.exec.Gate().Admitted())
	for _, d := range h.clock.Sleeps() {
		assert.Equal(t, ratelimit.DefaultInterval, d)
	}
}

func TestBudgetStopAndResume(t *testing.T) {
	pds := pdstest.New(t)
	seed(pds)
	h := newHarness(t, pds)
	cfg := testConfig()
	cfg.Run.PagesPerRun = 1

	first, err := h.deleter(t, cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "page budget used", first.Reason)
	assert.Equal(t, "active", first.LikesState)
	assert.False(t, first.Complete())

	st, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, pdstest.CursorAfter(0), st.LastLikesCursor)
	assert.Equal(t, pdstest.CursorAfter(0), st.LastPostsCursor)

	second, err := h.deleter(t, cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Complete())

	assert.Equal(t, []string{"", pdstest.CursorAfter(0)}, pds.RequestedCursors(bluesky.OpGetActorLikes), "no likes page is read twice")
	assert.Equal(t, []string{"", pdstest.CursorAfter(0)}, pds.RequestedCursors(bluesky.OpGetAuthorFeed))
	assert.Len(t, pds.Deleted(), 4)
}

func TestFatalActionFailureKeepsLastPageBoundary(t *testing.T) {
	pds := pdstest.New(t)
	seed(pds)
	me := pds.DID
	pds.FailDelete(record(me, bluesky.CollectionRepost, "r1"), pdstest.Failure{Status: http.StatusForbidden})
	h := newHarness(t, pds)

	summary, err := h.deleter(t, testConfig(), nil).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.FatalFailure, errs.KindOf(err))
	assert.Equal(t, "posts walk stopped", summary.Reason)
	assert.Equal(t, 1, summary.PagesPosts, "the failed page is not counted")

	st, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, pdstest.CursorAfter(0), st.LastPostsCursor)
	assert.True(t, h.log.HasMessage("Run aborted"))
}

func TestTransientFailureAfterThreeAttempts(t *testing.T) {
	pds := pdstest.New(t)
	seed(pds)
	unavailable := pdstest.Failure{Status: http.StatusServiceUnavailable}
	pds.Inject(bluesky.OpGetAuthorFeed, unavailable, unavailable, unavailable)
	h := newHarness(t, pds)

	summary, err := h.deleter(t, testConfig(), nil).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.TransientFailure, errs.KindOf(err))
	assert.Equal(t, 3, pds.Calls(bluesky.OpGetAuthorFeed))
	assert.Equal(t, "error", summary.PostsState)
	assert.Equal(t, "exhausted", summary.LikesState)
	assert.Equal(t, 1, summary.Unliked, "likes processed before the failure stay done")
}

func TestFeedsWithoutApplicableRulesAreSkipped(t *testing.T) {
	pds := pdstest.New(t)
	seed(pds)
	h := newHarness(t, pds)
	cfg := testConfig()
	cfg.Retention = config.RetentionConfig{ViralReposts: 20}

	summary, err := h.deleter(t, cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, pds.Calls(bluesky.OpGetActorLikes))
	assert.Equal(t, StateSkipped, summary.LikesState)
	assert.Equal(t, 1, summary.Deleted)

	cfg.Retention = config.RetentionConfig{}
	summary, err = h.deleter(t, cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, pds.Calls(bluesky.OpGetAuthorFeed), "no further feed reads with every rule off")
	assert.True(t, summary.Complete())
}

func TestFixedLikesCursorOverride(t *testing.T) {
	pds := pdstest.New(t)
	seed(pds)
	h := newHarness(t, pds)
	cfg := testConfig()
	cfg.Run.FixedLikesCursor = pdstest.CursorAfter(0)
	cfg.Run.PagesPerRun = 1

	_, err := h.deleter(t, cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{pdstest.CursorAfter(0)}, pds.RequestedCursors(bluesky.OpGetActorLikes))
}

func TestFixedLikesCursorNotSavedWhenFirstFetchFails(t *testing.T) {
	pds := pdstest.New(t)
	seed(pds)
	h := newHarness(t, pds)
	require.NoError(t, h.store.Save(state.State{LastLikesCursor: "stored", LastPostsCursor: "posts"}))
	pds.Inject(bluesky.OpGetActorLikes, pdstest.Failure{Status: http.StatusForbidden})

	cfg := testConfig()
	cfg.Run.FixedLikesCursor = pdstest.CursorAfter(0)
	_, err := h.deleter(t, cfg, nil).Run(context.Background())
	require.Error(t, err)

	st, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, "stored", st.LastLikesCursor)
	assert.Equal(t, "posts", st.LastPostsCursor)
}

func TestLikesFloor(t *testing.T) {
	pds := pdstest.New(t)
	var pages [][]bluesky.FeedViewPost
	for i := 0; i < 5; i++ {
		pages = append(pages, []bluesky.FeedViewPost{
			pdstest.Post("did:plc:friend", fmt.Sprintf("p%d", i), daysAgo(100), pdstest.LikedBy(pds.DID, fmt.Sprintf("l%d", i))),
		})
	}
	pds.SetLikes(pages...)
	h := newHarness(t, pds)
	cfg := testConfig()
	cfg.Retention = config.RetentionConfig{StaleDays: 30}
	cfg.Run.LikesFloorCursor = pdstest.CursorAfter(1)

	summary, err := h.deleter(t, cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.PagesLikes)
	assert.Equal(t, "floor-reached", summary.LikesState)
	assert.Equal(t, 2, summary.Unliked)
	assert.Equal(t, pdstest.CursorAfter(1), summary.SuggestedLikesFloor)
}

type declineAll struct{ asked int }

func (d *declineAll) Confirm(ctx context.Context, decision criteria.Decision, items []models.FeedItem) (bool, error) {
	d.asked++
	return false, nil
}

func TestInteractiveDecline(t *testing.T) {
	pds := pdstest.New(t)
	seed(pds)
	h := newHarness(t, pds)
	cfg := testConfig()
	cfg.Run.AutoConfirm = false
	confirmer := &declineAll{}

	summary, err := h.deleter(t, cfg, confirmer).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pds.Deleted())
	assert.Equal(t, 4, summary.Skipped)
	assert.Equal(t, 3, confirmer.asked, "one prompt per category per page")
}

func TestInteractiveRequiresConfirmer(t *testing.T) {
	cfg := testConfig()
	cfg.Run.AutoConfirm = false
	pds := pdstest.New(t)
	h := newHarness(t, pds)

	_, err := New(cfg, Deps{Source: feedsource.New(h.client, h.exec, 0, h.log), Store: h.store})
	assert.ErrorContains(t, err, "confirmer")
}

func TestArchiveRunsBeforeDeletion(t *testing.T) {
	pds := pdstest.New(t)
	seed(pds)
	pds.SetRepo([]byte("car"))
	pds.AddBlob("bafyimg", []byte{0xff, 0xd8, 0xff})
	h := newHarness(t, pds)
	cfg := testConfig()
	cfg.Archive.Enabled = true

	summary, err := h.deleter(t, cfg, nil).Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary.Archive)
	assert.Len(t, summary.Archive.Blobs, 1)
	assert.FileExists(t, filepath.Join(h.archives, "did_plc_testaccount", archive.ManifestFileName(summary.Archive.Snapshot)))
}

func TestArchiveFailureStopsBeforeDeleting(t *testing.T) {
	pds := pdstest.New(t)
	seed(pds)
	pds.Inject(bluesky.OpGetRepo, pdstest.Failure{Status: http.StatusForbidden})
	h := newHarness(t, pds)
	cfg := testConfig()
	cfg.Archive.Enabled = true

	summary, err := h.deleter(t, cfg, nil).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "archive failed", summary.Reason)
	assert.Empty(t, pds.Deleted())
	assert.Equal(t, 0, pds.Calls(bluesky.OpGetActorLikes))
}
