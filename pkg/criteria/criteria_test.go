package criteria

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"skeeterdeleter/pkg/models"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return now.Add(-time.Duration(n) * Day)
}

func post(created time.Time, reposts int) models.FeedItem {
	return models.FeedItem{
		URI:         "at://did:plc:me/app.bsky.feed.post/1",
		Kind:        models.KindPost,
		CreatedAt:   created,
		RepostCount: reposts,
	}
}

func TestClassifyScenarios(t *testing.T) {
	tests := []struct {
		name     string
		item     models.FeedItem
		policy   Policy
		expected Decision
	}{
		{
			name:     "stale post",
			item:     post(daysAgo(100), 0),
			policy:   PolicyFromDays(50, 0, 0, nil),
			expected: Delete,
		},
		{
			name:     "viral post",
			item:     post(daysAgo(1), 30),
			policy:   PolicyFromDays(0, 20, 0, nil),
			expected: Delete,
		},
		{
			name: "self-liked old post",
			item: func() models.FeedItem {
				i := post(daysAgo(500), 0)
				i.SelfLiked = true
				return i
			}(),
			policy:   PolicyFromDays(50, 0, 0, nil),
			expected: Keep,
		},
		{
			name: "protected domain",
			item: func() models.FeedItem {
				i := post(daysAgo(1000), 0)
				i.LinkDomains = []string{"news.example.com"}
				return i
			}(),
			policy:   PolicyFromDays(10, 0, 0, []string{"example.com"}),
			expected: Keep,
		},
		{
			name:     "repost past undo age",
			item:     models.FeedItem{Kind: models.KindRepost, CreatedAt: daysAgo(10)},
			policy:   PolicyFromDays(0, 0, 7, nil),
			expected: UndoRepost,
		},
		{
			name:     "repost with undo disabled",
			item:     models.FeedItem{Kind: models.KindRepost, CreatedAt: daysAgo(10)},
			policy:   PolicyFromDays(0, 0, 0, nil),
			expected: Keep,
		},
		{
			name:     "fresh unpopular post",
			item:     post(daysAgo(3), 2),
			policy:   PolicyFromDays(50, 20, 0, nil),
			expected: Keep,
		},
		{
			name:     "all rules off",
			item:     post(daysAgo(5000), 5000),
			policy:   PolicyFromDays(0, 0, 0, nil),
			expected: Keep,
		},
		{
			name:     "stale exactly at threshold",
			item:     post(daysAgo(50), 0),
			policy:   PolicyFromDays(50, 0, 0, nil),
			expected: Delete,
		},
		{
			name:     "viral exactly at threshold",
			item:     post(daysAgo(1), 20),
			policy:   PolicyFromDays(0, 20, 0, nil),
			expected: Delete,
		},
		{
			name:     "unknown creation time is never stale",
			item:     post(time.Time{}, 0),
			policy:   PolicyFromDays(1, 0, 0, nil),
			expected: Keep,
		},
		{
			name:     "reply follows post rules",
			item:     models.FeedItem{Kind: models.KindReply, CreatedAt: daysAgo(60)},
			policy:   PolicyFromDays(50, 0, 0, nil),
			expected: Delete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.item, tt.policy, now))
		})
	}
}

func TestSelfLikeOverridesEverything(t *testing.T) {
	item := post(daysAgo(900), 900)
	item.SelfLiked = true
	policy := PolicyFromDays(1, 1, 1, nil)

	assert.Equal(t, Keep, Classify(item, policy, now))

	item.Kind = models.KindRepost
	assert.Equal(t, Keep, Classify(item, policy, now))
	assert.Equal(t, Keep, ClassifyLike(item, policy, now))
}

func TestSelfLikedRepostIsKept(t *testing.T) {
	item := models.FeedItem{
		URI:       "at://did:plc:me/app.bsky.feed.post/1",
		Kind:      models.KindRepost,
		CreatedAt: daysAgo(30),
		AuthorDID: "did:plc:me",
		LikeURI:   "at://did:plc:me/app.bsky.feed.like/l1",
		RepostURI: "at://did:plc:me/app.bsky.feed.repost/r1",
		SelfLiked: true,
	}
	policy := PolicyFromDays(0, 0, 7, nil)

	assert.Equal(t, Keep, Classify(item, policy, now))

	item.SelfLiked = false
	assert.Equal(t, UndoRepost, Classify(item, policy, now))
}

func TestRepostsNeverDeleted(t *testing.T) {
	policy := PolicyFromDays(1, 1, 0, []string{"example.com"})
	for _, age := range []int{0, 2, 400} {
		for _, reposts := range []int{0, 1, 1000} {
			item := models.FeedItem{Kind: models.KindRepost, CreatedAt: daysAgo(age), RepostCount: reposts}
			d := Classify(item, policy, now)
			assert.Contains(t, []Decision{Keep, UndoRepost}, d)
		}
	}

	withUndo := PolicyFromDays(1, 1, 1, nil)
	assert.Equal(t, UndoRepost, Classify(models.FeedItem{Kind: models.KindRepost, CreatedAt: daysAgo(2)}, withUndo, now))
}

func TestProtectedDomainBeatsVirality(t *testing.T) {
	item := post(daysAgo(1), 100)
	item.LinkDomains = []string{"WWW.Example.COM"}
	assert.Equal(t, Keep, Classify(item, PolicyFromDays(0, 10, 0, []string{"https://example.com/path"}), now))
}

func TestClassifyIsDeterministic(t *testing.T) {
	item := post(daysAgo(70), 12)
	policy := PolicyFromDays(60, 10, 0, []string{"example.org"})
	first := Classify(item, policy, now)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Classify(item, policy, now))
	}
}

func TestClassifyLike(t *testing.T) {
	like := models.FeedItem{Kind: models.KindLike, CreatedAt: daysAgo(100), RepostCount: 1000, LinkDomains: []string{"example.com"}}

	assert.Equal(t, Unlike, ClassifyLike(like, PolicyFromDays(50, 0, 0, []string{"example.com"}), now),
		"domains and virality do not apply to likes")
	assert.Equal(t, Keep, ClassifyLike(like, PolicyFromDays(0, 10, 0, nil), now))
	assert.Equal(t, Keep, ClassifyLike(like, PolicyFromDays(200, 0, 0, nil), now))

	like.SelfLiked = true
	assert.Equal(t, Keep, ClassifyLike(like, PolicyFromDays(50, 0, 0, nil), now))
}

func TestIsProtected(t *testing.T) {
	policy := NewPolicy(0, 0, 0, []string{" Example.com ", "blog.test.org", "", "example.com"})
	assert.Equal(t, []string{"example.com", "blog.test.org"}, policy.ProtectedDomains())

	tests := []struct {
		host      string
		protected bool
	}{
		{"example.com", true},
		{"www.example.com", true},
		{"cdn.example.com", true},
		{"notexample.com", false},
		{"example.com.evil.net", false},
		{"test.org", false},
		{"blog.test.org", true},
	}
	for _, tt := range tests {
		item := models.FeedItem{LinkDomains: []string{tt.host}}
		assert.Equal(t, tt.protected, policy.IsProtected(item), tt.host)
	}
}

func TestPolicyApplies(t *testing.T) {
	assert.False(t, PolicyFromDays(0, 0, 0, nil).AppliesToLikes())
	assert.False(t, PolicyFromDays(0, 0, 0, nil).AppliesToPosts())
	assert.True(t, PolicyFromDays(0, 0, 3, nil).AppliesToPosts())
	assert.False(t, PolicyFromDays(0, 5, 3, nil).AppliesToLikes())
	assert.True(t, PolicyFromDays(9, 0, 0, nil).AppliesToLikes())
	assert.Equal(t, 0, NewPolicy(-time.Hour, -3, -time.Hour, nil).ViralReposts())
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "example.com", HostOf("https://www.Example.com/a?b=c"))
	assert.Equal(t, "", HostOf("not a url"))
	assert.Equal(t, "", HostOf("mailto:me@example.com"))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "undo-repost", UndoRepost.String())
	assert.Equal(t, "keep", Keep.String())
}
