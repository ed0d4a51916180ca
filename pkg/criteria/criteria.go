package criteria

import (
	"net/url"
	"strings"
	"time"

	"skeeterdeleter/pkg/models"
)

// Day is the unit retention thresholds are configured in
const Day = 24 * time.Hour

// Decision is the outcome of classifying one item
type Decision int

const (
	Keep Decision = iota
	Unlike
	Delete
	UndoRepost
)

func (d Decision) String() string {
	switch d {
	case Keep:
		return "keep"
	case Unlike:
		return "unlike"
	case Delete:
		return "delete"
	case UndoRepost:
		return "undo-repost"
	default:
		return "unknown"
	}
}

// Policy holds the retention rules for a run. Zero values disable a rule.
type Policy struct {
	staleAge         time.Duration
	viralReposts     int
	repostUndoAge    time.Duration
	protectedDomains []string
}

// NewPolicy builds a policy. Negative thresholds are treated as disabled;
// domains are lower-cased and stripped of scheme, path and a leading www.
func NewPolicy(staleAge time.Duration, viralReposts int, repostUndoAge time.Duration, domains []string) Policy {
	p := Policy{
		staleAge:      max(0, staleAge),
		viralReposts:  max(0, viralReposts),
		repostUndoAge: max(0, repostUndoAge),
	}
	seen := make(map[string]bool)
	for _, d := range domains {
		if norm := normalizeDomain(d); norm != "" && !seen[norm] {
			seen[norm] = true
			p.protectedDomains = append(p.protectedDomains, norm)
		}
	}
	return p
}

// PolicyFromDays builds a policy from thresholds expressed in days
func PolicyFromDays(staleDays, viralReposts, repostUndoDays int, domains []string) Policy {
	return NewPolicy(time.Duration(staleDays)*Day, viralReposts, time.Duration(repostUndoDays)*Day, domains)
}

func (p Policy) StaleAge() time.Duration      { return p.staleAge }
func (p Policy) ViralReposts() int            { return p.viralReposts }
func (p Policy) RepostUndoAge() time.Duration { return p.repostUndoAge }

// ProtectedDomains returns a copy of the normalised protected domains
func (p Policy) ProtectedDomains() []string {
	return append([]string(nil), p.protectedDomains...)
}

// AppliesToLikes reports whether any like could ever be unliked
func (p Policy) AppliesToLikes() bool {
	return p.staleAge > 0
}

// AppliesToPosts reports whether any post or repost could ever be acted on
func (p Policy) AppliesToPosts() bool {
	return p.staleAge > 0 || p.viralReposts > 0 || p.repostUndoAge > 0
}

// Classify decides what to do with an item from the account's own feed.
// Rules apply in order: self-like, repost age, protected domain, virality,
// staleness.
func Classify(item models.FeedItem, p Policy, now time.Time) Decision {
	if item.SelfLiked {
		return Keep
	}

	if item.IsRepost() {
		if p.repostUndoAge > 0 && olderThan(item, p.repostUndoAge, now) {
			return UndoRepost
		}
		return Keep
	}

	if p.IsProtected(item) {
		return Keep
	}

	if p.viralReposts > 0 && item.RepostCount >= p.viralReposts {
		return Delete
	}

	if p.staleAge > 0 && olderThan(item, p.staleAge, now) {
		return Delete
	}

	return Keep
}

// ClassifyLike decides whether a like should be removed. Only staleness
// applies, and likes on the account's own posts are kept.
func ClassifyLike(item models.FeedItem, p Policy, now time.Time) Decision {
	if item.SelfLiked {
		return Keep
	}
	if p.staleAge > 0 && olderThan(item, p.staleAge, now) {
		return Unlike
	}
	return Keep
}

// IsProtected reports whether the item links to a protected domain
func (p Policy) IsProtected(item models.FeedItem) bool {
	for _, host := range item.LinkDomains {
		host = normalizeDomain(host)
		for _, d := range p.protectedDomains {
			if host == d || strings.HasSuffix(host, "."+d) {
				return true
			}
		}
	}
	return false
}

// olderThan is false for items without a creation time
func olderThan(item models.FeedItem, threshold time.Duration, now time.Time) bool {
	age, ok := item.Age(now)
	return ok && age >= threshold
}

// normalizeDomain reduces a domain or URL to its bare lower-case host
func normalizeDomain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil {
			s = u.Hostname()
		}
	} else if i := strings.IndexAny(s, "/:?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, ".")
	return strings.TrimPrefix(s, "www.")
}

// HostOf returns the normalised host of a link, or "" when it has none
func HostOf(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return normalizeDomain(u.Hostname())
}
