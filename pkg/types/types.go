package types

import (
	"time"
)

// ContentKind is the closed set of content types a feed item can carry.
type ContentKind string

const (
	KindText      ContentKind = "text"
	KindImage     ContentKind = "image"
	KindVideo     ContentKind = "video"
	KindPoll      ContentKind = "poll"
	KindEphemeral ContentKind = "ephemeral"
)

// FeedVariant selects the candidate pool and ranking behavior for a feed query.
type FeedVariant string

const (
	VariantHome      FeedVariant = "home"
	VariantTrending  FeedVariant = "trending"
	VariantFollowing FeedVariant = "following"
)

// Interaction actions accepted over a live connection.
const (
	ActionLike     = "like"
	ActionUnlike   = "unlike"
	ActionComment  = "comment"
	ActionShare    = "share"
	ActionBookmark = "bookmark"
)

// FeedItem is the canonical content unit. Counters are aggregates shared by
// every viewer; anything viewer-specific lives in ViewerState, never here.
type FeedItem struct {
	ID         string      `json:"id"`
	AuthorID   string      `json:"author_id"`
	AuthorName string      `json:"author_name"`
	Body       string      `json:"body"`
	Kind       ContentKind `json:"kind"`
	Promoted   bool        `json:"promoted,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Likes      int64       `json:"likes"`
	Comments   int64       `json:"comments"`
	Shares     int64       `json:"shares"`
}

// ViewerState is the per-request projection computed for the requesting user.
// It is derived from a batched interaction lookup and from authorship, and is
// never stored on the canonical record.
type ViewerState struct {
	HasLiked      bool `json:"has_liked"`
	HasBookmarked bool `json:"has_bookmarked"`
	CanEdit       bool `json:"can_edit"`
	CanDelete     bool `json:"can_delete"`
}

// FeedEntry decorates a canonical item with its relevance score and the
// requesting viewer's projection.
type FeedEntry struct {
	Item   FeedItem    `json:"item"`
	Score  float64     `json:"score"`
	Viewer ViewerState `json:"viewer"`
}

// InteractionState is the stored per-user state for one item, returned by the
// batched interaction lookup.
type InteractionState struct {
	Liked      bool
	Bookmarked bool
}

// CurationParams describes one feed request.
type CurationParams struct {
	UserID          string
	Variant         FeedVariant
	Kinds           []ContentKind // empty means all kinds
	MaxAge          time.Duration // zero means unbounded
	DiversityFactor float64       // [0,1]; 0 disables author suppression
	IncludePromoted bool
}

// WantsKind reports whether the params admit the given content kind.
func (p CurationParams) WantsKind(k ContentKind) bool {
	if len(p.Kinds) == 0 {
		return true
	}
	for _, want := range p.Kinds {
		if want == k {
			return true
		}
	}
	return false
}

// UserContext carries the cached personalization signals for one user.
// AuthorWeights holds non-negative interaction weights for followed authors;
// KindAffinity holds per-kind multipliers, defaulting to 1.0 when absent.
type UserContext struct {
	UserID        string
	Follows       map[string]bool
	AuthorWeights map[string]float64
	KindAffinity  map[ContentKind]float64
	ComputedAt    time.Time
}

// FollowsAuthor reports whether the context's user follows the given author.
func (c *UserContext) FollowsAuthor(authorID string) bool {
	if c == nil {
		return false
	}
	return c.Follows[authorID]
}

// AffinityFor returns the kind affinity multiplier, 1.0 when unknown.
func (c *UserContext) AffinityFor(kind ContentKind) float64 {
	if c == nil {
		return 1.0
	}
	if a, ok := c.KindAffinity[kind]; ok {
		return a
	}
	return 1.0
}

// InteractionEvent is one client interaction to be persisted and fanned out.
type InteractionEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ItemID    string    `json:"item_id"`
	Action    string    `json:"action"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
