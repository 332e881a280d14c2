// Package curation scores, ranks and paginates content per user.
package curation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"feedhub/pkg/types"
)

// CandidateSource is the slice of the store the curation pipeline reads.
type CandidateSource interface {
	FetchCandidates(ctx context.Context, params types.CurationParams, limit int) ([]types.FeedItem, error)
	FetchInteractionState(ctx context.Context, userID string, itemIDs []string) (map[string]types.InteractionState, error)
}

// ContextProvider resolves personalization signals.
type ContextProvider interface {
	GetContext(ctx context.Context, userID string) (*types.UserContext, error)
}

// DurationObserver records curation latency.
type DurationObserver interface {
	ObserveCuration(variant string, seconds float64)
}

// Page is one curated feed page.
type Page struct {
	Entries    []types.FeedEntry `json:"items"`
	HasMore    bool              `json:"hasMore"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

// Service runs the curation pipeline: resolve context, fetch candidates,
// score, order, apply diversity, paginate, enrich.
type Service struct {
	source  CandidateSource
	signals ContextProvider
	scorer  *Scorer
	pool    int
	obs     DurationObserver
	log     zerolog.Logger
}

// NewService creates a curation Service. pool bounds how many candidates are
// pulled from the store per query.
func NewService(source CandidateSource, signals ContextProvider, scorer *Scorer, pool int, log zerolog.Logger) *Service {
	return &Service{
		source:  source,
		signals: signals,
		scorer:  scorer,
		pool:    pool,
		log:     log.With().Str("component", "curation").Logger(),
	}
}

// SetObserver attaches a metrics observer. Optional.
func (s *Service) SetObserver(o DurationObserver) {
	s.obs = o
}

type scoredItem struct {
	item  types.FeedItem
	score float64
}

// GetFeed returns one page of the user's curated feed. An empty cursor
// starts from the top; the returned cursor resumes with the immediately
// following page. An anonymous user (empty UserID in params) receives the
// baseline non-personalized ranking with no viewer enrichment.
func (s *Service) GetFeed(ctx context.Context, params types.CurationParams, cursor string, limit int) (*Page, error) {
	start := time.Now()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	var cur *Cursor
	if cursor != "" {
		var err error
		if cur, err = DecodeCursor(cursor); err != nil {
			return nil, err
		}
	}

	uctx, degraded := s.resolveContext(ctx, params)

	candidates, err := s.source.FetchCandidates(ctx, params, s.pool)
	if err != nil {
		return nil, fmt.Errorf("fetching candidates: %w", err)
	}

	scored := make([]scoredItem, 0, len(candidates))
	for _, item := range candidates {
		sc := scoredItem{item: item}
		if degraded {
			sc.score = s.scorer.RecencyScore(item)
		} else {
			sc.score = s.scorer.Score(item, uctx)
		}
		scored = append(scored, sc)
	}

	// Score descending; ties broken by id descending so the ordering is
	// total and pages are reproducible.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].item.ID > scored[j].item.ID
	})

	if cur != nil {
		scored = after(scored, cur)
	}

	page := pick(scored, limit, authorCap(params.DiversityFactor, limit))
	hasMore := len(page) > limit
	if hasMore {
		page = page[:limit]
	}

	entries, err := s.enrich(ctx, params.UserID, page)
	if err != nil {
		return nil, err
	}

	result := &Page{Entries: entries, HasMore: hasMore}
	if hasMore {
		last := page[len(page)-1]
		result.NextCursor = Cursor{LastID: last.item.ID, LastScore: last.score}.Encode()
	}

	if s.obs != nil {
		s.obs.ObserveCuration(string(params.Variant), time.Since(start).Seconds())
	}
	return result, nil
}

// resolveContext returns the viewer's signals. Trending and anonymous
// queries are unpersonalized by definition; a failed resolution degrades to
// the recency-only ranking instead of failing the request.
func (s *Service) resolveContext(ctx context.Context, params types.CurationParams) (*types.UserContext, bool) {
	if params.UserID == "" || params.Variant == types.VariantTrending {
		return nil, false
	}
	uctx, err := s.signals.GetContext(ctx, params.UserID)
	if err != nil {
		if !errors.Is(err, types.ErrContextUnavailable) {
			s.log.Error().Err(err).Str("user_id", params.UserID).Msg("context resolution failed")
		}
		s.log.Warn().Str("user_id", params.UserID).Msg("serving recency-only feed without personalization")
		return nil, true
	}
	return uctx, false
}

// after drops everything at or before the cursor position.
func after(scored []scoredItem, cur *Cursor) []scoredItem {
	out := scored[:0]
	for _, sc := range scored {
		if cur.follows(sc.score, sc.item.ID) {
			out = append(out, sc)
		}
	}
	return out
}

// authorCap converts the diversity factor into a per-author page cap.
// Zero means uncapped.
func authorCap(diversity float64, limit int) int {
	if diversity <= 0 {
		return 0
	}
	perAuthor := int(math.Ceil((1 - diversity) * float64(limit)))
	if perAuthor < 1 {
		perAuthor = 1
	}
	return perAuthor
}

// pick takes up to limit+1 items in order, skipping items from authors
// already at the cap and refilling from the surplus. The extra item only
// decides hasMore.
func pick(scored []scoredItem, limit, maxPerAuthor int) []scoredItem {
	page := make([]scoredItem, 0, limit+1)
	perAuthor := make(map[string]int)
	for _, sc := range scored {
		if maxPerAuthor > 0 && perAuthor[sc.item.AuthorID] >= maxPerAuthor {
			continue
		}
		page = append(page, sc)
		perAuthor[sc.item.AuthorID]++
		if len(page) == limit+1 {
			break
		}
	}
	return page
}

// enrich attaches per-viewer state to the retained items with one batched
// lookup. The canonical items are never mutated with viewer data.
func (s *Service) enrich(ctx context.Context, userID string, page []scoredItem) ([]types.FeedEntry, error) {
	entries := make([]types.FeedEntry, 0, len(page))

	var state map[string]types.InteractionState
	if userID != "" && len(page) > 0 {
		ids := make([]string, 0, len(page))
		for _, sc := range page {
			ids = append(ids, sc.item.ID)
		}
		var err error
		if state, err = s.source.FetchInteractionState(ctx, userID, ids); err != nil {
			return nil, fmt.Errorf("fetching interaction state: %w", err)
		}
	}

	for _, sc := range page {
		entry := types.FeedEntry{Item: sc.item, Score: sc.score}
		if userID != "" {
			st := state[sc.item.ID]
			owned := sc.item.AuthorID == userID
			entry.Viewer = types.ViewerState{
				HasLiked:      st.Liked,
				HasBookmarked: st.Bookmarked,
				CanEdit:       owned,
				CanDelete:     owned,
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
