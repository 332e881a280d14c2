// Package store owns durable posts, follows and interaction history.
package store

import (
	"context"

	"feedhub/pkg/types"
)

// InteractionResult reports the outcome of a recorded interaction: the
// item's author (fan-out target) and the item's updated aggregate counters.
type InteractionResult struct {
	AuthorID string
	Likes    int64
	Comments int64
	Shares   int64
}

// Store is the persistence boundary consumed by curation, signals and the
// session adapter.
type Store interface {
	// FetchCandidates returns up to limit canonical items matching the
	// params, newest first (engagement first for the trending variant).
	FetchCandidates(ctx context.Context, params types.CurationParams, limit int) ([]types.FeedItem, error)

	// FetchInteractionState returns per-item viewer state for the given
	// user in one batched lookup.
	FetchInteractionState(ctx context.Context, userID string, itemIDs []string) (map[string]types.InteractionState, error)

	// RecordInteraction persists one event and updates the item's counters.
	RecordInteraction(ctx context.Context, event types.InteractionEvent) (*InteractionResult, error)

	// FetchUserContext recomputes a user's social graph and preference
	// signals from durable state.
	FetchUserContext(ctx context.Context, userID string) (*types.UserContext, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
