package types

import "errors"

// Failure taxonomy shared across components. Callers classify with errors.Is.
var (
	// ErrCapacityExceeded: the session registry is full. New attaches are
	// rejected; existing sessions are never evicted to make room.
	ErrCapacityExceeded = errors.New("session capacity exceeded")

	// ErrContextUnavailable: personalization signals could not be resolved
	// and no stale value is usable. Curation degrades to recency ranking.
	ErrContextUnavailable = errors.New("user context unavailable")

	// ErrDeliveryFailed: a send to one recipient failed. Contained per
	// recipient; never propagated to the broadcast caller.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrInvalidInteraction: malformed or out-of-policy client event. The
	// connection stays open.
	ErrInvalidInteraction = errors.New("invalid interaction")

	// ErrStoreUnavailable: the backing store failed during an operation.
	// Surfaced to the originating client as retryable.
	ErrStoreUnavailable = errors.New("store unavailable")
)
