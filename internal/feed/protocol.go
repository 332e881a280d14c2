// Package feed implements the live-feed session protocol: the JSON envelope
// spoken over a connection and the adapter that binds connections to the hub,
// the store and the curation pipeline.
package feed

import (
	"encoding/json"
	"time"

	"feedhub/pkg/types"
)

// Message types carried in the envelope.
const (
	// Server to client.
	TypeInitialFeed = "initial_feed"
	TypeDelta       = "delta"
	TypeAck         = "ack"
	TypeError       = "error"

	// Client to server.
	TypeInteraction = "interaction"
	TypePing        = "ping"
)

// Error codes carried in ErrorPayload.
const (
	CodeBadMessage         = "bad_message"
	CodeInvalidInteraction = "invalid_interaction"
	CodeItemNotFound       = "item_not_found"
	CodeStoreUnavailable   = "store_unavailable"
	CodeFeedUnavailable    = "feed_unavailable"
)

// Envelope is the framing for every message in either direction. Payload
// holds the type-specific body; ServerTimestamp is set by the server on
// outbound messages and ignored on inbound ones.
type Envelope struct {
	Type            string          `json:"type"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	ServerTimestamp time.Time       `json:"serverTimestamp,omitempty"`
}

// InitialFeedPayload carries the first curated page after attach.
type InitialFeedPayload struct {
	Items      []types.FeedEntry `json:"items"`
	HasMore    bool              `json:"hasMore"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

// DeltaPayload is an incremental counter update fanned out to the rooms
// affected by an interaction. Recipients patch the item in place.
type DeltaPayload struct {
	ItemID   string `json:"item_id"`
	Action   string `json:"action"`
	ActorID  string `json:"actor_id"`
	Likes    int64  `json:"likes"`
	Comments int64  `json:"comments"`
	Shares   int64  `json:"shares"`
}

// AckPayload confirms a client interaction back to its originator only.
type AckPayload struct {
	EventID string `json:"event_id"`
	ItemID  string `json:"item_id"`
	Action  string `json:"action"`
}

// ErrorPayload reports a failed client message. Retryable tells the client
// whether resending the same message may succeed later.
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	EventID   string `json:"event_id,omitempty"`
	Retryable bool   `json:"retryable"`
}

// InteractionPayload is a client-submitted interaction. EventID is chosen by
// the client and echoed in the ack so it can match responses to requests.
type InteractionPayload struct {
	EventID string `json:"event_id"`
	ItemID  string `json:"item_id"`
	Action  string `json:"action"`
	Body    string `json:"body,omitempty"`
}

// RoomKey names the per-user feed room sessions are fanned out through.
func RoomKey(userID string) string {
	return "feed:" + userID
}

// newEnvelope wraps a payload for sending. Marshal errors cannot happen for
// the payload structs above, so they are swallowed here.
func newEnvelope(msgType string, payload any) Envelope {
	raw, _ := json.Marshal(payload)
	return Envelope{
		Type:            msgType,
		Payload:         raw,
		ServerTimestamp: time.Now().UTC(),
	}
}
