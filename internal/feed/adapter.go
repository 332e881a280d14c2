package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"feedhub/internal/curation"
	"feedhub/internal/hub"
	"feedhub/internal/store"
	"feedhub/pkg/types"
)

// FeedProvider serves curated pages. Satisfied by *curation.Service.
type FeedProvider interface {
	GetFeed(ctx context.Context, params types.CurationParams, cursor string, limit int) (*curation.Page, error)
}

// InteractionStore persists interactions. Satisfied by the SQLite store.
type InteractionStore interface {
	RecordInteraction(ctx context.Context, event types.InteractionEvent) (*store.InteractionResult, error)
}

// ContextInvalidator drops a user's cached personalization signals after
// their behavior changes. Satisfied by *signals.Provider.
type ContextInvalidator interface {
	Invalidate(userID string)
}

// InteractionObserver records interaction outcomes by action and result.
type InteractionObserver interface {
	ObserveInteraction(action, result string)
}

// Interaction results reported to the observer.
const (
	resultOK          = "ok"
	resultInvalid     = "invalid"
	resultNotFound    = "not_found"
	resultUnavailable = "unavailable"
)

// Reader yields one inbound client message per call, blocking until a
// message arrives or the transport fails.
type Reader interface {
	Read() ([]byte, error)
}

// Adapter binds a live connection to the hub and drives the session
// protocol: initial page on attach, interaction handling, delta fan-out.
type Adapter struct {
	hub     *hub.Manager
	feeds   FeedProvider
	store   InteractionStore
	signals ContextInvalidator
	obs     InteractionObserver
	limit   int
	log     zerolog.Logger
	now     func() time.Time
}

// NewAdapter creates an Adapter. limit sizes the initial page sent on
// attach; signals may be nil when no cache invalidation is wanted.
func NewAdapter(h *hub.Manager, feeds FeedProvider, st InteractionStore, signals ContextInvalidator, limit int, log zerolog.Logger) *Adapter {
	return &Adapter{
		hub:     h,
		feeds:   feeds,
		store:   st,
		signals: signals,
		limit:   limit,
		log:     log.With().Str("component", "feed").Logger(),
		now:     time.Now,
	}
}

// SetObserver attaches a metrics observer. Optional.
func (a *Adapter) SetObserver(o InteractionObserver) {
	a.obs = o
}

func (a *Adapter) observe(action, result string) {
	if a.obs != nil {
		a.obs.ObserveInteraction(action, result)
	}
}

// Attach registers the connection in the user's feed room and pushes the
// initial curated page. A curation failure is reported over the connection
// but never tears it down; the client can poll or wait for deltas.
func (a *Adapter) Attach(ctx context.Context, userID string, conn hub.Conn) (*hub.Session, error) {
	sess, err := a.hub.Connect(userID, conn, RoomKey(userID))
	if err != nil {
		return nil, err
	}

	params := types.CurationParams{UserID: userID, Variant: types.VariantHome}
	page, err := a.feeds.GetFeed(ctx, params, "", a.limit)
	if err != nil {
		a.log.Error().Err(err).Str("user_id", userID).Msg("initial feed failed")
		a.sendError(sess, ErrorPayload{
			Code:      CodeFeedUnavailable,
			Message:   "initial feed unavailable",
			Retryable: true,
		})
		return sess, nil
	}

	env := newEnvelope(TypeInitialFeed, InitialFeedPayload{
		Items:      page.Entries,
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
	})
	if err := a.hub.SendToSession(sess, env); err != nil {
		return nil, fmt.Errorf("sending initial feed: %w", err)
	}
	return sess, nil
}

// Serve pumps inbound messages for the session until the transport fails or
// ctx is cancelled, then disconnects the session. Malformed or rejected
// messages produce an error envelope and keep the session alive.
func (a *Adapter) Serve(ctx context.Context, sess *hub.Session, r Reader) {
	defer a.hub.Disconnect(sess)
	for {
		data, err := r.Read()
		if err != nil {
			a.log.Debug().Err(err).Str("session_id", sess.ID()).Msg("read loop ended")
			return
		}
		if ctx.Err() != nil {
			return
		}
		a.dispatch(ctx, sess, data)
	}
}

func (a *Adapter) dispatch(ctx context.Context, sess *hub.Session, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		a.sendError(sess, ErrorPayload{Code: CodeBadMessage, Message: "malformed envelope"})
		return
	}

	switch env.Type {
	case TypePing:
		sess.Touch()
		a.hub.SendToSession(sess, newEnvelope(TypeAck, AckPayload{Action: TypePing}))
	case TypeInteraction:
		a.handleInteraction(ctx, sess, env.Payload)
	default:
		a.sendError(sess, ErrorPayload{
			Code:    CodeBadMessage,
			Message: fmt.Sprintf("unknown message type %q", env.Type),
		})
	}
}

// handleInteraction persists the event, then fans the updated counters out
// to the author's room and the actor's other devices before acking the
// originator. Persist strictly precedes fan-out so no client ever sees a
// counter the store does not hold.
func (a *Adapter) handleInteraction(ctx context.Context, sess *hub.Session, raw json.RawMessage) {
	var p InteractionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		a.sendError(sess, ErrorPayload{Code: CodeBadMessage, Message: "malformed interaction payload"})
		return
	}
	if p.EventID == "" {
		p.EventID = uuid.New().String()
	}

	event := types.InteractionEvent{
		ID:        p.EventID,
		UserID:    sess.UserID(),
		ItemID:    p.ItemID,
		Action:    p.Action,
		Body:      p.Body,
		CreatedAt: a.now().UTC(),
	}
	if err := event.Validate(); err != nil {
		a.observe(event.Action, resultInvalid)
		a.sendError(sess, ErrorPayload{
			Code:    CodeInvalidInteraction,
			Message: err.Error(),
			EventID: p.EventID,
		})
		return
	}

	result, err := a.store.RecordInteraction(ctx, event)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			a.observe(event.Action, resultNotFound)
			a.sendError(sess, ErrorPayload{
				Code:    CodeItemNotFound,
				Message: "item does not exist",
				EventID: p.EventID,
			})
			return
		}
		a.observe(event.Action, resultUnavailable)
		a.log.Error().Err(err).Str("event_id", p.EventID).Msg("interaction persist failed")
		a.sendError(sess, ErrorPayload{
			Code:      CodeStoreUnavailable,
			Message:   "interaction not recorded",
			EventID:   p.EventID,
			Retryable: true,
		})
		return
	}
	a.observe(event.Action, resultOK)

	if a.signals != nil {
		a.signals.Invalidate(sess.UserID())
	}

	delta := newEnvelope(TypeDelta, DeltaPayload{
		ItemID:   event.ItemID,
		Action:   event.Action,
		ActorID:  event.UserID,
		Likes:    result.Likes,
		Comments: result.Comments,
		Shares:   result.Shares,
	})
	a.hub.BroadcastToRoom(RoomKey(result.AuthorID), delta, sess)
	if result.AuthorID != event.UserID {
		// The actor's other devices live in their own feed room.
		a.hub.BroadcastToRoom(RoomKey(event.UserID), delta, sess)
	}

	a.hub.SendToSession(sess, newEnvelope(TypeAck, AckPayload{
		EventID: p.EventID,
		ItemID:  event.ItemID,
		Action:  event.Action,
	}))
}

// sendError is best-effort: a dead transport is handled by the hub's
// disconnect-on-failure path, not here.
func (a *Adapter) sendError(sess *hub.Session, p ErrorPayload) {
	if err := a.hub.SendToSession(sess, newEnvelope(TypeError, p)); err != nil {
		a.log.Debug().Err(err).Str("session_id", sess.ID()).Msg("error envelope not delivered")
	}
}
