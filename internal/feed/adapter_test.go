package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedhub/internal/curation"
	"feedhub/internal/hub"
	"feedhub/internal/store"
	"feedhub/pkg/types"
)

// fakeConn is an in-memory transport capturing every delivered frame.
type fakeConn struct {
	mu         sync.Mutex
	frames     [][]byte
	failWrites bool
	closed     bool
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("write failed")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) envelopes(t *testing.T) []Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) lastOfType(t *testing.T, msgType string) *Envelope {
	t.Helper()
	envs := c.envelopes(t)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Type == msgType {
			return &envs[i]
		}
	}
	return nil
}

type fakeFeeds struct {
	page *curation.Page
	err  error
}

func (f *fakeFeeds) GetFeed(context.Context, types.CurationParams, string, int) (*curation.Page, error) {
	return f.page, f.err
}

type fakeStore struct {
	result *store.InteractionResult
	err    error
	events []types.InteractionEvent
}

func (f *fakeStore) RecordInteraction(_ context.Context, event types.InteractionEvent) (*store.InteractionResult, error) {
	f.events = append(f.events, event)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeInvalidator struct {
	users []string
}

func (f *fakeInvalidator) Invalidate(userID string) {
	f.users = append(f.users, userID)
}

type countingObserver struct {
	outcomes map[string]int
}

func (o *countingObserver) ObserveInteraction(action, result string) {
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[action+"/"+result]++
}

// scriptReader replays a fixed message sequence, then fails like a closed
// transport.
type scriptReader struct {
	msgs [][]byte
}

func (r *scriptReader) Read() ([]byte, error) {
	if len(r.msgs) == 0 {
		return nil, io.EOF
	}
	next := r.msgs[0]
	r.msgs = r.msgs[1:]
	return next, nil
}

func interactionMsg(t *testing.T, p InteractionPayload) []byte {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	data, err := json.Marshal(Envelope{Type: TypeInteraction, Payload: raw})
	require.NoError(t, err)
	return data
}

func newTestAdapter(feeds FeedProvider, st InteractionStore, inv ContextInvalidator) (*Adapter, *hub.Manager) {
	h := hub.NewManager(0, zerolog.Nop())
	return NewAdapter(h, feeds, st, inv, 20, zerolog.Nop()), h
}

func TestAttach_SendsInitialFeed(t *testing.T) {
	page := &curation.Page{
		Entries:    []types.FeedEntry{{Item: types.FeedItem{ID: "item-1", AuthorID: "bob"}, Score: 1.5}},
		HasMore:    true,
		NextCursor: "cursor-token",
	}
	a, h := newTestAdapter(&fakeFeeds{page: page}, &fakeStore{}, nil)
	conn := &fakeConn{}

	sess, err := a.Attach(context.Background(), "alice", conn)
	require.NoError(t, err)
	assert.Equal(t, 1, h.RoomLen(RoomKey("alice")))

	env := conn.lastOfType(t, TypeInitialFeed)
	require.NotNil(t, env)
	var got InitialFeedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "item-1", got.Items[0].Item.ID)
	assert.True(t, got.HasMore)
	assert.Equal(t, "cursor-token", got.NextCursor)
	assert.False(t, env.ServerTimestamp.IsZero())

	h.Disconnect(sess)
}

func TestAttach_CurationFailureKeepsConnection(t *testing.T) {
	a, h := newTestAdapter(&fakeFeeds{err: types.ErrStoreUnavailable}, &fakeStore{}, nil)
	conn := &fakeConn{}

	sess, err := a.Attach(context.Background(), "alice", conn)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, 1, h.RoomLen(RoomKey("alice")), "session survives a curation failure")

	env := conn.lastOfType(t, TypeError)
	require.NotNil(t, env)
	var got ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, CodeFeedUnavailable, got.Code)
	assert.True(t, got.Retryable)
}

func TestServe_InteractionFansOutDeltaAndAcks(t *testing.T) {
	st := &fakeStore{result: &store.InteractionResult{AuthorID: "bob", Likes: 6}}
	inv := &fakeInvalidator{}
	a, _ := newTestAdapter(&fakeFeeds{page: &curation.Page{}}, st, inv)

	actorConn := &fakeConn{}
	authorConn := &fakeConn{}
	actorSess, err := a.Attach(context.Background(), "alice", actorConn)
	require.NoError(t, err)
	_, err = a.Attach(context.Background(), "bob", authorConn)
	require.NoError(t, err)

	msg := interactionMsg(t, InteractionPayload{EventID: "ev-1", ItemID: "item-1", Action: types.ActionLike})
	a.Serve(context.Background(), actorSess, &scriptReader{msgs: [][]byte{msg}})

	// Event persisted with server-authoritative identity and timestamp.
	require.Len(t, st.events, 1)
	assert.Equal(t, "alice", st.events[0].UserID)
	assert.Equal(t, types.ActionLike, st.events[0].Action)
	assert.False(t, st.events[0].CreatedAt.IsZero())

	// Author's room received a delta with the updated counters.
	delta := authorConn.lastOfType(t, TypeDelta)
	require.NotNil(t, delta)
	var got DeltaPayload
	require.NoError(t, json.Unmarshal(delta.Payload, &got))
	assert.Equal(t, "item-1", got.ItemID)
	assert.Equal(t, "alice", got.ActorID)
	assert.Equal(t, int64(6), got.Likes)

	// The originator gets the ack but never its own delta.
	ack := actorConn.lastOfType(t, TypeAck)
	require.NotNil(t, ack)
	var gotAck AckPayload
	require.NoError(t, json.Unmarshal(ack.Payload, &gotAck))
	assert.Equal(t, "ev-1", gotAck.EventID)
	assert.Nil(t, actorConn.lastOfType(t, TypeDelta))

	assert.Equal(t, []string{"alice"}, inv.users)
}

func TestServe_DeltaReachesActorsOtherDevices(t *testing.T) {
	st := &fakeStore{result: &store.InteractionResult{AuthorID: "bob", Likes: 1}}
	a, _ := newTestAdapter(&fakeFeeds{page: &curation.Page{}}, st, nil)

	phone := &fakeConn{}
	laptop := &fakeConn{}
	phoneSess, err := a.Attach(context.Background(), "alice", phone)
	require.NoError(t, err)
	_, err = a.Attach(context.Background(), "alice", laptop)
	require.NoError(t, err)

	msg := interactionMsg(t, InteractionPayload{ItemID: "item-1", Action: types.ActionLike})
	a.Serve(context.Background(), phoneSess, &scriptReader{msgs: [][]byte{msg}})

	assert.NotNil(t, laptop.lastOfType(t, TypeDelta), "other device sees the delta")
	assert.Nil(t, phone.lastOfType(t, TypeDelta), "originating device does not")
}

func TestServe_InvalidInteractionKeepsSessionAlive(t *testing.T) {
	st := &fakeStore{}
	a, h := newTestAdapter(&fakeFeeds{page: &curation.Page{}}, st, nil)
	conn := &fakeConn{}
	sess, err := a.Attach(context.Background(), "alice", conn)
	require.NoError(t, err)

	bad := interactionMsg(t, InteractionPayload{EventID: "ev-1", ItemID: "item-1", Action: "frobnicate"})
	ping, _ := json.Marshal(Envelope{Type: TypePing})
	a.Serve(context.Background(), sess, &scriptReader{msgs: [][]byte{bad, ping}})

	env := conn.lastOfType(t, TypeError)
	require.NotNil(t, env)
	var got ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, CodeInvalidInteraction, got.Code)
	assert.Equal(t, "ev-1", got.EventID)
	assert.False(t, got.Retryable)

	assert.Empty(t, st.events, "rejected event never reaches the store")
	assert.NotNil(t, conn.lastOfType(t, TypeAck), "session kept serving after the rejection")

	sessions, _ := h.Stats()
	assert.Equal(t, 0, sessions, "serve disconnects on reader exhaustion")
}

func TestServe_ItemNotFound(t *testing.T) {
	st := &fakeStore{err: store.ErrItemNotFound}
	a, _ := newTestAdapter(&fakeFeeds{page: &curation.Page{}}, st, nil)
	conn := &fakeConn{}
	sess, err := a.Attach(context.Background(), "alice", conn)
	require.NoError(t, err)

	msg := interactionMsg(t, InteractionPayload{ItemID: "ghost", Action: types.ActionLike})
	a.Serve(context.Background(), sess, &scriptReader{msgs: [][]byte{msg}})

	env := conn.lastOfType(t, TypeError)
	require.NotNil(t, env)
	var got ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, CodeItemNotFound, got.Code)
	assert.False(t, got.Retryable)
}

func TestServe_StoreFailureIsRetryable(t *testing.T) {
	st := &fakeStore{err: types.ErrStoreUnavailable}
	inv := &fakeInvalidator{}
	a, _ := newTestAdapter(&fakeFeeds{page: &curation.Page{}}, st, inv)
	conn := &fakeConn{}
	sess, err := a.Attach(context.Background(), "alice", conn)
	require.NoError(t, err)

	msg := interactionMsg(t, InteractionPayload{ItemID: "item-1", Action: types.ActionShare})
	a.Serve(context.Background(), sess, &scriptReader{msgs: [][]byte{msg}})

	env := conn.lastOfType(t, TypeError)
	require.NotNil(t, env)
	var got ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, CodeStoreUnavailable, got.Code)
	assert.True(t, got.Retryable)
	assert.Empty(t, inv.users, "cache untouched when nothing was persisted")
}

func TestServe_MalformedMessages(t *testing.T) {
	a, _ := newTestAdapter(&fakeFeeds{page: &curation.Page{}}, &fakeStore{}, nil)
	conn := &fakeConn{}
	sess, err := a.Attach(context.Background(), "alice", conn)
	require.NoError(t, err)

	unknown, _ := json.Marshal(Envelope{Type: "subscribe"})
	a.Serve(context.Background(), sess, &scriptReader{msgs: [][]byte{
		[]byte("{not json"),
		unknown,
	}})

	var codes []string
	for _, env := range conn.envelopes(t) {
		if env.Type != TypeError {
			continue
		}
		var p ErrorPayload
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		codes = append(codes, p.Code)
	}
	assert.Equal(t, []string{CodeBadMessage, CodeBadMessage}, codes)
}

func TestServe_PingTouchesAndAcks(t *testing.T) {
	a, _ := newTestAdapter(&fakeFeeds{page: &curation.Page{}}, &fakeStore{}, nil)
	conn := &fakeConn{}
	sess, err := a.Attach(context.Background(), "alice", conn)
	require.NoError(t, err)
	before := sess.LastActive()

	ping, _ := json.Marshal(Envelope{Type: TypePing})
	a.Serve(context.Background(), sess, &scriptReader{msgs: [][]byte{ping}})

	ack := conn.lastOfType(t, TypeAck)
	require.NotNil(t, ack)
	var got AckPayload
	require.NoError(t, json.Unmarshal(ack.Payload, &got))
	assert.Equal(t, TypePing, got.Action)
	assert.False(t, sess.LastActive().Before(before))
}

func TestServe_InteractionOutcomesObserved(t *testing.T) {
	st := &fakeStore{result: &store.InteractionResult{AuthorID: "bob", Likes: 1}}
	a, _ := newTestAdapter(&fakeFeeds{page: &curation.Page{}}, st, nil)
	obs := &countingObserver{}
	a.SetObserver(obs)

	conn := &fakeConn{}
	sess, err := a.Attach(context.Background(), "alice", conn)
	require.NoError(t, err)

	liked := interactionMsg(t, InteractionPayload{ItemID: "item-1", Action: types.ActionLike})
	invalid := interactionMsg(t, InteractionPayload{ItemID: "item-1", Action: "frobnicate"})
	a.Serve(context.Background(), sess, &scriptReader{msgs: [][]byte{liked, liked, invalid}})

	assert.Equal(t, 2, obs.outcomes["like/ok"])
	assert.Equal(t, 1, obs.outcomes["frobnicate/invalid"])

	st.err = store.ErrItemNotFound
	conn2 := &fakeConn{}
	sess2, err := a.Attach(context.Background(), "alice", conn2)
	require.NoError(t, err)
	missing := interactionMsg(t, InteractionPayload{ItemID: "ghost", Action: types.ActionShare})
	a.Serve(context.Background(), sess2, &scriptReader{msgs: [][]byte{missing}})

	assert.Equal(t, 1, obs.outcomes["share/not_found"])
}

func TestEnvelope_WireKeys(t *testing.T) {
	env := newEnvelope(TypeAck, AckPayload{Action: TypePing})
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "type")
	assert.Contains(t, raw, "payload")
	assert.Contains(t, raw, "serverTimestamp")
}

func TestRoomKey(t *testing.T) {
	assert.Equal(t, "feed:alice", RoomKey("alice"))
}
