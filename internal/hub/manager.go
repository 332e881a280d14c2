// Package hub multiplexes live sessions into addressable rooms and delivers
// targeted or broadcast messages to them.
package hub

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"feedhub/pkg/types"
)

// Observer receives connection lifecycle and delivery outcomes. All methods
// must be cheap and non-blocking.
type Observer interface {
	SessionOpened()
	SessionClosed()
	Delivered()
	DeliveryFailed()
	HubGauges(sessions, rooms int)
}

// Manager composes the session registry and the room index. It owns every
// session from Connect to Disconnect and handles per-recipient delivery
// failure by disconnecting the broken session.
//
// Locking: the manager's RWMutex guards the registry maps; each Room guards
// its own membership. Fan-out reads a membership snapshot and delivers
// outside any lock, so broadcasts to unrelated rooms never serialize.
type Manager struct {
	log      zerolog.Logger
	capacity int
	obs      Observer

	mu       sync.RWMutex
	sessions map[string]*Session            // session ID -> session
	byUser   map[string]map[string]*Session // user ID -> session ID -> session
	rooms    map[string]*Room               // room key -> room
}

// NewManager creates a Manager. capacity bounds the number of concurrent
// sessions; zero means unbounded.
func NewManager(capacity int, log zerolog.Logger) *Manager {
	return &Manager{
		log:      log.With().Str("component", "hub").Logger(),
		capacity: capacity,
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]*Session),
		rooms:    make(map[string]*Room),
	}
}

// SetObserver attaches a metrics observer. Optional.
func (m *Manager) SetObserver(o Observer) {
	m.obs = o
}

// Connect registers a new session for userID, joins it to roomKey and
// returns the handle. Fails only when the registry is at capacity; existing
// sessions are never evicted to admit a new one.
func (m *Manager) Connect(userID string, conn Conn, roomKey string) (*Session, error) {
	if conn == nil {
		return nil, ErrNilConn
	}

	m.mu.Lock()
	if m.capacity > 0 && len(m.sessions) >= m.capacity {
		m.mu.Unlock()
		return nil, types.ErrCapacityExceeded
	}

	s := newSession(userID, conn)
	m.sessions[s.id] = s
	if m.byUser[userID] == nil {
		m.byUser[userID] = make(map[string]*Session)
	}
	m.byUser[userID][s.id] = s
	m.joinLocked(s, roomKey)
	sessions, rooms := len(m.sessions), len(m.rooms)
	m.mu.Unlock()

	if m.obs != nil {
		m.obs.SessionOpened()
		m.obs.HubGauges(sessions, rooms)
	}
	m.log.Debug().Str("session_id", s.id).Str("user_id", userID).
		Str("room", roomKey).Msg("session connected")
	return s, nil
}

// Join adds the session to the named room, creating the room on first join.
func (m *Manager) Join(s *Session, roomKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Checked under the registry lock: a Disconnect that completed after the
	// caller obtained the handle must not regain room membership here.
	if s.isClosed() {
		return ErrSessionClosed
	}
	m.joinLocked(s, roomKey)
	return nil
}

func (m *Manager) joinLocked(s *Session, roomKey string) {
	room := m.rooms[roomKey]
	if room == nil {
		room = newRoom(roomKey)
		m.rooms[roomKey] = room
	}
	room.add(s)
	s.addRoom(roomKey)
}

// Leave removes the session from the named room, deleting the room when it
// empties.
func (m *Manager) Leave(s *Session, roomKey string) {
	m.mu.Lock()
	if room := m.rooms[roomKey]; room != nil {
		if _, empty := room.remove(s); empty {
			delete(m.rooms, roomKey)
		}
	}
	s.removeRoom(roomKey)
	m.mu.Unlock()
}

// Disconnect removes the session from every room, deletes rooms left empty,
// closes the transport and releases the handle. Idempotent and safe to call
// concurrently with in-flight sends: the session stops accepting deliveries
// before it leaves the index.
func (m *Manager) Disconnect(s *Session) {
	if s == nil {
		return
	}
	if !s.markClosed() {
		return
	}
	// Closing the transport cancels any in-flight send immediately.
	_ = s.conn.Close()

	m.mu.Lock()
	for _, key := range s.Rooms() {
		if room := m.rooms[key]; room != nil {
			if _, empty := room.remove(s); empty {
				delete(m.rooms, key)
			}
		}
		s.removeRoom(key)
	}
	delete(m.sessions, s.id)
	if userSessions := m.byUser[s.userID]; userSessions != nil {
		delete(userSessions, s.id)
		if len(userSessions) == 0 {
			delete(m.byUser, s.userID)
		}
	}
	sessions, rooms := len(m.sessions), len(m.rooms)
	m.mu.Unlock()

	if m.obs != nil {
		m.obs.SessionClosed()
		m.obs.HubGauges(sessions, rooms)
	}
	m.log.Debug().Str("session_id", s.id).Str("user_id", s.userID).Msg("session disconnected")
}

// BroadcastToRoom delivers message to every current room member except
// exclude. The message is encoded once and the bytes reused for every
// recipient. Delivery is best-effort per recipient: a failed send
// disconnects that session and never aborts the rest of the fan-out.
func (m *Manager) BroadcastToRoom(roomKey string, message any, exclude *Session) {
	m.mu.RLock()
	room := m.rooms[roomKey]
	m.mu.RUnlock()
	if room == nil {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		m.log.Error().Err(err).Str("room", roomKey).Msg("broadcast encode failed")
		return
	}
	m.fanOut(room.snapshot(), data, exclude)
}

// SendToUser delivers message to every session currently owned by userID,
// covering multiple simultaneous devices. Same per-recipient semantics as
// BroadcastToRoom.
func (m *Manager) SendToUser(userID string, message any) {
	m.mu.RLock()
	targets := make([]*Session, 0, len(m.byUser[userID]))
	for _, s := range m.byUser[userID] {
		targets = append(targets, s)
	}
	m.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		m.log.Error().Err(err).Str("user_id", userID).Msg("unicast encode failed")
		return
	}
	m.fanOut(targets, data, nil)
}

// SendToSession delivers message to a single session. A failed send
// disconnects the session and returns the delivery error.
func (m *Manager) SendToSession(s *Session, message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	if err := s.deliver(data); err != nil {
		m.deliveryFailed(s, err)
		return fmt.Errorf("%w: %v", types.ErrDeliveryFailed, err)
	}
	if m.obs != nil {
		m.obs.Delivered()
	}
	return nil
}

func (m *Manager) fanOut(targets []*Session, data []byte, exclude *Session) {
	var failed []*Session
	for _, s := range targets {
		if s == exclude {
			continue
		}
		if err := s.deliver(data); err != nil {
			failed = append(failed, s)
			m.log.Warn().Err(err).Str("session_id", s.id).Str("user_id", s.userID).
				Msg("delivery failed, disconnecting recipient")
			if m.obs != nil {
				m.obs.DeliveryFailed()
			}
			continue
		}
		if m.obs != nil {
			m.obs.Delivered()
		}
	}
	// A broken pipe cannot be un-broken; cleanup is the corrective action.
	for _, s := range failed {
		m.Disconnect(s)
	}
}

func (m *Manager) deliveryFailed(s *Session, err error) {
	m.log.Warn().Err(err).Str("session_id", s.id).Str("user_id", s.userID).
		Msg("delivery failed, disconnecting recipient")
	if m.obs != nil {
		m.obs.DeliveryFailed()
	}
	m.Disconnect(s)
}

// RoomExists reports whether the room currently has members.
func (m *Manager) RoomExists(roomKey string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[roomKey] != nil
}

// RoomLen returns the member count of a room, zero when absent.
func (m *Manager) RoomLen(roomKey string) int {
	m.mu.RLock()
	room := m.rooms[roomKey]
	m.mu.RUnlock()
	if room == nil {
		return 0
	}
	return room.Len()
}

// Stats returns the live session and room counts.
func (m *Manager) Stats() (sessions, rooms int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), len(m.rooms)
}
