package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conn is the transport a session delivers to. Implementations must be safe
// for concurrent writes and must fail writes after Close.
type Conn interface {
	WriteMessage(data []byte) error
	Close() error
}

// Session is one live, addressable connection instance owned by a user.
// Created on attach, destroyed on disconnect; owned by the Manager.
type Session struct {
	id        string
	userID    string
	conn      Conn
	createdAt time.Time

	mu         sync.Mutex
	rooms      map[string]bool
	lastActive time.Time
	closed     bool
}

func newSession(userID string, conn Conn) *Session {
	now := time.Now()
	return &Session{
		id:         uuid.New().String(),
		userID:     userID,
		conn:       conn,
		createdAt:  now,
		lastActive: now,
		rooms:      make(map[string]bool),
	}
}

// ID returns the process-lifetime unique session identifier.
func (s *Session) ID() string { return s.id }

// UserID returns the owning user.
func (s *Session) UserID() string { return s.userID }

// CreatedAt returns the attach time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Rooms returns a snapshot of the session's current room memberships.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.rooms))
	for k := range s.rooms {
		keys = append(keys, k)
	}
	return keys
}

// LastActive returns the time of the last delivery or inbound touch.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Touch records inbound activity on the session.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) addRoom(key string) {
	s.mu.Lock()
	s.rooms[key] = true
	s.mu.Unlock()
}

func (s *Session) removeRoom(key string) {
	s.mu.Lock()
	delete(s.rooms, key)
	s.mu.Unlock()
}

// markClosed flips the session to closed. Returns false if already closed,
// making disconnect idempotent.
func (s *Session) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// deliver writes pre-encoded bytes to the transport. Closed sessions reject
// the write so a disconnected session never observes a late broadcast.
func (s *Session) deliver(data []byte) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	if err := s.conn.WriteMessage(data); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
	return nil
}
