package hub

import "sync"

// Room is an ephemeral named group of live sessions used for targeted
// broadcast. It has its own lock so fan-out in one room never serializes
// against unrelated rooms. Rooms are created on first join and deleted by
// the Manager when the last member leaves; they are never persisted.
type Room struct {
	key string

	mu      sync.RWMutex
	members map[string]*Session // session ID -> session
}

func newRoom(key string) *Room {
	return &Room{
		key:     key,
		members: make(map[string]*Session),
	}
}

// Key returns the room's channel name.
func (r *Room) Key() string { return r.key }

func (r *Room) add(s *Session) {
	r.mu.Lock()
	r.members[s.id] = s
	r.mu.Unlock()
}

// remove drops the session and reports whether the room is now empty.
func (r *Room) remove(s *Session) (removed, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[s.id]; !ok {
		return false, len(r.members) == 0
	}
	delete(r.members, s.id)
	return true, len(r.members) == 0
}

// Len returns the current member count.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// snapshot returns the current members. Sessions joining after the snapshot
// may or may not see a broadcast in flight; sessions already disconnected
// reject delivery at the session layer.
func (r *Room) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]*Session, 0, len(r.members))
	for _, s := range r.members {
		members = append(members, s)
	}
	return members
}
