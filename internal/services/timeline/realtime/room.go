package realtime

import (
	"sync"
	"time"

	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"

	"github.com/learning-layers/Timeliner/internal/platform/timeouts"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
)

// peer serializes writes to one websocket connection.
type peer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *peer) write(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(timeouts.SocketWrite))
	_, err := p.conn.Write(append(frame, '\n'))
	return err
}

// session is the hub-owned record of one connection.
type session struct {
	id      string
	peer    *peer
	limiter *rate.Limiter

	mu    sync.Mutex
	user  *domain.UserSummary
	rooms map[string]struct{}
}

func newSession(sessionID string, p *peer, limiter *rate.Limiter) *session {
	return &session{id: sessionID, peer: p, limiter: limiter, rooms: make(map[string]struct{})}
}

func (s *session) currentUser() *domain.UserSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *session) setUser(user *domain.UserSummary) {
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
}

func (s *session) inRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID]
	return ok
}

func (s *session) roomIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.rooms))
	for roomID := range s.rooms {
		ids = append(ids, roomID)
	}
	return ids
}

// rooms tracks the local members of every project room.
type rooms struct {
	mu      sync.Mutex
	members map[string]map[*session]struct{}
}

func newRooms() *rooms {
	return &rooms{members: make(map[string]map[*session]struct{})}
}

// join adds s to roomID and reports whether the room was empty before.
// Callers hold r.mu.
func (r *rooms) join(roomID string, s *session) (first bool) {
	members, ok := r.members[roomID]
	if !ok {
		members = make(map[*session]struct{})
		r.members[roomID] = members
	}
	members[s] = struct{}{}
	s.mu.Lock()
	s.rooms[roomID] = struct{}{}
	s.mu.Unlock()
	return !ok
}

// leave removes s from roomID and reports whether the room is now empty.
// Callers hold r.mu.
func (r *rooms) leave(roomID string, s *session) (last bool) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
	members, ok := r.members[roomID]
	if !ok {
		return false
	}
	delete(members, s)
	if len(members) == 0 {
		delete(r.members, roomID)
		return true
	}
	return false
}

func (r *rooms) snapshot(roomID, exclude string) []*session {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.members[roomID]
	out := make([]*session, 0, len(members))
	for member := range members {
		if member.id != exclude {
			out = append(out, member)
		}
	}
	return out
}

func (r *rooms) size(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members[roomID])
}
