package egress

import (
	"sync"

	"github.com/duetcast/controller/internal/models"
)

// Registry holds the in-memory session state for running egress jobs, keyed
// by egress id. It is the sole owner of RecordingSession values: at most one
// live entry per id, inserted on start and evicted by finalization.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*models.RecordingSession
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*models.RecordingSession)}
}

// Insert stores the session under its egress id.
func (r *Registry) Insert(s *models.RecordingSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.EgressID] = s
}

// Lookup returns the session for an egress id, if registered.
func (r *Registry) Lookup(egressID string) (*models.RecordingSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[egressID]
	return s, ok
}

// Evict removes the session. The second return reports whether this call
// removed it; a concurrent finalization racing for the same id loses.
func (r *Registry) Evict(egressID string) (*models.RecordingSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[egressID]
	if ok {
		delete(r.sessions, egressID)
	}
	return s, ok
}

// ActiveForRoom reports whether a session is already running for the room.
func (r *Registry) ActiveForRoom(roomName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.RoomName == roomName {
			return true
		}
	}
	return false
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
