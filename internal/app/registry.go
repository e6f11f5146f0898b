package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/onlylang/livesignal/internal/domain"
)

// Registry is the single source of truth for live sessions, keyed by
// peer id. Every session's read loop mutates it concurrently, so all
// access goes through one lock. Broadcast iterates under the read lock:
// coarse, but it guarantees no session is registered or torn down
// mid-scan; per-recipient writes are serialized by each session's own
// write lock, never by the registry lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.PeerID]*Session
	stopped  bool
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.PeerID]*Session)}
}

// Register inserts or overwrites. After Stop the session is closed
// instead so teardown cannot race a late registration.
func (r *Registry) Register(peerID domain.PeerID, s *Session) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		s.Close()
		return
	}
	r.sessions[peerID] = s
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("peer", string(peerID)).Msg("session registered")
}

// Unregister removes the entry if present; absent keys are a no-op.
func (r *Registry) Unregister(peerID domain.PeerID) {
	r.mu.Lock()
	_, ok := r.sessions[peerID]
	delete(r.sessions, peerID)
	r.mu.Unlock()
	if ok {
		log.Info().Str("module", "app.registry").Str("peer", string(peerID)).Msg("session unregistered")
	}
}

// SendToPeer delivers to one peer; an absent peer is silently dropped,
// it already went away.
func (r *Registry) SendToPeer(peerID domain.PeerID, message []byte) {
	r.mu.RLock()
	s, ok := r.sessions[peerID]
	r.mu.RUnlock()
	if ok {
		s.Send(message)
	}
}

// BroadcastToRoom delivers to every session in roomID except
// excludePeer (empty excludes nothing).
func (r *Registry) BroadcastToRoom(roomID domain.RoomID, message []byte, excludePeer domain.PeerID) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return
	}
	for peerID, s := range r.sessions {
		if s.RoomID() != roomID || peerID == excludePeer {
			continue
		}
		s.Send(message)
	}
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stop closes every remaining session and empties the map. Subsequent
// registry operations are no-ops.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	for _, s := range r.sessions {
		s.Close()
	}
	r.sessions = make(map[domain.PeerID]*Session)
	log.Info().Str("module", "app.registry").Msg("registry stopped")
}
