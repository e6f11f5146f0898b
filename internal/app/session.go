// Package app holds the signaling engine: sessions, the session
// registry, the protocol router, and the stream manager collaborator.
package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/onlylang/livesignal/internal/core"
	"github.com/onlylang/livesignal/internal/domain"
	"github.com/onlylang/livesignal/internal/protocol"
)

// Session owns one live transport connection: its identity, its read
// loop, and a serialized write path. Writes may arrive from the
// session's own reply path and from other sessions' broadcast calls;
// the write mutex keeps exactly one in flight.
type Session struct {
	tr       core.Transport
	streamer core.Streamer

	mu     sync.RWMutex // guards identity fields
	peerID domain.PeerID
	roomID domain.RoomID
	role   domain.Role

	wmu sync.Mutex // serializes transport writes

	closeOnce  sync.Once
	removeOnce sync.Once
}

func NewSession(tr core.Transport, streamer core.Streamer) *Session {
	return &Session{tr: tr, streamer: streamer}
}

// Bind attaches a peer identity. Called once at JOIN for native
// sessions, or before the read loop starts for handed-off ones.
func (s *Session) Bind(peerID domain.PeerID, roomID domain.RoomID, role domain.Role) {
	s.mu.Lock()
	s.peerID = peerID
	s.roomID = roomID
	s.role = role
	s.mu.Unlock()
}

func (s *Session) PeerID() domain.PeerID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerID
}

func (s *Session) RoomID() domain.RoomID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID
}

func (s *Session) Role() domain.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// Send writes one message. A failed write is logged and dropped; the
// read loop observes the broken connection on its own and tears the
// session down.
func (s *Session) Send(data []byte) {
	s.wmu.Lock()
	err := s.tr.WriteMessage(data)
	s.wmu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("module", "app.session").Str("peer", string(s.PeerID())).Msg("send failed, dropping message")
		return
	}
	s.streamer.AddBytes(uint64(len(data)), 0)
}

// Close releases the transport. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.tr.Close()
	})
}

// releasePeer removes the bound peer from the streamer exactly once,
// covering both an explicit LEAVE and an abrupt disconnect.
func (s *Session) releasePeer() {
	s.removeOnce.Do(func() {
		if id := s.PeerID(); id != "" {
			s.streamer.RemovePeer(id)
		}
	})
}

// Run is the session's read loop; it blocks until the connection goes
// away and then tears the session down. Exiting this loop is the sole
// teardown trigger.
func (s *Session) Run(router *Router) {
	defer router.teardown(s)

	for {
		data, err := s.tr.ReadMessage()
		if err != nil {
			if err == core.ErrClosed {
				log.Info().Str("module", "app.session").Str("peer", string(s.PeerID())).Msg("peer closed connection")
			} else {
				log.Error().Err(err).Str("module", "app.session").Str("peer", string(s.PeerID())).Msg("read error")
			}
			return
		}
		s.streamer.AddBytes(0, uint64(len(data)))
		router.Handle(s, protocol.Decode(data))
	}
}
