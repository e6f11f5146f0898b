package app

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/onlylang/livesignal/internal/domain"
)

var (
	ErrMissingRoomFields = errors.New("missing post_id or host_user_id")
)

// StreamManager is the room/stream collaborator behind core.Streamer:
// it owns room records and the peer-to-room mapping, and aggregates
// server-wide stats. Signaling sessions themselves live in the
// Registry, not here.
type StreamManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomState
	peers map[domain.PeerID]*peerState

	bytesSent atomic.Uint64
	bytesRecv atomic.Uint64
}

type roomState struct {
	postID     string
	hostUserID string
	active     bool
	hostPeer   domain.PeerID
	viewers    int
}

type peerState struct {
	roomID  domain.RoomID
	role    domain.Role
	display string
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		rooms: make(map[domain.RoomID]*roomState),
		peers: make(map[domain.PeerID]*peerState),
	}
}

func (m *StreamManager) CreateRoom(postID, hostUserID string) (domain.RoomID, error) {
	if postID == "" || hostUserID == "" {
		return "", ErrMissingRoomFields
	}

	roomID := domain.RoomID("room_" + uuid.NewString())
	m.mu.Lock()
	m.rooms[roomID] = &roomState{postID: postID, hostUserID: hostUserID, active: true}
	m.mu.Unlock()

	log.Info().Str("module", "app.streams").Str("room", string(roomID)).Str("post", postID).Msg("room created")
	return roomID, nil
}

func (m *StreamManager) DeleteRoom(id domain.RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; !ok {
		return false
	}
	delete(m.rooms, id)
	for peerID, p := range m.peers {
		if p.roomID == id {
			delete(m.peers, peerID)
		}
	}
	log.Info().Str("module", "app.streams").Str("room", string(id)).Msg("room deleted")
	return true
}

func (m *StreamManager) GetRoom(id domain.RoomID) (domain.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return domain.Room{}, false
	}
	return domain.Room{
		ID:          id,
		PostID:      r.postID,
		Active:      r.active,
		HasHost:     r.hostPeer != "",
		ViewerCount: r.viewers,
	}, true
}

// AddPeer attaches a peer to a room and assigns its id. A join for an
// unknown room creates the room on the fly: the signaling path may see
// a peer before the admin API created the room.
func (m *StreamManager) AddPeer(roomID domain.RoomID, display, metadata string, role domain.Role) (domain.PeerID, error) {
	if roomID == "" {
		return "", errors.New("missing room_id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		r = &roomState{active: true}
		m.rooms[roomID] = r
	}

	peerID := domain.PeerID(uuid.NewString())
	m.peers[peerID] = &peerState{roomID: roomID, role: role, display: display}

	if role.IsHost() {
		r.hostPeer = peerID
	} else {
		r.viewers++
	}

	log.Info().
		Str("module", "app.streams").
		Str("peer", string(peerID)).
		Str("room", string(roomID)).
		Str("role", string(role)).
		Msg("peer added")
	return peerID, nil
}

// RemovePeer detaches a peer; removing an unknown id is a no-op.
func (m *StreamManager) RemovePeer(id domain.PeerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[id]
	if !ok {
		return
	}
	delete(m.peers, id)

	if r, ok := m.rooms[p.roomID]; ok {
		if p.role.IsHost() {
			if r.hostPeer == id {
				r.hostPeer = ""
			}
		} else if r.viewers > 0 {
			r.viewers--
		}
	}
	log.Info().Str("module", "app.streams").Str("peer", string(id)).Msg("peer removed")
}

func (m *StreamManager) AddBytes(sent, received uint64) {
	if sent > 0 {
		m.bytesSent.Add(sent)
	}
	if received > 0 {
		m.bytesRecv.Add(received)
	}
}

func (m *StreamManager) Stats() domain.ServerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := domain.ServerStats{
		TotalRooms:         len(m.rooms),
		TotalPeers:         len(m.peers),
		TotalBytesSent:     m.bytesSent.Load(),
		TotalBytesReceived: m.bytesRecv.Load(),
	}
	for _, r := range m.rooms {
		if r.active {
			stats.ActiveRooms++
		}
	}
	for _, p := range m.peers {
		if p.role.IsHost() {
			stats.TotalHosts++
		} else {
			stats.TotalViewers++
		}
	}
	return stats
}
