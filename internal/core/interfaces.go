// Package core defines the seams between the signaling engine and its
// collaborators. Interfaces live here; implementations live in app and
// adapters.
package core

import (
	"errors"

	"github.com/onlylang/livesignal/internal/domain"
)

// ErrClosed is returned by Transport.ReadMessage when the peer closed
// the connection cleanly. Any other read error is a transport failure.
var ErrClosed = errors.New("transport closed")

// Transport is one bidirectional framed byte stream. It is exclusively
// owned by the Session wrapping it: once handed to a Session, nothing
// else may read or write it.
//
// Concurrent WriteMessage calls are NOT safe; the Session serializes
// writes with its own lock.
type Transport interface {
	// ReadMessage blocks until one complete message arrives.
	// Returns ErrClosed on a clean close from the peer.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	// Close is idempotent.
	Close() error
}

// Streamer is the external room/stream collaborator. The signaling core
// relies only on this contract; room state itself is not owned here.
type Streamer interface {
	CreateRoom(postID, hostUserID string) (domain.RoomID, error)
	DeleteRoom(id domain.RoomID) bool
	GetRoom(id domain.RoomID) (domain.Room, bool)

	// AddPeer registers a peer with a room and returns its assigned id.
	// The display and metadata payloads are opaque to the collaborator.
	AddPeer(roomID domain.RoomID, display, metadata string, role domain.Role) (domain.PeerID, error)
	// RemovePeer is idempotent.
	RemovePeer(id domain.PeerID)

	// AddBytes feeds transport-level byte counters into the stats.
	AddBytes(sent, received uint64)
	Stats() domain.ServerStats
}
