package protocol

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/onlylang/livesignal/internal/domain"
)

// WebSocketGUID is the fixed magic string from RFC 6455 section 1.3.
const WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var (
	ErrNotRoomPath = errors.New("path is not a room upgrade path")
	ErrBadRole     = errors.New("role segment must be host or viewer")
)

// IsUpgrade reports whether the request headers describe a WebSocket
// upgrade: an Upgrade value containing "websocket" (case-insensitive)
// plus present Connection and Sec-WebSocket-Key headers. Anything else
// proceeds through ordinary routing.
func IsUpgrade(h http.Header) bool {
	if h.Get("Connection") == "" || h.Get("Sec-WebSocket-Key") == "" {
		return false
	}
	upgrade := h.Get("Upgrade")
	if upgrade == "" {
		return false
	}
	return strings.Contains(strings.ToLower(upgrade), "websocket")
}

// AcceptKey derives the Sec-WebSocket-Accept credential from the
// client's nonce: base64(sha1(nonce + GUID)).
func AcceptKey(nonce string) string {
	sum := sha1.Sum([]byte(nonce + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ParseRoomPath extracts the room id and role from an upgrade path of
// the form /room/<room_id>/<host|viewer>. Any other trailing segment or
// a missing room id rejects the upgrade.
func ParseRoomPath(path string) (domain.RoomID, bool, error) {
	const prefix = "/room/"
	idx := strings.Index(path, prefix)
	if idx < 0 {
		return "", false, ErrNotRoomPath
	}
	rest := path[idx+len(prefix):]
	slash := strings.Index(rest, "/")
	if slash <= 0 {
		return "", false, ErrNotRoomPath
	}
	roomID := rest[:slash]
	switch rest[slash+1:] {
	case "host":
		return domain.RoomID(roomID), true, nil
	case "viewer":
		return domain.RoomID(roomID), false, nil
	}
	return "", false, ErrBadRole
}

// SynthesizePeerID builds a handoff peer id unique per connection:
// room, role, and a nanosecond timestamp to distinguish concurrent
// upgrades for the same room.
func SynthesizePeerID(roomID domain.RoomID, isHost bool, now time.Time) domain.PeerID {
	return domain.PeerID(fmt.Sprintf("%s_%s_%d", roomID, domain.RoleFor(isHost), now.UnixNano()))
}
