// Package protocol implements the signaling wire format: the JSON message
// envelope, the WebSocket upgrade handshake, and a server-side frame codec
// for connections handed off after an external upgrade.
package protocol

import (
	"encoding/json"
	"strings"

	"github.com/onlylang/livesignal/internal/domain"
)

type MessageType string

const (
	TypeJoin         MessageType = "join"
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeICECandidate MessageType = "ice_candidate"
	TypeLeave        MessageType = "leave"
	TypeError        MessageType = "error"
	TypeViewerJoined MessageType = "viewer_joined"
	TypeViewerLeft   MessageType = "viewer_left"
)

// Message is one decoded signaling unit. Data carries the full raw
// payload untouched so relayed messages pass through byte-for-byte.
type Message struct {
	Type   MessageType
	Data   json.RawMessage
	RoomID domain.RoomID
	PeerID domain.PeerID
}

type envelope struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	PeerID string `json:"peer_id"`
}

// knownTypes is the inbound type table. "candidate" is a legacy alias
// some clients send for ice_candidate.
var knownTypes = map[string]MessageType{
	"join":          TypeJoin,
	"offer":         TypeOffer,
	"answer":        TypeAnswer,
	"ice_candidate": TypeICECandidate,
	"candidate":     TypeICECandidate,
	"leave":         TypeLeave,
	"viewer_joined": TypeViewerJoined,
	"viewer_left":   TypeViewerLeft,
}

// Decode parses one inbound frame. It never fails: malformed JSON, a
// missing type field, or an unrecognized type all decode to TypeError
// with the raw payload preserved.
func Decode(raw []byte) Message {
	msg := Message{Type: TypeError, Data: append(json.RawMessage(nil), raw...)}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return msg
	}

	t, ok := knownTypes[env.Type]
	if !ok {
		// Fallback for clients that upper-case the type name.
		t, ok = knownTypes[strings.ToLower(env.Type)]
	}
	if !ok {
		return msg
	}

	msg.Type = t
	msg.RoomID = domain.RoomID(env.RoomID)
	msg.PeerID = domain.PeerID(env.PeerID)
	return msg
}

// Encode builds an outbound frame: {"type":"<name>","data":<data>}.
// data is embedded as a raw JSON value, never double-encoded; empty data
// becomes an empty object.
func Encode(t MessageType, data []byte) []byte {
	if len(data) == 0 {
		data = []byte("{}")
	}
	out, err := json.Marshal(struct {
		Type MessageType     `json:"type"`
		Data json.RawMessage `json:"data"`
	}{Type: t, Data: data})
	if err != nil {
		// Only reachable when data is not valid JSON; wrap it as a string
		// so the frame stays well-formed.
		quoted, _ := json.Marshal(string(data))
		return []byte(`{"type":"` + string(t) + `","data":` + string(quoted) + `}`)
	}
	return out
}
