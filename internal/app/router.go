package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/onlylang/livesignal/internal/core"
	"github.com/onlylang/livesignal/internal/domain"
	"github.com/onlylang/livesignal/internal/protocol"
)

// Router is the signaling protocol state machine. Each session moves
// UNJOINED -> JOINED -> CLOSED; the router drives the transitions,
// calls the stream collaborator, and fans replies out through the
// registry.
type Router struct {
	registry *Registry
	streamer core.Streamer
}

func NewRouter(registry *Registry, streamer core.Streamer) *Router {
	return &Router{registry: registry, streamer: streamer}
}

func (rt *Router) Handle(s *Session, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeJoin:
		rt.handleJoin(s, msg)
	case protocol.TypeOffer:
		if !rt.requireJoined(s, msg.Type) {
			return
		}
		// Placeholder relay: echo the offer payload back as an answer.
		// Fanning the description out to viewers belongs to the stream
		// collaborator.
		log.Info().Str("module", "app.router").Str("peer", string(s.PeerID())).Msg("received SDP offer")
		s.Send(protocol.Encode(protocol.TypeAnswer, msg.Data))
	case protocol.TypeAnswer:
		if !rt.requireJoined(s, msg.Type) {
			return
		}
		log.Info().Str("module", "app.router").Str("peer", string(s.PeerID())).Msg("received SDP answer")
	case protocol.TypeICECandidate:
		if !rt.requireJoined(s, msg.Type) {
			return
		}
		log.Info().Str("module", "app.router").Str("peer", string(s.PeerID())).Msg("received ICE candidate")
	case protocol.TypeLeave:
		rt.handleLeave(s)
	default:
		log.Warn().Str("module", "app.router").Str("type", string(msg.Type)).Msg("unrecognized message, ignoring")
	}
}

// requireJoined rejects signaling messages from sessions that have not
// joined a room yet. The reply is an error frame; the connection stays
// open.
func (rt *Router) requireJoined(s *Session, t protocol.MessageType) bool {
	if s.PeerID() != "" {
		return true
	}
	log.Warn().Str("module", "app.router").Str("type", string(t)).Msg("message before join, rejecting")
	rt.sendError(s, "not joined")
	return false
}

func (rt *Router) sendError(s *Session, reason string) {
	data, _ := json.Marshal(struct {
		Reason string `json:"reason"`
	}{Reason: reason})
	s.Send(protocol.Encode(protocol.TypeError, data))
}

func (rt *Router) handleJoin(s *Session, msg protocol.Message) {
	if s.PeerID() != "" {
		rt.sendError(s, "already joined")
		return
	}
	if msg.RoomID == "" {
		rt.sendError(s, "missing room_id")
		return
	}

	role := domain.RoleViewer
	var payload struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err == nil && payload.Role == "host" {
		role = domain.RoleHost
	}

	peerID, err := rt.streamer.AddPeer(msg.RoomID, string(msg.Data), string(msg.Data), role)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("room", string(msg.RoomID)).Msg("add peer failed")
		rt.sendError(s, "join failed")
		return
	}

	s.Bind(peerID, msg.RoomID, role)
	rt.registry.Register(peerID, s)
	log.Info().
		Str("module", "app.router").
		Str("peer", string(peerID)).
		Str("room", string(msg.RoomID)).
		Str("role", string(role)).
		Msg("peer joined")

	ack, _ := json.Marshal(struct {
		PeerID domain.PeerID `json:"peer_id"`
		RoomID domain.RoomID `json:"room_id"`
	}{PeerID: peerID, RoomID: msg.RoomID})
	s.Send(protocol.Encode(protocol.TypeJoin, ack))

	if role == domain.RoleViewer {
		rt.notifyRoom(protocol.TypeViewerJoined, msg.RoomID, peerID)
	}
}

func (rt *Router) handleLeave(s *Session) {
	log.Info().Str("module", "app.router").Str("peer", string(s.PeerID())).Msg("peer leaving")
	s.releasePeer()
	s.Close()
}

// teardown runs exactly once per session, when its read loop exits.
func (rt *Router) teardown(s *Session) {
	peerID := s.PeerID()
	roomID := s.RoomID()
	role := s.Role()

	if peerID != "" {
		rt.registry.Unregister(peerID)
	}
	s.releasePeer()
	s.Close()

	if peerID != "" && role == domain.RoleViewer {
		rt.notifyRoom(protocol.TypeViewerLeft, roomID, peerID)
	}
	log.Info().Str("module", "app.router").Str("peer", string(peerID)).Msg("session torn down")
}

// notifyRoom tells the rest of a room that a viewer came or went.
func (rt *Router) notifyRoom(t protocol.MessageType, roomID domain.RoomID, peerID domain.PeerID) {
	data, _ := json.Marshal(struct {
		PeerID domain.PeerID `json:"peer_id"`
		RoomID domain.RoomID `json:"room_id"`
	}{PeerID: peerID, RoomID: roomID})
	rt.registry.BroadcastToRoom(roomID, protocol.Encode(t, data), peerID)
}
