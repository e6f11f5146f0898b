// Package domain contains entities without logic, just meta-data.
package domain

type (
	PeerID string
	RoomID string
)

// Role of a peer inside a room. A room has at most one host; everyone
// else is a viewer.
type Role string

const (
	RoleHost   Role = "host"
	RoleViewer Role = "viewer"
)

func (r Role) IsHost() bool { return r == RoleHost }

// RoleFor maps the wire-level host flag to a Role.
func RoleFor(isHost bool) Role {
	if isHost {
		return RoleHost
	}
	return RoleViewer
}
