package domain

// Room is a live-streaming scope: one post, at most one host, any number
// of viewers. The signaling core never mutates rooms directly; it goes
// through the stream manager.
type Room struct {
	ID          RoomID `json:"room_id"`
	PostID      string `json:"post_id"`
	Active      bool   `json:"is_active"`
	HasHost     bool   `json:"has_host"`
	ViewerCount int    `json:"viewer_count"`
}

// ServerStats is the aggregate view exposed on the admin stats endpoint.
type ServerStats struct {
	TotalRooms         int    `json:"total_rooms"`
	ActiveRooms        int    `json:"active_rooms"`
	TotalPeers         int    `json:"total_peers"`
	TotalViewers       int    `json:"total_viewers"`
	TotalHosts         int    `json:"total_hosts"`
	TotalBytesSent     uint64 `json:"total_bytes_sent"`
	TotalBytesReceived uint64 `json:"total_bytes_received"`
}
