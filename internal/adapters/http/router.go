// Package http is the admin surface: room lifecycle and stats
// endpoints, plus interception of WebSocket upgrade requests that are
// handed off to the signaling engine.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/onlylang/livesignal/internal/adapters/ws"
	"github.com/onlylang/livesignal/internal/config"
	"github.com/onlylang/livesignal/internal/core"
	"github.com/onlylang/livesignal/internal/domain"
	"github.com/onlylang/livesignal/internal/protocol"
)

// SetupRouter wires the admin API. The upgrade middleware runs before
// route dispatch, mirroring how plain requests and upgrade requests
// share the admin port.
func SetupRouter(cfg *config.Config, streamer core.Streamer, acceptor *ws.Acceptor) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(upgradeMiddleware(acceptor))

	r.POST("/room/create", handleCreateRoom(streamer))
	r.POST("/room/:room_id/stop", handleStopRoom(streamer))
	r.GET("/room/:room_id/stats", handleRoomStats(streamer))
	r.GET("/stats", handleServerStats(streamer))
	r.GET("/health", handleHealth)
	r.GET("/webrtc/config", handleWebRTCConfig(cfg))

	return r
}

// upgradeMiddleware diverts WebSocket upgrade requests out of ordinary
// routing. On success the raw connection is moved to the acceptor and
// this layer never touches it again.
func upgradeMiddleware(acceptor *ws.Acceptor) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !protocol.IsUpgrade(c.Request.Header) {
			c.Next()
			return
		}

		roomID, isHost, err := protocol.ParseRoomPath(c.Request.URL.Path)
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Str("path", c.Request.URL.Path).Msg("rejected upgrade")
			c.Header("Connection", "close")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid upgrade path"})
			return
		}

		nonce := c.GetHeader("Sec-WebSocket-Key")
		hj, ok := c.Writer.(http.Hijacker)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "upgrade not supported"})
			return
		}
		conn, bufrw, err := hj.Hijack()
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("hijack failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "upgrade failed"})
			return
		}

		resp := "HTTP/1.1 101 Switching Protocols\r\n" +
			"Upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			"Sec-WebSocket-Accept: " + protocol.AcceptKey(nonce) + "\r\n\r\n"
		if _, err := bufrw.WriteString(resp); err != nil {
			_ = conn.Close()
			c.Abort()
			return
		}
		if err := bufrw.Flush(); err != nil {
			_ = conn.Close()
			c.Abort()
			return
		}

		peerID := protocol.SynthesizePeerID(roomID, isHost, time.Now())
		log.Info().
			Str("module", "adapters.http").
			Str("peer", string(peerID)).
			Str("room", string(roomID)).
			Bool("host", isHost).
			Msg("handshake complete, handing connection off")

		// The buffered reader may already hold frames the client sent
		// right behind the handshake; they move with the connection.
		acceptor.AcceptUpgraded(conn, bufrw.Reader, roomID, peerID, isHost)
		c.Abort()
	}
}

func handleCreateRoom(streamer core.Streamer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			PostID     string `json:"post_id"`
			HostUserID string `json:"host_user_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.PostID == "" || req.HostUserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing post_id or host_user_id"})
			return
		}

		roomID, err := streamer.CreateRoom(req.PostID, req.HostUserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"room_id": roomID, "post_id": req.PostID})
	}
}

func handleStopRoom(streamer core.Streamer) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := domain.RoomID(c.Param("room_id"))
		if !streamer.DeleteRoom(roomID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "stopped", "room_id": roomID})
	}
}

func handleRoomStats(streamer core.Streamer) gin.HandlerFunc {
	return func(c *gin.Context) {
		room, ok := streamer.GetRoom(domain.RoomID(c.Param("room_id")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		c.JSON(http.StatusOK, room)
	}
}

func handleServerStats(streamer core.Streamer) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, streamer.Stats())
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "media_server"})
}

func handleWebRTCConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ice_servers": cfg.ICEServers()})
	}
}
