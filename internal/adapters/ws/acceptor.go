// Package ws bridges inbound transports into sessions: a native
// WebSocket accept loop on the signaling port, and a handoff entry
// point for connections upgraded by the HTTP layer.
package ws

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/onlylang/livesignal/internal/app"
	"github.com/onlylang/livesignal/internal/core"
	"github.com/onlylang/livesignal/internal/domain"
	"github.com/onlylang/livesignal/internal/protocol"
)

// Acceptor constructs sessions from both accept paths. Stop order
// matters: the listener goes down before the registry so no session can
// register after teardown begins.
type Acceptor struct {
	router       *app.Router
	registry     *app.Registry
	streamer     core.Streamer
	readLimit    int64
	writeTimeout time.Duration

	srv      *http.Server
	upgrader websocket.Upgrader
}

// NewAcceptor builds the acceptor. writeTimeout bounds every frame write
// on both transport kinds; a peer that stops reading must fail its own
// sends instead of stalling broadcasts.
func NewAcceptor(addr string, router *app.Router, registry *app.Registry, streamer core.Streamer, readLimit int64, writeTimeout time.Duration) *Acceptor {
	a := &Acceptor{
		router:       router,
		registry:     registry,
		streamer:     streamer,
		readLimit:    readLimit,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	a.srv = &http.Server{Addr: addr, Handler: a}
	return a
}

// Start runs the native accept loop in its own goroutine. A failed
// upgrade never stops the acceptor; only Stop does.
func (a *Acceptor) Start() {
	go func() {
		log.Info().Str("module", "adapters.ws").Str("addr", a.srv.Addr).Msg("signaling listener started")
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("module", "adapters.ws").Msg("signaling listener error")
		}
	}()
}

// ServeHTTP is the native accept path: handshake inline, then an
// unjoined session whose identity arrives with its JOIN message.
func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("native upgrade failed")
		return
	}
	if a.readLimit > 0 {
		conn.SetReadLimit(a.readLimit)
	}

	log.Info().Str("module", "adapters.ws").Str("remote", conn.RemoteAddr().String()).Msg("native connection accepted")
	sess := app.NewSession(newWSTransport(conn, a.writeTimeout), a.streamer)
	go sess.Run(a.router)
}

// AcceptUpgraded takes ownership of a connection the HTTP layer already
// upgraded. The caller must never touch conn again. buffered carries
// any bytes the client sent before the handoff; it may be nil. The
// session starts reading frames immediately, no further handshake.
func (a *Acceptor) AcceptUpgraded(conn net.Conn, buffered io.Reader, roomID domain.RoomID, peerID domain.PeerID, isHost bool) {
	var tr core.Transport
	if buffered != nil {
		tr = protocol.NewConnBuffered(conn, buffered, a.writeTimeout)
	} else {
		tr = protocol.NewConn(conn, a.writeTimeout)
	}

	sess := app.NewSession(tr, a.streamer)
	sess.Bind(peerID, roomID, domain.RoleFor(isHost))
	a.registry.Register(peerID, sess)

	log.Info().
		Str("module", "adapters.ws").
		Str("peer", string(peerID)).
		Str("room", string(roomID)).
		Bool("host", isHost).
		Msg("accepted upgraded connection")
	go sess.Run(a.router)
}

// Stop shuts the listener, then closes every registered session.
func (a *Acceptor) Stop(ctx context.Context) {
	if err := a.srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("listener shutdown")
	}
	a.registry.Stop()
	log.Info().Str("module", "adapters.ws").Msg("acceptor stopped")
}

// wsTransport adapts a gorilla connection to core.Transport.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func newWSTransport(conn *websocket.Conn, writeTimeout time.Duration) *wsTransport {
	return &wsTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return nil, core.ErrClosed
		}
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) WriteMessage(data []byte) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
