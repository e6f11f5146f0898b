package http

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onlylang/livesignal/internal/adapters/ws"
	"github.com/onlylang/livesignal/internal/app"
	"github.com/onlylang/livesignal/internal/config"
	"github.com/onlylang/livesignal/internal/protocol"
)

func newTestServer() (http.Handler, *app.StreamManager, *app.Registry) {
	cfg := &config.Config{
		Mode:    "release",
		ICEURLs: []string{"stun:stun.l.google.com:19302"},
	}
	streamer := app.NewStreamManager()
	registry := app.NewRegistry()
	router := app.NewRouter(registry, streamer)
	acceptor := ws.NewAcceptor("127.0.0.1:0", router, registry, streamer, 32768, time.Second)
	return SetupRouter(cfg, streamer, acceptor), streamer, registry
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: body %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, out
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestServer()
	w, body := doJSON(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d", w.Code)
	}
	if body["status"] != "healthy" || body["service"] != "media_server" {
		t.Fatalf("body=%v", body)
	}
}

func TestCreateRoom(t *testing.T) {
	h, _, _ := newTestServer()

	for _, payload := range []string{
		``,
		`{}`,
		`{"post_id":"p"}`,
		`{"host_user_id":"u"}`,
	} {
		w, body := doJSON(t, h, http.MethodPost, "/room/create", payload)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("payload %q: code=%d, want 400", payload, w.Code)
		}
		if body["error"] != "Missing post_id or host_user_id" {
			t.Fatalf("payload %q: body=%v", payload, body)
		}
	}

	w, body := doJSON(t, h, http.MethodPost, "/room/create", `{"post_id":"p1","host_user_id":"u1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("code=%d, want 201", w.Code)
	}
	roomID, _ := body["room_id"].(string)
	if !strings.HasPrefix(roomID, "room_") || body["post_id"] != "p1" {
		t.Fatalf("body=%v", body)
	}
}

func TestStopRoom(t *testing.T) {
	h, streamer, _ := newTestServer()

	w, body := doJSON(t, h, http.MethodPost, "/room/nope/stop", "")
	if w.Code != http.StatusNotFound || body["error"] != "Room not found" {
		t.Fatalf("code=%d body=%v", w.Code, body)
	}

	roomID, err := streamer.CreateRoom("p", "u")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	w, body = doJSON(t, h, http.MethodPost, "/room/"+string(roomID)+"/stop", "")
	if w.Code != http.StatusOK || body["status"] != "stopped" {
		t.Fatalf("code=%d body=%v", w.Code, body)
	}

	// Stopping twice reports the room as gone.
	w, _ = doJSON(t, h, http.MethodPost, "/room/"+string(roomID)+"/stop", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second stop code=%d, want 404", w.Code)
	}
}

func TestRoomStats(t *testing.T) {
	h, streamer, _ := newTestServer()

	w, _ := doJSON(t, h, http.MethodGet, "/room/nope/stats", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("code=%d, want 404", w.Code)
	}

	roomID, _ := streamer.CreateRoom("p", "u")
	streamer.AddPeer(roomID, "h", "", "host")
	streamer.AddPeer(roomID, "v", "", "viewer")

	w, body := doJSON(t, h, http.MethodGet, "/room/"+string(roomID)+"/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d", w.Code)
	}
	if body["room_id"] != string(roomID) || body["is_active"] != true ||
		body["has_host"] != true || body["viewer_count"] != float64(1) {
		t.Fatalf("body=%v", body)
	}
}

func TestServerStats(t *testing.T) {
	h, streamer, _ := newTestServer()
	roomID, _ := streamer.CreateRoom("p", "u")
	streamer.AddPeer(roomID, "h", "", "host")
	streamer.AddBytes(10, 4)

	w, body := doJSON(t, h, http.MethodGet, "/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d", w.Code)
	}
	if body["total_rooms"] != float64(1) || body["total_hosts"] != float64(1) ||
		body["total_bytes_sent"] != float64(10) || body["total_bytes_received"] != float64(4) {
		t.Fatalf("body=%v", body)
	}
}

func TestWebRTCConfig(t *testing.T) {
	h, _, _ := newTestServer()
	w, body := doJSON(t, h, http.MethodGet, "/webrtc/config", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d", w.Code)
	}
	servers, ok := body["ice_servers"].([]any)
	if !ok || len(servers) != 1 {
		t.Fatalf("body=%v", body)
	}
	first := servers[0].(map[string]any)
	urls := first["urls"].([]any)
	if urls[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("ice servers=%v", servers)
	}
}

func TestUpgradeRejectedBadPath(t *testing.T) {
	h, _, registry := newTestServer()

	for _, path := range []string{"/room/abc/watcher", "/room//host", "/stats"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("path %s: code=%d, want 400", path, w.Code)
		}
		if registry.Len() != 0 {
			t.Fatalf("path %s: session created for rejected upgrade", path)
		}
	}
}

func TestUpgradeWithoutKeyRoutesNormally(t *testing.T) {
	h, _, _ := newTestServer()

	// Without a Sec-WebSocket-Key the request is not an upgrade and flows
	// through ordinary routing.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d, want 200", w.Code)
	}
}

func TestUpgradeHandoff(t *testing.T) {
	h, _, registry := newTestServer()
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, err := net.Dial("tcp", strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	req := "GET /room/room_7/viewer HTTP/1.1\r\n" +
		"Host: localhost\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	br := bufio.NewReader(conn)
	var status string
	var accept string
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("read response: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if status == "" {
			status = line
			continue
		}
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Sec-WebSocket-Accept: "); ok {
			accept = v
		}
	}
	if !strings.Contains(status, "101") {
		t.Fatalf("status=%q, want 101", status)
	}
	if accept != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Fatalf("accept=%q", accept)
	}

	deadline := time.Now().Add(time.Second)
	for registry.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if registry.Len() != 1 {
		t.Fatalf("handed-off session not registered")
	}

	// The socket now speaks frames: an offer comes back as an answer.
	offer := []byte(`{"type":"offer","sdp":"v=0"}`)
	if err := protocol.WriteFrame(conn, protocol.OpText, offer, true); err != nil {
		t.Fatalf("write offer: %v", err)
	}
	frameConn := protocol.NewConnBuffered(conn, br, time.Second)
	reply, err := frameConn.ReadMessage()
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	var head struct {
		Type protocol.MessageType `json:"type"`
		Data json.RawMessage      `json:"data"`
	}
	if err := json.Unmarshal(reply, &head); err != nil {
		t.Fatalf("reply %q: %v", reply, err)
	}
	if head.Type != protocol.TypeAnswer || !bytes.Equal(head.Data, offer) {
		t.Fatalf("reply=%s", reply)
	}
}
