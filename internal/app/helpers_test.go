package app

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/onlylang/livesignal/internal/core"
	"github.com/onlylang/livesignal/internal/domain"
)

// fakeTransport records writes and feeds reads from a channel.
type fakeTransport struct {
	mu   sync.Mutex
	sent [][]byte

	incoming  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case data := <-t.incoming:
		return data, nil
	case <-t.closed:
		return nil, core.ErrClosed
	}
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	select {
	case <-t.closed:
		return errors.New("write on closed transport")
	default:
	}
	t.mu.Lock()
	t.sent = append(t.sent, append([]byte(nil), data...))
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *fakeTransport) push(data []byte) { t.incoming <- data }

func (t *fakeTransport) sentMessages() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}

// fakeStreamer records collaborator calls.
type fakeStreamer struct {
	mu          sync.Mutex
	addCount    int
	addRoles    []domain.Role
	addRooms    []domain.RoomID
	removeCalls []domain.PeerID
	failAdd     bool
	sent, recv  uint64
}

func (f *fakeStreamer) CreateRoom(postID, hostUserID string) (domain.RoomID, error) {
	return domain.RoomID("room_" + postID), nil
}

func (f *fakeStreamer) DeleteRoom(id domain.RoomID) bool { return false }

func (f *fakeStreamer) GetRoom(id domain.RoomID) (domain.Room, bool) {
	return domain.Room{}, false
}

func (f *fakeStreamer) AddPeer(roomID domain.RoomID, display, metadata string, role domain.Role) (domain.PeerID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd {
		return "", errors.New("room full")
	}
	f.addCount++
	f.addRoles = append(f.addRoles, role)
	f.addRooms = append(f.addRooms, roomID)
	return domain.PeerID(fmt.Sprintf("peer-%d", f.addCount)), nil
}

func (f *fakeStreamer) RemovePeer(id domain.PeerID) {
	f.mu.Lock()
	f.removeCalls = append(f.removeCalls, id)
	f.mu.Unlock()
}

func (f *fakeStreamer) AddBytes(sent, received uint64) {
	f.mu.Lock()
	f.sent += sent
	f.recv += received
	f.mu.Unlock()
}

func (f *fakeStreamer) Stats() domain.ServerStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.ServerStats{TotalBytesSent: f.sent, TotalBytesReceived: f.recv}
}

func (f *fakeStreamer) removed() []domain.PeerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.PeerID, len(f.removeCalls))
	copy(out, f.removeCalls)
	return out
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
