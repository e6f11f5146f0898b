package protocol

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/onlylang/livesignal/internal/core"
)

// Frame opcodes and header bits per RFC 6455.
const (
	OpContinuation byte = 0x0
	OpText         byte = 0x1
	OpBinary       byte = 0x2
	OpClose        byte = 0x8
	OpPing         byte = 0x9
	OpPong         byte = 0xA

	finBit  = 0x80
	maskBit = 0x80
)

// MaxFramePayload caps a single frame's payload.
const MaxFramePayload = 1 << 20 // 1 MiB

var ErrFrameTooLarge = errors.New("frame payload exceeds maximum allowed size")

type frame struct {
	final   bool
	opcode  byte
	payload []byte
}

// readFrame parses one frame from r, unmasking the payload when the
// client mask bit is set.
func readFrame(r io.Reader) (frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return frame{}, err
	}

	f := frame{
		final:  hdr[0]&finBit != 0,
		opcode: hdr[0] & 0x0F,
	}
	masked := hdr[1]&maskBit != 0
	// Unsigned throughout: a hostile 64-bit length with the top bit set
	// must not wrap negative and slip past the size check.
	length := uint64(hdr[1] & 0x7F)

	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return frame{}, err
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return frame{}, err
		}
		length = binary.BigEndian.Uint64(ext[:])
	}
	if length > MaxFramePayload {
		return frame{}, ErrFrameTooLarge
	}

	var maskKey [4]byte
	if masked {
		if _, err := io.ReadFull(r, maskKey[:]); err != nil {
			return frame{}, err
		}
	}

	f.payload = make([]byte, int(length))
	if _, err := io.ReadFull(r, f.payload); err != nil {
		return frame{}, err
	}
	if masked {
		for i := range f.payload {
			f.payload[i] ^= maskKey[i%4]
		}
	}
	return f, nil
}

// WriteFrame serializes one frame to w. Server frames go unmasked;
// mask=true produces a client-style masked frame (used by tests acting
// as the remote peer).
func WriteFrame(w io.Writer, opcode byte, payload []byte, mask bool) error {
	if len(payload) > MaxFramePayload {
		return ErrFrameTooLarge
	}

	var hdr [14]byte
	hdr[0] = finBit | (opcode & 0x0F)
	n := 2

	switch {
	case len(payload) <= 125:
		hdr[1] = byte(len(payload))
	case len(payload) <= 0xFFFF:
		hdr[1] = 126
		binary.BigEndian.PutUint16(hdr[2:], uint16(len(payload)))
		n += 2
	default:
		hdr[1] = 127
		binary.BigEndian.PutUint64(hdr[2:], uint64(len(payload)))
		n += 8
	}

	out := payload
	if mask {
		hdr[1] |= maskBit
		var key [4]byte
		if _, err := rand.Read(key[:]); err != nil {
			return err
		}
		copy(hdr[n:], key[:])
		n += 4
		out = make([]byte, len(payload))
		for i := range payload {
			out[i] = payload[i] ^ key[i%4]
		}
	}

	if _, err := w.Write(hdr[:n]); err != nil {
		return err
	}
	if len(out) == 0 {
		return nil
	}
	_, err := w.Write(out)
	return err
}

// Conn adapts a raw, already-upgraded network connection into the
// Transport the session layer reads. It answers pings, coalesces
// fragmented messages, and reports a close frame as core.ErrClosed.
type Conn struct {
	raw          net.Conn
	br           *bufio.Reader
	writeTimeout time.Duration

	// Serializes frame writes: the read loop answers pings while the
	// owning session writes data frames.
	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewConn takes exclusive ownership of raw. The previous owner must not
// touch the connection again. writeTimeout bounds each frame write so a
// peer that stops reading cannot stall the writer; zero disables the
// deadline.
func NewConn(raw net.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{raw: raw, br: bufio.NewReader(raw), writeTimeout: writeTimeout}
}

// NewConnBuffered is NewConn for connections hijacked out of an HTTP
// server, where bytes the client sent right after the handshake may
// already sit in the server's buffer.
func NewConnBuffered(raw net.Conn, buffered io.Reader, writeTimeout time.Duration) *Conn {
	return &Conn{
		raw:          raw,
		br:           bufio.NewReader(io.MultiReader(buffered, raw)),
		writeTimeout: writeTimeout,
	}
}

func (c *Conn) ReadMessage() ([]byte, error) {
	var msg []byte
	assembling := false

	for {
		f, err := readFrame(c.br)
		if err != nil {
			return nil, err
		}

		switch f.opcode {
		case OpText, OpBinary:
			msg = f.payload
			assembling = true
		case OpContinuation:
			if !assembling {
				return nil, errors.New("continuation frame without initial frame")
			}
			if len(msg)+len(f.payload) > MaxFramePayload {
				return nil, ErrFrameTooLarge
			}
			msg = append(msg, f.payload...)
		case OpPing:
			if err := c.writeFrame(OpPong, f.payload); err != nil {
				return nil, err
			}
			continue
		case OpPong:
			continue
		case OpClose:
			// Echo the close and report a clean shutdown.
			_ = c.writeFrame(OpClose, f.payload)
			return nil, core.ErrClosed
		default:
			return nil, errors.New("unsupported frame opcode")
		}

		if f.final {
			return msg, nil
		}
	}
}

func (c *Conn) WriteMessage(data []byte) error {
	return c.writeFrame(OpText, data)
}

func (c *Conn) writeFrame(opcode byte, payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return WriteFrame(c.raw, opcode, payload, false)
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.raw.Close()
	})
	return c.closeErr
}
