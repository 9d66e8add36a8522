// Package network handles peer-to-peer connections over TCP, carrying the
// wire package's binary, optionally-compressed frames instead of the plain
// JSON envelope an earlier revision used.
package network

import (
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tolelom/hybridchain/wire"
)

// Peer represents a connected remote node.
type Peer struct {
	ID   string
	Addr string

	conn   net.Conn
	mu     sync.Mutex
	closed bool
}

// NewPeer wraps an established TCP connection as a Peer.
func NewPeer(id, addr string, conn net.Conn) *Peer {
	return &Peer{ID: id, Addr: addr, conn: conn}
}

// Connect dials the remote address and returns a connected Peer.
// If tlsCfg is non-nil the connection is established over TLS.
func Connect(id, addr string, tlsCfg *tls.Config) (*Peer, error) {
	var conn net.Conn
	var err error
	if tlsCfg != nil {
		conn, err = tls.Dial("tcp", addr, tlsCfg)
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return NewPeer(id, addr, conn), nil
}

// Send writes one wire frame of type typ carrying v to the peer.
func (p *Peer) Send(typ wire.MsgType, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("peer %s closed", p.ID)
	}
	return wire.Encode(p.conn, typ, v)
}

// Receive reads the next wire frame's type and raw (JSON, decompressed)
// body, leaving payload decoding to the caller's dispatch table.
// A 30-second read deadline prevents a stalled peer from blocking indefinitely.
func (p *Peer) Receive() (wire.MsgType, []byte, error) {
	_ = p.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	return wire.DecodeRaw(p.conn)
}

// Close terminates the peer connection.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.conn.Close()
	}
}
