package network

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/tolelom/hybridchain/wire"
)

// MessageHandler is called for each frame a peer sends. body is the raw,
// decompressed JSON payload; the caller (gossip.Worker) owns dispatching by
// typ into the right wire.*Payload struct.
type MessageHandler func(peer *Peer, typ wire.MsgType, body []byte)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// Node listens for incoming peers and manages outgoing connections. It owns
// only connection lifecycle — accept/dial/registry/broadcast — and knows
// nothing about consensus message semantics; that is gossip.Worker's job,
// wired in via SetHandler (spec.md §1 names the peer layer an external
// collaborator).
type Node struct {
	nodeID     string
	listenAddr string
	tlsConfig  *tls.Config // nil → plain TCP
	maxPeers   int

	mu      sync.RWMutex
	peers   map[string]*Peer
	onFrame MessageHandler

	listener net.Listener
	stopCh   chan struct{}
}

// NewNode creates a Node that will listen on listenAddr.
// If tlsCfg is non-nil the listener and outgoing connections use TLS.
func NewNode(nodeID, listenAddr string, tlsCfg *tls.Config) *Node {
	return &Node{
		nodeID:     nodeID,
		listenAddr: listenAddr,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		peers:      make(map[string]*Peer),
		stopCh:     make(chan struct{}),
	}
}

// SetHandler installs the single dispatcher invoked for every received frame.
func (n *Node) SetHandler(h MessageHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onFrame = h
}

// Start begins accepting connections.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Stop shuts down the node.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// AddPeer dials addr and registers the peer.
func (n *Node) AddPeer(id, addr string) (*Peer, error) {
	peer, err := Connect(id, addr, n.tlsConfig)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.peers[id] = peer
	n.mu.Unlock()
	go n.readLoop(peer)
	return peer, nil
}

// Peer returns the connected peer with the given id, or nil if not found.
func (n *Node) Peer(id string) *Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[id]
}

// Peers returns a snapshot of all currently connected peers.
func (n *Node) Peers() []*Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p)
	}
	return out
}

// Broadcast sends typ/v to all connected peers.
func (n *Node) Broadcast(typ wire.MsgType, v any) {
	for _, p := range n.Peers() {
		if err := p.Send(typ, v); err != nil {
			log.Printf("[network] broadcast %s to %s: %v", typ, p.ID, err)
		}
	}
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				log.Printf("[network] accept error: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		n.mu.RLock()
		peerCount := len(n.peers)
		n.mu.RUnlock()
		if peerCount >= n.maxPeers {
			log.Printf("[network] max peers (%d) reached, rejecting %s", n.maxPeers, conn.RemoteAddr())
			conn.Close()
			continue
		}
		peer := NewPeer(conn.RemoteAddr().String(), conn.RemoteAddr().String(), conn)
		n.mu.Lock()
		n.peers[peer.ID] = peer
		n.mu.Unlock()
		go n.readLoop(peer)
	}
}

func (n *Node) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[network] readLoop panic from %s: %v", peer.ID, r)
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peer.ID)
		n.mu.Unlock()
	}()
	for {
		typ, body, err := peer.Receive()
		if err != nil {
			return
		}
		n.mu.RLock()
		h := n.onFrame
		n.mu.RUnlock()
		if h != nil {
			h(peer, typ, body)
		}
	}
}
