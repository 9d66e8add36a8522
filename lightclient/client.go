// Package lightclient implements component I: the SPV and FlyClient
// light-client protocols (spec.md §4.9). Every node answers the requests
// below from its own chain view regardless of configuration; a node with
// light_client.enabled additionally runs the periodic driver loop that
// issues them against a peer and verifies what comes back. The driver's
// State/Control/Run shape mirrors miner.Miner's: one thread, cooperatively
// paused or shut down via a replace-latest control channel rather than
// cancelled outright.
package lightclient

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/tolelom/hybridchain/chain"
	"github.com/tolelom/hybridchain/config"
	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/network"
	"github.com/tolelom/hybridchain/wire"
)

// State is the driver's run state, switched by Control.
type State int

const (
	StateRun State = iota
	StatePaused
	StateShutDown
)

// Control is a command sent on the driver's control channel.
type Control struct {
	State State
}

// responseWait bounds how long a driver round waits for a peer's reply.
// The wire protocol carries no request/response correlation ID, so a round
// can only wait for the next reply of the expected type to arrive on this
// peer's connection.
const responseWait = 5 * time.Second

// maxSampleAttempts bounds how many random picks the server side makes
// while looking for a block that actually carries a transaction to prove,
// before giving up on one request.
const maxSampleAttempts = 8

// Client answers peer light-client requests from the local chain view and,
// once driven via Run, periodically queries a peer and verifies the result.
type Client struct {
	node *network.Node
	view *chain.View
	cfg  *config.Config

	control chan Control
	state   State

	spvChainCh chan wire.SPVChainPayload
	spvProofCh chan wire.SPVTxnProofPayload
	flyChainCh chan wire.FlyChainPayload
	flyProofCh chan wire.FlyTxnProofPayload

	mu          sync.Mutex
	spvChain    []*core.Block
	flyProposal *wire.FlyProposal
}

// New builds a Client over view. It starts Paused; call Run to drive it.
// HandleFrame should be wired in regardless, via gossip.Worker.SetLightHandler,
// so this node can serve other peers' light clients.
func New(node *network.Node, view *chain.View, cfg *config.Config) *Client {
	return &Client{
		node:       node,
		view:       view,
		cfg:        cfg,
		control:    make(chan Control, 1),
		state:      StatePaused,
		spvChainCh: make(chan wire.SPVChainPayload, 1),
		spvProofCh: make(chan wire.SPVTxnProofPayload, 1),
		flyChainCh: make(chan wire.FlyChainPayload, 1),
		flyProofCh: make(chan wire.FlyTxnProofPayload, 1),
	}
}

// SendControl posts a state-transition command, replacing any still-pending
// one: only the latest desired state matters (mirrors miner.Miner.SendControl).
func (c *Client) SendControl(ctrl Control) {
	for {
		select {
		case c.control <- ctrl:
			return
		default:
			select {
			case <-c.control:
			default:
			}
		}
	}
}

// HandleFrame dispatches one received light-client frame. It matches
// network.MessageHandler's signature and is installed via
// gossip.Worker.SetLightHandler.
func (c *Client) HandleFrame(peer *network.Peer, typ wire.MsgType, body []byte) {
	switch typ {
	case wire.MsgSPVGetChain:
		c.serveSPVGetChain(peer)
	case wire.MsgSPVChain:
		var p wire.SPVChainPayload
		if unmarshalPayload(typ, body, &p) {
			offer(c.spvChainCh, p)
		}
	case wire.MsgSPVVerifyRandomTxn:
		c.serveSPVVerifyRandomTxn(peer)
	case wire.MsgSPVTxnProof:
		var p wire.SPVTxnProofPayload
		if unmarshalPayload(typ, body, &p) {
			offer(c.spvProofCh, p)
		}
	case wire.MsgFlyGetChain:
		c.serveFlyGetChain(peer)
	case wire.MsgFlyChain:
		var p wire.FlyChainPayload
		if unmarshalPayload(typ, body, &p) {
			offer(c.flyChainCh, p)
		}
	case wire.MsgFlyVerifyRandomTxn:
		c.serveFlyVerifyRandomTxn(peer)
	case wire.MsgFlyTxnProof:
		var p wire.FlyTxnProofPayload
		if unmarshalPayload(typ, body, &p) {
			offer(c.flyProofCh, p)
		}
	}
}

// Run drives the outer driver loop (periodic SPV round, then FlyClient
// round, then sleep) until ctx is cancelled or a ShutDown control arrives.
// It blocks the calling goroutine.
func (c *Client) Run(ctx context.Context) {
	log.Printf("[lightclient] starting driver")
	interval := time.Duration(c.cfg.LightClient.IntervalUs) * time.Microsecond
	if interval <= 0 {
		interval = 5 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			log.Printf("[lightclient] stopping: %v", ctx.Err())
			return
		case ctrl := <-c.control:
			c.state = ctrl.State
			if c.state == StateShutDown {
				log.Printf("[lightclient] shut down by control")
				return
			}
			continue
		default:
		}

		if c.state != StateRun {
			select {
			case <-ctx.Done():
				return
			case ctrl := <-c.control:
				c.state = ctrl.State
				if c.state == StateShutDown {
					log.Printf("[lightclient] shut down by control")
					return
				}
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		c.runSPVRound(ctx)
		c.runFlyRound(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// pickPeer chooses one connected peer at random. The spec describes these
// requests as "broadcast", but with no correlation ID on the wire a clean
// request/response round only works against a single peer at a time; this
// is recorded in DESIGN.md as a deliberate literal-text resolution.
func (c *Client) pickPeer() *network.Peer {
	peers := c.node.Peers()
	if len(peers) == 0 {
		return nil
	}
	return peers[randIndex(len(peers))]
}

func send(peer *network.Peer, typ wire.MsgType, v any) {
	if err := peer.Send(typ, v); err != nil {
		log.Printf("[lightclient] send %s to %s: %v", typ, peer.ID, err)
	}
}

func unmarshalPayload(typ wire.MsgType, body []byte, out any) bool {
	if err := json.Unmarshal(body, out); err != nil {
		log.Printf("[lightclient] unmarshal %s: %v", typ, err)
		return false
	}
	return true
}

// offer replaces a single-slot channel's pending value rather than blocking:
// only the most recent reply to a round's open request matters.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

// drain empties a single-slot channel of any stale reply left over from a
// previous round before a new request is sent on it.
func drain[T any](ch chan T) {
	select {
	case <-ch:
	default:
	}
}

// waitFor blocks for up to responseWait for a reply, or until ctx ends.
func waitFor[T any](ctx context.Context, ch chan T) (T, bool) {
	var zero T
	select {
	case v := <-ch:
		return v, true
	case <-time.After(responseWait):
		return zero, false
	case <-ctx.Done():
		return zero, false
	}
}

// randIndex returns a uniform value in [0, n), using crypto/rand the same
// way miner.randomNonce and staker.attempt draw randomness elsewhere in
// this codebase. n <= 0 always returns 0.
func randIndex(n int) int {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	_, _ = rand.Read(b[:])
	return int(binary.BigEndian.Uint64(b[:]) % uint64(n))
}
