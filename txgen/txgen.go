// Package txgen implements the synthetic transaction generator spec.md
// §4's control API exposes via /tx-generator/start: a source of load for
// the mempool when no real wallet traffic is available, useful for
// exercising miner/staker/gossip under this research build. Its
// Run/Control/State shape mirrors miner.Miner's exactly, down to the
// replace-latest control channel and non-blocking outer loop.
package txgen

import (
	"context"
	"crypto/rand"
	"log"
	"time"

	"github.com/tolelom/hybridchain/pool"
	"github.com/tolelom/hybridchain/wallet"
)

// State is the generator's run state, switched by Control.
type State int

const (
	StateRun State = iota
	StatePaused
	StateShutDown
)

// Control is a command sent on the generator's control channel. ThetaUs is
// only applied when State is StateRun and ThetaUs > 0; zero leaves the
// previous sleep value unchanged (mirrors miner.Control's LambdaUs).
type Control struct {
	State   State
	ThetaUs int64
}

const payloadSize = 32

// Generator periodically builds a signed transaction carrying random
// payload bytes from its own internal wallet and submits it to a mempool.
type Generator struct {
	mp *pool.Mempool
	w  *wallet.Wallet

	control chan Control
	state   State
	thetaUs int64
	nonce   uint64
}

// New builds a Generator over mp, with a freshly generated signing
// identity (spec.md §1 treats identity/keys as an external concern; this
// generator is not meant to impersonate a real account). It starts Paused.
func New(mp *pool.Mempool) (*Generator, error) {
	w, err := wallet.Generate()
	if err != nil {
		return nil, err
	}
	return &Generator{
		mp:      mp,
		w:       w,
		control: make(chan Control, 1),
		state:   StatePaused,
	}, nil
}

// SendControl posts a state-transition command, replacing any still-pending
// one (mirrors miner.Miner.SendControl).
func (g *Generator) SendControl(c Control) {
	for {
		select {
		case g.control <- c:
			return
		default:
			select {
			case <-g.control:
			default:
			}
		}
	}
}

// Run drives the generator loop until ctx is cancelled or a ShutDown
// control arrives. It blocks the calling goroutine.
func (g *Generator) Run(ctx context.Context) {
	log.Printf("[txgen] starting")
	for {
		select {
		case <-ctx.Done():
			log.Printf("[txgen] stopping: %v", ctx.Err())
			return
		case c := <-g.control:
			g.applyControl(c)
			if g.state == StateShutDown {
				log.Printf("[txgen] shut down by control")
				return
			}
			continue
		default:
		}

		if g.state != StateRun {
			select {
			case <-ctx.Done():
				return
			case c := <-g.control:
				g.applyControl(c)
				if g.state == StateShutDown {
					log.Printf("[txgen] shut down by control")
					return
				}
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		g.emit()

		if g.thetaUs > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(g.thetaUs) * time.Microsecond):
			}
		}
	}
}

func (g *Generator) applyControl(c Control) {
	g.state = c.State
	if c.State == StateRun && c.ThetaUs > 0 {
		g.thetaUs = c.ThetaUs
	}
}

// emit builds, signs, and submits one synthetic transaction. A submission
// failure (a failed signature check or an identical transaction already
// pending) is logged and dropped; the generator just tries again next
// tick rather than retrying inline.
func (g *Generator) emit() {
	payload := make([]byte, payloadSize)
	if _, err := rand.Read(payload); err != nil {
		log.Printf("[txgen] rand.Read: %v", err)
		return
	}
	tx := g.w.NewTx(g.nonce, payload, time.Now().UnixMicro())
	g.nonce++
	if err := g.mp.Add(tx); err != nil {
		log.Printf("[txgen] mempool add: %v", err)
	}
}
