// Package staker implements component G: Minotaur-only VRF-based
// proof-of-stake leader election, modulated by a "virtual stake" derived
// from the node's own recent PoW share.
package staker

import (
	"context"
	"crypto/rand"
	"log"
	"time"

	"github.com/tolelom/hybridchain/chain"
	"github.com/tolelom/hybridchain/config"
	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/crypto"
	"github.com/tolelom/hybridchain/events"
	"github.com/tolelom/hybridchain/hashx"
	"github.com/tolelom/hybridchain/pool"
	"github.com/tolelom/hybridchain/store"
)

// pendingRefsCap bounds how many tranpool entries Staker inspects per
// election attempt; a PoS block only needs txn_block_number of them.
const pendingRefsCap = 256

// AttackerParentFunc, when set on a selfish Staker, overrides the parent it
// extends from, letting the operator manually force the private chain to
// extend a chosen ancestor (spec.md §4.6).
type AttackerParentFunc func(tip hashx.Hash256) hashx.Hash256

// Staker runs the VRF leader-election loop.
type Staker struct {
	view    *chain.View
	tp      *pool.Tranpool
	mp      *pool.Mempool
	cfg     *config.Config
	emitter *events.Emitter

	priv *crypto.VRFPrivateKey
	pub  *crypto.VRFPublicKey

	// Broadcast is called with a newly produced PoS block's hash, unless
	// running selfish. Nil-safe.
	Broadcast func(hashx.Hash256)
	// NotifyMiner is called after a win so the miner can drop its stale
	// candidate (spec.md §4.6 "signal miner via context-update").
	NotifyMiner func()
	// AttackerParent overrides the parent a selfish staker extends, when set.
	AttackerParent AttackerParentFunc

	control chan Control

	// epochCounts caches my/total PoW-block counts per epoch index, fixed
	// once that epoch has fully elapsed (spec.md §4.6 step 3).
	epochCounts map[int64]*epochCount
	myThisEpoch int64
	curEpoch    int64
}

type epochCount struct {
	mine  int64
	total int64
}

// State mirrors the miner's Run/Paused/ShutDown control states.
type State int

const (
	StateRun State = iota
	StatePaused
	StateShutDown
)

// Control is a command sent on the staker's control channel. ZetaUs is the
// µs sleep between PoS attempts (spec.md §6 /staker/start?zeta=); it is
// only applied when State is StateRun and ZetaUs > 0, mirroring
// miner.Control's LambdaUs.
type Control struct {
	State  State
	ZetaUs int64
}

// New builds a Staker with a fresh VRF key pair.
func New(view *chain.View, mp *pool.Mempool, tp *pool.Tranpool, cfg *config.Config, emitter *events.Emitter) (*Staker, error) {
	priv, pub, err := crypto.GenerateVRFKeyPair()
	if err != nil {
		return nil, err
	}
	s := &Staker{
		view:        view,
		tp:          tp,
		mp:          mp,
		cfg:         cfg,
		emitter:     emitter,
		priv:        priv,
		pub:         pub,
		control:     make(chan Control, 1),
		epochCounts: make(map[int64]*epochCount),
	}
	emitter.Subscribe(events.EventFruitMined, s.onOwnFruit)
	emitter.Subscribe(events.EventBlockMined, s.onOwnFruit)
	return s, nil
}

// onOwnFruit counts a PoW hit mined by this node toward the current epoch's
// "my" tally. The mined-block event types are only raised for locally
// produced blocks (the gossip worker emits only EventTipChanged/EventReorg
// for received blocks), so this is exactly the local node's own share,
// never a peer's.
func (s *Staker) onOwnFruit(events.Event) {
	s.myThisEpoch++
}

// SendControl posts a state-transition command, replacing any pending one.
func (s *Staker) SendControl(c Control) {
	for {
		select {
		case s.control <- c:
			return
		default:
			select {
			case <-s.control:
			default:
			}
		}
	}
}

// defaultZetaUs is the PoS attempt sleep used until a /staker/start?zeta=
// call sets one explicitly.
const defaultZetaUs = 10_000

// Run drives the election loop until ctx is cancelled or ShutDown arrives.
func (s *Staker) Run(ctx context.Context) {
	log.Printf("[staker] starting")
	state := StatePaused
	zetaUs := int64(defaultZetaUs)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[staker] stopping: %v", ctx.Err())
			return
		case c := <-s.control:
			state = c.State
			if state == StateRun && c.ZetaUs > 0 {
				zetaUs = c.ZetaUs
			}
			if state == StateShutDown {
				log.Printf("[staker] shut down by control")
				return
			}
			continue
		default:
		}

		if state != StateRun {
			select {
			case <-ctx.Done():
				return
			case c := <-s.control:
				state = c.State
				if state == StateRun && c.ZetaUs > 0 {
					zetaUs = c.ZetaUs
				}
				if state == StateShutDown {
					log.Printf("[staker] shut down by control")
					return
				}
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		s.attempt()
		time.Sleep(time.Duration(zetaUs) * time.Microsecond)
	}
}

// rollEpoch finalizes the previous epoch's counts the first time attempt
// observes a new epoch index, then resets the running "my" tally.
func (s *Staker) rollEpoch(epoch int64) {
	if epoch == s.curEpoch {
		return
	}
	if _, cached := s.epochCounts[s.curEpoch]; !cached {
		s.epochCounts[s.curEpoch] = &epochCount{mine: s.myThisEpoch, total: s.totalPowInEpoch(s.curEpoch)}
	}
	s.curEpoch = epoch
	s.myThisEpoch = 0
}

func (s *Staker) totalPowInEpoch(epoch int64) int64 {
	recs := s.view.AllBlocksInLongestChain()
	genesisTs := int64(0)
	if len(recs) > 0 {
		genesisTs = int64(recs[0].Block.Header.TimestampUs.Lo)
	}
	windowStart := genesisTs + epoch*s.cfg.Genesis.EpochTimeUs
	windowEnd := windowStart + s.cfg.Genesis.EpochTimeUs
	var total int64
	for _, rec := range recs {
		ts := int64(rec.Block.Header.TimestampUs.Lo)
		if ts >= windowStart && ts < windowEnd && rec.Block.BlockType == core.BlockTypePoWFruit {
			total++
		}
	}
	return total
}

// virtualFraction returns my_pow_count_in_previous_epoch /
// total_pow_count_in_previous_epoch for the epoch preceding nowEpoch,
// dividing by 1 (100% virtual stake) when no PoW blocks existed in that
// window, per spec.md §9's documented bootstrap behavior.
func (s *Staker) virtualFraction(nowEpoch int64) float64 {
	prev := nowEpoch - 1
	c, ok := s.epochCounts[prev]
	if !ok || c.total == 0 {
		return 1.0
	}
	return float64(c.mine) / float64(c.total)
}

// attempt runs one VRF election against the current tip (spec.md §4.6).
func (s *Staker) attempt() {
	tip, _ := s.view.Tip()
	if s.cfg.Consensus.Selfish && s.AttackerParent != nil {
		tip = s.AttackerParent(tip)
	}
	nowUs := time.Now().UnixMicro()
	epoch := s.view.Epoch(nowUs)
	s.rollEpoch(epoch)

	var randBytes [16]byte
	_, _ = rand.Read(randBytes[:])
	randVal := core.Uint128FromRandBytes(randBytes)
	tsVal := core.Uint128FromMicros(nowUs)

	randBytesArr := randVal.Bytes()
	tsBytesArr := tsVal.Bytes()
	message := append(append([]byte{}, randBytesArr[:]...), tsBytesArr[:]...)

	proof, err := crypto.Prove(s.priv, s.pub, message)
	if err != nil {
		log.Printf("[staker] vrf prove error: %v", err)
		return
	}
	vrfHashBytes, err := crypto.ProofToHash(proof)
	if err != nil {
		log.Printf("[staker] vrf proof_to_hash error: %v", err)
		return
	}
	var vrfHash hashx.Hash256
	copy(vrfHash[:], vrfHashBytes)

	fraction := s.virtualFraction(epoch)
	weight := s.cfg.Consensus.Omega*fraction + s.cfg.Consensus.Beta*(1-s.cfg.Consensus.Omega)
	posTarget := s.view.GetPosDifficulty()
	virtualTarget := hashx.MultiplyBy(posTarget, weight)

	winHash := hashx.Sum(vrfHashBytes)
	if !winHash.LessOrEqual(virtualTarget) {
		return
	}

	refs := s.tp.Pending(pendingRefsCap)
	if len(refs) < s.cfg.Consensus.TxnBlockNumber {
		return
	}

	parentMMR, _ := s.view.Store().MMRFor(tip)

	content := core.Content{TransactionRef: refs}
	header := core.Header{
		Parent:        tip,
		PowDifficulty: s.view.GetDifficulty(nowUs),
		PosDifficulty: posTarget,
		TimestampUs:   tsVal,
		MerkleRoot:    content.MerkleRoot(),
		MMRRoot:       parentMMR.Root(),
		VRFProof:      proof,
		VRFHash:       vrfHash,
		VRFPubkey:     s.pub.Bytes(),
		Rand:          randVal,
	}
	candidate := &core.Block{
		Header:       header,
		Content:      content,
		BlockType:    core.BlockTypePoSBlock,
		SelfishBlock: s.cfg.Consensus.Selfish,
	}

	var changed bool
	var outcome store.InsertOutcome
	if s.cfg.Consensus.Selfish {
		changed, outcome = s.view.InsertSelfish(candidate)
	} else {
		changed, outcome = s.view.InsertHonest(candidate)
	}
	if outcome != store.Inserted {
		return
	}
	h := candidate.Hash()
	s.tp.Remove(refs)

	result := s.view.ComputeReorg(tip)
	var selfishSkip func(*core.BlockRecord) bool
	if s.cfg.Consensus.Selfish && s.view.IsWithholding() {
		selfishSkip = func(rec *core.BlockRecord) bool { return !rec.Block.SelfishBlock }
	}
	chain.ApplyReorg(result, s.mp, s.tp, selfishSkip)

	height, _ := s.view.Store().GetHeight(h)
	s.emitter.Emit(events.Event{Type: events.EventPosBlockWon, Hash: h.String(), Height: height.Lo})
	if changed {
		s.emitter.Emit(events.Event{Type: events.EventTipChanged, Hash: h.String(), Height: height.Lo})
	}

	if s.NotifyMiner != nil {
		s.NotifyMiner()
	}
	if !s.cfg.Consensus.Selfish && s.Broadcast != nil {
		s.Broadcast(h)
	}
}
