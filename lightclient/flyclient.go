package lightclient

import (
	"context"
	"log"

	"github.com/tolelom/hybridchain/merkle"
	"github.com/tolelom/hybridchain/mmr"
	"github.com/tolelom/hybridchain/network"
	"github.com/tolelom/hybridchain/wire"
)

// serveFlyGetChain answers with {chain_depth, tip_header} plus an MMR proof
// for a random leaf index in [0, chain_depth-2] (spec.md §4.9 FlyClient
// step 1). tip_header.mmr_root commits every ancestor up to but excluding
// the tip itself — the MMR the tip's own parent accumulated — which is
// exactly the depth-1-leaf tree that range of sample indices addresses;
// see miner.go/staker.go's header construction.
func (c *Client) serveFlyGetChain(peer *network.Peer) {
	records := c.view.AllBlocksInLongestChain()
	depth := len(records)
	if depth < 2 {
		return
	}
	tipHash, _ := c.view.Tip()
	tipBlock, ok := c.view.Store().Get(tipHash)
	if !ok {
		return
	}
	parentMMR, ok := c.view.Store().MMRFor(tipBlock.Header.Parent)
	if !ok {
		return
	}
	sampleIndex := randIndex(depth - 1)
	sampleProof, ok := parentMMR.ProofFor(sampleIndex)
	if !ok {
		return
	}
	send(peer, wire.MsgFlyChain, wire.FlyChainPayload{
		Proposal: wire.FlyProposal{
			ChainDepth: int64(depth),
			TipHeader:  tipBlock.Header,
		},
		SampleIndex:    sampleIndex,
		SampleLeafHash: records[sampleIndex].Block.Hash(),
		SampleProof:    sampleProof,
	})
}

// serveFlyVerifyRandomTxn picks a random non-tip block with at least one
// transaction and answers with an MMR membership proof for that block
// bundled with a Merkle proof of one of its transactions (spec.md §4.9
// FlyClient step 2).
func (c *Client) serveFlyVerifyRandomTxn(peer *network.Peer) {
	records := c.view.AllBlocksInLongestChain()
	depth := len(records)
	if depth < 2 {
		return
	}
	tipHash, _ := c.view.Tip()
	tipBlock, ok := c.view.Store().Get(tipHash)
	if !ok {
		return
	}
	parentMMR, ok := c.view.Store().MMRFor(tipBlock.Header.Parent)
	if !ok {
		return
	}

	for attempt := 0; attempt < maxSampleAttempts; attempt++ {
		idx := randIndex(depth - 1)
		block := records[idx].Block
		if len(block.Content.Data) == 0 {
			continue
		}
		leaves := block.Content.LeafHashes()
		txnIdx := randIndex(len(block.Content.Data))
		tree := merkle.Build(leaves)

		mmrProof, ok := parentMMR.ProofFor(idx)
		if !ok {
			continue
		}

		send(peer, wire.MsgFlyTxnProof, wire.FlyTxnProofPayload{
			BlockIndex: idx,
			MMRProof:   mmrProof,
			BlockHash:  block.Hash(),
			Root:       tree.Root(),
			TxnHash:    block.Content.Data[txnIdx].Hash(),
			TxnLeaf:    leaves[txnIdx],
			TxnProof:   tree.ProofFor(txnIdx),
			TxnIndex:   txnIdx,
			LeafCount:  len(leaves),
		})
		return
	}
}

// runFlyRound drives one FlyClient cycle: fetch-and-verify a chain
// proposal, then request and verify a random transaction proof bundled
// against it (spec.md §4.9 FlyClient).
func (c *Client) runFlyRound(ctx context.Context) {
	peer := c.pickPeer()
	if peer == nil {
		return
	}

	drain(c.flyChainCh)
	send(peer, wire.MsgFlyGetChain, wire.FlyGetChainPayload{})
	chainResp, ok := waitFor(ctx, c.flyChainCh)
	if !ok {
		return
	}
	if !c.verifyFlySample(chainResp) {
		log.Printf("[lightclient] flyclient: sample proof verification FAILED from %s", peer.ID)
		return
	}
	prop := chainResp.Proposal
	c.mu.Lock()
	c.flyProposal = &prop
	c.mu.Unlock()
	log.Printf("[lightclient] flyclient: accepted proposal depth=%d from %s", chainResp.Proposal.ChainDepth, peer.ID)

	drain(c.flyProofCh)
	send(peer, wire.MsgFlyVerifyRandomTxn, wire.FlyVerifyRandomTxnPayload{})
	proof, ok := waitFor(ctx, c.flyProofCh)
	if !ok {
		return
	}
	if c.verifyFlyTxnProof(proof) {
		log.Printf("[lightclient] flyclient: verified txn %s in block %s", proof.TxnHash, proof.BlockHash)
	} else {
		log.Printf("[lightclient] flyclient: txn proof verification FAILED for block %s", proof.BlockHash)
	}
}

// verifyFlySample checks the sample index is within the declared depth's
// valid range and that the MMR proof binds it to the proposal's own tip
// header (spec.md §4.9 FlyClient step 3, first half).
func (c *Client) verifyFlySample(p wire.FlyChainPayload) bool {
	if p.Proposal.ChainDepth < 2 {
		return false
	}
	if p.SampleIndex < 0 || int64(p.SampleIndex) > p.Proposal.ChainDepth-2 {
		return false
	}
	return mmr.Verify(p.Proposal.TipHeader.MMRRoot, p.SampleLeafHash, p.SampleProof)
}

// verifyFlyTxnProof checks the MMR proof against the last accepted
// proposal's tip header, then the Merkle proof against the block's declared
// merkle root (spec.md §4.9 FlyClient step 3, second half). Unlike SPV,
// there is no independently-held block to cross-check Root against: the
// FlyClient never downloads the sampled block itself, only trusts the
// MMR-proven binding between its hash and the chain it already verified.
func (c *Client) verifyFlyTxnProof(p wire.FlyTxnProofPayload) bool {
	c.mu.Lock()
	prop := c.flyProposal
	c.mu.Unlock()
	if prop == nil {
		return false
	}
	if !mmr.Verify(prop.TipHeader.MMRRoot, p.BlockHash, p.MMRProof) {
		return false
	}
	return merkle.Verify(p.Root, p.TxnLeaf, p.TxnProof, p.TxnIndex, p.LeafCount)
}
