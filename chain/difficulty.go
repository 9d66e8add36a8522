package chain

import (
	"github.com/tolelom/hybridchain/config"
	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/hashx"
)

// Epoch returns (now - genesis_ts) / epoch_time, the Minotaur/Fruitchain
// time-window index (spec.md §4.3).
func (v *View) Epoch(nowUs int64) int64 {
	genesisTs := v.genesisTimestampUs()
	delta := nowUs - genesisTs
	if delta < 0 {
		return 0
	}
	return delta / v.cfg.Genesis.EpochTimeUs
}

func (v *View) genesisTimestampUs() int64 {
	chainRecs := v.AllBlocksInLongestChain()
	if len(chainRecs) == 0 {
		return 0
	}
	return int64(chainRecs[0].Block.Header.TimestampUs.Lo)
}

func clamp(ratio, lo, hi float64) float64 {
	if lo > 0 && hi > 0 {
		if ratio < lo {
			return lo
		}
		if ratio > hi {
			return hi
		}
	}
	return ratio
}

// GetDifficulty returns the PoW target that applies to a candidate built at
// time nowUs. Outside an epoch boundary it returns the tip's stored
// pow_difficulty unchanged.
//
// Retargeting compares an "expected" quantity against an "observed" one,
// per variant, and divides the old target by a ratio that exceeds 1 when
// the window ran fast: a slow window (ratio < 1) grows the target (easier)
// and a fast window (ratio > 1) shrinks it (harder):
//   - Bitcoin (count-bounded window: exactly epoch_size blocks, by
//     construction): ratio = expected/observed, where expected is the
//     nominal duration epoch_time_us and observed is the *elapsed
//     wall-clock time* spanned by the window (tip timestamp minus the
//     epoch_size-th ancestor's timestamp) — re-counting blocks here would
//     trivially always equal epoch_size and the ratio could never move.
//   - Minotaur/Fruitchain (time-bounded window: exactly epoch_time_us long,
//     by construction): ratio = observed/expected, where expected is the
//     configured expected_pow_per_epoch and observed is the *count* of PoW
//     blocks whose timestamps fall in the window — re-measuring elapsed
//     time here would trivially always equal epoch_time_us.
func (v *View) GetDifficulty(nowUs int64) hashx.Hash256 {
	chainRecs := v.AllBlocksInLongestChain()
	if len(chainRecs) == 0 {
		return hashx.Hash256{}
	}
	tip := chainRecs[len(chainRecs)-1]

	if v.cfg.Consensus.Variant == config.VariantBitcoin {
		return v.getDifficultyBitcoin(chainRecs, tip)
	}
	return v.getDifficultyTimeWindowed(chainRecs, tip, nowUs)
}

func (v *View) getDifficultyBitcoin(chainRecs []*core.BlockRecord, tip *core.BlockRecord) hashx.Hash256 {
	epochSize := v.cfg.Genesis.EpochSize
	height := int64(tip.Height.Lo)
	if epochSize <= 0 || height <= 1 || height%epochSize != 1 {
		return tip.Block.Header.PowDifficulty
	}
	startIdx := len(chainRecs) - 1 - int(epochSize)
	if startIdx < 0 {
		return tip.Block.Header.PowDifficulty
	}
	start := chainRecs[startIdx]
	observed := float64(int64(tip.Block.Header.TimestampUs.Lo) - int64(start.Block.Header.TimestampUs.Lo))
	expected := float64(v.cfg.Genesis.EpochTimeUs)
	if expected <= 0 || observed <= 0 {
		return tip.Block.Header.PowDifficulty
	}
	ratio := expected / observed
	ratio = clamp(ratio, v.cfg.Genesis.RetargetMinMult, v.cfg.Genesis.RetargetMaxMult)
	return hashx.DivideBy(tip.Block.Header.PowDifficulty, ratio)
}

func (v *View) getDifficultyTimeWindowed(chainRecs []*core.BlockRecord, tip *core.BlockRecord, nowUs int64) hashx.Hash256 {
	curEpoch := v.Epoch(nowUs)
	tipEpoch := v.Epoch(int64(tip.Block.Header.TimestampUs.Lo))
	if curEpoch == tipEpoch {
		return tip.Block.Header.PowDifficulty
	}
	genesisTs := v.genesisTimestampUs()
	windowStart := genesisTs + (curEpoch-1)*v.cfg.Genesis.EpochTimeUs
	windowEnd := windowStart + v.cfg.Genesis.EpochTimeUs

	var observed int64
	for _, rec := range chainRecs {
		ts := int64(rec.Block.Header.TimestampUs.Lo)
		if ts >= windowStart && ts < windowEnd && rec.Block.BlockType == core.BlockTypePoWFruit {
			observed++
		}
	}
	expected := v.cfg.Genesis.ExpectedPowPerEpoch
	if expected <= 0 {
		return tip.Block.Header.PowDifficulty
	}
	ratio := float64(observed) / float64(expected)
	ratio = clamp(ratio, v.cfg.Genesis.RetargetMinMult, v.cfg.Genesis.RetargetMaxMult)
	return hashx.DivideBy(tip.Block.Header.PowDifficulty, ratio)
}

// GetPosDifficulty returns the tip's PoS target. PoS retargeting is not
// implemented in this research build; the hook is reserved for a future
// revision (spec.md §4.3).
func (v *View) GetPosDifficulty() hashx.Hash256 {
	chainRecs := v.AllBlocksInLongestChain()
	if len(chainRecs) == 0 {
		return hashx.Hash256{}
	}
	return chainRecs[len(chainRecs)-1].Block.Header.PosDifficulty
}
