package config

import (
	"fmt"

	"github.com/tolelom/hybridchain/core"
	"github.com/tolelom/hybridchain/hashx"
)

// CreateGenesisBlock builds the unsigned block #0 from the config's
// difficulty fields. Genesis carries no content and its parent is the
// all-zero Hash256 (core.Block.IsGenesis).
func CreateGenesisBlock(cfg *Config) (*core.Block, error) {
	powTarget, err := hashx.FromHex(cfg.Genesis.PowDifficulty)
	if err != nil {
		return nil, fmt.Errorf("genesis.pow_difficulty: %w", err)
	}
	posTarget, err := hashx.FromHex(cfg.Genesis.PosDifficulty)
	if err != nil {
		return nil, fmt.Errorf("genesis.pos_difficulty: %w", err)
	}
	return core.NewGenesisBlock(powTarget, posTarget, cfg.Genesis.TimestampUs), nil
}
