package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Variant selects which consensus rules the node runs.
type Variant string

const (
	// VariantBitcoin is longest-chain PoW: every candidate with h <=
	// target is a full block.
	VariantBitcoin Variant = "bitcoin"
	// VariantFruitchain is the two-layer scheme: a candidate with h <=
	// the PoW target is a PoS-style block referencing tranpool fruits; a
	// candidate with h <= fruit_target (looser) is a fruit.
	VariantFruitchain Variant = "fruitchain"
	// VariantMinotaur is PoW+VRF-PoS: a separate staker thread elects
	// leaders by virtual stake derived from recent PoW share.
	VariantMinotaur Variant = "minotaur"
)

// TLSConfig holds paths to the PEM files needed for mTLS.
// When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`   // CA certificate PEM path
	NodeCert string `json:"node_cert"` // node certificate PEM path
	NodeKey  string `json:"node_key"`  // node private key PEM path
}

// SeedPeer identifies a remote node to connect to on startup.
type SeedPeer struct {
	ID   string `json:"id"`   // remote node ID
	Addr string `json:"addr"` // host:port
}

// GenesisConfig describes the chain's initial difficulty and epoch shape.
type GenesisConfig struct {
	ChainID         string `json:"chain_id"`
	PowDifficulty   string `json:"pow_difficulty"`   // hex Hash256, big-endian target
	PosDifficulty   string `json:"pos_difficulty"`   // hex Hash256, big-endian target
	TimestampUs     int64  `json:"timestamp_us"`     // genesis timestamp, unix micros
	EpochSize       int64  `json:"epoch_size"`       // Bitcoin variant: blocks per epoch
	EpochTimeUs     int64  `json:"epoch_time_us"`    // Minotaur/Fruitchain: epoch window length
	ExpectedPowPerEpoch int64 `json:"expected_pow_per_epoch"` // Minotaur/Fruitchain: expected PoW-block count per time window
	RetargetMinMult float64 `json:"retarget_min_mult"` // ratio clamp lower bound (Bitcoin: 0.25)
	RetargetMaxMult float64 `json:"retarget_max_mult"` // ratio clamp upper bound (Bitcoin: 4)
}

// ConsensusConfig holds the tunable parameters of the mining/staking loop.
type ConsensusConfig struct {
	Variant          Variant `json:"variant"`
	TxnNumber        int     `json:"txn_number"`         // mempool includes per candidate block (default 32)
	FruitNumber      int     `json:"fruit_number"`       // tranpool refs per PoS-style block (default 4)
	TxnBlockNumber   int     `json:"txn_block_number"`   // min tranpool refs a Minotaur PoS block must carry
	FruitTargetRatio float64 `json:"fruit_target_ratio"` // fruit_target = hash_divide_by(pow_target, ratio); 0.2 or 0.4
	LambdaUs         int64   `json:"lambda_us"`          // sleep between nonce tries, 0 = no sleep
	Selfish          bool    `json:"selfish"`            // run the miner/staker as a selfish-mining attacker
	SelfishTieBreak  float64 `json:"selfish_tie_break"`  // probability an honest tie adopts the selfish block (default 0.7)
	Omega            float64 `json:"omega"`               // weight on "my PoW share" in virtual stake (ω)
	Beta             float64 `json:"beta"`                 // constant floor weight (β)
}

// LightClientConfig controls the optional periodic SPV/FlyClient driver
// thread (component I, spec.md §4.9). A node always answers light-client
// requests from peers regardless of this setting; Enabled only governs
// whether this node also runs the driver loop that issues and verifies them.
type LightClientConfig struct {
	Enabled    bool  `json:"enabled"`
	IntervalUs int64 `json:"interval_us"` // time between driver rounds, default 5s
}

// Config holds all node configuration.
type Config struct {
	NodeID       string            `json:"node_id"`
	DataDir      string            `json:"data_dir"`
	RPCPort      int               `json:"rpc_port"`
	P2PPort      int               `json:"p2p_port"`
	P2PWorkers   int               `json:"p2p_workers"` // default 4; validated as positive, but cmd/node runs a single gossip.Worker and does not read it
	Genesis      GenesisConfig     `json:"genesis"`
	Consensus    ConsensusConfig   `json:"consensus"`
	LightClient  LightClientConfig `json:"light_client"`
	SeedPeers    []SeedPeer        `json:"seed_peers,omitempty"`
	TLS          *TLSConfig        `json:"tls,omitempty"`            // nil → plain TCP
	RPCAuthToken string            `json:"rpc_auth_token,omitempty"` // empty → no auth
}

// DefaultConfig returns a single-node development configuration running the
// Fruitchain (two-layer) variant.
func DefaultConfig() *Config {
	return &Config{
		NodeID:     "node0",
		DataDir:    "./data",
		RPCPort:    8545,
		P2PPort:    30303,
		P2PWorkers: 4,
		Genesis: GenesisConfig{
			ChainID:         "hybridchain-dev",
			PowDifficulty:   maxTargetHex,
			PosDifficulty:   maxTargetHex,
			EpochSize:           2016,
			EpochTimeUs:         1_200_000_000,
			ExpectedPowPerEpoch: 2016,
			RetargetMinMult:     0.25,
			RetargetMaxMult:     4,
		},
		Consensus: ConsensusConfig{
			Variant:          VariantFruitchain,
			TxnNumber:        32,
			FruitNumber:      4,
			TxnBlockNumber:   4,
			FruitTargetRatio: 0.2,
			LambdaUs:         0,
			Selfish:          false,
			SelfishTieBreak:  0.7,
			Omega:            0.7,
			Beta:             0.1,
		},
		LightClient: LightClientConfig{
			Enabled:    false,
			IntervalUs: 5_000_000,
		},
	}
}

// maxTargetHex is the loosest possible target (every hash satisfies it),
// a convenient genesis default before any retargeting has occurred.
const maxTargetHex = "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Genesis.ChainID == "" {
		return fmt.Errorf("genesis.chain_id must not be empty")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("p2p_port must be 1-65535, got %d", c.P2PPort)
	}
	if c.RPCPort == c.P2PPort {
		return fmt.Errorf("rpc_port and p2p_port must not be the same (%d)", c.RPCPort)
	}
	if c.P2PWorkers <= 0 {
		return fmt.Errorf("p2p_workers must be positive, got %d", c.P2PWorkers)
	}
	switch c.Consensus.Variant {
	case VariantBitcoin, VariantFruitchain, VariantMinotaur:
	default:
		return fmt.Errorf("consensus.variant must be one of bitcoin/fruitchain/minotaur, got %q", c.Consensus.Variant)
	}
	if c.Consensus.TxnNumber <= 0 {
		return fmt.Errorf("consensus.txn_number must be positive")
	}
	if c.Genesis.EpochSize <= 0 {
		return fmt.Errorf("genesis.epoch_size must be positive")
	}
	if c.Genesis.EpochTimeUs <= 0 {
		return fmt.Errorf("genesis.epoch_time_us must be positive")
	}
	if c.LightClient.Enabled && c.LightClient.IntervalUs <= 0 {
		return fmt.Errorf("light_client.interval_us must be positive when light_client.enabled")
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
