// Package genesis maintains access to the network-wide constants every node
// of a GSC network instance must agree on. Two nodes with different genesis
// parameters will never reconcile their chains.
package genesis

import (
	"encoding/json"
	"os"
)

// Genesis represents the fixed parameters of a network instance.
type Genesis struct {
	ChainName         string `json:"chain_name"`          // Human readable name of the network instance.
	Timestamp         int64  `json:"timestamp"`           // Unix time the genesis block carries.
	GenesisAddress    string `json:"genesis_address"`     // Account receiving the genesis allocation.
	GenesisAllocation uint64 `json:"genesis_allocation"`  // Units minted by the genesis block.
	Difficulty        int    `json:"difficulty"`          // Leading zero hex characters required of a block hash.
	InitialReward     uint64 `json:"initial_reward"`      // Reward for the first mined block.
	HalvingInterval   uint64 `json:"halving_interval"`    // Blocks between reward halvings.
	MaxHalvings       int    `json:"max_halvings"`        // Halvings after which the reward is zero.
	MaxSupply         uint64 `json:"max_supply"`          // Units that can ever exist.
	TransPerBlock     int    `json:"trans_per_block"`     // Maximum transactions packed into a block.
	MaxBlockBytes     int    `json:"max_block_bytes"`     // Byte budget for the transactions of a block.
	TxFutureSeconds   int64  `json:"tx_future_seconds"`   // How far ahead of now a transaction may be stamped.
	TxPastSeconds     int64  `json:"tx_past_seconds"`     // How far behind now a transaction may be stamped.
	ReplaySeconds     int64  `json:"replay_seconds"`      // Timestamp tolerance for the content-replay guard.
	MempoolMaxAge     int64  `json:"mempool_max_age"`     // Seconds before an unmined transaction is pruned.
	MaxReconcileDepth int    `json:"max_reconcile_depth"` // Merged-tail bound for chain reconciliation.
}

// Default returns the mainnet parameters. They are used whenever no genesis
// file is present so a bare node still joins the canonical network.
func Default() Genesis {
	return Genesis{
		ChainName:         "gsc-mainnet",
		Timestamp:         1704067200,
		GenesisAddress:    "GSC1705641e65321ef23ac5fb3d470f39627",
		GenesisAllocation: 255,
		Difficulty:        4,
		InitialReward:     50,
		HalvingInterval:   4_350_000_000_000,
		MaxHalvings:       64,
		MaxSupply:         21_750_000_000_000,
		TransPerBlock:     10,
		MaxBlockBytes:     1 << 20,
		TxFutureSeconds:   300,
		TxPastSeconds:     86400,
		ReplaySeconds:     1,
		MempoolMaxAge:     86400,
		MaxReconcileDepth: 24,
	}
}

// Load opens and consumes the specified genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// RewardAt calculates the mining reward for the block at the specified
// height following the halving schedule. The genesis block mints its
// allocation instead of a reward.
func (g Genesis) RewardAt(height uint64) uint64 {
	if height == 0 {
		return 0
	}

	halvings := (height - 1) / g.HalvingInterval
	if halvings >= uint64(g.MaxHalvings) {
		return 0
	}

	return g.InitialReward >> halvings
}
