package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gsccoin/blockchain/foundation/blockchain/genesis"
	"github.com/gsccoin/blockchain/foundation/blockchain/merkle"
	"github.com/gsccoin/blockchain/foundation/blockchain/signature"
)

// BlockHeader is the lightweight view of a block used for sync negotiation.
// It carries everything needed to validate linkage and proof of work without
// shipping transaction bodies.
type BlockHeader struct {
	Index      uint64 `json:"index"`
	Timestamp  int64  `json:"timestamp"`
	PrevHash   string `json:"previous_hash"`
	Nonce      uint64 `json:"nonce"`
	Hash       string `json:"hash"`
	MerkleRoot string `json:"merkle_root"`
	Difficulty int    `json:"difficulty"`
	Miner      string `json:"miner"`
	Reward     uint64 `json:"reward"`
	TxCount    int    `json:"tx_count"`
}

// Block represents an ordered batch of transactions sealed by proof of work.
type Block struct {
	Index        uint64 `json:"index"`
	Timestamp    int64  `json:"timestamp"`
	Transactions []Tx   `json:"transactions"`
	PrevHash     string `json:"previous_hash"`
	Nonce        uint64 `json:"nonce"`
	Hash         string `json:"hash"`
	MerkleRoot   string `json:"merkle_root"`
	Difficulty   int    `json:"difficulty"`
	Miner        string `json:"miner"`
	Reward       uint64 `json:"reward"`
}

// ComputeHash returns the digest over the block's header fields. Hashing
// the header rather than the full block lets headers be checked on their
// own during sync.
func (b Block) ComputeHash() string {
	data := fmt.Sprintf("%d%d%s%s%d%d", b.Index, b.Timestamp, b.PrevHash, b.MerkleRoot, b.Nonce, b.Difficulty)
	return signature.Hash(data)
}

// ComputeMerkleRoot recomputes the merkle root over the block's
// transaction ids.
func (b Block) ComputeMerkleRoot() string {
	return merkle.NewTree(b.Transactions).RootHex()
}

// Header returns the lightweight header view of the block.
func (b Block) Header() BlockHeader {
	return BlockHeader{
		Index:      b.Index,
		Timestamp:  b.Timestamp,
		PrevHash:   b.PrevHash,
		Nonce:      b.Nonce,
		Hash:       b.Hash,
		MerkleRoot: b.MerkleRoot,
		Difficulty: b.Difficulty,
		Miner:      b.Miner,
		Reward:     b.Reward,
		TxCount:    len(b.Transactions),
	}
}

// HashSolved checks a hash complies with the proof of work rules for the
// specified difficulty: at least that many leading zero hex characters.
func HashSolved(difficulty int, hash string) bool {
	if len(hash) != 64 || difficulty < 0 || difficulty > 64 {
		return false
	}

	return strings.HasPrefix(hash, strings.Repeat("0", difficulty))
}

// =============================================================================

// ValidateAgainst checks the block is a valid successor to prev: hash and
// merkle recomputation, linkage, index sequence, proof of work, coinbase
// placement and every contained transaction. expectedReward of zero skips
// the coinbase amount check for callers without schedule context.
func (b Block) ValidateAgainst(prev Block, expectedReward uint64) error {
	if b.Index != prev.Index+1 {
		return fmt.Errorf("block index %d is not the next in sequence, expected %d", b.Index, prev.Index+1)
	}

	if b.PrevHash != prev.Hash {
		return fmt.Errorf("block %d previous hash does not match parent, got %s, exp %s", b.Index, b.PrevHash, prev.Hash)
	}

	if b.Timestamp < prev.Timestamp {
		return fmt.Errorf("block %d timestamp precedes its parent", b.Index)
	}

	return b.validateContents(expectedReward)
}

// ValidateGenesis checks the block is a well formed chain head.
func (b Block) ValidateGenesis() error {
	if b.Index != 0 {
		return fmt.Errorf("genesis block has index %d", b.Index)
	}

	if b.PrevHash != signature.ZeroHash {
		return fmt.Errorf("genesis block previous hash is not the zero sentinel")
	}

	return b.validateContents(0)
}

// validateContents holds the checks shared by genesis and successor
// validation.
func (b Block) validateContents(expectedReward uint64) error {
	if b.Hash != b.ComputeHash() {
		return fmt.Errorf("block %d hash does not match its contents", b.Index)
	}

	if !HashSolved(b.Difficulty, b.Hash) {
		return fmt.Errorf("block %d hash does not satisfy difficulty %d", b.Index, b.Difficulty)
	}

	if b.MerkleRoot != b.ComputeMerkleRoot() {
		return fmt.Errorf("block %d merkle root does not match transactions", b.Index)
	}

	coinbases := 0
	for i, tx := range b.Transactions {
		if tx.Sender == CoinbaseAccount {
			coinbases++
			if i != 0 {
				return fmt.Errorf("block %d coinbase is transaction %d, must be first", b.Index, i)
			}
			if expectedReward != 0 && tx.Amount != expectedReward {
				return fmt.Errorf("block %d coinbase pays %d, expected reward %d", b.Index, tx.Amount, expectedReward)
			}
			continue
		}

		if err := tx.Validate(); err != nil {
			return fmt.Errorf("block %d transaction %d: %w", b.Index, i, err)
		}
	}

	if coinbases > 1 {
		return fmt.Errorf("block %d carries %d coinbase transactions, at most one allowed", b.Index, coinbases)
	}

	if expectedReward != 0 && coinbases == 0 {
		return fmt.Errorf("block %d carries no coinbase transaction", b.Index)
	}

	return nil
}

// =============================================================================

// POW constructs a candidate block on top of prev and searches for a nonce
// that solves the proof of work puzzle. The search is a tight loop that
// honors ctx cancellation every iteration and reports progress through the
// event handler every progressInterval attempts.
func POW(ctx context.Context, miner string, difficulty int, prev Block, reward uint64, trans []Tx, ev func(v string, args ...any)) (Block, error) {
	nb := Block{
		Index:        prev.Index + 1,
		Timestamp:    time.Now().UTC().Unix(),
		Transactions: trans,
		PrevHash:     prev.Hash,
		Difficulty:   difficulty,
		Miner:        miner,
		Reward:       reward,
	}
	nb.MerkleRoot = nb.ComputeMerkleRoot()

	if err := nb.performPOW(ctx, ev); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW mutates the nonce until the hash satisfies the difficulty.
func (b *Block) performPOW(ctx context.Context, ev func(v string, args ...any)) error {
	const progressInterval = 100_000

	started := time.Now()

	var attempts uint64
	for {
		if ctx.Err() != nil {
			ev("database: performPOW: blk[%d]: CANCELLED", b.Index)
			return ctx.Err()
		}

		b.Hash = b.ComputeHash()
		if HashSolved(b.Difficulty, b.Hash) {
			ev("database: performPOW: blk[%d]: SOLVED: nonce[%d] attempts[%d]", b.Index, b.Nonce, attempts)
			return nil
		}

		b.Nonce++
		attempts++

		if attempts%progressInterval == 0 {
			elapsed := time.Since(started).Seconds()
			var rate float64
			if elapsed > 0 {
				rate = float64(attempts) / elapsed
			}
			ev("database: performPOW: blk[%d]: attempts[%d] rate[%.0f h/s]", b.Index, attempts, rate)
		}
	}
}

// Solve re-runs the proof of work search on the block as it stands,
// preserving its timestamp and difficulty. Reconciliation uses it to
// re-seal blocks whose index or previous hash changed during a merge.
func (b *Block) Solve(ctx context.Context, ev func(v string, args ...any)) error {
	b.Nonce = 0
	b.MerkleRoot = b.ComputeMerkleRoot()

	return b.performPOW(ctx, ev)
}

// =============================================================================

// GenesisBlock deterministically constructs and seals the chain head for
// the specified network parameters. Every node mining this block arrives at
// the identical hash because the nonce search starts at zero and the
// timestamp is fixed.
func GenesisBlock(g genesis.Genesis) Block {
	mint := NewTx(GenesisAccount, g.GenesisAddress, g.GenesisAllocation, 0, g.Timestamp)

	gb := Block{
		Index:        0,
		Timestamp:    g.Timestamp,
		Transactions: []Tx{mint},
		PrevHash:     signature.ZeroHash,
		Difficulty:   1,
		Miner:        GenesisAccount,
	}
	gb.MerkleRoot = gb.ComputeMerkleRoot()

	for {
		gb.Hash = gb.ComputeHash()
		if HashSolved(gb.Difficulty, gb.Hash) {
			return gb
		}
		gb.Nonce++
	}
}
