package state

import (
	"fmt"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
)

// ValidateAndRepairChain walks the chain from genesis. When a corrupt
// block is found, the chain is truncated at that point and the still valid
// non-coinbase transactions from the removed blocks are returned to the
// mempool. It reports how many blocks were removed.
func (s *State) ValidateAndRepairChain() (int, error) {
	s.evHandler("state: ValidateAndRepairChain: started")
	defer s.evHandler("state: ValidateAndRepairChain: completed")

	done := s.Worker.SignalCancelMining()
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := database.FirstInvalid(s.chain, s.genesis)
	if err != nil {
		return 0, err
	}
	if idx < 0 {
		return 0, nil
	}
	if idx == 0 {
		return 0, fmt.Errorf("genesis block is corrupt: %w", ErrInvalidChain)
	}

	removed := s.chain[idx:]
	s.chain = s.chain[:idx]
	s.adoptChainLocked()

	returned := 0
	for _, b := range removed {
		for _, tx := range b.Transactions {
			if tx.IsMint() || tx.Validate() != nil {
				continue
			}
			if _, exists := s.txIndex[tx.ID]; exists {
				continue
			}
			s.mempool.Upsert(tx)
			returned++
		}
	}

	s.evHandler("state: ValidateAndRepairChain: truncated[%d] returned txs[%d]", len(removed), returned)

	if err := s.save(); err != nil {
		return len(removed), err
	}

	return len(removed), nil
}

// ImportChain replaces the node's chain with the provided one after full
// validation. Mempool transactions already settled by the new chain are
// dropped.
func (s *State) ImportChain(chain []database.Block) error {
	s.evHandler("state: ImportChain: started: blocks[%d]", len(chain))
	defer s.evHandler("state: ImportChain: completed")

	done := s.Worker.SignalCancelMining()
	defer done()

	if err := database.ValidateChain(chain, s.genesis); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidChain, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.chain = chain
	s.adoptChainLocked()

	return s.save()
}

// ExportChain returns a copy of the full chain.
func (s *State) ExportChain() []database.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	cpy := make([]database.Block, len(s.chain))
	copy(cpy, s.chain)

	return cpy
}

// adoptChainLocked rebuilds every projection over the current chain and
// drops mempool transactions the chain already settles. Callers must
// hold mu.
func (s *State) adoptChainLocked() {
	s.reindex()
	s.accounts.Rebuild(s.chain)

	var settled []string
	for _, tx := range s.mempool.Copy() {
		if _, exists := s.txIndex[tx.ID]; exists {
			settled = append(settled, tx.ID)
		}
	}
	s.mempool.DeleteByIDs(settled)
}
