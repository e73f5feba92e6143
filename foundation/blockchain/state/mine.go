package state

import (
	"context"
	"fmt"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
)

// MineNewBlock attempts to create a new block with a proper hash that can
// become the next block in the chain.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	// Are there enough transactions in the pool.
	if s.mempool.Count() == 0 && !s.allowEmptyBlocks {
		return database.Block{}, ErrNoTransactions
	}

	trans, reward, difficulty, latest := s.assembleCandidate()

	if countTransfers(trans) == 0 && !s.allowEmptyBlocks {
		return database.Block{}, ErrNoTransactions
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW: txs[%d] reward[%d]", len(trans), reward)

	// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
	block, err := database.POW(ctx, s.minerAddress, difficulty, latest, reward, trans, s.evHandler)
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: update local state")

	if err := s.acceptBlock(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// MineManualBlock mines one block at an explicit difficulty, bypassing the
// worker. Used by operators on private networks to settle the mempool
// without waiting on the network difficulty.
func (s *State) MineManualBlock(ctx context.Context, difficulty int) (database.Block, error) {
	if difficulty < 1 || difficulty > 64 {
		return database.Block{}, fmt.Errorf("difficulty %d out of range", difficulty)
	}
	if s.mempool.Count() == 0 && !s.allowEmptyBlocks {
		return database.Block{}, ErrNoTransactions
	}

	done := s.Worker.SignalCancelMining()
	defer done()

	trans, reward, _, latest := s.assembleCandidate()

	if countTransfers(trans) == 0 && !s.allowEmptyBlocks {
		return database.Block{}, ErrNoTransactions
	}

	block, err := database.POW(ctx, s.minerAddress, difficulty, latest, reward, trans, s.evHandler)
	if err != nil {
		return database.Block{}, err
	}

	if err := s.acceptBlock(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// assembleCandidate selects the transactions for the next block and
// prepends the coinbase paying the mining reward. Picked transactions are
// checked once more against the settled chain, a conflicting block may
// have arrived since they were admitted. Transactions that no longer hold
// up are dropped from the candidate and from the pool.
func (s *State) assembleCandidate() ([]database.Tx, uint64, int, database.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := s.chain[len(s.chain)-1]
	height := latest.Index + 1
	reward := s.genesis.RewardAt(height)

	picked := s.mempool.PickBest(s.genesis.TransPerBlock, s.genesis.MaxBlockBytes)

	trans := make([]database.Tx, 0, len(picked)+1)
	if reward > 0 {
		coinbase := database.NewTx(database.CoinbaseAccount, s.minerAddress, reward, 0, latest.Timestamp+1)
		trans = append(trans, coinbase)
	}

	spent := make(map[string]int64)
	var dropped []string
	for _, tx := range picked {
		cost := int64(tx.Amount) + int64(tx.Fee)
		_, settled := s.txIndex[tx.ID]
		funded := s.accounts.Balance(tx.Sender)-spent[tx.Sender] >= cost

		if settled || !funded || tx.Validate() != nil {
			s.evHandler("state: assembleCandidate: dropping stale tx[%s]", tx.ID)
			dropped = append(dropped, tx.ID)
			continue
		}

		spent[tx.Sender] += cost
		trans = append(trans, tx)
	}
	s.mempool.DeleteByIDs(dropped)

	return trans, reward, s.difficulty, latest
}

// countTransfers reports how many non coinbase transactions the candidate
// carries.
func countTransfers(trans []database.Tx) int {
	n := 0
	for _, tx := range trans {
		if !tx.IsMint() {
			n++
		}
	}

	return n
}

// ProcessPeerBlock takes a block received from a peer, validates it and if
// that passes, adds the block to the chain.
func (s *State) ProcessPeerBlock(block database.Block) error {
	s.evHandler("state: ProcessPeerBlock: started: block[%s]", block.Hash)
	defer s.evHandler("state: ProcessPeerBlock: completed")

	// If the runMiningOperation function is being executed it needs to stop
	// immediately. The G executing runMiningOperation will not return from the
	// function until done is called. That allows this function to complete
	// its state changes before a new mining operation takes place.
	done := s.Worker.SignalCancelMining()
	defer func() {
		s.evHandler("state: ProcessPeerBlock: signal runMiningOperation to terminate")
		done()
	}()

	if err := s.acceptBlock(block); err != nil {
		latest := s.LatestBlock()
		if block.Index > latest.Index+1 || (block.Index == latest.Index+1 && block.PrevHash != latest.Hash) {
			return ErrChainForked
		}
		return err
	}

	return nil
}

// acceptBlock validates the block against the chain tip and appends it,
// updates the balance projection, clears the settled transactions from
// the mempool and snapshots to disk. The validation happens with the lock
// held, only one successor can win a given height.
func (s *State) acceptBlock(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := s.chain[len(s.chain)-1]
	if err := block.ValidateAgainst(latest, s.genesis.RewardAt(block.Index)); err != nil {
		return err
	}

	s.chain = append(s.chain, block)
	s.accounts.ApplyBlock(block)

	ids := make([]string, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		s.txIndex[tx.ID] = struct{}{}
		ids = append(ids, tx.ID)
	}
	s.mempool.DeleteByIDs(ids)

	s.evHandler("state: acceptBlock: block[%d] hash[%s] txs[%d]", block.Index, block.Hash, len(block.Transactions))

	return s.save()
}
