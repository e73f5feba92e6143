package state

import (
	"github.com/gsccoin/blockchain/foundation/blockchain/database"
	"github.com/gsccoin/blockchain/foundation/blockchain/genesis"
	"github.com/gsccoin/blockchain/foundation/blockchain/peer"
)

// Host returns the network address this node is reachable on.
func (s *State) Host() string {
	return s.host
}

// MinerAddress returns the address mining rewards are paid to.
func (s *State) MinerAddress() string {
	return s.minerAddress
}

// Genesis returns a copy of the genesis parameters.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Difficulty returns the difficulty new blocks are currently mined at.
func (s *State) Difficulty() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.difficulty
}

// SetDifficulty changes the difficulty used for new blocks. Values outside
// 1 through 64 are ignored.
func (s *State) SetDifficulty(difficulty int) {
	if difficulty < 1 || difficulty > 64 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.difficulty = difficulty
}

// LatestBlock returns the current head of the chain.
func (s *State) LatestBlock() database.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chain[len(s.chain)-1]
}

// Height returns the index of the chain head.
func (s *State) Height() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chain[len(s.chain)-1].Index
}

// BlocksByRange returns blocks from the specified index forward. An end of
// zero or beyond the head is clamped to the head.
func (s *State) BlocksByRange(from uint64, to uint64) []database.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	head := s.chain[len(s.chain)-1].Index
	if to == 0 || to > head {
		to = head
	}
	if from > to {
		return nil
	}

	blocks := make([]database.Block, 0, to-from+1)
	for _, b := range s.chain {
		if b.Index >= from && b.Index <= to {
			blocks = append(blocks, b)
		}
	}

	return blocks
}

// BlockByHash returns the block with the specified hash.
func (s *State) BlockByHash(hash string) (database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.chain {
		if b.Hash == hash {
			return b, nil
		}
	}

	return database.Block{}, ErrNotFound
}

// HeadersAfter returns the headers of every block above the specified
// hash. An unknown hash returns the full header chain so the caller can
// detect diverged history.
func (s *State) HeadersAfter(hash string) []database.BlockHeader {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	for i, b := range s.chain {
		if b.Hash == hash {
			start = i + 1
			break
		}
	}

	headers := make([]database.BlockHeader, 0, len(s.chain)-start)
	for _, b := range s.chain[start:] {
		headers = append(headers, b.Header())
	}

	return headers
}

// TransactionByID locates a settled transaction and the block holding it.
func (s *State) TransactionByID(id string) (database.Tx, database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txIndex[id]; !exists {
		return database.Tx{}, database.Block{}, ErrNotFound
	}

	for _, b := range s.chain {
		for _, tx := range b.Transactions {
			if tx.ID == id {
				return tx, b, nil
			}
		}
	}

	return database.Tx{}, database.Block{}, ErrNotFound
}

// Balance returns the settled balance for the specified address.
func (s *State) Balance(address string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.accounts.Balance(address)
}

// Balances returns every non-zero settled balance.
func (s *State) Balances() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.accounts.Copy()
}

// CirculatingSupply sums every positive settled balance.
func (s *State) CirculatingSupply() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.accounts.CirculatingSupply()
}

// MempoolCopy returns the pending transactions in no particular order.
func (s *State) MempoolCopy() []database.Tx {
	return s.mempool.Copy()
}

// MempoolLength returns the number of pending transactions.
func (s *State) MempoolLength() int {
	return s.mempool.Count()
}

// KnownPeers returns the peers this node gossips with, excluding itself.
func (s *State) KnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// KnownPeerSet returns the live peer set for transport bookkeeping.
func (s *State) KnownPeerSet() *peer.PeerSet {
	return s.knownPeers
}

// AddKnownPeer records a newly learned peer, reporting whether it was
// unknown.
func (s *State) AddKnownPeer(p peer.Peer) bool {
	if p.Match(s.host) {
		return false
	}
	return s.knownPeers.Add(p)
}

// RemoveKnownPeer drops a peer from the gossip set.
func (s *State) RemoveKnownPeer(host string) {
	s.knownPeers.Remove(host)
}
