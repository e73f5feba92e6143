// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"errors"
	"sync"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
	"github.com/gsccoin/blockchain/foundation/blockchain/genesis"
	"github.com/gsccoin/blockchain/foundation/blockchain/mempool"
	"github.com/gsccoin/blockchain/foundation/blockchain/peer"
	"github.com/gsccoin/blockchain/foundation/blockchain/storage"
)

// Set of errors the state operations can return.
var (
	ErrNoTransactions = errors.New("no transactions in mempool")
	ErrChainForked    = errors.New("blockchain forked, start resync")
	ErrInvalidChain   = errors.New("chain failed validation")
	ErrNotFound       = errors.New("not found")
	ErrMiningOff      = errors.New("mining is turned off")
)

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, chain reconciliation, and
// transaction sharing.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalShareTx(tx database.Tx, origin string)
	SignalShareBlock(block database.Block, origin string)
	SignalSync()
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	MinerAddress     string
	Host             string
	Genesis          genesis.Genesis
	Storage          *storage.Storage
	SelectStrategy   string
	KnownPeers       *peer.PeerSet
	AllowEmptyBlocks bool
	EvHandler        EventHandler
}

// State manages the blockchain database.
type State struct {
	minerAddress     string
	host             string
	evHandler        EventHandler
	allowMining      bool
	allowEmptyBlocks bool

	mu         sync.Mutex
	chain      []database.Block
	txIndex    map[string]struct{}
	difficulty int

	knownPeers *peer.PeerSet
	genesis    genesis.Genesis
	mempool    *mempool.Mempool
	storage    *storage.Storage
	accounts   *database.Accounts

	Worker Worker
}

// New constructs a new blockchain state, restoring the chain from the last
// snapshot on disk or starting fresh from the genesis block.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	rules := mempool.AdmissionRules{
		FutureSeconds: cfg.Genesis.TxFutureSeconds,
		PastSeconds:   cfg.Genesis.TxPastSeconds,
		ReplaySeconds: cfg.Genesis.ReplaySeconds,
	}

	mpool, err := mempool.NewWithStrategy(rules, cfg.SelectStrategy)
	if err != nil {
		return nil, err
	}

	s := State{
		minerAddress:     cfg.MinerAddress,
		host:             cfg.Host,
		evHandler:        ev,
		allowMining:      true,
		allowEmptyBlocks: cfg.AllowEmptyBlocks,
		difficulty:       cfg.Genesis.Difficulty,
		knownPeers:       cfg.KnownPeers,
		genesis:          cfg.Genesis,
		mempool:          mpool,
		storage:          cfg.Storage,
		accounts:         database.NewAccounts(),
	}

	// A snapshot that cannot be read or fails validation is discarded and
	// the node starts over from the genesis block. Refusing to start would
	// leave the operator with no way to rejoin the network.
	snap, err := cfg.Storage.Load()
	switch {
	case err == nil:
		if verr := database.ValidateChain(snap.Chain, cfg.Genesis); verr != nil {
			ev("state: New: snapshot failed validation: %s: starting fresh", verr)
			s.chain = []database.Block{database.GenesisBlock(cfg.Genesis)}
			break
		}
		s.chain = snap.Chain
		if snap.Difficulty > 0 {
			s.difficulty = snap.Difficulty
		}
		for _, tx := range snap.Mempool {
			s.mempool.Upsert(tx)
		}
		ev("state: New: restored chain: height[%d] mempool[%d]", len(snap.Chain)-1, len(snap.Mempool))

	case errors.Is(err, storage.ErrNoSnapshot):
		s.chain = []database.Block{database.GenesisBlock(cfg.Genesis)}
		ev("state: New: fresh chain from genesis: hash[%s]", s.chain[0].Hash)

	default:
		ev("state: New: snapshot unreadable: %s: starting fresh", err)
		s.chain = []database.Block{database.GenesisBlock(cfg.Genesis)}
	}

	s.reindex()
	s.accounts.Rebuild(s.chain)

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &s, nil
}

// Shutdown cleanly brings the node down, persisting a final snapshot.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all blockchain writing activity.
	s.Worker.Shutdown()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save()
}

// =============================================================================

// IsMiningAllowed identifies if mining is on.
func (s *State) IsMiningAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.allowMining
}

// TurnMiningOn enables block production.
func (s *State) TurnMiningOn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allowMining = true
}

// TurnMiningOff disables block production.
func (s *State) TurnMiningOff() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.allowMining = false
}

// =============================================================================

// reindex rebuilds the settled transaction id index. Callers must hold mu.
func (s *State) reindex() {
	s.txIndex = make(map[string]struct{})
	for _, b := range s.chain {
		for _, tx := range b.Transactions {
			s.txIndex[tx.ID] = struct{}{}
		}
	}
}

// save persists the current snapshot to disk. Callers must hold mu.
func (s *State) save() error {
	snap := storage.Snapshot{
		Chain:      s.chain,
		Mempool:    s.mempool.Copy(),
		Balances:   s.accounts.Copy(),
		Difficulty: s.difficulty,
	}

	return s.storage.Save(snap)
}

// ledgerView exposes settled balances and transaction ids for mempool
// admission. Methods read state fields directly, the constructing call
// holds mu for the view's whole lifetime.
type ledgerView struct {
	s *State
}

// Balance returns the settled balance for the address.
func (lv ledgerView) Balance(address string) int64 {
	return lv.s.accounts.Balance(address)
}

// TxKnown reports whether the transaction id is already settled.
func (lv ledgerView) TxKnown(id string) bool {
	_, exists := lv.s.txIndex[id]
	return exists
}

// RecentMatch reports whether a settled transaction repeats the same
// transfer within the tolerance window. Block timestamps never decrease,
// so the scan stops once blocks predate the window. A settled transaction
// can be stamped at most TxFutureSeconds ahead of its block, which widens
// the cutoff.
func (lv ledgerView) RecentMatch(tx database.Tx, window int64) bool {
	cutoff := tx.Timestamp - window - lv.s.genesis.TxFutureSeconds
	for i := len(lv.s.chain) - 1; i >= 0; i-- {
		b := lv.s.chain[i]
		if b.Timestamp < cutoff {
			return false
		}
		for _, settled := range b.Transactions {
			if settled.Sender == tx.Sender && settled.Receiver == tx.Receiver &&
				settled.Amount == tx.Amount && settled.Fee == tx.Fee &&
				settled.Timestamp >= tx.Timestamp-window && settled.Timestamp <= tx.Timestamp+window {
				return true
			}
		}
	}

	return false
}
