// Package mempool maintains the pool of pending transactions and guards
// admission into it.
package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
	"github.com/gsccoin/blockchain/foundation/blockchain/mempool/selector"
	"github.com/gsccoin/blockchain/foundation/blockchain/signature"
)

// Set of reasons a transaction is refused admission. Callers match with
// errors.Is to map a refusal onto a response or a peer penalty.
var (
	ErrMalformed    = errors.New("transaction is malformed")
	ErrDuplicate    = errors.New("transaction id already known")
	ErrReplay       = errors.New("transaction repeats recent content")
	ErrTimestamp    = errors.New("transaction timestamp outside accepted window")
	ErrInsufficient = errors.New("insufficient funds")
	ErrMintExternal = errors.New("mint transactions cannot be submitted")
)

// Ledger provides the chain context admission checks need. The state
// package implements it over the settled chain.
type Ledger interface {
	Balance(address string) int64
	TxKnown(id string) bool
	RecentMatch(tx database.Tx, window int64) bool
}

// AdmissionRules carries the tunable parameters for transaction admission,
// sourced from the network genesis parameters.
type AdmissionRules struct {
	FutureSeconds int64
	PastSeconds   int64
	ReplaySeconds int64
}

// Mempool represents a cache of pending transactions keyed by their id.
type Mempool struct {
	pool     map[string]database.Tx
	mu       sync.RWMutex
	selectFn selector.Func
	rules    AdmissionRules
}

// New constructs a new mempool using the default sort strategy.
func New(rules AdmissionRules) (*Mempool, error) {
	return NewWithStrategy(rules, selector.StrategyFee)
}

// NewWithStrategy constructs a new mempool with specified sort strategy.
func NewWithStrategy(rules AdmissionRules, strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[string]database.Tx),
		selectFn: selectFn,
		rules:    rules,
	}

	return &mp, nil
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Accept runs the full admission sequence against the transaction and
// inserts it on success. The checks run in a fixed order so a transaction
// failing multiple rules always reports the same reason.
func (mp *Mempool) Accept(tx database.Tx, ledger Ledger, now int64) (int, error) {
	if err := tx.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	if tx.IsMint() {
		return 0, ErrMintExternal
	}

	// A signature is not required for admission but a present one must
	// recover to the sender.
	if tx.Signature != "" {
		if err := signature.Verify(tx.ID, tx.Signature, tx.Sender); err != nil {
			return 0, fmt.Errorf("%w: %s", ErrMalformed, err)
		}
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[tx.ID]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicate, tx.ID)
	}
	if ledger.TxKnown(tx.ID) {
		return 0, fmt.Errorf("%w: %s", ErrDuplicate, tx.ID)
	}

	for _, pending := range mp.pool {
		if pending.Sender == tx.Sender && pending.Receiver == tx.Receiver &&
			pending.Amount == tx.Amount && pending.Fee == tx.Fee &&
			abs(pending.Timestamp-tx.Timestamp) <= mp.rules.ReplaySeconds {
			return 0, fmt.Errorf("%w: matches %s", ErrReplay, pending.ID)
		}
	}
	if ledger.RecentMatch(tx, mp.rules.ReplaySeconds) {
		return 0, fmt.Errorf("%w: matches a settled transfer", ErrReplay)
	}

	cost := int64(tx.Amount) + int64(tx.Fee)
	available := ledger.Balance(tx.Sender) - mp.pendingSpend(tx.Sender)
	if available < cost {
		return 0, fmt.Errorf("%w: need %d, have %d after pending spends", ErrInsufficient, cost, available)
	}

	if tx.Timestamp > now+mp.rules.FutureSeconds {
		return 0, fmt.Errorf("%w: %d seconds ahead", ErrTimestamp, tx.Timestamp-now)
	}
	if tx.Timestamp < now-mp.rules.PastSeconds {
		return 0, fmt.Errorf("%w: %d seconds behind", ErrTimestamp, now-tx.Timestamp)
	}

	mp.pool[tx.ID] = tx

	return len(mp.pool), nil
}

// Upsert adds or replaces a transaction in the mempool without running the
// admission checks. Used when returning transactions evicted by a chain
// reorganization, which were already admitted once.
func (mp *Mempool) Upsert(tx database.Tx) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool[tx.ID] = tx

	return len(mp.pool)
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(tx database.Tx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, tx.ID)
}

// DeleteByIDs removes the specified set of transactions, typically after
// they were settled into a block.
func (mp *Mempool) DeleteByIDs(ids []string) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, id := range ids {
		delete(mp.pool, id)
	}
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]database.Tx)
}

// Prune drops every transaction older than maxAge seconds and returns how
// many were removed.
func (mp *Mempool) Prune(now int64, maxAge int64) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	removed := 0
	for id, tx := range mp.pool {
		if now-tx.Timestamp > maxAge {
			delete(mp.pool, id)
			removed++
		}
	}

	return removed
}

// Copy returns every pending transaction in no particular order.
func (mp *Mempool) Copy() []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	txs := make([]database.Tx, 0, len(mp.pool))
	for _, tx := range mp.pool {
		txs = append(txs, tx)
	}

	return txs
}

// PickBest uses the configured sort strategy to return the next set of
// transactions for the next block, capped by count and serialized size.
func (mp *Mempool) PickBest(howMany int, maxBytes int) []database.Tx {
	mp.mu.RLock()
	txs := make([]database.Tx, 0, len(mp.pool))
	for _, tx := range mp.pool {
		txs = append(txs, tx)
	}
	mp.mu.RUnlock()

	return mp.selectFn(txs, howMany, maxBytes)
}

// pendingSpend sums amount plus fee over the sender's transactions already
// waiting in the pool. Callers must hold mu.
func (mp *Mempool) pendingSpend(sender string) int64 {
	var spend int64
	for _, tx := range mp.pool {
		if tx.Sender == sender {
			spend += int64(tx.Amount) + int64(tx.Fee)
		}
	}

	return spend
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
