package state

import (
	"time"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
)

// SubmitTx runs a signed transaction through mempool admission. On success
// the transaction is shared with the network and a mining operation is
// signaled.
func (s *State) SubmitTx(tx database.Tx) error {
	s.evHandler("state: SubmitTx: started: tx[%s]", tx.ID)
	defer s.evHandler("state: SubmitTx: completed")

	if err := s.acceptTx(tx); err != nil {
		return err
	}

	s.Worker.SignalShareTx(tx, "")
	s.Worker.SignalStartMining()

	return nil
}

// UpsertMempool admits a transaction learned from a peer. Unlike SubmitTx
// it does not re-share the transaction, the gossip layer handles
// propagation.
func (s *State) UpsertMempool(tx database.Tx) error {
	return s.acceptTx(tx)
}

// acceptTx holds the shared admission path.
func (s *State) acceptTx(tx database.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.mempool.Accept(tx, ledgerView{s: s}, time.Now().UTC().Unix())
	if err != nil {
		return err
	}

	s.evHandler("state: acceptTx: tx[%s] admitted: pool[%d]", tx.ID, n)

	return nil
}

// PruneMempool drops transactions that have waited past the configured
// maximum age and reports how many were removed.
func (s *State) PruneMempool() int {
	return s.mempool.Prune(time.Now().UTC().Unix(), s.genesis.MempoolMaxAge)
}
