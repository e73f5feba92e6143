package state

import (
	"context"
	"fmt"
	"sort"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
)

// Reconcile resolves a fork between the local chain and a chain received
// from a peer. Divergent tails are merged in timestamp order on top of the
// most recent common ancestor and each displaced block is re-sealed at its
// own difficulty. When the chains share no recent history, the longer
// chain wins with ties keeping the local chain. It reports whether the
// local chain was replaced.
func (s *State) Reconcile(ctx context.Context, remote []database.Block) (bool, error) {
	s.evHandler("state: Reconcile: started: remote blocks[%d]", len(remote))
	defer s.evHandler("state: Reconcile: completed")

	if err := database.ValidateChain(remote, s.genesis); err != nil {
		return false, fmt.Errorf("%w: remote: %s", ErrInvalidChain, err)
	}

	done := s.Worker.SignalCancelMining()
	defer done()

	local := s.ExportChain()

	ai, aj := database.CommonAncestor(local, remote)

	// Without shared history, or with an ancestor buried deeper than the
	// reconcile depth, merging would re-seal an unbounded tail. Fall back
	// to the longest chain rule.
	depth := len(local) - 1 - ai
	if ai < 0 || depth > s.genesis.MaxReconcileDepth {
		if len(remote) > len(local) {
			s.evHandler("state: Reconcile: adopting longer remote chain: %d > %d", len(remote), len(local))
			return true, s.ImportChain(remote)
		}
		s.evHandler("state: Reconcile: keeping local chain")
		return false, nil
	}

	// Identical tips mean nothing to do.
	if ai == len(local)-1 && aj == len(remote)-1 {
		return false, nil
	}

	merged, err := s.mergeTails(ctx, local[:ai+1], local[ai+1:], remote[aj+1:])
	if err != nil {
		return false, err
	}

	if err := database.ValidateChain(merged, s.genesis); err != nil {
		return false, fmt.Errorf("%w: merged: %s", ErrInvalidChain, err)
	}

	if len(merged) == len(local) && merged[len(merged)-1].Hash == local[len(local)-1].Hash {
		return false, nil
	}

	s.evHandler("state: Reconcile: adopting merged chain: blocks[%d]", len(merged))

	return true, s.ImportChain(merged)
}

// mergeTails combines the two divergent tails in chronological order on
// top of the shared prefix, dropping duplicate blocks and duplicate
// transactions, then re-seals every tail block against its new parent.
func (s *State) mergeTails(ctx context.Context, prefix []database.Block, localTail []database.Block, remoteTail []database.Block) ([]database.Block, error) {
	seen := make(map[string]struct{}, len(localTail)+len(remoteTail))
	tail := make([]database.Block, 0, len(localTail)+len(remoteTail))

	for _, b := range append(append([]database.Block{}, localTail...), remoteTail...) {
		if _, dup := seen[b.Hash]; dup {
			continue
		}
		seen[b.Hash] = struct{}{}
		tail = append(tail, b)
	}

	sort.SliceStable(tail, func(i, j int) bool {
		if tail[i].Timestamp != tail[j].Timestamp {
			return tail[i].Timestamp < tail[j].Timestamp
		}
		return tail[i].Hash < tail[j].Hash
	})

	settled := make(map[string]struct{})
	for _, b := range prefix {
		for _, tx := range b.Transactions {
			settled[tx.ID] = struct{}{}
		}
	}

	merged := make([]database.Block, len(prefix), len(prefix)+len(tail))
	copy(merged, prefix)

	for _, b := range tail {
		trans := make([]database.Tx, 0, len(b.Transactions))
		for _, tx := range b.Transactions {
			if _, dup := settled[tx.ID]; dup {
				continue
			}
			settled[tx.ID] = struct{}{}
			trans = append(trans, tx)
		}
		if len(trans) == 0 {
			continue
		}

		parent := merged[len(merged)-1]
		nb := b
		nb.Transactions = trans
		nb.Index = parent.Index + 1
		nb.PrevHash = parent.Hash
		if nb.Timestamp < parent.Timestamp {
			nb.Timestamp = parent.Timestamp
		}

		if err := nb.Solve(ctx, s.evHandler); err != nil {
			return nil, err
		}

		merged = append(merged, nb)
	}

	return merged, nil
}
