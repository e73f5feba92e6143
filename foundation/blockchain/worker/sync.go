package worker

import (
	"context"
	"errors"
	"time"

	"github.com/gsccoin/blockchain/foundation/blockchain/peer"
	"github.com/gsccoin/blockchain/foundation/blockchain/state"
)

// syncTimeout bounds one full exchange with a single peer.
const syncTimeout = 2 * time.Minute

// syncOperations runs a synchronization pass on a schedule and whenever
// one is signaled.
func (w *Worker) syncOperations() {
	w.evHandler("worker: syncOperations: G started")
	defer w.evHandler("worker: syncOperations: G completed")

	for {
		select {
		case <-w.syncTicker.C:
			if !w.isShutdown() {
				w.Sync()
			}
		case <-w.syncSignal:
			if !w.isShutdown() {
				w.Sync()
			}
		case <-w.shut:
			w.evHandler("worker: syncOperations: received shut signal")
			return
		}
	}
}

// Sync updates the peer list, mempool and blocks from every known peer.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, pr := range w.state.KnownPeers() {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		w.syncPeer(ctx, pr)
		cancel()
	}
}

// syncPeer performs the full exchange with one peer: status, addresses,
// mempool, then any blocks we are missing.
func (w *Worker) syncPeer(ctx context.Context, pr peer.Peer) {

	// Retrieve the status of this peer.
	status, err := w.client.QueryStatus(ctx, pr.Host)
	if err != nil {
		w.evHandler("worker: sync: queryStatus: %s: ERROR: %s", pr.Host, err)
		w.state.KnownPeerSet().Touch(pr.Host, 0, 0, -1)
		return
	}

	// Add new peers to this node's list.
	for _, host := range status.KnownPeers {
		if w.state.AddKnownPeer(peer.New(host, peer.DirOutbound)) {
			w.evHandler("worker: sync: add peer: %s", host)
		}
	}

	// Retrieve the mempool from the peer.
	pool, err := w.client.FetchMempool(ctx, pr.Host)
	if err != nil {
		w.evHandler("worker: sync: fetchMempool: %s: ERROR: %s", pr.Host, err)
	}
	for _, tx := range pool {
		if err := w.state.UpsertMempool(tx); err != nil {
			continue
		}
		w.evHandler("worker: sync: fetchMempool: %s: add tx: %s", pr.Host, tx.ID)
	}

	// If this peer has blocks we don't have, we need to add them.
	latest := w.state.LatestBlock()
	if status.Height <= latest.Index && status.LatestHash == latest.Hash {
		return
	}

	w.evHandler("worker: sync: fetchBlocks: %s: height[%d] local[%d]", pr.Host, status.Height, latest.Index)

	if err := w.catchUp(ctx, pr.Host, latest.Index, status.Height); err != nil {
		w.evHandler("worker: sync: catchUp: %s: ERROR: %s", pr.Host, err)
	}
}

// catchUp pulls the peer's missing blocks and applies them. A fork is
// resolved by pulling the peer's full chain and reconciling.
func (w *Worker) catchUp(ctx context.Context, host string, localHeight uint64, peerHeight uint64) error {
	if peerHeight > localHeight {
		blocks, err := w.client.FetchBlocks(ctx, host, localHeight+1, peerHeight)
		if err != nil {
			return err
		}

		forked := false
		for _, b := range blocks {
			if err := w.state.ProcessPeerBlock(b); err != nil {
				if errors.Is(err, state.ErrChainForked) {
					forked = true
					break
				}
				return err
			}
		}
		if !forked {
			return nil
		}
	}

	// The peer is on a different history. Pull everything and let
	// reconciliation sort out the fork.
	remote, err := w.client.FetchBlocks(ctx, host, 0, peerHeight)
	if err != nil {
		return err
	}

	adopted, err := w.state.Reconcile(ctx, remote)
	if err != nil {
		return err
	}
	if adopted {
		w.evHandler("worker: sync: catchUp: %s: adopted reconciled chain", host)
	}

	return nil
}
