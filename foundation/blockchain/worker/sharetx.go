package worker

import (
	"context"
	"time"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
)

// shareTxTimeout bounds how long one gossip push may take per peer.
const shareTxTimeout = 10 * time.Second

// shareTxOperations handles sharing new user transactions.
func (w *Worker) shareTxOperations() {
	w.evHandler("worker: shareTxOperations: G started")
	defer w.evHandler("worker: shareTxOperations: G completed")

	for {
		select {
		case share := <-w.txSharing:
			if !w.isShutdown() {
				w.runShareTxOperation(share)
			}
		case <-w.shut:
			w.evHandler("worker: shareTxOperations: received shut signal")
			return
		}
	}
}

// runShareTxOperation pushes the transaction to every known peer except
// the one it came from.
func (w *Worker) runShareTxOperation(share txShare) {
	w.evHandler("worker: runShareTxOperation: started")
	defer w.evHandler("worker: runShareTxOperation: completed")

	for _, pr := range w.state.KnownPeers() {
		if pr.Host == share.origin {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), shareTxTimeout)
		if err := w.client.SendTx(ctx, pr.Host, share.tx); err != nil {
			w.evHandler("worker: runShareTxOperation: %s: WARNING: %s", pr.Host, err)
		}
		cancel()
	}
}

// shareBlockOperations handles announcing blocks accepted from peers.
func (w *Worker) shareBlockOperations() {
	w.evHandler("worker: shareBlockOperations: G started")
	defer w.evHandler("worker: shareBlockOperations: G completed")

	for {
		select {
		case share := <-w.blockSharing:
			if !w.isShutdown() {
				w.runShareBlockOperation(share)
			}
		case <-w.shut:
			w.evHandler("worker: shareBlockOperations: received shut signal")
			return
		}
	}
}

// runShareBlockOperation announces the block by hash to every known peer
// except the one that pushed it. Peers missing the block request it on
// their next sync.
func (w *Worker) runShareBlockOperation(share blockShare) {
	w.evHandler("worker: runShareBlockOperation: started: block[%s]", share.block.Hash)
	defer w.evHandler("worker: runShareBlockOperation: completed")

	for _, pr := range w.state.KnownPeers() {
		if pr.Host == share.origin {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), shareTxTimeout)
		if err := w.client.SendInv(ctx, pr.Host, "block", []string{share.block.Hash}); err != nil {
			w.evHandler("worker: runShareBlockOperation: %s: WARNING: %s", pr.Host, err)
		}
		cancel()
	}
}

// sendBlockToPeers pushes a freshly mined block to every known peer.
func (w *Worker) sendBlockToPeers(block database.Block) {
	w.evHandler("worker: sendBlockToPeers: started: block[%s]", block.Hash)
	defer w.evHandler("worker: sendBlockToPeers: completed")

	for _, pr := range w.state.KnownPeers() {
		ctx, cancel := context.WithTimeout(context.Background(), shareTxTimeout)
		if err := w.client.SendBlock(ctx, pr.Host, block); err != nil {
			w.evHandler("worker: sendBlockToPeers: %s: WARNING: %s", pr.Host, err)
		}
		cancel()
	}
}
