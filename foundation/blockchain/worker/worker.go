// Package worker implements mining, chain synchronization, and transaction
// sharing for the blockchain node.
package worker

import (
	"sync"
	"time"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
	"github.com/gsccoin/blockchain/foundation/blockchain/p2p"
	"github.com/gsccoin/blockchain/foundation/blockchain/state"
)

// Intervals for the periodic operations.
const (
	syncInterval  = time.Minute
	pruneInterval = 10 * time.Minute
)

// maxTxShareRequests represents the max number of pending tx network share
// requests that can be outstanding before share requests are dropped.
const maxTxShareRequests = 100

// maxBlockShareRequests bounds the pending block announcements the same way.
const maxBlockShareRequests = 10

// txShare carries a transaction to gossip along with the host it came
// from, so the relay can skip echoing it back. Locally submitted
// transactions carry an empty origin.
type txShare struct {
	tx     database.Tx
	origin string
}

// blockShare carries a peer block to announce along with its origin host.
type blockShare struct {
	block  database.Block
	origin string
}

// Worker manages the POW workflows for the blockchain.
type Worker struct {
	state        *state.State
	client       *p2p.Client
	wg           sync.WaitGroup
	syncTicker   *time.Ticker
	pruneTicker  *time.Ticker
	shut         chan struct{}
	startMining  chan bool
	cancelMining chan chan struct{}
	txSharing    chan txShare
	blockSharing chan blockShare
	syncSignal   chan bool
	evHandler    state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, client *p2p.Client, evHandler state.EventHandler) {
	w := Worker{
		state:        st,
		client:       client,
		syncTicker:   time.NewTicker(syncInterval),
		pruneTicker:  time.NewTicker(pruneInterval),
		shut:         make(chan struct{}),
		startMining:  make(chan bool, 1),
		cancelMining: make(chan chan struct{}, 1),
		txSharing:    make(chan txShare, maxTxShareRequests),
		blockSharing: make(chan blockShare, maxBlockShareRequests),
		syncSignal:   make(chan bool, 1),
		evHandler:    evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Update this node before starting any support G's.
	w.Sync()

	// Load the set of operations we need to run.
	operations := []func(){
		w.syncOperations,
		w.miningOperations,
		w.shareTxOperations,
		w.shareBlockOperations,
		w.pruneOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop tickers")
	w.syncTicker.Stop()
	w.pruneTicker.Stop()

	w.evHandler("worker: shutdown: signal cancel mining")
	done := w.SignalCancelMining()
	done()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalStartMining starts a mining operation. If there is already a signal
// pending in the channel, just return since a mining operation will start.
func (w *Worker) SignalStartMining() {
	if !w.state.IsMiningAllowed() {
		w.evHandler("worker: SignalStartMining: mining turned off")
		return
	}

	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the G executing the runMiningOperation
// function to stop immediately. That G will not stop until it is told it
// is safe to do so through the returned done function.
func (w *Worker) SignalCancelMining() (done func()) {
	wait := make(chan struct{})

	select {
	case w.cancelMining <- wait:
	default:

		// No mining operation is listening, don't leave a stale
		// wait behind.
		close(wait)
		return func() {}
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")

	return func() { close(wait) }
}

// SignalShareTx signals a share transaction operation. If
// maxTxShareRequests signals exist in the channel, we won't send these.
func (w *Worker) SignalShareTx(tx database.Tx, origin string) {
	select {
	case w.txSharing <- txShare{tx: tx, origin: origin}:
		w.evHandler("worker: SignalShareTx: share Tx signaled")
	default:
		w.evHandler("worker: SignalShareTx: queue full, transactions won't be shared.")
	}
}

// SignalShareBlock signals an announcement of a block accepted from a
// peer. When the channel is full the announcement is dropped, the
// periodic sync closes the gap.
func (w *Worker) SignalShareBlock(block database.Block, origin string) {
	select {
	case w.blockSharing <- blockShare{block: block, origin: origin}:
		w.evHandler("worker: SignalShareBlock: share block signaled")
	default:
		w.evHandler("worker: SignalShareBlock: queue full, block won't be announced.")
	}
}

// SignalSync requests a chain synchronization pass outside the regular
// schedule.
func (w *Worker) SignalSync() {
	select {
	case w.syncSignal <- true:
		w.evHandler("worker: SignalSync: sync signaled")
	default:
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
