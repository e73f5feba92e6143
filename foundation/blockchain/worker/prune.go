package worker

// pruneOperations drops stale mempool transactions on a schedule.
func (w *Worker) pruneOperations() {
	w.evHandler("worker: pruneOperations: G started")
	defer w.evHandler("worker: pruneOperations: G completed")

	for {
		select {
		case <-w.pruneTicker.C:
			if !w.isShutdown() {
				if n := w.state.PruneMempool(); n > 0 {
					w.evHandler("worker: pruneOperations: removed stale txs[%d]", n)
				}
			}
		case <-w.shut:
			w.evHandler("worker: pruneOperations: received shut signal")
			return
		}
	}
}
