package selector

import (
	"sort"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
)

// feeSelect orders the pending transactions by fee in descending order and
// returns the capped prefix.
var feeSelect = func(txs []database.Tx, howMany int, maxBytes int) []database.Tx {
	ordered := make([]database.Tx, len(txs))
	copy(ordered, txs)
	sort.Sort(byFee(ordered))

	return take(ordered, howMany, maxBytes)
}

// feeRateSelect orders the pending transactions by fee per byte in
// descending order and returns the capped prefix.
var feeRateSelect = func(txs []database.Tx, howMany int, maxBytes int) []database.Tx {
	ordered := make([]database.Tx, len(txs))
	copy(ordered, txs)
	sort.Sort(byFeeRate(ordered))

	return take(ordered, howMany, maxBytes)
}
