// Package selector provides different transaction selecting algorithms.
package selector

import (
	"fmt"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
)

// List of different select strategies.
const (
	StrategyFee     = "fee"
	StrategyFeeRate = "fee_rate"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyFee:     feeSelect,
	StrategyFeeRate: feeRateSelect,
}

// Func defines a function that takes the pending transactions and selects
// at most howMany of them, keeping the serialized total under maxBytes, in
// an order based on the function's strategy. Receiving -1 for howMany must
// return all the transactions in the strategy's ordering.
type Func func(txs []database.Tx, howMany int, maxBytes int) []database.Tx

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// take applies the shared count and byte caps over an already ordered list.
func take(ordered []database.Tx, howMany int, maxBytes int) []database.Tx {
	if howMany == -1 {
		howMany = len(ordered)
	}

	final := make([]database.Tx, 0, howMany)
	bytes := 0
	for _, tx := range ordered {
		if len(final) >= howMany {
			break
		}
		size := tx.Size()
		if maxBytes > 0 && bytes+size > maxBytes {
			continue
		}
		final = append(final, tx)
		bytes += size
	}

	return final
}

// =============================================================================

// byFee provides sorting support by the transaction fee value, breaking
// ties with the newer timestamp first.
type byFee []database.Tx

// Len returns the number of transactions in the list.
func (bf byFee) Len() int {
	return len(bf)
}

// Less helps to sort the list by fee in descending order to pick the
// transactions that provide the best reward.
func (bf byFee) Less(i, j int) bool {
	if bf[i].Fee != bf[j].Fee {
		return bf[i].Fee > bf[j].Fee
	}
	return bf[i].Timestamp > bf[j].Timestamp
}

// Swap moves transactions in the order of the fee value.
func (bf byFee) Swap(i, j int) {
	bf[i], bf[j] = bf[j], bf[i]
}

// =============================================================================

// byFeeRate provides sorting support by fee per serialized byte, breaking
// ties with the higher fee and then the newer timestamp first.
type byFeeRate []database.Tx

// Len returns the number of transactions in the list.
func (br byFeeRate) Len() int {
	return len(br)
}

// Less helps to sort the list by fee rate in descending order.
func (br byFeeRate) Less(i, j int) bool {
	ri := feeRate(br[i])
	rj := feeRate(br[j])
	if ri != rj {
		return ri > rj
	}
	if br[i].Fee != br[j].Fee {
		return br[i].Fee > br[j].Fee
	}
	return br[i].Timestamp > br[j].Timestamp
}

// Swap moves transactions in the order of the fee rate.
func (br byFeeRate) Swap(i, j int) {
	br[i], br[j] = br[j], br[i]
}

func feeRate(tx database.Tx) float64 {
	size := tx.Size()
	if size == 0 {
		return 0
	}
	return float64(tx.Fee) / float64(size)
}
