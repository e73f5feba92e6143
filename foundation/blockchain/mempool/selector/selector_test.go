package selector_test

import (
	"testing"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
	"github.com/gsccoin/blockchain/foundation/blockchain/mempool/selector"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const (
	addrA = "GSC1aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB = "GSC1bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func Test_Retrieve(t *testing.T) {
	t.Log("Given the need to retrieve select strategies by name.")
	{
		t.Logf("\tTest 0:\tWhen asking for the known strategies.")
		{
			for _, strategy := range []string{selector.StrategyFee, selector.StrategyFeeRate} {
				if _, err := selector.Retrieve(strategy); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould find strategy %q: %v", failed, strategy, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould find the known strategies.", success)

			if _, err := selector.Retrieve("bogus"); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould refuse an unknown strategy.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould refuse an unknown strategy.", success)
		}
	}
}

func Test_FeeStrategy(t *testing.T) {
	now := int64(1_754_000_000)

	txs := []database.Tx{
		database.NewTx(addrA, addrB, 10, 1, now),
		database.NewTx(addrA, addrB, 10, 5, now+1),
		database.NewTx(addrB, addrA, 10, 5, now+2),
		database.NewTx(addrB, addrA, 10, 3, now+3),
	}

	t.Log("Given the need to order pending transactions by fee.")
	{
		t.Logf("\tTest 0:\tWhen selecting all transactions.")
		{
			fn, err := selector.Retrieve(selector.StrategyFee)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to retrieve the strategy: %v", failed, err)
			}

			ordered := fn(txs, -1, 0)
			if len(ordered) != len(txs) {
				t.Fatalf("\t%s\tTest 0:\tShould return every transaction: got %d", failed, len(ordered))
			}
			t.Logf("\t%s\tTest 0:\tShould return every transaction.", success)

			fees := []uint64{5, 5, 3, 1}
			for i, want := range fees {
				if ordered[i].Fee != want {
					t.Fatalf("\t%s\tTest 0:\tShould order fees descending: position %d got %d, want %d", failed, i, ordered[i].Fee, want)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould order fees descending.", success)

			if ordered[0].Timestamp != now+2 {
				t.Fatalf("\t%s\tTest 0:\tShould break fee ties with the newer timestamp first.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould break fee ties with the newer timestamp first.", success)
		}

		t.Logf("\tTest 1:\tWhen capping the selection count.")
		{
			fn, _ := selector.Retrieve(selector.StrategyFee)

			ordered := fn(txs, 2, 0)
			if len(ordered) != 2 || ordered[0].Fee != 5 || ordered[1].Fee != 5 {
				t.Fatalf("\t%s\tTest 1:\tShould keep only the two best fees.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould keep only the two best fees.", success)
		}
	}
}

func Test_FeeRateStrategy(t *testing.T) {
	now := int64(1_754_000_000)

	// Identical field widths keep the serialized sizes equal, so the fee
	// alone decides the rate.
	txs := []database.Tx{
		database.NewTx(addrA, addrB, 10, 9, now+1),
		database.NewTx(addrA, addrB, 10, 9, now+2),
		database.NewTx(addrB, addrA, 10, 1, now+3),
	}

	t.Log("Given the need to order pending transactions by fee rate.")
	{
		t.Logf("\tTest 0:\tWhen selecting all transactions.")
		{
			fn, err := selector.Retrieve(selector.StrategyFeeRate)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to retrieve the strategy: %v", failed, err)
			}

			ordered := fn(txs, -1, 0)
			if len(ordered) != len(txs) {
				t.Fatalf("\t%s\tTest 0:\tShould return every transaction: got %d", failed, len(ordered))
			}
			t.Logf("\t%s\tTest 0:\tShould return every transaction.", success)

			if ordered[0].Fee != 9 || ordered[1].Fee != 9 || ordered[2].Fee != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould order rates descending: got %d, %d, %d", failed, ordered[0].Fee, ordered[1].Fee, ordered[2].Fee)
			}
			t.Logf("\t%s\tTest 0:\tShould order rates descending.", success)

			if ordered[0].Timestamp != now+2 {
				t.Fatalf("\t%s\tTest 0:\tShould break rate ties with the newer timestamp first.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould break rate ties with the newer timestamp first.", success)
		}
	}
}
