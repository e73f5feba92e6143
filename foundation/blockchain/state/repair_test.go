package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
	"github.com/gsccoin/blockchain/foundation/blockchain/genesis"
	"github.com/gsccoin/blockchain/foundation/blockchain/mempool/selector"
	"github.com/gsccoin/blockchain/foundation/blockchain/peer"
	"github.com/gsccoin/blockchain/foundation/blockchain/storage"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const (
	senderAddr   = "GSC1aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	receiverAddr = "GSC1bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	minerAddr    = "GSC1cccccccccccccccccccccccccccccccc"
)

// stubWorker satisfies the Worker interface without the worker goroutines.
type stubWorker struct{}

func (stubWorker) Shutdown()                                            {}
func (stubWorker) SignalStartMining()                                   {}
func (stubWorker) SignalCancelMining() (done func())                    { return func() {} }
func (stubWorker) SignalShareTx(tx database.Tx, origin string)          {}
func (stubWorker) SignalShareBlock(block database.Block, origin string) {}
func (stubWorker) SignalSync()                                          {}

// Corrupting a settled block requires reaching into the chain slice, so
// this test lives inside the package.
func Test_TruncateRepair(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Unix()

	g := genesis.Default()
	g.GenesisAddress = senderAddr
	g.GenesisAllocation = 255
	g.Difficulty = 1
	g.InitialReward = 50

	t.Log("Given the need to truncate a corrupted chain back to its valid prefix.")
	{
		t.Logf("\tTest 0:\tWhen a settled block no longer validates.")
		{
			strg, err := storage.New(filepath.Join(t.TempDir(), "chain.json"))
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct storage: %v", failed, err)
			}

			st, err := New(Config{
				MinerAddress:   minerAddr,
				Host:           "127.0.0.1:10080",
				Genesis:        g,
				Storage:        strg,
				SelectStrategy: selector.StrategyFee,
				KnownPeers:     peer.NewPeerSet(),
			})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct the state: %v", failed, err)
			}
			st.Worker = stubWorker{}

			transfers := []database.Tx{
				database.NewTx(senderAddr, receiverAddr, 10, 1, now),
				database.NewTx(senderAddr, receiverAddr, 11, 1, now+2),
			}
			for _, tx := range transfers {
				if err := st.SubmitTx(tx); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould admit the transaction: %v", failed, err)
				}
				if _, err := st.MineNewBlock(ctx); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to mine the block: %v", failed, err)
				}
			}

			st.mu.Lock()
			st.chain[2].Nonce++
			st.mu.Unlock()

			removed, err := st.ValidateAndRepairChain()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to repair the chain: %v", failed, err)
			}
			if removed != 1 || st.Height() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould truncate to the valid prefix: removed %d, height %d", failed, removed, st.Height())
			}
			t.Logf("\t%s\tTest 0:\tShould truncate to the valid prefix.", success)

			pool := st.MempoolCopy()
			if len(pool) != 1 || pool[0].ID != transfers[1].ID {
				t.Fatalf("\t%s\tTest 0:\tShould return the displaced transfer to the pool: got %d", failed, len(pool))
			}
			t.Logf("\t%s\tTest 0:\tShould return the displaced transfer to the pool.", success)

			if a, b := st.Balance(senderAddr), st.Balance(receiverAddr); a != 244 || b != 10 {
				t.Fatalf("\t%s\tTest 0:\tShould rebuild balances over the prefix: got %d/%d", failed, a, b)
			}
			t.Logf("\t%s\tTest 0:\tShould rebuild balances over the prefix.", success)
		}
	}
}
