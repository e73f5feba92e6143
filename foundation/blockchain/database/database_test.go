package database_test

import (
	"context"
	"testing"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
	"github.com/gsccoin/blockchain/foundation/blockchain/genesis"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// Well formed addresses for constructing transactions without key material.
const (
	addrA = "GSC1aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB = "GSC1bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	addrC = "GSC1cccccccccccccccccccccccccccccccc"
)

func noopEv(v string, args ...any) {}

// testGenesis returns parameters tuned so proof of work resolves quickly.
func testGenesis() genesis.Genesis {
	g := genesis.Default()
	g.GenesisAddress = addrA
	g.GenesisAllocation = 255
	g.Difficulty = 1
	g.InitialReward = 50

	return g
}

func Test_TxValidate(t *testing.T) {
	now := int64(1_754_000_000)

	tt := []struct {
		name string
		tx   database.Tx
		err  error
	}{
		{"good", database.NewTx(addrA, addrB, 100, 1, now), nil},
		{"zero amount", database.NewTx(addrA, addrB, 0, 1, now), database.ErrZeroAmount},
		{"self transfer", database.NewTx(addrA, addrA, 100, 1, now), database.ErrSelfTransfer},
		{"bad sender", database.NewTx("bogus", addrB, 100, 1, now), database.ErrBadAddress},
		{"bad receiver", database.NewTx(addrA, "bogus", 100, 1, now), database.ErrBadAddress},
	}

	t.Log("Given the need to validate transaction structure.")
	{
		for testID, tst := range tt {
			t.Run(tst.name, func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen validating a %s transaction.", testID, tst.name)
				{
					err := tst.tx.Validate()
					switch {
					case tst.err == nil && err != nil:
						t.Fatalf("\t%s\tTest %d:\tShould pass validation: %v", failed, testID, err)
					case tst.err != nil && err != tst.err:
						t.Fatalf("\t%s\tTest %d:\tShould fail with %v: got %v", failed, testID, tst.err, err)
					}
					t.Logf("\t%s\tTest %d:\tShould get the expected result.", success, testID)
				}
			})
		}

		t.Logf("\tTest %d:\tWhen a transaction id is tampered with.", len(tt))
		{
			tx := database.NewTx(addrA, addrB, 100, 1, now)
			tx.Amount = 200
			if err := tx.Validate(); err != database.ErrIDMismatch {
				t.Fatalf("\t%s\tTest %d:\tShould fail with an id mismatch: got %v", failed, len(tt), err)
			}
			t.Logf("\t%s\tTest %d:\tShould fail with an id mismatch.", success, len(tt))
		}

		t.Logf("\tTest %d:\tWhen a transaction id is absent.", len(tt)+1)
		{
			tx := database.NewTx(addrA, addrB, 100, 1, now)
			tx.ID = ""
			if err := tx.Validate(); err != database.ErrMissingID {
				t.Fatalf("\t%s\tTest %d:\tShould fail with a missing id: got %v", failed, len(tt)+1, err)
			}
			t.Logf("\t%s\tTest %d:\tShould fail with a missing id.", success, len(tt)+1)
		}
	}
}

func Test_TxIdentity(t *testing.T) {
	now := int64(1_754_000_000)

	t.Log("Given the need for stable transaction identity.")
	{
		t.Logf("\tTest 0:\tWhen computing the id over the transfer fields.")
		{
			tx1 := database.NewTx(addrA, addrB, 100, 1, now)
			tx2 := database.NewTx(addrA, addrB, 100, 1, now)
			if tx1.ID != tx2.ID {
				t.Fatalf("\t%s\tTest 0:\tShould get the same id for the same contents.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get the same id for the same contents.", success)

			tx3 := database.NewTx(addrA, addrB, 100, 1, now+1)
			if tx1.ID == tx3.ID {
				t.Fatalf("\t%s\tTest 0:\tShould get a different id when the timestamp changes.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get a different id when the timestamp changes.", success)
		}

		t.Logf("\tTest 1:\tWhen signing after the id is computed.")
		{
			tx := database.NewTx(addrA, addrB, 100, 1, now)
			id := tx.ID
			tx.Signature = "deadbeef"
			if tx.ComputeID() != id {
				t.Fatalf("\t%s\tTest 1:\tShould keep the id independent of the signature.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould keep the id independent of the signature.", success)
		}
	}
}

func Test_GenesisBlock(t *testing.T) {
	g := testGenesis()

	t.Log("Given the need for a deterministic chain head.")
	{
		t.Logf("\tTest 0:\tWhen constructing the genesis block twice.")
		{
			gb1 := database.GenesisBlock(g)
			gb2 := database.GenesisBlock(g)
			if gb1.Hash != gb2.Hash {
				t.Fatalf("\t%s\tTest 0:\tShould arrive at the identical hash.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould arrive at the identical hash.", success)

			if err := gb1.ValidateGenesis(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould validate as a chain head: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould validate as a chain head.", success)

			if len(gb1.Transactions) != 1 || gb1.Transactions[0].Sender != database.GenesisAccount {
				t.Fatalf("\t%s\tTest 0:\tShould carry exactly the allocation mint.", failed)
			}
			if gb1.Transactions[0].Receiver != addrA || gb1.Transactions[0].Amount != 255 {
				t.Fatalf("\t%s\tTest 0:\tShould mint the allocation to the genesis address.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould mint the allocation to the genesis address.", success)
		}
	}
}

func Test_BlockValidate(t *testing.T) {
	g := testGenesis()
	gb := database.GenesisBlock(g)

	mine := func(t *testing.T, prev database.Block, trans []database.Tx) database.Block {
		t.Helper()
		reward := g.RewardAt(prev.Index + 1)
		coinbase := database.NewTx(database.CoinbaseAccount, addrC, reward, 0, prev.Timestamp+1)
		b, err := database.POW(context.Background(), addrC, g.Difficulty, prev, reward, append([]database.Tx{coinbase}, trans...), noopEv)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
		}
		return b
	}

	t.Log("Given the need to validate mined blocks against their parent.")
	{
		t.Logf("\tTest 0:\tWhen validating a freshly mined block.")
		{
			spend := database.NewTx(addrA, addrB, 100, 1, gb.Timestamp+1)
			b1 := mine(t, gb, []database.Tx{spend})

			if err := b1.ValidateAgainst(gb, g.RewardAt(1)); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould validate against its parent: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould validate against its parent.", success)
		}

		t.Logf("\tTest 1:\tWhen a block's contents are tampered with.")
		{
			b1 := mine(t, gb, nil)

			tampered := b1
			tampered.Nonce++
			if err := tampered.ValidateAgainst(gb, g.RewardAt(1)); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould reject a block whose hash no longer matches.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould reject a block whose hash no longer matches.", success)

			stale := b1
			stale.PrevHash = "0000000000000000000000000000000000000000000000000000000000000001"
			if err := stale.ValidateAgainst(gb, g.RewardAt(1)); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould reject a block that does not link to its parent.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould reject a block that does not link to its parent.", success)
		}

		t.Logf("\tTest 2:\tWhen the coinbase pays the wrong reward.")
		{
			reward := g.RewardAt(1)
			coinbase := database.NewTx(database.CoinbaseAccount, addrC, reward+10, 0, gb.Timestamp+1)
			b, err := database.POW(context.Background(), addrC, g.Difficulty, gb, reward, []database.Tx{coinbase}, noopEv)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to mine the block: %v", failed, err)
			}

			if err := b.ValidateAgainst(gb, reward); err == nil {
				t.Fatalf("\t%s\tTest 2:\tShould reject a coinbase overpaying the reward.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould reject a coinbase overpaying the reward.", success)
		}

		t.Logf("\tTest 3:\tWhen the proof of work was cancelled.")
		{
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			if _, err := database.POW(ctx, addrC, g.Difficulty, gb, g.RewardAt(1), nil, noopEv); err == nil {
				t.Fatalf("\t%s\tTest 3:\tShould abandon the search on cancellation.", failed)
			}
			t.Logf("\t%s\tTest 3:\tShould abandon the search on cancellation.", success)
		}
	}
}

func Test_Accounts(t *testing.T) {
	g := testGenesis()
	gb := database.GenesisBlock(g)

	t.Log("Given the need to project balances from the chain.")
	{
		t.Logf("\tTest 0:\tWhen replaying a spend with a fee.")
		{
			spend := database.NewTx(addrA, addrB, 100, 1, gb.Timestamp+1)
			coinbase := database.NewTx(database.CoinbaseAccount, addrC, 50, 0, gb.Timestamp+1)

			b1 := database.Block{
				Index:        1,
				Timestamp:    gb.Timestamp + 1,
				Transactions: []database.Tx{coinbase, spend},
				PrevHash:     gb.Hash,
				Miner:        addrC,
				Reward:       50,
			}

			accounts := database.NewAccounts()
			accounts.Rebuild([]database.Block{gb, b1})

			if bal := accounts.Balance(addrA); bal != 154 {
				t.Fatalf("\t%s\tTest 0:\tShould debit the sender amount plus fee, 154: got %d", failed, bal)
			}
			t.Logf("\t%s\tTest 0:\tShould debit the sender amount plus fee, 154.", success)

			if bal := accounts.Balance(addrB); bal != 100 {
				t.Fatalf("\t%s\tTest 0:\tShould credit the receiver the amount, 100: got %d", failed, bal)
			}
			t.Logf("\t%s\tTest 0:\tShould credit the receiver the amount, 100.", success)

			if bal := accounts.Balance(addrC); bal != 51 {
				t.Fatalf("\t%s\tTest 0:\tShould credit the miner reward plus fees, 51: got %d", failed, bal)
			}
			t.Logf("\t%s\tTest 0:\tShould credit the miner reward plus fees, 51.", success)

			if supply := accounts.CirculatingSupply(); supply != 305 {
				t.Fatalf("\t%s\tTest 0:\tShould report a circulating supply of 305: got %d", failed, supply)
			}
			t.Logf("\t%s\tTest 0:\tShould report a circulating supply of 305.", success)
		}

		t.Logf("\tTest 1:\tWhen asking for unknown and zero balances.")
		{
			accounts := database.NewAccounts()
			accounts.Rebuild([]database.Block{gb})

			if bal := accounts.Balance(addrB); bal != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould report zero for an unknown address: got %d", failed, bal)
			}
			t.Logf("\t%s\tTest 1:\tShould report zero for an unknown address.", success)

			if _, exists := accounts.Copy()[addrB]; exists {
				t.Fatalf("\t%s\tTest 1:\tShould omit zero balances from the copy.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould omit zero balances from the copy.", success)
		}
	}
}

func Test_Chain(t *testing.T) {
	g := testGenesis()
	gb := database.GenesisBlock(g)

	mine := func(t *testing.T, prev database.Block, miner string) database.Block {
		t.Helper()
		reward := g.RewardAt(prev.Index + 1)
		coinbase := database.NewTx(database.CoinbaseAccount, miner, reward, 0, prev.Timestamp+1)
		b, err := database.POW(context.Background(), miner, g.Difficulty, prev, reward, []database.Tx{coinbase}, noopEv)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
		}
		return b
	}

	t.Log("Given the need to validate and locate corruption across a chain.")
	{
		t.Logf("\tTest 0:\tWhen walking a consistent chain.")
		{
			chain := []database.Block{gb}
			for i := 0; i < 3; i++ {
				chain = append(chain, mine(t, chain[len(chain)-1], addrC))
			}

			if err := database.ValidateChain(chain, g); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould validate the whole chain: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould validate the whole chain.", success)

			idx, err := database.FirstInvalid(chain, g)
			if err != nil || idx != -1 {
				t.Fatalf("\t%s\tTest 0:\tShould find no invalid block: got %d, %v", failed, idx, err)
			}
			t.Logf("\t%s\tTest 0:\tShould find no invalid block.", success)
		}

		t.Logf("\tTest 1:\tWhen a block in the middle is corrupted.")
		{
			chain := []database.Block{gb}
			for i := 0; i < 3; i++ {
				chain = append(chain, mine(t, chain[len(chain)-1], addrC))
			}
			chain[2].Nonce++

			idx, err := database.FirstInvalid(chain, g)
			if err != nil || idx != 2 {
				t.Fatalf("\t%s\tTest 1:\tShould locate the corruption at block 2: got %d, %v", failed, idx, err)
			}
			t.Logf("\t%s\tTest 1:\tShould locate the corruption at block 2.", success)
		}

		t.Logf("\tTest 2:\tWhen the chain is empty.")
		{
			if _, err := database.FirstInvalid(nil, g); err != database.ErrEmptyChain {
				t.Fatalf("\t%s\tTest 2:\tShould report an empty chain: got %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould report an empty chain.", success)
		}

		t.Logf("\tTest 3:\tWhen locating the shared history of two forks.")
		{
			base := []database.Block{gb, mine(t, gb, addrC)}

			// Different miners guarantee the tips diverge even when the
			// sibling blocks are mined within the same second.
			forkA := append([]database.Block{}, base...)
			forkA = append(forkA, mine(t, forkA[len(forkA)-1], addrB))

			forkB := append([]database.Block{}, base...)
			forkB = append(forkB, mine(t, forkB[len(forkB)-1], addrC))

			ai, bi := database.CommonAncestor(forkA, forkB)
			if ai != 1 || bi != 1 {
				t.Fatalf("\t%s\tTest 3:\tShould agree on block 1 as the ancestor: got %d, %d", failed, ai, bi)
			}
			t.Logf("\t%s\tTest 3:\tShould agree on block 1 as the ancestor.", success)

			if ai, bi := database.CommonAncestor(forkA, nil); ai != -1 || bi != -1 {
				t.Fatalf("\t%s\tTest 3:\tShould report no ancestor against an empty chain.", failed)
			}
			t.Logf("\t%s\tTest 3:\tShould report no ancestor against an empty chain.", success)
		}
	}
}
