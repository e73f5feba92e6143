package storage_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
	"github.com/gsccoin/blockchain/foundation/blockchain/genesis"
	"github.com/gsccoin/blockchain/foundation/blockchain/storage"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_SaveLoad(t *testing.T) {
	t.Log("Given the need to persist node state across restarts.")
	{
		t.Logf("\tTest 0:\tWhen saving and reloading a snapshot.")
		{
			path := filepath.Join(t.TempDir(), "chain.json")
			strg, err := storage.New(path)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct storage: %v", failed, err)
			}

			g := genesis.Default()
			g.Difficulty = 1
			gb := database.GenesisBlock(g)

			snap := storage.Snapshot{
				Chain:      []database.Block{gb},
				Mempool:    []database.Tx{database.NewTx("GSC1aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "GSC1bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", 100, 1, 1_754_000_000)},
				Balances:   map[string]int64{g.GenesisAddress: 255},
				Difficulty: 1,
			}
			if err := strg.Save(snap); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to save the snapshot: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to save the snapshot.", success)

			loaded, err := strg.Load()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to reload the snapshot: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to reload the snapshot.", success)

			if len(loaded.Chain) != 1 || loaded.Chain[0].Hash != gb.Hash {
				t.Fatalf("\t%s\tTest 0:\tShould get the chain back intact.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get the chain back intact.", success)

			if len(loaded.Mempool) != 1 || loaded.Mempool[0].ID != snap.Mempool[0].ID {
				t.Fatalf("\t%s\tTest 0:\tShould get the mempool back intact.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get the mempool back intact.", success)

			if loaded.Balances[g.GenesisAddress] != 255 || loaded.Difficulty != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould get the balances and difficulty back intact.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get the balances and difficulty back intact.", success)
		}

		t.Logf("\tTest 1:\tWhen no snapshot exists yet.")
		{
			strg, err := storage.New(filepath.Join(t.TempDir(), "chain.json"))
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to construct storage: %v", failed, err)
			}

			if _, err := strg.Load(); !errors.Is(err, storage.ErrNoSnapshot) {
				t.Fatalf("\t%s\tTest 1:\tShould report the missing snapshot: got %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould report the missing snapshot.", success)
		}

		t.Logf("\tTest 2:\tWhen the snapshot carries an unknown version.")
		{
			path := filepath.Join(t.TempDir(), "chain.json")
			strg, err := storage.New(path)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to construct storage: %v", failed, err)
			}

			if err := os.WriteFile(path, []byte(`{"version":99}`), 0644); err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to write the test file: %v", failed, err)
			}

			if _, err := strg.Load(); err == nil {
				t.Fatalf("\t%s\tTest 2:\tShould refuse the unsupported version.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould refuse the unsupported version.", success)
		}
	}
}
