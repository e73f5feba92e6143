package peer_test

import (
	"path/filepath"
	"testing"

	"github.com/gsccoin/blockchain/foundation/blockchain/peer"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_BanList(t *testing.T) {
	t.Log("Given the need to score and ban misbehaving peers.")
	{
		t.Logf("\tTest 0:\tWhen a peer accumulates score below the threshold.")
		{
			bl, err := peer.NewBanList(filepath.Join(t.TempDir(), "bans"))
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to open the ban list: %v", failed, err)
			}
			defer bl.Close()

			banned, err := bl.AddScore("10.0.0.1", peer.ScoreInvalidMsg, "invalid message")
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to add a score: %v", failed, err)
			}
			if banned || bl.IsBanned("10.0.0.1") {
				t.Fatalf("\t%s\tTest 0:\tShould not ban below the threshold.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not ban below the threshold.", success)
		}

		t.Logf("\tTest 1:\tWhen a peer crosses the ban threshold.")
		{
			bl, err := peer.NewBanList(filepath.Join(t.TempDir(), "bans"))
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to open the ban list: %v", failed, err)
			}
			defer bl.Close()

			var banned bool
			for i := 0; i < 2; i++ {
				banned, err = bl.AddScore("10.0.0.2", peer.ScoreOversized, "oversized frame")
				if err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould be able to add a score: %v", failed, err)
				}
			}
			if !banned || !bl.IsBanned("10.0.0.2") {
				t.Fatalf("\t%s\tTest 1:\tShould ban at the threshold.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould ban at the threshold.", success)

			bans, err := bl.Active()
			if err != nil || len(bans) != 1 || bans[0].Host != "10.0.0.2" {
				t.Fatalf("\t%s\tTest 1:\tShould report the active ban: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould report the active ban.", success)
		}

		t.Logf("\tTest 2:\tWhen a ban must survive a restart.")
		{
			dir := filepath.Join(t.TempDir(), "bans")

			bl, err := peer.NewBanList(dir)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to open the ban list: %v", failed, err)
			}
			if _, err := bl.AddScore("10.0.0.3", peer.BanThreshold, "oversized frame"); err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to add a score: %v", failed, err)
			}
			bl.Close()

			reopened, err := peer.NewBanList(dir)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to reopen the ban list: %v", failed, err)
			}
			defer reopened.Close()

			if !reopened.IsBanned("10.0.0.3") {
				t.Fatalf("\t%s\tTest 2:\tShould keep the ban in force after reopening.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould keep the ban in force after reopening.", success)
		}

		t.Logf("\tTest 3:\tWhen lifting a ban.")
		{
			bl, err := peer.NewBanList(filepath.Join(t.TempDir(), "bans"))
			if err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould be able to open the ban list: %v", failed, err)
			}
			defer bl.Close()

			if _, err := bl.AddScore("10.0.0.4", peer.BanThreshold, "oversized frame"); err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould be able to add a score: %v", failed, err)
			}
			if err := bl.Unban("10.0.0.4"); err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould be able to lift the ban: %v", failed, err)
			}
			if bl.IsBanned("10.0.0.4") {
				t.Fatalf("\t%s\tTest 3:\tShould no longer report the peer banned.", failed)
			}
			t.Logf("\t%s\tTest 3:\tShould no longer report the peer banned.", success)
		}
	}
}
