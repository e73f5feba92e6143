package p2p_test

import (
	"encoding/binary"
	"errors"
	"net"
	"testing"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
	"github.com/gsccoin/blockchain/foundation/blockchain/p2p"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_Envelope(t *testing.T) {
	t.Log("Given the need to seal and validate protocol envelopes.")
	{
		t.Logf("\tTest 0:\tWhen sealing a payload into an envelope.")
		{
			env, err := p2p.NewEnvelope(p2p.MsgPing, p2p.PingPayload{Nonce: 42})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to seal the envelope: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to seal the envelope.", success)

			if err := env.Validate(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould validate a sealed envelope: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould validate a sealed envelope.", success)

			var ping p2p.PingPayload
			if err := env.Decode(&ping); err != nil || ping.Nonce != 42 {
				t.Fatalf("\t%s\tTest 0:\tShould decode the payload back: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould decode the payload back.", success)
		}

		t.Logf("\tTest 1:\tWhen the envelope is tampered with.")
		{
			env, err := p2p.NewEnvelope(p2p.MsgPing, p2p.PingPayload{Nonce: 42})
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to seal the envelope: %v", failed, err)
			}

			env.Timestamp++
			if err := env.Validate(); !errors.Is(err, p2p.ErrBadChecksum) {
				t.Fatalf("\t%s\tTest 1:\tShould detect the checksum mismatch: got %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould detect the checksum mismatch.", success)
		}

		t.Logf("\tTest 2:\tWhen the envelope carries an unknown type.")
		{
			env, err := p2p.NewEnvelope(p2p.MsgPing, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to seal the envelope: %v", failed, err)
			}

			env.Type = "gossip"
			if err := env.Validate(); !errors.Is(err, p2p.ErrUnknownType) {
				t.Fatalf("\t%s\tTest 2:\tShould refuse the unknown type: got %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould refuse the unknown type.", success)
		}
	}
}

func Test_Framing(t *testing.T) {
	t.Log("Given the need to move envelopes over a framed connection.")
	{
		t.Logf("\tTest 0:\tWhen writing and reading one frame.")
		{
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			tx := database.NewTx("GSC1aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "GSC1bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", 100, 1, 1_754_000_000)
			env, err := p2p.NewEnvelope(p2p.MsgTx, p2p.TxPayload{Tx: tx})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to seal the envelope: %v", failed, err)
			}

			writeErr := make(chan error, 1)
			go func() {
				writeErr <- p2p.WriteEnvelope(client, env)
			}()

			got, err := p2p.ReadEnvelope(server)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to read the frame: %v", failed, err)
			}
			if err := <-writeErr; err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to write the frame: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to move the frame.", success)

			if got.Type != p2p.MsgTx || got.Checksum != env.Checksum {
				t.Fatalf("\t%s\tTest 0:\tShould receive the envelope unchanged.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould receive the envelope unchanged.", success)

			var payload p2p.TxPayload
			if err := got.Decode(&payload); err != nil || payload.Tx.ID != tx.ID {
				t.Fatalf("\t%s\tTest 0:\tShould decode the transaction back: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould decode the transaction back.", success)
		}

		t.Logf("\tTest 1:\tWhen the peer announces an oversized frame.")
		{
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			go func() {
				var hdr [4]byte
				binary.BigEndian.PutUint32(hdr[:], 1<<21)
				client.Write(hdr[:])
			}()

			if _, err := p2p.ReadEnvelope(server); !errors.Is(err, p2p.ErrFrameTooLarge) {
				t.Fatalf("\t%s\tTest 1:\tShould refuse the oversized frame: got %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould refuse the oversized frame.", success)
		}
	}
}
