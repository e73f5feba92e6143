// Package p2p implements the framed TCP protocol nodes use to gossip
// transactions and blocks and to synchronize their chains.
package p2p

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
)

// MsgType identifies a protocol message. The set is closed, anything else
// on the wire is a protocol violation.
type MsgType string

// The full set of protocol messages.
const (
	MsgVersion    MsgType = "version"
	MsgVerack     MsgType = "verack"
	MsgPing       MsgType = "ping"
	MsgPong       MsgType = "pong"
	MsgGetHeaders MsgType = "getheaders"
	MsgHeaders    MsgType = "headers"
	MsgGetBlocks  MsgType = "getblocks"
	MsgBlocks     MsgType = "blocks"
	MsgInv        MsgType = "inv"
	MsgTx         MsgType = "tx"
	MsgMempool    MsgType = "mempool"
	MsgAddr       MsgType = "addr"
	MsgGetAddr    MsgType = "getaddr"
)

var knownTypes = map[MsgType]struct{}{
	MsgVersion: {}, MsgVerack: {}, MsgPing: {}, MsgPong: {},
	MsgGetHeaders: {}, MsgHeaders: {}, MsgGetBlocks: {}, MsgBlocks: {},
	MsgInv: {}, MsgTx: {}, MsgMempool: {}, MsgAddr: {}, MsgGetAddr: {},
}

// Wire limits. A frame larger than maxFrameBytes is treated as an attack
// on the reader and scored accordingly.
const (
	maxFrameBytes = 1 << 20
	checksumLen   = 8
)

// Set of errors the codec can return.
var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	ErrBadChecksum   = errors.New("message checksum mismatch")
	ErrUnknownType   = errors.New("unknown message type")
)

// Envelope wraps every message on the wire.
type Envelope struct {
	Type      MsgType         `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Checksum  string          `json:"checksum"`
}

// NewEnvelope constructs a sealed envelope around the payload value.
func NewEnvelope(t MsgType, payload any) (Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal payload: %w", err)
		}
		raw = data
	}

	env := Envelope{
		Type:      t,
		Payload:   raw,
		Timestamp: time.Now().UTC().Unix(),
	}
	env.Checksum = env.computeChecksum()

	return env, nil
}

// Validate checks the envelope's type and checksum.
func (e Envelope) Validate() error {
	if _, ok := knownTypes[e.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	if e.Checksum != e.computeChecksum() {
		return ErrBadChecksum
	}
	return nil
}

// Decode unmarshals the payload into the specified value.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

func (e Envelope) computeChecksum() string {
	h := sha256.New()
	h.Write([]byte(e.Type))
	h.Write(e.Payload)
	fmt.Fprintf(h, "%d", e.Timestamp)

	return hex.EncodeToString(h.Sum(nil))[:checksumLen]
}

// =============================================================================
// Payloads.

// VersionPayload opens the handshake and doubles as a status report.
type VersionPayload struct {
	Host       string   `json:"host"`
	ChainName  string   `json:"chain_name"`
	Height     uint64   `json:"height"`
	LatestHash string   `json:"latest_hash"`
	KnownPeers []string `json:"known_peers,omitempty"`
}

// PingPayload carries a nonce the pong must echo.
type PingPayload struct {
	Nonce uint64 `json:"nonce"`
}

// GetHeadersPayload asks for every header above the specified hash.
type GetHeadersPayload struct {
	FromHash string `json:"from_hash"`
}

// HeadersPayload answers a getheaders request.
type HeadersPayload struct {
	Headers []database.BlockHeader `json:"headers"`
}

// GetBlocksPayload asks for full blocks in an index range.
type GetBlocksPayload struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// BlocksPayload answers a getblocks request. The server may return fewer
// blocks than asked for to respect the frame limit, the caller advances
// its range and asks again.
type BlocksPayload struct {
	Blocks []database.Block `json:"blocks"`
}

// InvPayload announces inventory by hash.
type InvPayload struct {
	Kind   string   `json:"kind"`
	Hashes []string `json:"hashes"`
}

// TxPayload gossips a single transaction.
type TxPayload struct {
	Tx database.Tx `json:"tx"`
}

// MempoolPayload exchanges pending transactions in bulk. An empty Txs
// slice is a request, a populated one is the answer or an unsolicited
// push.
type MempoolPayload struct {
	Txs []database.Tx `json:"txs,omitempty"`
}

// AddrPayload shares known peer addresses.
type AddrPayload struct {
	Hosts []string `json:"hosts"`
}

// =============================================================================
// Framing. Each message travels as a 4 byte big endian length prefix
// followed by that many bytes of JSON envelope.

// WriteEnvelope frames and writes one envelope to the connection.
func WriteEnvelope(conn net.Conn, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if len(data) > maxFrameBytes {
		return ErrFrameTooLarge
	}

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))

	if _, err := conn.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := conn.Write(data); err != nil {
		return err
	}

	return nil
}

// ReadEnvelope reads one framed envelope from the connection and validates
// it. The checksum and type errors are distinguishable so the caller can
// score the peer.
func ReadEnvelope(conn net.Conn) (Envelope, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return Envelope{}, err
	}

	size := binary.BigEndian.Uint32(hdr[:])
	if size > maxFrameBytes {
		return Envelope{}, ErrFrameTooLarge
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(conn, data); err != nil {
		return Envelope{}, err
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}

	return env, nil
}
