package p2p

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
	"github.com/gsccoin/blockchain/foundation/blockchain/genesis"
)

// dialTimeout bounds how long an outbound connection attempt may take.
const dialTimeout = 5 * time.Second

// Client performs request and response exchanges against remote peers.
// Every call dials a fresh connection, performs the version handshake and
// closes the connection when the exchange completes.
type Client struct {
	host    string
	genesis genesis.Genesis

	// Status supplies the local height and tip hash for handshakes so
	// peers can decide whether to sync from us. Nil reports zero height.
	Status func() (uint64, string)
}

// NewClient constructs a client identifying itself as the specified host.
func NewClient(host string, g genesis.Genesis) *Client {
	return &Client{
		host:    host,
		genesis: g,
	}
}

// QueryStatus performs just the handshake and returns the peer's reported
// status.
func (c *Client) QueryStatus(ctx context.Context, peerHost string) (VersionPayload, error) {
	conn, ver, err := c.dial(ctx, peerHost)
	if err != nil {
		return VersionPayload{}, err
	}
	conn.Close()

	return ver, nil
}

// FetchHeaders returns every header the peer holds above the specified
// hash.
func (c *Client) FetchHeaders(ctx context.Context, peerHost string, fromHash string) ([]database.BlockHeader, error) {
	conn, _, err := c.dial(ctx, peerHost)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	env, err := c.roundTrip(ctx, conn, MsgGetHeaders, GetHeadersPayload{FromHash: fromHash}, MsgHeaders)
	if err != nil {
		return nil, err
	}

	var hp HeadersPayload
	if err := env.Decode(&hp); err != nil {
		return nil, err
	}

	return hp.Headers, nil
}

// FetchBlocks returns the peer's full blocks for the index range,
// repeating the request until the range is covered since the peer may
// answer in partial batches.
func (c *Client) FetchBlocks(ctx context.Context, peerHost string, from uint64, to uint64) ([]database.Block, error) {
	conn, _, err := c.dial(ctx, peerHost)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var blocks []database.Block
	for from <= to {
		env, err := c.roundTrip(ctx, conn, MsgGetBlocks, GetBlocksPayload{From: from, To: to}, MsgBlocks)
		if err != nil {
			return nil, err
		}

		var bp BlocksPayload
		if err := env.Decode(&bp); err != nil {
			return nil, err
		}
		if len(bp.Blocks) == 0 {
			break
		}

		blocks = append(blocks, bp.Blocks...)
		from = bp.Blocks[len(bp.Blocks)-1].Index + 1
	}

	return blocks, nil
}

// FetchMempool returns the peer's pending transactions.
func (c *Client) FetchMempool(ctx context.Context, peerHost string) ([]database.Tx, error) {
	conn, _, err := c.dial(ctx, peerHost)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	env, err := c.roundTrip(ctx, conn, MsgMempool, MempoolPayload{}, MsgMempool)
	if err != nil {
		return nil, err
	}

	var mp MempoolPayload
	if err := env.Decode(&mp); err != nil {
		return nil, err
	}

	return mp.Txs, nil
}

// FetchAddrs asks the peer for the peer addresses it knows.
func (c *Client) FetchAddrs(ctx context.Context, peerHost string) ([]string, error) {
	conn, _, err := c.dial(ctx, peerHost)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	env, err := c.roundTrip(ctx, conn, MsgGetAddr, nil, MsgAddr)
	if err != nil {
		return nil, err
	}

	var ap AddrPayload
	if err := env.Decode(&ap); err != nil {
		return nil, err
	}

	return ap.Hosts, nil
}

// SendTx pushes a transaction to the peer.
func (c *Client) SendTx(ctx context.Context, peerHost string, tx database.Tx) error {
	conn, _, err := c.dial(ctx, peerHost)
	if err != nil {
		return err
	}
	defer conn.Close()

	return c.send(ctx, conn, MsgTx, TxPayload{Tx: tx})
}

// SendBlock pushes a freshly mined block to the peer.
func (c *Client) SendBlock(ctx context.Context, peerHost string, block database.Block) error {
	conn, _, err := c.dial(ctx, peerHost)
	if err != nil {
		return err
	}
	defer conn.Close()

	return c.send(ctx, conn, MsgBlocks, BlocksPayload{Blocks: []database.Block{block}})
}

// SendInv announces inventory by hash to the peer.
func (c *Client) SendInv(ctx context.Context, peerHost string, kind string, hashes []string) error {
	conn, _, err := c.dial(ctx, peerHost)
	if err != nil {
		return err
	}
	defer conn.Close()

	return c.send(ctx, conn, MsgInv, InvPayload{Kind: kind, Hashes: hashes})
}

// SendMempool pushes a batch of pending transactions to the peer.
func (c *Client) SendMempool(ctx context.Context, peerHost string, txs []database.Tx) error {
	conn, _, err := c.dial(ctx, peerHost)
	if err != nil {
		return err
	}
	defer conn.Close()

	return c.send(ctx, conn, MsgMempool, MempoolPayload{Txs: txs})
}

// Ping measures the round trip to the peer in milliseconds.
func (c *Client) Ping(ctx context.Context, peerHost string) (int64, error) {
	conn, _, err := c.dial(ctx, peerHost)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	nonce := rand.Uint64()
	started := time.Now()

	env, err := c.roundTrip(ctx, conn, MsgPing, PingPayload{Nonce: nonce}, MsgPong)
	if err != nil {
		return 0, err
	}

	var pong PingPayload
	if err := env.Decode(&pong); err != nil {
		return 0, err
	}
	if pong.Nonce != nonce {
		return 0, fmt.Errorf("pong nonce mismatch")
	}

	return time.Since(started).Milliseconds(), nil
}

// =============================================================================

// dial opens a connection and completes the version handshake, returning
// the peer's status.
func (c *Client) dial(ctx context.Context, peerHost string) (net.Conn, VersionPayload, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", peerHost)
	if err != nil {
		return nil, VersionPayload{}, fmt.Errorf("dial %s: %w", peerHost, err)
	}

	ver := VersionPayload{
		Host:      c.host,
		ChainName: c.genesis.ChainName,
	}
	if c.Status != nil {
		ver.Height, ver.LatestHash = c.Status()
	}

	if err := c.send(ctx, conn, MsgVersion, ver); err != nil {
		conn.Close()
		return nil, VersionPayload{}, err
	}

	env, err := c.read(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, VersionPayload{}, err
	}
	if env.Type != MsgVerack {
		conn.Close()
		return nil, VersionPayload{}, fmt.Errorf("handshake with %s: got %q, want verack", peerHost, env.Type)
	}

	var status VersionPayload
	if err := env.Decode(&status); err != nil {
		conn.Close()
		return nil, VersionPayload{}, err
	}

	return conn, status, nil
}

// roundTrip sends one request and reads messages until the expected
// response type arrives.
func (c *Client) roundTrip(ctx context.Context, conn net.Conn, reqType MsgType, payload any, respType MsgType) (Envelope, error) {
	if err := c.send(ctx, conn, reqType, payload); err != nil {
		return Envelope{}, err
	}

	for {
		env, err := c.read(ctx, conn)
		if err != nil {
			return Envelope{}, err
		}
		if env.Type == respType {
			return env, nil
		}
	}
}

func (c *Client) send(ctx context.Context, conn net.Conn, t MsgType, payload any) error {
	env, err := NewEnvelope(t, payload)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetWriteDeadline(deadline)

	return WriteEnvelope(conn, env)
}

func (c *Client) read(ctx context.Context, conn net.Conn) (Envelope, error) {
	deadline := time.Now().Add(readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)

	return ReadEnvelope(conn)
}
