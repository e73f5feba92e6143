package p2p

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gsccoin/blockchain/foundation/blockchain/database"
	"github.com/gsccoin/blockchain/foundation/blockchain/peer"
	"github.com/gsccoin/blockchain/foundation/blockchain/state"
)

// Connection policy for the listener.
const (
	defaultMaxInbound = 64
	defaultMaxPerIP   = 4
	handshakeTimeout  = 5 * time.Second
	readTimeout       = 2 * time.Minute
	writeTimeout      = 10 * time.Second
)

// Config represents the configuration required to run the server.
type Config struct {
	Host       string
	State      *state.State
	BanList    *peer.BanList
	EvHandler  state.EventHandler
	MaxInbound int
	MaxPerIP   int
}

// Server accepts peer connections and answers protocol requests against
// the node's state.
type Server struct {
	host       string
	state      *state.State
	banList    *peer.BanList
	evHandler  state.EventHandler
	maxInbound int
	maxPerIP   int

	listener net.Listener
	wg       sync.WaitGroup
	shut     chan struct{}

	mu    sync.Mutex
	conns map[net.Conn]string
	perIP map[string]int
}

// NewServer constructs a server ready to accept connections.
func NewServer(cfg Config) *Server {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	maxInbound := cfg.MaxInbound
	if maxInbound <= 0 {
		maxInbound = defaultMaxInbound
	}
	maxPerIP := cfg.MaxPerIP
	if maxPerIP <= 0 {
		maxPerIP = defaultMaxPerIP
	}

	return &Server{
		host:       cfg.Host,
		state:      cfg.State,
		banList:    cfg.BanList,
		evHandler:  ev,
		maxInbound: maxInbound,
		maxPerIP:   maxPerIP,
		shut:       make(chan struct{}),
		conns:      make(map[net.Conn]string),
		perIP:      make(map[string]int),
	}
}

// Start binds the listener and runs the accept loop in its own goroutine.
func (srv *Server) Start() error {
	lst, err := net.Listen("tcp", srv.host)
	if err != nil {
		return err
	}
	srv.listener = lst

	srv.wg.Add(1)
	go func() {
		defer srv.wg.Done()
		srv.acceptLoop()
	}()

	srv.evHandler("p2p: server: listening on %s", srv.host)

	return nil
}

// Addr returns the address the listener is bound to, which differs from
// the configured host when an ephemeral port was requested.
func (srv *Server) Addr() string {
	if srv.listener == nil {
		return srv.host
	}

	return srv.listener.Addr().String()
}

// Shutdown stops accepting connections and closes the active ones.
func (srv *Server) Shutdown() {
	srv.evHandler("p2p: server: shutdown: started")
	defer srv.evHandler("p2p: server: shutdown: completed")

	close(srv.shut)
	if srv.listener != nil {
		srv.listener.Close()
	}

	srv.mu.Lock()
	for conn := range srv.conns {
		conn.Close()
	}
	srv.mu.Unlock()

	srv.wg.Wait()
}

// acceptLoop admits inbound connections, enforcing the ban list and the
// connection caps before handing each one to its own goroutine.
func (srv *Server) acceptLoop() {
	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			select {
			case <-srv.shut:
				return
			default:
				srv.evHandler("p2p: server: accept: ERROR: %s", err)
				continue
			}
		}

		ip := remoteIP(conn)

		if srv.banList.IsBanned(ip) {
			srv.evHandler("p2p: server: reject banned peer: %s", ip)
			conn.Close()
			continue
		}

		if !srv.track(conn, ip) {
			srv.evHandler("p2p: server: connection caps reached, rejecting %s", ip)
			conn.Close()
			continue
		}

		srv.wg.Add(1)
		go func() {
			defer srv.wg.Done()
			defer srv.untrack(conn, ip)
			defer conn.Close()
			srv.handleConn(conn, ip)
		}()
	}
}

// track registers the connection against the caps, reporting whether it
// may proceed.
func (srv *Server) track(conn net.Conn, ip string) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if len(srv.conns) >= srv.maxInbound || srv.perIP[ip] >= srv.maxPerIP {
		return false
	}

	srv.conns[conn] = ip
	srv.perIP[ip]++

	return true
}

func (srv *Server) untrack(conn net.Conn, ip string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	delete(srv.conns, conn)
	if srv.perIP[ip] <= 1 {
		delete(srv.perIP, ip)
	} else {
		srv.perIP[ip]--
	}
}

// =============================================================================

// handleConn performs the version handshake and then serves requests until
// the peer disconnects, misbehaves past the ban threshold or the server
// shuts down.
func (srv *Server) handleConn(conn net.Conn, ip string) {

	// A peer that never completes the handshake is dropped without
	// penalty, slow dialers are not misbehavior.
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	env, err := ReadEnvelope(conn)
	if err != nil || env.Type != MsgVersion {
		srv.evHandler("p2p: server: %s: handshake failed", ip)
		return
	}

	var ver VersionPayload
	if err := env.Decode(&ver); err != nil {
		srv.score(ip, peer.ScoreDecodeFail, "handshake decode")
		return
	}

	if ver.ChainName != srv.state.Genesis().ChainName {
		srv.evHandler("p2p: server: %s: wrong chain %q", ip, ver.ChainName)
		return
	}

	srv.completeHandshake(conn, ip, ver)

	for {
		select {
		case <-srv.shut:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))

		env, err := ReadEnvelope(conn)
		if err != nil {
			if !srv.scoreReadError(ip, err) {
				return
			}
			continue
		}

		srv.state.KnownPeerSet().Touch(ver.Host, 1, 0, -1)

		if !srv.dispatch(conn, ip, ver.Host, env) {
			return
		}
	}
}

// completeHandshake replies with verack, records the peer and absorbs the
// addresses it shared. A peer ahead of us triggers a sync.
func (srv *Server) completeHandshake(conn net.Conn, ip string, ver VersionPayload) {
	srv.evHandler("p2p: server: %s: handshake: host[%s] height[%d]", ip, ver.Host, ver.Height)

	srv.reply(conn, ip, MsgVerack, srv.versionPayload())

	if ver.Host != "" {
		srv.state.AddKnownPeer(peer.New(ver.Host, peer.DirInbound))
	}
	for _, host := range ver.KnownPeers {
		srv.state.AddKnownPeer(peer.New(host, peer.DirOutbound))
	}

	if ver.Height > srv.state.Height() {
		srv.state.Worker.SignalSync()
	}
}

// dispatch answers one request. It reports false when the connection
// should be dropped.
func (srv *Server) dispatch(conn net.Conn, ip string, host string, env Envelope) bool {
	switch env.Type {

	case MsgPing:
		var ping PingPayload
		if err := env.Decode(&ping); err != nil {
			return srv.score(ip, peer.ScoreDecodeFail, "ping decode")
		}
		srv.reply(conn, ip, MsgPong, PingPayload{Nonce: ping.Nonce})

	case MsgVersion:
		srv.reply(conn, ip, MsgVerack, srv.versionPayload())

	case MsgGetHeaders:
		var req GetHeadersPayload
		if err := env.Decode(&req); err != nil {
			return srv.score(ip, peer.ScoreDecodeFail, "getheaders decode")
		}
		srv.reply(conn, ip, MsgHeaders, HeadersPayload{Headers: srv.state.HeadersAfter(req.FromHash)})

	case MsgGetBlocks:
		var req GetBlocksPayload
		if err := env.Decode(&req); err != nil {
			return srv.score(ip, peer.ScoreDecodeFail, "getblocks decode")
		}
		srv.reply(conn, ip, MsgBlocks, BlocksPayload{Blocks: clampBlocks(srv.state.BlocksByRange(req.From, req.To))})

	case MsgTx:
		var tp TxPayload
		if err := env.Decode(&tp); err != nil {
			return srv.score(ip, peer.ScoreDecodeFail, "tx decode")
		}
		if err := srv.state.UpsertMempool(tp.Tx); err != nil {
			srv.evHandler("p2p: server: %s: tx rejected: %s", ip, err)
			return srv.score(ip, peer.ScoreInvalidMsg, "rejected tx")
		}
		srv.state.Worker.SignalShareTx(tp.Tx, host)
		srv.state.Worker.SignalStartMining()

	case MsgMempool:
		var mp MempoolPayload
		if err := env.Decode(&mp); err != nil {
			return srv.score(ip, peer.ScoreDecodeFail, "mempool decode")
		}
		if len(mp.Txs) == 0 {
			srv.reply(conn, ip, MsgMempool, MempoolPayload{Txs: srv.state.MempoolCopy()})
			return true
		}
		for _, tx := range mp.Txs {
			if err := srv.state.UpsertMempool(tx); err != nil {
				srv.evHandler("p2p: server: %s: mempool tx rejected: %s", ip, err)
			}
		}

	case MsgInv:
		var inv InvPayload
		if err := env.Decode(&inv); err != nil {
			return srv.score(ip, peer.ScoreDecodeFail, "inv decode")
		}
		if inv.Kind == "block" && srv.hasUnknown(inv.Hashes) {
			srv.state.Worker.SignalSync()
		}

	case MsgBlocks:
		var bp BlocksPayload
		if err := env.Decode(&bp); err != nil {
			return srv.score(ip, peer.ScoreDecodeFail, "blocks decode")
		}
		srv.absorbBlocks(ip, host, bp.Blocks)

	case MsgGetAddr:
		srv.reply(conn, ip, MsgAddr, AddrPayload{Hosts: srv.state.KnownPeerSet().Hosts(srv.host)})

	case MsgAddr:
		var ap AddrPayload
		if err := env.Decode(&ap); err != nil {
			return srv.score(ip, peer.ScoreDecodeFail, "addr decode")
		}
		for _, h := range ap.Hosts {
			srv.state.AddKnownPeer(peer.New(h, peer.DirOutbound))
		}

	case MsgVerack, MsgPong, MsgHeaders:
		// Responses arriving outside a request cycle carry no work.

	default:
		return srv.score(ip, peer.ScoreInvalidMsg, "unexpected message")
	}

	return true
}

// absorbBlocks applies pushed blocks in order, announcing each accepted
// one to the rest of the network. A block that does not extend the chain
// triggers a full sync instead of a penalty, the peer may simply be on a
// fork.
func (srv *Server) absorbBlocks(ip string, host string, blocks []database.Block) {
	for _, b := range blocks {
		if err := srv.state.ProcessPeerBlock(b); err != nil {
			if errors.Is(err, state.ErrChainForked) {
				srv.state.Worker.SignalSync()
				return
			}
			srv.evHandler("p2p: server: %s: block %d rejected: %s", ip, b.Index, err)
			srv.score(ip, peer.ScoreInvalidMsg, "rejected block")
			return
		}
		srv.state.Worker.SignalShareBlock(b, host)
	}
}

// hasUnknown reports whether any of the hashes is absent from the chain.
func (srv *Server) hasUnknown(hashes []string) bool {
	for _, h := range hashes {
		if _, err := srv.state.BlockByHash(h); err != nil {
			return true
		}
	}
	return false
}

// reply writes one envelope, logging failures without penalizing anyone.
func (srv *Server) reply(conn net.Conn, ip string, t MsgType, payload any) {
	env, err := NewEnvelope(t, payload)
	if err != nil {
		srv.evHandler("p2p: server: %s: build %s: ERROR: %s", ip, t, err)
		return
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := WriteEnvelope(conn, env); err != nil {
		srv.evHandler("p2p: server: %s: write %s: ERROR: %s", ip, t, err)
	}
}

// versionPayload builds this node's status for handshakes.
func (srv *Server) versionPayload() VersionPayload {
	latest := srv.state.LatestBlock()

	return VersionPayload{
		Host:       srv.host,
		ChainName:  srv.state.Genesis().ChainName,
		Height:     latest.Index,
		LatestHash: latest.Hash,
		KnownPeers: srv.state.KnownPeerSet().Hosts(srv.host),
	}
}

// scoreReadError maps a read failure onto a misbehavior score. I/O and
// timeout errors drop the connection without penalty. It reports whether
// the connection may continue.
func (srv *Server) scoreReadError(ip string, err error) bool {
	switch {
	case errors.Is(err, ErrFrameTooLarge):
		return srv.score(ip, peer.ScoreOversized, "oversized frame")
	case errors.Is(err, ErrBadChecksum), errors.Is(err, ErrUnknownType):
		return srv.score(ip, peer.ScoreDecodeFail, "malformed envelope")
	default:
		return false
	}
}

// score raises the peer's misbehavior score, reporting false once the peer
// is banned and must be disconnected.
func (srv *Server) score(ip string, points int, reason string) bool {
	banned, err := srv.banList.AddScore(ip, points, reason)
	if err != nil {
		srv.evHandler("p2p: server: banlist: ERROR: %s", err)
	}
	if banned {
		srv.evHandler("p2p: server: %s: BANNED: %s", ip, reason)
		return false
	}

	return true
}

// =============================================================================

// remoteIP strips the port from the connection's remote address.
func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

// clampBlocks trims a block response so its serialized form stays inside
// the frame limit.
func clampBlocks(blocks []database.Block) []database.Block {
	const budget = maxFrameBytes - 4096

	total := 0
	for i, b := range blocks {
		for _, tx := range b.Transactions {
			total += tx.Size()
		}
		total += 512
		if total > budget && i > 0 {
			return blocks[:i]
		}
	}

	return blocks
}
