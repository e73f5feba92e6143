// Package peer maintains the peer related information such as the set
// of known peers, their status and their standing.
package peer

import (
	"sync"
	"time"
)

// Direction identifies which side opened the connection to a peer.
const (
	DirInbound  = "inbound"
	DirOutbound = "outbound"
)

// Peer represents information about a node in the network.
type Peer struct {
	Host      string    `json:"host"`
	Direction string    `json:"direction"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	MsgsIn    uint64    `json:"msgs_in"`
	MsgsOut   uint64    `json:"msgs_out"`
	LastPing  int64     `json:"last_ping_ms"`
}

// New constructs a new peer value.
func New(host string, direction string) Peer {
	now := time.Now().UTC()
	return Peer{
		Host:      host,
		Direction: direction,
		FirstSeen: now,
		LastSeen:  now,
	}
}

// Match validates if the specified host matches this peer.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// PeerStatus represents information about the status of any given peer,
// exchanged during the version handshake and on status queries.
type PeerStatus struct {
	LatestBlockHash   string   `json:"latest_block_hash"`
	LatestBlockNumber uint64   `json:"latest_block_number"`
	KnownPeers        []string `json:"known_peers"`
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known peers.
type PeerSet struct {
	mu  sync.RWMutex
	set map[string]Peer
}

// NewPeerSet constructs a new set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[string]Peer),
	}
}

// Add adds a new peer to the set, reporting whether it was unknown.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[peer.Host]; exists {
		return false
	}

	ps.set[peer.Host] = peer
	return true
}

// Remove removes a peer from the set.
func (ps *PeerSet) Remove(host string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, host)
}

// Count returns the number of known peers.
func (ps *PeerSet) Count() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.set)
}

// Touch updates the peer's activity counters. in and out are the message
// deltas since the last touch, ping the latest round trip in milliseconds
// or -1 to leave it unchanged.
func (ps *PeerSet) Touch(host string, in uint64, out uint64, ping int64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	p, exists := ps.set[host]
	if !exists {
		return
	}

	p.LastSeen = time.Now().UTC()
	p.MsgsIn += in
	p.MsgsOut += out
	if ping >= 0 {
		p.LastPing = ping
	}
	ps.set[host] = p
}

// Copy returns a list of the known peers, excluding the specified host.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	peers := make([]Peer, 0, len(ps.set))
	for _, peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	return peers
}

// Hosts returns the known peer addresses, excluding the specified host.
func (ps *PeerSet) Hosts(host string) []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	hosts := make([]string, 0, len(ps.set))
	for _, peer := range ps.set {
		if !peer.Match(host) {
			hosts = append(hosts, peer.Host)
		}
	}

	return hosts
}
