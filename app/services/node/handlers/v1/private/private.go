// Package private maintains the group of handlers for node to operator
// access.
package private

import (
	"context"
	"net/http"

	"github.com/gsccoin/blockchain/business/web/errs"
	"github.com/gsccoin/blockchain/foundation/blockchain/database"
	"github.com/gsccoin/blockchain/foundation/blockchain/peer"
	"github.com/gsccoin/blockchain/foundation/blockchain/state"
	"github.com/gsccoin/blockchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of private node endpoints.
type Handlers struct {
	Log     *zap.SugaredLogger
	State   *state.State
	BanList *peer.BanList
}

// Status reports the node's view of the chain for operators.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latest := h.State.LatestBlock()

	resp := struct {
		Host          string `json:"host"`
		Height        uint64 `json:"height"`
		LatestHash    string `json:"latest_hash"`
		Difficulty    int    `json:"difficulty"`
		MempoolLength int    `json:"mempool_length"`
		MiningAllowed bool   `json:"mining_allowed"`
	}{
		Host:          h.State.Host(),
		Height:        latest.Index,
		LatestHash:    latest.Hash,
		Difficulty:    h.State.Difficulty(),
		MempoolLength: h.State.MempoolLength(),
		MiningAllowed: h.State.IsMiningAllowed(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Peers returns the known peer set.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.KnownPeers(), http.StatusOK)
}

// AddPeer registers a peer address and triggers a synchronization pass.
func (h Handlers) AddPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Host string `json:"host" validate:"required"`
	}
	if err := web.Decode(r, &req); err != nil {
		return err
	}

	added := h.State.AddKnownPeer(peer.New(req.Host, peer.DirOutbound))
	if added {
		h.State.Worker.SignalSync()
	}

	resp := struct {
		Host  string `json:"host"`
		Added bool   `json:"added"`
	}{
		Host:  req.Host,
		Added: added,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Bans returns the bans currently in force.
func (h Handlers) Bans(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	bans, err := h.BanList.Active()
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, bans, http.StatusOK)
}

// Unban lifts a ban.
func (h Handlers) Unban(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	host := web.Param(r, "host")

	if err := h.BanList.Unban(host); err != nil {
		return err
	}

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// StartMining turns block production on and signals a mining operation.
func (h Handlers) StartMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.TurnMiningOn()
	h.State.Worker.SignalStartMining()

	return web.Respond(ctx, w, statusResp("mining started"), http.StatusOK)
}

// StopMining turns block production off and cancels any mining in flight.
func (h Handlers) StopMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.TurnMiningOff()
	done := h.State.Worker.SignalCancelMining()
	done()

	return web.Respond(ctx, w, statusResp("mining stopped"), http.StatusOK)
}

// MineManualBlock mines one block at an operator supplied difficulty.
func (h Handlers) MineManualBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Difficulty int `json:"difficulty" validate:"required,gte=1,lte=64"`
	}
	if err := web.Decode(r, &req); err != nil {
		return err
	}

	block, err := h.State.MineManualBlock(ctx, req.Difficulty)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	return web.Respond(ctx, w, block, http.StatusOK)
}

// SetDifficulty changes the difficulty used for new blocks.
func (h Handlers) SetDifficulty(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req struct {
		Difficulty int `json:"difficulty" validate:"required,gte=1,lte=64"`
	}
	if err := web.Decode(r, &req); err != nil {
		return err
	}

	h.State.SetDifficulty(req.Difficulty)

	return web.Respond(ctx, w, statusResp("difficulty updated"), http.StatusOK)
}

// ExportChain returns the full chain.
func (h Handlers) ExportChain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.ExportChain(), http.StatusOK)
}

// ImportChain reconciles an uploaded chain against the local one, the
// same way a chain learned from a peer would be. An import can therefore
// never downgrade the node to a shorter history.
func (h Handlers) ImportChain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var chain []database.Block
	if err := web.Decode(r, &chain); err != nil {
		return err
	}

	changed, err := h.State.Reconcile(ctx, chain)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status  string `json:"status"`
		Changed bool   `json:"changed"`
		Height  uint64 `json:"height"`
	}{
		Status:  "chain reconciled",
		Changed: changed,
		Height:  h.State.Height(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// RepairChain validates the chain and truncates at the first corruption,
// returning surviving transactions to the mempool.
func (h Handlers) RepairChain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	removed, err := h.State.ValidateAndRepairChain()
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status        string `json:"status"`
		BlocksRemoved int    `json:"blocks_removed"`
		Height        uint64 `json:"height"`
	}{
		Status:        "chain validated",
		BlocksRemoved: removed,
		Height:        h.State.Height(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

func statusResp(s string) any {
	return struct {
		Status string `json:"status"`
	}{
		Status: s,
	}
}
