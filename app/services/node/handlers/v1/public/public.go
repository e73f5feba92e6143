// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gsccoin/blockchain/business/web/errs"
	"github.com/gsccoin/blockchain/foundation/blockchain/database"
	"github.com/gsccoin/blockchain/foundation/blockchain/signature"
	"github.com/gsccoin/blockchain/foundation/blockchain/state"
	"github.com/gsccoin/blockchain/foundation/events"
	"github.com/gsccoin/blockchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of public node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.Genesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Info returns a summary of the node and its chain.
func (h Handlers) Info(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latest := h.State.LatestBlock()

	resp := info{
		Host:              h.State.Host(),
		MinerAddress:      h.State.MinerAddress(),
		Height:            latest.Index,
		LatestHash:        latest.Hash,
		Difficulty:        h.State.Difficulty(),
		MempoolLength:     h.State.MempoolLength(),
		KnownPeers:        len(h.State.KnownPeers()),
		CirculatingSupply: h.State.CirculatingSupply(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BlocksByRange returns blocks by index range. The keyword "latest" is
// accepted for either bound.
func (h Handlers) BlocksByRange(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	fromStr := web.Param(r, "from")
	toStr := web.Param(r, "to")

	head := h.State.Height()

	from, err := parseIndex(fromStr, head)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	to, err := parseIndex(toStr, head)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	blocks := h.State.BlocksByRange(from, to)
	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// BlockByHash returns a single block located by its hash.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash := web.Param(r, "hash")

	block, err := h.State.BlockByHash(hash)
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	return web.Respond(ctx, w, block, http.StatusOK)
}

// Balances returns the settled balances, for every address or one.
func (h Handlers) Balances(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	var balances []balance
	switch address {
	case "":
		all := h.State.Balances()
		balances = make([]balance, 0, len(all))
		for addr, bal := range all {
			balances = append(balances, balance{Address: addr, Balance: bal})
		}
		sort.Slice(balances, func(i, j int) bool { return balances[i].Address < balances[j].Address })

	default:
		if !signature.IsAddress(address) {
			return errs.NewTrusted(database.ErrBadAddress, http.StatusBadRequest)
		}
		balances = []balance{{Address: address, Balance: h.State.Balance(address)}}
	}

	resp := balancesResp{
		LatestBlock: h.State.LatestBlock().Hash,
		Uncommitted: h.State.MempoolLength(),
		Balances:    balances,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs := h.State.MempoolCopy()
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].Fee != txs[j].Fee {
			return txs[i].Fee > txs[j].Fee
		}
		return txs[i].Timestamp > txs[j].Timestamp
	})

	return web.Respond(ctx, w, txs, http.StatusOK)
}

// TransactionByID locates a settled transaction and the block it lives in.
func (h Handlers) TransactionByID(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id := web.Param(r, "id")

	tx, block, err := h.State.TransactionByID(id)
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	resp := struct {
		Tx         database.Tx `json:"tx"`
		BlockIndex uint64      `json:"block_index"`
		BlockHash  string      `json:"block_hash"`
	}{
		Tx:         tx,
		BlockIndex: block.Index,
		BlockHash:  block.Hash,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SubmitWalletTransaction adds a new user transaction to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tx database.Tx
	if err := web.Decode(r, &tx); err != nil {
		return err
	}

	h.Log.Infow("add user tran", "traceid", v.TraceID, "tx", tx.ID, "from", tx.Sender, "to", tx.Receiver, "amount", tx.Amount, "fee", tx.Fee)
	if err := h.State.SubmitTx(tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
		TxID   string `json:"tx_id"`
	}{
		Status: "transaction added to mempool",
		TxID:   tx.ID,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// parseIndex resolves a block index parameter, accepting "latest".
func parseIndex(s string, head uint64) (uint64, error) {
	if s == "latest" || s == "" {
		return head, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
