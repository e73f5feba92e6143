// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/gsccoin/blockchain/app/services/node/handlers/v1/private"
	"github.com/gsccoin/blockchain/app/services/node/handlers/v1/public"
	"github.com/gsccoin/blockchain/foundation/blockchain/peer"
	"github.com/gsccoin/blockchain/foundation/blockchain/state"
	"github.com/gsccoin/blockchain/foundation/events"
	"github.com/gsccoin/blockchain/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log     *zap.SugaredLogger
	State   *state.State
	BanList *peer.BanList
	Evts    *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis/list", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/node/info", pbl.Info)
	app.Handle(http.MethodGet, version, "/blocks/list/:from/:to", pbl.BlocksByRange)
	app.Handle(http.MethodGet, version, "/blocks/hash/:hash", pbl.BlockByHash)
	app.Handle(http.MethodGet, version, "/balances/list", pbl.Balances)
	app.Handle(http.MethodGet, version, "/balances/list/:address", pbl.Balances)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list", pbl.Mempool)
	app.Handle(http.MethodGet, version, "/tx/:id", pbl.TransactionByID)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitWalletTransaction)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:     cfg.Log,
		State:   cfg.State,
		BanList: cfg.BanList,
	}

	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodGet, version, "/node/peers", prv.Peers)
	app.Handle(http.MethodPost, version, "/node/peers", prv.AddPeer)
	app.Handle(http.MethodGet, version, "/node/bans", prv.Bans)
	app.Handle(http.MethodDelete, version, "/node/bans/:host", prv.Unban)
	app.Handle(http.MethodPost, version, "/node/mining/start", prv.StartMining)
	app.Handle(http.MethodPost, version, "/node/mining/stop", prv.StopMining)
	app.Handle(http.MethodPost, version, "/node/mining/manual", prv.MineManualBlock)
	app.Handle(http.MethodPost, version, "/node/difficulty", prv.SetDifficulty)
	app.Handle(http.MethodGet, version, "/node/chain/export", prv.ExportChain)
	app.Handle(http.MethodPost, version, "/node/chain/import", prv.ImportChain)
	app.Handle(http.MethodPost, version, "/node/chain/repair", prv.RepairChain)
}
