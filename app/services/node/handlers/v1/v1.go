// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quorumchain/node/app/services/node/handlers/v1/private"
	"github.com/quorumchain/node/app/services/node/handlers/v1/public"
	"github.com/quorumchain/node/foundation/blockchain/state"
	"github.com/quorumchain/node/foundation/events"
	"github.com/quorumchain/node/foundation/nameservice"
	"github.com/quorumchain/node/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log         *zap.SugaredLogger
	State       *state.State
	NS          *nameservice.NameService
	Evts        *events.Events
	ProposeWait time.Duration
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		WS:    websocket.Upgrader{},
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis/list", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/node/status", pbl.Status)
	app.Handle(http.MethodGet, version, "/engine/stats", pbl.EngineStats)
	app.Handle(http.MethodGet, version, "/blocks/hash/:hash", pbl.BlockByHash)
	app.Handle(http.MethodGet, version, "/blocks/list/:from/:to", pbl.BlocksByHeight)
	app.Handle(http.MethodGet, version, "/unclaimed/list", pbl.Unclaimed)
	app.Handle(http.MethodGet, version, "/unclaimed/list/:user", pbl.Unclaimed)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list", pbl.Mempool)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitWalletTransaction)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:         cfg.Log,
		State:       cfg.State,
		ProposeWait: cfg.ProposeWait,
	}

	app.Handle(http.MethodPost, version, "/node/propose", prv.ProposeBlock)
	app.Handle(http.MethodGet, version, "/node/peers", prv.Peers)
	app.Handle(http.MethodPost, version, "/node/peers", prv.AddPeer)
}
