// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quorumchain/node/business/sys/validate"
	v1 "github.com/quorumchain/node/business/web/v1"
	"github.com/quorumchain/node/foundation/blockchain/database"
	"github.com/quorumchain/node/foundation/blockchain/state"
	"github.com/quorumchain/node/foundation/blockchain/storage"
	"github.com/quorumchain/node/foundation/events"
	"github.com/quorumchain/node/foundation/nameservice"
	"github.com/quorumchain/node/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of public node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client. The topics
// query parameter limits the stream to the listed parts of the node.
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

	// A client narrows the stream with ?topics=consensus,scheduler.
	topics := events.ParseTopics(r.URL.Query().Get("topics"))
	h.Log.Infow("events subscribed", "traceid", v.TraceID, "topics", topics)

	ch := h.Evts.Acquire(v.TraceID, topics...)
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
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitWalletTransaction adds new user transactions to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tran database.SignedTx
	if err := web.Decode(r, &tran); err != nil {
		return v1.NewRequestError(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(tran); err != nil {
		return err
	}

	h.Log.Infow("add user tran", "traceid", v.TraceID, "tx", tran, "inputs", len(tran.Inputs), "outputs", len(tran.Outputs))
	if err := h.State.UpsertWalletTransaction(tran); err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
		ID     string `json:"id"`
	}{
		Status: "transaction added to mempool",
		ID:     tran.ID(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Genesis(), http.StatusOK)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	status, err := h.State.Status()
	if err != nil {
		return err
	}

	ns := nodeStatus{
		Status:      status,
		NodeName:    h.NS.LookupNode(h.State.NodeID()),
		Host:        h.State.Host(),
		Uncommitted: h.State.QueryMempoolLength(),
		Proposer:    h.State.ProposerStatus(),
	}

	return web.Respond(ctx, w, ns, http.StatusOK)
}

// EngineStats returns the counters of every task engine worker.
func (h Handlers) EngineStats(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	stats := engineStats{
		Workers: h.State.EngineStats(),
	}

	return web.Respond(ctx, w, stats, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	mempool := h.State.QueryMempool()

	trans := make([]tx, len(mempool))
	for i, tran := range mempool {
		trans[i] = h.toTx(tran)
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// BlockByHash returns the block with the specified hash.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blk, err := h.State.QueryBlockByHash(web.Param(r, "hash"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return v1.NewRequestError(err, http.StatusNotFound)
		}
		return err
	}

	return web.Respond(ctx, w, h.toBlock(blk), http.StatusOK)
}

// BlocksByHeight returns all the blocks based on the specified from/to values.
func (h Handlers) BlocksByHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := height(web.Param(r, "from"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	to, err := height(web.Param(r, "to"))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	if from > to {
		return v1.NewRequestError(errors.New("from greater than to"), http.StatusBadRequest)
	}

	dbBlocks, err := h.State.QueryBlocksByHeight(from, to)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return v1.NewRequestError(err, http.StatusNotFound)
		}
		return err
	}

	blocks := make([]block, len(dbBlocks))
	for i, blk := range dbBlocks {
		blocks[i] = h.toBlock(blk)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Unclaimed returns the unclaimed records, optionally for one user.
func (h Handlers) Unclaimed(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var user database.AccountID
	if param := web.Param(r, "user"); param != "" {
		var err error
		if user, err = database.ToAccountID(param); err != nil {
			return v1.NewRequestError(err, http.StatusBadRequest)
		}
	}

	records, err := h.State.QueryUnclaimed(user)
	if err != nil {
		return err
	}

	out := make([]unclaimed, len(records))
	for i, u := range records {
		out[i] = unclaimed{
			Key:        u.Key(),
			SourceHash: u.SourceHash,
			Index:      u.Index,
			User:       u.User,
			UserName:   h.NS.Lookup(u.User),
			Product:    u.Product,
		}
	}

	return web.Respond(ctx, w, out, http.StatusOK)
}

// =============================================================================

func (h Handlers) toTx(tran database.SignedTx) tx {
	outs := make([]output, len(tran.Outputs))
	for i, out := range tran.Outputs {
		outs[i] = output{
			User:     out.User,
			UserName: h.NS.Lookup(out.User),
			Product:  out.Product,
		}
	}

	t := tx{
		ID:        tran.ID(),
		Nonce:     tran.Nonce,
		Inputs:    tran.Inputs,
		Outputs:   outs,
		TimeStamp: tran.TimeStamp,
		Signature: tran.Signature,
	}

	if from, err := tran.FromAccount(); err == nil {
		t.From = from
		t.FromName = h.NS.Lookup(from)
	}

	return t
}

func (h Handlers) toBlock(blk database.Block) block {
	trans := make([]tx, len(blk.Trans))
	for i, tran := range blk.Trans {
		trans[i] = h.toTx(tran)
	}

	return block{
		Hash:          blk.Hash(),
		PrevBlockHash: blk.Header.PrevBlockHash,
		Height:        blk.Header.Height,
		TimeStamp:     blk.Header.TimeStamp,
		ProposerID:    blk.Header.ProposerID,
		ProposerName:  h.NS.LookupNode(blk.Header.ProposerID),
		TransRoot:     blk.Header.TransRoot,
		Transactions:  trans,
	}
}

// height parses a block height where latest or empty means the head.
func height(s string) (uint64, error) {
	if s == "latest" || s == "" {
		return state.QueryLatest, nil
	}

	return strconv.ParseUint(s, 10, 64)
}
