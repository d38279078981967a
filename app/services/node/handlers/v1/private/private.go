// Package private maintains the group of handlers for operator access.
package private

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/quorumchain/node/business/sys/validate"
	v1 "github.com/quorumchain/node/business/web/v1"
	"github.com/quorumchain/node/foundation/blockchain/consensus"
	"github.com/quorumchain/node/foundation/blockchain/peer"
	"github.com/quorumchain/node/foundation/blockchain/state"
	"github.com/quorumchain/node/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of operator endpoints.
type Handlers struct {
	Log         *zap.SugaredLogger
	State       *state.State
	ProposeWait time.Duration
}

// ProposeBlock builds a block from the mempool and runs a consensus round
// for it. The call returns when the round ends.
func (h Handlers) ProposeBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	if h.ProposeWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.ProposeWait)
		defer cancel()
	}

	h.Log.Infow("propose block", "traceid", v.TraceID)

	block, err := h.State.ProposeBlock(ctx)
	if err != nil {
		switch {
		case errors.Is(err, state.ErrNoTransactions):
			return v1.NewRequestError(err, http.StatusBadRequest)
		case errors.Is(err, consensus.ErrAlreadyActive):
			return v1.NewRequestError(err, http.StatusConflict)
		case errors.Is(err, consensus.ErrPhaseTimedOut),
			errors.Is(err, consensus.ErrPhaseRejected),
			errors.Is(err, consensus.ErrRoundAborted):
			return v1.NewRequestError(err, http.StatusNotAcceptable)
		}
		return fmt.Errorf("propose: %w", err)
	}

	resp := struct {
		Status string `json:"status"`
		Hash   string `json:"hash"`
		Height uint64 `json:"height"`
		Trans  int    `json:"trans"`
	}{
		Status: "committed",
		Hash:   block.Hash(),
		Height: block.Header.Height,
		Trans:  len(block.Trans),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// AddPeer adds a node to the known peers.
func (h Handlers) AddPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var p struct {
		Host string `json:"host" validate:"required,hostname_port"`
	}
	if err := web.Decode(r, &p); err != nil {
		return v1.NewRequestError(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(p); err != nil {
		return err
	}

	added := h.State.AddKnownPeer(peer.New(p.Host))

	resp := struct {
		Added bool `json:"added"`
	}{
		Added: added,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Peers returns the known peers.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.KnownPeers(), http.StatusOK)
}
