package protocol

import (
	"context"
	"fmt"

	"github.com/breez/breez-sdk-liquid-core/persist"
	"github.com/breez/breez-sdk-liquid-core/swap"
	"github.com/breez/breez-sdk-liquid-core/swapper"
)

// Router dispatches a counterparty status update or a status-stream
// message to the kind-specific handler that owns the swap, so callers
// (the sdk Orchestrator's status-stream loop) never switch on swap.Kind
// themselves.
type Router struct {
	send    *SendHandler
	receive *ReceiveHandler
	chain   *ChainHandler
}

// NewRouter builds the three per-kind handlers over a shared Backend and
// wires them into a Router.
func NewRouter(b Backend, payments *persist.Persister, reservations *persist.Persister) *Router {
	return &Router{
		send:    NewSendHandler(b, payments),
		receive: NewReceiveHandler(b, reservations, payments),
		chain:   NewChainHandler(b, payments),
	}
}

// Dispatch routes one status-stream update to the matching handler by the
// swap's own kind, regardless of which kind status.ID happens to belong to.
func (router *Router) Dispatch(ctx context.Context, r *swap.Record, status swapper.SwapStatus) error {
	switch r.Kind {
	case swap.KindSend:
		return router.send.HandleStatus(ctx, r, status)
	case swap.KindReceive:
		return router.receive.HandleStatus(ctx, r, status)
	case swap.KindChain:
		return router.chain.HandleStatus(ctx, r, status)
	default:
		return fmt.Errorf("router: swap %s has unknown kind", r.ID())
	}
}

// MRHPayment routes a direct MRH-address payment observation to the
// Receive handler; only Receive swaps have an MRH fast path.
func (router *Router) MRHPayment(ctx context.Context, r *swap.Record, txID string) error {
	if r.Kind != swap.KindReceive {
		return fmt.Errorf("router: swap %s is not a receive swap, cannot take an MRH payment", r.ID())
	}
	return router.receive.HandleMRHPayment(ctx, r, txID)
}

// AcceptChainSwapFees routes a user's fee-acceptance decision for a
// zero-amount chain swap; only Chain swaps ever reach WaitingFeeAcceptance
// through the zero-amount path (Receive swaps reach it only through the
// amount-mismatch path, which has no accept call to make — the revised
// amount is simply what gets claimed).
func (router *Router) AcceptChainSwapFees(ctx context.Context, r *swap.Record) error {
	if r.Kind != swap.KindChain {
		return fmt.Errorf("router: swap %s is not a chain swap", r.ID())
	}
	return router.chain.AcceptProposedFees(ctx, r)
}

// Send returns the SendHandler, for callers that need to originate a Send
// swap rather than merely dispatch status updates to one.
func (router *Router) Send() *SendHandler { return router.send }

// Receive returns the ReceiveHandler, for callers originating Receive swaps.
func (router *Router) Receive() *ReceiveHandler { return router.receive }

// Chain returns the ChainHandler, for callers originating Chain swaps.
func (router *Router) Chain() *ChainHandler { return router.chain }
