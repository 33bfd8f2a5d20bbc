package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/breez/breez-sdk-liquid-core/swap"
	"github.com/breez/breez-sdk-liquid-core/swapper"
)

func TestRouterDispatchRoutesByKind(t *testing.T) {
	b, _ := newTestBackend(t, "")
	router := NewRouter(b, nil, nil)

	send := &swap.Record{Kind: swap.KindSend, Send: &swap.Send{Base: swap.Base{ID: "send1", State: swap.StatePending}}}
	require.NoError(t, b.Manager().AddSwap(send))
	require.NoError(t, router.Dispatch(context.Background(), send, swapper.SwapStatus{Status: "invoice.failedToPay"}))
	require.Equal(t, swap.StateFailed, send.Send.State)

	chainRec := &swap.Record{Kind: swap.KindChain, Chain: &swap.Chain{Base: swap.Base{ID: "chain1", State: swap.StatePending}}}
	require.NoError(t, b.Manager().AddSwap(chainRec))
	require.NoError(t, router.Dispatch(context.Background(), chainRec, swapper.SwapStatus{Status: "transaction.claimed"}))
	require.Equal(t, swap.StateComplete, chainRec.Chain.State)
}

func TestRouterMRHPaymentRejectsNonReceiveKind(t *testing.T) {
	b, _ := newTestBackend(t, "")
	router := NewRouter(b, nil, nil)

	r := &swap.Record{Kind: swap.KindSend, Send: &swap.Send{Base: swap.Base{ID: "send1"}}}
	err := router.MRHPayment(context.Background(), r, "txid")
	require.Error(t, err)
}

func TestRouterAcceptChainSwapFeesRejectsNonChainKind(t *testing.T) {
	b, _ := newTestBackend(t, "")
	router := NewRouter(b, nil, nil)

	r := &swap.Record{Kind: swap.KindReceive, Receive: &swap.Receive{Base: swap.Base{ID: "recv1"}}}
	err := router.AcceptChainSwapFees(context.Background(), r)
	require.Error(t, err)
}
