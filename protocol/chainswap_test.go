package protocol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/breez/breez-sdk-liquid-core/errs"
	"github.com/breez/breez-sdk-liquid-core/swap"
	"github.com/breez/breez-sdk-liquid-core/swapper"
)

func TestCreateChainSwapIncomingDoesNotFundLockupItself(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/swap/chain", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chain1",
			"lockupDetails": {"lockupAddress": "btc-lockup-addr", "timeoutBlockHeight": 300, "amount": 100000},
			"claimDetails": {"lockupAddress": "lbtc-claim-addr", "timeoutBlockHeight": 300, "amount": 99000}
		}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b, fcs := newTestBackend(t, srv.URL)
	h := NewChainHandler(b, nil)

	r, err := h.CreateChainSwap(context.Background(), swap.ChainIncoming, 100000)
	require.NoError(t, err)
	require.Equal(t, swap.KindChain, r.Kind)
	require.Equal(t, swap.ChainIncoming, r.Chain.Direction)
	require.Equal(t, "btc-lockup-addr", r.Chain.LockupAddress)
	require.Empty(t, r.Chain.UserLockupTxID, "incoming direction: user funds the BTC lockup externally")
	require.Empty(t, fcs.broadcasted)
}

func TestCreateChainSwapOutgoingFundsLockupFromWallet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/swap/chain", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chain2",
			"lockupDetails": {"lockupAddress": "lbtc-lockup-addr", "timeoutBlockHeight": 300, "amount": 100000},
			"claimDetails": {"lockupAddress": "btc-claim-addr", "timeoutBlockHeight": 300, "amount": 99000}
		}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b, _ := newTestBackend(t, srv.URL)
	h := NewChainHandler(b, nil)

	// No funds in the wallet: the lockup attempt must surface
	// ErrInsufficientFunds rather than silently skip funding.
	_, err := h.CreateChainSwap(context.Background(), swap.ChainOutgoing, 100000)
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)
}

func TestHandleServerLockupSeenRequestsFeeAcceptanceForZeroAmount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/swap/chain/chain1/quote", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"serverLockupAmount": 54321}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b, _ := newTestBackend(t, srv.URL)
	h := NewChainHandler(b, nil)

	r := &swap.Record{Kind: swap.KindChain, Chain: &swap.Chain{
		Base:      swap.Base{ID: "chain1", State: swap.StatePending, PayerAmountSat: 0},
		Direction: swap.ChainOutgoing,
	}}
	require.NoError(t, b.Manager().AddSwap(r))

	require.NoError(t, h.handleServerLockupSeen(context.Background(), r, false))
	require.Equal(t, swap.StateWaitingFeeAcceptance, r.Chain.State)
	require.Equal(t, int64(54321), r.Chain.AcceptedReceiverAmountSat)
}

func TestAcceptProposedFeesRejectsWhenNotWaiting(t *testing.T) {
	b, _ := newTestBackend(t, "")
	h := NewChainHandler(b, nil)

	r := &swap.Record{Kind: swap.KindChain, Chain: &swap.Chain{Base: swap.Base{ID: "chain1", State: swap.StatePending}}}
	err := h.AcceptProposedFees(context.Background(), r)
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrGeneric)
}

func TestHandleClaimConfirmedCompletesSwap(t *testing.T) {
	b, _ := newTestBackend(t, "")
	h := NewChainHandler(b, nil)

	r := &swap.Record{Kind: swap.KindChain, Chain: &swap.Chain{Base: swap.Base{ID: "chain1", State: swap.StatePending}}}
	require.NoError(t, b.Manager().AddSwap(r))

	require.NoError(t, h.handleClaimConfirmed(context.Background(), r))
	require.Equal(t, swap.StateComplete, r.Chain.State)
}

func TestHandleFailureWithNoLockupFailsImmediately(t *testing.T) {
	b, _ := newTestBackend(t, "")
	h := NewChainHandler(b, nil)

	r := &swap.Record{Kind: swap.KindChain, Chain: &swap.Chain{Base: swap.Base{ID: "chain1", State: swap.StatePending}}}
	require.NoError(t, b.Manager().AddSwap(r))

	require.NoError(t, h.handleFailure(context.Background(), r))
	require.Equal(t, swap.StateFailed, r.Chain.State)
}

func TestHandleStatusRejectsNonChainRecord(t *testing.T) {
	b, _ := newTestBackend(t, "")
	h := NewChainHandler(b, nil)

	r := &swap.Record{Kind: swap.KindSend, Send: &swap.Send{Base: swap.Base{ID: "send1"}}}
	err := h.HandleStatus(context.Background(), r, swapper.SwapStatus{Status: "transaction.claimed"})
	require.Error(t, err)
}
