package protocol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/breez/breez-sdk-liquid-core/persist"
	"github.com/breez/breez-sdk-liquid-core/swap"
)

func newTestPersister(t *testing.T) *persist.Persister {
	t.Helper()
	p, err := persist.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestCreateReceiveSwapRegistersSwap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/swap/reverse", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "recv1",
			"invoice": "lnbc1pexampleinvoice",
			"lockupAddress": "addr",
			"onchainAmount": 99000,
			"timeoutBlockHeight": 200,
			"refundPublicKey": "02aa"
		}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b, _ := newTestBackend(t, srv.URL)
	reservations := newTestPersister(t)
	h := NewReceiveHandler(b, reservations, nil)

	r, err := h.CreateReceiveSwap(context.Background(), 100000, 200)
	require.NoError(t, err)
	require.Equal(t, swap.KindReceive, r.Kind)
	require.Equal(t, "recv1", r.Receive.ID)
	require.Equal(t, swap.StateCreated, r.Receive.State)
	require.Equal(t, int64(200), r.Receive.ClaimFeesSat)
	require.True(t, b.Manager().HasOngoingSwap("recv1"))
}

func TestHandleMRHPaymentCompletesSwapDirectly(t *testing.T) {
	b, _ := newTestBackend(t, "")
	h := NewReceiveHandler(b, nil, nil)

	r := &swap.Record{Kind: swap.KindReceive, Receive: &swap.Receive{Base: swap.Base{ID: "recv1", State: swap.StatePending}}}
	require.NoError(t, b.Manager().AddSwap(r))

	require.NoError(t, h.HandleMRHPayment(context.Background(), r, "mrh-tx"))
	require.Equal(t, swap.StateComplete, r.Receive.State)
	require.Equal(t, "mrh-tx", r.Receive.MrhTxID)
}

func TestHandleMRHPaymentIsIdempotent(t *testing.T) {
	b, _ := newTestBackend(t, "")
	h := NewReceiveHandler(b, nil, nil)

	r := &swap.Record{Kind: swap.KindReceive, Receive: &swap.Receive{
		Base: swap.Base{ID: "recv1", State: swap.StateComplete}, ClaimTxID: "already-claimed",
	}}

	require.NoError(t, h.HandleMRHPayment(context.Background(), r, "mrh-tx"))
	require.Empty(t, r.Receive.MrhTxID)
}

func TestHandleExpiredFailsNonTerminalSwap(t *testing.T) {
	b, _ := newTestBackend(t, "")
	h := NewReceiveHandler(b, nil, nil)

	r := &swap.Record{Kind: swap.KindReceive, Receive: &swap.Receive{Base: swap.Base{ID: "recv1", State: swap.StateCreated}}}
	require.NoError(t, b.Manager().AddSwap(r))

	require.NoError(t, h.handleExpired(context.Background(), r))
	require.Equal(t, swap.StateFailed, r.Receive.State)
}

func TestHandleExpiredNoopsOnTerminalSwap(t *testing.T) {
	b, _ := newTestBackend(t, "")
	h := NewReceiveHandler(b, nil, nil)

	r := &swap.Record{Kind: swap.KindReceive, Receive: &swap.Receive{Base: swap.Base{ID: "recv1", State: swap.StateComplete}}}
	require.NoError(t, h.handleExpired(context.Background(), r))
	require.Equal(t, swap.StateComplete, r.Receive.State)
}
