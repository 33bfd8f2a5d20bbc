package protocol

import (
	"context"
	"crypto/sha256"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/stretchr/testify/require"

	"github.com/breez/breez-sdk-liquid-core/errs"
	"github.com/breez/breez-sdk-liquid-core/swap"
	"github.com/breez/breez-sdk-liquid-core/swapper"
)

// buildTestInvoice assembles a minimal BOLT11-shaped bech32 string carrying
// only a payment-hash tagged field, mirroring swapper's own test invoice
// builders.
func buildTestInvoice(t *testing.T, hash [32]byte) string {
	t.Helper()
	const bolt11TagPaymentHash = 1

	pFieldGroups, err := bech32.ConvertBits(hash[:], 8, 5, true)
	require.NoError(t, err)

	var groups []byte
	groups = append(groups, make([]byte, 7)...)
	groups = append(groups, byte(bolt11TagPaymentHash))
	groups = append(groups, byte(len(pFieldGroups)>>5), byte(len(pFieldGroups)&0x1f))
	groups = append(groups, pFieldGroups...)
	groups = append(groups, make([]byte, 104)...)

	encoded, err := bech32.EncodeNoLimit("lnbc1", groups)
	require.NoError(t, err)
	return encoded
}

func TestCreateSendSwapRegistersSwap(t *testing.T) {
	var hash [32]byte
	for i := range hash {
		hash[i] = byte(i + 1)
	}
	invoice := buildTestInvoice(t, hash)

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/swap/submarine", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "send1",
			"address": "addr",
			"expectedAmount": 50000,
			"timeoutBlockHeight": 300
		}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b, _ := newTestBackend(t, srv.URL)
	h := NewSendHandler(b, nil)

	r, err := h.CreateSendSwap(context.Background(), invoice)
	require.NoError(t, err)
	require.Equal(t, swap.KindSend, r.Kind)
	require.Equal(t, "send1", r.Send.ID)
	require.Equal(t, swap.StateCreated, r.Send.State)
	require.Equal(t, invoice, r.Send.Invoice)
	require.Equal(t, hash[:], r.Send.PaymentHash)
	require.NotEmpty(t, r.Send.RefundPrivateKey)
	require.True(t, b.Manager().HasOngoingSwap("send1"))
}

func newSendRecord(t *testing.T, state swap.State, address string, expectedAmount int64) *swap.Record {
	t.Helper()
	preimage := make([]byte, 32)
	for i := range preimage {
		preimage[i] = byte(i)
	}
	hash := sha256.Sum256(preimage)

	createJSON, err := marshalCreateResponse(struct {
		Address        string
		ExpectedAmount int64
	}{Address: address, ExpectedAmount: expectedAmount})
	require.NoError(t, err)

	return &swap.Record{Kind: swap.KindSend, Send: &swap.Send{
		Base: swap.Base{
			ID: "send1", State: state, CreateResponseJSON: createJSON,
			TimeoutBlockHeight: 100,
		},
		PaymentHash: hash[:],
	}}
}

func TestHandleInvoiceSetFailsOnInsufficientFunds(t *testing.T) {
	b, _ := newTestBackend(t, "")
	h := NewSendHandler(b, nil)

	r := newSendRecord(t, swap.StateCreated, "bcrt1qplaceholderaddress00000000000000000", 50000)
	require.NoError(t, b.Manager().AddSwap(r))

	err := h.handleInvoiceSet(context.Background(), r)
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)
}

func TestHandleInvoiceSetNoopsWhenLockupAlreadyBroadcast(t *testing.T) {
	b, _ := newTestBackend(t, "")
	h := NewSendHandler(b, nil)

	r := newSendRecord(t, swap.StatePending, "addr", 50000)
	r.Send.LockupTxID = "already-sent"

	require.NoError(t, h.handleInvoiceSet(context.Background(), r))
	require.Equal(t, "already-sent", r.Send.LockupTxID)
}

func TestHandleClaimPendingVerifiesPreimageAndCompletes(t *testing.T) {
	preimage := make([]byte, 32)
	for i := range preimage {
		preimage[i] = byte(i)
	}
	hash := sha256.Sum256(preimage)

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/swap/submarine/send1/claim", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"preimage":"` + encodeHexForTest(preimage) + `","pubNonce":"","publicKey":"","transactionHash":"` + encodeHexForTest(hash[:]) + `"}`))
		case http.MethodPost:
			w.WriteHeader(http.StatusOK)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b, _ := newTestBackend(t, srv.URL)
	h := NewSendHandler(b, nil)

	r := &swap.Record{Kind: swap.KindSend, Send: &swap.Send{
		Base:        swap.Base{ID: "send1", State: swap.StatePending},
		PaymentHash: hash[:],
	}}
	require.NoError(t, b.Manager().AddSwap(r))

	require.NoError(t, h.handleClaimPending(context.Background(), r))
	require.Equal(t, swap.StateComplete, r.Send.State)
	require.Equal(t, preimage, r.Send.Preimage)
}

func TestHandleClaimPendingRejectsMismatchedPreimage(t *testing.T) {
	wrongPreimage := make([]byte, 32)
	wrongPreimage[0] = 0xff
	otherHash := sha256.Sum256(make([]byte, 32))

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/swap/submarine/send1/claim", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"preimage":"` + encodeHexForTest(wrongPreimage) + `","pubNonce":"","publicKey":"","transactionHash":""}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b, _ := newTestBackend(t, srv.URL)
	h := NewSendHandler(b, nil)

	r := &swap.Record{Kind: swap.KindSend, Send: &swap.Send{
		Base:        swap.Base{ID: "send1", State: swap.StatePending},
		PaymentHash: otherHash[:],
	}}
	require.NoError(t, b.Manager().AddSwap(r))

	err := h.handleClaimPending(context.Background(), r)
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrInvalidPreimage)
}

func TestHandleFailureWithNoLockupGoesStraightToFailed(t *testing.T) {
	b, _ := newTestBackend(t, "")
	h := NewSendHandler(b, nil)

	r := &swap.Record{Kind: swap.KindSend, Send: &swap.Send{Base: swap.Base{ID: "send1", State: swap.StateCreated}}}
	require.NoError(t, b.Manager().AddSwap(r))

	require.NoError(t, h.handleFailure(context.Background(), r))
	require.Equal(t, swap.StateFailed, r.Send.State)
}

func TestHandleStatusRejectsWrongKind(t *testing.T) {
	b, _ := newTestBackend(t, "")
	h := NewSendHandler(b, nil)

	r := &swap.Record{Kind: swap.KindReceive, Receive: &swap.Receive{Base: swap.Base{ID: "r1"}}}
	err := h.HandleStatus(context.Background(), r, swapper.SwapStatus{Status: "invoice.set"})
	require.Error(t, err)
}

func TestVerifyPaymentHash(t *testing.T) {
	preimage := make([]byte, 32)
	preimage[0] = 7
	hash := sha256.Sum256(preimage)

	require.True(t, verifyPaymentHash(preimage, hash[:]))
	require.False(t, verifyPaymentHash(preimage, make([]byte, 32)))
	require.False(t, verifyPaymentHash(preimage[:16], hash[:]))
}

func encodeHexForTest(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = digits[v>>4]
		out[i*2+1] = digits[v&0xf]
	}
	return string(out)
}
