package recover

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/breez/breez-sdk-liquid-core/chain"
	"github.com/breez/breez-sdk-liquid-core/swap"
	"github.com/breez/breez-sdk-liquid-core/swapper"
	"github.com/breez/breez-sdk-liquid-core/wallet"
)

func TestDeriveSendState(t *testing.T) {
	cases := []struct {
		name      string
		rec       recoveredSend
		isExpired bool
		wantState swap.State
		wantOK    bool
	}{
		{"no lockup, not expired", recoveredSend{}, false, 0, false},
		{"no lockup, expired", recoveredSend{}, true, swap.StateFailed, true},
		{"lockup and claim", recoveredSend{lockupTxID: "l", claimTxID: "c"}, false, swap.StateComplete, true},
		{"lockup, confirmed refund", recoveredSend{lockupTxID: "l", refundTxID: "r", refundConf: true}, false, swap.StateFailed, true},
		{"lockup, unconfirmed refund", recoveredSend{lockupTxID: "l", refundTxID: "r", refundConf: false}, false, swap.StateRefundPending, true},
		{"lockup only, not expired", recoveredSend{lockupTxID: "l"}, false, swap.StatePending, true},
		{"lockup only, expired", recoveredSend{lockupTxID: "l"}, true, swap.StateRefundPending, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := deriveSendState(tc.rec, tc.isExpired)
			require.Equal(t, tc.wantOK, ok)
			if ok {
				require.Equal(t, tc.wantState, got)
			}
		})
	}
}

func newTestSend(t *testing.T, lockupAddress string) *swap.Send {
	t.Helper()
	createJSON, err := json.Marshal(struct{ Address string }{Address: lockupAddress})
	require.NoError(t, err)
	preimage := make([]byte, 32)
	hash := sha256.Sum256(preimage)
	return &swap.Send{
		Base: swap.Base{
			ID: "send1", State: swap.StatePending, CreateResponseJSON: createJSON,
			TimeoutBlockHeight: 100,
		},
		PaymentHash: hash[:],
	}
}

func TestRecoverSendAppliesLockupAndClaim(t *testing.T) {
	const addr = "bcrt1qqurswpc8qurswpc8qurswpc8qurswpc8dxm0gk"
	s := newTestSend(t, addr)
	script, err := addressToScript(addr)
	require.NoError(t, err)

	preimage := make([]byte, 32)
	preimage[0] = 7
	hash := sha256.Sum256(preimage)
	s.PaymentHash = hash[:]

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/swap/submarine/send1/preimage", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(struct{ Preimage string }{Preimage: hex.EncodeToString(preimage)})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	cl := swapper.NewClient(srv.URL, "", nil)

	rc := &RecoveryContext{
		TxMap: NewTxMap(map[string]wallet.WalletTx{}),
		LbtcHistory: map[string][]chain.HistoryEntry{
			scriptKey(script): {
				{TxID: "lockup-tx", Height: 10},
				{TxID: "claim-tx", Height: 11},
			},
		},
		LiquidTipHeight: 50,
	}
	rc.TxMap.Outgoing["lockup-tx"] = wallet.WalletTx{TxID: "lockup-tx", NetSats: map[string]int64{"lbtc": -1000}}

	require.NoError(t, RecoverSend(context.Background(), cl, nil, rc, s, false))
	require.Equal(t, "lockup-tx", s.LockupTxID)
	require.Equal(t, swap.StateComplete, s.State)
	require.Equal(t, preimage, s.Preimage)
}

func TestRecoverSendGracePeriodSkipsClearingLockup(t *testing.T) {
	const addr = "bcrt1qqurswpc8qurswpc8qurswpc8qurswpc8dxm0gk"
	s := newTestSend(t, addr)
	s.LockupTxID = "already-broadcast"

	rc := &RecoveryContext{
		TxMap:           NewTxMap(map[string]wallet.WalletTx{}),
		LbtcHistory:     map[string][]chain.HistoryEntry{},
		LiquidTipHeight: 1,
	}

	require.NoError(t, RecoverSend(context.Background(), nil, nil, rc, s, true))
	require.Equal(t, "already-broadcast", s.LockupTxID)
}
