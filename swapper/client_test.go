package swapper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateSendSwap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/swap/submarine", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"swap1","address":"lq1...","expectedAmount":1000,"timeoutBlockHeight":123}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	resp, err := c.CreateSendSwap(context.Background(), CreateSubmarineRequest{Invoice: "lnbc1..."})
	require.NoError(t, err)
	require.Equal(t, "swap1", resp.ID)
	require.EqualValues(t, 1000, resp.ExpectedAmount)
}

func TestDoRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	c.retry.MaxSleep = 0
	pairs, err := c.GetSubmarinePairs(context.Background())
	require.NoError(t, err)
	require.Empty(t, pairs)
	require.GreaterOrEqual(t, attempts, 2)
}

func TestDoReturnsErrorOn4xxWithoutRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	_, err := c.GetSubmarinePairs(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestBroadcastTx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/chain/L-BTC/transaction", r.URL.Path)
		w.Write([]byte(`{"id":"deadbeef"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "apikey", nil)
	txID, err := c.BroadcastTx(context.Background(), "L-BTC", "0200...")
	require.NoError(t, err)
	require.Equal(t, "deadbeef", txID)
}

func TestGetSendClaimTxDetailsDecodesHex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"preimage":"aabb","pubNonce":"ccdd","publicKey":"eeff","transactionHash":"0011"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	details, err := c.GetSendClaimTxDetails(context.Background(), "swap1")
	require.NoError(t, err)
	require.Equal(t, []byte{0xaa, 0xbb}, details.Preimage)
	require.Equal(t, []byte{0xcc, 0xdd}, details.PubNonce)
}
