package protocol

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/breez/breez-sdk-liquid-core/chain"
	"github.com/breez/breez-sdk-liquid-core/swap"
	"github.com/breez/breez-sdk-liquid-core/swapper"
	"github.com/breez/breez-sdk-liquid-core/wallet"
)

// fakeChainService is a minimal in-memory chain.Service double, mirroring
// wallet package's own test double (wallet/wallet_test.go).
type fakeChainService struct {
	tip         uint32
	broadcasted []string
}

func (f *fakeChainService) Tip(context.Context) (uint32, error) { return f.tip, nil }
func (f *fakeChainService) Broadcast(_ context.Context, txHex string) (string, error) {
	f.broadcasted = append(f.broadcasted, txHex)
	return "broadcast-txid", nil
}
func (f *fakeChainService) GetTransactions(_ context.Context, txIDs []string) ([]chain.Tx, error) {
	out := make([]chain.Tx, len(txIDs))
	for i, id := range txIDs {
		out[i] = chain.Tx{TxID: id}
	}
	return out, nil
}
func (f *fakeChainService) GetScriptsHistory(_ context.Context, scripts [][]byte) ([][]chain.HistoryEntry, error) {
	return make([][]chain.HistoryEntry, len(scripts)), nil
}
func (f *fakeChainService) ScriptGetBalance(context.Context, []byte) (chain.ScriptBalance, error) {
	return chain.ScriptBalance{}, nil
}
func (f *fakeChainService) GetScriptUtxos(_ context.Context, script []byte) ([]chain.Utxo, error) {
	return nil, nil
}
func (f *fakeChainService) VerifyTx(_ context.Context, _, txID, txHex string, _ bool) (chain.Tx, error) {
	return chain.Tx{TxID: txID, Hex: txHex}, nil
}
func (f *fakeChainService) RecommendedFees(context.Context) (chain.RecommendedFees, error) {
	return chain.RecommendedFees{HourFee: 2}, nil
}
func (f *fakeChainService) IsAvailable(context.Context) bool { return true }

var _ chain.Service = (*fakeChainService)(nil)

// testKey is a fixed 32-byte scan-cache encryption key for tests.
func testKey() [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

// newTestWallet builds a real OnchainWallet over a fake chain.Service, the
// only way to exercise Backend.Wallet() since it returns the concrete type.
func newTestWallet(t *testing.T) (*wallet.OnchainWallet, *fakeChainService) {
	t.Helper()
	mnemonic, err := wallet.GenerateMnemonic()
	require.NoError(t, err)
	signer, err := wallet.NewSoftwareSignerFromMnemonic(mnemonic, "", &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	cache, err := wallet.OpenScanCache(t.TempDir(), testKey())
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	fcs := &fakeChainService{}
	return wallet.New(signer, cache, fcs, &chaincfg.RegressionNetParams), fcs
}

// testBackend wires a real wallet (over a fake chain service), a real
// in-memory swap.Manager, and a real swapper.Client pointed at whatever
// httptest server the calling test supplies (or "" if the test never
// calls Swapper()).
type testBackend struct {
	w         *wallet.OnchainWallet
	sw        *swapper.Client
	mgr       swap.Manager
	events    *swap.EventBus
	btcChain  chain.Service
	lbtcChain chain.Service
	params    *chaincfg.Params
}

func newTestBackend(t *testing.T, swapperBaseURL string) (*testBackend, *fakeChainService) {
	t.Helper()
	w, fcs := newTestWallet(t)
	events := swap.NewEventBus()
	mgr, err := swap.NewManager(newFakeSwapDB(), events)
	require.NoError(t, err)

	return &testBackend{
		w:         w,
		sw:        swapper.NewClient(swapperBaseURL, "", nil),
		mgr:       mgr,
		events:    events,
		btcChain:  fcs,
		lbtcChain: fcs,
		params:    &chaincfg.RegressionNetParams,
	}, fcs
}

func (b *testBackend) Wallet() *wallet.OnchainWallet       { return b.w }
func (b *testBackend) Swapper() *swapper.Client            { return b.sw }
func (b *testBackend) StatusStream() *swapper.StatusStream { return nil }
func (b *testBackend) Manager() swap.Manager               { return b.mgr }
func (b *testBackend) Events() *swap.EventBus              { return b.events }
func (b *testBackend) Params() *chaincfg.Params            { return b.params }
func (b *testBackend) ChainService(asset chain.Asset) chain.Service {
	if asset == chain.AssetBTC {
		return b.btcChain
	}
	return b.lbtcChain
}

var _ Backend = (*testBackend)(nil)

// fakeSwapDB is an in-memory swap.Database double, analogous to swap
// package's own fakeDB (swap/manager_test.go).
type fakeSwapDB struct {
	rows map[string]*swap.Record
}

func newFakeSwapDB() *fakeSwapDB { return &fakeSwapDB{rows: make(map[string]*swap.Record)} }

func (f *fakeSwapDB) PutSwap(r *swap.Record) error {
	f.rows[r.ID()] = r
	return nil
}

func (f *fakeSwapDB) GetAllSwaps() ([]*swap.Record, error) {
	out := make([]*swap.Record, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, nil
}
