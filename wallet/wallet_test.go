package wallet

import (
	"context"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/breez/breez-sdk-liquid-core/chain"
	"github.com/breez/breez-sdk-liquid-core/errs"
)

// fakeChainService is a minimal in-memory chain.Service double for wallet
// tests.
type fakeChainService struct {
	tip          uint32
	historyByHex map[string][]chain.HistoryEntry
	utxosByHex   map[string][]chain.Utxo
	broadcasted  []string
}

func newFakeChainService() *fakeChainService {
	return &fakeChainService{
		historyByHex: map[string][]chain.HistoryEntry{},
		utxosByHex:   map[string][]chain.Utxo{},
	}
}

func (f *fakeChainService) Tip(context.Context) (uint32, error) { return f.tip, nil }

func (f *fakeChainService) Broadcast(_ context.Context, txHex string) (string, error) {
	f.broadcasted = append(f.broadcasted, txHex)
	return "txid", nil
}

func (f *fakeChainService) GetTransactions(_ context.Context, txIDs []string) ([]chain.Tx, error) {
	out := make([]chain.Tx, len(txIDs))
	for i, id := range txIDs {
		out[i] = chain.Tx{TxID: id}
	}
	return out, nil
}

func (f *fakeChainService) GetScriptsHistory(_ context.Context, scripts [][]byte) ([][]chain.HistoryEntry, error) {
	out := make([][]chain.HistoryEntry, len(scripts))
	for i, s := range scripts {
		out[i] = f.historyByHex[string(s)]
	}
	return out, nil
}

func (f *fakeChainService) ScriptGetBalance(context.Context, []byte) (chain.ScriptBalance, error) {
	return chain.ScriptBalance{}, nil
}

func (f *fakeChainService) GetScriptUtxos(_ context.Context, script []byte) ([]chain.Utxo, error) {
	return f.utxosByHex[string(script)], nil
}

func (f *fakeChainService) VerifyTx(_ context.Context, _, txID, txHex string, _ bool) (chain.Tx, error) {
	return chain.Tx{TxID: txID, Hex: txHex}, nil
}

func (f *fakeChainService) RecommendedFees(context.Context) (chain.RecommendedFees, error) {
	return chain.RecommendedFees{HourFee: 2}, nil
}

func (f *fakeChainService) IsAvailable(context.Context) bool { return true }

var _ chain.Service = (*fakeChainService)(nil)

func newTestWallet(t *testing.T) (*OnchainWallet, *fakeChainService) {
	t.Helper()
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)
	signer, err := NewSoftwareSignerFromMnemonic(mnemonic, "", &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	cache, err := OpenScanCache(t.TempDir(), testKey())
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	fcs := newFakeChainService()
	return New(signer, cache, fcs, &chaincfg.RegressionNetParams), fcs
}

func TestNextUnusedAddressDeterministicUntilScanAdvances(t *testing.T) {
	w, _ := newTestWallet(t)
	addr1, idx1, err := w.NextUnusedAddress(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 0, idx1)

	addr2, idx2, err := w.NextUnusedAddress(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 0, idx2)
	require.Equal(t, addr1, addr2, "index unchanged until a scan observes activity and advances it")
}

func TestFullScanAdvancesIndexOnActivity(t *testing.T) {
	w, fcs := newTestWallet(t)
	addr, _, err := w.NextUnusedAddress(context.Background())
	require.NoError(t, err)
	script, err := addressScript(addr, &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	fcs.tip = 42
	fcs.historyByHex[string(script)] = []chain.HistoryEntry{{TxID: "deadbeef", Height: 40}}
	fcs.utxosByHex[string(script)] = []chain.Utxo{{TxID: "deadbeef", Vout: 0, Value: 50000, Height: 40}}

	require.NoError(t, w.FullScan(context.Background()))

	require.EqualValues(t, 42, w.Tip())
	require.Len(t, w.Utxos(), 1)
	_, idx, err := w.NextUnusedAddress(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, idx, "index 0 was used, so full_scan must advance past it")
}

func TestBuildTxFailsWithInsufficientFunds(t *testing.T) {
	w, _ := newTestWallet(t)
	_, err := w.BuildTx(context.Background(), 1, "bcrt1qsomeaddress", 100000)
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)
}

func TestBuildTxSucceedsWithEnoughUtxos(t *testing.T) {
	w, fcs := newTestWallet(t)
	addr, _, err := w.NextUnusedAddress(context.Background())
	require.NoError(t, err)
	script, err := addressScript(addr, &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	fcs.historyByHex[string(script)] = []chain.HistoryEntry{{TxID: "deadbeef", Height: 10}}
	fcs.utxosByHex[string(script)] = []chain.Utxo{{TxID: "deadbeef", Vout: 0, Value: 100000, Height: 10}}
	require.NoError(t, w.FullScan(context.Background()))

	signed, err := w.BuildTx(context.Background(), 1, "bcrt1qsomeaddress", 1000)
	require.NoError(t, err)
	require.NotEmpty(t, signed.TxID)
}
