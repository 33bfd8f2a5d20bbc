package wallet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestScanCacheAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenScanCache(dir, testKey())
	require.NoError(t, err)
	defer c.Close()

	err = c.Append(update{
		TipHeight: 100,
		Txs:       map[string]WalletTx{"abc": {TxID: "abc", Height: 99}},
		Utxos:     map[string]WalletUtxo{"abc:0": {TxID: "abc", Vout: 0, Value: 1000}},
	})
	require.NoError(t, err)

	require.EqualValues(t, 100, c.TipHeight())
	tx, ok := c.TransactionByTxID("abc")
	require.True(t, ok)
	require.EqualValues(t, 99, tx.Height)
	require.Len(t, c.Utxos(), 1)

	c.Close()

	reopened, err := OpenScanCache(dir, testKey())
	require.NoError(t, err)
	defer reopened.Close()

	require.EqualValues(t, 100, reopened.TipHeight())
	_, ok = reopened.TransactionByTxID("abc")
	require.True(t, ok)
}

func TestScanCacheWrongKeyFailsToOpen(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenScanCache(dir, testKey())
	require.NoError(t, err)
	require.NoError(t, c.Append(update{TipHeight: 1, TipOnly: true}))
	c.Close()

	wrongKey := testKey()
	wrongKey[0] ^= 0xFF
	_, err = OpenScanCache(dir, wrongKey)
	require.Error(t, err)
}

func TestScanCacheCompactsConsecutiveTipOnlyUpdates(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenScanCache(dir, testKey())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Append(update{TipHeight: 10, TipOnly: true}))
	require.NoError(t, c.Append(update{TipHeight: 11, TipOnly: true}))
	require.NoError(t, c.Append(update{TipHeight: 12, TipOnly: true}))

	var rowCount int
	require.NoError(t, c.db.QueryRow(`SELECT COUNT(*) FROM wallet_updates`).Scan(&rowCount))
	require.Equal(t, 1, rowCount)
	require.EqualValues(t, 12, c.TipHeight())
}

func TestScanCacheDoesNotCompactAcrossActivity(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenScanCache(dir, testKey())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Append(update{TipHeight: 10, Txs: map[string]WalletTx{"a": {TxID: "a"}}}))
	require.NoError(t, c.Append(update{TipHeight: 11, TipOnly: true}))

	var rowCount int
	require.NoError(t, c.db.QueryRow(`SELECT COUNT(*) FROM wallet_updates`).Scan(&rowCount))
	require.Equal(t, 2, rowCount)
}
