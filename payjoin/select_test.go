package payjoin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUtxoSelectBasic(t *testing.T) {
	sel, ok := utxoSelectBasic(300, []uint64{100, 200, 300, 400})
	require.True(t, ok)
	require.Equal(t, []uint64{100, 200}, sel)

	sel, ok = utxoSelectBasic(300, []uint64{300, 400, 500})
	require.True(t, ok)
	require.Equal(t, []uint64{300}, sel)

	sel, ok = utxoSelectBasic(50, []uint64{100, 200, 300})
	require.True(t, ok)
	require.Equal(t, []uint64{100}, sel)

	sel, ok = utxoSelectBasic(590, []uint64{100, 200, 300})
	require.True(t, ok)
	require.Equal(t, []uint64{100, 200, 300}, sel)

	_, ok = utxoSelectBasic(1000, []uint64{100, 200, 300})
	require.False(t, ok)

	_, ok = utxoSelectBasic(100, nil)
	require.False(t, ok)

	sel, ok = utxoSelectBasic(0, []uint64{100, 200})
	require.True(t, ok)
	require.Empty(t, sel)

	large := uint64(1) << 62
	sel, ok = utxoSelectBasic(large*2, []uint64{large, large, large})
	require.True(t, ok)
	require.Equal(t, []uint64{large, large}, sel)

	sel, ok = utxoSelectBasic(450, []uint64{400, 100, 300, 200})
	require.True(t, ok)
	require.Equal(t, []uint64{400, 100}, sel)

	sel, ok = utxoSelectBasic(1000, []uint64{100, 200, 300, 400})
	require.True(t, ok)
	require.Equal(t, []uint64{100, 200, 300, 400}, sel)
}

func TestUtxoSelectFixed(t *testing.T) {
	utxos := []uint64{100, 200, 300, 400}

	sel, ok := utxoSelectFixed(300, 2, utxos)
	require.True(t, ok)
	require.Equal(t, []uint64{100, 200}, sel)

	_, ok = utxoSelectFixed(150, 1, utxos)
	require.False(t, ok)

	_, ok = utxoSelectFixed(350, 2, utxos)
	require.False(t, ok)

	sel, ok = utxoSelectFixed(300, 1, []uint64{300})
	require.True(t, ok)
	require.Equal(t, []uint64{300}, sel)

	_, ok = utxoSelectFixed(100, 1, nil)
	require.False(t, ok)

	sel, ok = utxoSelectFixed(0, 2, utxos)
	require.True(t, ok)
	require.Equal(t, []uint64{100, 200}, sel)

	_, ok = utxoSelectFixed(100, 0, utxos)
	require.False(t, ok)

	_, ok = utxoSelectFixed(1000, 3, utxos)
	require.False(t, ok)

	sel, ok = utxoSelectFixed(600, 3, utxos)
	require.True(t, ok)
	require.Equal(t, []uint64{100, 200, 300}, sel)

	large := uint64(1) << 63
	sel, ok = utxoSelectFixed(large, 1, []uint64{large, large / 2})
	require.True(t, ok)
	require.Equal(t, []uint64{large}, sel)
}

func TestUtxoSelectBest(t *testing.T) {
	utxos := []uint64{100, 200, 300, 400}

	sel, ok := utxoSelectBest(300, utxos)
	require.True(t, ok)
	require.Equal(t, []uint64{300}, sel)

	sel, ok = utxoSelectBest(450, utxos)
	require.True(t, ok)
	require.Equal(t, uint64(600), sumUint64(sel))

	sel, ok = utxoSelectBest(950, utxos)
	require.True(t, ok)
	require.Equal(t, []uint64{100, 200, 300, 400}, sel)
}

func TestUtxoSelectInRange(t *testing.T) {
	utxos := []uint64{50, 100, 200, 300, 400}

	sel, ok := utxoSelectInRange(300, 0, 0, utxos)
	require.True(t, ok)
	require.Equal(t, []uint64{300}, sel)

	sel, ok = utxoSelectInRange(350, 50, 0, utxos)
	require.True(t, ok)
	require.Equal(t, []uint64{400}, sel)

	sel, ok = utxoSelectInRange(350, 0, 0, utxos)
	require.True(t, ok)
	require.Equal(t, []uint64{300, 50}, sel)

	sel, ok = utxoSelectInRange(250, 0, 2, utxos)
	require.True(t, ok)
	require.Equal(t, []uint64{200, 50}, sel)
}
