package swapper

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/stretchr/testify/require"
)

// buildTestInvoice assembles a minimal well-formed BOLT11-shaped bech32
// string carrying a single 'r' tagged field, to drive CheckForMRH without
// depending on a full invoice encoder.
func buildTestInvoice(t *testing.T, rFieldBytes []byte) string {
	t.Helper()

	rFieldGroups, err := bech32.ConvertBits(rFieldBytes, 8, 5, true)
	require.NoError(t, err)

	var groups []byte
	groups = append(groups, make([]byte, 7)...) // timestamp placeholder
	groups = append(groups, byte(bolt11TagRoutingHint))
	groups = append(groups, byte(len(rFieldGroups)>>5), byte(len(rFieldGroups)&0x1f))
	groups = append(groups, rFieldGroups...)
	groups = append(groups, make([]byte, 104)...) // signature placeholder

	encoded, err := bech32.EncodeNoLimit("lnbc1", groups)
	require.NoError(t, err)
	return encoded
}

func TestCheckForMRHFindsHint(t *testing.T) {
	script := []byte{0x00, 0x14, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
	payload := EncodeMagicRoutingHint(script, 50000)

	invoice := buildTestInvoice(t, payload)

	hint, err := CheckForMRH(invoice)
	require.NoError(t, err)
	require.NotNil(t, hint)
	require.Equal(t, script, hint.ScriptPubKey)
	require.EqualValues(t, 50000, hint.AmountSat)
}

func TestCheckForMRHReturnsNilWithoutRField(t *testing.T) {
	groups := append(make([]byte, 7), make([]byte, 104)...)
	invoice, err := bech32.EncodeNoLimit("lnbc1", groups)
	require.NoError(t, err)

	hint, err := CheckForMRH(invoice)
	require.NoError(t, err)
	require.Nil(t, hint)
}

func TestCheckForMRHIgnoresOrdinaryRoutingHint(t *testing.T) {
	ordinaryHint := make([]byte, bolt11HopHintBytes)
	ordinaryHint[0] = 0x02 // real compressed pubkey prefix, not the MRH sentinel

	invoice := buildTestInvoice(t, ordinaryHint)

	hint, err := CheckForMRH(invoice)
	require.NoError(t, err)
	require.Nil(t, hint)
}
