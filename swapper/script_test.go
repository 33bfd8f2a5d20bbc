package swapper

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/require"
)

func testPubKey(t *testing.T, seed byte) *btcec.PublicKey {
	t.Helper()
	var buf [32]byte
	buf[31] = seed
	priv, pub := btcec.PrivKeyFromBytes(buf[:])
	_ = priv
	return pub
}

func TestBuildClaimScriptTree(t *testing.T) {
	preimage := []byte("0123456789abcdef0123456789abcdef")[:32]
	hash := sha256.Sum256(preimage)

	internal := testPubKey(t, 1)
	claimKey := testPubKey(t, 2)
	refundKey := testPubKey(t, 3)

	tree, err := BuildClaimScriptTree(internal, claimKey, refundKey, hash[:], 700000)
	require.NoError(t, err)
	require.NotNil(t, tree.OutputKey)
	require.NotEqual(t, internal.SerializeCompressed(), tree.OutputKey.SerializeCompressed())

	ctrl, err := tree.ClaimControlBlock()
	require.NoError(t, err)
	require.NotEmpty(t, ctrl)

	refundCtrl, err := tree.RefundControlBlock()
	require.NoError(t, err)
	require.NotEmpty(t, refundCtrl)
	require.NotEqual(t, ctrl, refundCtrl)
}

func TestBuildClaimScriptRejectsBadHashLength(t *testing.T) {
	_, err := BuildClaimScript([]byte("short"), testPubKey(t, 1))
	require.Error(t, err)
}

func TestVerifyPreimage(t *testing.T) {
	preimage := []byte("0123456789abcdef0123456789abcdef")[:32]
	hash := sha256.Sum256(preimage)
	require.True(t, VerifyPreimage(preimage, hash[:]))
	require.False(t, VerifyPreimage(preimage, make([]byte, 32)))
}

func TestBuildClaimWitnessShape(t *testing.T) {
	var seed [32]byte
	seed[31] = 9
	priv, _ := btcec.PrivKeyFromBytes(seed[:])
	var msg [32]byte
	sig, err := schnorr.Sign(priv, msg[:])
	require.NoError(t, err)

	w := BuildClaimWitness(sig, []byte("preimage"), []byte("script"), []byte("ctrl"))
	require.Len(t, w, 4)
}
