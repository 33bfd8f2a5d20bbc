package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func TestGenerateMnemonicIsValid(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)
	require.NotEmpty(t, mnemonic)

	_, err = NewSoftwareSignerFromMnemonic(mnemonic, "", &chaincfg.RegressionNetParams)
	require.NoError(t, err)
}

func TestNewSoftwareSignerFromMnemonicRejectsInvalid(t *testing.T) {
	_, err := NewSoftwareSignerFromMnemonic("not a real mnemonic at all", "", &chaincfg.RegressionNetParams)
	require.Error(t, err)
}

func TestDeriveScanCacheKeyIsDeterministicAndDistinctFromSigner(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)

	k1, err := DeriveScanCacheKey(mnemonic, "")
	require.NoError(t, err)
	k2, err := DeriveScanCacheKey(mnemonic, "")
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	otherPassphrase, err := DeriveScanCacheKey(mnemonic, "different")
	require.NoError(t, err)
	require.NotEqual(t, k1, otherPassphrase)
}

func TestDeriveScanCacheKeyRejectsInvalidMnemonic(t *testing.T) {
	_, err := DeriveScanCacheKey("not a real mnemonic at all", "")
	require.Error(t, err)
}

func TestDeriveBIP32KeyIsDeterministic(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)

	s1, err := NewSoftwareSignerFromMnemonic(mnemonic, "", &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	s2, err := NewSoftwareSignerFromMnemonic(mnemonic, "", &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	path := []uint32{0x80000000 + 1, 5, 7}
	k1, err := s1.DeriveBIP32Key(path)
	require.NoError(t, err)
	k2, err := s2.DeriveBIP32Key(path)
	require.NoError(t, err)

	require.Equal(t, k1.Serialize(), k2.Serialize())
}

func TestPrivateKeyAtDistinctIndices(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)
	s, err := NewSoftwareSignerFromMnemonic(mnemonic, "", &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	k0, err := s.PrivateKeyAt(0, 0)
	require.NoError(t, err)
	k1, err := s.PrivateKeyAt(0, 1)
	require.NoError(t, err)

	require.NotEqual(t, k0.Serialize(), k1.Serialize())
}

func TestFingerprintStable(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)
	s, err := NewSoftwareSignerFromMnemonic(mnemonic, "", &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	fp1, err := s.Fingerprint()
	require.NoError(t, err)
	fp2, err := s.Fingerprint()
	require.NoError(t, err)
	require.Equal(t, fp1, fp2)
}
