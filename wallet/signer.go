package wallet

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"

	"github.com/breez/breez-sdk-liquid-core/errs"
)

// scanCacheHKDFInfo domain-separates the scan-cache encryption key from
// every other secret derived off the same mnemonic seed.
const scanCacheHKDFInfo = "breez-sdk-liquid-core/wallet-scan-cache"

// DeriveScanCacheKey derives the 32-byte key ScanCache's AES-GCM encryption
// uses straight from the mnemonic, via HKDF over the BIP39 seed rather than
// through the BIP32 key tree, so the cache can be opened before any
// SoftwareSigner instance exists.
func DeriveScanCacheKey(mnemonic, passphrase string) ([32]byte, error) {
	var key [32]byte
	if !bip39.IsMnemonicValid(mnemonic) {
		return key, fmt.Errorf("%w: invalid mnemonic", errs.ErrSigner)
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	reader := hkdf.New(sha256.New, seed, nil, []byte(scanCacheHKDFInfo))
	if _, err := io.ReadFull(reader, key[:]); err != nil {
		return key, fmt.Errorf("%w: deriving scan cache key: %s", errs.ErrSigner, err)
	}
	return key, nil
}

// Liquid's own coin type registered with SLIP-44.
const liquidCoinType = 1776

// liquidAccountPurpose is BIP84-like (native segwit equivalent on Elements);
// Liquid has no registered Taproot purpose in wide use yet, so descriptor
// wallets and this signer both derive under the segwit purpose.
const liquidAccountPurpose = hdkeychain.HardenedKeyStart + 84

// SoftwareSigner derives and holds the wallet's single signing key tree in
// memory: OnchainWallet builds transactions, this signs and finalizes
// them.
type SoftwareSigner struct {
	params     *chaincfg.Params
	masterKey  *hdkeychain.ExtendedKey
	accountKey *hdkeychain.ExtendedKey
}

// NewSoftwareSignerFromMnemonic derives the signer's master key from a BIP39
// mnemonic (optionally passphrase-protected).
func NewSoftwareSignerFromMnemonic(mnemonic, passphrase string, params *chaincfg.Params) (*SoftwareSigner, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("%w: invalid mnemonic", errs.ErrSigner)
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return newSoftwareSignerFromSeed(seed, params)
}

// GenerateMnemonic returns a fresh 24-word BIP39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("%w: generating entropy: %s", errs.ErrSigner, err)
	}
	return bip39.NewMnemonic(entropy)
}

func newSoftwareSignerFromSeed(seed []byte, params *chaincfg.Params) (*SoftwareSigner, error) {
	masterKey, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("%w: deriving master key: %s", errs.ErrSigner, err)
	}

	purposeKey, err := masterKey.Derive(liquidAccountPurpose)
	if err != nil {
		return nil, fmt.Errorf("%w: deriving purpose key: %s", errs.ErrSigner, err)
	}
	coinKey, err := purposeKey.Derive(hdkeychain.HardenedKeyStart + liquidCoinType)
	if err != nil {
		return nil, fmt.Errorf("%w: deriving coin-type key: %s", errs.ErrSigner, err)
	}
	accountKey, err := coinKey.Derive(hdkeychain.HardenedKeyStart + 0)
	if err != nil {
		return nil, fmt.Errorf("%w: deriving account key: %s", errs.ErrSigner, err)
	}

	return &SoftwareSigner{params: params, masterKey: masterKey, accountKey: accountKey}, nil
}

// DeriveBIP32Key derives an arbitrary path from the wallet's master key,
// used to derive per-swap claim/refund keypairs.
func (s *SoftwareSigner) DeriveBIP32Key(path []uint32) (*btcec.PrivateKey, error) {
	key := s.masterKey
	for _, idx := range path {
		var err error
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("%w: deriving path segment %d: %s", errs.ErrSigner, idx, err)
		}
	}
	return key.ECPrivKey()
}

// addressKey derives m/<purpose>'/<coin>'/0'/change/index from the account key.
func (s *SoftwareSigner) addressKey(change, index uint32) (*hdkeychain.ExtendedKey, error) {
	changeKey, err := s.accountKey.Derive(change)
	if err != nil {
		return nil, fmt.Errorf("%w: deriving change key: %s", errs.ErrSigner, err)
	}
	return changeKey.Derive(index)
}

// PrivateKeyAt returns the signing key for the external (change=0) or
// internal (change=1) chain at index.
func (s *SoftwareSigner) PrivateKeyAt(change, index uint32) (*btcec.PrivateKey, error) {
	key, err := s.addressKey(change, index)
	if err != nil {
		return nil, err
	}
	return key.ECPrivKey()
}

// Pubkey returns the wallet's account-level public key.
func (s *SoftwareSigner) Pubkey() (*btcec.PublicKey, error) {
	neutered, err := s.accountKey.Neuter()
	if err != nil {
		return nil, err
	}
	return neutered.ECPubKey()
}

// Fingerprint returns the BIP32 fingerprint (first 4 bytes of
// HASH160(pubkey)) of the master key, used by hosts to identify this
// wallet instance across restarts.
func (s *SoftwareSigner) Fingerprint() ([4]byte, error) {
	pub, err := s.masterKey.ECPubKey()
	if err != nil {
		return [4]byte{}, err
	}
	var fp [4]byte
	copy(fp[:], btcutil.Hash160(pub.SerializeCompressed())[:4])
	return fp, nil
}

// SignDigest produces a DER-encoded ECDSA signature over digest using the
// key at the given derivation path. It does no Schnorr/Taproot signing;
// swapper/script.go builds script-path witnesses from a caller-supplied
// Schnorr signature and holds no keys of its own.
func (s *SoftwareSigner) SignDigest(path []uint32, digest [32]byte) ([]byte, error) {
	priv, err := s.DeriveBIP32Key(path)
	if err != nil {
		return nil, err
	}
	sig := ecdsa.Sign(priv, digest[:])
	return sig.Serialize(), nil
}
