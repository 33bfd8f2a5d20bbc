package protocol

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/breez/breez-sdk-liquid-core/chain"
	"github.com/breez/breez-sdk-liquid-core/swapper"
)

const (
	lbtcAsset   = chain.AssetLBTC
	btcAsset    = chain.AssetBTC
	lbtcAssetID = "lbtc" // Liquid's policy asset id, used as the local asset tag in PaymentTxData rows
)

// marshalCreateResponse stores the counterparty's create-swap reply
// verbatim as JSON, CreateResponseJSON's source-of-truth role.
func marshalCreateResponse(resp any) ([]byte, error) {
	return json.Marshal(resp)
}

// newReceiveKeypair generates a fresh preimage plus an ephemeral claim
// keypair for a Receive swap's claim leaf.
func newReceiveKeypair() (privKey, pubKey, preimage, preimageHash []byte, err error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, nil, nil, nil, err
	}
	priv, pub := btcec.PrivKeyFromBytes(seed[:])

	preimage = make([]byte, 32)
	if _, err := rand.Read(preimage); err != nil {
		return nil, nil, nil, nil, err
	}
	hash := sha256.Sum256(preimage)

	return priv.Serialize(), pub.SerializeCompressed(), preimage, hash[:], nil
}

// newKeypair generates a fresh ephemeral secp256k1 keypair, used for a
// Send swap's refund leaf (no preimage is needed there, unlike a Receive
// swap's claim leaf).
func newKeypair() (privKey, pubKey []byte, err error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, nil, err
	}
	priv, pub := btcec.PrivKeyFromBytes(seed[:])
	return priv.Serialize(), pub.SerializeCompressed(), nil
}

// mrhAddress renders a Magic Routing Hint's scriptPubKey as an address on
// params, so it can be stored and reserved as a plain address like any
// other claim destination.
func mrhAddress(hint *swapper.MagicRoutingHint, params *chaincfg.Params) string {
	return scriptToAddress(hint.ScriptPubKey, params)
}

func scriptToAddress(script []byte, params *chaincfg.Params) string {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(script, params)
	if err != nil || len(addrs) == 0 {
		return ""
	}
	return addrs[0].EncodeAddress()
}

// parseCreateResponse unmarshals a swap's stored CreateResponseJSON into
// out, the shape every handler needs fields from (address, amounts, swap
// tree, timeout) without re-parsing the raw counterparty reply by hand.
func parseCreateResponse(raw []byte, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("swap has no stored create response")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parsing stored create response: %w", err)
	}
	return nil
}
