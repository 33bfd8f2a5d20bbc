// Package wallet implements a single-signer Liquid wallet: addresses,
// UTXOs, PSET build/sign/broadcast, and an encrypted on-disk cache of
// scan state.
package wallet

import (
	"time"

	logging "github.com/ipfs/go-log"
)

var log = logging.Logger("wallet")

// WalletTx is a materialized transaction from the scan cache.
type WalletTx struct {
	TxID        string
	Timestamp   *time.Time
	Height      int64
	NetSats     map[string]int64 // asset id -> signed amount (negative if outgoing)
	Fee         int64
}

// Confirmed reports whether the tx has been included in a block.
func (w WalletTx) Confirmed() bool { return w.Height > 0 }

// WalletUtxo is a spendable output owned by this wallet.
type WalletUtxo struct {
	TxID    string
	Vout    uint32
	AssetID string
	Value   int64
	Height  int64
	Script  []byte
}

// SignedTx is a fully signed, finalized transaction ready to broadcast.
type SignedTx struct {
	TxID string
	Hex  string
	// FeeSats is the absolute Liquid network fee paid, always policy-asset.
	FeeSats int64
}

// Pset is an in-progress partially-signed Elements transaction, built up by
// BuildTx/BuildTxOrDrainTx and finalized by the software signer. No
// Elements-native PSET library exists in the available ecosystem corpus, so
// this is a minimal internal model carrying exactly the fields the claim/
// payjoin flows need (inputs, outputs, per-input signatures); see
// DESIGN.md for why this one corner is hand-rolled rather than imported.
type Pset struct {
	Inputs  []PsetInput
	Outputs []PsetOutput
}

// PsetInput is one input of an in-progress Pset.
type PsetInput struct {
	TxID       string
	Vout       uint32
	AssetID    string
	Value      int64
	Script     []byte
	Signature  []byte
	DerivePath []uint32
}

// PsetOutput is one output of an in-progress Pset.
type PsetOutput struct {
	AssetID  string
	Value    int64
	Address  string
	IsChange bool
	Blinded  bool
}
