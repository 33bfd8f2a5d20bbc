// Package chain provides uniform read/write access to the BTC and L-BTC
// chains through interchangeable Electrum/Esplora backends with automatic
// failover.
package chain

import (
	"context"

	logging "github.com/ipfs/go-log"
)

var log = logging.Logger("chain")

// Asset distinguishes which chain a Service instance talks to. The engine
// holds one Service per asset; nothing here is asset-generic beyond the tag.
type Asset int

const (
	AssetBTC Asset = iota
	AssetLBTC
)

func (a Asset) String() string {
	if a == AssetLBTC {
		return "lbtc"
	}
	return "btc"
}

// HistoryEntry is one entry of a script's on-chain history. Height <= 0
// means the transaction is unconfirmed (0 = in mempool, negative = has an
// unconfirmed parent, per the Electrum protocol convention).
type HistoryEntry struct {
	TxID   string
	Height int64
}

// Confirmed reports whether this history entry represents a mined tx.
func (h HistoryEntry) Confirmed() bool { return h.Height > 0 }

// ScriptBalance is the aggregate confirmed/unconfirmed balance of a script.
type ScriptBalance struct {
	Confirmed   int64
	Unconfirmed int64
}

// Utxo is a spendable output discovered via get_script_utxos. TxOut is only
// populated for L-BTC, where the caller needs the full prevout (asset,
// value commitment, script) to build a PSET input.
type Utxo struct {
	TxID   string
	Vout   uint32
	Height int64
	Value  int64
	// TxOut carries the owning transaction's full raw hex (the hex
	// string's bytes) for L-BTC UTXOs, nil for BTC. It is not yet narrowed to just the output at
	// Vout; see DESIGN.md.
	TxOut []byte
}

// RecommendedFees mirrors a mempool.space-style fee estimate, in sat/vB.
type RecommendedFees struct {
	FastestFee  float64
	HalfHourFee float64
	HourFee     float64
	EconomyFee  float64
	MinimumFee  float64
}

// Tx is a fetched transaction: its id, raw hex, and confirmation height
// (0 if unconfirmed).
type Tx struct {
	TxID   string
	Hex    string
	Height int64
}

// Service is the capability interface every chain backend (Electrum,
// Esplora) and the HybridChainService implement. It is the sole surface the
// rest of the engine depends on, so backends and mocks are interchangeable.
type Service interface {
	Tip(ctx context.Context) (uint32, error)
	Broadcast(ctx context.Context, txHex string) (string, error)
	GetTransactions(ctx context.Context, txIDs []string) ([]Tx, error)
	GetScriptsHistory(ctx context.Context, scripts [][]byte) ([][]HistoryEntry, error)
	ScriptGetBalance(ctx context.Context, script []byte) (ScriptBalance, error)
	GetScriptUtxos(ctx context.Context, script []byte) ([]Utxo, error)
	VerifyTx(ctx context.Context, address, txID, txHex string, requireConfirmation bool) (Tx, error)
	RecommendedFees(ctx context.Context) (RecommendedFees, error)
	IsAvailable(ctx context.Context) bool
}
