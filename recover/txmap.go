// Package recover reconstructs a swap's transient state (lifecycle state
// plus every *_tx_id field) from on-chain evidence alone, given only the
// immutable per-swap data (keys, the stored create-response JSON, and the
// scripts derived from it).
package recover

import (
	logging "github.com/ipfs/go-log"

	"github.com/breez/breez-sdk-liquid-core/wallet"
)

var log = logging.Logger("recover")

// NetworkPropagationGracePeriod bounds how long a recovery pass must defer
// to a very recent local write rather than treat its absence from chain
// history as ground truth.
const NetworkPropagationGracePeriod = 120 // seconds

// TxMap partitions every transaction the wallet's scan cache knows about
// into outgoing (net balance, summed over every asset in NetSats,
// negative) and incoming.
type TxMap struct {
	Outgoing map[string]wallet.WalletTx
	Incoming map[string]wallet.WalletTx
}

// NewTxMap partitions raw, the wallet's full known-tx set, by net balance.
func NewTxMap(raw map[string]wallet.WalletTx) *TxMap {
	m := &TxMap{Outgoing: make(map[string]wallet.WalletTx), Incoming: make(map[string]wallet.WalletTx)}
	for id, tx := range raw {
		if netBalance(tx) < 0 {
			m.Outgoing[id] = tx
		} else {
			m.Incoming[id] = tx
		}
	}
	return m
}

func netBalance(tx wallet.WalletTx) int64 {
	var sum int64
	for _, v := range tx.NetSats {
		sum += v
	}
	return sum
}

// IsOutgoing reports whether txID is one of our own outgoing transactions.
func (m *TxMap) IsOutgoing(txID string) bool {
	_, ok := m.Outgoing[txID]
	return ok
}

// IsIncoming reports whether txID is one of our own incoming transactions.
func (m *TxMap) IsIncoming(txID string) bool {
	_, ok := m.Incoming[txID]
	return ok
}

// IsKnown reports whether txID is either an outgoing or incoming tx of
// ours; a history entry matching neither is someone else's transaction
// (e.g. the counterparty's claim of our lockup).
func (m *TxMap) IsKnown(txID string) bool {
	return m.IsOutgoing(txID) || m.IsIncoming(txID)
}
