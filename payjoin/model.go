// Package payjoin implements UTXO selection for swaps that pay the
// counterparty's onchain fee out of the same transaction as the user's
// payment (a payjoin), so no separate funding transaction is needed.
package payjoin

// InOut is a single asset/value pair, used both as a candidate UTXO
// (an input) and as a transaction output. Ref carries whatever
// identity a caller needs to turn a selected UTXO back into a real
// transaction input (e.g. a wallet.WalletUtxo) once UtxoSelect has
// picked it; UtxoSelect itself only ever looks at Value and AssetID.
type InOut struct {
	AssetID string
	Value   uint64
	Ref     any
}

// matchByValue recovers, for each value in chosen, one InOut from
// candidates with that Value, consuming each candidate at most once.
// Used to carry Ref identity through a selection that otherwise only
// tracked plain uint64 values.
func matchByValue(candidates []InOut, chosen []uint64) []InOut {
	remaining := make(map[uint64]int, len(candidates))
	for _, c := range candidates {
		remaining[c.Value]++
	}
	matched := make([]InOut, 0, len(chosen))
	for _, v := range chosen {
		for _, c := range candidates {
			if c.Value == v && remaining[c.Value] > 0 {
				matched = append(matched, c)
				remaining[c.Value]--
				break
			}
		}
	}
	return matched
}

func sumValues(utxos []InOut) uint64 {
	var total uint64
	for _, u := range utxos {
		total += u.Value
	}
	return total
}

func valuesOf(utxos []InOut) []uint64 {
	values := make([]uint64, len(utxos))
	for i, u := range utxos {
		values[i] = u.Value
	}
	return values
}
