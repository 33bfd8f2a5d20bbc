package payjoin

// assetSelectResult is the per-asset input/output/change plan needed
// to cover a set of user-requested outputs out of the wallet's own
// UTXOs, independent of the network-fee and server-fee asset the
// payjoin adds on top.
type assetSelectResult struct {
	assetInputs       []InOut
	userOutputs       []InOut
	changeOutputs     []InOut
	userOutputAmounts map[string]uint64
}

// assetSelect groups walletUTXOs and userOutputs by asset (skipping
// feeAsset, which utxoSelect funds separately) and, for each asset,
// selects enough wallet UTXOs to cover the requested outputs, adding a
// change output for any surplus.
func assetSelect(feeAsset string, walletUTXOs, userOutputs []InOut) (assetSelectResult, error) {
	byAsset := make(map[string][]InOut)
	for _, u := range walletUTXOs {
		if u.AssetID == feeAsset {
			continue
		}
		byAsset[u.AssetID] = append(byAsset[u.AssetID], u)
	}

	targetByAsset := make(map[string]uint64)
	var assetOrder []string
	for _, o := range userOutputs {
		if o.AssetID == feeAsset {
			continue
		}
		if _, ok := targetByAsset[o.AssetID]; !ok {
			assetOrder = append(assetOrder, o.AssetID)
		}
		targetByAsset[o.AssetID] += o.Value
	}

	result := assetSelectResult{userOutputs: userOutputs, userOutputAmounts: map[string]uint64{}}
	for _, o := range userOutputs {
		result.userOutputAmounts[o.AssetID] += o.Value
	}

	for _, asset := range assetOrder {
		target := targetByAsset[asset]
		candidates := byAsset[asset]
		values := valuesOf(candidates)
		chosen, ok := utxoSelectBest(target, values)
		if !ok {
			return assetSelectResult{}, errInsufficientFunds(asset)
		}
		matched := matchByValue(candidates, chosen)
		result.assetInputs = append(result.assetInputs, matched...)
		sum := sumValues(matched)
		if sum > target {
			result.changeOutputs = append(result.changeOutputs, InOut{AssetID: asset, Value: sum - target})
		}
	}

	return result, nil
}

type insufficientFundsError struct{ asset string }

func (e insufficientFundsError) Error() string {
	return "payjoin: insufficient utxos for asset " + e.asset
}

func errInsufficientFunds(asset string) error { return insufficientFundsError{asset: asset} }
