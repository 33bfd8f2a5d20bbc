package payjoin

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/apd/v3"
)

// decimalContext mirrors the precision used elsewhere for monetary
// conversions: generous enough that intermediate rounding never loses
// a satoshi, fixed so results are reproducible across runs.
var decimalContext = apd.BaseContext.WithPrecision(38)

// UtxoSelectRequest describes one payjoin funding round: the user's
// requested outputs, the wallet's own spendable UTXOs, and the
// server's policy-asset UTXOs available to cover the network fee.
type UtxoSelectRequest struct {
	PolicyAsset string
	FeeAsset    string
	// Price is how much of FeeAsset one unit of PolicyAsset costs,
	// used to convert the policy-asset network fee into a fee-asset
	// server fee charged to the user.
	Price    *apd.Decimal
	FixedFee uint64

	WalletUTXOs []InOut
	ServerUTXOs []InOut
	UserOutputs []InOut
}

// UtxoSelectResult is the funding plan chosen for one payjoin round.
type UtxoSelectResult struct {
	UserInputs   []InOut
	ClientInputs []InOut
	ServerInputs []InOut

	UserOutputs   []InOut
	ChangeOutputs []InOut
	ServerFee     InOut
	ServerChange  *InOut
	FeeChange     *InOut
	NetworkFee    InOut

	Cost uint64
}

var (
	errSameAsset     = errors.New("payjoin: fee asset must differ from policy asset")
	errBadPrice      = errors.New("payjoin: price must be positive")
	errBadFixedFee   = errors.New("payjoin: fixed fee must be positive")
	errBadWalletUTXO = errors.New("payjoin: wallet utxo value must be positive")
	errBadServerUTXO = errors.New("payjoin: server utxo must be policy-asset and positive")
	errNoSelection   = errors.New("payjoin: no utxo selection satisfies the request")
)

// UtxoSelect picks wallet and server UTXOs to fund req.UserOutputs
// plus a network fee (paid in PolicyAsset by server UTXOs) and a
// server fee (paid in FeeAsset, priced off the network fee), choosing
// the combination with the lowest server fee. The result is validated
// against req before being returned.
func UtxoSelect(req UtxoSelectRequest) (*UtxoSelectResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var feeCandidates []InOut
	for _, u := range req.WalletUTXOs {
		if u.AssetID == req.FeeAsset {
			feeCandidates = append(feeCandidates, u)
		}
	}
	serverCandidates := append([]InOut(nil), req.ServerUTXOs...)
	// Largest-first: the fixed-count path below picks a prefix, so
	// trying big server utxos first tends to find a funding/change
	// split in fewer iterations.
	sort.Slice(serverCandidates, func(i, j int) bool { return serverCandidates[i].Value > serverCandidates[j].Value })
	serverUTXOValues := valuesOf(serverCandidates)
	feeUTXOs := valuesOf(feeCandidates)

	asset, err := assetSelect(req.FeeAsset, req.WalletUTXOs, req.UserOutputs)
	if err != nil {
		return nil, err
	}

	var best *UtxoSelectResult
	for _, withFeeChange := range []bool{false, true} {
		for _, withServerChange := range []bool{false, true} {
			for serverCount := 1; serverCount <= len(serverUTXOValues); serverCount++ {
				candidate, err := tryCombination(req, asset, feeCandidates, serverCandidates, feeUTXOs, serverUTXOValues,
					serverCount, withFeeChange, withServerChange)
				if err != nil {
					continue
				}
				if best == nil || candidate.Cost < best.Cost {
					best = candidate
				}
			}
		}
	}

	if best == nil {
		return nil, errNoSelection
	}
	if err := validateSelection(req, best); err != nil {
		return nil, err
	}
	return best, nil
}

func tryCombination(req UtxoSelectRequest, asset assetSelectResult, feeCandidates, serverCandidates []InOut, feeUTXOs, serverUTXOValues []uint64,
	serverCount int, withFeeChange, withServerChange bool) (*UtxoSelectResult, error) {

	outputCount := len(asset.userOutputs) + len(asset.changeOutputs) + 1
	if withFeeChange {
		outputCount++
	}
	if withServerChange {
		outputCount++
	}

	minNetworkFee := TxFee{
		NativeInputs: serverCount,
		NestedInputs: len(asset.assetInputs) + len(feeUTXOs),
		Outputs:      outputCount,
	}.Fee(nil)

	var serverInputs []uint64
	var ok bool
	if withServerChange {
		serverInputs, ok = utxoSelectFixed(minNetworkFee+1, serverCount, serverUTXOValues)
	} else {
		upperDelta := weightToFee(weightVout, minFeeRateSatsPerKw)
		serverInputs, ok = utxoSelectInRange(minNetworkFee, upperDelta, serverCount, serverUTXOValues)
	}
	if !ok {
		return nil, errNoSelection
	}

	serverSum := sumUint64(serverInputs)
	var serverChange uint64
	if withServerChange {
		serverChange = serverSum - minNetworkFee
	}
	networkFee := serverSum - serverChange

	minAssetFee, err := priceFee(networkFee, req.Price, req.FixedFee)
	if err != nil {
		return nil, err
	}
	userAssetOutput := asset.userOutputAmounts[req.FeeAsset]
	feeAssetTarget := userAssetOutput + minAssetFee

	var feeAssetInputs []uint64
	if withFeeChange {
		feeAssetInputs, ok = utxoSelectFixed(feeAssetTarget+1, len(feeUTXOs), feeUTXOs)
	} else {
		priceUpper, perr := priceFee(weightToFee(weightVout, minFeeRateSatsPerKw), req.Price, 0)
		if perr != nil {
			return nil, perr
		}
		feeAssetInputs, ok = utxoSelectInRange(feeAssetTarget, priceUpper, len(feeUTXOs), feeUTXOs)
	}
	if !ok {
		return nil, errNoSelection
	}

	feeSum := sumUint64(feeAssetInputs)
	var feeChange uint64
	if withFeeChange {
		feeChange = feeSum - feeAssetTarget
	}
	serverFee := feeSum - feeChange - userAssetOutput

	result := &UtxoSelectResult{
		UserInputs:    asset.assetInputs,
		UserOutputs:   asset.userOutputs,
		ChangeOutputs: asset.changeOutputs,
		ServerFee:     InOut{AssetID: req.FeeAsset, Value: serverFee},
		NetworkFee:    InOut{AssetID: req.PolicyAsset, Value: networkFee},
		Cost:          serverFee,
	}
	result.ClientInputs = matchByValue(feeCandidates, feeAssetInputs)
	result.ServerInputs = matchByValue(serverCandidates, serverInputs)
	if withServerChange {
		result.ServerChange = &InOut{AssetID: req.PolicyAsset, Value: serverChange}
	}
	if withFeeChange {
		result.FeeChange = &InOut{AssetID: req.FeeAsset, Value: feeChange}
	}
	return result, nil
}

// priceFee converts an amount of PolicyAsset into FeeAsset terms at
// req.Price, truncating toward zero as the original swap server does,
// then adds fixedFee.
func priceFee(policyAmount uint64, price *apd.Decimal, fixedFee uint64) (uint64, error) {
	amount := apd.New(int64(policyAmount), 0)
	var product, floored apd.Decimal
	if _, err := decimalContext.Mul(&product, amount, price); err != nil {
		return 0, fmt.Errorf("payjoin: price conversion: %w", err)
	}
	if _, err := decimalContext.Floor(&floored, &product); err != nil {
		return 0, fmt.Errorf("payjoin: price conversion: %w", err)
	}
	converted, err := floored.Int64()
	if err != nil {
		return 0, fmt.Errorf("payjoin: price conversion overflow: %w", err)
	}
	if converted < 0 {
		return 0, fmt.Errorf("payjoin: price conversion produced a negative amount")
	}
	return uint64(converted) + fixedFee, nil
}

func sumUint64(values []uint64) uint64 {
	var total uint64
	for _, v := range values {
		total += v
	}
	return total
}

func validateRequest(req UtxoSelectRequest) error {
	if req.FeeAsset == req.PolicyAsset {
		return errSameAsset
	}
	if req.Price == nil || req.Price.Sign() <= 0 {
		return errBadPrice
	}
	if req.FixedFee == 0 {
		return errBadFixedFee
	}
	for _, u := range req.WalletUTXOs {
		if u.Value == 0 {
			return errBadWalletUTXO
		}
	}
	for _, u := range req.ServerUTXOs {
		if u.AssetID != req.PolicyAsset || u.Value == 0 {
			return errBadServerUTXO
		}
	}
	return nil
}
