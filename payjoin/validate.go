package payjoin

import "fmt"

// validateSelection re-derives the input and output totals of a chosen
// selection and checks they balance per asset, and that the network
// and server fees it charges are within the sane range the selection
// loop was supposed to have produced. Runs as a final sanity check
// before a selection is handed back to a caller.
func validateSelection(req UtxoSelectRequest, res *UtxoSelectResult) error {
	inputs := map[string]uint64{}
	outputs := map[string]uint64{}

	for _, in := range res.UserInputs {
		inputs[in.AssetID] += in.Value
	}
	for _, in := range res.ClientInputs {
		inputs[in.AssetID] += in.Value
	}
	for _, in := range res.ServerInputs {
		inputs[in.AssetID] += in.Value
	}

	for _, out := range res.UserOutputs {
		outputs[out.AssetID] += out.Value
	}
	for _, out := range res.ChangeOutputs {
		outputs[out.AssetID] += out.Value
	}
	outputs[res.ServerFee.AssetID] += res.ServerFee.Value
	outputs[res.NetworkFee.AssetID] += res.NetworkFee.Value
	if res.ServerChange != nil {
		outputs[res.ServerChange.AssetID] += res.ServerChange.Value
	}
	if res.FeeChange != nil {
		outputs[res.FeeChange.AssetID] += res.FeeChange.Value
	}

	if len(inputs) != len(outputs) {
		return fmt.Errorf("payjoin: input/output asset sets differ: %v != %v", inputs, outputs)
	}
	for asset, in := range inputs {
		if outputs[asset] != in {
			return fmt.Errorf("payjoin: input/output mismatch for %s: %d != %d", asset, in, outputs[asset])
		}
	}

	clientInputCount := len(res.UserInputs) + len(res.ClientInputs)
	serverInputCount := len(res.ServerInputs)
	outputCount := len(res.UserOutputs) + len(res.ChangeOutputs) + 1
	if res.ServerChange != nil {
		outputCount++
	}
	if res.FeeChange != nil {
		outputCount++
	}

	minNetworkFee := TxFee{
		NativeInputs: serverInputCount,
		NestedInputs: clientInputCount,
		Outputs:      outputCount,
	}.Fee(nil)

	if res.NetworkFee.Value < minNetworkFee {
		return fmt.Errorf("payjoin: network fee %d below minimum %d", res.NetworkFee.Value, minNetworkFee)
	}
	if res.NetworkFee.Value > 2*minNetworkFee {
		return fmt.Errorf("payjoin: network fee %d exceeds twice the minimum %d", res.NetworkFee.Value, minNetworkFee)
	}

	minServerFee, err := priceFee(res.NetworkFee.Value, req.Price, req.FixedFee)
	if err != nil {
		return err
	}
	if res.ServerFee.Value < minServerFee {
		return fmt.Errorf("payjoin: server fee %d below minimum %d", res.ServerFee.Value, minServerFee)
	}
	if res.ServerFee.Value > 2*minServerFee {
		return fmt.Errorf("payjoin: server fee %d exceeds twice the minimum %d", res.ServerFee.Value, minServerFee)
	}

	return nil
}
