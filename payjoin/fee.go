package payjoin

// Weight units for a P2WPKH-style transaction. These are separate from
// the wallet package's own vbyte estimates in buildTx. Native inputs are
// segwit-native (server-held L-BTC UTXOs); nested inputs cover the
// client's UTXOs, which may be wrapped.
const (
	weightOverhead      = 42  // version + locktime + segwit marker/flag
	weightVinNative     = 273 // native segwit input
	weightVinNested     = 364 // nested/wrapped segwit input
	weightVout          = 124 // single output
	minFeeRateSatsPerKw = 1
)

// TxFee estimates the weight, and therefore the minimum network fee,
// of a transaction with the given input/output composition.
type TxFee struct {
	NativeInputs int
	NestedInputs int
	Outputs      int
}

func weightToFee(weight int, feeRateSatsPerKw uint64) uint64 {
	// weight is in weight units (4 WU per vbyte); fee rate is
	// sats per 1000 weight units.
	return uint64(weight) * feeRateSatsPerKw / 1000
}

// Fee returns the minimum fee for this composition at feeRate
// sats/kWU. A nil feeRate falls back to the configured floor.
func (f TxFee) Fee(feeRate *uint64) uint64 {
	rate := uint64(minFeeRateSatsPerKw)
	if feeRate != nil {
		rate = *feeRate
	}
	weight := weightOverhead +
		f.NativeInputs*weightVinNative +
		f.NestedInputs*weightVinNested +
		f.Outputs*weightVout
	return weightToFee(weight, rate)
}
