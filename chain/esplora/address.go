package esplora

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// addressToScript converts a human-readable address to its output script,
// the form the scripthash subscription/history endpoints index by.
//
// Liquid confidential/unconfidential addresses are not understood by
// btcutil; such an address fails here with errUnrecognizedAddress.
func addressToScript(address string) ([]byte, error) {
	for _, params := range []*chaincfg.Params{
		&chaincfg.MainNetParams,
		&chaincfg.TestNet3Params,
		&chaincfg.RegressionNetParams,
	} {
		addr, err := btcutil.DecodeAddress(address, params)
		if err != nil {
			continue
		}
		return txscript.PayToAddrScript(addr)
	}
	return nil, errUnrecognizedAddress
}
