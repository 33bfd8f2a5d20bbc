package electrum

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

var errUnrecognizedAddress = errors.New("electrum: address not recognized on any known network")

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
