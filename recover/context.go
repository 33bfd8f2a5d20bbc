package recover

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/breez/breez-sdk-liquid-core/chain"
)

var errUnrecognizedAddress = errors.New("recover: address not recognized on any known network")

// addressToScript decodes address against every network this engine ever
// runs on and returns its scriptPubKey, mirroring
// chain/electrum/address.go's addressToScript — both exist because a swap
// script is reconstructed independently of any one chain backend's address
// decoder.
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

// RecoveryContext is the batch-fetched on-chain evidence every per-swap
// handler derives its recovered state from: script histories for every
// L-BTC and BTC script any swap cares about, fetched once up front rather
// than per swap.
type RecoveryContext struct {
	TxMap *TxMap

	LbtcHistory map[string][]chain.HistoryEntry // keyed by scriptKey(scriptPubKey): the raw script bytes as a string
	BtcHistory  map[string][]chain.HistoryEntry
	BtcTxs      map[string]chain.Tx // keyed by txid, BTC legs only

	LiquidTipHeight  uint32
	BitcoinTipHeight uint32
}

func scriptKey(script []byte) string {
	return string(script)
}

// fetchHistory batch-fetches history for every script in scripts via
// service, keyed for O(1) per-swap lookup afterwards.
func fetchHistory(ctx context.Context, service chain.Service, scripts [][]byte) (map[string][]chain.HistoryEntry, error) {
	out := make(map[string][]chain.HistoryEntry, len(scripts))
	if len(scripts) == 0 {
		return out, nil
	}
	histories, err := service.GetScriptsHistory(ctx, scripts)
	if err != nil {
		return nil, err
	}
	for i, script := range scripts {
		if i < len(histories) {
			out[scriptKey(script)] = histories[i]
		}
	}
	return out, nil
}
