package recover

import (
	"context"
	"time"

	"github.com/breez/breez-sdk-liquid-core/chain"
	"github.com/breez/breez-sdk-liquid-core/protocol"
	"github.com/breez/breez-sdk-liquid-core/swap"
)

// Recoverer reconstructs every ongoing swap's transient state (lifecycle
// state plus every *_tx_id field) from on-chain evidence alone, the
// startup-time and periodic counterpart to the live event-driven state
// handlers in package protocol.
type Recoverer struct {
	backend protocol.Backend
}

// NewRecoverer builds a Recoverer over b.
func NewRecoverer(b protocol.Backend) *Recoverer {
	return &Recoverer{backend: b}
}

// RecoverFromOnchain recovers every currently-ongoing swap the manager
// knows about, persisting whatever new state/tx-ids each recovery pass
// derives. A single swap's recovery failing is logged and does not abort
// the rest — recovery is best-effort ground-truth reconciliation, not a
// transactional operation.
func (rc *Recoverer) RecoverFromOnchain(ctx context.Context) error {
	records := rc.backend.Manager().GetOngoingSwaps()
	if len(records) == 0 {
		return nil
	}

	rawTxMap := rc.backend.Wallet().TransactionsByTxID()
	txMap := NewTxMap(rawTxMap)

	liquidTip, err := rc.backend.ChainService(chain.AssetLBTC).Tip(ctx)
	if err != nil {
		return err
	}
	bitcoinTip, err := rc.backend.ChainService(chain.AssetBTC).Tip(ctx)
	if err != nil {
		return err
	}

	lbtcScripts, btcScripts, mrhScripts := collectSwapScripts(records)

	lbtcHistory, err := fetchHistory(ctx, rc.backend.ChainService(chain.AssetLBTC), append(lbtcScripts, mrhScripts...))
	if err != nil {
		return err
	}
	btcHistory, err := fetchHistory(ctx, rc.backend.ChainService(chain.AssetBTC), btcScripts)
	if err != nil {
		return err
	}
	btcTxs, err := fetchBtcTxs(ctx, rc.backend.ChainService(chain.AssetBTC), btcHistory)
	if err != nil {
		return err
	}

	rctx := &RecoveryContext{
		TxMap:            txMap,
		LbtcHistory:      lbtcHistory,
		BtcHistory:       btcHistory,
		BtcTxs:           btcTxs,
		LiquidTipHeight:  liquidTip,
		BitcoinTipHeight: bitcoinTip,
	}

	now := timeNow()
	for _, r := range records {
		withinGrace := now.Sub(r.LastUpdatedAt()) < NetworkPropagationGracePeriod*time.Second
		if err := rc.recoverSwap(ctx, rctx, r, withinGrace); err != nil {
			log.Warnf("recovering swap %s: %s", r.ID(), err)
			continue
		}
		if err := rc.persist(r); err != nil {
			log.Warnf("persisting recovered swap %s: %s", r.ID(), err)
		}
	}
	return nil
}

var timeNow = time.Now

func (rc *Recoverer) recoverSwap(ctx context.Context, rctx *RecoveryContext, r *swap.Record, withinGrace bool) error {
	switch r.Kind {
	case swap.KindSend:
		return RecoverSend(ctx, rc.backend.Swapper(), rc.backend.ChainService(chain.AssetLBTC), rctx, r.Send, withinGrace)
	case swap.KindReceive:
		return RecoverReceive(ctx, rc.backend.ChainService(chain.AssetLBTC), rctx, r.Receive, withinGrace)
	case swap.KindChain:
		if r.Chain.Direction == swap.ChainOutgoing {
			return RecoverChainSend(ctx, rctx, r.Chain, withinGrace)
		}
		return RecoverChainReceive(ctx, rctx, r.Chain, withinGrace)
	default:
		return nil
	}
}

// persist writes r back through the manager, completing it if recovery
// determined a terminal state.
func (rc *Recoverer) persist(r *swap.Record) error {
	if r.State().Terminal() {
		return rc.backend.Manager().CompleteSwap(r)
	}
	return rc.backend.Manager().WriteSwapToDB(r)
}

// collectSwapScripts gathers every L-BTC/BTC scriptPubKey and Receive
// swap's MRH address script that recovery needs history for, across every
// ongoing swap, so RecoverFromOnchain can batch-fetch each chain's
// histories in exactly one round trip.
func collectSwapScripts(records []*swap.Record) (lbtc, btc, mrh [][]byte) {
	for _, r := range records {
		switch r.Kind {
		case swap.KindSend:
			if script, err := sendSwapScripts(r.Send); err == nil {
				lbtc = append(lbtc, script)
			}
		case swap.KindReceive:
			if script, err := receiveSwapScripts(r.Receive); err == nil {
				lbtc = append(lbtc, script)
			}
			if r.Receive.MrhAddress != "" {
				if script, err := addressToScript(r.Receive.MrhAddress); err == nil {
					mrh = append(mrh, script)
				}
			}
		case swap.KindChain:
			lockupScript, claimScript, err := chainSwapAddresses(r.Chain)
			if err != nil {
				continue
			}
			if r.Chain.Direction == swap.ChainOutgoing {
				lbtc = append(lbtc, lockupScript)
				btc = append(btc, claimScript)
			} else {
				btc = append(btc, lockupScript)
				lbtc = append(lbtc, claimScript)
			}
		}
	}
	return lbtc, btc, mrh
}

// fetchBtcTxs fetches the full transaction for every distinct BTC txid
// appearing in btcHistory, needed by RecoverChainSend/RecoverChainReceive
// to inspect which output actually pays a given script.
func fetchBtcTxs(ctx context.Context, service chain.Service, btcHistory map[string][]chain.HistoryEntry) (map[string]chain.Tx, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, entries := range btcHistory {
		for _, h := range entries {
			if _, ok := seen[h.TxID]; !ok {
				seen[h.TxID] = struct{}{}
				ids = append(ids, h.TxID)
			}
		}
	}
	if len(ids) == 0 {
		return map[string]chain.Tx{}, nil
	}

	txs, err := service.GetTransactions(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]chain.Tx, len(txs))
	for _, tx := range txs {
		out[tx.TxID] = tx
	}
	return out, nil
}
