package recover

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/breez/breez-sdk-liquid-core/chain"
	"github.com/breez/breez-sdk-liquid-core/swap"
)

// chainSwapAddresses decodes a Chain swap's two create-response addresses:
// lockupAddress is the side we ourselves fund, and claimAddress is the
// side we claim from.
func chainSwapAddresses(s *swap.Chain) (lockupScript, claimScript []byte, err error) {
	lockupScript, err = addressToScript(s.LockupAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding chain swap lockup address: %w", err)
	}
	claimScript, err = addressToScript(s.ClaimAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding chain swap claim address: %w", err)
	}
	return lockupScript, claimScript, nil
}

// txPaysScript reports whether any output of the raw BTC transaction in
// txHex pays script. Used to disambiguate a two-entry BTC script history
// into (lockup, claim) order, since Electrum's history API returns tx ids
// but not which one funded the address.
func txPaysScript(txHex string, script []byte) (bool, error) {
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return false, err
	}
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return false, err
	}
	for _, out := range tx.TxOut {
		if bytes.Equal(out.PkScript, script) {
			return true, nil
		}
	}
	return false, nil
}

// recoveredChainSend is the per-tx-id evidence RecoverChainSend assembles,
// mirroring RecoveredOnchainDataChainSend.
type recoveredChainSend struct {
	userLockupTxID string
	refundTxID     string
	refundConf     bool
	serverLockupID string
	claimTxID      string
	claimConf      bool
}

// RecoverChainSend reconstructs an outgoing (L-BTC -> BTC) Chain swap's
// transient state, following handle_chain_send_swap.rs: the L-BTC lockup
// address's history yields our own lockup (outgoing) and any refund
// (incoming); the BTC claim address's history yields the server's lockup
// and our claim, disambiguated by checking which of the (at most two)
// transactions actually pays the claim script.
func RecoverChainSend(ctx context.Context, rc *RecoveryContext, s *swap.Chain, withinGracePeriod bool) error {
	lockupScript, claimScript, err := chainSwapAddresses(s)
	if err != nil {
		return err
	}

	var rec recoveredChainSend
	lbtcHistory := rc.LbtcHistory[scriptKey(lockupScript)]
	for _, h := range lbtcHistory {
		if rc.TxMap.IsOutgoing(h.TxID) {
			rec.userLockupTxID = h.TxID
			break
		}
	}
	for _, h := range lbtcHistory {
		if rc.TxMap.IsIncoming(h.TxID) {
			rec.refundTxID = h.TxID
			rec.refundConf = h.Confirmed()
			break
		}
	}
	if rec.userLockupTxID == "" {
		log.Warnf("chain swap %s: no lockup tx found in L-BTC history during recovery", s.ID)
	}

	btcHistory := rc.BtcHistory[scriptKey(claimScript)]
	switch len(btcHistory) {
	case 0:
	case 1:
		rec.serverLockupID = btcHistory[0].TxID
	case 2:
		firstPaysClaim := false
		if tx, ok := rc.BtcTxs[btcHistory[0].TxID]; ok {
			firstPaysClaim, _ = txPaysScript(tx.Hex, claimScript)
		}
		if firstPaysClaim {
			rec.serverLockupID, rec.claimTxID = btcHistory[0].TxID, btcHistory[1].TxID
			rec.claimConf = btcHistory[1].Confirmed()
		} else {
			rec.serverLockupID, rec.claimTxID = btcHistory[1].TxID, btcHistory[0].TxID
			rec.claimConf = btcHistory[0].Confirmed()
		}
	default:
		log.Warnf("chain swap %s: unexpected BTC claim script history length %d during recovery", s.ID, len(btcHistory))
	}

	return applyChainSendRecovery(s, rc, rec, withinGracePeriod)
}

func applyChainSendRecovery(s *swap.Chain, rc *RecoveryContext, rec recoveredChainSend, withinGracePeriod bool) error {
	lockupCleared := s.UserLockupTxID != "" && rec.userLockupTxID == ""
	refundCleared := s.RefundTxID != "" && rec.refundTxID == ""
	claimCleared := s.ClaimTxID != "" && rec.claimTxID == ""
	if withinGracePeriod && (lockupCleared || refundCleared || claimCleared) {
		log.Warnf("chain swap %s: skipping recovery within grace period, would clear a recent broadcast", s.ID)
		return nil
	}

	isExpired := rc.LiquidTipHeight >= s.TimeoutBlockHeight
	if newState, ok := deriveChainSendState(rec, isExpired); ok {
		s.State = newState
	}

	if rec.userLockupTxID != "" {
		s.UserLockupTxID = rec.userLockupTxID
	}
	if rec.refundTxID != "" {
		s.RefundTxID = rec.refundTxID
	}
	if rec.serverLockupID != "" {
		s.ServerLockupTxID = rec.serverLockupID
	}
	if rec.claimTxID != "" {
		s.ClaimTxID = rec.claimTxID
	}
	return nil
}

// deriveChainSendState mirrors RecoveredOnchainDataChainSend::derive_partial_state.
func deriveChainSendState(rec recoveredChainSend, isExpired bool) (swap.State, bool) {
	if rec.userLockupTxID == "" {
		if isExpired {
			return swap.StateFailed, true
		}
		return 0, false
	}
	switch {
	case rec.claimTxID != "" && rec.refundTxID == "":
		if rec.claimConf {
			return swap.StateComplete, true
		}
		return swap.StatePending, true
	case rec.refundTxID != "" && rec.claimTxID == "":
		if rec.refundConf {
			return swap.StateFailed, true
		}
		return swap.StateRefundPending, true
	case rec.claimTxID != "" && rec.refundTxID != "":
		if rec.claimConf {
			if rec.refundConf {
				return swap.StateComplete, true
			}
			return swap.StateRefundPending, true
		}
		return swap.StatePending, true
	default:
		if isExpired {
			return swap.StateRefundPending, true
		}
		return swap.StatePending, true
	}
}

// recoveredChainReceive is the per-tx-id evidence RecoverChainReceive
// assembles, mirroring RecoveredOnchainDataChainReceive (amount-bounds and
// lockup-balance driven Refundable detection is not reproduced here: it
// needs the counterparty's live pair limits re-fetched mid-recovery, which
// this pass does not plumb through — see DESIGN.md).
type recoveredChainReceive struct {
	serverLockupID string
	claimTxID      string
	claimConf      bool
	userLockupTxID string
	refundTxID     string
	refundConf     bool
}

// RecoverChainReceive reconstructs an incoming (BTC -> L-BTC) Chain swap's
// transient state, following handle_chain_receive_swap.rs: the L-BTC claim
// address's history yields the server's lockup and our own claim via the
// same not-ours/incoming split Receive swaps use; the BTC lockup address's
// raw transactions are partitioned by whether they pay the lockup script
// (the payer's lockup) or spend from it (a refund back out).
func RecoverChainReceive(ctx context.Context, rc *RecoveryContext, s *swap.Chain, withinGracePeriod bool) error {
	lockupScript, claimScript, err := chainSwapAddresses(s)
	if err != nil {
		return err
	}

	var rec recoveredChainReceive
	lbtcHistory := rc.LbtcHistory[scriptKey(claimScript)]
	for _, h := range lbtcHistory {
		if !rc.TxMap.IsKnown(h.TxID) {
			rec.serverLockupID = h.TxID
			break
		}
	}
	for _, h := range lbtcHistory {
		if rc.TxMap.IsIncoming(h.TxID) {
			rec.claimTxID = h.TxID
			rec.claimConf = h.Confirmed()
			break
		}
	}

	btcHistory := rc.BtcHistory[scriptKey(lockupScript)]
	var outgoing []chain.HistoryEntry
	for _, h := range btcHistory {
		tx, ok := rc.BtcTxs[h.TxID]
		if !ok {
			continue
		}
		paysLockup, err := txPaysScript(tx.Hex, lockupScript)
		if err != nil {
			continue
		}
		if paysLockup {
			if rec.userLockupTxID == "" {
				rec.userLockupTxID = h.TxID
			}
		} else {
			outgoing = append(outgoing, h)
		}
	}
	if rec.userLockupTxID == "" {
		log.Warnf("chain swap %s: no lockup tx found in BTC history during recovery", s.ID)
	}
	if len(outgoing) > 0 {
		chosen := outgoing[len(outgoing)-1]
		for _, h := range outgoing {
			if !h.Confirmed() {
				chosen = h
				break
			}
		}
		rec.refundTxID = chosen.TxID
		rec.refundConf = chosen.Confirmed()
	}
	if rec.claimTxID != "" && len(outgoing) <= 1 {
		rec.refundTxID, rec.refundConf = "", false
	}

	return applyChainReceiveRecovery(s, rc, rec, withinGracePeriod)
}

func applyChainReceiveRecovery(s *swap.Chain, rc *RecoveryContext, rec recoveredChainReceive, withinGracePeriod bool) error {
	claimCleared := s.ClaimTxID != "" && rec.claimTxID == ""
	refundCleared := s.RefundTxID != "" && rec.refundTxID == ""
	if withinGracePeriod && (claimCleared || refundCleared) {
		log.Warnf("chain swap %s: skipping recovery within grace period, would clear a recent broadcast", s.ID)
		return nil
	}

	isExpired := rc.LiquidTipHeight >= s.TimeoutBlockHeight
	isWaitingFeeAcceptance := s.State == swap.StateWaitingFeeAcceptance
	if newState, ok := deriveChainReceiveState(rec, isExpired, isWaitingFeeAcceptance); ok {
		s.State = newState
	}

	if rec.serverLockupID != "" {
		s.ServerLockupTxID = rec.serverLockupID
	}
	if rec.claimTxID != "" {
		s.ClaimTxID = rec.claimTxID
	}
	if rec.userLockupTxID != "" {
		s.UserLockupTxID = rec.userLockupTxID
	}
	if rec.refundTxID != "" {
		s.RefundTxID = rec.refundTxID
	}
	return nil
}

// deriveChainReceiveState mirrors RecoveredOnchainDataChainReceive::derive_partial_state,
// minus its amount-bounds Refundable branch (see recoveredChainReceive's doc comment).
func deriveChainReceiveState(rec recoveredChainReceive, isExpired, isWaitingFeeAcceptance bool) (swap.State, bool) {
	if rec.userLockupTxID == "" {
		if isExpired {
			return swap.StateFailed, true
		}
		return 0, false
	}
	switch {
	case rec.claimTxID != "" && rec.refundTxID == "":
		if rec.claimConf {
			return swap.StateComplete, true
		}
		return swap.StatePending, true
	case rec.refundTxID != "" && rec.claimTxID == "":
		if rec.refundConf {
			return swap.StateFailed, true
		}
		return swap.StateRefundPending, true
	case rec.claimTxID != "" && rec.refundTxID != "":
		if rec.claimConf {
			if rec.refundConf {
				return swap.StateComplete, true
			}
			return swap.StateRefundPending, true
		}
		return swap.StatePending, true
	default:
		if isWaitingFeeAcceptance {
			return swap.StateWaitingFeeAcceptance, true
		}
		if isExpired {
			return swap.StateRefundPending, true
		}
		return swap.StatePending, true
	}
}
