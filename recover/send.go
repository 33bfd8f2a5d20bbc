package recover

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/breez/breez-sdk-liquid-core/chain"
	"github.com/breez/breez-sdk-liquid-core/swap"
	"github.com/breez/breez-sdk-liquid-core/swapper"
)

// sendSwapScripts returns the L-BTC funding scriptPubKey of a Send swap.
func sendSwapScripts(s *swap.Send) ([]byte, error) {
	var resp struct {
		Address string `json:"Address"`
	}
	if err := json.Unmarshal(s.CreateResponseJSON, &resp); err != nil {
		return nil, fmt.Errorf("parsing send swap create response: %w", err)
	}
	return addressToScript(resp.Address)
}

// recoveredSend is the per-tx-id evidence RecoverSend assembles before
// deriving a new state, mirroring RecoveredOnchainDataSend.
type recoveredSend struct {
	lockupTxID string
	claimTxID  string
	refundTxID string
	refundConf bool
	preimage   []byte
}

// RecoverSend reconstructs a Send swap's transient state from lockup
// script history: the first history entry in our own outgoing txs is the
// lockup; once a lockup is found, the first entry in neither our outgoing
// nor incoming set is the counterparty's claim; the first entry in our own
// incoming txs is our refund.
func RecoverSend(ctx context.Context, swapperCl *swapper.Client, lbtcChain chain.Service, rc *RecoveryContext, s *swap.Send, withinGracePeriod bool) error {
	script, err := sendSwapScripts(s)
	if err != nil {
		return err
	}
	history := rc.LbtcHistory[scriptKey(script)]

	var rec recoveredSend
	for _, h := range history {
		if rc.TxMap.IsOutgoing(h.TxID) {
			rec.lockupTxID = h.TxID
			break
		}
	}
	if rec.lockupTxID != "" {
		for _, h := range history {
			if h.TxID == rec.lockupTxID {
				continue
			}
			if !rc.TxMap.IsKnown(h.TxID) {
				rec.claimTxID = h.TxID
				break
			}
		}
	} else {
		log.Warnf("send swap %s: no lockup tx found in history during recovery", s.ID)
	}
	for _, h := range history {
		if rc.TxMap.IsIncoming(h.TxID) {
			rec.refundTxID = h.TxID
			rec.refundConf = h.Confirmed()
			break
		}
	}

	if rec.claimTxID != "" && len(s.Preimage) == 0 {
		if preimage, err := recoverSendPreimage(ctx, swapperCl, s.ID); err == nil {
			rec.preimage = preimage
		} else {
			log.Warnf("send swap %s: preimage recovery failed, discarding recovered claim tx: %s", s.ID, err)
			rec.claimTxID = ""
		}
	}

	return applySendRecovery(s, rc, rec, withinGracePeriod)
}

// recoverSendPreimage asks the counterparty for cooperative preimage
// disclosure. A non-cooperative fallback (downloading the claim tx and
// reading witness stack entry 1) needs an Elements-aware transaction
// parser this module doesn't carry; see chainswap.go's broadcastBtcClaim
// for the same documented gap on the BTC side.
func recoverSendPreimage(ctx context.Context, swapperCl *swapper.Client, swapID string) ([]byte, error) {
	return swapperCl.GetSubmarinePreimage(ctx, swapID)
}

// applySendRecovery writes recovered tx ids/preimage/state onto s, honoring
// the grace-period guard: never clear a tx-id field the local record
// already set if the swap was updated within the grace window.
func applySendRecovery(s *swap.Send, rc *RecoveryContext, rec recoveredSend, withinGracePeriod bool) error {
	lockupCleared := s.LockupTxID != "" && rec.lockupTxID == ""
	refundCleared := s.RefundTxID != "" && rec.refundTxID == ""
	if withinGracePeriod && (lockupCleared || refundCleared) {
		log.Warnf("send swap %s: skipping recovery within grace period, would clear a recent broadcast", s.ID)
		return nil
	}

	if rec.lockupTxID != "" {
		s.LockupTxID = rec.lockupTxID
	}
	if rec.refundTxID != "" {
		s.RefundTxID = rec.refundTxID
	}
	if len(rec.preimage) > 0 {
		if swapper.VerifyPreimage(rec.preimage, s.PaymentHash) {
			s.Preimage = rec.preimage
		} else {
			log.Warnf("send swap %s: recovered preimage failed invoice hash verification", s.ID)
		}
	}

	isExpired := rc.LiquidTipHeight >= s.TimeoutBlockHeight
	if newState, ok := deriveSendState(rec, isExpired); ok {
		s.State = newState
	}
	return nil
}

// deriveSendState mirrors RecoveredOnchainDataSend::derive_partial_state: a
// lockup with a claim is Complete; a lockup with a confirmed refund is
// Failed, an unconfirmed one is RefundPending; a lockup with neither is
// Pending, or RefundPending once expired; no lockup at all is Failed once
// expired, otherwise undecidable (the swap could still be Created).
func deriveSendState(rec recoveredSend, isExpired bool) (swap.State, bool) {
	if rec.lockupTxID == "" {
		if isExpired {
			return swap.StateFailed, true
		}
		return 0, false
	}
	if rec.claimTxID != "" {
		return swap.StateComplete, true
	}
	if rec.refundTxID != "" {
		if rec.refundConf {
			return swap.StateFailed, true
		}
		return swap.StateRefundPending, true
	}
	if isExpired {
		return swap.StateRefundPending, true
	}
	return swap.StatePending, true
}
