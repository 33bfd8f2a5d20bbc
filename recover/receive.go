package recover

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/breez/breez-sdk-liquid-core/chain"
	"github.com/breez/breez-sdk-liquid-core/swap"
)

// receiveSwapScripts returns the L-BTC lockup scriptPubKey of a Receive
// swap, decoded from its stored create-response.
func receiveSwapScripts(s *swap.Receive) ([]byte, error) {
	var resp struct {
		LockupAddress string `json:"lockupAddress"`
	}
	if err := json.Unmarshal(s.CreateResponseJSON, &resp); err != nil {
		return nil, fmt.Errorf("parsing receive swap create response: %w", err)
	}
	return addressToScript(resp.LockupAddress)
}

// recoveredReceive is the per-tx-id evidence RecoverReceive assembles before
// deriving a new state, mirroring RecoveredOnchainDataReceive.
type recoveredReceive struct {
	lockupTxID string
	claimTxID  string
	claimConf  bool
	mrhTxID    string
	mrhConf    bool
}

// RecoverReceive reconstructs a Receive swap's transient state from lockup
// script history: the first tx reaching the lockup address is the
// swapper's lockup, the first tx from that address the wallet classifies
// as incoming is our claim, and - absent both - a direct payment to the
// swap's Magic Routing Hint address completes it instead.
func RecoverReceive(ctx context.Context, lbtcChain chain.Service, rc *RecoveryContext, s *swap.Receive, withinGracePeriod bool) error {
	script, err := receiveSwapScripts(s)
	if err != nil {
		return err
	}
	history := rc.LbtcHistory[scriptKey(script)]

	var rec recoveredReceive
	if len(history) > 0 {
		rec.lockupTxID = history[0].TxID
	} else {
		log.Warnf("receive swap %s: no lockup tx found in history during recovery", s.ID)
	}
	for _, h := range history {
		if h.TxID == rec.lockupTxID {
			continue
		}
		if rc.TxMap.IsIncoming(h.TxID) {
			rec.claimTxID = h.TxID
			rec.claimConf = h.Confirmed()
			break
		}
	}

	if rec.lockupTxID == "" && s.MrhAddress != "" {
		mrhScript, err := addressToScript(s.MrhAddress)
		if err == nil {
			for _, h := range rc.LbtcHistory[scriptKey(mrhScript)] {
				rec.mrhTxID = h.TxID
				rec.mrhConf = h.Confirmed()
				break
			}
		}
	}

	return applyReceiveRecovery(s, rc, rec, withinGracePeriod)
}

// applyReceiveRecovery writes recovered tx ids/state onto s, honoring the
// grace-period guard the same way applySendRecovery does.
func applyReceiveRecovery(s *swap.Receive, rc *RecoveryContext, rec recoveredReceive, withinGracePeriod bool) error {
	lockupCleared := s.LockupTxID != "" && rec.lockupTxID == ""
	claimCleared := s.ClaimTxID != "" && rec.claimTxID == ""
	if withinGracePeriod && (lockupCleared || claimCleared) {
		log.Warnf("receive swap %s: skipping recovery within grace period, would clear a recent broadcast", s.ID)
		return nil
	}

	if rec.lockupTxID != "" {
		s.LockupTxID = rec.lockupTxID
	}
	if rec.claimTxID != "" {
		s.ClaimTxID = rec.claimTxID
	}
	if rec.mrhTxID != "" {
		s.MrhTxID = rec.mrhTxID
	}

	isExpired := rc.LiquidTipHeight >= s.TimeoutBlockHeight
	if newState, ok := deriveReceiveState(rec, isExpired); ok {
		s.State = newState
	}
	return nil
}

// deriveReceiveState mirrors RecoveredOnchainDataReceive::derive_partial_state:
// a lockup with a confirmed claim is Complete, an unconfirmed one is
// Pending; a lockup with no claim is Pending, or Failed once expired; with
// no lockup at all, a confirmed MRH payment is Complete and an unconfirmed
// one is Pending; with nothing at all, Failed once expired, otherwise
// undecidable.
func deriveReceiveState(rec recoveredReceive, isExpired bool) (swap.State, bool) {
	if rec.lockupTxID != "" {
		if rec.claimTxID != "" {
			if rec.claimConf {
				return swap.StateComplete, true
			}
			return swap.StatePending, true
		}
		if isExpired {
			return swap.StateFailed, true
		}
		return swap.StatePending, true
	}

	if rec.mrhTxID != "" {
		if rec.mrhConf {
			return swap.StateComplete, true
		}
		return swap.StatePending, true
	}

	if isExpired {
		return swap.StateFailed, true
	}
	return 0, false
}
