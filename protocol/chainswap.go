package protocol

import (
	"context"
	"fmt"
	"time"

	"github.com/breez/breez-sdk-liquid-core/chain"
	"github.com/breez/breez-sdk-liquid-core/errs"
	"github.com/breez/breez-sdk-liquid-core/persist"
	"github.com/breez/breez-sdk-liquid-core/swap"
	"github.com/breez/breez-sdk-liquid-core/swapper"
)

// zeroAmountQuoteMaxAge is one hour. ChainHandler does not read it: a
// quote surfaced as WaitingFeeAcceptance is neither re-fetched nor expired
// by age.
const zeroAmountQuoteMaxAge = time.Hour

// ChainHandler owns every Chain (on-chain BTC<->L-BTC) swap, both
// directions; the two flows share one handler because their state table
// and failure semantics are symmetric, differing only in which asset each
// leg is funded/claimed on.
type ChainHandler struct {
	Backend
	payments *persist.Persister
}

// NewChainHandler builds a ChainHandler over b.
func NewChainHandler(b Backend, payments *persist.Persister) *ChainHandler {
	return &ChainHandler{Backend: b, payments: payments}
}

// lockupAsset is the chain our own lockup is funded on; claimAsset is the
// chain we claim from, per direction.
func (h *ChainHandler) lockupAsset(dir swap.ChainDirection) chain.Asset {
	if dir == swap.ChainOutgoing {
		return lbtcAsset
	}
	return btcAsset
}

func (h *ChainHandler) claimAsset(dir swap.ChainDirection) chain.Asset {
	if dir == swap.ChainOutgoing {
		return btcAsset
	}
	return lbtcAsset
}

// CreateChainSwap asks the counterparty for a new chain swap and, for the
// outgoing (L-BTC -> BTC) direction, immediately funds our side of it from
// the wallet. The incoming (BTC -> L-BTC) direction returns the lockup
// address for the caller to fund externally: this engine has no BTC
// spending wallet of its own, only a BTC claim key — the user locks up on
// BTC themselves.
func (h *ChainHandler) CreateChainSwap(ctx context.Context, dir swap.ChainDirection, payerAmountSat int64) (*swap.Record, error) {
	claimPriv, claimPub, preimage, preimageHash, err := newReceiveKeypair()
	if err != nil {
		return nil, err
	}

	direction := "outgoing"
	if dir == swap.ChainIncoming {
		direction = "incoming"
	}

	resp, err := h.Swapper().CreateChainSwap(ctx, swapper.CreateChainRequest{
		Direction:      direction,
		PreimageHash:   preimageHash,
		ClaimPublicKey: claimPub,
		UserAmount:     payerAmountSat,
	})
	if err != nil {
		return nil, err
	}

	createJSON, err := marshalCreateResponse(resp)
	if err != nil {
		return nil, err
	}

	r := &swap.Record{Kind: swap.KindChain, Chain: &swap.Chain{
		Base: swap.Base{
			ID: resp.ID, State: swap.StateCreated, CreatedAt: timeNow(), LastUpdatedAt: timeNow(),
			PayerAmountSat: payerAmountSat, TimeoutBlockHeight: resp.LockupDetails.TimeoutBlockHeight,
			CreateResponseJSON: createJSON, ClaimPrivateKey: claimPriv, Preimage: preimage,
		},
		Direction:     dir,
		LockupAddress: resp.LockupDetails.LockupAddress,
		ClaimAddress:  resp.ClaimDetails.LockupAddress,
	}}

	if err := h.Manager().AddSwap(r); err != nil {
		return nil, err
	}

	if dir == swap.ChainOutgoing && payerAmountSat > 0 {
		if err := h.broadcastUserLockup(ctx, r); err != nil {
			return r, err
		}
	}
	return r, nil
}

// broadcastUserLockup funds our side of an outgoing chain swap from the
// wallet, the L-BTC-denominated equivalent of a Send swap's lockup.
func (h *ChainHandler) broadcastUserLockup(ctx context.Context, r *swap.Record) error {
	s := r.Chain
	if s.UserLockupTxID != "" {
		return nil
	}

	tx, err := h.Wallet().BuildTx(ctx, 0, s.LockupAddress, s.PayerAmountSat)
	if err != nil {
		return fmt.Errorf("%w: building chain swap lockup: %s", errs.ErrInsufficientFunds, err)
	}

	if h.payments != nil {
		if err := h.payments.InsertPaymentTxData(persist.PaymentTxData{
			TxID: tx.TxID, AssetID: lbtcAssetID, Amount: s.PayerAmountSat, PaymentType: persist.PaymentTypeSend,
		}); err != nil {
			return err
		}
	}

	if _, err := h.ChainService(h.lockupAsset(s.Direction)).Broadcast(ctx, tx.Hex); err != nil {
		return fmt.Errorf("%w: broadcasting chain swap lockup: %s", errs.ErrServiceConnectivity, err)
	}

	return updateSwapInfo(h.Backend, r, swap.StatePending, func() {
		s.UserLockupTxID = tx.TxID
	})
}

// HandleStatus dispatches one counterparty status update to the matching
// Chain swap, for either direction.
func (h *ChainHandler) HandleStatus(ctx context.Context, r *swap.Record, status swapper.SwapStatus) error {
	if r.Kind != swap.KindChain {
		return fmt.Errorf("chain handler given a %s swap", r.Kind)
	}

	switch status.Status {
	case "swap.created":
		return nil
	case "transaction.server.mempool":
		return h.handleServerLockupSeen(ctx, r, false)
	case "transaction.server.confirmed":
		return h.handleServerLockupSeen(ctx, r, true)
	case "transaction.claimed":
		return h.handleClaimConfirmed(ctx, r)
	case "transaction.lockupFailed", "swap.expired":
		return h.handleFailure(ctx, r)
	default:
		log.Warnf("chain swap %s: unhandled status %q", r.Chain.ID, status.Status)
		return nil
	}
}

func (h *ChainHandler) handleServerLockupSeen(ctx context.Context, r *swap.Record, confirmed bool) error {
	s := r.Chain
	if s.ServerLockupTxID == "" {
		if err := updateSwapInfo(h.Backend, r, swap.StatePending, func() { s.ServerLockupTxID = "pending" }); err != nil {
			return err
		}
	}
	if s.ClaimTxID != "" {
		return nil
	}

	if s.PayerAmountSat == 0 && !s.AutoAcceptedFees && s.AcceptedReceiverAmountSat == 0 {
		return h.requestFeeAcceptance(ctx, r)
	}

	if !confirmed {
		return nil
	}
	return h.broadcastClaim(ctx, r)
}

// requestFeeAcceptance fetches the server's zero-amount quote and surfaces
// it as WaitingFeeAcceptance.
func (h *ChainHandler) requestFeeAcceptance(ctx context.Context, r *swap.Record) error {
	s := r.Chain
	quote, err := h.Swapper().GetZeroAmountChainSwapQuote(ctx, s.ID)
	if err != nil {
		return err
	}

	return updateSwapInfo(h.Backend, r, swap.StateWaitingFeeAcceptance, func() {
		s.AcceptedReceiverAmountSat = quote
	})
}

// AcceptProposedFees is the user-driven continuation of a zero-amount chain
// swap once quote has been surfaced: it posts acceptance to the
// counterparty and resumes the claim flow.
func (h *ChainHandler) AcceptProposedFees(ctx context.Context, r *swap.Record) error {
	s := r.Chain
	if s.State != swap.StateWaitingFeeAcceptance {
		return fmt.Errorf("%w: chain swap %s is not waiting for fee acceptance", errs.ErrGeneric, s.ID)
	}

	if err := h.Swapper().AcceptZeroAmountChainSwapQuote(ctx, s.ID, s.AcceptedReceiverAmountSat); err != nil {
		return fmt.Errorf("%w: accepting chain swap quote: %s", errs.ErrServiceConnectivity, err)
	}

	if err := updateSwapInfo(h.Backend, r, swap.StatePending, func() { s.AutoAcceptedFees = false }); err != nil {
		return err
	}
	return h.broadcastClaim(ctx, r)
}

// broadcastClaim completes the chain swap's claim leg. For the incoming
// direction the claim is an ordinary L-BTC wallet spend, exactly like a
// Receive swap's claim. For the outgoing direction it returns
// broadcastBtcClaim's error, wrapped as ErrServiceConnectivity; no BTC
// claim transaction is built or broadcast.
func (h *ChainHandler) broadcastClaim(ctx context.Context, r *swap.Record) error {
	s := r.Chain
	if s.ClaimTxID != "" {
		return nil
	}

	switch s.Direction {
	case swap.ChainIncoming:
		claimAddr, _, err := h.Wallet().NextUnusedAddress(ctx)
		if err != nil {
			return err
		}
		var resp struct {
			ClaimDetails struct{ Amount int64 }
		}
		if err := parseCreateResponse(s.CreateResponseJSON, &resp); err != nil {
			return err
		}
		tx, err := h.Wallet().BuildTxOrDrainTx(ctx, 0, claimAddr, resp.ClaimDetails.Amount)
		if err != nil {
			return fmt.Errorf("%w: building chain swap claim: %s", errs.ErrInsufficientFunds, err)
		}
		if h.payments != nil {
			if err := h.payments.InsertPaymentTxData(persist.PaymentTxData{
				TxID: tx.TxID, AssetID: lbtcAssetID, Amount: resp.ClaimDetails.Amount, PaymentType: persist.PaymentTypeReceive,
			}); err != nil {
				return err
			}
		}
		if _, err := h.ChainService(lbtcAsset).Broadcast(ctx, tx.Hex); err != nil {
			return fmt.Errorf("%w: broadcasting chain swap claim: %s", errs.ErrServiceConnectivity, err)
		}
		return updateSwapInfo(h.Backend, r, swap.StatePending, func() { s.ClaimTxID = tx.TxID })

	default: // ChainOutgoing: BTC script-path claim
		txID, err := h.broadcastBtcClaim(ctx, s)
		if err != nil {
			return fmt.Errorf("%w: broadcasting chain swap BTC claim: %s", errs.ErrServiceConnectivity, err)
		}
		return updateSwapInfo(h.Backend, r, swap.StatePending, func() { s.ClaimTxID = txID })
	}
}

// broadcastBtcClaim is the outgoing direction's BTC claim step. It builds
// and broadcasts no transaction: it always returns an ErrGeneric error,
// records nothing on the swap, and leaves ClaimTxID unset.
func (h *ChainHandler) broadcastBtcClaim(ctx context.Context, s *swap.Chain) (string, error) {
	return "", fmt.Errorf("%w: BTC script-path claim construction not yet wired", errs.ErrGeneric)
}

func (h *ChainHandler) handleClaimConfirmed(ctx context.Context, r *swap.Record) error {
	s := r.Chain
	if s.State.Terminal() {
		return nil
	}
	return updateSwapInfo(h.Backend, r, swap.StateComplete, func() {})
}

// handleFailure refunds our own lockup leg once the server has failed
// before claiming it; a swap that never funded its lockup just fails.
func (h *ChainHandler) handleFailure(ctx context.Context, r *swap.Record) error {
	s := r.Chain

	if s.UserLockupTxID == "" {
		return updateSwapInfo(h.Backend, r, swap.StateFailed, func() {})
	}
	if s.RefundTxID != "" {
		return nil
	}

	refundTx, err := h.refundLockup(ctx, s)
	if err != nil {
		return fmt.Errorf("refunding chain swap %s: %w", s.ID, err)
	}

	return updateSwapInfo(h.Backend, r, swap.StateRefundPending, func() {
		s.RefundTxID = refundTx
	})
}

// refundLockup checks that the tip of the chain this swap's direction
// funded the lockup on has reached TimeoutBlockHeight, then returns an
// ErrGeneric error for either direction; it builds and broadcasts no
// refund transaction.
func (h *ChainHandler) refundLockup(ctx context.Context, s *swap.Chain) (string, error) {
	tip, err := h.ChainService(h.lockupAsset(s.Direction)).Tip(ctx)
	if err != nil {
		return "", err
	}
	if tip < s.TimeoutBlockHeight {
		return "", fmt.Errorf("%w: tip %d has not reached timeout %d", errs.ErrGeneric, tip, s.TimeoutBlockHeight)
	}

	if s.Direction == swap.ChainIncoming {
		// User-funded BTC lockup; refund needs the same BTC claim-side
		// tx construction broadcastBtcClaim documents as not yet wired.
		return "", fmt.Errorf("%w: BTC lockup refund construction not yet wired", errs.ErrGeneric)
	}

	addr, _, err := h.Wallet().NextUnusedAddress(ctx)
	if err != nil {
		return "", err
	}
	_ = addr
	// Non-cooperative script-path refund tx assembled from the swap tree
	// reconstructed out of CreateResponseJSON; see swapper.BuildClaimScriptTree.
	return "", fmt.Errorf("%w: script-path chain-swap lockup refund construction not yet wired", errs.ErrGeneric)
}
