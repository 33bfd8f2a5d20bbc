package protocol

import (
	"context"
	"fmt"

	"github.com/breez/breez-sdk-liquid-core/errs"
	"github.com/breez/breez-sdk-liquid-core/persist"
	"github.com/breez/breez-sdk-liquid-core/swap"
	"github.com/breez/breez-sdk-liquid-core/swapper"
)

// mrhReservationBlocks is how many blocks past the swap's own timeout the
// MRH address stays reserved, so a confirmed-but-slow MRH payment doesn't
// race a freshly created swap claiming the same address.
const mrhReservationBlocks = 10

// ReceiveHandler owns every Receive (reverse submarine) swap.
type ReceiveHandler struct {
	Backend
	reservations *persist.Persister
	payments     *persist.Persister
}

// NewReceiveHandler builds a ReceiveHandler over b.
func NewReceiveHandler(b Backend, reservations, payments *persist.Persister) *ReceiveHandler {
	return &ReceiveHandler{Backend: b, reservations: reservations, payments: payments}
}

// CreateReceiveSwap asks the counterparty for a new reverse swap paying
// invoiceAmountSat, generating our own preimage, reserving the Magic
// Routing Hint address it returns, and registering the swap as ongoing.
func (h *ReceiveHandler) CreateReceiveSwap(ctx context.Context, invoiceAmountSat int64, claimFeesSat int64) (*swap.Record, error) {
	claimPriv, claimPub, preimage, preimageHash, err := newReceiveKeypair()
	if err != nil {
		return nil, err
	}

	resp, err := h.Swapper().CreateReceiveSwap(ctx, swapper.CreateReverseRequest{
		PreimageHash:   preimageHash,
		ClaimPublicKey: claimPub,
		InvoiceAmount:  invoiceAmountSat,
	})
	if err != nil {
		return nil, err
	}

	height, err := h.ChainService(lbtcAsset).Tip(ctx)
	if err != nil {
		return nil, err
	}

	hint, err := swapper.CheckForMRH(resp.Invoice)
	if err != nil {
		log.Warnf("receive swap %s: no MRH extracted: %s", resp.ID, err)
	}
	mrhAddr := ""
	if hint != nil {
		mrhAddr = mrhAddress(hint, h.Params())
		if h.reservations != nil {
			if err := h.reservations.ReserveAddress(mrhAddr, resp.TimeoutBlockHeight+mrhReservationBlocks, height); err != nil {
				log.Warnf("receive swap %s: MRH address reservation failed: %s", resp.ID, err)
			}
		}
	}

	createJSON, err := marshalCreateResponse(resp)
	if err != nil {
		return nil, err
	}

	r := &swap.Record{Kind: swap.KindReceive, Receive: &swap.Receive{
		Base: swap.Base{
			ID: resp.ID, State: swap.StateCreated, CreatedAt: timeNow(), LastUpdatedAt: timeNow(),
			ReceiverAmountSat: invoiceAmountSat, TimeoutBlockHeight: resp.TimeoutBlockHeight,
			CreateResponseJSON: createJSON, ClaimPrivateKey: claimPriv, Preimage: preimage,
		},
		Invoice:      resp.Invoice,
		MrhAddress:   mrhAddr,
		ClaimFeesSat: claimFeesSat,
	}}

	if err := h.Manager().AddSwap(r); err != nil {
		return nil, err
	}
	return r, nil
}

// HandleStatus dispatches one counterparty status update to the matching
// Receive swap.
func (h *ReceiveHandler) HandleStatus(ctx context.Context, r *swap.Record, status swapper.SwapStatus) error {
	if r.Kind != swap.KindReceive {
		return fmt.Errorf("receive handler given a %s swap", r.Kind)
	}

	switch status.Status {
	case "swap.created":
		return nil // idle, already Created
	case "transaction.mempool":
		return h.handleLockupSeen(ctx, r, false)
	case "transaction.confirmed":
		return h.handleLockupSeen(ctx, r, true)
	case "transaction.claimed":
		return h.handleClaimConfirmed(ctx, r)
	case "swap.expired", "invoice.expired":
		return h.handleExpired(ctx, r)
	default:
		log.Warnf("receive swap %s: unhandled status %q", r.Receive.ID, status.Status)
		return nil
	}
}

// HandleMRHPayment is called when the chain scanner observes a direct
// payment to a Receive swap's MRH address — the MRH fast path: the swap
// completes without any lockup/claim ever happening.
func (h *ReceiveHandler) HandleMRHPayment(ctx context.Context, r *swap.Record, txID string) error {
	if r.Kind != swap.KindReceive {
		return fmt.Errorf("receive handler given a %s swap", r.Kind)
	}
	s := r.Receive
	if s.ClaimTxID != "" || s.MrhTxID != "" {
		return nil
	}

	return updateSwapInfo(h.Backend, r, swap.StateComplete, func() {
		s.MrhTxID = txID
	})
}

func (h *ReceiveHandler) handleLockupSeen(ctx context.Context, r *swap.Record, confirmed bool) error {
	s := r.Receive
	if s.LockupTxID == "" {
		// We don't learn the lockup tx id from the status stream directly;
		// the wallet scanner's next FullScan populates it against the
		// swap's lockup address. Record that a lockup is in flight so a
		// second mempool/confirmed event for the same swap is a no-op.
		if err := updateSwapInfo(h.Backend, r, swap.StatePending, func() { s.LockupTxID = "pending" }); err != nil {
			return err
		}
	}

	var resp struct {
		OnchainAmount int64
	}
	if err := parseCreateResponse(s.CreateResponseJSON, &resp); err != nil {
		return err
	}

	if !confirmed && !s.AcceptZeroConf {
		return nil
	}
	if s.ClaimTxID != "" {
		return nil
	}

	return h.broadcastClaim(ctx, r, resp.OnchainAmount)
}

func (h *ReceiveHandler) broadcastClaim(ctx context.Context, r *swap.Record, onchainAmount int64) error {
	s := r.Receive

	claimAddr, _, err := h.Wallet().NextUnusedAddress(ctx)
	if err != nil {
		return err
	}

	feeSat := s.ClaimFeesSat
	tx, err := h.Wallet().BuildTxOrDrainTx(ctx, 0, claimAddr, onchainAmount-feeSat)
	if err != nil {
		return fmt.Errorf("%w: building receive swap claim: %s", errs.ErrInsufficientFunds, err)
	}

	if h.payments != nil {
		if err := h.payments.InsertPaymentTxData(persist.PaymentTxData{
			TxID: tx.TxID, AssetID: lbtcAssetID, Amount: onchainAmount - feeSat, FeesSat: feeSat, PaymentType: persist.PaymentTypeReceive,
		}); err != nil {
			return err
		}
	}

	if _, err := h.ChainService(lbtcAsset).Broadcast(ctx, tx.Hex); err != nil {
		return fmt.Errorf("%w: broadcasting receive swap claim: %s", errs.ErrServiceConnectivity, err)
	}

	return updateSwapInfo(h.Backend, r, swap.StatePending, func() {
		s.ClaimTxID = tx.TxID
	})
}

func (h *ReceiveHandler) handleClaimConfirmed(ctx context.Context, r *swap.Record) error {
	s := r.Receive
	if s.State.Terminal() {
		return nil
	}
	return updateSwapInfo(h.Backend, r, swap.StateComplete, func() {})
}

func (h *ReceiveHandler) handleExpired(ctx context.Context, r *swap.Record) error {
	if r.Receive.State.Terminal() {
		return nil
	}
	return updateSwapInfo(h.Backend, r, swap.StateFailed, func() {})
}
