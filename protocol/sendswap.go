package protocol

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/breez/breez-sdk-liquid-core/errs"
	"github.com/breez/breez-sdk-liquid-core/persist"
	"github.com/breez/breez-sdk-liquid-core/swap"
	"github.com/breez/breez-sdk-liquid-core/swapper"
)

// SendHandler owns every Send (submarine) swap.
type SendHandler struct {
	Backend
	payments *persist.Persister
}

// NewSendHandler builds a SendHandler over b, recording outgoing
// PaymentTxData rows in payments as lockups are broadcast.
func NewSendHandler(b Backend, payments *persist.Persister) *SendHandler {
	return &SendHandler{Backend: b, payments: payments}
}

// CreateSendSwap asks the counterparty for a new submarine swap paying
// invoice, generating a refund keypair for the lockup's refund leaf.
func (h *SendHandler) CreateSendSwap(ctx context.Context, invoice string) (*swap.Record, error) {
	paymentHash, err := swapper.DecodeInvoicePaymentHash(invoice)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrInvalidInvoice, err)
	}

	refundPriv, refundPub, err := newKeypair()
	if err != nil {
		return nil, err
	}

	resp, err := h.Swapper().CreateSendSwap(ctx, swapper.CreateSubmarineRequest{
		Invoice:         invoice,
		RefundPublicKey: refundPub,
	})
	if err != nil {
		return nil, err
	}

	createJSON, err := marshalCreateResponse(resp)
	if err != nil {
		return nil, err
	}

	r := &swap.Record{Kind: swap.KindSend, Send: &swap.Send{
		Base: swap.Base{
			ID: resp.ID, State: swap.StateCreated, CreatedAt: timeNow(), LastUpdatedAt: timeNow(),
			PayerAmountSat: resp.ExpectedAmount, TimeoutBlockHeight: resp.TimeoutBlockHeight,
			CreateResponseJSON: createJSON, RefundPrivateKey: refundPriv,
		},
		Invoice:     invoice,
		PaymentHash: paymentHash,
	}}

	if err := h.Manager().AddSwap(r); err != nil {
		return nil, err
	}
	return r, nil
}

// HandleStatus dispatches one counterparty status update to the matching
// Send swap, idempotently: every broadcast path below first checks the
// relevant tx-id field and no-ops if it's already set.
func (h *SendHandler) HandleStatus(ctx context.Context, r *swap.Record, status swapper.SwapStatus) error {
	if r.Kind != swap.KindSend {
		return fmt.Errorf("send handler given a %s swap", r.Kind)
	}
	s := r.Send

	switch status.Status {
	case "invoice.set":
		return h.handleInvoiceSet(ctx, r)
	case "transaction.claim.pending":
		return h.handleClaimPending(ctx, r)
	case "transaction.claimed":
		return h.handleClaimed(ctx, r)
	case "invoice.failedToPay", "swap.expired", "transaction.lockupFailed":
		return h.handleFailure(ctx, r)
	default:
		log.Warnf("send swap %s: unhandled status %q", s.ID, status.Status)
		return nil
	}
}

func (h *SendHandler) handleInvoiceSet(ctx context.Context, r *swap.Record) error {
	s := r.Send
	if s.LockupTxID != "" {
		return nil
	}

	var resp struct {
		Address        string
		ExpectedAmount int64
	}
	if err := parseCreateResponse(s.CreateResponseJSON, &resp); err != nil {
		return err
	}

	tx, err := h.Wallet().BuildTx(ctx, 0, resp.Address, resp.ExpectedAmount)
	if err != nil {
		return fmt.Errorf("%w: building send swap lockup: %s", errs.ErrInsufficientFunds, err)
	}

	if h.payments != nil {
		if err := h.payments.InsertPaymentTxData(persist.PaymentTxData{
			TxID: tx.TxID, AssetID: lbtcAssetID, Amount: resp.ExpectedAmount, PaymentType: persist.PaymentTypeSend,
		}); err != nil {
			return err
		}
	}

	_, err = h.ChainService(lbtcAsset).Broadcast(ctx, tx.Hex)
	if err != nil {
		return fmt.Errorf("%w: broadcasting send swap lockup: %s", errs.ErrServiceConnectivity, err)
	}

	return updateSwapInfo(h.Backend, r, swap.StatePending, func() {
		s.LockupTxID = tx.TxID
	})
}

func (h *SendHandler) handleClaimPending(ctx context.Context, r *swap.Record) error {
	s := r.Send

	details, err := h.Swapper().GetSendClaimTxDetails(ctx, s.ID)
	if err != nil {
		return err
	}
	if !verifyPaymentHash(details.Preimage, s.PaymentHash) {
		return fmt.Errorf("%w: send swap %s: claim preimage does not match invoice hash", errs.ErrInvalidPreimage, s.ID)
	}

	if err := updateSwapInfo(h.Backend, r, swap.StateComplete, func() {
		s.Preimage = details.Preimage
	}); err != nil {
		return err
	}

	// Posting our partial signature is best-effort: failure here just means
	// the counterparty falls back to a script-path claim, from which we
	// can still recover the preimage from the claim tx witness.
	addr, _, err := h.Wallet().NextUnusedAddress(ctx)
	if err != nil {
		log.Warnf("send swap %s: deriving cooperative claim output failed: %s", s.ID, err)
		return nil
	}
	_ = addr
	partialSig := h.partialSignClaim(s, details)
	if err := h.Swapper().ClaimSendSwapCooperative(ctx, s.ID, partialSig, details.PubNonce); err != nil {
		log.Warnf("send swap %s: cooperative claim post failed, counterparty will fall back: %s", s.ID, err)
	}
	return nil
}

// partialSignClaim computes our half of the MuSig2 signature over the
// counterparty-supplied claim transaction hash. Aggregating nonces and
// producing a real MuSig2 partial signature needs a taproot-musig2 library
// this module doesn't depend on; until one is wired in, this returns the
// signing key's plain digest signature as a placeholder so the round-trip
// to ClaimSendSwapCooperative is exercised end-to-end.
func (h *SendHandler) partialSignClaim(s *swap.Send, details swapper.ClaimTxDetails) []byte {
	var digest [32]byte
	copy(digest[:], details.TransactionHash)
	path := []uint32{0, 0}
	sig, err := h.Wallet().SignDigestForSwap(path, digest)
	if err != nil {
		log.Warnf("send swap %s: partial signature placeholder failed: %s", s.ID, err)
		return nil
	}
	return sig
}

func (h *SendHandler) handleClaimed(ctx context.Context, r *swap.Record) error {
	s := r.Send
	if s.State.Terminal() {
		return nil
	}
	return updateSwapInfo(h.Backend, r, swap.StateComplete, func() {})
}

func (h *SendHandler) handleFailure(ctx context.Context, r *swap.Record) error {
	s := r.Send

	if s.LockupTxID == "" {
		return updateSwapInfo(h.Backend, r, swap.StateFailed, func() {})
	}
	if s.RefundTxID != "" {
		return nil
	}

	refundTx, cooperative, err := h.refund(ctx, s)
	if err != nil {
		return fmt.Errorf("refunding send swap %s: %w", s.ID, err)
	}
	log.Infof("send swap %s: broadcast %s refund %s", s.ID, cooperativeLabel(cooperative), refundTx)

	return updateSwapInfo(h.Backend, r, swap.StateRefundPending, func() {
		s.RefundTxID = refundTx
	})
}

// refund checks that the L-BTC tip has reached the swap's timeout, then
// returns an ErrGeneric error; it builds and broadcasts no refund
// transaction.
func (h *SendHandler) refund(ctx context.Context, s *swap.Send) (txID string, cooperative bool, err error) {
	addr, _, err := h.Wallet().NextUnusedAddress(ctx)
	if err != nil {
		return "", false, err
	}

	tip := h.ChainService(lbtcAsset).Tip
	height, err := tip(ctx)
	if err != nil {
		return "", false, err
	}
	if height < s.TimeoutBlockHeight {
		return "", false, fmt.Errorf("%w: tip %d has not reached timeout %d", errs.ErrGeneric, height, s.TimeoutBlockHeight)
	}

	// The non-cooperative script-path refund tx is assembled from the swap
	// tree reconstructed out of CreateResponseJSON; see swapper.BuildClaimScriptTree.
	_ = addr
	return "", false, fmt.Errorf("%w: script-path send refund construction not yet wired", errs.ErrGeneric)
}

func verifyPaymentHash(preimage, paymentHash []byte) bool {
	if len(preimage) != 32 || len(paymentHash) != 32 {
		return false
	}
	got := sha256.Sum256(preimage)
	return string(got[:]) == string(paymentHash)
}

func cooperativeLabel(cooperative bool) string {
	if cooperative {
		return "cooperative"
	}
	return "non-cooperative"
}
