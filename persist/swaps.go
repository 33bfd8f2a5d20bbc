package persist

import (
	"database/sql"
	"time"

	"github.com/breez/breez-sdk-liquid-core/swap"
)

// PutSwap upserts r into the table matching its Kind, implementing
// swap.Database. The ON CONFLICT...DO UPDATE form (rather than INSERT OR
// REPLACE) is load-bearing: REPLACE deletes-then-inserts, which would fire
// schema.go's AFTER UPDATE version trigger as an INSERT instead, silently
// breaking version bumping.
func (p *Persister) PutSwap(r *swap.Record) error {
	switch r.Kind {
	case swap.KindSend:
		return p.putSendSwap(r.Send)
	case swap.KindReceive:
		return p.putReceiveSwap(r.Receive)
	case swap.KindChain:
		return p.putChainSwap(r.Chain)
	default:
		return wrapPersistErr("put swap", sql.ErrNoRows)
	}
}

func (p *Persister) putSendSwap(s *swap.Send) error {
	return p.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO send_swaps (
				id, state, created_at, last_updated_at, version,
				payer_amount_sat, receiver_amount_sat, timeout_block_height,
				create_response_json, claim_private_key, refund_private_key, preimage, pair_fees_json,
				invoice, payment_hash, bolt12_offer, lockup_tx_id, refund_tx_id
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				state=excluded.state, version=excluded.version,
				payer_amount_sat=excluded.payer_amount_sat, receiver_amount_sat=excluded.receiver_amount_sat,
				timeout_block_height=excluded.timeout_block_height, create_response_json=excluded.create_response_json,
				claim_private_key=excluded.claim_private_key, refund_private_key=excluded.refund_private_key,
				preimage=excluded.preimage, pair_fees_json=excluded.pair_fees_json,
				invoice=excluded.invoice, payment_hash=excluded.payment_hash, bolt12_offer=excluded.bolt12_offer,
				lockup_tx_id=excluded.lockup_tx_id, refund_tx_id=excluded.refund_tx_id
		`,
			s.ID, s.State.String(), s.CreatedAt.Unix(), s.LastUpdatedAt.Unix(), s.Version,
			s.PayerAmountSat, s.ReceiverAmountSat, s.TimeoutBlockHeight,
			s.CreateResponseJSON, s.ClaimPrivateKey, s.RefundPrivateKey, s.Preimage, s.PairFeesJSON,
			s.Invoice, s.PaymentHash, s.Bolt12Offer, nullIfEmpty(s.LockupTxID), nullIfEmpty(s.RefundTxID),
		)
		return err
	})
}

func (p *Persister) putReceiveSwap(s *swap.Receive) error {
	return p.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO receive_swaps (
				id, state, created_at, last_updated_at, version,
				payer_amount_sat, receiver_amount_sat, timeout_block_height,
				create_response_json, claim_private_key, refund_private_key, preimage, pair_fees_json,
				invoice, mrh_address, lockup_tx_id, claim_tx_id, mrh_tx_id, claim_fees_sat
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				state=excluded.state, version=excluded.version,
				payer_amount_sat=excluded.payer_amount_sat, receiver_amount_sat=excluded.receiver_amount_sat,
				timeout_block_height=excluded.timeout_block_height, create_response_json=excluded.create_response_json,
				claim_private_key=excluded.claim_private_key, refund_private_key=excluded.refund_private_key,
				preimage=excluded.preimage, pair_fees_json=excluded.pair_fees_json,
				invoice=excluded.invoice, mrh_address=excluded.mrh_address,
				lockup_tx_id=excluded.lockup_tx_id, claim_tx_id=excluded.claim_tx_id,
				mrh_tx_id=excluded.mrh_tx_id, claim_fees_sat=excluded.claim_fees_sat
		`,
			s.ID, s.State.String(), s.CreatedAt.Unix(), s.LastUpdatedAt.Unix(), s.Version,
			s.PayerAmountSat, s.ReceiverAmountSat, s.TimeoutBlockHeight,
			s.CreateResponseJSON, s.ClaimPrivateKey, s.RefundPrivateKey, s.Preimage, s.PairFeesJSON,
			s.Invoice, s.MrhAddress, nullIfEmpty(s.LockupTxID), nullIfEmpty(s.ClaimTxID), nullIfEmpty(s.MrhTxID), s.ClaimFeesSat,
		)
		return err
	})
}

func (p *Persister) putChainSwap(s *swap.Chain) error {
	direction := "incoming"
	if s.Direction == swap.ChainOutgoing {
		direction = "outgoing"
	}
	return p.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO chain_swaps (
				id, state, created_at, last_updated_at, version,
				payer_amount_sat, receiver_amount_sat, timeout_block_height,
				create_response_json, claim_private_key, refund_private_key, preimage, pair_fees_json,
				direction, lockup_address, claim_address, user_lockup_tx_id, server_lockup_tx_id,
				claim_tx_id, refund_tx_id, accept_zero_conf, actual_payer_amount_sat,
				accepted_receiver_amount_sat, auto_accepted_fees
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				state=excluded.state, version=excluded.version,
				payer_amount_sat=excluded.payer_amount_sat, receiver_amount_sat=excluded.receiver_amount_sat,
				timeout_block_height=excluded.timeout_block_height, create_response_json=excluded.create_response_json,
				claim_private_key=excluded.claim_private_key, refund_private_key=excluded.refund_private_key,
				preimage=excluded.preimage, pair_fees_json=excluded.pair_fees_json,
				claim_address=excluded.claim_address, user_lockup_tx_id=excluded.user_lockup_tx_id,
				server_lockup_tx_id=excluded.server_lockup_tx_id, claim_tx_id=excluded.claim_tx_id,
				refund_tx_id=excluded.refund_tx_id, accept_zero_conf=excluded.accept_zero_conf,
				actual_payer_amount_sat=excluded.actual_payer_amount_sat,
				accepted_receiver_amount_sat=excluded.accepted_receiver_amount_sat,
				auto_accepted_fees=excluded.auto_accepted_fees
		`,
			s.ID, s.State.String(), s.CreatedAt.Unix(), s.LastUpdatedAt.Unix(), s.Version,
			s.PayerAmountSat, s.ReceiverAmountSat, s.TimeoutBlockHeight,
			s.CreateResponseJSON, s.ClaimPrivateKey, s.RefundPrivateKey, s.Preimage, s.PairFeesJSON,
			direction, s.LockupAddress, nullIfEmpty(s.ClaimAddress), nullIfEmpty(s.UserLockupTxID), nullIfEmpty(s.ServerLockupTxID),
			nullIfEmpty(s.ClaimTxID), nullIfEmpty(s.RefundTxID), s.AcceptZeroConf, s.ActualPayerAmountSat,
			s.AcceptedReceiverAmountSat, s.AutoAcceptedFees,
		)
		return err
	})
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func parseState(s string) swap.State {
	for st := swap.StateCreated; st <= swap.StateFailed; st++ {
		if st.String() == s {
			return st
		}
	}
	return swap.StateFailed
}

// GetAllSwaps implements swap.Database, reading every row across all three
// swap tables back into tagged-sum Records.
func (p *Persister) GetAllSwaps() ([]*swap.Record, error) {
	var out []*swap.Record

	sendRows, err := p.db.Query(`
		SELECT id, state, created_at, last_updated_at, version, payer_amount_sat, receiver_amount_sat,
			timeout_block_height, create_response_json, claim_private_key, refund_private_key, preimage, pair_fees_json,
			invoice, payment_hash, bolt12_offer, lockup_tx_id, refund_tx_id
		FROM send_swaps`)
	if err != nil {
		return nil, wrapPersistErr("reading send_swaps", err)
	}
	defer sendRows.Close()
	for sendRows.Next() {
		s := &swap.Send{}
		var createdAt, updatedAt int64
		var state string
		var lockupTxID, refundTxID sql.NullString
		if err := sendRows.Scan(&s.ID, &state, &createdAt, &updatedAt, &s.Version, &s.PayerAmountSat, &s.ReceiverAmountSat,
			&s.TimeoutBlockHeight, &s.CreateResponseJSON, &s.ClaimPrivateKey, &s.RefundPrivateKey, &s.Preimage, &s.PairFeesJSON,
			&s.Invoice, &s.PaymentHash, &s.Bolt12Offer, &lockupTxID, &refundTxID); err != nil {
			return nil, wrapPersistErr("scanning send_swaps row", err)
		}
		s.State = parseState(state)
		s.CreatedAt = time.Unix(createdAt, 0)
		s.LastUpdatedAt = time.Unix(updatedAt, 0)
		s.LockupTxID = lockupTxID.String
		s.RefundTxID = refundTxID.String
		out = append(out, &swap.Record{Kind: swap.KindSend, Send: s})
	}
	if err := sendRows.Err(); err != nil {
		return nil, wrapPersistErr("iterating send_swaps", err)
	}

	receiveRows, err := p.db.Query(`
		SELECT id, state, created_at, last_updated_at, version, payer_amount_sat, receiver_amount_sat,
			timeout_block_height, create_response_json, claim_private_key, refund_private_key, preimage, pair_fees_json,
			invoice, mrh_address, lockup_tx_id, claim_tx_id, mrh_tx_id, claim_fees_sat
		FROM receive_swaps`)
	if err != nil {
		return nil, wrapPersistErr("reading receive_swaps", err)
	}
	defer receiveRows.Close()
	for receiveRows.Next() {
		s := &swap.Receive{}
		var createdAt, updatedAt int64
		var state string
		var lockupTxID, claimTxID, mrhTxID sql.NullString
		if err := receiveRows.Scan(&s.ID, &state, &createdAt, &updatedAt, &s.Version, &s.PayerAmountSat, &s.ReceiverAmountSat,
			&s.TimeoutBlockHeight, &s.CreateResponseJSON, &s.ClaimPrivateKey, &s.RefundPrivateKey, &s.Preimage, &s.PairFeesJSON,
			&s.Invoice, &s.MrhAddress, &lockupTxID, &claimTxID, &mrhTxID, &s.ClaimFeesSat); err != nil {
			return nil, wrapPersistErr("scanning receive_swaps row", err)
		}
		s.State = parseState(state)
		s.CreatedAt = time.Unix(createdAt, 0)
		s.LastUpdatedAt = time.Unix(updatedAt, 0)
		s.LockupTxID = lockupTxID.String
		s.ClaimTxID = claimTxID.String
		s.MrhTxID = mrhTxID.String
		out = append(out, &swap.Record{Kind: swap.KindReceive, Receive: s})
	}
	if err := receiveRows.Err(); err != nil {
		return nil, wrapPersistErr("iterating receive_swaps", err)
	}

	chainRows, err := p.db.Query(`
		SELECT id, state, created_at, last_updated_at, version, payer_amount_sat, receiver_amount_sat,
			timeout_block_height, create_response_json, claim_private_key, refund_private_key, preimage, pair_fees_json,
			direction, lockup_address, claim_address, user_lockup_tx_id, server_lockup_tx_id,
			claim_tx_id, refund_tx_id, accept_zero_conf, actual_payer_amount_sat,
			accepted_receiver_amount_sat, auto_accepted_fees
		FROM chain_swaps`)
	if err != nil {
		return nil, wrapPersistErr("reading chain_swaps", err)
	}
	defer chainRows.Close()
	for chainRows.Next() {
		s := &swap.Chain{}
		var createdAt, updatedAt int64
		var state, direction string
		var claimAddress, userLockupTxID, serverLockupTxID, claimTxID, refundTxID sql.NullString
		if err := chainRows.Scan(&s.ID, &state, &createdAt, &updatedAt, &s.Version, &s.PayerAmountSat, &s.ReceiverAmountSat,
			&s.TimeoutBlockHeight, &s.CreateResponseJSON, &s.ClaimPrivateKey, &s.RefundPrivateKey, &s.Preimage, &s.PairFeesJSON,
			&direction, &s.LockupAddress, &claimAddress, &userLockupTxID, &serverLockupTxID,
			&claimTxID, &refundTxID, &s.AcceptZeroConf, &s.ActualPayerAmountSat,
			&s.AcceptedReceiverAmountSat, &s.AutoAcceptedFees); err != nil {
			return nil, wrapPersistErr("scanning chain_swaps row", err)
		}
		s.State = parseState(state)
		s.CreatedAt = time.Unix(createdAt, 0)
		s.LastUpdatedAt = time.Unix(updatedAt, 0)
		if direction == "outgoing" {
			s.Direction = swap.ChainOutgoing
		} else {
			s.Direction = swap.ChainIncoming
		}
		s.ClaimAddress = claimAddress.String
		s.UserLockupTxID = userLockupTxID.String
		s.ServerLockupTxID = serverLockupTxID.String
		s.ClaimTxID = claimTxID.String
		s.RefundTxID = refundTxID.String
		out = append(out, &swap.Record{Kind: swap.KindChain, Chain: s})
	}
	if err := chainRows.Err(); err != nil {
		return nil, wrapPersistErr("iterating chain_swaps", err)
	}

	return out, nil
}

var _ swap.Database = (*Persister)(nil)
