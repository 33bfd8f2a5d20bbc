package persist

import (
	"database/sql"
	"time"
)

// PaymentType distinguishes the direction of a PaymentTxData row.
type PaymentType int

const (
	PaymentTypeSend PaymentType = iota
	PaymentTypeReceive
)

func (t PaymentType) String() string {
	if t == PaymentTypeReceive {
		return "receive"
	}
	return "send"
}

// PaymentTxData is the per-transaction payment record.
type PaymentTxData struct {
	TxID           string
	Timestamp      *time.Time
	AssetID        string
	Amount         int64
	FeesSat        int64
	PaymentType    PaymentType
	IsConfirmed    bool
	UnblindingData []byte
}

// PaymentDetails is the per-tx_id user-visible metadata.
type PaymentDetails struct {
	TxID          string
	Destination   string
	Description   string
	LnurlInfo     []byte
	Bip353Address string
	AssetFees     []byte
}

// InsertPaymentTxData records a payment immediately on lockup/claim
// broadcast, possibly before the wallet scanner observes the tx.
func (p *Persister) InsertPaymentTxData(d PaymentTxData) error {
	var ts interface{}
	if d.Timestamp != nil {
		ts = d.Timestamp.Unix()
	}
	return p.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO payment_tx_data (tx_id, timestamp, asset_id, amount, fees_sat, payment_type, is_confirmed, unblinding_data)
			VALUES (?,?,?,?,?,?,?,?)
			ON CONFLICT(tx_id) DO UPDATE SET
				timestamp=excluded.timestamp, is_confirmed=excluded.is_confirmed, unblinding_data=excluded.unblinding_data
		`, d.TxID, ts, d.AssetID, d.Amount, d.FeesSat, d.PaymentType.String(), d.IsConfirmed, d.UnblindingData)
		return err
	})
}

// GetPaymentTxData fetches one payment row by tx id.
func (p *Persister) GetPaymentTxData(txID string) (PaymentTxData, bool, error) {
	var d PaymentTxData
	var ts sql.NullInt64
	var paymentType string
	err := p.db.QueryRow(`
		SELECT tx_id, timestamp, asset_id, amount, fees_sat, payment_type, is_confirmed, unblinding_data
		FROM payment_tx_data WHERE tx_id = ?`, txID,
	).Scan(&d.TxID, &ts, &d.AssetID, &d.Amount, &d.FeesSat, &paymentType, &d.IsConfirmed, &d.UnblindingData)
	if err == sql.ErrNoRows {
		return PaymentTxData{}, false, nil
	}
	if err != nil {
		return PaymentTxData{}, false, wrapPersistErr("reading payment_tx_data", err)
	}
	if ts.Valid {
		t := time.Unix(ts.Int64, 0)
		d.Timestamp = &t
	}
	if paymentType == "receive" {
		d.PaymentType = PaymentTypeReceive
	}
	return d, true, nil
}

// UpsertPaymentDetails stores or updates the user-visible metadata for a tx.
func (p *Persister) UpsertPaymentDetails(d PaymentDetails) error {
	return p.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO payment_details (tx_id, destination, description, lnurl_info, bip353_address, asset_fees)
			VALUES (?,?,?,?,?,?)
			ON CONFLICT(tx_id) DO UPDATE SET
				destination=excluded.destination, description=excluded.description,
				lnurl_info=excluded.lnurl_info, bip353_address=excluded.bip353_address, asset_fees=excluded.asset_fees
		`, d.TxID, d.Destination, d.Description, d.LnurlInfo, d.Bip353Address, d.AssetFees)
		return err
	})
}
