package swapper

import "fmt"

// bolt11TagPaymentHash is BOLT11's 'p' tagged field: the 256-bit payment
// hash, always exactly 52 five-bit groups (260 bits, zero-padded to a
// round byte count).
const bolt11TagPaymentHash = 1

// DecodeInvoicePaymentHash extracts the payment hash from a BOLT11
// invoice, used to bind a newly created Send swap to the invoice it pays:
// the swap's PaymentHash is verified against the claim preimage the
// counterparty later reveals.
func DecodeInvoicePaymentHash(invoice string) ([]byte, error) {
	_, data, err := decodeBolt11DataPart(invoice)
	if err != nil {
		return nil, err
	}

	fields, err := parseTaggedFields(data)
	if err != nil {
		return nil, err
	}

	hash, ok := fields[bolt11TagPaymentHash]
	if !ok || len(hash) < 32 {
		return nil, fmt.Errorf("invoice carries no payment hash")
	}
	return hash[:32], nil
}
