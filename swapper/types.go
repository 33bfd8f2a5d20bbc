// Package swapper is the typed client for the swap counterparty:
// create/pair/quote/claim-cooperative/refund-cooperative HTTP calls plus
// the long-lived StatusStream websocket subscription.
package swapper

import (
	logging "github.com/ipfs/go-log"
)

var log = logging.Logger("swapper")

// CreateSubmarineRequest is the request to create a Send (submarine) swap.
type CreateSubmarineRequest struct {
	Invoice         string
	RefundPublicKey []byte
}

// CreateSubmarineResponse is the counterparty's create-submarine reply,
// stored verbatim in Send.CreateResponseJSON.
type CreateSubmarineResponse struct {
	ID                 string   `json:"id"`
	Address            string   `json:"address"`
	ExpectedAmount     int64    `json:"expectedAmount"`
	SwapTree           SwapTree `json:"swapTree"`
	ClaimPublicKey     string   `json:"claimPublicKey"`
	BlindingKey        string   `json:"blindingKey,omitempty"`
	TimeoutBlockHeight uint32   `json:"timeoutBlockHeight"`
	AcceptZeroConf     bool     `json:"acceptZeroConf"`
}

// CreateReverseRequest is the request to create a Receive (reverse) swap.
type CreateReverseRequest struct {
	PreimageHash   []byte
	ClaimPublicKey []byte
	InvoiceAmount  int64
	Bolt12Offer    bool
}

// CreateReverseResponse is the counterparty's create-reverse reply, stored
// verbatim in Receive.CreateResponseJSON.
type CreateReverseResponse struct {
	ID                 string   `json:"id"`
	Invoice            string   `json:"invoice,omitempty"`
	LockupAddress      string   `json:"lockupAddress"`
	SwapTree           SwapTree `json:"swapTree"`
	RefundPublicKey    string   `json:"refundPublicKey"`
	OnchainAmount      int64    `json:"onchainAmount"`
	TimeoutBlockHeight uint32   `json:"timeoutBlockHeight"`
	BlindingKey        string   `json:"blindingKey,omitempty"`
}

// CreateChainRequest is the request to create a Chain (on-chain) swap.
type CreateChainRequest struct {
	Direction      string // "incoming" | "outgoing"
	PreimageHash   []byte
	ClaimPublicKey []byte
	UserAmount     int64 // 0 for a zero-amount chain swap
}

// ChainSwapDetails is one leg (claim or lockup) of a chain swap.
type ChainSwapDetails struct {
	SwapTree           SwapTree `json:"swapTree"`
	LockupAddress      string   `json:"lockupAddress"`
	ServerPublicKey    string   `json:"serverPublicKey"`
	TimeoutBlockHeight uint32   `json:"timeoutBlockHeight"`
	Amount             int64    `json:"amount"`
	BlindingKey        string   `json:"blindingKey,omitempty"`
}

// CreateChainResponse is the counterparty's create-chain reply, stored
// verbatim in Chain.CreateResponseJSON.
type CreateChainResponse struct {
	ID            string           `json:"id"`
	ClaimDetails  ChainSwapDetails `json:"claimDetails"`
	LockupDetails ChainSwapDetails `json:"lockupDetails"`
}

// SwapTree describes the Taproot leaf scripts the swap output commits to:
// a claim leaf (spendable with the preimage) and a refund leaf (spendable
// after the timeout), reconstructed from the stored create-response JSON.
type SwapTree struct {
	ClaimLeaf  TapLeaf `json:"claimLeaf"`
	RefundLeaf TapLeaf `json:"refundLeaf"`
}

// TapLeaf is one leaf of the swap's Taproot tree. Version is always 0xC4 on
// Elements (Elements' Taproot leaf version, distinct from Bitcoin's 0xC0).
type TapLeaf struct {
	Version uint8  `json:"version"`
	Script  string `json:"output"` // hex-encoded script
}

// ElementsLeafVersion is the Elements Taproot leaf version used by every
// swap script leaf on the L-BTC side.
const ElementsLeafVersion uint8 = 0xC4

// Pair is a fee schedule + limits for one swap direction, as returned by
// the submarine/reverse/chain pair-lookup endpoints.
type Pair struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	PercentageFee float64 `json:"percentageFee"`
	MinerFeeSat   int64   `json:"minerFeeSat"`
	MinimumSat    int64   `json:"minimum"`
	MaximumSat    int64   `json:"maximum"`
	ClaimFeesSat  int64   `json:"claimFeesSat,omitempty"`
}

// ClaimTxDetails carries what's needed to co-sign a cooperative key-path
// claim on the counterparty's behalf.
type ClaimTxDetails struct {
	Preimage        []byte
	PubNonce        []byte
	PublicKey       []byte
	TransactionHash []byte
}

// SwapStatus is one status-stream update.
type SwapStatus struct {
	ID     string
	Status string
	Args   map[string]any
}

// InvoiceRequest is a BOLT12-offer invoice request pushed over the status
// stream.
type InvoiceRequest struct {
	SwapID string
	Offer  string
}
