// Package swap holds the swap data model shared by every state handler: a
// tagged-sum Swap type covering the Send, Receive, and Chain variants, the
// in-memory+DB Manager that owns them, and the SdkEvent pub-sub that
// broadcasts every state transition.
package swap

import (
	"time"

	logging "github.com/ipfs/go-log"
)

var log = logging.Logger("swap")

// Kind distinguishes which of the three swap variants a record holds.
type Kind int

const (
	KindSend Kind = iota
	KindReceive
	KindChain
)

func (k Kind) String() string {
	switch k {
	case KindSend:
		return "send"
	case KindReceive:
		return "receive"
	case KindChain:
		return "chain"
	default:
		return "unknown"
	}
}

// State is the swap lifecycle state common to all three kinds.
type State int

const (
	StateCreated State = iota
	StatePending
	StateWaitingFeeAcceptance
	StateRefundPending
	StateRefundable
	StateComplete
	StateTimedOut
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StatePending:
		return "Pending"
	case StateWaitingFeeAcceptance:
		return "WaitingFeeAcceptance"
	case StateRefundPending:
		return "RefundPending"
	case StateRefundable:
		return "Refundable"
	case StateComplete:
		return "Complete"
	case StateTimedOut:
		return "TimedOut"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition is ever valid from s: no
// state transitions are ever valid from Complete or Failed.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// ChainDirection distinguishes the two chain-swap flows.
type ChainDirection int

const (
	ChainIncoming ChainDirection = iota // BTC -> L-BTC
	ChainOutgoing                       // L-BTC -> BTC
)

// Base holds the fields common to every swap kind.
type Base struct {
	ID                string
	State             State
	CreatedAt         time.Time
	LastUpdatedAt     time.Time
	Version           int64
	PayerAmountSat    int64
	ReceiverAmountSat int64
	TimeoutBlockHeight uint32
	// CreateResponseJSON is the counterparty's original create-swap reply,
	// stored verbatim and never mutated; it is the source of truth for the
	// swap script, funding address, redeem script, and pair-fee rates.
	CreateResponseJSON []byte
	ClaimPrivateKey    []byte
	RefundPrivateKey   []byte
	Preimage           []byte
	PairFeesJSON       []byte
}

// Send is a submarine swap: pay a Lightning invoice by locking up L-BTC.
type Send struct {
	Base
	Invoice     string
	PaymentHash []byte
	Bolt12Offer string
	LockupTxID  string
	RefundTxID  string
}

// Receive is a reverse submarine swap: receive Lightning by claiming an
// L-BTC lockup from the counterparty.
type Receive struct {
	Base
	Invoice      string
	MrhAddress   string
	LockupTxID   string
	ClaimTxID    string
	MrhTxID      string
	ClaimFeesSat int64
}

// Chain is an on-chain BTC<->L-BTC swap.
type Chain struct {
	Base
	Direction                  ChainDirection
	LockupAddress               string
	ClaimAddress                string
	UserLockupTxID              string
	ServerLockupTxID            string
	ClaimTxID                   string
	RefundTxID                  string
	AcceptZeroConf              bool
	ActualPayerAmountSat        int64
	AcceptedReceiverAmountSat   int64
	AutoAcceptedFees            bool
}

// Record is the tagged-sum Swap type: exactly one of Send/Receive/Chain is
// non-nil, selected by Kind, in place of an inheritance hierarchy.
type Record struct {
	Kind    Kind
	Send    *Send
	Receive *Receive
	Chain   *Chain
}

// ID returns the swap id regardless of kind.
func (r *Record) ID() string {
	switch r.Kind {
	case KindSend:
		return r.Send.ID
	case KindReceive:
		return r.Receive.ID
	case KindChain:
		return r.Chain.ID
	default:
		return ""
	}
}

// State returns the swap's current lifecycle state regardless of kind.
func (r *Record) State() State {
	switch r.Kind {
	case KindSend:
		return r.Send.State
	case KindReceive:
		return r.Receive.State
	case KindChain:
		return r.Chain.State
	default:
		return StateFailed
	}
}

// Version returns the swap's row version regardless of kind.
func (r *Record) Version() int64 {
	switch r.Kind {
	case KindSend:
		return r.Send.Version
	case KindReceive:
		return r.Receive.Version
	case KindChain:
		return r.Chain.Version
	default:
		return 0
	}
}

// LastUpdatedAt returns the swap's last-mutation timestamp regardless of
// kind, used by the Recoverer's grace-period guard.
func (r *Record) LastUpdatedAt() time.Time {
	switch r.Kind {
	case KindSend:
		return r.Send.LastUpdatedAt
	case KindReceive:
		return r.Receive.LastUpdatedAt
	case KindChain:
		return r.Chain.LastUpdatedAt
	default:
		return time.Time{}
	}
}
