package swap

import "sync"

// EventKind distinguishes what happened in an Event. These mirror the
// lifecycle a host application actually cares about rather than the raw
// internal State values, so StatePending maps to one of two different
// kinds depending on whether a lockup/claim tx is still unconfirmed or the
// swap is simply waiting on the next status update.
type EventKind int

const (
	// EventSynced fires once the background recovery pass has reconciled
	// every ongoing swap against the counterparty/chain state.
	EventSynced EventKind = iota
	// EventDataSynced fires once the wallet's onchain scan has caught up
	// to the chain tip.
	EventDataSynced
	EventPaymentPending
	EventPaymentWaitingConfirmation
	EventPaymentSucceeded
	EventPaymentFailed
	EventPaymentRefundable
	EventPaymentRefundPending
	EventPaymentWaitingFeeAcceptance
)

func (k EventKind) String() string {
	switch k {
	case EventSynced:
		return "Synced"
	case EventDataSynced:
		return "DataSynced"
	case EventPaymentPending:
		return "PaymentPending"
	case EventPaymentWaitingConfirmation:
		return "PaymentWaitingConfirmation"
	case EventPaymentSucceeded:
		return "PaymentSucceeded"
	case EventPaymentFailed:
		return "PaymentFailed"
	case EventPaymentRefundable:
		return "PaymentRefundable"
	case EventPaymentRefundPending:
		return "PaymentRefundPending"
	case EventPaymentWaitingFeeAcceptance:
		return "PaymentWaitingFeeAcceptance"
	default:
		return "Unknown"
	}
}

// EventKindForState maps a swap's (kind, state) onto the EventKind a host
// application subscribes to, folding the three swap kinds' slightly
// different state meanings onto one shared taxonomy.
func EventKindForState(kind Kind, state State) EventKind {
	switch state {
	case StateCreated:
		return EventPaymentPending
	case StatePending:
		if kind == KindReceive {
			return EventPaymentWaitingConfirmation
		}
		return EventPaymentPending
	case StateWaitingFeeAcceptance:
		return EventPaymentWaitingFeeAcceptance
	case StateRefundable:
		return EventPaymentRefundable
	case StateRefundPending:
		return EventPaymentRefundPending
	case StateComplete:
		return EventPaymentSucceeded
	case StateTimedOut, StateFailed:
		return EventPaymentFailed
	default:
		return EventPaymentPending
	}
}

// EventDetails carries the payload a host application needs to render one
// payment-lifecycle event without re-fetching the swap record.
type EventDetails struct {
	Destination string // invoice or onchain address this swap pays
	TxID        string // the tx most relevant to the new state, if any
	AmountSat   int64
}

// DetailsFor builds the EventDetails payload for r's current fields,
// regardless of kind.
func DetailsFor(r *Record) EventDetails {
	switch r.Kind {
	case KindSend:
		s := r.Send
		txID := s.RefundTxID
		if txID == "" {
			txID = s.LockupTxID
		}
		return EventDetails{Destination: s.Invoice, TxID: txID, AmountSat: s.PayerAmountSat}
	case KindReceive:
		s := r.Receive
		txID := s.MrhTxID
		if txID == "" {
			txID = s.ClaimTxID
		}
		if txID == "" {
			txID = s.LockupTxID
		}
		return EventDetails{Destination: s.Invoice, TxID: txID, AmountSat: s.ReceiverAmountSat}
	case KindChain:
		s := r.Chain
		txID := s.ClaimTxID
		if txID == "" {
			txID = s.RefundTxID
		}
		if txID == "" {
			txID = s.UserLockupTxID
		}
		amount := s.ActualPayerAmountSat
		if amount == 0 {
			amount = s.PayerAmountSat
		}
		return EventDetails{Destination: s.ClaimAddress, TxID: txID, AmountSat: amount}
	default:
		return EventDetails{}
	}
}

// Event is the SdkEvent every state transition broadcasts over an
// in-process pub-sub.
type Event struct {
	Kind    EventKind
	SwapID  string
	State   State
	Details EventDetails
}

// eventChanBuffer bounds each listener's channel; a listener that falls
// behind this many undelivered events starts dropping rather than
// blocking the publisher.
const eventChanBuffer = 64

// EventBus is a bounded, multi-listener broadcast channel for Events.
// Publish never blocks: a slow listener drops events rather than stalling
// the state handler that's publishing them.
type EventBus struct {
	mu        sync.RWMutex
	listeners map[int]chan Event
	nextID    int
}

// NewEventBus constructs an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{listeners: make(map[int]chan Event)}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function the caller must eventually call.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, eventChanBuffer)
	b.listeners[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.listeners[id]; ok {
			close(existing)
			delete(b.listeners, id)
		}
	}
}

// Publish delivers ev to every current listener, dropping it for any
// listener whose buffer is full instead of blocking.
func (b *EventBus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.listeners {
		select {
		case ch <- ev:
		default:
			log.Warnf("event bus: dropping event for slow listener %d", id)
		}
	}
}
