package protocol

import (
	"time"

	"github.com/breez/breez-sdk-liquid-core/swap"
)

// updateSwapInfo re-validates the transition, bumps version/last_updated_at,
// persists, and broadcasts a SdkEvent — the single choke point every
// handler mutation goes through.
func updateSwapInfo(b Backend, r *swap.Record, newState swap.State, mutate func()) error {
	if err := swap.Validate(r.Kind, r.State(), newState); err != nil {
		return err
	}

	mutate()
	setState(r, newState)
	bumpVersion(r)

	if newState.Terminal() {
		return b.Manager().CompleteSwap(r)
	}
	if err := b.Manager().WriteSwapToDB(r); err != nil {
		return err
	}
	b.Events().Publish(swap.Event{
		Kind:    swap.EventKindForState(r.Kind, newState),
		SwapID:  r.ID(),
		State:   newState,
		Details: swap.DetailsFor(r),
	})
	return nil
}

func setState(r *swap.Record, s swap.State) {
	switch r.Kind {
	case swap.KindSend:
		r.Send.State = s
	case swap.KindReceive:
		r.Receive.State = s
	case swap.KindChain:
		r.Chain.State = s
	}
}

func bumpVersion(r *swap.Record) {
	now := timeNow()
	switch r.Kind {
	case swap.KindSend:
		r.Send.Version++
		r.Send.LastUpdatedAt = now
	case swap.KindReceive:
		r.Receive.Version++
		r.Receive.LastUpdatedAt = now
	case swap.KindChain:
		r.Chain.Version++
		r.Chain.LastUpdatedAt = now
	}
}

// timeNow is a var so tests can freeze time.
var timeNow = time.Now
