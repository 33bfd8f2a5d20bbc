package swap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewEventBus()
	ch1, unsub1 := bus.Subscribe()
	defer unsub1()
	ch2, unsub2 := bus.Subscribe()
	defer unsub2()

	bus.Publish(Event{Kind: EventPaymentPending, SwapID: "abc"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			require.Equal(t, "abc", ev.SwapID)
		case <-time.After(time.Second):
			t.Fatal("expected event on every subscriber")
		}
	}
}

func TestEventBusDropsRatherThanBlocksWhenFull(t *testing.T) {
	bus := NewEventBus()
	ch, unsub := bus.Subscribe()
	defer unsub()

	for i := 0; i < eventChanBuffer+10; i++ {
		bus.Publish(Event{Kind: EventPaymentPending, SwapID: "flood"})
	}

	require.Len(t, ch, eventChanBuffer, "publisher must not block; excess events are dropped")
}

func TestEventBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus()
	ch, unsub := bus.Subscribe()
	unsub()

	_, ok := <-ch
	require.False(t, ok)
}
