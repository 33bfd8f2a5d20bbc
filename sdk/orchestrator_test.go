package sdk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/breez/breez-sdk-liquid-core/swap"
)

func TestNewRequestIDIsUniquePerCall(t *testing.T) {
	a := newRequestID()
	b := newRequestID()
	require.NotEmpty(t, a)
	require.NotEmpty(t, b)
	require.NotEqual(t, a, b)
}

// TestLogTerminalEventsStopsOnContextCancel checks the terminal-event
// logger goroutine shuts down cleanly once its context is cancelled,
// rather than leaking on Orchestrator.Close.
func TestLogTerminalEventsStopsOnContextCancel(t *testing.T) {
	o := &Orchestrator{}
	ch := make(chan swap.Event, 4)
	ch <- swap.Event{Kind: swap.EventPaymentPending, SwapID: "s1", State: swap.StatePending}
	ch <- swap.Event{Kind: swap.EventPaymentPending, SwapID: "s1", State: swap.StateComplete}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.logTerminalEvents(ctx, ch)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond) // let both queued events drain
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("logTerminalEvents did not stop after context cancellation")
	}
}
