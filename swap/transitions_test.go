package swap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateSendHappyPath(t *testing.T) {
	require.NoError(t, Validate(KindSend, StateCreated, StatePending))
	require.NoError(t, Validate(KindSend, StatePending, StateComplete))
}

func TestValidateRejectsFromTerminal(t *testing.T) {
	err := Validate(KindSend, StateComplete, StatePending)
	require.Error(t, err)
	var transitionErr *ErrInvalidTransition
	require.ErrorAs(t, err, &transitionErr)
}

func TestValidateRejectsFromTimedOut(t *testing.T) {
	require.Error(t, Validate(KindSend, StateTimedOut, StatePending))
}

func TestValidateRejectsUnknownTransition(t *testing.T) {
	require.Error(t, Validate(KindReceive, StateCreated, StateComplete))
}

func TestValidateReceiveWaitingFeeAcceptanceRoundTrip(t *testing.T) {
	require.NoError(t, Validate(KindReceive, StatePending, StateWaitingFeeAcceptance))
	require.NoError(t, Validate(KindReceive, StateWaitingFeeAcceptance, StatePending))
}

func TestValidateChainRefundPath(t *testing.T) {
	require.NoError(t, Validate(KindChain, StatePending, StateRefundPending))
	require.NoError(t, Validate(KindChain, StateRefundPending, StateFailed))
	require.Error(t, Validate(KindChain, StateRefundPending, StatePending))
}
