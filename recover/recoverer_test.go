package recover

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/breez/breez-sdk-liquid-core/swap"
)

func TestCollectSwapScriptsGroupsByDirectionAndKind(t *testing.T) {
	const sendAddr = "bcrt1qqurswpc8qurswpc8qurswpc8qurswpc8dxm0gk"
	const recvAddr = "bcrt1qpc8qurswpc8qurswpc8qurswpc8qurswr70lpj"
	const mrhAddr = "bcrt1qz52329g4z52329g4z52329g4z52329g4wu2hkj"
	const chainOutLockup = sendAddr
	const chainOutClaim = recvAddr
	const chainInLockup = sendAddr
	const chainInClaim = recvAddr

	sendJSON, err := json.Marshal(struct{ Address string }{Address: sendAddr})
	require.NoError(t, err)

	records := []*swap.Record{
		{Kind: swap.KindSend, Send: &swap.Send{Base: swap.Base{CreateResponseJSON: sendJSON}}},
		{Kind: swap.KindReceive, Receive: &swap.Receive{
			Base:       swap.Base{CreateResponseJSON: mustMarshalLockup(t, recvAddr)},
			MrhAddress: mrhAddr,
		}},
		{Kind: swap.KindChain, Chain: &swap.Chain{
			Direction: swap.ChainOutgoing, LockupAddress: chainOutLockup, ClaimAddress: chainOutClaim,
		}},
		{Kind: swap.KindChain, Chain: &swap.Chain{
			Direction: swap.ChainIncoming, LockupAddress: chainInLockup, ClaimAddress: chainInClaim,
		}},
	}

	lbtc, btc, mrh := collectSwapScripts(records)

	// send lockup + receive lockup + chain-out lockup (L-BTC) + chain-in claim (L-BTC)
	require.Len(t, lbtc, 4)
	// chain-out claim (BTC) + chain-in lockup (BTC)
	require.Len(t, btc, 2)
	require.Len(t, mrh, 1)
}

func mustMarshalLockup(t *testing.T, addr string) []byte {
	t.Helper()
	b, err := json.Marshal(struct {
		LockupAddress string `json:"lockupAddress"`
	}{LockupAddress: addr})
	require.NoError(t, err)
	return b
}
