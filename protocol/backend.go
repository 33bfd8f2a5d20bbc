// Package protocol wires the swap state machines to their collaborators —
// the wallet, the swap counterparty, the chain services, and the swap
// manager — behind a single Backend facade each handler embeds, rather
// than taking each dependency as a constructor argument.
package protocol

import (
	"github.com/btcsuite/btcd/chaincfg"
	logging "github.com/ipfs/go-log"

	"github.com/breez/breez-sdk-liquid-core/chain"
	"github.com/breez/breez-sdk-liquid-core/swap"
	"github.com/breez/breez-sdk-liquid-core/swapper"
	"github.com/breez/breez-sdk-liquid-core/wallet"
)

var log = logging.Logger("protocol")

// Backend is the full set of collaborators a SwapStateHandler needs. It is
// an interface so tests can substitute fakes for the wallet, the swapper
// client, and the chain services without touching handler logic.
type Backend interface {
	Wallet() *wallet.OnchainWallet
	Swapper() *swapper.Client
	StatusStream() *swapper.StatusStream
	Manager() swap.Manager
	Events() *swap.EventBus
	ChainService(asset chain.Asset) chain.Service
	Params() *chaincfg.Params
}

type backend struct {
	wallet       *wallet.OnchainWallet
	swapperCl    *swapper.Client
	statusStream *swapper.StatusStream
	manager      swap.Manager
	events       *swap.EventBus
	btcChain     chain.Service
	lbtcChain    chain.Service
	params       *chaincfg.Params
}

// NewBackend assembles the concrete Backend used outside of tests.
func NewBackend(
	w *wallet.OnchainWallet,
	sw *swapper.Client,
	stream *swapper.StatusStream,
	mgr swap.Manager,
	events *swap.EventBus,
	btcChain, lbtcChain chain.Service,
	params *chaincfg.Params,
) Backend {
	return &backend{
		wallet:       w,
		swapperCl:    sw,
		statusStream: stream,
		manager:      mgr,
		events:       events,
		btcChain:     btcChain,
		lbtcChain:    lbtcChain,
		params:       params,
	}
}

func (b *backend) Wallet() *wallet.OnchainWallet       { return b.wallet }
func (b *backend) Swapper() *swapper.Client            { return b.swapperCl }
func (b *backend) StatusStream() *swapper.StatusStream { return b.statusStream }
func (b *backend) Manager() swap.Manager               { return b.manager }
func (b *backend) Events() *swap.EventBus              { return b.events }
func (b *backend) Params() *chaincfg.Params            { return b.params }

func (b *backend) ChainService(asset chain.Asset) chain.Service {
	if asset == chain.AssetBTC {
		return b.btcChain
	}
	return b.lbtcChain
}
