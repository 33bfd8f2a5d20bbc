// Package sdk is the Orchestrator facade: it wires chain, wallet, swapper,
// persist, swap, protocol, and recover into one running instance from a
// single Config, and is the only package cmd/swapengined talks to.
package sdk

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log"

	"github.com/breez/breez-sdk-liquid-core/chain"
	"github.com/breez/breez-sdk-liquid-core/chain/hybrid"
	"github.com/breez/breez-sdk-liquid-core/errs"
	"github.com/breez/breez-sdk-liquid-core/persist"
	"github.com/breez/breez-sdk-liquid-core/protocol"
	"github.com/breez/breez-sdk-liquid-core/recover"
	"github.com/breez/breez-sdk-liquid-core/swap"
	"github.com/breez/breez-sdk-liquid-core/swapper"
	"github.com/breez/breez-sdk-liquid-core/wallet"
)

var log = logging.Logger("sdk")

// terminalBanner renders a bold terminal-status line on a swap reaching
// StateComplete or StateFailed, matching swap_state.go's own
// "**swap completed/refunded/aborted successfully**" banners.
var terminalBanner = color.New(color.Bold).Sprintf

// Orchestrator is the running instance: every collaborator constructed from
// Config, plus the background goroutines (status-stream consumption,
// periodic recovery) that keep ongoing swaps moving without a caller
// having to drive them by hand.
type Orchestrator struct {
	cfg *Config

	backend   protocol.Backend
	router    *protocol.Router
	recoverer *recover.Recoverer

	swaps    *persist.Persister
	stream   *swapper.StatusStream
	events   *swap.EventBus
	unsubEvt func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds every collaborator and returns a ready-to-Run Orchestrator.
// It does not start any background goroutine; call Run for that.
func New(cfg *Config) (*Orchestrator, error) {
	params, err := cfg.chainParams()
	if err != nil {
		return nil, err
	}

	signer, err := wallet.NewSoftwareSignerFromMnemonic(cfg.Mnemonic, cfg.MnemonicPassphrase, params)
	if err != nil {
		return nil, err
	}
	cacheKey, err := wallet.DeriveScanCacheKey(cfg.Mnemonic, cfg.MnemonicPassphrase)
	if err != nil {
		return nil, err
	}
	cache, err := wallet.OpenScanCache(cfg.DataDir, cacheKey)
	if err != nil {
		return nil, err
	}

	swaps, err := persist.New(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	httpClient := &http.Client{Timeout: 30 * time.Second}

	btcExplorers := cfg.bitcoinExplorers()
	if len(btcExplorers) == 0 {
		swaps.Close()
		return nil, fmt.Errorf("%w: no bitcoin chain explorers configured", errs.ErrGeneric)
	}
	btcChain, err := hybrid.New(ctx, chain.AssetBTC, btcExplorers, httpClient)
	if err != nil {
		swaps.Close()
		return nil, err
	}

	liquidExplorers := cfg.liquidExplorers()
	if len(liquidExplorers) == 0 {
		swaps.Close()
		return nil, fmt.Errorf("%w: no liquid chain explorers configured", errs.ErrGeneric)
	}
	lbtcChain, err := hybrid.New(ctx, chain.AssetLBTC, liquidExplorers, httpClient)
	if err != nil {
		swaps.Close()
		return nil, err
	}

	w := wallet.New(signer, cache, lbtcChain, params)

	events := swap.NewEventBus()
	mgr, err := swap.NewManager(swaps, events)
	if err != nil {
		swaps.Close()
		return nil, err
	}

	swapperClient := swapper.NewClient(cfg.SwapperBaseURL, cfg.SwapperAPIKey, httpClient)
	stream := swapper.NewStatusStream(cfg.SwapperWSURL, cfg.SwapperAPIKey)

	backend := protocol.NewBackend(w, swapperClient, stream, mgr, events, btcChain, lbtcChain, params)
	router := protocol.NewRouter(backend, swaps, swaps)
	recoverer := recover.NewRecoverer(backend)

	o := &Orchestrator{
		cfg:       cfg,
		backend:   backend,
		router:    router,
		recoverer: recoverer,
		swaps:     swaps,
		stream:    stream,
		events:    events,
	}

	for _, r := range mgr.GetOngoingSwaps() {
		stream.Watch(r.ID())
	}

	return o, nil
}

// Run starts the status-stream connection, the status-update dispatch
// loop, the periodic recovery tick, and the terminal-state event logger.
// It returns once ctx is cancelled, tearing every goroutine down cleanly.
func (o *Orchestrator) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	evtCh, unsub := o.events.Subscribe()
	o.unsubEvt = unsub

	o.wg.Add(4)
	go func() { defer o.wg.Done(); o.stream.Run(ctx) }()
	go func() { defer o.wg.Done(); o.dispatchLoop(ctx) }()
	go func() { defer o.wg.Done(); o.recoveryLoop(ctx) }()
	go func() { defer o.wg.Done(); o.logTerminalEvents(ctx, evtCh) }()
}

// Close stops every background goroutine and releases the persistence
// handle; the wallet scan cache opened by New is not closed. Run's context
// cancellation already triggers
// shutdown; Close blocks until it has actually finished.
func (o *Orchestrator) Close() error {
	if o.cancel != nil {
		o.cancel()
	}
	o.stream.Close()
	o.wg.Wait()
	if o.unsubEvt != nil {
		o.unsubEvt()
	}
	return o.swaps.Close()
}

func (o *Orchestrator) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-o.stream.Updates():
			if !ok {
				return
			}
			o.handleStatus(ctx, status)
		}
	}
}

func (o *Orchestrator) handleStatus(ctx context.Context, status swapper.SwapStatus) {
	r, err := o.backend.Manager().GetOngoingSwap(status.ID)
	if err != nil {
		log.Warnf("status update for unknown swap %s: %s", status.ID, err)
		return
	}
	if err := o.router.Dispatch(ctx, r, status); err != nil {
		log.Warnf("dispatching status %q for swap %s: %s", status.Status, status.ID, err)
	}
}

// recoveryLoop runs RecoverFromOnchain every RecoveryIntervalSeconds as a
// backstop alongside the live status-stream handlers: a missed or
// out-of-order status update still gets reconciled on the next tick.
func (o *Orchestrator) recoveryLoop(ctx context.Context) {
	interval := time.Duration(o.cfg.RecoveryIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.backend.Wallet().FullScan(ctx); err != nil {
				log.Warnf("recovery tick: wallet scan failed: %s", err)
			} else {
				o.events.Publish(swap.Event{Kind: swap.EventDataSynced})
			}
			if err := o.recoverer.RecoverFromOnchain(ctx); err != nil {
				log.Warnf("recovery tick failed: %s", err)
			} else {
				o.events.Publish(swap.Event{Kind: swap.EventSynced})
			}
			if tip, err := o.backend.ChainService(chain.AssetLBTC).Tip(ctx); err != nil {
				log.Warnf("recovery tick: reading tip for reservation expiry failed: %s", err)
			} else if expired, err := o.swaps.ExpireReservations(tip); err != nil {
				log.Warnf("recovery tick: expiring reservations failed: %s", err)
			} else if expired > 0 {
				log.Infof("recovery tick: expired %d MRH address reservations", expired)
			}
		}
	}
}

func (o *Orchestrator) logTerminalEvents(ctx context.Context, evtCh <-chan swap.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-evtCh:
			if !ok {
				return
			}
			if !evt.State.Terminal() {
				continue
			}
			switch evt.State {
			case swap.StateComplete:
				log.Infof("%s", terminalBanner("**swap completed successfully: id=%s**", evt.SwapID))
			case swap.StateFailed:
				log.Infof("%s", terminalBanner("**swap failed: id=%s**", evt.SwapID))
			}
		}
	}
}

// newRequestID generates a correlation id for one outgoing swapper request,
// logged alongside the eventual swap ID so a support engineer can line up a
// create-swap call with its counterparty-assigned ID after the fact (the
// swap ID itself is server-assigned and unknown until the response comes
// back).
func newRequestID() string {
	return uuid.NewString()
}

// CreateSendSwap originates a new Send (submarine) swap paying invoice.
func (o *Orchestrator) CreateSendSwap(ctx context.Context, invoice string) (*swap.Record, error) {
	reqID := newRequestID()
	log.Infof("request %s: creating send swap", reqID)
	r, err := o.router.Send().CreateSendSwap(ctx, invoice)
	if err != nil {
		return nil, err
	}
	log.Infof("request %s: created send swap %s", reqID, r.ID())
	o.stream.Watch(r.ID())
	return r, nil
}

// CreateReceiveSwap originates a new Receive (reverse submarine) swap for
// invoiceAmountSat, willing to pay up to claimFeesSat in onchain claim fees.
func (o *Orchestrator) CreateReceiveSwap(ctx context.Context, invoiceAmountSat, claimFeesSat int64) (*swap.Record, error) {
	reqID := newRequestID()
	log.Infof("request %s: creating receive swap", reqID)
	r, err := o.router.Receive().CreateReceiveSwap(ctx, invoiceAmountSat, claimFeesSat)
	if err != nil {
		return nil, err
	}
	log.Infof("request %s: created receive swap %s", reqID, r.ID())
	o.stream.Watch(r.ID())
	return r, nil
}

// CreateChainSwap originates a new on-chain BTC<->L-BTC swap moving
// payerAmountSat in direction dir.
func (o *Orchestrator) CreateChainSwap(ctx context.Context, dir swap.ChainDirection, payerAmountSat int64) (*swap.Record, error) {
	reqID := newRequestID()
	log.Infof("request %s: creating chain swap", reqID)
	r, err := o.router.Chain().CreateChainSwap(ctx, dir, payerAmountSat)
	if err != nil {
		return nil, err
	}
	log.Infof("request %s: created chain swap %s", reqID, r.ID())
	o.stream.Watch(r.ID())
	return r, nil
}

// AcceptChainSwapFees accepts a zero-amount Chain swap's proposed fees,
// letting a WaitingFeeAcceptance swap proceed.
func (o *Orchestrator) AcceptChainSwapFees(ctx context.Context, swapID string) error {
	r, err := o.backend.Manager().GetOngoingSwap(swapID)
	if err != nil {
		return err
	}
	return o.router.AcceptChainSwapFees(ctx, r)
}

// OngoingSwaps returns every swap the manager currently considers
// in-flight, for a caller building a status view.
func (o *Orchestrator) OngoingSwaps() []*swap.Record {
	return o.backend.Manager().GetOngoingSwaps()
}

// Events subscribes the caller to every SdkEvent the Orchestrator emits:
// one per swap state transition, plus the periodic Synced/DataSynced pair
// from the recovery loop. The returned unsubscribe func must eventually be
// called, same as any other EventBus listener; like every listener, a
// caller that falls behind the buffer drops events rather than stalling
// the orchestrator.
func (o *Orchestrator) Events() (<-chan swap.Event, func()) {
	return o.events.Subscribe()
}
