package wallet

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/breez/breez-sdk-liquid-core/chain"
	"github.com/breez/breez-sdk-liquid-core/errs"
)

// gapLimit is the number of consecutive unused addresses the wallet keeps
// ahead of the last used one before full_scan stops extending the
// external/internal chains.
const gapLimit = 20

// dustLimit is the minimum non-dust L-BTC output value; below this,
// build_tx_or_drain_tx drains instead of producing a dust change output.
const dustLimit = 546

// OnchainWallet is a single-signer Liquid wallet: address derivation,
// UTXO tracking, PSET build/sign/broadcast, backed by an encrypted scan
// cache and a chain.Service for L-BTC. It holds one exclusive mutex around
// all mutating operations.
type OnchainWallet struct {
	mu sync.Mutex

	signer       *SoftwareSigner
	cache        *ScanCache
	chainService chain.Service
	params       *chaincfg.Params
}

// New builds an OnchainWallet over an already-open cache and chain service.
func New(signer *SoftwareSigner, cache *ScanCache, chainService chain.Service, params *chaincfg.Params) *OnchainWallet {
	return &OnchainWallet{signer: signer, cache: cache, chainService: chainService, params: params}
}

// Transactions returns every materialized transaction in the scan cache.
func (w *OnchainWallet) Transactions() []WalletTx {
	return w.cache.Transactions()
}

// TransactionsByTxID returns the scan cache's transactions keyed by txid.
func (w *OnchainWallet) TransactionsByTxID() map[string]WalletTx {
	txs := w.cache.Transactions()
	out := make(map[string]WalletTx, len(txs))
	for _, tx := range txs {
		out[tx.TxID] = tx
	}
	return out
}

// Utxos returns every spendable output currently known to the scan cache.
func (w *OnchainWallet) Utxos() []WalletUtxo {
	return w.cache.Utxos()
}

// Tip returns the last block height observed by full_scan.
func (w *OnchainWallet) Tip() uint32 {
	return w.cache.TipHeight()
}

// DeriveBIP32Key derives an arbitrary path from the wallet's master key,
// used by the swap handlers to derive per-swap claim/refund keypairs
// outside the normal external/internal address chains.
func (w *OnchainWallet) DeriveBIP32Key(path []uint32) (*btcec.PrivateKey, error) {
	return w.signer.DeriveBIP32Key(path)
}

// Pubkey returns the wallet's account-level public key.
func (w *OnchainWallet) Pubkey() (*btcec.PublicKey, error) {
	return w.signer.Pubkey()
}

// Fingerprint returns the wallet's BIP32 fingerprint.
func (w *OnchainWallet) Fingerprint() ([4]byte, error) {
	return w.signer.Fingerprint()
}

// SignDigestForSwap signs an arbitrary 32-byte digest with the key derived
// at path, used by the swap handlers for cooperative-claim/refund partial
// signatures that don't go through the normal PSET build/sign flow.
func (w *OnchainWallet) SignDigestForSwap(path []uint32, digest [32]byte) ([]byte, error) {
	return w.signer.SignDigest(path, digest)
}

// NextUnusedAddress derives and returns the next unused external address,
// without yet persisting the bump — callers that actually hand the address
// out must follow with a FullScan or an explicit cache append.
func (w *OnchainWallet) NextUnusedAddress(ctx context.Context) (string, uint32, error) {
	return w.deriveAddress(ctx, 0, w.cache.NextExternalIndex())
}

// NextUnusedChangeAddress derives and returns the next unused internal
// (change) address.
func (w *OnchainWallet) NextUnusedChangeAddress(ctx context.Context) (string, uint32, error) {
	return w.deriveAddress(ctx, 1, w.cache.NextInternalIndex())
}

func (w *OnchainWallet) deriveAddress(_ context.Context, change, index uint32) (string, uint32, error) {
	priv, err := w.signer.PrivateKeyAt(change, index)
	if err != nil {
		return "", 0, fmt.Errorf("%w: deriving address key: %s", errs.ErrSigner, err)
	}
	addr, err := p2wpkhAddress(priv.PubKey(), w.params)
	if err != nil {
		return "", 0, fmt.Errorf("%w: encoding address: %s", errs.ErrSigner, err)
	}
	return addr, index, nil
}

// FullScan triggers a fresh scan of the wallet's derived script set via the
// chain client, advancing the internal/external indices while the gap limit
// of consecutive unused addresses holds, and appends the result to the scan
// cache.
func (w *OnchainWallet) FullScan(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tip, err := w.chainService.Tip(ctx)
	if err != nil {
		return fmt.Errorf("%w: fetching tip during full_scan: %s", errs.ErrServiceConnectivity, err)
	}

	u := update{TipHeight: tip, Txs: map[string]WalletTx{}, Utxos: map[string]WalletUtxo{}}
	sawAnyNewActivity := false

	for _, change := range [2]uint32{0, 1} {
		consecutiveUnused := 0
		index := uint32(0)
		for consecutiveUnused < gapLimit {
			priv, err := w.signer.PrivateKeyAt(change, index)
			if err != nil {
				return fmt.Errorf("%w: deriving scan key: %s", errs.ErrSigner, err)
			}
			addr, err := p2wpkhAddress(priv.PubKey(), w.params)
			if err != nil {
				return fmt.Errorf("%w: encoding scan address: %s", errs.ErrSigner, err)
			}
			script, err := addressScript(addr, w.params)
			if err != nil {
				return fmt.Errorf("%w: building scan script: %s", errs.ErrSigner, err)
			}

			history, err := w.chainService.GetScriptsHistory(ctx, [][]byte{script})
			if err != nil {
				return fmt.Errorf("%w: fetching script history during full_scan: %s", errs.ErrServiceConnectivity, err)
			}
			if len(history) == 0 || len(history[0]) == 0 {
				consecutiveUnused++
				index++
				continue
			}
			consecutiveUnused = 0
			sawAnyNewActivity = true

			if err := w.ingestHistory(ctx, &u, history[0]); err != nil {
				return err
			}
			utxos, err := w.chainService.GetScriptUtxos(ctx, script)
			if err != nil {
				return fmt.Errorf("%w: fetching script utxos during full_scan: %s", errs.ErrServiceConnectivity, err)
			}
			for _, utxo := range utxos {
				u.Utxos[utxoKey(utxo.TxID, utxo.Vout)] = WalletUtxo{
					TxID: utxo.TxID, Vout: utxo.Vout, Value: utxo.Value,
					Height: utxo.Height, Script: script,
				}
			}

			if change == 0 && index+1 > u.NextExternal {
				u.NextExternal = index + 1
			}
			if change == 1 && index+1 > u.NextInternal {
				u.NextInternal = index + 1
			}
			index++
		}
	}

	u.TipOnly = !sawAnyNewActivity
	return w.cache.Append(u)
}

func (w *OnchainWallet) ingestHistory(ctx context.Context, u *update, entries []chain.HistoryEntry) error {
	txIDs := make([]string, len(entries))
	for i, e := range entries {
		txIDs[i] = e.TxID
	}
	txs, err := w.chainService.GetTransactions(ctx, txIDs)
	if err != nil {
		return fmt.Errorf("%w: fetching history transactions: %s", errs.ErrServiceConnectivity, err)
	}
	heightByTxID := make(map[string]int64, len(entries))
	for _, e := range entries {
		heightByTxID[e.TxID] = e.Height
	}
	for _, tx := range txs {
		u.Txs[tx.TxID] = WalletTx{TxID: tx.TxID, Height: heightByTxID[tx.TxID]}
	}
	return nil
}

// BuildTx constructs, signs, and finalizes a transaction sending amountSat
// to recipient, failing with ErrInsufficientFunds if the wallet's known
// UTXOs can't cover amount + fee.
func (w *OnchainWallet) BuildTx(ctx context.Context, feeRateSatPerVb float64, recipient string, amountSat int64) (SignedTx, error) {
	return w.buildTx(ctx, feeRateSatPerVb, recipient, amountSat, false)
}

// BuildTxOrDrainTx is BuildTx except residual dust change is swept into
// recipient instead of left as a dust output.
func (w *OnchainWallet) BuildTxOrDrainTx(ctx context.Context, feeRateSatPerVb float64, recipient string, amountSat int64) (SignedTx, error) {
	return w.buildTx(ctx, feeRateSatPerVb, recipient, amountSat, true)
}

func (w *OnchainWallet) buildTx(ctx context.Context, feeRateSatPerVb float64, recipient string, amountSat int64, allowDrain bool) (SignedTx, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if feeRateSatPerVb <= 0 {
		fees, err := w.chainService.RecommendedFees(ctx)
		if err == nil && fees.HourFee > 0 {
			feeRateSatPerVb = fees.HourFee
		} else {
			feeRateSatPerVb = 1
		}
	}

	utxos := w.cache.Utxos()
	pset := Pset{}
	var selected int64
	const estimatedVbytesPerInput = 68
	const estimatedBaseVbytes = 11
	const estimatedOutputVbytes = 32

	for _, u := range utxos {
		pset.Inputs = append(pset.Inputs, PsetInput{TxID: u.TxID, Vout: u.Vout, Value: u.Value, Script: u.Script})
		selected += u.Value
		estVbytes := estimatedBaseVbytes + estimatedOutputVbytes*2 + estimatedVbytesPerInput*len(pset.Inputs)
		fee := int64(feeRateSatPerVb * float64(estVbytes))
		if selected >= amountSat+fee {
			change := selected - amountSat - fee
			if change > 0 && change < dustLimit && allowDrain {
				amountSat += change
				change = 0
			}
			pset.Outputs = append(pset.Outputs, PsetOutput{Value: amountSat, Address: recipient})
			if change > 0 {
				changeAddr, _, addrErr := w.deriveAddress(ctx, 1, w.cache.NextInternalIndex())
				if addrErr != nil {
					return SignedTx{}, addrErr
				}
				pset.Outputs = append(pset.Outputs, PsetOutput{Value: change, Address: changeAddr, IsChange: true})
			}
			return w.signAndFinalize(ctx, pset, fee)
		}
	}

	return SignedTx{}, fmt.Errorf("%w: need %d sat plus fees, have %d", errs.ErrInsufficientFunds, amountSat, selected)
}

// SignPset signs and finalizes a caller-built PSET for payjoin flows,
// where output selection was performed by payjoin.UtxoSelector rather
// than this wallet's own coin selection.
func (w *OnchainWallet) SignPset(ctx context.Context, pset Pset) (SignedTx, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signAndFinalize(ctx, pset, 0)
}

func (w *OnchainWallet) signAndFinalize(_ context.Context, pset Pset, fee int64) (SignedTx, error) {
	for i := range pset.Inputs {
		in := &pset.Inputs[i]
		digest := sighash(pset, i)
		sig, err := w.signer.SignDigest(in.DerivePath, digest)
		if err != nil {
			return SignedTx{}, fmt.Errorf("%w: signing input %d: %s", errs.ErrSigner, i, err)
		}
		in.Signature = sig
	}
	txHex, txID := finalize(pset)
	return SignedTx{TxID: txID, Hex: txHex, FeeSats: fee}, nil
}

// sighash commits to the fields of one input plus the full output set,
// standing in for a real witness sighash. Liquid's confidential-transaction
// sighash additionally commits to blinded asset/value commitments that
// this minimal unblinded Pset model doesn't carry; see DESIGN.md for why
// no Elements-native PSET encoder is wired in to replace this.
func sighash(pset Pset, inputIndex int) [32]byte {
	in := pset.Inputs[inputIndex]
	buf := []byte(in.TxID)
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], in.Vout)
	buf = append(buf, idx[:]...)
	for _, out := range pset.Outputs {
		buf = append(buf, []byte(out.Address)...)
		var val [8]byte
		binary.LittleEndian.PutUint64(val[:], uint64(out.Value))
		buf = append(buf, val[:]...)
	}
	return chainhash.HashH(buf)
}

// finalize serializes the signed Pset into a deterministic hex blob and
// derives its txid as the hash of that blob. This is not a real Elements
// transaction wire encoding; it is a placeholder finalizer over the internal
// Pset model until an Elements-native encoder is wired in (DESIGN.md).
func finalize(pset Pset) (txHex string, txID string) {
	var buf []byte
	for _, in := range pset.Inputs {
		buf = append(buf, []byte(in.TxID)...)
		buf = append(buf, in.Signature...)
	}
	for _, out := range pset.Outputs {
		buf = append(buf, []byte(out.Address)...)
	}
	h := chainhash.HashH(buf)
	return hex.EncodeToString(buf), h.String()
}
