// Package esplora implements chain.Service against an Esplora-compatible
// REST API: /blocks/tip/height, /tx, /tx/:txid, /scripthash/:hash/txs,
// /scripthash/:hash/utxo, /fee-estimates.
package esplora

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	logging "github.com/ipfs/go-log"
	"golang.org/x/time/rate"

	"github.com/breez/breez-sdk-liquid-core/chain"
	"github.com/breez/breez-sdk-liquid-core/errs"
)

var log = logging.Logger("chain/esplora")

// connectTimeout bounds the initial connection attempt.
const connectTimeout = 3 * time.Second

// Client is a sequential, per-script Esplora REST client. Calls are made one
// script at a time (no batching support in the Esplora API), unlike the
// Electrum backend's batched JSON-RPC.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      chain.RetryConfig
}

// NewClient builds an Esplora client against baseURL (e.g.
// "https://blockstream.info/api"). TLS verification is controlled by the
// caller via httpClient (disabled for Regtest).
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: connectTimeout * 4}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		// a conservative local rate limit ahead of the retry loop, so a burst
		// of script lookups doesn't hammer a public indexer before backoff
		// ever kicks in.
		limiter: rate.NewLimiter(rate.Limit(20), 10),
		retry:   chain.DefaultRetryConfig,
	}
}

var _ chain.Service = (*Client)(nil)

func (c *Client) get(ctx context.Context, path string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %s", errs.ErrServiceConnectivity, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: reading %s: %s", errs.ErrServiceConnectivity, path, err)
	}

	return body, resp.StatusCode, nil
}

// Tip returns the current chain tip height.
func (c *Client) Tip(ctx context.Context) (uint32, error) {
	var tip uint32
	err := chain.WithRetry(ctx, c.retry, func() (bool, error) {
		body, status, err := c.get(ctx, "/blocks/tip/height")
		if err != nil {
			return false, err
		}
		if status != http.StatusOK {
			return true, nil
		}
		n, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 32)
		if err != nil {
			return false, fmt.Errorf("%w: parsing tip height: %s", errs.ErrServiceConnectivity, err)
		}
		tip = uint32(n)
		return false, nil
	})
	return tip, err
}

// Broadcast submits a raw transaction.
func (c *Client) Broadcast(ctx context.Context, txHex string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tx", strings.NewReader(txHex))
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: broadcasting tx: %s", errs.ErrServiceConnectivity, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: broadcast rejected: %s", errs.ErrGeneric, strings.TrimSpace(string(body)))
	}

	return strings.TrimSpace(string(body)), nil
}

type esploraTx struct {
	TxID   string `json:"txid"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
}

// GetTransactions fetches each tx's raw hex and confirmation height.
// Sequential: the Esplora REST API has no batch endpoint.
func (c *Client) GetTransactions(ctx context.Context, txIDs []string) ([]chain.Tx, error) {
	out := make([]chain.Tx, 0, len(txIDs))
	for _, id := range txIDs {
		var t chain.Tx
		err := chain.WithRetry(ctx, c.retry, func() (bool, error) {
			hexBody, status, err := c.get(ctx, "/tx/"+id+"/hex")
			if err != nil {
				return false, err
			}
			if status != http.StatusOK {
				return true, nil
			}

			metaBody, status, err := c.get(ctx, "/tx/"+id)
			if err != nil {
				return false, err
			}
			if status != http.StatusOK {
				return true, nil
			}
			var meta esploraTx
			if err := json.Unmarshal(metaBody, &meta); err != nil {
				return false, fmt.Errorf("%w: parsing tx meta: %s", errs.ErrServiceConnectivity, err)
			}

			height := int64(0)
			if meta.Status.Confirmed {
				height = meta.Status.BlockHeight
			}
			t = chain.Tx{TxID: id, Hex: strings.TrimSpace(string(hexBody)), Height: height}
			return false, nil
		})
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func scriptHash(script []byte) string {
	sum := sha256.Sum256(script)
	return hex.EncodeToString(sum[:])
}

type esploraHistoryEntry struct {
	TxID   string `json:"txid"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
}

// GetScriptsHistory batches per-script calls sequentially, one history fetch
// per script, and retries empty results (the indexer may simply not have
// indexed a just-broadcast tx yet).
func (c *Client) GetScriptsHistory(ctx context.Context, scripts [][]byte) ([][]chain.HistoryEntry, error) {
	out := make([][]chain.HistoryEntry, len(scripts))
	for i, script := range scripts {
		hash := scriptHash(script)
		var entries []chain.HistoryEntry
		err := chain.WithRetry(ctx, c.retry, func() (bool, error) {
			body, status, err := c.get(ctx, "/scripthash/"+hash+"/txs")
			if err != nil {
				return false, err
			}
			if status != http.StatusOK {
				return true, nil
			}
			var raw []esploraHistoryEntry
			if err := json.Unmarshal(body, &raw); err != nil {
				return false, fmt.Errorf("%w: parsing script history: %s", errs.ErrServiceConnectivity, err)
			}
			entries = make([]chain.HistoryEntry, len(raw))
			for j, e := range raw {
				h := int64(0)
				if e.Status.Confirmed {
					h = e.Status.BlockHeight
				}
				entries[j] = chain.HistoryEntry{TxID: e.TxID, Height: h}
			}
			return len(entries) == 0, nil
		})
		if err != nil {
			return nil, err
		}
		out[i] = entries
	}
	return out, nil
}

// ScriptGetBalance sums confirmed/unconfirmed UTXOs for a script.
func (c *Client) ScriptGetBalance(ctx context.Context, script []byte) (chain.ScriptBalance, error) {
	utxos, err := c.GetScriptUtxos(ctx, script)
	if err != nil {
		return chain.ScriptBalance{}, err
	}
	var bal chain.ScriptBalance
	for _, u := range utxos {
		if u.Height > 0 {
			bal.Confirmed += u.Value
		} else {
			bal.Unconfirmed += u.Value
		}
	}
	return bal, nil
}

type esploraUtxo struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  int64  `json:"value"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
}

// GetScriptUtxos returns spendable outputs for a script. L-BTC callers
// additionally need the prevout materialized; that is layered on in
// chain/hybrid/hybrid.go by fetching the owning transaction when Asset == AssetLBTC.
func (c *Client) GetScriptUtxos(ctx context.Context, script []byte) ([]chain.Utxo, error) {
	hash := scriptHash(script)
	var utxos []chain.Utxo
	err := chain.WithRetry(ctx, c.retry, func() (bool, error) {
		body, status, err := c.get(ctx, "/scripthash/"+hash+"/utxo")
		if err != nil {
			return false, err
		}
		if status != http.StatusOK {
			return true, nil
		}
		var raw []esploraUtxo
		if err := json.Unmarshal(body, &raw); err != nil {
			return false, fmt.Errorf("%w: parsing utxos: %s", errs.ErrServiceConnectivity, err)
		}
		utxos = make([]chain.Utxo, len(raw))
		for i, u := range raw {
			height := int64(0)
			if u.Status.Confirmed {
				height = u.Status.BlockHeight
			}
			utxos[i] = chain.Utxo{TxID: u.TxID, Vout: u.Vout, Value: u.Value, Height: height}
		}
		return false, nil
	})
	return utxos, err
}

// VerifyTx fetches the address's history, asserts txID appears in it,
// asserts txHex hashes to txID, and optionally requires confirmation.
func (c *Client) VerifyTx(ctx context.Context, address, txID, txHex string, requireConfirmation bool) (chain.Tx, error) {
	if sha256DoubleTxID(txHex) != txID {
		return chain.Tx{}, fmt.Errorf("%w: tx hex does not hash to %s", errs.ErrGeneric, txID)
	}

	script, err := addressToScript(address)
	if err != nil {
		return chain.Tx{}, err
	}

	histories, err := c.GetScriptsHistory(ctx, [][]byte{script})
	if err != nil {
		return chain.Tx{}, err
	}

	for _, entry := range histories[0] {
		if entry.TxID != txID {
			continue
		}
		if requireConfirmation && !entry.Confirmed() {
			return chain.Tx{}, fmt.Errorf("%w: tx %s not yet confirmed", errs.ErrGeneric, txID)
		}
		return chain.Tx{TxID: txID, Hex: txHex, Height: entry.Height}, nil
	}

	return chain.Tx{}, fmt.Errorf("%w: tx %s not found in history of %s", errs.ErrGeneric, txID, address)
}

// RecommendedFees fetches fee-estimates.
func (c *Client) RecommendedFees(ctx context.Context) (chain.RecommendedFees, error) {
	var fees chain.RecommendedFees
	err := chain.WithRetry(ctx, c.retry, func() (bool, error) {
		body, status, err := c.get(ctx, "/fee-estimates")
		if err != nil {
			return false, err
		}
		if status != http.StatusOK {
			return true, nil
		}
		var estimates map[string]float64
		if err := json.Unmarshal(body, &estimates); err != nil {
			return false, fmt.Errorf("%w: parsing fee estimates: %s", errs.ErrServiceConnectivity, err)
		}
		fees = chain.RecommendedFees{
			FastestFee:  estimates["1"],
			HalfHourFee: estimates["3"],
			HourFee:     estimates["6"],
			EconomyFee:  estimates["25"],
			MinimumFee:  estimates["144"],
		}
		return false, nil
	})
	return fees, err
}

// IsAvailable is always true for Esplora: REST calls are stateless, there is
// no persistent connection to ping.
func (c *Client) IsAvailable(ctx context.Context) bool {
	return true
}

func sha256DoubleTxID(txHex string) string {
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return ""
	}
	first := sha256.Sum256(raw)
	second := sha256.Sum256(first[:])
	// Bitcoin txids are the double-sha256 of the serialized tx, displayed
	// reversed (little-endian).
	reversed := make([]byte, len(second))
	for i, b := range second {
		reversed[len(second)-1-i] = b
	}
	return hex.EncodeToString(reversed)
}
