package swapper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/breez/breez-sdk-liquid-core/chain"
	"github.com/breez/breez-sdk-liquid-core/errs"
)

const connectTimeout = 3 * time.Second

// Client is the REST half of the Swapper: create/pair/quote/claim/refund
// HTTP calls to the swap counterparty.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      chain.RetryConfig
}

// NewClient builds a swapper REST client against baseURL. apiKey, if
// non-empty, is sent as a bearer token on every request and re-used to
// authenticate the StatusStream websocket.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: connectTimeout * 10}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(20), 20),
		retry:      chain.DefaultRetryConfig,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return chain.WithRetry(ctx, c.retry, func() (bool, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, err
		}

		var reader io.Reader
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return false, fmt.Errorf("%w: encoding request body: %s", errs.ErrGeneric, err)
			}
			reader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return false, fmt.Errorf("%w: building request: %s", errs.ErrGeneric, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return false, fmt.Errorf("%w: %s %s: %s", errs.ErrServiceConnectivity, method, path, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, fmt.Errorf("%w: reading response body: %s", errs.ErrServiceConnectivity, err)
		}
		if resp.StatusCode >= 500 {
			return true, fmt.Errorf("%w: %s %s returned %d: %s", errs.ErrServiceConnectivity, method, path, resp.StatusCode, respBody)
		}
		if resp.StatusCode >= 400 {
			return false, fmt.Errorf("%w: %s %s returned %d: %s", errs.ErrGeneric, method, path, resp.StatusCode, respBody)
		}
		if out == nil {
			return false, nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return false, fmt.Errorf("%w: decoding response: %s", errs.ErrGeneric, err)
		}
		return false, nil
	})
}

// CreateSendSwap creates a submarine swap to pay req.Invoice.
func (c *Client) CreateSendSwap(ctx context.Context, req CreateSubmarineRequest) (CreateSubmarineResponse, error) {
	var resp CreateSubmarineResponse
	err := c.do(ctx, http.MethodPost, "/v2/swap/submarine", req, &resp)
	return resp, err
}

// CreateReceiveSwap creates a reverse submarine swap.
func (c *Client) CreateReceiveSwap(ctx context.Context, req CreateReverseRequest) (CreateReverseResponse, error) {
	var resp CreateReverseResponse
	err := c.do(ctx, http.MethodPost, "/v2/swap/reverse", req, &resp)
	return resp, err
}

// CreateChainSwap creates an on-chain BTC<->L-BTC swap.
func (c *Client) CreateChainSwap(ctx context.Context, req CreateChainRequest) (CreateChainResponse, error) {
	var resp CreateChainResponse
	err := c.do(ctx, http.MethodPost, "/v2/swap/chain", req, &resp)
	return resp, err
}

// GetSubmarinePairs returns the current Send fee schedule and limits.
func (c *Client) GetSubmarinePairs(ctx context.Context) ([]Pair, error) {
	var resp []Pair
	err := c.do(ctx, http.MethodGet, "/v2/swap/submarine", nil, &resp)
	return resp, err
}

// GetReversePairs returns the current Receive fee schedule and limits.
func (c *Client) GetReversePairs(ctx context.Context) ([]Pair, error) {
	var resp []Pair
	err := c.do(ctx, http.MethodGet, "/v2/swap/reverse", nil, &resp)
	return resp, err
}

// GetChainPairs returns the current Chain fee schedule and limits.
func (c *Client) GetChainPairs(ctx context.Context) ([]Pair, error) {
	var resp []Pair
	err := c.do(ctx, http.MethodGet, "/v2/swap/chain", nil, &resp)
	return resp, err
}

// GetSubmarinePreimage performs cooperative preimage disclosure after the
// counterparty has claimed a Send swap.
func (c *Client) GetSubmarinePreimage(ctx context.Context, swapID string) ([]byte, error) {
	var resp struct {
		Preimage string `json:"preimage"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v2/swap/submarine/%s/preimage", swapID), nil, &resp); err != nil {
		return nil, err
	}
	return decodeHex(resp.Preimage)
}

// GetSendClaimTxDetails fetches what's needed to co-sign a cooperative
// key-path claim on the counterparty's behalf.
func (c *Client) GetSendClaimTxDetails(ctx context.Context, swapID string) (ClaimTxDetails, error) {
	var resp struct {
		Preimage        string `json:"preimage"`
		PubNonce        string `json:"pubNonce"`
		PublicKey       string `json:"publicKey"`
		TransactionHash string `json:"transactionHash"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v2/swap/submarine/%s/claim", swapID), nil, &resp); err != nil {
		return ClaimTxDetails{}, err
	}
	preimage, err := decodeHex(resp.Preimage)
	if err != nil {
		return ClaimTxDetails{}, err
	}
	pubNonce, err := decodeHex(resp.PubNonce)
	if err != nil {
		return ClaimTxDetails{}, err
	}
	pubKey, err := decodeHex(resp.PublicKey)
	if err != nil {
		return ClaimTxDetails{}, err
	}
	txHash, err := decodeHex(resp.TransactionHash)
	if err != nil {
		return ClaimTxDetails{}, err
	}
	return ClaimTxDetails{Preimage: preimage, PubNonce: pubNonce, PublicKey: pubKey, TransactionHash: txHash}, nil
}

// ClaimSendSwapCooperative posts our partial signature for a Send swap's
// cooperative key-path claim.
func (c *Client) ClaimSendSwapCooperative(ctx context.Context, swapID string, partialSig []byte, pubNonce []byte) error {
	req := struct {
		PartialSignature string `json:"partialSignature"`
		PubNonce         string `json:"pubNonce"`
	}{PartialSignature: encodeHex(partialSig), PubNonce: encodeHex(pubNonce)}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v2/swap/submarine/%s/claim", swapID), req, nil)
}

// GetZeroAmountChainSwapQuote fetches the server-proposed lockup amount for
// a zero-amount chain swap.
func (c *Client) GetZeroAmountChainSwapQuote(ctx context.Context, swapID string) (int64, error) {
	var resp struct {
		ServerLockupSat int64 `json:"serverLockupAmount"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v2/swap/chain/%s/quote", swapID), nil, &resp)
	return resp.ServerLockupSat, err
}

// AcceptZeroAmountChainSwapQuote confirms the quoted amount, letting the
// chain swap proceed.
func (c *Client) AcceptZeroAmountChainSwapQuote(ctx context.Context, swapID string, serverLockupSat int64) error {
	req := struct {
		ServerLockupSat int64 `json:"serverLockupAmount"`
	}{ServerLockupSat: serverLockupSat}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v2/swap/chain/%s/quote", swapID), req, nil)
}

// BroadcastTx routes a signed transaction through the counterparty rather
// than directly via ChainService. The protocol handlers do not call it;
// they broadcast through ChainService.
func (c *Client) BroadcastTx(ctx context.Context, asset, txHex string) (string, error) {
	req := struct {
		Hex string `json:"hex"`
	}{Hex: txHex}
	var resp struct {
		TxID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v2/chain/%s/transaction", asset), req, &resp)
	return resp.TxID, err
}

// FetchBolt12Invoice requests an invoice for a BOLT12 offer + amount.
// Nothing in this module calls it: SendHandler.CreateSendSwap takes a
// BOLT11 invoice only.
func (c *Client) FetchBolt12Invoice(ctx context.Context, offer string, amountSat int64) (string, error) {
	req := struct {
		Offer     string `json:"offer"`
		AmountSat int64  `json:"amountSat"`
	}{Offer: offer, AmountSat: amountSat}
	var resp struct {
		Invoice string `json:"invoice"`
	}
	err := c.do(ctx, http.MethodPost, "/v2/swap/submarine/bolt12/invoice", req, &resp)
	return resp.Invoice, err
}
