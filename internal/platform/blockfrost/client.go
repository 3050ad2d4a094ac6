// Package blockfrost is a minimal client for the Blockfrost Cardano API:
// transaction submission, confirmation lookups and address balances.
package blockfrost

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// DefaultBaseURL is the mainnet API root.
const DefaultBaseURL = "https://cardano-mainnet.blockfrost.io/api/v0"

const lovelacePerADA = 1_000_000

// Client talks to Blockfrost with a project id. It implements
// domain.ConfirmationChecker.
type Client struct {
	baseURL    string
	projectID  string
	httpClient *http.Client
}

// New creates a Client. A zero timeout defaults to 10s.
func New(baseURL, projectID string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		projectID:  projectID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Submit posts a signed transaction and returns its hash.
func (c *Client) Submit(ctx context.Context, signedCborHex string) (string, error) {
	raw, err := hex.DecodeString(signedCborHex)
	if err != nil {
		return "", fmt.Errorf("blockfrost: submit: decode tx hex: %w", domain.ErrInvalidInput)
	}
	status, body, err := c.do(ctx, http.MethodPost, "/tx/submit", "application/cbor", raw)
	if err != nil {
		return "", fmt.Errorf("blockfrost: submit: %w: %v", domain.ErrSubmitFailed, err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("blockfrost: submit: %w: status %d: %s", domain.ErrSubmitFailed, status, apiMessage(body))
	}
	hash := strings.Trim(strings.TrimSpace(string(body)), `"`)
	if hash == "" {
		return "", fmt.Errorf("blockfrost: submit: %w: empty hash", domain.ErrSubmitFailed)
	}
	return hash, nil
}

type txResponse struct {
	Hash        string `json:"hash"`
	Block       string `json:"block"`
	BlockHeight int64  `json:"block_height"`
	Fees        string `json:"fees"`
}

// CheckConfirmed reports whether txHash is in a block. Fees are converted
// from lovelace to ADA.
func (c *Client) CheckConfirmed(ctx context.Context, txHash string) (bool, float64, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/txs/"+url.PathEscape(txHash), "", nil)
	if err != nil {
		return false, 0, fmt.Errorf("blockfrost: tx %s: %w", txHash, err)
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, 0, nil
	default:
		return false, 0, fmt.Errorf("blockfrost: tx %s: status %d: %s", txHash, status, apiMessage(body))
	}
	var tx txResponse
	if err := json.Unmarshal(body, &tx); err != nil {
		return false, 0, fmt.Errorf("blockfrost: tx %s: decode: %w", txHash, err)
	}
	lovelace, _ := strconv.ParseInt(tx.Fees, 10, 64)
	return true, float64(lovelace) / lovelacePerADA, nil
}

type addressResponse struct {
	Amount []struct {
		Unit     string `json:"unit"`
		Quantity string `json:"quantity"`
	} `json:"amount"`
}

// Balance returns the ADA held at address. An address never seen on chain
// has a zero balance.
func (c *Client) Balance(ctx context.Context, address string) (float64, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/addresses/"+url.PathEscape(address), "", nil)
	if err != nil {
		return 0, fmt.Errorf("blockfrost: address: %w", err)
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return 0, nil
	default:
		return 0, fmt.Errorf("blockfrost: address: status %d: %s", status, apiMessage(body))
	}
	var addr addressResponse
	if err := json.Unmarshal(body, &addr); err != nil {
		return 0, fmt.Errorf("blockfrost: address: decode: %w", err)
	}
	for _, a := range addr.Amount {
		if a.Unit == "lovelace" {
			q, err := strconv.ParseInt(a.Quantity, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("blockfrost: address: quantity %q: %w", a.Quantity, err)
			}
			return float64(q) / lovelacePerADA, nil
		}
	}
	return 0, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("project_id", c.projectID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// apiMessage extracts Blockfrost's {"message": ...} error text.
func apiMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}

// AddressBalance binds a Client to one address. It implements
// domain.BalanceProvider.
type AddressBalance struct {
	Client  *Client
	Address string
}

func (b AddressBalance) Balance(ctx context.Context) (float64, error) {
	return b.Client.Balance(ctx, b.Address)
}
