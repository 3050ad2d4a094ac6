// Package dexhunter is the REST client for the DexHunter swap aggregator,
// with an optional MuesliSwap fallback for building swaps.
package dexhunter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

const (
	// DefaultBaseURL is the DexHunter v3 API root.
	DefaultBaseURL = "https://api-us.dexhunterv3.app"

	lovelaceUnit   = "lovelace"
	lovelacePerADA = 1_000_000
)

// Config configures a Client.
type Config struct {
	BaseURL   string
	PartnerID string
	// Address is the wallet that receives the swap output.
	Address string
	// Tokens maps symbols to on-chain units; ADA maps to "lovelace".
	Tokens      map[string]string
	Timeout     time.Duration
	FallbackURL string
	HTTPClient  *http.Client
}

// Client builds and co-signs swap transactions. It implements
// domain.SwapBuilder.
type Client struct {
	baseURL     string
	partnerID   string
	address     string
	tokens      map[string]string
	fallbackURL string
	httpClient  *http.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		partnerID:   cfg.PartnerID,
		address:     cfg.Address,
		tokens:      cfg.Tokens,
		fallbackURL: strings.TrimRight(cfg.FallbackURL, "/"),
		httpClient:  cfg.HTTPClient,
	}
}

// SetAddress sets the wallet address used as buyer on subsequent builds.
func (c *Client) SetAddress(addr string) { c.address = addr }

type buildRequest struct {
	BuyerAddress     string   `json:"buyer_address"`
	TokenIn          string   `json:"token_in"`
	TokenOut         string   `json:"token_out"`
	AmountIn         float64  `json:"amount_in"`
	Slippage         float64  `json:"slippage"`
	BlacklistedDexes []string `json:"blacklisted_dexes"`
}

type buildResponse struct {
	Cbor            string    `json:"cbor"`
	Tx              string    `json:"tx"`
	Transaction     string    `json:"transaction"`
	TotalOutput     flexFloat `json:"total_output"`
	EstimatedOutput flexFloat `json:"estimated_output"`
	EstimatedCamel  flexFloat `json:"estimatedOutput"`
	PriceImpact     flexFloat `json:"price_impact"`
}

func (r buildResponse) cbor() string {
	for _, s := range []string{r.Cbor, r.Tx, r.Transaction} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (r buildResponse) output() float64 {
	for _, v := range []flexFloat{r.TotalOutput, r.EstimatedOutput, r.EstimatedCamel} {
		if v > 0 {
			return float64(v)
		}
	}
	return 0
}

// BuildSwap builds an unsigned swap of amount (smallest unit of from) into
// to. ADA amounts are sent to the API in ADA; token quantities as-is. The
// returned estimate is in the smallest unit of to.
func (c *Client) BuildSwap(ctx context.Context, from, to string, amount int64, maxSlippagePct float64, venueHint string) (domain.UnsignedTx, int64, error) {
	if amount <= 0 {
		return domain.UnsignedTx{}, 0, fmt.Errorf("dexhunter: build: amount %d: %w", amount, domain.ErrInvalidInput)
	}
	fromUnit, err := c.unit(from)
	if err != nil {
		return domain.UnsignedTx{}, 0, err
	}
	toUnit, err := c.unit(to)
	if err != nil {
		return domain.UnsignedTx{}, 0, err
	}

	tx, out, err := c.build(ctx, fromUnit, toUnit, amount, maxSlippagePct)
	if err == nil {
		return tx, out, nil
	}
	if c.fallbackURL == "" {
		return domain.UnsignedTx{}, 0, err
	}
	ftx, fout, ferr := c.buildMuesli(ctx, fromUnit, toUnit, amount, maxSlippagePct, venueHint)
	if ferr != nil {
		return domain.UnsignedTx{}, 0, fmt.Errorf("%w; fallback: %v", err, ferr)
	}
	return ftx, fout, nil
}

func (c *Client) build(ctx context.Context, fromUnit, toUnit string, amount int64, slippage float64) (domain.UnsignedTx, int64, error) {
	req := buildRequest{
		BuyerAddress:     c.address,
		TokenIn:          apiUnit(fromUnit),
		TokenOut:         apiUnit(toUnit),
		AmountIn:         toAPIAmount(fromUnit, amount),
		Slippage:         slippage,
		BlacklistedDexes: []string{},
	}
	var resp buildResponse
	if err := c.post(ctx, c.baseURL+"/swap/build", req, &resp); err != nil {
		return domain.UnsignedTx{}, 0, fmt.Errorf("dexhunter: build: %w", err)
	}
	cbor := resp.cbor()
	if cbor == "" {
		return domain.UnsignedTx{}, 0, fmt.Errorf("dexhunter: build: response carried no transaction")
	}
	return domain.UnsignedTx{
		CborHex:     cbor,
		Source:      "dexhunter",
		PriceImpact: float64(resp.PriceImpact),
	}, fromAPIAmount(toUnit, resp.output()), nil
}

type signRequest struct {
	TxCbor     string   `json:"txCbor"`
	Signatures []string `json:"signatures"`
}

type signResponse struct {
	Cbor       string `json:"cbor"`
	Tx         string `json:"tx"`
	TxHash     string `json:"txHash"`
	TxHashLong string `json:"tx_hash"`
}

// SignResult is the outcome of attaching witnesses. TxHash is set when
// DexHunter also submitted the transaction.
type SignResult struct {
	SignedCbor string
	TxHash     string
}

// AttachWitness sends the unsigned tx with a hex-encoded witness set and
// returns the assembled transaction.
func (c *Client) AttachWitness(ctx context.Context, txCbor, witnessSetHex string) (SignResult, error) {
	var resp signResponse
	req := signRequest{TxCbor: txCbor, Signatures: []string{witnessSetHex}}
	if err := c.post(ctx, c.baseURL+"/swap/sign", req, &resp); err != nil {
		return SignResult{}, fmt.Errorf("dexhunter: sign: %w", err)
	}
	res := SignResult{SignedCbor: resp.Cbor, TxHash: resp.TxHash}
	if res.SignedCbor == "" {
		res.SignedCbor = resp.Tx
	}
	if res.TxHash == "" {
		res.TxHash = resp.TxHashLong
	}
	if res.SignedCbor == "" && res.TxHash == "" {
		return SignResult{}, fmt.Errorf("dexhunter: sign: empty response")
	}
	return res, nil
}

func (c *Client) unit(symbol string) (string, error) {
	if symbol == domain.BaseSymbol {
		return lovelaceUnit, nil
	}
	u, ok := c.tokens[symbol]
	if !ok || u == "" {
		return "", fmt.Errorf("dexhunter: token %q: %w", symbol, domain.ErrUnknownToken)
	}
	return u, nil
}

func (c *Client) post(ctx context.Context, url string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.partnerID != "" {
		req.Header.Set("X-Partner-Id", c.partnerID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(data)), 256))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiUnit maps lovelace to the empty unit DexHunter uses for ADA.
func apiUnit(unit string) string {
	if unit == lovelaceUnit {
		return ""
	}
	return unit
}

func toAPIAmount(unit string, amount int64) float64 {
	if unit == lovelaceUnit {
		return float64(amount) / lovelacePerADA
	}
	return float64(amount)
}

func fromAPIAmount(unit string, v float64) int64 {
	if unit == lovelaceUnit {
		v *= lovelacePerADA
	}
	return int64(math.Floor(v))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// flexFloat accepts a JSON number or numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	*f = flexFloat(v)
	return nil
}
