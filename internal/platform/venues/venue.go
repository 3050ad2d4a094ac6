// Package venues fetches token prices from Cardano DEX APIs. Every fetcher
// is throttled per venue and parses responses tolerantly; shapes vary across
// API versions so unknown or missing fields are skipped rather than rejected.
package venues

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// Venue names.
const (
	Minswap    = "Minswap"
	SundaeSwap = "SundaeSwap"
	WingRiders = "WingRiders"
	MuesliSwap = "MuesliSwap"
)

// DefaultTimeout bounds a single venue request.
const DefaultTimeout = 5 * time.Second

// defaultDepth is used when a venue omits liquidity.
const defaultDepth = 5000

// Fetcher retrieves the current quotes of one venue.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.Quote, error)
}

// Options configures an HTTP fetcher.
type Options struct {
	URL        string
	Timeout    time.Duration
	RatePerSec float64
	HTTPClient *http.Client
	Now        func() time.Time
}

// New builds the fetcher for a known venue name.
func New(name string, opts Options) (Fetcher, error) {
	base := newClient(name, opts)
	switch name {
	case Minswap:
		return &minswapFetcher{client: base}, nil
	case SundaeSwap:
		return &sundaeFetcher{client: base}, nil
	case WingRiders:
		return &wingRidersFetcher{client: base}, nil
	case MuesliSwap:
		return &muesliFetcher{client: base}, nil
	default:
		return nil, fmt.Errorf("venues: unknown venue %q: %w", name, domain.ErrInvalidInput)
	}
}

// client is the HTTP plumbing shared by every venue.
type client struct {
	name    string
	url     string
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	now     func() time.Time
}

func newClient(name string, opts Options) *client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	return &client{
		name:    name,
		url:     opts.URL,
		http:    opts.HTTPClient,
		timeout: opts.Timeout,
		limiter: rate.NewLimiter(limit, 1),
		now:     opts.Now,
	}
}

func (c *client) Name() string { return c.name }

// do sends the request and decodes a 2xx JSON body into out.
func (c *client) do(ctx context.Context, method string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("venues: %s: rate limit wait: %w", c.name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("venues: %s: marshal body: %w", c.name, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url, reader)
	if err != nil {
		return fmt.Errorf("venues: %s: create request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("venues: %s: request: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("venues: %s: status %d: %s", c.name, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("venues: %s: decode: %w", c.name, err)
	}
	return nil
}

// quote builds a Quote, rejecting unusable rows.
func (c *client) quote(symbol string, price, depth float64, at time.Time) (domain.Quote, bool) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" || symbol == domain.BaseSymbol || !(price > 0) || price > 1e12 {
		return domain.Quote{}, false
	}
	if !(depth > 0) {
		depth = defaultDepth
	}
	return domain.Quote{
		Venue:       c.name,
		BaseSymbol:  domain.BaseSymbol,
		QuoteSymbol: symbol,
		PairKey:     domain.PairKeyFor(domain.BaseSymbol, symbol),
		Price:       price,
		Depth:       depth,
		ObservedAt:  at,
	}, true
}

func (c *client) noQuotes() error {
	return fmt.Errorf("venues: %s: no prices parsed", c.name)
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Unparseable values are treated as absent.
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// pairToken returns the token side of an "ADA/TOKEN" style pair string.
func pairToken(pair string) string {
	if _, token, ok := strings.Cut(pair, "/"); ok {
		return token
	}
	return ""
}
