package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// Message types exchanged with the dashboard over the websocket.
const (
	MsgSignRequest  = "sign_request"
	MsgSignResponse = "sign_response"
)

// DefaultSignTimeout bounds how long a browser signature is awaited.
const DefaultSignTimeout = 120 * time.Second

// SignRequest asks a connected wallet page to sign TxCbor.
type SignRequest struct {
	ID     string `json:"id"`
	TxCbor string `json:"txCbor"`
	Source string `json:"source,omitempty"`
}

// SignResponse is the page's reply. Either WitnessSet (the CIP-30 signTx
// result) or SignedTx is set, unless Error is.
type SignResponse struct {
	ID         string `json:"id"`
	WitnessSet string `json:"witnessSet,omitempty"`
	SignedTx   string `json:"signedTx,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Broadcaster delivers a typed message to connected dashboards and reports
// how many received it.
type Broadcaster interface {
	Send(msgType string, payload any) int
}

var ErrNoWalletConnected = errors.New("no browser wallet connected")

// SignBroker pairs outgoing sign requests with the responses that arrive on
// the websocket.
type SignBroker struct {
	out Broadcaster

	mu      sync.Mutex
	pending map[string]chan SignResponse
}

func NewSignBroker(out Broadcaster) *SignBroker {
	return &SignBroker{out: out, pending: make(map[string]chan SignResponse)}
}

// SetBroadcaster replaces the outgoing transport. The hub and the broker
// reference each other, so one side is wired after construction.
func (b *SignBroker) SetBroadcaster(out Broadcaster) {
	b.mu.Lock()
	b.out = out
	b.mu.Unlock()
}

// Request sends a sign request and waits for its response or ctx.
func (b *SignBroker) Request(ctx context.Context, tx domain.UnsignedTx) (SignResponse, error) {
	req := SignRequest{ID: uuid.NewString(), TxCbor: tx.CborHex, Source: tx.Source}
	ch := make(chan SignResponse, 1)

	b.mu.Lock()
	out := b.out
	b.pending[req.ID] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, req.ID)
		b.mu.Unlock()
	}()

	if out == nil || out.Send(MsgSignRequest, req) == 0 {
		return SignResponse{}, ErrNoWalletConnected
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return resp, fmt.Errorf("wallet rejected: %s", resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return SignResponse{}, ctx.Err()
	}
}

// Resolve delivers resp to its waiting request. It reports false when no
// request with that id is pending.
func (b *SignBroker) Resolve(resp SignResponse) bool {
	b.mu.Lock()
	ch, ok := b.pending[resp.ID]
	if ok {
		delete(b.pending, resp.ID)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	ch <- resp
	return true
}

// Pending returns the number of unanswered requests.
func (b *SignBroker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// BrowserSigner asks a connected wallet page to sign and submits the result.
type BrowserSigner struct {
	broker  *SignBroker
	submit  Submitter
	timeout time.Duration
}

func NewBrowserSigner(broker *SignBroker, submit Submitter, timeout time.Duration) *BrowserSigner {
	if timeout <= 0 {
		timeout = DefaultSignTimeout
	}
	return &BrowserSigner{broker: broker, submit: submit, timeout: timeout}
}

func (s *BrowserSigner) Name() string { return "browser" }

func (s *BrowserSigner) SignAndSubmit(ctx context.Context, tx domain.UnsignedTx) (string, error) {
	if _, err := hex.DecodeString(tx.CborHex); err != nil || tx.CborHex == "" {
		return "", fmt.Errorf("%w: tx is not hex cbor", domain.ErrSigningFailed)
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.broker.Request(sctx, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: no signature within %s", domain.ErrSigningFailed, s.timeout)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}

	signed := resp.SignedTx
	if signed == "" {
		if resp.WitnessSet == "" {
			return "", fmt.Errorf("%w: empty sign response", domain.ErrSigningFailed)
		}
		ws, err := hex.DecodeString(resp.WitnessSet)
		if err != nil {
			return "", fmt.Errorf("%w: witness set is not hex", domain.ErrSigningFailed)
		}
		signed, err = AssembleSigned(tx.CborHex, ws)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
		}
	}

	hash, err := s.submit.Submit(ctx, signed)
	if err != nil {
		if errors.Is(err, domain.ErrSubmitFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrSubmitFailed, err)
	}
	return hash, nil
}
