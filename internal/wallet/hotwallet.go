package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/platform/dexhunter"
)

// WitnessAttacher assembles a signed transaction from an unsigned one and a
// witness set. *dexhunter.Client satisfies it.
type WitnessAttacher interface {
	AttachWitness(ctx context.Context, txCbor, witnessSetHex string) (dexhunter.SignResult, error)
}

// Submitter broadcasts a signed transaction. *blockfrost.Client satisfies it.
type Submitter interface {
	Submit(ctx context.Context, signedCborHex string) (string, error)
}

// HotWallet signs with a server-held ed25519 key.
type HotWallet struct {
	key      ed25519.PrivateKey
	address  string
	attacher WitnessAttacher
	submit   Submitter
	balance  domain.BalanceProvider
	logger   *slog.Logger
}

// HotWalletConfig wires a HotWallet. Attacher and Balance are optional.
type HotWalletConfig struct {
	Key      ed25519.PrivateKey
	Address  string
	Attacher WitnessAttacher
	Submit   Submitter
	Balance  domain.BalanceProvider
	Logger   *slog.Logger
}

// NewHotWallet validates cfg and returns a HotWallet.
func NewHotWallet(cfg HotWalletConfig) (*HotWallet, error) {
	if len(cfg.Key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("wallet: hot wallet needs an ed25519 key: %w", domain.ErrInvalidInput)
	}
	if cfg.Submit == nil {
		return nil, fmt.Errorf("wallet: hot wallet needs a submitter: %w", domain.ErrInvalidInput)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HotWallet{
		key:      cfg.Key,
		address:  cfg.Address,
		attacher: cfg.Attacher,
		submit:   cfg.Submit,
		balance:  cfg.Balance,
		logger:   logger,
	}, nil
}

func (w *HotWallet) Name() string { return "hot" }

// Address is the wallet's payment address.
func (w *HotWallet) Address() string { return w.address }

// PublicKey returns the hex verification key.
func (w *HotWallet) PublicKey() string {
	return hex.EncodeToString(w.key.Public().(ed25519.PublicKey))
}

// Balance reports the spendable ADA balance.
func (w *HotWallet) Balance(ctx context.Context) (float64, error) {
	if w.balance == nil {
		return 0, errors.New("wallet: no balance provider configured")
	}
	return w.balance.Balance(ctx)
}

// SignAndSubmit witnesses tx and hands it to the aggregator. If the
// aggregator reports a hash the transaction is already submitted; otherwise
// the signed transaction (assembled locally when the aggregator fails) is
// submitted directly.
func (w *HotWallet) SignAndSubmit(ctx context.Context, tx domain.UnsignedTx) (string, error) {
	ws, err := WitnessSet(tx.CborHex, w.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}

	signed := ""
	if w.attacher != nil {
		res, err := w.attacher.AttachWitness(ctx, tx.CborHex, hex.EncodeToString(ws))
		switch {
		case err != nil:
			w.logger.Warn("wallet: attach witness failed, assembling locally",
				slog.String("error", err.Error()),
			)
		case res.TxHash != "":
			return res.TxHash, nil
		default:
			signed = res.SignedCbor
		}
	}
	if signed == "" {
		signed, err = AssembleSigned(tx.CborHex, ws)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
		}
	}

	hash, err := w.submit.Submit(ctx, signed)
	if err != nil {
		if errors.Is(err, domain.ErrSubmitFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrSubmitFailed, err)
	}
	return hash, nil
}
