package domain

import "context"

// UnsignedTx is an unsigned transaction as returned by a swap builder.
type UnsignedTx struct {
	CborHex     string
	Source      string
	PriceImpact float64
}

// SwapBuilder builds an unsigned swap transaction. Amount and the returned
// estimated output are in the smallest unit of the respective token.
type SwapBuilder interface {
	BuildSwap(ctx context.Context, from, to string, amount int64, maxSlippagePct float64, venueHint string) (UnsignedTx, int64, error)
}

// Signer signs and submits a transaction, returning its hash.
type Signer interface {
	SignAndSubmit(ctx context.Context, tx UnsignedTx) (string, error)
	Name() string
}

// ConfirmationChecker reports whether a transaction is on chain. FeePaid is
// in base-asset units and zero when unknown.
type ConfirmationChecker interface {
	CheckConfirmed(ctx context.Context, txRef string) (confirmed bool, feePaid float64, err error)
}

// BalanceProvider reports the spendable base-asset balance of the wallet
// used for execution.
type BalanceProvider interface {
	Balance(ctx context.Context) (float64, error)
}

// QuoteSource fetches every venue's quotes. A venue failure degrades that
// venue's status and never fails the whole call.
type QuoteSource interface {
	FetchAllQuotes(ctx context.Context) ([]Quote, []VenueStatus)
}
