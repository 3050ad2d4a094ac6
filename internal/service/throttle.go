package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

const buildRateKey = "dexhunter:build"

// ThrottledBuilder caps swap-builder calls per minute across every process
// sharing the rate limiter.
type ThrottledBuilder struct {
	next    domain.SwapBuilder
	limiter domain.RateLimiter
	limit   int
	logger  *slog.Logger
}

// NewThrottledBuilder wraps next. A nil limiter or non-positive limit
// returns next unchanged.
func NewThrottledBuilder(next domain.SwapBuilder, limiter domain.RateLimiter, perMinute int, logger *slog.Logger) domain.SwapBuilder {
	if limiter == nil || perMinute <= 0 {
		return next
	}
	return &ThrottledBuilder{
		next:    next,
		limiter: limiter,
		limit:   perMinute,
		logger:  logger.With(slog.String("component", "throttled_builder")),
	}
}

// BuildSwap fails fast with domain.ErrRateLimited when the window is full.
// A limiter outage lets the call through.
func (b *ThrottledBuilder) BuildSwap(ctx context.Context, from, to string, amount int64, maxSlippagePct float64, venueHint string) (domain.UnsignedTx, int64, error) {
	ok, err := b.limiter.Allow(ctx, buildRateKey, b.limit, time.Minute)
	if err != nil {
		b.logger.WarnContext(ctx, "rate limiter unavailable", slog.String("error", err.Error()))
	} else if !ok {
		return domain.UnsignedTx{}, 0, fmt.Errorf("swap builder: %d calls per minute: %w", b.limit, domain.ErrRateLimited)
	}
	return b.next.BuildSwap(ctx, from, to, amount, maxSlippagePct, venueHint)
}
