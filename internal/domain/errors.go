package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrRiskRejected   = errors.New("rejected by risk policy")
	ErrTradeInFlight  = errors.New("a trade is already in flight")
	ErrKilled         = errors.New("kill switch engaged")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUnknownToken   = errors.New("unknown token")
	ErrSigningFailed  = errors.New("signing failed")
	ErrSubmitFailed   = errors.New("submit failed")
	ErrConfirmTimeout = errors.New("confirmation timed out")
	ErrLockHeld       = errors.New("lock already held")
)
