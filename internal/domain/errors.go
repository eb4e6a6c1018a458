package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrMarketNotFound      = errors.New("market not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidOrder        = errors.New("invalid order parameters")
	ErrInvalidAmount       = errors.New("amount outside market limits")
	ErrInvalidPercentage   = errors.New("percentage must be between -100 and 100")
	ErrFeatureDisabled     = errors.New("binary trading is disabled")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOrderClosed         = errors.New("order is no longer pending")
	ErrPriceUnavailable    = errors.New("price unavailable")
	ErrRateLimited         = errors.New("rate limited")
	ErrThrottled           = errors.New("exchange is temporarily blocked")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrLockHeld            = errors.New("lock already held")
)
