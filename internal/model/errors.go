package model

import (
	errorsmod "cosmossdk.io/errors"
)

// Codespace groups every engine error under one registry.
const Codespace = "vamm"

// Invariant violations. These abort the whole operation and are never expected
// from well-formed callers.
var (
	ErrTickOutOfBounds      = errorsmod.Register(Codespace, 2, "tick out of bounds")
	ErrSqrtPriceOutOfBounds = errorsmod.Register(Codespace, 3, "sqrt price out of bounds")
	ErrNegativeLiquidity    = errorsmod.Register(Codespace, 4, "liquidity would become negative")
	ErrMaxLiquidityPerTick  = errorsmod.Register(Codespace, 5, "liquidity per tick exceeds maximum")
	ErrTimestampRegression  = errorsmod.Register(Codespace, 6, "mark-to-market timestamp precedes last observation")
	ErrMathOverflow         = errorsmod.Register(Codespace, 7, "arithmetic overflow")
	ErrInvalidTickRange     = errorsmod.Register(Codespace, 8, "invalid tick range")
	ErrInvalidArgument      = errorsmod.Register(Codespace, 9, "invalid argument")
)

// Policy rejections. Callers may recover by waiting, resizing or choosing
// another range.
var (
	ErrPaused               = errorsmod.Register(Codespace, 10, "instance is paused")
	ErrMaturityInactive     = errorsmod.Register(Codespace, 11, "maturity is inside the inactive window")
	ErrPositionLimit        = errorsmod.Register(Codespace, 12, "open position limit exceeded")
	ErrPriceBand            = errorsmod.Register(Codespace, 13, "price limit outside the allowed band")
	ErrLocked               = errorsmod.Register(Codespace, 14, "instance is locked")
	ErrUnauthorized         = errorsmod.Register(Codespace, 15, "order not authorized")
	ErrPoolNotFound         = errorsmod.Register(Codespace, 16, "pool not found")
	ErrPoolExists           = errorsmod.Register(Codespace, 17, "pool already exists")
	ErrInsufficientHistory  = errorsmod.Register(Codespace, 18, "insufficient oracle history")
	ErrOracleNotInitialized = errorsmod.Register(Codespace, 19, "oracle not initialized")
)

// ErrInsufficientLiquidity is returned when a swap cannot be filled within the
// configured tick bounds. Nothing is persisted.
var ErrInsufficientLiquidity = errorsmod.Register(Codespace, 20, "insufficient liquidity to fill order")

var (
	invariantErrors = []error{
		ErrTickOutOfBounds, ErrSqrtPriceOutOfBounds, ErrNegativeLiquidity, ErrMaxLiquidityPerTick,
		ErrTimestampRegression, ErrMathOverflow, ErrInvalidTickRange, ErrInvalidArgument,
	}
	policyErrors = []error{
		ErrPaused, ErrMaturityInactive, ErrPositionLimit, ErrPriceBand, ErrLocked,
		ErrUnauthorized, ErrPoolNotFound, ErrPoolExists, ErrInsufficientHistory, ErrOracleNotInitialized,
	}
)

// IsInvariantViolation reports whether err is a fatal invariant violation.
func IsInvariantViolation(err error) bool {
	return err != nil && errorsmod.IsOf(err, invariantErrors...)
}

// IsPolicyRejection reports whether err is a named recoverable rejection.
func IsPolicyRejection(err error) bool {
	return err != nil && errorsmod.IsOf(err, policyErrors...)
}
