package types

import (
	errorsmod "cosmossdk.io/errors"
)

// Codespace groups every rejection raised by the engine.
const Codespace = "launchpool"

// Input validation.
var (
	ErrIdenticalAddresses = errorsmod.Register(Codespace, 2, "IdenticalAddresses")
	ErrZeroAddress        = errorsmod.Register(Codespace, 3, "ZeroAddress")
	ErrZeroAmount         = errorsmod.Register(Codespace, 4, "ZeroAmount")
	ErrZeroThreshold      = errorsmod.Register(Codespace, 5, "ZeroThreshold")
	ErrInvalidAmount      = errorsmod.Register(Codespace, 6, "InvalidAmount")
	ErrInvalidPath        = errorsmod.Register(Codespace, 7, "InvalidPath")
	ErrInvalidTo          = errorsmod.Register(Codespace, 8, "InvalidTo")
	ErrInvalidAddress     = errorsmod.Register(Codespace, 9, "InvalidAddress")
	ErrUnknownOperation   = errorsmod.Register(Codespace, 10, "UnknownOperation")
)

// State conflict.
var (
	ErrPairExists         = errorsmod.Register(Codespace, 20, "PairExists")
	ErrAlreadyGraduated   = errorsmod.Register(Codespace, 21, "AlreadyGraduated")
	ErrAlreadyInitialized = errorsmod.Register(Codespace, 22, "ALREADY_INITIALIZED")
	ErrTokenExists        = errorsmod.Register(Codespace, 23, "TokenExists")
)

// Precondition unmet.
var (
	ErrTokenNotGraduated           = errorsmod.Register(Codespace, 40, "TokenNotGraduated")
	ErrInsufficientBalance         = errorsmod.Register(Codespace, 41, "InsufficientBalance")
	ErrInsufficientAllowance       = errorsmod.Register(Codespace, 42, "InsufficientAllowance")
	ErrInsufficientLiquidityMinted = errorsmod.Register(Codespace, 43, "InsufficientLiquidityMinted")
	ErrInsufficientLiquidityBurned = errorsmod.Register(Codespace, 44, "InsufficientLiquidityBurned")
	ErrInsufficientOutputAmount    = errorsmod.Register(Codespace, 45, "InsufficientOutputAmount")
	ErrInsufficientInputAmount     = errorsmod.Register(Codespace, 46, "InsufficientInputAmount")
	ErrInsufficientLiquidity       = errorsmod.Register(Codespace, 47, "InsufficientLiquidity")
	ErrInsufficientAAmount         = errorsmod.Register(Codespace, 48, "InsufficientAAmount")
	ErrInsufficientBAmount         = errorsmod.Register(Codespace, 49, "InsufficientBAmount")
	ErrExcessiveInputAmount        = errorsmod.Register(Codespace, 50, "ExcessiveInputAmount")
	ErrExpired                     = errorsmod.Register(Codespace, 51, "Expired")
	ErrIndexOutOfBounds            = errorsmod.Register(Codespace, 52, "IndexOutOfBounds")
	ErrPoolNotFound                = errorsmod.Register(Codespace, 53, "PoolNotFound")
	ErrTokenNotFound               = errorsmod.Register(Codespace, 54, "TokenNotFound")
	ErrMarketClosed                = errorsmod.Register(Codespace, 55, "MarketClosed")
	ErrNotInitialized              = errorsmod.Register(Codespace, 56, "NotInitialized")
)

// Invariant violation.
var (
	ErrK = errorsmod.Register(Codespace, 60, "K")
)

// Safety throttle.
var (
	ErrExcessivePriceChange = errorsmod.Register(Codespace, 70, "ExcessivePriceChange")
	ErrVolumeLimitExceeded  = errorsmod.Register(Codespace, 71, "VolumeLimitExceeded")
	ErrPaused               = errorsmod.Register(Codespace, 72, "Pausable: paused")
	ErrNotPaused            = errorsmod.Register(Codespace, 73, "Pausable: not paused")
	ErrCooldownActive       = errorsmod.Register(Codespace, 74, "CooldownActive")
)

// Authorization.
var (
	ErrForbidden = errorsmod.Register(Codespace, 90, "Forbidden")
	ErrNotOwner  = errorsmod.Register(Codespace, 91, "Ownable: caller is not the owner")
)

// Ledger misuse.
var (
	ErrReadOnly = errorsmod.Register(Codespace, 100, "read-only transaction")
)
