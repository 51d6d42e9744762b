package amm

import "errors"

var (
	ErrInvalidFeeConfig             = errors.New("invalid fee config")
	ErrDuplicateAsset               = errors.New("assets must be different")
	ErrInsufficientInitialLiquidity = errors.New("insufficient initial liquidity")
	ErrSlippageExceeded             = errors.New("slippage limit exceeded")
	ErrInsufficientShareBalance     = errors.New("insufficient share balance")
	ErrInsufficientLiquidity        = errors.New("insufficient liquidity")
	ErrArithmeticOverflow           = errors.New("arithmetic overflow")
	ErrDivisionByZero               = errors.New("division by zero")
	ErrUnauthorized                 = errors.New("unauthorized")
	ErrInsufficientFeeBalance       = errors.New("insufficient fee balance")
	ErrInvalidAmount                = errors.New("invalid amount")
	ErrPoolPaused                   = errors.New("pool is paused")
	ErrInvalidPoolState             = errors.New("invalid pool state")
)
