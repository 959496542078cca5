package domain

import "errors"

var (
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidSide        = errors.New("invalid side")
	ErrInvalidOrderType   = errors.New("invalid order type")
	ErrInvalidInstrument  = errors.New("invalid instrument")
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrInstrumentExists   = errors.New("instrument already listed")
	ErrNoLiquidity        = errors.New("no liquidity on opposite side")
)
