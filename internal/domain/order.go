package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Side string
type OrderType string

const (
	Buy    Side      = "BUY"
	Sell   Side      = "SELL"
	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"
)

// Opposite returns the side an order of s matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "BUY", "BID", "B":
		return Buy, nil
	case "SELL", "ASK", "S":
		return Sell, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSide, v)
}

func ParseOrderType(v string) (OrderType, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "LIMIT", "LMT":
		return Limit, nil
	case "MARKET", "MKT":
		return Market, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOrderType, v)
}

// Order is the unit placed into and matched by an order book.
// A literal Order is not validated; use NewOrder for caller input.
type Order struct {
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// NewOrder rejects a negative quantity, a non-positive price and an unknown side.
func NewOrder(side Side, price, quantity decimal.Decimal) (Order, error) {
	if side != Buy && side != Sell {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
	if quantity.IsNegative() {
		return Order{}, fmt.Errorf("%w: %s must not be negative", ErrInvalidQuantity, quantity)
	}
	if !price.IsPositive() {
		return Order{}, fmt.Errorf("%w: %s must be positive", ErrInvalidPrice, price)
	}
	return Order{Side: side, Price: price, Quantity: quantity}, nil
}

// Filled reports whether the order has no quantity left to match.
func (o *Order) Filled() bool {
	return !o.Quantity.IsPositive()
}

// Fill is one resting order's contribution to a match.
type Fill struct {
	ID       string          `json:"id,omitempty"`
	Side     Side            `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}
