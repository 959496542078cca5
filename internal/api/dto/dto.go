package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type ListInstrumentRequest struct {
	Name     string `json:"name" binding:"required"`
	Symbol   string `json:"symbol" binding:"required"`
	Sector   string `json:"sector" binding:"required"`
	Exchange string `json:"exchange" binding:"required"`
}

type Instrument struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Sector   string `json:"sector"`
	Market   string `json:"market"`
	Exchange string `json:"exchange"`
}

type ListInstrumentsResponse struct {
	Instruments []Instrument `json:"instruments"`
}

// SubmitOrderRequest carries prices and quantities as decimal strings or
// JSON numbers. Price is ignored for MARKET orders.
type SubmitOrderRequest struct {
	Symbol   string          `json:"symbol" binding:"required"`
	Side     string          `json:"side" binding:"required"`
	Type     string          `json:"type" binding:"required"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

type SubmitOrderResponse struct {
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Type      string          `json:"type"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Filled    decimal.Decimal `json:"filled"`
	Remaining decimal.Decimal `json:"remaining"`
	Rested    bool            `json:"rested"`
	Fills     []Fill          `json:"fills"`
}

type Fill struct {
	ID       string          `json:"id"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

type QuoteResponse struct {
	Symbol     string           `json:"symbol"`
	BestBid    *decimal.Decimal `json:"best_bid,omitempty"`
	BestAsk    *decimal.Decimal `json:"best_ask,omitempty"`
	BuyVolume  decimal.Decimal  `json:"buy_volume"`
	SellVolume decimal.Decimal  `json:"sell_volume"`
}

type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}

type DepthResponse struct {
	Symbol    string    `json:"symbol"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
