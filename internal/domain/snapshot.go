package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Level is the aggregate of one price level.
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}

type DepthSnapshot struct {
	Symbol    string    `json:"symbol"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *DepthSnapshot) DeepCopy() *DepthSnapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Bids = append([]Level(nil), s.Bids...)
	cp.Asks = append([]Level(nil), s.Asks...)
	return &cp
}

// Quote is the top of book for one instrument.
type Quote struct {
	Symbol     string           `json:"symbol"`
	BestBid    *decimal.Decimal `json:"best_bid,omitempty"`
	BestAsk    *decimal.Decimal `json:"best_ask,omitempty"`
	BuyVolume  decimal.Decimal  `json:"buy_volume"`
	SellVolume decimal.Decimal  `json:"sell_volume"`
}
