package core

import (
	"fmt"

	"github.com/olyamironova/exchange-sim/internal/domain"
	"github.com/shopspring/decimal"
)

// MatchDepth caps how many opposite-side price levels a single match walks.
const MatchDepth = 5

// Retention decides what happens to resting orders matched down to zero.
type Retention int

const (
	// RetainFilled leaves zero-quantity orders and emptied levels in place,
	// so best prices may point at a level with nothing to trade.
	RetainFilled Retention = iota
	// EvictFilled removes zero-quantity orders and empty levels right after
	// each level is consumed.
	EvictFilled
)

func (r Retention) String() string {
	if r == EvictFilled {
		return "evict"
	}
	return "retain"
}

// ParseRetention reads the names produced by String.
func ParseRetention(v string) (Retention, error) {
	switch v {
	case "retain":
		return RetainFilled, nil
	case "evict":
		return EvictFilled, nil
	}
	return RetainFilled, fmt.Errorf("unknown retention %q", v)
}

// OrderBook holds the resting orders of one instrument. It has no internal
// locking: callers serialize access per book.
type OrderBook struct {
	bids      *bookSide
	asks      *bookSide
	retention Retention
}

type Option func(*OrderBook)

func WithRetention(r Retention) Option {
	return func(ob *OrderBook) { ob.retention = r }
}

func NewOrderBook(opts ...Option) *OrderBook {
	ob := &OrderBook{
		bids: newBookSide(domain.Buy),
		asks: newBookSide(domain.Sell),
	}
	for _, opt := range opts {
		opt(ob)
	}
	return ob
}

func (ob *OrderBook) Retention() Retention { return ob.retention }

func (ob *OrderBook) sideOf(s domain.Side) *bookSide {
	if s == domain.Buy {
		return ob.bids
	}
	return ob.asks
}

// Insert appends o to the tail of its price level without matching.
func (ob *OrderBook) Insert(o domain.Order) {
	ob.sideOf(o.Side).push(o)
}

func (ob *OrderBook) BestBuyPrice() (decimal.Decimal, bool) { return ob.bids.best() }

func (ob *OrderBook) BestSellPrice() (decimal.Decimal, bool) { return ob.asks.best() }

// MarketPrice is the price an order of side s would trade at first.
func (ob *OrderBook) MarketPrice(s domain.Side) (decimal.Decimal, bool) {
	if s == domain.Buy {
		return ob.BestSellPrice()
	}
	return ob.BestBuyPrice()
}

// TopBuyPrices returns up to MatchDepth bid prices, highest first.
func (ob *OrderBook) TopBuyPrices() ([]decimal.Decimal, bool) {
	prices := ob.bids.top(MatchDepth)
	return prices, len(prices) > 0
}

// TopSellPrices returns up to MatchDepth ask prices, lowest first.
func (ob *OrderBook) TopSellPrices() ([]decimal.Decimal, bool) {
	prices := ob.asks.top(MatchDepth)
	return prices, len(prices) > 0
}

func (ob *OrderBook) BuyVolume() decimal.Decimal { return ob.bids.volume() }

func (ob *OrderBook) SellVolume() decimal.Decimal { return ob.asks.volume() }

// MatchMarket consumes the best opposite levels regardless of price. Whatever
// is left rests at the price in carries.
func (ob *OrderBook) MatchMarket(in *domain.Order) []domain.Fill {
	return ob.match(in, anyPrice)
}

// MatchLimit consumes only opposite levels that cross the limit price in
// carries. Whatever is left rests at that price.
func (ob *OrderBook) MatchLimit(in *domain.Order) []domain.Fill {
	return ob.match(in, limitCrosses)
}

// crossing reports whether in may trade against a level priced at level.
type crossing func(in *domain.Order, level decimal.Decimal) bool

func anyPrice(*domain.Order, decimal.Decimal) bool { return true }

func limitCrosses(in *domain.Order, level decimal.Decimal) bool {
	if in.Side == domain.Buy {
		return level.LessThanOrEqual(in.Price)
	}
	return level.GreaterThanOrEqual(in.Price)
}

func (ob *OrderBook) match(in *domain.Order, crosses crossing) []domain.Fill {
	opposite := ob.sideOf(in.Side.Opposite())
	var fills []domain.Fill
	for _, p := range opposite.top(MatchDepth) {
		if in.Filled() {
			break
		}
		if !crosses(in, p) {
			continue
		}
		lvl := opposite.level(p)
		fills = append(fills, lvl.consume(in)...)
		if ob.retention == EvictFilled {
			lvl.compact()
			if len(lvl.orders) == 0 {
				opposite.remove(p)
			}
		}
	}
	if in.Quantity.IsPositive() {
		ob.Insert(*in)
	}
	return fills
}

// RestingOrders returns a copy of the orders queued at price on side s, in
// arrival order.
func (ob *OrderBook) RestingOrders(s domain.Side, price decimal.Decimal) []domain.Order {
	lvl := ob.sideOf(s).level(price)
	if lvl == nil {
		return nil
	}
	return append([]domain.Order(nil), lvl.orders...)
}

// Depth aggregates up to n levels per side, best first.
func (ob *OrderBook) Depth(n int) (bids, asks []domain.Level) {
	return ob.bids.depth(n), ob.asks.depth(n)
}
