package core

import (
	"sort"

	"github.com/olyamironova/exchange-sim/internal/domain"
	"github.com/shopspring/decimal"
)

// priceLevel is the FIFO queue of resting orders at one price.
type priceLevel struct {
	price  decimal.Decimal
	orders []domain.Order
}

func (l *priceLevel) volume() decimal.Decimal {
	total := decimal.Zero
	for _, o := range l.orders {
		total = total.Add(o.Quantity)
	}
	return total
}

func (l *priceLevel) live() int {
	n := 0
	for _, o := range l.orders {
		if o.Quantity.IsPositive() {
			n++
		}
	}
	return n
}

// consume matches in against the level in arrival order and stops as soon as
// in has nothing left.
func (l *priceLevel) consume(in *domain.Order) []domain.Fill {
	var fills []domain.Fill
	for i := range l.orders {
		resting := &l.orders[i]
		switch resting.Quantity.Cmp(in.Quantity) {
		case -1:
			fills = appendFill(fills, in.Side, l.price, resting.Quantity)
			in.Quantity = in.Quantity.Sub(resting.Quantity)
			resting.Quantity = decimal.Zero
		case 0:
			fills = appendFill(fills, in.Side, l.price, resting.Quantity)
			resting.Quantity = decimal.Zero
			in.Quantity = decimal.Zero
			return fills
		default:
			fills = appendFill(fills, in.Side, l.price, in.Quantity)
			resting.Quantity = resting.Quantity.Sub(in.Quantity)
			in.Quantity = decimal.Zero
			return fills
		}
	}
	return fills
}

// compact drops orders with nothing left, keeping arrival order.
func (l *priceLevel) compact() {
	kept := l.orders[:0]
	for _, o := range l.orders {
		if o.Quantity.IsPositive() {
			kept = append(kept, o)
		}
	}
	for i := len(kept); i < len(l.orders); i++ {
		l.orders[i] = domain.Order{}
	}
	l.orders = kept
}

func appendFill(fills []domain.Fill, side domain.Side, price, qty decimal.Decimal) []domain.Fill {
	if qty.IsZero() {
		return fills
	}
	return append(fills, domain.Fill{Side: side, Price: price, Quantity: qty})
}

// bookSide keeps price levels of one side. prices is sorted ascending
// regardless of side; levels is keyed by the canonical price string since
// decimal.Decimal values are not comparable with ==.
type bookSide struct {
	side   domain.Side
	prices []decimal.Decimal
	levels map[string]*priceLevel
}

func newBookSide(side domain.Side) *bookSide {
	return &bookSide{side: side, levels: make(map[string]*priceLevel)}
}

func priceKey(p decimal.Decimal) string { return p.String() }

func (s *bookSide) level(p decimal.Decimal) *priceLevel {
	return s.levels[priceKey(p)]
}

func (s *bookSide) push(o domain.Order) {
	key := priceKey(o.Price)
	lvl, ok := s.levels[key]
	if !ok {
		lvl = &priceLevel{price: o.Price}
		s.levels[key] = lvl
		i := sort.Search(len(s.prices), func(i int) bool {
			return s.prices[i].GreaterThanOrEqual(o.Price)
		})
		s.prices = append(s.prices, decimal.Decimal{})
		copy(s.prices[i+1:], s.prices[i:])
		s.prices[i] = o.Price
	}
	lvl.orders = append(lvl.orders, o)
}

func (s *bookSide) remove(p decimal.Decimal) {
	key := priceKey(p)
	if _, ok := s.levels[key]; !ok {
		return
	}
	delete(s.levels, key)
	i := sort.Search(len(s.prices), func(i int) bool {
		return s.prices[i].GreaterThanOrEqual(p)
	})
	if i < len(s.prices) && s.prices[i].Equal(p) {
		s.prices = append(s.prices[:i], s.prices[i+1:]...)
	}
}

// best is the highest bid or the lowest ask.
func (s *bookSide) best() (decimal.Decimal, bool) {
	if len(s.prices) == 0 {
		return decimal.Decimal{}, false
	}
	if s.side == domain.Buy {
		return s.prices[len(s.prices)-1], true
	}
	return s.prices[0], true
}

// top returns at most n prices, best first.
func (s *bookSide) top(n int) []decimal.Decimal {
	if n > len(s.prices) {
		n = len(s.prices)
	}
	out := make([]decimal.Decimal, 0, n)
	for i := 0; i < n; i++ {
		if s.side == domain.Buy {
			out = append(out, s.prices[len(s.prices)-1-i])
		} else {
			out = append(out, s.prices[i])
		}
	}
	return out
}

func (s *bookSide) volume() decimal.Decimal {
	total := decimal.Zero
	for _, lvl := range s.levels {
		total = total.Add(lvl.volume())
	}
	return total
}

func (s *bookSide) depth(n int) []domain.Level {
	prices := s.top(n)
	out := make([]domain.Level, 0, len(prices))
	for _, p := range prices {
		lvl := s.level(p)
		out = append(out, domain.Level{Price: lvl.price, Quantity: lvl.volume(), Orders: lvl.live()})
	}
	return out
}
