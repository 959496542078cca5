package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/olyamironova/exchange-sim/internal/domain"
	"github.com/olyamironova/exchange-sim/internal/port"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultDepthLevels is how many levels per side a depth snapshot carries.
const DefaultDepthLevels = 10

type bookEntry struct {
	mu   sync.Mutex
	inst domain.Instrument
	book *OrderBook
}

// Engine owns one order book per listed instrument and serializes access to
// each of them. Distinct books are matched independently.
type Engine struct {
	repo  port.InstrumentRepository
	cache port.DepthCache
	log   *zap.Logger

	retention   Retention
	depthLevels int
	now         func() time.Time
	newID       func() string
	depth       *hub

	mu       sync.RWMutex
	books    map[domain.Instrument]*bookEntry
	bySymbol map[string]*bookEntry
	reserved map[string]struct{}
}

type EngineOption func(*Engine)

func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithBookRetention sets the retention policy of every book created afterwards.
func WithBookRetention(r Retention) EngineOption {
	return func(e *Engine) { e.retention = r }
}

func WithDepthLevels(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.depthLevels = n
		}
	}
}

// NewEngine builds an engine. repo and cache are optional.
func NewEngine(repo port.InstrumentRepository, cache port.DepthCache, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:        repo,
		cache:       cache,
		log:         zap.NewNop(),
		depthLevels: DefaultDepthLevels,
		now:         time.Now,
		newID:       uuid.NewString,
		depth:       newHub(),
		books:       make(map[domain.Instrument]*bookEntry),
		bySymbol:    make(map[string]*bookEntry),
		reserved:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ListInstrument creates an empty book for inst and records it in the catalog.
// The symbol is reserved while the catalog write runs, so lookups on other
// instruments are not held up by it.
func (e *Engine) ListInstrument(ctx context.Context, inst domain.Instrument) error {
	e.mu.Lock()
	err := e.checkListable(inst)
	if err == nil {
		e.reserved[strings.ToUpper(inst.Symbol)] = struct{}{}
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}

	if e.repo != nil {
		if err := e.repo.SaveInstrument(ctx, inst); err != nil {
			e.mu.Lock()
			delete(e.reserved, strings.ToUpper(inst.Symbol))
			e.mu.Unlock()
			return fmt.Errorf("save instrument %s: %w", inst.Symbol, err)
		}
	}
	e.dropStaleDepth(ctx, inst.Symbol)

	e.mu.Lock()
	delete(e.reserved, strings.ToUpper(inst.Symbol))
	e.register(inst)
	e.mu.Unlock()

	e.log.Info("instrument listed",
		zap.String("symbol", inst.Symbol),
		zap.String("exchange", string(inst.Market.Exchange)),
		zap.String("sector", string(inst.Sector)),
		zap.Stringer("retention", e.retention))
	return nil
}

// LoadInstruments lists every instrument of the catalog that is not listed yet.
func (e *Engine) LoadInstruments(ctx context.Context) error {
	if e.repo == nil {
		return nil
	}
	insts, err := e.repo.LoadInstruments(ctx)
	if err != nil {
		return fmt.Errorf("load instruments: %w", err)
	}

	e.mu.Lock()
	var listable []domain.Instrument
	for _, inst := range insts {
		if err := e.checkListable(inst); err != nil {
			e.log.Warn("skipping catalog instrument", zap.String("symbol", inst.Symbol), zap.Error(err))
			continue
		}
		e.reserved[strings.ToUpper(inst.Symbol)] = struct{}{}
		listable = append(listable, inst)
	}
	e.mu.Unlock()

	for _, inst := range listable {
		e.dropStaleDepth(ctx, inst.Symbol)
	}

	e.mu.Lock()
	for _, inst := range listable {
		delete(e.reserved, strings.ToUpper(inst.Symbol))
		e.register(inst)
	}
	total := len(e.books)
	e.mu.Unlock()
	e.log.Info("instrument catalog loaded", zap.Int("loaded", len(listable)), zap.Int("instruments", total))
	return nil
}

// SeedInstruments lists insts, skipping the ones already listed.
func (e *Engine) SeedInstruments(ctx context.Context, insts []domain.Instrument) error {
	for _, inst := range insts {
		if err := e.ListInstrument(ctx, inst); err != nil && !errors.Is(err, domain.ErrInstrumentExists) {
			return err
		}
	}
	return nil
}

func (e *Engine) checkListable(inst domain.Instrument) error {
	if inst.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", domain.ErrInvalidInstrument)
	}
	if _, ok := e.books[inst]; ok {
		return fmt.Errorf("%w: %s", domain.ErrInstrumentExists, inst.Symbol)
	}
	sym := strings.ToUpper(inst.Symbol)
	if _, ok := e.bySymbol[sym]; ok {
		return fmt.Errorf("%w: symbol %s", domain.ErrInstrumentExists, inst.Symbol)
	}
	if _, ok := e.reserved[sym]; ok {
		return fmt.Errorf("%w: symbol %s is being listed", domain.ErrInstrumentExists, inst.Symbol)
	}
	return nil
}

func (e *Engine) register(inst domain.Instrument) {
	entry := &bookEntry{inst: inst, book: NewOrderBook(WithRetention(e.retention))}
	e.books[inst] = entry
	e.bySymbol[strings.ToUpper(inst.Symbol)] = entry
}

// OrderBook returns the book owned for inst. The caller must not use it
// concurrently with WithBook or SubmitOrder on the same instrument.
func (e *Engine) OrderBook(inst domain.Instrument) (*OrderBook, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.books[inst]
	if !ok {
		return nil, false
	}
	return entry.book, true
}

func (e *Engine) Instrument(symbol string) (domain.Instrument, bool) {
	entry, ok := e.entry(symbol)
	if !ok {
		return domain.Instrument{}, false
	}
	return entry.inst, true
}

// Instruments returns every listed instrument sorted by symbol.
func (e *Engine) Instruments() []domain.Instrument {
	e.mu.RLock()
	out := make([]domain.Instrument, 0, len(e.books))
	for inst := range e.books {
		out = append(out, inst)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (e *Engine) entry(symbol string) (*bookEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.bySymbol[strings.ToUpper(symbol)]
	return entry, ok
}

func (e *Engine) mustEntry(symbol string) (*bookEntry, error) {
	entry, ok := e.entry(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInstrumentNotFound, symbol)
	}
	return entry, nil
}

// WithBook runs fn with exclusive access to the book of symbol.
func (e *Engine) WithBook(symbol string, fn func(*OrderBook) error) error {
	entry, err := e.mustEntry(symbol)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(entry.book)
}

type SubmitRequest struct {
	Symbol   string
	Type     domain.OrderType
	Side     domain.Side
	Price    decimal.Decimal // ignored for market orders
	Quantity decimal.Decimal
}

// Execution describes what happened to a submitted order.
type Execution struct {
	Symbol    string
	Type      domain.OrderType
	Side      domain.Side
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Filled    decimal.Decimal
	Remaining decimal.Decimal
	Rested    bool
	Fills     []domain.Fill
}

// SubmitOrder matches an order against the book of req.Symbol. A market order
// is priced at the book's current market price; its unfilled remainder rests
// there like a limit order.
func (e *Engine) SubmitOrder(ctx context.Context, req SubmitRequest) (*Execution, error) {
	if req.Type != domain.Limit && req.Type != domain.Market {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidOrderType, req.Type)
	}
	if req.Side != domain.Buy && req.Side != domain.Sell {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidSide, req.Side)
	}
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: %s must be positive", domain.ErrInvalidQuantity, req.Quantity)
	}
	entry, err := e.mustEntry(req.Symbol)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	price := req.Price
	if req.Type == domain.Market {
		p, ok := entry.book.MarketPrice(req.Side)
		if !ok {
			entry.mu.Unlock()
			return nil, fmt.Errorf("%w: %s %s", domain.ErrNoLiquidity, entry.inst.Symbol, req.Side)
		}
		price = p
	}
	o, err := domain.NewOrder(req.Side, price, req.Quantity)
	if err != nil {
		entry.mu.Unlock()
		return nil, err
	}
	var fills []domain.Fill
	if req.Type == domain.Market {
		fills = entry.book.MatchMarket(&o)
	} else {
		fills = entry.book.MatchLimit(&o)
	}
	for i := range fills {
		fills[i].ID = e.newID()
	}
	// Published under the book lock so the cache and subscribers see
	// snapshots in submission order.
	snap := buildSnapshot(entry.inst.Symbol, entry.book, e.depthLevels, e.now())
	e.updateCache(ctx, snap)
	e.depth.broadcast(snap)
	entry.mu.Unlock()

	exec := &Execution{
		Symbol:    entry.inst.Symbol,
		Type:      req.Type,
		Side:      req.Side,
		Price:     price,
		Quantity:  req.Quantity,
		Filled:    req.Quantity.Sub(o.Quantity),
		Remaining: o.Quantity,
		Rested:    o.Quantity.IsPositive(),
		Fills:     fills,
	}

	e.log.Info("order matched",
		zap.String("symbol", exec.Symbol),
		zap.String("type", string(exec.Type)),
		zap.String("side", string(exec.Side)),
		zap.Stringer("price", exec.Price),
		zap.Stringer("quantity", exec.Quantity),
		zap.Stringer("filled", exec.Filled),
		zap.Int("fills", len(fills)),
		zap.Bool("rested", exec.Rested))
	return exec, nil
}

// Quote reports the top of book of symbol.
func (e *Engine) Quote(symbol string) (domain.Quote, error) {
	entry, err := e.mustEntry(symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	q := domain.Quote{
		Symbol:     entry.inst.Symbol,
		BuyVolume:  entry.book.BuyVolume(),
		SellVolume: entry.book.SellVolume(),
	}
	if p, ok := entry.book.BestBuyPrice(); ok {
		q.BestBid = &p
	}
	if p, ok := entry.book.BestSellPrice(); ok {
		q.BestAsk = &p
	}
	return q, nil
}

// Depth returns the latest depth snapshot of symbol, from the cache when it
// has one.
func (e *Engine) Depth(ctx context.Context, symbol string) (*domain.DepthSnapshot, error) {
	entry, err := e.mustEntry(symbol)
	if err != nil {
		return nil, err
	}
	return e.getOrLoadSnapshot(ctx, entry), nil
}

// Subscribe returns a feed of depth snapshots for every instrument. Snapshots
// are shared between subscribers and must not be modified.
func (e *Engine) Subscribe(buffer int) *Subscription {
	return e.depth.subscribe(buffer)
}

func (e *Engine) Unsubscribe(sub *Subscription) {
	e.depth.unsubscribe(sub)
}
