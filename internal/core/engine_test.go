package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/olyamironova/exchange-sim/internal/adapter/in_memory"
	"github.com/olyamironova/exchange-sim/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func instrument(t *testing.T, symbol, exchange string) domain.Instrument {
	t.Helper()
	market, err := domain.MarketOf(exchange)
	if err != nil {
		t.Fatal(err)
	}
	inst, err := domain.NewInstrument(symbol+" Corp", symbol, domain.Technology, market)
	if err != nil {
		t.Fatal(err)
	}
	return inst
}

func newTestEngine(t *testing.T, opts ...EngineOption) (*Engine, *in_memory.MemoryRepo, *in_memory.Cache) {
	t.Helper()
	repo := in_memory.NewMemoryRepo()
	cache := in_memory.NewCache()
	e := NewEngine(repo, cache, opts...)
	e.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("fill-%d", n)
	}
	return e, repo, cache
}

func limit(symbol string, side domain.Side, qty, price string) SubmitRequest {
	return SubmitRequest{Symbol: symbol, Type: domain.Limit, Side: side, Price: d(price), Quantity: d(qty)}
}

func market(symbol string, side domain.Side, qty string) SubmitRequest {
	return SubmitRequest{Symbol: symbol, Type: domain.Market, Side: side, Quantity: d(qty)}
}

func TestListInstrument(t *testing.T) {
	ctx := context.Background()
	e, repo, _ := newTestEngine(t)
	inst := instrument(t, "AAPL", "NASDAQ")

	if err := e.ListInstrument(ctx, inst); err != nil {
		t.Fatal(err)
	}
	ob, ok := e.OrderBook(inst)
	if !ok {
		t.Fatal("listed instrument has no book")
	}
	if !ob.BuyVolume().IsZero() || !ob.SellVolume().IsZero() {
		t.Fatal("new book is not empty")
	}
	if err := e.ListInstrument(ctx, inst); !errors.Is(err, domain.ErrInstrumentExists) {
		t.Fatalf("duplicate listing: %v", err)
	}
	other := instrument(t, "aapl", "NYSE")
	if err := e.ListInstrument(ctx, other); !errors.Is(err, domain.ErrInstrumentExists) {
		t.Fatalf("duplicate symbol on another exchange: %v", err)
	}
	if err := e.ListInstrument(ctx, domain.Instrument{}); !errors.Is(err, domain.ErrInvalidInstrument) {
		t.Fatalf("empty instrument: %v", err)
	}

	saved, _ := repo.LoadInstruments(ctx)
	if len(saved) != 1 || saved[0] != inst {
		t.Fatalf("catalog = %+v", saved)
	}
	if got, ok := e.Instrument("aapl"); !ok || got != inst {
		t.Fatalf("lookup by symbol = %+v, %v", got, ok)
	}
}

func TestListedBooksAreIndependent(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	a, b := instrument(t, "AAA", "NSE"), instrument(t, "BBB", "NSE")
	for _, inst := range []domain.Instrument{a, b} {
		if err := e.ListInstrument(ctx, inst); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := e.SubmitOrder(ctx, limit("AAA", domain.Buy, "5", "10")); err != nil {
		t.Fatal(err)
	}
	bookA, _ := e.OrderBook(a)
	bookB, _ := e.OrderBook(b)
	assertVolumes(t, bookA, "5", "0")
	assertVolumes(t, bookB, "0", "0")

	insts := e.Instruments()
	if len(insts) != 2 || insts[0].Symbol != "AAA" || insts[1].Symbol != "BBB" {
		t.Fatalf("Instruments() = %+v", insts)
	}
}

func TestOrderBookUnknownInstrument(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if _, ok := e.OrderBook(instrument(t, "NOPE", "BSE")); ok {
		t.Fatal("unlisted instrument has a book")
	}
	if _, err := e.SubmitOrder(context.Background(), limit("NOPE", domain.Buy, "1", "1")); !errors.Is(err, domain.ErrInstrumentNotFound) {
		t.Fatalf("submit to unknown symbol: %v", err)
	}
	if _, err := e.Quote("NOPE"); !errors.Is(err, domain.ErrInstrumentNotFound) {
		t.Fatalf("quote of unknown symbol: %v", err)
	}
	if _, err := e.Depth(context.Background(), "NOPE"); !errors.Is(err, domain.ErrInstrumentNotFound) {
		t.Fatalf("depth of unknown symbol: %v", err)
	}
}

func TestSubmitOrderValidation(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	if err := e.ListInstrument(ctx, instrument(t, "BTC", "BINANCE")); err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{"zero quantity", limit("BTC", domain.Buy, "0", "10"), domain.ErrInvalidQuantity},
		{"negative quantity", limit("BTC", domain.Buy, "-2", "10"), domain.ErrInvalidQuantity},
		{"zero price", limit("BTC", domain.Sell, "1", "0"), domain.ErrInvalidPrice},
		{"bad side", SubmitRequest{Symbol: "BTC", Type: domain.Market, Side: "HOLD", Quantity: d("1")}, domain.ErrInvalidSide},
		{"bad type", SubmitRequest{Symbol: "BTC", Type: "STOP", Side: domain.Buy, Price: d("1"), Quantity: d("1")}, domain.ErrInvalidOrderType},
		{"market without liquidity", market("BTC", domain.Buy, "1"), domain.ErrNoLiquidity},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := e.SubmitOrder(ctx, c.req); !errors.Is(err, c.want) {
				t.Fatalf("err = %v, want %v", err, c.want)
			}
		})
	}
}

func TestSubmitLimitOrder(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	if err := e.ListInstrument(ctx, instrument(t, "INFY", "NSE")); err != nil {
		t.Fatal(err)
	}
	for _, r := range []SubmitRequest{
		limit("INFY", domain.Sell, "10", "1500"),
		limit("INFY", domain.Sell, "5", "1501"),
	} {
		if _, err := e.SubmitOrder(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	exec, err := e.SubmitOrder(ctx, limit("infy", domain.Buy, "12", "1501"))
	if err != nil {
		t.Fatal(err)
	}
	if exec.Symbol != "INFY" || exec.Rested {
		t.Fatalf("unexpected execution %+v", exec)
	}
	assertDec(t, "filled", exec.Filled, "12")
	assertDec(t, "remaining", exec.Remaining, "0")
	if len(exec.Fills) != 2 {
		t.Fatalf("fills = %+v", exec.Fills)
	}
	if exec.Fills[0].ID != "fill-1" || exec.Fills[1].ID != "fill-2" {
		t.Fatalf("fill ids = %q, %q", exec.Fills[0].ID, exec.Fills[1].ID)
	}
	assertDec(t, "first fill price", exec.Fills[0].Price, "1500")
	assertDec(t, "second fill", exec.Fills[1].Quantity, "2")
}

func TestSubmitMarketOrderRestsRemainder(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	inst := instrument(t, "ETH", "COINBASE")
	if err := e.ListInstrument(ctx, inst); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SubmitOrder(ctx, limit("ETH", domain.Buy, "4", "2000")); err != nil {
		t.Fatal(err)
	}

	exec, err := e.SubmitOrder(ctx, market("ETH", domain.Sell, "6"))
	if err != nil {
		t.Fatal(err)
	}
	assertDec(t, "price", exec.Price, "2000")
	assertDec(t, "filled", exec.Filled, "4")
	assertDec(t, "remaining", exec.Remaining, "2")
	if !exec.Rested {
		t.Fatal("remainder should rest")
	}
	ob, _ := e.OrderBook(inst)
	ask, ok := ob.BestSellPrice()
	if !ok {
		t.Fatal("expected resting ask")
	}
	assertDec(t, "resting ask", ask, "2000")
}

func TestSubmitOrderUpdatesCacheAndSubscribers(t *testing.T) {
	ctx := context.Background()
	e, _, cache := newTestEngine(t)
	if err := e.ListInstrument(ctx, instrument(t, "TCS", "BSE")); err != nil {
		t.Fatal(err)
	}
	sub := e.Subscribe(4)
	defer e.Unsubscribe(sub)

	if _, err := e.SubmitOrder(ctx, limit("TCS", domain.Buy, "3", "99.5")); err != nil {
		t.Fatal(err)
	}

	cached, err := cache.GetDepth(ctx, "TCS")
	if err != nil || cached == nil {
		t.Fatalf("cache miss after submit: %v", err)
	}
	if len(cached.Bids) != 1 || !cached.Bids[0].Price.Equal(d("99.5")) {
		t.Fatalf("cached bids = %+v", cached.Bids)
	}

	select {
	case snap := <-sub.C:
		if snap.Symbol != "TCS" || len(snap.Bids) != 1 {
			t.Fatalf("broadcast snapshot = %+v", snap)
		}
		if !snap.Timestamp.Equal(e.now()) {
			t.Fatalf("timestamp = %v", snap.Timestamp)
		}
	default:
		t.Fatal("no snapshot broadcast")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	e, _, _ := newTestEngine(t)
	sub := e.Subscribe(1)
	e.Unsubscribe(sub)
	e.Unsubscribe(sub)
	if _, ok := <-sub.C; ok {
		t.Fatal("channel should be closed")
	}
}

func TestQuote(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	if err := e.ListInstrument(ctx, instrument(t, "MSFT", "NASDAQ")); err != nil {
		t.Fatal(err)
	}
	q, err := e.Quote("MSFT")
	if err != nil {
		t.Fatal(err)
	}
	if q.BestBid != nil || q.BestAsk != nil {
		t.Fatalf("empty book quote = %+v", q)
	}

	for _, r := range []SubmitRequest{
		limit("MSFT", domain.Buy, "2", "410"),
		limit("MSFT", domain.Sell, "3", "412"),
	} {
		if _, err := e.SubmitOrder(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	q, _ = e.Quote("MSFT")
	if q.BestBid == nil || q.BestAsk == nil {
		t.Fatalf("quote = %+v", q)
	}
	assertDec(t, "bid", *q.BestBid, "410")
	assertDec(t, "ask", *q.BestAsk, "412")
	assertDec(t, "buy volume", q.BuyVolume, "2")
	assertDec(t, "sell volume", q.SellVolume, "3")
}

func TestDepthFallsBackToBook(t *testing.T) {
	ctx := context.Background()
	e, _, cache := newTestEngine(t, WithDepthLevels(1))
	inst := instrument(t, "SOL", "WAZIRX")
	if err := e.ListInstrument(ctx, inst); err != nil {
		t.Fatal(err)
	}
	if err := e.WithBook("SOL", func(ob *OrderBook) error {
		ob.Insert(order(domain.Sell, "1", "21"))
		ob.Insert(order(domain.Sell, "2", "20"))
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	snap, err := e.Depth(ctx, "SOL")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Asks) != 1 || !snap.Asks[0].Price.Equal(d("20")) {
		t.Fatalf("asks = %+v", snap.Asks)
	}
	if cached, _ := cache.GetDepth(ctx, "SOL"); cached == nil {
		t.Fatal("depth read should populate the cache")
	}
}

func TestEngineRetentionOption(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t, WithBookRetention(EvictFilled))
	inst := instrument(t, "DOT", "COINDCX")
	if err := e.ListInstrument(ctx, inst); err != nil {
		t.Fatal(err)
	}
	ob, _ := e.OrderBook(inst)
	if ob.Retention() != EvictFilled {
		t.Fatalf("retention = %s", ob.Retention())
	}
	for _, r := range []SubmitRequest{
		limit("DOT", domain.Sell, "1", "5"),
		limit("DOT", domain.Sell, "1", "6"),
		limit("DOT", domain.Buy, "1", "5"),
	} {
		if _, err := e.SubmitOrder(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	q, _ := e.Quote("DOT")
	assertDec(t, "best ask", *q.BestAsk, "6")
}

func TestLoadAndSeedInstruments(t *testing.T) {
	ctx := context.Background()
	repo := in_memory.NewMemoryRepo()
	stored := instrument(t, "HDFC", "NSE")
	if err := repo.SaveInstrument(ctx, stored); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(repo, nil)
	if err := e.LoadInstruments(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.OrderBook(stored); !ok {
		t.Fatal("catalog instrument not loaded")
	}

	seeded := instrument(t, "RELI", "BSE")
	if err := e.SeedInstruments(ctx, []domain.Instrument{stored, seeded}); err != nil {
		t.Fatal(err)
	}
	if len(e.Instruments()) != 2 {
		t.Fatalf("instruments = %+v", e.Instruments())
	}
}

func TestConcurrentSubmitsConserveVolume(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t)
	inst := instrument(t, "ADA", "BINANCE")
	if err := e.ListInstrument(ctx, inst); err != nil {
		t.Fatal(err)
	}
	e.newID = func() string { return "id" }

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = e.SubmitOrder(ctx, limit("ADA", domain.Buy, "1", "10"))
		}()
		go func() {
			defer wg.Done()
			_, _ = e.SubmitOrder(ctx, limit("ADA", domain.Sell, "1", "10"))
		}()
	}
	wg.Wait()

	ob, _ := e.OrderBook(inst)
	total := ob.BuyVolume().Add(ob.SellVolume())
	if !total.Equal(decimal.Zero) {
		t.Fatalf("unmatched volume left: %s", total)
	}
}

// gatedCache holds the first SetDepth call until release is closed.
type gatedCache struct {
	*in_memory.Cache
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedCache() *gatedCache {
	return &gatedCache{
		Cache:   in_memory.NewCache(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (c *gatedCache) SetDepth(ctx context.Context, symbol string, snap *domain.DepthSnapshot) error {
	first := false
	c.once.Do(func() { first = true })
	if first {
		close(c.entered)
		<-c.release
	}
	return c.Cache.SetDepth(ctx, symbol, snap)
}

func TestDepthCacheFollowsSubmissionOrder(t *testing.T) {
	ctx := context.Background()
	cache := newGatedCache()
	e := NewEngine(nil, cache)
	if err := e.ListInstrument(ctx, instrument(t, "AAA", "NSE")); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := e.SubmitOrder(ctx, limit("AAA", domain.Buy, "5", "10")); err != nil {
			t.Error(err)
		}
	}()
	<-cache.entered
	go func() {
		defer wg.Done()
		if _, err := e.SubmitOrder(ctx, limit("AAA", domain.Buy, "7", "11")); err != nil {
			t.Error(err)
		}
	}()
	close(cache.release)
	wg.Wait()

	snap, err := e.Depth(ctx, "AAA")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Bids) != 2 {
		t.Fatalf("depth has %d bid levels, book has 2: %+v", len(snap.Bids), snap.Bids)
	}
	assertDec(t, "best bid", snap.Bids[0].Price, "11")
}

func TestRelistingDropsDepthOfPreviousProcess(t *testing.T) {
	ctx := context.Background()
	cache := in_memory.NewCache()
	inst := instrument(t, "SOL", "BINANCE")

	before := NewEngine(nil, cache)
	if err := before.ListInstrument(ctx, inst); err != nil {
		t.Fatal(err)
	}
	if _, err := before.SubmitOrder(ctx, limit("SOL", domain.Sell, "9", "50")); err != nil {
		t.Fatal(err)
	}

	after := NewEngine(nil, cache)
	if err := after.ListInstrument(ctx, inst); err != nil {
		t.Fatal(err)
	}
	snap, err := after.Depth(ctx, "SOL")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Asks) != 0 {
		t.Fatalf("fresh book reports asks %+v", snap.Asks)
	}
}

func TestLoadInstrumentsDropsStaleDepth(t *testing.T) {
	ctx := context.Background()
	repo := in_memory.NewMemoryRepo()
	cache := in_memory.NewCache()
	inst := instrument(t, "HDFC", "NSE")

	before := NewEngine(repo, cache)
	if err := before.ListInstrument(ctx, inst); err != nil {
		t.Fatal(err)
	}
	if _, err := before.SubmitOrder(ctx, limit("HDFC", domain.Buy, "3", "1600")); err != nil {
		t.Fatal(err)
	}

	after := NewEngine(repo, cache)
	if err := after.LoadInstruments(ctx); err != nil {
		t.Fatal(err)
	}
	snap, _ := after.Depth(ctx, "HDFC")
	if len(snap.Bids) != 0 {
		t.Fatalf("loaded book reports bids %+v", snap.Bids)
	}
}

// slowRepo blocks SaveInstrument until release is closed.
type slowRepo struct {
	*in_memory.MemoryRepo
	entered chan struct{}
	release chan struct{}
}

func (r *slowRepo) SaveInstrument(ctx context.Context, inst domain.Instrument) error {
	close(r.entered)
	<-r.release
	return r.MemoryRepo.SaveInstrument(ctx, inst)
}

func TestListingDoesNotBlockOtherBooks(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(nil, nil)
	if err := e.ListInstrument(ctx, instrument(t, "AAA", "NSE")); err != nil {
		t.Fatal(err)
	}
	repo := &slowRepo{MemoryRepo: in_memory.NewMemoryRepo(), entered: make(chan struct{}), release: make(chan struct{})}
	e.repo = repo

	bbb := instrument(t, "BBB", "NSE")
	done := make(chan error, 1)
	go func() { done <- e.ListInstrument(ctx, bbb) }()
	<-repo.entered

	if _, err := e.SubmitOrder(ctx, limit("AAA", domain.Buy, "1", "10")); err != nil {
		t.Fatalf("submit while another instrument is being listed: %v", err)
	}
	if err := e.ListInstrument(ctx, instrument(t, "BBB", "BSE")); !errors.Is(err, domain.ErrInstrumentExists) {
		t.Fatalf("symbol being listed was accepted twice: %v", err)
	}
	if _, ok := e.Instrument("BBB"); ok {
		t.Fatal("instrument visible before its catalog write finished")
	}

	close(repo.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if _, ok := e.Instrument("BBB"); !ok {
		t.Fatal("instrument not listed after its catalog write")
	}
}

func TestLoadInstrumentsWarnsOnSkippedRows(t *testing.T) {
	ctx := context.Background()
	repo := in_memory.NewMemoryRepo()
	good := instrument(t, "TCS", "NSE")
	for _, inst := range []domain.Instrument{good, {Name: "broken"}} {
		if err := repo.SaveInstrument(ctx, inst); err != nil {
			t.Fatal(err)
		}
	}

	obs, logs := observer.New(zapcore.WarnLevel)
	e := NewEngine(repo, nil, WithLogger(zap.New(obs)))
	if err := e.ListInstrument(ctx, good); err != nil {
		t.Fatal(err)
	}
	if err := e.LoadInstruments(ctx); err != nil {
		t.Fatal(err)
	}

	skipped := logs.FilterMessage("skipping catalog instrument").All()
	if len(skipped) != 2 {
		t.Fatalf("got %d warnings, want 2 (duplicate and empty symbol)", len(skipped))
	}
}
