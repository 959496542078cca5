package core

import (
	"context"
	"time"

	"github.com/olyamironova/exchange-sim/internal/domain"
	"go.uber.org/zap"
)

func buildSnapshot(symbol string, book *OrderBook, levels int, now time.Time) *domain.DepthSnapshot {
	bids, asks := book.Depth(levels)
	return &domain.DepthSnapshot{
		Symbol:    symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: now,
	}
}

func (e *Engine) updateCache(ctx context.Context, snap *domain.DepthSnapshot) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SetDepth(ctx, snap.Symbol, snap.DeepCopy()); err != nil {
		e.log.Warn("depth cache write failed", zap.String("symbol", snap.Symbol), zap.Error(err))
		if err := e.cache.Invalidate(ctx, snap.Symbol); err != nil {
			e.log.Warn("depth cache invalidate failed", zap.String("symbol", snap.Symbol), zap.Error(err))
		}
	}
}

func (e *Engine) getOrLoadSnapshot(ctx context.Context, entry *bookEntry) *domain.DepthSnapshot {
	symbol := entry.inst.Symbol
	if e.cache != nil {
		snap, err := e.cache.GetDepth(ctx, symbol)
		if err != nil {
			e.log.Debug("depth cache read failed", zap.String("symbol", symbol), zap.Error(err))
		} else if snap != nil {
			return snap
		}
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	snap := buildSnapshot(symbol, entry.book, e.depthLevels, e.now())
	e.updateCache(ctx, snap)
	return snap
}

// dropStaleDepth clears a cached snapshot left by an earlier process before a
// fresh, empty book takes the symbol.
func (e *Engine) dropStaleDepth(ctx context.Context, symbol string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, symbol); err != nil {
		e.log.Warn("stale depth invalidate failed", zap.String("symbol", symbol), zap.Error(err))
	}
}
