package port

import (
	"context"

	"github.com/olyamironova/exchange-sim/internal/domain"
)

// DepthCache holds the latest depth snapshot per symbol. A miss returns
// (nil, nil).
type DepthCache interface {
	SetDepth(ctx context.Context, symbol string, snap *domain.DepthSnapshot) error
	GetDepth(ctx context.Context, symbol string) (*domain.DepthSnapshot, error)
	Invalidate(ctx context.Context, symbol string) error
}
