package port

import (
	"context"

	"github.com/olyamironova/exchange-sim/internal/domain"
)

// InstrumentRepository stores the instrument catalog. Order state is never
// persisted.
type InstrumentRepository interface {
	SaveInstrument(ctx context.Context, inst domain.Instrument) error
	LoadInstruments(ctx context.Context) ([]domain.Instrument, error)
}
