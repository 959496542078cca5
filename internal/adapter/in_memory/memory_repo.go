package in_memory

import (
	"context"
	"sort"
	"sync"

	"github.com/olyamironova/exchange-sim/internal/domain"
	"github.com/olyamironova/exchange-sim/internal/port"
)

var _ port.InstrumentRepository = (*MemoryRepo)(nil)

// MemoryRepo is the instrument catalog used when no Postgres URL is configured.
type MemoryRepo struct {
	mu          sync.Mutex
	instruments map[string]domain.Instrument
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{instruments: make(map[string]domain.Instrument)}
}

func (r *MemoryRepo) SaveInstrument(ctx context.Context, inst domain.Instrument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instruments[inst.Symbol] = inst
	return nil
}

func (r *MemoryRepo) LoadInstruments(ctx context.Context) ([]domain.Instrument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]domain.Instrument, 0, len(r.instruments))
	for _, inst := range r.instruments {
		res = append(res, inst)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Symbol < res[j].Symbol })
	return res, nil
}

func (r *MemoryRepo) Close(ctx context.Context) {}
