package http

import (
	"fmt"

	"github.com/olyamironova/exchange-sim/internal/api/dto"
	"github.com/olyamironova/exchange-sim/internal/core"
	"github.com/olyamironova/exchange-sim/internal/domain"
)

// ValidateOrder turns a request into an engine submission. LIMIT orders need
// a positive price; every order needs a positive quantity.
func ValidateOrder(req *dto.SubmitOrderRequest) (core.SubmitRequest, error) {
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		return core.SubmitRequest{}, err
	}
	typ, err := domain.ParseOrderType(req.Type)
	if err != nil {
		return core.SubmitRequest{}, err
	}
	if !req.Quantity.IsPositive() {
		return core.SubmitRequest{}, fmt.Errorf("%w: quantity must be > 0", domain.ErrInvalidQuantity)
	}
	if typ == domain.Limit && !req.Price.IsPositive() {
		return core.SubmitRequest{}, fmt.Errorf("%w: price must be > 0 for LIMIT orders", domain.ErrInvalidPrice)
	}
	return core.SubmitRequest{
		Symbol:   req.Symbol,
		Type:     typ,
		Side:     side,
		Price:    req.Price,
		Quantity: req.Quantity,
	}, nil
}

func BuildInstrument(req *dto.ListInstrumentRequest) (domain.Instrument, error) {
	sector, err := domain.ParseSector(req.Sector)
	if err != nil {
		return domain.Instrument{}, err
	}
	market, err := domain.MarketOf(req.Exchange)
	if err != nil {
		return domain.Instrument{}, err
	}
	return domain.NewInstrument(req.Name, req.Symbol, sector, market)
}

func convertInstrument(inst domain.Instrument) dto.Instrument {
	return dto.Instrument{
		Name:     inst.Name,
		Symbol:   inst.Symbol,
		Sector:   string(inst.Sector),
		Market:   string(inst.Market.Kind),
		Exchange: string(inst.Market.Exchange),
	}
}

func convertExecution(exec *core.Execution) dto.SubmitOrderResponse {
	fills := make([]dto.Fill, len(exec.Fills))
	for i, f := range exec.Fills {
		fills[i] = dto.Fill{ID: f.ID, Price: f.Price, Quantity: f.Quantity}
	}
	return dto.SubmitOrderResponse{
		Symbol:    exec.Symbol,
		Side:      string(exec.Side),
		Type:      string(exec.Type),
		Price:     exec.Price,
		Quantity:  exec.Quantity,
		Filled:    exec.Filled,
		Remaining: exec.Remaining,
		Rested:    exec.Rested,
		Fills:     fills,
	}
}

func convertLevels(levels []domain.Level) []dto.Level {
	res := make([]dto.Level, len(levels))
	for i, l := range levels {
		res[i] = dto.Level{Price: l.Price, Quantity: l.Quantity, Orders: l.Orders}
	}
	return res
}

func convertDepth(snap *domain.DepthSnapshot) dto.DepthResponse {
	return dto.DepthResponse{
		Symbol:    snap.Symbol,
		Bids:      convertLevels(snap.Bids),
		Asks:      convertLevels(snap.Asks),
		Timestamp: snap.Timestamp,
	}
}
