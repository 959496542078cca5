package grpc

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/olyamironova/exchange-sim/internal/core"
	"github.com/olyamironova/exchange-sim/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "exchange.v1.Exchange"

// ExchangeServer is the RPC surface. Messages are google.protobuf.Struct so
// the service needs no generated code.
type ExchangeServer interface {
	ListInstrument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetQuote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDepth(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type GRPCServer struct {
	Eng *core.Engine
	log *zap.Logger
}

var _ ExchangeServer = (*GRPCServer)(nil)

func NewGRPCServer(eng *core.Engine, log *zap.Logger) *GRPCServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &GRPCServer{Eng: eng, log: log}
}

// NewServer returns a grpc.Server with the exchange service registered.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(LoggingInterceptor(s.log)))
	srv := grpc.NewServer(opts...)
	Register(srv, s)
	return srv
}

func (s *GRPCServer) ListInstrument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sector, err := domain.ParseSector(str(req, "sector"))
	if err != nil {
		return nil, toStatus(err)
	}
	market, err := domain.MarketOf(str(req, "exchange"))
	if err != nil {
		return nil, toStatus(err)
	}
	inst, err := domain.NewInstrument(str(req, "name"), str(req, "symbol"), sector, market)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.Eng.ListInstrument(ctx, inst); err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"name":     inst.Name,
		"symbol":   inst.Symbol,
		"sector":   string(inst.Sector),
		"market":   string(inst.Market.Kind),
		"exchange": string(inst.Market.Exchange),
	})
}

func (s *GRPCServer) SubmitOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	side, err := domain.ParseSide(str(req, "side"))
	if err != nil {
		return nil, toStatus(err)
	}
	typ, err := domain.ParseOrderType(str(req, "type"))
	if err != nil {
		return nil, toStatus(err)
	}
	quantity, err := dec(req, "quantity")
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid quantity: %v", err)
	}
	price := decimal.Zero
	if typ == domain.Limit {
		if price, err = dec(req, "price"); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid price: %v", err)
		}
	}

	exec, err := s.Eng.SubmitOrder(ctx, core.SubmitRequest{
		Symbol:   str(req, "symbol"),
		Type:     typ,
		Side:     side,
		Price:    price,
		Quantity: quantity,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	fills := make([]interface{}, 0, len(exec.Fills))
	for _, f := range exec.Fills {
		fills = append(fills, map[string]interface{}{
			"id":       f.ID,
			"price":    f.Price.String(),
			"quantity": f.Quantity.String(),
		})
	}
	return structpb.NewStruct(map[string]interface{}{
		"symbol":    exec.Symbol,
		"side":      string(exec.Side),
		"type":      string(exec.Type),
		"price":     exec.Price.String(),
		"quantity":  exec.Quantity.String(),
		"filled":    exec.Filled.String(),
		"remaining": exec.Remaining.String(),
		"rested":    exec.Rested,
		"fills":     fills,
	})
}

func (s *GRPCServer) GetQuote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := s.Eng.Quote(str(req, "symbol"))
	if err != nil {
		return nil, toStatus(err)
	}
	out := map[string]interface{}{
		"symbol":      q.Symbol,
		"buy_volume":  q.BuyVolume.String(),
		"sell_volume": q.SellVolume.String(),
	}
	if q.BestBid != nil {
		out["best_bid"] = q.BestBid.String()
	}
	if q.BestAsk != nil {
		out["best_ask"] = q.BestAsk.String()
	}
	return structpb.NewStruct(out)
}

func (s *GRPCServer) GetDepth(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	snap, err := s.Eng.Depth(ctx, str(req, "symbol"))
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"symbol":    snap.Symbol,
		"bids":      levels(snap.Bids),
		"asks":      levels(snap.Asks),
		"timestamp": snap.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func levels(in []domain.Level) []interface{} {
	out := make([]interface{}, 0, len(in))
	for _, l := range in {
		out = append(out, map[string]interface{}{
			"price":    l.Price.String(),
			"quantity": l.Quantity.String(),
			"orders":   l.Orders,
		})
	}
	return out
}

func str(req *structpb.Struct, field string) string {
	return req.GetFields()[field].GetStringValue()
}

// dec accepts a decimal string or a JSON number.
func dec(req *structpb.Struct, field string) (decimal.Decimal, error) {
	v, ok := req.GetFields()[field]
	if !ok {
		return decimal.Decimal{}, errors.New(field + " is required")
	}
	if n, isNum := v.GetKind().(*structpb.Value_NumberValue); isNum {
		return decimal.NewFromString(strconv.FormatFloat(n.NumberValue, 'f', -1, 64))
	}
	return decimal.NewFromString(v.GetStringValue())
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidSide),
		errors.Is(err, domain.ErrInvalidOrderType),
		errors.Is(err, domain.ErrInvalidInstrument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrInstrumentNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInstrumentExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrNoLiquidity):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Errorf(codes.Internal, "internal error: %v", err)
}
