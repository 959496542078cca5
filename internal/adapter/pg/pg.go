package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olyamironova/exchange-sim/internal/domain"
	"github.com/olyamironova/exchange-sim/internal/port"
)

var _ port.InstrumentRepository = (*PgRepo)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS instruments (
  symbol      TEXT PRIMARY KEY,
  name        TEXT NOT NULL,
  sector      TEXT NOT NULL,
  market_kind TEXT NOT NULL,
  exchange    TEXT NOT NULL,
  listed_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PgRepo keeps the instrument catalog in Postgres.
type PgRepo struct {
	pool *pgxpool.Pool
}

// call Close when finish to work with database.
func NewPgRepo(ctx context.Context, dsn string) (*PgRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &PgRepo{pool: pool}, nil
}

func (p *PgRepo) Close(ctx context.Context) {
	if p.pool != nil {
		p.pool.Close()
	}
}

// EnsureSchema creates the instruments table when missing.
func (p *PgRepo) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pg: ensure schema: %w", err)
	}
	return nil
}

func (p *PgRepo) SaveInstrument(ctx context.Context, inst domain.Instrument) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO instruments(symbol, name, sector, market_kind, exchange)
VALUES($1,$2,$3,$4,$5)
ON CONFLICT (symbol) DO UPDATE SET
  name = EXCLUDED.name,
  sector = EXCLUDED.sector,
  market_kind = EXCLUDED.market_kind,
  exchange = EXCLUDED.exchange
`, inst.Symbol, inst.Name, string(inst.Sector), string(inst.Market.Kind), string(inst.Market.Exchange))
	if err != nil {
		return fmt.Errorf("pg: save instrument %s: %w", inst.Symbol, err)
	}
	return nil
}

// LoadInstruments returns the catalog in listing order.
func (p *PgRepo) LoadInstruments(ctx context.Context) ([]domain.Instrument, error) {
	rows, err := p.pool.Query(ctx, `
SELECT symbol, name, sector, market_kind, exchange
FROM instruments
ORDER BY listed_at ASC, symbol ASC
`)
	if err != nil {
		return nil, fmt.Errorf("pg: load instruments: %w", err)
	}
	defer rows.Close()

	var res []domain.Instrument
	for rows.Next() {
		var inst domain.Instrument
		var sector, kind, exchange string
		if err := rows.Scan(&inst.Symbol, &inst.Name, &sector, &kind, &exchange); err != nil {
			return nil, err
		}
		inst.Sector = domain.Sector(sector)
		inst.Market = domain.MarketClass{Kind: domain.MarketKind(kind), Exchange: domain.Exchange(exchange)}
		res = append(res, inst)
	}
	return res, rows.Err()
}
