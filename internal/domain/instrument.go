package domain

import (
	"fmt"
	"strings"
)

type Sector string

const (
	Technology            Sector = "TECHNOLOGY"
	Finance               Sector = "FINANCE"
	Banking               Sector = "BANKING"
	Healthcare            Sector = "HEALTHCARE"
	Energy                Sector = "ENERGY"
	ConsumerDiscretionary Sector = "CONSUMER_DISCRETIONARY"
	ConsumerStaples       Sector = "CONSUMER_STAPLES"
	Industrials           Sector = "INDUSTRIALS"
	Materials             Sector = "MATERIALS"
	RealEstate            Sector = "REAL_ESTATE"
	CommunicationServices Sector = "COMMUNICATION_SERVICES"
	Utilities             Sector = "UTILITIES"
)

var sectors = []Sector{
	Technology, Finance, Banking, Healthcare, Energy, ConsumerDiscretionary,
	ConsumerStaples, Industrials, Materials, RealEstate, CommunicationServices, Utilities,
}

func ParseSector(v string) (Sector, error) {
	norm := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(v)), " ", "_")
	for _, s := range sectors {
		if string(s) == norm {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown sector %q", ErrInvalidInstrument, v)
}

type MarketKind string
type Exchange string

const (
	IndianMarket MarketKind = "INDIAN"
	USMarket     MarketKind = "US"
	CryptoMarket MarketKind = "CRYPTO"

	NSE      Exchange = "NSE"
	BSE      Exchange = "BSE"
	NASDAQ   Exchange = "NASDAQ"
	NYSE     Exchange = "NYSE"
	WazirX   Exchange = "WAZIRX"
	CoinDCX  Exchange = "COINDCX"
	Binance  Exchange = "BINANCE"
	Coinbase Exchange = "COINBASE"
)

var exchangeMarkets = map[Exchange]MarketKind{
	NSE:      IndianMarket,
	BSE:      IndianMarket,
	NASDAQ:   USMarket,
	NYSE:     USMarket,
	WazirX:   CryptoMarket,
	CoinDCX:  CryptoMarket,
	Binance:  CryptoMarket,
	Coinbase: CryptoMarket,
}

// MarketClass classifies where an instrument trades.
type MarketClass struct {
	Kind     MarketKind `json:"kind"`
	Exchange Exchange   `json:"exchange"`
}

// MarketOf derives the market from an exchange name.
func MarketOf(exchange string) (MarketClass, error) {
	ex := Exchange(strings.ToUpper(strings.TrimSpace(exchange)))
	kind, ok := exchangeMarkets[ex]
	if !ok {
		return MarketClass{}, fmt.Errorf("%w: unknown exchange %q", ErrInvalidInstrument, exchange)
	}
	return MarketClass{Kind: kind, Exchange: ex}, nil
}

func (m MarketClass) Validate() error {
	kind, ok := exchangeMarkets[m.Exchange]
	if !ok {
		return fmt.Errorf("%w: unknown exchange %q", ErrInvalidInstrument, m.Exchange)
	}
	if kind != m.Kind {
		return fmt.Errorf("%w: exchange %s does not belong to %s market", ErrInvalidInstrument, m.Exchange, m.Kind)
	}
	return nil
}

// Instrument is the registry key. It is comparable and used directly as a map key.
type Instrument struct {
	Name   string      `json:"name"`
	Symbol string      `json:"symbol"`
	Sector Sector      `json:"sector"`
	Market MarketClass `json:"market"`
}

func NewInstrument(name, symbol string, sector Sector, market MarketClass) (Instrument, error) {
	name = strings.TrimSpace(name)
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if name == "" || symbol == "" {
		return Instrument{}, fmt.Errorf("%w: name and symbol are required", ErrInvalidInstrument)
	}
	sector, err := ParseSector(string(sector))
	if err != nil {
		return Instrument{}, err
	}
	if err := market.Validate(); err != nil {
		return Instrument{}, err
	}
	return Instrument{Name: name, Symbol: symbol, Sector: sector, Market: market}, nil
}

func (i Instrument) String() string {
	return fmt.Sprintf("%s (%s, %s)", i.Symbol, i.Market.Exchange, i.Sector)
}
