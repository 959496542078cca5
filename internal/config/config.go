package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/olyamironova/exchange-sim/internal/domain"
)

type Server struct {
	HTTPAddr  string
	GRPCAddr  string
	RateLimit time.Duration
}

type Storage struct {
	PostgresURL   string // empty keeps the catalog in memory
	RedisAddr     string // empty keeps depth snapshots in memory
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
}

// Retention values accepted in BOOK_RETENTION.
const (
	RetainFilled = "retain"
	EvictFilled  = "evict"
)

const DefaultDepthLevels = 10

type Book struct {
	Retention   string // RetainFilled or EvictFilled
	DepthLevels int
}

type Config struct {
	Server      Server
	Storage     Storage
	Book        Book
	LogFile     string
	Instruments []domain.Instrument
}

func Default() Config {
	return Config{
		Server: Server{
			HTTPAddr:  ":8080",
			GRPCAddr:  ":9090",
			RateLimit: 100 * time.Millisecond,
		},
		Storage: Storage{
			CacheTTL: 5 * time.Minute,
		},
		Book: Book{
			Retention:   RetainFilled,
			DepthLevels: DefaultDepthLevels,
		},
	}
}

// Load reads configuration from an optional .env file and the environment.
// Priority: ENV > .env file > defaults. Malformed values are errors.
func Load(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Server.HTTPAddr = getEnv("HTTP_ADDR", cfg.Server.HTTPAddr)
	cfg.Server.GRPCAddr = getEnv("GRPC_ADDR", cfg.Server.GRPCAddr)
	cfg.Storage.PostgresURL = os.Getenv("POSTGRES_URL")
	cfg.Storage.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.Storage.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.LogFile = os.Getenv("LOG_FILE")

	var err error
	if cfg.Storage.RedisDB, err = intEnv("REDIS_DB", cfg.Storage.RedisDB); err != nil {
		return cfg, err
	}
	if cfg.Book.DepthLevels, err = intEnv("DEPTH_LEVELS", cfg.Book.DepthLevels); err != nil {
		return cfg, err
	}
	ttl, err := intEnv("CACHE_TTL_SEC", int(cfg.Storage.CacheTTL/time.Second))
	if err != nil {
		return cfg, err
	}
	cfg.Storage.CacheTTL = time.Duration(ttl) * time.Second
	rl, err := intEnv("RATE_LIMIT_MS", int(cfg.Server.RateLimit/time.Millisecond))
	if err != nil {
		return cfg, err
	}
	cfg.Server.RateLimit = time.Duration(rl) * time.Millisecond

	if v := os.Getenv("BOOK_RETENTION"); v != "" {
		if cfg.Book.Retention, err = ParseRetention(v); err != nil {
			return cfg, err
		}
	}
	if v := os.Getenv("INSTRUMENTS"); v != "" {
		if cfg.Instruments, err = ParseInstruments(v); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// ParseRetention normalizes a BOOK_RETENTION value.
func ParseRetention(v string) (string, error) {
	switch r := strings.ToLower(strings.TrimSpace(v)); r {
	case RetainFilled, EvictFilled:
		return r, nil
	}
	return "", fmt.Errorf("config: BOOK_RETENTION must be retain or evict, got %q", v)
}

// ParseInstruments reads "SYMBOL:Name:sector:exchange" entries separated by ';'.
func ParseInstruments(v string) ([]domain.Instrument, error) {
	var out []domain.Instrument
	for _, item := range strings.Split(v, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("config: instrument %q: want SYMBOL:Name:sector:exchange", item)
		}
		sector, err := domain.ParseSector(parts[2])
		if err != nil {
			return nil, fmt.Errorf("config: instrument %q: %w", item, err)
		}
		market, err := domain.MarketOf(parts[3])
		if err != nil {
			return nil, fmt.Errorf("config: instrument %q: %w", item, err)
		}
		inst, err := domain.NewInstrument(parts[1], parts[0], sector, market)
		if err != nil {
			return nil, fmt.Errorf("config: instrument %q: %w", item, err)
		}
		out = append(out, inst)
	}
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return defaultValue, fmt.Errorf("config: %s must be a non-negative integer, got %q", key, value)
	}
	return n, nil
}
