package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	DBDSN         string
	LogLevel      string
	LogEncoding   string
	OperatorHash  string // bcrypt hash of the operator API token
	LowStockLimit int    // default threshold for the low-stock report
}

func Load() Config {
	_ = godotenv.Load() // .env is optional

	cfg := Config{
		Port:          envOr("PORT", "8081"),
		DBDSN:         envOr("DB_DSN", "stockledger.db"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		LogEncoding:   envOr("LOG_ENCODING", "json"),
		OperatorHash:  os.Getenv("OPERATOR_TOKEN_HASH"),
		LowStockLimit: 5,
	}
	if v := os.Getenv("LOW_STOCK_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			log.Fatalf("invalid LOW_STOCK_LIMIT %q", v)
		}
		cfg.LowStockLimit = n
	}
	log.Printf("[config] PORT=%s DB_DSN=%s LOG_LEVEL=%s", cfg.Port, cfg.DBDSN, cfg.LogLevel)
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
