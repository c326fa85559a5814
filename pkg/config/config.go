// Package config loads environment-driven settings for the bot core.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the process reads at startup.
type Config struct {
	Port   string
	DBPath string

	// Auth
	JWTSecret string

	// Credential encryption (hex, 32 bytes once decoded)
	EncryptionKey string
	KeyVersion    int

	// Market data
	UseMockFeed    bool
	Pairs          []string
	CandleWidth    time.Duration // width of aggregated candles
	FeedWSURL      string        // live kline stream base URL

	// Per-family evaluation intervals
	GridInterval         time.Duration
	DCAInterval          time.Duration
	MomentumInterval     time.Duration
	RSIInterval          time.Duration
	CandleStrikeInterval time.Duration

	// Demo connector simulation
	DemoInitialBalance float64
	DemoFeeRate        float64
	DemoSlippageBps    float64

	// Safety policy: whether manual orders respect a family's global lock
	LockAppliesToManual bool

	// Optional YAML seed of templates/bots
	BootstrapPath string

	// Logging
	LogLevel      string
	LogOutput     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		DBPath:               getEnv("DB_PATH", "./data/botcore.db"),
		JWTSecret:            getEnv("JWT_SECRET", "dev-secret"),
		EncryptionKey:        os.Getenv("CREDENTIAL_KEY"),
		KeyVersion:           getEnvInt("CREDENTIAL_KEY_VERSION", 1),
		UseMockFeed:          getEnv("USE_MOCK_FEED", "true") == "true",
		Pairs:                splitAndTrim(getEnv("PAIRS", "BTCUSDT,ETHUSDT")),
		CandleWidth:          getEnvDuration("CANDLE_WIDTH", time.Minute),
		FeedWSURL:            getEnv("FEED_WS_URL", "wss://fstream.binance.com/ws"),
		GridInterval:         getEnvDuration("GRID_EVAL_INTERVAL", time.Second),
		DCAInterval:          getEnvDuration("DCA_EVAL_INTERVAL", 2*time.Second),
		MomentumInterval:     getEnvDuration("MOMENTUM_EVAL_INTERVAL", time.Second),
		RSIInterval:          getEnvDuration("RSI_EVAL_INTERVAL", 2*time.Second),
		CandleStrikeInterval: getEnvDuration("CANDLE_EVAL_INTERVAL", time.Second),
		DemoInitialBalance:   getEnvFloat("DEMO_INITIAL_BALANCE", 10000.0),
		DemoFeeRate:          getEnvFloat("DEMO_FEE_RATE", 0.0004),
		DemoSlippageBps:      getEnvFloat("DEMO_SLIPPAGE_BPS", 2),
		LockAppliesToManual:  getEnv("SAFETY_LOCK_MANUAL", "false") == "true",
		BootstrapPath:        getEnv("BOOTSTRAP_PATH", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogOutput:            getEnv("LOG_OUTPUT", "console"),
		LogFile:              getEnv("LOG_FILE", "./logs/botcore.log"),
		LogMaxSizeMB:         getEnvInt("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups:        getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays:        getEnvInt("LOG_MAX_AGE_DAYS", 14),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
