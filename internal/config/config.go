package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType string
	DBPath string

	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// UserID identifies the local user the engine reconciles entitlements for.
	UserID string

	// ProviderTimeout bounds every provider network call during a refresh.
	ProviderTimeout time.Duration

	// SettlementWindow bounds how long a crypto purchase may stay unsettled
	// before the attempt fails.
	SettlementWindow       time.Duration
	SettlementPollInterval time.Duration

	BackendBaseURL  string
	BackendTimeout  time.Duration
	BackendRetryMax int

	BillingBaseURL string
	OnRampBaseURL  string
	OnRampAPIKey   string

	WalletAddress  string
	CryptoNetwork  string
	CryptoCurrency string
}

// Module provides the configuration to the fx graph.
var Module = fx.Provide(Load)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "hybridpay"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType: getenv("DATABASE_TYPE", "sqlite"),
		DBPath: getenv("DATABASE_PATH", "hybridpay.db"),

		DBHost:     getenv("DATABASE_HOST", "localhost"),
		DBPort:     getenv("DATABASE_PORT", "5432"),
		DBName:     getenv("DATABASE_NAME", "hybridpay"),
		DBUser:     getenv("DATABASE_USER", "postgres"),
		DBPassword: getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:  getenv("DATABASE_SSLMODE", "disable"),

		UserID: getenv("USER_ID", "local"),

		ProviderTimeout:        getenvDuration("PROVIDER_TIMEOUT", 10*time.Second),
		SettlementWindow:       getenvDuration("SETTLEMENT_WINDOW", 15*time.Minute),
		SettlementPollInterval: getenvDuration("SETTLEMENT_POLL_INTERVAL", 5*time.Second),

		BackendBaseURL:  getenv("BACKEND_BASE_URL", "http://localhost:9090"),
		BackendTimeout:  getenvDuration("BACKEND_TIMEOUT", 10*time.Second),
		BackendRetryMax: getenvInt("BACKEND_RETRY_MAX", 3),

		BillingBaseURL: getenv("BILLING_BASE_URL", "http://localhost:9091"),
		OnRampBaseURL:  getenv("ONRAMP_BASE_URL", "http://localhost:9092"),
		OnRampAPIKey:   strings.TrimSpace(getenv("ONRAMP_API_KEY", "")),

		WalletAddress:  strings.TrimSpace(getenv("WALLET_ADDRESS", "")),
		CryptoNetwork:  getenv("CRYPTO_NETWORK", "avalanche"),
		CryptoCurrency: getenv("CRYPTO_CURRENCY", "AVAX"),
	}
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
