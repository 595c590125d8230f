package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_cart/pricing-service/internal/domain"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPPort           string
	GRPCPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64

	LogLevel  string
	LogFormat string

	MongoURI      string
	MongoDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PostgresHost           string
	PostgresPort           int
	PostgresUser           string
	PostgresPassword       string
	PostgresDB             string
	PostgresMigrationsPath string

	CatalogDBPath         string
	CatalogMigrationsPath string

	// KafkaBrokers empty disables the checkout consumer.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	VATRate               decimal.Decimal
	FreeShippingThreshold domain.Money
	ShippingFee           domain.Money

	BreakerFailures    int
	BreakerOpenTimeout time.Duration

	// Requests allowed per user per minute.
	PromoApplyPerMinute int
	AddItemPerMinute    int
	CartSyncPerMinute   int

	OTLPEndpoint     string
	Environment      string
	TraceSampleRatio float64
}

// Load reads the configuration from environment variables. Every setting
// has a default suitable for local development.
func Load() (*Config, error) {
	var errs []error

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		GRPCPort:           getEnv("GRPC_PORT", "50060"),
		MaxRequestBodySize: 1 << 20, // 1MB

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "pricing"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		PostgresHost:           getEnv("POSTGRES_HOST", "localhost"),
		PostgresUser:           getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword:       getEnv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:             getEnv("POSTGRES_DB", "pricing"),
		PostgresMigrationsPath: getEnv("POSTGRES_MIGRATIONS_PATH", "internal/repository/migrations"),

		CatalogDBPath:         getEnv("CATALOG_DB_PATH", "data/catalog.db"),
		CatalogMigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "internal/catalog/migrations"),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "checkout-completed"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "pricing-service"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Environment:  getEnv("ENVIRONMENT", "local"),
	}

	cfg.RequestTimeout = parseDuration("REQUEST_TIMEOUT", "30s", &errs)
	cfg.ShutdownTimeout = parseDuration("SHUTDOWN_TIMEOUT", "10s", &errs)
	cfg.BreakerOpenTimeout = parseDuration("BREAKER_OPEN_TIMEOUT", "10s", &errs)
	cfg.RedisDB = parseInt("REDIS_DB", "0", &errs)
	cfg.PostgresPort = parseInt("POSTGRES_PORT", "5432", &errs)
	cfg.BreakerFailures = parseInt("BREAKER_CONSECUTIVE_FAILURES", "5", &errs)
	cfg.PromoApplyPerMinute = parseInt("RATE_LIMIT_PROMO_APPLY", "20", &errs)
	cfg.AddItemPerMinute = parseInt("RATE_LIMIT_ADD_ITEM", "30", &errs)
	cfg.CartSyncPerMinute = parseInt("RATE_LIMIT_CART_SYNC", "10", &errs)

	ratio, err := strconv.ParseFloat(getEnv("TRACE_SAMPLE_RATIO", "1"), 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("TRACE_SAMPLE_RATIO: %w", err))
	}
	cfg.TraceSampleRatio = ratio

	vat, err := decimal.NewFromString(getEnv("VAT_RATE_PERCENT", "15"))
	if err != nil {
		errs = append(errs, fmt.Errorf("VAT_RATE_PERCENT: %w", err))
	}
	cfg.VATRate = vat

	cfg.FreeShippingThreshold = parseMoney("FREE_SHIPPING_THRESHOLD", "500.00", &errs)
	cfg.ShippingFee = parseMoney("SHIPPING_FEE", "75.00", &errs)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.VATRate.IsNegative():
		return fmt.Errorf("invalid configuration: VAT_RATE_PERCENT must not be negative")
	case c.FreeShippingThreshold.IsNegative():
		return fmt.Errorf("invalid configuration: FREE_SHIPPING_THRESHOLD must not be negative")
	case c.ShippingFee.IsNegative():
		return fmt.Errorf("invalid configuration: SHIPPING_FEE must not be negative")
	case c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1:
		return fmt.Errorf("invalid configuration: TRACE_SAMPLE_RATIO must be within [0,1]")
	case c.RequestTimeout <= 0:
		return fmt.Errorf("invalid configuration: REQUEST_TIMEOUT must be positive")
	case c.BreakerFailures < 1 || int64(c.BreakerFailures) > math.MaxUint32:
		return fmt.Errorf("invalid configuration: BREAKER_CONSECUTIVE_FAILURES must be between 1 and %d", uint64(math.MaxUint32))
	case c.PromoApplyPerMinute < 1:
		return fmt.Errorf("invalid configuration: RATE_LIMIT_PROMO_APPLY must be positive")
	case c.AddItemPerMinute < 1:
		return fmt.Errorf("invalid configuration: RATE_LIMIT_ADD_ITEM must be positive")
	case c.CartSyncPerMinute < 1:
		return fmt.Errorf("invalid configuration: RATE_LIMIT_CART_SYNC must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(key, def string, errs *[]error) time.Duration {
	d, err := time.ParseDuration(getEnv(key, def))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
	}
	return d
}

func parseInt(key, def string, errs *[]error) int {
	n, err := strconv.Atoi(getEnv(key, def))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
	}
	return n
}

func parseMoney(key, def string, errs *[]error) domain.Money {
	m, err := domain.ParseMoney(getEnv(key, def))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
	}
	return m
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
