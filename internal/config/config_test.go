package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5432, cfg.PostgresPort)
	assert.Equal(t, "15", cfg.VATRate.String())
	assert.Equal(t, "500.00", cfg.FreeShippingThreshold.String())
	assert.Equal(t, "75.00", cfg.ShippingFee.String())
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 1.0, cfg.TraceSampleRatio)
	assert.Equal(t, 5, cfg.BreakerFailures)
	assert.Equal(t, 20, cfg.PromoApplyPerMinute)
	assert.Equal(t, 30, cfg.AddItemPerMinute)
	assert.Equal(t, 10, cfg.CartSyncPerMinute)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("VAT_RATE_PERCENT", "20")
	t.Setenv("SHIPPING_FEE", "49.999")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("POSTGRES_PORT", "6543")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "20", cfg.VATRate.String())
	assert.Equal(t, "50.00", cfg.ShippingFee.String())
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 6543, cfg.PostgresPort)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"REQUEST_TIMEOUT", "soon"},
		{"POSTGRES_PORT", "five"},
		{"VAT_RATE_PERCENT", "-1"},
		{"SHIPPING_FEE", "free"},
		{"TRACE_SAMPLE_RATIO", "1.5"},
		{"BREAKER_CONSECUTIVE_FAILURES", "-1"},
		{"BREAKER_CONSECUTIVE_FAILURES", "0"},
		{"BREAKER_CONSECUTIVE_FAILURES", "4294967296"},
		{"RATE_LIMIT_PROMO_APPLY", "0"},
		{"RATE_LIMIT_CART_SYNC", "-3"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
