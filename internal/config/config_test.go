package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Pricing.TaxRate.Equal(decimal.RequireFromString("0.08")))
	assert.True(t, cfg.Pricing.Shipping.IsZero())
	assert.Equal(t, "guest_id", cfg.Auth.GuestCookieName)
	assert.Equal(t, 365*24*time.Hour, cfg.Auth.GuestCookieMaxAge)
	assert.Equal(t, 3, cfg.Notify.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Notify.InitialDelay)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "orders.placed", cfg.Kafka.OrderTopic)
	assert.False(t, cfg.Server.AdminEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PRICING_TAX_RATE", "0.2")
	t.Setenv("PRICING_SHIPPING_FLAT", "4.99")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("CART_CACHE_TTL", "2m")
	t.Setenv("GUEST_COOKIE_SECURE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Pricing.TaxRate.Equal(decimal.RequireFromString("0.2")))
	assert.True(t, cfg.Pricing.Shipping.Equal(decimal.RequireFromString("4.99")))
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Minute, cfg.Redis.CartTTL)
	assert.True(t, cfg.Auth.GuestCookieSecure)
}

func TestLoad_RejectsBadPricing(t *testing.T) {
	t.Setenv("PRICING_TAX_RATE", "-0.1")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("PRICING_TAX_RATE", "eight percent")
	_, err = Load()
	assert.Error(t, err)
}
