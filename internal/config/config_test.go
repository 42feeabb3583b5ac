package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("HOSTBILL_URL", "")
	t.Setenv("KAFKA_BROKER", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "payment-events", cfg.Kafka.PaymentTopic)
	assert.Equal(t, 15*time.Second, cfg.HostBill.Timeout)
	assert.True(t, cfg.Comgate.Test)
	assert.Equal(t, "http://localhost:8080/callbacks/payu/success", cfg.PayU.SuccessURL)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("HOSTBILL_URL", "https://billing.example.com/")
	t.Setenv("HOSTBILL_TIMEOUT", "5")
	t.Setenv("KAFKA_BROKER", "k1:9092, k2:9092")
	t.Setenv("POLL_INTERVAL", "1m")
	t.Setenv("COMGATE_PREAUTH", "true")
	t.Setenv("PUBLIC_URL", "https://mw.example.com")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://billing.example.com", cfg.HostBill.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.HostBill.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Minute, cfg.Poller.Interval)
	assert.True(t, cfg.Comgate.Preauth)
	assert.Equal(t, "https://mw.example.com/callbacks/payu/failure", cfg.PayU.FailureURL)
}

func TestFromEnvInvalidValues(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")
	t.Setenv("COMGATE_TEST", "maybe")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_DB")
	assert.Contains(t, err.Error(), "COMGATE_TEST")
}

func TestRequireHostBill(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.RequireHostBill())

	cfg.HostBill.APIID = "id"
	cfg.HostBill.APIKey = "key"
	assert.NoError(t, cfg.RequireHostBill())
}
