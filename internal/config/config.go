package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr      string
	PublicURL     string
	StorefrontURL string
	OTLPEndpoint  string

	HostBill HostBillConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
	Comgate  ComgateConfig
	PayU     PayUConfig
	Catalog  CatalogConfig
	Poller   PollerConfig
}

type HostBillConfig struct {
	BaseURL    string
	APIID      string
	APIKey     string
	Timeout    time.Duration
	RatePerSec int
	MaxRetries int
	// Payment module IDs HostBill expects in addOrder / addInvoicePayment.
	ComgateModule string
	PayUModule    string
}

type KafkaConfig struct {
	Brokers      []string
	PaymentTopic string
	OrderTopic   string
	GroupID      string
}

type RedisConfig struct {
	Addr       string
	Username   string
	Password   string
	DB         int
	SessionTTL time.Duration
	CatalogTTL time.Duration
}

type ComgateConfig struct {
	BaseURL  string
	Merchant string
	Secret   string
	Test     bool
	Preauth  bool
	Method   string
	Currency string
}

type PayUConfig struct {
	Key        string
	Salt       string
	ActionURL  string
	SuccessURL string
	FailureURL string
}

type CatalogConfig struct {
	MappingFile string
}

type PollerConfig struct {
	Interval time.Duration
	MaxAge   time.Duration
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{
		HTTPAddr:      stringWithDefault("HTTP_ADDR", ":8080"),
		PublicURL:     strings.TrimRight(stringWithDefault("PUBLIC_URL", "http://localhost:8080"), "/"),
		StorefrontURL: strings.TrimRight(stringWithDefault("STOREFRONT_URL", "http://localhost:3000"), "/"),
		OTLPEndpoint:  stringWithDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	var err error
	cfg.HostBill.BaseURL = strings.TrimRight(stringWithDefault("HOSTBILL_URL", "http://localhost/hostbill"), "/")
	cfg.HostBill.APIID = stringWithDefault("HOSTBILL_API_ID", "")
	cfg.HostBill.APIKey = stringWithDefault("HOSTBILL_API_KEY", "")
	cfg.HostBill.Timeout, err = durationWithDefault("HOSTBILL_TIMEOUT", 15*time.Second)
	collect(err)
	cfg.HostBill.RatePerSec, err = intWithDefault("HOSTBILL_RATE_PER_SEC", 10)
	collect(err)
	cfg.HostBill.MaxRetries, err = intWithDefault("HOSTBILL_MAX_RETRIES", 3)
	collect(err)
	cfg.HostBill.ComgateModule = stringWithDefault("HOSTBILL_COMGATE_MODULE", "comgate")
	cfg.HostBill.PayUModule = stringWithDefault("HOSTBILL_PAYU_MODULE", "payu")

	cfg.Kafka.Brokers = listWithDefault("KAFKA_BROKER", []string{"localhost:9092"})
	cfg.Kafka.PaymentTopic = stringWithDefault("KAFKA_PAYMENT_TOPIC", "payment-events")
	cfg.Kafka.OrderTopic = stringWithDefault("KAFKA_ORDER_TOPIC", "order-events")
	cfg.Kafka.GroupID = stringWithDefault("KAFKA_GROUP_ID", "payment-worker")

	cfg.Redis.Addr = stringWithDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Username = stringWithDefault("REDIS_USERNAME", "")
	cfg.Redis.Password = stringWithDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB, err = intWithDefault("REDIS_DB", 0)
	collect(err)
	cfg.Redis.SessionTTL, err = durationWithDefault("PAYMENT_SESSION_TTL", 72*time.Hour)
	collect(err)
	cfg.Redis.CatalogTTL, err = durationWithDefault("CATALOG_CACHE_TTL", 5*time.Minute)
	collect(err)

	cfg.Comgate.BaseURL = strings.TrimRight(stringWithDefault("COMGATE_URL", "https://payments.comgate.cz"), "/")
	cfg.Comgate.Merchant = stringWithDefault("COMGATE_MERCHANT", "")
	cfg.Comgate.Secret = stringWithDefault("COMGATE_SECRET", "")
	cfg.Comgate.Test, err = boolWithDefault("COMGATE_TEST", true)
	collect(err)
	cfg.Comgate.Preauth, err = boolWithDefault("COMGATE_PREAUTH", false)
	collect(err)
	cfg.Comgate.Method = stringWithDefault("COMGATE_METHOD", "ALL")
	cfg.Comgate.Currency = stringWithDefault("COMGATE_CURRENCY", "CZK")

	cfg.PayU.Key = stringWithDefault("PAYU_KEY", "")
	cfg.PayU.Salt = stringWithDefault("PAYU_SALT", "")
	cfg.PayU.ActionURL = stringWithDefault("PAYU_ACTION_URL", "https://test.payu.in/_payment")
	cfg.PayU.SuccessURL = stringWithDefault("PAYU_SUCCESS_URL", cfg.PublicURL+"/callbacks/payu/success")
	cfg.PayU.FailureURL = stringWithDefault("PAYU_FAILURE_URL", cfg.PublicURL+"/callbacks/payu/failure")

	cfg.Catalog.MappingFile = stringWithDefault("CATALOG_MAPPING_FILE", "")

	cfg.Poller.Interval, err = durationWithDefault("POLL_INTERVAL", 30*time.Second)
	collect(err)
	cfg.Poller.MaxAge, err = durationWithDefault("POLL_MAX_AGE", 24*time.Hour)
	collect(err)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// RequireHostBill reports missing HostBill credentials.
func (c *Config) RequireHostBill() error {
	if c.HostBill.APIID == "" || c.HostBill.APIKey == "" {
		return fmt.Errorf("missing required env var: HOSTBILL_API_ID/HOSTBILL_API_KEY")
	}
	return nil
}
