package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the API process. Values
// load from environment variables with defaults that let the binary run
// locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	PGDSN string

	RedisAddr     string
	RedisPassword string
	RedisChairKey string

	KafkaBrokers []string
	KafkaTopic   string

	// Dispatch engine tuning. Thresholds are in grid-distance units and
	// distance-over-speed units; see internal/dispatch.
	MatchInterval     time.Duration
	MatchRideBatch    int
	MatchChairPool    int
	LocalityThreshold int
	PatienceThreshold float64
	MatchGracePeriod  time.Duration

	// PaymentProvider selects the settlement backend: "gateway" (default)
	// or "stripe".
	PaymentProvider   string
	PaymentGatewayURL string // fallback when the settings table has no row
	PaymentTimeout    time.Duration
	StripeAPIKey      string

	LogLevel string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:          ":8080",
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		RedisChairKey:     "chairs:location",
		KafkaTopic:        "chair-locations",
		MatchInterval:     0, // 0 disables the in-process ticker
		MatchRideBatch:    20,
		MatchChairPool:    100,
		LocalityThreshold: 250,
		PatienceThreshold: 200,
		MatchGracePeriod:  200 * time.Millisecond,
		PaymentProvider:   "gateway",
		PaymentTimeout:    5 * time.Second,
		LogLevel:          "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.PGDSN = os.Getenv("PG_DSN")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisChairKey, "REDIS_CHAIR_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	setDurationFromEnv(&cfg.MatchInterval, "MATCH_INTERVAL", &errs)
	setIntFromEnv(&cfg.MatchRideBatch, "MATCH_RIDE_BATCH", &errs)
	setIntFromEnv(&cfg.MatchChairPool, "MATCH_CHAIR_POOL", &errs)
	setIntFromEnv(&cfg.LocalityThreshold, "MATCH_LOCALITY_THRESHOLD", &errs)
	setFloatFromEnv(&cfg.PatienceThreshold, "MATCH_PATIENCE_THRESHOLD", &errs)
	setDurationFromEnv(&cfg.MatchGracePeriod, "MATCH_GRACE_PERIOD", &errs)

	setStringFromEnv(&cfg.PaymentProvider, "PAYMENT_PROVIDER")
	setStringFromEnv(&cfg.PaymentGatewayURL, "PAYMENT_GATEWAY_URL")
	setDurationFromEnv(&cfg.PaymentTimeout, "PAYMENT_TIMEOUT", &errs)
	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.PGDSN == "" {
		errs = append(errs, fmt.Errorf("PG_DSN is required"))
	}
	if cfg.MatchRideBatch <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_RIDE_BATCH must be > 0"))
	}
	if cfg.MatchChairPool <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_CHAIR_POOL must be > 0"))
	}
	if cfg.PaymentProvider != "gateway" && cfg.PaymentProvider != "stripe" {
		errs = append(errs, fmt.Errorf("PAYMENT_PROVIDER must be gateway or stripe"))
	}
	if cfg.PaymentProvider == "stripe" && cfg.StripeAPIKey == "" {
		errs = append(errs, fmt.Errorf("STRIPE_API_KEY is required for the stripe provider"))
	}

	return cfg, errors.Join(errs...)
}

// ConsumerConfig holds the settings for the location consumer process.
type ConsumerConfig struct {
	MetricsAddr   string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	RedisAddr     string
	RedisPassword string
	RedisChairKey string
	LogLevel      string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		MetricsAddr:   ":2112",
		KafkaBrokers:  []string{"localhost:9092"},
		KafkaTopic:    "chair-locations",
		KafkaGroup:    "ride-dispatch-consumer",
		RedisAddr:     "localhost:6379",
		RedisChairKey: "chairs:location",
		LogLevel:      "info",
	}
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisChairKey, "REDIS_CHAIR_KEY")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	return cfg, nil
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
