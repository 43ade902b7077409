// Package config provides a minimal environment-backed configuration
// loader used by the ingress and worker bootstraps (cmd/ingress,
// cmd/worker). Keep this intentionally flat — one struct, one loader.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the runtime configuration values read from the
// environment. See SPEC_FULL.md for the full variable list.
type Config struct {
	DatabaseURL string // DATABASE_URL
	RedisURL    string // REDIS_URL

	AWSRegion        string // AWS_REGION
	EventsBucket     string // EVENTS_BUCKET
	AWSEndpointURL   string // AWS_ENDPOINT_URL (optional, local emulation)
	AWSSSEKMSKeyID   string // AWS_SSE_KMS_KEY_ID (optional)
	DeliveryBucket   string // DELIVERY_ARCHIVE_BUCKET (optional; falls back to EventsBucket)
	DeliveryPrefix   string // DELIVERY_ARCHIVE_PREFIX (optional)

	KafkaBrokers string // KAFKA_BROKERS (comma-separated, optional)
	KafkaTopic   string // KAFKA_TOPIC (optional)

	AllowedOrigins string // ALLOWED_ORIGINS
	FrontendURL    string // FRONTEND_URL
	APIKeySalt     string // API_KEY_SALT
	SigningKeySeed string // SIGNING_KEY_SEED (optional; deterministic audit signer key)

	ListenAddr            string        // LISTEN_ADDR (default :8080)
	IngressBodyLimitBytes int64         // INGRESS_BODY_LIMIT_BYTES (default 1 MiB)
	SignatureTolerance    time.Duration // STRIPE_SIGNATURE_TOLERANCE_SECONDS (default 300s)

	WorkerPollInterval   time.Duration // WORKER_POLL_INTERVAL_SECONDS (default 1s)
	WorkerMaxConcurrency int           // WORKER_MAX_CONCURRENCY (default 5)

	StreamBatchSize      int           // STREAM_BATCH_SIZE (default 10)
	StreamPollInterval   time.Duration // STREAM_POLL_INTERVAL_SECONDS (default 3s)
	StreamMaxConcurrency int           // STREAM_MAX_CONCURRENCY (default 5)
}

const (
	defaultIngressBodyLimitBytes = 1 << 20 // 1 MiB
	defaultSignatureTolerance    = 300 * time.Second
	defaultWorkerPollInterval    = 1 * time.Second
	defaultWorkerMaxConcurrency  = 5
	defaultStreamBatchSize       = 10
	defaultStreamPollInterval    = 3 * time.Second
	defaultStreamMaxConcurrency  = 5
)

// LoadFromEnv reads config values from environment variables and returns a
// Config pointer populated with sensible defaults for anything unset.
func LoadFromEnv() *Config {
	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		AWSRegion:      os.Getenv("AWS_REGION"),
		EventsBucket:   os.Getenv("EVENTS_BUCKET"),
		AWSEndpointURL: os.Getenv("AWS_ENDPOINT_URL"),
		AWSSSEKMSKeyID: os.Getenv("AWS_SSE_KMS_KEY_ID"),
		DeliveryBucket: os.Getenv("DELIVERY_ARCHIVE_BUCKET"),
		DeliveryPrefix: os.Getenv("DELIVERY_ARCHIVE_PREFIX"),

		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:   os.Getenv("KAFKA_TOPIC"),

		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		FrontendURL:    os.Getenv("FRONTEND_URL"),
		APIKeySalt:     os.Getenv("API_KEY_SALT"),
		SigningKeySeed: os.Getenv("SIGNING_KEY_SEED"),

		ListenAddr: os.Getenv("LISTEN_ADDR"),
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.DeliveryBucket == "" {
		cfg.DeliveryBucket = cfg.EventsBucket
	}

	cfg.IngressBodyLimitBytes = defaultIngressBodyLimitBytes
	if v := os.Getenv("INGRESS_BODY_LIMIT_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.IngressBodyLimitBytes = n
		}
	}

	cfg.SignatureTolerance = defaultSignatureTolerance
	if v := os.Getenv("STRIPE_SIGNATURE_TOLERANCE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SignatureTolerance = time.Duration(n) * time.Second
		}
	}

	cfg.WorkerPollInterval = defaultWorkerPollInterval
	if v := os.Getenv("WORKER_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WorkerPollInterval = time.Duration(n) * time.Second
		}
	}
	cfg.WorkerMaxConcurrency = defaultWorkerMaxConcurrency
	if v := os.Getenv("WORKER_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WorkerMaxConcurrency = n
		}
	}

	cfg.StreamBatchSize = defaultStreamBatchSize
	if v := os.Getenv("STREAM_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StreamBatchSize = n
		}
	}
	cfg.StreamPollInterval = defaultStreamPollInterval
	if v := os.Getenv("STREAM_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StreamPollInterval = time.Duration(n) * time.Second
		}
	}
	cfg.StreamMaxConcurrency = defaultStreamMaxConcurrency
	if v := os.Getenv("STREAM_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StreamMaxConcurrency = n
		}
	}

	return cfg
}
