// Command ingress runs the public HTTP surface: signed ingress,
// replay, and the tenant-management collaborators. Bootstrap is
// grounded on kernel/cmd/kernel/main.go — Postgres open+ping, the
// durable audit/analytics streamer wiring from env vars, chi router
// assembly, and signal-driven graceful shutdown — with the
// kernel-specific KMS/OIDC/mTLS wiring dropped (see DESIGN.md).
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/webhookrelay/relay/internal/blob"
	"github.com/webhookrelay/relay/internal/config"
	"github.com/webhookrelay/relay/internal/httpserver"
	"github.com/webhookrelay/relay/internal/queue"
	"github.com/webhookrelay/relay/internal/ratelimit"
	"github.com/webhookrelay/relay/internal/store"
	"github.com/webhookrelay/relay/internal/streaming"

	"database/sql"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.LoadFromEnv()

	if cfg.DatabaseURL == "" {
		log.Fatalf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open postgres: %v", err)
	}
	defer db.Close()
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("failed to ping postgres: %v", err)
		}
	}
	log.Println("connected to postgres")

	st := store.NewPGStore(db)

	var blobStore blob.Store
	if cfg.EventsBucket != "" {
		if err := blob.EnsureSecureBucket(context.Background(), cfg.EventsBucket, cfg.AWSRegion, cfg.AWSEndpointURL, cfg.AWSSSEKMSKeyID); err != nil {
			log.Fatalf("failed to provision s3 blob bucket: %v", err)
		}
		s3Store, err := blob.NewS3Store(context.Background(), cfg.EventsBucket, cfg.AWSRegion, cfg.AWSEndpointURL, cfg.AWSSSEKMSKeyID)
		if err != nil {
			log.Fatalf("failed to initialize s3 blob store: %v", err)
		}
		blobStore = s3Store
	} else {
		log.Println("EVENTS_BUCKET not configured; blob persistence disabled")
	}

	var q queue.Queue
	if cfg.RedisURL != "" {
		rq, err := queue.NewRedisQueue(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to initialize redis queue: %v", err)
		}
		q = rq
	} else {
		log.Println("REDIS_URL not configured; using in-memory queue (single-instance only)")
		q = queue.NewMemoryQueue()
	}

	var globalRate, tenantRate ratelimit.Store
	if cfg.RedisURL != "" {
		gr, err := ratelimit.NewRedisStore(cfg.RedisURL, "relay:ratelimit:ip")
		if err != nil {
			log.Fatalf("failed to initialize redis rate limiter: %v", err)
		}
		tr, err := ratelimit.NewRedisStore(cfg.RedisURL, "relay:ratelimit:tenant")
		if err != nil {
			log.Fatalf("failed to initialize redis rate limiter: %v", err)
		}
		globalRate, tenantRate = gr, tr
	} else {
		globalRate = ratelimit.NewInMemoryStore()
		tenantRate = ratelimit.NewInMemoryStore()
	}

	app := &httpserver.AppContext{
		Config:     cfg,
		DB:         db,
		Store:      st,
		Blob:       blobStore,
		Queue:      q,
		GlobalRate: globalRate,
		TenantRate: tenantRate,
	}

	// Durable delivery-audit streamer, mirroring the teacher's audit
	// streamer wiring: only starts when Kafka + an archive bucket are
	// configured.
	var streamerCancel context.CancelFunc
	if cfg.KafkaBrokers != "" && cfg.KafkaTopic != "" && cfg.DeliveryBucket != "" {
		brokers := splitAndTrim(cfg.KafkaBrokers)
		producer, err := streaming.NewKafkaProducer(streaming.KafkaProducerConfig{
			Brokers: brokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			log.Fatalf("failed to initialize kafka producer: %v", err)
		}
		archiver, err := streaming.NewS3Archiver(context.Background(), cfg.DeliveryBucket, cfg.DeliveryPrefix)
		if err != nil {
			log.Fatalf("failed to initialize s3 archiver: %v", err)
		}
		streamStore := streaming.NewStore(db)
		streamer := streaming.NewStreamer(streamStore, producer, archiver, streaming.StreamerConfig{
			BatchSize:      cfg.StreamBatchSize,
			PollInterval:   cfg.StreamPollInterval,
			MaxConcurrency: cfg.StreamMaxConcurrency,
		})

		ctxStr, cancel := context.WithCancel(context.Background())
		streamerCancel = cancel
		go func() {
			if err := streamer.Run(ctxStr); err != nil && err != context.Canceled {
				log.Printf("streaming: exited with error: %v", err)
			}
		}()
		log.Printf("delivery audit streamer started (batch=%d concurrency=%d poll=%s)",
			cfg.StreamBatchSize, cfg.StreamMaxConcurrency, cfg.StreamPollInterval)
	} else {
		log.Println("delivery audit streamer not started: KAFKA_BROKERS, KAFKA_TOPIC, DELIVERY_ARCHIVE_BUCKET (or EVENTS_BUCKET) must all be set")
	}

	r := httpserver.NewRouter(app)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting ingress server on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}

	if streamerCancel != nil {
		streamerCancel()
	}
	log.Println("server stopped")
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
