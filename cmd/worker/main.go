// Command worker runs the delivery worker pool: dequeue, deliver,
// retry-with-backoff or terminate (spec.md §4.3), with an optional
// hash-chained audit trail streamed to Kafka/S3. Bootstrap follows the
// same conditional-streamer wiring as cmd/ingress/main.go, grounded on
// kernel/cmd/kernel/main.go.
package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/webhookrelay/relay/internal/config"
	"github.com/webhookrelay/relay/internal/queue"
	"github.com/webhookrelay/relay/internal/signing"
	"github.com/webhookrelay/relay/internal/store"
	"github.com/webhookrelay/relay/internal/streaming"
	"github.com/webhookrelay/relay/internal/worker"
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

	// Delivery-audit trail: only wired up when Kafka + an archive bucket
	// are configured, mirroring the teacher's conditional audit-streamer
	// startup block.
	var (
		streamStore *streaming.Store
		signer      signing.Signer
		producer    streaming.Producer
		archiver    streaming.Archiver
	)
	if cfg.KafkaBrokers != "" && cfg.KafkaTopic != "" && cfg.DeliveryBucket != "" {
		brokers := splitAndTrim(cfg.KafkaBrokers)
		p, err := streaming.NewKafkaProducer(streaming.KafkaProducerConfig{
			Brokers: brokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			log.Fatalf("failed to initialize kafka producer: %v", err)
		}
		a, err := streaming.NewS3Archiver(context.Background(), cfg.DeliveryBucket, cfg.DeliveryPrefix)
		if err != nil {
			log.Fatalf("failed to initialize s3 archiver: %v", err)
		}
		streamStore = streaming.NewStore(db)
		if cfg.SigningKeySeed != "" {
			signer = signing.NewLocalSignerFromSeed("worker-local", cfg.SigningKeySeed)
		} else {
			log.Println("SIGNING_KEY_SEED not set; using an ephemeral signing key (audit chain will not verify across restarts)")
			signer = signing.NewLocalSigner("worker-local")
		}
		producer = p
		archiver = a
		log.Println("delivery audit trail enabled (kafka + s3 archive)")
	} else {
		log.Println("delivery audit trail disabled: KAFKA_BROKERS, KAFKA_TOPIC, DELIVERY_ARCHIVE_BUCKET (or EVENTS_BUCKET) must all be set")
	}

	w := worker.New(st, q, streamStore, signer, producer, archiver)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx, cfg.WorkerPollInterval, cfg.WorkerMaxConcurrency)

	var streamerCancel context.CancelFunc
	if producer != nil && archiver != nil {
		streamer := streaming.NewStreamer(streamStore, producer, archiver, streaming.StreamerConfig{
			BatchSize:      cfg.StreamBatchSize,
			PollInterval:   cfg.StreamPollInterval,
			MaxConcurrency: cfg.StreamMaxConcurrency,
		})
		ctxStr, streamCancel := context.WithCancel(context.Background())
		streamerCancel = streamCancel
		go func() {
			if err := streamer.Run(ctxStr); err != nil && err != context.Canceled {
				log.Printf("streaming: exited with error: %v", err)
			}
		}()
		log.Printf("delivery audit streamer started (batch=%d concurrency=%d poll=%s)",
			cfg.StreamBatchSize, cfg.StreamMaxConcurrency, cfg.StreamPollInterval)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down worker...")

	cancel()
	if streamerCancel != nil {
		streamerCancel()
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Printf("kafka producer close: %v", err)
		}
	}

	time.Sleep(500 * time.Millisecond)
	log.Println("worker stopped")
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
