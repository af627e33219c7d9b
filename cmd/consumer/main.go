package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/mudmantim/switchline-backend-sub000/internal/config"
	"github.com/mudmantim/switchline-backend-sub000/internal/consumer"
)

const restartDelay = 5 * time.Second

func main() {
	cfg := config.Load()
	if len(cfg.ConsumerTopics) == 0 {
		log.Fatalf("CONSUMER_TOPICS is empty")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	handler := consumer.NewPersistenceHandler(pool)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Printf("audit consumer metrics on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server error: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for _, topic := range cfg.ConsumerTopics {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			superviseTopic(ctx, cfg, topic, handler)
		}(topic)
	}

	<-ctx.Done()
	log.Println("audit consumer shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}
	wg.Wait()
}

// superviseTopic keeps a processor running for one topic. A processor that stops on a
// failing message is replaced by a fresh reader, which resumes from the last commit.
func superviseTopic(ctx context.Context, cfg config.Config, topic string, handler consumer.Handler) {
	logger := log.New(os.Stderr, "consumer["+topic+"] ", log.LstdFlags)
	for {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.KafkaBrokers,
			GroupID:        cfg.ConsumerGroupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        time.Second,
			CommitInterval: 0,
			StartOffset:    kafka.FirstOffset,
		})
		logger.Printf("reading (group=%s)", cfg.ConsumerGroupID)

		err := consumer.NewProcessor(reader, handler, consumer.WithLogger(logger)).Run(ctx)
		if closeErr := reader.Close(); closeErr != nil {
			logger.Printf("close reader: %v", closeErr)
		}
		if ctx.Err() != nil {
			return
		}
		logger.Printf("processor stopped, restarting in %s: %v", restartDelay, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
		}
	}
}
