package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mudmantim/switchline-backend-sub000/internal/api"
	"github.com/mudmantim/switchline-backend-sub000/internal/auth"
	"github.com/mudmantim/switchline-backend-sub000/internal/config"
	"github.com/mudmantim/switchline-backend-sub000/internal/domain"
	"github.com/mudmantim/switchline-backend-sub000/internal/outbox"
	"github.com/mudmantim/switchline-backend-sub000/internal/persistence/memory"
	"github.com/mudmantim/switchline-backend-sub000/internal/persistence/postgres"
	httptransport "github.com/mudmantim/switchline-backend-sub000/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		repo       domain.Repository
		dispatcher *outbox.Dispatcher
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Printf("using in-memory store; state and events are not persisted")
		repo = memory.NewRepository()
	case config.StoreDriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()
		repo = postgres.NewRepository(pool)

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		registerCtx, registerCancel := context.WithTimeout(ctx, 15*time.Second)
		if err := registry.RegisterRoutes(registerCtx); err != nil {
			log.Printf("schema registration incomplete, retrying on first publish: %v", err)
		}
		registerCancel()

		dispatcher = outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithRetryBackoff(cfg.DLQBaseDelay))
		go dispatcher.Start(ctx)
	default:
		log.Fatalf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	service := domain.NewService(repo, domain.WithLocation(cfg.Location()))

	router := mux.NewRouter()
	api.NewHandler(service).RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress),
		httptransport.Chain(router,
			httptransport.RequestLogger(nil),
			httptransport.CORS(cfg.CORSOrigin),
			authMiddleware.Wrap,
		))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("engagement-service listening on %s (store=%s, tz=%s)", cfg.HTTPAddress, cfg.StoreDriver, cfg.Location())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
