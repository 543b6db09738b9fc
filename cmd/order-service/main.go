package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/jogardn/order-store/internal/circuitbreaker"
	"github.com/jogardn/order-store/internal/config"
	"github.com/jogardn/order-store/internal/events"
	"github.com/jogardn/order-store/internal/metrics"
	"github.com/jogardn/order-store/internal/orders"
	"github.com/jogardn/order-store/internal/store"
	"github.com/jogardn/order-store/internal/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, config.Usage())
		os.Exit(1)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orderStore, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open order store")
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(registry, "order_service")

	hub := websocket.NewHub("order-service", logger)
	go hub.Run(ctx)

	publishers := events.Multi{hub}
	var breaker *circuitbreaker.CircuitBreaker
	if cfg.Kafka.Enabled() {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			Name:          "kafka",
			MaxFailures:   cfg.Kafka.MaxFailures,
			Timeout:       cfg.Kafka.BreakerTimeout,
			OnStateChange: serverMetrics.ObserveBreaker,
		}, logger)

		producer, err := events.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, breaker, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer producer.Close()
		publishers = append(publishers, producer)
		logger.WithField("brokers", cfg.Kafka.Brokers).Info("Publishing order events to Kafka")
	} else {
		logger.Info("KAFKA_BROKERS not set - order events go to websocket clients only")
	}

	handler := orders.NewHandler(orderStore, publishers, cfg.HTTP.RequestTimeout, logger)
	if breaker != nil {
		handler.AddHealthDetail("kafka", func() interface{} { return breaker.Snapshot() })
	}

	router := mux.NewRouter()
	handler.Register(router)
	router.Handle("/metrics", metrics.Handler(registry)).Methods(http.MethodGet)
	router.HandleFunc("/ws", hub.HandleWebSocket)

	router.Use(serverMetrics.Middleware)
	router.Use(orders.CORSMiddleware())
	router.Use(orders.LoggingMiddleware(logger))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":    cfg.HTTP.Port,
			"backend": cfg.Backend,
		}).Info("Starting order service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server gracefully stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (store.Store, func(), error) {
	if cfg.Backend == config.BackendMemory {
		logger.Warn("Using in-memory order store - data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}

	pg, err := store.Open(cfg.DB.Driver, cfg.DB.DSN(), store.PoolConfig{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	if err := pg.WaitForDatabase(ctx, cfg.DB.ConnectAttempts, cfg.DB.ConnectDelay); err != nil {
		pg.Close()
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return pg, func() { pg.Close() }, nil
}
