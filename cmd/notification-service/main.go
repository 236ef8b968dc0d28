package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/food-order-platform/internal/notification/application"
	notifykafka "github.com/dmehra2102/food-order-platform/internal/notification/infrastructure/kafka"
	order "github.com/dmehra2102/food-order-platform/internal/order/domain"
	"github.com/dmehra2102/food-order-platform/pkg/config"
	"github.com/dmehra2102/food-order-platform/pkg/httpx"
	"github.com/dmehra2102/food-order-platform/pkg/idempotency"
	"github.com/dmehra2102/food-order-platform/pkg/logging"
	"github.com/dmehra2102/food-order-platform/pkg/metrics"
	"github.com/dmehra2102/food-order-platform/pkg/resilience"
	"github.com/dmehra2102/food-order-platform/pkg/shutdown"
	"github.com/dmehra2102/food-order-platform/pkg/tracing"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadService(config.ServiceNotification, *cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	log := logging.New(logging.Options{
		Service:   cfg.Service,
		Env:       cfg.Env,
		Level:     cfg.Log.Level,
		AddSource: cfg.Log.AddSource,
	})

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("notification-service stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("notification-service shutdown")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	tp, err := tracing.Init(ctx, cfg.Service, cfg.Tracing.Endpoint, cfg.Tracing.SampleRatio, log)
	if err != nil {
		return err
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	m := metrics.New(cfg.Service)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	dedupe := idempotency.NewDeduper(rdb, cfg.Redis.IdempotencyTTL)

	svc := application.NewService(log, application.NewLogSender(log))
	retry := resilience.New(log, "notification-sender", resilience.DefaultConfig(), m.ObserveBreaker)

	reader := notifykafka.NewReader(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.TopicCreated, cfg.Kafka.TopicStatusChanged)
	consumer := notifykafka.NewConsumer(log, reader, svc, dedupe, retry, m, map[string]string{
		cfg.Kafka.TopicCreated:       order.EventOrderCreated,
		cfg.Kafka.TopicStatusChanged: order.EventOrderStatusChanged,
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("consuming order events", "group", cfg.Kafka.ConsumerGroup, "brokers", cfg.Kafka.Brokers)
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
