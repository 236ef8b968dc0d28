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
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/food-order-platform/internal/order/application"
	"github.com/dmehra2102/food-order-platform/internal/order/infrastructure/catalog"
	orderhttp "github.com/dmehra2102/food-order-platform/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/food-order-platform/internal/order/infrastructure/kafka"
	"github.com/dmehra2102/food-order-platform/internal/order/infrastructure/memory"
	orderpg "github.com/dmehra2102/food-order-platform/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/food-order-platform/internal/order/infrastructure/rabbitmq"
	"github.com/dmehra2102/food-order-platform/internal/order/infrastructure/userclient"
	"github.com/dmehra2102/food-order-platform/pkg/auth"
	"github.com/dmehra2102/food-order-platform/pkg/config"
	"github.com/dmehra2102/food-order-platform/pkg/httpx"
	"github.com/dmehra2102/food-order-platform/pkg/idempotency"
	"github.com/dmehra2102/food-order-platform/pkg/logging"
	"github.com/dmehra2102/food-order-platform/pkg/metrics"
	"github.com/dmehra2102/food-order-platform/pkg/outbox"
	"github.com/dmehra2102/food-order-platform/pkg/resilience"
	"github.com/dmehra2102/food-order-platform/pkg/shutdown"
	"github.com/dmehra2102/food-order-platform/pkg/tracing"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
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
		log.Error("order-service stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("order-service shutdown complete")
}

// orderStore is what the service and the relay need from persistence.
type orderStore interface {
	application.OrderStore
	outbox.Store
}

type pgStore struct {
	*orderpg.Repository
	*orderpg.OutboxStore
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	tp, err := tracing.Init(ctx, cfg.Service, cfg.Tracing.Endpoint, cfg.Tracing.SampleRatio, log)
	if err != nil {
		return err
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	m := metrics.New(cfg.Service)

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	pub, closePub, err := openPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer closePub()

	relay := outbox.NewRelay(log, store, outbox.NewDispatcher(log, application.EventRoutes(pub)),
		cfg.Service+"-"+uuid.NewString()[:8],
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithInterval(cfg.Outbox.Interval),
		outbox.WithLease(cfg.Outbox.Lease),
		outbox.WithMaxRetries(cfg.Outbox.MaxRetries),
		outbox.WithRecorder(m),
	)

	policy := resilience.New(log, "user-service", cfg.UserService.Resilience, m.ObserveBreaker)
	users := userclient.NewClient(log, cfg.UserService.URL, cfg.UserService.Timeout, policy)
	prices := catalog.NewClient(log, cfg.Catalog.URL, cfg.Catalog.Timeout)
	svc := application.NewService(log, store, users, prices)

	authn, err := newAuthenticator(cfg.Auth, log)
	if err != nil {
		return err
	}

	idemStore, closeIdem, err := openIdempotencyStore(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer closeIdem()

	handler := orderhttp.NewHandler(log, svc, authn.Middleware, idempotency.Middleware(log, idemStore, cfg.Redis.IdempotencyTTL))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", m.Handler())
	r.Mount("/api", handler.Routes())

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      otelhttp.NewHandler(r, cfg.Service),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTP.Addr)
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

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (orderStore, func(), error) {
	if cfg.Postgres.URL == "" {
		log.Warn("postgres.url not set, orders are kept in memory")
		return memory.NewStore(), func() {}, nil
	}

	pcfg, err := pgxpool.ParseConfig(cfg.Postgres.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse postgres url: %w", err)
	}
	pcfg.MaxConns = cfg.Postgres.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("pg connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pg ping: %w", err)
	}
	if cfg.Postgres.Migrate {
		if err := orderpg.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("schema migrated")
	}

	return pgStore{orderpg.NewRepository(log, pool), orderpg.NewOutboxStore(log, pool)}, pool.Close, nil
}

func openPublisher(cfg config.Config, log *slog.Logger) (application.EventPublisher, func(), error) {
	switch cfg.Events.Broker {
	case config.BrokerRabbitMQ:
		conn, err := amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("amqp dial: %w", err)
		}
		log.Info("publishing order events to rabbitmq", "exchange", cfg.RabbitMQ.Exchange)
		return rabbitmq.NewPublisher(log, rabbitmq.ConnectionDialer(conn), cfg.RabbitMQ.Exchange),
			func() { _ = conn.Close() }, nil
	default:
		writer := orderkafka.NewWriter(cfg.Kafka.Brokers)
		log.Info("publishing order events to kafka", "brokers", cfg.Kafka.Brokers)
		return orderkafka.NewPublisher(log, writer, orderkafka.Topics{
				Created:       cfg.Kafka.TopicCreated,
				StatusChanged: cfg.Kafka.TopicStatusChanged,
			}),
			func() { _ = writer.Close() }, nil
	}
}

func newAuthenticator(cfg config.Auth, log *slog.Logger) (*auth.Authenticator, error) {
	opts := []auth.Option{
		auth.WithIssuer(cfg.Issuer),
		auth.WithEmailVerification(cfg.EmailVerificationRequired()),
	}
	if cfg.PublicKeyFile != "" {
		key, err := auth.LoadRSAPublicKey(cfg.PublicKeyFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, auth.WithRSAPublicKey(key))
	}
	if cfg.Secret != "" {
		opts = append(opts, auth.WithHMACSecret(cfg.Secret))
	}
	return auth.NewAuthenticator(log, opts...)
}

func openIdempotencyStore(ctx context.Context, cfg config.Redis, log *slog.Logger) (idempotency.Store, func(), error) {
	if cfg.Addr == "" {
		log.Warn("redis.addr not set, idempotency keys are kept in memory")
		return idempotency.NewMemoryStore(), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return idempotency.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
}
