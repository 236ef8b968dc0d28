// Package integration starts the containers the integration tests run
// against. Tests using it carry the integration build tag.
package integration

import (
	"context"
	"errors"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startupTimeout = 2 * time.Minute

type Env struct {
	PG    *postgres.PostgresContainer
	Kafka *kafka.KafkaContainer
	PGURL string
	KAddr []string
}

type Option func(*options)

type options struct {
	postgres bool
	kafka    bool
}

func WithPostgres() Option { return func(o *options) { o.postgres = true } }

func WithKafka() Option { return func(o *options) { o.kafka = true } }

func Setup(ctx context.Context, opts ...Option) (*Env, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if !o.postgres && !o.kafka {
		return nil, errors.New("integration: no container requested")
	}

	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	env := &Env{}
	if o.postgres {
		pgC, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("orders"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(startupTimeout)),
		)
		if err != nil {
			return nil, err
		}
		env.PG = pgC

		env.PGURL, err = pgC.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			env.Teardown(context.Background())
			return nil, err
		}
	}

	if o.kafka {
		kafkaC, err := kafka.Run(ctx,
			"confluentinc/confluent-local:7.5.0",
			kafka.WithClusterID("food-order-test"),
		)
		if err != nil {
			env.Teardown(context.Background())
			return nil, err
		}
		env.Kafka = kafkaC

		env.KAddr, err = kafkaC.Brokers(ctx)
		if err != nil {
			env.Teardown(context.Background())
			return nil, err
		}
	}
	return env, nil
}

func (e *Env) Teardown(ctx context.Context) {
	if e.Kafka != nil {
		_ = e.Kafka.Terminate(ctx)
	}
	if e.PG != nil {
		_ = e.PG.Terminate(ctx)
	}
}
