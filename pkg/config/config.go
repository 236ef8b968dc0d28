package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmehra2102/food-order-platform/pkg/resilience"
)

const (
	BrokerKafka    = "kafka"
	BrokerRabbitMQ = "rabbitmq"

	ServiceOrder        = "order-service"
	ServiceNotification = "notification-service"
)

type Config struct {
	Service     string      `yaml:"service"`
	Env         string      `yaml:"env"`
	HTTP        HTTP        `yaml:"http"`
	Postgres    Postgres    `yaml:"postgres"`
	Kafka       Kafka       `yaml:"kafka"`
	RabbitMQ    RabbitMQ    `yaml:"rabbitmq"`
	Events      Events      `yaml:"events"`
	Redis       Redis       `yaml:"redis"`
	UserService UserService `yaml:"userService"`
	Catalog     Catalog     `yaml:"catalog"`
	Auth        Auth        `yaml:"auth"`
	Outbox      Outbox      `yaml:"outbox"`
	Log         Log         `yaml:"log"`
	Tracing     Tracing     `yaml:"tracing"`
}

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Postgres.URL left empty selects the in-memory order store.
type Postgres struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"maxConns"`
	Migrate  bool   `yaml:"migrate"`
}

type Kafka struct {
	Brokers            []string `yaml:"brokers"`
	TopicCreated       string   `yaml:"topicCreated"`
	TopicStatusChanged string   `yaml:"topicStatusChanged"`
	ConsumerGroup      string   `yaml:"consumerGroup"`
}

type RabbitMQ struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type Events struct {
	Broker string `yaml:"broker"`
}

type Redis struct {
	Addr           string        `yaml:"addr"`
	IdempotencyTTL time.Duration `yaml:"idempotencyTTL"`
}

type UserService struct {
	URL        string            `yaml:"url"`
	Timeout    time.Duration     `yaml:"timeout"`
	Resilience resilience.Config `yaml:"resilience"`
}

type Catalog struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Auth struct {
	Secret               string `yaml:"secret"`
	PublicKeyFile        string `yaml:"publicKeyFile"`
	Issuer               string `yaml:"issuer"`
	RequireEmailVerified *bool  `yaml:"requireEmailVerified"`
}

func (a Auth) EmailVerificationRequired() bool {
	return a.RequireEmailVerified == nil || *a.RequireEmailVerified
}

type Outbox struct {
	BatchSize  int           `yaml:"batchSize"`
	Interval   time.Duration `yaml:"interval"`
	Lease      time.Duration `yaml:"lease"`
	MaxRetries int           `yaml:"maxRetries"`
}

type Log struct {
	Level     string `yaml:"level"`
	AddSource bool   `yaml:"addSource"`
}

type Tracing struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

// Load reads the order-service configuration.
func Load(path string) (Config, error) {
	return LoadService(ServiceOrder, path)
}

// LoadService reads the YAML file at path when it exists, applies environment
// overrides and fills defaults. An empty path skips the file. Validation
// depends on which service the file configures.
func LoadService(service, path string) (Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if cfg.Service == "" {
		cfg.Service = service
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Env, "APP_ENV")
	setString(&cfg.HTTP.Addr, "HTTP_ADDR")
	setString(&cfg.Postgres.URL, "PG_URL")
	if v := os.Getenv("KAFKA_ADDR"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	setString(&cfg.RabbitMQ.URL, "AMQP_URL")
	setString(&cfg.Events.Broker, "EVENT_BROKER")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.UserService.URL, "USER_SERVICE_URL")
	setString(&cfg.Catalog.URL, "CATALOG_SERVICE_URL")
	setString(&cfg.Auth.Secret, "JWT_SECRET")
	setString(&cfg.Auth.PublicKeyFile, "JWT_PUBLIC_KEY_FILE")
	setString(&cfg.Auth.Issuer, "JWT_ISSUER")
	if v, ok := envBool("REQUIRE_EMAIL_VERIFIED"); ok {
		cfg.Auth.RequireEmailVerified = &v
	}
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Tracing.Endpoint, "OTLP_ENDPOINT")
}

func applyDefaults(cfg *Config) {
	def := func(s *string, v string) {
		if *s == "" {
			*s = v
		}
	}
	defDur := func(d *time.Duration, v time.Duration) {
		if *d <= 0 {
			*d = v
		}
	}

	def(&cfg.Service, ServiceOrder)
	def(&cfg.Env, "dev")
	def(&cfg.HTTP.Addr, ":8080")
	defDur(&cfg.HTTP.ReadTimeout, 10*time.Second)
	defDur(&cfg.HTTP.WriteTimeout, 15*time.Second)
	defDur(&cfg.HTTP.ShutdownTimeout, 10*time.Second)
	if cfg.Postgres.MaxConns <= 0 {
		cfg.Postgres.MaxConns = 10
	}
	def(&cfg.Kafka.TopicCreated, "order-created")
	def(&cfg.Kafka.TopicStatusChanged, "order-status-changed")
	def(&cfg.Kafka.ConsumerGroup, "notification-service")
	def(&cfg.RabbitMQ.Exchange, "orders")
	def(&cfg.Events.Broker, BrokerKafka)
	defDur(&cfg.Redis.IdempotencyTTL, 24*time.Hour)
	defDur(&cfg.UserService.Timeout, 2*time.Second)
	defDur(&cfg.Catalog.Timeout, 2*time.Second)
	if cfg.Outbox.BatchSize <= 0 {
		cfg.Outbox.BatchSize = 100
	}
	defDur(&cfg.Outbox.Interval, 500*time.Millisecond)
	defDur(&cfg.Outbox.Lease, 5*time.Second)
	if cfg.Outbox.MaxRetries <= 0 {
		cfg.Outbox.MaxRetries = 10
	}
	def(&cfg.Log.Level, "info")
	if cfg.Tracing.SampleRatio <= 0 {
		cfg.Tracing.SampleRatio = 1
	}

	r := &cfg.UserService.Resilience
	d := resilience.DefaultConfig()
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = d.MaxAttempts
	}
	defDur(&r.InitialBackoff, d.InitialBackoff)
	defDur(&r.MaxBackoff, d.MaxBackoff)
	if r.Multiplier < 1 {
		r.Multiplier = d.Multiplier
	}
	if r.FailureThreshold == 0 {
		r.FailureThreshold = d.FailureThreshold
	}
	defDur(&r.CoolDown, d.CoolDown)
	if r.HalfOpenMaxRequests == 0 {
		r.HalfOpenMaxRequests = d.HalfOpenMaxRequests
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("tracing.sampleRatio must be within (0, 1]"))
	}

	if c.Service == ServiceNotification {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("kafka.brokers is required"))
		}
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required"))
		}
		return errors.Join(errs...)
	}

	switch c.Events.Broker {
	case BrokerKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("kafka.brokers is required when events.broker is kafka"))
		}
	case BrokerRabbitMQ:
		if c.RabbitMQ.URL == "" {
			errs = append(errs, errors.New("rabbitmq.url is required when events.broker is rabbitmq"))
		}
	default:
		errs = append(errs, fmt.Errorf("events.broker %q is not one of kafka, rabbitmq", c.Events.Broker))
	}
	if c.UserService.URL == "" {
		errs = append(errs, errors.New("userService.url is required"))
	}
	if c.Catalog.URL == "" {
		errs = append(errs, errors.New("catalog.url is required"))
	}
	if c.Auth.Secret == "" && c.Auth.PublicKeyFile == "" {
		errs = append(errs, errors.New("auth.secret or auth.publicKeyFile is required"))
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
