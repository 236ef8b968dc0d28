// Package resilience wraps calls to remote dependencies in bounded retries
// with exponential backoff, guarded by a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned when the breaker is open or every attempt failed.
var ErrUnavailable = errors.New("dependency unavailable")

type Config struct {
	MaxAttempts         int           `yaml:"maxAttempts"`
	InitialBackoff      time.Duration `yaml:"initialBackoff"`
	MaxBackoff          time.Duration `yaml:"maxBackoff"`
	Multiplier          float64       `yaml:"multiplier"`
	FailureThreshold    uint32        `yaml:"failureThreshold"`
	CoolDown            time.Duration `yaml:"coolDown"`
	HalfOpenMaxRequests uint32        `yaml:"halfOpenMaxRequests"`
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:         3,
		InitialBackoff:      100 * time.Millisecond,
		MaxBackoff:          time.Second,
		Multiplier:          2,
		FailureThreshold:    5,
		CoolDown:            10 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. A permanent error is a valid
// answer from the dependency, so it does not count against the breaker.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// StateObserver is notified of breaker state changes.
type StateObserver func(name string, state gobreaker.State)

type Policy struct {
	name    string
	cfg     Config
	log     *slog.Logger
	breaker *gobreaker.CircuitBreaker
}

func New(log *slog.Logger, name string, cfg Config, observe StateObserver) *Policy {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = def.CoolDown
	}
	if cfg.HalfOpenMaxRequests == 0 {
		cfg.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}

	p := &Policy{name: name, cfg: cfg, log: log}
	threshold := cfg.FailureThreshold
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxRequests,
		Timeout:     cfg.CoolDown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if observe != nil {
				observe(name, to)
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isPermanent(err)
		},
	})
	if observe != nil {
		observe(name, gobreaker.StateClosed)
	}
	return p
}

func (p *Policy) Name() string { return p.name }

func (p *Policy) State() gobreaker.State { return p.breaker.State() }

// Do runs fn until it succeeds, returns a permanent error, or the attempt
// budget is spent. Permanent errors come back unwrapped from their marker.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	bo := gax.Backoff{
		Initial:    p.cfg.InitialBackoff,
		Max:        p.cfg.MaxBackoff,
		Multiplier: p.cfg.Multiplier,
	}

	var last error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		_, err := p.breaker.Execute(func() (interface{}, error) {
			return nil, fn(ctx)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, p.name, err)
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, p.name, ctx.Err())
		}

		last = err
		if attempt == p.cfg.MaxAttempts {
			break
		}
		p.log.Debug("retrying call", "dependency", p.name, "attempt", attempt, "err", err)
		if serr := gax.Sleep(ctx, bo.Pause()); serr != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, p.name, serr)
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrUnavailable, p.name, p.cfg.MaxAttempts, last)
}
