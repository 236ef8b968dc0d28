package resilience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(cfg Config) *Policy {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), "users", cfg, nil)
}

func fastConfig() Config {
	return Config{
		MaxAttempts:         3,
		InitialBackoff:      time.Millisecond,
		MaxBackoff:          2 * time.Millisecond,
		Multiplier:          2,
		FailureThreshold:    5,
		CoolDown:            50 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	}
}

func TestDoRetriesTransientFailures(t *testing.T) {
	p := testPolicy(fastConfig())
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	p := testPolicy(fastConfig())
	cause := errors.New("503")
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return cause
	})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, calls)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	p := testPolicy(fastConfig())
	notFound := errors.New("not found")
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(notFound)
	})
	assert.Equal(t, notFound, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, gobreaker.StateClosed, p.State())
}

func TestBreakerOpensAndShortCircuits(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 1
	cfg.FailureThreshold = 2
	cfg.CoolDown = time.Hour

	var states []gobreaker.State
	p := New(slog.New(slog.NewTextHandler(io.Discard, nil)), "users", cfg, func(_ string, s gobreaker.State) {
		states = append(states, s)
	})

	fail := func(context.Context) error { return errors.New("down") }
	_ = p.Do(context.Background(), fail)
	_ = p.Do(context.Background(), fail)
	require.Equal(t, gobreaker.StateOpen, p.State())

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, calls)
	assert.Equal(t, []gobreaker.State{gobreaker.StateClosed, gobreaker.StateOpen}, states)
}

func TestBreakerHalfOpensAfterCoolDown(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 1
	cfg.FailureThreshold = 1
	cfg.CoolDown = 20 * time.Millisecond
	p := testPolicy(cfg)

	_ = p.Do(context.Background(), func(context.Context) error { return errors.New("down") })
	require.Equal(t, gobreaker.StateOpen, p.State())

	time.Sleep(40 * time.Millisecond)
	err := p.Do(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, p.State())
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialBackoff = time.Second
	cfg.MaxBackoff = time.Second
	p := testPolicy(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := p.Do(ctx, func(context.Context) error { return errors.New("slow") })
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
