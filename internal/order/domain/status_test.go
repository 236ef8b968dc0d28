package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		StatusPending:          {StatusAccepted, StatusCancelled},
		StatusAccepted:         {StatusCooking, StatusCancelled},
		StatusCooking:          {StatusReadyForDelivery, StatusCancelled},
		StatusReadyForDelivery: {StatusDelivering, StatusCancelled},
		StatusDelivering:       {StatusCompleted, StatusCancelled},
	}

	for _, from := range Statuses {
		for _, to := range Statuses {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, terminal := range []OrderStatus{StatusCompleted, StatusCancelled} {
		assert.True(t, terminal.IsTerminal())
		for _, to := range Statuses {
			assert.False(t, terminal.CanTransitionTo(to), "%s -> %s", terminal, to)
		}
	}
	assert.False(t, StatusCompleted.CanTransitionTo(StatusCooking))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" cooking ")
	require.NoError(t, err)
	assert.Equal(t, StatusCooking, s)

	_, err = ParseStatus("LOST")
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}
