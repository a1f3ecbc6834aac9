package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fastConfig(retries int) Config {
	return Config{MaxRetries: retries, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestWithBackoffEventuallySucceeds(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(5), zaptest.NewLogger(t), "flaky", func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithBackoffGivesUp(t *testing.T) {
	cause := errors.New("down")
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(3), zaptest.NewLogger(t), "down", func() error {
		calls++
		return cause
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "down failed after 3 attempts")
}

func TestWithBackoffPermanent(t *testing.T) {
	cause := errors.New("bad request")
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(5), nil, "permanent", func() error {
		calls++
		return Permanent(cause)
	})
	assert.Same(t, cause, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, Permanent(nil))
}

func TestWithBackoffCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := WithBackoff(ctx, fastConfig(5), zaptest.NewLogger(t), "cancelled", func() error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestCalculateBackoff(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, calculateBackoff(cfg, 1))
	assert.Equal(t, 4*time.Second, calculateBackoff(cfg, 3))
	assert.Equal(t, 5*time.Second, calculateBackoff(cfg, 10))

	cfg.JitterEnabled = true
	for i := 0; i < 50; i++ {
		d := calculateBackoff(cfg, 2)
		assert.GreaterOrEqual(t, d, 1700*time.Millisecond)
		assert.LessOrEqual(t, d, 2300*time.Millisecond)
	}
}
