package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next Completer) Completer {
			return Func(func(ctx context.Context, s, u string) (string, error) {
				order = append(order, name)
				return next.Complete(ctx, s, u)
			})
		}
	}
	inner := Func(func(context.Context, string, string) (string, error) { return "ok", nil })

	out, err := Wrap(inner, mark("a"), mark("b")).Complete(context.Background(), "", "")

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestRetryRetriesRetryableErrors(t *testing.T) {
	var calls int32
	inner := Func(func(context.Context, string, string) (string, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return "", transportErr("test", true, errors.New("overloaded"))
		}
		return "fixed", nil
	})

	out, err := Retry(5, time.Millisecond)(inner).Complete(context.Background(), "", "")

	require.NoError(t, err)
	assert.Equal(t, "fixed", out)
	assert.EqualValues(t, 3, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	var calls int32
	inner := Func(func(context.Context, string, string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", transportErr("test", false, errors.New("invalid api key"))
	})

	_, err := Retry(5, time.Millisecond)(inner).Complete(context.Background(), "", "")

	assert.ErrorIs(t, err, ErrTransport)
	assert.EqualValues(t, 1, calls)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	inner := Func(func(context.Context, string, string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", transportErr("test", true, errors.New("503"))
	})

	_, err := Retry(3, time.Millisecond)(inner).Complete(context.Background(), "", "")

	assert.ErrorIs(t, err, ErrTransport)
	assert.EqualValues(t, 3, calls)
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inner := Func(func(context.Context, string, string) (string, error) {
		cancel()
		return "", transportErr("test", true, errors.New("429"))
	})

	_, err := Retry(5, time.Hour)(inner).Complete(ctx, "", "")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimitSpacesRequests(t *testing.T) {
	inner := Func(func(context.Context, string, string) (string, error) { return "", nil })
	// 600 per minute is one every 100ms after the initial burst of one.
	c := RateLimit(600)(inner)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Complete(context.Background(), "", "")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestRateLimitDisabled(t *testing.T) {
	inner := Func(func(context.Context, string, string) (string, error) { return "x", nil })
	assert.NotNil(t, RateLimit(0)(inner))
}

func TestWithLoggingPassesThrough(t *testing.T) {
	inner := Func(func(context.Context, string, string) (string, error) { return "", errors.New("nope") })

	_, err := WithLogging(zerolog.Nop(), "engineer")(inner).Complete(context.Background(), "s", "u")

	assert.EqualError(t, err, "nope")
}

func TestTransportErrorMatchesSentinel(t *testing.T) {
	err := transportErr("openai", true, errors.New("boom"))
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, "openai: boom", err.Error())
}
