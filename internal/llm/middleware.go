package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Middleware decorates a Completer with a cross-cutting concern.
type Middleware func(Completer) Completer

// Wrap applies middlewares so the first one is outermost:
// Wrap(inner, A, B) == A(B(inner)).
func Wrap(inner Completer, mws ...Middleware) Completer {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// RateLimit allows at most rpm requests per minute with a burst of one.
// rpm <= 0 disables limiting.
func RateLimit(rpm int) Middleware {
	return func(next Completer) Completer {
		if rpm <= 0 {
			return next
		}
		lim := rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
		return Func(func(ctx context.Context, system, user string) (string, error) {
			if err := lim.Wait(ctx); err != nil {
				return "", err
			}
			return next.Complete(ctx, system, user)
		})
	}
}

// Retry retries retryable transport errors with exponential backoff,
// starting at base and capped at one minute. Context cancellation is
// never retried.
func Retry(maxAttempts int, base time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if base <= 0 {
		base = time.Second
	}
	return func(next Completer) Completer {
		return Func(func(ctx context.Context, system, user string) (string, error) {
			var last error
			for attempt := 0; attempt < maxAttempts; attempt++ {
				out, err := next.Complete(ctx, system, user)
				if err == nil {
					return out, nil
				}
				last = err
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				if !IsRetryable(err) || attempt == maxAttempts-1 {
					break
				}
				delay := base << attempt
				if delay > time.Minute {
					delay = time.Minute
				}
				t := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					t.Stop()
					return "", ctx.Err()
				case <-t.C:
				}
			}
			return "", last
		})
	}
}

// WithLogging logs request sizes, latency, and failures.
func WithLogging(log zerolog.Logger, role string) Middleware {
	return func(next Completer) Completer {
		return Func(func(ctx context.Context, system, user string) (string, error) {
			start := time.Now()
			out, err := next.Complete(ctx, system, user)
			ev := log.Debug()
			if err != nil {
				ev = log.Warn().Err(err)
			}
			ev.Str("role", role).
				Int("system_bytes", len(system)).
				Int("user_bytes", len(user)).
				Int("response_bytes", len(out)).
				Dur("latency", time.Since(start)).
				Msg("completion")
			return out, err
		})
	}
}
