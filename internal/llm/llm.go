// Package llm provides the completion collaborator used by generation and
// the fix loop: a single Complete call over several provider backends,
// decorated with rate limiting, retries, and logging.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Completer turns a system prompt and a user message into response text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Func adapts a function to Completer.
type Func func(ctx context.Context, system, user string) (string, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// ErrTransport marks failures talking to the completion service. Every
// backend error satisfies errors.Is(err, ErrTransport).
var ErrTransport = errors.New("llm transport failure")

// TransportError wraps a backend failure.
type TransportError struct {
	Provider string
	// Retryable is true for throttling, overload, and server errors.
	Retryable bool
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is makes every TransportError match ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func transportErr(provider string, retryable bool, err error) error {
	return &TransportError{Provider: provider, Retryable: retryable, Err: err}
}

// retryableStatus reports whether an HTTP status is worth retrying.
func retryableStatus(code int) bool {
	return code == 408 || code == 409 || code == 429 || code >= 500
}

// IsRetryable reports whether err is a transport error marked retryable.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Retryable
}
