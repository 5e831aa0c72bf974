package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/XAVware/ONYX/internal/terminal"
)

// cancelHolder safely shares the active operation cancel func across goroutines.
type cancelHolder struct {
	mu sync.Mutex
	fn context.CancelFunc
}

func (h *cancelHolder) Set(fn context.CancelFunc) {
	h.mu.Lock()
	h.fn = fn
	h.mu.Unlock()
}

// Take returns and clears the current cancel func atomically.
func (h *cancelHolder) Take() context.CancelFunc {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn := h.fn
	h.fn = nil
	return fn
}

func (h *cancelHolder) Clear() {
	h.mu.Lock()
	h.fn = nil
	h.mu.Unlock()
}

// withInterrupt returns a context that the first Ctrl-C cancels, letting
// the running build or request wind down and the run be recorded. A
// second Ctrl-C exits immediately. stop releases the signal handler.
func withInterrupt(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)
	var active cancelHolder
	active.Set(cancel)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-sigChan:
				if c := active.Take(); c != nil {
					fmt.Fprintln(os.Stderr)
					terminal.Warning("Cancelling. Press Ctrl-C again to quit.")
					c()
					continue
				}
				os.Exit(130)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(done)
			active.Clear()
			cancel()
		})
	}
}
