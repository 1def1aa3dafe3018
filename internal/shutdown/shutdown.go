// Package shutdown stops a frontier run when the process is asked to exit.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/PentesterFlow/frontier/internal/logger"
)

// DefaultTimeout bounds the time all hooks get to finish.
const DefaultTimeout = 30 * time.Second

// Hook is called during shutdown with a context that expires at the timeout.
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

// Handler cancels its context on the first signal or explicit Shutdown, then
// runs the registered hooks in reverse registration order.
type Handler struct {
	mu    sync.Mutex
	hooks []namedHook

	stopping atomic.Bool
	done     chan struct{}
	err      error
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	sigChan chan os.Signal
	log     *logger.Logger
}

// Config holds shutdown configuration.
type Config struct {
	Timeout time.Duration
	Signals []os.Signal
	Logger  *logger.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: DefaultTimeout,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// New creates a handler and starts listening for the configured signals.
func New(cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		done:    make(chan struct{}),
		timeout: cfg.Timeout,
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 1),
		log:     cfg.Logger.WithComponent("shutdown"),
	}

	signal.Notify(h.sigChan, cfg.Signals...)
	go h.listen()

	return h
}

func (h *Handler) listen() {
	select {
	case sig := <-h.sigChan:
		h.log.Event(logger.InfoLevel).Str("signal", sig.String()).Msg("Shutdown requested")
		_ = h.Shutdown()
	case <-h.ctx.Done():
	}
}

// Register adds a named hook. Hooks registered after shutdown began are not run.
func (h *Handler) Register(name string, hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, namedHook{name: name, fn: hook})
}

// RegisterFunc adds a hook that cannot fail.
func (h *Handler) RegisterFunc(name string, fn func()) {
	h.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// Context is cancelled as soon as shutdown begins.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Shutdown cancels the context and runs the hooks. Later calls wait for the
// first one and return its result, so a hook must not call Shutdown.
func (h *Handler) Shutdown() error {
	if !h.stopping.CompareAndSwap(false, true) {
		<-h.done
		return h.err
	}

	start := time.Now()
	signal.Stop(h.sigChan)
	h.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]namedHook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := run(ctx, hooks[i]); err != nil {
			h.log.Event(logger.ErrorLevel).Err(err).Str("hook", hooks[i].name).Msg("Shutdown hook failed")
			errs = append(errs, err)
		}
	}

	h.err = errors.Join(errs...)
	h.log.Event(logger.DebugLevel).
		Dur("elapsed", time.Since(start)).
		Int("hooks", len(hooks)).
		Int("errors", len(errs)).
		Msg("Shutdown complete")
	close(h.done)
	return h.err
}

func run(ctx context.Context, hook namedHook) error {
	done := make(chan error, 1)
	go func() {
		done <- hook.fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &TimeoutError{Hook: hook.name}
	}
}

// TimeoutError is returned when a hook outlives the shutdown timeout.
type TimeoutError struct {
	Hook string
}

func (e *TimeoutError) Error() string {
	return "shutdown hook timed out: " + e.Hook
}
