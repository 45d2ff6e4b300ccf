package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Hook is a named pair of start and stop callbacks. Either may be nil.
type Hook struct {
	Name    string
	OnStart func(context.Context) error
	OnStop  func(context.Context) error
}

// Lifecycle manages the startup and shutdown of platform components.
// Hooks start in registration order and stop in reverse.
type Lifecycle struct {
	mu      sync.Mutex
	hooks   []Hook
	started bool
	logger  *slog.Logger
}

// NewLifecycle creates a new lifecycle manager.
func NewLifecycle(logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{logger: logger}
}

// Append registers a hook. Hooks appended after Start are stopped but
// never started.
func (l *Lifecycle) Append(h Hook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, h)
}

// OnStop registers a stop-only hook.
func (l *Lifecycle) OnStop(name string, fn func(context.Context) error) {
	l.Append(Hook{Name: name, OnStop: fn})
}

// Start runs every start callback. When one fails, the hooks already
// started are stopped in reverse order and the error is returned.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return fmt.Errorf("lifecycle already started")
	}

	for i, h := range l.hooks {
		if h.OnStart == nil {
			continue
		}
		if err := h.OnStart(ctx); err != nil {
			l.rollback(ctx, i)
			return fmt.Errorf("starting %s: %w", h.Name, err)
		}
	}

	l.started = true
	return nil
}

// rollback stops hooks before failedAt in reverse order.
func (l *Lifecycle) rollback(ctx context.Context, failedAt int) {
	for j := failedAt - 1; j >= 0; j-- {
		h := l.hooks[j]
		if h.OnStop == nil {
			continue
		}
		if err := h.OnStop(ctx); err != nil {
			l.logger.Warn("lifecycle rollback: stop failed", "hook", h.Name, "error", err)
		}
	}
}

// Stop runs every stop callback in reverse order and joins their errors.
// It is a no-op before Start.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return nil
	}

	var errs []error
	for i := len(l.hooks) - 1; i >= 0; i-- {
		h := l.hooks[i]
		if h.OnStop == nil {
			continue
		}
		if err := h.OnStop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", h.Name, err))
		}
	}

	l.started = false
	return errors.Join(errs...)
}

// IsStarted returns whether the lifecycle has been started.
func (l *Lifecycle) IsStarted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}
