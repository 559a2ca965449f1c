package godi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// lifecycleManager owns the disposable instances of a Registry or Scope
// and releases them in reverse order of creation.
type lifecycleManager struct {
	mu          sync.Mutex
	disposables []any
	closed      bool
	logger      *zap.Logger
}

// newLifecycleManager creates a new lifecycle manager
func newLifecycleManager(logger *zap.Logger) *lifecycleManager {
	return &lifecycleManager{logger: logger}
}

// track records instance for release. Once the manager has been disposed
// the instance is handed back with false and the caller must release it.
func (m *lifecycleManager) track(instance any) bool {
	if !isDisposable(instance) {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	m.disposables = append(m.disposables, instance)
	return true
}

// dispose releases all tracked instances in reverse order (LIFO). Every
// instance is released exactly once even when some of them fail. ctxFor
// supplies the context handed to each DisposableWithContext.
func (m *lifecycleManager) dispose(ctxFor func() (context.Context, context.CancelFunc)) []error {
	m.mu.Lock()
	disposables := m.disposables
	m.disposables = nil
	m.closed = true
	m.mu.Unlock()

	var errs []error
	for i := len(disposables) - 1; i >= 0; i-- {
		instance := disposables[i]

		releaseCtx, cancel := ctxFor()
		err := release(releaseCtx, instance)
		cancel()

		if err != nil {
			m.logger.Warn("failed to release instance",
				zap.String("type", fmt.Sprintf("%T", instance)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%T: %w", instance, err))
		}
	}

	return errs
}

// count returns the number of tracked instances.
func (m *lifecycleManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.disposables)
}

// blockingContext returns the context factory used by synchronous disposal.
// Each instance gets its own deadline when timeout is positive.
func blockingContext(timeout time.Duration) func() (context.Context, context.CancelFunc) {
	return func() (context.Context, context.CancelFunc) {
		if timeout > 0 {
			return context.WithTimeout(context.Background(), timeout)
		}
		return context.Background(), func() {}
	}
}

// callerContext returns the context factory used by asynchronous disposal.
func callerContext(ctx context.Context) func() (context.Context, context.CancelFunc) {
	return func() (context.Context, context.CancelFunc) {
		return ctx, func() {}
	}
}
