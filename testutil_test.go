package godi

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// ============================================================================
// Shared Test Types
// ============================================================================

// TService is a basic service for testing.
type TService struct {
	ID    string
	Value int
}

func (s *TService) GetID() string { return s.ID }

// TInterface is a basic interface for testing.
type TInterface interface {
	GetID() string
}

// TDependency is a basic dependency for testing.
type TDependency struct {
	Name string
}

// TServiceWithDeps demonstrates dependency injection.
type TServiceWithDeps struct {
	Svc *TService
	Dep *TDependency
}

// TDisposable implements Disposable and records the release order.
type TDisposable struct {
	Name     string
	closed   atomic.Int32
	closeErr error
	log      *closeLog
}

func (d *TDisposable) Close() error {
	d.closed.Add(1)
	if d.log != nil {
		d.log.add(d.Name)
	}
	return d.closeErr
}

func (d *TDisposable) IsClosed() bool { return d.closed.Load() > 0 }

func (d *TDisposable) CloseCount() int { return int(d.closed.Load()) }

// TContextDisposable only implements DisposableWithContext.
type TContextDisposable struct {
	closed  atomic.Bool
	gotCtx  context.Context
	block   bool
	closeFn func(ctx context.Context) error
}

func (d *TContextDisposable) Close(ctx context.Context) error {
	d.gotCtx = ctx
	defer d.closed.Store(true)

	if d.closeFn != nil {
		return d.closeFn(ctx)
	}

	if d.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (d *TContextDisposable) IsClosed() bool { return d.closed.Load() }

// closeLog collects release order across instances.
type closeLog struct {
	mu    sync.Mutex
	names []string
}

func (l *closeLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *closeLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

var errTestFactory = errors.New("factory failed")

// ============================================================================
// Helpers
// ============================================================================

// counter counts factory invocations.
type counter struct {
	n atomic.Int32
}

func (c *counter) inc() int32 { return c.n.Add(1) }

func (c *counter) get() int { return int(c.n.Load()) }

// countingService returns a descriptor building a fresh *TService on every
// factory call.
func countingService(lifetime Lifetime, calls *counter) *Descriptor {
	return Describe(lifetime, func(Resolver) (*TService, error) {
		n := calls.inc()
		return &TService{Value: int(n)}, nil
	})
}

// newTestRegistry creates a registry with descriptors registered and
// closes it when the test ends.
func newTestRegistry(t *testing.T, opts []Option, descriptors ...*Descriptor) *Registry {
	t.Helper()

	reg := NewRegistry(opts...)
	for _, d := range descriptors {
		require.NoError(t, reg.Register(d))
	}

	t.Cleanup(func() { reg.Close() })
	return reg
}

// newTestScope creates a frozen registry and a root scope over it.
func newTestScope(t *testing.T, descriptors ...*Descriptor) (*Registry, *Scope) {
	t.Helper()

	reg := newTestRegistry(t, nil, descriptors...)
	reg.Freeze()

	scope, err := reg.CreateScope()
	require.NoError(t, err)
	t.Cleanup(func() { scope.Close() })

	return reg, scope
}
