package godi

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ Resolver = (*Scope)(nil)

// Scope is the active resolution context. It caches Scoped instances,
// dispatches every request by lifetime and releases the instances it
// cached when it is closed.
//
// In web applications a scope is typically created for each request:
//
//	scope, err := reg.CreateScope()
//	if err != nil {
//	    return err
//	}
//	defer scope.Close()
//
//	svc, err := godi.Resolve[*GreetingService](scope)
//
// A Scope is safe for concurrent use. Child scopes share the registry but
// never the parent's cache.
type Scope struct {
	id       string
	registry *Registry
	parent   *Scope

	mu       sync.Mutex
	slots    map[*Descriptor]*instanceSlot
	children map[*Scope]struct{}

	lifecycle *lifecycleManager
	disposed  atomic.Bool
}

func newScope(reg *Registry, parent *Scope) *Scope {
	s := &Scope{
		id:       uuid.NewString(),
		registry: reg,
		parent:   parent,
		slots:    make(map[*Descriptor]*instanceSlot),
		children: make(map[*Scope]struct{}),
	}

	s.lifecycle = newLifecycleManager(reg.logger.With(zap.String("scope", s.id)))

	fields := []zap.Field{zap.String("scope", s.id)}
	if parent != nil {
		fields = append(fields, zap.String("parent", parent.id))
	}
	reg.logger.Debug("scope created", fields...)

	return s
}

// ID returns the unique identifier of the scope.
func (s *Scope) ID() string {
	return s.id
}

// Parent returns the scope this scope was created from, or nil for a
// root-level scope.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Registry returns the registry the scope resolves from.
func (s *Scope) Registry() *Registry {
	return s.registry
}

// Scope implements Resolver.
func (s *Scope) Scope() *Scope {
	return s
}

// IsDisposed reports whether Close has been called.
func (s *Scope) IsDisposed() bool {
	return s.disposed.Load()
}

// GetService resolves the last registration for serviceType.
//
// Factories must resolve their dependencies through the Resolver they are
// given, not through a Scope they close over. Calling GetService from inside
// a factory starts a new resolution call that cannot see the enclosing one,
// so a cycle through it goes undetected: a Singleton blocks forever waiting
// for itself and a Transient recurses until the stack overflows.
func (s *Scope) GetService(serviceType reflect.Type) (any, error) {
	start := time.Now()
	instance, err := s.resolve(newResolution(s), serviceType)
	s.observe(serviceType, instance, err, start)
	return instance, err
}

// GetServices resolves every registration for serviceType, each by its own
// lifetime, in registration order. The same rule as GetService applies to
// calls made from inside a factory.
func (s *Scope) GetServices(serviceType reflect.Type) ([]any, error) {
	start := time.Now()
	instances, err := s.resolveAll(newResolution(s), serviceType)
	s.observe(serviceType, instances, err, start)
	return instances, err
}

func (s *Scope) observe(serviceType reflect.Type, instance any, err error, start time.Time) {
	o := s.registry.opts
	if err != nil {
		if o.onServiceError != nil {
			o.onServiceError(serviceType, err)
		}
		return
	}

	if o.onServiceResolved != nil {
		o.onServiceResolved(serviceType, instance, time.Since(start))
	}
}

func (s *Scope) checkResolvable(serviceType reflect.Type) error {
	if serviceType == nil {
		return ValidationError{Cause: ErrServiceTypeNil}
	}

	if s.disposed.Load() {
		return ErrScopeDisposed
	}

	if s.registry.disposed.Load() {
		return ErrRegistryDisposed
	}

	return nil
}

func (s *Scope) resolve(res *resolution, serviceType reflect.Type) (any, error) {
	if err := s.checkResolvable(serviceType); err != nil {
		return nil, err
	}

	ds, err := s.registry.find(serviceType)
	if err != nil {
		return nil, ResolutionError{ServiceType: serviceType, Cause: err}
	}

	if len(ds) == 0 {
		return nil, s.registry.noDescriptorError(serviceType, nil)
	}

	return s.dispatch(res, ds[len(ds)-1], serviceType)
}

func (s *Scope) resolveAll(res *resolution, serviceType reflect.Type) ([]any, error) {
	if err := s.checkResolvable(serviceType); err != nil {
		return nil, err
	}

	ds, err := s.registry.find(serviceType)
	if err != nil {
		return nil, ResolutionError{ServiceType: serviceType, Cause: err}
	}

	if len(ds) == 0 {
		if s.registry.opts.emptyServices == AllowEmpty {
			return []any{}, nil
		}
		return nil, s.registry.noDescriptorError(serviceType, nil)
	}

	instances := make([]any, 0, len(ds))
	for _, d := range ds {
		instance, err := s.dispatch(res, d, serviceType)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}

	return instances, nil
}

// dispatch builds or fetches the instance for d according to its lifetime.
func (s *Scope) dispatch(res *resolution, d *Descriptor, serviceType reflect.Type) (any, error) {
	if d.target != nil {
		return s.dispatch(res, d.target, d.target.ServiceType)
	}

	if res.inFlight(serviceType) {
		return nil, res.cycleError(serviceType)
	}

	if d.Lifetime == Scoped && s.registry.opts.validateLifetimes {
		if f, ok := res.singletonFrame(); ok {
			return nil, LifetimeConflictError{
				ServiceType:        f.serviceType,
				ServiceLifetime:    f.lifetime,
				DependencyType:     serviceType,
				DependencyLifetime: d.Lifetime,
			}
		}
	}

	pop := res.enter(serviceType, d.Lifetime)
	defer pop()

	switch d.Lifetime {
	case Singleton:
		return s.registry.acquire(&d.slot, res, serviceType, func() (any, error) {
			return s.build(res, d, serviceType, s.registry.singletons, ErrRegistryDisposed)
		})

	case Scoped:
		return s.registry.acquire(s.slotFor(d), res, serviceType, func() (any, error) {
			return s.build(res, d, serviceType, s.lifecycle, ErrScopeDisposed)
		})

	default:
		if !s.registry.opts.trackTransients {
			return s.construct(res, d, serviceType)
		}

		// A transient captured by a singleton lives as long as the registry.
		owner, closedErr := s.lifecycle, ErrScopeDisposed
		if _, ok := res.singletonFrame(); ok {
			owner, closedErr = s.registry.singletons, ErrRegistryDisposed
		}

		return s.build(res, d, serviceType, owner, closedErr)
	}
}

// build constructs an instance and hands it to owner for release. An
// instance built after its owner was closed is released at once.
func (s *Scope) build(res *resolution, d *Descriptor, serviceType reflect.Type, owner *lifecycleManager, closedErr error) (any, error) {
	instance, err := s.construct(res, d, serviceType)
	if err != nil {
		return nil, err
	}

	if !owner.track(instance) {
		ctx, cancel := blockingContext(s.registry.opts.disposeTimeout)()
		defer cancel()

		if err := release(ctx, instance); err != nil {
			s.registry.logger.Warn("failed to release instance built after close",
				zap.Stringer("service", typeStringer{serviceType}),
				zap.Error(err))
		}

		return nil, closedErr
	}

	return instance, nil
}

func (s *Scope) slotFor(d *Descriptor) *instanceSlot {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[d]
	if !ok {
		slot = &instanceSlot{}
		s.slots[d] = slot
	}

	return slot
}

// CreateScope creates a child scope with its own cache.
func (s *Scope) CreateScope() (*Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed.Load() {
		return nil, ErrScopeDisposed
	}

	if s.registry.disposed.Load() {
		return nil, ErrRegistryDisposed
	}

	child := newScope(s.registry, s)
	s.children[child] = struct{}{}

	return child, nil
}

// Close closes every live child scope and then releases every instance
// this scope cached, in reverse order of creation. It never touches the
// parent's cache or the registry's singletons. Calling Close more than
// once has no effect.
func (s *Scope) Close() error {
	return s.closeWith(blockingContext(s.registry.opts.disposeTimeout))
}

// CloseAsync closes the scope on a separate goroutine, passing ctx to
// every DisposableWithContext. The returned channel receives the result
// and is then closed.
func (s *Scope) CloseAsync(ctx context.Context) <-chan error {
	if ctx == nil {
		ctx = context.Background()
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- s.closeWith(callerContext(ctx))
	}()

	return done
}

func (s *Scope) closeWith(ctxFor func() (context.Context, context.CancelFunc)) error {
	if s.disposed.Swap(true) {
		return nil
	}

	if s.parent != nil {
		s.parent.detach(s)
	} else {
		s.registry.detach(s)
	}

	s.mu.Lock()
	children := make([]*Scope, 0, len(s.children))
	for child := range s.children {
		children = append(children, child)
	}
	s.children = nil
	s.mu.Unlock()

	var errs []error
	for _, child := range children {
		if err := child.closeWith(ctxFor); err != nil {
			errs = append(errs, fmt.Errorf("scope %s: %w", child.id, err))
		}
	}

	errs = append(errs, s.lifecycle.dispose(ctxFor)...)

	s.mu.Lock()
	s.slots = make(map[*Descriptor]*instanceSlot)
	s.mu.Unlock()

	s.registry.logger.Debug("scope closed",
		zap.String("scope", s.id),
		zap.Int("children", len(children)),
		zap.Int("errors", len(errs)))

	if len(errs) > 0 {
		return DisposalError{Context: "scope", Errors: errs}
	}

	return nil
}

func (s *Scope) detach(child *Scope) {
	s.mu.Lock()
	delete(s.children, child)
	s.mu.Unlock()
}
