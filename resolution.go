package godi

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var _ Resolver = (*resolution)(nil)

// frame is one service under construction in a resolution.
type frame struct {
	serviceType reflect.Type
	lifetime    Lifetime
}

// resolution is one logical resolution call: a top-level GetService or
// GetServices and every nested resolution its factories perform. It holds
// the in-flight set used for cycle detection and is only ever used by the
// goroutine that started the call.
type resolution struct {
	scope  *Scope
	frames []frame

	// waitingOn is the slot this call is blocked on, guarded by
	// Registry.waitMu.
	waitingOn *instanceSlot
}

func newResolution(s *Scope) *resolution {
	return &resolution{scope: s}
}

// GetService implements Resolver.
func (r *resolution) GetService(serviceType reflect.Type) (any, error) {
	return r.scope.resolve(r, serviceType)
}

// GetServices implements Resolver.
func (r *resolution) GetServices(serviceType reflect.Type) ([]any, error) {
	return r.scope.resolveAll(r, serviceType)
}

// Scope implements Resolver.
func (r *resolution) Scope() *Scope {
	return r.scope
}

// inFlight reports whether serviceType is currently being constructed.
func (r *resolution) inFlight(serviceType reflect.Type) bool {
	return slices.ContainsFunc(r.frames, func(f frame) bool {
		return f.serviceType == serviceType
	})
}

// enter pushes a frame and returns the function that pops it.
func (r *resolution) enter(serviceType reflect.Type, lifetime Lifetime) func() {
	r.frames = append(r.frames, frame{serviceType: serviceType, lifetime: lifetime})
	return func() {
		r.frames = r.frames[:len(r.frames)-1]
	}
}

// chain returns the types under construction, oldest first.
func (r *resolution) chain() []reflect.Type {
	chain := make([]reflect.Type, len(r.frames))
	for i, f := range r.frames {
		chain[i] = f.serviceType
	}
	return chain
}

// singletonFrame returns the innermost Singleton under construction.
func (r *resolution) singletonFrame() (frame, bool) {
	for i := len(r.frames) - 1; i >= 0; i-- {
		if r.frames[i].lifetime == Singleton {
			return r.frames[i], true
		}
	}
	return frame{}, false
}

// cycleError builds the error for serviceType being requested again.
func (r *resolution) cycleError(serviceType reflect.Type) error {
	chain := r.chain()
	if i := slices.Index(chain, serviceType); i >= 0 {
		chain = chain[i:]
	}
	return CircularDependencyError{Chain: append(chain, serviceType)}
}

// instanceBox lets a nil instance be published.
type instanceBox struct {
	value any
}

// instanceSlot is an exactly-once publication cell for a Singleton or
// Scoped instance. A failed construction leaves the slot empty so the next
// caller retries.
type instanceSlot struct {
	value atomic.Pointer[instanceBox]

	// guarded by Registry.waitMu
	owner *resolution
	done  chan struct{}
}

func (s *instanceSlot) load() (any, bool) {
	if box := s.value.Load(); box != nil {
		return box.value, true
	}
	return nil, false
}

// acquire returns the slot's instance, building it with build when the
// slot is empty. Concurrent callers wait for the call that owns the
// construction. Before waiting, the wait-for graph is checked so that two
// calls building each other's dependencies fail with a cycle instead of
// deadlocking.
func (reg *Registry) acquire(slot *instanceSlot, res *resolution, serviceType reflect.Type, build func() (any, error)) (any, error) {
	for {
		if v, ok := slot.load(); ok {
			return v, nil
		}

		reg.waitMu.Lock()
		if v, ok := slot.load(); ok {
			reg.waitMu.Unlock()
			return v, nil
		}

		owner := slot.owner
		if owner == nil {
			slot.owner = res
			slot.done = make(chan struct{})
			reg.waitMu.Unlock()

			return reg.buildInto(slot, build)
		}

		if err := waitCycle(owner, res, serviceType); err != nil {
			reg.waitMu.Unlock()
			return nil, err
		}

		res.waitingOn = slot
		done := slot.done
		reg.waitMu.Unlock()

		<-done

		reg.waitMu.Lock()
		res.waitingOn = nil
		reg.waitMu.Unlock()
	}
}

func (reg *Registry) buildInto(slot *instanceSlot, build func() (any, error)) (instance any, err error) {
	published := false
	defer func() {
		reg.waitMu.Lock()
		if published {
			slot.value.Store(&instanceBox{value: instance})
		}
		close(slot.done)
		slot.owner = nil
		slot.done = nil
		reg.waitMu.Unlock()
	}()

	instance, err = build()
	if err != nil {
		return nil, err
	}

	published = true
	return instance, nil
}

// waitCycle walks the wait-for graph from owner. Reaching res means res
// would wait on itself. Must be called with Registry.waitMu held; every
// resolution visited is blocked, so its frames are stable.
func waitCycle(owner, res *resolution, serviceType reflect.Type) error {
	for o := owner; o != nil; {
		if o == res {
			return CircularDependencyError{Chain: joinChains(res, owner, serviceType)}
		}
		if o.waitingOn == nil {
			return nil
		}
		o = o.waitingOn.owner
	}
	return nil
}

// joinChains renders the cycle formed by res waiting on serviceType, which
// owner is constructing, while owner transitively waits on res.
func joinChains(res, owner *resolution, serviceType reflect.Type) []reflect.Type {
	chain := append(res.chain(), serviceType)

	theirs := owner.chain()
	start := slices.Index(theirs, serviceType)
	if start < 0 || owner == res {
		return chain
	}

	for _, t := range theirs[start+1:] {
		chain = append(chain, t)
		if res.inFlight(t) {
			break
		}
	}

	return chain
}

// construct invokes the descriptor's factory, converting panics and
// wrapping failures.
func (s *Scope) construct(res *resolution, d *Descriptor, serviceType reflect.Type) (instance any, err error) {
	if d.Factory == nil {
		return d.Instance, nil
	}

	logger := s.registry.logger
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			err = ConstructionError{
				ServiceType: serviceType,
				Lifetime:    d.Lifetime,
				Cause:       ConstructorPanicError{ServiceType: serviceType, Panic: p, Stack: debug.Stack()},
			}
			instance = nil
		}

		if err != nil {
			logger.Debug("construction failed",
				zap.Stringer("service", typeStringer{serviceType}),
				zap.Stringer("lifetime", d.Lifetime),
				zap.Error(err))
			return
		}

		logger.Debug("constructed",
			zap.Stringer("service", typeStringer{serviceType}),
			zap.Stringer("lifetime", d.Lifetime),
			zap.String("scope", s.id),
			zap.Duration("duration", time.Since(start)))
	}()

	instance, err = d.Factory(res)
	if err != nil {
		if _, ok := err.(engineError); ok {
			return nil, err
		}

		return nil, ConstructionError{ServiceType: serviceType, Lifetime: d.Lifetime, Cause: err}
	}

	return instance, nil
}

// typeStringer defers type formatting until a log entry is written.
type typeStringer struct {
	t reflect.Type
}

func (ts typeStringer) String() string {
	return formatType(ts.t)
}

// noDescriptorError builds the not-found error for serviceType.
func (reg *Registry) noDescriptorError(serviceType reflect.Type, cause error) error {
	if cause == nil {
		cause = ErrServiceNotFound
	} else {
		cause = fmt.Errorf("%w: %w", ErrServiceNotFound, cause)
	}

	return ResolutionError{
		ServiceType: serviceType,
		Cause:       cause,
		Available:   reg.registeredTypes(),
	}
}
