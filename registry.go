package godi

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry maps service types to their descriptors and owns every
// Singleton it creates. It accepts registrations until it is frozen; after
// Freeze every lookup reads an immutable snapshot without locking.
//
// A Registry does not resolve services itself. Create a Scope and resolve
// from it:
//
//	reg := godi.NewRegistry()
//	_ = reg.Register(godi.Describe(godi.Singleton, NewLogger))
//	reg.Freeze()
//
//	scope, err := reg.CreateScope()
//	if err != nil {
//	    return err
//	}
//	defer scope.Close()
//
//	logger, err := godi.Resolve[Logger](scope)
type Registry struct {
	id     string
	opts   *options
	logger *zap.Logger

	// open phase, guarded by mu
	mu           sync.Mutex
	descriptors  map[reflect.Type][]*Descriptor
	types        []reflect.Type
	decorators   map[GenericDefinition]DecoratorBinding
	openGenerics map[GenericDefinition]OpenGenericBinding

	// frozen phase
	frozen atomic.Pointer[snapshot]

	// closed generic descriptors, keyed by closed reflect.Type
	closedGenerics sync.Map

	// waitMu guards the wait-for graph: instanceSlot owner and done, and
	// resolution.waitingOn.
	waitMu sync.Mutex

	singletons *lifecycleManager

	scopesMu sync.Mutex
	scopes   map[*Scope]struct{}

	disposed atomic.Bool
}

// snapshot is the immutable lookup structure published by Freeze.
type snapshot struct {
	descriptors  map[reflect.Type][]*Descriptor
	types        []reflect.Type
	decorators   map[GenericDefinition]DecoratorBinding
	openGenerics map[GenericDefinition]OpenGenericBinding
}

// NewRegistry creates an empty, open registry.
func NewRegistry(opts ...Option) *Registry {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	reg := &Registry{
		id:           uuid.NewString(),
		opts:         o,
		descriptors:  make(map[reflect.Type][]*Descriptor),
		decorators:   make(map[GenericDefinition]DecoratorBinding),
		openGenerics: make(map[GenericDefinition]OpenGenericBinding),
		scopes:       make(map[*Scope]struct{}),
	}

	reg.logger = o.logger.With(zap.String("registry", reg.id))
	reg.singletons = newLifecycleManager(reg.logger)

	return reg
}

// ID returns the unique identifier of the registry.
func (reg *Registry) ID() string {
	return reg.id
}

// Register appends d to the descriptors of its service type. It fails
// with ErrRegistryFrozen after Freeze and ErrRegistryDisposed after Close.
// Register is safe for concurrent use.
//
// A descriptor carrying a pre-built Instance is published immediately and
// released when the registry is closed.
func (reg *Registry) Register(d *Descriptor) error {
	if err := d.Validate(); err != nil {
		var serviceType reflect.Type
		if d != nil {
			serviceType = d.ServiceType
		}
		return RegistrationError{ServiceType: serviceType, Operation: "register", Cause: err}
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if err := reg.checkOpen(); err != nil {
		return RegistrationError{ServiceType: d.ServiceType, Operation: "register", Cause: err}
	}

	if !d.registered.CompareAndSwap(false, true) {
		return RegistrationError{ServiceType: d.ServiceType, Operation: "register", Cause: ErrDescriptorInUse}
	}

	if d.IsInstance() {
		d.slot.value.Store(&instanceBox{value: d.Instance})

		// Copies of one collection template share a claim; the first
		// registry built from it owns the instance.
		if d.release == nil || d.release.CompareAndSwap(false, true) {
			reg.singletons.track(d.Instance)
		}
	}

	if _, ok := reg.descriptors[d.ServiceType]; !ok {
		reg.types = append(reg.types, d.ServiceType)
	}
	reg.descriptors[d.ServiceType] = append(reg.descriptors[d.ServiceType], d)

	reg.logger.Debug("registered",
		zap.Stringer("service", typeStringer{d.ServiceType}),
		zap.Stringer("lifetime", d.Lifetime),
		zap.Int("index", len(reg.descriptors[d.ServiceType])-1))

	return nil
}

// RegisterDecorator binds every closing of b.Definition to "resolve the
// wrapped service, then build the decorator around it". Only one decorator
// binding per generic definition is allowed.
func (reg *Registry) RegisterDecorator(b DecoratorBinding) error {
	if err := b.Validate(); err != nil {
		return RegistrationError{Operation: "register-decorator", Cause: err}
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if err := reg.checkOpen(); err != nil {
		return RegistrationError{Operation: "register-decorator", Cause: err}
	}

	if _, ok := reg.decorators[b.Definition]; ok {
		return RegistrationError{
			Operation: "register-decorator",
			Cause:     DuplicateBindingError{Definition: b.Definition, Kind: "decorator"},
		}
	}

	reg.decorators[b.Definition] = b
	reg.logger.Debug("registered decorator",
		zap.Stringer("definition", b.Definition),
		zap.Stringer("lifetime", b.Lifetime))

	return nil
}

// RegisterOpenGeneric binds every closing of b.Service to a closing of
// b.Implementation built by the registry's Activator.
func (reg *Registry) RegisterOpenGeneric(b OpenGenericBinding) error {
	if err := b.Validate(); err != nil {
		return RegistrationError{Operation: "register-open-generic", Cause: err}
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if err := reg.checkOpen(); err != nil {
		return RegistrationError{Operation: "register-open-generic", Cause: err}
	}

	if _, ok := reg.openGenerics[b.Service]; ok {
		return RegistrationError{
			Operation: "register-open-generic",
			Cause:     DuplicateBindingError{Definition: b.Service, Kind: "open generic"},
		}
	}

	reg.openGenerics[b.Service] = b
	reg.logger.Debug("registered open generic",
		zap.Stringer("service", b.Service),
		zap.Stringer("implementation", b.Implementation),
		zap.Stringer("lifetime", b.Lifetime))

	return nil
}

// checkOpen must be called with mu held.
func (reg *Registry) checkOpen() error {
	if reg.disposed.Load() {
		return ErrRegistryDisposed
	}

	if reg.frozen.Load() != nil {
		return ErrRegistryFrozen
	}

	return nil
}

// Freeze stops further registrations and publishes an immutable snapshot
// that lookups read without locking. Calling Freeze again has no effect.
func (reg *Registry) Freeze() {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.frozen.Load() != nil {
		return
	}

	snap := &snapshot{
		descriptors:  make(map[reflect.Type][]*Descriptor, len(reg.descriptors)),
		types:        slices.Clone(reg.types),
		decorators:   make(map[GenericDefinition]DecoratorBinding, len(reg.decorators)),
		openGenerics: make(map[GenericDefinition]OpenGenericBinding, len(reg.openGenerics)),
	}

	for t, ds := range reg.descriptors {
		snap.descriptors[t] = slices.Clip(slices.Clone(ds))
	}
	for def, b := range reg.decorators {
		snap.decorators[def] = b
	}
	for def, b := range reg.openGenerics {
		snap.openGenerics[def] = b
	}

	reg.frozen.Store(snap)
	reg.logger.Debug("frozen",
		zap.Int("types", len(snap.types)),
		zap.Int("decorators", len(snap.decorators)),
		zap.Int("openGenerics", len(snap.openGenerics)))
}

// IsFrozen reports whether Freeze has been called.
func (reg *Registry) IsFrozen() bool {
	return reg.frozen.Load() != nil
}

// IsDisposed reports whether Close has been called.
func (reg *Registry) IsDisposed() bool {
	return reg.disposed.Load()
}

// Descriptors returns the descriptors registered directly for serviceType,
// in registration order.
func (reg *Registry) Descriptors(serviceType reflect.Type) []*Descriptor {
	return slices.Clone(reg.descriptorsFor(serviceType))
}

// Contains reports whether serviceType can be resolved, either directly or
// through a generic binding.
func (reg *Registry) Contains(serviceType reflect.Type) bool {
	if serviceType == nil {
		return false
	}

	if len(reg.descriptorsFor(serviceType)) > 0 {
		return true
	}

	def, ok := GenericDefinitionOf(serviceType)
	if !ok {
		return false
	}

	_, hasDecorator, _, hasOpenGeneric := reg.bindingsFor(def)
	return hasDecorator || hasOpenGeneric
}

// Count returns the number of registered descriptors.
func (reg *Registry) Count() int {
	n := 0
	if snap := reg.frozen.Load(); snap != nil {
		for _, ds := range snap.descriptors {
			n += len(ds)
		}
		return n
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, ds := range reg.descriptors {
		n += len(ds)
	}
	return n
}

// descriptorsFor returns the direct descriptors of serviceType. The result
// must not be modified.
func (reg *Registry) descriptorsFor(serviceType reflect.Type) []*Descriptor {
	if snap := reg.frozen.Load(); snap != nil {
		return snap.descriptors[serviceType]
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	return slices.Clone(reg.descriptors[serviceType])
}

func (reg *Registry) bindingsFor(def GenericDefinition) (DecoratorBinding, bool, OpenGenericBinding, bool) {
	if snap := reg.frozen.Load(); snap != nil {
		dec, hasDecorator := snap.decorators[def]
		og, hasOpenGeneric := snap.openGenerics[def]
		return dec, hasDecorator, og, hasOpenGeneric
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	dec, hasDecorator := reg.decorators[def]
	og, hasOpenGeneric := reg.openGenerics[def]
	return dec, hasDecorator, og, hasOpenGeneric
}

func (reg *Registry) registeredTypes() []reflect.Type {
	if snap := reg.frozen.Load(); snap != nil {
		return snap.types
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	return slices.Clone(reg.types)
}

// find returns the descriptors serving serviceType: direct registrations
// first, then a decorator binding, then an open-generic binding. Closed
// generic descriptors are synthesized once per closed type.
func (reg *Registry) find(serviceType reflect.Type) ([]*Descriptor, error) {
	if ds := reg.descriptorsFor(serviceType); len(ds) > 0 {
		return ds, nil
	}

	def, ok := GenericDefinitionOf(serviceType)
	if !ok {
		return nil, nil
	}

	if cached, ok := reg.closedGenerics.Load(serviceType); ok {
		return []*Descriptor{cached.(*Descriptor)}, nil
	}

	dec, hasDecorator, og, hasOpenGeneric := reg.bindingsFor(def)
	if !hasDecorator && !hasOpenGeneric {
		return nil, nil
	}

	a := reg.opts.activator
	if a == nil {
		return nil, ErrNoActivator
	}

	var d *Descriptor
	if hasDecorator {
		d = decoratorDescriptor(serviceType, dec, a)
	} else {
		d = openGenericDescriptor(serviceType, og, a)
	}

	actual, _ := reg.closedGenerics.LoadOrStore(serviceType, d)
	return []*Descriptor{actual.(*Descriptor)}, nil
}

// CreateScope creates a root-level scope.
func (reg *Registry) CreateScope() (*Scope, error) {
	reg.scopesMu.Lock()
	defer reg.scopesMu.Unlock()

	if reg.disposed.Load() {
		return nil, ErrRegistryDisposed
	}

	s := newScope(reg, nil)
	reg.scopes[s] = struct{}{}

	return s, nil
}

func (reg *Registry) detach(s *Scope) {
	reg.scopesMu.Lock()
	delete(reg.scopes, s)
	reg.scopesMu.Unlock()
}

// Close closes every live scope and then releases every Singleton the
// registry created, in reverse order of creation. Instances that only
// implement DisposableWithContext are released with a context bounded by
// WithDisposeTimeout. Calling Close more than once has no effect.
func (reg *Registry) Close() error {
	return reg.closeWith(blockingContext(reg.opts.disposeTimeout))
}

// CloseAsync closes the registry on a separate goroutine, passing ctx to
// every DisposableWithContext. The returned channel receives the result
// and is then closed.
func (reg *Registry) CloseAsync(ctx context.Context) <-chan error {
	if ctx == nil {
		ctx = context.Background()
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- reg.closeWith(callerContext(ctx))
	}()

	return done
}

func (reg *Registry) closeWith(ctxFor func() (context.Context, context.CancelFunc)) error {
	if reg.disposed.Swap(true) {
		return nil
	}

	reg.scopesMu.Lock()
	scopes := make([]*Scope, 0, len(reg.scopes))
	for s := range reg.scopes {
		scopes = append(scopes, s)
	}
	reg.scopes = nil
	reg.scopesMu.Unlock()

	var errs []error
	for _, s := range scopes {
		if err := s.closeWith(ctxFor); err != nil {
			errs = append(errs, fmt.Errorf("scope %s: %w", s.ID(), err))
		}
	}

	errs = append(errs, reg.singletons.dispose(ctxFor)...)

	reg.logger.Debug("closed", zap.Int("scopes", len(scopes)), zap.Int("errors", len(errs)))

	if len(errs) > 0 {
		return DisposalError{Context: "registry", Errors: errs}
	}

	return nil
}
