package godi

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Collection is the fluent registration surface layered over
// Registry.Register. It records registrations and turns them into a frozen
// Registry when built.
//
// Constructors passed to AddSingleton, AddScoped and AddTransient are
// turned into factories by the collection's ConstructorStrategy; the
// engine only ever sees the resulting factory.
//
// Collection should be configured in a single goroutine before Build.
//
// Example:
//
//	collection := godi.NewCollection(activator.NewReflect())
//	collection.AddSingleton(NewLogger)
//	collection.AddScoped(NewDatabase)
//
//	reg, err := collection.Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer reg.Close()
type Collection interface {
	// Build creates a frozen Registry from the recorded registrations.
	Build(opts ...Option) (*Registry, error)

	// AddModules applies one or more module configurations to the collection.
	AddModules(modules ...ModuleOption) error

	// AddSingleton registers a constructor with singleton lifetime.
	AddSingleton(constructor any, opts ...AddOption) error

	// AddScoped registers a constructor with scoped lifetime.
	AddScoped(constructor any, opts ...AddOption) error

	// AddTransient registers a constructor with transient lifetime.
	AddTransient(constructor any, opts ...AddOption) error

	// AddInstance registers a pre-built singleton.
	AddInstance(instance any, opts ...AddOption) error

	// AddFactory registers a factory for serviceType.
	AddFactory(serviceType reflect.Type, lifetime Lifetime, factory Factory) error

	// Add registers a descriptor template. The descriptor is copied when
	// the collection is built, so it can be built more than once.
	Add(d *Descriptor) error

	// Decorate binds every closing of a generic decorator type.
	Decorate(definition GenericDefinition, lifetime Lifetime, wrappedIndex int) error

	// AddOpenGeneric binds every closing of a generic service type to the
	// matching closing of a generic implementation.
	AddOpenGeneric(service, implementation GenericDefinition, lifetime Lifetime) error

	// Contains checks if a service type is registered.
	Contains(serviceType reflect.Type) bool

	// ToSlice returns a copy of all recorded descriptor templates.
	ToSlice() []*Descriptor

	// Count returns the number of recorded descriptors.
	Count() int
}

type collection struct {
	mu sync.RWMutex

	strategy     ConstructorStrategy
	descriptors  []*Descriptor
	decorators   []DecoratorBinding
	openGenerics []OpenGenericBinding
}

// NewCollection creates an empty Collection. strategy turns constructors
// into factories; it may be nil when only Add, AddFactory and AddInstance
// are used.
func NewCollection(strategy ConstructorStrategy) Collection {
	return &collection{strategy: strategy}
}

// Build creates a Registry with opts, registers everything recorded and
// freezes it. With WithDependencyValidation the registry is validated and
// closed again if validation fails.
func (c *collection) Build(opts ...Option) (*Registry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	reg := NewRegistry(opts...)

	for _, d := range copyTemplates(c.descriptors) {
		if err := reg.Register(d); err != nil {
			return nil, err
		}
	}

	for _, b := range c.decorators {
		if err := reg.RegisterDecorator(b); err != nil {
			return nil, err
		}
	}

	for _, b := range c.openGenerics {
		if err := reg.RegisterOpenGeneric(b); err != nil {
			return nil, err
		}
	}

	reg.Freeze()

	if reg.opts.validateGraph {
		if err := reg.Validate(); err != nil {
			if closeErr := reg.Close(); closeErr != nil {
				reg.logger.Warn("failed to close registry after validation error", zap.Error(closeErr))
			}
			return nil, err
		}
	}

	return reg, nil
}

func copyDescriptor(d *Descriptor) *Descriptor {
	return &Descriptor{
		ServiceType:        d.ServiceType,
		ImplementationType: d.ImplementationType,
		Lifetime:           d.Lifetime,
		Factory:            d.Factory,
		Instance:           d.Instance,
		Dependencies:       slices.Clone(d.Dependencies),
		target:             d.target,
		release:            d.release,
	}
}

// copyTemplates copies templates and points every forwarding descriptor at
// the copy of its target.
func copyTemplates(templates []*Descriptor) []*Descriptor {
	copies := make([]*Descriptor, len(templates))
	byTemplate := make(map[*Descriptor]*Descriptor, len(templates))
	for i, template := range templates {
		copies[i] = copyDescriptor(template)
		byTemplate[template] = copies[i]
	}

	for _, d := range copies {
		if d.target != nil {
			d.target = byTemplate[d.target]
		}
	}

	return copies
}

// AddModules applies one or more module configurations to the collection.
func (c *collection) AddModules(modules ...ModuleOption) error {
	for _, module := range modules {
		if module == nil {
			continue
		}

		if err := module(c); err != nil {
			return err
		}
	}

	return nil
}

// AddSingleton adds a singleton service to the collection.
func (c *collection) AddSingleton(constructor any, opts ...AddOption) error {
	return c.addConstructor(constructor, Singleton, opts...)
}

// AddScoped adds a scoped service to the collection.
func (c *collection) AddScoped(constructor any, opts ...AddOption) error {
	return c.addConstructor(constructor, Scoped, opts...)
}

// AddTransient adds a transient service to the collection.
func (c *collection) AddTransient(constructor any, opts ...AddOption) error {
	return c.addConstructor(constructor, Transient, opts...)
}

func (c *collection) addConstructor(constructor any, lifetime Lifetime, opts ...AddOption) error {
	if constructor == nil {
		return RegistrationError{Operation: "add", Cause: ErrConstructorNil}
	}

	if c.strategy == nil {
		return RegistrationError{ServiceType: reflect.TypeOf(constructor), Operation: "add", Cause: ErrNoStrategy}
	}

	recipe, err := c.strategy.Describe(constructor)
	if err != nil {
		return RegistrationError{ServiceType: reflect.TypeOf(constructor), Operation: "add", Cause: err}
	}

	if recipe.Factory == nil && recipe.Instance != nil {
		if lifetime != Singleton {
			return RegistrationError{
				ServiceType: recipe.ServiceType,
				Operation:   "add",
				Cause:       fmt.Errorf("instances can only be registered as Singleton, got %s", lifetime),
			}
		}
	}

	d := &Descriptor{
		ServiceType:        recipe.ServiceType,
		ImplementationType: recipe.ImplementationType,
		Lifetime:           lifetime,
		Factory:            recipe.Factory,
		Instance:           recipe.Instance,
		Dependencies:       recipe.Dependencies,
	}
	if d.ImplementationType == nil {
		d.ImplementationType = d.ServiceType
	}

	return c.addWithOptions(d, opts...)
}

// AddInstance adds a pre-built singleton to the collection.
func (c *collection) AddInstance(instance any, opts ...AddOption) error {
	if instance == nil {
		return RegistrationError{Operation: "add-instance", Cause: ErrConstructorNil}
	}

	return c.addWithOptions(NewInstanceDescriptor(reflect.TypeOf(instance), instance), opts...)
}

// AddFactory adds a factory for serviceType to the collection.
func (c *collection) AddFactory(serviceType reflect.Type, lifetime Lifetime, factory Factory) error {
	return c.Add(NewDescriptor(serviceType, lifetime, factory))
}

// Add records d as a template.
func (c *collection) Add(d *Descriptor) error {
	_, err := c.add(d)
	return err
}

// add records a copy of d and returns the stored template. Instance
// templates get a release claim shared by every registry built from the
// collection, so the instance is released once.
func (c *collection) add(d *Descriptor) (*Descriptor, error) {
	if err := d.Validate(); err != nil {
		var serviceType reflect.Type
		if d != nil {
			serviceType = d.ServiceType
		}
		return nil, RegistrationError{ServiceType: serviceType, Operation: "add", Cause: err}
	}

	template := copyDescriptor(d)
	if template.IsInstance() && template.release == nil {
		template.release = new(atomic.Bool)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.descriptors = append(c.descriptors, template)
	return template, nil
}

// addWithOptions records d, or one descriptor per As interface when the
// option is given. The first interface owns the instance; the others
// target that exact descriptor so every interface shares one instance,
// whatever else is later registered for the first interface.
func (c *collection) addWithOptions(d *Descriptor, opts ...AddOption) error {
	o := &addOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyAddOption(o)
		}
	}

	if err := o.Validate(); err != nil {
		return RegistrationError{ServiceType: d.ServiceType, Operation: "add", Cause: err}
	}

	if len(o.As) == 0 {
		return c.Add(d)
	}

	implType := d.ImplementationType
	if implType == nil {
		implType = d.ServiceType
	}

	ifaces := make([]reflect.Type, 0, len(o.As))
	for _, as := range o.As {
		iface := reflect.TypeOf(as).Elem()
		if !implType.Implements(iface) {
			return RegistrationError{
				ServiceType: d.ServiceType,
				Operation:   "add",
				Cause:       fmt.Errorf("%s does not implement %s", formatType(implType), formatType(iface)),
			}
		}
		ifaces = append(ifaces, iface)
	}

	primary := copyDescriptor(d)
	primary.ServiceType = ifaces[0]
	primary.ImplementationType = implType

	target, err := c.add(primary)
	if err != nil {
		return err
	}

	for _, iface := range ifaces[1:] {
		forward := &Descriptor{
			ServiceType:        iface,
			ImplementationType: implType,
			Lifetime:           target.Lifetime,
			target:             target,
		}

		if _, err := c.add(forward); err != nil {
			return err
		}
	}

	return nil
}

// Decorate records a decorator binding.
func (c *collection) Decorate(definition GenericDefinition, lifetime Lifetime, wrappedIndex int) error {
	b := DecoratorBinding{Definition: definition, Lifetime: lifetime, WrappedIndex: wrappedIndex}
	if err := b.Validate(); err != nil {
		return RegistrationError{Operation: "decorate", Cause: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.decorators {
		if existing.Definition == definition {
			return RegistrationError{
				Operation: "decorate",
				Cause:     DuplicateBindingError{Definition: definition, Kind: "decorator"},
			}
		}
	}

	c.decorators = append(c.decorators, b)
	return nil
}

// AddOpenGeneric records an open-generic binding.
func (c *collection) AddOpenGeneric(service, implementation GenericDefinition, lifetime Lifetime) error {
	b := OpenGenericBinding{Service: service, Implementation: implementation, Lifetime: lifetime}
	if err := b.Validate(); err != nil {
		return RegistrationError{Operation: "add-open-generic", Cause: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.openGenerics {
		if existing.Service == service {
			return RegistrationError{
				Operation: "add-open-generic",
				Cause:     DuplicateBindingError{Definition: service, Kind: "open generic"},
			}
		}
	}

	c.openGenerics = append(c.openGenerics, b)
	return nil
}

// Contains checks if a service type is registered in the collection.
func (c *collection) Contains(serviceType reflect.Type) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, d := range c.descriptors {
		if d.ServiceType == serviceType {
			return true
		}
	}

	if def, ok := GenericDefinitionOf(serviceType); ok {
		for _, b := range c.decorators {
			if b.Definition == def {
				return true
			}
		}
		for _, b := range c.openGenerics {
			if b.Service == def {
				return true
			}
		}
	}

	return false
}

// ToSlice returns a copy of all recorded descriptor templates.
func (c *collection) ToSlice() []*Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return copyTemplates(c.descriptors)
}

// Count returns the number of recorded descriptors.
func (c *collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.descriptors)
}
