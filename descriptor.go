package godi

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

// Factory builds one instance of a service. The Resolver it receives is
// bound to the resolution call that triggered construction; dependencies
// must be resolved through it so cycles are detected.
//
// A factory that closes over a Scope and resolves through it starts a new
// resolution call, so cycles through it go undetected: a Singleton that
// reaches itself that way blocks forever on its own slot, and a Transient
// recurses until the stack overflows.
type Factory func(r Resolver) (any, error)

// Descriptor is a registration record binding a service type to a
// construction recipe and a lifetime.
//
// A Descriptor is immutable once registered, except for its singleton
// slot which is populated at most once. A Descriptor can be registered in
// a single Registry only.
type Descriptor struct {
	// ServiceType is the type callers resolve.
	ServiceType reflect.Type

	// ImplementationType is the concrete type the factory produces. It is
	// informational; the engine never inspects it.
	ImplementationType reflect.Type

	// Lifetime determines instance caching behavior.
	Lifetime Lifetime

	// Factory builds the instance. It is nil only for instance descriptors.
	Factory Factory

	// Instance is a pre-built value. Descriptors carrying an Instance and
	// no Factory are eagerly satisfied singletons.
	Instance any

	// Dependencies lists the service types the factory requires. It is
	// filled in by a ConstructorStrategy and only read by Registry.Validate;
	// resolution never consults it.
	Dependencies []reflect.Type

	// target is set on descriptors that resolve another descriptor's
	// instance, such as the extra interfaces of godi.As.
	target *Descriptor

	// release is shared by copies of one instance template. Only the
	// registry that claims it first releases the instance.
	release *atomic.Bool

	slot       instanceSlot
	registered atomic.Bool
}

// NewDescriptor creates a descriptor that builds serviceType with factory.
func NewDescriptor(serviceType reflect.Type, lifetime Lifetime, factory Factory) *Descriptor {
	return &Descriptor{
		ServiceType:        serviceType,
		ImplementationType: serviceType,
		Lifetime:           lifetime,
		Factory:            factory,
	}
}

// NewInstanceDescriptor creates a singleton descriptor already satisfied by
// instance.
func NewInstanceDescriptor(serviceType reflect.Type, instance any) *Descriptor {
	return &Descriptor{
		ServiceType:        serviceType,
		ImplementationType: reflect.TypeOf(instance),
		Lifetime:           Singleton,
		Instance:           instance,
	}
}

// Describe creates a descriptor for T from a typed factory.
//
// Example:
//
//	d := godi.Describe(godi.Singleton, func(r godi.Resolver) (Logger, error) {
//	    return NewConsoleLogger(), nil
//	})
func Describe[T any](lifetime Lifetime, factory func(r Resolver) (T, error)) *Descriptor {
	d := NewDescriptor(reflect.TypeFor[T](), lifetime, nil)
	if factory != nil {
		d.Factory = func(r Resolver) (any, error) {
			return factory(r)
		}
	}

	return d
}

// Instance creates a singleton descriptor for T satisfied by v.
func Instance[T any](v T) *Descriptor {
	return NewInstanceDescriptor(reflect.TypeFor[T](), v)
}

// IsInstance reports whether the descriptor carries a pre-built instance.
func (d *Descriptor) IsInstance() bool {
	return d.Factory == nil && d.Instance != nil
}

// Validate checks the descriptor's configuration.
func (d *Descriptor) Validate() error {
	if d == nil {
		return ValidationError{Cause: ErrDescriptorNil}
	}

	if d.ServiceType == nil {
		return ValidationError{Cause: ErrServiceTypeNil}
	}

	if !d.Lifetime.IsValid() {
		return ValidationError{ServiceType: d.ServiceType, Cause: LifetimeError{Value: d.Lifetime}}
	}

	if d.Factory == nil && d.target == nil {
		if d.Instance == nil {
			return ValidationError{ServiceType: d.ServiceType, Cause: ErrFactoryNil}
		}

		if d.Lifetime != Singleton {
			return ValidationError{
				ServiceType: d.ServiceType,
				Cause:       fmt.Errorf("instance descriptors must be Singleton, got %s", d.Lifetime),
			}
		}

		if it := reflect.TypeOf(d.Instance); !it.AssignableTo(d.ServiceType) {
			return ValidationError{
				ServiceType: d.ServiceType,
				Cause:       TypeMismatchError{Expected: d.ServiceType, Actual: it, Context: "instance registration"},
			}
		}
	}

	return nil
}

// String returns a short description used in logs.
func (d *Descriptor) String() string {
	return fmt.Sprintf("%s (%s)", formatType(d.ServiceType), d.Lifetime)
}
