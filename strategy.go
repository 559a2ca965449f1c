package godi

import "reflect"

// Resolver resolves services on behalf of a factory. Scope implements it
// for top-level calls; factories receive one bound to the call that is
// constructing them, which carries the in-flight chain used for cycle
// detection. A Resolver handed to a factory must not be retained or used
// from other goroutines after the factory returns.
type Resolver interface {
	// GetService resolves the last registration for serviceType.
	GetService(serviceType reflect.Type) (any, error)

	// GetServices resolves every registration for serviceType in
	// registration order.
	GetServices(serviceType reflect.Type) ([]any, error)

	// Scope returns the scope resolution runs against.
	Scope() *Scope
}

// Activator is the construction collaborator for generic bindings. The
// engine never inspects types; it asks the Activator for type arguments
// and factories of closed generic types.
type Activator interface {
	// TypeArguments returns the type arguments closed was instantiated with.
	TypeArguments(closed reflect.Type) ([]reflect.Type, error)

	// Decorate returns a factory building the closed decorator type around
	// the already-resolved inner instance.
	Decorate(closed reflect.Type, inner any) (Factory, error)

	// Close returns a factory building the closed service type from the
	// given open implementation.
	Close(closed reflect.Type, implementation GenericDefinition) (Factory, error)
}

// Recipe is what a ConstructorStrategy produces for one constructor.
type Recipe struct {
	ServiceType        reflect.Type
	ImplementationType reflect.Type
	Factory            Factory

	// Instance is set instead of Factory when the constructor was a plain
	// value.
	Instance any

	// Dependencies lists the service types the constructor requires.
	// Optional parameters are left out.
	Dependencies []reflect.Type
}

// ConstructorStrategy turns a constructor into a Recipe. Reflection-based,
// generated and hand-written strategies are interchangeable; the engine
// only ever sees the resulting Factory.
type ConstructorStrategy interface {
	Describe(constructor any) (Recipe, error)
}
