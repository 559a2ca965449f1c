// Package godi is a dependency injection resolution engine for Go
// applications. It builds object graphs on demand from registered
// descriptors and manages the lifetime of everything it builds.
//
// # Overview
//
// The engine is made of three parts:
//   - Descriptor: what to build, how, and for how long it lives
//   - Registry: descriptors by service type; owns every Singleton
//   - Scope: a resolution context with its own cache of Scoped instances
//
// The engine never inspects constructors. It invokes the Factory it is
// given; turning constructors into factories is the job of a
// ConstructorStrategy such as activator.Reflect.
//
// # Basic Usage
//
// Register descriptors, freeze the registry, create a scope and resolve:
//
//	reg := godi.NewRegistry(godi.WithLogger(logger))
//	reg.Register(godi.Describe(godi.Singleton, func(r godi.Resolver) (Logger, error) {
//	    return NewConsoleLogger(), nil
//	}))
//	reg.Register(godi.Describe(godi.Scoped, func(r godi.Resolver) (*UserService, error) {
//	    logger, err := godi.Resolve[Logger](r)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return NewUserService(logger), nil
//	}))
//	reg.Freeze()
//	defer reg.Close()
//
//	scope, err := reg.CreateScope()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer scope.Close()
//
//	users, err := godi.Resolve[*UserService](scope)
//
// A Collection offers the same through constructors:
//
//	services := godi.NewCollection(activator.NewReflect())
//	services.AddSingleton(NewConsoleLogger, godi.As(new(Logger)))
//	services.AddScoped(NewUserService)
//
//	reg, err := services.Build()
//
// # Service Lifetimes
//
//   - Singleton: one instance per Registry, built at most once
//   - Scoped: one instance per Scope, built at most once per scope
//   - Transient: a new instance on every request
//
// Concurrent requests for a Singleton or Scoped service wait for the first
// construction and share its result. A failed construction is not cached;
// the next request retries it.
//
// # Multiple Registrations
//
// GetService returns the last registration for a type. GetServices returns
// all of them in registration order. With no registration GetServices fails
// like GetService unless WithEmptyServicesPolicy(AllowEmpty) is set.
//
// # Circular Dependencies
//
// Each top-level call tracks the services it is constructing. Requesting
// one of them again fails with a CircularDependencyError listing the chain:
//
//	circular dependency detected: A -> B -> C -> A
//
// Factories must resolve their dependencies through the Resolver they
// receive, never through the Scope directly, or the chain is lost. Calls on
// different goroutines that would wait on each other's constructions also
// fail with a CircularDependencyError instead of deadlocking.
//
// # Generic Bindings
//
// A DecoratorBinding makes every closing of a generic decorator resolvable:
// the wrapped service is resolved first and the decorator is built around
// it. An OpenGenericBinding makes every closing of a generic service
// resolvable. Both need an Activator, such as activator.Table.
//
// # Disposal
//
// Instances implementing Disposable or DisposableWithContext are released
// when their owner closes: Scoped instances with their Scope, Singletons
// with the Registry. Release runs in reverse order of creation and happens
// exactly once. Close blocks on DisposableWithContext instances with a
// context bounded by WithDisposeTimeout; CloseAsync passes its own context.
//
// # Configuration
//
// Registry behavior is set with functional options. OptionsFromEnv reads the
// same settings from GODI_* environment variables and .env files.
package godi
