package godi

import (
	"reflect"

	"go.uber.org/zap"
)

// Validate checks the registrations against each other without building
// anything. Every declared dependency must be registered and the
// dependency graph must be acyclic. With lifetime validation on, no
// Singleton may reach a Scoped service, directly or through Transients.
//
// Only dependencies recorded in Descriptor.Dependencies are known, so
// plain factory functions are leaves of the graph. Errors are reported for
// the first offending service in registration order.
func (reg *Registry) Validate() error {
	if reg.disposed.Load() {
		return ErrRegistryDisposed
	}

	types := reg.registeredTypes()
	g := newDependencyGraph()

	for _, t := range types {
		ds := reg.descriptorsFor(t)
		for _, d := range ds {
			for _, dep := range forwarded(d).Dependencies {
				if !reg.Contains(dep) {
					return ValidationError{ServiceType: t, Cause: reg.noDescriptorError(dep, nil)}
				}
			}
		}

		g.add(t, forwarded(ds[len(ds)-1]).Dependencies)
	}

	if err := g.detectCycles(); err != nil {
		return err
	}

	if reg.opts.validateLifetimes {
		for _, t := range types {
			for _, d := range reg.descriptorsFor(t) {
				d = forwarded(d)
				if d.Lifetime != Singleton {
					continue
				}

				seen := map[reflect.Type]bool{t: true}
				if err := reg.checkCaptured(t, d.Dependencies, seen); err != nil {
					return err
				}
			}
		}
	}

	reg.logger.Debug("dependency graph validated", zap.Int("services", len(types)))
	return nil
}

// checkCaptured reports the first Scoped service the Singleton
// serviceType would capture through deps.
func (reg *Registry) checkCaptured(serviceType reflect.Type, deps []reflect.Type, seen map[reflect.Type]bool) error {
	for _, dep := range deps {
		if seen[dep] {
			continue
		}
		seen[dep] = true

		lifetime, next := reg.staticLifetime(dep)
		switch lifetime {
		case Scoped:
			return LifetimeConflictError{
				ServiceType:        serviceType,
				ServiceLifetime:    Singleton,
				DependencyType:     dep,
				DependencyLifetime: Scoped,
			}
		case Transient:
			if err := reg.checkCaptured(serviceType, next, seen); err != nil {
				return err
			}
		}
	}

	return nil
}

// staticLifetime returns the lifetime and declared dependencies GetService
// would use for serviceType without synthesizing generic descriptors.
// Unknown types report Singleton, which ends the walk.
func (reg *Registry) staticLifetime(serviceType reflect.Type) (Lifetime, []reflect.Type) {
	if ds := reg.descriptorsFor(serviceType); len(ds) > 0 {
		d := forwarded(ds[len(ds)-1])
		return d.Lifetime, d.Dependencies
	}

	if def, ok := GenericDefinitionOf(serviceType); ok {
		dec, hasDecorator, og, hasOpenGeneric := reg.bindingsFor(def)
		switch {
		case hasDecorator:
			return dec.Lifetime, nil
		case hasOpenGeneric:
			return og.Lifetime, nil
		}
	}

	return Singleton, nil
}

// forwarded returns the descriptor d resolves to.
func forwarded(d *Descriptor) *Descriptor {
	for d.target != nil {
		d = d.target
	}
	return d
}
