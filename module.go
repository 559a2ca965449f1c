package godi

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
)

// ModuleOption represents a registration action within a module.
type ModuleOption func(Collection) error

// NewModule creates a new module with the given name and builders.
// Modules are a way to group related service registrations together.
//
// Example:
//
//	var DatabaseModule = godi.NewModule("database",
//	    godi.AddSingleton(NewDatabaseConnection),
//	    godi.AddScoped(NewUserRepository),
//	)
//
//	var AppModule = godi.NewModule("app",
//	    DatabaseModule,
//	    godi.AddScoped(NewOrderService),
//	)
func NewModule(name string, builders ...ModuleOption) ModuleOption {
	return func(c Collection) error {
		for _, builder := range builders {
			if builder == nil {
				continue
			}

			if err := builder(c); err != nil {
				return ModuleError{Module: name, Cause: err}
			}
		}

		return nil
	}
}

// AddSingleton creates a ModuleOption for adding a singleton service.
func AddSingleton(constructor any, opts ...AddOption) ModuleOption {
	return func(c Collection) error {
		return c.AddSingleton(constructor, opts...)
	}
}

// AddScoped creates a ModuleOption for adding a scoped service.
func AddScoped(constructor any, opts ...AddOption) ModuleOption {
	return func(c Collection) error {
		return c.AddScoped(constructor, opts...)
	}
}

// AddTransient creates a ModuleOption for adding a transient service.
func AddTransient(constructor any, opts ...AddOption) ModuleOption {
	return func(c Collection) error {
		return c.AddTransient(constructor, opts...)
	}
}

// AddInstance creates a ModuleOption for adding a pre-built singleton.
func AddInstance(instance any, opts ...AddOption) ModuleOption {
	return func(c Collection) error {
		return c.AddInstance(instance, opts...)
	}
}

// AddDescriptor creates a ModuleOption for adding a descriptor template.
func AddDescriptor(d *Descriptor) ModuleOption {
	return func(c Collection) error {
		return c.Add(d)
	}
}

// AddDecorator creates a ModuleOption for binding a generic decorator.
func AddDecorator(definition GenericDefinition, lifetime Lifetime, wrappedIndex int) ModuleOption {
	return func(c Collection) error {
		return c.Decorate(definition, lifetime, wrappedIndex)
	}
}

// AddOpenGeneric creates a ModuleOption for binding an open generic.
func AddOpenGeneric(service, implementation GenericDefinition, lifetime Lifetime) ModuleOption {
	return func(c Collection) error {
		return c.AddOpenGeneric(service, implementation, lifetime)
	}
}

// An AddOption modifies the default behavior of AddSingleton, AddScoped,
// AddTransient and AddInstance.
type AddOption interface {
	applyAddOption(*addOptions)
}

type addOptions struct {
	As []any
}

func (o *addOptions) Validate() error {
	for _, i := range o.As {
		t := reflect.TypeOf(i)

		if t == nil {
			return errors.New("invalid godi.As(nil): argument must be a pointer to an interface")
		}

		if t.Kind() != reflect.Pointer {
			return fmt.Errorf("invalid godi.As(%v): argument must be a pointer to an interface", t)
		}

		pointingTo := t.Elem()
		if pointingTo.Kind() != reflect.Interface {
			return fmt.Errorf("invalid godi.As(*%v): argument must be a pointer to an interface", pointingTo)
		}
	}
	return nil
}

// As is an AddOption that specifies that the value produced by the
// constructor implements one or more interfaces and is registered as those
// interfaces instead of as itself.
//
// As expects one or more pointers to the implemented interfaces. For
// example, the following makes io.Reader and io.Writer available but not
// *bytes.Buffer:
//
//	c.AddSingleton(newBuffer, godi.As(new(io.Reader), new(io.Writer)))
//
// Every interface resolves to the same instance within the constructor's
// lifetime.
func As(i ...any) AddOption {
	return addAsOption(i)
}

type addAsOption []any

func (o addAsOption) String() string {
	buf := bytes.NewBufferString("As(")
	for i, iface := range o {
		if i > 0 {
			buf.WriteString(", ")
		}
		if t := reflect.TypeOf(iface); t != nil && t.Kind() == reflect.Pointer {
			buf.WriteString(t.Elem().String())
		} else {
			fmt.Fprintf(buf, "%v", iface)
		}
	}
	buf.WriteString(")")
	return buf.String()
}

func (o addAsOption) applyAddOption(opts *addOptions) {
	opts.As = append(opts.As, o...)
}
