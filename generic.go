package godi

import (
	"fmt"
	"reflect"
	"strings"
)

// GenericDefinition identifies an uninstantiated generic type, such as
// Repository in Repository[User]. Go has no runtime value for an open
// generic, so the definition is derived from a closed instantiation.
type GenericDefinition struct {
	PkgPath string
	Name    string
	Pointer bool
}

// GenericDefinitionOf returns the definition t was instantiated from. It
// reports false when t is not an instantiated generic type. A pointer to an
// instantiated generic struct yields a definition with Pointer set.
func GenericDefinitionOf(t reflect.Type) (GenericDefinition, bool) {
	if t == nil {
		return GenericDefinition{}, false
	}

	pointer := false
	if t.Kind() == reflect.Pointer && t.Name() == "" {
		pointer = true
		t = t.Elem()
	}

	base, _, ok := strings.Cut(t.Name(), "[")
	if !ok || base == "" {
		return GenericDefinition{}, false
	}

	return GenericDefinition{PkgPath: t.PkgPath(), Name: base, Pointer: pointer}, true
}

// DefinitionFor returns the generic definition of the sample instantiation
// T. The type arguments of T are irrelevant:
//
//	godi.DefinitionFor[Repository[any]]()
//
// It panics if T is not an instantiated generic type.
func DefinitionFor[T any]() GenericDefinition {
	t := reflect.TypeFor[T]()
	def, ok := GenericDefinitionOf(t)
	if !ok {
		panic(fmt.Sprintf("godi: %s is not an instantiated generic type", t))
	}

	return def
}

// IsZero reports whether the definition is empty.
func (g GenericDefinition) IsZero() bool {
	return g.Name == ""
}

// Matches reports whether t is an instantiation of g.
func (g GenericDefinition) Matches(t reflect.Type) bool {
	def, ok := GenericDefinitionOf(t)
	return ok && def == g
}

func (g GenericDefinition) String() string {
	var b strings.Builder
	if g.Pointer {
		b.WriteString("*")
	}
	if g.PkgPath != "" {
		b.WriteString(g.PkgPath)
		b.WriteString(".")
	}
	b.WriteString(g.Name)
	b.WriteString("[...]")
	return b.String()
}

// DecoratorBinding binds requests for any closing of a generic decorator
// type to "resolve the wrapped service, then construct the decorator
// around it". WrappedIndex selects which type argument of the closed
// decorator is the wrapped service.
type DecoratorBinding struct {
	Definition   GenericDefinition
	Lifetime     Lifetime
	WrappedIndex int
}

// Validate checks the binding's configuration.
func (b DecoratorBinding) Validate() error {
	if b.Definition.IsZero() {
		return ValidationError{Cause: fmt.Errorf("%w: decorator definition is empty", ErrInvalidBinding)}
	}

	if !b.Lifetime.IsValid() {
		return ValidationError{Cause: LifetimeError{Value: b.Lifetime}}
	}

	if b.WrappedIndex < 0 {
		return ValidationError{Cause: fmt.Errorf("%w: wrapped index %d is negative", ErrInvalidBinding, b.WrappedIndex)}
	}

	return nil
}

// OpenGenericBinding lets one registration satisfy every closing of a
// generic service type. Implementation names the generic type the
// activator instantiates for each closing.
type OpenGenericBinding struct {
	Service        GenericDefinition
	Implementation GenericDefinition
	Lifetime       Lifetime
}

// Validate checks the binding's configuration.
func (b OpenGenericBinding) Validate() error {
	if b.Service.IsZero() {
		return ValidationError{Cause: fmt.Errorf("%w: service definition is empty", ErrInvalidBinding)}
	}

	if b.Implementation.IsZero() {
		return ValidationError{Cause: fmt.Errorf("%w: implementation definition is empty", ErrInvalidBinding)}
	}

	if !b.Lifetime.IsValid() {
		return ValidationError{Cause: LifetimeError{Value: b.Lifetime}}
	}

	return nil
}

// decoratorDescriptor synthesizes the descriptor serving one closing of a
// decorator binding.
func decoratorDescriptor(closed reflect.Type, b DecoratorBinding, a Activator) *Descriptor {
	return &Descriptor{
		ServiceType:        closed,
		ImplementationType: closed,
		Lifetime:           b.Lifetime,
		Factory: func(r Resolver) (any, error) {
			args, err := a.TypeArguments(closed)
			if err != nil {
				return nil, err
			}

			if b.WrappedIndex >= len(args) {
				return nil, ValidationError{
					ServiceType: closed,
					Cause:       fmt.Errorf("%w: wrapped index %d out of range for %d type arguments", ErrInvalidBinding, b.WrappedIndex, len(args)),
				}
			}

			inner, err := r.GetService(args[b.WrappedIndex])
			if err != nil {
				return nil, err
			}

			factory, err := a.Decorate(closed, inner)
			if err != nil {
				return nil, err
			}

			return factory(r)
		},
	}
}

// openGenericDescriptor synthesizes the descriptor serving one closing of
// an open-generic binding.
func openGenericDescriptor(closed reflect.Type, b OpenGenericBinding, a Activator) *Descriptor {
	return &Descriptor{
		ServiceType:        closed,
		ImplementationType: closed,
		Lifetime:           b.Lifetime,
		Factory: func(r Resolver) (any, error) {
			factory, err := a.Close(closed, b.Implementation)
			if err != nil {
				return nil, err
			}

			return factory(r)
		},
	}
}
