package godi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================
// Sentinels are wrapped in the typed errors below before they reach callers.
// Match them with errors.Is.

var (
	// Resolution errors.
	ErrServiceNotFound    = errors.New("service not found")
	ErrServiceTypeNil     = errors.New("service type cannot be nil")
	ErrCircularDependency = errors.New("circular dependency detected")
	ErrLifetimeConflict   = errors.New("service lifetime conflict")
	ErrNoActivator        = errors.New("no activator configured")

	// Lifecycle errors.
	ErrRegistryNil       = errors.New("registry cannot be nil")
	ErrRegistryFrozen    = errors.New("registry is frozen")
	ErrRegistryDisposed  = errors.New("registry has been disposed")
	ErrScopeDisposed     = errors.New("scope has been disposed")
	ErrScopeNotInContext = errors.New("no scope found in context")

	// Validation errors.
	ErrDescriptorNil    = errors.New("descriptor cannot be nil")
	ErrDescriptorInUse  = errors.New("descriptor already registered")
	ErrFactoryNil       = errors.New("factory cannot be nil")
	ErrInvalidBinding   = errors.New("invalid generic binding")
	ErrDuplicateBinding = errors.New("generic definition already bound")
	ErrNoStrategy       = errors.New("no constructor strategy configured")
	ErrConstructorNil   = errors.New("constructor cannot be nil")
)

var (
	_ error = LifetimeError{}
	_ error = LifetimeConflictError{}
	_ error = ResolutionError{}
	_ error = CircularDependencyError{}
	_ error = RegistrationError{}
	_ error = ValidationError{}
	_ error = ConstructionError{}
	_ error = ConstructorPanicError{}
	_ error = DuplicateBindingError{}
	_ error = TypeMismatchError{}
	_ error = DisposalError{}
	_ error = ModuleError{}
)

// engineError marks errors produced by the resolution engine itself. A
// factory that returns one of them (typically after a nested GetService
// failed) has it passed through untouched instead of wrapped again.
type engineError interface {
	error
	fromEngine()
}

// ========================================
// Typed Errors for Rich Context
// ========================================

// LifetimeError indicates an invalid lifetime value.
type LifetimeError struct {
	Value any
}

func (e LifetimeError) Error() string {
	return fmt.Sprintf("invalid service lifetime: %v", e.Value)
}

// LifetimeConflictError indicates a Singleton tried to capture a Scoped
// service while it was being constructed.
type LifetimeConflictError struct {
	ServiceType        reflect.Type
	ServiceLifetime    Lifetime
	DependencyType     reflect.Type
	DependencyLifetime Lifetime
}

func (e LifetimeConflictError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "lifetime conflict: %s (%s) cannot depend on %s (%s)\n\n",
		formatType(e.ServiceType), e.ServiceLifetime,
		formatType(e.DependencyType), e.DependencyLifetime)

	b.WriteString("Singleton services live as long as the registry.\n")
	b.WriteString("Scoped services are released when their scope is closed, so a singleton\n")
	b.WriteString("holding one would keep a disposed instance alive.\n\n")

	b.WriteString("To resolve this:\n")
	fmt.Fprintf(&b, "  • Change %s to Scoped lifetime\n", formatType(e.ServiceType))
	fmt.Fprintf(&b, "  • Change %s to Singleton lifetime\n", formatType(e.DependencyType))
	fmt.Fprintf(&b, "  • Resolve %s lazily from a scope instead of at construction\n", formatType(e.DependencyType))

	return b.String()
}

func (e LifetimeConflictError) Is(target error) bool {
	return target == ErrLifetimeConflict
}

func (LifetimeConflictError) fromEngine() {}

// ResolutionError wraps errors that occur while locating a service.
type ResolutionError struct {
	ServiceType reflect.Type
	Cause       error
	Available   []reflect.Type // registered types, used for suggestions
}

func (e ResolutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "service not found: %s", formatType(e.ServiceType))

	if e.Cause != nil && !errors.Is(e.Cause, ErrServiceNotFound) {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}

	if similar := findSimilarTypes(e.ServiceType, e.Available); len(similar) > 0 {
		b.WriteString("\n\nDid you mean one of these?\n")
		for _, t := range similar {
			fmt.Fprintf(&b, "  • %s\n", formatType(t))
		}
	}

	return b.String()
}

func (e ResolutionError) Unwrap() error {
	return e.Cause
}

func (ResolutionError) fromEngine() {}

// findSimilarTypes finds types with similar names using a substring match.
func findSimilarTypes(target reflect.Type, available []reflect.Type) []reflect.Type {
	if target == nil || len(available) == 0 {
		return nil
	}

	targetName := strings.ToLower(target.String())
	targetShort := strings.ToLower(shortName(target))

	var similar []reflect.Type
	for _, t := range available {
		if t == nil || t == target {
			continue
		}

		name := strings.ToLower(t.String())
		short := strings.ToLower(shortName(t))
		if short == targetShort || strings.Contains(name, targetShort) || strings.Contains(targetName, short) {
			similar = append(similar, t)
		}

		if len(similar) >= 5 {
			break
		}
	}

	return similar
}

func shortName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice {
		t = t.Elem()
	}

	if t.Name() != "" {
		return t.Name()
	}

	return t.String()
}

// CircularDependencyError reports a service that was requested again while
// it was still being constructed. Chain lists the types in construction
// order, oldest first, and ends with the repeated type.
type CircularDependencyError struct {
	Chain []reflect.Type
}

func (e CircularDependencyError) Error() string {
	var b strings.Builder
	b.WriteString("circular dependency detected: ")
	b.WriteString(e.ChainString())
	b.WriteString("\n\n")

	for i, t := range e.Chain {
		fmt.Fprintf(&b, "    %s", formatType(t))
		if i == len(e.Chain)-1 {
			b.WriteString(" (cycle)")
		}
		b.WriteString("\n")
		if i < len(e.Chain)-1 {
			b.WriteString("      ↓\n")
		}
	}

	b.WriteString("\nTo resolve this:\n")
	b.WriteString("  • Use an interface to break the dependency\n")
	b.WriteString("  • Use a factory that resolves lazily\n")
	b.WriteString("  • Restructure to remove the circular relationship\n")

	return b.String()
}

// ChainString renders the chain as "A -> B -> A".
func (e CircularDependencyError) ChainString() string {
	names := make([]string, len(e.Chain))
	for i, t := range e.Chain {
		names[i] = formatType(t)
	}

	return strings.Join(names, " -> ")
}

func (e CircularDependencyError) Is(target error) bool {
	return target == ErrCircularDependency
}

func (CircularDependencyError) fromEngine() {}

// RegistrationError wraps errors during registration.
type RegistrationError struct {
	ServiceType reflect.Type
	Operation   string // "register", "register-decorator", "register-open-generic"
	Cause       error
}

func (e RegistrationError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Operation, formatType(e.ServiceType), e.Cause)
}

func (e RegistrationError) Unwrap() error {
	return e.Cause
}

// ValidationError indicates an invalid descriptor or binding.
type ValidationError struct {
	ServiceType reflect.Type
	Cause       error
}

func (e ValidationError) Error() string {
	if e.ServiceType != nil {
		return fmt.Sprintf("%s: %v", formatType(e.ServiceType), e.Cause)
	}

	return e.Cause.Error()
}

func (e ValidationError) Unwrap() error {
	return e.Cause
}

// ConstructionError wraps a failure returned (or raised) by a factory. The
// failed instance is not cached; a later resolution retries the factory.
type ConstructionError struct {
	ServiceType reflect.Type
	Lifetime    Lifetime
	Cause       error
}

func (e ConstructionError) Error() string {
	return fmt.Sprintf("failed to construct %s (%s): %v", formatType(e.ServiceType), e.Lifetime, e.Cause)
}

func (e ConstructionError) Unwrap() error {
	return e.Cause
}

func (ConstructionError) fromEngine() {}

// ConstructorPanicError indicates a factory panicked.
type ConstructorPanicError struct {
	ServiceType reflect.Type
	Panic       any
	Stack       []byte
}

func (e ConstructorPanicError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "factory for %s panicked: %v\n", formatType(e.ServiceType), e.Panic)

	if len(e.Stack) > 0 {
		b.WriteString("\nStack trace:\n")
		b.Write(e.Stack)
	}

	return b.String()
}

// DuplicateBindingError indicates a generic definition bound twice.
type DuplicateBindingError struct {
	Definition GenericDefinition
	Kind       string // "decorator", "open generic"
}

func (e DuplicateBindingError) Error() string {
	return fmt.Sprintf("%s binding for %s already registered", e.Kind, e.Definition)
}

func (e DuplicateBindingError) Is(target error) bool {
	return target == ErrDuplicateBinding
}

// TypeMismatchError indicates a resolved instance has an unexpected type.
type TypeMismatchError struct {
	Expected reflect.Type
	Actual   reflect.Type
	Context  string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Context, formatType(e.Expected), formatType(e.Actual))
}

// DisposalError aggregates release failures.
type DisposalError struct {
	Context string // "registry", "scope"
	Errors  []error
}

func (e DisposalError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("%s disposal failed: %v", e.Context, e.Errors[0])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s disposal failed with %d errors:", e.Context, len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "\n  %d. %v", i+1, err)
	}

	return b.String()
}

func (e DisposalError) Unwrap() []error {
	return e.Errors
}

// ModuleError wraps errors from module registration.
type ModuleError struct {
	Module string
	Cause  error
}

func (e ModuleError) Error() string {
	return fmt.Sprintf("module %q: %v", e.Module, e.Cause)
}

func (e ModuleError) Unwrap() error {
	return e.Cause
}

// IsNotFound reports whether err means a service was not registered.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrServiceNotFound)
}

// IsCircularDependency reports whether err is caused by a dependency cycle.
func IsCircularDependency(err error) bool {
	return errors.Is(err, ErrCircularDependency)
}

// IsDisposed reports whether err was returned because a Registry or Scope
// was already closed.
func IsDisposed(err error) bool {
	return errors.Is(err, ErrRegistryDisposed) || errors.Is(err, ErrScopeDisposed)
}

// formatType formats a reflect.Type for error messages.
func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "*" + elem.Name()
		}
		return t.String()
	case reflect.Slice:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "[]" + elem.Name()
		}
		return t.String()
	default:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	}
}
