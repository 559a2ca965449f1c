package godi

import (
	"fmt"
	"reflect"
)

// TypeOf returns the reflect.Type for T, including interface types.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// Resolve is a generic helper that resolves a service as type T.
//
// Example:
//
//	logger, err := godi.Resolve[Logger](scope)
func Resolve[T any](r Resolver) (T, error) {
	var zero T

	if r == nil {
		return zero, ErrRegistryNil
	}

	serviceType := reflect.TypeFor[T]()

	instance, err := r.GetService(serviceType)
	if err != nil {
		return zero, err
	}

	if instance == nil {
		return zero, nil
	}

	result, ok := instance.(T)
	if !ok {
		return zero, TypeMismatchError{
			Expected: serviceType,
			Actual:   reflect.TypeOf(instance),
			Context:  "resolve",
		}
	}

	return result, nil
}

// MustResolve resolves a service and panics on error.
func MustResolve[T any](r Resolver) T {
	result, err := Resolve[T](r)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve %s: %v", formatType(reflect.TypeFor[T]()), err))
	}
	return result
}

// ResolveAll resolves every registration of T in registration order.
func ResolveAll[T any](r Resolver) ([]T, error) {
	if r == nil {
		return nil, ErrRegistryNil
	}

	serviceType := reflect.TypeFor[T]()

	instances, err := r.GetServices(serviceType)
	if err != nil {
		return nil, err
	}

	results := make([]T, 0, len(instances))
	for i, instance := range instances {
		if instance == nil {
			var zero T
			results = append(results, zero)
			continue
		}

		result, ok := instance.(T)
		if !ok {
			return nil, TypeMismatchError{
				Expected: serviceType,
				Actual:   reflect.TypeOf(instance),
				Context:  fmt.Sprintf("resolve all, item %d", i),
			}
		}
		results = append(results, result)
	}

	return results, nil
}
