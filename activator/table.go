package activator

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/junioryono/godi/v5"
)

var _ godi.Activator = (*Table)(nil)

// Table errors.
var (
	ErrUnknownClosing = errors.New("no closing registered")
	ErrNotDecorator   = errors.New("closing is not a decorator")
	ErrNotOpenGeneric = errors.New("closing is not an open-generic implementation")
	ErrWrongInner     = errors.New("inner instance has the wrong type")
)

// closing is what the table knows about one closed generic type.
type closing struct {
	args []reflect.Type

	// decorate builds a decorator around an inner instance.
	decorate func(r godi.Resolver, inner any) (any, error)

	// implementation and build serve open-generic bindings.
	implementation reflect.Type
	build          godi.Factory
}

// Table is a godi.Activator serving explicitly listed closings. Fill it
// with Decorator, Closing and TypeArguments before building the registry.
// Table is safe for concurrent use.
type Table struct {
	mu       sync.RWMutex
	closings map[reflect.Type]*closing
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{closings: make(map[reflect.Type]*closing)}
}

func (t *Table) entry(closed reflect.Type) *closing {
	c, ok := t.closings[closed]
	if !ok {
		c = &closing{}
		t.closings[closed] = c
	}
	return c
}

func (t *Table) lookup(closed reflect.Type) (*closing, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c, ok := t.closings[closed]
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrUnknownClosing, closed)
	}
	return c, nil
}

// SetTypeArguments records the type arguments of closed, replacing what
// Decorator recorded. Use it for decorators with more than one type
// parameter.
func (t *Table) SetTypeArguments(closed reflect.Type, args ...reflect.Type) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(closed).args = args
}

// Len returns the number of closings in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.closings)
}

// TypeArguments implements godi.Activator.
func (t *Table) TypeArguments(closed reflect.Type) ([]reflect.Type, error) {
	c, err := t.lookup(closed)
	if err != nil {
		return nil, err
	}

	if len(c.args) == 0 {
		return nil, fmt.Errorf("%w: type arguments of %s", ErrUnknownClosing, closed)
	}

	return c.args, nil
}

// Decorate implements godi.Activator.
func (t *Table) Decorate(closed reflect.Type, inner any) (godi.Factory, error) {
	c, err := t.lookup(closed)
	if err != nil {
		return nil, err
	}

	if c.decorate == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotDecorator, closed)
	}

	return func(r godi.Resolver) (any, error) {
		return c.decorate(r, inner)
	}, nil
}

// Close implements godi.Activator.
func (t *Table) Close(closed reflect.Type, implementation godi.GenericDefinition) (godi.Factory, error) {
	c, err := t.lookup(closed)
	if err != nil {
		return nil, err
	}

	if c.build == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotOpenGeneric, closed)
	}

	if !implementation.Matches(c.implementation) {
		return nil, fmt.Errorf("%w: %s is not a closing of %s", ErrNotOpenGeneric, c.implementation, implementation)
	}

	return c.build, nil
}

// Decorator lists the closing D of a generic decorator wrapping T. T is
// recorded as D's only type argument.
//
//	activator.Decorator(table, func(r godi.Resolver, inner Store[User]) (*Logged[Store[User]], error) {
//	    return &Logged[Store[User]]{inner: inner}, nil
//	})
func Decorator[D, T any](t *Table, build func(r godi.Resolver, inner T) (D, error)) {
	closed := reflect.TypeFor[D]()
	innerType := reflect.TypeFor[T]()

	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.entry(closed)
	if len(c.args) == 0 {
		c.args = []reflect.Type{innerType}
	}

	c.decorate = func(r godi.Resolver, inner any) (any, error) {
		typed, ok := inner.(T)
		if !ok && inner != nil {
			return nil, fmt.Errorf("%w: expected %s, got %T", ErrWrongInner, innerType, inner)
		}
		return build(r, typed)
	}
}

// Closing lists the closed service type S served by the closed
// implementation type I. It fails when I is not assignable to S.
//
//	activator.Closing[Repository[User]](table, func(r godi.Resolver) (*SQLRepository[User], error) {
//	    return NewSQLRepository[User](), nil
//	})
func Closing[S, I any](t *Table, build func(r godi.Resolver) (I, error)) error {
	closed := reflect.TypeFor[S]()
	implementation := reflect.TypeFor[I]()

	if !implementation.AssignableTo(closed) {
		return fmt.Errorf("%s is not assignable to %s", implementation, closed)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.entry(closed)
	c.implementation = implementation
	c.build = func(r godi.Resolver) (any, error) {
		return build(r)
	}

	return nil
}
