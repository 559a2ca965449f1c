package activator

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/dig"

	"github.com/junioryono/godi/v5"
)

var (
	errType      = reflect.TypeFor[error]()
	resolverType = reflect.TypeFor[godi.Resolver]()
	scopeType    = reflect.TypeFor[*godi.Scope]()
)

// Analysis errors.
var (
	ErrConstructorNil   = errors.New("constructor cannot be nil")
	ErrNoReturn         = errors.New("constructor has no return values")
	ErrTooManyReturns   = errors.New("constructor must return a value and optionally an error")
	ErrResultObject     = errors.New("result objects are not supported")
	ErrVariadic         = errors.New("variadic constructors are not supported")
	ErrBadParamObject   = errors.New("parameter object must be a struct")
	ErrMultiTagNotSlice = errors.New(`multi:"true" requires a slice field`)
)

// paramKind says how a parameter is obtained.
type paramKind int

const (
	paramService  paramKind = iota // GetService(Type)
	paramMulti                     // GetServices(Elem), collected into a slice
	paramResolver                  // the resolver itself
	paramScope                     // the resolver's scope
)

// param describes a constructor parameter or a parameter object field.
type param struct {
	Type     reflect.Type
	Kind     paramKind
	Field    int // field index for parameter objects
	Name     string
	Optional bool
}

// constructorInfo is the cached analysis of one constructor.
type constructorInfo struct {
	Value    reflect.Value
	Type     reflect.Type
	Params   []param
	Result   reflect.Type
	HasError bool

	// ParamObject is set when the only parameter embeds dig.In.
	ParamObject reflect.Type
}

// analyzer caches constructor analysis keyed by function pointer so
// different functions with the same signature are analyzed separately.
type analyzer struct {
	cache sync.Map // map[uintptr]*constructorInfo
}

func (a *analyzer) analyze(constructor any) (*constructorInfo, error) {
	if constructor == nil {
		return nil, ErrConstructorNil
	}

	val := reflect.ValueOf(constructor)
	if val.Kind() != reflect.Func {
		return nil, fmt.Errorf("expected a function, got %s", val.Type())
	}
	if val.IsNil() {
		return nil, ErrConstructorNil
	}

	key := val.Pointer()
	if cached, ok := a.cache.Load(key); ok {
		return cached.(*constructorInfo), nil
	}

	info := &constructorInfo{Value: val, Type: val.Type()}

	if err := analyzeReturns(info); err != nil {
		return nil, fmt.Errorf("%s: %w", info.Type, err)
	}

	if err := analyzeParams(info); err != nil {
		return nil, fmt.Errorf("%s: %w", info.Type, err)
	}

	actual, _ := a.cache.LoadOrStore(key, info)
	return actual.(*constructorInfo), nil
}

func analyzeReturns(info *constructorInfo) error {
	fnType := info.Type

	switch fnType.NumOut() {
	case 0:
		return ErrNoReturn
	case 1:
	case 2:
		if fnType.Out(1) != errType {
			return ErrTooManyReturns
		}
		info.HasError = true
	default:
		return ErrTooManyReturns
	}

	result := fnType.Out(0)
	if result == errType {
		return ErrNoReturn
	}
	if dig.IsOut(result) {
		return ErrResultObject
	}

	info.Result = result
	return nil
}

func analyzeParams(info *constructorInfo) error {
	fnType := info.Type

	if fnType.IsVariadic() {
		return ErrVariadic
	}

	if fnType.NumIn() == 1 && dig.IsIn(fnType.In(0)) {
		return analyzeParamObject(info, fnType.In(0))
	}

	info.Params = make([]param, fnType.NumIn())
	for i := range fnType.NumIn() {
		info.Params[i] = param{Type: fnType.In(i), Kind: kindOf(fnType.In(i))}
	}

	return nil
}

// analyzeParamObject analyzes the exported fields of a dig.In struct.
func analyzeParamObject(info *constructorInfo, structType reflect.Type) error {
	if structType.Kind() != reflect.Struct {
		return ErrBadParamObject
	}

	info.ParamObject = structType

	for i := range structType.NumField() {
		field := structType.Field(i)

		if !field.IsExported() || (field.Anonymous && dig.IsIn(field.Type)) {
			continue
		}

		if field.Tag.Get("inject") == "-" {
			continue
		}

		p := param{
			Type:     field.Type,
			Kind:     kindOf(field.Type),
			Field:    i,
			Name:     field.Name,
			Optional: field.Tag.Get("optional") == "true",
		}

		if field.Tag.Get("multi") == "true" {
			if field.Type.Kind() != reflect.Slice {
				return fmt.Errorf("field %s: %w", field.Name, ErrMultiTagNotSlice)
			}
			p.Kind = paramMulti
		}

		info.Params = append(info.Params, p)
	}

	return nil
}

func kindOf(t reflect.Type) paramKind {
	switch t {
	case resolverType:
		return paramResolver
	case scopeType:
		return paramScope
	default:
		return paramService
	}
}

// dependencies returns the service types the constructor cannot be built
// without. Multi, optional, resolver and scope parameters are left out.
func (info *constructorInfo) dependencies() []reflect.Type {
	var deps []reflect.Type
	for _, p := range info.Params {
		if p.Kind == paramService && !p.Optional {
			deps = append(deps, p.Type)
		}
	}
	return deps
}
