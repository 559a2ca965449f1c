package activator

import (
	"errors"
	"reflect"

	"github.com/junioryono/godi/v5"
)

var _ godi.ConstructorStrategy = (*Reflect)(nil)

// Reflect is a godi.ConstructorStrategy backed by runtime reflection. It
// accepts functions returning T or (T, error), and plain values, which
// become pre-built instances.
//
// Reflect is safe for concurrent use; analysis results are cached per
// constructor.
type Reflect struct {
	analyzer analyzer
}

// NewReflect creates a reflection-based strategy.
func NewReflect() *Reflect {
	return &Reflect{}
}

// Describe implements godi.ConstructorStrategy.
func (s *Reflect) Describe(constructor any) (godi.Recipe, error) {
	if constructor == nil {
		return godi.Recipe{}, ErrConstructorNil
	}

	if reflect.TypeOf(constructor).Kind() != reflect.Func {
		t := reflect.TypeOf(constructor)
		return godi.Recipe{ServiceType: t, ImplementationType: t, Instance: constructor}, nil
	}

	info, err := s.analyzer.analyze(constructor)
	if err != nil {
		return godi.Recipe{}, err
	}

	return godi.Recipe{
		ServiceType:        info.Result,
		ImplementationType: info.Result,
		Factory:            factoryFor(info),
		Dependencies:       info.dependencies(),
	}, nil
}

// Factory returns a godi.Factory invoking constructor with its parameters
// resolved through the factory's resolver.
func (s *Reflect) Factory(constructor any) (godi.Factory, error) {
	info, err := s.analyzer.analyze(constructor)
	if err != nil {
		return nil, err
	}

	return factoryFor(info), nil
}

func factoryFor(info *constructorInfo) godi.Factory {
	return func(r godi.Resolver) (any, error) {
		args, err := arguments(info, r)
		if err != nil {
			return nil, err
		}

		return invoke(info, args)
	}
}

func invoke(info *constructorInfo, args []reflect.Value) (any, error) {
	results := info.Value.Call(args)

	if info.HasError {
		if errVal := results[1]; !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
	}

	return results[0].Interface(), nil
}

// arguments resolves the constructor's parameters. Resolution errors are
// returned as they are so the engine reports them unchanged.
func arguments(info *constructorInfo, r godi.Resolver) ([]reflect.Value, error) {
	if info.ParamObject != nil {
		obj := reflect.New(info.ParamObject).Elem()
		for _, p := range info.Params {
			v, err := resolveParam(p, r)
			if err != nil {
				return nil, err
			}
			obj.Field(p.Field).Set(v)
		}

		return []reflect.Value{obj}, nil
	}

	args := make([]reflect.Value, len(info.Params))
	for i, p := range info.Params {
		v, err := resolveParam(p, r)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	return args, nil
}

func resolveParam(p param, r godi.Resolver) (reflect.Value, error) {
	switch p.Kind {
	case paramResolver:
		return reflect.ValueOf(&r).Elem(), nil

	case paramScope:
		return reflect.ValueOf(r.Scope()), nil

	case paramMulti:
		values, err := r.GetServices(p.Type.Elem())
		if err != nil {
			if p.Optional && missing(err, p.Type.Elem()) {
				return reflect.MakeSlice(p.Type, 0, 0), nil
			}
			return reflect.Value{}, err
		}

		slice := reflect.MakeSlice(p.Type, len(values), len(values))
		for i, v := range values {
			if v != nil {
				slice.Index(i).Set(reflect.ValueOf(v))
			}
		}
		return slice, nil

	default:
		v, err := r.GetService(p.Type)
		if err != nil {
			if p.Optional && missing(err, p.Type) {
				return reflect.Zero(p.Type), nil
			}
			return reflect.Value{}, err
		}

		if v == nil {
			return reflect.Zero(p.Type), nil
		}
		return reflect.ValueOf(v), nil
	}
}

// missing reports whether err says t itself is not registered, as opposed
// to one of t's own dependencies.
func missing(err error, t reflect.Type) bool {
	var re godi.ResolutionError
	return errors.As(err, &re) && re.ServiceType == t && godi.IsNotFound(err)
}
