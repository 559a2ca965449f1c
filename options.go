package godi

import (
	"reflect"
	"time"

	"go.uber.org/zap"
)

// EmptyServicesPolicy decides what GetServices returns for a type with no
// registrations.
type EmptyServicesPolicy int

const (
	// FailOnEmpty makes GetServices fail with ErrServiceNotFound, like
	// GetService does.
	FailOnEmpty EmptyServicesPolicy = iota

	// AllowEmpty makes GetServices return an empty slice.
	AllowEmpty
)

// String returns the string representation of the policy.
func (p EmptyServicesPolicy) String() string {
	switch p {
	case FailOnEmpty:
		return "fail"
	case AllowEmpty:
		return "allow"
	default:
		return "unknown"
	}
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	logger            *zap.Logger
	activator         Activator
	emptyServices     EmptyServicesPolicy
	validateLifetimes bool
	validateGraph     bool
	trackTransients   bool
	disposeTimeout    time.Duration

	onServiceResolved func(serviceType reflect.Type, instance any, duration time.Duration)
	onServiceError    func(serviceType reflect.Type, err error)
}

func defaultOptions() *options {
	return &options{
		logger:            zap.NewNop(),
		emptyServices:     FailOnEmpty,
		validateLifetimes: true,
	}
}

// WithLogger sets the logger used for registration, construction and
// disposal events. A nil logger keeps the no-op default.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithActivator sets the construction collaborator used to close decorator
// and open-generic bindings.
func WithActivator(a Activator) Option {
	return func(o *options) {
		o.activator = a
	}
}

// WithEmptyServicesPolicy sets how GetServices treats types without
// registrations. The default is FailOnEmpty.
func WithEmptyServicesPolicy(p EmptyServicesPolicy) Option {
	return func(o *options) {
		o.emptyServices = p
	}
}

// WithLifetimeValidation enables or disables the check that rejects a
// Singleton capturing a Scoped service. Enabled by default.
func WithLifetimeValidation(enabled bool) Option {
	return func(o *options) {
		o.validateLifetimes = enabled
	}
}

// WithDependencyValidation makes Collection.Build run Registry.Validate on
// the new registry and fail when it reports an error. Disabled by default.
func WithDependencyValidation(enabled bool) Option {
	return func(o *options) {
		o.validateGraph = enabled
	}
}

// WithTransientTracking makes scopes release disposable Transient
// instances they created. Transients created while building a Singleton
// are released with the Registry instead.
func WithTransientTracking(enabled bool) Option {
	return func(o *options) {
		o.trackTransients = enabled
	}
}

// WithDisposeTimeout bounds how long the synchronous Close waits for each
// DisposableWithContext instance. Zero means no deadline.
func WithDisposeTimeout(d time.Duration) Option {
	return func(o *options) {
		o.disposeTimeout = d
	}
}

// WithOnServiceResolved registers a callback invoked after each top-level
// successful resolution.
func WithOnServiceResolved(fn func(serviceType reflect.Type, instance any, duration time.Duration)) Option {
	return func(o *options) {
		o.onServiceResolved = fn
	}
}

// WithOnServiceError registers a callback invoked after each top-level
// failed resolution.
func WithOnServiceError(fn func(serviceType reflect.Type, err error)) Option {
	return func(o *options) {
		o.onServiceError = fn
	}
}
