// Package chi provides godi integration for the Chi router.
//
// This package provides middleware creating a request scope for every
// request and type-safe handler wrappers resolving controllers from it.
//
// Example usage:
//
//	reg, _ := collection.Build()
//
//	r := chi.NewRouter()
//	godichi.Use(r, reg)
//
//	r.Post("/login", godichi.Handle(AuthController.Login))
//	r.Get("/users/{id}", godichi.Handle(UserController.GetByID))
package chi

import (
	"net/http"

	gochi "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/junioryono/godi/v5"
)

// ScopeFactory creates request scopes. *godi.Registry and *godi.Scope
// both implement it; passing a Scope makes every request scope its child.
type ScopeFactory interface {
	CreateScope() (*godi.Scope, error)
}

// Config holds the configuration for the scope middleware.
type Config struct {
	// Logger receives close failures and handler errors. Defaults to the
	// global zap logger.
	Logger *zap.Logger

	// ErrorHandler is called when scope creation or a middleware fails.
	// If nil, a default handler returning 500 Internal Server Error is used.
	ErrorHandler func(http.ResponseWriter, *http.Request, error)

	// CloseErrorHandler is called when closing the request scope fails.
	// If nil, errors are logged.
	CloseErrorHandler func(*http.Request, error)

	// Middlewares run after scope creation, in order. They can be used to
	// initialize request state.
	Middlewares []func(*godi.Scope, *http.Request) error
}

// Option configures the scope middleware.
type Option func(*Config)

// WithLogger sets the logger used by the default handlers.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithErrorHandler sets the error handler for scope creation failures.
func WithErrorHandler(h func(http.ResponseWriter, *http.Request, error)) Option {
	return func(c *Config) {
		c.ErrorHandler = h
	}
}

// WithCloseErrorHandler sets the error handler for scope close failures.
func WithCloseErrorHandler(h func(*http.Request, error)) Option {
	return func(c *Config) {
		c.CloseErrorHandler = h
	}
}

// WithMiddleware adds a function that runs after scope creation.
// Multiple middlewares are executed in the order they are added.
func WithMiddleware(mw func(*godi.Scope, *http.Request) error) Option {
	return func(c *Config) {
		c.Middlewares = append(c.Middlewares, mw)
	}
}

func newConfig(opts []Option) *Config {
	cfg := &Config{Logger: zap.L()}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.ErrorHandler == nil {
		logger := cfg.Logger
		cfg.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("failed to prepare request scope", routeField(r), zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}

	if cfg.CloseErrorHandler == nil {
		logger := cfg.Logger
		cfg.CloseErrorHandler = func(r *http.Request, err error) {
			logger.Error("failed to close request scope", routeField(r), zap.Error(err))
		}
	}

	return cfg
}

// routeField names the matched chi route, or the raw path outside chi.
func routeField(r *http.Request) zap.Field {
	if rctx := gochi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return zap.String("route", pattern)
		}
	}
	return zap.String("path", r.URL.Path)
}

// ScopeMiddleware creates a middleware that opens a scope for each
// request. The scope is attached to the request context, where
// godi.FromContext finds it, and is closed when the request completes.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(godichi.ScopeMiddleware(reg))
func ScopeMiddleware(factory ScopeFactory, opts ...Option) func(http.Handler) http.Handler {
	cfg := newConfig(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, err := factory.CreateScope()
			if err != nil {
				cfg.ErrorHandler(w, r, err)
				return
			}

			defer func() {
				if err := scope.Close(); err != nil {
					cfg.CloseErrorHandler(r, err)
				}
			}()

			r = r.WithContext(godi.ContextWithScope(r.Context(), scope))

			for _, mw := range cfg.Middlewares {
				if err := mw(scope, r); err != nil {
					cfg.ErrorHandler(w, r, err)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Use installs ScopeMiddleware on router.
func Use(router gochi.Router, factory ScopeFactory, opts ...Option) {
	router.Use(ScopeMiddleware(factory, opts...))
}

// HandlerConfig holds configuration for the Handle wrapper.
type HandlerConfig struct {
	// Logger receives failures reported by the default handlers.
	Logger *zap.Logger

	// PanicRecovery enables panic recovery in the handler.
	PanicRecovery bool

	// PanicHandler is called when a panic occurs (if PanicRecovery is true).
	PanicHandler func(http.ResponseWriter, *http.Request, any)

	// ScopeErrorHandler is called when scope retrieval fails.
	ScopeErrorHandler func(http.ResponseWriter, *http.Request, error)

	// ResolutionErrorHandler is called when controller resolution fails.
	ResolutionErrorHandler func(http.ResponseWriter, *http.Request, error)
}

// HandlerOption configures the Handle wrapper.
type HandlerOption func(*HandlerConfig)

// WithHandlerLogger sets the logger used by the default handlers.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(c *HandlerConfig) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithPanicRecovery enables or disables panic recovery in the handler.
func WithPanicRecovery(enabled bool) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicRecovery = enabled
	}
}

// WithPanicHandler sets the handler for panics.
func WithPanicHandler(h func(http.ResponseWriter, *http.Request, any)) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicHandler = h
	}
}

// WithScopeErrorHandler sets the error handler for scope retrieval failures.
func WithScopeErrorHandler(h func(http.ResponseWriter, *http.Request, error)) HandlerOption {
	return func(c *HandlerConfig) {
		c.ScopeErrorHandler = h
	}
}

// WithResolutionErrorHandler sets the error handler for controller resolution failures.
func WithResolutionErrorHandler(h func(http.ResponseWriter, *http.Request, error)) HandlerOption {
	return func(c *HandlerConfig) {
		c.ResolutionErrorHandler = h
	}
}

func newHandlerConfig(opts []HandlerOption) *HandlerConfig {
	cfg := &HandlerConfig{Logger: zap.L()}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.Logger
	internalError := func(w http.ResponseWriter) {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}

	if cfg.PanicHandler == nil {
		cfg.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
			logger.Error("panic in handler", routeField(r), zap.Any("panic", v))
			internalError(w)
		}
	}

	if cfg.ScopeErrorHandler == nil {
		cfg.ScopeErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("failed to get scope from context", routeField(r), zap.Error(err))
			internalError(w)
		}
	}

	if cfg.ResolutionErrorHandler == nil {
		cfg.ResolutionErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("failed to resolve controller", routeField(r), zap.Error(err))
			internalError(w)
		}
	}

	return cfg
}

// Handle wraps a controller method for type-safe resolution from the
// request scope. The controller type T is resolved from the scope attached
// to the request context.
//
// The method signature should be: func(T, http.ResponseWriter, *http.Request)
//
// Example:
//
//	type UserController interface {
//	    GetByID(http.ResponseWriter, *http.Request)
//	}
//
//	r.Get("/users/{id}", godichi.Handle(UserController.GetByID))
func Handle[T any](method func(T, http.ResponseWriter, *http.Request), opts ...HandlerOption) http.HandlerFunc {
	cfg := newHandlerConfig(opts)

	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.PanicRecovery {
			defer func() {
				if v := recover(); v != nil {
					cfg.PanicHandler(w, r, v)
				}
			}()
		}

		scope, err := godi.FromContext(r.Context())
		if err != nil {
			cfg.ScopeErrorHandler(w, r, err)
			return
		}

		controller, err := godi.Resolve[T](scope)
		if err != nil {
			cfg.ResolutionErrorHandler(w, r, err)
			return
		}

		method(controller, w, r)
	}
}
