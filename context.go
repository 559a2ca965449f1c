package godi

import "context"

// scopeContextKey is the key for storing a scope in a context.
type scopeContextKey struct{}

// ContextWithScope returns a copy of ctx carrying s.
func ContextWithScope(ctx context.Context, s *Scope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, scopeContextKey{}, s)
}

// FromContext returns the scope stored in ctx by ContextWithScope. It fails
// with ErrScopeNotInContext when there is none and ErrScopeDisposed when
// the scope was already closed.
func FromContext(ctx context.Context) (*Scope, error) {
	if ctx == nil {
		return nil, ErrScopeNotInContext
	}

	s, ok := ctx.Value(scopeContextKey{}).(*Scope)
	if !ok || s == nil {
		return nil, ErrScopeNotInContext
	}

	if s.IsDisposed() {
		return nil, ErrScopeDisposed
	}

	return s, nil
}
