package godi

import "context"

// Disposable is implemented by instances that release resources
// synchronously. io.Closer satisfies it.
//
// Example:
//
//	type DatabaseConnection struct {
//	    conn *sql.DB
//	}
//
//	func (dc *DatabaseConnection) Close() error {
//	    return dc.conn.Close()
//	}
type Disposable interface {
	Close() error
}

// DisposableWithContext is implemented by instances whose release may take
// time and should honor a context. It is the asynchronous release path:
// CloseAsync passes its context through, while the synchronous Close blocks
// on it with a context bounded by WithDisposeTimeout.
//
// Example:
//
//	type Worker struct {
//	    stop chan struct{}
//	    done chan struct{}
//	}
//
//	func (w *Worker) Close(ctx context.Context) error {
//	    close(w.stop)
//	    select {
//	    case <-w.done:
//	        return nil
//	    case <-ctx.Done():
//	        return ctx.Err()
//	    }
//	}
type DisposableWithContext interface {
	Close(ctx context.Context) error
}

// isDisposable reports whether instance needs to be tracked for release.
func isDisposable(instance any) bool {
	switch instance.(type) {
	case Disposable, DisposableWithContext:
		return true
	default:
		return false
	}
}

// release disposes a single instance.
func release(ctx context.Context, instance any) error {
	switch v := instance.(type) {
	case Disposable:
		return v.Close()
	case DisposableWithContext:
		return v.Close(ctx)
	default:
		return nil
	}
}
